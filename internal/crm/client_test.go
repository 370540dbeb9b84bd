package crm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

type testConfig struct {
	baseURL string
}

func (c testConfig) GetCRMBaseURL() string        { return c.baseURL }
func (c testConfig) GetCRMAPIKey() string         { return "test-key" }
func (c testConfig) GetCRMTimeout() time.Duration { return 5 * time.Second }

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return New(testConfig{baseURL: server.URL}, nil), server
}

func TestListLeadsSendsLimitAndAuth(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/leads" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "150" {
			t.Errorf("limit = %q, want 150", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"leads":[{"id":"l1","name":"Ada"},{"lead_id":"l2","name":"Bea"}]}`))
	})

	leads, err := client.ListLeads(context.Background(), 150)
	if err != nil {
		t.Fatalf("ListLeads: %v", err)
	}
	if len(leads) != 2 {
		t.Fatalf("got %d leads, want 2", len(leads))
	}
	if leads[1].Key() != "l2" {
		t.Errorf("fallback key = %q, want l2", leads[1].Key())
	}
}

func TestCreateReportReturnsAssignedID(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/reports" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		w.Write([]byte(`{"id":"rep-42","lead_id":"l1","type":"inspection-report","title":"Roof"}`))
	})

	report, err := client.CreateReport(context.Background(), SaveReportRequest{
		LeadID: "l1",
		Type:   "inspection-report",
		Title:  "Roof",
	})
	if err != nil {
		t.Fatalf("CreateReport: %v", err)
	}
	if report.ID != "rep-42" {
		t.Errorf("report ID = %q, want rep-42", report.ID)
	}
}

func TestNon2xxIncludesBodyExcerpt(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream renderer down"))
	})

	_, err := client.GeneratePDF(context.Background(), "rep-42")
	if err == nil {
		t.Fatal("expected error for 502")
	}
	if want := "upstream renderer down"; !strings.Contains(err.Error(), want) {
		t.Errorf("error %q does not mention %q", err.Error(), want)
	}
}

func TestSendReportNoRetryOnFailure(t *testing.T) {
	var calls int
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	if err := client.SendReport(context.Background(), "rep-42", SendRequest{LeadID: "l1", Method: "email"}); err == nil {
		t.Fatal("expected error for 503")
	}
	if calls != 1 {
		t.Errorf("upstream called %d times, want exactly 1", calls)
	}
}
