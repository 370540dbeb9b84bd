package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"reportflow_backend/internal/crm"
	"reportflow_backend/internal/events"
	"reportflow_backend/internal/reports/wizard"
	"reportflow_backend/platform/apperr"
	"reportflow_backend/platform/logger"

	"github.com/google/uuid"
)

type disabledAI struct{}

func (disabledAI) GetMoonshotAPIKey() string { return "" }
func (disabledAI) GetMoonshotModel() string  { return "" }
func (disabledAI) IsAIEnabled() bool         { return false }

type fakeFallback struct {
	text string
	err  error
	last crm.GenerateContentRequest
}

func (f *fakeFallback) GenerateContent(ctx context.Context, req crm.GenerateContentRequest) (string, error) {
	f.last = req
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type fakeCRM struct {
	leads []crm.Lead
}

func (f *fakeCRM) ListLeads(ctx context.Context, limit int) ([]crm.Lead, error) {
	return f.leads, nil
}
func (f *fakeCRM) GetLead(ctx context.Context, id string) (*crm.Lead, error) {
	return nil, errors.New("not found")
}
func (f *fakeCRM) GetBusinessProfile(ctx context.Context) (*crm.BusinessProfile, error) {
	return nil, errors.New("not configured")
}
func (f *fakeCRM) GetPricing(ctx context.Context) ([]crm.PricingItem, error) {
	return nil, errors.New("not configured")
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(ctx context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBus) PublishSync(ctx context.Context, event events.Event) error {
	b.Publish(ctx, event)
	return nil
}

func (b *recordingBus) Subscribe(eventName string, handler events.Handler) {}

func (b *recordingBus) has(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, e := range b.events {
		if e.EventName() == name {
			return true
		}
	}
	return false
}

func newTestSession(t *testing.T, reportType string) *wizard.Session {
	t.Helper()
	log := logger.New("development")
	store := wizard.NewStore(time.Hour, log)
	t.Cleanup(store.Close)

	crmClient := &fakeCRM{leads: []crm.Lead{{
		ID:           "l1",
		Name:         "Dana Reyes",
		Address:      "450 Alder St",
		City:         "Boulder",
		State:        "CO",
		Zip:          "80301",
		PropertyType: "single-family",
		Status:       "hot",
	}}}
	svc := wizard.NewService(store, crmClient, &recordingBus{}, log)

	session, err := svc.Create(context.Background(), uuid.New(), "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if reportType != "" {
		if _, err := svc.ChooseType(session.ID, session.UserID, reportType); err != nil {
			t.Fatalf("ChooseType: %v", err)
		}
	}
	return session
}

func newTestGenerator(t *testing.T, fallback *fakeFallback) (*SectionGenerator, *recordingBus) {
	t.Helper()
	bus := &recordingBus{}
	gen, err := NewSectionGenerator(disabledAI{}, fallback, bus, logger.New("development"))
	if err != nil {
		t.Fatalf("NewSectionGenerator: %v", err)
	}
	return gen, bus
}

func TestGenerateStoresSanitizedContent(t *testing.T) {
	session := newTestSession(t, "inspection-report")
	fallback := &fakeFallback{text: "<p>The roof shows moderate wear.</p>"}
	gen, bus := newTestGenerator(t, fallback)

	entry, err := gen.Generate(context.Background(), session, "executive-summary", "")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if entry.Text != "The roof shows moderate wear." {
		t.Errorf("text = %q, want html stripped", entry.Text)
	}
	if !entry.AIGenerated {
		t.Error("entry should be flagged as generated")
	}

	stored, ok := session.AIContent()["executive-summary"]
	if !ok || stored.Text != entry.Text {
		t.Errorf("entry not stored on session: %+v", stored)
	}
	if !bus.has("reports.section.generated") {
		t.Error("expected section generated event")
	}

	if fallback.last.PropertyAddress != "450 Alder St, Boulder, CO 80301" {
		t.Errorf("property address = %q", fallback.last.PropertyAddress)
	}
	if !strings.Contains(fallback.last.Prompt, "450 Alder St, Boulder, CO 80301") {
		t.Errorf("prompt missing property address: %q", fallback.last.Prompt)
	}
}

func TestGenerateRequiresReportType(t *testing.T) {
	session := newTestSession(t, "")
	gen, _ := newTestGenerator(t, &fakeFallback{text: "x"})

	if _, err := gen.Generate(context.Background(), session, "executive-summary", ""); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("Generate without type = %v, want validation error", err)
	}
}

func TestGenerateRejectsUnknownSection(t *testing.T) {
	session := newTestSession(t, "inspection-report")
	gen, _ := newTestGenerator(t, &fakeFallback{text: "x"})

	if _, err := gen.Generate(context.Background(), session, "no-such-section", ""); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("Generate unknown section = %v, want validation error", err)
	}
}

func TestGenerateFailureLeavesNoEntry(t *testing.T) {
	session := newTestSession(t, "inspection-report")
	fallback := &fakeFallback{err: errors.New("model timeout")}
	gen, bus := newTestGenerator(t, fallback)

	if _, err := gen.Generate(context.Background(), session, "executive-summary", ""); !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("Generate = %v, want unavailable error", err)
	}
	if len(session.AIContent()) != 0 {
		t.Error("failed generation must not store an entry")
	}
	if !bus.has("reports.section.generation_failed") {
		t.Error("expected generation failed event")
	}
}

func TestGenerateEmptyOutputIsAnError(t *testing.T) {
	session := newTestSession(t, "inspection-report")
	fallback := &fakeFallback{text: "  <br> "}
	gen, _ := newTestGenerator(t, fallback)

	if _, err := gen.Generate(context.Background(), session, "executive-summary", ""); !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("Generate = %v, want unavailable error for empty output", err)
	}
	if len(session.AIContent()) != 0 {
		t.Error("empty output must not store an entry")
	}
}

func TestGenerateRejectsConcurrentRun(t *testing.T) {
	session := newTestSession(t, "inspection-report")
	gen, _ := newTestGenerator(t, &fakeFallback{text: "x"})

	gen.runMu.Lock()
	defer gen.runMu.Unlock()

	if _, err := gen.Generate(context.Background(), session, "executive-summary", ""); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("Generate while busy = %v, want conflict error", err)
	}
}

func TestBuildSectionPrompt(t *testing.T) {
	lead := crm.Lead{Address: "12 Oak Ave", City: "Denver", State: "CO", PropertyType: "duplex"}

	got := buildSectionPrompt("Assess {property_address} which is a {property_type} home.", "", lead)
	want := "Assess 12 Oak Ave, Denver, CO which is a duplex home."
	if got != want {
		t.Errorf("prompt = %q, want %q", got, want)
	}

	// Custom prompts win verbatim, minus control characters.
	got = buildSectionPrompt("ignored", "Focus on\x00 the gutters.", lead)
	if got != "Focus on the gutters." {
		t.Errorf("custom prompt = %q", got)
	}

	// Missing lead fields fall back to generic placeholders.
	got = buildSectionPrompt("{property_address} / {property_type}", "", crm.Lead{})
	if got != "the property / residential" {
		t.Errorf("placeholder prompt = %q", got)
	}
}
