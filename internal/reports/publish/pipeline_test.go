package publish

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"reportflow_backend/internal/crm"
	"reportflow_backend/internal/events"
	"reportflow_backend/internal/pdf"
	"reportflow_backend/internal/reports/wizard"
	"reportflow_backend/platform/apperr"
	"reportflow_backend/platform/logger"

	"github.com/google/uuid"
)

// fakeCRM implements both the wizard and pipeline client slices and counts
// every call so tests can assert which stages ran.
type fakeCRM struct {
	mu       sync.Mutex
	calls    map[string]int
	leads    []crm.Lead
	report   crm.Report
	lastSave crm.SaveReportRequest

	createErr error
	updateErr error
	pdfErr    error
	shareErr  error
	sendErr   error
}

func newFakeCRM() *fakeCRM {
	return &fakeCRM{
		calls: map[string]int{},
		leads: []crm.Lead{{
			ID:     "l1",
			Name:   "Dana Reyes",
			Email:  "dana@example.com",
			Phone:  "(303) 555-0100",
			Status: "hot",
		}},
		report: crm.Report{ID: "r-100", Title: "Inspection Report"},
	}
}

func (f *fakeCRM) count(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
}

func (f *fakeCRM) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeCRM) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.calls {
		total += n
	}
	return total
}

func (f *fakeCRM) ListLeads(ctx context.Context, limit int) ([]crm.Lead, error) {
	return f.leads, nil
}
func (f *fakeCRM) GetLead(ctx context.Context, id string) (*crm.Lead, error) {
	return nil, errors.New("not found")
}
func (f *fakeCRM) GetBusinessProfile(ctx context.Context) (*crm.BusinessProfile, error) {
	return &crm.BusinessProfile{CompanyName: "Summit Roofing"}, nil
}
func (f *fakeCRM) GetPricing(ctx context.Context) ([]crm.PricingItem, error) {
	return nil, nil
}

func (f *fakeCRM) CreateReport(ctx context.Context, req crm.SaveReportRequest) (*crm.Report, error) {
	f.count("create")
	f.mu.Lock()
	f.lastSave = req
	f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	report := f.report
	report.Title = req.Title
	return &report, nil
}

func (f *fakeCRM) UpdateReport(ctx context.Context, id string, req crm.SaveReportRequest) (*crm.Report, error) {
	f.count("update")
	f.mu.Lock()
	f.lastSave = req
	f.mu.Unlock()
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	report := f.report
	report.ID = id
	report.Title = req.Title
	return &report, nil
}

func (f *fakeCRM) GeneratePDF(ctx context.Context, id string) ([]byte, error) {
	f.count("pdf")
	if f.pdfErr != nil {
		return nil, f.pdfErr
	}
	return []byte("%PDF-1.4"), nil
}

func (f *fakeCRM) CreateShareLink(ctx context.Context, id string) (*crm.ShareLink, error) {
	f.count("share")
	if f.shareErr != nil {
		return nil, f.shareErr
	}
	return &crm.ShareLink{Token: "tok", ShareURL: "https://reports.example/share/tok"}, nil
}

func (f *fakeCRM) SendReport(ctx context.Context, id string, req crm.SendRequest) error {
	f.count("send")
	return f.sendErr
}

type fakeStore struct {
	uploads int
	err     error
}

func (f *fakeStore) Upload(ctx context.Context, bucket, folder, fileName, contentType string, data []byte) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.uploads++
	return folder + "/" + fileName, nil
}

type fakeThumbnailer struct {
	err error
}

func (f *fakeThumbnailer) Screenshot(ctx context.Context, indexHTML []byte, opts pdf.ScreenshotOpts) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte("png"), nil
}

type fakeMailer struct {
	sent int
	err  error
	last struct {
		to, shareURL string
		pdfLen       int
	}
}

func (f *fakeMailer) SendReportEmail(ctx context.Context, toEmail, leadName, companyName, reportTitle, shareURL string, pdfData []byte) error {
	if f.err != nil {
		return f.err
	}
	f.sent++
	f.last.to = toEmail
	f.last.shareURL = shareURL
	f.last.pdfLen = len(pdfData)
	return nil
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

type testBuckets struct{}

func (testBuckets) GetMinIOEndpoint() string               { return "minio:9000" }
func (testBuckets) GetMinIOAccessKey() string              { return "" }
func (testBuckets) GetMinIOSecretKey() string              { return "" }
func (testBuckets) GetMinIOUseSSL() bool                   { return false }
func (testBuckets) GetMinioBucketReportThumbnails() string { return "report-thumbnails" }
func (testBuckets) GetMinioBucketReportPDFs() string       { return "report-pdfs" }
func (testBuckets) GetMinioBucketShareQRCodes() string     { return "share-qrcodes" }
func (testBuckets) IsMinIOEnabled() bool                   { return true }

func newReadySession(t *testing.T, crmClient *fakeCRM, selectLead bool) *wizard.Session {
	t.Helper()
	log := logger.New("development")
	store := wizard.NewStore(time.Hour, log)
	t.Cleanup(store.Close)

	if !selectLead {
		crmClient.leads = nil
	}

	svc := wizard.NewService(store, crmClient, &recordingBus{}, log)
	session, err := svc.Create(context.Background(), uuid.New(), "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if selectLead {
		if _, err := svc.ChooseType(session.ID, session.UserID, "inspection-report"); err != nil {
			t.Fatalf("ChooseType: %v", err)
		}
	}
	return session
}

func newPipeline(crmClient *fakeCRM, thumbs Thumbnailer, store ObjectStore, mail EmailSender) (*Pipeline, *recordingBus) {
	bus := &recordingBus{}
	return New(crmClient, thumbs, store, mail, testBuckets{}, bus, logger.New("development")), bus
}

func TestSaveWithoutLeadMakesNoNetworkCalls(t *testing.T) {
	crmClient := newFakeCRM()
	session := newReadySession(t, crmClient, false)
	p, _ := newPipeline(crmClient, nil, nil, nil)

	if _, err := p.Save(context.Background(), session); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("Save = %v, want validation error", err)
	}
	if crmClient.callCount("create")+crmClient.callCount("update") != 0 {
		t.Fatalf("guard failure must not reach the CRM, calls = %v", crmClient.calls)
	}
}

func TestSaveCreatesThenUpdates(t *testing.T) {
	crmClient := newFakeCRM()
	session := newReadySession(t, crmClient, true)
	p, bus := newPipeline(crmClient, nil, nil, nil)

	report, err := p.Save(context.Background(), session)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if report.ID != "r-100" || session.ReportID() != "r-100" {
		t.Fatalf("report id not recorded: %q / %q", report.ID, session.ReportID())
	}
	if !bus.has("reports.report.saved") {
		t.Error("expected report saved event")
	}

	if _, err := p.Save(context.Background(), session); err != nil {
		t.Fatalf("second Save: %v", err)
	}
	if crmClient.callCount("create") != 1 || crmClient.callCount("update") != 1 {
		t.Fatalf("create/update = %d/%d, want 1/1", crmClient.callCount("create"), crmClient.callCount("update"))
	}
}

func TestSaveSnapshotsProfileAndBranding(t *testing.T) {
	crmClient := newFakeCRM()
	session := newReadySession(t, crmClient, true)
	p, _ := newPipeline(crmClient, nil, nil, nil)

	layout := "modern"
	if err := session.UpdateConfig(wizard.ConfigPatch{
		Branding:    &crm.Branding{AccentColor: "#ff6600"},
		LayoutStyle: &layout,
	}); err != nil {
		t.Fatalf("UpdateConfig: %v", err)
	}

	if _, err := p.Save(context.Background(), session); err != nil {
		t.Fatalf("Save: %v", err)
	}

	saved := crmClient.lastSave
	if saved.BusinessProfile == nil || saved.BusinessProfile.CompanyName != "Summit Roofing" {
		t.Fatalf("business profile not persisted: %+v", saved.BusinessProfile)
	}
	if saved.Branding == nil || saved.Branding.AccentColor != "#ff6600" {
		t.Fatalf("branding override not persisted: %+v", saved.Branding)
	}
	if saved.LayoutStyle != "modern" {
		t.Fatalf("layout style = %q, want %q", saved.LayoutStyle, "modern")
	}
}

func TestSaveFallsBackToProfileBranding(t *testing.T) {
	crmClient := newFakeCRM()
	session := newReadySession(t, crmClient, true)
	p, _ := newPipeline(crmClient, nil, nil, nil)

	if _, err := p.Save(context.Background(), session); err != nil {
		t.Fatalf("Save: %v", err)
	}
	saved := crmClient.lastSave
	if saved.Branding == nil {
		t.Fatal("profile branding should be snapshotted when no override is set")
	}
}

func TestSaveSurvivesThumbnailFailure(t *testing.T) {
	crmClient := newFakeCRM()
	session := newReadySession(t, crmClient, true)
	p, _ := newPipeline(crmClient, &fakeThumbnailer{err: errors.New("gotenberg down")}, &fakeStore{}, nil)

	if _, err := p.Save(context.Background(), session); err != nil {
		t.Fatalf("Save should tolerate thumbnail failure: %v", err)
	}
}

func TestSendDeliversByEmailWithShareLink(t *testing.T) {
	crmClient := newFakeCRM()
	session := newReadySession(t, crmClient, true)
	store := &fakeStore{}
	mail := &fakeMailer{}
	p, bus := newPipeline(crmClient, &fakeThumbnailer{}, store, mail)

	result, err := p.Send(context.Background(), session, "", "")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if result.Method != MethodEmail || result.Recipient != "dana@example.com" {
		t.Errorf("result = %+v", result)
	}
	if result.ShareURL != "https://reports.example/share/tok" {
		t.Errorf("share url = %q", result.ShareURL)
	}
	if mail.sent != 1 || mail.last.pdfLen == 0 {
		t.Errorf("mail not sent with attachment: %+v", mail.last)
	}
	if crmClient.callCount("send") != 0 {
		t.Error("SMTP delivery must not also call the CRM send endpoint")
	}
	if !bus.has("reports.report.sent") || !bus.has("reports.share.link_created") {
		t.Error("expected sent and share link events")
	}
	// Thumbnail, PDF archive, and QR code all landed in object storage.
	if store.uploads != 3 {
		t.Errorf("uploads = %d, want 3", store.uploads)
	}
}

func TestSendToleratesShareLinkFailure(t *testing.T) {
	crmClient := newFakeCRM()
	crmClient.shareErr = errors.New("share endpoint down")
	session := newReadySession(t, crmClient, true)
	mail := &fakeMailer{}
	p, bus := newPipeline(crmClient, nil, nil, mail)

	result, err := p.Send(context.Background(), session, "", "")
	if err != nil {
		t.Fatalf("Send should tolerate share failure: %v", err)
	}
	if result.ShareURL != "" {
		t.Errorf("share url = %q, want empty", result.ShareURL)
	}
	if mail.sent != 1 {
		t.Error("report should still be delivered")
	}
	if bus.has("reports.share.link_created") {
		t.Error("no share link event expected on failure")
	}
}

func TestSendAbortsWhenPDFRenderFails(t *testing.T) {
	crmClient := newFakeCRM()
	crmClient.pdfErr = errors.New("render timeout")
	session := newReadySession(t, crmClient, true)
	mail := &fakeMailer{}
	p, bus := newPipeline(crmClient, nil, nil, mail)

	if _, err := p.Send(context.Background(), session, "", ""); !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("Send = %v, want unavailable error", err)
	}
	if mail.sent != 0 || crmClient.callCount("share") != 0 {
		t.Error("later stages must not run after a fatal render failure")
	}
	if !bus.has("reports.report.send_failed") {
		t.Error("expected send failed event")
	}
}

func TestSendAbortsWhenDeliveryFails(t *testing.T) {
	crmClient := newFakeCRM()
	session := newReadySession(t, crmClient, true)
	mail := &fakeMailer{err: errors.New("smtp refused")}
	p, bus := newPipeline(crmClient, nil, nil, mail)

	if _, err := p.Send(context.Background(), session, "", ""); !apperr.Is(err, apperr.KindUnavailable) {
		t.Fatalf("Send = %v, want unavailable error", err)
	}
	if !bus.has("reports.report.send_failed") {
		t.Error("expected send failed event")
	}
	if bus.has("reports.report.sent") {
		t.Error("no sent event expected on delivery failure")
	}
}

func TestSendFallsBackToCRMDelivery(t *testing.T) {
	crmClient := newFakeCRM()
	session := newReadySession(t, crmClient, true)
	p, _ := newPipeline(crmClient, nil, nil, nil)

	result, err := p.Send(context.Background(), session, MethodSMS, "")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if crmClient.callCount("send") != 1 {
		t.Fatalf("crm send calls = %d, want 1", crmClient.callCount("send"))
	}
	if result.Recipient != "+13035550100" {
		t.Errorf("recipient = %q, want normalized E.164", result.Recipient)
	}
}

func TestResolveDeliveryValidation(t *testing.T) {
	lead := crm.Lead{}
	if _, _, err := resolveDelivery(MethodEmail, "", lead); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("missing email = %v, want validation error", err)
	}
	if _, _, err := resolveDelivery("fax", "x", crm.Lead{Email: "a@b.c"}); !apperr.Is(err, apperr.KindValidation) {
		t.Errorf("unknown method = %v, want validation error", err)
	}
}
