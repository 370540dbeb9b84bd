package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"reportflow_backend/internal/events"
	"reportflow_backend/internal/notification/inapp"
	notificationoutbox "reportflow_backend/internal/notification/outbox"
	"reportflow_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeInAppStore struct {
	created   []inapp.CreateParams
	createErr error
}

func (f *fakeInAppStore) Create(_ context.Context, p inapp.CreateParams) (inapp.Notification, error) {
	if f.createErr != nil {
		return inapp.Notification{}, f.createErr
	}
	f.created = append(f.created, p)
	return inapp.Notification{
		ID:        uuid.New(),
		UserID:    p.UserID,
		Title:     p.Title,
		Content:   p.Content,
		Category:  p.Category,
		CreatedAt: time.Now(),
	}, nil
}

func (f *fakeInAppStore) List(context.Context, uuid.UUID, int, int) ([]inapp.Notification, int, error) {
	return nil, 0, nil
}

func (f *fakeInAppStore) CountUnread(context.Context, uuid.UUID) (int, error) { return 0, nil }

func (f *fakeInAppStore) MarkRead(context.Context, uuid.UUID, uuid.UUID) error { return nil }

func (f *fakeInAppStore) MarkAllRead(context.Context, uuid.UUID) error { return nil }

func (f *fakeInAppStore) Delete(context.Context, uuid.UUID, uuid.UUID) error { return nil }

type fakeOutbox struct {
	inserted   []notificationoutbox.InsertParams
	record     notificationoutbox.Record
	getErr     error
	processing []uuid.UUID
	succeeded  []uuid.UUID
	failed     map[uuid.UUID]string
	requeued   map[uuid.UUID]string
}

func newFakeOutbox() *fakeOutbox {
	return &fakeOutbox{
		failed:   make(map[uuid.UUID]string),
		requeued: make(map[uuid.UUID]string),
	}
}

func (f *fakeOutbox) Insert(_ context.Context, p notificationoutbox.InsertParams) (uuid.UUID, error) {
	f.inserted = append(f.inserted, p)
	return uuid.New(), nil
}

func (f *fakeOutbox) GetByID(_ context.Context, id uuid.UUID) (notificationoutbox.Record, error) {
	if f.getErr != nil {
		return notificationoutbox.Record{}, f.getErr
	}
	if f.record.ID != id {
		return notificationoutbox.Record{}, fmt.Errorf("no rows in result set")
	}
	return f.record, nil
}

func (f *fakeOutbox) MarkProcessing(_ context.Context, id uuid.UUID) error {
	f.processing = append(f.processing, id)
	return nil
}

func (f *fakeOutbox) MarkSucceeded(_ context.Context, id uuid.UUID) error {
	f.succeeded = append(f.succeeded, id)
	return nil
}

func (f *fakeOutbox) MarkFailed(_ context.Context, id uuid.UUID, lastError string) error {
	f.failed[id] = lastError
	return nil
}

func (f *fakeOutbox) MarkPending(_ context.Context, id uuid.UUID, lastError *string) error {
	msg := ""
	if lastError != nil {
		msg = *lastError
	}
	f.requeued[id] = msg
	return nil
}

type fakeObjects struct {
	url string
	err error
}

func (f *fakeObjects) DownloadURL(_ context.Context, bucket, fileKey string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.url + "/" + bucket + "/" + fileKey, nil
}

type testNotificationConfig struct {
	followUpDelay time.Duration
}

func (c testNotificationConfig) GetAppBaseURL() string { return "http://localhost:4200" }
func (c testNotificationConfig) GetFollowUpReminderDelay() time.Duration {
	return c.followUpDelay
}

func newTestModule(store *fakeInAppStore, delay time.Duration) *Module {
	return New(store, testNotificationConfig{followUpDelay: delay}, logger.New("test"))
}

func TestReportSavedCreatesBellEntryOnlyOnCreate(t *testing.T) {
	store := &fakeInAppStore{}
	m := newTestModule(store, 0)

	userID := uuid.New()
	saved := events.ReportSaved{
		SessionID: uuid.New(),
		UserID:    userID,
		ReportID:  "r-100",
		Title:     "Roof Inspection",
		Created:   true,
	}
	if err := m.Handle(context.Background(), saved); err != nil {
		t.Fatalf("Handle(created) error: %v", err)
	}
	if len(store.created) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(store.created))
	}
	got := store.created[0]
	if got.UserID != userID {
		t.Fatalf("notification for wrong user: %s", got.UserID)
	}
	if got.Category != "success" {
		t.Fatalf("category = %q, want success", got.Category)
	}
	if got.ResourceID == nil || *got.ResourceID != "r-100" {
		t.Fatalf("resourceId = %v, want r-100", got.ResourceID)
	}
	if !strings.Contains(got.Content, "Roof Inspection") {
		t.Fatalf("content %q does not mention the report title", got.Content)
	}

	saved.Created = false
	if err := m.Handle(context.Background(), saved); err != nil {
		t.Fatalf("Handle(update) error: %v", err)
	}
	if len(store.created) != 1 {
		t.Fatalf("update save should not add a bell entry, got %d", len(store.created))
	}
}

func TestReportSentSchedulesFollowUpReminder(t *testing.T) {
	store := &fakeInAppStore{}
	m := newTestModule(store, 72*time.Hour)
	ob := newFakeOutbox()
	m.SetNotificationOutbox(ob)

	before := time.Now().UTC()
	err := m.Handle(context.Background(), events.ReportSent{
		SessionID: uuid.New(),
		UserID:    uuid.New(),
		ReportID:  "r-200",
		LeadID:    "lead-5",
		Method:    "email",
	})
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}

	if len(store.created) != 1 {
		t.Fatalf("expected delivered notification, got %d", len(store.created))
	}
	if len(ob.inserted) != 1 {
		t.Fatalf("expected 1 outbox insert, got %d", len(ob.inserted))
	}
	ins := ob.inserted[0]
	if ins.Kind != followUpKind {
		t.Fatalf("outbox kind = %q, want %q", ins.Kind, followUpKind)
	}
	if got, want := ins.RunAt, before.Add(72*time.Hour); got.Before(want) {
		t.Fatalf("runAt %s earlier than expected %s", got, want)
	}

	payload, ok := ins.Payload.(followUpPayload)
	if !ok {
		t.Fatalf("payload type %T", ins.Payload)
	}
	if payload.ReportID != "r-200" || payload.LeadID != "lead-5" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestReportSentWithoutDelaySkipsReminder(t *testing.T) {
	store := &fakeInAppStore{}
	m := newTestModule(store, 0)
	ob := newFakeOutbox()
	m.SetNotificationOutbox(ob)

	err := m.Handle(context.Background(), events.ReportSent{
		UserID:   uuid.New(),
		ReportID: "r-201",
		Method:   "sms",
	})
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if len(ob.inserted) != 0 {
		t.Fatalf("expected no outbox insert, got %d", len(ob.inserted))
	}
}

func TestReportSendFailedCreatesErrorEntry(t *testing.T) {
	store := &fakeInAppStore{}
	m := newTestModule(store, 0)

	err := m.Handle(context.Background(), events.ReportSendFailed{
		SessionID: uuid.New(),
		UserID:    uuid.New(),
		Stage:     "render",
		Reason:    "gotenberg unreachable",
	})
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if len(store.created) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(store.created))
	}
	got := store.created[0]
	if got.Category != "error" {
		t.Fatalf("category = %q, want error", got.Category)
	}
	if !strings.Contains(got.Content, "render") {
		t.Fatalf("content %q does not name the failed stage", got.Content)
	}
	if got.ResourceID != nil {
		t.Fatalf("no report was saved, resourceId should be nil, got %v", *got.ResourceID)
	}
}

func TestSectionGeneratedIsSSEOnly(t *testing.T) {
	store := &fakeInAppStore{}
	m := newTestModule(store, 0)

	err := m.Handle(context.Background(), events.SectionGenerated{
		SessionID: uuid.New(),
		UserID:    uuid.New(),
		SectionID: "executive-summary",
	})
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if len(store.created) != 0 {
		t.Fatalf("section generation should not create bell entries, got %d", len(store.created))
	}
}

func TestOutboxDueDeliversFollowUpReminder(t *testing.T) {
	store := &fakeInAppStore{}
	m := newTestModule(store, 0)
	ob := newFakeOutbox()
	m.SetNotificationOutbox(ob)

	userID := uuid.New()
	payload, _ := json.Marshal(followUpPayload{ReportID: "r-300", LeadName: "Dana Reyes"})
	ob.record = notificationoutbox.Record{
		ID:      uuid.New(),
		UserID:  userID,
		Kind:    followUpKind,
		Payload: payload,
		Status:  notificationoutbox.StatusEnqueued,
	}

	err := m.Handle(context.Background(), events.NotificationOutboxDue{OutboxID: ob.record.ID})
	if err != nil {
		t.Fatalf("Handle error: %v", err)
	}

	if len(ob.processing) != 1 || len(ob.succeeded) != 1 {
		t.Fatalf("processing=%d succeeded=%d, want 1/1", len(ob.processing), len(ob.succeeded))
	}
	if len(store.created) != 1 {
		t.Fatalf("expected reminder notification, got %d", len(store.created))
	}
	got := store.created[0]
	if got.UserID != userID {
		t.Fatalf("reminder for wrong user: %s", got.UserID)
	}
	if !strings.Contains(got.Content, "Dana Reyes") {
		t.Fatalf("content %q does not mention the lead", got.Content)
	}
	if got.ResourceID == nil || *got.ResourceID != "r-300" {
		t.Fatalf("resourceId = %v, want r-300", got.ResourceID)
	}
}

func TestOutboxDueUnknownKindFailsPermanently(t *testing.T) {
	store := &fakeInAppStore{}
	m := newTestModule(store, 0)
	ob := newFakeOutbox()
	m.SetNotificationOutbox(ob)

	ob.record = notificationoutbox.Record{
		ID:      uuid.New(),
		UserID:  uuid.New(),
		Kind:    "whatsapp",
		Payload: json.RawMessage(`{}`),
		Status:  notificationoutbox.StatusEnqueued,
	}

	err := m.Handle(context.Background(), events.NotificationOutboxDue{OutboxID: ob.record.ID})
	if err == nil {
		t.Fatal("expected error for unknown kind")
	}
	if _, ok := ob.failed[ob.record.ID]; !ok {
		t.Fatal("record should be marked failed, not requeued")
	}
	if _, ok := ob.requeued[ob.record.ID]; ok {
		t.Fatal("permanent failure must not be requeued")
	}
}

func TestOutboxDueTransientFailureRequeues(t *testing.T) {
	store := &fakeInAppStore{createErr: fmt.Errorf("connection refused")}
	m := newTestModule(store, 0)
	ob := newFakeOutbox()
	m.SetNotificationOutbox(ob)

	payload, _ := json.Marshal(followUpPayload{ReportID: "r-400"})
	ob.record = notificationoutbox.Record{
		ID:      uuid.New(),
		UserID:  uuid.New(),
		Kind:    followUpKind,
		Payload: payload,
		Status:  notificationoutbox.StatusEnqueued,
	}

	err := m.Handle(context.Background(), events.NotificationOutboxDue{OutboxID: ob.record.ID})
	if err == nil {
		t.Fatal("expected delivery error")
	}
	if msg, ok := ob.requeued[ob.record.ID]; !ok || !strings.Contains(msg, "connection refused") {
		t.Fatalf("record should be requeued with the error, got %q ok=%v", msg, ok)
	}
	if _, ok := ob.failed[ob.record.ID]; ok {
		t.Fatal("transient failure must not be marked failed yet")
	}
}

func TestOutboxDueExhaustedAttemptsFails(t *testing.T) {
	store := &fakeInAppStore{createErr: fmt.Errorf("connection refused")}
	m := newTestModule(store, 0)
	ob := newFakeOutbox()
	m.SetNotificationOutbox(ob)

	payload, _ := json.Marshal(followUpPayload{ReportID: "r-401"})
	ob.record = notificationoutbox.Record{
		ID:       uuid.New(),
		UserID:   uuid.New(),
		Kind:     followUpKind,
		Payload:  payload,
		Status:   notificationoutbox.StatusEnqueued,
		Attempts: maxOutboxRetryAttempts - 1,
	}

	err := m.Handle(context.Background(), events.NotificationOutboxDue{OutboxID: ob.record.ID})
	if err == nil {
		t.Fatal("expected delivery error")
	}
	if _, ok := ob.failed[ob.record.ID]; !ok {
		t.Fatal("exhausted record should be marked failed")
	}
}

func TestOutboxDueSkipsFinishedRecords(t *testing.T) {
	store := &fakeInAppStore{}
	m := newTestModule(store, 0)
	ob := newFakeOutbox()
	m.SetNotificationOutbox(ob)

	ob.record = notificationoutbox.Record{
		ID:     uuid.New(),
		UserID: uuid.New(),
		Kind:   followUpKind,
		Status: notificationoutbox.StatusSucceeded,
	}

	if err := m.Handle(context.Background(), events.NotificationOutboxDue{OutboxID: ob.record.ID}); err != nil {
		t.Fatalf("Handle error: %v", err)
	}
	if len(ob.processing) != 0 || len(store.created) != 0 {
		t.Fatal("finished records must not be reprocessed")
	}
}
