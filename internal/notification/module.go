// Package notification turns domain events into user-facing notifications:
// persisted in-app entries, live SSE pushes, and deferred follow-up reminders
// via the outbox. Domain modules publish events and never talk to this module
// directly.
package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"reportflow_backend/internal/events"
	apphttp "reportflow_backend/internal/http"
	notifhandler "reportflow_backend/internal/notification/handler"
	"reportflow_backend/internal/notification/inapp"
	notificationoutbox "reportflow_backend/internal/notification/outbox"
	"reportflow_backend/internal/notification/sse"
	"reportflow_backend/platform/config"
	"reportflow_backend/platform/httpkit"
	"reportflow_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	resourceTypeReport = "report"

	followUpKind           = "follow_up_reminder"
	maxOutboxRetryAttempts = 5

	invalidOutboxPayloadPrefix = "invalid payload: "
)

// ObjectStore presigns download URLs for stored objects. Satisfied by
// storage.Service.
type ObjectStore interface {
	DownloadURL(ctx context.Context, bucket, fileKey string) (string, error)
}

// Outbox is the deferred-delivery surface the module needs. Satisfied by
// *outbox.Repository.
type Outbox interface {
	Insert(ctx context.Context, p notificationoutbox.InsertParams) (uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (notificationoutbox.Record, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) error
	MarkSucceeded(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, lastError string) error
	MarkPending(ctx context.Context, id uuid.UUID, lastError *string) error
}

// followUpPayload is the outbox payload for a deferred follow-up reminder.
type followUpPayload struct {
	ReportID string `json:"reportId"`
	LeadID   string `json:"leadId,omitempty"`
	LeadName string `json:"leadName,omitempty"`
	Title    string `json:"title,omitempty"`
}

// Module handles all notification-related event subscriptions.
type Module struct {
	cfg          config.NotificationConfig
	log          *logger.Logger
	sse          *sse.Service
	objects      ObjectStore
	qrBucket     string
	outbox       Outbox
	inAppService *inapp.Service
	inAppHandler *notifhandler.HTTPHandler
}

// New creates a new notification module on top of an in-app notification
// store, typically inapp.NewRepository(pool).
func New(store inapp.Store, cfg config.NotificationConfig, log *logger.Logger) *Module {
	inAppSvc := inapp.NewService(store, log)

	return &Module{
		cfg:          cfg,
		log:          log,
		inAppService: inAppSvc,
		inAppHandler: notifhandler.NewHTTPHandler(inAppSvc),
	}
}

// Name returns the module identifier.
func (m *Module) Name() string { return "notification" }

// RegisterRoutes registers notification API routes and the SSE stream.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	notifications := ctx.Protected.Group("/notifications")
	m.inAppHandler.RegisterRoutes(notifications)

	if m.sse != nil {
		ctx.Protected.GET("/events", m.sse.Handler(httpkit.UserID))
	}
}

// SetSSE injects the SSE service so events can be pushed to connected clients.
func (m *Module) SetSSE(s *sse.Service) {
	m.sse = s
	if m.inAppService != nil {
		m.inAppService.SetSSE(s)
	}
}

// SetObjectStore injects the store used to presign QR code download URLs.
func (m *Module) SetObjectStore(store ObjectStore, qrBucket string) {
	m.objects = store
	m.qrBucket = qrBucket
}

// SetNotificationOutbox injects the outbox repository for deferred reminders.
func (m *Module) SetNotificationOutbox(repo Outbox) {
	m.outbox = repo
}

// InAppService exposes the in-app notification service for integration points.
func (m *Module) InAppService() *inapp.Service { return m.inAppService }

// RegisterHandlers subscribes to all relevant domain events on the event bus.
func (m *Module) RegisterHandlers(bus *events.InMemoryBus) {
	bus.Subscribe(events.ReportSaved{}.EventName(), m)
	bus.Subscribe(events.ReportSent{}.EventName(), m)
	bus.Subscribe(events.ReportSendFailed{}.EventName(), m)
	bus.Subscribe(events.SectionGenerated{}.EventName(), m)
	bus.Subscribe(events.SectionGenerationFailed{}.EventName(), m)
	bus.Subscribe(events.ShareLinkCreated{}.EventName(), m)
	bus.Subscribe(events.DirectoryLoadFailed{}.EventName(), m)
	bus.Subscribe(events.NotificationOutboxDue{}.EventName(), m)

	m.log.Info("notification module registered event handlers")
}

// Handle routes events to the appropriate handler method.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	switch e := event.(type) {
	case events.ReportSaved:
		return m.handleReportSaved(ctx, e)
	case events.ReportSent:
		return m.handleReportSent(ctx, e)
	case events.ReportSendFailed:
		return m.handleReportSendFailed(ctx, e)
	case events.SectionGenerated:
		return m.handleSectionGenerated(ctx, e)
	case events.SectionGenerationFailed:
		return m.handleSectionGenerationFailed(ctx, e)
	case events.ShareLinkCreated:
		return m.handleShareLinkCreated(ctx, e)
	case events.DirectoryLoadFailed:
		return m.handleDirectoryLoadFailed(ctx, e)
	case events.NotificationOutboxDue:
		return m.handleNotificationOutboxDue(ctx, e)
	default:
		m.log.Warn("unhandled event type", "event", event.EventName())
		return nil
	}
}

func (m *Module) handleReportSaved(ctx context.Context, e events.ReportSaved) error {
	if m.sse != nil {
		m.sse.Publish(e.UserID, sse.Event{
			Type:     sse.EventReportSaved,
			ReportID: e.ReportID,
			Data: map[string]any{
				"sessionId": e.SessionID.String(),
				"created":   e.Created,
			},
		})
	}

	// Only the initial save gets a bell entry; autosaves on every send would
	// drown the feed.
	if !e.Created {
		return nil
	}

	title := e.Title
	if title == "" {
		title = "Untitled report"
	}
	reportID := e.ReportID
	return m.inAppService.Send(ctx, inapp.SendParams{
		UserID:       e.UserID,
		Title:        "Report draft saved",
		Content:      fmt.Sprintf("%q was saved to your workspace.", title),
		ResourceID:   &reportID,
		ResourceType: resourceTypeReport,
		Category:     "success",
	})
}

func (m *Module) handleReportSent(ctx context.Context, e events.ReportSent) error {
	if m.sse != nil {
		m.sse.Publish(e.UserID, sse.Event{
			Type:     sse.EventReportSent,
			ReportID: e.ReportID,
			Data: map[string]any{
				"sessionId": e.SessionID.String(),
				"method":    e.Method,
				"shareUrl":  e.ShareURL,
			},
		})
	}

	reportID := e.ReportID
	if err := m.inAppService.Send(ctx, inapp.SendParams{
		UserID:       e.UserID,
		Title:        "Report delivered",
		Content:      fmt.Sprintf("Your report was sent by %s.", e.Method),
		ResourceID:   &reportID,
		ResourceType: resourceTypeReport,
		Category:     "success",
	}); err != nil {
		return err
	}

	m.scheduleFollowUpReminder(ctx, e)
	return nil
}

// scheduleFollowUpReminder enqueues a deferred reminder so the sender checks
// back with the recipient after a few days. Enqueue failures only log; the
// send itself already succeeded.
func (m *Module) scheduleFollowUpReminder(ctx context.Context, e events.ReportSent) {
	if m.outbox == nil {
		return
	}

	delay := m.cfg.GetFollowUpReminderDelay()
	if delay <= 0 {
		return
	}

	runAt := time.Now().UTC().Add(delay)
	id, err := m.outbox.Insert(ctx, notificationoutbox.InsertParams{
		UserID: e.UserID,
		Kind:   followUpKind,
		Payload: followUpPayload{
			ReportID: e.ReportID,
			LeadID:   e.LeadID,
		},
		RunAt: runAt,
	})
	if err != nil {
		m.log.Error("failed to enqueue follow-up reminder", "error", err, "reportId", e.ReportID, "userId", e.UserID)
		return
	}
	m.log.Info("follow-up reminder enqueued", "outboxId", id.String(), "reportId", e.ReportID, "runAt", runAt)
}

func (m *Module) handleReportSendFailed(ctx context.Context, e events.ReportSendFailed) error {
	if m.sse != nil {
		m.sse.Publish(e.UserID, sse.Event{
			Type:     sse.EventReportSendFailed,
			ReportID: e.ReportID,
			Message:  e.Reason,
			Data: map[string]any{
				"sessionId": e.SessionID.String(),
				"stage":     e.Stage,
			},
		})
	}

	params := inapp.SendParams{
		UserID:       e.UserID,
		Title:        "Report delivery failed",
		Content:      fmt.Sprintf("Sending failed at the %s stage. Open the wizard to retry.", e.Stage),
		ResourceType: resourceTypeReport,
		Category:     "error",
	}
	if e.ReportID != "" {
		reportID := e.ReportID
		params.ResourceID = &reportID
	}
	return m.inAppService.Send(ctx, params)
}

// Section generation results are transient wizard state; they go out over SSE
// only and never hit the bell.
func (m *Module) handleSectionGenerated(_ context.Context, e events.SectionGenerated) error {
	if m.sse != nil {
		m.sse.Publish(e.UserID, sse.Event{
			Type: sse.EventSectionGenerated,
			Data: map[string]any{
				"sessionId": e.SessionID.String(),
				"sectionId": e.SectionID,
			},
		})
	}
	return nil
}

func (m *Module) handleSectionGenerationFailed(ctx context.Context, e events.SectionGenerationFailed) error {
	if m.sse != nil {
		m.sse.Publish(e.UserID, sse.Event{
			Type:    sse.EventSectionGenerationFailed,
			Message: e.Reason,
			Data: map[string]any{
				"sessionId": e.SessionID.String(),
				"sectionId": e.SectionID,
			},
		})
	}

	return m.inAppService.Send(ctx, inapp.SendParams{
		UserID:   e.UserID,
		Title:    "Section generation failed",
		Content:  fmt.Sprintf("Content for section %q could not be generated. You can retry or write it manually.", e.SectionID),
		Category: "warning",
	})
}

func (m *Module) handleShareLinkCreated(ctx context.Context, e events.ShareLinkCreated) error {
	if m.sse == nil {
		return nil
	}

	data := map[string]any{
		"sessionId": e.SessionID.String(),
		"shareUrl":  e.ShareURL,
	}
	if e.QRCodeKey != "" && m.objects != nil {
		qrURL, err := m.objects.DownloadURL(ctx, m.qrBucket, e.QRCodeKey)
		if err != nil {
			m.log.Warn("failed to presign qr code url", "error", err, "key", e.QRCodeKey)
		} else {
			data["qrCodeUrl"] = qrURL
		}
	}

	m.sse.Publish(e.UserID, sse.Event{
		Type:     sse.EventShareLinkCreated,
		ReportID: e.ReportID,
		Data:     data,
	})
	return nil
}

func (m *Module) handleDirectoryLoadFailed(ctx context.Context, e events.DirectoryLoadFailed) error {
	if m.sse != nil {
		m.sse.Publish(e.UserID, sse.Event{
			Type:    sse.EventDirectoryLoadFailed,
			Message: e.Reason,
			Data:    map[string]any{"sessionId": e.SessionID.String()},
		})
	}

	return m.inAppService.Send(ctx, inapp.SendParams{
		UserID:   e.UserID,
		Title:    "Lead list unavailable",
		Content:  "The CRM could not be reached. Your previous lead list is still shown.",
		Category: "warning",
	})
}

// handleNotificationOutboxDue delivers a claimed outbox record. Transient
// failures flip the record back to pending so the dispatcher retries it;
// after maxOutboxRetryAttempts it is marked failed.
func (m *Module) handleNotificationOutboxDue(ctx context.Context, e events.NotificationOutboxDue) error {
	if m.outbox == nil {
		return nil
	}

	rec, err := m.outbox.GetByID(ctx, e.OutboxID)
	if err != nil {
		m.log.Error("failed to load outbox record", "error", err, "outboxId", e.OutboxID)
		return err
	}
	if rec.Status == notificationoutbox.StatusSucceeded || rec.Status == notificationoutbox.StatusFailed {
		return nil
	}

	if err := m.outbox.MarkProcessing(ctx, rec.ID); err != nil {
		return err
	}
	// MarkProcessing bumped attempts; mirror that locally for the retry guard.
	rec.Attempts++

	if err := m.deliverOutboxRecord(ctx, rec); err != nil {
		return m.recordOutboxFailure(ctx, rec, err)
	}

	return m.outbox.MarkSucceeded(ctx, rec.ID)
}

func (m *Module) deliverOutboxRecord(ctx context.Context, rec notificationoutbox.Record) error {
	switch rec.Kind {
	case followUpKind:
		return m.deliverFollowUpReminder(ctx, rec)
	default:
		// Unknown kinds are permanent failures; retrying cannot help.
		return fmt.Errorf("%sunknown outbox kind %q", invalidOutboxPayloadPrefix, rec.Kind)
	}
}

func (m *Module) deliverFollowUpReminder(ctx context.Context, rec notificationoutbox.Record) error {
	var payload followUpPayload
	if err := json.Unmarshal(rec.Payload, &payload); err != nil {
		return fmt.Errorf("%s%v", invalidOutboxPayloadPrefix, err)
	}

	content := "It has been a few days since you sent a report. Consider following up with the recipient."
	if payload.LeadName != "" {
		content = fmt.Sprintf("It has been a few days since you sent a report to %s. Consider following up.", payload.LeadName)
	}

	params := inapp.SendParams{
		UserID:       rec.UserID,
		Title:        "Time to follow up",
		Content:      content,
		ResourceType: resourceTypeReport,
		Category:     "info",
	}
	if payload.ReportID != "" {
		reportID := payload.ReportID
		params.ResourceID = &reportID
	}
	return m.inAppService.Send(ctx, params)
}

func (m *Module) recordOutboxFailure(ctx context.Context, rec notificationoutbox.Record, deliverErr error) error {
	errText := deliverErr.Error()

	permanent := strings.HasPrefix(errText, invalidOutboxPayloadPrefix) ||
		rec.Attempts >= maxOutboxRetryAttempts
	if permanent {
		if err := m.outbox.MarkFailed(ctx, rec.ID, errText); err != nil {
			m.log.Error("failed to mark outbox record failed", "error", err, "outboxId", rec.ID)
		}
		m.log.Error("outbox record failed permanently", "outboxId", rec.ID, "kind", rec.Kind, "attempts", rec.Attempts, "error", errText)
		return deliverErr
	}

	if err := m.outbox.MarkPending(ctx, rec.ID, &errText); err != nil {
		m.log.Error("failed to requeue outbox record", "error", err, "outboxId", rec.ID)
	}
	m.log.Warn("outbox record delivery failed, will retry", "outboxId", rec.ID, "kind", rec.Kind, "attempts", rec.Attempts, "error", errText)
	return deliverErr
}

var _ apphttp.Module = (*Module)(nil)
