// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"reportflow_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// =============================================================================
// Report Workflow Events
// =============================================================================

// ReportSaved is published after a report draft is created or updated in the CRM.
type ReportSaved struct {
	BaseEvent
	SessionID uuid.UUID `json:"sessionId"`
	UserID    uuid.UUID `json:"userId"`
	ReportID  string    `json:"reportId"`
	LeadID    string    `json:"leadId"`
	Title     string    `json:"title"`
	Created   bool      `json:"created"`
}

func (e ReportSaved) EventName() string { return "reports.report.saved" }

// ReportSent is published after a report has been rendered and delivered.
type ReportSent struct {
	BaseEvent
	SessionID uuid.UUID `json:"sessionId"`
	UserID    uuid.UUID `json:"userId"`
	ReportID  string    `json:"reportId"`
	LeadID    string    `json:"leadId"`
	Method    string    `json:"method"`
	ShareURL  string    `json:"shareUrl,omitempty"`
}

func (e ReportSent) EventName() string { return "reports.report.sent" }

// ReportSendFailed is published when the publish pipeline aborts on a fatal stage.
type ReportSendFailed struct {
	BaseEvent
	SessionID uuid.UUID `json:"sessionId"`
	UserID    uuid.UUID `json:"userId"`
	ReportID  string    `json:"reportId,omitempty"`
	Stage     string    `json:"stage"`
	Reason    string    `json:"reason"`
}

func (e ReportSendFailed) EventName() string { return "reports.report.send_failed" }

// SectionGenerated is published when AI content for a section is stored.
type SectionGenerated struct {
	BaseEvent
	SessionID uuid.UUID `json:"sessionId"`
	UserID    uuid.UUID `json:"userId"`
	SectionID string    `json:"sectionId"`
}

func (e SectionGenerated) EventName() string { return "reports.section.generated" }

// SectionGenerationFailed is published when an AI generation run errors out.
type SectionGenerationFailed struct {
	BaseEvent
	SessionID uuid.UUID `json:"sessionId"`
	UserID    uuid.UUID `json:"userId"`
	SectionID string    `json:"sectionId"`
	Reason    string    `json:"reason"`
}

func (e SectionGenerationFailed) EventName() string { return "reports.section.generation_failed" }

// ShareLinkCreated is published when the CRM issues a public share link.
type ShareLinkCreated struct {
	BaseEvent
	SessionID uuid.UUID `json:"sessionId"`
	UserID    uuid.UUID `json:"userId"`
	ReportID  string    `json:"reportId"`
	ShareURL  string    `json:"shareUrl"`
	QRCodeKey string    `json:"qrCodeKey,omitempty"`
}

func (e ShareLinkCreated) EventName() string { return "reports.share.link_created" }

// NotificationOutboxDue is published by the scheduler worker when a claimed
// outbox record is ready to be delivered.
type NotificationOutboxDue struct {
	BaseEvent
	OutboxID uuid.UUID `json:"outboxId"`
}

func (e NotificationOutboxDue) EventName() string { return "notification.outbox.due" }

// DirectoryLoadFailed is published when the lead directory cannot be refreshed
// from the CRM and the session keeps its last known candidates.
type DirectoryLoadFailed struct {
	BaseEvent
	SessionID uuid.UUID `json:"sessionId"`
	UserID    uuid.UUID `json:"userId"`
	Reason    string    `json:"reason"`
}

func (e DirectoryLoadFailed) EventName() string { return "leads.directory.load_failed" }
