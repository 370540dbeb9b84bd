// Package wizard implements the guided report composition flow: a four-step
// state machine over a transient, in-memory session. Durable state lives in
// the CRM; losing a session loses only unsaved composition progress.
package wizard

import (
	"sync"
	"time"

	"reportflow_backend/internal/crm"
	"reportflow_backend/internal/leads/directory"
	"reportflow_backend/internal/reports/content"
	"reportflow_backend/platform/apperr"

	"github.com/google/uuid"
)

// Step is a wizard step identifier.
type Step string

const (
	StepLeadSelection Step = "lead-selection"
	StepTypeSelection Step = "type-selection"
	StepCustomization Step = "customization"
	StepPreview       Step = "preview"
)

// stepOrder defines forward progression through the wizard.
var stepOrder = []Step{StepLeadSelection, StepTypeSelection, StepCustomization, StepPreview}

func stepIndex(step Step) int {
	for i, s := range stepOrder {
		if s == step {
			return i
		}
	}
	return 0
}

// Session is one operator's in-flight report composition. All access goes
// through the accessor methods; the internal mutex makes a session safe for
// the handler goroutine and background loads to share.
type Session struct {
	ID     uuid.UUID
	UserID uuid.UUID

	mu        sync.Mutex
	step      Step
	dir       *directory.Directory
	profile   *crm.BusinessProfile
	pricing   []crm.PricingItem
	config    content.Config
	aiContent map[string]content.AIEntry
	reportID  string
	createdAt time.Time
	touchedAt time.Time
}

func newSession(userID uuid.UUID, dir *directory.Directory) *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.New(),
		UserID:    userID,
		step:      StepLeadSelection,
		dir:       dir,
		aiContent: make(map[string]content.AIEntry),
		createdAt: now,
		touchedAt: now,
	}
}

// Directory returns the session's candidate set.
func (s *Session) Directory() *directory.Directory {
	return s.dir
}

// Step returns the current wizard step.
func (s *Session) Step() Step {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.step
}

// Advance moves one step forward, enforcing the step guards: a selected lead
// is required to leave lead selection, and a chosen report type to leave type
// selection. Advancing from the final step is rejected.
func (s *Session) Advance() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.step {
	case StepLeadSelection:
		if _, ok := s.dir.Selected(); !ok {
			return apperr.Validation("select a lead before continuing")
		}
	case StepTypeSelection:
		if s.config.Type == "" {
			return apperr.Validation("choose a report type before continuing")
		}
	case StepPreview:
		return apperr.Validation("already at the final step")
	}

	s.step = stepOrder[stepIndex(s.step)+1]
	return nil
}

// Retreat moves one step back. At the first step it is a no-op.
func (s *Session) Retreat() {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := stepIndex(s.step)
	if idx == 0 {
		return
	}
	s.step = stepOrder[idx-1]
}

// ChooseType sets the report type and advances to customization in one
// operation. Changing an already-chosen type reseeds the section toggles and
// discards AI content generated for the previous type.
func (s *Session) ChooseType(reportType string) error {
	tmpl, err := content.TemplateFor(reportType)
	if err != nil {
		return apperr.Wrap(apperr.KindValidation, "unknown report type", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.dir.Selected(); !ok {
		return apperr.Validation("select a lead before choosing a report type")
	}

	if s.config.Type != reportType {
		toggles := make([]content.SectionToggle, 0, len(tmpl.Sections))
		for _, section := range tmpl.Sections {
			toggles = append(toggles, content.SectionToggle{ID: section.ID, Enabled: true})
		}
		s.config = content.Config{
			Type:     reportType,
			Title:    tmpl.Title,
			Sections: toggles,
		}
		s.aiContent = make(map[string]content.AIEntry)
	}

	s.step = StepCustomization
	return nil
}

// markTypeSelectable moves a fresh session past lead selection when it was
// created with a lead already chosen.
func (s *Session) markTypeSelectable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.step = StepTypeSelection
}

// Config returns a copy of the report configuration.
func (s *Session) Config() content.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// UpdateConfig applies a customization patch. The report type cannot be
// changed here; that goes through ChooseType.
func (s *Session) UpdateConfig(patch ConfigPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config.Type == "" {
		return apperr.Validation("choose a report type before customizing")
	}

	if patch.Title != nil {
		s.config.Title = *patch.Title
	}
	if patch.Sections != nil {
		s.config.Sections = patch.Sections
	}
	if patch.Branding != nil {
		s.config.Branding = patch.Branding
	}
	if patch.LayoutStyle != nil {
		s.config.LayoutStyle = *patch.LayoutStyle
	}
	if patch.CustomPrompts != nil {
		if s.config.CustomPrompts == nil {
			s.config.CustomPrompts = make(map[string]string, len(patch.CustomPrompts))
		}
		for id, prompt := range patch.CustomPrompts {
			s.config.CustomPrompts[id] = prompt
		}
	}
	return nil
}

// ConfigPatch is a partial update to the report configuration.
type ConfigPatch struct {
	Title         *string
	Sections      []content.SectionToggle
	Branding      *crm.Branding
	LayoutStyle   *string
	CustomPrompts map[string]string
}

// Profile returns the loaded business profile, which may be nil if the load
// failed or has not completed.
func (s *Session) Profile() *crm.BusinessProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profile
}

// SetProfile stores the loaded business profile.
func (s *Session) SetProfile(profile *crm.BusinessProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profile = profile
}

// Pricing returns the loaded pricing catalog.
func (s *Session) Pricing() []crm.PricingItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pricing
}

// SetPricing stores the loaded pricing catalog.
func (s *Session) SetPricing(items []crm.PricingItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pricing = items
}

// AIContent returns a copy of the per-section AI content map.
func (s *Session) AIContent() map[string]content.AIEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]content.AIEntry, len(s.aiContent))
	for id, entry := range s.aiContent {
		out[id] = entry
	}
	return out
}

// SetAIEntry stores generated content for a section.
func (s *Session) SetAIEntry(sectionID string, entry content.AIEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aiContent[sectionID] = entry
}

// ReportID returns the persisted report identifier, empty until first save.
func (s *Session) ReportID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reportID
}

// SetReportID records the identifier assigned by the CRM on first create.
func (s *Session) SetReportID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reportID = id
}

// Resolve produces the current fully resolved document.
func (s *Session) Resolve() (content.Document, error) {
	lead, _ := s.dir.Selected()
	s.mu.Lock()
	cfg := s.config
	profile := s.profile
	ai := make(map[string]content.AIEntry, len(s.aiContent))
	for id, entry := range s.aiContent {
		ai[id] = entry
	}
	s.mu.Unlock()

	return content.Resolve(ai, cfg, profile, &lead)
}

func (s *Session) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touchedAt = time.Now()
}

func (s *Session) lastTouched() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touchedAt
}
