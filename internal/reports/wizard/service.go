package wizard

import (
	"context"
	"time"

	"reportflow_backend/internal/crm"
	"reportflow_backend/internal/events"
	"reportflow_backend/internal/leads/directory"
	"reportflow_backend/internal/reports/content"
	"reportflow_backend/platform/apperr"
	"reportflow_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// CRMClient is the slice of the CRM backend the wizard needs.
type CRMClient interface {
	ListLeads(ctx context.Context, limit int) ([]crm.Lead, error)
	GetLead(ctx context.Context, id string) (*crm.Lead, error)
	GetBusinessProfile(ctx context.Context) (*crm.BusinessProfile, error)
	GetPricing(ctx context.Context) ([]crm.PricingItem, error)
}

// Service creates and drives wizard sessions.
type Service struct {
	store    *Store
	crm      CRMClient
	eventBus events.Bus
	log      *logger.Logger
}

// NewService creates the wizard service.
func NewService(store *Store, crmClient CRMClient, eventBus events.Bus, log *logger.Logger) *Service {
	return &Service{
		store:    store,
		crm:      crmClient,
		eventBus: eventBus,
		log:      log,
	}
}

// loadTimeout bounds the initial directory, profile, and pricing fetches so a
// slow CRM cannot stall session creation indefinitely.
const loadTimeout = 20 * time.Second

// Create opens a new wizard session for the user. The lead directory, business
// profile, and pricing catalog are fetched concurrently; none of the fetches
// is fatal, a session always comes back usable with whatever data loaded.
// When leadID is non-empty the lead is fetched, pre-selected, and the session
// starts at type selection instead of lead selection.
func (s *Service) Create(ctx context.Context, userID uuid.UUID, leadID string) (*Session, error) {
	session := newSession(userID, directory.New(s.crm))

	loadCtx, cancel := context.WithTimeout(ctx, loadTimeout)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		if err := session.Directory().Load(loadCtx); err != nil {
			s.log.UpstreamError("crm", "directory.load", err)
			s.eventBus.Publish(ctx, events.DirectoryLoadFailed{
				BaseEvent: events.NewBaseEvent(),
				SessionID: session.ID,
				UserID:    userID,
				Reason:    err.Error(),
			})
		}
		return nil
	})
	g.Go(func() error {
		profile, err := s.crm.GetBusinessProfile(loadCtx)
		if err != nil {
			s.log.UpstreamError("crm", "business_profile.get", err)
			return nil
		}
		session.SetProfile(profile)
		return nil
	})
	g.Go(func() error {
		items, err := s.crm.GetPricing(loadCtx)
		if err != nil {
			s.log.UpstreamError("crm", "pricing.get", err)
			return nil
		}
		session.SetPricing(items)
		return nil
	})
	_ = g.Wait()

	if leadID != "" {
		if err := s.preselectLead(loadCtx, session, leadID); err != nil {
			s.log.Warn("lead preselection failed, starting at lead selection",
				"session_id", session.ID.String(), "lead_id", leadID, "error", err.Error())
		} else {
			session.markTypeSelectable()
		}
	}

	s.store.Put(session)
	s.log.Info("wizard session created",
		"session_id", session.ID.String(),
		"step", string(session.Step()),
		"candidates", session.Directory().Len(),
	)
	return session, nil
}

// preselectLead makes the given lead the session's subject even when it is
// not part of the fetched directory.
func (s *Service) preselectLead(ctx context.Context, session *Session, leadID string) error {
	if err := session.Directory().Select(leadID); err == nil {
		return nil
	}

	lead, err := s.crm.GetLead(ctx, leadID)
	if err != nil {
		return err
	}
	session.Directory().Insert(*lead)
	return session.Directory().Select(lead.Key())
}

// Get returns the user's session.
func (s *Service) Get(id, userID uuid.UUID) (*Session, error) {
	return s.store.Get(id, userID)
}

// Delete discards a session.
func (s *Service) Delete(id, userID uuid.UUID) error {
	if _, err := s.store.Get(id, userID); err != nil {
		return err
	}
	s.store.Delete(id)
	return nil
}

// Leads searches the session's candidate set.
func (s *Service) Leads(id, userID uuid.UUID, query string) ([]directory.Candidate, error) {
	session, err := s.store.Get(id, userID)
	if err != nil {
		return nil, err
	}
	return session.Directory().Search(query), nil
}

// RefreshLeads refetches the candidate set from the CRM. On failure the
// session keeps its last known candidates and the error is surfaced.
func (s *Service) RefreshLeads(ctx context.Context, id, userID uuid.UUID) error {
	session, err := s.store.Get(id, userID)
	if err != nil {
		return err
	}
	if err := session.Directory().Load(ctx); err != nil {
		s.eventBus.Publish(ctx, events.DirectoryLoadFailed{
			BaseEvent: events.NewBaseEvent(),
			SessionID: session.ID,
			UserID:    userID,
			Reason:    err.Error(),
		})
		return err
	}
	return nil
}

// SelectLead picks the session's subject. Leads outside the candidate set are
// fetched from the CRM and inserted first.
func (s *Service) SelectLead(ctx context.Context, id, userID uuid.UUID, leadID string) error {
	session, err := s.store.Get(id, userID)
	if err != nil {
		return err
	}
	if leadID == "" {
		return apperr.Validation("lead id is required")
	}
	return s.preselectLead(ctx, session, leadID)
}

// Next advances the session one step, subject to the step guards.
func (s *Service) Next(id, userID uuid.UUID) (*Session, error) {
	session, err := s.store.Get(id, userID)
	if err != nil {
		return nil, err
	}
	if err := session.Advance(); err != nil {
		return nil, err
	}
	return session, nil
}

// Back moves the session one step back.
func (s *Service) Back(id, userID uuid.UUID) (*Session, error) {
	session, err := s.store.Get(id, userID)
	if err != nil {
		return nil, err
	}
	session.Retreat()
	return session, nil
}

// ChooseType sets the report type and moves the session to customization.
func (s *Service) ChooseType(id, userID uuid.UUID, reportType string) (*Session, error) {
	session, err := s.store.Get(id, userID)
	if err != nil {
		return nil, err
	}
	if err := session.ChooseType(reportType); err != nil {
		return nil, err
	}
	return session, nil
}

// UpdateConfig applies a customization patch to the session.
func (s *Service) UpdateConfig(id, userID uuid.UUID, patch ConfigPatch) (*Session, error) {
	session, err := s.store.Get(id, userID)
	if err != nil {
		return nil, err
	}
	if err := session.UpdateConfig(patch); err != nil {
		return nil, err
	}
	return session, nil
}

// Preview resolves the session's current document.
func (s *Service) Preview(id, userID uuid.UUID) (content.Document, error) {
	session, err := s.store.Get(id, userID)
	if err != nil {
		return content.Document{}, err
	}
	if _, ok := session.Directory().Selected(); !ok {
		return content.Document{}, apperr.Validation("select a lead before previewing")
	}
	return session.Resolve()
}
