// Package transport defines the wire DTOs for the reports module.
package transport

import (
	"github.com/google/uuid"

	"reportflow_backend/internal/crm"
	"reportflow_backend/internal/leads/directory"
	"reportflow_backend/internal/reports/content"
	"reportflow_backend/internal/reports/wizard"
)

// CreateWizardRequest opens a new wizard session, optionally pre-selecting a lead.
type CreateWizardRequest struct {
	LeadID string `json:"leadId,omitempty" validate:"omitempty,max=100"`
}

// SelectLeadRequest picks the session's subject lead.
type SelectLeadRequest struct {
	LeadID string `json:"leadId" validate:"required,max=100"`
}

// ChooseTypeRequest sets the report type.
type ChooseTypeRequest struct {
	Type string `json:"type" validate:"required,max=50"`
}

// SectionToggleRequest enables or disables a section.
type SectionToggleRequest struct {
	ID      string `json:"id" validate:"required,max=100"`
	Enabled bool   `json:"enabled"`
	Title   string `json:"title,omitempty" validate:"max=200"`
}

// BrandingRequest overrides the business profile branding for one report.
type BrandingRequest struct {
	PrimaryColor   string `json:"primaryColor,omitempty" validate:"omitempty,max=30"`
	SecondaryColor string `json:"secondaryColor,omitempty" validate:"omitempty,max=30"`
	AccentColor    string `json:"accentColor,omitempty" validate:"omitempty,max=30"`
	LogoURL        string `json:"logoUrl,omitempty" validate:"omitempty,url,max=500"`
}

// UpdateConfigRequest is a partial update to the report configuration.
type UpdateConfigRequest struct {
	Title         *string                `json:"title,omitempty" validate:"omitempty,max=200"`
	Sections      []SectionToggleRequest `json:"sections,omitempty" validate:"omitempty,dive"`
	Branding      *BrandingRequest       `json:"branding,omitempty"`
	LayoutStyle   *string                `json:"layoutStyle,omitempty" validate:"omitempty,max=50"`
	CustomPrompts map[string]string      `json:"customPrompts,omitempty" validate:"omitempty,dive,max=2000"`
}

// ToPatch converts the request into a wizard config patch.
func (r UpdateConfigRequest) ToPatch() wizard.ConfigPatch {
	patch := wizard.ConfigPatch{
		Title:         r.Title,
		LayoutStyle:   r.LayoutStyle,
		CustomPrompts: r.CustomPrompts,
	}
	if r.Sections != nil {
		patch.Sections = make([]content.SectionToggle, 0, len(r.Sections))
		for _, s := range r.Sections {
			patch.Sections = append(patch.Sections, content.SectionToggle{
				ID:      s.ID,
				Enabled: s.Enabled,
				Title:   s.Title,
			})
		}
	}
	if r.Branding != nil {
		patch.Branding = &crm.Branding{
			PrimaryColor:   r.Branding.PrimaryColor,
			SecondaryColor: r.Branding.SecondaryColor,
			AccentColor:    r.Branding.AccentColor,
			LogoURL:        r.Branding.LogoURL,
		}
	}
	return patch
}

// GenerateSectionRequest asks for AI content, optionally with a custom prompt.
type GenerateSectionRequest struct {
	Prompt string `json:"prompt,omitempty" validate:"max=2000"`
}

// SendReportRequest triggers the publish pipeline.
type SendReportRequest struct {
	Method    string `json:"method,omitempty" validate:"omitempty,oneof=email sms"`
	Recipient string `json:"recipient,omitempty" validate:"omitempty,max=254"`
}

// CandidateResponse is one entry of the session's lead directory.
type CandidateResponse struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	Email        string  `json:"email,omitempty"`
	Phone        string  `json:"phone,omitempty"`
	Address      string  `json:"address,omitempty"`
	City         string  `json:"city,omitempty"`
	State        string  `json:"state,omitempty"`
	Status       string  `json:"status,omitempty"`
	PropertyType string  `json:"propertyType,omitempty"`
	Score        float64 `json:"score"`
	Urgency      string  `json:"urgency"`
}

// NewCandidateResponses converts ranked directory candidates to DTOs.
func NewCandidateResponses(candidates []directory.Candidate) []CandidateResponse {
	out := make([]CandidateResponse, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, CandidateResponse{
			ID:           c.Lead.Key(),
			Name:         c.Lead.Name,
			Email:        c.Lead.Email,
			Phone:        c.Lead.Phone,
			Address:      c.Lead.Address,
			City:         c.Lead.City,
			State:        c.Lead.State,
			Status:       c.Lead.Status,
			PropertyType: c.Lead.PropertyType,
			Score:        c.Score,
			Urgency:      c.Urgency,
		})
	}
	return out
}

// SelectedLeadResponse is the session's current subject.
type SelectedLeadResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
	Address string `json:"address,omitempty"`
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
}

// SessionResponse is the wizard session state returned to the client.
type SessionResponse struct {
	ID         uuid.UUID                  `json:"id"`
	Step       string                     `json:"step"`
	Lead       *SelectedLeadResponse      `json:"lead,omitempty"`
	Config     content.Config             `json:"config"`
	AIContent  map[string]content.AIEntry `json:"aiContent"`
	ReportID   string                     `json:"reportId,omitempty"`
	Candidates int                        `json:"candidates"`
}

// NewSessionResponse builds the session DTO.
func NewSessionResponse(ws *wizard.Session) SessionResponse {
	resp := SessionResponse{
		ID:         ws.ID,
		Step:       string(ws.Step()),
		Config:     ws.Config(),
		AIContent:  ws.AIContent(),
		ReportID:   ws.ReportID(),
		Candidates: ws.Directory().Len(),
	}
	if lead, ok := ws.Directory().Selected(); ok {
		resp.Lead = &SelectedLeadResponse{
			ID:      lead.Key(),
			Name:    lead.Name,
			Email:   lead.Email,
			Phone:   lead.Phone,
			Address: lead.Address,
			City:    lead.City,
			State:   lead.State,
		}
	}
	return resp
}

// ReportTypeResponse describes one available report type and its sections.
type ReportTypeResponse struct {
	Type     string                `json:"type"`
	Title    string                `json:"title"`
	Sections []SectionInfoResponse `json:"sections"`
}

// SectionInfoResponse describes one section of a report type.
type SectionInfoResponse struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// NewReportTypeResponses lists the catalog for the type selection step.
func NewReportTypeResponses() []ReportTypeResponse {
	types := content.ReportTypes()
	out := make([]ReportTypeResponse, 0, len(types))
	for _, rt := range types {
		tmpl, err := content.TemplateFor(rt)
		if err != nil {
			continue
		}
		sections := make([]SectionInfoResponse, 0, len(tmpl.Sections))
		for _, s := range tmpl.Sections {
			sections = append(sections, SectionInfoResponse{ID: s.ID, Title: s.Title})
		}
		out = append(out, ReportTypeResponse{Type: tmpl.Type, Title: tmpl.Title, Sections: sections})
	}
	return out
}
