// Package crm provides the HTTP client for the upstream CRM backend that owns
// leads, business profiles, pricing, and durable report records.
package crm

import "time"

// Lead is a CRM lead record as returned by the leads endpoints.
// The CRM has historically emitted the identifier under several keys, so the
// fallback fields are carried alongside ID.
type Lead struct {
	ID            string     `json:"id"`
	LeadID        string     `json:"lead_id,omitempty"`
	ContactID     string     `json:"contact_id,omitempty"`
	Name          string     `json:"name"`
	Email         string     `json:"email,omitempty"`
	Phone         string     `json:"phone,omitempty"`
	Address       string     `json:"address,omitempty"`
	City          string     `json:"city,omitempty"`
	State         string     `json:"state,omitempty"`
	Zip           string     `json:"zip,omitempty"`
	Status        string     `json:"status,omitempty"`
	Priority      string     `json:"priority,omitempty"`
	PropertyType  string     `json:"property_type,omitempty"`
	LeadScore     float64    `json:"lead_score,omitempty"`
	IntentScore   float64    `json:"intent_score,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	PhotoURLs     []string   `json:"photo_urls,omitempty"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	LastContacted *time.Time `json:"last_contacted,omitempty"`
}

// Key returns the first non-empty identifier for deduplication.
func (l Lead) Key() string {
	if l.ID != "" {
		return l.ID
	}
	if l.LeadID != "" {
		return l.LeadID
	}
	return l.ContactID
}

// Branding holds the visual identity part of the business profile.
type Branding struct {
	PrimaryColor   string `json:"primary_color,omitempty"`
	SecondaryColor string `json:"secondary_color,omitempty"`
	AccentColor    string `json:"accent_color,omitempty"`
	LogoURL        string `json:"logo_url,omitempty"`
}

// BusinessProfile is the operator's company profile used for report branding.
type BusinessProfile struct {
	CompanyName   string   `json:"company_name"`
	Tagline       string   `json:"tagline,omitempty"`
	Phone         string   `json:"phone,omitempty"`
	Email         string   `json:"email,omitempty"`
	Website       string   `json:"website,omitempty"`
	LicenseNumber string   `json:"license_number,omitempty"`
	Address       string   `json:"address,omitempty"`
	City          string   `json:"city,omitempty"`
	State         string   `json:"state,omitempty"`
	Branding      Branding `json:"branding"`
}

// PricingItem is a single line from the operator's pricing catalog.
type PricingItem struct {
	Name  string  `json:"name"`
	Unit  string  `json:"unit,omitempty"`
	Price float64 `json:"price"`
}

// Report is the durable report record owned by the CRM.
type Report struct {
	ID            string            `json:"id"`
	LeadID        string            `json:"lead_id"`
	Type          string            `json:"type"`
	Title         string            `json:"title"`
	Sections      []ReportSection   `json:"sections"`
	Content       map[string]string `json:"content,omitempty"`
	ThumbnailData *string           `json:"thumbnail_data,omitempty"`
	Status        string            `json:"status,omitempty"`
	CreatedAt     *time.Time        `json:"created_at,omitempty"`
	UpdatedAt     *time.Time        `json:"updated_at,omitempty"`
}

// ReportSection is a section entry in a persisted report.
type ReportSection struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Body    string `json:"body"`
	Enabled bool   `json:"enabled"`
}

// SaveReportRequest is the payload for report create and update calls. The
// business profile and effective branding are snapshotted into the record so
// the persisted report renders the same after the operator's profile changes.
type SaveReportRequest struct {
	LeadID          string            `json:"lead_id"`
	Type            string            `json:"type"`
	Title           string            `json:"title"`
	Sections        []ReportSection   `json:"sections"`
	Content         map[string]string `json:"content,omitempty"`
	BusinessProfile *BusinessProfile  `json:"business_profile,omitempty"`
	Branding        *Branding         `json:"branding,omitempty"`
	LayoutStyle     string            `json:"layout_style,omitempty"`
	ThumbnailData   *string           `json:"thumbnail_data,omitempty"`
}

// GenerateContentRequest asks the CRM's hosted model to draft section text.
type GenerateContentRequest struct {
	ReportType      string `json:"report_type"`
	SectionID       string `json:"section_id"`
	Prompt          string `json:"prompt"`
	PropertyAddress string `json:"property_address,omitempty"`
	PropertyType    string `json:"property_type,omitempty"`
}

// GenerateContentResponse carries the drafted section text.
type GenerateContentResponse struct {
	Content string `json:"content"`
}

// ShareLink is an issued public share token for a report.
type ShareLink struct {
	Token    string     `json:"token"`
	ShareURL string     `json:"share_url"`
	Expires  *time.Time `json:"expires,omitempty"`
}

// SendRequest asks the CRM to deliver a rendered report to the lead.
type SendRequest struct {
	LeadID    string `json:"lead_id"`
	Method    string `json:"method"`
	Recipient string `json:"recipient,omitempty"`
}
