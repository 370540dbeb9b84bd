// Package content resolves the final text of a report: section templates,
// AI-generated overrides, and {{group.field}} token substitution.
package content

import (
	"regexp"
	"strings"

	"reportflow_backend/internal/crm"
)

// AIEntry is the per-section AI content state held by a wizard session.
// Text only replaces the template default when AIGenerated is set; manually
// cleared entries keep the flag false so the default wins again.
type AIEntry struct {
	Text        string `json:"text"`
	AIGenerated bool   `json:"aiGenerated"`
}

// SectionToggle enables or disables a section and optionally overrides its title.
type SectionToggle struct {
	ID      string `json:"id"`
	Enabled bool   `json:"enabled"`
	Title   string `json:"title,omitempty"`
}

// Config is the report configuration assembled during the customization step.
// LayoutStyle is persisted with the report and interpreted by the renderer.
type Config struct {
	Type          string            `json:"type"`
	Title         string            `json:"title,omitempty"`
	Sections      []SectionToggle   `json:"sections,omitempty"`
	Branding      *crm.Branding     `json:"branding,omitempty"`
	LayoutStyle   string            `json:"layoutStyle,omitempty"`
	CustomPrompts map[string]string `json:"customPrompts,omitempty"`
}

// ResolvedSection is a section with its final title and body text.
type ResolvedSection struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Body  string `json:"body"`
}

// Document is the fully resolved report content.
type Document struct {
	Title    string            `json:"title"`
	Type     string            `json:"type"`
	Sections []ResolvedSection `json:"sections"`
}

// Resolve produces the final document for the given configuration. Enabled
// sections take their AI content when it exists and is flagged as generated,
// otherwise the catalog default. All text passes through token substitution
// exactly once.
func Resolve(ai map[string]AIEntry, cfg Config, profile *crm.BusinessProfile, lead *crm.Lead) (Document, error) {
	tmpl, err := TemplateFor(cfg.Type)
	if err != nil {
		return Document{}, err
	}

	branding := effectiveBranding(cfg, profile)

	title := cfg.Title
	if strings.TrimSpace(title) == "" {
		title = tmpl.Title
	}

	doc := Document{
		Title: Substitute(title, profile, branding, lead),
		Type:  cfg.Type,
	}

	for _, section := range enabledSections(tmpl, cfg) {
		body := section.tmpl.Default
		if entry, ok := ai[section.tmpl.ID]; ok && entry.AIGenerated && strings.TrimSpace(entry.Text) != "" {
			body = entry.Text
		}

		sectionTitle := section.tmpl.Title
		if section.titleOverride != "" {
			sectionTitle = section.titleOverride
		}

		doc.Sections = append(doc.Sections, ResolvedSection{
			ID:    section.tmpl.ID,
			Title: Substitute(sectionTitle, profile, branding, lead),
			Body:  Substitute(body, profile, branding, lead),
		})
	}

	return doc, nil
}

type pickedSection struct {
	tmpl          SectionTemplate
	titleOverride string
}

// enabledSections returns the sections to render. With no explicit toggles
// every catalog section is enabled in catalog order; otherwise the toggles
// drive order and inclusion, and ids absent from the catalog are dropped.
func enabledSections(tmpl ReportTemplate, cfg Config) []pickedSection {
	if len(cfg.Sections) == 0 {
		out := make([]pickedSection, 0, len(tmpl.Sections))
		for _, s := range tmpl.Sections {
			out = append(out, pickedSection{tmpl: s})
		}
		return out
	}

	byID := make(map[string]SectionTemplate, len(tmpl.Sections))
	for _, s := range tmpl.Sections {
		byID[s.ID] = s
	}

	out := make([]pickedSection, 0, len(cfg.Sections))
	for _, toggle := range cfg.Sections {
		if !toggle.Enabled {
			continue
		}
		s, ok := byID[toggle.ID]
		if !ok {
			continue
		}
		out = append(out, pickedSection{tmpl: s, titleOverride: toggle.Title})
	}
	return out
}

func effectiveBranding(cfg Config, profile *crm.BusinessProfile) *crm.Branding {
	if cfg.Branding != nil {
		return cfg.Branding
	}
	if profile != nil {
		return &profile.Branding
	}
	return nil
}

// tokenRegex matches {{group.field}} placeholders.
var tokenRegex = regexp.MustCompile(`\{\{\s*([A-Za-z]+)\.([A-Za-z_]+)\s*\}\}`)

// Substitute replaces company, branding, and lead tokens in a single pass.
// Unknown groups or fields are preserved verbatim, and replacement values are
// never re-scanned, so the operation is idempotent.
func Substitute(text string, profile *crm.BusinessProfile, branding *crm.Branding, lead *crm.Lead) string {
	return tokenRegex.ReplaceAllStringFunc(text, func(token string) string {
		groups := tokenRegex.FindStringSubmatch(token)
		value, ok := lookupToken(strings.ToLower(groups[1]), strings.ToLower(groups[2]), profile, branding, lead)
		if !ok {
			return token
		}
		return value
	})
}

func lookupToken(group, field string, profile *crm.BusinessProfile, branding *crm.Branding, lead *crm.Lead) (string, bool) {
	switch group {
	case "company":
		return companyField(field, profile)
	case "branding":
		return brandingField(field, branding)
	case "lead":
		return leadField(field, lead)
	default:
		return "", false
	}
}

func companyField(field string, profile *crm.BusinessProfile) (string, bool) {
	p := profile
	if p == nil {
		p = &crm.BusinessProfile{}
	}
	switch field {
	case "name":
		return p.CompanyName, true
	case "tagline":
		return p.Tagline, true
	case "phone":
		return p.Phone, true
	case "email":
		return p.Email, true
	case "website":
		return p.Website, true
	case "license":
		return p.LicenseNumber, true
	case "address":
		return p.Address, true
	case "city":
		return p.City, true
	case "state":
		return p.State, true
	default:
		return "", false
	}
}

func brandingField(field string, branding *crm.Branding) (string, bool) {
	b := branding
	if b == nil {
		b = &crm.Branding{}
	}
	switch field {
	case "primary_color":
		return b.PrimaryColor, true
	case "secondary_color":
		return b.SecondaryColor, true
	case "accent_color":
		return b.AccentColor, true
	case "logo_url":
		return b.LogoURL, true
	default:
		return "", false
	}
}

func leadField(field string, lead *crm.Lead) (string, bool) {
	l := lead
	if l == nil {
		l = &crm.Lead{}
	}
	switch field {
	case "name":
		return l.Name, true
	case "email":
		return l.Email, true
	case "phone":
		return l.Phone, true
	case "address":
		return l.Address, true
	case "city":
		return l.City, true
	case "state":
		return l.State, true
	case "zip":
		return l.Zip, true
	case "property_type":
		return l.PropertyType, true
	default:
		return "", false
	}
}
