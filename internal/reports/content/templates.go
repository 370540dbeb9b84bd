package content

import (
	_ "embed"
	"fmt"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed templates.yaml
var templatesYAML []byte

// SectionTemplate defines a report section: its default body shown when no AI
// content exists, and the prompt template used to generate AI content.
// Default bodies may contain {{group.field}} tokens; prompt templates use
// {property_address} and {property_type} placeholders.
type SectionTemplate struct {
	ID      string `yaml:"id"`
	Title   string `yaml:"title"`
	Default string `yaml:"default"`
	Prompt  string `yaml:"prompt"`
}

// ReportTemplate is the section catalog for one report type.
type ReportTemplate struct {
	Type     string            `yaml:"type"`
	Title    string            `yaml:"title"`
	Sections []SectionTemplate `yaml:"sections"`
}

type catalog struct {
	ReportTypes []ReportTemplate `yaml:"report_types"`
}

var (
	loadOnce  sync.Once
	loadErr   error
	templates map[string]ReportTemplate
	typeOrder []string
)

func load() {
	var c catalog
	if err := yaml.Unmarshal(templatesYAML, &c); err != nil {
		loadErr = fmt.Errorf("parse section templates: %w", err)
		return
	}
	templates = make(map[string]ReportTemplate, len(c.ReportTypes))
	for _, rt := range c.ReportTypes {
		templates[rt.Type] = rt
		typeOrder = append(typeOrder, rt.Type)
	}
}

// TemplateFor returns the section catalog for a report type.
func TemplateFor(reportType string) (ReportTemplate, error) {
	loadOnce.Do(load)
	if loadErr != nil {
		return ReportTemplate{}, loadErr
	}
	rt, ok := templates[reportType]
	if !ok {
		return ReportTemplate{}, fmt.Errorf("unknown report type %q", reportType)
	}
	return rt, nil
}

// SectionFor returns one section template from a report type's catalog.
func SectionFor(reportType, sectionID string) (SectionTemplate, error) {
	rt, err := TemplateFor(reportType)
	if err != nil {
		return SectionTemplate{}, err
	}
	for _, s := range rt.Sections {
		if s.ID == sectionID {
			return s, nil
		}
	}
	return SectionTemplate{}, fmt.Errorf("unknown section %q for report type %q", sectionID, reportType)
}

// ReportTypes lists the available report types in catalog order.
func ReportTypes() []string {
	loadOnce.Do(load)
	out := make([]string, len(typeOrder))
	copy(out, typeOrder)
	return out
}

// IsValidType reports whether the report type exists in the catalog.
func IsValidType(reportType string) bool {
	loadOnce.Do(load)
	_, ok := templates[reportType]
	return ok
}
