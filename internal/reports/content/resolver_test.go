package content

import (
	"strings"
	"testing"

	"reportflow_backend/internal/crm"
)

var testProfile = &crm.BusinessProfile{
	CompanyName: "Summit Roofing",
	Phone:       "+13035550100",
	Email:       "office@summitroofing.example",
	Branding: crm.Branding{
		PrimaryColor: "#003366",
	},
}

var testLead = &crm.Lead{
	ID:      "l1",
	Name:    "Dana Reyes",
	Address: "450 Alder St",
	City:    "Boulder",
	State:   "CO",
}

func TestSubstituteReplacesKnownTokens(t *testing.T) {
	in := "{{company.name}} will visit {{lead.name}} at {{lead.address}}, {{lead.city}}."
	got := Substitute(in, testProfile, &testProfile.Branding, testLead)
	want := "Summit Roofing will visit Dana Reyes at 450 Alder St, Boulder."
	if got != want {
		t.Fatalf("Substitute = %q, want %q", got, want)
	}
}

func TestSubstitutePreservesUnknownTokens(t *testing.T) {
	tests := []string{
		"{{weather.today}}",
		"{{company.ceo_salary}}",
		"{{lead.social_security}}",
	}
	for _, in := range tests {
		if got := Substitute(in, testProfile, nil, testLead); got != in {
			t.Errorf("Substitute(%q) = %q, want token preserved", in, got)
		}
	}
}

func TestSubstituteIsIdempotent(t *testing.T) {
	in := "Call {{company.phone}} or see {{unknown.token}} for {{lead.name}}."
	once := Substitute(in, testProfile, nil, testLead)
	twice := Substitute(once, testProfile, nil, testLead)
	if once != twice {
		t.Fatalf("not idempotent: first %q, second %q", once, twice)
	}
}

func TestSubstituteNilSourcesYieldEmpty(t *testing.T) {
	got := Substitute("{{company.name}}{{lead.name}}", nil, nil, nil)
	if got != "" {
		t.Fatalf("Substitute with nil sources = %q, want empty", got)
	}
}

func TestResolveUsesAIContentOnlyWhenGenerated(t *testing.T) {
	cfg := Config{Type: "inspection-report"}
	ai := map[string]AIEntry{
		"executive-summary":   {Text: "AI summary text.", AIGenerated: true},
		"inspection-findings": {Text: "Stale manual text.", AIGenerated: false},
	}

	doc, err := Resolve(ai, cfg, testProfile, testLead)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	bodies := map[string]string{}
	for _, s := range doc.Sections {
		bodies[s.ID] = s.Body
	}

	if bodies["executive-summary"] != "AI summary text." {
		t.Errorf("AI content not used: %q", bodies["executive-summary"])
	}
	if bodies["inspection-findings"] == "Stale manual text." {
		t.Errorf("non-generated entry should fall back to template default")
	}
	if !strings.Contains(bodies["inspection-findings"], "Findings are organized") {
		t.Errorf("template default missing: %q", bodies["inspection-findings"])
	}
}

func TestResolveEmptyAITextFallsBack(t *testing.T) {
	cfg := Config{Type: "inspection-report"}
	ai := map[string]AIEntry{
		"executive-summary": {Text: "   ", AIGenerated: true},
	}

	doc, err := Resolve(ai, cfg, testProfile, testLead)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if strings.TrimSpace(doc.Sections[0].Body) == "" {
		t.Fatal("blank AI entry should fall back to template default")
	}
}

func TestResolveSectionTogglesDriveInclusionAndOrder(t *testing.T) {
	cfg := Config{
		Type: "damage-assessment",
		Sections: []SectionToggle{
			{ID: "next-steps", Enabled: true},
			{ID: "damage-overview", Enabled: false},
			{ID: "executive-summary", Enabled: true, Title: "Summary for {{lead.name}}"},
			{ID: "not-in-catalog", Enabled: true},
		},
	}

	doc, err := Resolve(nil, cfg, testProfile, testLead)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if len(doc.Sections) != 2 {
		t.Fatalf("section count = %d, want 2: %+v", len(doc.Sections), doc.Sections)
	}
	if doc.Sections[0].ID != "next-steps" || doc.Sections[1].ID != "executive-summary" {
		t.Fatalf("toggle order not respected: %+v", doc.Sections)
	}
	if doc.Sections[1].Title != "Summary for Dana Reyes" {
		t.Errorf("title override = %q", doc.Sections[1].Title)
	}
}

func TestResolveDefaultsToAllSections(t *testing.T) {
	tmpl, err := TemplateFor("project-proposal")
	if err != nil {
		t.Fatalf("TemplateFor: %v", err)
	}

	doc, err := Resolve(nil, Config{Type: "project-proposal"}, testProfile, testLead)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(doc.Sections) != len(tmpl.Sections) {
		t.Fatalf("section count = %d, want %d", len(doc.Sections), len(tmpl.Sections))
	}
}

func TestResolveUnknownTypeFails(t *testing.T) {
	if _, err := Resolve(nil, Config{Type: "press-release"}, testProfile, testLead); err == nil {
		t.Fatal("expected error for unknown report type")
	}
}

func TestCatalogCoversAllReportTypes(t *testing.T) {
	want := []string{"damage-assessment", "inspection-report", "project-proposal", "case-study"}
	got := ReportTypes()
	if len(got) != len(want) {
		t.Fatalf("report types = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("report types = %v, want %v", got, want)
		}
	}
	for _, rt := range want {
		tmpl, err := TemplateFor(rt)
		if err != nil {
			t.Fatalf("TemplateFor(%s): %v", rt, err)
		}
		if len(tmpl.Sections) == 0 {
			t.Errorf("report type %s has no sections", rt)
		}
		for _, s := range tmpl.Sections {
			if s.Default == "" || s.Prompt == "" {
				t.Errorf("section %s/%s missing default or prompt", rt, s.ID)
			}
		}
	}
}
