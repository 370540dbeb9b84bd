package agent

import (
	"strings"
	"unicode"

	"reportflow_backend/internal/crm"
)

const maxCustomPromptLength = 2000

// buildSectionPrompt fills the section's prompt template with the selected
// lead's property details. An operator-supplied custom prompt replaces the
// template entirely and is passed through after sanitization.
func buildSectionPrompt(template, customPrompt string, lead crm.Lead) string {
	if trimmed := strings.TrimSpace(customPrompt); trimmed != "" {
		return sanitizePrompt(trimmed, maxCustomPromptLength)
	}

	address := propertyAddress(lead)
	prompt := strings.ReplaceAll(template, "{property_address}", address)
	prompt = strings.ReplaceAll(prompt, "{property_type}", propertyType(lead))
	return prompt
}

func propertyAddress(lead crm.Lead) string {
	parts := make([]string, 0, 3)
	if lead.Address != "" {
		parts = append(parts, lead.Address)
	}
	if lead.City != "" {
		parts = append(parts, lead.City)
	}
	if lead.State != "" {
		state := lead.State
		if lead.Zip != "" {
			state += " " + lead.Zip
		}
		parts = append(parts, state)
	}
	if len(parts) == 0 {
		return "the property"
	}
	return strings.Join(parts, ", ")
}

func propertyType(lead crm.Lead) string {
	if lead.PropertyType == "" {
		return "residential"
	}
	return lead.PropertyType
}

// sanitizePrompt removes control characters and truncates to max length.
func sanitizePrompt(s string, maxLen int) string {
	var sb strings.Builder
	for _, r := range s {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sb.WriteRune(r)
	}
	result := sb.String()
	if len(result) > maxLen {
		result = result[:maxLen]
	}
	return result
}

func sectionSystemPrompt() string {
	return "You are a professional report writer for a home services contractor. " +
		"Write clear, factual prose for the requested report section. " +
		"Output plain text only, no markdown headings, no HTML, no preamble. " +
		"Keep the tone confident and customer-facing. Two to four short paragraphs."
}
