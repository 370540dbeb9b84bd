// Package scoring computes composite priority scores for lead candidates.
// The score is a pure function of the lead record; it is recomputed on every
// directory pass and used for ordering only, never persisted or normalized.
package scoring

import (
	"strings"
	"time"

	"reportflow_backend/internal/crm"
)

// Urgency labels derived from record age.
const (
	UrgencyCritical = "critical"
	UrgencyHigh     = "high"
	UrgencyMedium   = "medium"
	UrgencyLow      = "low"
)

// Score returns the composite priority score for a lead.
// A nil lead scores zero.
func Score(lead *crm.Lead) float64 {
	if lead == nil {
		return 0
	}

	score := scorePriority(lead)
	score += scoreUrgency(lead)
	score += lead.LeadScore / 25
	score += lead.IntentScore / 30
	score += scoreContacted(lead)
	return score
}

// scorePriority maps the priority tier to its base contribution.
// Leads that carry no explicit priority fall back to the status field,
// which older CRM records used for the same tiers.
func scorePriority(lead *crm.Lead) float64 {
	tier := lead.Priority
	if strings.TrimSpace(tier) == "" {
		tier = lead.Status
	}

	switch strings.ToLower(strings.TrimSpace(tier)) {
	case "hot":
		return 5
	case "warm":
		return 3
	case "cold":
		return 1
	default:
		return 0
	}
}

// scoreUrgency rewards fresh records. Age brackets follow the urgency tiers
// shown to operators: critical within a day, high within three, medium within
// a week.
func scoreUrgency(lead *crm.Lead) float64 {
	switch Urgency(lead) {
	case UrgencyCritical:
		return 4
	case UrgencyHigh:
		return 3
	case UrgencyMedium:
		return 2
	default:
		return 0
	}
}

// scoreContacted adds a small bump for leads with any recorded outreach.
func scoreContacted(lead *crm.Lead) float64 {
	if lead.LastContacted != nil {
		return 1
	}
	return 0
}

// Urgency derives the urgency tier from record age. Leads without a creation
// timestamp are treated as low urgency.
func Urgency(lead *crm.Lead) string {
	if lead == nil || lead.CreatedAt == nil {
		return UrgencyLow
	}

	age := time.Since(*lead.CreatedAt)
	switch {
	case age <= 24*time.Hour:
		return UrgencyCritical
	case age <= 72*time.Hour:
		return UrgencyHigh
	case age <= 7*24*time.Hour:
		return UrgencyMedium
	default:
		return UrgencyLow
	}
}
