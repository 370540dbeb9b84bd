// Package directory maintains the candidate lead set an operator picks from
// when composing a report. The set is bounded, deduplicated, and ordered by
// composite score; it lives inside a wizard session and is never persisted.
package directory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"reportflow_backend/internal/crm"
	"reportflow_backend/internal/leads/scoring"
	"reportflow_backend/platform/apperr"
)

// FetchLimit caps how many leads a refresh pulls from the CRM.
const FetchLimit = 150

// Fetcher is the slice of the CRM client the directory needs.
type Fetcher interface {
	ListLeads(ctx context.Context, limit int) ([]crm.Lead, error)
}

// Candidate is a lead with its current composite score and urgency tier.
// Scores are recomputed on every read, they are ordering hints, not state.
type Candidate struct {
	Lead    crm.Lead
	Score   float64
	Urgency string
}

// Directory holds the candidate set for one wizard session.
type Directory struct {
	mu         sync.Mutex
	fetcher    Fetcher
	candidates []crm.Lead
	selectedID string
}

// New creates an empty directory backed by the given fetcher.
func New(fetcher Fetcher) *Directory {
	return &Directory{fetcher: fetcher}
}

// Load refreshes the candidate set from the CRM. On fetch failure the last
// known candidates and selection are kept untouched and an Unavailable error
// is returned. After a successful load, if no valid selection exists the
// top-ranked candidate is selected automatically.
func (d *Directory) Load(ctx context.Context) error {
	leads, err := d.fetcher.ListLeads(ctx, FetchLimit)
	if err != nil {
		return apperr.Wrap(apperr.KindUnavailable, "lead directory refresh failed", err).WithOp("directory.Load")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.candidates = dedupe(leads)
	d.autoSelectLocked()
	return nil
}

// Insert adds an externally supplied lead to the candidate set. If a lead
// with the same identifier is already present the existing entry wins.
func (d *Directory) Insert(lead crm.Lead) {
	d.mu.Lock()
	defer d.mu.Unlock()

	key := lead.Key()
	if key != "" {
		for _, existing := range d.candidates {
			if existing.Key() == key {
				return
			}
		}
	}
	d.candidates = append(d.candidates, lead)
}

// Select marks the given lead as the session's subject. The lead must be a
// member of the current candidate set.
func (d *Directory) Select(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, lead := range d.candidates {
		if lead.Key() == id {
			d.selectedID = id
			return nil
		}
	}
	return apperr.NotFound("lead is not in the candidate set").WithOp("directory.Select")
}

// Selected returns the currently selected lead, if any.
func (d *Directory) Selected() (crm.Lead, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.selectedLocked()
}

// Search returns candidates matching the query, ordered by descending score.
// Scores are recomputed on every call; ties keep their insertion order. An
// empty query returns the full ordered set. Matching is a case-insensitive
// substring test over name, address, city, state, email, and phone.
func (d *Directory) Search(query string) []Candidate {
	d.mu.Lock()
	candidates := make([]crm.Lead, len(d.candidates))
	copy(candidates, d.candidates)
	d.mu.Unlock()

	ranked := rank(candidates)

	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return ranked
	}

	matched := make([]Candidate, 0, len(ranked))
	for _, c := range ranked {
		if matches(c.Lead, needle) {
			matched = append(matched, c)
		}
	}
	return matched
}

// Len returns the size of the candidate set.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.candidates)
}

func (d *Directory) selectedLocked() (crm.Lead, bool) {
	if d.selectedID == "" {
		return crm.Lead{}, false
	}
	for _, lead := range d.candidates {
		if lead.Key() == d.selectedID {
			return lead, true
		}
	}
	return crm.Lead{}, false
}

// autoSelectLocked picks the highest-scoring candidate when the current
// selection is empty or no longer a member of the set.
func (d *Directory) autoSelectLocked() {
	if _, ok := d.selectedLocked(); ok {
		return
	}
	d.selectedID = ""
	if len(d.candidates) == 0 {
		return
	}

	ranked := rank(d.candidates)
	d.selectedID = ranked[0].Lead.Key()
}

// dedupe drops duplicate identifiers, first occurrence wins. Leads without
// any identifier are kept as-is.
func dedupe(leads []crm.Lead) []crm.Lead {
	seen := make(map[string]struct{}, len(leads))
	result := make([]crm.Lead, 0, len(leads))
	for _, lead := range leads {
		key := lead.Key()
		if key != "" {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		result = append(result, lead)
	}
	return result
}

func rank(leads []crm.Lead) []Candidate {
	ranked := make([]Candidate, 0, len(leads))
	for i := range leads {
		ranked = append(ranked, Candidate{
			Lead:    leads[i],
			Score:   scoring.Score(&leads[i]),
			Urgency: scoring.Urgency(&leads[i]),
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}

func matches(lead crm.Lead, needle string) bool {
	fields := []string{lead.Name, lead.Address, lead.City, lead.State, lead.Email, lead.Phone}
	for _, field := range fields {
		if field != "" && strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}
