package scoring

import (
	"math"
	"testing"
	"time"

	"reportflow_backend/internal/crm"
)

func timePtr(t time.Time) *time.Time { return &t }

func TestScoreNilLead(t *testing.T) {
	if got := Score(nil); got != 0 {
		t.Fatalf("Score(nil) = %v, want 0", got)
	}
}

func TestScoreCompositeHotFreshLead(t *testing.T) {
	now := time.Now()
	lead := &crm.Lead{
		ID:            "l1",
		Priority:      "hot",
		LeadScore:     50,
		IntentScore:   60,
		CreatedAt:     timePtr(now.Add(-2 * time.Hour)),
		LastContacted: timePtr(now.Add(-1 * time.Hour)),
	}

	// 5 (hot) + 4 (critical age) + 50/25 + 60/30 + 1 (contacted)
	want := 5.0 + 4.0 + 2.0 + 2.0 + 1.0
	if got := Score(lead); math.Abs(got-want) > 1e-9 {
		t.Fatalf("Score = %v, want %v", got, want)
	}
}

func TestScorePriorityTiers(t *testing.T) {
	tests := []struct {
		name     string
		priority string
		status   string
		want     float64
	}{
		{"hot", "hot", "", 5},
		{"warm", "warm", "", 3},
		{"cold", "cold", "", 1},
		{"unknown tier", "qualified", "", 0},
		{"case insensitive", "HOT", "", 5},
		{"whitespace", "  Warm ", "", 3},
		{"fallback to status", "", "cold", 1},
		{"priority wins over status", "hot", "cold", 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lead := &crm.Lead{Priority: tt.priority, Status: tt.status}
			if got := Score(lead); got != tt.want {
				t.Fatalf("Score = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreUrgencyBrackets(t *testing.T) {
	tests := []struct {
		name string
		age  time.Duration
		want float64
	}{
		{"same day", 12 * time.Hour, 4},
		{"three days", 48 * time.Hour, 3},
		{"this week", 5 * 24 * time.Hour, 2},
		{"stale", 30 * 24 * time.Hour, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lead := &crm.Lead{CreatedAt: timePtr(time.Now().Add(-tt.age))}
			if got := Score(lead); got != tt.want {
				t.Fatalf("Score = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScoreMissingCreatedAtIsLowUrgency(t *testing.T) {
	lead := &crm.Lead{Priority: "warm"}
	if got := Score(lead); got != 3 {
		t.Fatalf("Score = %v, want 3 (no urgency contribution)", got)
	}
	if got := Urgency(lead); got != UrgencyLow {
		t.Fatalf("Urgency = %q, want %q", got, UrgencyLow)
	}
}

func TestScoreNeverNegative(t *testing.T) {
	leads := []*crm.Lead{
		nil,
		{},
		{Priority: "junk", Status: "dead"},
		{CreatedAt: timePtr(time.Now().Add(-365 * 24 * time.Hour))},
	}
	for _, lead := range leads {
		if got := Score(lead); got < 0 {
			t.Fatalf("Score = %v, want >= 0", got)
		}
	}
}

func TestScoreMonotonicInTiers(t *testing.T) {
	hot := Score(&crm.Lead{Priority: "hot"})
	warm := Score(&crm.Lead{Priority: "warm"})
	cold := Score(&crm.Lead{Priority: "cold"})
	none := Score(&crm.Lead{})

	if !(hot > warm && warm > cold && cold > none) {
		t.Fatalf("tier ordering broken: hot=%v warm=%v cold=%v none=%v", hot, warm, cold, none)
	}
}
