// Package achievement defines the declarative badge rule table and the
// append-only award records.
package achievement

import (
	"time"

	"github.com/mendwell/reward-engine/internal/domain/reward"
	"github.com/mendwell/reward-engine/internal/domain/streak"
)

// Metric names an aggregate the evaluator can compare against a threshold.
type Metric string

const (
	// MetricStreak compares the current streak of Definition.StreakType.
	MetricStreak Metric = "streak"
	// MetricTotalActions compares the lifetime count of claimed daily
	// actions, optionally filtered by Definition.Action.
	MetricTotalActions Metric = "total_actions"
	// MetricCumulativeCurrency compares lifetime credited currency. Debits
	// are excluded.
	MetricCumulativeCurrency Metric = "cumulative_currency"
	// MetricComposite requires all prerequisite achievements plus a
	// threshold over the base metric in Definition.Base.
	MetricComposite Metric = "composite"
)

// Comparator decides how the metric value relates to the threshold.
type Comparator string

const (
	CmpAtLeast Comparator = "at_least"
	CmpExactly Comparator = "exactly"
)

// Satisfied applies the comparator.
func (c Comparator) Satisfied(current, threshold int64) bool {
	if c == CmpExactly {
		return current == threshold
	}
	return current >= threshold
}

// Definition is one achievement rule. Rules are static configuration, not
// user data; they load from YAML with compiled-in defaults.
type Definition struct {
	ID                  string            `yaml:"id"`
	Title               string            `yaml:"title"`
	Metric              Metric            `yaml:"metric"`
	Comparator          Comparator        `yaml:"comparator"`
	Threshold           int64             `yaml:"threshold"`
	StreakType          streak.Type       `yaml:"streak_type,omitempty"`
	Action              reward.ActionKind `yaml:"action,omitempty"`
	Base                Metric            `yaml:"base,omitempty"` // composite base metric
	CompositeOf         []string          `yaml:"composite_of,omitempty"`
	RequiresTierAtLeast reward.Tier       `yaml:"requires_tier_at_least,omitempty"`
	HiddenUntilProgress bool              `yaml:"hidden_until_progress,omitempty"`
	Bonus               int64             `yaml:"bonus,omitempty"` // ledger credit on award
}

// Awarded records an earned achievement. Unique on (UserID, AchievementID):
// once earned, permanent, never re-awarded.
type Awarded struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	AchievementID string    `json:"achievement_id"`
	SourceEvent   string    `json:"source_event,omitempty"`
	EarnedAt      time.Time `json:"earned_at"`
}

// Progress is a read-only UI hint toward one rule.
type Progress struct {
	AchievementID string  `json:"achievement_id"`
	Title         string  `json:"title,omitempty"`
	Current       int64   `json:"current"`
	Target        int64   `json:"target"`
	Percent       float64 `json:"percent"`
	Earned        bool    `json:"earned"`
	Hidden        bool    `json:"hidden,omitempty"`
}

// Stats is the aggregate snapshot rules are evaluated against. It is computed
// fresh after every qualifying event.
type Stats struct {
	UserID             string
	Tier               reward.Tier
	TotalActions       int64
	ActionsByKind      map[reward.ActionKind]int64
	CumulativeCredited int64
	Streaks            map[streak.Type]int64
	LongestStreaks     map[streak.Type]int64
}
