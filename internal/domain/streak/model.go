// Package streak defines consecutive-day streak state with shield-based
// grace days.
package streak

import "time"

// Type identifies an independent streak counter.
type Type string

const (
	TypeRitual    Type = "ritual"
	TypeNoContact Type = "no_contact"
)

// Valid reports whether the streak type is known.
func (t Type) Valid() bool {
	return t == TypeRitual || t == TypeNoContact
}

// State is the per-(user, type) streak record. Invariants: Current <= Longest
// at all times; ShieldsUsedThisWeek never exceeds the configured weekly cap.
type State struct {
	UserID              string    `json:"user_id"`
	Type                Type      `json:"type"`
	Current             int       `json:"current"`
	Longest             int       `json:"longest"`
	LastAdvancedDate    string    `json:"last_advanced_date,omitempty"` // YYYY-MM-DD in the user's timezone; empty before first check-in
	ShieldsUsedThisWeek int       `json:"shields_used_this_week"`
	WeekWindowStart     string    `json:"week_window_start,omitempty"` // local date of the first shield use in the current 7-day window
	UpdatedAt           time.Time `json:"updated_at"`
}

// Result reports the outcome of one check-in to the caller.
type Result struct {
	Current  int  `json:"current"`
	Longest  int  `json:"longest"`
	Shielded bool `json:"shielded"`
	Advanced bool `json:"advanced"`
}
