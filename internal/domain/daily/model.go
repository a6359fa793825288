// Package daily defines the per-user, per-local-date idempotency record that
// gates every reward-granting action.
package daily

import (
	"time"

	"github.com/mendwell/reward-engine/internal/domain/reward"
)

// Record tracks which reward-eligible actions a user has already performed on
// one of their local calendar days. One row per (userID, localDate); the
// unique constraint on that pair is the idempotency anchor. Flags only ever
// flip false→true.
type Record struct {
	UserID    string                     `json:"user_id"`
	LocalDate string                     `json:"local_date"` // YYYY-MM-DD in the user's timezone
	Actions   map[reward.ActionKind]bool `json:"actions"`
	CreatedAt time.Time                  `json:"created_at"`
	UpdatedAt time.Time                  `json:"updated_at"`
}

// Done reports whether the given action has already been claimed on this day.
func (r Record) Done(kind reward.ActionKind) bool {
	return r.Actions[kind]
}
