// Package reward contains the core currency and account types. It has zero
// infrastructure imports; every other package in the engine builds on it.
package reward

import "time"

// Tier is a user's subscription level. It gates quota caps and some
// achievement eligibility.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

// Rank orders tiers for "at least" comparisons.
func (t Tier) Rank() int {
	switch t {
	case TierPremium:
		return 1
	default:
		return 0
	}
}

// ActionKind identifies a reward-eligible user action. Each kind is claimable
// at most once per user per local calendar day.
type ActionKind string

const (
	ActionRitual           ActionKind = "ritual"
	ActionCheckin          ActionKind = "checkin"
	ActionWallPost         ActionKind = "wall_post"
	ActionAIChat           ActionKind = "ai_chat"
	ActionNoContactCheckin ActionKind = "no_contact_checkin"
)

// ActionKinds lists every claimable action kind.
func ActionKinds() []ActionKind {
	return []ActionKind{ActionRitual, ActionCheckin, ActionWallPost, ActionAIChat, ActionNoContactCheckin}
}

// Valid reports whether the kind is one the tracker knows about.
func (k ActionKind) Valid() bool {
	for _, known := range ActionKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// SourceKind is the business reason attached to a ledger entry.
type SourceKind string

const (
	SourceRitual          SourceKind = "ritual"
	SourceCheckin         SourceKind = "checkin"
	SourceWallPost        SourceKind = "wall_post"
	SourceAIChat          SourceKind = "ai_chat"
	SourceBadgeBonus      SourceKind = "badge_bonus"
	SourcePurchase        SourceKind = "purchase"
	SourceAdminAdjustment SourceKind = "admin_adjustment"
)

// Account is the per-user projection of the ledger. Balance is a cached sum
// of ledger entries, maintained transactionally with each append; it is never
// the source of truth on its own.
type Account struct {
	UserID    string    `json:"user_id" db:"user_id"`
	Balance   int64     `json:"balance" db:"balance"`
	Timezone  string    `json:"timezone" db:"timezone"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// LedgerEntry is a single immutable signed currency movement. The full set of
// entries for a user is the source of truth for their balance.
type LedgerEntry struct {
	ID        string     `json:"id" db:"id"`
	UserID    string     `json:"user_id" db:"user_id"`
	Amount    int64      `json:"amount" db:"amount"`
	Source    SourceKind `json:"source" db:"source"`
	RelatedID string     `json:"related_id,omitempty" db:"related_id"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}
