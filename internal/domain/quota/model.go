// Package quota defines consumable allowance state with tier-dependent caps
// and reset policies.
package quota

import (
	"errors"
	"time"

	"github.com/mendwell/reward-engine/internal/domain/reward"
)

// ErrQuotaExceeded is returned when a capped-tier consume would go past
// cap + purchased extra.
var ErrQuotaExceeded = errors.New("quota exceeded")

// ResourceKind names a consumable resource.
type ResourceKind string

// ResourceAIMessages is the AI-chat message allowance.
const ResourceAIMessages ResourceKind = "ai_messages"

// Valid reports whether the resource kind is known.
func (r ResourceKind) Valid() bool { return r == ResourceAIMessages }

// FarFuture is the reset sentinel for capped tiers, which never reset
// automatically.
var FarFuture = time.Date(9999, 1, 1, 0, 0, 0, 0, time.UTC)

// State is the per-(user, resource) allowance record. For capped tiers,
// Used <= Cap + PurchasedExtra always holds; Cap < 0 means unlimited with a
// soft cap tracked for fair-use signaling only.
type State struct {
	UserID         string       `json:"user_id"`
	Resource       ResourceKind `json:"resource"`
	Tier           reward.Tier  `json:"tier"`
	Used           int64        `json:"used"`
	Cap            int64        `json:"cap"` // < 0 means no hard cap (premium)
	SoftCap        int64        `json:"soft_cap,omitempty"`
	PurchasedExtra int64        `json:"purchased_extra"`
	ResetAt        time.Time    `json:"reset_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// Unlimited reports whether the state has no hard cap.
func (s State) Unlimited() bool { return s.Cap < 0 }

// Remaining returns the remaining hard allowance, or -1 when unlimited.
func (s State) Remaining() int64 {
	if s.Unlimited() {
		return -1
	}
	remaining := s.Cap + s.PurchasedExtra - s.Used
	if remaining < 0 {
		return 0
	}
	return remaining
}

// OverSoftCap reports whether an unlimited-tier user has passed the fair-use
// threshold. Never blocks anything.
func (s State) OverSoftCap() bool {
	return s.Unlimited() && s.SoftCap > 0 && s.Used > s.SoftCap
}

// Consumption is the caller-visible outcome of one consume call.
type Consumption struct {
	Remaining   int64 `json:"remaining"` // -1 when unlimited
	Unlimited   bool  `json:"unlimited"`
	OverSoftCap bool  `json:"over_soft_cap,omitempty"`
}
