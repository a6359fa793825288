// Package daily implements the per-local-day idempotency tracker and the
// data-driven reward table. Every reward-granting action passes through
// TryClaim before any currency moves.
package daily

import (
	"context"
	"time"

	"github.com/mendwell/reward-engine/internal/clock"
	domaindaily "github.com/mendwell/reward-engine/internal/domain/daily"
	"github.com/mendwell/reward-engine/internal/domain/reward"
	"github.com/mendwell/reward-engine/internal/storage"
	"github.com/mendwell/reward-engine/pkg/logger"
)

// RewardTable maps each action kind to the currency it earns, once per local
// day. Reward amounts live here instead of being scattered across handlers.
type RewardTable map[reward.ActionKind]int64

// DefaultRewards is the built-in reward table, used when no YAML override is
// configured.
func DefaultRewards() RewardTable {
	return RewardTable{
		reward.ActionRitual:           10,
		reward.ActionCheckin:          5,
		reward.ActionWallPost:         3,
		reward.ActionAIChat:           2,
		reward.ActionNoContactCheckin: 5,
	}
}

// Claim is the outcome of one TryClaim call.
type Claim struct {
	LocalDate string
	Claimed   bool
	Reward    int64
}

// Service is the daily action tracker.
type Service struct {
	store   storage.DailyActionStore
	rewards RewardTable
	log     *logger.Logger
}

// New constructs a tracker. A nil reward table falls back to the defaults.
func New(store storage.DailyActionStore, rewards RewardTable, log *logger.Logger) *Service {
	if rewards == nil {
		rewards = DefaultRewards()
	}
	if log == nil {
		log = logger.NewDefault("daily")
	}
	return &Service{store: store, rewards: rewards, log: log}
}

// TryClaim resolves the user's local date for ts and attempts the
// conflict-safe claim. Exactly one concurrent caller per
// (user, action, local day) observes Claimed == true; the rest see a normal
// AlreadyClaimed no-op.
func (s *Service) TryClaim(ctx context.Context, userID string, kind reward.ActionKind, timezone string, ts time.Time) (Claim, error) {
	if userID == "" {
		return Claim{}, reward.ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	if !kind.Valid() {
		return Claim{}, reward.ValidationError{Field: "action_kind", Reason: "unknown action"}
	}

	localDate, err := clock.LocalDate(ts, timezone)
	if err != nil {
		return Claim{}, err
	}

	claimed, err := s.store.ClaimAction(ctx, userID, localDate, kind)
	if err != nil {
		return Claim{}, err
	}
	if claimed {
		s.log.Infof("claimed %s for %s on %s", kind, userID, localDate)
	}
	return Claim{LocalDate: localDate, Claimed: claimed, Reward: s.rewards[kind]}, nil
}

// Record returns the user's daily record for the local date of ts.
func (s *Service) Record(ctx context.Context, userID, timezone string, ts time.Time) (domaindaily.Record, error) {
	localDate, err := clock.LocalDate(ts, timezone)
	if err != nil {
		return domaindaily.Record{}, err
	}
	return s.store.GetDailyRecord(ctx, userID, localDate)
}

// RewardFor exposes the configured reward for an action kind.
func (s *Service) RewardFor(kind reward.ActionKind) int64 {
	return s.rewards[kind]
}
