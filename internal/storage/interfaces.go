// Package storage declares the persistence contracts of the reward engine.
//
// Correctness under concurrent callers rests entirely on these contracts:
// claims and awards are first-writer-wins inserts resolved inside the store,
// and balance/quota mutations are single conditional statements. No caller
// may layer a read-then-write pattern on top of them.
package storage

import (
	"context"
	"time"

	"github.com/mendwell/reward-engine/internal/domain/achievement"
	"github.com/mendwell/reward-engine/internal/domain/daily"
	"github.com/mendwell/reward-engine/internal/domain/quota"
	"github.com/mendwell/reward-engine/internal/domain/reward"
	"github.com/mendwell/reward-engine/internal/domain/streak"
)

// LedgerStore persists accounts and the append-only currency ledger.
type LedgerStore interface {
	// EnsureAccount creates the account row if missing (insert-or-ignore)
	// and returns the current state.
	EnsureAccount(ctx context.Context, userID, timezone string) (reward.Account, error)
	GetAccount(ctx context.Context, userID string) (reward.Account, error)
	ListAccounts(ctx context.Context) ([]reward.Account, error)

	// Credit appends a positive entry and increments the cached balance in
	// the same storage transaction.
	Credit(ctx context.Context, userID string, amount int64, source reward.SourceKind, relatedID string) (reward.LedgerEntry, error)
	// Debit appends a negative entry guarded by a conditional balance
	// update; it returns reward.ErrInsufficientBalance when the balance
	// would go negative.
	Debit(ctx context.Context, userID string, amount int64, source reward.SourceKind, relatedID string) (reward.LedgerEntry, error)

	ListEntries(ctx context.Context, userID string, limit, offset int) ([]reward.LedgerEntry, error)
	// SumEntries returns the signed sum of all entries for the user; the
	// integrity auditor compares it against the cached balance.
	SumEntries(ctx context.Context, userID string) (int64, error)
	// SumCredited returns lifetime credited currency (positive entries only).
	SumCredited(ctx context.Context, userID string) (int64, error)
}

// DailyActionStore persists the per-day idempotency records.
type DailyActionStore interface {
	// ClaimAction attempts to flip the action's flag for (userID, localDate)
	// in a single conflict-safe statement. It returns true only for the one
	// caller that flipped the flag from false to true.
	ClaimAction(ctx context.Context, userID, localDate string, kind reward.ActionKind) (bool, error)
	GetDailyRecord(ctx context.Context, userID, localDate string) (daily.Record, error)
	// CountActions returns lifetime claimed-action totals, overall and per kind.
	CountActions(ctx context.Context, userID string) (int64, map[reward.ActionKind]int64, error)
}

// StreakStore persists streak states. Writers are serialized per day by the
// daily tracker, so a plain upsert is sufficient here.
type StreakStore interface {
	GetStreak(ctx context.Context, userID string, typ streak.Type) (streak.State, bool, error)
	ListStreaks(ctx context.Context, userID string) ([]streak.State, error)
	SaveStreak(ctx context.Context, state streak.State) error
}

// QuotaStore persists consumable allowance states.
type QuotaStore interface {
	// InitQuota inserts the state if missing (insert-or-ignore) and returns
	// the current row.
	InitQuota(ctx context.Context, state quota.State) (quota.State, error)
	GetQuota(ctx context.Context, userID string, resource quota.ResourceKind) (quota.State, bool, error)
	// ConsumeQuota increments used by n in one conditional statement. It
	// returns quota.ErrQuotaExceeded when a hard cap would be passed;
	// unlimited states always succeed.
	ConsumeQuota(ctx context.Context, userID string, resource quota.ResourceKind, n int64) (quota.State, error)
	// ResetQuotaIfElapsed zeroes used and advances reset_at, but only when
	// the stored reset_at has already passed. Safe to call on every access.
	ResetQuotaIfElapsed(ctx context.Context, userID string, resource quota.ResourceKind, now, nextReset time.Time) error
	AddPurchasedExtra(ctx context.Context, userID string, resource quota.ResourceKind, n int64) (quota.State, error)
	// SetTier swaps the behavior mode in place, preserving used and
	// purchased allowance.
	SetTier(ctx context.Context, userID string, resource quota.ResourceKind, tier reward.Tier, cap, softCap int64, resetAt time.Time) (quota.State, error)
}

// AchievementStore persists the append-only award records.
type AchievementStore interface {
	// InsertAward writes the award unless (userID, achievementID) already
	// exists. It returns true only when this call inserted the row.
	InsertAward(ctx context.Context, award achievement.Awarded) (bool, error)
	ListAwards(ctx context.Context, userID string) ([]achievement.Awarded, error)
}

// Store aggregates every persistence contract the engine needs.
type Store interface {
	LedgerStore
	DailyActionStore
	StreakStore
	QuotaStore
	AchievementStore
}
