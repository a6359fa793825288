// Package app wires the reward-engine services into one facade. Handlers and
// background jobs call this layer only; ordering guarantees live here.
package app

import (
	"context"
	"time"

	"github.com/mendwell/reward-engine/internal/domain/achievement"
	domaindaily "github.com/mendwell/reward-engine/internal/domain/daily"
	"github.com/mendwell/reward-engine/internal/domain/quota"
	"github.com/mendwell/reward-engine/internal/domain/reward"
	"github.com/mendwell/reward-engine/internal/domain/streak"
	"github.com/mendwell/reward-engine/internal/services/achievements"
	"github.com/mendwell/reward-engine/internal/services/daily"
	"github.com/mendwell/reward-engine/internal/services/ledger"
	"github.com/mendwell/reward-engine/internal/services/quotas"
	"github.com/mendwell/reward-engine/internal/services/streaks"
	"github.com/mendwell/reward-engine/internal/storage"
	"github.com/mendwell/reward-engine/internal/storage/memory"
	"github.com/mendwell/reward-engine/pkg/logger"
)

// sourceByAction maps claimed actions to their ledger entry source.
var sourceByAction = map[reward.ActionKind]reward.SourceKind{
	reward.ActionRitual:           reward.SourceRitual,
	reward.ActionCheckin:          reward.SourceCheckin,
	reward.ActionWallPost:         reward.SourceWallPost,
	reward.ActionAIChat:           reward.SourceAIChat,
	reward.ActionNoContactCheckin: reward.SourceCheckin,
}

// streakByAction maps the streak-bearing actions to their streak type.
var streakByAction = map[reward.ActionKind]streak.Type{
	reward.ActionRitual:           streak.TypeRitual,
	reward.ActionNoContactCheckin: streak.TypeNoContact,
}

// Options configures the facade. Zero values select the defaults: an
// in-memory store, the compiled-in reward and rule tables.
type Options struct {
	Store      storage.Store
	Rewards    daily.RewardTable
	Rules      []achievement.Definition
	Quota      quotas.Config
	MaxShields int
	Logger     *logger.Logger
}

// Application is the reward engine facade.
type Application struct {
	store        storage.Store
	Ledger       *ledger.Service
	Daily        *daily.Service
	Streaks      *streaks.Service
	Quotas       *quotas.Service
	Achievements *achievements.Service
	log          *logger.Logger
}

// New assembles the engine.
func New(opts Options) (*Application, error) {
	if opts.Store == nil {
		opts.Store = memory.New()
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewDefault("reward-engine")
	}

	led := ledger.New(opts.Store, opts.Logger)
	ach, err := achievements.New(opts.Store, led, opts.Rules, opts.Logger)
	if err != nil {
		return nil, err
	}

	return &Application{
		store:        opts.Store,
		Ledger:       led,
		Daily:        daily.New(opts.Store, opts.Rewards, opts.Logger),
		Streaks:      streaks.New(opts.Store, opts.MaxShields, opts.Logger),
		Quotas:       quotas.New(opts.Store, led, opts.Quota, opts.Logger),
		Achievements: ach,
		log:          opts.Logger,
	}, nil
}

// ActionResult is the outcome of one reward-granting action.
type ActionResult struct {
	LocalDate   string                `json:"local_date"`
	Claimed     bool                  `json:"claimed"`
	Credited    int64                 `json:"credited"`
	Balance     int64                 `json:"balance"`
	Streak      *streak.Result        `json:"streak,omitempty"`
	NewBadges   []achievement.Awarded `json:"new_badges,omitempty"`
	AlreadyDone bool                  `json:"already_done,omitempty"`
}

// RecordAction is the single entry point for every reward-granting user
// action. The claim always happens before any credit: a failure after the
// claim can lose a reward, never double-grant one. Streak-bearing actions
// also advance their streak, and every successful claim triggers an
// achievement pass.
func (a *Application) RecordAction(ctx context.Context, userID string, kind reward.ActionKind, timezone string, ts time.Time, useShield bool) (ActionResult, error) {
	if _, err := a.Ledger.EnsureAccount(ctx, userID, timezone); err != nil {
		return ActionResult{}, err
	}

	claim, err := a.Daily.TryClaim(ctx, userID, kind, timezone, ts)
	if err != nil {
		return ActionResult{}, err
	}

	res := ActionResult{LocalDate: claim.LocalDate, Claimed: claim.Claimed}
	if !claim.Claimed {
		res.AlreadyDone = true
		balance, err := a.Ledger.BalanceOf(ctx, userID)
		if err != nil {
			return ActionResult{}, err
		}
		res.Balance = balance
		return res, nil
	}

	if claim.Reward > 0 {
		if _, err := a.Ledger.Credit(ctx, userID, claim.Reward, sourceByAction[kind], claim.LocalDate); err != nil {
			return ActionResult{}, err
		}
		res.Credited = claim.Reward
	}

	if typ, ok := streakByAction[kind]; ok {
		sr, err := a.Streaks.CheckIn(ctx, userID, typ, claim.LocalDate, useShield)
		if err != nil {
			return ActionResult{}, err
		}
		res.Streak = &sr
	}

	badges, err := a.Achievements.Evaluate(ctx, userID, string(kind))
	if err != nil {
		return ActionResult{}, err
	}
	res.NewBadges = badges

	balance, err := a.Ledger.BalanceOf(ctx, userID)
	if err != nil {
		return ActionResult{}, err
	}
	res.Balance = balance
	return res, nil
}

// ConsumeQuota takes n units of a consumable resource.
func (a *Application) ConsumeQuota(ctx context.Context, userID string, resource quota.ResourceKind, n int64) (quota.Consumption, error) {
	return a.Quotas.Consume(ctx, userID, resource, n)
}

// PurchaseQuota buys extra allowance with ledger currency.
func (a *Application) PurchaseQuota(ctx context.Context, userID string, resource quota.ResourceKind, amount, cost int64) (quota.State, error) {
	if _, err := a.Ledger.EnsureAccount(ctx, userID, ""); err != nil {
		return quota.State{}, err
	}
	return a.Quotas.Purchase(ctx, userID, resource, amount, cost)
}

// SetTier changes the user's subscription tier for a resource.
func (a *Application) SetTier(ctx context.Context, userID string, resource quota.ResourceKind, tier reward.Tier) (quota.State, error) {
	return a.Quotas.SetTier(ctx, userID, resource, tier)
}

// GetQuota reads the current allowance state.
func (a *Application) GetQuota(ctx context.Context, userID string, resource quota.ResourceKind) (quota.State, error) {
	return a.Quotas.Get(ctx, userID, resource)
}

// Balance reads the user's currency balance.
func (a *Application) Balance(ctx context.Context, userID string) (int64, error) {
	return a.Ledger.BalanceOf(ctx, userID)
}

// History lists ledger entries newest first.
func (a *Application) History(ctx context.Context, userID string, limit, offset int) ([]reward.LedgerEntry, error) {
	return a.Ledger.History(ctx, userID, limit, offset)
}

// AdminAdjust credits or debits a user's balance outside the reward flow.
// A negative amount debits and fails on insufficient balance.
func (a *Application) AdminAdjust(ctx context.Context, userID string, amount int64, reason string) (reward.LedgerEntry, error) {
	if _, err := a.Ledger.EnsureAccount(ctx, userID, ""); err != nil {
		return reward.LedgerEntry{}, err
	}
	if amount < 0 {
		return a.Ledger.Debit(ctx, userID, -amount, reward.SourceAdminAdjustment, reason)
	}
	return a.Ledger.Credit(ctx, userID, amount, reward.SourceAdminAdjustment, reason)
}

// StreakStates lists the user's streaks.
func (a *Application) StreakStates(ctx context.Context, userID string) ([]streak.State, error) {
	return a.Streaks.Streaks(ctx, userID)
}

// DailyRecord returns the user's claim record for the local day of ts.
func (a *Application) DailyRecord(ctx context.Context, userID, timezone string, ts time.Time) (domaindaily.Record, error) {
	return a.Daily.Record(ctx, userID, timezone, ts)
}

// Badges lists earned achievements.
func (a *Application) Badges(ctx context.Context, userID string) ([]achievement.Awarded, error) {
	return a.Achievements.Earned(ctx, userID)
}

// BadgeProgress reports progress toward every visible rule.
func (a *Application) BadgeProgress(ctx context.Context, userID string) ([]achievement.Progress, error) {
	return a.Achievements.Progress(ctx, userID)
}

// EvaluateAchievements forces a rule pass outside the action flow, for
// backfills and admin tooling.
func (a *Application) EvaluateAchievements(ctx context.Context, userID, sourceEvent string) ([]achievement.Awarded, error) {
	return a.Achievements.Evaluate(ctx, userID, sourceEvent)
}

// Store exposes the underlying store to background jobs.
func (a *Application) Store() storage.Store {
	return a.store
}
