package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mendwell/reward-engine/internal/domain/achievement"
	"github.com/mendwell/reward-engine/internal/domain/quota"
	"github.com/mendwell/reward-engine/internal/domain/reward"
	"github.com/mendwell/reward-engine/internal/storage/memory"
)

func newTestApp(t *testing.T, opts Options) *Application {
	t.Helper()
	a, err := New(opts)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	return a
}

func TestRecordActionClaimsCreditsAndAwards(t *testing.T) {
	a := newTestApp(t, Options{})
	ctx := context.Background()
	ts := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)

	res, err := a.RecordAction(ctx, "u1", reward.ActionRitual, "UTC", ts, false)
	if err != nil {
		t.Fatalf("record action: %v", err)
	}
	if !res.Claimed || res.Credited != 10 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Streak == nil || res.Streak.Current != 1 {
		t.Fatalf("ritual should start a streak: %+v", res.Streak)
	}

	// First ritual earns the starter badge and its bonus.
	var starter bool
	for _, b := range res.NewBadges {
		if b.AchievementID == "first_ritual" {
			starter = true
		}
	}
	if !starter {
		t.Fatalf("expected first_ritual badge, got %+v", res.NewBadges)
	}
	if res.Balance != 15 {
		t.Fatalf("expected 10 reward + 5 bonus, got %d", res.Balance)
	}

	// Same local day: normal no-op, nothing credited.
	res, err = a.RecordAction(ctx, "u1", reward.ActionRitual, "UTC", ts.Add(3*time.Hour), false)
	if err != nil {
		t.Fatalf("record action: %v", err)
	}
	if res.Claimed || !res.AlreadyDone || res.Credited != 0 {
		t.Fatalf("repeat must be a no-op: %+v", res)
	}
	if res.Balance != 15 {
		t.Fatalf("repeat must not move the balance, got %d", res.Balance)
	}
}

func TestRecordActionConcurrentCallersCreditOnce(t *testing.T) {
	store := memory.New()
	a := newTestApp(t, Options{Store: store, Rules: []achievement.Definition{}})
	ctx := context.Background()
	ts := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)

	const callers = 5
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := a.RecordAction(ctx, "u1", reward.ActionCheckin, "UTC", ts, false); err != nil {
				t.Errorf("record action: %v", err)
			}
		}()
	}
	wg.Wait()

	entries, err := store.ListEntries(ctx, "u1", 100, 0)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one ledger entry, got %d", len(entries))
	}
	balance, err := a.Balance(ctx, "u1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 5 {
		t.Fatalf("expected a single check-in credit of 5, got %d", balance)
	}
}

func TestQuotaPurchaseFlowAgainstEarnedBalance(t *testing.T) {
	a := newTestApp(t, Options{Rules: []achievement.Definition{}})
	ctx := context.Background()

	// Seed a balance of 100 through the admin path.
	if _, err := a.AdminAdjust(ctx, "u1", 100, "seed"); err != nil {
		t.Fatalf("adjust: %v", err)
	}

	for i := 0; i < 5; i++ {
		if _, err := a.ConsumeQuota(ctx, "u1", quota.ResourceAIMessages, 1); err != nil {
			t.Fatalf("consume %d: %v", i+1, err)
		}
	}
	if _, err := a.ConsumeQuota(ctx, "u1", quota.ResourceAIMessages, 1); !errors.Is(err, quota.ErrQuotaExceeded) {
		t.Fatalf("sixth consume should exceed the cap, got %v", err)
	}

	if _, err := a.PurchaseQuota(ctx, "u1", quota.ResourceAIMessages, 20, 50); err != nil {
		t.Fatalf("purchase: %v", err)
	}
	balance, err := a.Balance(ctx, "u1")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance != 50 {
		t.Fatalf("expected balance 50 after purchase, got %d", balance)
	}

	res, err := a.ConsumeQuota(ctx, "u1", quota.ResourceAIMessages, 1)
	if err != nil {
		t.Fatalf("consume after purchase: %v", err)
	}
	if res.Remaining != 19 {
		t.Fatalf("remaining after purchase %d", res.Remaining)
	}
}

func TestStreakShieldThroughActionFlow(t *testing.T) {
	a := newTestApp(t, Options{Rules: []achievement.Definition{}})
	ctx := context.Background()

	day := func(d int) time.Time {
		return time.Date(2024, 3, d, 9, 0, 0, 0, time.UTC)
	}
	for d := 1; d <= 3; d++ {
		if _, err := a.RecordAction(ctx, "u1", reward.ActionNoContactCheckin, "UTC", day(d), false); err != nil {
			t.Fatalf("day %d: %v", d, err)
		}
	}

	// Day 4 missed; day 5 check-in asks for a shield.
	res, err := a.RecordAction(ctx, "u1", reward.ActionNoContactCheckin, "UTC", day(5), true)
	if err != nil {
		t.Fatalf("record action: %v", err)
	}
	if res.Streak == nil || !res.Streak.Shielded || res.Streak.Current != 3 {
		t.Fatalf("shield should preserve the streak: %+v", res.Streak)
	}
}
