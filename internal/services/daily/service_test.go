package daily

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mendwell/reward-engine/internal/domain/reward"
	"github.com/mendwell/reward-engine/internal/storage/memory"
)

func TestTryClaimOncePerLocalDay(t *testing.T) {
	svc := New(memory.New(), nil, nil)
	ctx := context.Background()
	ts := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)

	first, err := svc.TryClaim(ctx, "u1", reward.ActionCheckin, "UTC", ts)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !first.Claimed {
		t.Fatal("first claim should succeed")
	}
	if first.Reward != DefaultRewards()[reward.ActionCheckin] {
		t.Fatalf("unexpected reward: %d", first.Reward)
	}

	second, err := svc.TryClaim(ctx, "u1", reward.ActionCheckin, "UTC", ts.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if second.Claimed {
		t.Fatal("same-day claim must be a no-op")
	}

	nextDay, err := svc.TryClaim(ctx, "u1", reward.ActionCheckin, "UTC", ts.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !nextDay.Claimed {
		t.Fatal("next-day claim should succeed")
	}
}

func TestTryClaimConcurrentCallersCollapseToOne(t *testing.T) {
	svc := New(memory.New(), nil, nil)
	ctx := context.Background()
	ts := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)

	const callers = 5
	var wg sync.WaitGroup
	results := make([]bool, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			claim, err := svc.TryClaim(ctx, "u1", reward.ActionRitual, "UTC", ts)
			if err != nil {
				t.Errorf("claim %d: %v", i, err)
				return
			}
			results[i] = claim.Claimed
		}(i)
	}
	wg.Wait()

	var winners int
	for _, claimed := range results {
		if claimed {
			winners++
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly 1 winner out of %d concurrent calls, got %d", callers, winners)
	}
}

func TestClaimsAreIndependentPerTimezoneDay(t *testing.T) {
	svc := New(memory.New(), nil, nil)
	ctx := context.Background()

	// 23:30 UTC: still 2024-03-02 in UTC, already 2024-03-03 in Auckland.
	ts := time.Date(2024, 3, 2, 23, 30, 0, 0, time.UTC)

	utcClaim, err := svc.TryClaim(ctx, "utc-user", reward.ActionCheckin, "UTC", ts)
	if err != nil {
		t.Fatalf("utc claim: %v", err)
	}
	nzClaim, err := svc.TryClaim(ctx, "nz-user", reward.ActionCheckin, "Pacific/Auckland", ts)
	if err != nil {
		t.Fatalf("nz claim: %v", err)
	}
	if !utcClaim.Claimed || !nzClaim.Claimed {
		t.Fatal("both users should claim their own local day")
	}
	if utcClaim.LocalDate != "2024-03-02" {
		t.Fatalf("unexpected UTC local date: %s", utcClaim.LocalDate)
	}
	if nzClaim.LocalDate != "2024-03-03" {
		t.Fatalf("unexpected Auckland local date: %s", nzClaim.LocalDate)
	}

	// 30 minutes later it is 2024-03-03 in UTC too; the UTC user gets a
	// fresh day while the Auckland user is still inside theirs.
	later := ts.Add(30 * time.Minute)
	utcClaim, err = svc.TryClaim(ctx, "utc-user", reward.ActionCheckin, "UTC", later)
	if err != nil {
		t.Fatalf("utc claim: %v", err)
	}
	nzClaim, err = svc.TryClaim(ctx, "nz-user", reward.ActionCheckin, "Pacific/Auckland", later)
	if err != nil {
		t.Fatalf("nz claim: %v", err)
	}
	if !utcClaim.Claimed {
		t.Fatal("UTC user crossed their midnight and should claim again")
	}
	if nzClaim.Claimed {
		t.Fatal("Auckland user is still on the same local day")
	}
}

func TestTryClaimValidation(t *testing.T) {
	svc := New(memory.New(), nil, nil)
	ctx := context.Background()

	if _, err := svc.TryClaim(ctx, "", reward.ActionCheckin, "UTC", time.Now()); !reward.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.TryClaim(ctx, "u1", reward.ActionKind("bogus"), "UTC", time.Now()); !reward.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.TryClaim(ctx, "u1", reward.ActionCheckin, "UTC", time.Time{}); !reward.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
