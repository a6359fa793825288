package integrity

import (
	"context"
	"testing"

	"github.com/mendwell/reward-engine/internal/domain/reward"
	"github.com/mendwell/reward-engine/internal/storage"
	"github.com/mendwell/reward-engine/internal/storage/memory"
)

func TestSweepCleanLedger(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	if _, err := store.Credit(ctx, "u1", 50, reward.SourceRitual, ""); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := store.Debit(ctx, "u1", 20, reward.SourcePurchase, ""); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if _, err := store.Credit(ctx, "u2", 5, reward.SourceCheckin, ""); err != nil {
		t.Fatalf("credit: %v", err)
	}

	drifts, err := New(store, "", nil).Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(drifts) != 0 {
		t.Fatalf("consistent ledger flagged drift: %+v", drifts)
	}
}

// corruptStore wraps a ledger store and misreports one account's entry sum.
type corruptStore struct {
	storage.LedgerStore
	victim string
}

func (c corruptStore) SumEntries(ctx context.Context, userID string) (int64, error) {
	sum, err := c.LedgerStore.SumEntries(ctx, userID)
	if userID == c.victim {
		sum += 7
	}
	return sum, err
}

func TestSweepReportsDrift(t *testing.T) {
	store := memory.New()
	ctx := context.Background()

	if _, err := store.Credit(ctx, "u1", 50, reward.SourceRitual, ""); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if _, err := store.Credit(ctx, "u2", 30, reward.SourceRitual, ""); err != nil {
		t.Fatalf("credit: %v", err)
	}

	drifts, err := New(corruptStore{LedgerStore: store, victim: "u2"}, "", nil).Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if len(drifts) != 1 || drifts[0].UserID != "u2" {
		t.Fatalf("expected drift on u2 only, got %+v", drifts)
	}
	if drifts[0].Sum != 37 || drifts[0].Balance != 30 {
		t.Fatalf("unexpected drift detail: %+v", drifts[0])
	}
}
