package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/mendwell/reward-engine/internal/domain/achievement"
	"github.com/mendwell/reward-engine/internal/domain/quota"
	"github.com/mendwell/reward-engine/internal/domain/reward"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock new: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db), mock
}

func TestDebitInsufficientBalanceRollsBack(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	// Conditional update touches no row when balance < amount.
	mock.ExpectExec("UPDATE accounts").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := store.Debit(context.Background(), "u1", 50, reward.SourcePurchase, "")
	if !errors.Is(err, reward.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestDebitWritesNegativeEntry(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE accounts").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO ledger_entries").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	entry, err := store.Debit(context.Background(), "u1", 50, reward.SourcePurchase, "pack-20")
	if err != nil {
		t.Fatalf("debit: %v", err)
	}
	if entry.Amount != -50 {
		t.Fatalf("expected signed amount -50, got %d", entry.Amount)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestCreditAppendsAndIncrementsInOneTx(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO accounts").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO ledger_entries").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("UPDATE accounts").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	entry, err := store.Credit(context.Background(), "u1", 10, reward.SourceRitual, "")
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if entry.Amount != 10 {
		t.Fatalf("unexpected amount: %d", entry.Amount)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestClaimActionWinnerAndLoser(t *testing.T) {
	store, mock := newMockStore(t)

	// Winner: the upsert returns the row it touched.
	mock.ExpectQuery("INSERT INTO daily_actions").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u1"))
	claimed, err := store.ClaimAction(context.Background(), "u1", "2024-03-02", reward.ActionCheckin)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if !claimed {
		t.Fatal("first claim should win")
	}

	// Loser: flag already true, the guarded upsert touches nothing.
	mock.ExpectQuery("INSERT INTO daily_actions").
		WillReturnRows(sqlmock.NewRows([]string{"user_id"}))
	claimed, err = store.ClaimAction(context.Background(), "u1", "2024-03-02", reward.ActionCheckin)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed {
		t.Fatal("second claim must observe AlreadyClaimed")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestClaimActionRejectsUnknownKind(t *testing.T) {
	store, _ := newMockStore(t)
	if _, err := store.ClaimAction(context.Background(), "u1", "2024-03-02", reward.ActionKind("drop table")); err == nil {
		t.Fatal("expected rejection of unknown action kind")
	}
}

func TestConsumeQuotaExceeded(t *testing.T) {
	store, mock := newMockStore(t)

	quotaColumns := []string{"user_id", "resource", "tier", "used", "cap", "soft_cap", "purchased_extra", "reset_at", "updated_at"}
	now := time.Now().UTC()

	// Guarded update touches nothing, follow-up read shows the row exists.
	mock.ExpectQuery("UPDATE quota_states").WillReturnRows(sqlmock.NewRows(quotaColumns))
	mock.ExpectQuery("SELECT (.+) FROM quota_states").
		WillReturnRows(sqlmock.NewRows(quotaColumns).
			AddRow("u1", "ai_messages", "free", 5, 5, 0, 0, quota.FarFuture, now))

	_, err := store.ConsumeQuota(context.Background(), "u1", quota.ResourceAIMessages, 1)
	if !errors.Is(err, quota.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func awardFixture() achievement.Awarded {
	return achievement.Awarded{
		UserID:        "u1",
		AchievementID: "streak-7",
		SourceEvent:   "streak_checkin",
	}
}

func TestInsertAwardExactlyOnce(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO awarded_achievements").WillReturnResult(sqlmock.NewResult(1, 1))
	inserted, err := store.InsertAward(context.Background(), awardFixture())
	if err != nil {
		t.Fatalf("insert award: %v", err)
	}
	if !inserted {
		t.Fatal("first insert should report inserted")
	}

	mock.ExpectExec("INSERT INTO awarded_achievements").WillReturnResult(sqlmock.NewResult(0, 0))
	inserted, err = store.InsertAward(context.Background(), awardFixture())
	if err != nil {
		t.Fatalf("insert award: %v", err)
	}
	if inserted {
		t.Fatal("conflicting insert must report not-inserted")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
