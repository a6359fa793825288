// Package ledger manages the append-only currency ledger and its cached
// balance projection.
package ledger

import (
	"context"

	"github.com/mendwell/reward-engine/internal/domain/reward"
	"github.com/mendwell/reward-engine/internal/storage"
	"github.com/mendwell/reward-engine/pkg/logger"
)

// Service wraps the ledger store with input validation. All atomicity lives
// in the store; this layer never reads a balance before writing one.
type Service struct {
	store storage.LedgerStore
	log   *logger.Logger
}

// New constructs a ledger service.
func New(store storage.LedgerStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("ledger")
	}
	return &Service{store: store, log: log}
}

// EnsureAccount creates the user's account lazily.
func (s *Service) EnsureAccount(ctx context.Context, userID, timezone string) (reward.Account, error) {
	if userID == "" {
		return reward.Account{}, reward.ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	return s.store.EnsureAccount(ctx, userID, timezone)
}

// Credit appends a positive entry and bumps the balance projection.
func (s *Service) Credit(ctx context.Context, userID string, amount int64, source reward.SourceKind, relatedID string) (reward.LedgerEntry, error) {
	if userID == "" {
		return reward.LedgerEntry{}, reward.ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	if amount <= 0 {
		return reward.LedgerEntry{}, reward.ValidationError{Field: "amount", Reason: "must be positive"}
	}

	entry, err := s.store.Credit(ctx, userID, amount, source, relatedID)
	if err != nil {
		return reward.LedgerEntry{}, err
	}
	s.log.Infof("credited %d to %s (%s)", amount, userID, source)
	return entry, nil
}

// Debit appends a negative entry; it fails fast with
// reward.ErrInsufficientBalance when the projection would go negative.
func (s *Service) Debit(ctx context.Context, userID string, amount int64, source reward.SourceKind, relatedID string) (reward.LedgerEntry, error) {
	if userID == "" {
		return reward.LedgerEntry{}, reward.ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	if amount <= 0 {
		return reward.LedgerEntry{}, reward.ValidationError{Field: "amount", Reason: "must be positive"}
	}

	entry, err := s.store.Debit(ctx, userID, amount, source, relatedID)
	if err != nil {
		return reward.LedgerEntry{}, err
	}
	s.log.Infof("debited %d from %s (%s)", amount, userID, source)
	return entry, nil
}

// BalanceOf reads the cached balance projection, creating the account lazily.
func (s *Service) BalanceOf(ctx context.Context, userID string) (int64, error) {
	acct, err := s.EnsureAccount(ctx, userID, "")
	if err != nil {
		return 0, err
	}
	return acct.Balance, nil
}

// History lists ledger entries newest first.
func (s *Service) History(ctx context.Context, userID string, limit, offset int) ([]reward.LedgerEntry, error) {
	if userID == "" {
		return nil, reward.ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	return s.store.ListEntries(ctx, userID, limit, offset)
}
