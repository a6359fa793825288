// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and reproduces the conflict-safe
// first-writer-wins semantics of the SQL store under a single mutex, so the
// engine's idempotency tests exercise the same contract. Intended for tests
// and local development.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mendwell/reward-engine/internal/domain/achievement"
	"github.com/mendwell/reward-engine/internal/domain/daily"
	"github.com/mendwell/reward-engine/internal/domain/quota"
	"github.com/mendwell/reward-engine/internal/domain/reward"
	"github.com/mendwell/reward-engine/internal/domain/streak"
	"github.com/mendwell/reward-engine/internal/storage"
)

type dailyKey struct {
	userID    string
	localDate string
}

type streakKey struct {
	userID string
	typ    streak.Type
}

type quotaKey struct {
	userID   string
	resource quota.ResourceKind
}

type awardKey struct {
	userID        string
	achievementID string
}

// Store is the in-memory store.
type Store struct {
	mu       sync.Mutex
	accounts map[string]reward.Account
	entries  map[string][]reward.LedgerEntry
	days     map[dailyKey]daily.Record
	streaks  map[streakKey]streak.State
	quotas   map[quotaKey]quota.State
	awards   map[awardKey]achievement.Awarded
}

var _ storage.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		accounts: make(map[string]reward.Account),
		entries:  make(map[string][]reward.LedgerEntry),
		days:     make(map[dailyKey]daily.Record),
		streaks:  make(map[streakKey]streak.State),
		quotas:   make(map[quotaKey]quota.State),
		awards:   make(map[awardKey]achievement.Awarded),
	}
}

// LedgerStore ----------------------------------------------------------------

func (s *Store) EnsureAccount(_ context.Context, userID, timezone string) (reward.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureAccountLocked(userID, timezone), nil
}

func (s *Store) ensureAccountLocked(userID, timezone string) reward.Account {
	if acct, ok := s.accounts[userID]; ok {
		return acct
	}
	now := time.Now().UTC()
	acct := reward.Account{UserID: userID, Timezone: timezone, CreatedAt: now, UpdatedAt: now}
	s.accounts[userID] = acct
	return acct
}

func (s *Store) GetAccount(_ context.Context, userID string) (reward.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acct, ok := s.accounts[userID]
	if !ok {
		return reward.Account{}, fmt.Errorf("account %s not found", userID)
	}
	return acct, nil
}

func (s *Store) ListAccounts(_ context.Context) ([]reward.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]reward.Account, 0, len(s.accounts))
	for _, acct := range s.accounts {
		result = append(result, acct)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].UserID < result[j].UserID })
	return result, nil
}

func (s *Store) Credit(_ context.Context, userID string, amount int64, source reward.SourceKind, relatedID string) (reward.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct := s.ensureAccountLocked(userID, "")
	acct.Balance += amount
	acct.UpdatedAt = time.Now().UTC()
	s.accounts[userID] = acct

	entry := reward.LedgerEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    amount,
		Source:    source,
		RelatedID: relatedID,
		CreatedAt: time.Now().UTC(),
	}
	s.entries[userID] = append(s.entries[userID], entry)
	return entry, nil
}

func (s *Store) Debit(_ context.Context, userID string, amount int64, source reward.SourceKind, relatedID string) (reward.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct := s.ensureAccountLocked(userID, "")
	if acct.Balance < amount {
		return reward.LedgerEntry{}, reward.ErrInsufficientBalance
	}
	acct.Balance -= amount
	acct.UpdatedAt = time.Now().UTC()
	s.accounts[userID] = acct

	entry := reward.LedgerEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    -amount,
		Source:    source,
		RelatedID: relatedID,
		CreatedAt: time.Now().UTC(),
	}
	s.entries[userID] = append(s.entries[userID], entry)
	return entry, nil
}

func (s *Store) ListEntries(_ context.Context, userID string, limit, offset int) ([]reward.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.entries[userID]
	// Newest first.
	result := make([]reward.LedgerEntry, len(all))
	for i, e := range all {
		result[len(all)-1-i] = e
	}
	if offset >= len(result) {
		return nil, nil
	}
	result = result[offset:]
	if limit > 0 && limit < len(result) {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) SumEntries(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum int64
	for _, e := range s.entries[userID] {
		sum += e.Amount
	}
	return sum, nil
}

func (s *Store) SumCredited(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum int64
	for _, e := range s.entries[userID] {
		if e.Amount > 0 {
			sum += e.Amount
		}
	}
	return sum, nil
}

// DailyActionStore -----------------------------------------------------------

func (s *Store) ClaimAction(_ context.Context, userID, localDate string, kind reward.ActionKind) (bool, error) {
	if !kind.Valid() {
		return false, fmt.Errorf("unknown action kind %q", kind)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := dailyKey{userID: userID, localDate: localDate}
	rec, ok := s.days[key]
	if !ok {
		rec = daily.Record{
			UserID:    userID,
			LocalDate: localDate,
			Actions:   make(map[reward.ActionKind]bool),
			CreatedAt: time.Now().UTC(),
		}
	}
	if rec.Actions[kind] {
		return false, nil
	}
	rec.Actions[kind] = true
	rec.UpdatedAt = time.Now().UTC()
	s.days[key] = rec
	return true, nil
}

func (s *Store) GetDailyRecord(_ context.Context, userID, localDate string) (daily.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.days[dailyKey{userID: userID, localDate: localDate}]
	if !ok {
		return daily.Record{UserID: userID, LocalDate: localDate, Actions: map[reward.ActionKind]bool{}}, nil
	}
	clone := rec
	clone.Actions = make(map[reward.ActionKind]bool, len(rec.Actions))
	for k, v := range rec.Actions {
		clone.Actions[k] = v
	}
	return clone, nil
}

func (s *Store) CountActions(_ context.Context, userID string) (int64, map[reward.ActionKind]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byKind := make(map[reward.ActionKind]int64)
	var total int64
	for key, rec := range s.days {
		if key.userID != userID {
			continue
		}
		for kind, done := range rec.Actions {
			if done {
				byKind[kind]++
				total++
			}
		}
	}
	return total, byKind, nil
}

// StreakStore ----------------------------------------------------------------

func (s *Store) GetStreak(_ context.Context, userID string, typ streak.Type) (streak.State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.streaks[streakKey{userID: userID, typ: typ}]
	return st, ok, nil
}

func (s *Store) ListStreaks(_ context.Context, userID string) ([]streak.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []streak.State
	for key, st := range s.streaks {
		if key.userID == userID {
			result = append(result, st)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Type < result[j].Type })
	return result, nil
}

func (s *Store) SaveStreak(_ context.Context, state streak.State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state.UpdatedAt = time.Now().UTC()
	s.streaks[streakKey{userID: state.UserID, typ: state.Type}] = state
	return nil
}

// QuotaStore -----------------------------------------------------------------

func (s *Store) InitQuota(_ context.Context, state quota.State) (quota.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := quotaKey{userID: state.UserID, resource: state.Resource}
	if existing, ok := s.quotas[key]; ok {
		return existing, nil
	}
	state.UpdatedAt = time.Now().UTC()
	s.quotas[key] = state
	return state, nil
}

func (s *Store) GetQuota(_ context.Context, userID string, resource quota.ResourceKind) (quota.State, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.quotas[quotaKey{userID: userID, resource: resource}]
	return st, ok, nil
}

func (s *Store) ConsumeQuota(_ context.Context, userID string, resource quota.ResourceKind, n int64) (quota.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := quotaKey{userID: userID, resource: resource}
	st, ok := s.quotas[key]
	if !ok {
		return quota.State{}, fmt.Errorf("quota state for %s/%s not found", userID, resource)
	}
	if !st.Unlimited() && st.Used+n > st.Cap+st.PurchasedExtra {
		return quota.State{}, quota.ErrQuotaExceeded
	}
	st.Used += n
	st.UpdatedAt = time.Now().UTC()
	s.quotas[key] = st
	return st, nil
}

func (s *Store) ResetQuotaIfElapsed(_ context.Context, userID string, resource quota.ResourceKind, now, nextReset time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := quotaKey{userID: userID, resource: resource}
	st, ok := s.quotas[key]
	if !ok {
		return nil
	}
	if st.ResetAt.After(now) {
		return nil
	}
	st.Used = 0
	st.ResetAt = nextReset
	st.UpdatedAt = time.Now().UTC()
	s.quotas[key] = st
	return nil
}

func (s *Store) AddPurchasedExtra(_ context.Context, userID string, resource quota.ResourceKind, n int64) (quota.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := quotaKey{userID: userID, resource: resource}
	st, ok := s.quotas[key]
	if !ok {
		return quota.State{}, fmt.Errorf("quota state for %s/%s not found", userID, resource)
	}
	st.PurchasedExtra += n
	st.UpdatedAt = time.Now().UTC()
	s.quotas[key] = st
	return st, nil
}

func (s *Store) SetTier(_ context.Context, userID string, resource quota.ResourceKind, tier reward.Tier, cap, softCap int64, resetAt time.Time) (quota.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := quotaKey{userID: userID, resource: resource}
	st, ok := s.quotas[key]
	if !ok {
		return quota.State{}, fmt.Errorf("quota state for %s/%s not found", userID, resource)
	}
	st.Tier = tier
	st.Cap = cap
	st.SoftCap = softCap
	st.ResetAt = resetAt
	st.UpdatedAt = time.Now().UTC()
	s.quotas[key] = st
	return st, nil
}

// AchievementStore -----------------------------------------------------------

func (s *Store) InsertAward(_ context.Context, award achievement.Awarded) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := awardKey{userID: award.UserID, achievementID: award.AchievementID}
	if _, exists := s.awards[key]; exists {
		return false, nil
	}
	if award.ID == "" {
		award.ID = uuid.NewString()
	}
	if award.EarnedAt.IsZero() {
		award.EarnedAt = time.Now().UTC()
	}
	s.awards[key] = award
	return true, nil
}

func (s *Store) ListAwards(_ context.Context, userID string) ([]achievement.Awarded, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []achievement.Awarded
	for key, a := range s.awards {
		if key.userID == userID {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].EarnedAt.Before(result[j].EarnedAt) })
	return result, nil
}
