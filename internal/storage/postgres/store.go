// Package postgres implements the storage interfaces on PostgreSQL. Every
// idempotency guarantee lives in single conflict-safe statements: claims and
// awards use INSERT ... ON CONFLICT, balance and quota mutations are
// conditional updates. Nothing here reads a value into memory and writes it
// back.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/mendwell/reward-engine/internal/domain/achievement"
	"github.com/mendwell/reward-engine/internal/domain/daily"
	"github.com/mendwell/reward-engine/internal/domain/quota"
	"github.com/mendwell/reward-engine/internal/domain/reward"
	"github.com/mendwell/reward-engine/internal/domain/streak"
	"github.com/mendwell/reward-engine/internal/storage"
)

// Store implements storage.Store backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ storage.Store = (*Store)(nil)

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: sqlx.NewDb(db, "postgres")}
}

// actionColumns maps action kinds to their flag column. Claim SQL is built
// exclusively from this map, never from caller input.
var actionColumns = map[reward.ActionKind]string{
	reward.ActionRitual:           "ritual",
	reward.ActionCheckin:          "checkin",
	reward.ActionWallPost:         "wall_post",
	reward.ActionAIChat:           "ai_chat",
	reward.ActionNoContactCheckin: "no_contact_checkin",
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// LedgerStore ----------------------------------------------------------------

type accountRow struct {
	UserID    string    `db:"user_id"`
	Balance   int64     `db:"balance"`
	Timezone  string    `db:"timezone"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (r accountRow) toDomain() reward.Account {
	return reward.Account{
		UserID:    r.UserID,
		Balance:   r.Balance,
		Timezone:  r.Timezone,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func (s *Store) EnsureAccount(ctx context.Context, userID, timezone string) (reward.Account, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (user_id, timezone, balance, created_at, updated_at)
		VALUES ($1, $2, 0, now(), now())
		ON CONFLICT (user_id) DO NOTHING
	`, userID, timezone)
	if err != nil && !isUniqueViolation(err) {
		return reward.Account{}, fmt.Errorf("ensure account: %w", err)
	}
	return s.GetAccount(ctx, userID)
}

func (s *Store) GetAccount(ctx context.Context, userID string) (reward.Account, error) {
	var row accountRow
	err := s.db.GetContext(ctx, &row, `
		SELECT user_id, balance, timezone, created_at, updated_at
		FROM accounts
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return reward.Account{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) ListAccounts(ctx context.Context) ([]reward.Account, error) {
	var rows []accountRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT user_id, balance, timezone, created_at, updated_at
		FROM accounts
		ORDER BY user_id
	`)
	if err != nil {
		return nil, err
	}
	result := make([]reward.Account, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

func (s *Store) Credit(ctx context.Context, userID string, amount int64, source reward.SourceKind, relatedID string) (reward.LedgerEntry, error) {
	entry := reward.LedgerEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    amount,
		Source:    source,
		RelatedID: relatedID,
		CreatedAt: time.Now().UTC(),
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return reward.LedgerEntry{}, err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO accounts (user_id, timezone, balance, created_at, updated_at)
		VALUES ($1, '', 0, now(), now())
		ON CONFLICT (user_id) DO NOTHING
	`, userID); err != nil {
		return reward.LedgerEntry{}, fmt.Errorf("ensure account: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, user_id, amount, source, related_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.ID, entry.UserID, entry.Amount, entry.Source, entry.RelatedID, entry.CreatedAt); err != nil {
		return reward.LedgerEntry{}, fmt.Errorf("append entry: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = balance + $2, updated_at = now()
		WHERE user_id = $1
	`, userID, amount); err != nil {
		return reward.LedgerEntry{}, fmt.Errorf("apply credit: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return reward.LedgerEntry{}, err
	}
	return entry, nil
}

func (s *Store) Debit(ctx context.Context, userID string, amount int64, source reward.SourceKind, relatedID string) (reward.LedgerEntry, error) {
	entry := reward.LedgerEntry{
		ID:        uuid.NewString(),
		UserID:    userID,
		Amount:    -amount,
		Source:    source,
		RelatedID: relatedID,
		CreatedAt: time.Now().UTC(),
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return reward.LedgerEntry{}, err
	}
	defer tx.Rollback() //nolint:errcheck

	// The balance guard is part of the update itself; no separate read.
	res, err := tx.ExecContext(ctx, `
		UPDATE accounts
		SET balance = balance - $2, updated_at = now()
		WHERE user_id = $1 AND balance >= $2
	`, userID, amount)
	if err != nil {
		return reward.LedgerEntry{}, fmt.Errorf("apply debit: %w", err)
	}
	if rows, _ := res.RowsAffected(); rows == 0 {
		return reward.LedgerEntry{}, reward.ErrInsufficientBalance
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_entries (id, user_id, amount, source, related_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.ID, entry.UserID, entry.Amount, entry.Source, entry.RelatedID, entry.CreatedAt); err != nil {
		return reward.LedgerEntry{}, fmt.Errorf("append entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return reward.LedgerEntry{}, err
	}
	return entry, nil
}

type entryRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Amount    int64     `db:"amount"`
	Source    string    `db:"source"`
	RelatedID string    `db:"related_id"`
	CreatedAt time.Time `db:"created_at"`
}

func (s *Store) ListEntries(ctx context.Context, userID string, limit, offset int) ([]reward.LedgerEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []entryRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, amount, source, related_id, created_at
		FROM ledger_entries
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	result := make([]reward.LedgerEntry, 0, len(rows))
	for _, r := range rows {
		result = append(result, reward.LedgerEntry{
			ID:        r.ID,
			UserID:    r.UserID,
			Amount:    r.Amount,
			Source:    reward.SourceKind(r.Source),
			RelatedID: r.RelatedID,
			CreatedAt: r.CreatedAt,
		})
	}
	return result, nil
}

func (s *Store) SumEntries(ctx context.Context, userID string) (int64, error) {
	var sum int64
	err := s.db.GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE user_id = $1
	`, userID)
	return sum, err
}

func (s *Store) SumCredited(ctx context.Context, userID string) (int64, error) {
	var sum int64
	err := s.db.GetContext(ctx, &sum, `
		SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE user_id = $1 AND amount > 0
	`, userID)
	return sum, err
}

// DailyActionStore -----------------------------------------------------------

func (s *Store) ClaimAction(ctx context.Context, userID, localDate string, kind reward.ActionKind) (bool, error) {
	column, ok := actionColumns[kind]
	if !ok {
		return false, fmt.Errorf("unknown action kind %q", kind)
	}

	// One statement decides the winner: a row comes back only when this call
	// inserted the day or flipped the flag from false to true.
	query := fmt.Sprintf(`
		INSERT INTO daily_actions (user_id, local_date, %[1]s, created_at, updated_at)
		VALUES ($1, $2, TRUE, now(), now())
		ON CONFLICT (user_id, local_date)
		DO UPDATE SET %[1]s = TRUE, updated_at = now()
		WHERE daily_actions.%[1]s = FALSE
		RETURNING user_id
	`, column)

	var claimed string
	err := s.db.GetContext(ctx, &claimed, query, userID, localDate)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim %s for %s on %s: %w", kind, userID, localDate, err)
	}
	return true, nil
}

type dailyRow struct {
	UserID           string    `db:"user_id"`
	LocalDate        string    `db:"local_date"`
	Ritual           bool      `db:"ritual"`
	Checkin          bool      `db:"checkin"`
	WallPost         bool      `db:"wall_post"`
	AIChat           bool      `db:"ai_chat"`
	NoContactCheckin bool      `db:"no_contact_checkin"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (s *Store) GetDailyRecord(ctx context.Context, userID, localDate string) (daily.Record, error) {
	var row dailyRow
	err := s.db.GetContext(ctx, &row, `
		SELECT user_id, local_date, ritual, checkin, wall_post, ai_chat, no_contact_checkin, created_at, updated_at
		FROM daily_actions
		WHERE user_id = $1 AND local_date = $2
	`, userID, localDate)
	if errors.Is(err, sql.ErrNoRows) {
		return daily.Record{UserID: userID, LocalDate: localDate, Actions: map[reward.ActionKind]bool{}}, nil
	}
	if err != nil {
		return daily.Record{}, err
	}
	return daily.Record{
		UserID:    row.UserID,
		LocalDate: row.LocalDate,
		Actions: map[reward.ActionKind]bool{
			reward.ActionRitual:           row.Ritual,
			reward.ActionCheckin:          row.Checkin,
			reward.ActionWallPost:         row.WallPost,
			reward.ActionAIChat:           row.AIChat,
			reward.ActionNoContactCheckin: row.NoContactCheckin,
		},
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

func (s *Store) CountActions(ctx context.Context, userID string) (int64, map[reward.ActionKind]int64, error) {
	var counts struct {
		Ritual           int64 `db:"ritual"`
		Checkin          int64 `db:"checkin"`
		WallPost         int64 `db:"wall_post"`
		AIChat           int64 `db:"ai_chat"`
		NoContactCheckin int64 `db:"no_contact_checkin"`
	}
	err := s.db.GetContext(ctx, &counts, `
		SELECT
			COUNT(*) FILTER (WHERE ritual)             AS ritual,
			COUNT(*) FILTER (WHERE checkin)            AS checkin,
			COUNT(*) FILTER (WHERE wall_post)          AS wall_post,
			COUNT(*) FILTER (WHERE ai_chat)            AS ai_chat,
			COUNT(*) FILTER (WHERE no_contact_checkin) AS no_contact_checkin
		FROM daily_actions
		WHERE user_id = $1
	`, userID)
	if err != nil {
		return 0, nil, err
	}
	byKind := map[reward.ActionKind]int64{
		reward.ActionRitual:           counts.Ritual,
		reward.ActionCheckin:          counts.Checkin,
		reward.ActionWallPost:         counts.WallPost,
		reward.ActionAIChat:           counts.AIChat,
		reward.ActionNoContactCheckin: counts.NoContactCheckin,
	}
	var total int64
	for _, n := range byKind {
		total += n
	}
	return total, byKind, nil
}

// StreakStore ----------------------------------------------------------------

type streakRow struct {
	UserID           string    `db:"user_id"`
	StreakType       string    `db:"streak_type"`
	Current          int       `db:"current"`
	Longest          int       `db:"longest"`
	LastAdvancedDate string    `db:"last_advanced_date"`
	ShieldsUsedWeek  int       `db:"shields_used_week"`
	WeekWindowStart  string    `db:"week_window_start"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (r streakRow) toDomain() streak.State {
	return streak.State{
		UserID:              r.UserID,
		Type:                streak.Type(r.StreakType),
		Current:             r.Current,
		Longest:             r.Longest,
		LastAdvancedDate:    r.LastAdvancedDate,
		ShieldsUsedThisWeek: r.ShieldsUsedWeek,
		WeekWindowStart:     r.WeekWindowStart,
		UpdatedAt:           r.UpdatedAt,
	}
}

func (s *Store) GetStreak(ctx context.Context, userID string, typ streak.Type) (streak.State, bool, error) {
	var row streakRow
	err := s.db.GetContext(ctx, &row, `
		SELECT user_id, streak_type, current, longest, last_advanced_date, shields_used_week, week_window_start, updated_at
		FROM streak_states
		WHERE user_id = $1 AND streak_type = $2
	`, userID, string(typ))
	if errors.Is(err, sql.ErrNoRows) {
		return streak.State{}, false, nil
	}
	if err != nil {
		return streak.State{}, false, err
	}
	return row.toDomain(), true, nil
}

func (s *Store) ListStreaks(ctx context.Context, userID string) ([]streak.State, error) {
	var rows []streakRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT user_id, streak_type, current, longest, last_advanced_date, shields_used_week, week_window_start, updated_at
		FROM streak_states
		WHERE user_id = $1
		ORDER BY streak_type
	`, userID)
	if err != nil {
		return nil, err
	}
	result := make([]streak.State, 0, len(rows))
	for _, r := range rows {
		result = append(result, r.toDomain())
	}
	return result, nil
}

func (s *Store) SaveStreak(ctx context.Context, state streak.State) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO streak_states (user_id, streak_type, current, longest, last_advanced_date, shields_used_week, week_window_start, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (user_id, streak_type)
		DO UPDATE SET current = $3, longest = $4, last_advanced_date = $5, shields_used_week = $6, week_window_start = $7, updated_at = now()
	`, state.UserID, string(state.Type), state.Current, state.Longest, state.LastAdvancedDate, state.ShieldsUsedThisWeek, state.WeekWindowStart)
	return err
}

// QuotaStore -----------------------------------------------------------------

type quotaRow struct {
	UserID         string        `db:"user_id"`
	Resource       string        `db:"resource"`
	Tier           string        `db:"tier"`
	Used           int64         `db:"used"`
	Cap            sql.NullInt64 `db:"cap"`
	SoftCap        int64         `db:"soft_cap"`
	PurchasedExtra int64         `db:"purchased_extra"`
	ResetAt        time.Time     `db:"reset_at"`
	UpdatedAt      time.Time     `db:"updated_at"`
}

func (r quotaRow) toDomain() quota.State {
	hardCap := int64(-1)
	if r.Cap.Valid {
		hardCap = r.Cap.Int64
	}
	return quota.State{
		UserID:         r.UserID,
		Resource:       quota.ResourceKind(r.Resource),
		Tier:           reward.Tier(r.Tier),
		Used:           r.Used,
		Cap:            hardCap,
		SoftCap:        r.SoftCap,
		PurchasedExtra: r.PurchasedExtra,
		ResetAt:        r.ResetAt,
		UpdatedAt:      r.UpdatedAt,
	}
}

func nullableCap(hardCap int64) sql.NullInt64 {
	if hardCap < 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: hardCap, Valid: true}
}

func (s *Store) InitQuota(ctx context.Context, state quota.State) (quota.State, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO quota_states (user_id, resource, tier, used, cap, soft_cap, purchased_extra, reset_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (user_id, resource) DO NOTHING
	`, state.UserID, string(state.Resource), string(state.Tier), state.Used, nullableCap(state.Cap), state.SoftCap, state.PurchasedExtra, state.ResetAt)
	if err != nil && !isUniqueViolation(err) {
		return quota.State{}, fmt.Errorf("init quota: %w", err)
	}
	st, _, err := s.GetQuota(ctx, state.UserID, state.Resource)
	return st, err
}

func (s *Store) GetQuota(ctx context.Context, userID string, resource quota.ResourceKind) (quota.State, bool, error) {
	var row quotaRow
	err := s.db.GetContext(ctx, &row, `
		SELECT user_id, resource, tier, used, cap, soft_cap, purchased_extra, reset_at, updated_at
		FROM quota_states
		WHERE user_id = $1 AND resource = $2
	`, userID, string(resource))
	if errors.Is(err, sql.ErrNoRows) {
		return quota.State{}, false, nil
	}
	if err != nil {
		return quota.State{}, false, err
	}
	return row.toDomain(), true, nil
}

func (s *Store) ConsumeQuota(ctx context.Context, userID string, resource quota.ResourceKind, n int64) (quota.State, error) {
	var row quotaRow
	err := s.db.GetContext(ctx, &row, `
		UPDATE quota_states
		SET used = used + $3, updated_at = now()
		WHERE user_id = $1 AND resource = $2
		  AND (cap IS NULL OR used + $3 <= cap + purchased_extra)
		RETURNING user_id, resource, tier, used, cap, soft_cap, purchased_extra, reset_at, updated_at
	`, userID, string(resource), n)
	if errors.Is(err, sql.ErrNoRows) {
		// Either the row is missing or the cap is exhausted; look once to
		// tell them apart. The guard above remains the only writer.
		if _, ok, getErr := s.GetQuota(ctx, userID, resource); getErr != nil {
			return quota.State{}, getErr
		} else if !ok {
			return quota.State{}, fmt.Errorf("quota state for %s/%s not found", userID, resource)
		}
		return quota.State{}, quota.ErrQuotaExceeded
	}
	if err != nil {
		return quota.State{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) ResetQuotaIfElapsed(ctx context.Context, userID string, resource quota.ResourceKind, now, nextReset time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE quota_states
		SET used = 0, reset_at = $4, updated_at = now()
		WHERE user_id = $1 AND resource = $2 AND reset_at <= $3
	`, userID, string(resource), now, nextReset)
	return err
}

func (s *Store) AddPurchasedExtra(ctx context.Context, userID string, resource quota.ResourceKind, n int64) (quota.State, error) {
	var row quotaRow
	err := s.db.GetContext(ctx, &row, `
		UPDATE quota_states
		SET purchased_extra = purchased_extra + $3, updated_at = now()
		WHERE user_id = $1 AND resource = $2
		RETURNING user_id, resource, tier, used, cap, soft_cap, purchased_extra, reset_at, updated_at
	`, userID, string(resource), n)
	if errors.Is(err, sql.ErrNoRows) {
		return quota.State{}, fmt.Errorf("quota state for %s/%s not found", userID, resource)
	}
	if err != nil {
		return quota.State{}, err
	}
	return row.toDomain(), nil
}

func (s *Store) SetTier(ctx context.Context, userID string, resource quota.ResourceKind, tier reward.Tier, cap, softCap int64, resetAt time.Time) (quota.State, error) {
	var row quotaRow
	err := s.db.GetContext(ctx, &row, `
		UPDATE quota_states
		SET tier = $3, cap = $4, soft_cap = $5, reset_at = $6, updated_at = now()
		WHERE user_id = $1 AND resource = $2
		RETURNING user_id, resource, tier, used, cap, soft_cap, purchased_extra, reset_at, updated_at
	`, userID, string(resource), string(tier), nullableCap(cap), softCap, resetAt)
	if errors.Is(err, sql.ErrNoRows) {
		return quota.State{}, fmt.Errorf("quota state for %s/%s not found", userID, resource)
	}
	if err != nil {
		return quota.State{}, err
	}
	return row.toDomain(), nil
}

// AchievementStore -----------------------------------------------------------

func (s *Store) InsertAward(ctx context.Context, award achievement.Awarded) (bool, error) {
	if award.ID == "" {
		award.ID = uuid.NewString()
	}
	if award.EarnedAt.IsZero() {
		award.EarnedAt = time.Now().UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO awarded_achievements (id, user_id, achievement_id, source_event, earned_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, achievement_id) DO NOTHING
	`, award.ID, award.UserID, award.AchievementID, award.SourceEvent, award.EarnedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert award: %w", err)
	}
	rows, _ := res.RowsAffected()
	return rows == 1, nil
}

type awardRow struct {
	ID            string    `db:"id"`
	UserID        string    `db:"user_id"`
	AchievementID string    `db:"achievement_id"`
	SourceEvent   string    `db:"source_event"`
	EarnedAt      time.Time `db:"earned_at"`
}

func (s *Store) ListAwards(ctx context.Context, userID string) ([]achievement.Awarded, error) {
	var rows []awardRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, achievement_id, source_event, earned_at
		FROM awarded_achievements
		WHERE user_id = $1
		ORDER BY earned_at
	`, userID)
	if err != nil {
		return nil, err
	}
	result := make([]achievement.Awarded, 0, len(rows))
	for _, r := range rows {
		result = append(result, achievement.Awarded{
			ID:            r.ID,
			UserID:        r.UserID,
			AchievementID: r.AchievementID,
			SourceEvent:   r.SourceEvent,
			EarnedAt:      r.EarnedAt,
		})
	}
	return result, nil
}
