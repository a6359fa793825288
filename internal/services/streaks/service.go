// Package streaks maintains consecutive-day counters with shield-based grace
// days. Daily idempotency is delegated to the tracker: callers claim the
// day's check-in first, so at most one writer per (user, type, day) reaches
// this service.
package streaks

import (
	"context"

	"github.com/mendwell/reward-engine/internal/clock"
	"github.com/mendwell/reward-engine/internal/domain/reward"
	"github.com/mendwell/reward-engine/internal/domain/streak"
	"github.com/mendwell/reward-engine/internal/storage"
	"github.com/mendwell/reward-engine/pkg/logger"
)

// DefaultMaxShieldsPerWeek caps shield uses inside one rolling 7-day window.
const DefaultMaxShieldsPerWeek = 2

// Service advances, shields and resets streaks.
type Service struct {
	store      storage.StreakStore
	maxShields int
	log        *logger.Logger
}

// New constructs a streak service. maxShields <= 0 selects the default.
func New(store storage.StreakStore, maxShields int, log *logger.Logger) *Service {
	if maxShields <= 0 {
		maxShields = DefaultMaxShieldsPerWeek
	}
	if log == nil {
		log = logger.NewDefault("streaks")
	}
	return &Service{store: store, maxShields: maxShields, log: log}
}

// CheckIn records a qualifying check-in for the user's local date `today`.
//
// Transitions, per the gap between today and the last advanced date:
//   - same day      → no-op (idempotent)
//   - exactly 1 day → advance, current += 1
//   - longer gap    → shield (only when explicitly requested and budget
//     remains, current preserved) or reset (current = 1)
//
// Longest never decreases.
func (s *Service) CheckIn(ctx context.Context, userID string, typ streak.Type, today string, useShield bool) (streak.Result, error) {
	if userID == "" {
		return streak.Result{}, reward.ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	if !typ.Valid() {
		return streak.Result{}, reward.ValidationError{Field: "streak_type", Reason: "unknown streak type"}
	}

	st, found, err := s.store.GetStreak(ctx, userID, typ)
	if err != nil {
		return streak.Result{}, err
	}
	if !found {
		st = streak.State{UserID: userID, Type: typ}
	}

	if st.LastAdvancedDate == today {
		return streak.Result{Current: st.Current, Longest: st.Longest}, nil
	}

	result := streak.Result{Advanced: true}

	switch {
	case st.LastAdvancedDate == "":
		// First check-in ever: day one of a new streak.
		st.Current = 1

	default:
		gap, err := clock.DaysBetween(st.LastAdvancedDate, today)
		if err != nil {
			return streak.Result{}, err
		}
		switch {
		case gap < 0:
			// Clock went backwards relative to the stored date; treat as a
			// same-day no-op rather than corrupting the counter.
			return streak.Result{Current: st.Current, Longest: st.Longest}, nil
		case gap == 1:
			st.Current++
		default:
			if useShield && s.consumeShield(&st, today) {
				// Streak preserved across the gap; current unchanged.
				result.Shielded = true
				result.Advanced = false
				s.log.Infof("shield used by %s on %s streak (%d/%d this window)", userID, typ, st.ShieldsUsedThisWeek, s.maxShields)
			} else {
				st.Current = 1
			}
		}
	}

	st.LastAdvancedDate = today
	if st.Current > st.Longest {
		st.Longest = st.Current
	}

	if err := s.store.SaveStreak(ctx, st); err != nil {
		return streak.Result{}, err
	}

	result.Current = st.Current
	result.Longest = st.Longest
	return result, nil
}

// consumeShield rolls the 7-day window forward if it has elapsed, then takes
// one shield if budget remains. The window anchors at the first use inside
// it, not at a calendar week.
func (s *Service) consumeShield(st *streak.State, today string) bool {
	if st.WeekWindowStart != "" {
		elapsed, err := clock.DaysBetween(st.WeekWindowStart, today)
		if err == nil && elapsed >= 7 {
			st.ShieldsUsedThisWeek = 0
			st.WeekWindowStart = ""
		}
	}
	if st.ShieldsUsedThisWeek >= s.maxShields {
		return false
	}
	if st.WeekWindowStart == "" {
		st.WeekWindowStart = today
	}
	st.ShieldsUsedThisWeek++
	return true
}

// Streaks lists the user's streak states.
func (s *Service) Streaks(ctx context.Context, userID string) ([]streak.State, error) {
	if userID == "" {
		return nil, reward.ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	return s.store.ListStreaks(ctx, userID)
}
