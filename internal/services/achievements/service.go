// Package achievements evaluates the declarative badge rule table against a
// user's aggregate stats and records awards exactly once.
package achievements

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mendwell/reward-engine/internal/domain/achievement"
	"github.com/mendwell/reward-engine/internal/domain/quota"
	"github.com/mendwell/reward-engine/internal/domain/reward"
	"github.com/mendwell/reward-engine/internal/domain/streak"
	"github.com/mendwell/reward-engine/internal/services/ledger"
	"github.com/mendwell/reward-engine/internal/storage"
	"github.com/mendwell/reward-engine/pkg/logger"
)

// Service is the achievement evaluator. It never mutates stats; it only
// reads aggregates, inserts award rows and credits bonuses.
type Service struct {
	store  storage.Store
	ledger *ledger.Service
	rules  []achievement.Definition
	log    *logger.Logger
}

// New constructs an evaluator. A nil rule table falls back to the defaults.
func New(store storage.Store, ledgerSvc *ledger.Service, rules []achievement.Definition, log *logger.Logger) (*Service, error) {
	if rules == nil {
		rules = DefaultRules()
	}
	if err := ValidateRules(rules); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewDefault("achievements")
	}
	return &Service{store: store, ledger: ledgerSvc, rules: rules, log: log}, nil
}

// Rules exposes the active rule table.
func (s *Service) Rules() []achievement.Definition {
	return s.rules
}

// buildStats assembles the aggregate snapshot every rule is compared against.
func (s *Service) buildStats(ctx context.Context, userID string) (achievement.Stats, error) {
	total, byKind, err := s.store.CountActions(ctx, userID)
	if err != nil {
		return achievement.Stats{}, err
	}
	credited, err := s.store.SumCredited(ctx, userID)
	if err != nil {
		return achievement.Stats{}, err
	}
	streaks, err := s.store.ListStreaks(ctx, userID)
	if err != nil {
		return achievement.Stats{}, err
	}

	stats := achievement.Stats{
		UserID:             userID,
		Tier:               reward.TierFree,
		TotalActions:       total,
		ActionsByKind:      byKind,
		CumulativeCredited: credited,
		Streaks:            make(map[streak.Type]int64, len(streaks)),
		LongestStreaks:     make(map[streak.Type]int64, len(streaks)),
	}
	for _, st := range streaks {
		stats.Streaks[st.Type] = int64(st.Current)
		stats.LongestStreaks[st.Type] = int64(st.Longest)
	}
	if qs, found, err := s.store.GetQuota(ctx, userID, quota.ResourceAIMessages); err != nil {
		return achievement.Stats{}, err
	} else if found {
		stats.Tier = qs.Tier
	}
	return stats, nil
}

// metricValue resolves a rule's metric against the stats snapshot. Composite
// rules measure their base metric; prerequisite checks happen separately.
func metricValue(def achievement.Definition, stats achievement.Stats) int64 {
	metric := def.Metric
	if metric == achievement.MetricComposite {
		metric = def.Base
	}
	switch metric {
	case achievement.MetricStreak:
		return stats.Streaks[def.StreakType]
	case achievement.MetricTotalActions:
		if def.Action != "" {
			return stats.ActionsByKind[def.Action]
		}
		return stats.TotalActions
	case achievement.MetricCumulativeCurrency:
		return stats.CumulativeCredited
	default:
		return 0
	}
}

// Evaluate runs the whole rule table against fresh stats and returns the
// awards earned by this pass. Awards earned earlier in the pass count as
// prerequisites for composites later in the table. Concurrent evaluations of
// the same user are safe: the award insert is first-writer-wins, and only the
// inserting call credits the bonus.
func (s *Service) Evaluate(ctx context.Context, userID, sourceEvent string) ([]achievement.Awarded, error) {
	if userID == "" {
		return nil, reward.ValidationError{Field: "user_id", Reason: "must not be empty"}
	}

	stats, err := s.buildStats(ctx, userID)
	if err != nil {
		return nil, err
	}
	earned, err := s.store.ListAwards(ctx, userID)
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(earned))
	for _, a := range earned {
		have[a.AchievementID] = true
	}

	var awarded []achievement.Awarded
	for _, def := range s.rules {
		if have[def.ID] {
			continue
		}
		if def.RequiresTierAtLeast != "" && stats.Tier.Rank() < def.RequiresTierAtLeast.Rank() {
			continue
		}
		if def.Metric == achievement.MetricComposite {
			missing := false
			for _, dep := range def.CompositeOf {
				if !have[dep] {
					missing = true
					break
				}
			}
			if missing {
				continue
			}
		}
		if !def.Comparator.Satisfied(metricValue(def, stats), def.Threshold) {
			continue
		}

		award := achievement.Awarded{
			ID:            uuid.NewString(),
			UserID:        userID,
			AchievementID: def.ID,
			SourceEvent:   sourceEvent,
			EarnedAt:      time.Now().UTC(),
		}
		inserted, err := s.store.InsertAward(ctx, award)
		if err != nil {
			return awarded, err
		}
		if !inserted {
			// Another evaluation got there first; it owns the bonus.
			have[def.ID] = true
			continue
		}
		have[def.ID] = true
		awarded = append(awarded, award)
		s.log.Infof("awarded %s to %s (%s)", def.ID, userID, sourceEvent)

		if def.Bonus > 0 {
			if _, err := s.ledger.Credit(ctx, userID, def.Bonus, reward.SourceBadgeBonus, def.ID); err != nil {
				return awarded, err
			}
		}
	}
	return awarded, nil
}

// Earned lists the user's awards.
func (s *Service) Earned(ctx context.Context, userID string) ([]achievement.Awarded, error) {
	if userID == "" {
		return nil, reward.ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	return s.store.ListAwards(ctx, userID)
}

// Progress reports how far the user is toward each rule. Rules flagged
// hidden stay out of the list until the user has made any progress or has
// earned them.
func (s *Service) Progress(ctx context.Context, userID string) ([]achievement.Progress, error) {
	if userID == "" {
		return nil, reward.ValidationError{Field: "user_id", Reason: "must not be empty"}
	}

	stats, err := s.buildStats(ctx, userID)
	if err != nil {
		return nil, err
	}
	earned, err := s.store.ListAwards(ctx, userID)
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(earned))
	for _, a := range earned {
		have[a.AchievementID] = true
	}

	out := make([]achievement.Progress, 0, len(s.rules))
	for _, def := range s.rules {
		current := metricValue(def, stats)
		isEarned := have[def.ID]
		if def.HiddenUntilProgress && current == 0 && !isEarned {
			continue
		}
		if current > def.Threshold {
			current = def.Threshold
		}
		percent := float64(current) / float64(def.Threshold) * 100
		if isEarned {
			current = def.Threshold
			percent = 100
		}
		out = append(out, achievement.Progress{
			AchievementID: def.ID,
			Title:         def.Title,
			Current:       current,
			Target:        def.Threshold,
			Percent:       percent,
			Earned:        isEarned,
		})
	}
	return out, nil
}
