package achievements

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mendwell/reward-engine/internal/domain/achievement"
	"github.com/mendwell/reward-engine/internal/domain/reward"
	"github.com/mendwell/reward-engine/internal/domain/streak"
)

// ruleFile is the YAML document shape for an achievement rule table.
type ruleFile struct {
	Achievements []achievement.Definition `yaml:"achievements"`
}

// LoadRules reads an achievement rule table from a YAML file and validates it.
func LoadRules(path string) ([]achievement.Definition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules: %w", err)
	}
	var doc ruleFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	if err := ValidateRules(doc.Achievements); err != nil {
		return nil, err
	}
	return doc.Achievements, nil
}

// ValidateRules rejects malformed rule tables before they reach the
// evaluator: duplicate IDs, unknown metrics, and composites that reference
// rules defined after themselves or not at all.
func ValidateRules(defs []achievement.Definition) error {
	seen := make(map[string]bool, len(defs))
	for i, def := range defs {
		if def.ID == "" {
			return fmt.Errorf("rule %d: missing id", i)
		}
		if seen[def.ID] {
			return fmt.Errorf("rule %s: duplicate id", def.ID)
		}
		if def.Threshold <= 0 {
			return fmt.Errorf("rule %s: threshold must be positive", def.ID)
		}
		switch def.Metric {
		case achievement.MetricStreak:
			if !def.StreakType.Valid() {
				return fmt.Errorf("rule %s: streak metric needs a streak_type", def.ID)
			}
		case achievement.MetricTotalActions:
			if def.Action != "" && !def.Action.Valid() {
				return fmt.Errorf("rule %s: unknown action %q", def.ID, def.Action)
			}
		case achievement.MetricCumulativeCurrency:
		case achievement.MetricComposite:
			if len(def.CompositeOf) == 0 {
				return fmt.Errorf("rule %s: composite needs prerequisites", def.ID)
			}
			for _, dep := range def.CompositeOf {
				if !seen[dep] {
					return fmt.Errorf("rule %s: prerequisite %q must be defined earlier in the table", def.ID, dep)
				}
			}
			switch def.Base {
			case achievement.MetricStreak:
				if !def.StreakType.Valid() {
					return fmt.Errorf("rule %s: streak base needs a streak_type", def.ID)
				}
			case achievement.MetricTotalActions, achievement.MetricCumulativeCurrency:
			default:
				return fmt.Errorf("rule %s: unknown composite base %q", def.ID, def.Base)
			}
		default:
			return fmt.Errorf("rule %s: unknown metric %q", def.ID, def.Metric)
		}
		seen[def.ID] = true
	}
	return nil
}

// DefaultRules is the compiled-in rule table, used when no YAML file is
// configured. Composites come after their prerequisites.
func DefaultRules() []achievement.Definition {
	return []achievement.Definition{
		{
			ID:         "first_ritual",
			Title:      "First Ritual",
			Metric:     achievement.MetricTotalActions,
			Action:     reward.ActionRitual,
			Comparator: achievement.CmpAtLeast,
			Threshold:  1,
			Bonus:      5,
		},
		{
			ID:         "ritual_streak_7",
			Title:      "Seven-Day Ritualist",
			Metric:     achievement.MetricStreak,
			StreakType: streak.TypeRitual,
			Comparator: achievement.CmpAtLeast,
			Threshold:  7,
			Bonus:      25,
		},
		{
			ID:         "ritual_streak_30",
			Title:      "Thirty-Day Ritualist",
			Metric:     achievement.MetricStreak,
			StreakType: streak.TypeRitual,
			Comparator: achievement.CmpAtLeast,
			Threshold:  30,
			Bonus:      100,
		},
		{
			ID:         "no_contact_14",
			Title:      "Two Weeks Strong",
			Metric:     achievement.MetricStreak,
			StreakType: streak.TypeNoContact,
			Comparator: achievement.CmpAtLeast,
			Threshold:  14,
			Bonus:      50,
		},
		{
			ID:         "century_saver",
			Title:      "Century Saver",
			Metric:     achievement.MetricCumulativeCurrency,
			Comparator: achievement.CmpAtLeast,
			Threshold:  100,
			Bonus:      10,
		},
		{
			ID:                  "wall_regular",
			Title:               "Wall Regular",
			Metric:              achievement.MetricTotalActions,
			Action:              reward.ActionWallPost,
			Comparator:          achievement.CmpAtLeast,
			Threshold:           10,
			HiddenUntilProgress: true,
			Bonus:               15,
		},
		{
			ID:                  "devoted_premium",
			Title:               "Devoted",
			Metric:              achievement.MetricTotalActions,
			Comparator:          achievement.CmpAtLeast,
			Threshold:           50,
			RequiresTierAtLeast: reward.TierPremium,
			Bonus:               40,
		},
		{
			ID:          "healing_journey",
			Title:       "Healing Journey",
			Metric:      achievement.MetricComposite,
			Base:        achievement.MetricTotalActions,
			Comparator:  achievement.CmpAtLeast,
			Threshold:   30,
			CompositeOf: []string{"ritual_streak_7", "century_saver"},
			Bonus:       75,
		},
	}
}
