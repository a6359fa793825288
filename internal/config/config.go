// Package config loads runtime configuration from the environment, with an
// optional YAML file for the reward and achievement rule tables.
package config

import (
	"fmt"
	"os"

	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"

	"github.com/mendwell/reward-engine/internal/domain/reward"
)

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string `env:"SERVER_HOST,default=0.0.0.0"`
	Port int    `env:"SERVER_PORT,default=8080"`
}

// DatabaseConfig controls the Postgres connection. An empty DSN selects the
// in-memory store.
type DatabaseConfig struct {
	DSN             string `env:"DATABASE_DSN"`
	MaxOpenConns    int    `env:"DATABASE_MAX_OPEN_CONNS,default=20"`
	MaxIdleConns    int    `env:"DATABASE_MAX_IDLE_CONNS,default=5"`
	ConnMaxLifetime int    `env:"DATABASE_CONN_MAX_LIFETIME_SECONDS,default=300"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level      string `env:"LOG_LEVEL,default=info"`
	Format     string `env:"LOG_FORMAT,default=json"`
	Output     string `env:"LOG_OUTPUT,default=stdout"`
	FilePrefix string `env:"LOG_FILE_PREFIX"`
}

// EngineConfig tunes the reward engine itself.
type EngineConfig struct {
	RulesPath        string  `env:"RULES_PATH"`   // achievement rule table (YAML); empty selects compiled-in defaults
	RewardsPath      string  `env:"REWARDS_PATH"` // reward table (YAML); empty selects compiled-in defaults
	FreeQuotaCap     int64   `env:"FREE_QUOTA_CAP,default=5"`
	PremiumSoftCap   int64   `env:"PREMIUM_SOFT_CAP,default=200"`
	MaxShieldsWeekly int     `env:"MAX_SHIELDS_PER_WEEK,default=2"`
	AuditSchedule    string  `env:"AUDIT_SCHEDULE,default=@hourly"`
	RateLimitRPS     float64 `env:"RATE_LIMIT_RPS,default=5"`
	RateLimitBurst   int     `env:"RATE_LIMIT_BURST,default=10"`
}

// Config is the full runtime configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Logging  LoggingConfig
	Engine   EngineConfig
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}
	return &cfg, nil
}

// rewardFile is the YAML document shape for a reward table override.
type rewardFile struct {
	Rewards map[reward.ActionKind]int64 `yaml:"rewards"`
}

// LoadRewardTable reads a reward table from YAML. Every key must be a known
// action kind and every amount non-negative.
func LoadRewardTable(path string) (map[reward.ActionKind]int64, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reward table: %w", err)
	}
	var doc rewardFile
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse reward table: %w", err)
	}
	if len(doc.Rewards) == 0 {
		return nil, fmt.Errorf("reward table %s is empty", path)
	}
	for kind, amount := range doc.Rewards {
		if !kind.Valid() {
			return nil, fmt.Errorf("reward table: unknown action %q", kind)
		}
		if amount < 0 {
			return nil, fmt.Errorf("reward table: negative amount for %q", kind)
		}
	}
	return doc.Rewards, nil
}
