package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/mendwell/reward-engine/internal/domain/reward"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("default port %d", cfg.Server.Port)
	}
	if cfg.Engine.FreeQuotaCap != 5 || cfg.Engine.MaxShieldsWeekly != 2 {
		t.Fatalf("unexpected engine defaults: %+v", cfg.Engine)
	}
	if cfg.Logging.Level != "info" {
		t.Fatalf("default log level %q", cfg.Logging.Level)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("FREE_QUOTA_CAP", "12")
	t.Setenv("AUDIT_SCHEDULE", "@every 10m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Fatalf("port %d", cfg.Server.Port)
	}
	if cfg.Engine.FreeQuotaCap != 12 {
		t.Fatalf("free cap %d", cfg.Engine.FreeQuotaCap)
	}
	if cfg.Engine.AuditSchedule != "@every 10m" {
		t.Fatalf("schedule %q", cfg.Engine.AuditSchedule)
	}
}

func TestLoadRewardTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rewards.yaml")
	doc := `rewards:
  ritual: 12
  checkin: 6
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	table, err := LoadRewardTable(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if table[reward.ActionRitual] != 12 || table[reward.ActionCheckin] != 6 {
		t.Fatalf("unexpected table: %+v", table)
	}
}

func TestLoadRewardTableRejectsUnknownAction(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rewards.yaml")
	if err := os.WriteFile(path, []byte("rewards:\n  bogus: 1\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadRewardTable(path); err == nil {
		t.Fatal("unknown action must be rejected")
	}
}
