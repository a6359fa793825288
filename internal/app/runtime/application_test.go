package runtime

import (
	"context"
	"testing"
	"time"

	"github.com/mendwell/reward-engine/internal/domain/reward"
)

func TestNewApplicationWithoutDatabaseUsesMemoryStore(t *testing.T) {
	t.Setenv("DATABASE_DSN", "")
	t.Setenv("SERVER_PORT", "0")

	app, err := NewApplication()
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	defer func() {
		if err := app.Shutdown(context.Background()); err != nil {
			t.Fatalf("shutdown: %v", err)
		}
	}()

	// The engine is fully usable without a database.
	res, err := app.Engine().RecordAction(context.Background(), "u1", reward.ActionCheckin, "UTC", time.Now().UTC(), false)
	if err != nil {
		t.Fatalf("record action: %v", err)
	}
	if !res.Claimed {
		t.Fatal("first action should claim")
	}
}

func TestNewApplicationRejectsBadRulesPath(t *testing.T) {
	t.Setenv("DATABASE_DSN", "")
	t.Setenv("RULES_PATH", "/does/not/exist.yaml")

	if _, err := NewApplication(); err == nil {
		t.Fatal("missing rules file must fail startup")
	}
}
