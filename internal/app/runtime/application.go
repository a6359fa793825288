// Package runtime wires configuration, storage, the engine facade and the
// HTTP server into one process lifecycle.
package runtime

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	_ "github.com/lib/pq"

	"github.com/mendwell/reward-engine/internal/app"
	"github.com/mendwell/reward-engine/internal/app/integrity"
	"github.com/mendwell/reward-engine/internal/config"
	"github.com/mendwell/reward-engine/internal/httpapi"
	"github.com/mendwell/reward-engine/internal/services/achievements"
	"github.com/mendwell/reward-engine/internal/services/quotas"
	"github.com/mendwell/reward-engine/internal/storage"
	"github.com/mendwell/reward-engine/internal/storage/postgres"
	"github.com/mendwell/reward-engine/pkg/logger"
)

// Application wires core dependencies and manages the process lifecycle.
type Application struct {
	cfg        *config.Config
	log        *logger.Logger
	engine     *app.Application
	httpServer *http.Server
	auditor    *integrity.Auditor
	db         *sql.DB
}

// NewApplication constructs a fully wired application from the environment.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	})

	store, db, err := buildStore(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("configure store: %w", err)
	}

	opts := app.Options{
		Store:      store,
		MaxShields: cfg.Engine.MaxShieldsWeekly,
		Quota: quotas.Config{
			FreeCap:        cfg.Engine.FreeQuotaCap,
			PremiumSoftCap: cfg.Engine.PremiumSoftCap,
		},
		Logger: log,
	}
	if cfg.Engine.RulesPath != "" {
		rules, err := achievements.LoadRules(cfg.Engine.RulesPath)
		if err != nil {
			return nil, fmt.Errorf("load achievement rules: %w", err)
		}
		opts.Rules = rules
		log.Infof("loaded %d achievement rules from %s", len(rules), cfg.Engine.RulesPath)
	}
	if cfg.Engine.RewardsPath != "" {
		rewards, err := config.LoadRewardTable(cfg.Engine.RewardsPath)
		if err != nil {
			return nil, fmt.Errorf("load reward table: %w", err)
		}
		opts.Rewards = rewards
		log.Infof("loaded reward table from %s", cfg.Engine.RewardsPath)
	}

	engine, err := app.New(opts)
	if err != nil {
		return nil, err
	}

	limiter := httpapi.NewRateLimiter(cfg.Engine.RateLimitRPS, cfg.Engine.RateLimitBurst)
	handler := httpapi.NewHandler(engine, log, limiter)
	httpSrv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return &Application{
		cfg:        cfg,
		log:        log,
		engine:     engine,
		httpServer: httpSrv,
		auditor:    integrity.New(engine.Store(), cfg.Engine.AuditSchedule, log),
		db:         db,
	}, nil
}

// Engine exposes the facade, mainly for tests and tooling.
func (a *Application) Engine() *app.Application {
	return a.engine
}

// Run starts the auditor and HTTP server and blocks until the context is
// cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	if err := a.auditor.Start(ctx); err != nil {
		return fmt.Errorf("start auditor: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Infof("HTTP server listening on %s", a.httpServer.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Shutdown stops the auditor and drains the HTTP server.
func (a *Application) Shutdown(ctx context.Context) error {
	a.auditor.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.WithError(err).Warn("error closing database connection")
		}
	}
	return nil
}

// buildStore opens Postgres when a DSN is configured and falls back to the
// in-memory store otherwise. Migrations run on every start.
func buildStore(cfg *config.Config, log *logger.Logger) (storage.Store, *sql.DB, error) {
	if cfg.Database.DSN == "" {
		log.Warn("no DATABASE_DSN configured; using the in-memory store")
		return nil, nil, nil
	}

	db, err := openDatabase(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	if err := postgres.Migrate(db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}
	return postgres.New(db), db, nil
}

func openDatabase(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
