// Package app wires the engine's components into one graph shared by the
// CLI commands, the HTTP API and the MCP server.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/rendis/lendflow/internal/actions"
	"github.com/rendis/lendflow/internal/engine"
	"github.com/rendis/lendflow/internal/expressions"
	"github.com/rendis/lendflow/internal/scheduler"
	"github.com/rendis/lendflow/internal/secrets"
	"github.com/rendis/lendflow/internal/store"
	"github.com/rendis/lendflow/internal/streaming"
	"github.com/rendis/lendflow/internal/validation"
)

// Config selects the store and tunes the engine.
type Config struct {
	DBPath        string
	Mail          actions.MailerConfig
	HTTP          actions.HTTPConfig
	Vault         secrets.VaultConfig // credentials are disabled when no key material is set
	ActionTimeout time.Duration
	BatchSize     int
	LeaseTimeout  time.Duration
	SweepInterval time.Duration
	Clock         clockwork.Clock
	Logger        *slog.Logger
}

// App holds the wired components.
type App struct {
	Store      *store.LibSQLStore
	Hub        *streaming.MemoryHub
	Registry   *actions.Registry
	Vault      *secrets.Vault
	Conditions *expressions.ConditionEvaluator
	Validator  *validation.WorkflowValidator
	Catalog    *engine.Catalog
	Dispatcher *engine.Dispatcher
	Ledger     *engine.Ledger
	Executor   *engine.Executor
	Sweeper    *engine.Sweeper
	Scheduler  *scheduler.Scheduler
	Clock      clockwork.Clock
	Logger     *slog.Logger
}

// New opens and migrates the store, then wires every component.
func New(ctx context.Context, cfg Config) (*App, error) {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	s, err := store.NewLibSQLStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}

	a, err := wire(s, cfg)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return a, nil
}

func wire(s *store.LibSQLStore, cfg Config) (*App, error) {
	a := &App{
		Store:    s,
		Hub:      streaming.NewMemoryHub(),
		Registry: actions.NewRegistry(),
		Clock:    cfg.Clock,
		Logger:   cfg.Logger,
	}

	deps := actions.BuiltinDeps{
		Notifications: s,
		Deals:         s,
		Mailer:        actions.NewHTTPMailer(cfg.Mail, cfg.HTTP),
		HTTP:          cfg.HTTP,
		Clock:         cfg.Clock,
		Logger:        cfg.Logger,
	}
	if cfg.Vault.Enabled() {
		vault, err := secrets.NewVault(s, cfg.Vault, cfg.Clock)
		if err != nil {
			return nil, fmt.Errorf("open credential vault: %w", err)
		}
		a.Vault = vault
		deps.Credentials = vault
	}

	chain, err := actions.RegisterBuiltins(a.Registry, deps)
	if err != nil {
		return nil, fmt.Errorf("register actions: %w", err)
	}

	a.Conditions, err = expressions.NewConditionEvaluator()
	if err != nil {
		return nil, fmt.Errorf("init condition engines: %w", err)
	}
	a.Validator, err = validation.NewWorkflowValidator(a.Registry, a.Conditions)
	if err != nil {
		return nil, fmt.Errorf("init validator: %w", err)
	}

	a.Catalog = engine.NewCatalog(s, a.Validator, cfg.Clock, cfg.Logger)
	a.Dispatcher = engine.NewDispatcher(a.Registry, engine.DispatcherConfig{
		ActionTimeout: cfg.ActionTimeout,
		Clock:         cfg.Clock,
		Logger:        cfg.Logger,
	})
	a.Ledger = engine.NewLedger(s, a.Hub, cfg.Clock, cfg.Logger)
	a.Executor = engine.NewExecutor(s, a.Ledger, a.Dispatcher, engine.ExecutorConfig{
		Conditions: a.Conditions,
		Hub:        a.Hub,
		Clock:      cfg.Clock,
		Logger:     cfg.Logger,
	})
	chain.SetRunner(a.Executor.ChainRunner())
	a.Sweeper = engine.NewSweeper(s, a.Dispatcher, a.Ledger, engine.SweeperConfig{
		BatchSize:    cfg.BatchSize,
		LeaseTimeout: cfg.LeaseTimeout,
		Hub:          a.Hub,
		Clock:        cfg.Clock,
		Logger:       cfg.Logger,
	})
	a.Scheduler = scheduler.New(s, a.Sweeper, a.Executor, scheduler.Config{
		Interval: cfg.SweepInterval,
		Clock:    cfg.Clock,
		Logger:   cfg.Logger,
	})
	return a, nil
}

// Close releases the store.
func (a *App) Close() error {
	return a.Store.Close()
}
