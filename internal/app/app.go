// Package app assembles the runtime shared by the CLI commands and the HTTP
// server: config, logger, database, engine and scheduler.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"phaseline/internal/config"
	"phaseline/internal/db"
	"phaseline/internal/engine"
	"phaseline/internal/migrate"
	"phaseline/internal/notify"
	"phaseline/internal/repo"
	"phaseline/internal/scheduler"
	"phaseline/internal/telemetry"
)

// Options select the workspace and override config values from flags or
// the environment. Empty fields keep the file or default value.
type Options struct {
	Workspace  string
	ConfigFile string
	LogLevel   string
	LogJSON    bool
}

type Runtime struct {
	Config    *config.Config
	Logger    hclog.Logger
	DB        *sql.DB
	Repo      repo.Repo
	Engine    engine.Engine
	Scheduler scheduler.Scheduler

	shutdownTelemetry func(context.Context) error
}

// LoadConfig reads phaseline.yml from the workspace, or an explicit file.
func LoadConfig(opts Options) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.ConfigFile != "" {
		cfg, err = config.FromFile(opts.ConfigFile)
	} else {
		cfg, err = config.LoadOptional(opts.Workspace)
	}
	if err != nil {
		return nil, err
	}
	if opts.LogLevel != "" {
		cfg.Log.Level = opts.LogLevel
	}
	if opts.LogJSON {
		cfg.Log.JSON = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewLogger builds the root logger. Logs go to stderr so command output on
// stdout stays machine readable.
func NewLogger(cfg config.LogConfig) hclog.Logger {
	level := hclog.LevelFromString(strings.ToLower(cfg.Level))
	if level == hclog.NoLevel {
		level = hclog.Info
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:       "phaseline",
		Level:      level,
		JSONFormat: cfg.JSON,
		Output:     os.Stderr,
	})
}

// Open loads config, opens and migrates the workspace database and wires
// the engine and scheduler.
func Open(ctx context.Context, opts Options) (*Runtime, error) {
	if opts.Workspace == "" {
		opts.Workspace = "."
	}
	cfg, err := LoadConfig(opts)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := NewLogger(cfg.Log)

	shutdown, err := telemetry.Init(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	conn, err := db.Open(ctx, db.Config{Workspace: opts.Workspace, BusyTimeout: cfg.Database.BusyTimeout})
	if err != nil {
		shutdown(ctx)
		return nil, err
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		shutdown(ctx)
		return nil, fmt.Errorf("migrate: %w", err)
	}
	r := repo.New(conn)
	e := engine.New(r, cfg, logger)
	rt := &Runtime{
		Config: cfg,
		Logger: logger,
		DB:     conn,
		Repo:   r,
		Engine: e,
		Scheduler: scheduler.Scheduler{
			Engine:  e,
			Lister:  r,
			Workers: cfg.Scheduler.Workers,
			Timeout: cfg.Scheduler.TickTimeout,
			Logger:  logger.Named("scheduler"),
			Metrics: e.Metrics,
		},
		shutdownTelemetry: shutdown,
	}
	logger.Debug("runtime ready", "workspace", opts.Workspace, "db", db.Path(opts.Workspace))
	return rt, nil
}

// Notifier returns a webhook dispatcher over the audit log.
func (rt *Runtime) Notifier() *notify.Dispatcher {
	return notify.NewDispatcher(rt.Repo.Audit, rt.Config.Webhooks, rt.Logger.Named("webhooks"))
}

// Close releases the database and flushes telemetry.
func (rt *Runtime) Close(ctx context.Context) error {
	var result *multierror.Error
	if err := rt.DB.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close db: %w", err))
	}
	if rt.shutdownTelemetry != nil {
		if err := rt.shutdownTelemetry(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("shutdown telemetry: %w", err))
		}
	}
	return result.ErrorOrNil()
}
