// Package bootstrap initialises shared infrastructure before the bot starts.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/feedbot/core/config"
	"github.com/m3rciful/feedbot/core/database"
	"github.com/m3rciful/feedbot/core/logger"
)

// Options control the bootstrap pipeline. Nil hooks use the core defaults.
type Options struct {
	Config *config.Config

	LoggerInit func(*config.Config) error
	Connect    func(context.Context, config.DatabaseConfig) (*sqlx.DB, error)
	Migrate    func(context.Context, config.DatabaseConfig) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	// DB is nil when delivery state is kept in memory.
	DB *sqlx.DB
}

// Close releases the database, if any.
func (r *Result) Close() error {
	if r == nil || r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

// Run initializes the logger, applies migrations and connects to the
// database when one is configured.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, errors.New("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.Init
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	dbCfg := opts.Config.Database
	if dbCfg.Driver == "" || dbCfg.Driver == config.DriverMemory {
		return &Result{}, nil
	}

	migrate := opts.Migrate
	if migrate == nil {
		migrate = database.RunMigrations
	}
	if err := migrate(ctx, dbCfg); err != nil {
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}

	connect := opts.Connect
	if connect == nil {
		connect = database.Connect
	}
	db, err := connect(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}
	return &Result{DB: db}, nil
}
