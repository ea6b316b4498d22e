// Package database opens the optional SQL store that keeps delivery state
// and applies its embedded migrations.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/m3rciful/feedbot/core/config"
	"github.com/m3rciful/feedbot/core/logger"
)

// ErrNoDatabase is returned when the configured driver keeps state in memory.
var ErrNoDatabase = errors.New("database: driver keeps state in memory")

const (
	connectTimeout = 30 * time.Second
	retryEvery     = 2 * time.Second
)

// DSN returns the database/sql data source name for cfg.
func DSN(cfg config.DatabaseConfig) (string, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return fmt.Sprintf(
			"user=%s password=%s host=%s port=%s dbname=%s sslmode=%s",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name, cfg.SSLMode,
		), nil
	case config.DriverSQLite:
		return "file:" + cfg.Path + "?_busy_timeout=5000&_journal_mode=WAL", nil
	}
	return "", ErrNoDatabase
}

// MigrateURL returns the golang-migrate database URL for cfg.
func MigrateURL(cfg config.DatabaseConfig) (string, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(cfg.User, cfg.Password),
			Host:     net.JoinHostPort(cfg.Host, cfg.Port),
			Path:     "/" + cfg.Name,
			RawQuery: url.Values{"sslmode": {cfg.SSLMode}}.Encode(),
		}
		return u.String(), nil
	case config.DriverSQLite:
		return "sqlite3://" + cfg.Path, nil
	}
	return "", ErrNoDatabase
}

// Connect opens the database, waiting for it to accept connections, and
// configures the pool.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	start := time.Now()
	db, err := sqlx.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}
	attempts := 0
	for {
		attempts++
		err = db.PingContext(ctx)
		if err == nil {
			break
		}
		logger.Debug(ctx, logger.CompDB, "db.ping",
			slog.String("status", "retry"),
			slog.String("driver", cfg.Driver),
			slog.Int("attempts", attempts),
			slog.Any("err", err),
		)
		select {
		case <-ctx.Done():
			_ = db.Close()
			logger.Error(ctx, logger.CompDB, "db.connect",
				connAttrs(cfg, "fail", logger.Took(start), slog.Any("err", err))...,
			)
			return nil, fmt.Errorf("db connect: %w", err)
		case <-time.After(retryEvery):
		}
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxConnections)
	if cfg.Driver == config.DriverSQLite {
		// one writer at a time
		db.SetMaxOpenConns(1)
	}

	logger.Info(ctx, logger.CompDB, "db.connect",
		connAttrs(cfg, "ok", logger.Took(start), slog.Int("count", cfg.MaxConnections))...,
	)
	return db, nil
}

func connAttrs(cfg config.DatabaseConfig, status string, took time.Duration, extra ...slog.Attr) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("driver", cfg.Driver),
		slog.Duration("duration", took),
	}
	if cfg.Driver == config.DriverPostgres {
		attrs = append(attrs,
			slog.String("host", cfg.Host),
			slog.String("port", cfg.Port),
			slog.String("db", cfg.Name),
		)
	} else {
		attrs = append(attrs, slog.String("db", cfg.Path))
	}
	return append(attrs, extra...)
}
