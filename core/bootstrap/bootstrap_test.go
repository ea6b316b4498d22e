package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/feedbot/core/config"
)

func noLogger(*config.Config) error { return nil }

func TestRunWithMemoryStoreSkipsDatabase(t *testing.T) {
	called := false
	res, err := Run(context.Background(), Options{
		Config:     &config.Config{},
		LoggerInit: noLogger,
		Migrate: func(context.Context, config.DatabaseConfig) error {
			called = true
			return nil
		},
	})
	require.NoError(t, err)
	require.Nil(t, res.DB)
	require.False(t, called)
	require.NoError(t, res.Close())
}

func TestRunMigratesBeforeConnecting(t *testing.T) {
	cfg := &config.Config{}
	cfg.Database.Driver = config.DriverSQLite
	var order []string
	_, err := Run(context.Background(), Options{
		Config:     cfg,
		LoggerInit: noLogger,
		Migrate: func(context.Context, config.DatabaseConfig) error {
			order = append(order, "migrate")
			return nil
		},
		Connect: func(context.Context, config.DatabaseConfig) (*sqlx.DB, error) {
			order = append(order, "connect")
			return nil, errors.New("unreachable")
		},
	})
	require.ErrorContains(t, err, "database initialization failed")
	require.Equal(t, []string{"migrate", "connect"}, order)
}

func TestRunRequiresConfig(t *testing.T) {
	_, err := Run(context.Background(), Options{})
	require.Error(t, err)
}
