package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/feedbot/core/config"
	coretelegram "github.com/m3rciful/feedbot/core/telegram"
)

type carrier struct{ cfg *coreconfig.Config }

func (c carrier) CoreConfig() *coreconfig.Config { return c.cfg }

type app struct{ opts coretelegram.RunOptions }

func (a app) TelegramRunOptions() (coretelegram.RunOptions, error) { return a.opts, nil }

func TestRunWiresLifecycleHooks(t *testing.T) {
	t.Setenv("FEEDBOT_TEST_CONFIG", "config.yaml")
	var loaded string
	stopped := false
	err := Run(Options{
		ConfigEnvVar: "FEEDBOT_TEST_CONFIG",
		LoadConfig: func(path string) (ConfigCarrier, error) {
			loaded = path
			return carrier{cfg: &coreconfig.Config{}}, nil
		},
		Bootstrap: func(context.Context, ConfigCarrier) (TelegramApp, error) {
			return app{opts: coretelegram.RunOptions{
				OnStop: func(context.Context, coretelegram.Runtime) error {
					stopped = true
					return nil
				},
			}}, nil
		},
		ShutdownLogger: func() error { return nil },
		RunTelegram: func(ctx context.Context, opts coretelegram.RunOptions) error {
			require.NoError(t, opts.OnStart(ctx, coretelegram.Runtime{}))
			return opts.OnStop(ctx, coretelegram.Runtime{})
		},
	})
	require.NoError(t, err)
	require.Equal(t, "config.yaml", loaded)
	require.True(t, stopped)
}

func TestRunRequiresConfigPath(t *testing.T) {
	t.Setenv("FEEDBOT_TEST_CONFIG", "")
	err := Run(Options{
		ConfigEnvVar: "FEEDBOT_TEST_CONFIG",
		LoadConfig:   func(string) (ConfigCarrier, error) { return nil, errors.New("unreachable") },
		Bootstrap:    func(context.Context, ConfigCarrier) (TelegramApp, error) { return nil, nil },
	})
	require.ErrorContains(t, err, "config path not provided")
}

func TestRunRejectsMissingCoreConfig(t *testing.T) {
	err := Run(Options{
		DefaultConfigPath: "config.yaml",
		ConfigEnvVar:      "FEEDBOT_TEST_CONFIG_UNSET",
		LoadConfig:        func(string) (ConfigCarrier, error) { return carrier{}, nil },
		Bootstrap:         func(context.Context, ConfigCarrier) (TelegramApp, error) { return nil, nil },
	})
	require.ErrorContains(t, err, "missing core configuration")
}
