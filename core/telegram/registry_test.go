package telegram

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/feedbot/core/config"
	"github.com/m3rciful/feedbot/core/telegram/callbacks"
	"github.com/m3rciful/feedbot/core/telegram/commands"
)

func noop(tele.Context) error { return nil }

type fakeSetter struct {
	got []tele.Command
	err error
}

func (f *fakeSetter) SetCommands(opts ...interface{}) error {
	for _, o := range opts {
		if list, ok := o.([]tele.Command); ok {
			f.got = list
		}
	}
	return f.err
}

func TestRegistryCommands(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterCommand("/start", commands.Command{Handler: noop, Description: "Start", Aliases: []string{"menu"}})
	reg.RegisterCommand("/stats", commands.Command{Handler: noop, Description: "Stats", AdminOnly: true})
	reg.RegisterCommand("/debug", commands.Command{Handler: noop, Description: "Debug", Hidden: true})
	reg.RegisterCommand("nohandler", commands.Command{Handler: noop, Description: "x"})
	reg.RegisterCommand("/empty", commands.Command{Description: "x"})
	reg.RegisterCommand("/start", commands.Command{Handler: noop, Description: "dup"})

	require.Len(t, reg.Commands(), 3)
	require.Equal(t, "Start", reg.Commands()["/start"].Description)

	key, _, ok := reg.LookupCommand("menu")
	require.True(t, ok)
	require.Equal(t, "/start", key)
	_, _, ok = reg.LookupCommand("  ")
	require.False(t, ok)

	require.Equal(t, []tele.Command{{Text: "start", Description: "Start"}}, reg.ListCommands(true))
	require.Len(t, reg.ListCommands(false), 3)

	setter := &fakeSetter{}
	require.NoError(t, InitBotCommands(context.Background(), setter, reg))
	require.Equal(t, reg.ListCommands(true), setter.got)

	setter.err = errors.New("boom")
	require.Error(t, InitBotCommands(context.Background(), setter, reg))
}

func TestRegistryCallbacks(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterCallback("open", noop))
	require.Error(t, reg.RegisterCallback("open", noop))
	require.ErrorIs(t, reg.RegisterCallback("", noop), ErrInvalidCallback)
	require.Error(t, reg.RegisterCallback(callbacks.ReturnUnique, noop))

	h, ok := reg.GetCallback("open")
	require.True(t, ok)
	require.NotNil(t, h)
	require.Equal(t, []string{"open"}, reg.ListCallbacks())

	require.NotNil(t, reg.CallbackNotFound())
	reg.SetCallbackNotFound(nil)
	require.NotNil(t, reg.CallbackNotFound())
	require.Nil(t, reg.TextFallback())
	reg.SetTextFallback(noop)
	require.NotNil(t, reg.TextFallback())
}

func TestBuildPoller(t *testing.T) {
	cfg := &config.Config{}
	cfg.Telegram.RunMode = config.RunModeLongpoll
	lp, ok := BuildPoller(cfg).(*tele.LongPoller)
	require.True(t, ok)
	require.Equal(t, defaultLongPollTimeout, lp.Timeout)

	cfg.Telegram.RunMode = config.RunModeWebhook
	cfg.Webhook.Listen, cfg.Webhook.Port, cfg.Webhook.URL = "0.0.0.0", 8443, "https://bot.example.org/hook"
	wh, ok := BuildPoller(cfg).(*tele.Webhook)
	require.True(t, ok)
	require.Equal(t, "0.0.0.0:8443", wh.Listen)
	require.Equal(t, "https://bot.example.org/hook", wh.Endpoint.PublicURL)
}
