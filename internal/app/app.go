// Package app is the feedbot Telegram application: an announcement board
// browsed through menus, with new posts pushed to subscribers.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/feedbot/core/bootstrap"
	"github.com/m3rciful/feedbot/core/cmd"
	"github.com/m3rciful/feedbot/core/logger"
	"github.com/m3rciful/feedbot/core/notify"
	"github.com/m3rciful/feedbot/core/telegram"
	"github.com/m3rciful/feedbot/core/telegram/conversation"
	"github.com/m3rciful/feedbot/core/telegram/navigation"
	"github.com/m3rciful/feedbot/core/telegram/router"
	"github.com/m3rciful/feedbot/core/telegram/sender"
	"github.com/m3rciful/feedbot/core/telegram/session"
	"github.com/m3rciful/feedbot/core/telegram/ui"
)

// App owns the bot components and the board state.
type App struct {
	cfg *Config
	bot *tele.Bot
	db  *sqlx.DB

	registry   *telegram.Registry
	nav        *navigation.Controller
	sessions   *session.Manager
	engine     *conversation.Engine
	dispatcher *sender.Dispatcher
	publisher  *notify.Publisher
	backlog    *notify.StatusTracker
	board      *Board
}

// Bootstrap initialises infrastructure and builds the application. It
// matches cmd.Options.Bootstrap.
func Bootstrap(ctx context.Context, carrier cmd.ConfigCarrier) (cmd.TelegramApp, error) {
	cfg, ok := carrier.(*Config)
	if !ok || cfg.Core == nil {
		return nil, errors.New("app: unexpected config type")
	}
	res, err := bootstrap.Run(ctx, bootstrap.Options{Config: cfg.Core})
	if err != nil {
		return nil, err
	}
	bot, err := telegram.NewBot(cfg.Core)
	if err != nil {
		_ = res.Close()
		return nil, err
	}
	a, err := New(cfg, bot, res.DB)
	if err != nil {
		_ = res.Close()
		return nil, err
	}
	return a, nil
}

// New wires the application around bot. db may be nil, in which case
// delivery cursors are kept in memory.
func New(cfg *Config, bot *tele.Bot, db *sqlx.DB) (*App, error) {
	core := cfg.Core
	a := &App{
		cfg:        cfg,
		bot:        bot,
		db:         db,
		registry:   telegram.NewRegistry(),
		dispatcher: sender.NewDispatcher(sender.OptionsFrom(core.Sender)),
		backlog:    notify.NewStatusTracker(),
		board:      NewBoard(),
	}
	a.sessions = session.NewManager(bot, session.WithDefaults(
		time.Duration(core.Session.TimeoutSeconds)*time.Second,
		core.Session.ErrorText,
		core.Session.WaitingText,
	))
	a.nav = navigation.NewController(bot, navigation.NewHistory(), navigation.NewReturns(),
		navigation.WithTexts(core.Navigation.BackButtonText, core.Navigation.ExpiredText),
		navigation.WithWaitCanceler(a.sessions),
	)
	a.engine = conversation.NewEngine(bot, a.nav, a.sessions,
		conversation.WithWaitingText(core.Session.WaitingText))

	pubOpts := []notify.Option{notify.WithQueue(a.dispatcher)}
	if db != nil {
		pubOpts = append(pubOpts, notify.WithCursorStore(notify.NewSQLCursorStore(db)))
	}
	a.publisher = notify.NewPublisher(bot, pubOpts...)

	if err := a.register(); err != nil {
		a.dispatcher.Close()
		return nil, err
	}
	return a, nil
}

// TelegramRunOptions implements cmd.TelegramApp.
func (a *App) TelegramRunOptions() (telegram.RunOptions, error) {
	core := a.cfg.Core
	fallbacks := ui.NewFallbacks(core)
	a.registry.SetCallbackNotFound(fallbacks.UnknownCallback())

	routes := []telegram.Route{
		router.CallbackRoute(a.registry, router.CallbackOptions{Navigator: a.nav}),
	}
	routes = append(routes, router.TextRoutes(a.registry, router.TextOptions{
		Sessions:        a.sessions,
		UnknownText:     fallbacks.UnknownText(),
		UnknownDocument: fallbacks.UnknownDocument(),
	})...)
	routes = append(routes, router.CommandRoutes(a.registry, router.CommandRouteOptions{
		AdminID: core.Telegram.AdminID,
		Waits:   a.sessions,
	})...)

	return telegram.RunOptions{
		Config:      core,
		Bot:         a.bot,
		Registry:    a.registry,
		Dispatcher:  a.dispatcher,
		Middlewares: telegram.DefaultMiddlewares(core, nil),
		Routes:      routes,
		Workers: []telegram.Worker{
			{Name: "nav.sweep", Run: func(ctx context.Context) error {
				return a.nav.Returns().Run(ctx, navigation.SweepInterval)
			}},
			{Name: "feed.publish", Run: a.runFeed},
		},
		OnStop: func(ctx context.Context, _ telegram.Runtime) error {
			if a.db == nil {
				return nil
			}
			if err := a.db.Close(); err != nil {
				return fmt.Errorf("app: close database: %w", err)
			}
			logger.Info(ctx, logger.CompDB, "db.close", slog.String("status", "ok"))
			return nil
		},
	}, nil
}

// runFeed pushes new posts to subscribers until ctx is done.
func (a *App) runFeed(ctx context.Context) error {
	t := time.NewTicker(a.cfg.PollInterval())
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			a.publishFeed(ctx)
			a.checkBacklog(ctx)
		}
	}
}

func (a *App) publishFeed(ctx context.Context) {
	items := a.board.Latest(a.cfg.Feed.PageSize * 4)
	if len(items) == 0 {
		return
	}
	for _, user := range a.board.Subscribers() {
		if _, err := a.publisher.PublishNew(ctx, boardFeed, user, items); err != nil {
			logger.Warn(ctx, logger.CompNotify, "feed.tick",
				slog.String("status", "fail"),
				slog.Int64("recipient", user),
				slog.Any("err", err),
			)
		}
	}
}

// checkBacklog tells the admin when the outbound queue starts or stops
// lagging behind.
func (a *App) checkBacklog(ctx context.Context) {
	admin := a.cfg.Core.Telegram.AdminID
	if admin == 0 {
		return
	}
	lagging := a.dispatcher.Pending() >= a.cfg.Feed.BacklogAlert
	if !a.backlog.Observe("sender", admin, "backlog", lagging) {
		return
	}
	text := "Outbound queue is back to normal"
	if lagging {
		text = fmt.Sprintf("Outbound queue is lagging: %d messages pending", a.dispatcher.Pending())
	}
	if err := a.publisher.Publish(ctx, notify.Notification{Recipient: admin, Text: text}); err != nil {
		logger.Warn(ctx, logger.CompNotify, "backlog.alert",
			slog.String("status", "fail"),
			slog.Any("err", err),
		)
	}
}
