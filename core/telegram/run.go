package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/feedbot/core/config"
	"github.com/m3rciful/feedbot/core/logger"
	tghelpers "github.com/m3rciful/feedbot/core/telegram/helpers"
	tgsender "github.com/m3rciful/feedbot/core/telegram/sender"
)

// Middleware describes a global bot middleware to be registered via bot.Use.
type Middleware struct {
	Name string
	Use  func(next tele.HandlerFunc) tele.HandlerFunc
}

// Route declares a single bot handler bound to an arbitrary endpoint.
// Endpoint values are passed directly to tele.Bot.Handle.
type Route struct {
	Endpoint any
	Handler  tele.HandlerFunc
}

// Worker is a background loop that lives as long as the bot.
type Worker struct {
	Name string
	Run  func(ctx context.Context) error
}

// RunOptions controls the behaviour of RunTelegram.
type RunOptions struct {
	Config *config.Config
	// Bot is created from Config when nil.
	Bot      *tele.Bot
	Registry *Registry

	DispatcherOptions tgsender.Options
	Dispatcher        *tgsender.Dispatcher

	Middlewares []Middleware
	Routes      []Route
	Workers     []Worker

	DisableWebhookCleanup   bool
	DisableHelperDispatcher bool

	OnStart func(ctx context.Context, rt Runtime) error
	OnStop  func(ctx context.Context, rt Runtime) error
}

// Runtime exposes runtime components to lifecycle hooks.
type Runtime struct {
	Bot        *tele.Bot
	Dispatcher *tgsender.Dispatcher
	Registry   *Registry
}

// NewBot builds a bot with the poller and HTTP client selected by cfg.
// Handlers run concurrently, one goroutine per update.
func NewBot(cfg *config.Config) (*tele.Bot, error) {
	if cfg == nil {
		return nil, errors.New("telegram: nil config provided")
	}
	poller := BuildPoller(cfg)
	var pollTimeout time.Duration
	if lp, ok := poller.(*tele.LongPoller); ok {
		pollTimeout = lp.Timeout
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: poller,
		Client: BuildHTTPClient(pollTimeout),
		OnError: func(err error, c tele.Context) {
			ctx := context.Background()
			if c != nil {
				ctx = tghelpers.BuildContext(c)
			}
			logger.Error(ctx, logger.CompTG, "bot.error",
				slog.String("status", "fail"),
				slog.Any("err", err),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: bot initialization failed: %w", err)
	}
	return bot, nil
}

// RunTelegram composes and runs a Telegram bot until the provided context is done.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return errors.New("telegram: nil config provided")
	}
	cfg := opts.Config
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
	}

	buildStart := time.Now()
	bot := opts.Bot
	if bot == nil {
		var err error
		if bot, err = NewBot(cfg); err != nil {
			return err
		}
	}
	logMode(ctx, bot, logger.Took(buildStart))

	if !opts.DisableWebhookCleanup && strings.EqualFold(cfg.Telegram.RunMode, config.RunModeLongpoll) {
		if err := bot.RemoveWebhook(false); err != nil {
			logger.Warn(ctx, logger.CompTG, "webhook.delete",
				slog.String("status", "fail"),
				slog.Any("err", err),
			)
		} else {
			logger.Info(ctx, logger.CompTG, "webhook.delete", slog.String("status", "ok"))
		}
	}

	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		dispatcher = tgsender.NewDispatcher(opts.DispatcherOptions)
	}
	useHelperDispatcher := !opts.DisableHelperDispatcher
	if useHelperDispatcher {
		tghelpers.SetDispatcher(dispatcher)
	}
	release := func() {
		dispatcher.Close()
		if useHelperDispatcher {
			tghelpers.SetDispatcher(nil)
		}
	}

	rt := Runtime{Bot: bot, Dispatcher: dispatcher, Registry: reg}

	for _, mw := range opts.Middlewares {
		if mw.Use != nil {
			bot.Use(mw.Use)
		}
	}
	for _, route := range opts.Routes {
		if route.Endpoint == nil || route.Handler == nil {
			continue
		}
		bot.Handle(route.Endpoint, route.Handler)
	}

	_ = InitBotCommands(ctx, bot, reg)

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx, rt); err != nil {
			release()
			return err
		}
	}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	var workers sync.WaitGroup
	for _, w := range opts.Workers {
		if w.Run == nil {
			continue
		}
		workers.Add(1)
		go func(w Worker) {
			defer workers.Done()
			err := w.Run(workerCtx)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error(ctx, logger.CompTG, "worker.stop",
					slog.String("status", "fail"),
					slog.String("op", w.Name),
					slog.Any("err", err),
				)
				return
			}
			logger.Debug(ctx, logger.CompTG, "worker.stop",
				slog.String("status", "ok"),
				slog.String("op", w.Name),
			)
		}(w)
	}

	runDone := make(chan struct{})
	go func() {
		bot.Start()
		close(runDone)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		bot.Stop()
		<-runDone
		runErr = ctx.Err()
	case <-runDone:
	}

	stopWorkers()
	workers.Wait()

	var stopErr error
	if opts.OnStop != nil {
		stopErr = opts.OnStop(context.WithoutCancel(ctx), rt)
	}
	release()

	if stopErr != nil {
		return stopErr
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func logMode(ctx context.Context, bot *tele.Bot, took time.Duration) {
	switch p := bot.Poller.(type) {
	case *tele.Webhook:
		attrs := []slog.Attr{
			slog.String("status", "ok"),
			slog.String("mode", config.RunModeWebhook),
			slog.String("listen", p.Listen),
			slog.Duration("duration", took),
		}
		if p.Endpoint != nil {
			attrs = append(attrs, slog.String("public_url", p.Endpoint.PublicURL))
		}
		logger.Info(ctx, logger.CompTG, "bot.mode", attrs...)
	case *tele.LongPoller:
		logger.Info(ctx, logger.CompTG, "bot.mode",
			slog.String("status", "ok"),
			slog.String("mode", config.RunModeLongpoll),
			slog.Duration("timeout", p.Timeout),
			slog.Duration("duration", took),
		)
	}
}
