package router

import (
	"context"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/feedbot/core/logger"
	tg "github.com/m3rciful/feedbot/core/telegram"
	"github.com/m3rciful/feedbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/feedbot/core/telegram/helpers"
	"github.com/m3rciful/feedbot/core/telegram/middleware"
	"github.com/m3rciful/feedbot/core/telegram/navigation"
)

// Navigator intercepts back-button presses before regular routing.
type Navigator interface {
	Intercept(ctx context.Context, p navigation.Press) (navigation.Outcome, error)
}

// CallbackOptions customises callback routing.
type CallbackOptions struct {
	Navigator Navigator
	NotFound  tele.HandlerFunc
}

// CallbackRoute returns a handler that routes callbacks through the
// navigator and then the registry. Presses the handler did not answer are
// answered once it returns.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	handler := func(c tele.Context) error {
		start := time.Now()
		cb := c.Callback()
		if cb == nil {
			return nil
		}
		payload := callbacks.DecodeCallback(cb)
		tghelpers.StorePayload(c, payload)
		extras := []slog.Attr{slog.String("cb_key", payload.Unique)}

		if opts.Navigator != nil {
			var userID int64
			if u := c.Sender(); u != nil {
				userID = u.ID
			}
			ctx := tghelpers.WithHandler(c, "nav.return")
			outcome, err := opts.Navigator.Intercept(ctx, navigation.Press{UserID: userID, Callback: cb, Payload: payload})
			if outcome != navigation.OutcomePass {
				status := logger.Status(err)
				if outcome == navigation.OutcomeExpired {
					status = "expired"
				}
				logHandlerSummary(c, "nav.return", start, status, outcome.String(), err, extras...)
				return err
			}
		}

		name := "callback." + normalizeHandlerName(payload.Unique)
		h, ok := reg.GetCallback(payload.Unique)
		if !ok || h == nil {
			h = reg.CallbackNotFound()
			if h == nil {
				h = opts.NotFound
			}
			extras = append(extras, slog.String("cause", "not_found"))
		}
		err := handleWithSummary(c, name, start, func() error {
			if h == nil {
				return nil
			}
			return h(c)
		}, extras...)
		if !tghelpers.Answered(c) {
			_ = c.Respond()
		}
		return err
	}
	return tg.Route{
		Endpoint: tele.OnCallback,
		Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
	}
}
