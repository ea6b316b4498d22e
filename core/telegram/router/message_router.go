package router

import (
	"context"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/feedbot/core/telegram"
	tghelpers "github.com/m3rciful/feedbot/core/telegram/helpers"
	"github.com/m3rciful/feedbot/core/telegram/middleware"
	"github.com/m3rciful/feedbot/core/telegram/session"
)

// Sessions receives inbound messages before any other routing.
type Sessions interface {
	Deliver(ctx context.Context, msg *tele.Message) session.Delivery
	Discard(ctx context.Context, msg *tele.Message)
}

// TextOptions controls fallback behaviour for text/document updates.
type TextOptions struct {
	Sessions        Sessions
	UnknownText     tele.HandlerFunc
	UnknownDocument tele.HandlerFunc
}

// TextRoutes builds handlers for text and document routing. A pending wait
// of the sender takes the message first; messages nobody handles are removed
// from the chat.
func TextRoutes(reg *tg.Registry, opts TextOptions) []tg.Route {
	deliver := func(c tele.Context, start time.Time) bool {
		if opts.Sessions == nil {
			return false
		}
		d := opts.Sessions.Deliver(tghelpers.BuildContext(c), c.Message())
		if d == session.DeliveryUnsolicited {
			return false
		}
		status := "ok"
		if d == session.DeliveryRejected {
			status = "skip"
		}
		logHandlerSummary(c, "session.deliver", start, status, "pass", nil, slog.String("op", d.String()))
		return true
	}
	discard := func(c tele.Context, name string, start time.Time) error {
		if opts.Sessions != nil {
			opts.Sessions.Discard(tghelpers.BuildContext(c), c.Message())
		}
		logHandlerSummary(c, name, start, "skip", "ok", nil)
		return nil
	}

	handler := func(c tele.Context) error {
		start := time.Now()
		if deliver(c, start) {
			return nil
		}

		if reg != nil {
			if key, cmd, ok := reg.LookupCommand(c.Text()); ok && cmd.Handler != nil {
				return handleWithSummary(c, normalizeHandlerName(key), start, func() error {
					return cmd.Handler(c)
				})
			}
			if fb := reg.TextFallback(); fb != nil {
				return handleWithSummary(c, "fallback", start, func() error {
					return fb(c)
				})
			}
		}

		if opts.UnknownText != nil {
			return handleWithSummary(c, "unknown_text", start, func() error {
				return opts.UnknownText(c)
			})
		}
		return discard(c, "unknown_text", start)
	}

	docHandler := func(c tele.Context) error {
		start := time.Now()
		if deliver(c, start) {
			return nil
		}
		if opts.UnknownDocument != nil {
			return handleWithSummary(c, "unexpected_document", start, func() error {
				return opts.UnknownDocument(c)
			})
		}
		return discard(c, "unexpected_document", start)
	}

	return []tg.Route{
		{
			Endpoint: tele.OnText,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(handler)),
		},
		{
			Endpoint: tele.OnDocument,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(docHandler)),
		},
	}
}
