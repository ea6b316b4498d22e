package router

import (
	"context"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/feedbot/core/logger"
	tg "github.com/m3rciful/feedbot/core/telegram"
	"github.com/m3rciful/feedbot/core/telegram/middleware"
	"github.com/m3rciful/feedbot/core/telegram/navigation"
)

// CommandRouteOptions configures how commands are wrapped and exposed.
type CommandRouteOptions struct {
	AdminID       int64
	OnAdminReject tele.HandlerFunc
	// Waits, when set, drops the sender's pending wait before a command runs.
	Waits navigation.WaitCanceler
}

// CommandRoutes prepares command handlers wrapped with shared middleware.
func CommandRoutes(reg *tg.Registry, opts CommandRouteOptions) []tg.Route {
	if reg == nil {
		return nil
	}

	adminOpts := middleware.AdminOptions{
		AdminID:  opts.AdminID,
		OnReject: opts.OnAdminReject,
	}

	cmds := reg.Commands()
	routes := make([]tg.Route, 0, len(cmds))
	for cmd, def := range cmds {
		name := normalizeHandlerName(cmd)
		next := def.Handler
		h := func(c tele.Context) error {
			if opts.Waits != nil {
				if u := c.Sender(); u != nil {
					opts.Waits.Cancel(u.ID)
				}
			}
			return next(c)
		}
		if def.AdminOnly {
			h = middleware.AdminOnlyMiddleware(adminOpts)(h)
		}
		summarized := func(c tele.Context) error {
			return handleWithSummary(c, name, time.Now(), func() error { return h(c) })
		}
		routes = append(routes, tg.Route{
			Endpoint: cmd,
			Handler:  middleware.RecoverMiddleware(middleware.LoggerMiddleware(summarized)),
		})
	}

	logger.Info(context.Background(), logger.CompWire, "register.routes",
		slog.String("status", "ok"),
		slog.Int("count", len(cmds)),
		slog.Int("items", len(reg.ListCallbacks())),
	)
	return routes
}
