package helpers

import (
	"context"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/feedbot/core/logger"
	"github.com/m3rciful/feedbot/core/telegram/callbacks"
)

const (
	ctxKey      = "core.ctx"
	payloadKey  = "core.payload"
	answeredKey = "core.answered"
	// RIDKey is where the receipt middleware stores the correlation id.
	RIDKey = "rid"
)

// Store is the per-update key/value storage of tele.Context.
type Store interface {
	Get(key string) interface{}
	Set(key string, val interface{})
}

// StoreContext attaches ctx to c for downstream helpers.
func StoreContext(c Store, ctx context.Context) {
	if c == nil || ctx == nil {
		return
	}
	c.Set(ctxKey, ctx)
}

// ContextFrom returns the context stored by StoreContext.
func ContextFrom(c Store) (context.Context, bool) {
	if c == nil {
		return nil, false
	}
	ctx, ok := c.Get(ctxKey).(context.Context)
	return ctx, ok && ctx != nil
}

// BuildContext returns the request context of the update, creating it on
// first use with the rid and update metadata attached.
func BuildContext(c tele.Context) context.Context {
	if cached, ok := ContextFrom(c); ok {
		return cached
	}
	if c == nil {
		return context.Background()
	}

	var chatID, userID int64
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	if user := c.Sender(); user != nil {
		userID = user.ID
	}
	updateID := c.Update().ID

	rid, _ := c.Get(RIDKey).(string)
	if rid == "" {
		rid = logger.BuildRID(updateID, chatID, userID)
	}

	ctx := logger.WithRID(context.Background(), rid)
	ctx = logger.WithUpdateMeta(ctx, updateID, userID, chatID)
	ctx = logger.WithLogger(ctx, logger.TG)
	StoreContext(c, ctx)
	return ctx
}

// WithHandler names the handler in the stored context.
func WithHandler(c tele.Context, handler string) context.Context {
	ctx := BuildContext(c)
	if handler == "" {
		return ctx
	}
	ctx = logger.WithHandler(ctx, handler)
	StoreContext(c, ctx)
	return ctx
}

// StorePayload keeps the decoded callback payload for the handler.
func StorePayload(c Store, p callbacks.Payload) {
	if c != nil {
		c.Set(payloadKey, p)
	}
}

// PayloadFrom returns the stored payload, decoding the callback when the
// router did not store one.
func PayloadFrom(c tele.Context) callbacks.Payload {
	if c == nil {
		return callbacks.Payload{}
	}
	if p, ok := c.Get(payloadKey).(callbacks.Payload); ok {
		return p
	}
	return callbacks.DecodeCallback(c.Callback())
}

// MarkAnswered records that the callback query of c was answered.
func MarkAnswered(c Store) {
	if c != nil {
		c.Set(answeredKey, true)
	}
}

// Answered reports whether MarkAnswered was called for c.
func Answered(c Store) bool {
	if c == nil {
		return false
	}
	v, _ := c.Get(answeredKey).(bool)
	return v
}
