// Package conversation is the handler-facing API: it renders screens with
// back buttons attached and suspends handlers until the user types a reply.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/feedbot/core/config"
	"github.com/m3rciful/feedbot/core/logger"
	"github.com/m3rciful/feedbot/core/telegram/callbacks"
	"github.com/m3rciful/feedbot/core/telegram/helpers"
	"github.com/m3rciful/feedbot/core/telegram/navigation"
	"github.com/m3rciful/feedbot/core/telegram/screen"
	"github.com/m3rciful/feedbot/core/telegram/session"
)

// ErrNotCallback is returned by operations that edit the pressed message
// when the update is not a button press.
var ErrNotCallback = errors.New("conversation: handler needs a button press")

// Bot is the part of *tele.Bot a conversation drives.
type Bot interface {
	navigation.Transport
	Delete(msg tele.Editable) error
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// update is the part of tele.Context a conversation reads.
type update interface {
	helpers.Store
	Callback() *tele.Callback
	Sender() *tele.User
	Recipient() tele.Recipient
}

// HandlerFunc handles one update inside a conversation.
type HandlerFunc func(c *Context) error

// Engine builds conversation contexts for telebot handlers.
type Engine struct {
	bot         Bot
	nav         *navigation.Controller
	sessions    *session.Manager
	waitingText string
}

// EngineOption customises an Engine.
type EngineOption func(*Engine)

// WithWaitingText overrides the text shown by Context.Waiting.
func WithWaitingText(text string) EngineOption {
	return func(e *Engine) {
		if text != "" {
			e.waitingText = text
		}
	}
}

// NewEngine wires the navigation controller and the session manager.
func NewEngine(bot Bot, nav *navigation.Controller, sessions *session.Manager, opts ...EngineOption) *Engine {
	e := &Engine{
		bot:         bot,
		nav:         nav,
		sessions:    sessions,
		waitingText: config.DefaultWaitingText,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Navigation returns the controller used for back buttons.
func (e *Engine) Navigation() *navigation.Controller { return e.nav }

// Sessions returns the manager used by NextMessage.
func (e *Engine) Sessions() *session.Manager { return e.sessions }

// Handle adapts h to a telebot handler.
func (e *Engine) Handle(h HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		x := e.newContext(helpers.BuildContext(c), c, helpers.PayloadFrom(c))
		x.tc = c
		return h(x)
	}
}

// Context is the state of one handler pass.
type Context struct {
	e       *Engine
	tc      tele.Context
	upd     update
	ctx     context.Context
	payload callbacks.Payload
	trail   *screen.Trail
	anchor  screen.Screen
	// origin is the screen the anchor showed when the pass started; back
	// buttons of every render in the pass restore it.
	origin screen.Screen
}

func (e *Engine) newContext(ctx context.Context, upd update, p callbacks.Payload) *Context {
	x := &Context{e: e, upd: upd, ctx: ctx, payload: p, trail: &screen.Trail{}}
	if cb := upd.Callback(); cb != nil && cb.Message != nil {
		x.anchor = screen.Of(cb.Message)
		x.origin = x.anchor
		x.trail.Add(x.anchor)
	}
	return x
}

// Tele returns the underlying telebot context.
func (x *Context) Tele() tele.Context { return x.tc }

// Context returns the request context carrying rid and update metadata.
func (x *Context) Context() context.Context { return x.ctx }

// Payload returns the decoded callback payload.
func (x *Context) Payload() callbacks.Payload { return x.payload }

// UserID returns the id of the user behind the update.
func (x *Context) UserID() int64 {
	if u := x.upd.Sender(); u != nil {
		return u.ID
	}
	return 0
}

// Anchor returns the screen currently shown on the pressed message.
func (x *Context) Anchor() screen.Screen { return x.anchor.Clone() }

// Key identifies the navigation thread of this pass.
func (x *Context) Key() navigation.Key {
	return navigation.Key{UserID: x.UserID(), ChatID: x.anchor.ChatID, MessageID: x.anchor.MessageID}
}

// EditScreen replaces the pressed message with text and markup. Unless
// NoReturn is given a back button restoring the current screen is appended.
func (x *Context) EditScreen(text string, markup *tele.ReplyMarkup, opts ...RenderOption) error {
	ro := collectRender(opts)
	next := screen.Screen{Text: text, ParseMode: ro.parseMode}
	if err := x.prepare(&next, markup, ro); err != nil {
		return err
	}
	if err := next.Apply(x.e.bot); err != nil {
		return x.renderFailed("screen.edit", err)
	}
	x.rendered("screen.edit", next)
	return nil
}

// EditMedia replaces the pressed message with media. The media caption
// becomes the screen text.
func (x *Context) EditMedia(media tele.Inputtable, markup *tele.ReplyMarkup, opts ...RenderOption) error {
	if media == nil {
		return errors.New("conversation: nil media")
	}
	ro := collectRender(opts)
	next := screen.Screen{ParseMode: ro.parseMode, Caption: true}
	if in := media.InputMedia(); in.Caption != "" {
		next.Text = in.Caption
	}
	if err := x.prepare(&next, markup, ro); err != nil {
		return err
	}
	if _, err := x.e.bot.Edit(next.Editable(), media, next.Options()); err != nil && !errors.Is(err, tele.ErrSameMessageContent) {
		return x.renderFailed("screen.media", err)
	}
	x.rendered("screen.media", next)
	return nil
}

// prepare targets next at the anchor and appends the back button.
func (x *Context) prepare(next *screen.Screen, markup *tele.ReplyMarkup, ro renderOptions) error {
	if x.upd.Callback() == nil || !x.anchor.Valid() {
		return ErrNotCallback
	}
	next.ChatID, next.MessageID = x.anchor.ChatID, x.anchor.MessageID
	if !next.Caption {
		next.Caption = x.anchor.Caption
	}
	if markup != nil {
		*next = next.WithKeyboard(markup.InlineKeyboard)
	}
	if ro.noReturn {
		return nil
	}
	btn, err := x.e.nav.AttachReturn(x.ctx, navigation.ReturnRequest{
		Key:     x.Key(),
		Current: x.origin,
		Data:    x.payload.Raw,
		Grouped: ro.grouped,
		Refresh: ro.refresh,
		After:   ro.after,
		Owner:   x.ctx,
	})
	if err != nil {
		return fmt.Errorf("conversation: attach return: %w", err)
	}
	next.Keyboard = append(next.Keyboard, []tele.InlineButton{btn})
	return nil
}

func (x *Context) rendered(event string, s screen.Screen) {
	x.anchor = s
	x.trail.Add(s)
	helpers.CountMessage(x.upd, len(s.Keyboard) > 0)
	logger.Debug(x.ctx, logger.CompTG, event,
		slog.String("status", "ok"),
		slog.Int("anchor_id", s.MessageID),
		slog.Int("rows", len(s.Keyboard)),
	)
}

func (x *Context) renderFailed(event string, err error) error {
	logger.Warn(x.ctx, logger.CompTG, event,
		slog.String("status", "fail"),
		slog.Int("anchor_id", x.anchor.MessageID),
		slog.Any("err", err),
	)
	return fmt.Errorf("conversation: %s: %w", event, err)
}

// SendScreen sends text as a new message, which becomes the anchor of the
// following renders. No back button is attached.
func (x *Context) SendScreen(text string, markup *tele.ReplyMarkup, opts ...RenderOption) error {
	ro := collectRender(opts)
	next := screen.Screen{Text: text, ParseMode: ro.parseMode}
	if markup != nil {
		next = next.WithKeyboard(markup.InlineKeyboard)
	}
	msg, err := x.e.bot.Send(x.upd.Recipient(), text, next.Options())
	if err != nil {
		return x.renderFailed("screen.send", err)
	}
	if msg != nil {
		next.MessageID = msg.ID
		if msg.Chat != nil {
			next.ChatID = msg.Chat.ID
		}
	}
	x.rendered("screen.send", next)
	x.origin = next
	return nil
}

// NextMessage suspends the handler until the user sends a message the
// filter accepts. On timeout the back buttons of the prompt are released.
func (x *Context) NextMessage(opts ...WaitOption) (*tele.Message, error) {
	req := session.Request{UserID: x.UserID(), Trail: x.trail}
	for _, opt := range opts {
		opt(&req)
	}
	x.ack()
	msg, err := x.e.sessions.Await(x.ctx, req)
	if errors.Is(err, session.ErrTimeout) && x.anchor.Valid() {
		x.e.nav.Release(x.ctx, x.Key())
	}
	return msg, err
}

// ack answers the press so the client stops its spinner while the handler
// is suspended.
func (x *Context) ack() {
	cb := x.upd.Callback()
	if cb == nil || helpers.Answered(x.upd) {
		return
	}
	if err := x.e.bot.Respond(cb); err != nil {
		logger.Debug(x.ctx, logger.CompTG, "callback.ack",
			slog.String("status", "fail"),
			slog.Any("err", err),
		)
		return
	}
	helpers.MarkAnswered(x.upd)
}

// Waiting shows the waiting text on the anchor without any keyboard.
func (x *Context) Waiting() error {
	if !x.anchor.Valid() {
		return ErrNotCallback
	}
	s := x.anchor.WithText(x.e.waitingText).WithKeyboard(nil)
	if err := s.Apply(x.e.bot); err != nil {
		return x.renderFailed("screen.waiting", err)
	}
	x.rendered("screen.waiting", s)
	return nil
}

// Answer answers the button press, optionally as an alert.
func (x *Context) Answer(text string, alert bool) error {
	cb := x.upd.Callback()
	if cb == nil {
		return ErrNotCallback
	}
	if err := x.e.bot.Respond(cb, &tele.CallbackResponse{Text: text, ShowAlert: alert}); err != nil {
		return fmt.Errorf("conversation: answer: %w", err)
	}
	helpers.MarkAnswered(x.upd)
	return nil
}

// Delete removes the anchor message, immediately or after the given delay,
// and drops its back buttons.
func (x *Context) Delete(after time.Duration) error {
	if !x.anchor.Valid() {
		return ErrNotCallback
	}
	target := x.anchor
	key := x.Key()
	ctx := x.ctx
	del := func() error {
		x.e.nav.Release(ctx, key)
		if err := x.e.bot.Delete(target.Editable()); err != nil {
			logger.Warn(ctx, logger.CompTG, "screen.delete",
				slog.String("status", "fail"),
				slog.Int("anchor_id", target.MessageID),
				slog.Any("err", err),
			)
			return fmt.Errorf("conversation: delete: %w", err)
		}
		return nil
	}
	if after <= 0 {
		return del()
	}
	time.AfterFunc(after, func() { _ = del() })
	return nil
}
