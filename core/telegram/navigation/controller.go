package navigation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/feedbot/core/config"
	"github.com/m3rciful/feedbot/core/logger"
	"github.com/m3rciful/feedbot/core/telegram/callbacks"
	"github.com/m3rciful/feedbot/core/telegram/screen"
)

// ErrNoAnchor is returned when a back button is requested for a screen that
// has no message to anchor to.
var ErrNoAnchor = errors.New("navigation: screen has no anchor message")

// Transport is the part of *tele.Bot the controller needs.
type Transport interface {
	screen.Editor
	Respond(c *tele.Callback, resp ...*tele.CallbackResponse) error
}

// WaitCanceler aborts a pending free-text wait of a user.
type WaitCanceler interface {
	Cancel(userID int64) bool
}

// Outcome is the result of intercepting a button press.
type Outcome int

const (
	// OutcomePass hands the press on to regular routing.
	OutcomePass Outcome = iota
	// OutcomeReturned means a prior screen was restored.
	OutcomeReturned
	// OutcomeExpired means the back button no longer maps to anything.
	OutcomeExpired
)

func (o Outcome) String() string {
	switch o {
	case OutcomeReturned:
		return "returned"
	case OutcomeExpired:
		return "expired"
	}
	return "pass"
}

// Controller wires History and Returns to the transport.
type Controller struct {
	tr      Transport
	history *History
	returns *Returns
	waits   WaitCanceler

	backText    string
	expiredText string
	newToken    func() string
}

// Option customises a Controller.
type Option func(*Controller)

// WithTexts overrides the back button label and the expired notice.
func WithTexts(back, expired string) Option {
	return func(c *Controller) {
		if back != "" {
			c.backText = back
		}
		if expired != "" {
			c.expiredText = expired
		}
	}
}

// WithWaitCanceler lets a successful return abort the user's pending wait.
func WithWaitCanceler(w WaitCanceler) Option {
	return func(c *Controller) { c.waits = w }
}

// WithTokenSource replaces uuid.NewString.
func WithTokenSource(fn func() string) Option {
	return func(c *Controller) {
		if fn != nil {
			c.newToken = fn
		}
	}
}

// NewController builds a controller. Nil stores are created empty.
func NewController(tr Transport, history *History, returns *Returns, opts ...Option) *Controller {
	if history == nil {
		history = NewHistory()
	}
	if returns == nil {
		returns = NewReturns()
	}
	c := &Controller{
		tr:          tr,
		history:     history,
		returns:     returns,
		backText:    config.DefaultBackButtonText,
		expiredText: config.DefaultExpiredText,
		newToken:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// History exposes the history store.
func (c *Controller) History() *History { return c.history }

// Returns exposes the return-action registry.
func (c *Controller) Returns() *Returns { return c.returns }

// ReturnRequest describes a back button to attach to a screen being rendered.
type ReturnRequest struct {
	Key Key
	// Current is the screen shown before the render replaces it.
	Current screen.Screen
	// Data is the callback data that triggered the render.
	Data    string
	Grouped bool
	// Refresh makes the back button re-run the previous step's handler
	// instead of restoring a stored screen.
	Refresh bool
	After   AfterFunc
	Owner   context.Context
}

// AttachReturn records the step in the history and returns the back button
// to append to the new screen's keyboard.
func (c *Controller) AttachReturn(ctx context.Context, req ReturnRequest) (tele.InlineButton, error) {
	if req.Key.MessageID == 0 || req.Key.ChatID == 0 {
		return tele.InlineButton{}, ErrNoAnchor
	}
	req.Current.ChatID, req.Current.MessageID = req.Key.ChatID, req.Key.MessageID
	c.history.PushUnlessTop(req.Key, Entry{Screen: req.Current, Data: req.Data, Refresh: req.Refresh})

	if req.Refresh {
		if prev, ok := c.history.PeekBack(req.Key, 1); ok && prev.Data != "" {
			logger.Debug(ctx, logger.CompNav, "nav.attach",
				slog.Int("anchor_id", req.Key.MessageID),
				slog.Bool("refresh", true),
			)
			return tele.InlineButton{Text: c.backText, Data: prev.Data}, nil
		}
	}

	reversal := req.Current
	target, depth, ok := c.history.EffectiveTarget(req.Key, 0)
	if ok && depth > 0 {
		reversal = target.Screen
	} else {
		depth = 0
	}
	owner := req.Owner
	if owner == nil {
		owner = context.WithoutCancel(ctx)
	}
	row := c.returns.Add(ReturnAction{
		Token:    c.newToken(),
		Key:      req.Key,
		Reversal: reversal,
		Owner:    owner,
		After:    req.After,
		Grouped:  req.Grouped,
		Depth:    depth,
	})
	logger.Debug(ctx, logger.CompNav, "nav.attach",
		slog.Int("anchor_id", req.Key.MessageID),
		slog.String("token", row.Token),
		slog.Bool("grouped", row.Grouped),
		slog.Int("depth", depth),
	)
	return tele.InlineButton{Text: c.backText, Data: callbacks.ReturnData(row.Token)}, nil
}

// Press is one inbound button press.
type Press struct {
	UserID   int64
	Callback *tele.Callback
	Payload  callbacks.Payload
}

// Intercept handles back-button presses. Every press refreshes the expiry of
// the rows anchored at its message. Presses that are not returns pass through.
func (c *Controller) Intercept(ctx context.Context, p Press) (Outcome, error) {
	cb := p.Callback
	if cb == nil {
		return OutcomePass, nil
	}
	if msg := cb.Message; msg != nil && msg.Chat != nil {
		c.returns.Touch(msg.Chat.ID, msg.ID)
	}
	if p.Payload.Kind != callbacks.KindReturn {
		return OutcomePass, nil
	}

	target, claimed, ok := c.returns.Claim(p.Payload.Token)
	if !ok {
		logger.Info(ctx, logger.CompNav, "nav.return",
			slog.String("status", "expired"),
			slog.String("token", p.Payload.Token),
		)
		err := c.tr.Respond(cb, &tele.CallbackResponse{Text: c.expiredText})
		return OutcomeExpired, err
	}

	c.history.Rewind(target.Key, target.Depth+len(claimed))

	var errs []error
	restoreErr := target.Reversal.Apply(c.tr)
	if restoreErr != nil {
		errs = append(errs, fmt.Errorf("navigation: restore screen: %w", restoreErr))
	} else if target.After != nil {
		owner := pressedOwner(p.Payload.Token, target, claimed)
		if owner == nil {
			owner = ctx
		}
		if err := target.After(owner); err != nil {
			errs = append(errs, fmt.Errorf("navigation: after return: %w", err))
		}
	}
	cancelled := false
	if c.waits != nil {
		cancelled = c.waits.Cancel(p.UserID)
	}
	if err := c.tr.Respond(cb); err != nil {
		errs = append(errs, err)
	}

	err := errors.Join(errs...)
	attrs := []slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.String("token", p.Payload.Token),
		slog.Bool("grouped", target.Grouped),
		slog.Int("removed", len(claimed)),
		slog.Bool("cancelled", cancelled),
	}
	if err != nil {
		attrs = append(attrs, slog.Any("err", err))
		logger.Warn(ctx, logger.CompNav, "nav.return", attrs...)
	} else {
		logger.Info(ctx, logger.CompNav, "nav.return", attrs...)
	}
	return OutcomeReturned, err
}

// pressedOwner returns the owner context of the row behind the pressed
// token. For grouped returns it differs from the target's.
func pressedOwner(token string, target ReturnAction, claimed []ReturnAction) context.Context {
	for _, row := range claimed {
		if row.Token == token {
			return row.Owner
		}
	}
	return target.Owner
}

// Release drops the return rows of key, e.g. when the flow behind a prompt
// gave up waiting.
func (c *Controller) Release(ctx context.Context, key Key) int {
	n := c.returns.Release(key)
	if n > 0 {
		logger.Debug(ctx, logger.CompNav, "nav.release",
			slog.Int("anchor_id", key.MessageID),
			slog.Int("removed", n),
		)
	}
	return n
}
