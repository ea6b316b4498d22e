package conversation

import (
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/feedbot/core/telegram/navigation"
	"github.com/m3rciful/feedbot/core/telegram/session"
)

type renderOptions struct {
	noReturn  bool
	grouped   bool
	refresh   bool
	after     navigation.AfterFunc
	parseMode tele.ParseMode
}

// RenderOption tunes EditScreen, EditMedia and SendScreen.
type RenderOption func(*renderOptions)

func collectRender(opts []RenderOption) renderOptions {
	var ro renderOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&ro)
		}
	}
	return ro
}

// NoReturn renders without a back button.
func NoReturn() RenderOption {
	return func(o *renderOptions) { o.noReturn = true }
}

// Grouped makes every back button rendered on the anchor collapse to the
// first screen of the group.
func Grouped() RenderOption {
	return func(o *renderOptions) { o.grouped = true }
}

// RefreshReturn makes the back button re-run the previous step's handler.
func RefreshReturn() RenderOption {
	return func(o *renderOptions) { o.refresh = true }
}

// AfterReturn runs fn once the back button restored the previous screen.
func AfterReturn(fn navigation.AfterFunc) RenderOption {
	return func(o *renderOptions) { o.after = fn }
}

// WithParseMode sets the parse mode of the rendered text.
func WithParseMode(mode tele.ParseMode) RenderOption {
	return func(o *renderOptions) { o.parseMode = mode }
}

// WaitOption tunes NextMessage.
type WaitOption func(*session.Request)

// Timeout bounds the wait.
func Timeout(d time.Duration) WaitOption {
	return func(r *session.Request) { r.Timeout = d }
}

// ErrorText is shown on the prompt when the filter rejects a message.
func ErrorText(text string) WaitOption {
	return func(r *session.Request) { r.ErrorText = text }
}

// WaitingText is shown on the prompt once a message was accepted.
func WaitingText(text string) WaitOption {
	return func(r *session.Request) { r.WaitingText = text }
}

// Filter restricts which messages satisfy the wait.
func Filter(f session.Filter) WaitOption {
	return func(r *session.Request) { r.Filter = f }
}
