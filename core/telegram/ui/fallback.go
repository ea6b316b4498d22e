// Package ui holds the bot's default replies to updates nothing else handled.
package ui

import (
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/feedbot/core/config"
	tghelpers "github.com/m3rciful/feedbot/core/telegram/helpers"
)

// FallbackProvider exposes handlers used when incoming updates
// cannot be mapped to commands, callbacks, or expected documents.
type FallbackProvider interface {
	UnknownText() tele.HandlerFunc
	UnknownDocument() tele.HandlerFunc
	UnknownCallback() tele.HandlerFunc
}

// DefaultDocumentText answers files sent outside of a prompt.
const DefaultDocumentText = "Files are not accepted here"

// Fallbacks is the stock FallbackProvider.
type Fallbacks struct {
	// ExpiredText answers presses of buttons no handler knows, typically
	// keyboards rendered before a restart.
	ExpiredText  string
	DocumentText string
}

// NewFallbacks takes the expired notice from cfg.
func NewFallbacks(cfg *config.Config) Fallbacks {
	f := Fallbacks{ExpiredText: config.DefaultExpiredText, DocumentText: DefaultDocumentText}
	if cfg != nil && cfg.Navigation.ExpiredText != "" {
		f.ExpiredText = cfg.Navigation.ExpiredText
	}
	return f
}

// UnknownText returns nil so the router removes the message.
func (f Fallbacks) UnknownText() tele.HandlerFunc { return nil }

// UnknownDocument tells the user files are not expected.
func (f Fallbacks) UnknownDocument() tele.HandlerFunc {
	return func(c tele.Context) error {
		return tghelpers.SendText(c, f.DocumentText)
	}
}

// UnknownCallback shows the expired notice on the pressed button.
func (f Fallbacks) UnknownCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		tghelpers.MarkAnswered(c)
		return c.Respond(&tele.CallbackResponse{Text: f.ExpiredText})
	}
}
