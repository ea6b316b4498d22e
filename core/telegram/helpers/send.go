package helpers

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/feedbot/core/logger"
	"github.com/m3rciful/feedbot/core/telegram/sender"
)

var globalDispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher wires the asynchronous sender used by helper functions.
func SetDispatcher(d *sender.Dispatcher) {
	globalDispatcher.Store(d)
}

// Enqueue runs job through the dispatcher, or inline when none is wired or
// the queue refuses it.
func Enqueue(ctx context.Context, job sender.Job) error {
	disp := globalDispatcher.Load()
	if disp == nil {
		return job.Run(ctx)
	}
	err := disp.Enqueue(ctx, job)
	if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
		logger.Warn(ctx, logger.CompSender, "queue.fallback",
			slog.String("op", job.Op),
			slog.Any("err", err),
		)
		return job.Run(ctx)
	}
	return err
}

// SendText sends raw text (no parse mode) to the current recipient.
func SendText(c tele.Context, text string, opts ...*tele.SendOptions) error {
	var sendOpts *tele.SendOptions
	if len(opts) > 0 {
		sendOpts = opts[0]
	}
	var recipient int64
	if chat := c.Chat(); chat != nil {
		recipient = chat.ID
	}
	return Enqueue(BuildContext(c), sender.Job{Op: "send.text", Recipient: recipient, Run: func(context.Context) error {
		if sendOpts != nil {
			return c.Send(text, sendOpts)
		}
		return c.Send(text)
	}})
}

// SendMD sends a message with Markdown parse mode and optional reply markup.
func SendMD(c tele.Context, text string, markup ...*tele.ReplyMarkup) error {
	var rm *tele.ReplyMarkup
	if len(markup) > 0 {
		rm = markup[0]
	}
	return SendText(c, text, &tele.SendOptions{ParseMode: tele.ModeMarkdown, ReplyMarkup: rm})
}
