// Package notify delivers feed items and status changes to subscribers.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/feedbot/core/logger"
	"github.com/m3rciful/feedbot/core/telegram/format"
	"github.com/m3rciful/feedbot/core/telegram/sender"
)

// Sender is the part of *tele.Bot used to deliver notifications.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Queue schedules outbound jobs. *sender.Dispatcher satisfies it.
type Queue interface {
	Enqueue(ctx context.Context, job sender.Job) error
}

// Notification is one outbound message.
type Notification struct {
	Recipient int64
	Text      string
	ParseMode tele.ParseMode
	// Photo, when set, is sent with Text as its caption.
	Photo          *tele.Photo
	Markup         *tele.ReplyMarkup
	DisablePreview bool
}

// Item is a feed entry. IDs grow monotonically within a feed.
type Item struct {
	ID    int64
	Title string
	Link  string
	Photo *tele.Photo
}

// Notification renders the item as a MarkdownV2 message.
func (it Item) Notification(recipient int64) Notification {
	title := format.EscapeV2(strings.TrimSpace(it.Title))
	text := title
	if it.Link != "" {
		link, _ := format.EscapeMarkdown(it.Link, format.MarkdownV2, format.EntityTextLink)
		if title == "" {
			title = format.EscapeV2(it.Link)
		}
		text = "[" + title + "](" + link + ")"
	}
	return Notification{
		Recipient: recipient,
		Text:      text,
		ParseMode: tele.ModeMarkdownV2,
		Photo:     it.Photo,
	}
}

// Publisher sends notifications and remembers what each recipient has seen.
type Publisher struct {
	sender Sender
	queue  Queue
	store  CursorStore

	mu sync.Mutex
}

// Option customises a Publisher.
type Option func(*Publisher)

// WithQueue routes sends through q instead of sending inline.
func WithQueue(q Queue) Option {
	return func(p *Publisher) { p.queue = q }
}

// WithCursorStore overrides the in-memory cursor store.
func WithCursorStore(s CursorStore) Option {
	return func(p *Publisher) {
		if s != nil {
			p.store = s
		}
	}
}

// NewPublisher returns a publisher delivering through s.
func NewPublisher(s Sender, opts ...Option) *Publisher {
	p := &Publisher{sender: s, store: NewMemoryCursorStore()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish schedules n for delivery.
func (p *Publisher) Publish(ctx context.Context, n Notification) error {
	if n.Recipient == 0 {
		return errors.New("notify: empty recipient")
	}
	if n.Text == "" && n.Photo == nil {
		return errors.New("notify: empty notification")
	}
	job := sender.Job{Op: "notify.send", Recipient: n.Recipient, Run: func(context.Context) error {
		return p.deliver(n)
	}}
	if p.queue == nil {
		return job.Run(ctx)
	}
	return p.queue.Enqueue(ctx, job)
}

func (p *Publisher) deliver(n Notification) error {
	opts := &tele.SendOptions{
		ParseMode:             n.ParseMode,
		ReplyMarkup:           n.Markup,
		DisableWebPagePreview: n.DisablePreview,
	}
	var what interface{} = n.Text
	if n.Photo != nil {
		photo := *n.Photo
		photo.Caption = n.Text
		what = &photo
	}
	_, err := p.sender.Send(tele.ChatID(n.Recipient), what, opts)
	return err
}

// Prime sets the cursor of a new subscriber so only items above id are
// delivered to it.
func (p *Publisher) Prime(ctx context.Context, feed string, recipient int64, id int64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.store.Advance(ctx, feed, recipient, id); err != nil {
		return fmt.Errorf("notify: prime cursor: %w", err)
	}
	return nil
}

// PublishNew publishes the items newer than the recipient's cursor, oldest
// first, and advances the cursor. items are expected newest first. The first
// call for a feed and recipient only records the cursor. It returns the
// number of published items.
func (p *Publisher) PublishNew(ctx context.Context, feed string, recipient int64, items []Item) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	last, ok, err := p.store.Cursor(ctx, feed, recipient)
	if err != nil {
		return 0, fmt.Errorf("notify: read cursor: %w", err)
	}
	newest := maxID(items)
	if !ok {
		logger.Info(ctx, logger.CompNotify, "feed.prime",
			slog.String("feed", feed),
			slog.Int64("recipient", recipient),
			slog.Int64("cursor", newest),
		)
		return 0, p.store.Advance(ctx, feed, recipient, newest)
	}

	fresh := make([]Item, 0, len(items))
	for _, it := range items {
		if it.ID > last {
			fresh = append(fresh, it)
		}
	}
	if len(fresh) == 0 {
		return 0, nil
	}
	sort.SliceStable(fresh, func(i, j int) bool { return fresh[i].ID < fresh[j].ID })

	published := 0
	for _, it := range fresh {
		if err := p.Publish(ctx, it.Notification(recipient)); err != nil {
			logger.Warn(ctx, logger.CompNotify, "feed.publish",
				slog.String("status", "fail"),
				slog.String("feed", feed),
				slog.Int64("recipient", recipient),
				slog.Int64("item_id", it.ID),
				slog.Any("err", err),
			)
			if published > 0 {
				if aerr := p.store.Advance(ctx, feed, recipient, fresh[published-1].ID); aerr != nil {
					err = errors.Join(err, aerr)
				}
			}
			return published, fmt.Errorf("notify: publish item %d: %w", it.ID, err)
		}
		published++
	}
	if err := p.store.Advance(ctx, feed, recipient, newest); err != nil {
		return published, fmt.Errorf("notify: advance cursor: %w", err)
	}
	logger.Info(ctx, logger.CompNotify, "feed.publish",
		slog.String("status", "ok"),
		slog.String("feed", feed),
		slog.Int64("recipient", recipient),
		slog.Int("count", published),
		slog.Int64("cursor", newest),
	)
	return published, nil
}

func maxID(items []Item) int64 {
	var m int64
	for _, it := range items {
		m = max(m, it.ID)
	}
	return m
}

type statusKey struct {
	feed      string
	recipient int64
	subject   string
}

// StatusTracker detects on/off edges of live statuses.
type StatusTracker struct {
	mu   sync.Mutex
	last map[statusKey]bool
}

// NewStatusTracker returns an empty tracker.
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{last: make(map[statusKey]bool)}
}

// Observe records the status of subject and reports whether it changed since
// the previous observation. The first observation never counts as a change.
func (t *StatusTracker) Observe(feed string, recipient int64, subject string, on bool) bool {
	k := statusKey{feed: feed, recipient: recipient, subject: subject}
	t.mu.Lock()
	defer t.mu.Unlock()
	prev, seen := t.last[k]
	t.last[k] = on
	return seen && prev != on
}
