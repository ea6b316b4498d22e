// Package session suspends a handler until the user's next text message
// arrives, with validation, timeout and cancellation.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/feedbot/core/config"
	"github.com/m3rciful/feedbot/core/logger"
	"github.com/m3rciful/feedbot/core/telegram/screen"
)

var (
	// ErrAlreadyWaiting reports a second wait registered for the same user.
	ErrAlreadyWaiting = errors.New("session: user already has a pending wait")
	// ErrTimeout is returned when no acceptable message arrived in time.
	ErrTimeout = errors.New("session: timed out waiting for message")
	// ErrCancelled is returned when the wait was aborted.
	ErrCancelled = errors.New("session: wait cancelled")
)

// Editor is the part of *tele.Bot the manager needs.
type Editor interface {
	screen.Editor
	Delete(msg tele.Editable) error
}

// Request describes one wait for the next message of a user.
type Request struct {
	UserID  int64
	Timeout time.Duration
	// ErrorText replaces the prompt when the filter rejects a message.
	ErrorText string
	// WaitingText replaces the prompt once a message was accepted.
	WaitingText string
	Filter      Filter
	// Trail holds the screens rendered by the waiting handler; its tail is
	// the prompt.
	Trail *screen.Trail
}

// Delivery is what happened to an inbound text message.
type Delivery int

const (
	// DeliveryUnsolicited means nobody was waiting for the message.
	DeliveryUnsolicited Delivery = iota
	// DeliveryAccepted means a waiter received the message.
	DeliveryAccepted
	// DeliveryRejected means the filter refused the message and the wait goes on.
	DeliveryRejected
)

func (d Delivery) String() string {
	switch d {
	case DeliveryAccepted:
		return "accepted"
	case DeliveryRejected:
		return "rejected"
	}
	return "unsolicited"
}

type outcome struct {
	msg *tele.Message
	err error
}

// pendingWait is resolved exactly once by whoever removes it from the map.
type pendingWait struct {
	req  Request
	done chan outcome
}

// Manager tracks at most one pending wait per user.
type Manager struct {
	ed Editor

	mu    sync.Mutex
	waits map[int64]*pendingWait

	timeout     time.Duration
	errorText   string
	waitingText string
}

// Option customises a Manager.
type Option func(*Manager)

// WithDefaults sets the timeout and texts used when a Request leaves them empty.
func WithDefaults(timeout time.Duration, errorText, waitingText string) Option {
	return func(m *Manager) {
		if timeout > 0 {
			m.timeout = timeout
		}
		if errorText != "" {
			m.errorText = errorText
		}
		if waitingText != "" {
			m.waitingText = waitingText
		}
	}
}

// NewManager builds a manager editing and deleting messages through ed.
func NewManager(ed Editor, opts ...Option) *Manager {
	m := &Manager{
		ed:          ed,
		waits:       make(map[int64]*pendingWait),
		timeout:     config.DefaultTimeoutSeconds * time.Second,
		errorText:   config.DefaultErrorText,
		waitingText: config.DefaultWaitingText,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Await blocks until the user sends a message accepted by the filter, the
// timeout elapses, the wait is cancelled or ctx is done.
func (m *Manager) Await(ctx context.Context, req Request) (*tele.Message, error) {
	if req.Timeout <= 0 {
		req.Timeout = m.timeout
	}
	if req.ErrorText == "" {
		req.ErrorText = m.errorText
	}
	if req.WaitingText == "" {
		req.WaitingText = m.waitingText
	}
	if req.Filter == nil {
		req.Filter = Any
	}
	w := &pendingWait{req: req, done: make(chan outcome, 1)}

	m.mu.Lock()
	if _, busy := m.waits[req.UserID]; busy {
		m.mu.Unlock()
		logger.Error(ctx, logger.CompSession, "session.await",
			slog.String("status", "fail"),
			slog.Any("err", ErrAlreadyWaiting),
		)
		return nil, ErrAlreadyWaiting
	}
	m.waits[req.UserID] = w
	m.mu.Unlock()

	logger.Debug(ctx, logger.CompSession, "session.await",
		slog.Duration("timeout", req.Timeout),
	)

	timer := time.NewTimer(req.Timeout)
	defer timer.Stop()

	select {
	case out := <-w.done:
		return out.msg, out.err
	case <-timer.C:
		if m.remove(req.UserID, w) {
			logger.Info(ctx, logger.CompSession, "session.resume",
				slog.String("status", "timeout"),
				slog.Duration("timeout", req.Timeout),
			)
			return nil, ErrTimeout
		}
	case <-ctx.Done():
		if m.remove(req.UserID, w) {
			return nil, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		}
	}
	// lost the race: the winner has sent or is about to send the outcome
	out := <-w.done
	return out.msg, out.err
}

// Deliver offers an inbound text message to the sender's pending wait.
func (m *Manager) Deliver(ctx context.Context, msg *tele.Message) Delivery {
	if msg == nil || msg.Sender == nil {
		return DeliveryUnsolicited
	}
	uid := msg.Sender.ID

	m.mu.Lock()
	w := m.waits[uid]
	m.mu.Unlock()
	if w == nil {
		return DeliveryUnsolicited
	}

	if !w.req.Filter(msg) {
		m.deleteMessage(ctx, msg)
		if prompt, ok := w.req.Trail.Last(); ok {
			m.apply(ctx, prompt.WithText(w.req.ErrorText), "error")
		}
		logger.Info(ctx, logger.CompSession, "session.deliver",
			slog.String("status", "skip"),
			slog.String("op", DeliveryRejected.String()),
		)
		return DeliveryRejected
	}

	if !m.remove(uid, w) {
		return DeliveryUnsolicited
	}
	m.deleteMessage(ctx, msg)
	if prompt, ok := w.req.Trail.Last(); ok {
		m.apply(ctx, prompt.WithText(w.req.WaitingText).WithKeyboard(nil), "waiting")
	}
	w.done <- outcome{msg: msg}
	logger.Info(ctx, logger.CompSession, "session.deliver",
		slog.String("status", "ok"),
		slog.String("op", DeliveryAccepted.String()),
	)
	return DeliveryAccepted
}

// Cancel aborts the user's pending wait. It reports whether one existed.
func (m *Manager) Cancel(userID int64) bool {
	m.mu.Lock()
	w, ok := m.waits[userID]
	if ok {
		delete(m.waits, userID)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	w.done <- outcome{err: ErrCancelled}
	return true
}

// Discard deletes an unsolicited message from the chat.
func (m *Manager) Discard(ctx context.Context, msg *tele.Message) {
	if msg == nil {
		return
	}
	m.deleteMessage(ctx, msg)
}

// Pending reports whether userID has a wait in progress.
func (m *Manager) Pending(userID int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.waits[userID]
	return ok
}

// Len reports the number of pending waits.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.waits)
}

func (m *Manager) remove(userID int64, w *pendingWait) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.waits[userID] != w {
		return false
	}
	delete(m.waits, userID)
	return true
}

func (m *Manager) deleteMessage(ctx context.Context, msg *tele.Message) {
	if m.ed == nil {
		return
	}
	if err := m.ed.Delete(msg); err != nil {
		logger.Warn(ctx, logger.CompSession, "session.delete",
			slog.String("status", "fail"),
			slog.Any("err", err),
		)
	}
}

func (m *Manager) apply(ctx context.Context, s screen.Screen, op string) {
	if m.ed == nil || strings.TrimSpace(s.Text) == "" {
		return
	}
	if err := s.Apply(m.ed); err != nil {
		logger.Warn(ctx, logger.CompSession, "session.edit",
			slog.String("status", "fail"),
			slog.String("op", op),
			slog.Any("err", err),
		)
	}
}
