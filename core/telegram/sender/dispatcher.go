// Package sender runs outbound Telegram calls on a bounded worker pool with
// retries, so producers such as the notification publisher never block on
// the Bot API.
package sender

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/feedbot/core/config"
	"github.com/m3rciful/feedbot/core/logger"
	"github.com/m3rciful/feedbot/core/telegram/netutil"
)

var (
	// ErrQueueClosed is returned when enqueue is attempted after Close.
	ErrQueueClosed = errors.New("telegram sender: queue closed")
	// ErrQueueFull indicates the queue is saturated and the job was not accepted.
	ErrQueueFull = errors.New("telegram sender: queue full")

	tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)
)

// Options controls the behaviour of the outbound dispatcher.
type Options struct {
	QueueSize    int
	Workers      int
	MaxRetries   int
	RetryBackoff time.Duration
	// MaxDuration bounds the time spent retrying a single job.
	MaxDuration time.Duration
}

// OptionsFrom maps the sender config section.
func OptionsFrom(cfg config.SenderConfig) Options {
	return Options{QueueSize: cfg.QueueSize, Workers: cfg.Workers, MaxRetries: cfg.MaxRetries}
}

// Job is one outbound call. Run must be safe to repeat when retries are on.
type Job struct {
	Op        string
	Recipient int64
	Run       func(ctx context.Context) error
}

type queued struct {
	ctx context.Context
	job Job
}

// Dispatcher executes outbound Telegram calls asynchronously with retries.
type Dispatcher struct {
	opts Options
	jobs chan queued

	mu     sync.RWMutex
	closed bool
	once   sync.Once
	wg     sync.WaitGroup

	sent atomic.Uint64
	errs atomic.Uint64
}

// NewDispatcher starts a dispatcher with sane defaults if options are zeroed.
func NewDispatcher(opts Options) *Dispatcher {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.RetryBackoff <= 0 {
		opts.RetryBackoff = 2 * time.Second
	}
	if opts.MaxDuration <= 0 {
		opts.MaxDuration = 30 * time.Second
	}

	d := &Dispatcher{
		opts: opts,
		jobs: make(chan queued, opts.QueueSize),
	}
	d.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go d.worker()
	}
	return d
}

// Enqueue schedules job without waiting for it to run.
func (d *Dispatcher) Enqueue(ctx context.Context, job Job) error {
	if job.Run == nil {
		return errors.New("telegram sender: nil run function")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrQueueClosed
	}
	select {
	case d.jobs <- queued{ctx: context.WithoutCancel(ctx), job: job}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Sent returns the number of jobs that completed.
func (d *Dispatcher) Sent() uint64 { return d.sent.Load() }

// ErrorCount returns the number of failed jobs.
func (d *Dispatcher) ErrorCount() uint64 { return d.errs.Load() }

// Pending returns the number of queued jobs.
func (d *Dispatcher) Pending() int { return len(d.jobs) }

// Close stops accepting jobs and waits for the queued ones to finish.
func (d *Dispatcher) Close() {
	d.once.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.jobs)
		d.mu.Unlock()
		d.wg.Wait()
		logger.Info(context.Background(), logger.CompSender, "sender.stop",
			slog.Uint64("count", d.sent.Load()),
			slog.Uint64("errors", d.errs.Load()),
		)
	})
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for q := range d.jobs {
		d.handle(q.ctx, q.job)
	}
}

func (d *Dispatcher) handle(ctx context.Context, job Job) {
	runCtx, cancel := context.WithTimeout(ctx, d.opts.MaxDuration)
	defer cancel()

	start := time.Now()
	attempts := d.opts.MaxRetries + 1
	var lastErr error
	attempt := 1
	for ; attempt <= attempts; attempt++ {
		if err := runCtx.Err(); err != nil {
			lastErr = err
			break
		}
		lastErr = job.Run(runCtx)
		if lastErr == nil {
			break
		}
		delay, retry := d.backoff(lastErr, attempt)
		if !retry || attempt == attempts {
			break
		}
		logger.Debug(ctx, logger.CompSender, "send.retry",
			append(jobAttrs(job),
				slog.Int("attempts", attempt),
				slog.Duration("backoff", delay),
				slog.String("err_code", classifyError(lastErr)),
			)...,
		)
		timer := time.NewTimer(delay)
		select {
		case <-runCtx.Done():
			timer.Stop()
			lastErr = runCtx.Err()
			attempt = attempts + 1
		case <-timer.C:
		}
	}
	attempt = min(attempt, attempts)

	if lastErr == nil {
		d.sent.Add(1)
		attrs := append(jobAttrs(job),
			slog.String("status", "ok"),
			slog.Duration("duration", logger.Took(start)),
		)
		if attempt > 1 {
			attrs = append(attrs, slog.Int("attempts", attempt))
		}
		logger.Debug(ctx, logger.CompSender, "send.done", attrs...)
		return
	}

	d.errs.Add(1)
	logger.Error(ctx, logger.CompSender, "send.done",
		append(jobAttrs(job),
			slog.String("status", "fail"),
			slog.Int("attempts", attempt),
			slog.Duration("duration", logger.Took(start)),
			slog.String("err", sanitizeErrorMessage(lastErr)),
			slog.String("err_code", classifyError(lastErr)),
			slog.Bool("retryable", netutil.ShouldRetry(lastErr)),
		)...,
	)
}

// backoff reports how long to wait before the next attempt. Flood control
// answers carry their own delay.
func (d *Dispatcher) backoff(err error, attempt int) (time.Duration, bool) {
	var flood tele.FloodError
	if errors.As(err, &flood) {
		if flood.RetryAfter > 0 {
			return time.Duration(flood.RetryAfter) * time.Second, true
		}
		return d.opts.RetryBackoff, true
	}
	if netutil.ShouldRetry(err) {
		return d.opts.RetryBackoff * time.Duration(attempt), true
	}
	return 0, false
}

func jobAttrs(job Job) []slog.Attr {
	attrs := []slog.Attr{slog.String("op", job.Op)}
	if job.Recipient != 0 {
		attrs = append(attrs, slog.Int64("recipient", job.Recipient))
	}
	return attrs
}

func classifyError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		return "rate_limited"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return "timeout"
		}
		return "dns"
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Timeout() {
			return "timeout"
		}
		if opErr.Op == "dial" {
			return "dial"
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return "timeout"
	}

	var alertErr tls.AlertError
	if errors.As(err, &alertErr) {
		return "tls"
	}

	switch status := httpStatus(err); {
	case status >= 500:
		return "http_5xx"
	case status >= 400:
		return "http_4xx"
	}
	return "unknown"
}

func httpStatus(err error) int {
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var groupErr tele.GroupError
	if errors.As(err, &groupErr) {
		return http.StatusBadRequest
	}
	return 0
}

// sanitizeErrorMessage prevents accidental leakage of bot tokens in logs.
func sanitizeErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}
