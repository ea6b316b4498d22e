package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/m3rciful/feedbot/core/buildinfo"
	"github.com/m3rciful/feedbot/core/config"
)

// Component names used across the core.
const (
	CompApp      = "app"
	CompTG       = "tg"
	CompWire     = "tg.wire"
	CompNav      = "tg.nav"
	CompSession  = "tg.session"
	CompSender   = "tg.sender"
	CompNotify   = "notify"
	CompDB       = "db"
	CompMigrate  = "db.migrate"
	CompShutdown = "shutdown"
)

var (
	initOnce sync.Once
	closeMu  sync.Mutex
	closed   bool

	sink    *asyncWriter
	files   []io.Closer
	level   slog.LevelVar
	sampler = newRatioSampler(1, 50)
	trace   bool

	// L is the process-wide structured logger. It stays nil until Init runs,
	// in which case every helper in this package is a no-op.
	L *slog.Logger

	// TG logs Telegram transport events.
	TG *slog.Logger
	// TWire logs runtime wiring steps.
	TWire *slog.Logger
	// DB logs database events.
	DB *slog.Logger
	// MIG logs schema migrations.
	MIG *slog.Logger
)

// Init configures the global structured logger. Only the first call has effect.
func Init(cfg *config.Config) error {
	var err error
	initOnce.Do(func() {
		var outputs []io.Writer
		outputs, files, err = openOutputs(cfg)
		if err != nil {
			return
		}
		level.Set(levelOf(cfg))
		num, den := sampleOf(cfg)
		sampler.Set(num, den)
		trace = truthy(os.Getenv("TRACE")) || truthy(os.Getenv("LOG_TRACE"))

		sink = newAsyncWriter(outputs, 64*1024)
		L = slog.New(newStructuredHandler(handlerConfig{
			level:    &level,
			writer:   sink,
			format:   formatOf(cfg),
			keyOrder: keyOrderOf(cfg),
		}))
		slog.SetDefault(L)

		TG = L.With("component", CompTG)
		TWire = L.With("component", CompWire)
		DB = L.With("component", CompDB)
		MIG = L.With("component", CompMigrate)

		attrs := []slog.Attr{
			slog.String("go_version", runtime.Version()),
			slog.String("build_commit", buildinfo.Commit),
			slog.String("build_time", buildinfo.Date),
		}
		if cfg != nil {
			attrs = append(attrs, slog.String("cfg_profile", profileOf(cfg)))
		}
		Info(context.Background(), CompApp, "startup", attrs...)
	})
	return err
}

// Shutdown flushes buffered output and closes opened log files.
func Shutdown() error {
	closeMu.Lock()
	defer closeMu.Unlock()
	if closed {
		return nil
	}
	closed = true

	var errs []error
	if sink != nil {
		errs = append(errs, sink.Flush(), sink.Close())
	}
	for _, f := range files {
		errs = append(errs, f.Close())
	}
	return errors.Join(errs...)
}

// Component returns L scoped to the named component.
func Component(name string) *slog.Logger {
	if L == nil {
		return nil
	}
	if name = strings.TrimSpace(name); name == "" {
		return L
	}
	return L.With("component", name)
}

// LogEvent writes one record with the event attribute first. A nil logg falls
// back to the context logger.
func LogEvent(ctx context.Context, logg *slog.Logger, lvl slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if logg == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, lvl, "", attrs...)
}

// Debug logs a debug event for component.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelDebug, event, attrs...)
}

// Info logs an info event for component.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelInfo, event, attrs...)
}

// Warn logs a warning event for component.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelWarn, event, attrs...)
}

// Error logs an error event for component.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), slog.LevelError, event, attrs...)
}

// ShouldSampleDebug reports whether a high-volume debug record should be emitted.
func ShouldSampleDebug() bool {
	return trace || sampler.Allow()
}

func openOutputs(cfg *config.Config) ([]io.Writer, []io.Closer, error) {
	writers := []io.Writer{os.Stdout}
	if cfg == nil {
		return writers, nil, nil
	}
	dir := strings.TrimSpace(cfg.Logging.Dir)
	name := strings.TrimSpace(cfg.Logging.BotFile)
	if dir == "" || name == "" {
		return writers, nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("logger: create log dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("logger: open log file %s: %w", path, err)
	}
	return append(writers, f), []io.Closer{f}, nil
}

func formatOf(cfg *config.Config) logFormat {
	if cfg == nil {
		return formatJSON
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Format)) {
	case "kv", "text", "pretty":
		return formatKV
	case "json":
		return formatJSON
	}
	switch profileOf(cfg) {
	case "debug", "dev":
		return formatKV
	}
	return formatJSON
}

func keyOrderOf(cfg *config.Config) []string {
	raw := ""
	if cfg != nil {
		raw = strings.TrimSpace(cfg.Logging.KeysOrder)
	}
	var order []string
	if raw != "" && raw != "default" {
		for _, p := range strings.Split(raw, ",") {
			if p = strings.TrimSpace(p); p != "" {
				order = append(order, p)
			}
		}
	}
	if len(order) == 0 {
		return append([]string(nil), defaultKeyOrder...)
	}
	return order
}

func levelOf(cfg *config.Config) slog.Level {
	if cfg == nil {
		return slog.LevelInfo
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Logging.Level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

func profileOf(cfg *config.Config) string {
	if p := strings.TrimSpace(cfg.Logging.Profile); p != "" {
		return strings.ToLower(p)
	}
	return "prod"
}

func sampleOf(cfg *config.Config) (int, int) {
	if cfg == nil || strings.TrimSpace(cfg.Logging.DebugSample) == "" {
		return 1, 50
	}
	num, den := parseRatioSpec(cfg.Logging.DebugSample)
	if num == 0 && den == 0 {
		return 0, 0
	}
	if num <= 0 || den <= 0 {
		return 1, 50
	}
	return num, den
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}
