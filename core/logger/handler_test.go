package logger

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestLogger(t *testing.T, format logFormat) (*slog.Logger, func() string) {
	t.Helper()
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	h := newStructuredHandler(handlerConfig{
		level:  slog.LevelDebug,
		writer: aw,
		format: format,
	})
	return slog.New(h), func() string {
		require.NoError(t, aw.Close())
		return strings.TrimSpace(buf.String())
	}
}

func TestStructuredHandlerKVOrder(t *testing.T) {
	log, read := newTestLogger(t, formatKV)
	ctx := WithRID(context.Background(), "rid-123")
	ctx = WithUpdateMeta(ctx, 42, 7, 9)

	LogEvent(ctx, log.With("component", CompNav), slog.LevelInfo, "nav.return",
		slog.String("status", "ok"),
		slog.String("token", "abc"),
	)

	tokens := strings.Split(read(), " ")
	expected := []string{"ts=", "level=INFO", "component=tg.nav", "event=nav.return", "status=ok", "rid=rid-123", "update_id=42", "user_id=7", "chat_id=9"}
	require.GreaterOrEqual(t, len(tokens), len(expected))
	for i, prefix := range expected {
		require.Truef(t, strings.HasPrefix(tokens[i], prefix), "token %d = %s, want prefix %s", i, tokens[i], prefix)
	}
}

func TestStructuredHandlerJSONOrder(t *testing.T) {
	log, read := newTestLogger(t, formatJSON)
	ctx := WithUpdateMeta(WithRID(context.Background(), "rid-json"), 11, 22, 33)

	LogEvent(ctx, log.With("component", CompSession), slog.LevelError, "session.await",
		slog.String("status", "fail"),
		slog.Any("err", errors.New("boom")),
	)

	line := read()
	require.True(t, strings.HasPrefix(line, "{"))
	pos := -1
	for _, pref := range []string{`{"ts":`, `"level":"ERROR"`, `"component":"tg.session"`, `"event":"session.await"`, `"status":"fail"`, `"rid":"rid-json"`, `"err":"boom"`} {
		idx := strings.Index(line, pref)
		require.Greaterf(t, idx, pos, "prefix %s out of order in %s", pref, line)
		pos = idx
	}
}

func TestStructuredHandlerCompactRID(t *testing.T) {
	log, read := newTestLogger(t, formatKV)
	raw := BuildRID(123, 456, 789)
	LogEvent(WithRID(context.Background(), raw), log, slog.LevelInfo, "rid.test")

	line := read()
	require.Contains(t, line, "rid="+CompactRID(raw))
	require.NotContains(t, line, "rid_full=")
	require.Equal(t, "3f.co.lx", CompactRID(raw))
}

func TestStructuredHandlerCompactRIDJSON(t *testing.T) {
	log, read := newTestLogger(t, formatJSON)
	raw := "12:34:56"
	LogEvent(WithRID(context.Background(), raw), log, slog.LevelInfo, "rid.test")

	line := read()
	require.Contains(t, line, `"rid":"`+CompactRID(raw)+`"`)
	require.Contains(t, line, `"rid_full":"`+raw+`"`)
	require.Contains(t, line, `"ts_unix_nano"`)
}

func TestStructuredHandlerNormalizesValues(t *testing.T) {
	log, read := newTestLogger(t, formatKV)
	LogEvent(context.Background(), log, slog.LevelWarn, "x.y",
		slog.Group("req",
			slog.Duration("duration", 1500*time.Microsecond),
			slog.String("empty", ""),
			slog.String("text", "a b"),
		),
		slog.String("outcome", "bogus"),
	)

	line := read()
	require.Contains(t, line, "level=WARN")
	require.Contains(t, line, "req.duration_ms=2")
	require.Contains(t, line, `req.text="a b"`)
	require.NotContains(t, line, "req.empty")
	require.NotContains(t, line, "outcome=")
	require.Contains(t, line, "event=x.y")
}

func TestRatioSampler(t *testing.T) {
	s := newRatioSampler(1, 3)
	got := []bool{s.Allow(), s.Allow(), s.Allow(), s.Allow()}
	require.Equal(t, []bool{true, false, false, true}, got)

	s.Set(0, 0)
	require.True(t, s.Allow())

	num, den := parseRatioSpec("2/5")
	require.Equal(t, 2, num)
	require.Equal(t, 5, den)
	num, den = parseRatioSpec("10")
	require.Equal(t, 1, num)
	require.Equal(t, 10, den)
}

func TestSanitizeLimit(t *testing.T) {
	require.Equal(t, "ab\tc", SanitizeLimit("a\x00b\tc\u200e", 10))
	require.Equal(t, "ab", SanitizeLimit("abc", 2))
	require.Equal(t, "", SanitizeLimit("abc", 0))
}
