package sender

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

func TestDispatcherRunsJobs(t *testing.T) {
	d := NewDispatcher(Options{Workers: 2})
	var n atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, d.Enqueue(context.Background(), Job{Op: "test", Run: func(context.Context) error {
			n.Add(1)
			return nil
		}}))
	}
	d.Close()
	require.EqualValues(t, 10, n.Load())
	require.EqualValues(t, 10, d.Sent())
	require.Zero(t, d.ErrorCount())
}

func TestDispatcherRetriesTransientErrors(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 2, RetryBackoff: time.Millisecond})
	var calls atomic.Int32
	dial := &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	require.NoError(t, d.Enqueue(context.Background(), Job{Op: "test", Run: func(context.Context) error {
		if calls.Add(1) < 3 {
			return dial
		}
		return nil
	}}))
	d.Close()
	require.EqualValues(t, 3, calls.Load())
	require.EqualValues(t, 1, d.Sent())
}

func TestDispatcherGivesUpOnPermanentErrors(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, MaxRetries: 3, RetryBackoff: time.Millisecond})
	var calls atomic.Int32
	require.NoError(t, d.Enqueue(context.Background(), Job{Op: "test", Run: func(context.Context) error {
		calls.Add(1)
		return errors.New("chat not found")
	}}))
	d.Close()
	require.EqualValues(t, 1, calls.Load())
	require.EqualValues(t, 1, d.ErrorCount())
}

func TestDispatcherQueueLimits(t *testing.T) {
	d := NewDispatcher(Options{Workers: 1, QueueSize: 1})
	release := make(chan struct{})
	started := make(chan struct{})
	block := Job{Op: "block", Run: func(context.Context) error {
		close(started)
		<-release
		return nil
	}}
	require.NoError(t, d.Enqueue(context.Background(), block))
	<-started
	noop := Job{Op: "noop", Run: func(context.Context) error { return nil }}
	require.NoError(t, d.Enqueue(context.Background(), noop))
	require.ErrorIs(t, d.Enqueue(context.Background(), noop), ErrQueueFull)

	close(release)
	d.Close()
	require.ErrorIs(t, d.Enqueue(context.Background(), noop), ErrQueueClosed)
	require.Error(t, d.Enqueue(context.Background(), Job{Op: "nil"}))
}

func TestClassifyError(t *testing.T) {
	require.Equal(t, "timeout", classifyError(context.DeadlineExceeded))
	require.Equal(t, "dial", classifyError(&net.OpError{Op: "dial", Err: errors.New("refused")}))
	require.Equal(t, "rate_limited", classifyError(tele.FloodError{RetryAfter: 3}))
	require.Equal(t, "unknown", classifyError(errors.New("boom")))
	require.Equal(t, "bot<redacted>/sendMessage", sanitizeErrorMessage(errors.New("bot123:abc_DEF/sendMessage")))
}
