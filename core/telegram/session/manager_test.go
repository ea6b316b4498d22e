package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/feedbot/core/telegram/screen"
)

type fakeEditor struct {
	mu      sync.Mutex
	edits   []screen.Screen
	deleted []int
}

func (f *fakeEditor) Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := screen.Screen{Text: fmt.Sprint(what)}
	for _, o := range opts {
		if so, ok := o.(*tele.SendOptions); ok && so.ReplyMarkup != nil {
			s.Keyboard = so.ReplyMarkup.InlineKeyboard
		}
	}
	f.edits = append(f.edits, s)
	return &tele.Message{}, nil
}

func (f *fakeEditor) EditCaption(msg tele.Editable, caption string, opts ...interface{}) (*tele.Message, error) {
	return f.Edit(msg, caption, opts...)
}

func (f *fakeEditor) Delete(msg tele.Editable) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if m, ok := msg.(*tele.Message); ok {
		f.deleted = append(f.deleted, m.ID)
	}
	return nil
}

func (f *fakeEditor) snapshot() ([]screen.Screen, []int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]screen.Screen(nil), f.edits...), append([]int(nil), f.deleted...)
}

const user int64 = 42

func textMsg(id int, text string) *tele.Message {
	return &tele.Message{
		ID:     id,
		Text:   text,
		Sender: &tele.User{ID: user},
		Chat:   &tele.Chat{ID: 100},
	}
}

func promptTrail() *screen.Trail {
	tr := &screen.Trail{}
	tr.Add(screen.Screen{
		ChatID: 100, MessageID: 1, Text: "Send me a number",
		Keyboard: [][]tele.InlineButton{{{Text: "« Back", Data: "\fnav_return|x"}}},
	})
	return tr
}

type awaitResult struct {
	msg *tele.Message
	err error
}

func startAwait(m *Manager, req Request) <-chan awaitResult {
	ch := make(chan awaitResult, 1)
	go func() {
		msg, err := m.Await(context.Background(), req)
		ch <- awaitResult{msg, err}
	}()
	return ch
}

func waitPending(t *testing.T, m *Manager, uid int64) {
	t.Helper()
	require.Eventually(t, func() bool { return m.Pending(uid) }, time.Second, time.Millisecond)
}

func TestAwaitResumesWithAcceptedMessage(t *testing.T) {
	ed := &fakeEditor{}
	m := NewManager(ed)
	res := startAwait(m, Request{UserID: user, Timeout: time.Second, Filter: Integer, Trail: promptTrail()})
	waitPending(t, m, user)

	require.Equal(t, DeliveryAccepted, m.Deliver(context.Background(), textMsg(5, "12")))

	got := <-res
	require.NoError(t, got.err)
	require.Equal(t, "12", got.msg.Text)
	require.False(t, m.Pending(user))

	edits, deleted := ed.snapshot()
	require.Equal(t, []int{5}, deleted)
	require.Len(t, edits, 1)
	require.Equal(t, m.waitingText, edits[0].Text)
	require.Empty(t, edits[0].Keyboard)
}

func TestUnsolicitedMessage(t *testing.T) {
	ed := &fakeEditor{}
	m := NewManager(ed)
	msg := textMsg(9, "hello")
	require.Equal(t, DeliveryUnsolicited, m.Deliver(context.Background(), msg))

	m.Discard(context.Background(), msg)
	_, deleted := ed.snapshot()
	require.Equal(t, []int{9}, deleted)
	require.Equal(t, DeliveryUnsolicited, m.Deliver(context.Background(), nil))
}

func TestSecondWaitFailsFast(t *testing.T) {
	m := NewManager(&fakeEditor{})
	res := startAwait(m, Request{UserID: user, Timeout: time.Second})
	waitPending(t, m, user)

	_, err := m.Await(context.Background(), Request{UserID: user, Timeout: time.Second})
	require.ErrorIs(t, err, ErrAlreadyWaiting)
	require.True(t, m.Pending(user))

	require.Equal(t, DeliveryAccepted, m.Deliver(context.Background(), textMsg(2, "first still works")))
	got := <-res
	require.NoError(t, got.err)
	require.Equal(t, "first still works", got.msg.Text)
}

func TestRejectingFilterKeepsWaitUntilTimeout(t *testing.T) {
	ed := &fakeEditor{}
	m := NewManager(ed, WithDefaults(0, "bad input", ""))
	never := func(*tele.Message) bool { return false }
	res := startAwait(m, Request{UserID: user, Timeout: 150 * time.Millisecond, Filter: never, Trail: promptTrail()})
	waitPending(t, m, user)

	for i := 1; i <= 3; i++ {
		require.Equal(t, DeliveryRejected, m.Deliver(context.Background(), textMsg(10+i, "nope")))
		require.True(t, m.Pending(user))
	}
	edits, deleted := ed.snapshot()
	require.Equal(t, []int{11, 12, 13}, deleted)
	require.Len(t, edits, 3)
	for _, e := range edits {
		require.Equal(t, "bad input", e.Text)
		require.Len(t, e.Keyboard, 1)
	}

	got := <-res
	require.ErrorIs(t, got.err, ErrTimeout)
	require.Nil(t, got.msg)
	require.Equal(t, DeliveryUnsolicited, m.Deliver(context.Background(), textMsg(14, "late")))
}

func TestCancelResumesWaiter(t *testing.T) {
	m := NewManager(&fakeEditor{})
	res := startAwait(m, Request{UserID: user, Timeout: time.Minute})
	waitPending(t, m, user)

	require.True(t, m.Cancel(user))
	require.False(t, m.Cancel(user))
	got := <-res
	require.ErrorIs(t, got.err, ErrCancelled)
	require.Zero(t, m.Len())
}

func TestAwaitHonoursContext(t *testing.T) {
	m := NewManager(&fakeEditor{})
	ctx, cancel := context.WithCancel(context.Background())
	res := make(chan error, 1)
	go func() {
		_, err := m.Await(ctx, Request{UserID: user, Timeout: time.Minute})
		res <- err
	}()
	waitPending(t, m, user)
	cancel()

	err := <-res
	require.ErrorIs(t, err, ErrCancelled)
	require.True(t, errors.Is(err, context.Canceled))
	require.False(t, m.Pending(user))
}

func TestWaitsAreIndependentPerUser(t *testing.T) {
	m := NewManager(&fakeEditor{})
	const users = 20
	results := make([]<-chan awaitResult, users)
	for i := 0; i < users; i++ {
		results[i] = startAwait(m, Request{UserID: int64(i + 1), Timeout: time.Second})
	}
	require.Eventually(t, func() bool { return m.Len() == users }, time.Second, time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			msg := &tele.Message{ID: i, Text: fmt.Sprint(i), Sender: &tele.User{ID: int64(i + 1)}, Chat: &tele.Chat{ID: 1}}
			m.Deliver(context.Background(), msg)
		}(i)
	}
	wg.Wait()

	for i, ch := range results {
		got := <-ch
		require.NoError(t, got.err)
		require.Equal(t, fmt.Sprint(i), got.msg.Text)
	}
}

func TestFilters(t *testing.T) {
	require.True(t, Any(nil))
	require.False(t, NonEmpty(textMsg(1, "  ")))
	require.True(t, Integer(textMsg(1, " -15 ")))
	require.False(t, Integer(textMsg(1, "1.5")))
	require.True(t, Date(textMsg(1, "2024-03-09")))
	require.True(t, Date(textMsg(1, "9.3.2024 18:30")))
	require.False(t, Date(textMsg(1, "tomorrow")))
	require.True(t, MaxLen(3)(textMsg(1, "абв")))
	require.False(t, MaxLen(3)(textMsg(1, "abcd")))
	require.False(t, All(NonEmpty, Integer)(textMsg(1, "x")))
	require.True(t, All(NonEmpty, nil, Integer)(textMsg(1, "7")))
}
