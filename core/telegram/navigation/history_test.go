package navigation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/feedbot/core/telegram/screen"
)

var testKey = Key{UserID: 7, ChatID: 70, MessageID: 700}

func scr(text string) screen.Screen {
	return screen.Screen{
		ChatID:    testKey.ChatID,
		MessageID: testKey.MessageID,
		Text:      text,
		Keyboard:  [][]tele.InlineButton{{{Text: text + " btn", Data: "\fgo|" + text}}},
	}
}

func TestHistoryKeepsLastThree(t *testing.T) {
	h := NewHistory()
	for i := 1; i <= 5; i++ {
		h.Push(testKey, Entry{Screen: scr(fmt.Sprint(i)), Data: fmt.Sprint("d", i)})
	}
	require.Equal(t, HistoryCapacity, h.Len(testKey))

	for offset, want := range []string{"5", "4", "3"} {
		e, ok := h.PeekBack(testKey, offset)
		require.True(t, ok)
		require.Equal(t, want, e.Screen.Text)
	}
	_, ok := h.PeekBack(testKey, 3)
	require.False(t, ok)
	_, ok = h.PeekBack(testKey, -1)
	require.False(t, ok)
}

func TestHistoryPushUnlessTop(t *testing.T) {
	h := NewHistory()
	require.True(t, h.PushUnlessTop(testKey, Entry{Screen: scr("a"), Data: "x"}))
	require.False(t, h.PushUnlessTop(testKey, Entry{Screen: scr("b"), Data: "x"}))
	require.True(t, h.PushUnlessTop(testKey, Entry{Screen: scr("c"), Data: "y"}))
	require.Equal(t, 2, h.Len(testKey))
}

func TestHistoryStoresCopies(t *testing.T) {
	h := NewHistory()
	s := scr("a")
	h.Push(testKey, Entry{Screen: s})
	s.Keyboard[0][0].Text = "mutated"

	e, ok := h.PeekBack(testKey, 0)
	require.True(t, ok)
	require.Equal(t, "a btn", e.Screen.Keyboard[0][0].Text)

	e.Screen.Keyboard[0][0].Text = "mutated again"
	e, _ = h.PeekBack(testKey, 0)
	require.Equal(t, "a btn", e.Screen.Keyboard[0][0].Text)
}

func TestHistoryEffectiveTarget(t *testing.T) {
	h := NewHistory()
	_, _, ok := h.EffectiveTarget(testKey, 0)
	require.False(t, ok)

	h.Push(testKey, Entry{Screen: scr("a"), Data: "1"})
	h.Push(testKey, Entry{Screen: scr("b"), Data: "2", Refresh: true})
	h.Push(testKey, Entry{Screen: scr("c"), Data: "3"})

	e, depth, ok := h.EffectiveTarget(testKey, 0)
	require.True(t, ok)
	require.Equal(t, 2, depth)
	require.Equal(t, "a", e.Screen.Text)

	// refresh entry without anything below it stays put
	h2 := NewHistory()
	h2.Push(testKey, Entry{Screen: scr("r"), Refresh: true})
	h2.Push(testKey, Entry{Screen: scr("s")})
	e, depth, ok = h2.EffectiveTarget(testKey, 0)
	require.True(t, ok)
	require.Zero(t, depth)
	require.Equal(t, "s", e.Screen.Text)
}

func TestHistoryRewindAndForget(t *testing.T) {
	h := NewHistory()
	for _, d := range []string{"1", "2", "3"} {
		h.Push(testKey, Entry{Data: d})
	}
	h.Rewind(testKey, 2)
	e, ok := h.PeekBack(testKey, 0)
	require.True(t, ok)
	require.Equal(t, "1", e.Data)

	h.Rewind(testKey, 5)
	require.Zero(t, h.Len(testKey))

	h.Push(testKey, Entry{Data: "x"})
	h.Forget(testKey)
	require.Zero(t, h.Len(testKey))
}
