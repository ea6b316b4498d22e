// Package navigation implements back-button navigation: a bounded history of
// rendered screens per anchor message and a registry of pending return
// actions that restore them.
package navigation

import (
	"sync"

	"github.com/m3rciful/feedbot/core/telegram/screen"
)

// HistoryCapacity bounds the entries kept per key.
const HistoryCapacity = 3

// Key identifies the interaction thread of one user on one anchor message.
type Key struct {
	UserID    int64
	ChatID    int64
	MessageID int
}

// Entry is one step of a user's path through the menus.
type Entry struct {
	Screen screen.Screen
	// Data is the callback data that produced this step.
	Data string
	// Refresh marks steps rendered with a "re-run previous handler" back button.
	Refresh bool
}

// History keeps the last HistoryCapacity entries per key, oldest first.
type History struct {
	mu      sync.Mutex
	entries map[Key][]Entry
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{entries: make(map[Key][]Entry)}
}

// Push appends e, evicting the oldest entry beyond capacity.
func (h *History) Push(key Key, e Entry) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.push(key, e)
}

// PushUnlessTop pushes e unless the newest entry already carries the same
// callback data. It reports whether e was pushed.
func (h *History) PushUnlessTop(key Key, e Entry) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.entries[key]
	if n := len(list); n > 0 && list[n-1].Data == e.Data {
		return false
	}
	h.push(key, e)
	return true
}

func (h *History) push(key Key, e Entry) {
	e.Screen = e.Screen.Clone()
	list := append(h.entries[key], e)
	if len(list) > HistoryCapacity {
		list = append([]Entry(nil), list[len(list)-HistoryCapacity:]...)
	}
	h.entries[key] = list
}

// PeekBack returns the entry offset positions below the newest one.
// Offset 0 is the newest entry.
func (h *History) PeekBack(key Key, offset int) (Entry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.peek(key, offset)
}

func (h *History) peek(key Key, offset int) (Entry, bool) {
	list := h.entries[key]
	idx := len(list) - 1 - offset
	if offset < 0 || idx < 0 {
		return Entry{}, false
	}
	e := list[idx]
	e.Screen = e.Screen.Clone()
	return e, true
}

// EffectiveTarget resolves which entry a back button should restore,
// starting at offset start. While the entry just below the candidate was
// rendered as a refresh and an entry two levels below exists, the candidate
// moves two levels down. It returns the final candidate and its offset.
func (h *History) EffectiveTarget(key Key, start int) (Entry, int, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	depth := start
	cur, ok := h.peek(key, depth)
	if !ok {
		return Entry{}, 0, false
	}
	for {
		below, ok := h.peek(key, depth+1)
		if !ok || !below.Refresh {
			break
		}
		next, ok := h.peek(key, depth+2)
		if !ok {
			break
		}
		cur, depth = next, depth+2
	}
	return cur, depth, true
}

// Rewind pops up to n of the newest entries of key.
func (h *History) Rewind(key Key, n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	list := h.entries[key]
	if n <= 0 || len(list) == 0 {
		return
	}
	if n >= len(list) {
		delete(h.entries, key)
		return
	}
	h.entries[key] = list[:len(list)-n]
}

// Len reports the number of entries stored for key.
func (h *History) Len(key Key) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries[key])
}

// Forget drops every entry of key.
func (h *History) Forget(key Key) {
	h.mu.Lock()
	delete(h.entries, key)
	h.mu.Unlock()
}
