package app

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/m3rciful/feedbot/core/notify"
)

// boardFeed names the announcement feed in cursor storage.
const boardFeed = "board"

type post struct {
	item notify.Item
	at   time.Time
}

// Board holds announcements and the users subscribed to them.
type Board struct {
	mu     sync.Mutex
	now    func() time.Time
	posts  []post
	lastID int64
	subs   map[int64]struct{}
}

// NewBoard returns an empty board.
func NewBoard() *Board {
	return &Board{now: time.Now, subs: make(map[int64]struct{})}
}

// Post adds an announcement and returns it.
func (b *Board) Post(title, link string) notify.Item {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastID++
	it := notify.Item{ID: b.lastID, Title: title, Link: link}
	b.posts = append(b.posts, post{item: it, at: b.now()})
	return it
}

// LastID returns the id of the newest post, 0 when empty.
func (b *Board) LastID() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastID
}

// Latest returns up to n posts, newest first.
func (b *Board) Latest(n int) []notify.Item {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]notify.Item, 0, min(n, len(b.posts)))
	for i := len(b.posts) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, b.posts[i].item)
	}
	return out
}

// Page returns page (1-based) of size posts, newest first, and the number of pages.
func (b *Board) Page(page, size int) ([]notify.Item, int) {
	if size < 1 {
		size = 1
	}
	all := b.Latest(math.MaxInt)
	pages := max(1, (len(all)+size-1)/size)
	page = min(max(page, 1), pages)
	from := (page - 1) * size
	return all[from:min(from+size, len(all))], pages
}

// Since returns the posts made on or after t, newest first.
func (b *Board) Since(t time.Time) []notify.Item {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []notify.Item
	for i := len(b.posts) - 1; i >= 0; i-- {
		if b.posts[i].at.Before(t) {
			break
		}
		out = append(out, b.posts[i].item)
	}
	return out
}

// Toggle flips the subscription of user and reports the new state.
func (b *Board) Toggle(user int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[user]; ok {
		delete(b.subs, user)
		return false
	}
	b.subs[user] = struct{}{}
	return true
}

// Subscribed reports whether user receives new posts.
func (b *Board) Subscribed(user int64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.subs[user]
	return ok
}

// Subscribers returns the subscribed users in ascending order.
func (b *Board) Subscribers() []int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]int64, 0, len(b.subs))
	for id := range b.subs {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
