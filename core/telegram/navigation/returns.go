package navigation

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/m3rciful/feedbot/core/logger"
	"github.com/m3rciful/feedbot/core/telegram/screen"
)

const (
	// ReturnTTL is how long a return action lives after its last touch.
	ReturnTTL = 120 * time.Second
	// SweepInterval is the default period of the expiry sweeper.
	SweepInterval = 10 * time.Second
)

// AfterFunc runs once a reversal succeeded.
type AfterFunc func(ctx context.Context) error

// ReturnAction restores Reversal when its token is pressed.
type ReturnAction struct {
	Token    string
	Key      Key
	Reversal screen.Screen
	// Owner is the context of the handler that rendered the back button;
	// After runs with it.
	Owner     context.Context
	After     AfterFunc
	ExpiresAt time.Time
	Grouped   bool
	// Depth is the history offset Reversal was taken from.
	Depth int
}

// Returns is the registry of pending return actions, kept in creation order.
type Returns struct {
	mu   sync.Mutex
	rows []ReturnAction
	ttl  time.Duration
	now  func() time.Time
}

// ReturnsOption customises a Returns registry.
type ReturnsOption func(*Returns)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) ReturnsOption {
	return func(r *Returns) {
		if now != nil {
			r.now = now
		}
	}
}

// WithTTL overrides ReturnTTL.
func WithTTL(ttl time.Duration) ReturnsOption {
	return func(r *Returns) {
		if ttl > 0 {
			r.ttl = ttl
		}
	}
}

// NewReturns returns an empty registry.
func NewReturns(opts ...ReturnsOption) *Returns {
	r := &Returns{ttl: ReturnTTL, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add stores a copy of a with a fresh expiry and returns the stored row.
func (r *Returns) Add(a ReturnAction) ReturnAction {
	a.Reversal = a.Reversal.Clone()
	r.mu.Lock()
	defer r.mu.Unlock()
	a.ExpiresAt = r.now().Add(r.ttl)
	r.rows = append(r.rows, a)
	return a
}

// Resolve looks a live row up by token. Rows past their expiry are treated
// as gone even before the sweeper removed them.
func (r *Returns) Resolve(token string) (ReturnAction, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i := r.index(token, r.now()); i >= 0 {
		return r.copyRow(i), true
	}
	return ReturnAction{}, false
}

// ResolveGroup returns the grouped rows of key, oldest first.
func (r *Returns) ResolveGroup(key Key) []ReturnAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	var out []ReturnAction
	for i, row := range r.rows {
		if row.Grouped && row.Key == key && !row.ExpiresAt.Before(now) {
			out = append(out, r.copyRow(i))
		}
	}
	return out
}

// Claim atomically consumes the row of token. For a non-grouped row the row
// itself is removed and returned as target. For a grouped row every grouped
// row of the same key is removed and the oldest one is the target. claimed
// lists every removed row.
func (r *Returns) Claim(token string) (target ReturnAction, claimed []ReturnAction, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	i := r.index(token, now)
	if i < 0 {
		return ReturnAction{}, nil, false
	}
	pressed := r.rows[i]
	if !pressed.Grouped {
		r.rows = slices.Delete(r.rows, i, i+1)
		return pressed, []ReturnAction{pressed}, true
	}
	target = pressed
	found := false
	kept := r.rows[:0]
	for _, row := range r.rows {
		if !row.Grouped || row.Key != pressed.Key {
			kept = append(kept, row)
			continue
		}
		if !row.ExpiresAt.Before(now) {
			claimed = append(claimed, row)
			if !found {
				target, found = row, true
			}
		}
	}
	clear(r.rows[len(kept):])
	r.rows = kept
	return target, claimed, true
}

// Touch refreshes the expiry of every live row anchored at the message.
func (r *Returns) Touch(chatID int64, messageID int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	exp := now.Add(r.ttl)
	n := 0
	for i := range r.rows {
		k := r.rows[i].Key
		if k.ChatID == chatID && k.MessageID == messageID && !r.rows[i].ExpiresAt.Before(now) {
			r.rows[i].ExpiresAt = exp
			n++
		}
	}
	return n
}

// Release drops every row of key and returns how many were removed.
func (r *Returns) Release(key Key) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeIf(func(row ReturnAction) bool { return row.Key == key })
}

// ReleaseAnchor drops every row anchored at the message, whoever owns it.
func (r *Returns) ReleaseAnchor(chatID int64, messageID int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeIf(func(row ReturnAction) bool {
		return row.Key.ChatID == chatID && row.Key.MessageID == messageID
	})
}

// Sweep removes rows whose expiry is in the past.
func (r *Returns) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	return r.removeIf(func(row ReturnAction) bool { return row.ExpiresAt.Before(now) })
}

// Len reports the number of live rows.
func (r *Returns) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// Run sweeps every interval until ctx is done.
func (r *Returns) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = SweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger.Debug(ctx, logger.CompNav, "nav.sweeper.start", slog.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			logger.Debug(context.Background(), logger.CompNav, "nav.sweeper.stop")
			return nil
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				logger.Debug(ctx, logger.CompNav, "nav.sweep",
					slog.Int("removed", n),
					slog.Int("rows", r.Len()),
				)
			}
		}
	}
}

// removeIf must be called with r.mu held.
func (r *Returns) removeIf(match func(ReturnAction) bool) int {
	kept := r.rows[:0]
	for _, row := range r.rows {
		if !match(row) {
			kept = append(kept, row)
		}
	}
	n := len(r.rows) - len(kept)
	clear(r.rows[len(kept):])
	r.rows = kept
	return n
}

func (r *Returns) index(token string, now time.Time) int {
	if token == "" {
		return -1
	}
	for i := range r.rows {
		if r.rows[i].Token == token && !r.rows[i].ExpiresAt.Before(now) {
			return i
		}
	}
	return -1
}

func (r *Returns) copyRow(i int) ReturnAction {
	row := r.rows[i]
	row.Reversal = row.Reversal.Clone()
	return row
}
