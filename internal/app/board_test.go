package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBoardPages(t *testing.T) {
	b := NewBoard()
	items, pages := b.Page(1, 2)
	require.Empty(t, items)
	require.Equal(t, 1, pages)

	for _, title := range []string{"a", "b", "c", "d", "e"} {
		b.Post(title, "")
	}
	require.Equal(t, int64(5), b.LastID())

	items, pages = b.Page(1, 2)
	require.Equal(t, 3, pages)
	require.Equal(t, []int64{5, 4}, ids(items))

	items, _ = b.Page(3, 2)
	require.Equal(t, []int64{1}, ids(items))

	items, _ = b.Page(9, 2)
	require.Equal(t, []int64{1}, ids(items))

	require.Equal(t, []int64{5, 4, 3}, ids(b.Latest(3)))
}

func TestBoardSince(t *testing.T) {
	b := NewBoard()
	now := time.Date(2025, 8, 30, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return now }
	b.Post("old", "")
	now = now.Add(48 * time.Hour)
	b.Post("new", "")

	require.Equal(t, []int64{2}, ids(b.Since(now.Add(-time.Hour))))
	require.Len(t, b.Since(time.Time{}), 2)
}

func TestBoardSubscriptions(t *testing.T) {
	b := NewBoard()
	require.True(t, b.Toggle(7))
	require.True(t, b.Toggle(3))
	require.True(t, b.Subscribed(7))
	require.Equal(t, []int64{3, 7}, b.Subscribers())
	require.False(t, b.Toggle(7))
	require.False(t, b.Subscribed(7))
}
