package session

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tele "gopkg.in/telebot.v4"
)

// Filter decides whether a message satisfies a pending wait.
type Filter func(msg *tele.Message) bool

// Any accepts every message.
func Any(*tele.Message) bool { return true }

// NonEmpty accepts messages with non-blank text.
func NonEmpty(msg *tele.Message) bool {
	return msg != nil && strings.TrimSpace(msg.Text) != ""
}

// Integer accepts messages whose text is a base-10 integer.
func Integer(msg *tele.Message) bool {
	if msg == nil {
		return false
	}
	_, err := strconv.ParseInt(strings.TrimSpace(msg.Text), 10, 64)
	return err == nil
}

// Date accepts messages ParseDate understands.
func Date(msg *tele.Message) bool {
	if msg == nil {
		return false
	}
	_, ok := ParseDate(msg.Text)
	return ok
}

// MaxLen accepts non-blank messages of at most n runes.
func MaxLen(n int) Filter {
	return func(msg *tele.Message) bool {
		return NonEmpty(msg) && utf8.RuneCountInString(strings.TrimSpace(msg.Text)) <= n
	}
}

// All accepts a message only if every filter does.
func All(filters ...Filter) Filter {
	return func(msg *tele.Message) bool {
		for _, f := range filters {
			if f != nil && !f(msg) {
				return false
			}
		}
		return true
	}
}

var dateLayouts = []string{
	"2006-01-02 15:04",
	"2006-1-2 15:04",
	"2006-01-02",
	"2006-1-2",
	"02.01.2006 15:04",
	"2.1.2006 15:04",
	"02.01.2006",
	"2.1.2006",
}

// ParseDate parses the date formats users commonly type, in local time.
func ParseDate(input string) (time.Time, bool) {
	s := strings.TrimSpace(input)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
