package helpers

const (
	messagesKey = "messages"
	keyboardKey = "kb"
)

// ResetCounters zeroes the per-update message counters.
func ResetCounters(c Store) {
	if c == nil {
		return
	}
	c.Set(messagesKey, 0)
	c.Set(keyboardKey, false)
}

// CountMessage records one message sent or edited while handling the update.
func CountMessage(c Store, withKeyboard bool) {
	if c == nil {
		return
	}
	n, _ := c.Get(messagesKey).(int)
	c.Set(messagesKey, n+1)
	if withKeyboard {
		c.Set(keyboardKey, true)
	}
}

// Counters returns the message count and whether any message had a keyboard.
func Counters(c Store) (int, bool) {
	if c == nil {
		return 0, false
	}
	n, _ := c.Get(messagesKey).(int)
	kb, _ := c.Get(keyboardKey).(bool)
	return n, kb
}
