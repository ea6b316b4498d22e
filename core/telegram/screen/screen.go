// Package screen captures rendered bot messages as immutable values that can
// be re-applied later with an edit.
package screen

import (
	"errors"
	"strconv"
	"sync"

	tele "gopkg.in/telebot.v4"
)

// Screen is a snapshot of one rendered message.
type Screen struct {
	ChatID    int64
	MessageID int
	Text      string
	Entities  tele.Entities
	ParseMode tele.ParseMode
	Keyboard  [][]tele.InlineButton
	// Caption marks media messages whose Text lives in the caption.
	Caption bool
}

// Of captures msg. Media messages contribute their caption.
func Of(msg *tele.Message) Screen {
	if msg == nil {
		return Screen{}
	}
	s := Screen{MessageID: msg.ID, Text: msg.Text, Entities: msg.Entities}
	if msg.Chat != nil {
		s.ChatID = msg.Chat.ID
	}
	if msg.Text == "" && (msg.Caption != "" || hasMedia(msg)) {
		s.Text = msg.Caption
		s.Entities = msg.CaptionEntities
		s.Caption = true
	}
	if msg.ReplyMarkup != nil {
		s.Keyboard = msg.ReplyMarkup.InlineKeyboard
	}
	return s.Clone()
}

func hasMedia(msg *tele.Message) bool {
	return msg.Photo != nil || msg.Video != nil || msg.Animation != nil ||
		msg.Document != nil || msg.Audio != nil
}

// Clone returns a deep copy so later mutations never reach a stored snapshot.
func (s Screen) Clone() Screen {
	if s.Entities != nil {
		s.Entities = append(tele.Entities(nil), s.Entities...)
	}
	s.Keyboard = cloneKeyboard(s.Keyboard)
	return s
}

// WithText returns a copy showing plain text instead of the current body.
func (s Screen) WithText(text string) Screen {
	s = s.Clone()
	s.Text = text
	s.Entities = nil
	s.ParseMode = ""
	return s
}

// WithKeyboard returns a copy with kb as its inline keyboard.
func (s Screen) WithKeyboard(kb [][]tele.InlineButton) Screen {
	s = s.Clone()
	s.Keyboard = cloneKeyboard(kb)
	return s
}

// Valid reports whether the screen points at a real message.
func (s Screen) Valid() bool {
	return s.ChatID != 0 && s.MessageID != 0
}

// Editable addresses the message the screen was captured from.
func (s Screen) Editable() tele.Editable {
	return tele.StoredMessage{MessageID: strconv.Itoa(s.MessageID), ChatID: s.ChatID}
}

// Markup returns the keyboard as reply markup, or nil when there is none.
func (s Screen) Markup() *tele.ReplyMarkup {
	if len(s.Keyboard) == 0 {
		return nil
	}
	return &tele.ReplyMarkup{InlineKeyboard: cloneKeyboard(s.Keyboard)}
}

// Options builds send options for rendering the screen.
func (s Screen) Options() *tele.SendOptions {
	return &tele.SendOptions{
		ParseMode:   s.ParseMode,
		Entities:    s.Entities,
		ReplyMarkup: s.Markup(),
	}
}

// Editor is the part of *tele.Bot that re-applies screens.
type Editor interface {
	Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error)
	EditCaption(msg tele.Editable, caption string, opts ...interface{}) (*tele.Message, error)
}

// Apply edits the message back to the snapshot. Telegram's "message is not
// modified" answer counts as success.
func (s Screen) Apply(ed Editor) error {
	if !s.Valid() {
		return ErrNoMessage
	}
	var err error
	if s.Caption {
		_, err = ed.EditCaption(s.Editable(), s.Text, s.Options())
	} else {
		_, err = ed.Edit(s.Editable(), s.Text, s.Options())
	}
	if errors.Is(err, tele.ErrSameMessageContent) {
		return nil
	}
	return err
}

// ErrNoMessage is returned when applying a screen without chat or message id.
var ErrNoMessage = errors.New("screen: no target message")

func cloneKeyboard(kb [][]tele.InlineButton) [][]tele.InlineButton {
	if kb == nil {
		return nil
	}
	out := make([][]tele.InlineButton, len(kb))
	for i, row := range kb {
		out[i] = append([]tele.InlineButton(nil), row...)
	}
	return out
}

// Trail is the ordered list of screens rendered by one handler pass.
// It is safe for concurrent use.
type Trail struct {
	mu      sync.Mutex
	screens []Screen
}

// Add appends s to the trail.
func (t *Trail) Add(s Screen) {
	t.mu.Lock()
	t.screens = append(t.screens, s.Clone())
	t.mu.Unlock()
}

// Last returns the most recently rendered screen.
func (t *Trail) Last() (Screen, bool) {
	if t == nil {
		return Screen{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.screens) == 0 {
		return Screen{}, false
	}
	return t.screens[len(t.screens)-1].Clone(), true
}

// Len reports the number of screens in the trail.
func (t *Trail) Len() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.screens)
}
