package conversation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/feedbot/core/config"
	"github.com/m3rciful/feedbot/core/telegram/callbacks"
	"github.com/m3rciful/feedbot/core/telegram/helpers"
	"github.com/m3rciful/feedbot/core/telegram/navigation"
	"github.com/m3rciful/feedbot/core/telegram/screen"
	"github.com/m3rciful/feedbot/core/telegram/session"
)

const (
	user   int64 = 42
	chatID int64 = 100
)

type fakeBot struct {
	mu        sync.Mutex
	edits     []screen.Screen
	media     int
	deleted   []int
	sent      []string
	responses []*tele.CallbackResponse
}

func (f *fakeBot) Edit(msg tele.Editable, what interface{}, opts ...interface{}) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, chat := msg.MessageSig()
	s := screen.Screen{ChatID: chat}
	fmt.Sscan(id, &s.MessageID)
	if in, ok := what.(tele.Inputtable); ok {
		f.media++
		s.Text = in.InputMedia().Caption
		s.Caption = true
	} else {
		s.Text = fmt.Sprint(what)
	}
	for _, o := range opts {
		if so, ok := o.(*tele.SendOptions); ok && so.ReplyMarkup != nil {
			s.Keyboard = so.ReplyMarkup.InlineKeyboard
		}
	}
	f.edits = append(f.edits, s)
	return &tele.Message{ID: s.MessageID}, nil
}

func (f *fakeBot) EditCaption(msg tele.Editable, caption string, opts ...interface{}) (*tele.Message, error) {
	return f.Edit(msg, caption, opts...)
}

func (f *fakeBot) Respond(_ *tele.Callback, resp ...*tele.CallbackResponse) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(resp) > 0 {
		f.responses = append(f.responses, resp[0])
	}
	return nil
}

func (f *fakeBot) Delete(msg tele.Editable) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, _ := msg.MessageSig()
	var n int
	fmt.Sscan(id, &n)
	f.deleted = append(f.deleted, n)
	return nil
}

func (f *fakeBot) Send(_ tele.Recipient, what interface{}, _ ...interface{}) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, fmt.Sprint(what))
	return &tele.Message{ID: 500, Chat: &tele.Chat{ID: chatID}}, nil
}

func (f *fakeBot) lastEdit(t *testing.T) screen.Screen {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.edits)
	return f.edits[len(f.edits)-1]
}

func (f *fakeBot) deletedIDs() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.deleted...)
}

type fakeUpdate struct {
	cb    *tele.Callback
	user  *tele.User
	store map[string]interface{}
}

func (u *fakeUpdate) Get(key string) interface{}      { return u.store[key] }
func (u *fakeUpdate) Set(key string, val interface{}) { u.store[key] = val }
func (u *fakeUpdate) Callback() *tele.Callback        { return u.cb }
func (u *fakeUpdate) Sender() *tele.User              { return u.user }
func (u *fakeUpdate) Recipient() tele.Recipient       { return u.user }

type harness struct {
	bot      *fakeBot
	sessions *session.Manager
	engine   *Engine
}

func newHarness() *harness {
	bot := &fakeBot{}
	sessions := session.NewManager(bot)
	n := 0
	nav := navigation.NewController(bot, nil, nil,
		navigation.WithWaitCanceler(sessions),
		navigation.WithTokenSource(func() string {
			n++
			return fmt.Sprintf("tok%d", n)
		}),
	)
	return &harness{bot: bot, sessions: sessions, engine: NewEngine(bot, nav, sessions)}
}

func menuMessage() *tele.Message {
	return &tele.Message{
		ID:   10,
		Chat: &tele.Chat{ID: chatID},
		Text: "Menu",
		ReplyMarkup: &tele.ReplyMarkup{InlineKeyboard: [][]tele.InlineButton{
			{{Text: "Open", Data: "\fopen"}},
		}},
	}
}

func (h *harness) press(msg *tele.Message, data string) (*Context, *fakeUpdate) {
	upd := &fakeUpdate{
		cb:    &tele.Callback{ID: "cb", Data: data, Message: msg, Sender: &tele.User{ID: user}},
		user:  &tele.User{ID: user},
		store: map[string]interface{}{},
	}
	return h.engine.newContext(context.Background(), upd, callbacks.Decode(data)), upd
}

func (h *harness) back(t *testing.T, token string) navigation.Outcome {
	t.Helper()
	data := callbacks.ReturnData(token)
	out, err := h.engine.Navigation().Intercept(context.Background(), navigation.Press{
		UserID:   user,
		Callback: &tele.Callback{Data: data, Message: &tele.Message{ID: 10, Chat: &tele.Chat{ID: chatID}}},
		Payload:  callbacks.Decode(data),
	})
	require.NoError(t, err)
	return out
}

func TestEditScreenAttachesBackButton(t *testing.T) {
	h := newHarness()
	x, _ := h.press(menuMessage(), "\fopen")

	buy := &tele.ReplyMarkup{InlineKeyboard: [][]tele.InlineButton{{{Text: "Buy", Data: "\fbuy"}}}}
	require.NoError(t, x.EditScreen("Details", buy))
	require.Len(t, buy.InlineKeyboard, 1)

	got := h.bot.lastEdit(t)
	require.Equal(t, "Details", got.Text)
	require.Len(t, got.Keyboard, 2)
	require.Equal(t, config.DefaultBackButtonText, got.Keyboard[1][0].Text)
	require.Equal(t, callbacks.ReturnData("tok1"), got.Keyboard[1][0].Data)
	require.Equal(t, "Details", x.Anchor().Text)

	require.Equal(t, navigation.OutcomeReturned, h.back(t, "tok1"))
	restored := h.bot.lastEdit(t)
	require.Equal(t, "Menu", restored.Text)
	require.Equal(t, [][]tele.InlineButton{{{Text: "Open", Data: "\fopen"}}}, restored.Keyboard)
}

func TestEditScreenWithoutReturn(t *testing.T) {
	h := newHarness()
	x, _ := h.press(menuMessage(), "\fopen")

	require.NoError(t, x.EditScreen("Done", nil, NoReturn()))
	require.Empty(t, h.bot.lastEdit(t).Keyboard)
	require.Zero(t, h.engine.Navigation().Returns().Len())
}

func TestRenderNeedsButtonPress(t *testing.T) {
	h := newHarness()
	upd := &fakeUpdate{user: &tele.User{ID: user}, store: map[string]interface{}{}}
	x := h.engine.newContext(context.Background(), upd, callbacks.Payload{})

	require.ErrorIs(t, x.EditScreen("x", nil), ErrNotCallback)
	require.ErrorIs(t, x.Answer("x", false), ErrNotCallback)
	require.ErrorIs(t, x.Delete(0), ErrNotCallback)
}

func TestNextMessageValidatesAndResumes(t *testing.T) {
	h := newHarness()
	x, _ := h.press(menuMessage(), "\fage")
	require.NoError(t, x.EditScreen("How old are you?", nil))

	type result struct {
		msg *tele.Message
		err error
	}
	res := make(chan result, 1)
	go func() {
		msg, err := x.NextMessage(Filter(session.Integer))
		res <- result{msg, err}
	}()
	require.Eventually(t, func() bool { return h.sessions.Pending(user) }, time.Second, time.Millisecond)

	reply := func(id int, text string) *tele.Message {
		return &tele.Message{ID: id, Text: text, Sender: &tele.User{ID: user}, Chat: &tele.Chat{ID: chatID}}
	}
	require.Equal(t, session.DeliveryRejected, h.sessions.Deliver(context.Background(), reply(20, "abc")))
	rejected := h.bot.lastEdit(t)
	require.Equal(t, config.DefaultErrorText, rejected.Text)
	require.Len(t, rejected.Keyboard, 1)

	require.Equal(t, session.DeliveryAccepted, h.sessions.Deliver(context.Background(), reply(21, "33")))
	got := <-res
	require.NoError(t, got.err)
	require.Equal(t, "33", got.msg.Text)

	waiting := h.bot.lastEdit(t)
	require.Equal(t, config.DefaultWaitingText, waiting.Text)
	require.Empty(t, waiting.Keyboard)
	require.Equal(t, []int{20, 21}, h.bot.deletedIDs())
}

func TestBackAfterPromptReturnsToPassStart(t *testing.T) {
	h := newHarness()
	x, _ := h.press(menuMessage(), "\fdigest")
	require.NoError(t, x.EditScreen("Send a date", nil))

	res := make(chan error, 1)
	go func() {
		_, err := x.NextMessage(Filter(session.Date))
		res <- err
	}()
	require.Eventually(t, func() bool { return h.sessions.Pending(user) }, time.Second, time.Millisecond)
	answer := &tele.Message{ID: 20, Text: "2025-01-01", Sender: &tele.User{ID: user}, Chat: &tele.Chat{ID: chatID}}
	require.Equal(t, session.DeliveryAccepted, h.sessions.Deliver(context.Background(), answer))
	require.NoError(t, <-res)

	require.NoError(t, x.EditScreen("Result", nil))
	result := h.bot.lastEdit(t)
	require.Len(t, result.Keyboard, 1)
	backData := result.Keyboard[0][0].Data
	require.Equal(t, callbacks.ReturnData("tok2"), backData)

	require.Equal(t, navigation.OutcomeReturned, h.back(t, "tok2"))
	restored := h.bot.lastEdit(t)
	require.Equal(t, "Menu", restored.Text)
	require.Equal(t, [][]tele.InlineButton{{{Text: "Open", Data: "\fopen"}}}, restored.Keyboard)
	require.False(t, h.sessions.Pending(user))
}

func TestNextMessageTimeoutReleasesBackButtons(t *testing.T) {
	h := newHarness()
	x, _ := h.press(menuMessage(), "\fage")
	require.NoError(t, x.EditScreen("How old are you?", nil))
	require.Equal(t, 1, h.engine.Navigation().Returns().Len())

	_, err := x.NextMessage(Timeout(30 * time.Millisecond))
	require.ErrorIs(t, err, session.ErrTimeout)
	require.Zero(t, h.engine.Navigation().Returns().Len())
}

func TestBackPressCancelsPendingWait(t *testing.T) {
	h := newHarness()
	x, _ := h.press(menuMessage(), "\fage")
	require.NoError(t, x.EditScreen("How old are you?", nil))

	errs := make(chan error, 1)
	go func() {
		_, err := x.NextMessage(Timeout(time.Minute))
		errs <- err
	}()
	require.Eventually(t, func() bool { return h.sessions.Pending(user) }, time.Second, time.Millisecond)

	require.Equal(t, navigation.OutcomeReturned, h.back(t, "tok1"))
	require.ErrorIs(t, <-errs, session.ErrCancelled)
	require.Equal(t, "Menu", h.bot.lastEdit(t).Text)
}

func TestSendScreenBecomesAnchor(t *testing.T) {
	h := newHarness()
	upd := &fakeUpdate{user: &tele.User{ID: user}, store: map[string]interface{}{}}
	x := h.engine.newContext(context.Background(), upd, callbacks.Payload{})

	require.NoError(t, x.SendScreen("Hello", nil))
	require.Equal(t, []string{"Hello"}, h.bot.sent)
	require.Equal(t, 500, x.Anchor().MessageID)
	require.Equal(t, chatID, x.Anchor().ChatID)

	require.NoError(t, x.Waiting())
	got := h.bot.lastEdit(t)
	require.Equal(t, 500, got.MessageID)
	require.Equal(t, config.DefaultWaitingText, got.Text)
}

func TestAnswerMarksCallback(t *testing.T) {
	h := newHarness()
	x, upd := h.press(menuMessage(), "\fopen")

	require.NoError(t, x.Answer("saved", true))
	require.True(t, helpers.Answered(upd))
	require.Len(t, h.bot.responses, 1)
	require.Equal(t, "saved", h.bot.responses[0].Text)
	require.True(t, h.bot.responses[0].ShowAlert)
}

func TestDeleteDropsAnchorAndReturns(t *testing.T) {
	h := newHarness()
	x, _ := h.press(menuMessage(), "\fopen")
	require.NoError(t, x.EditScreen("Details", nil))

	require.NoError(t, x.Delete(0))
	require.Equal(t, []int{10}, h.bot.deletedIDs())
	require.Zero(t, h.engine.Navigation().Returns().Len())

	y, _ := h.press(menuMessage(), "\fopen")
	require.NoError(t, y.Delete(10*time.Millisecond))
	require.Eventually(t, func() bool { return len(h.bot.deletedIDs()) == 2 }, time.Second, time.Millisecond)
}

func TestEditMediaUsesCaption(t *testing.T) {
	h := newHarness()
	x, _ := h.press(menuMessage(), "\fphoto")

	photo := &tele.Photo{File: tele.FromURL("https://example.org/p.jpg"), Caption: "Sunset"}
	require.NoError(t, x.EditMedia(photo, nil))

	got := h.bot.lastEdit(t)
	require.Equal(t, 1, h.bot.media)
	require.Equal(t, "Sunset", got.Text)
	require.Len(t, got.Keyboard, 1)
	require.True(t, x.Anchor().Caption)
}
