package screen

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

type fakeEditor struct {
	text    string
	caption bool
	err     error
}

func (f *fakeEditor) Edit(_ tele.Editable, what interface{}, _ ...interface{}) (*tele.Message, error) {
	f.text, _ = what.(string)
	return nil, f.err
}

func (f *fakeEditor) EditCaption(_ tele.Editable, caption string, _ ...interface{}) (*tele.Message, error) {
	f.text, f.caption = caption, true
	return nil, f.err
}

func TestOfClonesKeyboard(t *testing.T) {
	msg := &tele.Message{
		ID:          5,
		Chat:        &tele.Chat{ID: 9},
		Text:        "menu",
		ReplyMarkup: &tele.ReplyMarkup{InlineKeyboard: [][]tele.InlineButton{{{Text: "a", Data: "\fa"}}}},
	}
	s := Of(msg)
	msg.ReplyMarkup.InlineKeyboard[0][0].Text = "changed"

	require.True(t, s.Valid())
	require.Equal(t, "a", s.Keyboard[0][0].Text)
	require.Equal(t, "5", mustID(t, s.Editable()))
}

func TestOfUsesCaptionForMedia(t *testing.T) {
	s := Of(&tele.Message{ID: 1, Chat: &tele.Chat{ID: 2}, Caption: "pic", Photo: &tele.Photo{}})
	require.True(t, s.Caption)
	require.Equal(t, "pic", s.Text)
}

func TestWithTextDropsFormatting(t *testing.T) {
	s := Screen{ChatID: 1, MessageID: 2, Text: "*bold*", ParseMode: tele.ModeMarkdownV2, Entities: tele.Entities{{}}}
	p := s.WithText("plain").WithKeyboard(nil)
	require.Equal(t, "plain", p.Text)
	require.Empty(t, p.ParseMode)
	require.Nil(t, p.Entities)
	require.Nil(t, p.Markup())
	require.Equal(t, tele.ModeMarkdownV2, s.ParseMode)
}

func TestApply(t *testing.T) {
	ed := &fakeEditor{}
	require.ErrorIs(t, Screen{}.Apply(ed), ErrNoMessage)

	require.NoError(t, Screen{ChatID: 1, MessageID: 2, Text: "x"}.Apply(ed))
	require.Equal(t, "x", ed.text)

	require.NoError(t, Screen{ChatID: 1, MessageID: 2, Text: "c", Caption: true}.Apply(ed))
	require.True(t, ed.caption)

	ed.err = tele.ErrSameMessageContent
	require.NoError(t, Screen{ChatID: 1, MessageID: 2, Text: "x"}.Apply(ed))

	ed.err = errors.New("boom")
	require.Error(t, Screen{ChatID: 1, MessageID: 2, Text: "x"}.Apply(ed))
}

func TestTrail(t *testing.T) {
	var nilTrail *Trail
	_, ok := nilTrail.Last()
	require.False(t, ok)

	tr := &Trail{}
	tr.Add(Screen{MessageID: 1})
	tr.Add(Screen{MessageID: 2})
	last, ok := tr.Last()
	require.True(t, ok)
	require.Equal(t, 2, last.MessageID)
	require.Equal(t, 2, tr.Len())
}

func mustID(t *testing.T, e tele.Editable) string {
	t.Helper()
	id, _ := e.MessageSig()
	return id
}
