// Package keyboard builds inline keyboards whose buttons already carry the
// encoded callback data, so captured screens can be re-rendered verbatim.
package keyboard

import (
	"strconv"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/feedbot/core/telegram/callbacks"
)

// Button describes one inline button. URL buttons ignore Unique and Data.
type Button struct {
	Text   string
	Unique string
	Data   string
	URL    string
}

// Inline converts b to a telebot inline button.
func (b Button) Inline() tele.InlineButton {
	if b.URL != "" {
		return tele.InlineButton{Text: b.Text, URL: b.URL}
	}
	return tele.InlineButton{Text: b.Text, Data: callbacks.Encode(b.Unique, b.Data)}
}

// Rows builds an inline keyboard from rows of buttons.
func Rows(rows ...[]Button) *tele.ReplyMarkup {
	inline := make([][]tele.InlineButton, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		r := make([]tele.InlineButton, len(row))
		for i, b := range row {
			r[i] = b.Inline()
		}
		inline = append(inline, r)
	}
	return &tele.ReplyMarkup{InlineKeyboard: inline}
}

// Column places each button on its own row.
func Column(buttons ...Button) *tele.ReplyMarkup {
	return Grid(buttons, 1)
}

// Grid splits buttons into rows with up to n buttons per row.
func Grid(buttons []Button, n int) *tele.ReplyMarkup {
	if n < 1 {
		n = 1
	}
	var rows [][]Button
	for i := 0; i < len(buttons); i += n {
		rows = append(rows, buttons[i:min(i+n, len(buttons))])
	}
	return Rows(rows...)
}

// Pager returns a row of previous/next buttons for page of pages, skipping
// the ones that would leave the range. Data carries the target page.
func Pager(unique string, page, pages int) []Button {
	var row []Button
	if page > 1 {
		row = append(row, Button{Text: "‹", Unique: unique, Data: strconv.Itoa(page - 1)})
	}
	if page < pages {
		row = append(row, Button{Text: "›", Unique: unique, Data: strconv.Itoa(page + 1)})
	}
	return row
}
