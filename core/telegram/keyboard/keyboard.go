package keyboard

import (
	"github.com/m3rciful/menubot/core/engine"

	tele "gopkg.in/telebot.v4"
)

// FromView builds a reply keyboard from a resolved menu view.
func FromView(view *engine.MenuView) *tele.ReplyMarkup {
	if view == nil {
		return RemoveKeyboard()
	}
	rows := make([][]string, 0, len(view.Rows))
	for _, row := range view.Rows {
		labels := make([]string, 0, len(row))
		for _, btn := range row {
			labels = append(labels, btn.Label)
		}
		rows = append(rows, labels)
	}
	return ReplyButtons(rows...)
}

// ReplyButtons builds a reply keyboard from rows of text.
func ReplyButtons(rows ...[]string) *tele.ReplyMarkup {
	markup := &tele.ReplyMarkup{ResizeKeyboard: true}
	var kb []tele.Row
	for _, row := range rows {
		var buttons []tele.Btn
		for _, label := range row {
			buttons = append(buttons, markup.Text(label))
		}
		kb = append(kb, markup.Row(buttons...))
	}
	markup.Reply(kb...)
	return markup
}

// RemoveKeyboard returns a markup that hides the keyboard.
func RemoveKeyboard() *tele.ReplyMarkup {
	return &tele.ReplyMarkup{RemoveKeyboard: true}
}
