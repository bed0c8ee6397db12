package keyboard

import (
	"testing"

	"github.com/m3rciful/menubot/core/engine"
)

func TestFromView(t *testing.T) {
	view := &engine.MenuView{
		ID: 10,
		Rows: [][]engine.KeyButton{
			{{Label: "Schedule"}, {Label: "About"}},
			{{Label: "Main menu"}},
		},
	}
	markup := FromView(view)
	if markup == nil || len(markup.ReplyKeyboard) != 2 {
		t.Fatalf("unexpected markup: %+v", markup)
	}
	if !markup.ResizeKeyboard {
		t.Error("reply keyboard should request resize")
	}
	if got := markup.ReplyKeyboard[0][1].Text; got != "About" {
		t.Errorf("button text = %q, want About", got)
	}
	if got := markup.ReplyKeyboard[1][0].Text; got != "Main menu" {
		t.Errorf("button text = %q, want Main menu", got)
	}
}

func TestFromNilViewRemovesKeyboard(t *testing.T) {
	markup := FromView(nil)
	if markup == nil || !markup.RemoveKeyboard {
		t.Fatalf("expected remove-keyboard markup, got %+v", markup)
	}
}
