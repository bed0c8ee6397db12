package vk

import (
	"encoding/json"
	"testing"

	"github.com/m3rciful/menubot/core/engine"
)

func TestKeyboardFromView(t *testing.T) {
	view := &engine.MenuView{
		ID: 10,
		Rows: [][]engine.KeyButton{
			{{Label: "Schedule", Token: "submenu#11"}, {Label: "About", Token: "info#3"}},
			{{Label: "Main menu", Token: "main#0"}},
		},
	}
	raw, err := KeyboardFromView(view)
	if err != nil {
		t.Fatalf("KeyboardFromView: %v", err)
	}

	var kb keyboard
	if err := json.Unmarshal([]byte(raw), &kb); err != nil {
		t.Fatalf("keyboard is not valid JSON: %v", err)
	}
	if kb.OneTime || kb.Inline {
		t.Error("menu keyboard must be persistent and non-inline")
	}
	if len(kb.Buttons) != 2 || len(kb.Buttons[0]) != 2 || len(kb.Buttons[1]) != 1 {
		t.Fatalf("unexpected keyboard shape: %v", kb.Buttons)
	}

	btn := kb.Buttons[0][0]
	if btn.Action.Type != "callback" {
		t.Errorf("button type = %q, want callback", btn.Action.Type)
	}
	if btn.Action.Label != "Schedule" {
		t.Errorf("button label = %q", btn.Action.Label)
	}
	var p buttonPayload
	if err := json.Unmarshal([]byte(btn.Action.Payload), &p); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	if p.Token != "submenu#11" {
		t.Errorf("payload token = %q, want submenu#11", p.Token)
	}
}

func TestKeyboardFromNilViewClears(t *testing.T) {
	raw, err := KeyboardFromView(nil)
	if err != nil {
		t.Fatalf("KeyboardFromView: %v", err)
	}
	var kb keyboard
	if err := json.Unmarshal([]byte(raw), &kb); err != nil {
		t.Fatalf("keyboard is not valid JSON: %v", err)
	}
	if len(kb.Buttons) != 0 {
		t.Errorf("expected empty button grid, got %v", kb.Buttons)
	}
}

func TestTokenFromPayload(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{"event payload", `{"token":"info#3"}`, "info#3", true},
		{"message payload wrapped in string", `"{\"token\":\"submenu#11\"}"`, "submenu#11", true},
		{"foreign payload", `{"command":"start"}`, "", false},
		{"empty", ``, "", false},
		{"garbage", `not-json`, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := TokenFromPayload(json.RawMessage(tc.raw))
			if ok != tc.ok || got != tc.want {
				t.Errorf("TokenFromPayload(%q) = (%q, %v), want (%q, %v)", tc.raw, got, ok, tc.want, tc.ok)
			}
		})
	}
}
