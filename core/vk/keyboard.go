package vk

import (
	"encoding/json"
	"fmt"

	"github.com/m3rciful/menubot/core/engine"
)

// buttonPayload is what a callback button carries back through
// message_event. Token is the compiled dispatch token.
type buttonPayload struct {
	Token string `json:"token"`
}

type keyboardAction struct {
	Type    string `json:"type"`
	Label   string `json:"label"`
	Payload string `json:"payload,omitempty"`
}

type keyboardButton struct {
	Action keyboardAction `json:"action"`
	Color  string         `json:"color,omitempty"`
}

type keyboard struct {
	OneTime bool               `json:"one_time"`
	Inline  bool               `json:"inline"`
	Buttons [][]keyboardButton `json:"buttons"`
}

// KeyboardFromView serializes a resolved menu view into the VK keyboard
// JSON. Buttons are callback-typed so presses come back as
// message_event updates carrying the dispatch token.
func KeyboardFromView(view *engine.MenuView) (string, error) {
	if view == nil {
		return EmptyKeyboard()
	}
	kb := keyboard{Buttons: make([][]keyboardButton, 0, len(view.Rows))}
	for _, row := range view.Rows {
		out := make([]keyboardButton, 0, len(row))
		for _, btn := range row {
			payload, err := json.Marshal(buttonPayload{Token: btn.Token})
			if err != nil {
				return "", fmt.Errorf("vk: marshal button payload: %w", err)
			}
			out = append(out, keyboardButton{
				Action: keyboardAction{
					Type:    "callback",
					Label:   btn.Label,
					Payload: string(payload),
				},
				Color: "secondary",
			})
		}
		kb.Buttons = append(kb.Buttons, out)
	}
	data, err := json.Marshal(kb)
	if err != nil {
		return "", fmt.Errorf("vk: marshal keyboard: %w", err)
	}
	return string(data), nil
}

// EmptyKeyboard returns the JSON that clears the current keyboard.
func EmptyKeyboard() (string, error) {
	data, err := json.Marshal(keyboard{Buttons: [][]keyboardButton{}})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// TokenFromPayload extracts the dispatch token from a button payload.
// Both message_event payloads (raw JSON) and message_new payloads
// (JSON wrapped in a string) funnel through here.
func TokenFromPayload(raw json.RawMessage) (string, bool) {
	if len(raw) == 0 {
		return "", false
	}
	var p buttonPayload
	if err := json.Unmarshal(raw, &p); err == nil && p.Token != "" {
		return p.Token, true
	}
	var wrapped string
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped != "" {
		if err := json.Unmarshal([]byte(wrapped), &p); err == nil && p.Token != "" {
			return p.Token, true
		}
	}
	return "", false
}
