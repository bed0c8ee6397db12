package telegram

import (
	"context"
	"path/filepath"

	"github.com/m3rciful/menubot/core/engine"
	"github.com/m3rciful/menubot/core/telegram/keyboard"

	tele "gopkg.in/telebot.v4"
)

// Adapter implements engine.Transport over a telebot instance. Sends are
// synchronous: the engine's cooperative model relies on a reply being
// fully delivered before the next update is considered.
type Adapter struct {
	bot      *tele.Bot
	filesDir string
}

// NewAdapter wraps the bot. filesDir is the base directory for files
// attached to info buttons.
func NewAdapter(bot *tele.Bot, filesDir string) *Adapter {
	return &Adapter{bot: bot, filesDir: filesDir}
}

// Render sends text with the menu rendered as a reply keyboard. Button
// labels double as dispatch keys, so presses come back as plain text.
func (a *Adapter) Render(_ context.Context, platformID int64, view *engine.MenuView, text string) error {
	_, err := a.bot.Send(&tele.User{ID: platformID}, text, keyboard.FromView(view))
	return err
}

// SendText sends a plain message, leaving the current keyboard in place.
func (a *Adapter) SendText(_ context.Context, platformID int64, text string) error {
	_, err := a.bot.Send(&tele.User{ID: platformID}, text)
	return err
}

// SendDocument uploads a stored file with a caption.
func (a *Adapter) SendDocument(_ context.Context, platformID int64, file, caption string) error {
	doc := &tele.Document{
		File:     tele.FromDisk(filepath.Join(a.filesDir, file)),
		FileName: filepath.Base(file),
		Caption:  caption,
	}
	_, err := a.bot.Send(&tele.User{ID: platformID}, doc)
	return err
}
