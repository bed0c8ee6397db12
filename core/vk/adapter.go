package vk

import (
	"context"
	"path/filepath"

	"github.com/m3rciful/menubot/core/engine"
)

// Adapter implements engine.Transport over the VK messages API.
type Adapter struct {
	client   *Client
	filesDir string
}

// NewAdapter wraps a VK client as an engine transport. filesDir is the
// base directory for files referenced by info buttons.
func NewAdapter(client *Client, filesDir string) *Adapter {
	return &Adapter{client: client, filesDir: filesDir}
}

func (a *Adapter) Render(ctx context.Context, platformID int64, view *engine.MenuView, text string) error {
	kb, err := KeyboardFromView(view)
	if err != nil {
		return err
	}
	return a.client.SendMessage(ctx, platformID, text, kb, "")
}

func (a *Adapter) SendText(ctx context.Context, platformID int64, text string) error {
	return a.client.SendMessage(ctx, platformID, text, "", "")
}

func (a *Adapter) SendDocument(ctx context.Context, platformID int64, file, caption string) error {
	path := filepath.Join(a.filesDir, file)
	attachment, err := a.client.UploadDocument(ctx, platformID, path)
	if err != nil {
		return err
	}
	return a.client.SendMessage(ctx, platformID, caption, "", attachment)
}
