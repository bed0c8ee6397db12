package engine

import "context"

// Transport is the outbound half of a platform adapter. The inbound half
// calls Engine.HandleText / Engine.HandleToken directly.
type Transport interface {
	// Render sends text with the menu keyboard attached.
	Render(ctx context.Context, platformID int64, view *MenuView, text string) error
	// SendText sends a plain message without touching the keyboard.
	SendText(ctx context.Context, platformID int64, text string) error
	// SendDocument sends a stored file with a caption. Callers fall back
	// to SendText with the caption when it fails.
	SendDocument(ctx context.Context, platformID int64, file, caption string) error
}
