package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DeliverAnswers finds answered-but-undelivered questions of this
// platform's users and sends each answer out with the configured pause
// between sends. Only the questions actually sent get their delivery
// stamp, so a crash mid-sweep re-picks the rest next cycle
// (at-least-once, never lost).
//
// The sweep deliberately does not take the engine lock: it reads the
// store and talks to the transport, nothing else.
func (e *Engine) DeliverAnswers(ctx context.Context) error {
	pending, err := e.store.AnsweredUndelivered(ctx, e.platform)
	if err != nil {
		return fmt.Errorf("load answered questions: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	var sent []int64
	for i, q := range pending {
		if i > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(e.sendInterval):
			}
		}
		if ctx.Err() != nil {
			break
		}
		text := fmt.Sprintf("%s\n%s\n\n%s", TextAnswerPrefix, q.Text, q.Answer)
		if err := e.transport.SendText(ctx, q.PlatformID, text); err != nil {
			derr := &DeliveryError{Platform: e.platform, PlatformID: q.PlatformID, Err: err}
			e.log.Warn("answer delivery failed",
				slog.String("event", "deliver"),
				slog.Int64("question_id", q.ID),
				slog.Int64("user_id", q.PlatformID),
				slog.String("err", derr.Error()),
				slog.String("err_code", derr.Code()),
			)
			continue
		}
		sent = append(sent, q.ID)
	}

	if len(sent) > 0 {
		if err := e.store.MarkDelivered(ctx, sent, time.Now().UTC()); err != nil {
			return fmt.Errorf("mark delivered: %w", err)
		}
	}

	e.log.Info("delivery sweep finished",
		slog.String("event", "deliver"),
		slog.Int("pending", len(pending)),
		slog.Int("delivered", len(sent)),
	)
	return nil
}
