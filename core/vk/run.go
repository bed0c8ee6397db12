package vk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/menubot/core/config"
	"github.com/m3rciful/menubot/core/engine"
	"github.com/m3rciful/menubot/core/logger"
	"github.com/m3rciful/menubot/core/netutil"
)

// RunOptions controls the behaviour of Run.
type RunOptions struct {
	Config *coreconfig.Config
	Store  engine.Store
}

// Run composes the VK process and blocks until the context is done.
// Unlike the Telegram process it has no background goroutines: one
// loop alternates between draining the long poll stream and running
// due periodic jobs, so all engine calls happen from a single place.
func Run(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := opts.Config
	if cfg == nil {
		return fmt.Errorf("vk: nil config provided")
	}
	if strings.TrimSpace(cfg.VK.Token) == "" {
		return fmt.Errorf("vk: community token is required")
	}
	if cfg.VK.GroupID <= 0 {
		return fmt.Errorf("vk: group_id must be > 0")
	}
	if opts.Store == nil {
		return fmt.Errorf("vk: store is required")
	}

	wait := cfg.VK.WaitSeconds
	if wait <= 0 {
		wait = defaultWaitSeconds
	}
	httpClient := netutil.NewClient(netutil.ClientOptions{
		Timeout:         time.Duration(wait+30) * time.Second,
		ResponseTimeout: time.Duration(wait+5) * time.Second,
	})
	client := NewClient(httpClient, cfg.VK.Token, cfg.VK.APIVersion, cfg.VK.GroupID)
	poller := NewLongPoller(client, wait)

	eng, err := engine.New(engine.Options{
		Store:         opts.Store,
		Transport:     NewAdapter(client, cfg.Engine.FilesDir),
		Platform:      engine.PlatformVK,
		Mode:          engine.DispatchToken,
		ButtonsPerRow: cfg.Engine.ButtonsPerRow,
		SendInterval:  cfg.Engine.SendInterval(),
		Log:           logger.ENG,
	})
	if err != nil {
		return err
	}
	if err := eng.Reload(ctx); err != nil {
		return fmt.Errorf("vk: initial compile failed: %w", err)
	}

	sched := engine.NewScheduler(logger.ENG,
		&engine.Job{Name: "menu_sync", Every: cfg.Engine.MenuSyncInterval(), Run: eng.SyncMenus},
		&engine.Job{Name: "role_refresh", Every: cfg.Engine.RoleRefreshInterval(), Run: eng.RefreshUsers},
		&engine.Job{Name: "answer_sweep", Every: cfg.Engine.AnswerSweepInterval(), Run: eng.DeliverAnswers},
	)

	logger.VK.Info("long poll mode",
		slog.String("event", "mode"),
		slog.Int64("group_id", cfg.VK.GroupID),
		slog.Int("wait_seconds", wait),
	)

	var seq int
	for {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}

		updates, err := poller.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			logger.VK.Warn("poll failed",
				slog.String("event", "longpoll.error"),
				slog.String("err", err.Error()),
			)
			select {
			case <-ctx.Done():
			case <-time.After(3 * time.Second):
			}
			continue
		}

		for _, upd := range updates {
			seq++
			handleUpdate(ctx, eng, client, seq, upd)
		}
		sched.RunDue(ctx, time.Now())
	}
}

func handleUpdate(ctx context.Context, eng *engine.Engine, client *Client, seq int, upd Update) {
	switch upd.Type {
	case "message_new":
		var wrapper struct {
			Message Message `json:"message"`
		}
		if err := json.Unmarshal(upd.Object, &wrapper); err != nil {
			logger.VK.Warn("malformed update",
				slog.String("event", "update.malformed"),
				slog.String("type", upd.Type),
				slog.String("err", err.Error()),
			)
			return
		}
		msg := wrapper.Message
		hctx := updateContext(ctx, seq, msg.PeerID, msg.FromID)
		start := time.Now()
		if token, ok := TokenFromPayload(json.RawMessage(msg.Payload)); ok {
			logHandled(hctx, seq, msg.FromID, start, eng.HandleToken(hctx, msg.FromID, token))
			return
		}
		logHandled(hctx, seq, msg.FromID, start, eng.HandleText(hctx, msg.FromID, msg.Text))

	case "message_event":
		var ev MessageEvent
		if err := json.Unmarshal(upd.Object, &ev); err != nil {
			logger.VK.Warn("malformed update",
				slog.String("event", "update.malformed"),
				slog.String("type", upd.Type),
				slog.String("err", err.Error()),
			)
			return
		}
		hctx := updateContext(ctx, seq, ev.PeerID, ev.UserID)
		if err := client.AnswerEvent(hctx, ev.EventID, ev.UserID, ev.PeerID); err != nil {
			logger.VK.Warn("event answer failed",
				slog.String("event", "event.answer"),
				slog.String("err", err.Error()),
			)
		}
		token, ok := TokenFromPayload(ev.Payload)
		if !ok {
			return
		}
		start := time.Now()
		logHandled(hctx, seq, ev.UserID, start, eng.HandleToken(hctx, ev.UserID, token))

	default:
		// Other group event types are not subscribed to; ignore.
	}
}

func updateContext(ctx context.Context, seq int, peerID, userID int64) context.Context {
	rid := logger.BuildRID(seq, peerID, userID)
	ctx = logger.WithRID(ctx, rid)
	ctx = logger.WithUpdateMeta(ctx, seq, userID, peerID)
	return logger.WithLogger(ctx, logger.VK)
}

func logHandled(ctx context.Context, seq int, userID int64, start time.Time, err error) {
	attrs := []slog.Attr{
		slog.Int("update_seq", seq),
		slog.Int64("user_id", userID),
		slog.String("status", logger.Status(err)),
		slog.Duration("duration", logger.Took(start)),
	}
	if err != nil {
		attrs = append(attrs, slog.String("err", err.Error()))
	}
	logger.LogEvent(ctx, logger.VK, slog.LevelInfo, "update.handled", attrs...)
}
