package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/menubot/core/config"
	"github.com/m3rciful/menubot/core/engine"
	"github.com/m3rciful/menubot/core/logger"
	"github.com/m3rciful/menubot/core/netutil"
	tghelpers "github.com/m3rciful/menubot/core/telegram/helpers"
	"github.com/m3rciful/menubot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// RunOptions controls the behaviour of Run.
type RunOptions struct {
	Config *coreconfig.Config
	Store  engine.Store

	DisableWebhookCleanup bool
}

// Run composes the Telegram process and blocks until the context is
// done: bot and engine construction, initial compile, the periodic-job
// goroutine, and telebot's update loop. Telebot delivers updates
// sequentially and every handler funnels into the engine, which keeps
// the per-user ordering guarantees intact.
func Run(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := opts.Config
	if cfg == nil {
		return fmt.Errorf("telegram: nil config provided")
	}
	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return fmt.Errorf("telegram: bot token is required")
	}
	if opts.Store == nil {
		return fmt.Errorf("telegram: store is required")
	}

	poller := BuildPoller(PollerOptions{
		RunMode:                cfg.Telegram.RunMode,
		LongPollTimeoutSeconds: cfg.Telegram.LongPollTimeoutSeconds,
		Webhook: WebhookOptions{
			Listen: cfg.Webhook.Listen,
			Port:   cfg.Webhook.Port,
			URL:    cfg.Webhook.URL,
		},
	})

	// Long polling holds the connection open for the wait duration, so
	// the header timeout must exceed it.
	pollWait := time.Duration(cfg.Telegram.LongPollTimeoutSeconds) * time.Second
	if pollWait <= 0 {
		pollWait = 10 * time.Second
	}
	client := netutil.NewClient(netutil.ClientOptions{
		Timeout:         pollWait + 30*time.Second,
		ResponseTimeout: pollWait + 5*time.Second,
	})

	buildStart := time.Now()
	bot, err := tele.NewBot(tele.Settings{
		Token:  cfg.Telegram.Token,
		Poller: poller,
		Client: client,
	})
	if err != nil {
		return fmt.Errorf("telegram: bot initialization failed: %w", err)
	}

	switch p := poller.(type) {
	case *tele.Webhook:
		logger.TG.Info("webhook mode",
			slog.String("event", "mode"),
			slog.String("mode", "webhook"),
			slog.String("listen", p.Listen),
			slog.String("public_url", p.Endpoint.PublicURL),
			slog.Duration("duration", logger.Took(buildStart)),
		)
	default:
		logger.TG.Info("polling mode",
			slog.String("event", "mode"),
			slog.String("mode", "polling"),
			slog.Duration("duration", logger.Took(buildStart)),
		)
		if !opts.DisableWebhookCleanup && strings.EqualFold(cfg.Telegram.RunMode, coreconfig.RunModeLongpoll) {
			if err := deleteWebhook(cfg.Telegram.Token, false); err != nil {
				logger.TG.Warn("failed to delete webhook",
					slog.String("event", "delete_webhook"),
					slog.String("err", err.Error()),
				)
			}
		}
	}

	eng, err := engine.New(engine.Options{
		Store:         opts.Store,
		Transport:     NewAdapter(bot, cfg.Engine.FilesDir),
		Platform:      engine.PlatformTelegram,
		Mode:          engine.DispatchLabel,
		ButtonsPerRow: cfg.Engine.ButtonsPerRow,
		SendInterval:  cfg.Engine.SendInterval(),
		Log:           logger.ENG,
	})
	if err != nil {
		return err
	}
	if err := eng.Reload(ctx); err != nil {
		return fmt.Errorf("telegram: initial compile failed: %w", err)
	}

	exclude := make(map[string]struct{}, len(cfg.RateLimit.ExcludeUpdates))
	for _, kind := range cfg.RateLimit.ExcludeUpdates {
		exclude[kind] = struct{}{}
	}
	bot.Use(middleware.RecoverMiddleware)
	bot.Use(middleware.RateLimitMiddleware(middleware.RateLimitOptions{
		Interval: time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond,
		Exclude:  exclude,
	}))
	bot.Use(middleware.LoggerMiddleware)

	bot.Handle(tele.OnText, func(c tele.Context) error {
		sender := c.Sender()
		if sender == nil {
			return nil
		}
		hctx := tghelpers.WithHandler(c, "engine.text")
		return eng.HandleText(hctx, sender.ID, c.Text())
	})

	sched := engine.NewScheduler(logger.ENG,
		&engine.Job{Name: "menu_sync", Every: cfg.Engine.MenuSyncInterval(), Run: eng.SyncMenus},
		&engine.Job{Name: "role_refresh", Every: cfg.Engine.RoleRefreshInterval(), Run: eng.RefreshUsers},
		&engine.Job{Name: "answer_sweep", Every: cfg.Engine.AnswerSweepInterval(), Run: eng.DeliverAnswers},
	)
	schedCtx, stopSched := context.WithCancel(ctx)
	defer stopSched()
	go sched.Loop(schedCtx, time.Second)

	runDone := make(chan struct{})
	go func() {
		bot.Start()
		close(runDone)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		bot.Stop()
		<-runDone
		runErr = ctx.Err()
	case <-runDone:
	}
	stopSched()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

func deleteWebhook(token string, dropPending bool) error {
	if strings.TrimSpace(token) == "" {
		return fmt.Errorf("empty token")
	}
	url := fmt.Sprintf("https://api.telegram.org/bot%s/deleteWebhook", token)
	body := "drop_pending_updates=false"
	if dropPending {
		body = "drop_pending_updates=true"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("deleteWebhook status: %s", resp.Status)
	}
	return nil
}
