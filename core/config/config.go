package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	coredatabase "github.com/m3rciful/menubot/core/database"
)

// TelegramConfig holds Telegram bot related settings.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	RunMode string `yaml:"run_mode" envconfig:"TELEGRAM_RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"TELEGRAM_LONGPOLL_TIMEOUT_SECONDS"`
}

// WebhookConfig specifies webhook settings for the Telegram bot.
type WebhookConfig struct {
	URL    string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port   int    `yaml:"port" envconfig:"WEBHOOK_PORT"`
}

// VKConfig holds VK community bot settings.
type VKConfig struct {
	Token      string `yaml:"token" envconfig:"VK_TOKEN"`
	GroupID    int64  `yaml:"group_id" envconfig:"VK_GROUP_ID"`
	APIVersion string `yaml:"api_version" envconfig:"VK_API_VERSION"`
	// WaitSeconds defines the long poll wait parameter; 0 -> default
	WaitSeconds int `yaml:"wait_seconds" envconfig:"VK_WAIT_SECONDS"`
}

// EngineConfig tunes the shared menu engine and its periodic jobs.
type EngineConfig struct {
	ButtonsPerRow int `yaml:"buttons_per_row" envconfig:"ENGINE_BUTTONS_PER_ROW"`
	// Poll intervals are expressed in seconds; zero selects the default.
	MenuSyncSeconds    int `yaml:"menu_sync_seconds" envconfig:"ENGINE_MENU_SYNC_SECONDS"`
	RoleRefreshSeconds int `yaml:"role_refresh_seconds" envconfig:"ENGINE_ROLE_REFRESH_SECONDS"`
	AnswerSweepSeconds int `yaml:"answer_sweep_seconds" envconfig:"ENGINE_ANSWER_SWEEP_SECONDS"`
	// SendIntervalMS is the mandatory pause between consecutive answer deliveries.
	SendIntervalMS int `yaml:"send_interval_ms" envconfig:"ENGINE_SEND_INTERVAL_MS"`
	// FilesDir is the base directory for files attached to info buttons.
	FilesDir string `yaml:"files_dir" envconfig:"ENGINE_FILES_DIR"`
}

// MenuSyncInterval returns the cache-sync poll interval.
func (e EngineConfig) MenuSyncInterval() time.Duration {
	return time.Duration(e.MenuSyncSeconds) * time.Second
}

// RoleRefreshInterval returns the user/role refresh interval.
func (e EngineConfig) RoleRefreshInterval() time.Duration {
	return time.Duration(e.RoleRefreshSeconds) * time.Second
}

// AnswerSweepInterval returns the answered-question delivery interval.
func (e EngineConfig) AnswerSweepInterval() time.Duration {
	return time.Duration(e.AnswerSweepSeconds) * time.Second
}

// SendInterval returns the pacing delay between consecutive deliveries.
func (e EngineConfig) SendInterval() time.Duration {
	return time.Duration(e.SendIntervalMS) * time.Millisecond
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
)

const (
	defaultMenuSyncSeconds    = 15 * 60
	defaultRoleRefreshSeconds = 5 * 60
	defaultAnswerSweepSeconds = 5 * 60
	defaultSendIntervalMS     = 1000
	defaultButtonsPerRow      = 2
	defaultVKAPIVersion       = "5.199"
)

// RateLimitConfig holds settings for rate limiting incoming updates.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": callback button presses
// - "message": standard text messages
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the configuration shared by both bot processes.
type Config struct {
	Telegram  TelegramConfig      `yaml:"telegram"`
	Webhook   WebhookConfig       `yaml:"webhook"`
	VK        VKConfig            `yaml:"vk"`
	Database  coredatabase.Config `yaml:"database"`
	Engine    EngineConfig        `yaml:"engine"`
	Logging   LoggingConfig       `yaml:"logging"`
	RateLimit RateLimitConfig     `yaml:"rate_limit"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of configuration fields and adjusts defaults.
// Platform tokens are validated later, by the process that actually needs them.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if strings.TrimSpace(cfg.Webhook.Listen) == "" {
			return fmt.Errorf("webhook.listen is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.Port <= 0 {
			return fmt.Errorf("webhook.port must be > 0 when telegram.run_mode is 'webhook'")
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	if cfg.VK.WaitSeconds < 0 {
		return fmt.Errorf("vk.wait_seconds must be >= 0")
	}
	if strings.TrimSpace(cfg.VK.APIVersion) == "" {
		cfg.VK.APIVersion = defaultVKAPIVersion
	}

	if err := normalizeEngine(&cfg.Engine); err != nil {
		return err
	}

	allowed := map[string]struct{}{
		UpdateCallback: {},
		UpdateMessage:  {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}
	return nil
}

func normalizeEngine(eng *EngineConfig) error {
	if eng.ButtonsPerRow < 0 {
		return fmt.Errorf("engine.buttons_per_row must be >= 0")
	}
	if eng.ButtonsPerRow == 0 {
		eng.ButtonsPerRow = defaultButtonsPerRow
	}
	intervals := []struct {
		name string
		val  *int
		def  int
	}{
		{"engine.menu_sync_seconds", &eng.MenuSyncSeconds, defaultMenuSyncSeconds},
		{"engine.role_refresh_seconds", &eng.RoleRefreshSeconds, defaultRoleRefreshSeconds},
		{"engine.answer_sweep_seconds", &eng.AnswerSweepSeconds, defaultAnswerSweepSeconds},
		{"engine.send_interval_ms", &eng.SendIntervalMS, defaultSendIntervalMS},
	}
	for _, iv := range intervals {
		if *iv.val < 0 {
			return fmt.Errorf("%s must be >= 0", iv.name)
		}
		if *iv.val == 0 {
			*iv.val = iv.def
		}
	}
	return nil
}
