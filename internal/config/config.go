package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultEnvFile is read before the environment so local runs can keep secrets out of the shell.
const DefaultEnvFile = "configs/.env"

// Config holds the application configuration loaded from files and environment variables.
type Config struct {
	AppName        string `mapstructure:"app_name"`
	Env            string `mapstructure:"app_env"`
	LogLevel       string `mapstructure:"log_level"`
	SitesFile      string `mapstructure:"sites_file"`
	SiteID         string `mapstructure:"site_id"`
	PublishersFile string `mapstructure:"publishers_file"`

	FrontierType       string `mapstructure:"frontier_type"`
	CouponFrontierPath string `mapstructure:"coupon_frontier_path"`
	DetailFrontierPath string `mapstructure:"detail_frontier_path"`
	DatabasePath       string `mapstructure:"database_path"`
	DetailDedup        bool   `mapstructure:"detail_dedup"`

	BrowserHeadless  bool   `mapstructure:"browser_headless"`
	BrowserExecPath  string `mapstructure:"browser_exec_path"`
	BrowserUserAgent string `mapstructure:"browser_user_agent"`

	ElementWaitMs    int64         `mapstructure:"element_wait_ms"`
	SectionWaitMs    int64         `mapstructure:"section_wait_ms"`
	PageSettleMs     int64         `mapstructure:"page_settle_ms"`
	PassPauseSeconds int64         `mapstructure:"pass_pause_seconds"`
	ElementWait      time.Duration `mapstructure:"-"`
	SectionWait      time.Duration `mapstructure:"-"`
	PageSettle       time.Duration `mapstructure:"-"`
	PassPause        time.Duration `mapstructure:"-"`
	DiscoverEachPass bool          `mapstructure:"discover_each_pass"`

	TelegramBotToken      string `mapstructure:"telegram_bot_token"`
	TelegramChatID        string `mapstructure:"telegram_chat_id"`
	TelegramMessage       string `mapstructure:"telegram_message"`
	TelegramStatusMessage string `mapstructure:"telegram_status_message"`
	TelegramEnvFile       string `mapstructure:"telegram_env_file"`
	TelegramMaxAttempts   int    `mapstructure:"telegram_max_attempts"`
}

// Load reads configuration from environment variables and config files.
func Load() (*Config, error) {
	return LoadFrom(DefaultEnvFile)
}

// LoadFrom is Load with an explicit env file; a missing file is not an error.
func LoadFrom(envFile string) (*Config, error) {
	if envFile != "" {
		_ = godotenv.Load(envFile)
	}

	v := viper.New()

	v.SetDefault("app_name", "coupon-harvester")
	v.SetDefault("app_env", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("sites_file", "")
	v.SetDefault("site_id", "cuponation-au")
	v.SetDefault("publishers_file", "")
	v.SetDefault("frontier_type", "file")
	v.SetDefault("coupon_frontier_path", "./data/links.txt")
	v.SetDefault("detail_frontier_path", "./data/shop_links.txt")
	v.SetDefault("database_path", "./data/coupons.db")
	v.SetDefault("detail_dedup", false)
	v.SetDefault("browser_headless", true)
	v.SetDefault("browser_exec_path", "")
	v.SetDefault("browser_user_agent", "")
	v.SetDefault("element_wait_ms", 3000)
	v.SetDefault("section_wait_ms", 10000)
	v.SetDefault("page_settle_ms", 3000)
	v.SetDefault("pass_pause_seconds", 60)
	v.SetDefault("discover_each_pass", true)
	v.SetDefault("telegram_bot_token", "")
	v.SetDefault("telegram_chat_id", "")
	v.SetDefault("telegram_message", "coupon crawler needs attention")
	v.SetDefault("telegram_status_message", "coupon link status updated")
	v.SetDefault("telegram_env_file", envFile)
	v.SetDefault("telegram_max_attempts", 2)

	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	var err error
	if cfg.ElementWait, err = positiveMillis("element_wait_ms", cfg.ElementWaitMs); err != nil {
		return nil, err
	}
	if cfg.SectionWait, err = positiveMillis("section_wait_ms", cfg.SectionWaitMs); err != nil {
		return nil, err
	}
	if cfg.PageSettleMs < 0 {
		return nil, fmt.Errorf("invalid page_settle_ms (must not be negative)")
	}
	cfg.PageSettle = time.Duration(cfg.PageSettleMs) * time.Millisecond
	if cfg.PassPauseSeconds < 0 {
		return nil, fmt.Errorf("invalid pass_pause_seconds (must not be negative)")
	}
	cfg.PassPause = time.Duration(cfg.PassPauseSeconds) * time.Second

	if cfg.TelegramMaxAttempts <= 0 {
		return nil, fmt.Errorf("invalid telegram_max_attempts (must be positive)")
	}

	cfg.FrontierType = strings.ToLower(strings.TrimSpace(cfg.FrontierType))
	if strings.TrimSpace(cfg.DatabasePath) == "" {
		return nil, fmt.Errorf("database_path is required")
	}

	return &cfg, nil
}

func positiveMillis(key string, ms int64) (time.Duration, error) {
	if ms <= 0 {
		return 0, fmt.Errorf("invalid %s (must be positive milliseconds)", key)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// Redacted returns a copy that is safe to log.
func (c Config) Redacted() Config {
	if c.TelegramBotToken != "" {
		c.TelegramBotToken = "***"
	}
	return c
}
