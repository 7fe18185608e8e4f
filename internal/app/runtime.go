package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/Adda-Baaj/coupon-harvester/internal/browser"
	"github.com/Adda-Baaj/coupon-harvester/internal/config"
	"github.com/Adda-Baaj/coupon-harvester/internal/crawler"
	"github.com/Adda-Baaj/coupon-harvester/internal/logger"
	"github.com/Adda-Baaj/coupon-harvester/pkg/httpclient"
	"github.com/Adda-Baaj/coupon-harvester/pkg/notify"
	"github.com/Adda-Baaj/coupon-harvester/pkg/publishers"
	"github.com/Adda-Baaj/coupon-harvester/pkg/sites"
)

const telegramTimeout = 15 * time.Second

// resources are closed in reverse order of acquisition.
type resources struct {
	names   []string
	closers []io.Closer
	log     logger.Logger
}

func (r *resources) add(name string, c io.Closer) {
	r.names = append(r.names, name)
	r.closers = append(r.closers, c)
}

func (r *resources) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			r.log.ErrorObj("resource close failed", "close_error", map[string]any{
				"resource": r.names[i],
				"error":    err.Error(),
			})
		}
	}
	r.names, r.closers = nil, nil
}

// LoadSite resolves the configured site, reading the sites file first when one is set.
func LoadSite(cfg *config.Config) (sites.Site, error) {
	if cfg.SitesFile != "" {
		if err := sites.LoadSites(cfg.SitesFile); err != nil {
			return sites.Site{}, fmt.Errorf("load sites registry: %w", err)
		}
	}
	site, ok := sites.SiteByID(cfg.SiteID)
	if !ok {
		return sites.Site{}, fmt.Errorf("unknown site %q", cfg.SiteID)
	}
	return site, nil
}

// NewNotifier returns the Telegram notifier, or a no-op one when no bot token is configured.
func NewNotifier(cfg *config.Config, log logger.Logger) (notify.Notifier, error) {
	if cfg.TelegramBotToken == "" {
		log.WarnObj("telegram bot token not set; notifications disabled", "app_name", cfg.AppName)
		return notify.Nop{}, nil
	}
	tg, err := notify.NewTelegram(httpclient.NewRestyClient(telegramTimeout), notify.TelegramConfig{
		Token:       cfg.TelegramBotToken,
		ChatID:      cfg.TelegramChatID,
		MaxAttempts: cfg.TelegramMaxAttempts,
		EnvFile:     cfg.TelegramEnvFile,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("init telegram notifier: %w", err)
	}
	return tg, nil
}

// newFanout builds the coupon event publishers. Events are optional: without a publishers
// file, or with every publisher disabled, the returned fanout is nil and publishes nothing.
func newFanout(ctx context.Context, cfg *config.Config, log logger.Logger) (*publishers.Fanout, error) {
	if cfg.PublishersFile == "" {
		return nil, nil
	}
	publisherReg, err := publishers.LoadRegistry(cfg.PublishersFile)
	if err != nil {
		return nil, fmt.Errorf("load publishers registry: %w", err)
	}
	enabledPublishers := publisherReg.Enabled()
	if len(enabledPublishers) == 0 {
		log.WarnObj("no publishers enabled; coupon events disabled", "publishers_file", cfg.PublishersFile)
		return nil, nil
	}

	pubClients, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), enabledPublishers, log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}
	publisherSummaries := make([]map[string]string, 0, len(enabledPublishers))
	for _, pubCfg := range enabledPublishers {
		publisherSummaries = append(publisherSummaries, map[string]string{
			"id":   pubCfg.ID,
			"type": pubCfg.Type,
		})
	}
	log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
		"count":      len(publisherSummaries),
		"publishers": publisherSummaries,
	})
	return publishers.NewFanout(pubClients), nil
}

func openBrowser(ctx context.Context, cfg *config.Config, log logger.Logger) (*browser.Session, error) {
	session, err := browser.NewSession(ctx, browser.Options{
		Headless:  cfg.BrowserHeadless,
		ExecPath:  cfg.BrowserExecPath,
		UserAgent: cfg.BrowserUserAgent,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("start browser: %w", err)
	}
	log.InfoObj("browser started", "browser_config", map[string]any{
		"headless":  cfg.BrowserHeadless,
		"exec_path": cfg.BrowserExecPath,
	})
	return session, nil
}

func waitsFrom(cfg *config.Config) crawler.Waits {
	return crawler.Waits{Element: cfg.ElementWait, Section: cfg.SectionWait, Settle: cfg.PageSettle}
}
