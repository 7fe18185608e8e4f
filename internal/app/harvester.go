package app

import (
	"context"
	"fmt"
	"time"

	"github.com/Adda-Baaj/coupon-harvester/internal/config"
	"github.com/Adda-Baaj/coupon-harvester/internal/crawler"
	"github.com/Adda-Baaj/coupon-harvester/internal/domain"
	"github.com/Adda-Baaj/coupon-harvester/internal/frontier"
	"github.com/Adda-Baaj/coupon-harvester/internal/logger"
	"github.com/Adda-Baaj/coupon-harvester/internal/records"
)

// CouponPageCollector scrapes the coupons of one shop page.
type CouponPageCollector interface {
	CollectPage(ctx context.Context, entry domain.FrontierEntry, source string) (crawler.PageSummary, error)
}

// Harvester represents the coupon harvester runtime. Each pass optionally rediscovers shop
// links, then visits every pending shop page once, upserting its coupons and pruning the
// ones the site no longer lists.
type Harvester struct {
	loop passLoop
	res  *resources
}

// NewHarvester builds a harvester runtime from config. The browser lives as long as ctx.
func NewHarvester(ctx context.Context, cfg *config.Config, log logger.Logger) (*Harvester, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	log = logger.Component(log, "coupon-harvester")
	if ctx == nil {
		ctx = context.Background()
	}
	res := &resources{log: log}

	h, err := buildHarvester(ctx, cfg, log, res)
	if err != nil {
		res.Close()
		return nil, err
	}
	return h, nil
}

func buildHarvester(ctx context.Context, cfg *config.Config, log logger.Logger, res *resources) (*Harvester, error) {
	site, err := LoadSite(cfg)
	if err != nil {
		return nil, err
	}
	notifier, err := NewNotifier(cfg, log)
	if err != nil {
		return nil, err
	}

	store, err := frontier.NewStore(cfg.FrontierType, cfg.CouponFrontierPath)
	if err != nil {
		return nil, fmt.Errorf("init frontier: %w", err)
	}
	res.add("frontier", store)
	log.InfoObj("frontier initialized", "frontier_config", map[string]any{
		"type": cfg.FrontierType,
		"path": cfg.CouponFrontierPath,
	})

	db, err := records.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	res.add("database", db)

	fanout, err := newFanout(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	res.add("publishers", fanout)

	session, err := openBrowser(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	res.add("browser", session)

	waits := waitsFrom(cfg)
	tracker := frontier.NewTracker(store, notifier, cfg.TelegramStatusMessage, log)
	discoverer := crawler.NewDiscoverer(session, site, tracker, notifier, cfg.TelegramMessage, waits, log)
	collector := crawler.NewCouponCollector(session, site, records.NewCouponRepository(db), fanout,
		notifier, cfg.TelegramMessage, waits, log)

	h := newHarvester(tracker, discoverer, collector, loopSettings{
		discoverEachPass: cfg.DiscoverEachPass,
		pageDelay:        site.RequestDelay(),
		passPause:        cfg.PassPause,
	}, log)
	h.res = res
	return h, nil
}

type loopSettings struct {
	discoverEachPass bool
	pageDelay        time.Duration
	passPause        time.Duration
}

func newHarvester(f Frontier, d Discoverer, c CouponPageCollector, s loopSettings, log logger.Logger) *Harvester {
	log = logger.Ensure(log)
	return &Harvester{loop: passLoop{
		name:       "harvester",
		frontier:   f,
		discoverer: d,
		visit: func(ctx context.Context, entry domain.FrontierEntry, source string) error {
			_, err := c.CollectPage(ctx, entry, source)
			return err
		},
		discoverEachPass: s.discoverEachPass,
		pageDelay:        s.pageDelay,
		passPause:        s.passPause,
		log:              log,
	}}
}

// Run starts the pass loop until the context is cancelled.
func (h *Harvester) Run(ctx context.Context) error {
	if h == nil || h.loop.visit == nil {
		return fmt.Errorf("harvester is not initialized")
	}
	defer h.close()
	return h.loop.run(ctx)
}

// close releases the browser, database and frontier, logging any errors encountered.
func (h *Harvester) close() {
	if h == nil || h.res == nil {
		return
	}
	h.res.Close()
}
