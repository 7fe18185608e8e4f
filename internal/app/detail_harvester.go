package app

import (
	"context"
	"fmt"

	"github.com/Adda-Baaj/coupon-harvester/internal/config"
	"github.com/Adda-Baaj/coupon-harvester/internal/crawler"
	"github.com/Adda-Baaj/coupon-harvester/internal/domain"
	"github.com/Adda-Baaj/coupon-harvester/internal/frontier"
	"github.com/Adda-Baaj/coupon-harvester/internal/logger"
	"github.com/Adda-Baaj/coupon-harvester/internal/records"
)

// DetailPageCollector reads the company detail of one shop page.
type DetailPageCollector interface {
	CollectPage(ctx context.Context, entry domain.FrontierEntry, source string) (bool, error)
}

// DetailHarvester walks its own frontier of shop pages and records each shop's icon and
// about text.
type DetailHarvester struct {
	loop passLoop
	res  *resources
}

// NewDetailHarvester builds a detail harvester runtime from config.
func NewDetailHarvester(ctx context.Context, cfg *config.Config, log logger.Logger) (*DetailHarvester, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	log = logger.Component(log, "detail-harvester")
	if ctx == nil {
		ctx = context.Background()
	}
	res := &resources{log: log}

	site, err := LoadSite(cfg)
	if err != nil {
		return nil, err
	}
	notifier, err := NewNotifier(cfg, log)
	if err != nil {
		return nil, err
	}

	store, err := frontier.NewStore(cfg.FrontierType, cfg.DetailFrontierPath)
	if err != nil {
		return nil, fmt.Errorf("init frontier: %w", err)
	}
	res.add("frontier", store)

	db, err := records.Open(cfg.DatabasePath)
	if err != nil {
		res.Close()
		return nil, fmt.Errorf("init database: %w", err)
	}
	res.add("database", db)

	session, err := openBrowser(ctx, cfg, log)
	if err != nil {
		res.Close()
		return nil, err
	}
	res.add("browser", session)

	waits := waitsFrom(cfg)
	tracker := frontier.NewTracker(store, notifier, cfg.TelegramStatusMessage, log)
	discoverer := crawler.NewDiscoverer(session, site, tracker, notifier, cfg.TelegramMessage, waits, log)
	collector := crawler.NewDetailCollector(session, site, records.NewDetailRepository(db, cfg.DetailDedup), waits, log)
	log.InfoObj("detail harvester initialized", "detail_config", map[string]any{
		"frontier_path": cfg.DetailFrontierPath,
		"database_path": cfg.DatabasePath,
		"dedup":         cfg.DetailDedup,
	})

	d := newDetailHarvester(tracker, discoverer, collector, loopSettings{
		discoverEachPass: cfg.DiscoverEachPass,
		pageDelay:        site.RequestDelay(),
		passPause:        cfg.PassPause,
	}, log)
	d.res = res
	return d, nil
}

func newDetailHarvester(f Frontier, disc Discoverer, c DetailPageCollector, s loopSettings, log logger.Logger) *DetailHarvester {
	log = logger.Ensure(log)
	return &DetailHarvester{loop: passLoop{
		name:       "detail harvester",
		frontier:   f,
		discoverer: disc,
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
func (d *DetailHarvester) Run(ctx context.Context) error {
	if d == nil || d.loop.visit == nil {
		return fmt.Errorf("detail harvester is not initialized")
	}
	if d.res != nil {
		defer d.res.Close()
	}
	return d.loop.run(ctx)
}
