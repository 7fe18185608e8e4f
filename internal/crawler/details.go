package crawler

import (
	"context"
	"strings"
	"time"

	"github.com/Adda-Baaj/coupon-harvester/internal/browser"
	"github.com/Adda-Baaj/coupon-harvester/internal/domain"
	"github.com/Adda-Baaj/coupon-harvester/internal/logger"
	"github.com/Adda-Baaj/coupon-harvester/pkg/sites"
)

// DetailCollector reads the shop icon and about text from a shop page sidebar.
type DetailCollector struct {
	page  browser.Page
	site  sites.Site
	store DetailStore
	waits Waits
	log   logger.Logger
}

func NewDetailCollector(page browser.Page, site sites.Site, store DetailStore, waits Waits, log logger.Logger) *DetailCollector {
	return &DetailCollector{page: page, site: site, store: store, waits: waits, log: logger.Ensure(log)}
}

// CollectPage stores a detail row only when both the icon and the about text were found.
// It reports whether a row was written. Only navigation and cancellation errors are returned.
func (d *DetailCollector) CollectPage(ctx context.Context, entry domain.FrontierEntry, source string) (bool, error) {
	if err := d.page.Navigate(ctx, entry.URL); err != nil {
		return false, err
	}
	if err := Wait(ctx, d.waits.Settle); err != nil {
		return false, err
	}

	sel := d.site.Selectors
	icon, ok, err := d.page.Attribute(ctx, sel.DetailIcon, "src", d.waits.Section)
	if err != nil || !ok {
		d.log.WarnObj("company icon missing", "url", entry.URL)
		icon = ""
	} else if slug, found := iconSlug(icon); found {
		d.log.DebugObj("company icon slug", "slug", slug)
	}

	about, err := d.page.Text(ctx, sel.DetailAbout, d.waits.Section)
	if err != nil {
		d.log.WarnObj("company about text missing", "url", entry.URL)
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}

	detail := domain.CompanyDetail{
		SourceName: source,
		IconURL:    strings.TrimSpace(icon),
		AboutText:  strings.TrimSpace(about),
	}
	if detail.IconURL == "" || detail.AboutText == "" {
		return false, nil
	}

	written, err := d.store.Insert(ctx, detail)
	if err != nil {
		d.log.ErrorObj("company detail insert failed", "insert_error", map[string]any{
			"source_name": source,
			"error":       err.Error(),
		})
		return false, nil
	}
	d.log.InfoObj("company detail collected", "detail", map[string]any{
		"source_name": source,
		"written":     written,
	})
	return written, nil
}

// Wait blocks for d or until ctx is done. With no delay it still reports a cancelled ctx, so
// callers between pages stop promptly.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
