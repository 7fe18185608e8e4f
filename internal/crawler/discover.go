package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/Adda-Baaj/coupon-harvester/internal/browser"
	"github.com/Adda-Baaj/coupon-harvester/internal/domain"
	"github.com/Adda-Baaj/coupon-harvester/internal/logger"
	"github.com/Adda-Baaj/coupon-harvester/pkg/sites"
)

// Waits bounds every element lookup.
type Waits struct {
	Element time.Duration
	Section time.Duration
	Settle  time.Duration
}

// Discoverer walks the site's shop directory and appends every shop link to a frontier.
type Discoverer struct {
	page     browser.Page
	site     sites.Site
	sink     LinkSink
	notifier Notifier
	alert    string
	waits    Waits
	log      logger.Logger
}

func NewDiscoverer(page browser.Page, site sites.Site, sink LinkSink, notifier Notifier, alert string, waits Waits, log logger.Logger) *Discoverer {
	return &Discoverer{page: page, site: site, sink: sink, notifier: notifier, alert: alert, waits: waits, log: logger.Ensure(log)}
}

// Discover returns the number of new frontier entries. A directory that does not load in
// time is reported to the operator and yields zero entries without an error.
func (d *Discoverer) Discover(ctx context.Context) (int, error) {
	base, err := url.Parse(d.site.DirectoryURL)
	if err != nil {
		return 0, fmt.Errorf("parse directory url: %w", err)
	}
	if err := d.page.Navigate(ctx, d.site.DirectoryURL); err != nil {
		return 0, err
	}

	sel := d.site.Selectors
	if err := d.page.WaitPresent(ctx, sel.AlphabetSections, d.waits.Section); err != nil {
		if errors.Is(err, browser.ErrNotFound) {
			d.log.ErrorObj("directory sections did not load", "directory_url", d.site.DirectoryURL)
			notify(ctx, d.notifier, d.alert, d.log)
			return 0, nil
		}
		return 0, err
	}

	sections, err := d.page.Count(ctx, sel.AlphabetSections)
	if err != nil {
		return 0, err
	}
	d.log.InfoObj("directory sections found", "sections", sections)

	var found []domain.FrontierEntry
	for i := 1; i <= sections; i++ {
		html, err := d.page.OuterHTML(ctx, nth(sel.AlphabetSections, i), d.waits.Element)
		if err != nil {
			if ctx.Err() != nil {
				return 0, ctx.Err()
			}
			d.log.WarnObj("directory section unreadable", "section_error", map[string]any{
				"section": i,
				"error":   err.Error(),
			})
			notify(ctx, d.notifier, d.alert, d.log)
			continue
		}
		links, err := parseSectionLinks(html, sel.SectionLinks, base)
		if err != nil {
			d.log.WarnObj("directory section parse failed", "error", err.Error())
			continue
		}
		found = append(found, links...)
	}

	added, err := d.sink.AppendNew(found)
	if err != nil {
		return 0, fmt.Errorf("append frontier entries: %w", err)
	}
	d.log.InfoObj("directory discovery completed", "discovery_result", map[string]any{
		"site_id":     d.site.ID,
		"links_found": len(found),
		"links_added": added,
	})
	return added, nil
}

// notify delivers an alert, logging instead of failing when delivery does not work.
func notify(ctx context.Context, n Notifier, text string, log logger.Logger) {
	if n == nil {
		return
	}
	if err := n.Notify(ctx, text); err != nil {
		log.WarnObj("operator notification failed", "error", err.Error())
	}
}
