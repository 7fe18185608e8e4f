package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Adda-Baaj/coupon-harvester/internal/browser"
	"github.com/Adda-Baaj/coupon-harvester/internal/domain"
	"github.com/Adda-Baaj/coupon-harvester/internal/logger"
	"github.com/Adda-Baaj/coupon-harvester/pkg/publishers"
	"github.com/Adda-Baaj/coupon-harvester/pkg/sites"
)

// errRequiredMiss marks a card that had to be abandoned because a required element was missing.
var errRequiredMiss = errors.New("required element missing")

// PageSummary counts what happened on one shop page.
type PageSummary struct {
	Widgets   int
	Cards     int
	Skipped   int
	Abandoned int
	Inserted  int
	Updated   int
	Unchanged int
	Failed    int
	Pruned    int64
}

// CouponCollector extracts every voucher of a shop page and writes it through the coupon store.
type CouponCollector struct {
	page     browser.Page
	site     sites.Site
	store    CouponStore
	events   EventPublisher
	notifier Notifier
	alert    string
	waits    Waits
	log      logger.Logger
	now      func() time.Time
}

func NewCouponCollector(page browser.Page, site sites.Site, store CouponStore, events EventPublisher,
	notifier Notifier, alert string, waits Waits, log logger.Logger) *CouponCollector {
	return &CouponCollector{
		page:     page,
		site:     site,
		store:    store,
		events:   events,
		notifier: notifier,
		alert:    alert,
		waits:    waits,
		log:      logger.Ensure(log),
		now:      time.Now,
	}
}

// CollectPage scrapes both voucher widgets of entry's page for source, then prunes the
// source's coupons last seen before the day the page started. Pruning is skipped when the page
// never loaded or showed no voucher widget at all.
func (c *CouponCollector) CollectPage(ctx context.Context, entry domain.FrontierEntry, source string) (PageSummary, error) {
	var sum PageSummary
	started := c.now()
	if err := c.page.Navigate(ctx, entry.URL); err != nil {
		return sum, err
	}

	for _, widget := range c.site.Widgets() {
		present, err := c.collectWidget(ctx, widget, source, &sum)
		if err != nil {
			return sum, err
		}
		if present {
			sum.Widgets++
		}
	}

	if sum.Widgets == 0 {
		c.log.ErrorObj("no voucher widget on shop page, prune skipped", "page", map[string]any{
			"url":         entry.URL,
			"source_name": source,
		})
		notify(ctx, c.notifier, c.alert, c.log)
		return sum, nil
	}

	pruned, err := c.store.PruneStaleSince(ctx, source, started)
	if err != nil {
		c.log.ErrorObj("prune stale coupons failed", "prune_error", map[string]any{
			"source_name": source,
			"error":       err.Error(),
		})
	} else {
		sum.Pruned = pruned
		if pruned > 0 {
			c.publish(ctx, publishers.NewPruneEvent(c.site.ID, source, pruned))
		}
	}

	c.log.InfoObj("shop page collected", "page_summary", map[string]any{
		"url":         entry.URL,
		"source_name": source,
		"summary":     sum,
	})
	return sum, nil
}

// collectWidget reports whether the widget was on the page. It returns an error only when the
// crawl itself must stop.
func (c *CouponCollector) collectWidget(ctx context.Context, widget, source string, sum *PageSummary) (bool, error) {
	c.expandSeeMore(ctx)

	if err := c.page.WaitPresent(ctx, widget, c.waits.Element); err != nil {
		if errors.Is(err, browser.ErrNotFound) {
			c.log.DebugObj("voucher widget absent", "widget", widget)
			return false, nil
		}
		return false, err
	}
	cards, err := c.page.Count(ctx, widget)
	if err != nil {
		return true, err
	}
	c.log.InfoObj("voucher cards found", "cards", map[string]any{"widget": widget, "count": cards})

	for i := 1; i <= cards; i++ {
		if err := ctx.Err(); err != nil {
			return true, err
		}
		sum.Cards++
		coupon, err := c.extractCard(ctx, nth(widget, i))
		switch {
		case errors.Is(err, errSkipCard):
			sum.Skipped++
			continue
		case errors.Is(err, errRequiredMiss):
			sum.Abandoned++
			continue
		case err != nil:
			if ctx.Err() != nil {
				return true, ctx.Err()
			}
			c.log.WarnObj("voucher card failed", "card_error", map[string]any{"card": i, "error": err.Error()})
			sum.Abandoned++
			continue
		}

		coupon.SourceName = domain.Text(source)
		c.save(ctx, source, coupon, sum)
	}
	return true, nil
}

var errSkipCard = errors.New("card skipped")

// extractCard reads one voucher. Each attempt starts from an empty coupon.
func (c *CouponCollector) extractCard(ctx context.Context, card string) (*domain.Coupon, error) {
	sel := c.site.Selectors
	coupon := &domain.Coupon{}

	label, err := c.page.Text(ctx, card+sel.CardButton, c.waits.Element)
	if err == nil {
		coupon.ButtonLabel = domain.Text(label)
	}
	if strings.EqualFold(domain.Deref(coupon.ButtonLabel), sites.ButtonSubscribe) {
		return nil, errSkipCard
	}

	c.expandSeeMore(ctx)

	if n, err := c.page.Count(ctx, card+sel.CardBanner); err == nil && n > 0 {
		return nil, errSkipCard
	}

	if err := c.page.WaitClickable(ctx, card, c.waits.Element); err != nil {
		c.log.ErrorObj("voucher card not clickable", "card", card)
		return nil, fmt.Errorf("card not clickable: %w", err)
	}
	if err := c.page.ScrollIntoView(ctx, card, c.waits.Element); err != nil {
		c.log.DebugObj("scroll to card failed", "error", err.Error())
	}
	if err := c.page.ClickIntoNewTab(ctx, card, c.waits.Element); err != nil {
		return nil, c.requiredMiss(ctx, "voucher popup did not open", err)
	}

	title, err := c.page.Text(ctx, sel.PopupTitle, c.waits.Element)
	if err != nil || strings.TrimSpace(title) == "" {
		c.discardOpener(ctx)
		c.closePopup(ctx)
		return nil, c.requiredMiss(ctx, "voucher title missing", err)
	}
	coupon.Title = domain.Text(title)

	c.readTerms(ctx, coupon)
	c.readCode(ctx, coupon)

	merchant, err := c.page.ReleaseOpener(ctx)
	if err != nil {
		c.log.WarnObj("merchant url unavailable", "error", err.Error())
	} else {
		coupon.URL = domain.Text(merchant)
	}

	c.closePopup(ctx)
	return coupon, nil
}

func (c *CouponCollector) readTerms(ctx context.Context, coupon *domain.Coupon) {
	sel := c.site.Selectors
	if err := c.page.WaitClickable(ctx, sel.TermsToggle, c.waits.Element); err == nil {
		if err := c.page.Click(ctx, sel.TermsToggle, c.waits.Element); err != nil {
			c.log.DebugObj("terms toggle click failed", "error", err.Error())
		}
	} else {
		c.log.DebugObj("voucher has no terms toggle", "title", domain.Deref(coupon.Title))
	}

	html, err := c.page.OuterHTML(ctx, sel.TermsParagraphs, c.waits.Element)
	if err != nil {
		c.log.InfoObj("voucher terms absent", "title", domain.Deref(coupon.Title))
		return
	}
	t, err := parseTerms(html)
	if err != nil {
		c.log.WarnObj("voucher terms unreadable", "error", err.Error())
		return
	}
	coupon.Description = t.Description
	coupon.Offer = t.Offer
	coupon.OrderAmount = t.OrderAmount
	coupon.UserLimitations = t.UserLimitations
	coupon.BrandLimitations = t.BrandLimitations
}

// readCode waits for the code only on SEE CODE cards; elsewhere a code is taken if present.
func (c *CouponCollector) readCode(ctx context.Context, coupon *domain.Coupon) {
	sel := c.site.Selectors
	if strings.EqualFold(domain.Deref(coupon.ButtonLabel), sites.ButtonSeeCode) {
		if err := c.page.WaitPresent(ctx, sel.Code, c.waits.Element); err != nil {
			c.log.ErrorObj("voucher code missing", "title", domain.Deref(coupon.Title))
			return
		}
	} else if n, err := c.page.Count(ctx, sel.Code); err != nil || n == 0 {
		return
	}

	code, err := c.page.Text(ctx, sel.Code, c.waits.Element)
	if err != nil {
		c.log.WarnObj("voucher code unreadable", "error", err.Error())
		return
	}
	coupon.Code = domain.Text(code)
}

func (c *CouponCollector) expandSeeMore(ctx context.Context) {
	sel := c.site.Selectors.SeeMore
	if n, err := c.page.Count(ctx, sel); err != nil || n == 0 {
		return
	}
	if err := c.page.WaitClickable(ctx, sel, c.waits.Element); err != nil {
		c.log.DebugObj("see more button not clickable", "error", err.Error())
		return
	}
	if err := c.page.ScrollIntoView(ctx, sel, c.waits.Element); err != nil {
		c.log.DebugObj("scroll to see more failed", "error", err.Error())
	}
	if err := c.page.Click(ctx, sel, c.waits.Element); err != nil {
		c.log.DebugObj("see more click failed", "error", err.Error())
	}
}

func (c *CouponCollector) closePopup(ctx context.Context) {
	sel := c.site.Selectors.CloseIcon
	if err := c.page.WaitClickable(ctx, sel, c.waits.Element); err == nil {
		if err = c.page.Click(ctx, sel, c.waits.Element); err == nil {
			return
		}
	}
	c.log.ErrorObj("voucher popup close button not clickable", "selector", sel)
	notify(ctx, c.notifier, c.alert, c.log)
}

func (c *CouponCollector) discardOpener(ctx context.Context) {
	if _, err := c.page.ReleaseOpener(ctx); err != nil {
		c.log.WarnObj("release opener tab failed", "error", err.Error())
	}
}

func (c *CouponCollector) requiredMiss(ctx context.Context, msg string, cause error) error {
	detail := "timeout"
	if cause != nil {
		detail = cause.Error()
	}
	c.log.ErrorObj(msg, "error", detail)
	notify(ctx, c.notifier, c.alert, c.log)
	return fmt.Errorf("%s: %w", msg, errRequiredMiss)
}

func (c *CouponCollector) save(ctx context.Context, source string, coupon *domain.Coupon, sum *PageSummary) {
	res, err := c.store.Upsert(ctx, coupon)
	if err != nil {
		sum.Failed++
		c.log.ErrorObj("coupon upsert failed", "upsert_error", map[string]any{
			"source_name": source,
			"title":       domain.Deref(coupon.Title),
			"error":       err.Error(),
		})
		return
	}

	switch res.Outcome {
	case domain.Inserted:
		sum.Inserted++
	case domain.Updated:
		sum.Updated++
	default:
		sum.Unchanged++
	}
	c.log.DebugObj("coupon saved", "upsert_result", map[string]any{
		"id":        res.ID,
		"outcome":   res.Outcome.String(),
		"fields":    res.Fields,
		"confirmed": res.Confirmed,
	})

	if evt, ok := publishers.NewCouponEvent(c.site.ID, source, *coupon, res); ok {
		c.publish(ctx, evt)
	}
}

func (c *CouponCollector) publish(ctx context.Context, evt publishers.Event) {
	if c.events == nil {
		return
	}
	if _, err := c.events.Publish(ctx, evt); err != nil {
		c.log.WarnObj("coupon event publish failed", "publish_error", map[string]any{
			"event_type": evt.Type,
			"error":      err.Error(),
		})
	}
}
