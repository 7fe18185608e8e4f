package crawler

import (
	"context"
	"testing"
	"time"

	"github.com/Adda-Baaj/coupon-harvester/internal/domain"
	"github.com/Adda-Baaj/coupon-harvester/pkg/publishers"
	"github.com/Adda-Baaj/coupon-harvester/pkg/sites"
)

const termsHTML = `<div data-testid="rich-text-root">
<p>Save on all full priced items.</p>
<p><b>Offer:</b> 15% off</p>
<p><b>Order amount:</b> $50 minimum</p>
<p></p>
<p>Excludes gift cards.</p>
</div>`

var testWaits = Waits{Element: time.Millisecond, Section: time.Millisecond}

func testSite(t *testing.T) sites.Site {
	t.Helper()
	s, ok := sites.SiteByID(sites.DefaultSiteID)
	if !ok {
		t.Fatalf("default site missing")
	}
	return s
}

// shopPage lays out an active widget with a subscribe card, a code card and a banner card.
func shopPage(site sites.Site) *fakePage {
	sel := site.Selectors
	p := newFakePage()
	p.openerURL = "https://merchant.test/landing"
	p.counts[sel.ActiveVouchers] = 3

	p.texts[nth(sel.ActiveVouchers, 1)+sel.CardButton] = "SUBSCRIBE"

	card := nth(sel.ActiveVouchers, 2)
	p.texts[card+sel.CardButton] = "SEE CODE"
	p.present[card] = true
	p.newTabs[card] = true

	p.texts[nth(sel.ActiveVouchers, 3)+sel.CardButton] = "GET DEAL"
	p.counts[nth(sel.ActiveVouchers, 3)+sel.CardBanner] = 1

	p.texts[sel.PopupTitle] = "15% off full priced items"
	p.present[sel.TermsToggle] = true
	p.html[sel.TermsParagraphs] = termsHTML
	p.texts[sel.Code] = "SAVE15"
	p.present[sel.CloseIcon] = true
	return p
}

func TestCouponCollectorExtractsAndPrunesOnce(t *testing.T) {
	site := testSite(t)
	page := shopPage(site)
	store := &fakeCouponStore{pruneRet: 2}
	events := &fakeEvents{}
	notifier := &fakeNotifier{}
	c := NewCouponCollector(page, site, store, events, notifier, "alert", testWaits, nil)

	entry := domain.FrontierEntry{URL: "https://deals.test/acme", Label: "Acme"}
	sum, err := c.CollectPage(context.Background(), entry, "Acme")
	if err != nil {
		t.Fatalf("CollectPage: %v", err)
	}
	if sum.Cards != 3 || sum.Skipped != 2 || sum.Inserted != 1 || sum.Pruned != 2 {
		t.Fatalf("summary = %+v", sum)
	}

	if len(store.upserts) != 1 {
		t.Fatalf("upserts = %d", len(store.upserts))
	}
	got := store.upserts[0]
	checks := map[string]struct{ got, want string }{
		"title":        {domain.Deref(got.Title), "15% off full priced items"},
		"description":  {domain.Deref(got.Description), "Save on all full priced items."},
		"offer":        {domain.Deref(got.Offer), "15% off"},
		"order_amount": {domain.Deref(got.OrderAmount), "$50 minimum"},
		"button_label": {domain.Deref(got.ButtonLabel), "SEE CODE"},
		"code":         {domain.Deref(got.Code), "SAVE15"},
		"url":          {domain.Deref(got.URL), "https://merchant.test/landing"},
		"source_name":  {domain.Deref(got.SourceName), "Acme"},
	}
	for field, v := range checks {
		if v.got != v.want {
			t.Errorf("%s = %q, want %q", field, v.got, v.want)
		}
	}
	if got.UserLimitations != nil || got.BrandLimitations != nil {
		t.Errorf("unexpected limitation fields %+v", got)
	}

	if len(store.pruned) != 1 || store.pruned[0] != "Acme" {
		t.Fatalf("prune calls = %v", store.pruned)
	}
	if len(events.events) != 2 || events.events[0].Type != publishers.EventCouponInserted ||
		events.events[1].Type != publishers.EventCouponsPruned {
		t.Fatalf("events = %+v", events.events)
	}
	if len(notifier.messages) != 0 {
		t.Fatalf("unexpected notifications %v", notifier.messages)
	}
	if page.hasOpener || page.released != 1 {
		t.Fatalf("opener not released exactly once: released=%d", page.released)
	}
}

func TestCouponCollectorAbandonsCardWithoutTitle(t *testing.T) {
	site := testSite(t)
	page := shopPage(site)
	delete(page.texts, site.Selectors.PopupTitle)
	store := &fakeCouponStore{}
	notifier := &fakeNotifier{}
	c := NewCouponCollector(page, site, store, nil, notifier, "alert", testWaits, nil)

	sum, err := c.CollectPage(context.Background(), domain.FrontierEntry{URL: "u"}, "Acme")
	if err != nil {
		t.Fatalf("CollectPage: %v", err)
	}
	if sum.Abandoned != 1 || len(store.upserts) != 0 {
		t.Fatalf("summary = %+v upserts=%d", sum, len(store.upserts))
	}
	if len(notifier.messages) != 1 {
		t.Fatalf("expected one alert, got %v", notifier.messages)
	}
	if page.hasOpener {
		t.Fatalf("opener left open after abandoning card")
	}
	if len(store.pruned) != 1 {
		t.Fatalf("prune should still run once, got %v", store.pruned)
	}
}

func TestCouponCollectorContinuesAfterPersistenceFailure(t *testing.T) {
	site := testSite(t)
	page := shopPage(site)
	sel := site.Selectors
	page.counts[sel.SimilarVouchers] = 1
	similar := nth(sel.SimilarVouchers, 1)
	page.texts[similar+sel.CardButton] = "GET DEAL"
	page.present[similar] = true
	page.newTabs[similar] = true

	store := &fakeCouponStore{failOn: "15% off full priced items"}
	c := NewCouponCollector(page, site, store, nil, nil, "alert", testWaits, nil)

	sum, err := c.CollectPage(context.Background(), domain.FrontierEntry{URL: "u"}, "Acme")
	if err != nil {
		t.Fatalf("CollectPage: %v", err)
	}
	// Both cards read the same popup, so both fail to persist and neither stops the batch.
	if sum.Failed != 2 || sum.Cards != 4 {
		t.Fatalf("summary = %+v", sum)
	}
	if len(store.pruned) != 1 {
		t.Fatalf("prune calls = %v", store.pruned)
	}
}

func TestCouponCollectorNotifiesWhenPopupCannotClose(t *testing.T) {
	site := testSite(t)
	page := shopPage(site)
	delete(page.present, site.Selectors.CloseIcon)
	store := &fakeCouponStore{}
	notifier := &fakeNotifier{}
	c := NewCouponCollector(page, site, store, nil, notifier, "alert", testWaits, nil)

	if _, err := c.CollectPage(context.Background(), domain.FrontierEntry{URL: "u"}, "Acme"); err != nil {
		t.Fatalf("CollectPage: %v", err)
	}
	if len(notifier.messages) != 1 || len(store.upserts) != 1 {
		t.Fatalf("messages=%v upserts=%d", notifier.messages, len(store.upserts))
	}
}

func TestCouponCollectorSkipsPruneWhenPageFails(t *testing.T) {
	site := testSite(t)
	page := newFakePage()
	page.navErr = context.DeadlineExceeded
	store := &fakeCouponStore{}
	c := NewCouponCollector(page, site, store, nil, nil, "alert", testWaits, nil)

	if _, err := c.CollectPage(context.Background(), domain.FrontierEntry{URL: "u"}, "Acme"); err == nil {
		t.Fatalf("expected navigation error")
	}
	if len(store.pruned) != 0 {
		t.Fatalf("prune ran for a page that never loaded")
	}
}

func TestCouponCollectorSkipsPruneWithoutVoucherWidgets(t *testing.T) {
	site := testSite(t)
	page := newFakePage()
	store := &fakeCouponStore{pruneRet: 42}
	notifier := &fakeNotifier{}
	c := NewCouponCollector(page, site, store, nil, notifier, "alert", testWaits, nil)

	sum, err := c.CollectPage(context.Background(), domain.FrontierEntry{URL: "https://deals.test/acme"}, "Acme")
	if err != nil {
		t.Fatalf("CollectPage: %v", err)
	}
	if len(store.pruned) != 0 || sum.Pruned != 0 {
		t.Fatalf("prune ran on a page without voucher widgets: calls=%v pruned=%d", store.pruned, sum.Pruned)
	}
	if sum.Widgets != 0 || sum.Cards != 0 {
		t.Fatalf("summary = %+v", sum)
	}
	if len(notifier.messages) != 1 || notifier.messages[0] != "alert" {
		t.Fatalf("messages = %v", notifier.messages)
	}
}

func TestCouponCollectorPrunesAsOfPageStart(t *testing.T) {
	site := testSite(t)
	page := shopPage(site)
	store := &fakeCouponStore{}
	c := NewCouponCollector(page, site, store, nil, nil, "alert", testWaits, nil)
	started := time.Date(2026, 3, 4, 23, 59, 30, 0, time.Local)
	c.now = func() time.Time { return started }

	sum, err := c.CollectPage(context.Background(), domain.FrontierEntry{URL: "https://deals.test/acme"}, "Acme")
	if err != nil {
		t.Fatalf("CollectPage: %v", err)
	}
	if sum.Widgets != 1 {
		t.Fatalf("widgets = %d, want 1", sum.Widgets)
	}
	if len(store.since) != 1 || !store.since[0].Equal(started) {
		t.Fatalf("prune since = %v, want %v", store.since, started)
	}
}
