package crawler

import (
	"context"
	"errors"
	"time"

	"github.com/Adda-Baaj/coupon-harvester/internal/browser"
	"github.com/Adda-Baaj/coupon-harvester/internal/domain"
	"github.com/Adda-Baaj/coupon-harvester/pkg/publishers"
)

// fakePage answers selector lookups from fixed maps.
type fakePage struct {
	navErr    error
	navigated []string
	present   map[string]bool
	counts    map[string]int
	texts     map[string]string
	html      map[string]string
	attrs     map[string]string
	newTabs   map[string]bool
	openerURL string

	hasOpener bool
	released  int
	clicks    []string
}

func newFakePage() *fakePage {
	return &fakePage{
		present: map[string]bool{},
		counts:  map[string]int{},
		texts:   map[string]string{},
		html:    map[string]string{},
		attrs:   map[string]string{},
		newTabs: map[string]bool{},
	}
}

func (f *fakePage) exists(sel string) bool {
	if f.present[sel] || f.counts[sel] > 0 {
		return true
	}
	if _, ok := f.texts[sel]; ok {
		return true
	}
	_, ok := f.html[sel]
	return ok
}

func (f *fakePage) Navigate(_ context.Context, url string) error {
	f.navigated = append(f.navigated, url)
	return f.navErr
}

func (f *fakePage) URL(context.Context) (string, error) {
	if len(f.navigated) == 0 {
		return "", nil
	}
	return f.navigated[len(f.navigated)-1], nil
}

func (f *fakePage) WaitPresent(_ context.Context, sel string, _ time.Duration) error {
	if f.exists(sel) {
		return nil
	}
	return browser.ErrNotFound
}

func (f *fakePage) WaitClickable(ctx context.Context, sel string, d time.Duration) error {
	return f.WaitPresent(ctx, sel, d)
}

func (f *fakePage) Count(_ context.Context, sel string) (int, error) {
	return f.counts[sel], nil
}

func (f *fakePage) Text(_ context.Context, sel string, _ time.Duration) (string, error) {
	if v, ok := f.texts[sel]; ok {
		return v, nil
	}
	return "", browser.ErrNotFound
}

func (f *fakePage) Attribute(_ context.Context, sel, name string, _ time.Duration) (string, bool, error) {
	if v, ok := f.attrs[sel+"@"+name]; ok {
		return v, true, nil
	}
	return "", false, browser.ErrNotFound
}

func (f *fakePage) OuterHTML(_ context.Context, sel string, _ time.Duration) (string, error) {
	if v, ok := f.html[sel]; ok {
		return v, nil
	}
	return "", browser.ErrNotFound
}

func (f *fakePage) Click(_ context.Context, sel string, _ time.Duration) error {
	if !f.exists(sel) {
		return browser.ErrNotFound
	}
	f.clicks = append(f.clicks, sel)
	return nil
}

func (f *fakePage) ScrollIntoView(_ context.Context, sel string, _ time.Duration) error {
	if !f.exists(sel) {
		return browser.ErrNotFound
	}
	return nil
}

func (f *fakePage) ClickIntoNewTab(_ context.Context, sel string, _ time.Duration) error {
	if !f.newTabs[sel] {
		return browser.ErrNotFound
	}
	f.clicks = append(f.clicks, sel)
	f.hasOpener = true
	return nil
}

func (f *fakePage) ReleaseOpener(context.Context) (string, error) {
	if !f.hasOpener {
		return "", nil
	}
	f.hasOpener = false
	f.released++
	return f.openerURL, nil
}

func (f *fakePage) Close() error { return nil }

type fakeCouponStore struct {
	upserts  []domain.Coupon
	failOn   string
	pruned   []string
	since    []time.Time
	pruneRet int64
}

func (s *fakeCouponStore) Upsert(_ context.Context, c *domain.Coupon) (domain.UpsertResult, error) {
	if s.failOn != "" && domain.Deref(c.Title) == s.failOn {
		return domain.UpsertResult{}, errors.New("database is locked")
	}
	s.upserts = append(s.upserts, *c)
	return domain.UpsertResult{ID: int64(len(s.upserts)), Outcome: domain.Inserted}, nil
}

func (s *fakeCouponStore) PruneStaleSince(_ context.Context, source string, since time.Time) (int64, error) {
	s.pruned = append(s.pruned, source)
	s.since = append(s.since, since)
	return s.pruneRet, nil
}

type fakeEvents struct{ events []publishers.Event }

func (f *fakeEvents) Publish(_ context.Context, evt publishers.Event) (int, error) {
	f.events = append(f.events, evt)
	return 1, nil
}

type fakeNotifier struct{ messages []string }

func (f *fakeNotifier) Notify(_ context.Context, text string) error {
	f.messages = append(f.messages, text)
	return nil
}

type fakeSink struct{ entries []domain.FrontierEntry }

func (f *fakeSink) AppendNew(entries []domain.FrontierEntry) (int, error) {
	f.entries = append(f.entries, entries...)
	return len(entries), nil
}

type fakeDetailStore struct {
	inserted []domain.CompanyDetail
	err      error
}

func (f *fakeDetailStore) Insert(_ context.Context, d domain.CompanyDetail) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.inserted = append(f.inserted, d)
	return true, nil
}
