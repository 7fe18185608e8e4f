package frontier

import (
	"context"
	"fmt"

	"github.com/Adda-Baaj/coupon-harvester/internal/domain"
	"github.com/Adda-Baaj/coupon-harvester/internal/logger"
)

// UnknownLabel is the source name used when a url has no frontier label.
const UnknownLabel = "Unknown Company"

// Notifier delivers operator messages. Delivery failures never fail a frontier update.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Tracker drives one frontier through crawl passes.
type Tracker struct {
	store         Store
	notifier      Notifier
	statusMessage string
	log           logger.Logger
}

// NewTracker wires a store to the notifier that is told about every status update.
func NewTracker(store Store, notifier Notifier, statusMessage string, log logger.Logger) *Tracker {
	return &Tracker{
		store:         store,
		notifier:      notifier,
		statusMessage: statusMessage,
		log:           logger.Ensure(log),
	}
}

// BeginPass resets the frontier when the previous pass finished every entry.
// It reports whether a reset happened.
func (t *Tracker) BeginPass() (bool, error) {
	entries, err := t.store.Load()
	if err != nil {
		return false, fmt.Errorf("load frontier: %w", err)
	}
	if len(entries) == 0 {
		return false, nil
	}
	for _, e := range entries {
		if !e.Scraped {
			return false, nil
		}
	}
	if err := t.store.ResetAll(); err != nil {
		return false, fmt.Errorf("reset frontier: %w", err)
	}
	t.log.InfoObj("frontier pass complete, statuses reset", "entries", len(entries))
	return true, nil
}

// Empty reports whether nothing has been discovered yet.
func (t *Tracker) Empty() (bool, error) {
	entries, err := t.store.Load()
	if err != nil {
		return false, err
	}
	return len(entries) == 0, nil
}

func (t *Tracker) AppendNew(entries []domain.FrontierEntry) (int, error) {
	return t.store.AppendNew(entries)
}

func (t *Tracker) Pending() ([]domain.FrontierEntry, error) {
	return t.store.Pending()
}

// MarkScraped persists the flag and then sends the status message.
func (t *Tracker) MarkScraped(ctx context.Context, url string) error {
	if err := t.store.MarkScraped(url); err != nil {
		return err
	}
	t.log.DebugObj("frontier entry scraped", "url", url)
	if t.notifier != nil {
		if err := t.notifier.Notify(ctx, t.statusMessage); err != nil {
			t.log.WarnObj("status notification failed", "error", err.Error())
		}
	}
	return nil
}

// Label resolves the source name for url, falling back to UnknownLabel.
func (t *Tracker) Label(url string) (string, error) {
	label, ok, err := t.store.Label(url)
	if err != nil {
		return "", err
	}
	if !ok || label == "" {
		return UnknownLabel, nil
	}
	return label, nil
}
