// Package browser drives a real Chrome instance for the crawler.
package browser

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a selector does not match within the allowed wait.
var ErrNotFound = errors.New("element not found")

// Page is the tab the crawler is working in. Selectors are XPath expressions or CSS selectors;
// when several nodes match, the first one is used.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// URL returns the location of the current tab.
	URL(ctx context.Context) (string, error)

	// WaitPresent waits until sel is in the DOM.
	WaitPresent(ctx context.Context, sel string, timeout time.Duration) error
	// WaitClickable waits until sel is visible and enabled.
	WaitClickable(ctx context.Context, sel string, timeout time.Duration) error
	// Count returns how many nodes currently match sel without waiting.
	Count(ctx context.Context, sel string) (int, error)

	Text(ctx context.Context, sel string, timeout time.Duration) (string, error)
	Attribute(ctx context.Context, sel, name string, timeout time.Duration) (string, bool, error)
	OuterHTML(ctx context.Context, sel string, timeout time.Duration) (string, error)

	Click(ctx context.Context, sel string, timeout time.Duration) error
	ScrollIntoView(ctx context.Context, sel string, timeout time.Duration) error

	// ClickIntoNewTab clicks sel and switches to the tab the click opened. The previous tab
	// stays open as the opener until ReleaseOpener.
	ClickIntoNewTab(ctx context.Context, sel string, timeout time.Duration) error
	// ReleaseOpener returns the opener tab's location and closes it. It is a no-op returning
	// "" when there is no opener.
	ReleaseOpener(ctx context.Context) (string, error)

	Close() error
}
