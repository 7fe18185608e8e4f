// Package notify sends operator alerts to a chat bot.
package notify

import "context"

// Notifier delivers a short text message. Implementations must not block the crawl for long:
// callers log a returned error and move on.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Nop drops every message. It is used when no bot token is configured.
type Nop struct{}

func (Nop) Notify(context.Context, string) error { return nil }
