package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Adda-Baaj/coupon-harvester/internal/crawler"
	"github.com/Adda-Baaj/coupon-harvester/internal/domain"
	"github.com/Adda-Baaj/coupon-harvester/internal/frontier"
	"github.com/Adda-Baaj/coupon-harvester/internal/logger"
	"github.com/google/uuid"
)

// Frontier is the part of frontier.Tracker a run loop drives.
type Frontier interface {
	BeginPass() (bool, error)
	Empty() (bool, error)
	Pending() ([]domain.FrontierEntry, error)
	MarkScraped(ctx context.Context, url string) error
	Label(url string) (string, error)
}

// Discoverer fills the frontier from the site's shop directory.
type Discoverer interface {
	Discover(ctx context.Context) (int, error)
}

type visitFunc func(ctx context.Context, entry domain.FrontierEntry, source string) error

// passLoop repeats passes over a frontier until the context is cancelled.
type passLoop struct {
	name             string
	frontier         Frontier
	discoverer       Discoverer
	visit            visitFunc
	discoverEachPass bool
	pageDelay        time.Duration
	passPause        time.Duration
	log              logger.Logger
}

// run returns nil on cancellation. A corrupt frontier stops the loop because no later pass
// could read it either; every other pass failure is logged and retried after the pause.
func (l *passLoop) run(ctx context.Context) error {
	l.log.InfoObj(l.name+" loop starting", "loop_state", map[string]any{
		"discover_each_pass": l.discoverEachPass,
		"page_delay":         l.pageDelay.String(),
		"pass_pause":         l.passPause.String(),
	})

	for {
		if err := l.pass(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, frontier.ErrCorruptEntry) {
				return err
			}
			l.log.ErrorObj(l.name+" pass failed", "error", err.Error())
		}
		if err := crawler.Wait(ctx, l.passPause); err != nil {
			break
		}
	}
	l.log.InfoObj(l.name+" loop exiting", "reason", ctx.Err())
	return nil
}

func (l *passLoop) pass(ctx context.Context) error {
	passID := uuid.NewString()
	start := time.Now()

	reset, err := l.frontier.BeginPass()
	if err != nil {
		return fmt.Errorf("begin pass: %w", err)
	}
	empty, err := l.frontier.Empty()
	if err != nil {
		return fmt.Errorf("inspect frontier: %w", err)
	}

	if l.discoverEachPass || empty {
		added, err := l.discoverer.Discover(ctx)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			l.log.ErrorObj("directory discovery failed", "discovery_error", map[string]any{
				"pass_id": passID,
				"error":   err.Error(),
			})
		default:
			l.log.InfoObj("directory discovery finished", "discovery_meta", map[string]any{
				"pass_id": passID,
				"added":   added,
			})
		}
	}

	pending, err := l.frontier.Pending()
	if err != nil {
		return fmt.Errorf("load pending urls: %w", err)
	}
	l.log.InfoObj(l.name+" pass started", "pass_meta", map[string]any{
		"pass_id":       passID,
		"pending_count": len(pending),
		"reset":         reset,
		"started_at":    start.UTC(),
	})

	failed := 0
	for i, entry := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		source, err := l.frontier.Label(entry.URL)
		if err != nil {
			return fmt.Errorf("label for %s: %w", entry.URL, err)
		}

		if err := l.visit(ctx, entry, source); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			failed++
			l.log.ErrorObj("page visit failed", "visit_error", map[string]any{
				"pass_id":     passID,
				"url":         entry.URL,
				"source_name": source,
				"error":       err.Error(),
			})
		}
		if err := l.frontier.MarkScraped(ctx, entry.URL); err != nil {
			return fmt.Errorf("mark %s scraped: %w", entry.URL, err)
		}

		if i < len(pending)-1 {
			if err := crawler.Wait(ctx, l.pageDelay); err != nil {
				return err
			}
		}
	}

	l.log.InfoObj(l.name+" pass completed", "pass_meta", map[string]any{
		"pass_id":    passID,
		"visited":    len(pending),
		"failed":     failed,
		"elapsed_ms": time.Since(start).Milliseconds(),
	})
	return nil
}
