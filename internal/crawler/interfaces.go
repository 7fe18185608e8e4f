package crawler

import (
	"context"
	"time"

	"github.com/Adda-Baaj/coupon-harvester/internal/domain"
	"github.com/Adda-Baaj/coupon-harvester/pkg/publishers"
)

// LinkSink receives shop links found on the directory page.
type LinkSink interface {
	AppendNew(entries []domain.FrontierEntry) (int, error)
}

// CouponStore persists coupons through the upsert policy.
type CouponStore interface {
	Upsert(ctx context.Context, c *domain.Coupon) (domain.UpsertResult, error)
	// PruneStaleSince deletes the source's coupons last seen before the calendar day of since.
	PruneStaleSince(ctx context.Context, source string, since time.Time) (int64, error)
}

// DetailStore persists company details.
type DetailStore interface {
	Insert(ctx context.Context, d domain.CompanyDetail) (bool, error)
}

// EventPublisher publishes coupon changes downstream.
type EventPublisher interface {
	Publish(ctx context.Context, evt publishers.Event) (int, error)
}

// Notifier alerts an operator.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}
