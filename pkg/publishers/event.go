package publishers

import (
	"time"

	"github.com/Adda-Baaj/coupon-harvester/internal/domain"
	"github.com/google/uuid"
)

// Event types emitted by the coupon crawler.
const (
	EventCouponInserted = "coupon.inserted"
	EventCouponUpdated  = "coupon.updated"
	EventCouponsPruned  = "coupons.pruned"
)

// EventTypes lists every event type a publisher may subscribe to.
var EventTypes = []string{EventCouponInserted, EventCouponUpdated, EventCouponsPruned}

// Event represents a change to the coupon table published downstream.
type Event struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	SiteID        string         `json:"site_id"`
	SourceName    string         `json:"source_name"`
	Coupon        *domain.Coupon `json:"coupon,omitempty"`
	ChangedFields []string       `json:"changed_fields,omitempty"`
	Pruned        int64          `json:"pruned,omitempty"`
	OccurredAt    time.Time      `json:"occurred_at"`
}

// NewCouponEvent builds the event for an Inserted or Updated upsert. ok is false for outcomes
// that are not published.
func NewCouponEvent(siteID, source string, c domain.Coupon, res domain.UpsertResult) (Event, bool) {
	var typ string
	switch res.Outcome {
	case domain.Inserted:
		typ = EventCouponInserted
	case domain.Updated:
		typ = EventCouponUpdated
	default:
		return Event{}, false
	}
	c.ID = res.ID
	return Event{
		ID:            uuid.NewString(),
		Type:          typ,
		SiteID:        siteID,
		SourceName:    source,
		Coupon:        &c,
		ChangedFields: res.Fields,
		OccurredAt:    time.Now().UTC(),
	}, true
}

// NewPruneEvent builds the event for a staleness prune of one source.
func NewPruneEvent(siteID, source string, pruned int64) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       EventCouponsPruned,
		SiteID:     siteID,
		SourceName: source,
		Pruned:     pruned,
		OccurredAt: time.Now().UTC(),
	}
}

// attributes are the message attributes every queue sink attaches.
func (e Event) attributes() map[string]string {
	return map[string]string{
		"event_type":  e.Type,
		"source_name": e.SourceName,
	}
}
