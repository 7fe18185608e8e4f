package publishers

import (
	"testing"

	"github.com/Adda-Baaj/coupon-harvester/internal/domain"
)

func TestNewCouponEventSkipsUnchanged(t *testing.T) {
	if _, ok := NewCouponEvent("s", "Acme", domain.Coupon{}, domain.UpsertResult{Outcome: domain.Unchanged, Confirmed: true}); ok {
		t.Fatalf("unchanged upserts must not produce events")
	}

	evt, ok := NewCouponEvent("s", "Acme", domain.Coupon{}, domain.UpsertResult{ID: 9, Outcome: domain.Updated, Fields: []string{"code"}})
	if !ok || evt.Type != EventCouponUpdated || evt.Coupon.ID != 9 || evt.ID == "" {
		t.Fatalf("unexpected event %+v", evt)
	}
	if len(evt.ChangedFields) != 1 || evt.ChangedFields[0] != "code" {
		t.Fatalf("changed fields = %v", evt.ChangedFields)
	}
	if other, _ := NewCouponEvent("s", "Acme", domain.Coupon{}, domain.UpsertResult{Outcome: domain.Inserted}); other.ID == evt.ID {
		t.Fatalf("event ids must be unique")
	}
}
