package domain

import (
	"reflect"
	"testing"
)

func TestCouponKeyIsNullAware(t *testing.T) {
	absent := Coupon{Title: Str("X")}
	alsoAbsent := Coupon{Title: Str("X")}
	empty := Coupon{Title: Str("X"), Description: Str("")}

	if absent.Key() != alsoAbsent.Key() {
		t.Fatalf("absent descriptions should share a key")
	}
	if absent.Key() == empty.Key() {
		t.Fatalf("absent and empty descriptions must not share a key")
	}
	nul := Coupon{Title: Str("X"), Description: Str("\x00")}
	if absent.Key() == nul.Key() {
		t.Fatalf("absent and NUL descriptions must not share a key")
	}
	if absent.Key().Description.Arg() != nil || empty.Key().Description.Arg() != "" {
		t.Fatalf("unexpected SQL args %v / %v", absent.Key().Description.Arg(), empty.Key().Description.Arg())
	}
}

func TestCouponDiffReportsOnlyChangedColumns(t *testing.T) {
	stored := Coupon{Title: Str("t"), Offer: Str("10%"), Code: Str("OLD"), URL: Str("https://shop")}
	next := stored
	next.Code = Str("NEW")
	next.Title = Str("other title")

	got := stored.Diff(&next)
	if !reflect.DeepEqual(got, []string{"code"}) {
		t.Fatalf("Diff = %v, want [code]", got)
	}

	next.URL = nil
	got = stored.Diff(&next)
	if !reflect.DeepEqual(got, []string{"code", "url"}) {
		t.Fatalf("Diff = %v, want [code url]", got)
	}
}

func TestTextTrimsAndDropsBlank(t *testing.T) {
	if Text("   ") != nil {
		t.Fatalf("blank text should be absent")
	}
	if got := Deref(Text("  SEE CODE ")); got != "SEE CODE" {
		t.Fatalf("Text = %q", got)
	}
}
