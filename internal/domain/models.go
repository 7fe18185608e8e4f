package domain

import (
	"strings"
	"time"
)

// Domain contains core models shared by the frontier, the record stores and the crawler.

// FrontierEntry is one discovery target tracked by a frontier store.
type FrontierEntry struct {
	URL     string `json:"url"`
	Label   string `json:"label"`
	Scraped bool   `json:"scraped"`
}

// Coupon is a voucher extracted from a shop page. Text fields are nil when the page did not
// expose them; nil and "" are different values for the natural key and for the field diff.
type Coupon struct {
	ID               int64     `db:"id" json:"id"`
	Title            *string   `db:"title" json:"title"`
	Description      *string   `db:"description" json:"description"`
	Offer            *string   `db:"offer" json:"offer"`
	OrderAmount      *string   `db:"order_amount" json:"order_amount"`
	UserLimitations  *string   `db:"user_limitations" json:"user_limitations"`
	BrandLimitations *string   `db:"brand_limitations" json:"brand_limitations"`
	ButtonLabel      *string   `db:"button_label" json:"button_label"`
	Code             *string   `db:"code" json:"code"`
	URL              *string   `db:"url" json:"url"`
	SourceName       *string   `db:"source_name" json:"source_name"`
	LastSeen         time.Time `db:"-" json:"last_seen"`
}

// couponField maps a mutable coupon column to its accessor.
type couponField struct {
	column string
	get    func(*Coupon) *string
}

// mutableCouponFields lists every column an upsert may rewrite. Title and description form
// the natural key and are never part of a diff.
var mutableCouponFields = []couponField{
	{column: "offer", get: func(c *Coupon) *string { return c.Offer }},
	{column: "order_amount", get: func(c *Coupon) *string { return c.OrderAmount }},
	{column: "user_limitations", get: func(c *Coupon) *string { return c.UserLimitations }},
	{column: "brand_limitations", get: func(c *Coupon) *string { return c.BrandLimitations }},
	{column: "button_label", get: func(c *Coupon) *string { return c.ButtonLabel }},
	{column: "code", get: func(c *Coupon) *string { return c.Code }},
	{column: "url", get: func(c *Coupon) *string { return c.URL }},
	{column: "source_name", get: func(c *Coupon) *string { return c.SourceName }},
}

// Diff returns the mutable columns whose value in next differs from c, in column order.
func (c *Coupon) Diff(next *Coupon) []string {
	var changed []string
	for _, f := range mutableCouponFields {
		if !EqualText(f.get(c), f.get(next)) {
			changed = append(changed, f.column)
		}
	}
	return changed
}

// FieldValue returns the value of a mutable column by name.
func (c *Coupon) FieldValue(column string) (*string, bool) {
	for _, f := range mutableCouponFields {
		if f.column == column {
			return f.get(c), true
		}
	}
	return nil, false
}

// KeyPart is one component of a NaturalKey. An absent value is never equal to any present
// value, including "" and "\x00".
type KeyPart struct {
	Present bool
	Value   string
}

// Arg returns the part as a SQL argument: nil when absent.
func (p KeyPart) Arg() any {
	if !p.Present {
		return nil
	}
	return p.Value
}

// NaturalKey is the normalized (title, description) tuple identifying a coupon.
type NaturalKey struct {
	Title       KeyPart
	Description KeyPart
}

// Key builds the null-aware natural key of the coupon.
func (c *Coupon) Key() NaturalKey {
	return NaturalKey{Title: keyPart(c.Title), Description: keyPart(c.Description)}
}

func keyPart(v *string) KeyPart {
	if v == nil {
		return KeyPart{}
	}
	return KeyPart{Present: true, Value: *v}
}

// EqualText compares two optional strings; nil only equals nil.
func EqualText(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// Text returns a pointer to the trimmed value, or nil when nothing is left after trimming.
func Text(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

// Str returns a pointer to v as-is.
func Str(v string) *string { return &v }

// Deref returns the pointed-to string or "".
func Deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// CompanyDetail is the shop metadata scraped from a shop page sidebar.
type CompanyDetail struct {
	ID         int64  `db:"id" json:"id"`
	SourceName string `db:"source_name" json:"source_name"`
	IconURL    string `db:"icon_url" json:"icon_url"`
	AboutText  string `db:"about_text" json:"about_text"`
}

// UpsertOutcome classifies what an upsert did to the coupon table.
type UpsertOutcome int

const (
	Unchanged UpsertOutcome = iota
	Inserted
	Updated
)

func (o UpsertOutcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}

// UpsertResult reports the outcome of a coupon upsert. Fields lists the changed columns for
// Updated. Confirmed is set when an unchanged row had its last_seen carried into a new day.
type UpsertResult struct {
	ID        int64
	Outcome   UpsertOutcome
	Fields    []string
	Confirmed bool
}
