package records

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Adda-Baaj/coupon-harvester/internal/domain"
	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "coupons.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func fixedClock(ts *time.Time) func() time.Time {
	return func() time.Time { return *ts }
}

func sampleCoupon() *domain.Coupon {
	return &domain.Coupon{
		Title:       domain.Str("10% off sitewide"),
		Description: domain.Str("Valid on full priced items"),
		Offer:       domain.Str("10% off"),
		ButtonLabel: domain.Str("SEE CODE"),
		Code:        domain.Str("SAVE10"),
		URL:         domain.Str("https://shop.test"),
		SourceName:  domain.Str("Shop"),
	}
}

func countRows(t *testing.T, db *sqlx.DB) int {
	t.Helper()
	var n int
	if err := db.Get(&n, `SELECT COUNT(*) FROM coupons`); err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func lastSeenOf(t *testing.T, db *sqlx.DB, id int64) string {
	t.Helper()
	var v string
	if err := db.Get(&v, `SELECT last_seen FROM coupons WHERE id = ?`, id); err != nil {
		t.Fatalf("last_seen: %v", err)
	}
	return v
}

func TestUpsertIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.Local)
	repo := NewCouponRepository(db)
	repo.now = fixedClock(&now)
	ctx := context.Background()

	first, err := repo.Upsert(ctx, sampleCoupon())
	if err != nil || first.Outcome != domain.Inserted {
		t.Fatalf("first upsert = %+v, %v", first, err)
	}

	now = now.Add(time.Hour)
	second, err := repo.Upsert(ctx, sampleCoupon())
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.Outcome != domain.Unchanged || second.Confirmed || second.ID != first.ID {
		t.Fatalf("second upsert = %+v", second)
	}
	if got := lastSeenOf(t, db, first.ID); got != "2026-03-04 10:00:00" {
		t.Fatalf("unchanged upsert touched last_seen: %s", got)
	}
	if n := countRows(t, db); n != 1 {
		t.Fatalf("rows = %d", n)
	}
}

func TestUpsertNaturalKeyIsNullSafe(t *testing.T) {
	db := openTestDB(t)
	repo := NewCouponRepository(db)
	ctx := context.Background()

	withNull := sampleCoupon()
	withNull.Description = nil
	a, err := repo.Upsert(ctx, withNull)
	if err != nil || a.Outcome != domain.Inserted {
		t.Fatalf("null description insert = %+v, %v", a, err)
	}

	again := sampleCoupon()
	again.Description = nil
	b, err := repo.Upsert(ctx, again)
	if err != nil || b.Outcome != domain.Unchanged || b.ID != a.ID {
		t.Fatalf("null-null should match: %+v, %v", b, err)
	}

	empty := sampleCoupon()
	empty.Description = domain.Str("")
	c, err := repo.Upsert(ctx, empty)
	if err != nil || c.Outcome != domain.Inserted || c.ID == a.ID {
		t.Fatalf("null vs empty should not match: %+v, %v", c, err)
	}
	if n := countRows(t, db); n != 2 {
		t.Fatalf("rows = %d, want 2", n)
	}

	if _, err := db.Exec(`INSERT INTO coupons (title, description) VALUES (?, NULL)`, "10% off sitewide"); err == nil {
		t.Fatalf("unique index should reject a second null-description row")
	}
}

func TestUpsertNulByteDescriptionIsNotAbsent(t *testing.T) {
	db := openTestDB(t)
	repo := NewCouponRepository(db)
	ctx := context.Background()

	absent := sampleCoupon()
	absent.Description = nil
	a, err := repo.Upsert(ctx, absent)
	if err != nil {
		t.Fatalf("Upsert absent: %v", err)
	}

	nul := sampleCoupon()
	nul.Description = domain.Str("\x00")
	b, err := repo.Upsert(ctx, nul)
	if err != nil || b.Outcome != domain.Inserted || b.ID == a.ID {
		t.Fatalf("NUL description matched the absent one: %+v, %v", b, err)
	}
}

func TestUpsertLookupUsesNaturalKeyIndex(t *testing.T) {
	db := openTestDB(t)
	key := sampleCoupon().Key()

	var plan []struct {
		ID     int    `db:"id"`
		Parent int    `db:"parent"`
		NotUse int    `db:"notused"`
		Detail string `db:"detail"`
	}
	if err := db.Select(&plan, `EXPLAIN QUERY PLAN SELECT id FROM coupons WHERE `+naturalKeyMatch,
		key.Title.Arg(), key.Description.Arg()); err != nil {
		t.Fatalf("explain: %v", err)
	}
	var details []string
	for _, row := range plan {
		details = append(details, row.Detail)
	}
	if !strings.Contains(strings.Join(details, "; "), "ux_coupons_natural_key") {
		t.Fatalf("lookup does not use the natural key index: %v", details)
	}
}

func TestUpsertUpdatesOnlyChangedFields(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2026, 3, 4, 8, 0, 0, 0, time.Local)
	repo := NewCouponRepository(db)
	repo.now = fixedClock(&now)
	ctx := context.Background()

	first, err := repo.Upsert(ctx, sampleCoupon())
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	now = now.Add(2 * time.Hour)
	changed := sampleCoupon()
	changed.Code = domain.Str("SAVE15")
	res, err := repo.Upsert(ctx, changed)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if res.Outcome != domain.Updated || len(res.Fields) != 1 || res.Fields[0] != "code" {
		t.Fatalf("update result = %+v", res)
	}

	list, err := repo.List(ctx, "")
	if err != nil || len(list) != 1 {
		t.Fatalf("List = %v, %v", list, err)
	}
	got := list[0]
	if domain.Deref(got.Code) != "SAVE15" || domain.Deref(got.Offer) != "10% off" || got.ID != first.ID {
		t.Fatalf("stored coupon = %+v", got)
	}
	if got.LastSeen.Format(TimeLayout) != "2026-03-04 10:00:00" {
		t.Fatalf("last_seen = %v", got.LastSeen)
	}
}

func TestUpsertConfirmsRowFromEarlierDay(t *testing.T) {
	db := openTestDB(t)
	now := time.Date(2026, 3, 3, 23, 0, 0, 0, time.Local)
	repo := NewCouponRepository(db)
	repo.now = fixedClock(&now)
	ctx := context.Background()

	first, _ := repo.Upsert(ctx, sampleCoupon())

	now = time.Date(2026, 3, 4, 7, 30, 0, 0, time.Local)
	res, err := repo.Upsert(ctx, sampleCoupon())
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if res.Outcome != domain.Unchanged || !res.Confirmed {
		t.Fatalf("result = %+v", res)
	}
	if got := lastSeenOf(t, db, first.ID); got != "2026-03-04 07:30:00" {
		t.Fatalf("last_seen = %s", got)
	}

	deleted, err := repo.PruneStaleForSource(ctx, "Shop")
	if err != nil || deleted != 0 {
		t.Fatalf("confirmed row pruned: deleted=%d err=%v", deleted, err)
	}
}

func TestPruneStaleForSource(t *testing.T) {
	db := openTestDB(t)
	repo := NewCouponRepository(db)
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.Local)
	repo.now = fixedClock(&now)
	ctx := context.Background()

	rows := []struct {
		title, source, lastSeen string
	}{
		{"a", "Shop", "2026-03-04 01:00:00"},
		{"b", "Shop", "2026-03-04 11:59:59"},
		{"c", "Shop", "2026-03-03 23:59:59"},
		{"d", "Other", "2026-03-01 00:00:00"},
	}
	for _, r := range rows {
		if _, err := db.Exec(`INSERT INTO coupons (title, source_name, last_seen) VALUES (?, ?, ?)`,
			r.title, r.source, r.lastSeen); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	deleted, err := repo.PruneStaleForSource(ctx, "Shop")
	if err != nil || deleted != 1 {
		t.Fatalf("PruneStaleForSource = %d, %v", deleted, err)
	}

	var titles []string
	if err := db.Select(&titles, `SELECT title FROM coupons ORDER BY title`); err != nil {
		t.Fatalf("select: %v", err)
	}
	want := []string{"a", "b", "d"}
	if len(titles) != len(want) {
		t.Fatalf("remaining = %v", titles)
	}
	for i := range want {
		if titles[i] != want[i] {
			t.Fatalf("remaining = %v, want %v", titles, want)
		}
	}
}

func TestPruneStaleSinceKeepsRowsFromPageStartDay(t *testing.T) {
	db := openTestDB(t)
	repo := NewCouponRepository(db)
	now := time.Date(2026, 3, 4, 23, 59, 0, 0, time.Local)
	repo.now = fixedClock(&now)
	ctx := context.Background()

	pageStart := now
	before, err := repo.Upsert(ctx, sampleCoupon())
	if err != nil {
		t.Fatalf("upsert before midnight: %v", err)
	}
	now = time.Date(2026, 3, 5, 0, 1, 0, 0, time.Local)
	late := sampleCoupon()
	late.Title = domain.Str("stamped after midnight")
	if _, err := repo.Upsert(ctx, late); err != nil {
		t.Fatalf("upsert after midnight: %v", err)
	}
	db.MustExec(`INSERT INTO coupons (title, source_name, last_seen) VALUES ('old', 'Shop', '2026-03-03 10:00:00')`)

	deleted, err := repo.PruneStaleSince(ctx, "Shop", pageStart)
	if err != nil || deleted != 1 {
		t.Fatalf("PruneStaleSince = %d, %v", deleted, err)
	}
	if got := lastSeenOf(t, db, before.ID); got != "2026-03-04 23:59:00" {
		t.Fatalf("row stamped before midnight was removed or changed: %q", got)
	}
	if n := countRows(t, db); n != 2 {
		t.Fatalf("rows = %d, want 2", n)
	}
}

func TestPruneTreatsUnreadableLastSeenAsStale(t *testing.T) {
	db := openTestDB(t)
	repo := NewCouponRepository(db)
	db.MustExec(`INSERT INTO coupons (title, source_name, last_seen) VALUES ('x', 'Shop', NULL)`)
	db.MustExec(`INSERT INTO coupons (title, source_name, last_seen) VALUES ('y', 'Shop', 'yesterday-ish')`)

	deleted, err := repo.PruneStaleForSource(context.Background(), "Shop")
	if err != nil || deleted != 2 {
		t.Fatalf("deleted=%d err=%v", deleted, err)
	}
}

func TestUpsertRollsBackOnUpdateFailure(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer mockDB.Close()

	repo := NewCouponRepository(sqlx.NewDb(mockDB, "sqlite3"))
	now := time.Date(2026, 3, 4, 9, 0, 0, 0, time.Local)
	repo.now = fixedClock(&now)

	columns := []string{"id", "title", "description", "offer", "order_amount", "user_limitations",
		"brand_limitations", "button_label", "code", "url", "source_name", "last_seen"}
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM coupons WHERE ifnull\\(title").
		WithArgs("10% off sitewide", "Valid on full priced items").
		WillReturnRows(sqlmock.NewRows(columns).AddRow(7, "10% off sitewide", "Valid on full priced items",
			"10% off", nil, nil, nil, "SEE CODE", "OLD", "https://shop.test", "Shop", "2026-03-04 08:00:00"))
	mock.ExpectExec("UPDATE coupons SET code = \\?, last_seen = \\? WHERE id = \\?").
		WithArgs("SAVE10", "2026-03-04 09:00:00", 7).
		WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	if _, err := repo.Upsert(context.Background(), sampleCoupon()); err == nil {
		t.Fatalf("expected update failure to surface")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}

func TestUpsertSurfacesLookupFailure(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	defer mockDB.Close()

	repo := NewCouponRepository(sqlx.NewDb(mockDB, "sqlite3"))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT (.+) FROM coupons").WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	if _, err := repo.Upsert(context.Background(), sampleCoupon()); !errors.Is(err, sql.ErrConnDone) {
		t.Fatalf("expected wrapped ErrConnDone, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unfulfilled expectations: %v", err)
	}
}
