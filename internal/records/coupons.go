package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Adda-Baaj/coupon-harvester/internal/domain"
	"github.com/jmoiron/sqlx"
)

const couponColumns = `id, title, description, offer, order_amount, user_limitations,
	brand_limitations, button_label, code, url, source_name, last_seen`

// naturalKeyMatch uses the expressions of ux_coupons_natural_key, so lookups go through that
// index. X'00' is a blob and never equals a text value.
const naturalKeyMatch = `ifnull(title, X'00') = ifnull(?, X'00') AND ifnull(description, X'00') = ifnull(?, X'00')`

// CouponRepository upserts coupons by their (title, description) natural key.
type CouponRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewCouponRepository creates a repository using the local wall clock.
func NewCouponRepository(db *sqlx.DB) *CouponRepository {
	return &CouponRepository{db: db, now: time.Now}
}

// couponRow is a coupons row as scanned; last_seen stays text so malformed values survive a read.
type couponRow struct {
	domain.Coupon
	LastSeenText sql.NullString `db:"last_seen"`
}

func (r couponRow) toCoupon() domain.Coupon {
	c := r.Coupon
	if t, ok := parseLastSeen(r.LastSeenText); ok {
		c.LastSeen = t
	}
	return c
}

// Upsert writes c through the natural-key policy:
//   - no row with the same key: insert with last_seen = now (Inserted)
//   - differing mutable fields: rewrite only those plus last_seen (Updated)
//   - identical: nothing is rewritten, except that a last_seen from an earlier
//     day is carried to now so the same-day prune keeps the row (Unchanged, Confirmed)
func (r *CouponRepository) Upsert(ctx context.Context, c *domain.Coupon) (domain.UpsertResult, error) {
	if c == nil {
		return domain.UpsertResult{}, fmt.Errorf("upsert coupon: nil coupon")
	}
	now := r.now()
	stamp := now.Format(TimeLayout)

	var result domain.UpsertResult
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		key := c.Key()
		var existing couponRow
		err := tx.GetContext(ctx, &existing, `SELECT `+couponColumns+` FROM coupons WHERE `+naturalKeyMatch+` LIMIT 1`,
			key.Title.Arg(), key.Description.Arg())

		switch {
		case errors.Is(err, sql.ErrNoRows):
			res, err := tx.ExecContext(ctx, `INSERT INTO coupons (title, description, offer, order_amount,
				user_limitations, brand_limitations, button_label, code, url, source_name, last_seen)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				c.Title, c.Description, c.Offer, c.OrderAmount, c.UserLimitations, c.BrandLimitations,
				c.ButtonLabel, c.Code, c.URL, c.SourceName, stamp)
			if err != nil {
				return fmt.Errorf("insert coupon: %w", err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return fmt.Errorf("insert coupon id: %w", err)
			}
			result = domain.UpsertResult{ID: id, Outcome: domain.Inserted}
			return nil
		case err != nil:
			return fmt.Errorf("lookup coupon: %w", err)
		}

		result = domain.UpsertResult{ID: existing.ID, Outcome: domain.Unchanged}
		changed := existing.Diff(c)
		if len(changed) > 0 {
			sets := make([]string, 0, len(changed)+1)
			args := make([]any, 0, len(changed)+2)
			for _, column := range changed {
				v, _ := c.FieldValue(column)
				sets = append(sets, column+" = ?")
				args = append(args, v)
			}
			sets = append(sets, "last_seen = ?")
			args = append(args, stamp, existing.ID)

			if _, err := tx.ExecContext(ctx,
				`UPDATE coupons SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
				return fmt.Errorf("update coupon %d: %w", existing.ID, err)
			}
			result.Outcome = domain.Updated
			result.Fields = changed
			return nil
		}

		if seen, ok := parseLastSeen(existing.LastSeenText); ok && sameDay(seen, now) {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `UPDATE coupons SET last_seen = ? WHERE id = ?`, stamp, existing.ID); err != nil {
			return fmt.Errorf("confirm coupon %d: %w", existing.ID, err)
		}
		result.Confirmed = true
		return nil
	})
	if err != nil {
		return domain.UpsertResult{}, err
	}
	return result, nil
}

// PruneStaleForSource deletes the coupons of source whose last_seen is before today's date.
// Rows with a missing or unreadable last_seen count as stale. It returns the number deleted.
func (r *CouponRepository) PruneStaleForSource(ctx context.Context, source string) (int64, error) {
	return r.PruneStaleSince(ctx, source, r.now())
}

// PruneStaleSince deletes the coupons of source last seen before the calendar day of since.
// A crawl passes the time its page started, so coupons stamped before midnight survive a
// prune that runs after it.
func (r *CouponRepository) PruneStaleSince(ctx context.Context, source string, since time.Time) (int64, error) {
	cutoff := startOfDay(since)

	var deleted int64
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		var rows []struct {
			ID       int64          `db:"id"`
			LastSeen sql.NullString `db:"last_seen"`
		}
		if err := tx.SelectContext(ctx, &rows,
			`SELECT id, last_seen FROM coupons WHERE source_name IS ?`, source); err != nil {
			return fmt.Errorf("select coupons for %q: %w", source, err)
		}

		for _, row := range rows {
			if seen, ok := parseLastSeen(row.LastSeen); ok && !seen.Before(cutoff) {
				continue
			}
			res, err := tx.ExecContext(ctx, `DELETE FROM coupons WHERE id = ?`, row.ID)
			if err != nil {
				return fmt.Errorf("delete coupon %d: %w", row.ID, err)
			}
			n, _ := res.RowsAffected()
			deleted += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// List returns coupons ordered by id, optionally restricted to one source.
func (r *CouponRepository) List(ctx context.Context, source string) ([]domain.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons`
	var args []any
	if source != "" {
		query += ` WHERE source_name = ?`
		args = append(args, source)
	}
	query += ` ORDER BY id`

	var rows []couponRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list coupons: %w", err)
	}
	out := make([]domain.Coupon, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toCoupon())
	}
	return out, nil
}

func (r *CouponRepository) withTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func parseLastSeen(v sql.NullString) (time.Time, bool) {
	if !v.Valid {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(TimeLayout, strings.TrimSpace(v.String), time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func startOfDay(t time.Time) time.Time {
	t = t.In(time.Local)
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	return ay == by && am == bm && ad == bd
}
