package records

import (
	"context"
	"fmt"

	"github.com/Adda-Baaj/coupon-harvester/internal/domain"
	"github.com/jmoiron/sqlx"
)

// DetailRepository appends company details. With dedup enabled an identical
// (source_name, icon_url, about_text) row is not inserted twice.
type DetailRepository struct {
	db    *sqlx.DB
	dedup bool
}

func NewDetailRepository(db *sqlx.DB, dedup bool) *DetailRepository {
	return &DetailRepository{db: db, dedup: dedup}
}

// Insert stores d and reports whether a row was written.
func (r *DetailRepository) Insert(ctx context.Context, d domain.CompanyDetail) (bool, error) {
	if r.dedup {
		var n int
		if err := r.db.GetContext(ctx, &n,
			`SELECT COUNT(*) FROM company_details WHERE source_name = ? AND icon_url = ? AND about_text = ?`,
			d.SourceName, d.IconURL, d.AboutText); err != nil {
			return false, fmt.Errorf("check company detail: %w", err)
		}
		if n > 0 {
			return false, nil
		}
	}

	if _, err := r.db.NamedExecContext(ctx,
		`INSERT INTO company_details (source_name, icon_url, about_text) VALUES (:source_name, :icon_url, :about_text)`,
		d); err != nil {
		return false, fmt.Errorf("insert company detail: %w", err)
	}
	return true, nil
}

func (r *DetailRepository) List(ctx context.Context) ([]domain.CompanyDetail, error) {
	var out []domain.CompanyDetail
	if err := r.db.SelectContext(ctx, &out,
		`SELECT id, source_name, icon_url, about_text FROM company_details ORDER BY id`); err != nil {
		return nil, fmt.Errorf("list company details: %w", err)
	}
	return out, nil
}
