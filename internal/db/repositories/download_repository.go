package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/addonhub/addonhub/internal/db/models"
)

const dateLayout = "2006-01-02"

// DownloadRepository maintains per-day download counters and the aggregate counter on
// packages.
type DownloadRepository struct {
	db *sqlx.DB
}

// NewDownloadRepository creates a new download repository
func NewDownloadRepository(db *sqlx.DB) *DownloadRepository {
	return &DownloadRepository{db: db}
}

// RecordDownload counts one download of packageID on day. The aggregate counter and the
// daily row change in one transaction, so packages.downloads always equals the sum of the
// package's history.
func (r *DownloadRepository) RecordDownload(ctx context.Context, packageID int64, day time.Time) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`UPDATE packages SET downloads = downloads + 1 WHERE id = $1`, packageID)
	if err != nil {
		return fmt.Errorf("failed to increment package downloads: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to increment package downloads: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrPackageNotFound, packageID)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO download_history (package_id, download_date, count)
		VALUES ($1, $2::date, 1)
		ON CONFLICT (package_id, download_date)
		DO UPDATE SET count = download_history.count + 1, updated_at = NOW()
	`, packageID, day.Format(dateLayout))
	if err != nil {
		return fmt.Errorf("failed to record daily download: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit download: %w", err)
	}
	return nil
}

// Daily returns one entry per calendar day for the days ending at today, most recent first.
// Days without downloads are reported as zero.
func (r *DownloadRepository) Daily(ctx context.Context, packageID int64, today time.Time, days int) ([]models.DailyCount, error) {
	query := `
		SELECT to_char(d.day, 'YYYY-MM-DD') AS day, COALESCE(h.count, 0) AS count
		FROM generate_series($2::date - ($3::int - 1), $2::date, interval '1 day') AS d(day)
		LEFT JOIN download_history h
		       ON h.package_id = $1 AND h.download_date = d.day::date
		ORDER BY d.day DESC
	`

	counts := make([]models.DailyCount, 0, days)
	if err := r.db.SelectContext(ctx, &counts, query, packageID, today.Format(dateLayout), days); err != nil {
		return nil, fmt.Errorf("failed to query daily downloads: %w", err)
	}
	return counts, nil
}

// Monthly returns one entry per calendar month for the months ending at today's month, most
// recent first. Each entry sums the daily counters of that month.
func (r *DownloadRepository) Monthly(ctx context.Context, packageID int64, today time.Time, months int) ([]models.MonthlyCount, error) {
	query := `
		SELECT to_char(m.month, 'YYYY-MM') AS month, COALESCE(SUM(h.count), 0) AS count
		FROM generate_series(
		         date_trunc('month', $2::timestamp) - ($3::int - 1) * interval '1 month',
		         date_trunc('month', $2::timestamp),
		         interval '1 month') AS m(month)
		LEFT JOIN download_history h
		       ON h.package_id = $1 AND date_trunc('month', h.download_date::timestamp) = m.month
		GROUP BY m.month
		ORDER BY m.month DESC
	`

	counts := make([]models.MonthlyCount, 0, months)
	if err := r.db.SelectContext(ctx, &counts, query, packageID, today.Format(dateLayout), months); err != nil {
		return nil, fmt.Errorf("failed to query monthly downloads: %w", err)
	}
	return counts, nil
}

// RangeTotal sums the daily counters between from and to, both inclusive.
func (r *DownloadRepository) RangeTotal(ctx context.Context, packageID int64, from, to time.Time) (int64, error) {
	var total int64
	err := r.db.GetContext(ctx, &total, `
		SELECT COALESCE(SUM(count), 0)
		FROM download_history
		WHERE package_id = $1 AND download_date BETWEEN $2::date AND $3::date
	`, packageID, from.Format(dateLayout), to.Format(dateLayout))
	if err != nil {
		return 0, fmt.Errorf("failed to query download total: %w", err)
	}
	return total, nil
}
