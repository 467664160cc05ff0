package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/addonhub/addonhub/internal/db/models"
	"github.com/addonhub/addonhub/internal/db/repositories"
	"github.com/addonhub/addonhub/internal/telemetry"
)

// Bounds of the daily and monthly series.
const (
	MaxDailyDays         = 365
	MaxMonthlyMonths     = 60
	DefaultDailyDays     = 30
	DefaultMonthlyMonths = 12
)

// DownloadLedger is the subset of the download repository the service depends on.
type DownloadLedger interface {
	RecordDownload(ctx context.Context, packageID int64, day time.Time) error
	Daily(ctx context.Context, packageID int64, today time.Time, days int) ([]models.DailyCount, error)
	Monthly(ctx context.Context, packageID int64, today time.Time, months int) ([]models.MonthlyCount, error)
	RangeTotal(ctx context.Context, packageID int64, from, to time.Time) (int64, error)
}

// DownloadService counts downloads and reports per-day and per-month series. Calendar days
// are UTC.
type DownloadService struct {
	ledger DownloadLedger
	now    func() time.Time
}

// NewDownloadService creates a new download service
func NewDownloadService(ledger DownloadLedger) *DownloadService {
	return &DownloadService{ledger: ledger, now: time.Now}
}

// WithClock replaces the clock used to determine today. It returns s.
func (s *DownloadService) WithClock(now func() time.Time) *DownloadService {
	s.now = now
	return s
}

func (s *DownloadService) today() time.Time {
	t := s.now().UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// RecordDownload counts one download of the package today.
func (s *DownloadService) RecordDownload(ctx context.Context, packageID int64) error {
	if err := s.ledger.RecordDownload(ctx, packageID, s.today()); err != nil {
		if errors.Is(err, repositories.ErrPackageNotFound) {
			return fmt.Errorf("%w: package %d", ErrNotFound, packageID)
		}
		return fmt.Errorf("%w: %w", ErrInternal, err)
	}
	telemetry.PackageDownloadsTotal.Inc()
	return nil
}

// DailyDownloads returns the last days calendar days, today first, zero-filled.
func (s *DownloadService) DailyDownloads(ctx context.Context, packageID int64, days int) ([]models.DailyCount, error) {
	if days < 1 || days > MaxDailyDays {
		return nil, fmt.Errorf("%w: days must be between 1 and %d", ErrInvalidInput, MaxDailyDays)
	}
	counts, err := s.ledger.Daily(ctx, packageID, s.today(), days)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInternal, err)
	}
	return counts, nil
}

// MonthlyDownloads returns the last months calendar months, the current month first,
// zero-filled.
func (s *DownloadService) MonthlyDownloads(ctx context.Context, packageID int64, months int) ([]models.MonthlyCount, error) {
	if months < 1 || months > MaxMonthlyMonths {
		return nil, fmt.Errorf("%w: months must be between 1 and %d", ErrInvalidInput, MaxMonthlyMonths)
	}
	counts, err := s.ledger.Monthly(ctx, packageID, s.today(), months)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInternal, err)
	}
	return counts, nil
}

// RangeTotal returns the downloads between from and to, both inclusive.
func (s *DownloadService) RangeTotal(ctx context.Context, packageID int64, from, to time.Time) (int64, error) {
	if to.Before(from) {
		return 0, fmt.Errorf("%w: from must not be after to", ErrInvalidInput)
	}
	total, err := s.ledger.RangeTotal(ctx, packageID, from, to)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInternal, err)
	}
	return total, nil
}
