package models

import "time"

// DownloadHistory is the per-package, per-day download counter.
type DownloadHistory struct {
	ID           int64     `json:"id" db:"id"`
	PackageID    int64     `json:"package_id" db:"package_id"`
	DownloadDate time.Time `json:"download_date" db:"download_date"`
	Count        int64     `json:"count" db:"count"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// DailyCount is one day of a zero-filled daily series. Date is YYYY-MM-DD.
type DailyCount struct {
	Date  string `json:"date" db:"day"`
	Count int64  `json:"count" db:"count"`
}

// MonthlyCount is one month of a zero-filled monthly series. Month is YYYY-MM.
type MonthlyCount struct {
	Month string `json:"month" db:"month"`
	Count int64  `json:"count" db:"count"`
}
