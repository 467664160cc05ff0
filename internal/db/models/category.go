package models

import "time"

// Category groups packages. Categories are seeded at startup and never owned by a package.
type Category struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Slug      string    `json:"slug" db:"slug"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Summary returns the category as embedded in a PackageEntry.
func (c *Category) Summary() *CategorySummary {
	if c == nil {
		return nil
	}
	return &CategorySummary{ID: c.ID, Name: c.Name, Slug: c.Slug}
}
