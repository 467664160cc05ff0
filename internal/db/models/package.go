// Package models defines the catalog records stored in Postgres and the joined views
// returned to callers.
package models

import "time"

// Package is a catalog entry for one uploaded add-on. StoragePath and FileHash are empty
// while the row is a placeholder, between insert and the first archive write.
type Package struct {
	ID              int64     `json:"id" db:"id"`
	Name            string    `json:"name" db:"name"`
	AuthorID        int64     `json:"author_id" db:"author_id"`
	Version         string    `json:"version" db:"version"`
	StoragePath     string    `json:"-" db:"storage_path"`
	FileHash        string    `json:"file_hash" db:"file_hash"`
	CategoryID      *int64    `json:"category_id,omitempty" db:"category_id"`
	Downloads       int64     `json:"downloads" db:"downloads"`
	IconURL         *string   `json:"icon_url,omitempty" db:"icon_url"`
	Description     *string   `json:"description,omitempty" db:"description"`
	LongDescription *string   `json:"long_description,omitempty" db:"long_description"`
	KofiURL         *string   `json:"kofi_url,omitempty" db:"kofi_url"`
	PatreonURL      *string   `json:"patreon_url,omitempty" db:"patreon_url"`
	DiscordURL      *string   `json:"discord_url,omitempty" db:"discord_url"`
	GitHubURL       *string   `json:"github_url,omitempty" db:"github_url"`
	YouTubeURL      *string   `json:"youtube_url,omitempty" db:"youtube_url"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time `json:"updated_at" db:"updated_at"`
}

// IsPlaceholder reports whether no archive has been recorded for the package yet.
func (p *Package) IsPlaceholder() bool {
	return p.StoragePath == ""
}

// AuthorSummary is the part of a user exposed alongside a package.
type AuthorSummary struct {
	ID       int64  `json:"id" db:"author_id"`
	Username string `json:"username" db:"author_username"`
}

// CategorySummary is the part of a category exposed alongside a package.
type CategorySummary struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// PackageEntry is a package joined with its author and category.
type PackageEntry struct {
	Package
	Author   AuthorSummary    `json:"author"`
	Category *CategorySummary `json:"category,omitempty"`
}
