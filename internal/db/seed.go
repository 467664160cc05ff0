// seed.go runs the startup steps that follow schema migrations: category seeding and the
// one-time collapse of legacy package tags into a single category.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// LegacyTagsMigrationID marks the tag collapse as applied in data_migrations.
const LegacyTagsMigrationID = "2024_collapse_legacy_tags"

// CategorySeed is one entry of the fixed category list.
type CategorySeed struct {
	Name string
	Slug string
}

// DefaultCategories is the category list inserted at startup.
var DefaultCategories = []CategorySeed{
	{Name: "Addons", Slug: "addons"},
	{Name: "Maps", Slug: "maps"},
	{Name: "Texture Packs", Slug: "texture-packs"},
	{Name: "Skins", Slug: "skins"},
	{Name: "Scripts", Slug: "scripts"},
	{Name: "Shaders", Slug: "shaders"},
	{Name: "Minigames", Slug: "minigames"},
	{Name: "Utilities", Slug: "utilities"},
}

// LegacyTagMapping maps lower-cased legacy tags onto a category slug.
type LegacyTagMapping struct {
	Slug string
	Tags []string
}

// DefaultLegacyTagMappings is applied in order; a package takes the first category any of
// its tags maps to.
var DefaultLegacyTagMappings = []LegacyTagMapping{
	{Slug: "addons", Tags: []string{"addon", "addons", "behavior", "behaviour", "behavior-pack"}},
	{Slug: "maps", Tags: []string{"map", "maps", "world", "worlds"}},
	{Slug: "texture-packs", Tags: []string{"texture", "textures", "texture-pack", "resource-pack"}},
	{Slug: "skins", Tags: []string{"skin", "skins", "skin-pack"}},
	{Slug: "scripts", Tags: []string{"script", "scripts", "scripting"}},
	{Slug: "shaders", Tags: []string{"shader", "shaders"}},
	{Slug: "minigames", Tags: []string{"minigame", "minigames", "mini-game", "pvp"}},
	{Slug: "utilities", Tags: []string{"utility", "utilities", "tool", "tools"}},
}

// SeedCategories inserts every category whose slug (or name) is not present yet and returns
// how many rows were added.
func SeedCategories(ctx context.Context, db *sqlx.DB, categories []CategorySeed) (int64, error) {
	var inserted int64
	for _, c := range categories {
		res, err := db.ExecContext(ctx,
			`INSERT INTO categories (name, slug) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			c.Name, c.Slug)
		if err != nil {
			return inserted, fmt.Errorf("failed to seed category %s: %w", c.Slug, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("failed to seed category %s: %w", c.Slug, err)
		}
		inserted += n
	}
	return inserted, nil
}

// CollapseLegacyTags assigns a category to every uncategorised package from its legacy tags.
// It runs once: the data_migrations row is claimed in the same transaction as the updates.
// applied is false when an earlier run already recorded the migration.
func CollapseLegacyTags(ctx context.Context, db *sqlx.DB, mappings []LegacyTagMapping) (applied bool, updated int64, err error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return false, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil || !applied {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO data_migrations (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`,
		LegacyTagsMigrationID)
	if err != nil {
		return false, 0, fmt.Errorf("failed to claim data migration: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return false, 0, fmt.Errorf("failed to claim data migration: %w", err)
	} else if n == 0 {
		return false, 0, nil
	}

	for _, m := range mappings {
		res, err := tx.ExecContext(ctx, `
			UPDATE packages p
			SET category_id = c.id
			FROM categories c
			WHERE c.slug = $1
			  AND p.category_id IS NULL
			  AND p.tags IS NOT NULL
			  AND EXISTS (SELECT 1 FROM unnest(p.tags) AS t(tag) WHERE lower(t.tag) = ANY($2))
		`, m.Slug, pq.Array(m.Tags))
		if err != nil {
			return false, 0, fmt.Errorf("failed to remap tags to %s: %w", m.Slug, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return false, 0, fmt.Errorf("failed to remap tags to %s: %w", m.Slug, err)
		}
		updated += n
	}

	if err := tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("failed to commit tag remap: %w", err)
	}
	return true, updated, nil
}

// Seed runs category seeding and then the legacy tag collapse, in that order.
func Seed(ctx context.Context, db *sqlx.DB) error {
	inserted, err := SeedCategories(ctx, db, DefaultCategories)
	if err != nil {
		return err
	}
	slog.Info("categories seeded", "inserted", inserted)

	applied, updated, err := CollapseLegacyTags(ctx, db, DefaultLegacyTagMappings)
	if err != nil {
		return err
	}
	if applied {
		slog.Info("legacy tags collapsed into categories", "migration", LegacyTagsMigrationID, "packages_updated", updated)
	}
	return nil
}

// Bootstrap brings a database up to date: schema migrations, then Seed.
func Bootstrap(ctx context.Context, db *sql.DB) error {
	if err := RunMigrations(db, "up"); err != nil {
		return err
	}
	version, dirty, err := GetMigrationVersion(db)
	if err != nil {
		return err
	}
	slog.Info("schema migrations applied", "version", version, "dirty", dirty)

	return Seed(ctx, Wrap(db))
}
