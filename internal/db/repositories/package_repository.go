// Package repositories implements the data access layer for the package catalog.
// Each repository type holds every query for one table; services never issue SQL directly.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/addonhub/addonhub/internal/db/models"
)

var (
	// ErrDuplicateName is returned when a write would violate packages_name_key.
	ErrDuplicateName = errors.New("package name already exists")
	// ErrPackageNotFound is returned by writes that matched no package row.
	ErrPackageNotFound = errors.New("package not found")
)

const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

const packageColumns = `
	p.id, p.name, p.author_id, p.version, p.storage_path, p.file_hash, p.category_id,
	p.downloads, p.icon_url, p.description, p.long_description, p.kofi_url, p.patreon_url,
	p.discord_url, p.github_url, p.youtube_url, p.created_at, p.updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func packageFields(p *models.Package) []any {
	return []any{
		&p.ID, &p.Name, &p.AuthorID, &p.Version, &p.StoragePath, &p.FileHash, &p.CategoryID,
		&p.Downloads, &p.IconURL, &p.Description, &p.LongDescription, &p.KofiURL, &p.PatreonURL,
		&p.DiscordURL, &p.GitHubURL, &p.YouTubeURL, &p.CreatedAt, &p.UpdatedAt,
	}
}

func scanPackage(row rowScanner) (*models.Package, error) {
	p := &models.Package{}
	if err := row.Scan(packageFields(p)...); err != nil {
		return nil, err
	}
	return p, nil
}

// PackageRepository handles database operations for packages
type PackageRepository struct {
	db *sql.DB
}

// NewPackageRepository creates a new package repository
func NewPackageRepository(db *sql.DB) *PackageRepository {
	return &PackageRepository{db: db}
}

// Create inserts a placeholder row: metadata only, with empty storage path and hash and no
// icon. ID and timestamps are filled in on p.
func (r *PackageRepository) Create(ctx context.Context, p *models.Package) error {
	query := `
		INSERT INTO packages (name, author_id, version, category_id, description, long_description,
		                      kofi_url, patreon_url, discord_url, github_url, youtube_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		p.Name,
		p.AuthorID,
		p.Version,
		p.CategoryID,
		p.Description,
		p.LongDescription,
		p.KofiURL,
		p.PatreonURL,
		p.DiscordURL,
		p.GitHubURL,
		p.YouTubeURL,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateName, p.Name)
		}
		return fmt.Errorf("failed to create package: %w", err)
	}

	p.StoragePath = ""
	p.FileHash = ""
	p.IconURL = nil
	return nil
}

// GetByID retrieves a package by id
func (r *PackageRepository) GetByID(ctx context.Context, id int64) (*models.Package, error) {
	query := `SELECT` + packageColumns + ` FROM packages p WHERE p.id = $1`

	p, err := scanPackage(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get package: %w", err)
	}
	return p, nil
}

// GetByName retrieves a package by its unique name
func (r *PackageRepository) GetByName(ctx context.Context, name string) (*models.Package, error) {
	query := `SELECT` + packageColumns + ` FROM packages p WHERE p.name = $1`

	p, err := scanPackage(r.db.QueryRowContext(ctx, query, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get package by name: %w", err)
	}
	return p, nil
}

// GetEntry retrieves a package joined with its author and category summaries
func (r *PackageRepository) GetEntry(ctx context.Context, id int64) (*models.PackageEntry, error) {
	query := `SELECT` + packageColumns + `,
			u.username, c.id, c.name, c.slug
		FROM packages p
		JOIN users u ON u.id = p.author_id
		LEFT JOIN categories c ON c.id = p.category_id
		WHERE p.id = $1
	`

	entry := &models.PackageEntry{}
	var (
		catID   sql.NullInt64
		catName sql.NullString
		catSlug sql.NullString
	)
	dest := append(packageFields(&entry.Package), &entry.Author.Username, &catID, &catName, &catSlug)

	if err := r.db.QueryRowContext(ctx, query, id).Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get package entry: %w", err)
	}

	entry.Author.ID = entry.AuthorID
	if catID.Valid {
		entry.Category = &models.CategorySummary{ID: catID.Int64, Name: catName.String, Slug: catSlug.String}
	}
	return entry, nil
}

// ExistsByName reports whether a package with the given name exists
func (r *PackageRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM packages WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check package name: %w", err)
	}
	return exists, nil
}

// UpdateArtifact records the stored archive path and its SHA-256 on the package
func (r *PackageRepository) UpdateArtifact(ctx context.Context, id int64, storagePath, fileHash string) error {
	query := `
		UPDATE packages
		SET storage_path = $2, file_hash = $3, updated_at = NOW()
		WHERE id = $1
	`
	return r.execOne(ctx, "update package artifact", query, id, storagePath, fileHash)
}

// SetIconURL sets or clears (nil) the icon URL of a package
func (r *PackageRepository) SetIconURL(ctx context.Context, id int64, iconURL *string) error {
	query := `UPDATE packages SET icon_url = $2, updated_at = NOW() WHERE id = $1`
	return r.execOne(ctx, "set package icon", query, id, iconURL)
}

// Update writes every mutable column of p back to its row and refreshes p.UpdatedAt
func (r *PackageRepository) Update(ctx context.Context, p *models.Package) error {
	query := `
		UPDATE packages
		SET name = $2, version = $3, storage_path = $4, file_hash = $5, category_id = $6,
		    icon_url = $7, description = $8, long_description = $9, kofi_url = $10,
		    patreon_url = $11, discord_url = $12, github_url = $13, youtube_url = $14,
		    updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		p.ID,
		p.Name,
		p.Version,
		p.StoragePath,
		p.FileHash,
		p.CategoryID,
		p.IconURL,
		p.Description,
		p.LongDescription,
		p.KofiURL,
		p.PatreonURL,
		p.DiscordURL,
		p.GitHubURL,
		p.YouTubeURL,
	).Scan(&p.UpdatedAt)

	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%w: %d", ErrPackageNotFound, p.ID)
	case isUniqueViolation(err):
		return fmt.Errorf("%w: %s", ErrDuplicateName, p.Name)
	default:
		return fmt.Errorf("failed to update package: %w", err)
	}
}

// Delete removes a package row. Download history goes with it (ON DELETE CASCADE).
func (r *PackageRepository) Delete(ctx context.Context, id int64) error {
	return r.execOne(ctx, "delete package", `DELETE FROM packages WHERE id = $1`, id)
}

// ListPlaceholdersOlderThan returns up to limit placeholder rows created before cutoff,
// oldest first.
func (r *PackageRepository) ListPlaceholdersOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*models.Package, error) {
	query := `SELECT` + packageColumns + `
		FROM packages p
		WHERE p.storage_path = '' AND p.created_at < $1
		ORDER BY p.created_at
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list placeholder packages: %w", err)
	}
	defer rows.Close()

	packages := make([]*models.Package, 0)
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan package: %w", err)
		}
		packages = append(packages, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate packages: %w", err)
	}
	return packages, nil
}

func (r *PackageRepository) execOne(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %v", ErrPackageNotFound, args[0])
	}
	return nil
}
