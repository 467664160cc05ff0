// Package services coordinates the content store and the catalog repositories. The package
// service owns every mutation of a package: it validates input, writes archives and icons,
// records them in Postgres and undoes the catalog insert when an archive cannot be stored.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/addonhub/addonhub/internal/content"
	"github.com/addonhub/addonhub/internal/db/models"
	"github.com/addonhub/addonhub/internal/db/repositories"
	"github.com/addonhub/addonhub/internal/telemetry"
	"github.com/addonhub/addonhub/internal/validation"
)

// PackageCatalog is the subset of the package repository the service depends on.
type PackageCatalog interface {
	Create(ctx context.Context, p *models.Package) error
	GetByID(ctx context.Context, id int64) (*models.Package, error)
	GetByName(ctx context.Context, name string) (*models.Package, error)
	GetEntry(ctx context.Context, id int64) (*models.PackageEntry, error)
	ExistsByName(ctx context.Context, name string) (bool, error)
	UpdateArtifact(ctx context.Context, id int64, storagePath, fileHash string) error
	SetIconURL(ctx context.Context, id int64, iconURL *string) error
	Update(ctx context.Context, p *models.Package) error
	Delete(ctx context.Context, id int64) error
}

// CategoryLookup resolves category slugs.
type CategoryLookup interface {
	GetBySlug(ctx context.Context, slug string) (*models.Category, error)
}

// Actor is the authenticated caller of a mutating operation.
type Actor struct {
	UserID int64
	Role   string
}

// CanModify reports whether the actor may change p: its author, or any moderator or admin.
func (a Actor) CanModify(p *models.Package) bool {
	return a.UserID == p.AuthorID || models.IsStaffRole(a.Role)
}

// PackageMetadata carries the user-editable fields of a package. Omitted fields are left
// unchanged on update; fields set to null are cleared. Category is a category slug.
type PackageMetadata struct {
	Name            models.OptionalString `json:"name"`
	Version         models.OptionalString `json:"version"`
	Category        models.OptionalString `json:"category"`
	Description     models.OptionalString `json:"description"`
	LongDescription models.OptionalString `json:"long_description"`
	KofiURL         models.OptionalString `json:"kofi_url"`
	PatreonURL      models.OptionalString `json:"patreon_url"`
	DiscordURL      models.OptionalString `json:"discord_url"`
	GitHubURL       models.OptionalString `json:"github_url"`
	YouTubeURL      models.OptionalString `json:"youtube_url"`
}

// Archive is an open stream on the latest archive of a package. Callers must close it.
type Archive struct {
	io.ReadCloser
	PackageID int64
	FileName  string
	Size      int64
	Checksum  string
}

// PackageService implements package ingestion, update and deletion.
type PackageService struct {
	packages   PackageCatalog
	categories CategoryLookup
	content    *content.Store
	locks      *keyedMutex
}

// NewPackageService creates a new package service
func NewPackageService(packages PackageCatalog, categories CategoryLookup, store *content.Store) *PackageService {
	return &PackageService{
		packages:   packages,
		categories: categories,
		content:    store,
		locks:      newKeyedMutex(),
	}
}

// CreatePackage validates the metadata and uploads, inserts the catalog row and stores the
// archive under the new id. If the archive cannot be stored the row and any files written
// for the id are removed again. A failure to store the icon is logged and does not fail
// the create.
func (s *PackageService) CreatePackage(ctx context.Context, actor Actor, meta PackageMetadata, archive, icon []byte) (*models.PackageEntry, error) {
	if actor.UserID <= 0 {
		return nil, fmt.Errorf("%w: an authenticated author is required", ErrForbidden)
	}

	pkg := &models.Package{AuthorID: actor.UserID}
	if err := s.applyMetadata(ctx, pkg, meta, true); err != nil {
		return nil, err
	}
	if err := s.checkUploads(archive, icon, true); err != nil {
		return nil, err
	}

	exists, err := s.packages.ExistsByName(ctx, pkg.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInternal, err)
	}
	if exists {
		return nil, fmt.Errorf("%w: package %q already exists", ErrConflict, pkg.Name)
	}

	if err := s.packages.Create(ctx, pkg); err != nil {
		if errors.Is(err, repositories.ErrDuplicateName) {
			return nil, fmt.Errorf("%w: package %q already exists", ErrConflict, pkg.Name)
		}
		return nil, fmt.Errorf("%w: %w", ErrInternal, err)
	}

	saved, err := s.content.SaveAddon(ctx, pkg.ID, pkg.Name, archive)
	if err == nil {
		err = s.packages.UpdateArtifact(ctx, pkg.ID, saved.Path, saved.Hash)
	}
	if err != nil {
		telemetry.AddonUploadsTotal.WithLabelValues("archive", "error").Inc()
		s.compensate(ctx, pkg)
		return nil, fmt.Errorf("%w: failed to store archive: %w", ErrInternal, err)
	}
	telemetry.AddonUploadsTotal.WithLabelValues("archive", "success").Inc()

	if icon != nil {
		s.attachIcon(ctx, pkg.ID, icon)
	}

	slog.Info("package created", "package_id", pkg.ID, "name", pkg.Name, "author_id", pkg.AuthorID)
	return s.GetPackage(ctx, pkg.ID)
}

// compensate removes the catalog row and any files of a package whose archive could not be
// recorded. It runs detached from ctx so that a cancelled request still cleans up.
func (s *PackageService) compensate(ctx context.Context, pkg *models.Package) {
	ctx = context.WithoutCancel(ctx)

	err := errors.Join(
		s.content.DeleteAll(ctx, pkg.ID, pkg.Name),
		ignoreNotFound(s.packages.Delete(ctx, pkg.ID)),
	)
	if err != nil {
		telemetry.IngestCompensationsTotal.WithLabelValues("error").Inc()
		slog.Error("failed to roll back package create", "package_id", pkg.ID, "name", pkg.Name, "error", err)
		return
	}
	telemetry.IngestCompensationsTotal.WithLabelValues("success").Inc()
	slog.Warn("rolled back package create", "package_id", pkg.ID, "name", pkg.Name)
}

func (s *PackageService) attachIcon(ctx context.Context, id int64, icon []byte) {
	saved, err := s.content.SaveIcon(ctx, id, icon)
	if err != nil {
		telemetry.AddonUploadsTotal.WithLabelValues("icon", "error").Inc()
		slog.Warn("failed to store icon, continuing without it", "package_id", id, "error", err)
		return
	}
	if err := s.packages.SetIconURL(ctx, id, &saved.URL); err != nil {
		telemetry.AddonUploadsTotal.WithLabelValues("icon", "error").Inc()
		slog.Warn("failed to record icon url", "package_id", id, "error", err)
		if err := s.content.DeleteIcon(ctx, id); err != nil {
			slog.Warn("failed to remove unrecorded icon", "package_id", id, "error", err)
		}
		return
	}
	telemetry.AddonUploadsTotal.WithLabelValues("icon", "success").Inc()
}

// UpdatePackage applies meta and optional new uploads to an existing package. Only the
// author, a moderator or an admin may update it. Updates of the same package run one at a
// time. If the catalog write fails, stored files are put back the way they were.
func (s *PackageService) UpdatePackage(ctx context.Context, actor Actor, id int64, meta PackageMetadata, archive, icon []byte) (*models.PackageEntry, error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	cur, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if !actor.CanModify(cur) {
		return nil, fmt.Errorf("%w: not allowed to modify package %d", ErrForbidden, id)
	}

	next := *cur
	if err := s.applyMetadata(ctx, &next, meta, false); err != nil {
		return nil, err
	}
	if err := s.checkUploads(archive, icon, false); err != nil {
		return nil, err
	}

	renamed := next.Name != cur.Name
	if renamed {
		exists, err := s.packages.ExistsByName(ctx, next.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInternal, err)
		}
		if exists {
			return nil, fmt.Errorf("%w: package %q already exists", ErrConflict, next.Name)
		}
	}

	var (
		iconUpdate *content.IconReplacement
		newArchive string
		moved      bool
	)
	// undo reverts the filesystem changes made below when the catalog write fails.
	undo := func() {
		ctx := context.WithoutCancel(ctx)
		var errs []error
		if newArchive != "" {
			errs = append(errs, s.content.DeleteAddonFile(ctx, newArchive))
		}
		if moved {
			_, err := s.content.MoveAddons(ctx, id, next.Name, cur.Name)
			errs = append(errs, err)
		}
		if iconUpdate != nil {
			errs = append(errs, iconUpdate.Rollback(ctx))
		}
		if err := errors.Join(errs...); err != nil {
			telemetry.IngestCompensationsTotal.WithLabelValues("error").Inc()
			slog.Error("failed to roll back package update", "package_id", id, "error", err)
			return
		}
		telemetry.IngestCompensationsTotal.WithLabelValues("success").Inc()
		slog.Warn("rolled back package update", "package_id", id)
	}

	if icon != nil {
		r, err := s.content.ReplaceIcon(ctx, id, icon)
		if err != nil {
			telemetry.AddonUploadsTotal.WithLabelValues("icon", "error").Inc()
			return nil, fmt.Errorf("%w: failed to store icon: %w", ErrInternal, err)
		}
		iconUpdate = r
		next.IconURL = &r.Icon.URL
	}

	switch {
	case archive != nil:
		saved, err := s.content.SaveAddon(ctx, id, next.Name, archive)
		if err != nil {
			telemetry.AddonUploadsTotal.WithLabelValues("archive", "error").Inc()
			undo()
			return nil, fmt.Errorf("%w: failed to store archive: %w", ErrInternal, err)
		}
		newArchive = saved.Path
		next.StoragePath, next.FileHash = saved.Path, saved.Hash
	case renamed:
		// Set first so that undo also brings back a partial move.
		moved = true
		latest, err := s.content.MoveAddons(ctx, id, cur.Name, next.Name)
		if err != nil {
			undo()
			return nil, fmt.Errorf("%w: failed to move archives: %w", ErrInternal, err)
		}
		if latest != "" {
			next.StoragePath = latest
		}
	}

	if err := s.packages.Update(ctx, &next); err != nil {
		undo()
		switch {
		case errors.Is(err, repositories.ErrDuplicateName):
			return nil, fmt.Errorf("%w: package %q already exists", ErrConflict, next.Name)
		case errors.Is(err, repositories.ErrPackageNotFound):
			return nil, fmt.Errorf("%w: package %d", ErrNotFound, id)
		default:
			return nil, fmt.Errorf("%w: %w", ErrInternal, err)
		}
	}

	if iconUpdate != nil {
		iconUpdate.Commit(ctx)
		telemetry.AddonUploadsTotal.WithLabelValues("icon", "success").Inc()
	}
	if archive != nil {
		telemetry.AddonUploadsTotal.WithLabelValues("archive", "success").Inc()
		if err := s.content.PruneAddons(ctx, id, next.Name, next.StoragePath); err != nil {
			slog.Warn("failed to prune superseded archives", "package_id", id, "error", err)
		}
		if renamed {
			if err := s.content.DeleteAddon(ctx, id, cur.Name); err != nil {
				slog.Warn("failed to remove archives under previous name", "package_id", id, "name", cur.Name, "error", err)
			}
		}
	}

	slog.Info("package updated", "package_id", id, "name", next.Name, "actor_id", actor.UserID)
	return s.GetPackage(ctx, id)
}

// DeletePackage removes the archives, the icon and the catalog row of a package.
func (s *PackageService) DeletePackage(ctx context.Context, actor Actor, id int64) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	cur, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}
	if !actor.CanModify(cur) {
		return fmt.Errorf("%w: not allowed to delete package %d", ErrForbidden, id)
	}

	if err := s.content.DeleteAddon(ctx, id, cur.Name); err != nil {
		return fmt.Errorf("%w: failed to delete archives: %w", ErrInternal, err)
	}
	if err := s.content.DeleteIcon(ctx, id); err != nil {
		return fmt.Errorf("%w: failed to delete icon: %w", ErrInternal, err)
	}
	if err := s.packages.Delete(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrPackageNotFound) {
			return fmt.Errorf("%w: package %d", ErrNotFound, id)
		}
		return fmt.Errorf("%w: %w", ErrInternal, err)
	}

	slog.Info("package deleted", "package_id", id, "name", cur.Name, "actor_id", actor.UserID)
	return nil
}

// OpenLatestArchive opens the newest stored archive of the named package.
func (s *PackageService) OpenLatestArchive(ctx context.Context, name string) (*Archive, error) {
	pkg, err := s.packages.GetByName(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInternal, err)
	}
	if pkg == nil {
		return nil, fmt.Errorf("%w: package %q", ErrNotFound, name)
	}

	f, err := s.content.OpenLatestAddon(ctx, pkg.ID, pkg.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInternal, err)
	}
	if f == nil {
		return nil, fmt.Errorf("%w: package %q has no archive", ErrNotFound, name)
	}

	return &Archive{
		ReadCloser: f.ReadCloser,
		PackageID:  pkg.ID,
		FileName:   f.FileName,
		Size:       f.Size,
		Checksum:   f.Checksum,
	}, nil
}

// GetPackage returns the package joined with its author and category.
func (s *PackageService) GetPackage(ctx context.Context, id int64) (*models.PackageEntry, error) {
	entry, err := s.packages.GetEntry(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInternal, err)
	}
	if entry == nil {
		return nil, fmt.Errorf("%w: package %d", ErrNotFound, id)
	}
	return entry, nil
}

func (s *PackageService) lookup(ctx context.Context, id int64) (*models.Package, error) {
	pkg, err := s.packages.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInternal, err)
	}
	if pkg == nil {
		return nil, fmt.Errorf("%w: package %d", ErrNotFound, id)
	}
	return pkg, nil
}

// checkUploads runs the size and magic byte checks before anything is written.
func (s *PackageService) checkUploads(archive, icon []byte, archiveRequired bool) error {
	if archive != nil || archiveRequired {
		if err := s.content.CheckArchive(archive); err != nil {
			telemetry.AddonUploadsTotal.WithLabelValues("archive", "rejected").Inc()
			return err
		}
	}
	if icon != nil {
		if _, err := s.content.CheckIcon(icon); err != nil {
			telemetry.AddonUploadsTotal.WithLabelValues("icon", "rejected").Inc()
			return err
		}
	}
	return nil
}

type linkField struct {
	kind   validation.LinkKind
	value  models.OptionalString
	target **string
}

// applyMetadata validates meta and writes it onto p. When creating, a name is required and
// a missing version defaults to 1.0.0.
func (s *PackageService) applyMetadata(ctx context.Context, p *models.Package, meta PackageMetadata, creating bool) error {
	switch {
	case meta.Name.IsNull() || (creating && !meta.Name.Set):
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	case meta.Name.Valid:
		name, err := validation.ValidateName(meta.Name.Value)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		p.Name = name
	}

	switch {
	case meta.Version.IsNull():
		return fmt.Errorf("%w: version cannot be cleared", ErrInvalidInput)
	case meta.Version.Valid || creating:
		v, err := validation.NormalizeVersion(meta.Version.Value)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		p.Version = v
	}

	switch {
	case meta.Category.IsNull():
		p.CategoryID = nil
	case meta.Category.Valid:
		cat, err := s.categories.GetBySlug(ctx, meta.Category.Value)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInternal, err)
		}
		if cat == nil {
			return fmt.Errorf("%w: unknown category %q", ErrInvalidInput, meta.Category.Value)
		}
		p.CategoryID = &cat.ID
	}

	if meta.Description.Valid {
		if err := validation.ValidateDescription(meta.Description.Value); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	}
	p.Description = meta.Description.Apply(p.Description)

	if meta.LongDescription.Valid {
		if err := validation.ValidateLongDescription(meta.LongDescription.Value); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	}
	p.LongDescription = meta.LongDescription.Apply(p.LongDescription)

	links := []linkField{
		{validation.LinkKofi, meta.KofiURL, &p.KofiURL},
		{validation.LinkPatreon, meta.PatreonURL, &p.PatreonURL},
		{validation.LinkDiscord, meta.DiscordURL, &p.DiscordURL},
		{validation.LinkGitHub, meta.GitHubURL, &p.GitHubURL},
		{validation.LinkYouTube, meta.YouTubeURL, &p.YouTubeURL},
	}
	for _, l := range links {
		v := l.value
		if v.Valid && strings.TrimSpace(v.Value) == "" {
			v = models.Null()
		}
		if v.Valid {
			if err := validation.ValidateLink(l.kind, v.Value); err != nil {
				return fmt.Errorf("%w: %w", ErrInvalidInput, err)
			}
		}
		*l.target = v.Apply(*l.target)
	}

	return nil
}

func ignoreNotFound(err error) error {
	if errors.Is(err, repositories.ErrPackageNotFound) {
		return nil
	}
	return err
}
