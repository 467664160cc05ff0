// Package content lays out package artifacts on top of a storage backend.
//
// Layout, relative to the backend root:
//
//	addons/{id}-{sanitizedName}/addon-{epochMillis}.mcaddon
//	icons/{id}.{ext}
//
// Several archives may coexist in a package directory; the one with the greatest file name is
// the latest. A package has at most one icon.
package content

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/addonhub/addonhub/internal/storage"
	"github.com/addonhub/addonhub/internal/telemetry"
	"github.com/addonhub/addonhub/internal/validation"
	"github.com/addonhub/addonhub/pkg/checksum"
)

const (
	addonsDir    = "addons"
	iconsDir     = "icons"
	addonPrefix  = "addon-"
	addonExt     = ".mcaddon"
	maxNameRunes = 64
)

var (
	// ErrInvalidFormat is returned when the bytes do not carry the expected magic number.
	ErrInvalidFormat = errors.New("invalid file format")

	// ErrTooLarge is returned when a buffer exceeds its size limit.
	ErrTooLarge = errors.New("file too large")
)

var nameReplacer = strings.NewReplacer(
	"/", "_", `\`, "_", ":", "_", "*", "_", "?", "_",
	`"`, "_", "<", "_", ">", "_", "|", "_",
)

// Limits bounds the size of accepted uploads.
type Limits struct {
	MaxArchiveSize int64
	MaxIconSize    int64
}

// DefaultLimits returns the built-in upload limits.
func DefaultLimits() Limits {
	return Limits{
		MaxArchiveSize: validation.MaxArchiveSize,
		MaxIconSize:    validation.MaxIconSize,
	}
}

// SavedArchive describes an archive written by SaveAddon.
type SavedArchive struct {
	Path string
	Hash string
	Size int64
}

// SavedIcon describes an icon written by SaveIcon.
type SavedIcon struct {
	Path     string
	URL      string
	MimeType string
}

// ArchiveFile is an open handle on a stored archive. Callers must close it.
type ArchiveFile struct {
	io.ReadCloser
	Path     string
	FileName string
	Size     int64
	Checksum string
}

// Store persists package archives and icons.
type Store struct {
	backend storage.Storage
	limits  Limits
	now     func() time.Time

	mu        sync.Mutex
	lastStamp int64
}

// NewStore creates a Store writing through backend. Zero limits fall back to DefaultLimits.
func NewStore(backend storage.Storage, limits Limits) *Store {
	def := DefaultLimits()
	if limits.MaxArchiveSize <= 0 {
		limits.MaxArchiveSize = def.MaxArchiveSize
	}
	if limits.MaxIconSize <= 0 {
		limits.MaxIconSize = def.MaxIconSize
	}
	return &Store{
		backend: backend,
		limits:  limits,
		now:     time.Now,
	}
}

// Limits returns the limits the store enforces.
func (s *Store) Limits() Limits {
	return s.limits
}

// SanitizeName makes a package name safe to use as a path segment.
func SanitizeName(name string) string {
	name = nameReplacer.Replace(name)
	name = strings.ReplaceAll(name, "..", "_")
	name = strings.TrimLeft(name, ".")
	if r := []rune(name); len(r) > maxNameRunes {
		name = string(r[:maxNameRunes])
	}
	return name
}

// PackageDir returns the directory holding a package's archives.
func PackageDir(id int64, name string) string {
	return path.Join(addonsDir, fmt.Sprintf("%d-%s", id, SanitizeName(name)))
}

// IconPath returns where an icon with the given extension is stored.
func IconPath(id int64, ext string) string {
	return path.Join(iconsDir, fmt.Sprintf("%d.%s", id, ext))
}

// CheckArchive applies the size limit and magic-byte check without writing anything.
func (s *Store) CheckArchive(data []byte) error {
	if int64(len(data)) > s.limits.MaxArchiveSize {
		return fmt.Errorf("%w: archive is %d bytes, limit is %d", ErrTooLarge, len(data), s.limits.MaxArchiveSize)
	}
	if !validation.ValidateArchive(data) {
		return fmt.Errorf("%w: archive is not a zip file", ErrInvalidFormat)
	}
	return nil
}

// CheckIcon applies the size limit and format detection without writing anything.
func (s *Store) CheckIcon(data []byte) (validation.IconType, error) {
	if int64(len(data)) > s.limits.MaxIconSize {
		return validation.IconType{}, fmt.Errorf("%w: icon is %d bytes, limit is %d", ErrTooLarge, len(data), s.limits.MaxIconSize)
	}
	t := validation.ValidateIcon(data)
	if !t.Valid {
		return t, fmt.Errorf("%w: icon must be png, jpeg, webp, gif or svg", ErrInvalidFormat)
	}
	return t, nil
}

// nextStamp returns the current time in epoch milliseconds, forced strictly greater than any
// value it returned before.
func (s *Store) nextStamp() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms := s.now().UnixMilli()
	if ms <= s.lastStamp {
		ms = s.lastStamp + 1
	}
	s.lastStamp = ms
	return ms
}

// SaveAddon validates and writes a new archive for the package.
func (s *Store) SaveAddon(ctx context.Context, id int64, name string, data []byte) (*SavedArchive, error) {
	if err := s.CheckArchive(data); err != nil {
		return nil, err
	}

	hash := checksum.SHA256Bytes(data)
	p := path.Join(PackageDir(id, name), fmt.Sprintf("%s%d%s", addonPrefix, s.nextStamp(), addonExt))

	res, err := s.backend.Upload(ctx, p, bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to store archive: %w", err)
	}
	if res.Checksum != "" && res.Checksum != hash {
		_ = s.backend.Delete(ctx, p)
		return nil, fmt.Errorf("checksum mismatch after write: got %s, want %s", res.Checksum, hash)
	}

	return &SavedArchive{Path: p, Hash: hash, Size: res.Size}, nil
}

// ListAddons returns every archive path in the package directory, oldest first.
func (s *Store) ListAddons(ctx context.Context, id int64, name string) ([]string, error) {
	files, err := s.backend.List(ctx, PackageDir(id, name))
	if err != nil {
		return nil, fmt.Errorf("failed to list archives: %w", err)
	}
	addons := files[:0]
	for _, f := range files {
		if strings.HasSuffix(f, addonExt) {
			addons = append(addons, f)
		}
	}
	return addons, nil
}

// GetLatestAddonFile returns the path of the newest archive, or "" if there is none.
func (s *Store) GetLatestAddonFile(ctx context.Context, id int64, name string) (string, error) {
	addons, err := s.ListAddons(ctx, id, name)
	if err != nil {
		return "", err
	}
	latest := ""
	for _, a := range addons {
		if path.Base(a) > path.Base(latest) {
			latest = a
		}
	}
	return latest, nil
}

// OpenLatestAddon opens the newest archive for streaming. It returns nil, nil when the
// package has no archive.
func (s *Store) OpenLatestAddon(ctx context.Context, id int64, name string) (*ArchiveFile, error) {
	latest, err := s.GetLatestAddonFile(ctx, id, name)
	if err != nil || latest == "" {
		return nil, err
	}

	meta, err := s.backend.GetMetadata(ctx, latest)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	rc, err := s.backend.Download(ctx, latest)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &ArchiveFile{
		ReadCloser: rc,
		Path:       latest,
		FileName:   path.Base(latest),
		Size:       meta.Size,
		Checksum:   meta.Checksum,
	}, nil
}

// DeleteAddon removes every file in the package directory, then the directory itself.
// A missing directory is not an error.
func (s *Store) DeleteAddon(ctx context.Context, id int64, name string) error {
	files, err := s.backend.List(ctx, PackageDir(id, name))
	if err != nil {
		return fmt.Errorf("failed to list archives: %w", err)
	}
	var errs []error
	for _, f := range files {
		if err := s.backend.Delete(ctx, f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DeleteAddonFile removes a single archive written by SaveAddon.
func (s *Store) DeleteAddonFile(ctx context.Context, p string) error {
	return s.backend.Delete(ctx, p)
}

// PruneAddons deletes every archive of the package except keep.
func (s *Store) PruneAddons(ctx context.Context, id int64, name, keep string) error {
	addons, err := s.ListAddons(ctx, id, name)
	if err != nil {
		return err
	}
	var errs []error
	for _, a := range addons {
		if a == keep {
			continue
		}
		if err := s.backend.Delete(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MoveAddons relocates a package's archives after a rename and returns the new path of the
// latest one ("" if there were none).
func (s *Store) MoveAddons(ctx context.Context, id int64, oldName, newName string) (string, error) {
	from, to := PackageDir(id, oldName), PackageDir(id, newName)
	if from == to {
		return s.GetLatestAddonFile(ctx, id, newName)
	}

	addons, err := s.ListAddons(ctx, id, oldName)
	if err != nil {
		return "", err
	}
	latest := ""
	for _, a := range addons {
		dst := path.Join(to, path.Base(a))
		if err := s.backend.Move(ctx, a, dst); err != nil {
			return "", fmt.Errorf("failed to move archive %s: %w", a, err)
		}
		if path.Base(dst) > path.Base(latest) {
			latest = dst
		}
	}
	return latest, nil
}

// SaveIcon validates, sanitizes (for SVG) and writes the package icon, replacing any
// previous icon of a different format.
func (s *Store) SaveIcon(ctx context.Context, id int64, data []byte) (*SavedIcon, error) {
	r, err := s.ReplaceIcon(ctx, id, data)
	if err != nil {
		return nil, err
	}
	r.Commit(ctx)
	return r.Icon, nil
}

// IconReplacement is a newly written icon whose predecessor is still recoverable. Commit
// removes icons of other formats; Rollback restores the state before ReplaceIcon.
type IconReplacement struct {
	Icon *SavedIcon

	store    *Store
	id       int64
	ext      string
	previous []byte // icon of the same format that the upload overwrote
}

// ReplaceIcon writes the icon like SaveIcon but leaves icons of other formats in place until
// Commit is called.
func (s *Store) ReplaceIcon(ctx context.Context, id int64, data []byte) (*IconReplacement, error) {
	t, err := s.CheckIcon(data)
	if err != nil {
		return nil, err
	}

	if t.IsSVG() {
		clean := validation.SanitizeSVG(data)
		if len(clean) != len(data) {
			telemetry.SVGIconsSanitizedTotal.Inc()
			slog.Info("sanitized svg icon", "package_id", id, "removed_bytes", len(data)-len(clean))
		}
		data = clean
	}

	p := IconPath(id, t.Extension)
	previous, err := s.readIfExists(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to read previous icon: %w", err)
	}
	if _, err := s.backend.Upload(ctx, p, bytes.NewReader(data), int64(len(data))); err != nil {
		return nil, fmt.Errorf("failed to store icon: %w", err)
	}

	r := &IconReplacement{store: s, id: id, ext: t.Extension, previous: previous}
	url, err := s.backend.GetURL(ctx, p, 0)
	if err != nil {
		if rbErr := r.Rollback(ctx); rbErr != nil {
			slog.Warn("failed to restore previous icon", "package_id", id, "error", rbErr)
		}
		return nil, fmt.Errorf("failed to resolve icon url: %w", err)
	}
	r.Icon = &SavedIcon{Path: p, URL: url, MimeType: t.MimeType}
	return r, nil
}

// Commit deletes icons of every other format. Failures are logged.
func (r *IconReplacement) Commit(ctx context.Context) {
	for _, ext := range validation.IconExtensions {
		if ext == r.ext {
			continue
		}
		if err := r.store.backend.Delete(ctx, IconPath(r.id, ext)); err != nil {
			slog.Warn("failed to remove previous icon", "package_id", r.id, "ext", ext, "error", err)
		}
	}
}

// Rollback puts back the overwritten icon, or removes the new one if nothing was overwritten.
func (r *IconReplacement) Rollback(ctx context.Context) error {
	p := IconPath(r.id, r.ext)
	if r.previous == nil {
		return r.store.backend.Delete(ctx, p)
	}
	_, err := r.store.backend.Upload(ctx, p, bytes.NewReader(r.previous), int64(len(r.previous)))
	return err
}

// readIfExists returns the content at p, or nil if nothing is stored there.
func (s *Store) readIfExists(ctx context.Context, p string) ([]byte, error) {
	rc, err := s.backend.Download(ctx, p)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, s.limits.MaxIconSize+1))
}

// DeleteIcon removes the package icon in every supported format. It is idempotent.
func (s *Store) DeleteIcon(ctx context.Context, id int64) error {
	var errs []error
	for _, ext := range validation.IconExtensions {
		if err := s.backend.Delete(ctx, IconPath(id, ext)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DeleteAll removes both the archives and the icon of a package.
func (s *Store) DeleteAll(ctx context.Context, id int64, name string) error {
	return errors.Join(s.DeleteAddon(ctx, id, name), s.DeleteIcon(ctx, id))
}
