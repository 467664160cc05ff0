// Package local implements the filesystem storage backend. It assumes a single writer process
// with the storage root on a local or attached disk.
//
// Uploads are staged in a hidden temporary file next to their destination and published with
// rename(2), so readers only ever observe complete files.
package local

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/addonhub/addonhub/internal/config"
	"github.com/addonhub/addonhub/internal/storage"
	"github.com/addonhub/addonhub/pkg/checksum"
)

// stagingPrefix marks in-flight uploads; List never returns them.
const stagingPrefix = ".upload-"

func init() {
	storage.Register("local", func(cfg *config.Config) (storage.Storage, error) {
		return New(&cfg.Storage.Local, cfg.Server.BaseURL)
	})
}

// LocalStorage implements the Storage interface for local filesystem storage
type LocalStorage struct {
	basePath      string
	serveDirectly bool
	baseURL       string
}

// New creates a new local filesystem storage backend
func New(cfg *config.LocalStorageConfig, serverBaseURL string) (*LocalStorage, error) {
	base, err := filepath.Abs(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage directory: %w", err)
	}
	if err := os.MkdirAll(base, 0750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalStorage{
		basePath:      base,
		serveDirectly: cfg.ServeDirectly,
		baseURL:       strings.TrimSuffix(serverBaseURL, "/"),
	}, nil
}

// BasePath returns the absolute storage root.
func (s *LocalStorage) BasePath() string {
	return s.basePath
}

// resolve maps a slash-separated storage path onto the filesystem, refusing anything that
// would land outside basePath.
func (s *LocalStorage) resolve(p string) (string, error) {
	if p == "" || path.IsAbs(p) || strings.Contains(p, "\\") {
		return "", fmt.Errorf("%w: %q", storage.ErrInvalidPath, p)
	}
	clean := path.Clean(p)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: %q", storage.ErrInvalidPath, p)
	}
	return filepath.Join(s.basePath, filepath.FromSlash(clean)), nil
}

// Upload stages the file in its destination directory and renames it into place
func (s *LocalStorage) Upload(ctx context.Context, p string, reader io.Reader, size int64) (*storage.UploadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fullPath, err := s.resolve(p)
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, stagingPrefix+"*")
	if err != nil {
		return nil, fmt.Errorf("failed to create staging file: %w", err)
	}
	tmpName := tmp.Name()
	published := false
	defer func() {
		if !published {
			_ = os.Remove(tmpName)
		}
	}()

	// Hash while writing so the checksum describes exactly the bytes on disk
	hasher := sha256.New()
	written, copyErr := io.Copy(io.MultiWriter(tmp, hasher), reader)
	sum := hex.EncodeToString(hasher.Sum(nil))

	if copyErr != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to write file: %w", copyErr)
	}
	if size >= 0 && written != size {
		tmp.Close()
		return nil, fmt.Errorf("short write: wrote %d of %d bytes", written, size)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("failed to sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Chmod(tmpName, 0640); err != nil {
		return nil, fmt.Errorf("failed to set file mode: %w", err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		return nil, fmt.Errorf("failed to publish file: %w", err)
	}
	published = true

	return &storage.UploadResult{
		Path:     p,
		Size:     written,
		Checksum: sum,
	}, nil
}

// Download retrieves a file from the local filesystem
func (s *LocalStorage) Download(ctx context.Context, p string) (io.ReadCloser, error) {
	fullPath, err := s.resolve(p)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, p)
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// Delete removes a file and any parent directories it leaves empty
func (s *LocalStorage) Delete(ctx context.Context, p string) error {
	fullPath, err := s.resolve(p)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}

	s.removeEmptyParents(filepath.Dir(fullPath))
	return nil
}

// removeEmptyParents walks up from dir removing empty directories. Top-level directories
// directly under basePath are kept, since other uploads may be about to write into them.
func (s *LocalStorage) removeEmptyParents(dir string) {
	root := s.basePath + string(filepath.Separator)
	for strings.HasPrefix(dir, root) && filepath.Dir(dir) != s.basePath {
		if err := os.Remove(dir); err != nil {
			return // not empty
		}
		dir = filepath.Dir(dir)
	}
}

// GetURL returns a URL for downloading the file. With ServeDirectly the file is served by
// the API under /files/; otherwise a file:// URL is returned.
func (s *LocalStorage) GetURL(ctx context.Context, p string, ttl time.Duration) (string, error) {
	exists, err := s.Exists(ctx, p)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", fmt.Errorf("%w: %s", storage.ErrNotFound, p)
	}

	if s.serveDirectly {
		return fmt.Sprintf("%s/files/%s", s.baseURL, path.Clean(p)), nil
	}

	fullPath, _ := s.resolve(p)
	return fmt.Sprintf("file://%s", fullPath), nil
}

// Exists checks if a file exists at the specified path
func (s *LocalStorage) Exists(ctx context.Context, p string) (bool, error) {
	fullPath, err := s.resolve(p)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check file existence: %w", err)
	}

	return true, nil
}

// GetMetadata stats the file and hashes its contents
func (s *LocalStorage) GetMetadata(ctx context.Context, p string) (*storage.FileMetadata, error) {
	fullPath, err := s.resolve(p)
	if err != nil {
		return nil, err
	}

	stat, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, p)
		}
		return nil, fmt.Errorf("failed to get file metadata: %w", err)
	}

	file, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file for checksum: %w", err)
	}
	defer file.Close()

	sum, err := checksum.CalculateSHA256(file)
	if err != nil {
		return nil, err
	}

	return &storage.FileMetadata{
		Path:         p,
		Size:         stat.Size(),
		Checksum:     sum,
		LastModified: stat.ModTime(),
	}, nil
}

// List returns the regular files directly under dir, skipping staged uploads
func (s *LocalStorage) List(ctx context.Context, dir string) ([]string, error) {
	fullPath, err := s.resolve(dir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to list directory: %w", err)
	}

	// os.ReadDir returns entries sorted by filename
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() || strings.HasPrefix(e.Name(), stagingPrefix) {
			continue
		}
		files = append(files, path.Join(path.Clean(dir), e.Name()))
	}
	return files, nil
}

// Move renames src to dst and prunes directories src leaves empty
func (s *LocalStorage) Move(ctx context.Context, src, dst string) error {
	srcPath, err := s.resolve(src)
	if err != nil {
		return err
	}
	dstPath, err := s.resolve(dst)
	if err != nil {
		return err
	}

	if _, err := os.Stat(srcPath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", storage.ErrNotFound, src)
		}
		return fmt.Errorf("failed to stat source: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dstPath), 0750); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.Rename(srcPath, dstPath); err != nil {
		return fmt.Errorf("failed to move file: %w", err)
	}

	s.removeEmptyParents(filepath.Dir(srcPath))
	return nil
}
