// Package storage defines the Storage interface the content store writes through and the
// common types shared by its backends.
//
// Backends register themselves with the factory from an init() function in their own
// package, and the server binary pulls them in with a blank import:
//
//	func init() {
//	    storage.Register("mybackend", func(cfg *config.Config) (storage.Storage, error) {
//	        return NewMyBackend(cfg)
//	    })
//	}
//
// Paths are slash-separated and relative to the backend root, e.g.
// "addons/12-Better Furnaces/addon-1718000000000.mcaddon" or "icons/12.png".
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrNotFound is returned when a path does not exist in the backend.
	ErrNotFound = errors.New("file not found")

	// ErrInvalidPath is returned for paths that are empty, absolute or escape the backend root.
	ErrInvalidPath = errors.New("invalid storage path")
)

// Storage defines the interface for all storage backends
type Storage interface {
	// Upload stores a file and returns the storage result with path and checksum.
	// A reader error must leave nothing visible at path.
	Upload(ctx context.Context, path string, reader io.Reader, size int64) (*UploadResult, error)

	// Download retrieves a file and returns a reader
	Download(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes a file. Deleting a missing file is not an error.
	Delete(ctx context.Context, path string) error

	// GetURL returns a URL clients can fetch the file from
	GetURL(ctx context.Context, path string, ttl time.Duration) (string, error)

	// Exists checks if a file exists at the specified path
	Exists(ctx context.Context, path string) (bool, error)

	// GetMetadata retrieves file metadata without downloading the entire file
	GetMetadata(ctx context.Context, path string) (*FileMetadata, error)

	// List returns the paths of the regular files directly under dir, sorted by name.
	// A missing dir yields an empty list.
	List(ctx context.Context, dir string) ([]string, error)

	// Move renames src to dst, creating dst's parent as needed.
	Move(ctx context.Context, src, dst string) error
}

// UploadResult contains information about an uploaded file
type UploadResult struct {
	// Path is the storage path where the file was stored
	Path string

	// Size is the file size in bytes
	Size int64

	// Checksum is the SHA256 hash of the file contents
	Checksum string
}

// FileMetadata contains metadata about a stored file
type FileMetadata struct {
	Path         string
	Size         int64
	Checksum     string
	LastModified time.Time
}
