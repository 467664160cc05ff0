package packages

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/addonhub/addonhub/internal/content"
	"github.com/addonhub/addonhub/internal/storage"
	"github.com/addonhub/addonhub/internal/validation"
)

// ServeIconHandler serves stored icons from the storage backend.
// Implements: GET /files/icons/*filepath
// Only names of the form {id}.{ext} are accepted, so nothing outside icons/ is reachable.
func ServeIconHandler(files storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ext, ok := parseIconName(strings.TrimPrefix(c.Param("filepath"), "/"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
			return
		}
		p := content.IconPath(id, ext)

		metadata, err := files.GetMetadata(c.Request.Context(), p)
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "File not found"})
			return
		}
		if err != nil {
			slog.Error("failed to stat icon", "path", p, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get file metadata"})
			return
		}

		reader, err := files.Download(c.Request.Context(), p)
		if err != nil {
			slog.Error("failed to open icon", "path", p, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read file"})
			return
		}
		defer reader.Close()

		// Replacing an icon with the same format keeps its URL, so caches must revalidate.
		headers := map[string]string{"Cache-Control": "public, max-age=300"}
		if metadata.Checksum != "" {
			headers["ETag"] = `"` + metadata.Checksum + `"`
		}
		c.DataFromReader(http.StatusOK, metadata.Size, validation.IconMimeType(ext), reader, headers)
	}
}

// parseIconName splits "{id}.{ext}" and rejects anything else, including nested paths.
func parseIconName(name string) (int64, string, bool) {
	base, ext, found := strings.Cut(name, ".")
	if !found || strings.ContainsAny(base, "/\\") {
		return 0, "", false
	}
	id, err := strconv.ParseInt(base, 10, 64)
	if err != nil || id <= 0 {
		return 0, "", false
	}
	if validation.IconMimeType(ext) == "" {
		return 0, "", false
	}
	return id, ext, true
}
