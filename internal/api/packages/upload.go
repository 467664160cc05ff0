package packages

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/addonhub/addonhub/internal/services"
)

const (
	metadataField = "metadata"
	addonField    = "addon"
	iconField     = "icon"

	// multipartOverhead covers boundaries, part headers and the metadata field.
	multipartOverhead = 1 << 20
	// multipartMemory is kept in memory by ParseMultipartForm; larger parts spill to disk.
	multipartMemory = 32 << 20
)

// upload is a parsed multipart package request.
type upload struct {
	meta    services.PackageMetadata
	archive []byte
	icon    []byte
}

// CreatePackage handles POST /api/v1/packages
// Accepts multipart form with: metadata (JSON), addon (file), icon (optional file)
func (h *Handler) CreatePackage(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	up, ok := h.readUpload(c)
	if !ok {
		return
	}

	entry, err := h.packages.CreatePackage(c.Request.Context(), actor, up.meta, up.archive, up.icon)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, entry)
}

// UpdatePackage handles PATCH /api/v1/packages/:id
// Accepts multipart form with: metadata (JSON, optional), addon (optional), icon (optional)
func (h *Handler) UpdatePackage(c *gin.Context) {
	id, ok := packageID(c)
	if !ok {
		return
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	up, ok := h.readUpload(c)
	if !ok {
		return
	}

	entry, err := h.packages.UpdatePackage(c.Request.Context(), actor, id, up.meta, up.archive, up.icon)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, entry)
}

// readUpload parses the multipart body, writing the error response itself when it fails.
// Size and format checks on the files are left to the service.
func (h *Handler) readUpload(c *gin.Context) (*upload, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body,
		h.limits.MaxArchiveSize+h.limits.MaxIconSize+multipartOverhead)

	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
			return nil, false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to parse multipart form"})
		return nil, false
	}

	up := &upload{}
	if raw := c.Request.FormValue(metadataField); raw != "" {
		if err := json.Unmarshal([]byte(raw), &up.meta); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid metadata: %v", err)})
			return nil, false
		}
	}

	var err error
	if up.archive, err = readPart(c, addonField, h.limits.MaxArchiveSize); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read addon file"})
		return nil, false
	}
	if up.icon, err = readPart(c, iconField, h.limits.MaxIconSize); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read icon file"})
		return nil, false
	}

	return up, true
}

// readPart reads at most limit+1 bytes of the named file part so that the service can
// still tell an oversized file from one exactly at the limit. A missing or empty part
// yields nil.
func readPart(c *gin.Context, field string, limit int64) ([]byte, error) {
	fh, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil || len(data) == 0 {
		return nil, err
	}
	return data, nil
}
