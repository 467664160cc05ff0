// Package packages implements the HTTP handlers for uploading, editing, deleting and
// downloading add-on packages and for reading their download statistics. Handlers only
// translate between multipart/JSON and the services layer; every rule lives in services.
package packages

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/addonhub/addonhub/internal/content"
	"github.com/addonhub/addonhub/internal/db/models"
	"github.com/addonhub/addonhub/internal/middleware"
	"github.com/addonhub/addonhub/internal/services"
)

// PackageOperations is the part of services.PackageService the handlers call.
type PackageOperations interface {
	CreatePackage(ctx context.Context, actor services.Actor, meta services.PackageMetadata, archive, icon []byte) (*models.PackageEntry, error)
	UpdatePackage(ctx context.Context, actor services.Actor, id int64, meta services.PackageMetadata, archive, icon []byte) (*models.PackageEntry, error)
	DeletePackage(ctx context.Context, actor services.Actor, id int64) error
	GetPackage(ctx context.Context, id int64) (*models.PackageEntry, error)
	OpenLatestArchive(ctx context.Context, name string) (*services.Archive, error)
}

// DownloadOperations is the part of services.DownloadService the handlers call.
type DownloadOperations interface {
	RecordDownload(ctx context.Context, packageID int64) error
	DailyDownloads(ctx context.Context, packageID int64, days int) ([]models.DailyCount, error)
	MonthlyDownloads(ctx context.Context, packageID int64, months int) ([]models.MonthlyCount, error)
	RangeTotal(ctx context.Context, packageID int64, from, to time.Time) (int64, error)
}

// Handler serves the /api/v1/packages routes.
type Handler struct {
	packages  PackageOperations
	downloads DownloadOperations
	limits    content.Limits
}

// NewHandler creates a handler. limits bounds how much of each multipart file is read.
func NewHandler(packages PackageOperations, downloads DownloadOperations, limits content.Limits) *Handler {
	return &Handler{packages: packages, downloads: downloads, limits: limits}
}

// GetPackage handles GET /api/v1/packages/:id
func (h *Handler) GetPackage(c *gin.Context) {
	id, ok := packageID(c)
	if !ok {
		return
	}

	entry, err := h.packages.GetPackage(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, entry)
}

// DeletePackage handles DELETE /api/v1/packages/:id
func (h *Handler) DeletePackage(c *gin.Context) {
	id, ok := packageID(c)
	if !ok {
		return
	}
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	if err := h.packages.DeletePackage(c.Request.Context(), actor, id); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// packageID parses the :id path parameter, writing a 400 when it is not a positive integer.
func packageID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid package id"})
		return 0, false
	}
	return id, true
}

// currentActor converts the authenticated user into a services.Actor, writing a 401 when
// the route was reached without AuthMiddleware.
func currentActor(c *gin.Context) (services.Actor, bool) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return services.Actor{}, false
	}
	return services.Actor{UserID: user.ID, Role: user.Role}, true
}
