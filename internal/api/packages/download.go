package packages

import (
	"context"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/addonhub/addonhub/internal/services"
)

const dateLayout = "2006-01-02"

// Download handles GET /api/v1/packages/by-name/:name/download
// Streams the newest archive and counts the download once the whole file was written.
func (h *Handler) Download(c *gin.Context) {
	archive, err := h.packages.OpenLatestArchive(c.Request.Context(), c.Param("name"))
	if err != nil {
		respondError(c, err)
		return
	}
	defer archive.Close()

	c.Header("Content-Type", "application/octet-stream")
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": archive.FileName}))
	c.Header("Content-Length", strconv.FormatInt(archive.Size, 10))
	if archive.Checksum != "" {
		c.Header("X-Checksum-SHA256", archive.Checksum)
	}
	c.Status(http.StatusOK)

	n, err := io.Copy(c.Writer, archive)
	if err != nil || n != archive.Size {
		slog.Warn("archive download interrupted",
			"package_id", archive.PackageID, "written", n, "size", archive.Size, "error", err)
		return
	}

	// The client has the file; a cancelled request must not drop the count.
	ctx := context.WithoutCancel(c.Request.Context())
	if err := h.downloads.RecordDownload(ctx, archive.PackageID); err != nil {
		slog.Error("failed to record download", "package_id", archive.PackageID, "error", err)
	}
}

// DailyDownloads handles GET /api/v1/packages/:id/downloads/daily?days=N
func (h *Handler) DailyDownloads(c *gin.Context) {
	id, ok := packageID(c)
	if !ok {
		return
	}
	days, ok := intQuery(c, "days", services.DefaultDailyDays)
	if !ok {
		return
	}

	series, err := h.downloads.DailyDownloads(c.Request.Context(), id, days)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"package_id": id, "days": series})
}

// MonthlyDownloads handles GET /api/v1/packages/:id/downloads/monthly?months=N
func (h *Handler) MonthlyDownloads(c *gin.Context) {
	id, ok := packageID(c)
	if !ok {
		return
	}
	months, ok := intQuery(c, "months", services.DefaultMonthlyMonths)
	if !ok {
		return
	}

	series, err := h.downloads.MonthlyDownloads(c.Request.Context(), id, months)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"package_id": id, "months": series})
}

// RangeTotal handles GET /api/v1/packages/:id/downloads/total?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *Handler) RangeTotal(c *gin.Context) {
	id, ok := packageID(c)
	if !ok {
		return
	}

	from, err := time.Parse(dateLayout, c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "from must be a YYYY-MM-DD date"})
		return
	}
	to, err := time.Parse(dateLayout, c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "to must be a YYYY-MM-DD date"})
		return
	}

	total, err := h.downloads.RangeTotal(c.Request.Context(), id, from, to)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"package_id": id,
		"from":       from.Format(dateLayout),
		"to":         to.Format(dateLayout),
		"total":      total,
	})
}

// intQuery reads an integer query parameter, falling back to def when it is absent.
func intQuery(c *gin.Context, key string, def int) (int, bool) {
	raw, present := c.GetQuery(key)
	if !present || raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": key + " must be an integer"})
		return 0, false
	}
	return v, true
}
