// Package api wires together the HTTP routes of the addonhub backend.
//
// Reads (package view, archive download, statistics, icons) are public. Creating, editing
// and deleting a package requires a bearer token; ownership is checked by the service.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/addonhub/addonhub/internal/api/packages"
	"github.com/addonhub/addonhub/internal/config"
	"github.com/addonhub/addonhub/internal/content"
	"github.com/addonhub/addonhub/internal/middleware"
	"github.com/addonhub/addonhub/internal/storage"
)

// Pinger is satisfied by *sql.DB.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Dependencies are the collaborators built by cmd/server.
type Dependencies struct {
	DB        Pinger
	Files     storage.Storage
	Packages  packages.PackageOperations
	Downloads packages.DownloadOperations
	Tokens    middleware.TokenValidator
	Users     middleware.UserLookup
	Limits    content.Limits
	Version   string
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, deps Dependencies) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))

	router.GET("/health", healthCheckHandler(deps.DB))
	router.GET("/ready", readinessHandler(deps.DB, deps.Files))
	router.GET("/version", versionHandler(deps.Version))

	// Icons are embedded cross-origin by the storefront, so they get their own header set.
	files := router.Group("/files")
	files.Use(middleware.SecurityHeadersMiddleware(middleware.AssetSecurityHeadersConfig()))
	files.GET("/icons/*filepath", packages.ServeIconHandler(deps.Files))

	h := packages.NewHandler(deps.Packages, deps.Downloads, deps.Limits)
	requireAuth := middleware.AuthMiddleware(deps.Tokens, deps.Users)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))
	{
		pkgs := v1.Group("/packages")
		pkgs.POST("", requireAuth, h.CreatePackage)
		pkgs.GET("/:id", h.GetPackage)
		pkgs.PATCH("/:id", requireAuth, h.UpdatePackage)
		pkgs.DELETE("/:id", requireAuth, h.DeletePackage)
		pkgs.GET("/:id/downloads/daily", h.DailyDownloads)
		pkgs.GET("/:id/downloads/monthly", h.MonthlyDownloads)
		pkgs.GET("/:id/downloads/total", h.RangeTotal)
		pkgs.GET("/by-name/:name/download", h.Download)
	}

	return router
}

// healthCheckHandler reports whether the database answers a ping.
func healthCheckHandler(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// readinessHandler also probes the storage backend, so a readiness gate fails when uploads
// and downloads would error.
func readinessHandler(db Pinger, files storage.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := db.PingContext(c.Request.Context()); err != nil {
			checks["database"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "database not ready",
			})
			return
		}
		checks["database"] = "healthy"

		// Exists on a path that is never written exercises the backend without creating state.
		if _, err := files.Exists(c.Request.Context(), ".readiness-probe"); err != nil {
			checks["storage"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"ready":  false,
				"checks": checks,
				"error":  "storage backend not ready",
			})
			return
		}
		checks["storage"] = "healthy"

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func versionHandler(version string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     version,
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware logs one structured record per request. The output format follows the
// handler installed by telemetry.SetupLogger.
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}

		slog.LogAttrs(
			c.Request.Context(),
			level,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", status),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", middleware.RequestID(c)),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	methods := strings.Join(cfg.Security.CORS.AllowedMethods, ", ")
	if methods == "" {
		methods = "GET, POST, PATCH, DELETE, OPTIONS"
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		wildcard := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" {
				allowed, wildcard = true, true
				break
			}
			if allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" || wildcard {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Access-Control-Allow-Credentials", "true")
				c.Header("Vary", "Origin")
			}
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID")
			c.Header("Access-Control-Expose-Headers", "X-Request-ID, X-Checksum-SHA256, Content-Disposition")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
