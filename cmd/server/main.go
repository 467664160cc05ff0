// Package main is the entry point for the addonhub server binary.
// It dispatches its subcommands (serve, migrate, reconcile, version) via a switch on
// os.Args. serve brings the schema and seed data up to date before it starts listening.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof" // served only on the profiling port, never on the API listener
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/addonhub/addonhub/internal/api"
	"github.com/addonhub/addonhub/internal/auth"
	"github.com/addonhub/addonhub/internal/config"
	"github.com/addonhub/addonhub/internal/content"
	"github.com/addonhub/addonhub/internal/db"
	"github.com/addonhub/addonhub/internal/db/repositories"
	"github.com/addonhub/addonhub/internal/jobs"
	"github.com/addonhub/addonhub/internal/safego"
	"github.com/addonhub/addonhub/internal/services"
	"github.com/addonhub/addonhub/internal/storage"
	"github.com/addonhub/addonhub/internal/telemetry"

	_ "github.com/addonhub/addonhub/internal/storage/local"
)

const version = "0.1.0"

const usage = `usage: server [command]

commands:
  serve                 run the HTTP server (default)
  migrate up|down       apply or roll back schema migrations
  migrate force N       mark schema version N as applied and clear the dirty flag
  reconcile             remove orphaned placeholder packages once and exit
  version               print the version`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	command := "serve"
	if len(args) > 0 {
		command = args[0]
	}

	if command == "version" {
		fmt.Printf("addonhub v%s\n", version)
		return nil
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	telemetry.SetupLogger(cfg.Telemetry.ServiceName, cfg.Logging.Format, cfg.Logging.Level)

	switch command {
	case "serve":
		return serve(cfg)
	case "migrate":
		return migrateCommand(cfg, args[1:])
	case "reconcile":
		return reconcileOnce(cfg)
	default:
		return fmt.Errorf("unknown command: %s\n%s", command, usage)
	}
}

// app holds everything built from the configuration.
type app struct {
	files      storage.Storage
	store      *content.Store
	packages   *repositories.PackageRepository
	packageSvc *services.PackageService
	downloads  *services.DownloadService
	users      *repositories.UserRepository
}

func newApp(cfg *config.Config, database *db.Handle) (*app, error) {
	files, err := storage.NewStorage(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	store := content.NewStore(files, content.Limits{
		MaxArchiveSize: cfg.Storage.MaxArchiveSize,
		MaxIconSize:    cfg.Storage.MaxIconSize,
	})

	packages := repositories.NewPackageRepository(database.SQL)
	categories := repositories.NewCategoryRepository(database.X)

	return &app{
		files:      files,
		store:      store,
		packages:   packages,
		packageSvc: services.NewPackageService(packages, categories, store),
		downloads:  services.NewDownloadService(repositories.NewDownloadRepository(database.X)),
		users:      repositories.NewUserRepository(database.SQL),
	}, nil
}

func serve(cfg *config.Config) error {
	if cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	tokens, err := auth.NewTokenManager(cfg.Auth)
	if err != nil {
		return fmt.Errorf("security configuration error: %w", err)
	}

	database, err := db.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer database.Close()
	slog.Info("connected to database",
		"host", cfg.Database.Host, "port", cfg.Database.Port, "name", cfg.Database.Name)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.Bootstrap(ctx, database.SQL); err != nil {
		return fmt.Errorf("failed to bootstrap database: %w", err)
	}

	a, err := newApp(cfg, database)
	if err != nil {
		return err
	}

	telemetry.StartDBStatsCollector(ctx, database.SQL, 15*time.Second)

	if cfg.Telemetry.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		startSideServer("metrics", fmt.Sprintf(":%d", cfg.Telemetry.Metrics.PrometheusPort), mux)
	}
	if cfg.Telemetry.Profiling.Enabled {
		startSideServer("pprof", fmt.Sprintf(":%d", cfg.Telemetry.Profiling.Port), http.DefaultServeMux)
	}

	var reconciler *jobs.OrphanReconciler
	if rc := cfg.Jobs.OrphanReconciler; rc.Enabled {
		reconciler = jobs.NewOrphanReconciler(a.packages, a.store, rc.IntervalMinutes, rc.GraceMinutes)
		safego.Go("orphan-reconciler", func() { reconciler.Start(ctx) })
	}

	router := api.NewRouter(cfg, api.Dependencies{
		DB:        database.SQL,
		Files:     a.files,
		Packages:  a.packageSvc,
		Downloads: a.downloads,
		Tokens:    tokens,
		Users:     a.users,
		Limits:    a.store.Limits(),
		Version:   version,
	})

	server := &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			"addr", server.Addr,
			"base_url", cfg.Server.BaseURL,
			"storage_backend", cfg.Storage.DefaultBackend,
			"version", version)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	if reconciler != nil {
		reconciler.Stop()
	}

	slog.Info("server stopped gracefully")
	return nil
}

// startSideServer serves handler on its own port, away from the public API listener.
func startSideServer(name, addr string, handler http.Handler) {
	safego.Go(name+"-server", func() {
		slog.Info("starting side-channel server", "name", name, "addr", addr)
		srv := &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		}
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("side-channel server error", "name", name, "error", err)
		}
	})
}

func migrateCommand(cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return errors.New(usage)
	}

	database, err := db.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer database.Close()

	switch args[0] {
	case "up", "down":
		slog.Info("running migrations", "direction", args[0])
		if err := db.RunMigrations(database.SQL, args[0]); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		if args[0] == "up" {
			if err := db.Seed(context.Background(), database.X); err != nil {
				return fmt.Errorf("seeding failed: %w", err)
			}
		}
	case "force":
		if len(args) < 2 {
			return errors.New(usage)
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid migration version %q: %w", args[1], err)
		}
		if err := db.ForceMigrationVersion(database.SQL, v); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown migrate direction: %s\n%s", args[0], usage)
	}

	v, dirty, err := db.GetMigrationVersion(database.SQL)
	if err != nil {
		return fmt.Errorf("failed to get migration version: %w", err)
	}
	slog.Info("migration completed", "version", v, "dirty", dirty)
	return nil
}

func reconcileOnce(cfg *config.Config) error {
	database, err := db.Open(cfg.Database)
	if err != nil {
		return err
	}
	defer database.Close()

	a, err := newApp(cfg, database)
	if err != nil {
		return err
	}

	rc := cfg.Jobs.OrphanReconciler
	removed, err := jobs.NewOrphanReconciler(a.packages, a.store, rc.IntervalMinutes, rc.GraceMinutes).
		RunOnce(context.Background())
	if err != nil {
		return fmt.Errorf("reconciliation failed after removing %d packages: %w", removed, err)
	}
	slog.Info("reconciliation completed", "removed", removed)
	return nil
}
