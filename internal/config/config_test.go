package config

import (
	"os"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// DatabaseConfig.GetDSN / ServerConfig.GetAddress
// ---------------------------------------------------------------------------

func TestGetDSN(t *testing.T) {
	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "standard config",
			cfg: DatabaseConfig{
				Host: "localhost", Port: 5432, User: "addonhub", Password: "secret",
				Name: "addonhub", SSLMode: "require",
			},
			want: "host=localhost port=5432 user=addonhub password=secret dbname=addonhub sslmode=require",
		},
		{
			name: "empty password",
			cfg: DatabaseConfig{
				Host: "db.internal", Port: 5433, User: "u", Name: "d", SSLMode: "disable",
			},
			want: "host=db.internal port=5433 user=u password= dbname=d sslmode=disable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.cfg.GetDSN(); got != tt.want {
				t.Errorf("GetDSN() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestGetAddress(t *testing.T) {
	tests := []struct {
		cfg  ServerConfig
		want string
	}{
		{ServerConfig{Host: "0.0.0.0", Port: 8080}, "0.0.0.0:8080"},
		{ServerConfig{Host: "", Port: 8080}, ":8080"},
		{ServerConfig{Host: "localhost", Port: 3000}, "localhost:3000"},
	}

	for _, tt := range tests {
		if got := tt.cfg.GetAddress(); got != tt.want {
			t.Errorf("GetAddress() = %q, want %q", got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Config.Validate
// ---------------------------------------------------------------------------

func minimalValidConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:    8080,
			BaseURL: "http://localhost:8080",
		},
		Database: DatabaseConfig{
			Host: "localhost",
			Name: "addonhub",
			User: "addonhub",
		},
		Storage: StorageConfig{
			DefaultBackend: "local",
			Local:          LocalStorageConfig{BasePath: "./storage"},
			MaxArchiveSize: 200 * 1024 * 1024,
			MaxIconSize:    2 * 1024 * 1024,
		},
		Auth:    AuthConfig{JWTSecret: strings.Repeat("k", 32)},
		Logging: LoggingConfig{Level: "info"},
		Jobs: JobsConfig{OrphanReconciler: OrphanReconcilerConfig{
			Enabled: true, IntervalMinutes: 15, GraceMinutes: 60,
		}},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid minimal config", func(c *Config) {}, ""},
		{"port 0", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"port 70000", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
		{"missing base_url", func(c *Config) { c.Server.BaseURL = "" }, "server.base_url"},
		{"missing database host", func(c *Config) { c.Database.Host = "" }, "database.host"},
		{"missing database name", func(c *Config) { c.Database.Name = "" }, "database.name"},
		{"missing database user", func(c *Config) { c.Database.User = "" }, "database.user"},
		{"unsupported backend", func(c *Config) { c.Storage.DefaultBackend = "s3" }, "invalid storage backend"},
		{"missing base path", func(c *Config) { c.Storage.Local.BasePath = "" }, "storage.local.base_path"},
		{"zero archive limit", func(c *Config) { c.Storage.MaxArchiveSize = 0 }, "storage.max_archive_size"},
		{"negative icon limit", func(c *Config) { c.Storage.MaxIconSize = -1 }, "storage.max_icon_size"},
		{"missing jwt secret", func(c *Config) { c.Auth.JWTSecret = "" }, "auth.jwt_secret"},
		{"missing jwt secret in dev mode", func(c *Config) {
			c.Auth.JWTSecret = ""
			c.Auth.DevMode = true
		}, ""},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "invalid logging level"},
		{"reconciler interval", func(c *Config) { c.Jobs.OrphanReconciler.IntervalMinutes = 0 }, "interval_minutes"},
		{"reconciler grace", func(c *Config) { c.Jobs.OrphanReconciler.GraceMinutes = 0 }, "grace_minutes"},
		{"reconciler disabled ignores zero values", func(c *Config) {
			c.Jobs.OrphanReconciler = OrphanReconcilerConfig{}
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := minimalValidConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// expandEnv
// ---------------------------------------------------------------------------

func TestExpandEnv(t *testing.T) {
	t.Setenv("CONFIG_TEST_SECRET", "super-secret")
	if got := expandEnv("${CONFIG_TEST_SECRET}"); got != "super-secret" {
		t.Errorf("expandEnv() = %q, want super-secret", got)
	}
	if got := expandEnv("no-vars-here"); got != "no-vars-here" {
		t.Errorf("expandEnv() = %q, want passthrough", got)
	}
	os.Unsetenv("CONFIG_TEST_DEFINITELY_UNSET_12345")
	if got := expandEnv("${CONFIG_TEST_DEFINITELY_UNSET_12345}"); got != "" {
		t.Errorf("expandEnv() = %q, want empty string", got)
	}
}

// ---------------------------------------------------------------------------
// Load
// ---------------------------------------------------------------------------

// writeTempConfig creates a temp YAML file and registers a cleanup to remove it.
func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "config-test-*.yaml")
	if err != nil {
		t.Fatal("CreateTemp:", err)
	}
	if _, err := f.WriteString(content); err != nil {
		t.Fatal("WriteString:", err)
	}
	f.Close()
	return f.Name()
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Fatal("Load() expected error for explicit missing file")
	}
	if !strings.Contains(err.Error(), "error reading config file") {
		t.Errorf("Load() error = %v, want read error", err)
	}
}

func TestLoad_WithConfigFile(t *testing.T) {
	const content = `
server:
  host: "testhost"
  port: 9999
  base_url: "http://testhost:9999"
database:
  host: "dbhost"
  name: "testdb"
  user: "testuser"
storage:
  local:
    base_path: "./test-storage"
  max_icon_size: 1048576
auth:
  jwt_secret: "0123456789abcdef0123456789abcdef"
logging:
  level: "debug"
jobs:
  orphan_reconciler:
    grace_minutes: 5
`
	cfg, err := Load(writeTempConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Host != "testhost" || cfg.Server.Port != 9999 {
		t.Errorf("Server = %s:%d, want testhost:9999", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Database.Host != "dbhost" || cfg.Database.Name != "testdb" {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.Storage.Local.BasePath != "./test-storage" {
		t.Errorf("Storage.Local.BasePath = %q", cfg.Storage.Local.BasePath)
	}
	if cfg.Storage.MaxIconSize != 1048576 {
		t.Errorf("Storage.MaxIconSize = %d, want 1048576", cfg.Storage.MaxIconSize)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Jobs.OrphanReconciler.GraceMinutes != 5 {
		t.Errorf("GraceMinutes = %d, want 5", cfg.Jobs.OrphanReconciler.GraceMinutes)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	const content = `
auth:
  dev_mode: true
`
	cfg, err := Load(writeTempConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Server.Port != 8080 || cfg.Server.Host != "0.0.0.0" {
		t.Errorf("default Server = %s:%d", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Database.Port != 5432 || cfg.Database.SSLMode != "require" {
		t.Errorf("default Database = %+v", cfg.Database)
	}
	if cfg.Storage.DefaultBackend != "local" || cfg.Storage.Local.BasePath != "./storage" {
		t.Errorf("default Storage = %+v", cfg.Storage)
	}
	if cfg.Storage.MaxArchiveSize != 200*1024*1024 {
		t.Errorf("default MaxArchiveSize = %d", cfg.Storage.MaxArchiveSize)
	}
	if cfg.Storage.MaxIconSize != 2*1024*1024 {
		t.Errorf("default MaxIconSize = %d", cfg.Storage.MaxIconSize)
	}
	if !cfg.Jobs.OrphanReconciler.Enabled || cfg.Jobs.OrphanReconciler.IntervalMinutes != 15 {
		t.Errorf("default OrphanReconciler = %+v", cfg.Jobs.OrphanReconciler)
	}
	if cfg.Telemetry.Metrics.PrometheusPort != 9090 {
		t.Errorf("default PrometheusPort = %d, want 9090", cfg.Telemetry.Metrics.PrometheusPort)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ADH_DATABASE_HOST", "env-db")
	t.Setenv("ADH_STORAGE_MAX_ARCHIVE_SIZE", "1024")
	t.Setenv("ADH_AUTH_JWT_SECRET", "from-env-0123456789abcdef01234567")

	cfg, err := Load(writeTempConfig(t, "database:\n  host: file-db\n"))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Database.Host != "env-db" {
		t.Errorf("Database.Host = %q, want env-db", cfg.Database.Host)
	}
	if cfg.Storage.MaxArchiveSize != 1024 {
		t.Errorf("MaxArchiveSize = %d, want 1024", cfg.Storage.MaxArchiveSize)
	}
	if cfg.Auth.JWTSecret != "from-env-0123456789abcdef01234567" {
		t.Errorf("JWTSecret = %q", cfg.Auth.JWTSecret)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_DB_PASS", "mysecret")
	t.Setenv("TEST_JWT", "expanded-secret-0123456789abcdef0")
	const content = `
database:
  password: "${TEST_DB_PASS}"
auth:
  jwt_secret: "${TEST_JWT}"
`
	cfg, err := Load(writeTempConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Database.Password != "mysecret" {
		t.Errorf("Database.Password = %q, want mysecret", cfg.Database.Password)
	}
	if cfg.Auth.JWTSecret != "expanded-secret-0123456789abcdef0" {
		t.Errorf("Auth.JWTSecret = %q", cfg.Auth.JWTSecret)
	}
}

func TestLoad_InvalidConfiguration(t *testing.T) {
	_, err := Load(writeTempConfig(t, "auth:\n  dev_mode: true\nlogging:\n  level: loud\n"))
	if err == nil || !strings.Contains(err.Error(), "invalid configuration") {
		t.Errorf("Load() error = %v, want invalid configuration", err)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeTempConfig(t, "server: [unclosed")); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}
