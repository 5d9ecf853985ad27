package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

type Config struct {
	Mode     Mode
	HTTPAddr string

	DBDriver string
	DBDSN    string

	AuthHMACSecret string
	TokenTTL       time.Duration
	BcryptCost     int

	// Registrations with this email get the admin role.
	AdminEmail string

	CORSOriginsOnline  []string
	CORSOriginsOffline []string

	// Exam snapshots are written here before cascade deletion. Empty disables it.
	ArchiveBasePath string

	LogLevel  string
	LogFormat string // json|pretty

	BulkConcurrency int
	ShutdownTimeout time.Duration
}

// fileConfig is the optional YAML overlay. Keys mirror the env names in
// lower case; environment variables always win over the file.
type fileConfig struct {
	Mode               string   `yaml:"mode"`
	HTTPAddr           string   `yaml:"http_addr"`
	DBDriver           string   `yaml:"db_driver"`
	DBDSN              string   `yaml:"db_dsn"`
	AuthHMACSecret     string   `yaml:"auth_hmac_secret"`
	TokenTTL           string   `yaml:"token_ttl"`
	BcryptCost         int      `yaml:"bcrypt_cost"`
	AdminEmail         string   `yaml:"admin_email"`
	CORSOriginsOnline  []string `yaml:"cors_origins_online"`
	CORSOriginsOffline []string `yaml:"cors_origins_offline"`
	ArchiveBasePath    string   `yaml:"archive_base_path"`
	LogLevel           string   `yaml:"log_level"`
	LogFormat          string   `yaml:"log_format"`
	BulkConcurrency    int      `yaml:"bulk_concurrency"`
	ShutdownTimeout    string   `yaml:"shutdown_timeout"`
}

// Load reads an optional .env file, then an optional YAML file named by
// CONFIG_FILE, then the environment.
func Load() (Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	var fc fileConfig
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &fc); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg := fromSources(fc)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func fromSources(fc fileConfig) Config {
	mode := Mode(envOr("MODE", strOr(fc.Mode, string(ModeOffline))))
	pretty := mode == ModeOffline
	defFormat := "json"
	if pretty {
		defFormat = "pretty"
	}
	return Config{
		Mode:               mode,
		HTTPAddr:           envOr("HTTP_ADDR", strOr(fc.HTTPAddr, ":8080")),
		DBDriver:           envOr("DB_DRIVER", strOr(fc.DBDriver, "sqlite")),
		DBDSN:              envOr("DB_DSN", fc.DBDSN),
		AuthHMACSecret:     envOr("AUTH_HMAC_SECRET", strOr(fc.AuthHMACSecret, "supersecret-dev-key")),
		TokenTTL:           envDuration("TOKEN_TTL", durOr(fc.TokenTTL, 8*time.Hour)),
		BcryptCost:         envInt("BCRYPT_COST", intOr(fc.BcryptCost, 12)),
		AdminEmail:         strings.ToLower(envOr("ADMIN_EMAIL", fc.AdminEmail)),
		CORSOriginsOnline:  csvOr("CORS_ORIGINS_ONLINE", listOr(fc.CORSOriginsOnline, "")),
		CORSOriginsOffline: csvOr("CORS_ORIGINS_OFFLINE", listOr(fc.CORSOriginsOffline, "http://localhost:3000")),
		ArchiveBasePath:    envOr("ARCHIVE_BASE_PATH", strOr(fc.ArchiveBasePath, "./data/archive")),
		LogLevel:           envOr("LOG_LEVEL", strOr(fc.LogLevel, "info")),
		LogFormat:          envOr("LOG_FORMAT", strOr(fc.LogFormat, defFormat)),
		BulkConcurrency:    envInt("BULK_CONCURRENCY", intOr(fc.BulkConcurrency, 8)),
		ShutdownTimeout:    envDuration("SHUTDOWN_TIMEOUT", durOr(fc.ShutdownTimeout, 15*time.Second)),
	}
}

// Validate rejects settings that are unsafe in online mode. Online mode has
// no default CORS origin.
func (c Config) Validate() error {
	if c.Mode != ModeOffline && c.Mode != ModeOnline {
		return fmt.Errorf("config: unknown MODE %q", c.Mode)
	}
	if c.Mode == ModeOnline && (c.AuthHMACSecret == "" || c.AuthHMACSecret == "supersecret-dev-key") {
		return fmt.Errorf("config: AUTH_HMAC_SECRET must be set in online mode")
	}
	if c.Mode == ModeOnline && len(c.CORSOriginsOnline) == 0 {
		return fmt.Errorf("config: CORS_ORIGINS_ONLINE must list the portal's origins in online mode")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("config: TOKEN_TTL must be positive")
	}
	if c.BulkConcurrency < 1 {
		return fmt.Errorf("config: BULK_CONCURRENCY must be at least 1")
	}
	return nil
}

// CORSOrigins returns the allow-list for the active mode.
func (c Config) CORSOrigins() []string {
	if c.Mode == ModeOnline {
		return c.CORSOriginsOnline
	}
	return c.CORSOriginsOffline
}

func envOr(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func envInt(k string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(k)); err == nil {
		return v
	}
	return def
}

func envDuration(k string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(k)); err == nil {
		return v
	}
	return def
}

func csvOr(k, def string) []string {
	v := envOr(k, def)
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func strOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func intOr(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func durOr(v string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return def
}

func listOr(v []string, def string) string {
	if len(v) == 0 {
		return def
	}
	return strings.Join(v, ",")
}
