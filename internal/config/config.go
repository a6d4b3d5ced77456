// Package config loads service configuration from environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Cache store backends.
const (
	StoreFile     = "file"
	StorePostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Scrape   ScrapeConfig
	Cache    CacheConfig
	Notify   NotifyConfig
	Export   ExportConfig
	Classify ClassifyConfig
	Database DatabaseConfig
	CORS     CORSConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string
	Env  string
}

// ScrapeConfig holds the default scrape target.
type ScrapeConfig struct {
	Host      string
	StartPath string
}

// CacheConfig holds listing cache configuration. TTL bounds the
// building-level cache-hit staleness window; zero means entries never
// expire.
type CacheConfig struct {
	Store string
	Dir   string
	TTL   time.Duration
}

// NotifyConfig holds email digest configuration. When SMTPHost is empty the
// digest is logged instead of sent, which keeps development runs offline.
type NotifyConfig struct {
	LogPath      string
	Subject      string
	From         string
	To           string
	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
}

// ExportConfig holds spreadsheet workbook configuration.
type ExportConfig struct {
	WorkbookPath string
	DefaultSheet string
}

// ClassifyConfig holds the tunable classification thresholds.
type ClassifyConfig struct {
	MinAreaSqm float64
	MaxRentYen float64
}

// DatabaseConfig holds PostgreSQL connection configuration, used when the
// cache store is "postgres".
type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	User     string
	Password string
	PoolMin  int
	PoolMax  int
}

// CORSConfig holds CORS configuration.
type CORSConfig struct {
	Origins []string
}

// Load reads configuration from environment variables, applying development
// defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("TARGET_HOST", "tomigaya.jp")
	v.SetDefault("START_PATH", "/feature/new")
	v.SetDefault("CACHE_STORE", StoreFile)
	v.SetDefault("CACHE_DIR", "data/cache")
	v.SetDefault("CACHE_TTL", "0")
	v.SetDefault("EMAIL_LOG_PATH", "data/email_log")
	v.SetDefault("NOTIFY_SUBJECT", "ウホッ！いい物件")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("WORKBOOK_PATH", "data/listings.xlsx")
	v.SetDefault("DEFAULT_SHEET", "listings")
	v.SetDefault("MIN_AREA_SQM", 70.0)
	v.SetDefault("MAX_RENT_YEN", 400000.0)
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_NAME", "tomigaya")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_POOL_MIN", 2)
	v.SetDefault("DB_POOL_MAX", 10)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")

	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Port: v.GetString("PORT"),
			Env:  v.GetString("ENV"),
		},
		Scrape: ScrapeConfig{
			Host:      v.GetString("TARGET_HOST"),
			StartPath: v.GetString("START_PATH"),
		},
		Cache: CacheConfig{
			Store: v.GetString("CACHE_STORE"),
			Dir:   v.GetString("CACHE_DIR"),
			TTL:   v.GetDuration("CACHE_TTL"),
		},
		Notify: NotifyConfig{
			LogPath:      v.GetString("EMAIL_LOG_PATH"),
			Subject:      v.GetString("NOTIFY_SUBJECT"),
			From:         v.GetString("NOTIFY_FROM"),
			To:           v.GetString("NOTIFY_TO"),
			SMTPHost:     v.GetString("SMTP_HOST"),
			SMTPPort:     v.GetInt("SMTP_PORT"),
			SMTPUser:     v.GetString("SMTP_USER"),
			SMTPPassword: v.GetString("SMTP_PASSWORD"),
		},
		Export: ExportConfig{
			WorkbookPath: v.GetString("WORKBOOK_PATH"),
			DefaultSheet: v.GetString("DEFAULT_SHEET"),
		},
		Classify: ClassifyConfig{
			MinAreaSqm: v.GetFloat64("MIN_AREA_SQM"),
			MaxRentYen: v.GetFloat64("MAX_RENT_YEN"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			Name:     v.GetString("DB_NAME"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			PoolMin:  v.GetInt("DB_POOL_MIN"),
			PoolMax:  v.GetInt("DB_POOL_MAX"),
		},
		CORS: CORSConfig{
			Origins: parseOrigins(v.GetString("CORS_ORIGINS")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration is present and consistent.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.Scrape.Host == "" {
		return fmt.Errorf("TARGET_HOST is required")
	}
	if c.Cache.Store != StoreFile && c.Cache.Store != StorePostgres {
		return fmt.Errorf("CACHE_STORE must be %q or %q", StoreFile, StorePostgres)
	}
	if c.Cache.Store == StoreFile && c.Cache.Dir == "" {
		return fmt.Errorf("CACHE_DIR is required for the file cache store")
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("CACHE_TTL must be non-negative")
	}
	if c.Notify.LogPath == "" {
		return fmt.Errorf("EMAIL_LOG_PATH is required")
	}
	if c.Notify.SMTPHost != "" {
		if c.Notify.From == "" || c.Notify.To == "" {
			return fmt.Errorf("NOTIFY_FROM and NOTIFY_TO are required when SMTP_HOST is set")
		}
	}
	if c.Export.WorkbookPath == "" {
		return fmt.Errorf("WORKBOOK_PATH is required")
	}
	if c.Classify.MinAreaSqm < 0 {
		return fmt.Errorf("MIN_AREA_SQM must be non-negative")
	}
	if c.Classify.MaxRentYen <= 0 {
		return fmt.Errorf("MAX_RENT_YEN must be positive")
	}
	if c.Cache.Store == StorePostgres {
		if c.Database.Host == "" || c.Database.Name == "" || c.Database.User == "" {
			return fmt.Errorf("DB_HOST, DB_NAME and DB_USER are required for the postgres cache store")
		}
		if c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required for the postgres cache store")
		}
		if c.Database.PoolMin < 0 {
			return fmt.Errorf("DB_POOL_MIN must be non-negative")
		}
		if c.Database.PoolMax < 1 {
			return fmt.Errorf("DB_POOL_MAX must be at least 1")
		}
		if c.Database.PoolMin > c.Database.PoolMax {
			return fmt.Errorf("DB_POOL_MIN must be less than or equal to DB_POOL_MAX")
		}
	}
	return nil
}

// parseOrigins splits a comma-separated string of origins into a slice.
func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
