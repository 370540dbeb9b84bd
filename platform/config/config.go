// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// CRMConfig provides settings for the upstream CRM backend.
type CRMConfig interface {
	GetCRMBaseURL() string
	GetCRMAPIKey() string
	GetCRMTimeout() time.Duration
}

// MinIOConfig provides settings for MinIO S3-compatible storage.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketReportThumbnails() string
	GetMinioBucketReportPDFs() string
	GetMinioBucketShareQRCodes() string
	IsMinIOEnabled() bool
}

// GotenbergConfig provides settings for the Gotenberg HTML rendering service.
type GotenbergConfig interface {
	GetGotenbergURL() string
	GetGotenbergUsername() string
	GetGotenbergPassword() string
	IsGotenbergEnabled() bool
}

// SMTPConfig provides settings for direct report delivery over SMTP.
type SMTPConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	IsSMTPEnabled() bool
}

// SchedulerConfig provides settings for the asynq worker and its Redis broker.
type SchedulerConfig interface {
	GetRedisAddr() string
	GetRedisPassword() string
	GetOutboxInterval() time.Duration
}

// AIConfig provides settings for the content generation model.
type AIConfig interface {
	GetMoonshotAPIKey() string
	GetMoonshotModel() string
	IsAIEnabled() bool
}

// NotificationConfig provides settings for the notification module.
type NotificationConfig interface {
	GetAppBaseURL() string
	GetFollowUpReminderDelay() time.Duration
}

// WizardConfig provides settings for wizard session lifetimes.
type WizardConfig interface {
	GetWizardSessionTTL() time.Duration
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                         string
	HTTPAddr                    string
	DatabaseURL                 string
	JWTAccessSecret             string
	CORSAllowAll                bool
	CORSOrigins                 []string
	CORSAllowCreds              bool
	AppBaseURL                  string
	CRMBaseURL                  string
	CRMAPIKey                   string
	CRMTimeout                  time.Duration
	MoonshotAPIKey              string
	MoonshotModel               string
	MinIOEndpoint               string
	MinIOAccessKey              string
	MinIOSecretKey              string
	MinIOUseSSL                 bool
	MinioBucketReportThumbnails string
	MinioBucketReportPDFs       string
	MinioBucketShareQRCodes     string
	GotenbergURL                string
	GotenbergUsername           string
	GotenbergPassword           string
	SMTPHost                    string
	SMTPPort                    int
	SMTPUsername                string
	SMTPPassword                string
	EmailFromName               string
	EmailFromAddress            string
	RedisAddr                   string
	RedisPassword               string
	OutboxInterval              time.Duration
	WizardSessionTTL            time.Duration
	FollowUpReminderDelay       time.Duration
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// CRMConfig implementation
func (c *Config) GetCRMBaseURL() string        { return c.CRMBaseURL }
func (c *Config) GetCRMAPIKey() string         { return c.CRMAPIKey }
func (c *Config) GetCRMTimeout() time.Duration { return c.CRMTimeout }

// MinIOConfig implementation
func (c *Config) GetMinIOEndpoint() string  { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool      { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketReportThumbnails() string {
	return c.MinioBucketReportThumbnails
}
func (c *Config) GetMinioBucketReportPDFs() string {
	return c.MinioBucketReportPDFs
}
func (c *Config) GetMinioBucketShareQRCodes() string {
	return c.MinioBucketShareQRCodes
}
func (c *Config) IsMinIOEnabled() bool { return c.MinIOEndpoint != "" }

// GotenbergConfig implementation
func (c *Config) GetGotenbergURL() string      { return c.GotenbergURL }
func (c *Config) GetGotenbergUsername() string { return c.GotenbergUsername }
func (c *Config) GetGotenbergPassword() string { return c.GotenbergPassword }
func (c *Config) IsGotenbergEnabled() bool     { return c.GotenbergURL != "" }

// SMTPConfig implementation
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }
func (c *Config) IsSMTPEnabled() bool {
	return c.SMTPHost != "" && c.EmailFromAddress != ""
}

// SchedulerConfig implementation
func (c *Config) GetRedisAddr() string             { return c.RedisAddr }
func (c *Config) GetRedisPassword() string         { return c.RedisPassword }
func (c *Config) GetOutboxInterval() time.Duration { return c.OutboxInterval }

// AIConfig implementation
func (c *Config) GetMoonshotAPIKey() string { return c.MoonshotAPIKey }
func (c *Config) GetMoonshotModel() string  { return c.MoonshotModel }
func (c *Config) IsAIEnabled() bool         { return c.MoonshotAPIKey != "" }

// NotificationConfig implementation
func (c *Config) GetAppBaseURL() string { return c.AppBaseURL }
func (c *Config) GetFollowUpReminderDelay() time.Duration {
	return c.FollowUpReminderDelay
}

// WizardConfig implementation
func (c *Config) GetWizardSessionTTL() time.Duration { return c.WizardSessionTTL }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                         getEnv("APP_ENV", "development"),
		HTTPAddr:                    getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:                 getEnv("DATABASE_URL", ""),
		JWTAccessSecret:             getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:                corsAllowAll,
		CORSOrigins:                 corsOrigins,
		CORSAllowCreds:              strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		AppBaseURL:                  getEnv("APP_BASE_URL", "http://localhost:4200"),
		CRMBaseURL:                  getEnv("CRM_BASE_URL", ""),
		CRMAPIKey:                   getEnv("CRM_API_KEY", ""),
		CRMTimeout:                  mustDuration(getEnv("CRM_TIMEOUT", "30s")),
		MoonshotAPIKey:              getEnv("MOONSHOT_API_KEY", ""),
		MoonshotModel:               getEnv("MOONSHOT_MODEL", "kimi-k2-0711-preview"),
		MinIOEndpoint:               getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:              getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:              getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:                 strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinioBucketReportThumbnails: getEnv("MINIO_BUCKET_REPORT_THUMBNAILS", "report-thumbnails"),
		MinioBucketReportPDFs:       getEnv("MINIO_BUCKET_REPORT_PDFS", "report-pdfs"),
		MinioBucketShareQRCodes:     getEnv("MINIO_BUCKET_SHARE_QRCODES", "share-qrcodes"),
		GotenbergURL:                getEnv("GOTENBERG_URL", ""),
		GotenbergUsername:           getEnv("GOTENBERG_USERNAME", ""),
		GotenbergPassword:           getEnv("GOTENBERG_PASSWORD", ""),
		SMTPHost:                    getEnv("SMTP_HOST", ""),
		SMTPPort:                    mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:                getEnv("SMTP_USERNAME", ""),
		SMTPPassword:                getEnv("SMTP_PASSWORD", ""),
		EmailFromName:               getEnv("EMAIL_FROM_NAME", "ReportFlow"),
		EmailFromAddress:            getEnv("EMAIL_FROM_ADDRESS", ""),
		RedisAddr:                   getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:               getEnv("REDIS_PASSWORD", ""),
		OutboxInterval:              mustDuration(getEnv("OUTBOX_INTERVAL", "15s")),
		WizardSessionTTL:            mustDuration(getEnv("WIZARD_SESSION_TTL", "2h")),
		FollowUpReminderDelay:       mustDuration(getEnv("FOLLOW_UP_REMINDER_DELAY", "72h")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.CRMBaseURL == "" {
		return nil, fmt.Errorf("CRM_BASE_URL is required")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
