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
	GetDatabaseMaxConns() int32
	GetDatabaseStatementTimeout() time.Duration
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

// RedisConfig provides settings for the shared cache.
type RedisConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	IsRedisEnabled() bool
}

// SchedulerConfig provides settings for the asynq scheduler and worker.
type SchedulerConfig interface {
	RedisConfig
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetReapInterval() time.Duration
}

// TelephonyConfig provides settings for the telephony provider client.
type TelephonyConfig interface {
	GetTwilioAccountSID() string
	GetTwilioAuthToken() string
	GetTwilioFromNumber() string
	GetTwilioOperatorNumber() string
	GetTwilioAPIBaseURL() string
	GetPublicBaseURL() string
	GetSignatureBypass() bool
}

// HotlineConfig provides settings for the hotline module.
type HotlineConfig interface {
	GetPublicBaseURL() string
	IsProduction() bool
	GetDevBypass() bool
	GetDevIdentityEmail() string
	GetDevCallerE164() string
	GetActivationLimit() int
	GetActivationWindow() time.Duration
	GetStaleAfter() time.Duration
	GetTierPolicyFile() string
	GetDefaultPhoneRegion() string
}

// NotificationConfig provides settings for the notification module.
type NotificationConfig interface {
	GetPublicBaseURL() string
	GetDiscordWebhookURL() string
	GetOnCallEmail() string
}

// SMTPConfig provides settings for the on-call email sender.
type SMTPConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetSMTPFrom() string
	IsSMTPEnabled() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                  string
	HTTPAddr             string
	DatabaseURL          string
	DatabaseMaxConns     int
	StatementTimeout     time.Duration
	JWTAccessSecret      string
	CORSAllowAll         bool
	CORSOrigins          []string
	CORSAllowCreds       bool
	RedisURL             string
	RedisTLSInsecure     bool
	AsynqQueueName       string
	AsynqConcurrency     int
	PublicBaseURL        string
	TwilioAccountSID     string
	TwilioAuthToken      string
	TwilioFromNumber     string
	TwilioOperatorNumber string
	TwilioAPIBaseURL     string
	SignatureBypass      bool
	DevBypass            bool
	DevIdentityEmail     string
	DevCallerE164        string
	ActivationLimit      int
	ActivationWindow     time.Duration
	StaleAfter           time.Duration
	ReapInterval         time.Duration
	TierPolicyFile       string
	DiscordWebhookURL    string
	SMTPHost             string
	SMTPPort             int
	SMTPUsername         string
	SMTPPassword         string
	SMTPFrom             string
	OnCallEmail          string
	DefaultPhoneRegion   string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string                     { return c.DatabaseURL }
func (c *Config) GetDatabaseMaxConns() int32                 { return int32(c.DatabaseMaxConns) }
func (c *Config) GetDatabaseStatementTimeout() time.Duration { return c.StatementTimeout }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// RedisConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) IsRedisEnabled() bool      { return c.RedisURL != "" }

// SchedulerConfig implementation
func (c *Config) GetAsynqQueueName() string      { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int       { return c.AsynqConcurrency }
func (c *Config) GetReapInterval() time.Duration { return c.ReapInterval }

// TelephonyConfig implementation
func (c *Config) GetTwilioAccountSID() string     { return c.TwilioAccountSID }
func (c *Config) GetTwilioAuthToken() string      { return c.TwilioAuthToken }
func (c *Config) GetTwilioFromNumber() string     { return c.TwilioFromNumber }
func (c *Config) GetTwilioOperatorNumber() string { return c.TwilioOperatorNumber }
func (c *Config) GetTwilioAPIBaseURL() string     { return c.TwilioAPIBaseURL }
func (c *Config) GetPublicBaseURL() string        { return c.PublicBaseURL }
func (c *Config) GetSignatureBypass() bool        { return c.SignatureBypass }

// HotlineConfig implementation
func (c *Config) IsProduction() bool                 { return strings.EqualFold(c.Env, "production") }
func (c *Config) GetDevBypass() bool                 { return c.DevBypass }
func (c *Config) GetDevIdentityEmail() string        { return c.DevIdentityEmail }
func (c *Config) GetDevCallerE164() string           { return c.DevCallerE164 }
func (c *Config) GetActivationLimit() int            { return c.ActivationLimit }
func (c *Config) GetActivationWindow() time.Duration { return c.ActivationWindow }
func (c *Config) GetStaleAfter() time.Duration       { return c.StaleAfter }
func (c *Config) GetTierPolicyFile() string          { return c.TierPolicyFile }
func (c *Config) GetDefaultPhoneRegion() string      { return c.DefaultPhoneRegion }

// NotificationConfig implementation
func (c *Config) GetDiscordWebhookURL() string { return c.DiscordWebhookURL }
func (c *Config) GetOnCallEmail() string       { return c.OnCallEmail }

// SMTPConfig implementation
func (c *Config) GetSMTPHost() string     { return c.SMTPHost }
func (c *Config) GetSMTPPort() int        { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string { return c.SMTPPassword }
func (c *Config) GetSMTPFrom() string     { return c.SMTPFrom }
func (c *Config) IsSMTPEnabled() bool     { return c.SMTPHost != "" && c.SMTPFrom != "" }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                  getEnv("APP_ENV", "development"),
		HTTPAddr:             getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		DatabaseMaxConns:     mustInt(getEnv("DATABASE_MAX_CONNS", "10")),
		StatementTimeout:     mustDuration(getEnv("DATABASE_STATEMENT_TIMEOUT", "5s")),
		JWTAccessSecret:      getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:         corsAllowAll,
		CORSOrigins:          corsOrigins,
		CORSAllowCreds:       strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		RedisURL:             getEnv("REDIS_URL", ""),
		RedisTLSInsecure:     strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:       getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:     mustInt(getEnv("ASYNQ_CONCURRENCY", "5")),
		PublicBaseURL:        strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		TwilioAccountSID:     getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:      getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber:     getEnv("TWILIO_FROM_NUMBER", ""),
		TwilioOperatorNumber: getEnv("TWILIO_OPERATOR_NUMBER", ""),
		TwilioAPIBaseURL:     strings.TrimRight(getEnv("TWILIO_API_BASE_URL", "https://api.twilio.com"), "/"),
		SignatureBypass:      strings.EqualFold(getEnv("TWILIO_SIGNATURE_BYPASS", "false"), "true"),
		DevBypass:            strings.EqualFold(getEnv("AUTH_DEV_BYPASS", "false"), "true"),
		DevIdentityEmail:     getEnv("DEV_IDENTITY_EMAIL", "dev@hotline.local"),
		DevCallerE164:        getEnv("DEV_CALLER_E164", ""),
		ActivationLimit:      mustInt(getEnv("HOTLINE_RATE_LIMIT", "4")),
		ActivationWindow:     mustDuration(getEnv("HOTLINE_RATE_WINDOW", "60s")),
		StaleAfter:           mustDuration(getEnv("HOTLINE_STALE_AFTER", "30m")),
		ReapInterval:         mustDuration(getEnv("HOTLINE_REAP_INTERVAL", "1m")),
		TierPolicyFile:       getEnv("TIER_POLICY_FILE", ""),
		DiscordWebhookURL:    getEnv("DISCORD_WEBHOOK_URL", ""),
		SMTPHost:             getEnv("SMTP_HOST", ""),
		SMTPPort:             mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:         getEnv("SMTP_USERNAME", ""),
		SMTPPassword:         getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:             getEnv("SMTP_FROM", ""),
		OnCallEmail:          getEnv("ONCALL_EMAIL", ""),
		DefaultPhoneRegion:   strings.ToUpper(getEnv("DEFAULT_PHONE_REGION", "US")),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DatabaseMaxConns <= 0 || c.StatementTimeout <= 0 {
		return fmt.Errorf("DATABASE_MAX_CONNS and DATABASE_STATEMENT_TIMEOUT must be positive")
	}
	if c.JWTAccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if c.CORSAllowAll && c.CORSAllowCreds {
		return fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if c.IsProduction() {
		if c.TwilioAuthToken == "" {
			return fmt.Errorf("TWILIO_AUTH_TOKEN is required in production")
		}
		if c.SignatureBypass || c.DevBypass {
			return fmt.Errorf("TWILIO_SIGNATURE_BYPASS and AUTH_DEV_BYPASS must be false in production")
		}
	}
	if c.ActivationLimit <= 0 || c.ActivationWindow <= 0 {
		return fmt.Errorf("HOTLINE_RATE_LIMIT and HOTLINE_RATE_WINDOW must be positive")
	}
	if c.StaleAfter <= 0 {
		return fmt.Errorf("HOTLINE_STALE_AFTER must be a positive duration")
	}
	if c.ReapInterval <= 0 {
		c.ReapInterval = time.Minute
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && strings.TrimSpace(val) != "" {
		return strings.TrimSpace(val)
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
	result, err := strconv.Atoi(strings.TrimSpace(value))
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
