// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package config loads the application configuration from NEWSLETTER_*
// environment variables, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// EnvPrefix is prepended to every variable name.
const EnvPrefix = "NEWSLETTER_"

// MinJWTSecretLength is the minimum required length of the token signing secret.
const MinJWTSecretLength = 32

// knownWeakSecrets contains default/example secrets that must be rejected.
var knownWeakSecrets = []string{
	"change-me-to-32-byte-secret-key!",
	"your_jwt_secret_key_here_change_me",
}

var (
	dbTypes          = []string{"sqlite", "postgres", "mysql", "mongodb"}
	captchaProviders = []string{"none", "opencaptcha", "hcaptcha"}
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	DBType           string        `env:"DB_TYPE" envDefault:"sqlite"`
	DBPath           string        `env:"DB_PATH" envDefault:"./data/newsletter.db"`
	DBDSN            string        `env:"DB_DSN"`
	MongoURI         string        `env:"MONGODB_URI" envDefault:"mongodb://localhost:27017"`
	MongoDatabase    string        `env:"MONGODB_DATABASE" envDefault:"newsletter"`
	DBMaxOpenConns   int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	DBMaxIdleConns   int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnectTimeout time.Duration `env:"DB_CONNECT_TIMEOUT" envDefault:"10s"`

	ServerHost string `env:"SERVER_HOST" envDefault:"localhost"`
	ServerPort int    `env:"SERVER_PORT" envDefault:"5000"`
	Env        string `env:"ENV" envDefault:"development"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

	JWTSecret   string        `env:"JWT_SECRET,required"`
	TokenTTL    time.Duration `env:"TOKEN_TTL" envDefault:"24h"`
	BaseURL     string        `env:"BASE_URL" envDefault:"http://localhost:5000"`
	CORSOrigins []string      `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	// Cache configuration
	RedisURL    string        `env:"REDIS_URL"` // Optional; memory cache otherwise
	CachePrefix string        `env:"CACHE_PREFIX" envDefault:"newsletter:"`
	CacheTTL    time.Duration `env:"CACHE_TTL" envDefault:"5m"`

	// Mail transport. Without SMTP_HOST messages are only logged.
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	FromEmail    string `env:"FROM_EMAIL" envDefault:"newsletter@example.com"`
	FromName     string `env:"FROM_NAME" envDefault:"Newsletter"`

	BroadcastWorkers int           `env:"BROADCAST_WORKERS" envDefault:"8"`
	SendTimeout      time.Duration `env:"SEND_TIMEOUT" envDefault:"30s"`
	WelcomeEmail     bool          `env:"WELCOME_EMAIL" envDefault:"false"`

	CaptchaProvider string `env:"CAPTCHA_PROVIDER" envDefault:"none"`
	HCaptchaSecret  string `env:"HCAPTCHA_SECRET"`
	// SubscribeRate is the allowed subscribe/unsubscribe requests per minute per IP.
	SubscribeRate int `env:"SUBSCRIBE_RATE" envDefault:"10"`

	// Seeding configuration
	DoSeed        bool   `env:"DO_SEED" envDefault:"false"`
	AdminEmail    string `env:"ADMIN_EMAIL" envDefault:"admin@example.com"`
	AdminPassword string `env:"ADMIN_PASSWORD" envDefault:"password123"`
}

// IsDevelopment returns true if the application is running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ServerAddr returns the full server address in host:port format.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// UseRedisCache returns true if Redis caching is configured.
func (c Config) UseRedisCache() bool {
	return c.RedisURL != ""
}

// UseSMTP returns true if an SMTP relay is configured.
func (c Config) UseSMTP() bool {
	return c.SMTPHost != ""
}

// LoadDotEnv loads variables from the given .env files (default ".env")
// without overriding variables already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// Load parses environment variables and returns a Config struct.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.DBType = strings.ToLower(cfg.DBType)
	cfg.CaptchaProvider = strings.ToLower(cfg.CaptchaProvider)
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Warn about low-entropy secrets
	if !hasMinimumEntropy(cfg.JWTSecret) {
		slog.Warn(EnvPrefix + "JWT_SECRET has low character diversity; " +
			"consider generating a random secret with: openssl rand -base64 32")
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.JWTSecret) < MinJWTSecretLength {
		return fmt.Errorf("%sJWT_SECRET must be at least %d bytes long, got %d bytes; "+
			"generate a secure secret with: openssl rand -base64 32",
			EnvPrefix, MinJWTSecretLength, len(c.JWTSecret))
	}
	if slices.Contains(knownWeakSecrets, c.JWTSecret) {
		return fmt.Errorf("%sJWT_SECRET is a known default value and must not be used", EnvPrefix)
	}
	if !slices.Contains(dbTypes, c.DBType) {
		return fmt.Errorf("%sDB_TYPE must be one of %s, got %q", EnvPrefix, strings.Join(dbTypes, ", "), c.DBType)
	}
	if (c.DBType == "postgres" || c.DBType == "mysql") && c.DBDSN == "" {
		return fmt.Errorf("%sDB_DSN is required for %s", EnvPrefix, c.DBType)
	}
	if !slices.Contains(captchaProviders, c.CaptchaProvider) {
		return fmt.Errorf("%sCAPTCHA_PROVIDER must be one of %s, got %q",
			EnvPrefix, strings.Join(captchaProviders, ", "), c.CaptchaProvider)
	}
	if c.CaptchaProvider == "hcaptcha" && c.HCaptchaSecret == "" {
		return fmt.Errorf("%sHCAPTCHA_SECRET is required for the hcaptcha provider", EnvPrefix)
	}
	if c.BroadcastWorkers < 1 {
		return fmt.Errorf("%sBROADCAST_WORKERS must be positive", EnvPrefix)
	}
	if c.SendTimeout <= 0 || c.TokenTTL <= 0 {
		return fmt.Errorf("%sSEND_TIMEOUT and %sTOKEN_TTL must be positive", EnvPrefix, EnvPrefix)
	}
	if c.SubscribeRate < 1 {
		return fmt.Errorf("%sSUBSCRIBE_RATE must be positive", EnvPrefix)
	}
	return nil
}

// hasMinimumEntropy checks that a secret contains at least 3 character classes
// (lowercase, uppercase, digits, special characters).
func hasMinimumEntropy(s string) bool {
	charTypes := 0
	if strings.ContainsAny(s, "abcdefghijklmnopqrstuvwxyz") {
		charTypes++
	}
	if strings.ContainsAny(s, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		charTypes++
	}
	if strings.ContainsAny(s, "0123456789") {
		charTypes++
	}
	if strings.ContainsAny(s, "!@#$%^&*()-_=+[]{}|;:,.<>?/~`'\"\\") {
		charTypes++
	}
	return charTypes >= 3
}
