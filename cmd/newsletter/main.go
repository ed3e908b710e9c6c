// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/olegiv/newsletter-go/internal/auth"
	"github.com/olegiv/newsletter-go/internal/broadcast"
	"github.com/olegiv/newsletter-go/internal/cache"
	"github.com/olegiv/newsletter-go/internal/captcha"
	"github.com/olegiv/newsletter-go/internal/config"
	"github.com/olegiv/newsletter-go/internal/handler"
	"github.com/olegiv/newsletter-go/internal/logging"
	"github.com/olegiv/newsletter-go/internal/mail"
	"github.com/olegiv/newsletter-go/internal/metrics"
	"github.com/olegiv/newsletter-go/internal/service"
	"github.com/olegiv/newsletter-go/internal/store"
	"github.com/olegiv/newsletter-go/internal/version"
)

// Version information - injected at build time via ldflags
var (
	appVersion   = "dev"
	appGitCommit = "unknown"
	appBuildTime = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	showHelp := flag.Bool("help", false, "Show help information")
	flag.BoolVar(showHelp, "h", false, "Show help information (shorthand)")
	seed := flag.Bool("seed", false, "Seed the admin user and sample newsletters, then continue serving")

	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "newsletter - newsletter publishing and broadcast API\n\n")
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		_, _ = fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		_, _ = fmt.Fprintf(os.Stderr, "  NEWSLETTER_JWT_SECRET      Token signing key (required, min 32 bytes)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  NEWSLETTER_DB_TYPE         sqlite|postgres|mysql|mongodb (default: sqlite)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  NEWSLETTER_DB_PATH         SQLite database path (default: ./data/newsletter.db)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  NEWSLETTER_DB_DSN          PostgreSQL or MySQL connection string\n")
		_, _ = fmt.Fprintf(os.Stderr, "  NEWSLETTER_MONGODB_URI     MongoDB connection URI\n")
		_, _ = fmt.Fprintf(os.Stderr, "  NEWSLETTER_SERVER_PORT     Server port (default: 5000)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  NEWSLETTER_ENV             Environment: development|production (default: development)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  NEWSLETTER_SMTP_HOST       SMTP relay; messages are only logged when unset\n")
		_, _ = fmt.Fprintf(os.Stderr, "  NEWSLETTER_REDIS_URL       Redis URL for the newsletter cache (optional)\n")
	}

	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}

	versionInfo := version.Info{
		Version:   appVersion,
		GitCommit: appGitCommit,
		BuildTime: appBuildTime,
	}
	if *showVersion {
		_, _ = fmt.Println(versionInfo.String())
		os.Exit(0)
	}

	if err := run(versionInfo, *seed); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run(versionInfo version.Info, forceSeed bool) error {
	// Load .env files if present (development)
	if err := config.LoadDotEnv(); err != nil {
		return fmt.Errorf("loading .env: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.New(logging.Options{
		Development: cfg.IsDevelopment(),
		Level:       logging.ParseLevel(cfg.LogLevel),
		Writer:      os.Stdout,
	})
	slog.SetDefault(logger)

	ctx := context.Background()

	if cfg.DBType == store.EngineSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	slog.Info("initializing database", "type", cfg.DBType)
	backend, err := store.Open(ctx, store.Config{
		Type:          cfg.DBType,
		Path:          cfg.DBPath,
		DSN:           cfg.DBDSN,
		MongoURI:      cfg.MongoURI,
		MongoDatabase: cfg.MongoDatabase,
		Pool: store.DBConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: 5 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
		},
		ConnectTimeout: cfg.DBConnectTimeout,
	})
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	db := store.NewAdapter(backend)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.Close(closeCtx); err != nil {
			slog.Error("error closing database connection", "error", err)
		}
	}()
	slog.Info("database ready", "engine", db.Engine())

	if cfg.DoSeed || forceSeed {
		err = store.Seed(ctx, db, store.SeedOptions{
			AdminEmail:    cfg.AdminEmail,
			AdminPassword: cfg.AdminPassword,
			Samples:       true,
		})
	} else {
		err = store.EnsureAdmin(ctx, db, cfg.AdminEmail, cfg.AdminPassword)
	}
	if err != nil {
		return fmt.Errorf("seeding database: %w", err)
	}

	newsletterCache := cache.New(ctx, cache.Config{
		RedisURL:   cfg.RedisURL,
		Prefix:     cfg.CachePrefix,
		DefaultTTL: cfg.CacheTTL,
	}, logger)
	defer func() { _ = newsletterCache.Close() }()

	extraChecks := map[string]handler.Pinger{}
	if rc, ok := newsletterCache.(*cache.RedisCache); ok {
		extraChecks["cache"] = rc
	}

	var sender mail.Sender
	if cfg.UseSMTP() {
		smtpSender, err := mail.NewSMTPSender(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.FromEmail,
			FromName: cfg.FromName,
		})
		if err != nil {
			return fmt.Errorf("configuring smtp: %w", err)
		}
		sender = smtpSender
		slog.Info("mail transport configured", "transport", "smtp", "host", cfg.SMTPHost, "port", cfg.SMTPPort)
	} else {
		sender = mail.NewLogSender(logger)
		slog.Warn("SMTP not configured, e-mails will only be logged")
	}

	captchaVerifier, err := captcha.New(cfg.CaptchaProvider, cfg.HCaptchaSecret)
	if err != nil {
		return fmt.Errorf("configuring captcha: %w", err)
	}

	links := mail.NewLinkSigner(cfg.BaseURL, cfg.JWTSecret)
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)
	m := metrics.New()

	newsletterService := service.NewNewsletterService(db, newsletterCache, cfg.CacheTTL, logger)
	subscriptionService := service.NewSubscriptionService(db, service.SubscriptionOptions{
		Sender:  sender,
		Links:   links,
		Welcome: cfg.WelcomeEmail,
	}, logger)
	dispatcher := broadcast.NewDispatcher(db, sender, links, m, logger, broadcast.Config{
		Workers:     cfg.BroadcastWorkers,
		SendTimeout: cfg.SendTimeout,
	})

	router := handler.NewRouter(handler.RouterConfig{
		Logger:        logger,
		Development:   cfg.IsDevelopment(),
		CORSOrigins:   cfg.CORSOrigins,
		SubscribeRate: cfg.SubscribeRate,
		Tokens:        tokens,
		Metrics:       m,
		Newsletters:   handler.NewNewslettersHandler(newsletterService, dispatcher, logger),
		Subscriptions: handler.NewSubscriptionsHandler(subscriptionService, captchaVerifier, links, logger),
		Auth:          handler.NewAuthHandler(db, tokens, logger),
		Health:        handler.NewHealthHandler(db, db.Engine(), versionInfo, extraChecks),
	})

	// Broadcasts are not bounded by WriteTimeout so large lists can finish.
	srv := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB max header size
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", cfg.ServerAddr(), "env", cfg.Env, "version", versionInfo.Version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		return fmt.Errorf("server: %w", err)
	}

	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped")
	return nil
}
