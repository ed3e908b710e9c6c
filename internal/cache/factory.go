// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Config holds configuration for cache creation.
type Config struct {
	// RedisURL selects Redis when set; otherwise an in-memory cache is used.
	RedisURL string
	// Prefix is the Redis key prefix.
	Prefix     string
	DefaultTTL time.Duration
}

// New creates the configured cache. If Redis is configured but unreachable
// the server still starts, falling back to memory.
func New(ctx context.Context, cfg Config, logger *slog.Logger) Cache {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 5 * time.Minute
	}
	if cfg.RedisURL != "" {
		rc, err := NewRedisCache(ctx, RedisOptions{
			URL:        cfg.RedisURL,
			Prefix:     cfg.Prefix,
			DefaultTTL: cfg.DefaultTTL,
			PoolSize:   10,
		})
		if err == nil {
			logger.Info("using redis cache", "prefix", cfg.Prefix)
			return rc
		}
		logger.Warn("redis unavailable, falling back to memory cache", "error", err)
	}

	logger.Info("using memory cache", "ttl", cfg.DefaultTTL)
	return NewMemoryCache(cfg.DefaultTTL, time.Minute)
}

// GetJSON decodes a cached JSON value. It reports false on a miss or when
// the cached bytes cannot be decoded.
func GetJSON[T any](ctx context.Context, c Cache, key string) (T, bool) {
	var v T
	data, err := c.Get(ctx, key)
	if err != nil {
		return v, false
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, false
	}
	return v, true
}

// SetJSON stores v as JSON.
func SetJSON[T any](ctx context.Context, c Cache, key string, v T, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.Set(ctx, key, data, ttl)
}
