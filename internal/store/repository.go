// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package store implements the newsletter database adapter: one operation set
// that behaves identically on a document store (MongoDB) and on relational
// stores (SQLite, PostgreSQL, MySQL).
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/olegiv/newsletter-go/internal/model"
)

// Supported engines.
const (
	EngineSQLite   = "sqlite"
	EnginePostgres = "postgres"
	EngineMySQL    = "mysql"
	EngineMongoDB  = "mongodb"
)

// Cond is an equality condition on a storage field.
type Cond struct {
	Field string
	Value any
}

// Eq returns the condition field == value.
func Eq(field string, value any) Cond {
	return Cond{Field: field, Value: value}
}

// Query selects records by ANDed equality conditions with an optional sort.
type Query struct {
	Where []Cond
	Sort  string
	Desc  bool
}

// Repository is the engine-neutral persistence contract for one entity type.
// Lookups report absence as (nil, nil); Update and Delete report it as false.
type Repository[T any] interface {
	// Insert assigns a new identity to v and persists it.
	Insert(ctx context.Context, v *T) error
	FindByID(ctx context.Context, id string) (*T, error)
	FindOne(ctx context.Context, q Query) (*T, error)
	Find(ctx context.Context, q Query) ([]T, error)
	// Update replaces the stored record with v, matched by its identity.
	Update(ctx context.Context, v *T) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
}

// Backend bundles the repositories of one engine and owns its connection.
type Backend interface {
	Engine() string
	Users() Repository[model.User]
	Newsletters() Repository[model.Newsletter]
	Subscriptions() Repository[model.Subscription]
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Config selects and configures the storage engine.
type Config struct {
	// Type is one of sqlite, postgres, mysql or mongodb.
	Type string
	// Path is the SQLite database file.
	Path string
	// DSN is the PostgreSQL or MySQL connection string.
	DSN string

	MongoURI      string
	MongoDatabase string

	Pool DBConfig
	// ConnectTimeout bounds the initial connect and ping.
	ConnectTimeout time.Duration
}

// Open connects to the configured engine, prepares its schema and returns the
// backend. It is the only place where the engine is chosen.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 10 * time.Second
	}
	if cfg.Pool == (DBConfig{}) {
		cfg.Pool = DefaultDBConfig()
	}

	switch cfg.Type {
	case "", EngineSQLite:
		return openSQLite(ctx, cfg)
	case EnginePostgres:
		return openPostgres(ctx, cfg)
	case EngineMySQL:
		return openMySQL(ctx, cfg)
	case EngineMongoDB:
		return openMongo(ctx, cfg)
	default:
		return nil, fmt.Errorf("store: unsupported database type %q", cfg.Type)
	}
}
