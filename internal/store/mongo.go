// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/olegiv/newsletter-go/internal/model"
)

// DefaultMongoDatabase is used when the configuration names no database.
const DefaultMongoDatabase = "newsletter"

// openMongo connects to MongoDB, verifies the server and ensures the indexes
// that back the uniqueness and ordering guarantees.
func openMongo(ctx context.Context, cfg Config) (Backend, error) {
	if cfg.MongoURI == "" {
		return nil, fmt.Errorf("store: mongodb requires a connection URI")
	}
	dbName := cfg.MongoDatabase
	if dbName == "" {
		dbName = DefaultMongoDatabase
	}

	opts := options.Client().
		ApplyURI(cfg.MongoURI).
		SetServerSelectionTimeout(cfg.ConnectTimeout).
		SetMaxPoolSize(uint64(max(cfg.Pool.MaxOpenConns, 1)))

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, classifyMongo("connect", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, wrapErr("ping", ErrUnavailable, err)
	}

	b := newMongoBackend(client, client.Database(dbName))
	if err := b.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, err
	}
	return b, nil
}

type mongoBackend struct {
	client        *mongo.Client
	db            *mongo.Database
	users         *mongoRepository[model.User]
	newsletters   *mongoRepository[model.Newsletter]
	subscriptions *mongoRepository[model.Subscription]
}

func newMongoBackend(client *mongo.Client, db *mongo.Database) *mongoBackend {
	return &mongoBackend{
		client:        client,
		db:            db,
		users:         &mongoRepository[model.User]{coll: db.Collection(usersTable), schema: userSchema},
		newsletters:   &mongoRepository[model.Newsletter]{coll: db.Collection(newslettersTable), schema: newsletterSchema},
		subscriptions: &mongoRepository[model.Subscription]{coll: db.Collection(subscriptionsTable), schema: subscriptionSchema},
	}
}

func (b *mongoBackend) Engine() string { return EngineMongoDB }
func (b *mongoBackend) Users() Repository[model.User] { return b.users }
func (b *mongoBackend) Newsletters() Repository[model.Newsletter] { return b.newsletters }
func (b *mongoBackend) Subscriptions() Repository[model.Subscription] { return b.subscriptions }

func (b *mongoBackend) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx, readpref.Primary()); err != nil {
		return wrapErr("ping", ErrUnavailable, err)
	}
	return nil
}

func (b *mongoBackend) Close(ctx context.Context) error {
	return b.client.Disconnect(ctx)
}

func (b *mongoBackend) ensureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		usersTable: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		newslettersTable: {
			{Keys: bson.D{{Key: "slug", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
			{Keys: bson.D{{Key: "published", Value: 1}, {Key: "published_at", Value: -1}}},
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
		subscriptionsTable: {
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "is_active", Value: 1}, {Key: "subscribed_at", Value: -1}}},
		},
	}

	for coll, models := range indexes {
		if _, err := b.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return classifyMongo("create indexes on "+coll, err)
		}
	}
	return nil
}

func classifyMongo(op string, err error) error {
	switch {
	case mongo.IsDuplicateKeyError(err):
		return wrapErr(op, ErrConflict, err)
	case mongo.IsNetworkError(err), mongo.IsTimeout(err), errors.Is(err, mongo.ErrClientDisconnected):
		return wrapErr(op, ErrUnavailable, err)
	default:
		return wrapErr(op, nil, err)
	}
}

// mongoRepository implements Repository[T] on one collection. The native
// ObjectID identity is exposed as its hex string; entities carry no _id field
// of their own, so engine metadata never reaches callers.
type mongoRepository[T any] struct {
	coll   *mongo.Collection
	schema schema[T]
}

func (r *mongoRepository[T]) op(verb string) string {
	return verb + " " + r.schema.name
}

// document encodes v; the identity is not part of it.
func (r *mongoRepository[T]) document(v *T) (bson.D, error) {
	raw, err := bson.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("store: encode %s: %w", r.schema.name, err)
	}
	var doc bson.D
	if err := bson.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("store: encode %s: %w", r.schema.name, err)
	}
	return doc, nil
}

func (r *mongoRepository[T]) decode(raw bson.Raw) (T, error) {
	var v T
	if err := bson.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("store: decode %s: %w", r.schema.name, err)
	}
	if oid, ok := raw.Lookup("_id").ObjectIDOK(); ok {
		*r.schema.id(&v) = oid.Hex()
	}
	return v, nil
}

// filter renders the conditions; an "id" condition becomes an _id match and
// reports false when the id cannot be a valid ObjectID.
func (r *mongoRepository[T]) filter(conds []Cond) (bson.D, bool, error) {
	f := bson.D{}
	for _, c := range conds {
		if !r.schema.hasColumn(c.Field) {
			return nil, false, fmt.Errorf("store: %s: unknown field %q", r.schema.name, c.Field)
		}
		if c.Field == "id" {
			s, _ := c.Value.(string)
			oid, err := primitive.ObjectIDFromHex(s)
			if err != nil {
				return nil, false, nil
			}
			f = append(f, bson.E{Key: "_id", Value: oid})
			continue
		}
		f = append(f, bson.E{Key: c.Field, Value: c.Value})
	}
	return f, true, nil
}

func (r *mongoRepository[T]) sort(q Query) (bson.D, error) {
	if q.Sort == "" {
		return nil, nil
	}
	if !r.schema.hasColumn(q.Sort) {
		return nil, fmt.Errorf("store: %s: unknown sort field %q", r.schema.name, q.Sort)
	}
	dir := 1
	if q.Desc {
		dir = -1
	}
	return bson.D{{Key: q.Sort, Value: dir}}, nil
}

func (r *mongoRepository[T]) Insert(ctx context.Context, v *T) error {
	doc, err := r.document(v)
	if err != nil {
		return err
	}
	oid := primitive.NewObjectID()
	doc = append(bson.D{{Key: "_id", Value: oid}}, doc...)

	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return classifyMongo(r.op("insert"), err)
	}
	*r.schema.id(v) = oid.Hex()
	return nil
}

func (r *mongoRepository[T]) FindByID(ctx context.Context, id string) (*T, error) {
	return r.FindOne(ctx, Query{Where: []Cond{Eq("id", id)}})
}

func (r *mongoRepository[T]) FindOne(ctx context.Context, q Query) (*T, error) {
	f, ok, err := r.filter(q.Where)
	if err != nil || !ok {
		return nil, err
	}
	sort, err := r.sort(q)
	if err != nil {
		return nil, err
	}

	opts := options.FindOne()
	if sort != nil {
		opts.SetSort(sort)
	}
	raw, err := r.coll.FindOne(ctx, f, opts).Raw()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, classifyMongo(r.op("find"), err)
	}

	v, err := r.decode(raw)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *mongoRepository[T]) Find(ctx context.Context, q Query) ([]T, error) {
	items := []T{}
	f, ok, err := r.filter(q.Where)
	if err != nil {
		return nil, err
	}
	if !ok {
		return items, nil
	}
	sort, err := r.sort(q)
	if err != nil {
		return nil, err
	}

	opts := options.Find()
	if sort != nil {
		opts.SetSort(sort)
	}
	cur, err := r.coll.Find(ctx, f, opts)
	if err != nil {
		return nil, classifyMongo(r.op("find"), err)
	}
	defer func() { _ = cur.Close(ctx) }()

	for cur.Next(ctx) {
		v, err := r.decode(cur.Current)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	if err := cur.Err(); err != nil {
		return nil, classifyMongo(r.op("find"), err)
	}
	return items, nil
}

func (r *mongoRepository[T]) Update(ctx context.Context, v *T) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(*r.schema.id(v))
	if err != nil {
		return false, nil
	}
	doc, err := r.document(v)
	if err != nil {
		return false, err
	}

	res, err := r.coll.ReplaceOne(ctx, bson.D{{Key: "_id", Value: oid}}, doc)
	if err != nil {
		return false, classifyMongo(r.op("update"), err)
	}
	return res.MatchedCount > 0, nil
}

func (r *mongoRepository[T]) Delete(ctx context.Context, id string) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return false, nil
	}
	res, err := r.coll.DeleteOne(ctx, bson.D{{Key: "_id", Value: oid}})
	if err != nil {
		return false, classifyMongo(r.op("delete"), err)
	}
	return res.DeletedCount > 0, nil
}
