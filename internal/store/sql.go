// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pressly/goose/v3"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/olegiv/newsletter-go/internal/model"
)

// dialect captures the differences between the relational engines.
type dialect struct {
	name  string
	goose goose.Dialect
	// numbered placeholders ($1, $2, ...) instead of ?
	numbered bool
}

var (
	sqliteDialect   = dialect{name: EngineSQLite, goose: goose.DialectSQLite3}
	postgresDialect = dialect{name: EnginePostgres, goose: goose.DialectPostgres, numbered: true}
	mysqlDialect    = dialect{name: EngineMySQL, goose: goose.DialectMySQL}
)

// rebind rewrites ? placeholders for dialects that number them.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// classify maps a driver error onto the store taxonomy.
func (d dialect) classify(op string, err error) error {
	if isUniqueViolation(err) {
		return wrapErr(op, ErrConflict, err)
	}
	if isConnectionError(err) {
		return wrapErr(op, ErrUnavailable, err)
	}
	return wrapErr(op, nil, err)
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		return se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1062 // ER_DUP_ENTRY
	}
	return false
}

func isConnectionError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr)
}

// sqlBackend serves all three repositories from one *sql.DB.
type sqlBackend struct {
	db            *sql.DB
	dialect       dialect
	users         *sqlRepository[model.User]
	newsletters   *sqlRepository[model.Newsletter]
	subscriptions *sqlRepository[model.Subscription]
}

func newSQLBackend(db *sql.DB, d dialect) *sqlBackend {
	return &sqlBackend{
		db:            db,
		dialect:       d,
		users:         &sqlRepository[model.User]{db: db, dialect: d, schema: userSchema},
		newsletters:   &sqlRepository[model.Newsletter]{db: db, dialect: d, schema: newsletterSchema},
		subscriptions: &sqlRepository[model.Subscription]{db: db, dialect: d, schema: subscriptionSchema},
	}
}

func (b *sqlBackend) Engine() string { return b.dialect.name }
func (b *sqlBackend) Users() Repository[model.User] { return b.users }
func (b *sqlBackend) Newsletters() Repository[model.Newsletter] { return b.newsletters }
func (b *sqlBackend) Subscriptions() Repository[model.Subscription] { return b.subscriptions }
func (b *sqlBackend) Close(context.Context) error { return b.db.Close() }

func (b *sqlBackend) Ping(ctx context.Context) error {
	if err := b.db.PingContext(ctx); err != nil {
		return wrapErr("ping", ErrUnavailable, err)
	}
	return nil
}

// sqlRepository implements Repository[T] with plain SQL built from a schema.
// Identities are UUIDv4 strings.
type sqlRepository[T any] struct {
	db      *sql.DB
	dialect dialect
	schema  schema[T]
}

func (r *sqlRepository[T]) op(verb string) string {
	return verb + " " + r.schema.name
}

func (r *sqlRepository[T]) selectList() string {
	return "id, " + strings.Join(r.schema.columns, ", ")
}

func (r *sqlRepository[T]) Insert(ctx context.Context, v *T) error {
	id := uuid.NewString()
	cols := append([]string{"id"}, r.schema.columns...)
	args := append([]any{id}, r.schema.values(v)...)

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		r.schema.name, strings.Join(cols, ", "), placeholders(len(cols)))
	if _, err := r.db.ExecContext(ctx, r.dialect.rebind(query), args...); err != nil {
		return r.dialect.classify(r.op("insert"), err)
	}

	*r.schema.id(v) = id
	return nil
}

func (r *sqlRepository[T]) FindByID(ctx context.Context, id string) (*T, error) {
	if id == "" {
		return nil, nil
	}
	return r.FindOne(ctx, Query{Where: []Cond{Eq("id", id)}})
}

func (r *sqlRepository[T]) FindOne(ctx context.Context, q Query) (*T, error) {
	query, args, err := r.buildSelect(q)
	if err != nil {
		return nil, err
	}
	query += " LIMIT 1"

	var v T
	row := r.db.QueryRowContext(ctx, r.dialect.rebind(query), args...)
	if err := row.Scan(r.scanTargets(&v)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, r.dialect.classify(r.op("find"), err)
	}
	return &v, nil
}

func (r *sqlRepository[T]) Find(ctx context.Context, q Query) ([]T, error) {
	query, args, err := r.buildSelect(q)
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, r.dialect.rebind(query), args...)
	if err != nil {
		return nil, r.dialect.classify(r.op("find"), err)
	}
	defer func() { _ = rows.Close() }()

	items := []T{}
	for rows.Next() {
		var v T
		if err := rows.Scan(r.scanTargets(&v)...); err != nil {
			return nil, r.dialect.classify(r.op("scan"), err)
		}
		items = append(items, v)
	}
	if err := rows.Err(); err != nil {
		return nil, r.dialect.classify(r.op("find"), err)
	}
	return items, nil
}

func (r *sqlRepository[T]) Update(ctx context.Context, v *T) (bool, error) {
	sets := make([]string, len(r.schema.columns))
	for i, c := range r.schema.columns {
		sets[i] = c + " = ?"
	}
	args := append(r.schema.values(v), *r.schema.id(v))

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ?", r.schema.name, strings.Join(sets, ", "))
	res, err := r.db.ExecContext(ctx, r.dialect.rebind(query), args...)
	if err != nil {
		return false, r.dialect.classify(r.op("update"), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, r.dialect.classify(r.op("update"), err)
	}
	return n > 0, nil
}

func (r *sqlRepository[T]) Delete(ctx context.Context, id string) (bool, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", r.schema.name)
	res, err := r.db.ExecContext(ctx, r.dialect.rebind(query), id)
	if err != nil {
		return false, r.dialect.classify(r.op("delete"), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, r.dialect.classify(r.op("delete"), err)
	}
	return n > 0, nil
}

func (r *sqlRepository[T]) scanTargets(v *T) []any {
	return append([]any{r.schema.id(v)}, r.schema.targets(v)...)
}

// buildSelect renders q against the schema. Field names are checked against
// the schema columns since they are interpolated into the statement.
func (r *sqlRepository[T]) buildSelect(q Query) (string, []any, error) {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(r.selectList())
	b.WriteString(" FROM ")
	b.WriteString(r.schema.name)

	args := make([]any, 0, len(q.Where))
	for i, c := range q.Where {
		if !r.schema.hasColumn(c.Field) {
			return "", nil, fmt.Errorf("store: %s: unknown field %q", r.schema.name, c.Field)
		}
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		b.WriteString(c.Field)
		b.WriteString(" = ?")
		args = append(args, c.Value)
	}

	if q.Sort != "" {
		if !r.schema.hasColumn(q.Sort) {
			return "", nil, fmt.Errorf("store: %s: unknown sort field %q", r.schema.name, q.Sort)
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(q.Sort)
		if q.Desc {
			b.WriteString(" DESC")
		}
	}

	return b.String(), args, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
