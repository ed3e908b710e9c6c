package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/olegiv/newsletter-go/internal/model"
)

// engines returns the backends the contract suite runs against. SQLite always
// runs; the others run when their connection string is set.
func engines(t *testing.T) map[string]Config {
	t.Helper()

	cfgs := map[string]Config{
		EngineSQLite: {Type: EngineSQLite, Path: filepath.Join(t.TempDir(), "newsletter-test.db")},
	}
	if dsn := os.Getenv("NEWSLETTER_TEST_POSTGRES_DSN"); dsn != "" {
		cfgs[EnginePostgres] = Config{Type: EnginePostgres, DSN: dsn}
	}
	if dsn := os.Getenv("NEWSLETTER_TEST_MYSQL_DSN"); dsn != "" {
		cfgs[EngineMySQL] = Config{Type: EngineMySQL, DSN: dsn}
	}
	if uri := os.Getenv("NEWSLETTER_TEST_MONGODB_URI"); uri != "" {
		cfgs[EngineMongoDB] = Config{Type: EngineMongoDB, MongoURI: uri, MongoDatabase: "newsletter_test"}
	}
	return cfgs
}

// testAdapter opens a clean backend with a deterministic clock that advances
// one second per call.
func testAdapter(t *testing.T, cfg Config) *Adapter {
	t.Helper()
	ctx := context.Background()

	b, err := Open(ctx, cfg)
	require.NoError(t, err, "Open(%s)", cfg.Type)
	truncate(t, b)
	t.Cleanup(func() { _ = b.Close(context.Background()) })

	a := NewAdapter(b)
	var mu sync.Mutex
	clock := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	a.SetClock(func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		clock = clock.Add(time.Second)
		return clock
	})
	return a
}

func truncate(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	switch be := b.(type) {
	case *sqlBackend:
		for _, table := range []string{subscriptionsTable, newslettersTable, usersTable} {
			_, err := be.db.ExecContext(ctx, "DELETE FROM "+table)
			require.NoError(t, err)
		}
	case *mongoBackend:
		for _, coll := range []string{subscriptionsTable, newslettersTable, usersTable} {
			_, err := be.db.Collection(coll).DeleteMany(ctx, bson.D{})
			require.NoError(t, err)
		}
	}
}

func forEachEngine(t *testing.T, fn func(t *testing.T, a *Adapter)) {
	for name, cfg := range engines(t) {
		t.Run(name, func(t *testing.T) {
			fn(t, testAdapter(t, cfg))
		})
	}
}

func createNewsletter(t *testing.T, a *Adapter, title string, published bool) *model.Newsletter {
	t.Helper()
	n, err := a.CreateNewsletter(context.Background(), model.NewsletterInput{
		Title:     title,
		Content:   "<p>" + title + "</p>",
		Excerpt:   "About " + title,
		Published: published,
	})
	require.NoError(t, err)
	return n
}

func TestOpenUnsupported(t *testing.T) {
	_, err := Open(context.Background(), Config{Type: "oracle"})
	assert.Error(t, err)
}

func TestUsers(t *testing.T) {
	forEachEngine(t, func(t *testing.T, a *Adapter) {
		ctx := context.Background()

		u, err := a.CreateUser(ctx, model.User{
			Name:         "Test User",
			Email:        "  Test@Example.com ",
			PasswordHash: "hashed-password",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, u.ID)
		assert.Equal(t, "test@example.com", u.Email)
		assert.Equal(t, model.RoleUser, u.Role)
		assert.True(t, u.Active)
		assert.Empty(t, u.PasswordHash, "created user must not expose the hash")

		byEmail, err := a.FindUserByEmail(ctx, "TEST@example.com")
		require.NoError(t, err)
		require.NotNil(t, byEmail)
		assert.Equal(t, u.ID, byEmail.ID)
		assert.Equal(t, "hashed-password", byEmail.PasswordHash)

		byID, err := a.FindUserByID(ctx, u.ID)
		require.NoError(t, err)
		require.NotNil(t, byID)
		assert.Empty(t, byID.PasswordHash)
		assert.True(t, byID.CreatedAt.Equal(u.CreatedAt))

		missing, err := a.FindUserByEmail(ctx, "nobody@example.com")
		assert.NoError(t, err)
		assert.Nil(t, missing)

		_, err = a.CreateUser(ctx, model.User{Name: "Dup", Email: "test@example.com", PasswordHash: "x"})
		assert.ErrorIs(t, err, ErrConflict)

		_, err = a.CreateUser(ctx, model.User{Name: "X", Email: "bad"})
		ve, ok := model.AsValidationError(err)
		require.True(t, ok, "want validation error, got %v", err)
		assert.Contains(t, ve.Fields, "email")
		assert.Contains(t, ve.Fields, "name")
	})
}

func TestMalformedIDsAreNotFound(t *testing.T) {
	forEachEngine(t, func(t *testing.T, a *Adapter) {
		ctx := context.Background()
		for _, id := range []string{"", "nonexistent", "0123456789abcdef01234567", "not-an-object-id!"} {
			u, err := a.FindUserByID(ctx, id)
			assert.NoError(t, err, id)
			assert.Nil(t, u, id)

			n, err := a.FindNewsletterByIDForUpdate(ctx, id)
			assert.NoError(t, err, id)
			assert.Nil(t, n, id)

			updated, err := a.UpdateNewsletter(ctx, id, model.NewsletterPatch{})
			assert.NoError(t, err, id)
			assert.Nil(t, updated, id)

			ok, err := a.DeleteNewsletter(ctx, id)
			assert.NoError(t, err, id)
			assert.False(t, ok, id)
		}
	})
}

func TestNewsletterCreate(t *testing.T) {
	forEachEngine(t, func(t *testing.T, a *Adapter) {
		ctx := context.Background()

		draft := createNewsletter(t, a, "Hello World!", false)
		assert.Equal(t, "hello-world", draft.Slug)
		assert.Nil(t, draft.PublishedAt)

		live := createNewsletter(t, a, "Second Issue", true)
		require.NotNil(t, live.PublishedAt)

		_, err := a.CreateNewsletter(ctx, model.NewsletterInput{Title: "hello world", Content: "c", Excerpt: "e"})
		assert.ErrorIs(t, err, ErrConflict, "duplicate slug")

		_, err = a.CreateNewsletter(ctx, model.NewsletterInput{Title: "???", Content: "c", Excerpt: "e"})
		_, ok := model.AsValidationError(err)
		assert.True(t, ok, "title without slug characters: %v", err)

		// Drafts are hidden from the public lookup but visible to admins.
		got, err := a.FindNewsletterByID(ctx, draft.ID)
		assert.NoError(t, err)
		assert.Nil(t, got)

		got, err = a.FindNewsletterByIDForUpdate(ctx, draft.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, draft.ID, got.ID)

		got, err = a.FindNewsletterByID(ctx, live.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Second Issue", got.Title)
	})
}

func TestNewsletterOrdering(t *testing.T) {
	forEachEngine(t, func(t *testing.T, a *Adapter) {
		ctx := context.Background()

		first := createNewsletter(t, a, "First", false)
		second := createNewsletter(t, a, "Second", true)
		third := createNewsletter(t, a, "Third", true)

		// Publishing the oldest draft last makes it the newest publication.
		published := true
		_, err := a.UpdateNewsletter(ctx, first.ID, model.NewsletterPatch{Published: &published})
		require.NoError(t, err)

		pub, err := a.FindPublishedNewsletters(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{first.ID, third.ID, second.ID}, ids(pub))

		all, err := a.FindAllNewsletters(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{third.ID, second.ID, first.ID}, ids(all))
	})
}

func TestNewsletterUpdate(t *testing.T) {
	forEachEngine(t, func(t *testing.T, a *Adapter) {
		ctx := context.Background()
		n := createNewsletter(t, a, "Original Title", false)

		title := "Renamed Title"
		published := true
		updated, err := a.UpdateNewsletter(ctx, n.ID, model.NewsletterPatch{Title: &title, Published: &published})
		require.NoError(t, err)
		require.NotNil(t, updated)
		assert.Equal(t, "Renamed Title", updated.Title)
		assert.Equal(t, "original-title", updated.Slug, "slug must not change on update")
		require.NotNil(t, updated.PublishedAt)
		firstPublish := *updated.PublishedAt

		unpublished := false
		_, err = a.UpdateNewsletter(ctx, n.ID, model.NewsletterPatch{Published: &unpublished})
		require.NoError(t, err)
		again, err := a.UpdateNewsletter(ctx, n.ID, model.NewsletterPatch{Published: &published})
		require.NoError(t, err)
		require.NotNil(t, again.PublishedAt)
		assert.True(t, again.PublishedAt.Equal(firstPublish), "publishedAt is set only once")

		stored, err := a.FindNewsletterByIDForUpdate(ctx, n.ID)
		require.NoError(t, err)
		assert.Equal(t, "Renamed Title", stored.Title)
		assert.True(t, stored.PublishedAt.Equal(firstPublish))
		assert.True(t, stored.UpdatedAt.After(stored.CreatedAt))

		empty := ""
		_, err = a.UpdateNewsletter(ctx, n.ID, model.NewsletterPatch{Excerpt: &empty})
		_, ok := model.AsValidationError(err)
		assert.True(t, ok, "empty excerpt: %v", err)
	})
}

func TestNewsletterDelete(t *testing.T) {
	forEachEngine(t, func(t *testing.T, a *Adapter) {
		ctx := context.Background()
		n := createNewsletter(t, a, "Delete Me", true)

		ok, err := a.DeleteNewsletter(ctx, n.ID)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = a.DeleteNewsletter(ctx, n.ID)
		require.NoError(t, err)
		assert.False(t, ok, "second delete reports not-found")

		got, err := a.FindNewsletterByIDForUpdate(ctx, n.ID)
		assert.NoError(t, err)
		assert.Nil(t, got)
	})
}

func TestSubscriptions(t *testing.T) {
	forEachEngine(t, func(t *testing.T, a *Adapter) {
		ctx := context.Background()

		s, err := a.CreateSubscription(ctx, model.SubscriptionInput{Email: "Reader@Example.com"})
		require.NoError(t, err)
		assert.Equal(t, "reader@example.com", s.Email)
		assert.True(t, s.Active)
		assert.Equal(t, model.DefaultSubscriptionSource, s.Source)
		assert.Nil(t, s.UnsubscribedAt)

		_, err = a.CreateSubscription(ctx, model.SubscriptionInput{Email: "reader@example.com"})
		assert.ErrorIs(t, err, ErrConflict)

		_, err = a.CreateSubscription(ctx, model.SubscriptionInput{Email: "not-an-email"})
		_, ok := model.AsValidationError(err)
		assert.True(t, ok)

		found, err := a.FindSubscriptionByEmail(ctx, "READER@example.com")
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, s.ID, found.ID)

		off, err := a.UpdateSubscription(ctx, found, model.Deactivation(a.now()))
		require.NoError(t, err)
		assert.False(t, off.Active)
		require.NotNil(t, off.UnsubscribedAt)

		stored, err := a.FindSubscriptionByEmail(ctx, s.Email)
		require.NoError(t, err)
		assert.False(t, stored.Active)
		require.NotNil(t, stored.UnsubscribedAt)
		assert.True(t, stored.UnsubscribedAt.Equal(*off.UnsubscribedAt))

		on, err := a.UpdateSubscription(ctx, stored, model.Reactivation(a.now()))
		require.NoError(t, err)
		assert.True(t, on.Active)
		assert.Nil(t, on.UnsubscribedAt)
		assert.Equal(t, s.ID, on.ID, "reactivation reuses the row")

		ghost := *on
		ghost.ID = "0123456789abcdef01234567"
		_, err = a.UpdateSubscription(ctx, &ghost, model.Deactivation(a.now()))
		assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
	})
}

func TestFindActiveSubscriptions(t *testing.T) {
	forEachEngine(t, func(t *testing.T, a *Adapter) {
		ctx := context.Background()

		for _, email := range []string{"a@example.com", "b@example.com", "c@example.com"} {
			_, err := a.CreateSubscription(ctx, model.SubscriptionInput{Email: email})
			require.NoError(t, err)
		}
		b, err := a.FindSubscriptionByEmail(ctx, "b@example.com")
		require.NoError(t, err)
		_, err = a.UpdateSubscription(ctx, b, model.Deactivation(a.now()))
		require.NoError(t, err)

		active, err := a.FindActiveSubscriptions(ctx)
		require.NoError(t, err)
		require.Len(t, active, 2)
		assert.Equal(t, "c@example.com", active[0].Email)
		assert.Equal(t, "a@example.com", active[1].Email)
	})
}

func TestEntitiesExposeOnlyCanonicalID(t *testing.T) {
	forEachEngine(t, func(t *testing.T, a *Adapter) {
		n := createNewsletter(t, a, "Shape Check", true)
		got, err := a.FindNewsletterByID(context.Background(), n.ID)
		require.NoError(t, err)
		require.NotNil(t, got)

		raw, err := json.Marshal(got)
		require.NoError(t, err)
		var fields map[string]any
		require.NoError(t, json.Unmarshal(raw, &fields))

		assert.Equal(t, n.ID, fields["id"])
		for _, internal := range []string{"_id", "__v", "ID"} {
			assert.NotContains(t, fields, internal)
		}
	})
}

func TestPing(t *testing.T) {
	forEachEngine(t, func(t *testing.T, a *Adapter) {
		assert.NoError(t, a.Ping(context.Background()))
	})
}

func TestPingAfterClose(t *testing.T) {
	a := testAdapter(t, Config{Type: EngineSQLite, Path: filepath.Join(t.TempDir(), "closed.db")})
	require.NoError(t, a.Close(context.Background()))
	assert.ErrorIs(t, a.Ping(context.Background()), ErrUnavailable)
}

func TestSeed(t *testing.T) {
	a := testAdapter(t, Config{Type: EngineSQLite, Path: filepath.Join(t.TempDir(), "seed.db")})
	ctx := context.Background()

	opts := SeedOptions{Samples: true}
	require.NoError(t, Seed(ctx, a, opts))
	require.NoError(t, Seed(ctx, a, opts), "seeding twice must be a no-op")

	admin, err := a.FindUserByEmail(ctx, DefaultAdminEmail)
	require.NoError(t, err)
	require.NotNil(t, admin)
	assert.Equal(t, model.RoleAdmin, admin.Role)

	all, err := a.FindAllNewsletters(ctx)
	require.NoError(t, err)
	assert.Len(t, all, len(sampleNewsletters))

	pub, err := a.FindPublishedNewsletters(ctx)
	require.NoError(t, err)
	assert.Len(t, pub, 2)
	for _, n := range pub {
		assert.Contains(t, n.Content, "<h1>", "markdown is rendered to HTML")
	}
}

func TestRebind(t *testing.T) {
	got := postgresDialect.rebind("SELECT a FROM t WHERE b = ? AND c = ?")
	assert.Equal(t, "SELECT a FROM t WHERE b = $1 AND c = $2", got)
	assert.Equal(t, "x = ?", sqliteDialect.rebind("x = ?"))
}

func TestUnknownFieldRejected(t *testing.T) {
	a := testAdapter(t, Config{Type: EngineSQLite, Path: filepath.Join(t.TempDir(), "fields.db")})
	_, err := a.backend.Users().Find(context.Background(), Query{Where: []Cond{Eq("1=1; DROP TABLE users; --", 1)}})
	assert.Error(t, err)
}

func ids(ns []model.Newsletter) []string {
	out := make([]string, len(ns))
	for i, n := range ns {
		out[i] = n.ID
	}
	return out
}

func TestSQLitePragmasOnEveryConnection(t *testing.T) {
	ctx := context.Background()
	b, err := Open(ctx, Config{Type: EngineSQLite, Path: filepath.Join(t.TempDir(), "pragmas.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close(context.Background()) })

	be, ok := b.(*sqlBackend)
	require.True(t, ok)

	// Holding the connections forces the pool to open distinct ones.
	for i := 0; i < 3; i++ {
		conn, err := be.db.Conn(ctx)
		require.NoError(t, err)
		t.Cleanup(func() { _ = conn.Close() })

		var busy, fk int
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busy))
		require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk))
		assert.Equal(t, 5000, busy, "connection %d", i)
		assert.Equal(t, 1, fk, "connection %d", i)
	}
}

func TestSQLitePathWithQueryRejected(t *testing.T) {
	_, err := Open(context.Background(), Config{Type: EngineSQLite, Path: filepath.Join(t.TempDir(), "x.db?mode=ro")})
	assert.Error(t, err)
}
