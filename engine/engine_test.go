package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferro-orm/ferro"
	"github.com/ferro-orm/ferro/dialect"
)

const userSchema = `{
	"properties": {
		"id": {"type": "integer", "primary_key": true},
		"name": {"type": "string"},
		"email": {"type": "string", "unique": true},
		"age": {"type": "integer", "index": true},
		"bio": {"anyOf": [{"type": "string"}, {"type": "null"}]}
	},
	"required": ["id", "name", "email", "age"]
}`

const postSchema = `{
	"properties": {
		"id": {"type": "integer", "primary_key": true},
		"title": {"type": "string"},
		"author_id": {"type": "integer", "foreign_key": {"to_table": "user"}}
	},
	"required": ["id", "title", "author_id"]
}`

const tagSchema = `{
	"properties": {
		"id": {"type": "integer", "primary_key": true},
		"label": {"type": "string"}
	},
	"required": ["id", "label"]
}`

// newTestEngine connects a fresh engine to a private in-memory database
// with the user/post/tag schemas migrated.
func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	e := New(opts...)
	require.NoError(t, e.RegisterSchema("User", []byte(userSchema)))
	require.NoError(t, e.RegisterSchema("Post", []byte(postSchema)))
	require.NoError(t, e.RegisterSchema("Tag", []byte(tagSchema)))
	require.NoError(t, e.RegisterJoinTable(LinkFor("Post", "Tags", "Tag"), "Post", "Tag"))
	require.NoError(t, e.Connect(context.Background(), "sqlite::memory:", WithAutoMigrate()))
	t.Cleanup(func() { e.Close() })
	return e
}

func saveUser(t *testing.T, e *Engine, record string) any {
	t.Helper()
	pk, err := e.SaveRecord(context.Background(), "User", []byte(record), "")
	require.NoError(t, err)
	return pk
}

func TestConnectAndMigrate(t *testing.T) {
	e := newTestEngine(t)
	assert.Equal(t, dialect.SQLite, e.Dialect())

	// Migration is idempotent.
	require.NoError(t, e.CreateTables(context.Background()))
}

func TestConnectFailure(t *testing.T) {
	e := New()
	err := e.Connect(context.Background(), "nonsense-url")
	require.Error(t, err)
	assert.True(t, ferro.IsConnectionError(err))
	assert.Contains(t, err.Error(), "DB Connection failed")

	err = e.Connect(context.Background(), "oracle:whatever")
	require.Error(t, err)
	assert.True(t, ferro.IsConnectionError(err))
}

func TestOperationsBeforeConnect(t *testing.T) {
	e := New()
	require.NoError(t, e.RegisterSchema("User", []byte(userSchema)))

	_, err := e.SaveRecord(context.Background(), "User", []byte(`{"name": "a"}`), "")
	require.ErrorIs(t, err, ferro.ErrNotInitialized)
	assert.Contains(t, err.Error(), "Engine not initialized")

	err = e.CreateTables(context.Background())
	require.ErrorIs(t, err, ferro.ErrNotInitialized)

	_, err = e.FetchAll(context.Background(), "User", "")
	require.ErrorIs(t, err, ferro.ErrNotInitialized)

	_, err = e.BeginTransaction(context.Background())
	require.ErrorIs(t, err, ferro.ErrNotInitialized)
}

func TestUnknownModel(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.SaveRecord(context.Background(), "Ghost", []byte(`{}`), "")
	require.Error(t, err)
	assert.True(t, ferro.IsSchemaError(err))
}

func TestSplitURL(t *testing.T) {
	tests := []struct {
		url         string
		wantDialect string
		wantDriver  string
		wantDSN     string
	}{
		{"sqlite:app.db", dialect.SQLite, "sqlite", "file:app.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)"},
		{"postgres://u:p@host/db", dialect.Postgres, "postgres", "postgres://u:p@host/db"},
		{"postgresql://u:p@host/db", dialect.Postgres, "postgres", "postgres://u:p@host/db"},
		{"postgres:host=localhost dbname=app", dialect.Postgres, "postgres", "host=localhost dbname=app"},
		{"mysql:u:p@tcp(host:3306)/db", dialect.MySQL, "mysql", "u:p@tcp(host:3306)/db"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			dialectName, driverName, dsn, err := splitURL(tt.url)
			require.NoError(t, err)
			assert.Equal(t, tt.wantDialect, dialectName)
			assert.Equal(t, tt.wantDriver, driverName)
			assert.Equal(t, tt.wantDSN, dsn)
		})
	}

	t.Run("memory_urls_get_unique_names", func(t *testing.T) {
		_, _, dsn1, err := splitURL("sqlite::memory:")
		require.NoError(t, err)
		_, _, dsn2, err := splitURL("sqlite::memory:")
		require.NoError(t, err)
		assert.Contains(t, dsn1, "mode=memory")
		assert.Contains(t, dsn1, "cache=shared")
		assert.NotEqual(t, dsn1, dsn2)
	})

	t.Run("unsupported", func(t *testing.T) {
		_, _, _, err := splitURL("oracle:dsn")
		require.Error(t, err)
	})
}

func TestResetKeepsSchemas(t *testing.T) {
	e := newTestEngine(t)
	saveUser(t, e, `{"name": "alice", "email": "a@x", "age": 30}`)

	require.NoError(t, e.Reset())

	// Disconnected now, but the registry survives.
	_, err := e.FetchAll(context.Background(), "User", "")
	require.ErrorIs(t, err, ferro.ErrNotInitialized)

	require.NoError(t, e.Connect(context.Background(), "sqlite::memory:", WithAutoMigrate()))
	rows, err := e.FetchAll(context.Background(), "User", "")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestClearRegistry(t *testing.T) {
	e := newTestEngine(t)
	e.ClearRegistry()
	_, err := e.FetchAll(context.Background(), "User", "")
	require.Error(t, err)
	assert.True(t, ferro.IsSchemaError(err))
}

func TestInstanceRegistry(t *testing.T) {
	e := newTestEngine(t)

	type userObj struct{ Name string }
	obj := &userObj{Name: "alice"}
	e.RegisterInstance("User", 1, obj)

	got, ok := e.LookupInstance("User", 1)
	require.True(t, ok)
	assert.Same(t, obj, got)

	// Numeric pk representations collapse to one entry.
	got, ok = e.LookupInstance("User", float64(1))
	require.True(t, ok)
	assert.Same(t, obj, got)

	e.EvictInstance("User", 1)
	_, ok = e.LookupInstance("User", 1)
	assert.False(t, ok)
}

func TestVersion(t *testing.T) {
	e := New()
	assert.Equal(t, ferro.Version, e.Version())
	assert.NotEmpty(t, e.Version())
}
