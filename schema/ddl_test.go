package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ferro-orm/ferro/dialect"
)

func TestSynthesizeDDLSQLite(t *testing.T) {
	desc, err := ParseDescriptor("User", []byte(`{
		"properties": {
			"id": {"type": "integer", "primary_key": true},
			"name": {"type": "string"},
			"email": {"type": "string", "unique": true},
			"age": {"type": "integer", "index": true},
			"active": {"type": "boolean", "default": true}
		},
		"required": ["id", "name", "email", "age", "active"]
	}`))
	require.NoError(t, err)

	stmts, err := SynthesizeDDL(desc, dialect.SQLite)
	require.NoError(t, err)
	require.Len(t, stmts, 2)

	assert.Equal(t,
		`CREATE TABLE IF NOT EXISTS "user" (`+
			`"active" INTEGER NOT NULL DEFAULT 1, `+
			`"age" INTEGER NOT NULL, `+
			`"email" TEXT NOT NULL UNIQUE, `+
			`"id" INTEGER PRIMARY KEY AUTOINCREMENT, `+
			`"name" TEXT NOT NULL)`,
		stmts[0])
	assert.Equal(t,
		`CREATE INDEX IF NOT EXISTS "idx_user_age" ON "user" ("age")`,
		stmts[1])
}

func TestSynthesizeDDLPostgres(t *testing.T) {
	desc, err := ParseDescriptor("Invoice", []byte(`{
		"properties": {
			"id": {"type": "integer", "primary_key": true},
			"total": {"anyOf": [{"type": "string", "pattern": "^\\d+$"}, {"type": "null"}]},
			"issued_at": {"type": "string", "format": "date-time"},
			"payload": {"type": "object"},
			"ref": {"type": "string", "format": "uuid"}
		},
		"required": ["id", "issued_at", "payload", "ref"]
	}`))
	require.NoError(t, err)

	stmts, err := SynthesizeDDL(desc, dialect.Postgres)
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.Equal(t,
		`CREATE TABLE IF NOT EXISTS "invoice" (`+
			`"id" BIGSERIAL PRIMARY KEY, `+
			`"issued_at" TIMESTAMPTZ NOT NULL, `+
			`"payload" JSONB NOT NULL, `+
			`"ref" UUID NOT NULL, `+
			`"total" NUMERIC)`,
		stmts[0])
}

func TestSynthesizeDDLMySQL(t *testing.T) {
	desc, err := ParseDescriptor("Item", []byte(`{
		"properties": {
			"id": {"type": "integer", "primary_key": true},
			"label": {"type": "string", "index": true},
			"active": {"type": "boolean", "default": true}
		},
		"required": ["id", "label", "active"]
	}`))
	require.NoError(t, err)

	stmts, err := SynthesizeDDL(desc, dialect.MySQL)
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	assert.Equal(t,
		"CREATE TABLE IF NOT EXISTS `item` ("+
			"`active` TINYINT(1) NOT NULL DEFAULT 1, "+
			"`id` BIGINT PRIMARY KEY AUTO_INCREMENT, "+
			"`label` VARCHAR(255) NOT NULL)",
		stmts[0])
	// MySQL has no IF NOT EXISTS for indexes.
	assert.Equal(t,
		"CREATE INDEX `idx_item_label` ON `item` (`label`)",
		stmts[1])
}

func TestSynthesizeDDLForeignKeys(t *testing.T) {
	desc, err := ParseDescriptor("Post", []byte(`{
		"properties": {
			"id": {"type": "integer", "primary_key": true},
			"author_id": {"type": "integer", "foreign_key": {"to_table": "user"}},
			"editor_id": {"anyOf": [{"type": "integer"}, {"type": "null"}],
				"foreign_key": {"to_table": "user", "on_delete": "SET NULL"}}
		},
		"required": ["id", "author_id"]
	}`))
	require.NoError(t, err)

	stmts, err := SynthesizeDDL(desc, dialect.SQLite)
	require.NoError(t, err)
	assert.Equal(t,
		`CREATE TABLE IF NOT EXISTS "post" (`+
			`"author_id" INTEGER NOT NULL, `+
			`"editor_id" INTEGER, `+
			`"id" INTEGER PRIMARY KEY AUTOINCREMENT, `+
			`FOREIGN KEY ("author_id") REFERENCES "user" ("id") ON DELETE CASCADE, `+
			`FOREIGN KEY ("editor_id") REFERENCES "user" ("id") ON DELETE SET NULL)`,
		stmts[0])
}

func TestSynthesizeDDLJoinTable(t *testing.T) {
	desc := JoinTable("post_tags", "post", "post_id", "tag", "tag_id")
	stmts, err := SynthesizeDDL(desc, dialect.SQLite)
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.Equal(t,
		`CREATE TABLE IF NOT EXISTS "post_tags" (`+
			`"post_id" INTEGER NOT NULL, `+
			`"tag_id" INTEGER NOT NULL, `+
			`FOREIGN KEY ("post_id") REFERENCES "post" ("id") ON DELETE CASCADE, `+
			`FOREIGN KEY ("tag_id") REFERENCES "tag" ("id") ON DELETE CASCADE, `+
			`UNIQUE ("post_id", "tag_id"))`,
		stmts[0])
}

func TestSynthesizeDDLUnsupportedDialect(t *testing.T) {
	desc := &Descriptor{Table: "t", Columns: []Column{{Name: "c", Type: TypeText}}}
	_, err := SynthesizeDDL(desc, "oracle")
	require.Error(t, err)
}

func TestIndexName(t *testing.T) {
	assert.Equal(t, "idx_user_age", IndexName("user", "age"))
}

func TestDefaultLiteral(t *testing.T) {
	tests := []struct {
		name    string
		value   any
		dialect string
		want    string
	}{
		{"bool_sqlite", true, dialect.SQLite, "1"},
		{"bool_false_sqlite", false, dialect.SQLite, "0"},
		{"bool_postgres", true, dialect.Postgres, "TRUE"},
		{"int", int64(42), dialect.SQLite, "42"},
		{"float", 2.5, dialect.SQLite, "2.5"},
		{"string_quoted", "it's", dialect.SQLite, "'it''s'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := defaultLiteral(tt.value, tt.dialect)
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
