package schema

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ferro-orm/ferro"
	"github.com/ferro-orm/ferro/dialect"
)

// SynthesizeDDL compiles a descriptor into the ordered list of statements
// that create its table: one CREATE TABLE IF NOT EXISTS followed by one
// CREATE INDEX per indexed non-unique column. The statements are idempotent
// on SQLite and Postgres; on MySQL index creation lacks IF NOT EXISTS and
// the executor tolerates the duplicate-index error instead.
func SynthesizeDDL(d *Descriptor, dialectName string) ([]string, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(quoteIdent(d.Table, dialectName))
	b.WriteString(" (")

	defs := make([]string, 0, len(d.Columns)+2)
	for i := range d.Columns {
		def, err := columnDef(d, &d.Columns[i], dialectName)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	for i := range d.Columns {
		c := &d.Columns[i]
		if c.ForeignKey == nil {
			continue
		}
		defs = append(defs, fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s) ON DELETE %s",
			quoteIdent(c.Name, dialectName),
			quoteIdent(c.ForeignKey.ToTable, dialectName),
			quoteIdent(c.ForeignKey.ToColumn, dialectName),
			c.ForeignKey.OnDelete,
		))
	}
	for _, group := range d.CompositeUnique {
		quoted := make([]string, len(group))
		for i, name := range group {
			quoted[i] = quoteIdent(name, dialectName)
		}
		defs = append(defs, "UNIQUE ("+strings.Join(quoted, ", ")+")")
	}
	b.WriteString(strings.Join(defs, ", "))
	b.WriteString(")")

	stmts := []string{b.String()}
	for i := range d.Columns {
		c := &d.Columns[i]
		if !c.Index || c.Unique {
			continue
		}
		ifNotExists := "IF NOT EXISTS "
		if dialectName == dialect.MySQL {
			ifNotExists = ""
		}
		stmts = append(stmts, fmt.Sprintf("CREATE INDEX %s%s ON %s (%s)",
			ifNotExists,
			quoteIdent(IndexName(d.Table, c.Name), dialectName),
			quoteIdent(d.Table, dialectName),
			quoteIdent(c.Name, dialectName),
		))
	}
	return stmts, nil
}

// IndexName derives the deterministic name of the single-column index.
func IndexName(table, column string) string {
	return "idx_" + table + "_" + column
}

func columnDef(d *Descriptor, c *Column, dialectName string) (string, error) {
	var parts []string
	parts = append(parts, quoteIdent(c.Name, dialectName))

	switch {
	case c.PrimaryKey && c.AutoincrementInferred():
		switch dialectName {
		case dialect.SQLite:
			parts = append(parts, "INTEGER PRIMARY KEY AUTOINCREMENT")
		case dialect.Postgres:
			parts = append(parts, "BIGSERIAL PRIMARY KEY")
		case dialect.MySQL:
			parts = append(parts, "BIGINT PRIMARY KEY AUTO_INCREMENT")
		default:
			return "", ferro.NewSchemaError(d.Table, fmt.Sprintf("unsupported dialect %q", dialectName))
		}
		return strings.Join(parts, " "), nil
	case c.PrimaryKey:
		typ, err := columnSQLType(d, c, dialectName)
		if err != nil {
			return "", err
		}
		parts = append(parts, typ, "PRIMARY KEY")
		return strings.Join(parts, " "), nil
	}

	typ, err := columnSQLType(d, c, dialectName)
	if err != nil {
		return "", err
	}
	parts = append(parts, typ)
	if !c.Nullable {
		parts = append(parts, "NOT NULL")
	}
	if c.Unique {
		parts = append(parts, "UNIQUE")
	}
	if c.HasDefault && c.Default != nil {
		lit, ok := defaultLiteral(c.Default, dialectName)
		if ok {
			parts = append(parts, "DEFAULT "+lit)
		}
	}
	return strings.Join(parts, " "), nil
}

func columnSQLType(d *Descriptor, c *Column, dialectName string) (string, error) {
	switch dialectName {
	case dialect.SQLite:
		switch c.Type {
		case TypeInteger, TypeBool:
			return "INTEGER", nil
		case TypeReal:
			return "REAL", nil
		case TypeBlob:
			return "BLOB", nil
		case TypeDateTime:
			return "DATETIME", nil
		case TypeDate:
			return "DATE", nil
		default: // text, enum, uuid, decimal, json
			return "TEXT", nil
		}
	case dialect.Postgres:
		switch c.Type {
		case TypeInteger:
			return "BIGINT", nil
		case TypeReal:
			return "DOUBLE PRECISION", nil
		case TypeBool:
			return "BOOLEAN", nil
		case TypeBlob:
			return "BYTEA", nil
		case TypeJSON:
			return "JSONB", nil
		case TypeUUID:
			return "UUID", nil
		case TypeDecimal:
			return "NUMERIC", nil
		case TypeDateTime:
			return "TIMESTAMPTZ", nil
		case TypeDate:
			return "DATE", nil
		default:
			return "TEXT", nil
		}
	case dialect.MySQL:
		switch c.Type {
		case TypeInteger:
			return "BIGINT", nil
		case TypeReal:
			return "DOUBLE", nil
		case TypeBool:
			return "TINYINT(1)", nil
		case TypeBlob:
			return "BLOB", nil
		case TypeJSON:
			return "JSON", nil
		case TypeUUID:
			return "CHAR(36)", nil
		case TypeDecimal:
			return "DECIMAL(65,30)", nil
		case TypeDateTime:
			return "DATETIME", nil
		case TypeDate:
			return "DATE", nil
		case TypeText, TypeEnum:
			// VARCHAR so the column stays indexable without a prefix length.
			return "VARCHAR(255)", nil
		default:
			return "VARCHAR(255)", nil
		}
	default:
		return "", ferro.NewSchemaError(d.Table, fmt.Sprintf("unsupported dialect %q", dialectName))
	}
}

func defaultLiteral(v any, dialectName string) (string, bool) {
	switch v := v.(type) {
	case bool:
		if dialectName == dialect.Postgres {
			if v {
				return "TRUE", true
			}
			return "FALSE", true
		}
		if v {
			return "1", true
		}
		return "0", true
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'", true
	default:
		return "", false
	}
}

// quoteIdent quotes an identifier for the dialect.
func quoteIdent(name, dialectName string) string {
	if dialectName == dialect.MySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteIdent quotes an identifier for the dialect. It is shared with the
// query translator so generated SQL quotes consistently.
func QuoteIdent(name, dialectName string) string {
	return quoteIdent(name, dialectName)
}
