package engine

import (
	"errors"
	"strings"

	"github.com/ferro-orm/ferro"
	"github.com/ferro-orm/ferro/schema"
)

var errEmptyRecord = errors.New("record has no columns")

// PostgreSQL SQLSTATE codes for constraint violations (Class 23).
const (
	pgNotNullViolation    = "23502"
	pgForeignKeyViolation = "23503"
	pgUniqueViolation     = "23505"
	pgCheckViolation      = "23514"
)

// MySQL error numbers for constraint violations.
const (
	mysqlNotNull                = 1048
	mysqlDuplicateEntry         = 1062
	mysqlForeignKeyParent       = 1451 // cannot delete or update a parent row
	mysqlForeignKeyChild        = 1452 // cannot add or update a child row
	mysqlCheckConstraintViolate = 3819
)

// errorCoder is implemented by pq.Error and other drivers exposing string
// error codes.
type errorCoder interface {
	Code() string
}

// sqlStateError is implemented by pq.Error and pgx.
type sqlStateError interface {
	SQLState() string
}

// errorNumberer is implemented by mysql.MySQLError.
type errorNumberer interface {
	Number() uint16
}

// classify maps driver errors onto the constraint taxonomy. Anything that
// is not a recognizable constraint violation comes back wrapped as an
// engine error so callers still get the driver detail.
func (e *Engine) classify(desc *schema.Descriptor, err error) error {
	if err == nil {
		return nil
	}
	if kind, ok := constraintKind(err); ok {
		return ferro.NewConstraintError(kind, desc.Table, constraintColumn(err, desc), err)
	}
	return ferro.NewEngineError(desc.Table, err)
}

func constraintKind(err error) (ferro.ConstraintKind, bool) {
	var state, code string
	if e, ok := asError[sqlStateError](err); ok {
		state = e.SQLState()
	}
	if e, ok := asError[errorCoder](err); ok {
		code = e.Code()
	}
	var number uint16
	if e, ok := asError[errorNumberer](err); ok {
		number = e.Number()
	}
	msg := err.Error()

	switch {
	case state == pgUniqueViolation || code == pgUniqueViolation ||
		number == mysqlDuplicateEntry ||
		containsAny(msg, "Error 1062", "violates unique constraint", "UNIQUE constraint failed"):
		return ferro.ConstraintUnique, true
	case state == pgForeignKeyViolation || code == pgForeignKeyViolation ||
		number == mysqlForeignKeyParent || number == mysqlForeignKeyChild ||
		containsAny(msg, "Error 1451", "Error 1452",
			"violates foreign key constraint", "FOREIGN KEY constraint failed"):
		return ferro.ConstraintForeignKey, true
	case state == pgNotNullViolation || code == pgNotNullViolation ||
		number == mysqlNotNull ||
		containsAny(msg, "Error 1048", "violates not-null constraint", "NOT NULL constraint failed"):
		return ferro.ConstraintNotNull, true
	case state == pgCheckViolation || code == pgCheckViolation ||
		number == mysqlCheckConstraintViolate ||
		containsAny(msg, "Error 3819", "violates check constraint", "CHECK constraint failed"):
		return ferro.ConstraintCheck, true
	}
	return "", false
}

// constraintColumn extracts the offending column when the driver names one.
// SQLite reports "UNIQUE constraint failed: table.column"; Postgres and
// MySQL name the column in the message for not-null violations.
func constraintColumn(err error, desc *schema.Descriptor) string {
	msg := err.Error()
	for _, marker := range []string{
		"constraint failed: ", // SQLite "<KIND> constraint failed: t.col"
	} {
		// The driver may prefix its own "constraint failed:" wrapper, so
		// only the last occurrence precedes the table.column token.
		if i := strings.LastIndex(msg, marker); i >= 0 {
			rest := msg[i+len(marker):]
			if j := strings.IndexAny(rest, " ,("); j >= 0 {
				rest = rest[:j]
			}
			if k := strings.IndexByte(rest, '.'); k >= 0 {
				rest = rest[k+1:]
			}
			if desc.Column(rest) != nil {
				return rest
			}
		}
	}
	// Column names quoted in the message (Postgres: column "x", MySQL:
	// Column 'x').
	for _, col := range desc.Columns {
		if strings.Contains(msg, `"`+col.Name+`"`) || strings.Contains(msg, "'"+col.Name+"'") {
			return col.Name
		}
	}
	return ""
}

// isDuplicateIndex reports whether err is MySQL's duplicate-key-name error
// (1061), raised when re-creating an index that already exists.
func isDuplicateIndex(err error) bool {
	if e, ok := asError[errorNumberer](err); ok && e.Number() == 1061 {
		return true
	}
	return strings.Contains(err.Error(), "Error 1061")
}

func asError[T any](err error) (T, bool) {
	var target T
	for err != nil {
		if e, ok := err.(T); ok {
			return e, true
		}
		err = errors.Unwrap(err)
	}
	return target, false
}

func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
