package ferro

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("ferro: record not found")

	// ErrNotInitialized is returned when an operation requires a live
	// connection but Connect was never called (or the engine was reset).
	// The message is stable so callers can grep for "Engine not initialized".
	ErrNotInitialized = errors.New("ferro: Engine not initialized. Call Connect() first")

	// ErrInvalidTransaction is returned when an operation references an
	// unknown transaction handle, or a handle that was already committed
	// or rolled back.
	ErrInvalidTransaction = errors.New("ferro: invalid transaction handle")
)

// SchemaError represents a malformed or conflicting schema descriptor.
type SchemaError struct {
	Table string // Table the descriptor was registered for
	Msg   string // What is wrong with it
}

// Error returns the error string.
func (e *SchemaError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("ferro: invalid schema for %q: %s", e.Table, e.Msg)
	}
	return fmt.Sprintf("ferro: invalid schema: %s", e.Msg)
}

// NewSchemaError returns a new SchemaError for the given table.
func NewSchemaError(table, msg string) *SchemaError {
	return &SchemaError{Table: table, Msg: msg}
}

// IsSchemaError returns true if the error is a SchemaError.
func IsSchemaError(err error) bool {
	if err == nil {
		return false
	}
	var e *SchemaError
	return errors.As(err, &e)
}

// MigrationError represents a DDL synthesis or execution failure,
// naming the table whose statement was rejected by the backend.
type MigrationError struct {
	Table string
	Err   error
}

// Error returns the error string.
func (e *MigrationError) Error() string {
	return fmt.Sprintf("ferro: migration failed for table %q: %v", e.Table, e.Err)
}

// Unwrap returns the underlying error.
func (e *MigrationError) Unwrap() error {
	return e.Err
}

// NewMigrationError returns a new MigrationError for the given table.
func NewMigrationError(table string, err error) *MigrationError {
	return &MigrationError{Table: table, Err: err}
}

// IsMigrationError returns true if the error is a MigrationError.
func IsMigrationError(err error) bool {
	if err == nil {
		return false
	}
	var e *MigrationError
	return errors.As(err, &e)
}

// ConnectionError represents a failure to reach or authenticate with the
// database backend. Its message always contains the stable substring
// "DB Connection failed" for caller diagnostics.
type ConnectionError struct {
	URL string
	Err error
}

// Error returns the error string.
func (e *ConnectionError) Error() string {
	return fmt.Sprintf("ferro: DB Connection failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// NewConnectionError returns a new ConnectionError for the given URL.
func NewConnectionError(url string, err error) *ConnectionError {
	return &ConnectionError{URL: url, Err: err}
}

// IsConnectionError returns true if the error is a ConnectionError.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var e *ConnectionError
	return errors.As(err, &e)
}

// ConstraintKind classifies the database constraint that was violated.
type ConstraintKind string

// Constraint kinds reported by ConstraintError.
const (
	ConstraintUnique     ConstraintKind = "unique"
	ConstraintForeignKey ConstraintKind = "foreign_key"
	ConstraintNotNull    ConstraintKind = "not_null"
	ConstraintCheck      ConstraintKind = "check"
)

// ConstraintError represents a database constraint violation at write time.
// Table and Column are populated when they can be derived from the backend's
// error text; Kind is always set.
type ConstraintError struct {
	Kind   ConstraintKind
	Table  string
	Column string
	wrap   error
}

// Error returns the error string.
func (e *ConstraintError) Error() string {
	switch {
	case e.Column != "":
		return fmt.Sprintf("ferro: %s constraint failed on %s.%s: %v", e.Kind, e.Table, e.Column, e.wrap)
	case e.Table != "":
		return fmt.Sprintf("ferro: %s constraint failed on %s: %v", e.Kind, e.Table, e.wrap)
	default:
		return fmt.Sprintf("ferro: %s constraint failed: %v", e.Kind, e.wrap)
	}
}

// Unwrap returns the underlying backend error.
func (e *ConstraintError) Unwrap() error {
	return e.wrap
}

// NewConstraintError returns a new ConstraintError wrapping the backend error.
func NewConstraintError(kind ConstraintKind, table, column string, wrap error) *ConstraintError {
	return &ConstraintError{Kind: kind, Table: table, Column: column, wrap: wrap}
}

// IsConstraintError returns true if the error is a ConstraintError.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var e *ConstraintError
	return errors.As(err, &e)
}

// TranslationError represents a malformed query AST that could not be
// compiled into SQL (e.g. a leaf node missing its column).
type TranslationError struct {
	Msg string
}

// Error returns the error string.
func (e *TranslationError) Error() string {
	return fmt.Sprintf("ferro: cannot translate query: %s", e.Msg)
}

// NewTranslationError returns a new TranslationError.
func NewTranslationError(format string, args ...any) *TranslationError {
	return &TranslationError{Msg: fmt.Sprintf(format, args...)}
}

// IsTranslationError returns true if the error is a TranslationError.
func IsTranslationError(err error) bool {
	if err == nil {
		return false
	}
	var e *TranslationError
	return errors.As(err, &e)
}

// InvalidTransactionError reports an operation against an unknown handle or
// a handle that already reached a terminal state.
type InvalidTransactionError struct {
	Handle string
	State  string // "committed", "rolled-back", or "" when unknown
}

// Error returns the error string.
func (e *InvalidTransactionError) Error() string {
	if e.State != "" {
		return fmt.Sprintf("ferro: transaction %q is %s", e.Handle, e.State)
	}
	return fmt.Sprintf("ferro: unknown transaction %q", e.Handle)
}

// Is reports whether the target error matches InvalidTransactionError.
// This allows errors.Is(err, ErrInvalidTransaction) to return true.
func (e *InvalidTransactionError) Is(err error) bool {
	return err == ErrInvalidTransaction
}

// NewInvalidTransactionError returns a new InvalidTransactionError.
func NewInvalidTransactionError(handle, state string) *InvalidTransactionError {
	return &InvalidTransactionError{Handle: handle, State: state}
}

// IsInvalidTransaction returns true if the error is an InvalidTransactionError.
func IsInvalidTransaction(err error) bool {
	if err == nil {
		return false
	}
	var e *InvalidTransactionError
	return errors.As(err, &e) || errors.Is(err, ErrInvalidTransaction)
}

// NotFoundError represents a record that no longer exists, e.g. the target
// of a refresh that was deleted underneath the caller.
type NotFoundError struct {
	Table string
	PK    any // Optional: the primary key that was searched for
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.PK != nil {
		return fmt.Sprintf("ferro: %s not found (pk=%v)", e.Table, e.PK)
	}
	return fmt.Sprintf("ferro: %s not found", e.Table)
}

// Is reports whether the target error matches NotFoundError.
// This allows errors.Is(notFoundErr, ErrNotFound) to return true.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// NewNotFoundError returns a new NotFoundError for the given table and key.
func NewNotFoundError(table string, pk any) *NotFoundError {
	return &NotFoundError{Table: table, PK: pk}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// EngineError is the catch-all for backend failures that do not map to a
// more specific type. The backend's raw message is preserved for diagnostics.
type EngineError struct {
	Op  string // Operation that failed (e.g. "save", "fetch", "delete")
	Err error  // Raw backend error
}

// Error returns the error string.
func (e *EngineError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("ferro: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("ferro: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *EngineError) Unwrap() error {
	return e.Err
}

// NewEngineError returns a new EngineError for the given operation.
func NewEngineError(op string, err error) *EngineError {
	return &EngineError{Op: op, Err: err}
}

// IsEngineError returns true if the error is an EngineError.
func IsEngineError(err error) bool {
	if err == nil {
		return false
	}
	var e *EngineError
	return errors.As(err, &e)
}
