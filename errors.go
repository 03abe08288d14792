package quill

import (
	"errors"
	"fmt"
	"strings"

	"github.com/syssam/quill/dialect/sql/sqlgraph"
	"github.com/syssam/quill/template"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("quill: row not found")

	// ErrSaveUnsatisfiable is matched by every SaveUnsatisfiableError.
	ErrSaveUnsatisfiable = errors.New("quill: save unsatisfiable")
)

// Errors of the template package, re-exported so callers can match them
// without importing it.
type (
	TokenizeError            = template.TokenizeError
	UnresolvedParameterError = template.UnresolvedParameterError
)

// NotFoundError is returned by Get and First when no row matched.
type NotFoundError struct {
	table string
	id    any
}

// Error returns the error string.
func (e *NotFoundError) Error() string {
	if e.id != nil {
		return fmt.Sprintf("quill: %s not found (id=%v)", e.table, e.id)
	}
	return fmt.Sprintf("quill: %s not found", e.table)
}

// Is reports whether the target error matches NotFoundError.
// This allows errors.Is(notFoundErr, ErrNotFound) to return true.
func (e *NotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// Table returns the table that was searched.
func (e *NotFoundError) Table() string { return e.table }

// ID returns the key that was searched for, if available.
func (e *NotFoundError) ID() any { return e.id }

// NewNotFoundError returns a new NotFoundError for table and an optional key.
func NewNotFoundError(table string, id any) *NotFoundError {
	return &NotFoundError{table: table, id: id}
}

// IsNotFound returns true if the error is a NotFoundError.
func IsNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *NotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrNotFound)
}

// UnknownAssociationError is returned when a table or association name is
// not in the table registry.
type UnknownAssociationError struct {
	Name string
}

// Error returns the error string.
func (e *UnknownAssociationError) Error() string {
	return fmt.Sprintf("quill: unknown table or association %q", e.Name)
}

// IsUnknownAssociation returns true if the error is an UnknownAssociationError.
func IsUnknownAssociation(err error) bool {
	var e *UnknownAssociationError
	return errors.As(err, &e)
}

// InvalidTableError is returned for table names that are not plain
// identifiers.
type InvalidTableError struct {
	Name string
}

// Error returns the error string.
func (e *InvalidTableError) Error() string {
	return fmt.Sprintf("quill: invalid table name %q", e.Name)
}

// InvalidDirectionError is returned by OrderBy for a direction other than
// ASC or DESC.
type InvalidDirectionError struct {
	Direction string
}

// Error returns the error string.
func (e *InvalidDirectionError) Error() string {
	return fmt.Sprintf("quill: invalid order direction %q", e.Direction)
}

// InvalidLimitError is returned by Limit and Paged for a count below one
// or a negative offset.
type InvalidLimitError struct {
	Count  int
	Offset int
}

// Error returns the error string.
func (e *InvalidLimitError) Error() string {
	return fmt.Sprintf("quill: invalid limit %d offset %d", e.Count, e.Offset)
}

// IsInvalidArgument returns true if the error was caused by a malformed
// builder argument: a table name, order direction or limit.
func IsInvalidArgument(err error) bool {
	var (
		table *InvalidTableError
		dir   *InvalidDirectionError
		limit *InvalidLimitError
	)
	return errors.As(err, &table) || errors.As(err, &dir) || errors.As(err, &limit)
}

// SaveUnsatisfiableError is returned when a row graph cannot be saved
// because required values can never be filled.
type SaveUnsatisfiableError struct {
	Table   string
	Missing []string
}

// Error returns the error string.
func (e *SaveUnsatisfiableError) Error() string {
	return fmt.Sprintf("quill: cannot save %s: missing %s", e.Table, strings.Join(e.Missing, ", "))
}

// Is reports whether the target error is ErrSaveUnsatisfiable.
func (e *SaveUnsatisfiableError) Is(err error) bool {
	return err == ErrSaveUnsatisfiable
}

// IsSaveUnsatisfiable returns true if the error is a SaveUnsatisfiableError.
func IsSaveUnsatisfiable(err error) bool {
	return errors.Is(err, ErrSaveUnsatisfiable)
}

// KeyNotLoadedError is returned by eager loading when the rows of the
// other side do not carry the key column.
type KeyNotLoadedError struct {
	Table  string
	Column string
}

// Error returns the error string.
func (e *KeyNotLoadedError) Error() string {
	return fmt.Sprintf("quill: column %q of %s was not loaded", e.Column, e.Table)
}

// IsKeyNotLoaded returns true if the error is a KeyNotLoadedError.
func IsKeyNotLoaded(err error) bool {
	var e *KeyNotLoadedError
	return errors.As(err, &e)
}

// ConstraintError represents a database constraint violation error.
type ConstraintError struct {
	Violation sqlgraph.Violation
	msg       string
	wrap      error
}

// Error returns the error string.
func (e *ConstraintError) Error() string {
	return fmt.Sprintf("quill: %s constraint failed: %s", e.Violation, e.msg)
}

// Unwrap returns the underlying error.
func (e *ConstraintError) Unwrap() error {
	return e.wrap
}

// NewConstraintError returns a new ConstraintError with the given message.
func NewConstraintError(v sqlgraph.Violation, msg string, wrap error) *ConstraintError {
	return &ConstraintError{Violation: v, msg: msg, wrap: wrap}
}

// IsConstraintError returns true if the error is a ConstraintError.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var e *ConstraintError
	return errors.As(err, &e)
}

// DriverError wraps an error of the underlying driver together with the
// statement that caused it.
type DriverError struct {
	Op  string
	SQL string
	Err error
}

// Error returns the error string.
func (e *DriverError) Error() string {
	return fmt.Sprintf("quill: %s %q: %v", e.Op, e.SQL, e.Err)
}

// Unwrap returns the underlying error.
func (e *DriverError) Unwrap() error {
	return e.Err
}

// RollbackError is returned when rolling back a failed transaction fails
// too.
type RollbackError struct {
	Err      error // error that triggered the rollback
	Rollback error
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("quill: %v: rolling back transaction: %v", e.Err, e.Rollback)
}

// Unwrap returns both errors.
func (e *RollbackError) Unwrap() []error {
	return []error{e.Err, e.Rollback}
}

// wrapDriver classifies a driver error. Constraint violations become
// ConstraintError, everything else DriverError.
func wrapDriver(op, query string, err error) error {
	if v := sqlgraph.Classify(err); v != sqlgraph.NoViolation {
		return NewConstraintError(v, err.Error(), &DriverError{Op: op, SQL: query, Err: err})
	}
	return &DriverError{Op: op, SQL: query, Err: err}
}
