package dialect

import (
	"context"
	"errors"
	"strconv"
	"strings"
)

// Dialect names for external usage.
const (
	MySQL    = "mysql"
	SQLite   = "sqlite"
	Postgres = "postgres"
)

// ExecQuerier wraps the 2 database operations.
type ExecQuerier interface {
	// Exec executes a query that does not return records. For example, in SQL, INSERT or UPDATE.
	// It scans the result into the pointer v. For SQL drivers, it is dialect/sql.Result.
	Exec(ctx context.Context, query string, args, v any) error
	// Query executes a query that returns rows, typically a SELECT in SQL.
	// It scans the result into the pointer v. For SQL drivers, it is *dialect/sql.Rows.
	Query(ctx context.Context, query string, args, v any) error
}

// Driver is the interface that wraps all necessary operations for the session.
type Driver interface {
	ExecQuerier
	// Tx starts and returns a new transaction.
	// The provided context is used until the transaction is committed or rolled back.
	Tx(context.Context) (Tx, error)
	// Close closes the underlying connection.
	Close() error
	// Dialect returns the dialect name of the driver.
	Dialect() string
}

// Preparer is implemented by drivers and transactions that prepare
// statements for repeated execution.
type Preparer interface {
	Prepare(ctx context.Context, query string) (Stmt, error)
}

// Stmt is a prepared statement. Exec and Query scan into v like their
// ExecQuerier counterparts.
type Stmt interface {
	Exec(ctx context.Context, args, v any) error
	Query(ctx context.Context, args, v any) error
	Close() error
}

// ErrNotPreparable is returned by wrappers whose underlying driver does
// not implement Preparer.
var ErrNotPreparable = errors.New("dialect: driver does not prepare statements")

// Tx wraps the Exec and Query operations in transaction.
type Tx interface {
	ExecQuerier
	Commit() error
	Rollback() error
}

// Quoter knows how a dialect spells identifiers, string literals and
// driver placeholders.
type Quoter struct {
	name      string
	delimiter byte
}

// QuoterFor returns the Quoter of the given dialect. Unknown dialects
// use ANSI double quotes and question mark placeholders.
func QuoterFor(name string) Quoter {
	switch name {
	case MySQL:
		return Quoter{name: name, delimiter: '`'}
	default:
		return Quoter{name: name, delimiter: '"'}
	}
}

// Name returns the dialect name.
func (q Quoter) Name() string { return q.name }

// QuoteIdentifier quotes every dot separated part of the identifier,
// doubling embedded delimiters. A "*" part is left as is.
//
//	QuoteIdentifier("public.post") // "public"."post"
//	QuoteIdentifier("post.*")      // "post".*
func (q Quoter) QuoteIdentifier(ident string) string {
	d := string(q.delimiter)
	parts := strings.Split(ident, ".")
	for i, p := range parts {
		if p == "*" {
			continue
		}
		parts[i] = d + strings.ReplaceAll(p, d, d+d) + d
	}
	return strings.Join(parts, ".")
}

// QuoteString returns s as a single quoted SQL string literal.
// MySQL additionally escapes backslashes.
func (q Quoter) QuoteString(s string) string {
	if q.name == MySQL && strings.Contains(s, `\`) {
		s = strings.ReplaceAll(s, `\`, `\\`)
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Placeholder returns the driver placeholder for the n-th (1-based)
// bound argument of a statement.
func (q Quoter) Placeholder(n int) string {
	if q.name == Postgres {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}
