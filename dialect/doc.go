// Package dialect provides database dialect abstraction for quill.
//
// This package defines the interfaces a session needs from a database
// connection, and the dialect specific spelling of identifiers, string
// literals and bind placeholders.
//
// # Supported Dialects
//
//   - Postgres: PostgreSQL database
//   - MySQL: MySQL/MariaDB database
//   - SQLite: SQLite database
//
// # Driver Interface
//
//	type Driver interface {
//	    Exec(ctx context.Context, query string, args, v any) error
//	    Query(ctx context.Context, query string, args, v any) error
//	    Tx(ctx context.Context) (Tx, error)
//	    Close() error
//	    Dialect() string
//	}
//
// # Quoting
//
//	q := dialect.QuoterFor(dialect.MySQL)
//	q.QuoteIdentifier("blog.post") // `blog`.`post`
//	q.QuoteString("it's")          // 'it''s'
//	q.Placeholder(1)               // ?
//
//	dialect.QuoterFor(dialect.Postgres).Placeholder(2) // $2
//
// # Sub-packages
//
//   - dialect/sql: database/sql backed driver implementation
//   - dialect/sql/sqlgraph: driver error classification
package dialect
