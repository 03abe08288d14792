package sql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/syssam/quill/dialect"
)

// Driver is a dialect.Driver implementation for SQL based databases.
type Driver struct {
	Conn
	dialect string
	init    *initOnce
}

// Option configures a Driver.
type Option func(*Driver)

// WithInit registers connection settings that are executed once, before
// the first statement. Failures are logged and ignored since not every
// server understands every setting.
//
//	sql.OpenDB(dialect.Postgres, db, sql.WithInit("SET standard_conforming_strings = on"))
func WithInit(stmts ...string) Option {
	return func(d *Driver) {
		d.init.stmts = append(d.init.stmts, stmts...)
	}
}

// initOnce runs the init statements of a driver exactly once.
type initOnce struct {
	once  sync.Once
	stmts []string
}

func (i *initOnce) run(ctx context.Context, ex ExecQuerier) {
	if i == nil || len(i.stmts) == 0 {
		return
	}
	i.once.Do(func() {
		for _, q := range i.stmts {
			if _, err := ex.ExecContext(ctx, q); err != nil {
				slog.Debug("dialect/sql: init statement failed", "query", q, "error", err)
			}
		}
	})
}

// NewDriver creates a new Driver with the given Conn and dialect.
func NewDriver(dialect string, c Conn, opts ...Option) *Driver {
	d := &Driver{dialect: dialect, Conn: c, init: &initOnce{}}
	for _, opt := range opts {
		opt(d)
	}
	d.Conn.init = d.init
	return d
}

// Open wraps the database/sql.Open method and returns a dialect.Driver.
// The dialect is derived from the driver name, so "pgx" maps to Postgres.
func Open(driverName, source string, opts ...Option) (*Driver, error) {
	db, err := sql.Open(driverName, source)
	if err != nil {
		return nil, err
	}
	name := DialectOf(driverName)
	return NewDriver(name, Conn{ExecQuerier: db, dialect: name}, opts...), nil
}

// OpenDB wraps the given database/sql.DB method with a Driver.
func OpenDB(dialect string, db *sql.DB, opts ...Option) *Driver {
	return NewDriver(dialect, Conn{ExecQuerier: db, dialect: dialect}, opts...)
}

// DialectOf maps a database/sql driver name to a dialect name.
func DialectOf(driverName string) string {
	switch {
	case driverName == "pgx" || driverName == "pq" || strings.HasPrefix(driverName, dialect.Postgres):
		return dialect.Postgres
	case strings.HasPrefix(driverName, "sqlite"):
		return dialect.SQLite
	case strings.HasPrefix(driverName, dialect.MySQL):
		return dialect.MySQL
	}
	return driverName
}

// DB returns the underlying *sql.DB instance.
func (d Driver) DB() *sql.DB {
	return d.ExecQuerier.(*sql.DB)
}

// Dialect implements the dialect.Dialect method.
func (d Driver) Dialect() string {
	// If the underlying driver is wrapped with a telemetry driver.
	for _, name := range []string{dialect.MySQL, dialect.SQLite, dialect.Postgres} {
		if strings.HasPrefix(d.dialect, name) {
			return name
		}
	}
	return d.dialect
}

// Tx starts and returns a transaction.
func (d *Driver) Tx(ctx context.Context) (dialect.Tx, error) {
	return d.BeginTx(ctx, nil)
}

// BeginTx starts a transaction with options.
func (d *Driver) BeginTx(ctx context.Context, opts *TxOptions) (dialect.Tx, error) {
	d.init.run(ctx, d.DB())
	tx, err := d.DB().BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: begin: %w", err)
	}
	return &Tx{
		Conn: Conn{ExecQuerier: tx, dialect: d.dialect},
		Tx:   tx,
	}, nil
}

// Close closes the underlying connection.
func (d *Driver) Close() error { return d.DB().Close() }

// Tx implements dialect.Tx interface.
type Tx struct {
	Conn
	driver.Tx
}

// ExecQuerier wraps the standard Exec and Query methods.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Conn implements dialect.ExecQuerier given ExecQuerier.
type Conn struct {
	ExecQuerier
	dialect string
	init    *initOnce
}

// Exec implements the dialect.Exec method.
func (c Conn) Exec(ctx context.Context, query string, args, v any) error {
	argv, ok := args.([]any)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect []any for args", args)
	}
	c.init.run(ctx, c.ExecQuerier)
	switch v := v.(type) {
	case nil:
		if _, err := c.ExecContext(ctx, query, argv...); err != nil {
			return fmt.Errorf("dialect/sql: exec: %w", err)
		}
	case *sql.Result:
		res, err := c.ExecContext(ctx, query, argv...)
		if err != nil {
			return fmt.Errorf("dialect/sql: exec: %w", err)
		}
		*v = res
	default:
		return fmt.Errorf("dialect/sql: invalid type %T. expect *sql.Result", v)
	}
	return nil
}

// Query implements the dialect.Query method.
func (c Conn) Query(ctx context.Context, query string, args, v any) error {
	vr, ok := v.(*Rows)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect *sql.Rows", v)
	}
	argv, ok := args.([]any)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect []any for args", args)
	}
	c.init.run(ctx, c.ExecQuerier)
	rows, err := c.QueryContext(ctx, query, argv...)
	if err != nil {
		return fmt.Errorf("dialect/sql: query: %w", err)
	}
	*vr = Rows{rows}
	return nil
}

// Prepare creates a prepared statement on the connection pool, or on the
// transaction of a Tx.
func (c Conn) Prepare(ctx context.Context, query string) (dialect.Stmt, error) {
	p, ok := c.ExecQuerier.(interface {
		PrepareContext(context.Context, string) (*sql.Stmt, error)
	})
	if !ok {
		return nil, fmt.Errorf("dialect/sql: %T: %w", c.ExecQuerier, dialect.ErrNotPreparable)
	}
	c.init.run(ctx, c.ExecQuerier)
	stmt, err := p.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: prepare: %w", err)
	}
	return &Stmt{stmt: stmt}, nil
}

// Stmt implements dialect.Stmt over a *sql.Stmt.
type Stmt struct {
	stmt *sql.Stmt
}

// Exec implements the dialect.Stmt method.
func (s *Stmt) Exec(ctx context.Context, args, v any) error {
	argv, ok := args.([]any)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect []any for args", args)
	}
	res, err := s.stmt.ExecContext(ctx, argv...)
	if err != nil {
		return fmt.Errorf("dialect/sql: exec: %w", err)
	}
	switch v := v.(type) {
	case nil:
	case *sql.Result:
		*v = res
	default:
		return fmt.Errorf("dialect/sql: invalid type %T. expect *sql.Result", v)
	}
	return nil
}

// Query implements the dialect.Stmt method.
func (s *Stmt) Query(ctx context.Context, args, v any) error {
	vr, ok := v.(*Rows)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect *sql.Rows", v)
	}
	argv, ok := args.([]any)
	if !ok {
		return fmt.Errorf("dialect/sql: invalid type %T. expect []any for args", args)
	}
	rows, err := s.stmt.QueryContext(ctx, argv...)
	if err != nil {
		return fmt.Errorf("dialect/sql: query: %w", err)
	}
	*vr = Rows{rows}
	return nil
}

// Close closes the statement.
func (s *Stmt) Close() error { return s.stmt.Close() }

var (
	_ dialect.Driver   = (*Driver)(nil)
	_ dialect.Preparer = (*Driver)(nil)
	_ dialect.Preparer = (*Tx)(nil)
	_ dialect.Stmt     = (*Stmt)(nil)
)

type (
	// Rows wraps the sql.Rows to avoid locks copy.
	Rows struct{ ColumnScanner }
	// Result is an alias to sql.Result.
	Result = sql.Result
	// TxOptions holds the transaction options to be used in DB.BeginTx.
	TxOptions = sql.TxOptions
)

// ColumnScanner is the interface that wraps the standard
// sql.Rows methods used for scanning database rows.
type ColumnScanner interface {
	Close() error
	ColumnTypes() ([]*sql.ColumnType, error)
	Columns() ([]string, error)
	Err() error
	Next() bool
	NextResultSet() bool
	Scan(dest ...any) error
}

// ScanRecords reads all remaining rows of the scanner into records whose
// values are aligned with the returned columns. Byte slices are copied
// into strings, since drivers reuse their buffers between rows. The
// scanner is closed when done.
func ScanRecords(rows ColumnScanner) (columns []string, records [][]any, err error) {
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
	}()
	columns, err = rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("dialect/sql: columns: %w", err)
	}
	for rows.Next() {
		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, nil, fmt.Errorf("dialect/sql: scan: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		records = append(records, values)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("dialect/sql: rows: %w", err)
	}
	return columns, records, nil
}
