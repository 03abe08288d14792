package sql

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/syssam/quill/dialect"
)

// QueryStats holds statement execution counters of a StatsDriver.
type QueryStats struct {
	queries  atomic.Int64
	execs    atomic.Int64
	duration atomic.Int64 // nanoseconds
	slow     atomic.Int64
	errors   atomic.Int64
}

// Snapshot returns a point-in-time copy of the counters.
func (s *QueryStats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Queries:  s.queries.Load(),
		Execs:    s.execs.Load(),
		Duration: time.Duration(s.duration.Load()),
		Slow:     s.slow.Load(),
		Errors:   s.errors.Load(),
	}
}

// Reset resets all counters to zero.
func (s *QueryStats) Reset() {
	s.queries.Store(0)
	s.execs.Store(0)
	s.duration.Store(0)
	s.slow.Store(0)
	s.errors.Store(0)
}

// StatsSnapshot is a point-in-time snapshot of query statistics.
type StatsSnapshot struct {
	Queries  int64
	Execs    int64
	Duration time.Duration
	Slow     int64
	Errors   int64
}

// Avg returns the average statement duration.
func (s StatsSnapshot) Avg() time.Duration {
	total := s.Queries + s.Execs
	if total == 0 {
		return 0
	}
	return s.Duration / time.Duration(total)
}

// String returns a human-readable summary of the statistics.
func (s StatsSnapshot) String() string {
	return fmt.Sprintf(
		"queries=%d execs=%d duration=%s avg=%s slow=%d errors=%d",
		s.Queries, s.Execs, s.Duration, s.Avg(), s.Slow, s.Errors,
	)
}

// StatsDriver wraps a dialect.Driver with statement statistics and
// slow statement logging.
type StatsDriver struct {
	dialect.Driver
	stats     *QueryStats
	threshold time.Duration
	log       *slog.Logger
}

// StatsOption configures the StatsDriver.
type StatsOption func(*StatsDriver)

// WithSlowThreshold sets the duration above which a statement counts as
// slow. Default is 100ms.
func WithSlowThreshold(d time.Duration) StatsOption {
	return func(s *StatsDriver) {
		s.threshold = d
	}
}

// WithStatsLogger sets the logger slow statements are reported to.
func WithStatsLogger(l *slog.Logger) StatsOption {
	return func(s *StatsDriver) {
		s.log = l
	}
}

// NewStatsDriver wraps drv with statistics collection.
//
//	drv, _ := sql.Open("sqlite", "file:blog.db")
//	sd := sql.NewStatsDriver(drv, sql.WithSlowThreshold(200*time.Millisecond))
//	sess := quill.New(sd)
//	...
//	fmt.Println(sd.QueryStats().Snapshot())
func NewStatsDriver(drv dialect.Driver, opts ...StatsOption) *StatsDriver {
	s := &StatsDriver{
		Driver:    drv,
		stats:     &QueryStats{},
		threshold: 100 * time.Millisecond,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QueryStats returns the counters of the driver.
func (d *StatsDriver) QueryStats() *QueryStats { return d.stats }

// Query executes a query and records statistics.
func (d *StatsDriver) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Query(ctx, query, args, v)
	d.record(ctx, query, args, start, err, true)
	return err
}

// Exec executes a statement and records statistics.
func (d *StatsDriver) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := d.Driver.Exec(ctx, query, args, v)
	d.record(ctx, query, args, start, err, false)
	return err
}

func (d *StatsDriver) record(ctx context.Context, query string, args any, start time.Time, err error, isQuery bool) {
	elapsed := time.Since(start)
	if isQuery {
		d.stats.queries.Add(1)
	} else {
		d.stats.execs.Add(1)
	}
	d.stats.duration.Add(int64(elapsed))
	if err != nil {
		d.stats.errors.Add(1)
	}
	if elapsed > d.threshold {
		d.stats.slow.Add(1)
		d.log.WarnContext(ctx, "slow statement", "duration", elapsed, "query", query, "args", args)
	}
}

// Tx starts a transaction that also records statistics.
func (d *StatsDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &statsTx{Tx: tx, driver: d}, nil
}

// Prepare prepares a statement whose executions record statistics.
func (d *StatsDriver) Prepare(ctx context.Context, query string) (dialect.Stmt, error) {
	return d.prepare(ctx, d.Driver, query)
}

func (d *StatsDriver) prepare(ctx context.Context, conn any, query string) (dialect.Stmt, error) {
	p, ok := conn.(dialect.Preparer)
	if !ok {
		return nil, dialect.ErrNotPreparable
	}
	stmt, err := p.Prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	return &statsStmt{Stmt: stmt, driver: d, query: query}, nil
}

type statsStmt struct {
	dialect.Stmt
	driver *StatsDriver
	query  string
}

func (s *statsStmt) Query(ctx context.Context, args, v any) error {
	start := time.Now()
	err := s.Stmt.Query(ctx, args, v)
	s.driver.record(ctx, s.query, args, start, err, true)
	return err
}

func (s *statsStmt) Exec(ctx context.Context, args, v any) error {
	start := time.Now()
	err := s.Stmt.Exec(ctx, args, v)
	s.driver.record(ctx, s.query, args, start, err, false)
	return err
}

type statsTx struct {
	dialect.Tx
	driver *StatsDriver
}

func (tx *statsTx) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := tx.Tx.Query(ctx, query, args, v)
	tx.driver.record(ctx, query, args, start, err, true)
	return err
}

func (tx *statsTx) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := tx.Tx.Exec(ctx, query, args, v)
	tx.driver.record(ctx, query, args, start, err, false)
	return err
}

func (tx *statsTx) Prepare(ctx context.Context, query string) (dialect.Stmt, error) {
	return tx.driver.prepare(ctx, tx.Tx, query)
}

// DebugDriver traces every statement and transaction boundary of the
// wrapped driver at debug level.
type DebugDriver struct {
	dialect.Driver
	log *slog.Logger
}

// NewDebugDriver wraps drv with statement tracing. A nil logger uses
// slog.Default.
func NewDebugDriver(drv dialect.Driver, l *slog.Logger) *DebugDriver {
	if l == nil {
		l = slog.Default()
	}
	return &DebugDriver{Driver: drv, log: l}
}

// Query executes a query and logs it.
func (d *DebugDriver) Query(ctx context.Context, query string, args, v any) error {
	d.log.DebugContext(ctx, "query", "sql", query, "args", args)
	return d.Driver.Query(ctx, query, args, v)
}

// Exec executes a statement and logs it.
func (d *DebugDriver) Exec(ctx context.Context, query string, args, v any) error {
	d.log.DebugContext(ctx, "exec", "sql", query, "args", args)
	return d.Driver.Exec(ctx, query, args, v)
}

// Tx starts a transaction with debug logging.
func (d *DebugDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	d.log.DebugContext(ctx, "begin")
	tx, err := d.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &debugTx{Tx: tx, log: d.log, ctx: ctx}, nil
}

// Prepare prepares a statement and logs it.
func (d *DebugDriver) Prepare(ctx context.Context, query string) (dialect.Stmt, error) {
	return debugPrepare(ctx, d.Driver, d.log, query)
}

func debugPrepare(ctx context.Context, conn any, l *slog.Logger, query string) (dialect.Stmt, error) {
	p, ok := conn.(dialect.Preparer)
	if !ok {
		return nil, dialect.ErrNotPreparable
	}
	l.DebugContext(ctx, "prepare", "sql", query)
	stmt, err := p.Prepare(ctx, query)
	if err != nil {
		return nil, err
	}
	return &debugStmt{Stmt: stmt, log: l, query: query}, nil
}

type debugStmt struct {
	dialect.Stmt
	log   *slog.Logger
	query string
}

func (s *debugStmt) Query(ctx context.Context, args, v any) error {
	s.log.DebugContext(ctx, "prepared query", "sql", s.query, "args", args)
	return s.Stmt.Query(ctx, args, v)
}

func (s *debugStmt) Exec(ctx context.Context, args, v any) error {
	s.log.DebugContext(ctx, "prepared exec", "sql", s.query, "args", args)
	return s.Stmt.Exec(ctx, args, v)
}

type debugTx struct {
	dialect.Tx
	log *slog.Logger
	ctx context.Context
}

func (tx *debugTx) Query(ctx context.Context, query string, args, v any) error {
	tx.log.DebugContext(ctx, "tx query", "sql", query, "args", args)
	return tx.Tx.Query(ctx, query, args, v)
}

func (tx *debugTx) Exec(ctx context.Context, query string, args, v any) error {
	tx.log.DebugContext(ctx, "tx exec", "sql", query, "args", args)
	return tx.Tx.Exec(ctx, query, args, v)
}

func (tx *debugTx) Prepare(ctx context.Context, query string) (dialect.Stmt, error) {
	return debugPrepare(ctx, tx.Tx, tx.log, query)
}

func (tx *debugTx) Commit() error {
	tx.log.DebugContext(tx.ctx, "commit")
	return tx.Tx.Commit()
}

func (tx *debugTx) Rollback() error {
	tx.log.DebugContext(tx.ctx, "rollback")
	return tx.Tx.Rollback()
}

var (
	_ dialect.Driver   = (*StatsDriver)(nil)
	_ dialect.Tx       = (*statsTx)(nil)
	_ dialect.Preparer = (*StatsDriver)(nil)
	_ dialect.Preparer = (*statsTx)(nil)
	_ dialect.Driver   = (*DebugDriver)(nil)
	_ dialect.Tx       = (*debugTx)(nil)
	_ dialect.Preparer = (*DebugDriver)(nil)
	_ dialect.Preparer = (*debugTx)(nil)
)
