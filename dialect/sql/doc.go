// Package sql implements dialect.Driver on top of database/sql.
//
// The driver executes fully resolved statements; it never builds SQL on
// its own. Row returning statements are passed a *Rows and drained with
// ScanRecords, other statements are passed a *Result (or nil):
//
//	drv, err := sql.Open("sqlite", "file:blog.db")
//	if err != nil {
//	    return err
//	}
//	var rows sql.Rows
//	if err := drv.Query(ctx, "SELECT id, title FROM post WHERE id = ?", []any{1}, &rows); err != nil {
//	    return err
//	}
//	columns, records, err := sql.ScanRecords(rows)
//
// # Driver names
//
// Open maps database/sql driver names to dialects with DialectOf, so the
// "pgx" and "postgres" drivers both use the Postgres dialect, and
// "sqlite"/"sqlite3" use SQLite.
//
// # Wrappers
//
//   - StatsDriver: statement counters and slow statement logging
//   - DebugDriver: statement tracing through log/slog
package sql
