package quill

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/syssam/quill/dialect"
	"github.com/syssam/quill/dialect/sql"
	"github.com/syssam/quill/template"
)

// Prepared is a statement prepared once and executed any number of times.
// The ? and :name markers left unbound when it was prepared are its
// parameters; bound values are fixed. Results of prepared statements are
// never cached.
type Prepared struct {
	st   *Statement
	res  *template.Resolved
	kind statementKind
	stmt dialect.Stmt
}

// Prepare prepares st on the database:
//
//	p, err := s.SQL("UPDATE &post SET title = ? WHERE id = ?").Prepare(ctx)
//	...
//	defer p.Close()
//	for id, title := range titles {
//		if _, err := p.Exec(ctx, title, id); err != nil {
//			...
//		}
//	}
//
// A statement prepared inside Session.Tx belongs to the transaction and
// stops working when it ends.
func (st *Statement) Prepare(ctx context.Context) (*Prepared, error) {
	switch {
	case st.err != nil:
		return nil, st.err
	case st.eager != nil:
		return nil, errors.New("quill: eager statements cannot be prepared")
	case st.noop:
		return nil, errors.New("quill: empty statements cannot be prepared")
	}
	r := st.sess.Resolver()
	r.Open = true
	res, err := r.Resolve(st)
	if err != nil {
		return nil, err
	}
	p, ok := st.sess.conn().(dialect.Preparer)
	if !ok {
		return nil, &DriverError{Op: "prepare", SQL: res.SQL, Err: dialect.ErrNotPreparable}
	}
	st.sess.log.DebugContext(ctx, "prepare", "sql", res.SQL, "params", len(res.Open))
	stmt, err := p.Prepare(ctx, res.SQL)
	if err != nil {
		return nil, wrapDriver("prepare", res.SQL, err)
	}
	return &Prepared{st: st, res: res, kind: classify(res.SQL), stmt: stmt}, nil
}

// SQL returns the prepared statement text.
func (p *Prepared) SQL() string { return p.res.SQL }

// NumParams returns the number of values Exec expects.
func (p *Prepared) NumParams() int { return len(p.res.Open) }

// Exec executes the statement with args bound to its parameters in order
// of appearance.
func (p *Prepared) Exec(ctx context.Context, args ...any) (*Result, error) {
	if len(args) != len(p.res.Open) {
		return nil, fmt.Errorf("quill: prepared statement takes %d values, got %d", len(p.res.Open), len(args))
	}
	argv := slices.Clone(p.res.Args)
	if argv == nil {
		argv = []any{}
	}
	for i, idx := range p.res.Open {
		argv[idx] = args[i]
	}
	s := p.st.sess
	out := &Result{sess: s, stmt: p.st, table: p.res.Table}
	if p.kind == writeStatement {
		s.log.DebugContext(ctx, "exec prepared", "sql", p.res.SQL, "args", argv)
		var res sql.Result
		if err := p.stmt.Exec(ctx, argv, &res); err != nil {
			return nil, wrapDriver("exec", p.res.SQL, err)
		}
		if n, err := res.RowsAffected(); err == nil {
			out.affected = n
		}
		if id, err := res.LastInsertId(); err == nil && id != 0 {
			out.insertID = id
		}
		return out, nil
	}
	s.log.DebugContext(ctx, "query prepared", "sql", p.res.SQL, "args", argv)
	var rows sql.Rows
	if err := p.stmt.Query(ctx, argv, &rows); err != nil {
		return nil, wrapDriver("query", p.res.SQL, err)
	}
	columns, records, err := sql.ScanRecords(rows)
	if err != nil {
		return nil, wrapDriver("query", p.res.SQL, err)
	}
	out.columns = columns
	out.rows = make([]*Row, 0, len(records))
	for _, rec := range records {
		out.rows = append(out.rows, s.load(p.res.Table, columns, rec))
	}
	return out, nil
}

// Close releases the statement on the database.
func (p *Prepared) Close() error { return p.stmt.Close() }

// InsertPrepared inserts rows one at a time through a single prepared
// statement and returns the result of the last insert. A row lacking a
// column inserts NULL. Inserting no rows does nothing.
func (s *Session) InsertPrepared(ctx context.Context, table string, rows ...map[string]any) (*Result, error) {
	columns := insertColumns(rows)
	if len(columns) == 0 {
		return s.Insert(table, rows...).Exec(ctx)
	}
	marks := strings.Repeat("?, ", len(columns)-1) + "?"
	p, err := s.SQL("INSERT INTO ::table (::columns) VALUES ("+marks+")", template.Params{
		"table":   s.Table(table),
		"columns": template.New(s.quoteColumns(columns)),
	}).Prepare(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Close()
	var res *Result
	for _, row := range rows {
		args := make([]any, len(columns))
		for i, col := range columns {
			args[i] = row[col]
		}
		if res, err = p.Exec(ctx, args...); err != nil {
			return nil, err
		}
	}
	return res, nil
}
