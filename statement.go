package quill

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/syssam/quill/template"
)

// Statement is an immutable SQL template bound to a session. Builder
// methods return a new Statement. Builder errors are kept and surface
// when the statement is resolved or executed.
type Statement struct {
	sess     *Session
	tpl      *template.Template
	err      error
	noop     bool
	eager    *eager
	resolved *resolveOnce
}

type resolveOnce struct {
	once sync.Once
	res  *template.Resolved
	err  error
}

var _ template.Fragment = (*Statement)(nil)

// Template implements template.Fragment.
func (st *Statement) Template() (*template.Template, error) {
	return st.tpl, st.err
}

// Session returns the session of the statement.
func (st *Statement) Session() *Session { return st.sess }

// Err returns the first builder error, if any.
func (st *Statement) Err() error { return st.err }

// Bind returns a copy of st with args bound like template.Template.Bind.
func (st *Statement) Bind(args ...any) *Statement {
	return st.with(st.tpl.Bind(args...))
}

// BindNamed returns a copy of st with name bound to v.
func (st *Statement) BindNamed(name string, v any) *Statement {
	return st.with(st.tpl.BindNamed(name, v))
}

// Resolve resolves the statement. The outcome is computed once.
func (st *Statement) Resolve() (*template.Resolved, error) {
	st.resolved.once.Do(func() {
		st.resolved.res, st.resolved.err = st.sess.Resolver().Resolve(st)
	})
	return st.resolved.res, st.resolved.err
}

// String returns the resolved SQL, or the template text if the statement
// does not resolve.
func (st *Statement) String() string {
	res, err := st.Resolve()
	if err != nil {
		return st.tpl.Text()
	}
	return res.SQL
}

// Table returns the primary table of the statement, empty if unknown.
func (st *Statement) Table() string {
	res, err := st.Resolve()
	if err != nil {
		return ""
	}
	return res.Table
}

func (st *Statement) with(t *template.Template) *Statement {
	c := *st
	c.tpl = t
	c.resolved = &resolveOnce{}
	return &c
}

func (st *Statement) fail(err error) *Statement {
	if st.err != nil {
		return st
	}
	c := st.with(st.tpl)
	c.err = err
	return c
}

// Select adds columns to the select list, replacing the initial "*".
func (st *Statement) Select(columns ...string) *Statement {
	if st.err != nil || len(columns) == 0 {
		return st
	}
	list := st.sess.quoteColumns(columns)
	if before, ok := st.clause("select"); ok && before != selectAll {
		list = before.Text() + ", " + list
	}
	return st.BindNamed("select", template.New(list))
}

// Where adds a condition, combined with existing ones by AND. A condition
// that is a plain column name with values compares like Session.Is:
//
//	q.Where("author_id", 3)               // "author_id" = ?
//	q.Where("author_id", 3, 4)            // "author_id" IN (?, ?)
//	q.Where("published_at > ?", since)
//
// An empty condition is ignored.
func (st *Statement) Where(cond string, args ...any) *Statement {
	if st.err != nil || cond == "" {
		return st
	}
	if len(args) > 0 && columnPattern.MatchString(cond) {
		var v any = args
		if len(args) == 1 {
			v = args[0]
		}
		return st.and(st.sess.Is(cond, v))
	}
	return st.and(template.New(cond, args...))
}

// WhereMap adds a "column is value" condition for every entry, in column
// order.
func (st *Statement) WhereMap(conds map[string]any) *Statement {
	for _, col := range sortedKeys(conds) {
		st = st.and(st.sess.Is(col, conds[col]))
	}
	return st
}

// WhereNot adds the condition "column is not value".
func (st *Statement) WhereNot(column string, value any) *Statement {
	return st.and(st.sess.IsNot(column, value))
}

// WhereNotMap adds a "column is not value" condition for every entry, in
// column order.
func (st *Statement) WhereNotMap(conds map[string]any) *Statement {
	for _, col := range sortedKeys(conds) {
		st = st.and(st.sess.IsNot(col, conds[col]))
	}
	return st
}

func (st *Statement) and(cond *template.Template) *Statement {
	if st.err != nil {
		return st
	}
	before, ok := st.clause("where")
	if !ok || before == always {
		return st.BindNamed("where", cond)
	}
	return st.BindNamed("where", template.New("(??) AND (??)", before, cond))
}

// OrderBy adds a sort column. The direction is ASC or DESC in any case,
// ASC when omitted.
func (st *Statement) OrderBy(column string, direction ...string) *Statement {
	if st.err != nil {
		return st
	}
	dir := "ASC"
	if len(direction) > 0 {
		dir = strings.ToUpper(direction[0])
		if dir != "ASC" && dir != "DESC" {
			return st.fail(&InvalidDirectionError{Direction: direction[0]})
		}
	}
	term := st.sess.QuoteIdentifier(column) + " " + dir
	if before, ok := st.clause("orderBy"); ok && before != empty {
		return st.BindNamed("orderBy", template.New(before.Text()+", "+term))
	}
	return st.BindNamed("orderBy", template.New(" ORDER BY "+term))
}

// Limit sets the row limit and an optional offset, replacing an earlier
// limit.
func (st *Statement) Limit(count int, offset ...int) *Statement {
	if st.err != nil {
		return st
	}
	clause := " LIMIT " + strconv.Itoa(count)
	off := 0
	if len(offset) > 0 {
		off = offset[0]
		clause += " OFFSET " + strconv.Itoa(off)
	}
	if count < 1 || off < 0 {
		return st.fail(&InvalidLimitError{Count: count, Offset: off})
	}
	return st.BindNamed("limit", template.New(clause))
}

// Paged limits the statement to page (1-based) of the given size.
func (st *Statement) Paged(size, page int) *Statement {
	return st.Limit(size, (page-1)*size)
}

// clause returns the builder clause bound to name.
func (st *Statement) clause(name string) (*template.Template, bool) {
	v, ok := st.tpl.Named(name)
	if !ok {
		return nil, false
	}
	t, ok := v.(*template.Template)
	return t, ok
}

// Exec executes the statement. Row-returning statements are answered
// from the session cache when possible.
func (st *Statement) Exec(ctx context.Context) (*Result, error) {
	return st.sess.exec(ctx, st)
}

// First returns the first row of the result. An empty result fails with
// NotFoundError.
func (st *Statement) First(ctx context.Context) (*Row, error) {
	res, err := st.Exec(ctx)
	if err != nil {
		return nil, err
	}
	if res.Len() == 0 {
		return nil, NewNotFoundError(res.Table(), nil)
	}
	return res.First(), nil
}

// Affected executes the statement and returns the number of affected rows.
func (st *Statement) Affected(ctx context.Context) (int64, error) {
	res, err := st.Exec(ctx)
	if err != nil {
		return 0, err
	}
	return res.Affected(), nil
}

// InsertID executes an insert and returns the generated identity: the
// value reported by the driver, the first returned column, or else
// Session.LastInsertID of the table.
func (st *Statement) InsertID(ctx context.Context) (any, error) {
	res, err := st.Exec(ctx)
	if err != nil {
		return nil, err
	}
	if id := res.InsertID(); id != nil {
		return id, nil
	}
	if res.Len() > 0 && len(res.columns) > 0 {
		return res.First().Get(res.columns[0]), nil
	}
	if res.Table() == "" {
		return nil, nil
	}
	return st.sess.LastInsertID(ctx, res.Table())
}

// Update sets data on all rows matched by the WHERE clause of a query
// statement, in a single UPDATE.
func (st *Statement) Update(ctx context.Context, data map[string]any) (*Result, error) {
	table, where, err := st.target()
	if err != nil {
		return nil, err
	}
	return st.sess.Update(table, data).BindNamed("where", where).Exec(ctx)
}

// Delete deletes all rows matched by the WHERE clause of a query
// statement, in a single DELETE.
func (st *Statement) Delete(ctx context.Context) (*Result, error) {
	table, where, err := st.target()
	if err != nil {
		return nil, err
	}
	return st.sess.Delete(table).BindNamed("where", where).Exec(ctx)
}

func (st *Statement) target() (string, *template.Template, error) {
	if st.err != nil {
		return "", nil, st.err
	}
	where, ok := st.clause("where")
	if !ok {
		return "", nil, fmt.Errorf("quill: statement %q has no where clause", st.tpl.Text())
	}
	table := st.Table()
	if table == "" {
		if _, err := st.Resolve(); err != nil {
			return "", nil, err
		}
		return "", nil, fmt.Errorf("quill: statement %q has no table", st.tpl.Text())
	}
	return table, where, nil
}

// Ref returns a query for the row referenced by the rows of st under the
// association name. See Row.Ref.
func (st *Statement) Ref(name string) *Statement {
	return st.sess.ref(st, name)
}

// List returns a query for the rows referencing the rows of st under the
// association name. See Row.List.
func (st *Statement) List(name string) *Statement {
	return st.sess.ref(st, asList(name))
}
