package quill

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"slices"
	"strings"

	"github.com/syssam/quill/contrib/dataloader"
	"github.com/syssam/quill/dialect"
	"github.com/syssam/quill/dialect/sql"
	"github.com/syssam/quill/schema"
	"github.com/syssam/quill/template"
)

// Session wraps one driver. It owns the naming conventions, the result
// cache and the known keys derived from it.
type Session struct {
	drv   dialect.Driver
	conv  *schema.Conventions
	log   *slog.Logger
	cache *resultCache
	txs   *txSlot
}

// Option configures a Session.
type Option func(*Session)

// WithConventions sets the naming conventions of the session.
func WithConventions(c *schema.Conventions) Option {
	return func(s *Session) {
		s.conv = c
	}
}

// WithLogger sets the logger for statement and save events.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.log = l
	}
}

// New returns a session for drv. Without options the default conventions
// are used and nothing is logged.
func New(drv dialect.Driver, opts ...Option) *Session {
	s := &Session{
		drv:   drv,
		conv:  schema.New(),
		log:   slog.New(slog.DiscardHandler),
		cache: newResultCache(),
		txs:   &txSlot{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Driver returns the driver of the session.
func (s *Session) Driver() dialect.Driver { return s.drv }

// Dialect returns the dialect name of the driver.
func (s *Session) Dialect() string { return s.drv.Dialect() }

// Conventions returns the naming conventions of the session.
func (s *Session) Conventions() *schema.Conventions { return s.conv }

// Close closes the underlying driver.
func (s *Session) Close() error { return s.drv.Close() }

// Resolver returns the template resolver of the session dialect.
func (s *Session) Resolver() template.Resolver {
	return template.NewResolver(s.drv.Dialect(), s.conv.RewriteTable)
}

// Clear returns a session sharing the driver, conventions and any open
// transaction of s, with an empty result cache.
func (s *Session) Clear() *Session {
	c := *s
	c.cache = newResultCache()
	return &c
}

// SQL returns a statement for text with args bound.
//
//	s.SQL("SELECT * FROM &post WHERE id = ?", 1)
func (s *Session) SQL(text string, args ...any) *Statement {
	return s.statement(template.New(text, args...))
}

// QuoteIdentifier quotes name as an identifier of the session dialect.
func (s *Session) QuoteIdentifier(name string) string {
	return dialect.QuoterFor(s.drv.Dialect()).QuoteIdentifier(name)
}

// QuoteValue formats v as a SQL literal of the session dialect.
func (s *Session) QuoteValue(v any) (string, error) {
	return s.Resolver().Literal(v)
}

var (
	tablePattern  = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)
	columnPattern = regexp.MustCompile("(?i)^[a-z0-9_.`\"]+$")
)

// Table returns a fragment for the table name, rewritten and quoted on
// resolve. Names that are not plain identifiers fail with
// InvalidTableError.
func (s *Session) Table(name string) *Statement {
	st := s.SQL("&" + name)
	if !tablePattern.MatchString(name) {
		return st.fail(&InvalidTableError{Name: name})
	}
	return st
}

var (
	// Initial values of the builder clauses. They are replaced, not
	// extended, by the first call of the matching builder.
	selectAll = template.New("*")
	always    = template.New("1=1")
	empty     = template.New("")
)

// Query returns a SELECT statement for table. Refine it with Select,
// Where, OrderBy and Limit.
func (s *Session) Query(table string) *Statement {
	st := s.SQL("SELECT ::select FROM ::table WHERE ::where::orderBy::limit", template.Params{
		"select":  selectAll,
		"table":   s.Table(table),
		"where":   always,
		"orderBy": empty,
		"limit":   empty,
	})
	if !s.conv.HasTable(table) {
		return st.fail(&UnknownAssociationError{Name: table})
	}
	return st
}

// Get returns the row of table with the given primary key. Composite keys
// are given as a map of column to value. Missing rows fail with
// NotFoundError.
func (s *Session) Get(ctx context.Context, table string, id any) (*Row, error) {
	st := s.Query(table)
	key := s.conv.Primary(table)
	if m, ok := id.(map[string]any); ok {
		st = st.WhereMap(m)
	} else if key.Composite() {
		return nil, fmt.Errorf("quill: composite key %s of %s needs a map", key, table)
	} else {
		st = st.Where(key.Column(), id)
	}
	res, err := st.Exec(ctx)
	if err != nil {
		return nil, err
	}
	if res.Len() == 0 {
		return nil, NewNotFoundError(table, id)
	}
	return res.First(), nil
}

// GetMany returns the rows of table with the given single column primary
// keys, in the order of ids. Keys without a row yield nil entries.
func (s *Session) GetMany(ctx context.Context, table string, ids []any) ([]*Row, error) {
	key := s.conv.Primary(table)
	if key.Composite() {
		return nil, fmt.Errorf("quill: GetMany does not support composite key %s of %s", key, table)
	}
	res, err := s.Query(table).Where(key.Column(), ids).Exec(ctx)
	if err != nil {
		return nil, err
	}
	keys := make([]any, len(ids))
	for i, id := range ids {
		keys[i] = normalizeKey(id)
	}
	return dataloader.OrderByKeysNoError(keys, res.Rows(), func(r *Row) any {
		return normalizeKey(r.Get(key.Column()))
	}), nil
}

// Insert returns an INSERT statement for one or more rows. The column list
// is the union of all row keys; a row lacking a column inserts DEFAULT.
// Inserting no rows is a statement that does nothing.
func (s *Session) Insert(table string, rows ...map[string]any) *Statement {
	return s.insert(table, rows, "")
}

func (s *Session) insert(table string, rows []map[string]any, returning string) *Statement {
	if len(rows) == 0 {
		return s.noop(table)
	}
	columns := insertColumns(rows)
	if len(columns) == 0 {
		columns = slices.Clone(s.conv.Primary(table))
	}
	// SQLite does not accept DEFAULT in a VALUES list.
	absent := "DEFAULT"
	if s.drv.Dialect() == dialect.SQLite {
		absent = "NULL"
	}
	var (
		values []string
		args   []any
	)
	for _, row := range rows {
		cells := make([]string, len(columns))
		for i, col := range columns {
			v, ok := row[col]
			if !ok {
				cells[i] = absent
				continue
			}
			cells[i] = "?"
			args = append(args, v)
		}
		values = append(values, "("+strings.Join(cells, ", ")+")")
	}
	text := "INSERT INTO ::table (::columns) VALUES ::values"
	params := template.Params{
		"table":   s.Table(table),
		"columns": template.New(s.quoteColumns(columns)),
		"values":  template.New(strings.Join(values, ", "), args...),
	}
	if returning != "" {
		text += " RETURNING ::returning"
		params["returning"] = template.New(s.QuoteIdentifier(returning))
	}
	return s.SQL(text, params)
}

// insertColumns returns the sorted union of the keys of rows.
func insertColumns(rows []map[string]any) []string {
	var columns []string
	for _, row := range rows {
		for col := range row {
			if !slices.Contains(columns, col) {
				columns = append(columns, col)
			}
		}
	}
	slices.Sort(columns)
	return columns
}

// Update returns an UPDATE statement setting data on table. Restrict it
// with Where. Updating no columns is a statement that does nothing.
func (s *Session) Update(table string, data map[string]any) *Statement {
	if len(data) == 0 {
		return s.noop(table)
	}
	return s.SQL("UPDATE ::table SET ::set WHERE ::where::limit", template.Params{
		"table": s.Table(table),
		"set":   s.Assign(data),
		"where": always,
		"limit": empty,
	})
}

// Delete returns a DELETE statement for table. Restrict it with Where.
func (s *Session) Delete(table string) *Statement {
	return s.SQL("DELETE FROM ::table WHERE ::where::limit", template.Params{
		"table": s.Table(table),
		"where": always,
		"limit": empty,
	})
}

// Assign returns the column assignments of an UPDATE SET clause, in
// column order.
func (s *Session) Assign(data map[string]any) *template.Template {
	columns := sortedKeys(data)
	parts := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, col := range columns {
		parts[i] = s.QuoteIdentifier(col) + " = ?"
		args[i] = data[col]
	}
	return template.New(strings.Join(parts, ", "), args...)
}

// Is returns the condition "column is value". Nil compares with IS NULL, a
// slice becomes an IN list that also matches NULL if the slice holds nil,
// and an empty slice matches nothing.
func (s *Session) Is(column string, value any) *template.Template {
	return s.is(column, value, false)
}

// IsNot returns the negation of Is.
func (s *Session) IsNot(column string, value any) *template.Template {
	return s.is(column, value, true)
}

func (s *Session) is(column string, value any, not bool) *template.Template {
	var (
		neg, bang, join, none = "", "", " OR ", "0=1"
	)
	if not {
		neg, bang, join, none = " NOT", "!", " AND ", "1=1"
	}
	values := listOf(value)
	col := s.QuoteIdentifier(column)
	switch len(values) {
	case 0:
		return template.New(none)
	case 1:
		if values[0] == nil {
			return template.New(col + " IS" + neg + " NULL")
		}
		return template.New(col+" "+bang+"= ?", values[0])
	}
	var (
		set     []any
		null    bool
		clauses []string
	)
	for _, v := range values {
		if v == nil {
			null = true
			continue
		}
		set = append(set, v)
	}
	args := []any{}
	if len(set) > 0 {
		clauses = append(clauses, col+neg+" IN (?)")
		args = append(args, set)
	}
	if null {
		clauses = append(clauses, col+" IS"+neg+" NULL")
	}
	return template.New(strings.Join(clauses, join), args...)
}

// KnownKeys returns the distinct non-nil values of column across all
// cached rows of table, in the order they were first fetched.
func (s *Session) KnownKeys(table, column string) []any {
	var keys []any
	for _, res := range s.cache.results() {
		if res.table != table {
			continue
		}
		for _, row := range res.rows {
			if v := row.Get(column); v != nil {
				keys = append(keys, normalizeKey(v))
			}
		}
	}
	return dataloader.Distinct(keys, func(k any) any { return k })
}

// LastInsertID returns the identity generated by the last insert into
// table on the current connection: currval of the table sequence on
// Postgres, LAST_INSERT_ID() on MySQL and last_insert_rowid() on SQLite.
// Outside a transaction the connection pool may answer from another
// connection.
func (s *Session) LastInsertID(ctx context.Context, table string) (any, error) {
	var (
		query string
		args  = []any{}
	)
	switch s.drv.Dialect() {
	case dialect.Postgres:
		seq := s.conv.Sequence(table)
		if seq == "" {
			return nil, nil
		}
		query = "SELECT currval($1)"
		args = append(args, seq)
	case dialect.MySQL:
		query = "SELECT LAST_INSERT_ID()"
	default:
		query = "SELECT last_insert_rowid()"
	}
	_, records, err := s.query(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 || len(records[0]) == 0 {
		return nil, nil
	}
	return records[0][0], nil
}

func (s *Session) statement(t *template.Template) *Statement {
	return &Statement{sess: s, tpl: t, resolved: &resolveOnce{}}
}

// noop is a statement for table that is never sent to the database.
func (s *Session) noop(table string) *Statement {
	st := s.SQL("SELECT 1 FROM ::table WHERE 1=0", template.Params{"table": s.Table(table)})
	st.noop = true
	return st
}

func (s *Session) quoteColumns(columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = s.QuoteIdentifier(c)
	}
	return strings.Join(quoted, ", ")
}

// conn returns the open transaction, or the driver outside of one.
func (s *Session) conn() dialect.ExecQuerier {
	if state := s.txs.get(); state != nil {
		return state.tx
	}
	return s.drv
}

// exec runs a resolved statement. Reads are served from and stored in the
// result cache; writes always reach the database.
func (s *Session) exec(ctx context.Context, st *Statement) (*Result, error) {
	if st.eager != nil {
		return st.eager.exec(ctx, st)
	}
	res, err := st.Resolve()
	if err != nil {
		return nil, err
	}
	if st.noop {
		return &Result{sess: s, stmt: st, table: res.Table}, nil
	}
	switch classify(res.SQL) {
	case writeStatement:
		return s.write(ctx, st, res)
	case returningStatement:
		return s.read(ctx, st, res)
	}
	key, err := CacheKey{SQL: res.SQL, Args: res.Args}.Encode()
	if err != nil {
		s.log.DebugContext(ctx, "uncacheable statement", "sql", res.SQL, "error", err)
		return s.read(ctx, st, res)
	}
	if r, ok := s.cache.get(key); ok {
		s.log.DebugContext(ctx, "cache hit", "sql", res.SQL)
		return r, nil
	}
	return s.cache.do(key, func() (*Result, error) {
		return s.read(ctx, st, res)
	})
}

func (s *Session) read(ctx context.Context, st *Statement, res *template.Resolved) (*Result, error) {
	columns, records, err := s.query(ctx, res.SQL, res.Args)
	if err != nil {
		return nil, err
	}
	r := &Result{sess: s, stmt: st, table: res.Table, columns: columns, rows: make([]*Row, 0, len(records))}
	for _, rec := range records {
		r.rows = append(r.rows, s.load(res.Table, columns, rec))
	}
	return r, nil
}

func (s *Session) query(ctx context.Context, query string, args []any) ([]string, [][]any, error) {
	s.log.DebugContext(ctx, "query", "sql", query, "args", args)
	var rows sql.Rows
	if err := s.conn().Query(ctx, query, args, &rows); err != nil {
		return nil, nil, wrapDriver("query", query, err)
	}
	columns, records, err := sql.ScanRecords(rows)
	if err != nil {
		return nil, nil, wrapDriver("query", query, err)
	}
	return columns, records, nil
}

func (s *Session) write(ctx context.Context, st *Statement, res *template.Resolved) (*Result, error) {
	s.log.DebugContext(ctx, "exec", "sql", res.SQL, "args", res.Args)
	var out sql.Result
	if err := s.conn().Exec(ctx, res.SQL, res.Args, &out); err != nil {
		return nil, wrapDriver("exec", res.SQL, err)
	}
	r := &Result{sess: s, stmt: st, table: res.Table}
	if n, err := out.RowsAffected(); err == nil {
		r.affected = n
	}
	if id, err := out.LastInsertId(); err == nil && id != 0 {
		r.insertID = id
	}
	return r, nil
}

type statementKind uint8

const (
	writeStatement statementKind = iota
	readStatement
	returningStatement
)

var readVerbs = map[string]bool{
	"SELECT":   true,
	"WITH":     true,
	"VALUES":   true,
	"SHOW":     true,
	"PRAGMA":   true,
	"EXPLAIN":  true,
	"DESCRIBE": true,
	"DESC":     true,
}

// classify tells reads from writes by the first keyword of the statement.
// Writes with a RETURNING clause produce rows but are never cached.
func classify(query string) statementKind {
	tokens, err := template.Tokenize(query)
	if err != nil {
		return writeStatement
	}
	var (
		first string
		ret   bool
	)
	for _, tok := range tokens {
		if tok.Kind != template.Other {
			continue
		}
		words := strings.FieldsFunc(tok.Text, func(r rune) bool {
			return !('a' <= r && r <= 'z' || 'A' <= r && r <= 'Z')
		})
		for _, w := range words {
			w = strings.ToUpper(w)
			if first == "" {
				first = w
				continue
			}
			if w == "RETURNING" {
				ret = true
			}
		}
	}
	switch {
	case ret:
		return returningStatement
	case readVerbs[first]:
		return readStatement
	default:
		return writeStatement
	}
}

// listOf returns the elements of a slice value, or v as the only element.
// Byte slices are scalars.
func listOf(v any) []any {
	switch v := v.(type) {
	case []any:
		return v
	case []byte, nil:
		return []any{v}
	}
	rv := reflectValue(v)
	if !rv.IsValid() {
		return []any{v}
	}
	out := make([]any, rv.Len())
	for i := range rv.Len() {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
