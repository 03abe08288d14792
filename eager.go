package quill

import (
	"context"
	"fmt"

	"github.com/syssam/quill/contrib/dataloader"
	"github.com/syssam/quill/schema"
)

// Source is the other side of an association: a *Row, a *Result or a
// *Statement.
type Source interface {
	sourceTable() (string, error)
	sourceRows(ctx context.Context) ([]*Row, error)
}

func (r *Row) sourceTable() (string, error) { return r.table, nil }

func (r *Row) sourceRows(context.Context) ([]*Row, error) { return []*Row{r}, nil }

func (r *Result) sourceTable() (string, error) { return r.table, nil }

func (r *Result) sourceRows(context.Context) ([]*Row, error) { return r.rows, nil }

func (st *Statement) sourceTable() (string, error) {
	res, err := st.Resolve()
	if err != nil {
		return "", err
	}
	if res.Table == "" {
		return "", fmt.Errorf("quill: statement %q has no table", res.SQL)
	}
	return res.Table, nil
}

func (st *Statement) sourceRows(ctx context.Context) ([]*Row, error) {
	res, err := st.Exec(ctx)
	if err != nil {
		return nil, err
	}
	return res.rows, nil
}

// eager loads the rows of a query table T associated with the rows of a
// source O. Rows of T match when their column tkey equals the column okey
// of a row of O.
type eager struct {
	other   Source
	forward bool
	tkey    string
	okey    string
}

// ReferencedBy makes st load the rows of its table that the rows of other
// reference: its primary key matched against the foreign key column of
// other, set with Via. The first execution fetches the referenced rows of
// every cached row of other's table in one query; later executions for
// other rows of that table are served from the cache.
func (st *Statement) ReferencedBy(other Source) *Statement {
	return st.withEager(other, true)
}

// Referencing makes st load the rows of its table that reference the rows
// of other: a foreign key column of its table, set with Via, matched
// against the primary key of other.
func (st *Statement) Referencing(other Source) *Statement {
	return st.withEager(other, false)
}

func (st *Statement) withEager(other Source, forward bool) *Statement {
	if st.err != nil {
		return st
	}
	table, err := st.sourceTable()
	if err != nil {
		return st.fail(err)
	}
	otable, err := other.sourceTable()
	if err != nil {
		return st.fail(err)
	}
	conv := st.sess.conv
	e := &eager{other: other, forward: forward}
	if forward {
		e.tkey = conv.Primary(table).Column()
		e.okey = conv.Reference(otable, table)
	} else {
		e.tkey = conv.BackReference(otable, table)
		e.okey = conv.Primary(otable).Column()
	}
	c := st.with(st.tpl)
	c.eager = e
	return c
}

// Via sets the foreign key column of an eager statement: the column of
// the other side for ReferencedBy, the column of the statement table for
// Referencing.
func (st *Statement) Via(column string) *Statement {
	if st.err != nil || st.eager == nil {
		return st
	}
	e := *st.eager
	if e.forward {
		e.okey = column
	} else {
		e.tkey = column
	}
	c := st.with(st.tpl)
	c.eager = &e
	return c
}

// Late drops eager loading: the statement runs as written.
func (st *Statement) Late() *Statement {
	if st.eager == nil {
		return st
	}
	c := st.with(st.tpl)
	c.eager = nil
	return c
}

func (e *eager) exec(ctx context.Context, st *Statement) (*Result, error) {
	table, err := st.sourceTable()
	if err != nil {
		return nil, err
	}
	otable, err := e.other.sourceTable()
	if err != nil {
		return nil, err
	}
	orows, err := e.other.sourceRows(ctx)
	if err != nil {
		return nil, err
	}
	out := &Result{sess: st.sess, stmt: st, table: table, rows: []*Row{}}
	if len(orows) == 0 {
		return out, nil
	}
	var own []any
	loaded := false
	for _, row := range orows {
		if !row.Has(e.okey) {
			continue
		}
		loaded = true
		if v := row.Get(e.okey); v != nil {
			own = append(own, normalizeKey(v))
		}
	}
	if !loaded {
		return nil, &KeyNotLoadedError{Table: otable, Column: e.okey}
	}
	if len(own) == 0 {
		return out, nil
	}
	own = dataloader.Distinct(own, func(k any) any { return k })
	known := dataloader.Distinct(append(st.sess.KnownKeys(otable, e.okey), own...), func(k any) any { return k })
	st.sess.log.DebugContext(ctx, "eager load", "table", table, "column", e.tkey, "keys", len(known))

	batch, err := st.Late().Where(e.tkey, known).Exec(ctx)
	if err != nil {
		return nil, err
	}
	want := make(map[any]struct{}, len(own))
	for _, k := range own {
		want[k] = struct{}{}
	}
	for _, row := range batch.rows {
		if _, ok := want[normalizeKey(row.Get(e.tkey))]; ok {
			out.rows = append(out.rows, row)
		}
	}
	out.columns = batch.columns
	return out, nil
}

// ref returns the query for the association name of src. A name with a
// list suffix ("commentList") follows a back reference and yields many
// rows; any other name ("author") follows a reference of src.
func (s *Session) ref(src Source, name string) *Statement {
	base, list := schema.ListName(name)
	table := s.conv.Alias(base)
	otable, err := src.sourceTable()
	q := s.Query(table)
	switch {
	case err != nil:
		return q.fail(err)
	case !s.conv.HasTable(table):
		return q.fail(&UnknownAssociationError{Name: name})
	case list:
		return q.Referencing(src).Via(s.conv.BackReference(otable, base))
	default:
		return q.ReferencedBy(src).Via(s.conv.Reference(otable, base))
	}
}

func asList(name string) string {
	if _, list := schema.ListName(name); list {
		return name
	}
	return name + "List"
}

// Ref returns a query for the row the receiver references under the
// association name, through the column Conventions.Reference(table,
// name), "<name>_id" by default:
//
//	author, err := post.Ref("author").First(ctx)
//
// The query is eager: executing it for one post loads the authors of all
// posts fetched so far.
func (r *Row) Ref(name string) *Statement {
	return r.sess.ref(r, name)
}

// List returns a query for the rows referencing the receiver under the
// association name, through the column Conventions.BackReference(table,
// name), "<table>_id" by default:
//
//	comments, err := post.List("comment").Exec(ctx)
func (r *Row) List(name string) *Statement {
	return r.sess.ref(r, asList(name))
}
