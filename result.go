package quill

import (
	"bytes"
	"context"
	"encoding/json"
	"iter"
	"slices"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/quill/contrib/dataloader"
)

// Result is the outcome of executing a statement: the rows it returned,
// in order, or the counts reported for a write.
type Result struct {
	sess     *Session
	stmt     *Statement
	table    string
	columns  []string
	rows     []*Row
	affected int64
	insertID any
}

var (
	_ json.Marshaler        = (*Result)(nil)
	_ msgpack.CustomEncoder = (*Result)(nil)
	_ Source                = (*Result)(nil)
)

// Table returns the primary table of the statement.
func (r *Result) Table() string { return r.table }

// Statement returns the statement the result was produced by.
func (r *Result) Statement() *Statement { return r.stmt }

// Columns returns the column names of a row-returning statement.
func (r *Result) Columns() []string { return slices.Clone(r.columns) }

// Rows returns the rows of the result.
func (r *Result) Rows() []*Row { return slices.Clone(r.rows) }

// All iterates over the rows of the result. It can be ranged over any
// number of times.
func (r *Result) All() iter.Seq2[int, *Row] {
	return slices.All(r.rows)
}

// Len returns the number of rows.
func (r *Result) Len() int { return len(r.rows) }

// First returns the first row, nil for an empty result.
func (r *Result) First() *Row {
	if len(r.rows) == 0 {
		return nil
	}
	return r.rows[0]
}

// Affected returns the number of rows affected by a write.
func (r *Result) Affected() int64 { return r.affected }

// InsertID returns the identity the driver reported for an insert, nil
// if none.
func (r *Result) InsertID() any { return r.insertID }

// Keys returns the distinct non-nil values of column across the rows.
func (r *Result) Keys(column string) []any {
	keys := make([]any, 0, len(r.rows))
	for _, row := range r.rows {
		if v := row.Get(column); v != nil {
			keys = append(keys, normalizeKey(v))
		}
	}
	return dataloader.Distinct(keys, func(k any) any { return k })
}

// Index groups the rows by the value of column.
func (r *Result) Index(column string) map[any][]*Row {
	return dataloader.GroupByKey(r.rows, func(row *Row) any {
		return normalizeKey(row.Get(column))
	})
}

// Ref returns a query for the rows referenced by the rows of r under the
// association name. See Row.Ref.
func (r *Result) Ref(name string) *Statement {
	return r.sess.ref(r, name)
}

// List returns a query for the rows referencing the rows of r under the
// association name. See Row.List.
func (r *Result) List(name string) *Statement {
	return r.sess.ref(r, asList(name))
}

// Update sets data on every row of the result and stores it with one
// UPDATE by primary key. Rows of tables with a composite key are updated
// one by one.
func (r *Result) Update(ctx context.Context, data map[string]any) error {
	if len(r.rows) == 0 || len(data) == 0 {
		return nil
	}
	key := r.sess.conv.Primary(r.table)
	if key.Composite() {
		for _, row := range r.rows {
			if err := row.Update(ctx, data); err != nil {
				return err
			}
		}
		return nil
	}
	if _, err := r.sess.Update(r.table, data).Where(key.Column(), r.ids()).Exec(ctx); err != nil {
		return err
	}
	for _, row := range r.rows {
		for _, col := range sortedKeys(data) {
			row.put(col, Scalar(data[col]))
		}
		row.setClean()
	}
	return nil
}

// Delete deletes every row of the result.
func (r *Result) Delete(ctx context.Context) error {
	if len(r.rows) == 0 {
		return nil
	}
	key := r.sess.conv.Primary(r.table)
	if key.Composite() {
		for _, row := range r.rows {
			if err := row.Delete(ctx); err != nil {
				return err
			}
		}
		return nil
	}
	if _, err := r.sess.Delete(r.table).Where(key.Column(), r.ids()).Exec(ctx); err != nil {
		return err
	}
	for _, row := range r.rows {
		row.original = nil
		row.setDirty()
	}
	return nil
}

func (r *Result) ids() []any {
	ids := make([]any, 0, len(r.rows))
	for _, row := range r.rows {
		if id := row.OriginalID(); id != nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// Plain returns the rows as a list of nested maps.
func (r *Result) Plain() []map[string]any {
	out := make([]map[string]any, len(r.rows))
	for i, row := range r.rows {
		out[i] = row.Plain()
	}
	return out
}

// MarshalJSON encodes the result as a JSON array of rows.
func (r *Result) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, row := range r.rows {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := row.encodeJSON(&buf, map[*Row]bool{}); err != nil {
			return nil, err
		}
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// EncodeMsgpack implements msgpack.CustomEncoder, encoding the result as
// an array of rows.
func (r *Result) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeArrayLen(len(r.rows)); err != nil {
		return err
	}
	for _, row := range r.rows {
		if err := row.EncodeMsgpack(enc); err != nil {
			return err
		}
	}
	return nil
}
