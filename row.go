package quill

import (
	"bytes"
	"encoding/json"
	"slices"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/syssam/quill/schema"
)

// Row is a row of a table: an ordered set of properties that are column
// values or nested rows. A row tracks its modified properties and the
// primary key it was loaded or saved with.
type Row struct {
	sess     *Session
	table    string
	keys     []string
	props    map[string]Value
	modified map[string]struct{}
	original any
}

var (
	_ json.Marshaler        = (*Row)(nil)
	_ msgpack.CustomEncoder = (*Row)(nil)
	_ Source                = (*Row)(nil)
)

// NewRow returns a new, unsaved row of table with data set in column
// order. Nested maps and lists of maps become nested rows, see Set.
func (s *Session) NewRow(table string, data ...map[string]any) *Row {
	r := newRow(s, table)
	for _, d := range data {
		for _, col := range sortedKeys(d) {
			r.Set(col, d[col])
		}
	}
	return r
}

func newRow(s *Session, table string) *Row {
	return &Row{
		sess:     s,
		table:    table,
		props:    make(map[string]Value),
		modified: make(map[string]struct{}),
	}
}

// load returns a clean row from a fetched record.
func (s *Session) load(table string, columns []string, record []any) *Row {
	r := newRow(s, table)
	for i, col := range columns {
		r.put(col, Scalar(record[i]))
	}
	r.setClean()
	return r
}

// Table returns the table of the row.
func (r *Row) Table() string { return r.table }

// Session returns the session of the row.
func (r *Row) Session() *Session { return r.sess }

// Keys returns the property names in order.
func (r *Row) Keys() []string { return slices.Clone(r.keys) }

// Has reports whether the property is set, even to nil.
func (r *Row) Has(name string) bool {
	_, ok := r.props[name]
	return ok
}

// Get returns the property: a scalar, a *Row or a []*Row. Unset
// properties are nil.
func (r *Row) Get(name string) any {
	return r.props[name].Interface()
}

// Value returns the property as a Value.
func (r *Row) Value(name string) (Value, bool) {
	v, ok := r.props[name]
	return v, ok
}

// Set sets a property and marks it modified. Setting a scalar to its
// current value changes nothing. A map[string]any becomes a nested row of
// the table the name is an alias of; a list of maps (for names like
// "commentList" or "comment_list") becomes a list of nested rows.
func (r *Row) Set(name string, v any) *Row {
	val := r.convert(name, v)
	if old, ok := r.props[name]; ok && old.kind == ScalarValue && val.kind == ScalarValue && equalScalar(old.scalar, val.scalar) {
		return r
	}
	r.put(name, val)
	r.modified[name] = struct{}{}
	return r
}

// SetData sets every entry of data in column order.
func (r *Row) SetData(data map[string]any) *Row {
	for _, col := range sortedKeys(data) {
		r.Set(col, data[col])
	}
	return r
}

// Unset removes a property.
func (r *Row) Unset(name string) *Row {
	if _, ok := r.props[name]; !ok {
		return r
	}
	delete(r.props, name)
	delete(r.modified, name)
	r.keys = slices.DeleteFunc(r.keys, func(k string) bool { return k == name })
	return r
}

func (r *Row) put(name string, v Value) {
	if _, ok := r.props[name]; !ok {
		r.keys = append(r.keys, name)
	}
	r.props[name] = v
}

func (r *Row) convert(name string, v any) Value {
	base, _ := schema.ListName(name)
	child := func(data map[string]any) *Row {
		return r.sess.NewRow(r.sess.conv.Alias(base), data)
	}
	switch v := v.(type) {
	case Value:
		return v
	case *Row:
		return SubRow(v)
	case []*Row:
		return SubRowList(v)
	case map[string]any:
		return SubRow(child(v))
	case []map[string]any:
		rows := make([]*Row, len(v))
		for i, data := range v {
			rows[i] = child(data)
		}
		return SubRowList(rows)
	case []any:
		if len(v) == 0 {
			break
		}
		rows := make([]*Row, 0, len(v))
		for _, e := range v {
			switch e := e.(type) {
			case *Row:
				rows = append(rows, e)
			case map[string]any:
				rows = append(rows, child(e))
			default:
				return Scalar(v)
			}
		}
		return SubRowList(rows)
	}
	return Scalar(v)
}

// ID returns the primary key of the row: the key column value, or for
// composite keys the list of key column values. It is nil while any key
// column is unset.
func (r *Row) ID() any {
	key := r.sess.conv.Primary(r.table)
	if !key.Composite() {
		return r.scalar(key.Column())
	}
	id := make([]any, len(key))
	for i, col := range key {
		if id[i] = r.scalar(col); id[i] == nil {
			return nil
		}
	}
	return id
}

// OriginalID returns the primary key the row was loaded or last saved
// with, nil for new rows.
func (r *Row) OriginalID() any { return r.original }

// Exists reports whether the row is stored in the database.
func (r *Row) Exists() bool { return r.original != nil }

// Clean reports whether the row has no unsaved modifications.
func (r *Row) Clean() bool { return len(r.modified) == 0 }

// Data returns the scalar properties of the row.
func (r *Row) Data() map[string]any {
	data := make(map[string]any, len(r.props))
	for name, v := range r.props {
		if v.kind == ScalarValue {
			data[name] = v.scalar
		}
	}
	return data
}

// Modified returns the modified scalar properties of the row.
func (r *Row) Modified() map[string]any {
	data := make(map[string]any, len(r.modified))
	for name := range r.modified {
		if v := r.props[name]; v.kind == ScalarValue {
			data[name] = v.scalar
		}
	}
	return data
}

func (r *Row) scalar(name string) any {
	if v := r.props[name]; v.kind == ScalarValue {
		return v.scalar
	}
	return nil
}

func (r *Row) setClean() {
	r.original = r.ID()
	clear(r.modified)
}

func (r *Row) setDirty() {
	for _, k := range r.keys {
		r.modified[k] = struct{}{}
	}
}

// keyWhere returns the column conditions selecting the row by id.
func (r *Row) keyWhere(id any) map[string]any {
	key := r.sess.conv.Primary(r.table)
	if !key.Composite() {
		return map[string]any{key.Column(): id}
	}
	ids, _ := id.([]any)
	where := make(map[string]any, len(key))
	for i, col := range key {
		if i < len(ids) {
			where[col] = ids[i]
		}
	}
	return where
}

// Plain returns the row as nested maps, slices and scalars. A row
// reached again through a cycle is nil.
func (r *Row) Plain() map[string]any {
	return r.plain(map[*Row]bool{})
}

func (r *Row) plain(seen map[*Row]bool) map[string]any {
	seen[r] = true
	defer delete(seen, r)
	out := make(map[string]any, len(r.keys))
	for _, k := range r.keys {
		v := r.props[k]
		switch v.kind {
		case RowValue:
			if v.row == nil || seen[v.row] {
				out[k] = nil
				continue
			}
			out[k] = v.row.plain(seen)
		case ListValue:
			list := make([]any, 0, len(v.list))
			for _, c := range v.list {
				if seen[c] {
					list = append(list, nil)
					continue
				}
				list = append(list, c.plain(seen))
			}
			out[k] = list
		default:
			out[k] = v.scalar
		}
	}
	return out
}

// MarshalJSON encodes the row as a JSON object with properties in order.
func (r *Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := r.encodeJSON(&buf, map[*Row]bool{}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (r *Row) encodeJSON(buf *bytes.Buffer, seen map[*Row]bool) error {
	seen[r] = true
	defer delete(seen, r)
	buf.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(k)
		if err != nil {
			return err
		}
		buf.Write(name)
		buf.WriteByte(':')
		v := r.props[k]
		switch v.kind {
		case RowValue:
			err = encodeJSONRow(buf, v.row, seen)
		case ListValue:
			buf.WriteByte('[')
			for j, c := range v.list {
				if j > 0 {
					buf.WriteByte(',')
				}
				if err = encodeJSONRow(buf, c, seen); err != nil {
					break
				}
			}
			buf.WriteByte(']')
		default:
			var b []byte
			if b, err = json.Marshal(v.scalar); err == nil {
				buf.Write(b)
			}
		}
		if err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func encodeJSONRow(buf *bytes.Buffer, r *Row, seen map[*Row]bool) error {
	if r == nil || seen[r] {
		buf.WriteString("null")
		return nil
	}
	return r.encodeJSON(buf, seen)
}

// EncodeMsgpack implements msgpack.CustomEncoder, encoding the row as a
// map with properties in order.
func (r *Row) EncodeMsgpack(enc *msgpack.Encoder) error {
	return r.encodeMsgpack(enc, map[*Row]bool{})
}

func (r *Row) encodeMsgpack(enc *msgpack.Encoder, seen map[*Row]bool) error {
	seen[r] = true
	defer delete(seen, r)
	if err := enc.EncodeMapLen(len(r.keys)); err != nil {
		return err
	}
	for _, k := range r.keys {
		if err := enc.EncodeString(k); err != nil {
			return err
		}
		v := r.props[k]
		var err error
		switch v.kind {
		case RowValue:
			err = encodeMsgpackRow(enc, v.row, seen)
		case ListValue:
			if err = enc.EncodeArrayLen(len(v.list)); err != nil {
				return err
			}
			for _, c := range v.list {
				if err = encodeMsgpackRow(enc, c, seen); err != nil {
					break
				}
			}
		default:
			err = enc.Encode(v.scalar)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func encodeMsgpackRow(enc *msgpack.Encoder, r *Row, seen map[*Row]bool) error {
	if r == nil || seen[r] {
		return enc.EncodeNil()
	}
	return r.encodeMsgpack(enc, seen)
}
