package quill

import (
	"fmt"
	"reflect"
	"strconv"
)

// ValueKind tells what a row property holds.
type ValueKind uint8

// Value kinds.
const (
	ScalarValue ValueKind = iota
	RowValue
	ListValue
)

func (k ValueKind) String() string {
	switch k {
	case ScalarValue:
		return "scalar"
	case RowValue:
		return "row"
	case ListValue:
		return "list"
	default:
		return "ValueKind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a row property: a scalar column value, a nested row, or a list
// of nested rows.
type Value struct {
	kind   ValueKind
	scalar any
	row    *Row
	list   []*Row
}

// Scalar returns a scalar value.
func Scalar(v any) Value { return Value{kind: ScalarValue, scalar: v} }

// SubRow returns a nested row value.
func SubRow(r *Row) Value { return Value{kind: RowValue, row: r} }

// SubRowList returns a nested row list value.
func SubRowList(rows []*Row) Value { return Value{kind: ListValue, list: rows} }

// Kind returns the kind of the value.
func (v Value) Kind() ValueKind { return v.kind }

// Row returns the nested row, nil for other kinds.
func (v Value) Row() *Row { return v.row }

// List returns the nested rows, nil for other kinds.
func (v Value) List() []*Row { return v.list }

// Interface returns the scalar, *Row or []*Row held by v.
func (v Value) Interface() any {
	switch v.kind {
	case RowValue:
		return v.row
	case ListValue:
		return v.list
	default:
		return v.scalar
	}
}

func (v Value) String() string {
	switch v.kind {
	case RowValue:
		return fmt.Sprintf("row(%s)", v.row.table)
	case ListValue:
		return fmt.Sprintf("list(%d)", len(v.list))
	default:
		return fmt.Sprint(v.scalar)
	}
}

// normalizeKey maps key values of different Go types that denote the same
// database value to one comparable form: integers become int64, byte
// slices and decimal strings are normalized. Values that cannot be map
// keys are formatted.
func normalizeKey(v any) any {
	switch k := v.(type) {
	case nil:
		return nil
	case int64:
		return k
	case []byte:
		return normalizeKey(string(k))
	case string:
		if n, err := strconv.ParseInt(k, 10, 64); err == nil && strconv.FormatInt(n, 10) == k {
			return n
		}
		return k
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if u := rv.Uint(); u <= 1<<63-1 {
			return int64(u)
		}
	}
	if !rv.Type().Comparable() {
		return fmt.Sprint(v)
	}
	return v
}

// reflectValue returns the reflect.Value of v if it is a slice or array,
// and the zero Value otherwise.
func reflectValue(v any) reflect.Value {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
		return rv
	}
	return reflect.Value{}
}

func equalScalar(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}
