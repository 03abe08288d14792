package template

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/syssam/quill/dialect"
)

// TimeFormat is the layout of inlined time values. Times are converted
// to UTC first.
const TimeFormat = "2006-01-02 15:04:05"

// UnresolvedParameterError is returned when an inline marker (?? or
// ::name) has no bound value.
type UnresolvedParameterError struct {
	Marker string
	Pos    Position
}

func (e *UnresolvedParameterError) Error() string {
	return fmt.Sprintf("template: no value bound to %s at %s", e.Marker, e.Pos)
}

// IsUnresolvedParameter reports if err is, or wraps, an UnresolvedParameterError.
func IsUnresolvedParameter(err error) bool {
	var e *UnresolvedParameterError
	return errors.As(err, &e)
}

// Resolved is the outcome of resolving a template.
type Resolved struct {
	// SQL is the final statement text.
	SQL string
	// Args are the driver-bound values in placeholder order.
	Args []any
	// Named holds the named values of the template and all nested
	// fragments. Outer fragments win on conflicts.
	Named map[string]any
	// Table is the primary table: the first &name of the root template,
	// or else the first table of a nested fragment.
	Table string
	// Open holds the indexes into Args of the placeholders left open by
	// a resolver with Open set, in order of appearance.
	Open []int
}

// Resolver turns templates into executable SQL for one dialect.
type Resolver struct {
	Quoter dialect.Quoter
	// Rewrite maps &name table markers to physical table names. Nil
	// leaves names unchanged.
	Rewrite func(string) string
	// Open turns unbound ? and :name markers into placeholders with a nil
	// argument instead of copying them to the output. Their values are
	// supplied when a prepared statement is executed.
	Open bool
}

// NewResolver returns a resolver for the named dialect.
func NewResolver(name string, rewrite func(string) string) Resolver {
	return Resolver{Quoter: dialect.QuoterFor(name), Rewrite: rewrite}
}

// Resolve resolves f and all nested fragments. Resolution is pure:
// resolving the same fragment twice yields identical output.
func (r Resolver) Resolve(f Fragment) (*Resolved, error) {
	st := &state{r: r, named: map[string]any{}}
	table, err := st.fragment(f)
	if err != nil {
		return nil, err
	}
	return &Resolved{SQL: st.b.String(), Args: st.args, Named: st.named, Table: table, Open: st.open}, nil
}

// Literal formats v as an inlined SQL literal, the way ?? and ::name
// markers are substituted.
func (r Resolver) Literal(v any) (string, error) {
	st := &state{r: r, named: map[string]any{}}
	if _, err := st.inline(v); err != nil {
		return "", err
	}
	if len(st.args) > 0 {
		return "", fmt.Errorf("template: literal of %T has driver-bound values", v)
	}
	return st.b.String(), nil
}

func (r Resolver) table(name string) string {
	if r.Rewrite != nil {
		name = r.Rewrite(name)
	}
	return r.Quoter.QuoteIdentifier(name)
}

// state accumulates the output of one Resolve call across nested
// fragments, so placeholders are numbered globally.
type state struct {
	r     Resolver
	b     strings.Builder
	args  []any
	named map[string]any
	open  []int
}

func (st *state) fragment(f Fragment) (string, error) {
	t, err := f.Template()
	if err != nil {
		return "", err
	}
	tokens, err := t.Tokens()
	if err != nil {
		return "", err
	}
	for k, v := range t.named {
		if _, ok := st.named[k]; !ok {
			st.named[k] = v
		}
	}
	var own, nested string
	q := 0
	for _, tok := range tokens {
		var (
			table string
			err   error
		)
		switch tok.Kind {
		case Positional:
			v, ok := t.Positional(q)
			q++
			if !ok {
				st.unbound(tok)
				continue
			}
			table, err = st.bound(v)
		case Named:
			v, ok := t.Named(tok.Name())
			if !ok {
				st.unbound(tok)
				continue
			}
			table, err = st.bound(v)
		case InlinePositional:
			v, ok := t.Positional(q)
			q++
			if !ok {
				return "", &UnresolvedParameterError{Marker: tok.Text, Pos: tok.Pos}
			}
			table, err = st.inline(v)
		case InlineNamed:
			v, ok := t.Named(tok.Name())
			if !ok {
				return "", &UnresolvedParameterError{Marker: tok.Text, Pos: tok.Pos}
			}
			table, err = st.inline(v)
		case Identifier:
			if own == "" {
				own = tok.Name()
			}
			st.b.WriteString(st.r.table(tok.Name()))
		default:
			st.b.WriteString(tok.Text)
		}
		if err != nil {
			return "", err
		}
		if nested == "" {
			nested = table
		}
	}
	if own != "" {
		return own, nil
	}
	return nested, nil
}

// bound writes v as driver placeholders. Slices expand to one
// placeholder per element.
func (st *state) bound(v any) (string, error) {
	switch v := v.(type) {
	case Fragment:
		return st.fragment(v)
	case []byte, driver.Valuer, nil:
		st.placeholder(v)
		return "", nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		st.placeholder(v)
		return "", nil
	}
	if rv.Len() == 0 {
		st.b.WriteString("NULL")
		return "", nil
	}
	var table string
	for i := range rv.Len() {
		if i > 0 {
			st.b.WriteString(", ")
		}
		t, err := st.bound(rv.Index(i).Interface())
		if err != nil {
			return "", err
		}
		if table == "" {
			table = t
		}
	}
	return table, nil
}

// unbound writes a driver marker without a value: an open placeholder,
// or the marker itself.
func (st *state) unbound(tok Token) {
	if !st.r.Open {
		st.b.WriteString(tok.Text)
		return
	}
	st.open = append(st.open, len(st.args))
	st.placeholder(nil)
}

func (st *state) placeholder(v any) {
	st.args = append(st.args, v)
	st.b.WriteString(st.r.Quoter.Placeholder(len(st.args)))
}

// inline writes v as a quoted literal.
func (st *state) inline(v any) (string, error) {
	q := st.r.Quoter
	switch v := v.(type) {
	case Fragment:
		return st.fragment(v)
	case nil:
		st.b.WriteString("NULL")
	case driver.Valuer:
		dv, err := v.Value()
		if err != nil {
			return "", fmt.Errorf("template: value of %T: %w", v, err)
		}
		if _, ok := dv.(driver.Valuer); ok {
			return "", fmt.Errorf("template: %T values to itself", v)
		}
		return st.inline(dv)
	case time.Time:
		st.b.WriteString(q.QuoteString(v.UTC().Format(TimeFormat)))
	case string:
		st.b.WriteString(q.QuoteString(v))
	case []byte:
		st.b.WriteString(q.QuoteString(string(v)))
	case bool:
		st.b.WriteString(q.QuoteString(formatBool(v)))
	case fmt.Stringer:
		st.b.WriteString(q.QuoteString(v.String()))
	default:
		return st.inlineReflect(reflect.ValueOf(v))
	}
	return "", nil
}

func (st *state) inlineReflect(rv reflect.Value) (string, error) {
	q := st.r.Quoter
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			st.b.WriteString("NULL")
			return "", nil
		}
		return st.inline(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Len() == 0 {
			st.b.WriteString("NULL")
			return "", nil
		}
		var table string
		for i := range rv.Len() {
			if i > 0 {
				st.b.WriteString(", ")
			}
			t, err := st.inline(rv.Index(i).Interface())
			if err != nil {
				return "", err
			}
			if table == "" {
				table = t
			}
		}
		return table, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		st.b.WriteString(q.QuoteString(strconv.FormatInt(rv.Int(), 10)))
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		st.b.WriteString(q.QuoteString(strconv.FormatUint(rv.Uint(), 10)))
	case reflect.Float32, reflect.Float64:
		st.b.WriteString(q.QuoteString(strconv.FormatFloat(rv.Float(), 'f', 6, 64)))
	case reflect.Bool:
		st.b.WriteString(q.QuoteString(formatBool(rv.Bool())))
	case reflect.String:
		st.b.WriteString(q.QuoteString(rv.String()))
	default:
		return "", fmt.Errorf("template: cannot inline value of type %s", rv.Type())
	}
	return "", nil
}

func formatBool(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
