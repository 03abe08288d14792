// Package template tokenizes and resolves SQL templates.
//
// A template is SQL text with markers that are substituted on resolve:
//
//	?       positional value, bound by the driver
//	??      positional value, inlined as a quoted literal
//	:name   named value, bound by the driver
//	::name  named value, inlined as a quoted literal
//	&name   table name, rewritten and quoted as an identifier
//
// Markers inside quoted literals and comments are left untouched.
// Values may themselves be templates (or any Fragment), which are
// resolved recursively and spliced into the surrounding text.
package template

import (
	"maps"
	"slices"
	"sync/atomic"
)

// Params holds named values. A Params argument to New or Bind binds
// names instead of a positional value.
type Params map[string]any

// Fragment is implemented by values that resolve to a template, like
// statements of a session.
type Fragment interface {
	Template() (*Template, error)
}

// Template is an immutable SQL template with bound values. Binding
// returns a new Template; the receiver is never changed.
type Template struct {
	text       string
	positional []any
	named      Params
	tokens     *tokenCache
}

type tokenCache struct {
	p atomic.Pointer[tokenized]
}

type tokenized struct {
	tokens []Token
	err    error
}

// New returns a template for text with the given values bound.
//
//	template.New("SELECT * FROM &post WHERE id = ?", 1)
//	template.New("SELECT * FROM &post WHERE id = :id", template.Params{"id": 1})
func New(text string, args ...any) *Template {
	t := &Template{text: text, tokens: &tokenCache{}}
	return t.bind(args)
}

// Text returns the raw template text.
func (t *Template) Text() string { return t.text }

// Template implements Fragment.
func (t *Template) Template() (*Template, error) { return t, nil }

// Bind returns a copy of t with args appended to the positional values.
// Params arguments are merged into the named values instead, replacing
// values of the same name.
func (t *Template) Bind(args ...any) *Template {
	return t.bind(args)
}

// BindNamed returns a copy of t with name bound to v.
func (t *Template) BindNamed(name string, v any) *Template {
	return t.bind([]any{Params{name: v}})
}

func (t *Template) bind(args []any) *Template {
	c := *t
	if len(args) == 0 {
		return &c
	}
	c.positional = slices.Clone(t.positional)
	c.named = maps.Clone(t.named)
	for _, a := range args {
		p, ok := a.(Params)
		if !ok {
			c.positional = append(c.positional, a)
			continue
		}
		if c.named == nil {
			c.named = make(Params, len(p))
		}
		maps.Copy(c.named, p)
	}
	return &c
}

// Positional returns the i-th positional value.
func (t *Template) Positional(i int) (any, bool) {
	if i < 0 || i >= len(t.positional) {
		return nil, false
	}
	return t.positional[i], true
}

// Named returns the value bound to name.
func (t *Template) Named(name string) (any, bool) {
	v, ok := t.named[name]
	return v, ok
}

// Tokens returns the tokens of the template text. The result is computed
// once and shared by all templates bound from the same New call.
func (t *Template) Tokens() ([]Token, error) {
	if t.tokens == nil {
		return Tokenize(t.text)
	}
	if r := t.tokens.p.Load(); r != nil {
		return r.tokens, r.err
	}
	tokens, err := Tokenize(t.text)
	t.tokens.p.Store(&tokenized{tokens: tokens, err: err})
	return tokens, err
}

func (t *Template) String() string { return t.text }
