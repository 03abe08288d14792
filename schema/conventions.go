package schema

import (
	"slices"
	"strings"
	"sync"

	"github.com/go-openapi/inflect"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// DefaultPrimary is the primary key column of tables without an override.
const DefaultPrimary = "id"

// Key is a primary key: a single column, or an ordered column list for
// composite keys. In YAML it is a string or a list of strings.
type Key []string

// Composite reports whether the key spans more than one column.
func (k Key) Composite() bool { return len(k) > 1 }

// Column returns the first key column.
func (k Key) Column() string {
	if len(k) == 0 {
		return ""
	}
	return k[0]
}

func (k Key) String() string { return strings.Join(k, ",") }

// UnmarshalYAML implements yaml.Unmarshaler for Key.
func (k *Key) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*k = Key{node.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*k = list
		return nil
	default:
		return &yaml.TypeError{Errors: []string{"schema: key must be a string or a list of strings"}}
	}
}

// MarshalYAML implements yaml.Marshaler for Key.
func (k Key) MarshalYAML() (any, error) {
	if len(k) == 1 {
		return k[0], nil
	}
	return []string(k), nil
}

// KeyGenerator returns a fresh primary key value for a row about to be
// inserted.
type KeyGenerator func() any

// UUIDGenerator generates random (version 4) UUID strings.
func UUIDGenerator() any { return uuid.NewString() }

// PrefixRewrite returns a table rewrite hook that prepends prefix.
func PrefixRewrite(prefix string) func(string) string {
	return func(table string) string { return prefix + table }
}

// ListName strips a list suffix ("List" or "_list") from an association
// name. The second result reports whether a suffix was present.
//
//	ListName("commentList") // "comment", true
//	ListName("author")      // "author", false
func ListName(name string) (string, bool) {
	for _, suffix := range []string{"List", "_list"} {
		if base, ok := strings.CutSuffix(name, suffix); ok && base != "" {
			return base, true
		}
	}
	return name, false
}

// Conventions resolves table and column names by naming convention,
// with per-table overrides. The zero value is not usable; use New.
// Conventions are safe for concurrent use.
type Conventions struct {
	mu             sync.RWMutex
	tables         map[string]struct{}
	primary        map[string]Key
	references     map[string]map[string]string
	backReferences map[string]map[string]string
	aliases        map[string]string
	required       map[string]map[string]struct{}
	sequences      map[string]string
	generators     map[string]KeyGenerator
	rewrite        func(string) string
	singularize    bool
}

// New returns conventions with no overrides.
func New() *Conventions {
	return &Conventions{
		tables:         make(map[string]struct{}),
		primary:        make(map[string]Key),
		references:     make(map[string]map[string]string),
		backReferences: make(map[string]map[string]string),
		aliases:        make(map[string]string),
		required:       make(map[string]map[string]struct{}),
		sequences:      make(map[string]string),
		generators:     make(map[string]KeyGenerator),
	}
}

// Register adds tables to the table registry. While the registry is
// empty every table name is accepted.
func (c *Conventions) Register(tables ...string) *Conventions {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, t := range tables {
		c.tables[t] = struct{}{}
	}
	return c
}

// HasTable reports whether table is registered, or the registry is empty.
func (c *Conventions) HasTable(table string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.tables) == 0 {
		return true
	}
	_, ok := c.tables[table]
	return ok
}

// Tables returns the registered tables in sorted order.
func (c *Conventions) Tables() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.tables))
	for t := range c.tables {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// Primary returns the primary key of table. Default is "id".
func (c *Conventions) Primary(table string) Key {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if k, ok := c.primary[table]; ok {
		return k
	}
	return Key{DefaultPrimary}
}

// SetPrimary sets the primary key of table. Composite keys are never
// generated by the database, so their columns become required.
func (c *Conventions) SetPrimary(table string, columns ...string) *Conventions {
	if len(columns) == 0 {
		return c
	}
	c.mu.Lock()
	c.primary[table] = slices.Clone(columns)
	c.mu.Unlock()
	if len(columns) > 1 {
		c.SetRequired(table, columns...)
	}
	return c
}

// Reference returns the column through which table references another
// table under the association name. Default is "<name>_id".
func (c *Conventions) Reference(table, name string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if col, ok := c.references[table][name]; ok {
		return col
	}
	return name + "_id"
}

// SetReference overrides Reference for table and name.
func (c *Conventions) SetReference(table, name, column string) *Conventions {
	c.mu.Lock()
	defer c.mu.Unlock()
	setNested(c.references, table, name, column)
	return c
}

// BackReference returns the column through which other tables reference
// table under the association name. Default is "<table>_id".
func (c *Conventions) BackReference(table, name string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if col, ok := c.backReferences[table][name]; ok {
		return col
	}
	return table + "_id"
}

// SetBackReference overrides BackReference for table and name.
func (c *Conventions) SetBackReference(table, name, column string) *Conventions {
	c.mu.Lock()
	defer c.mu.Unlock()
	setNested(c.backReferences, table, name, column)
	return c
}

// Alias returns the table an association name refers to. Without an
// override the name itself is used, singularized if enabled.
func (c *Conventions) Alias(name string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if t, ok := c.aliases[name]; ok {
		return t
	}
	if c.singularize {
		return inflect.Singularize(name)
	}
	return name
}

// SetAlias makes the association name alias refer to table.
func (c *Conventions) SetAlias(alias, table string) *Conventions {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aliases[alias] = table
	return c
}

// SetSingularize toggles singularizing association names without an
// explicit alias, so that "posts" refers to table "post".
func (c *Conventions) SetSingularize(on bool) *Conventions {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.singularize = on
	return c
}

// Required returns the sorted columns of table that must be non-null
// before a row is inserted.
func (c *Conventions) Required(table string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.required[table]))
	for col := range c.required[table] {
		out = append(out, col)
	}
	slices.Sort(out)
	return out
}

// IsRequired reports whether column of table is required.
func (c *Conventions) IsRequired(table, column string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.required[table][column]
	return ok
}

// SetRequired marks columns of table as required.
func (c *Conventions) SetRequired(table string, columns ...string) *Conventions {
	c.mu.Lock()
	defer c.mu.Unlock()
	cols, ok := c.required[table]
	if !ok {
		cols = make(map[string]struct{})
		c.required[table] = cols
	}
	for _, col := range columns {
		cols[col] = struct{}{}
	}
	return c
}

// Sequence returns the primary key sequence of table, used to read
// generated identities on Postgres. Default is
// "<rewrittenTable>_<primary>_seq", and empty for composite keys.
func (c *Conventions) Sequence(table string) string {
	c.mu.RLock()
	seq, ok := c.sequences[table]
	c.mu.RUnlock()
	if ok {
		return seq
	}
	k := c.Primary(table)
	if k.Composite() {
		return ""
	}
	return c.RewriteTable(table) + "_" + k.Column() + "_seq"
}

// SetSequence overrides Sequence for table.
func (c *Conventions) SetSequence(table, sequence string) *Conventions {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sequences[table] = sequence
	return c
}

// RewriteTable maps a logical table name to the physical one.
func (c *Conventions) RewriteTable(table string) string {
	c.mu.RLock()
	rewrite := c.rewrite
	c.mu.RUnlock()
	if rewrite == nil {
		return table
	}
	return rewrite(table)
}

// SetRewrite sets the table rewrite hook. Nil restores the identity.
func (c *Conventions) SetRewrite(fn func(string) string) *Conventions {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rewrite = fn
	return c
}

// SetKeyGenerator registers a generator for the single column primary
// key of table. Generated keys are assigned before insert when the row
// has no key yet.
func (c *Conventions) SetKeyGenerator(table string, gen KeyGenerator) *Conventions {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generators[table] = gen
	return c
}

// KeyGenerator returns the key generator of table, if any.
func (c *Conventions) KeyGenerator(table string) (KeyGenerator, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	gen, ok := c.generators[table]
	return gen, ok
}

func setNested(m map[string]map[string]string, table, name, value string) {
	inner, ok := m[table]
	if !ok {
		inner = make(map[string]string)
		m[table] = inner
	}
	inner[name] = value
}
