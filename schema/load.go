package schema

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// File is the YAML form of convention overrides.
//
//	tables: [post, person, comment]
//	prefix: app_
//	singularize: true
//	primary:
//	  post_tag: [post_id, tag_id]
//	references:
//	  post: {author: author_id}
//	aliases:
//	  author: person
//	required:
//	  post: [title]
//	uuid: [session]
type File struct {
	Tables         []string                     `yaml:"tables,omitempty"`
	Prefix         string                       `yaml:"prefix,omitempty"`
	Singularize    bool                         `yaml:"singularize,omitempty"`
	Primary        map[string]Key               `yaml:"primary,omitempty"`
	References     map[string]map[string]string `yaml:"references,omitempty"`
	BackReferences map[string]map[string]string `yaml:"backReferences,omitempty"`
	Aliases        map[string]string            `yaml:"aliases,omitempty"`
	Required       map[string][]string          `yaml:"required,omitempty"`
	Sequences      map[string]string            `yaml:"sequences,omitempty"`
	// UUID lists tables whose primary keys are generated UUIDs.
	UUID []string `yaml:"uuid,omitempty"`
}

// LoadConventions reads convention overrides from a YAML file.
func LoadConventions(path string) (*Conventions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read conventions: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("schema: %s: %w", path, err)
	}
	return f.Conventions(), nil
}

// Parse decodes a conventions file. Unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &f, nil
}

// Conventions returns new conventions with the overrides of f applied.
func (f *File) Conventions() *Conventions {
	c := New()
	f.Apply(c)
	return c
}

// Apply applies the overrides of f to c.
func (f *File) Apply(c *Conventions) {
	c.Register(f.Tables...)
	if f.Prefix != "" {
		c.SetRewrite(PrefixRewrite(f.Prefix))
	}
	c.SetSingularize(f.Singularize)
	for table, key := range f.Primary {
		c.SetPrimary(table, key...)
	}
	for table, refs := range f.References {
		for name, col := range refs {
			c.SetReference(table, name, col)
		}
	}
	for table, refs := range f.BackReferences {
		for name, col := range refs {
			c.SetBackReference(table, name, col)
		}
	}
	for alias, table := range f.Aliases {
		c.SetAlias(alias, table)
	}
	for table, cols := range f.Required {
		c.SetRequired(table, cols...)
	}
	for table, seq := range f.Sequences {
		c.SetSequence(table, seq)
	}
	for _, table := range f.UUID {
		c.SetKeyGenerator(table, UUIDGenerator)
	}
}

// File returns the overrides of c in file form. Rewrite hooks and key
// generators are not included.
func (c *Conventions) File() *File {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f := &File{Singularize: c.singularize}
	for t := range c.tables {
		f.Tables = append(f.Tables, t)
	}
	slices.Sort(f.Tables)
	if len(c.primary) > 0 {
		f.Primary = make(map[string]Key, len(c.primary))
		for t, k := range c.primary {
			f.Primary[t] = slices.Clone(k)
		}
	}
	f.References = cloneNested(c.references)
	f.BackReferences = cloneNested(c.backReferences)
	if len(c.aliases) > 0 {
		f.Aliases = maps.Clone(c.aliases)
	}
	if len(c.required) > 0 {
		f.Required = make(map[string][]string, len(c.required))
		for t, cols := range c.required {
			for col := range cols {
				f.Required[t] = append(f.Required[t], col)
			}
			slices.Sort(f.Required[t])
		}
	}
	if len(c.sequences) > 0 {
		f.Sequences = maps.Clone(c.sequences)
	}
	return f
}

func cloneNested(m map[string]map[string]string) map[string]map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]map[string]string, len(m))
	for t, inner := range m {
		out[t] = maps.Clone(inner)
	}
	return out
}
