// Package schema holds the naming conventions that connect tables.
//
// Nothing is read from a live database. Every lookup falls back to a
// convention unless an override was set:
//
//	Primary(table)             "id"
//	Reference(table, name)     "<name>_id"
//	BackReference(table, name) "<table>_id"
//	Alias(name)                name (singularized if enabled)
//	Sequence(table)            "<rewrittenTable>_<primary>_seq"
//	RewriteTable(table)        table
//
// Overrides are set programmatically or loaded from YAML:
//
//	c, err := schema.LoadConventions("conventions.yaml")
//	if err != nil {
//	    return err
//	}
//	c.SetAlias("author", "person").SetRequired("post", "title")
package schema
