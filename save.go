package quill

import (
	"context"
	"slices"

	"github.com/syssam/quill/dialect"
	"github.com/syssam/quill/schema"
)

// Save stores the row and every row reachable through its nested
// properties. Rows are written in passes: a row is written once its
// required columns are known, which for a reference to another new row
// means after that row was inserted. Each pass first copies the ids of
// referenced rows into the reference columns. A pass that writes nothing
// while rows are still dirty fails with SaveUnsatisfiableError.
//
// Rows written in earlier passes are not rolled back on failure; run Save
// inside Session.Tx for an atomic save.
func (r *Row) Save(ctx context.Context) error {
	return r.sess.save(ctx, r.flatten(nil, map[*Row]bool{}))
}

// SaveRow stores the row alone, ignoring nested rows other than copying
// the ids of already stored referenced rows.
func (r *Row) SaveRow(ctx context.Context) error {
	return r.sess.save(ctx, []*Row{r})
}

// Update sets data on the row and saves it.
func (r *Row) Update(ctx context.Context, data map[string]any) error {
	return r.SetData(data).Save(ctx)
}

// Delete deletes the stored row by its original id. Deleting a row that
// was never stored does nothing. The row stays usable and is inserted
// again on the next save.
func (r *Row) Delete(ctx context.Context) error {
	if r.original == nil {
		return nil
	}
	if _, err := r.sess.Delete(r.table).WhereMap(r.keyWhere(r.original)).Exec(ctx); err != nil {
		return err
	}
	r.original = nil
	r.setDirty()
	return nil
}

// flatten collects the rows reachable from r, depth first.
func (r *Row) flatten(rows []*Row, seen map[*Row]bool) []*Row {
	if r == nil || seen[r] {
		return rows
	}
	seen[r] = true
	rows = append(rows, r)
	for _, k := range r.keys {
		v := r.props[k]
		switch v.kind {
		case RowValue:
			rows = v.row.flatten(rows, seen)
		case ListValue:
			for _, c := range v.list {
				rows = c.flatten(rows, seen)
			}
		}
	}
	return rows
}

func (s *Session) save(ctx context.Context, rows []*Row) error {
	for pass := 1; ; pass++ {
		for _, r := range rows {
			r.updateReferences()
		}
		progress, dirty := 0, 0
		for _, r := range rows {
			if r.Clean() || len(r.missing()) > 0 {
				continue
			}
			if err := r.write(ctx); err != nil {
				return err
			}
			r.updateBackReferences()
			progress++
		}
		var stuck *Row
		for _, r := range rows {
			if !r.Clean() {
				dirty++
				if stuck == nil {
					stuck = r
				}
			}
		}
		s.log.DebugContext(ctx, "save pass", "pass", pass, "saved", progress, "dirty", dirty)
		if dirty == 0 {
			return nil
		}
		if progress == 0 {
			return &SaveUnsatisfiableError{Table: stuck.table, Missing: stuck.missing()}
		}
	}
}

// updateReferences copies the ids of stored referenced rows into the
// reference columns of r.
func (r *Row) updateReferences() {
	conv := r.sess.conv
	for _, k := range r.keys {
		v := r.props[k]
		if v.kind != RowValue || v.row == nil {
			continue
		}
		if id := v.row.ID(); id != nil {
			r.Set(conv.Reference(r.table, k), id)
		}
	}
}

// updateBackReferences copies the id of r into the back reference
// columns of its nested row lists. Composite ids are not propagated.
func (r *Row) updateBackReferences() {
	id := r.ID()
	if id == nil || r.sess.conv.Primary(r.table).Composite() {
		return
	}
	conv := r.sess.conv
	for _, k := range r.keys {
		v := r.props[k]
		if v.kind != ListValue {
			continue
		}
		base, _ := schema.ListName(k)
		col := conv.BackReference(r.table, base)
		for _, c := range v.list {
			c.Set(col, id)
		}
	}
}

// missing returns the sorted columns r needs before it can be written:
// unset required columns, and reference columns of nested rows that are
// not stored yet.
func (r *Row) missing() []string {
	conv := r.sess.conv
	var out []string
	for _, col := range conv.Required(r.table) {
		if r.scalar(col) == nil {
			out = append(out, col)
		}
	}
	for _, k := range r.keys {
		v := r.props[k]
		if v.kind == RowValue && v.row != nil && v.row.ID() == nil {
			out = append(out, conv.Reference(r.table, k))
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// write inserts or updates the row alone and marks it clean.
func (r *Row) write(ctx context.Context) error {
	s := r.sess
	if r.original != nil {
		data := r.Modified()
		if len(data) > 0 {
			if _, err := s.Update(r.table, data).WhereMap(r.keyWhere(r.original)).Exec(ctx); err != nil {
				return err
			}
		}
		r.setClean()
		return nil
	}
	key := s.conv.Primary(r.table)
	generated := !key.Composite() && r.scalar(key.Column()) == nil
	if generated {
		if gen, ok := s.conv.KeyGenerator(r.table); ok {
			r.Set(key.Column(), gen())
			generated = false
		}
	}
	data := r.Data()
	if generated {
		// An explicit NULL would defeat the column default.
		delete(data, key.Column())
	}
	var returning string
	if generated && s.drv.Dialect() == dialect.Postgres {
		returning = key.Column()
	}
	res, err := s.insert(r.table, []map[string]any{data}, returning).Exec(ctx)
	if err != nil {
		return err
	}
	if generated {
		id := res.InsertID()
		if row := res.First(); row != nil {
			id = row.Get(key.Column())
		}
		if id == nil {
			if id, err = s.LastInsertID(ctx, r.table); err != nil {
				return err
			}
		}
		r.put(key.Column(), Scalar(id))
	}
	r.setClean()
	return nil
}
