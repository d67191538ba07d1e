// Package table implements an in-memory table of records with an
// uncommitted change overlay, cursors over its rows and proxies that
// synchronize it with external sources.
//
// EDUCATIONAL NOTES:
// ------------------
// A table keeps three parallel structures:
//
//  1. data  - committed records, indexed by row id (nil for removed rows)
//  2. diff  - pending replacements of the same length (nil if unchanged)
//  3. index - the ordered ids of the rows that are currently visible
//
// Insert, update and delete never touch data. They put a new record into
// diff or set a state flag, and the record hooks keep the index in sync.
// Commit folds diff into data, rollback throws it away. This is the same
// split a database makes between its write-ahead changes and its pages,
// without any durability: the table lives in memory, and a Proxy decides
// where its rows come from and where they go.
//
// Row ids are positions in data. They stay stable across commit and
// rollback; only Pack compacts the storage and renumbers them.

package table

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/frootlab/rian-sub004/internal/expr"
	"github.com/frootlab/rian-sub004/internal/logger"
	"github.com/frootlab/rian-sub004/internal/operator"
	"github.com/frootlab/rian-sub004/internal/record"
)

// Table stores records of one schema.
type Table struct {
	name     string
	schema   *record.Schema
	data     []*record.Record
	diff     []*record.Record
	index    []int
	metadata map[string]any
	log      *logger.Logger
}

// Option configures a Table.
type Option func(*Table)

// WithLogger sets the logger for commit, rollback and pack messages.
func WithLogger(l *logger.Logger) Option {
	return func(t *Table) { t.log = l }
}

// New creates a table. A table without columns has no schema until
// Create is called.
func New(name string, columns []record.Column, metadata map[string]any, opts ...Option) (*Table, error) {
	t := &Table{}
	for _, opt := range opts {
		opt(t)
	}
	if t.log == nil {
		t.log = logger.Discard()
	}
	if len(columns) == 0 {
		t.name = name
		t.metadata = maps.Clone(metadata)
		if t.metadata == nil {
			t.metadata = map[string]any{}
		}
		return t, nil
	}
	if err := t.Create(name, columns, metadata); err != nil {
		return nil, err
	}
	return t, nil
}

// Create defines the table and discards all existing rows.
func (t *Table) Create(name string, columns []record.Column, metadata map[string]any) error {
	schema, err := record.Build(columns,
		record.WithNewID(func() int { return len(t.data) }),
		record.WithHooks(record.Hooks{
			Delete:  t.removeID,
			Restore: t.restoreID,
			Update:  t.updateRow,
			Revoke:  t.revokeRow,
		}))
	if err != nil {
		return fmt.Errorf("create table %q: %w", name, err)
	}
	t.name = name
	t.schema = schema
	t.metadata = maps.Clone(metadata)
	if t.metadata == nil {
		t.metadata = map[string]any{}
	}
	t.reset()
	t.log.Debugf("table %s: created with %d columns", name, len(columns))
	return nil
}

func (t *Table) reset() {
	t.data = nil
	t.diff = nil
	t.index = nil
}

// Name returns the table name.
func (t *Table) Name() string { return t.name }

// SetName renames the table.
func (t *Table) SetName(name string) { t.name = name }

// Schema returns the record schema, or nil before Create.
func (t *Table) Schema() *record.Schema { return t.schema }

// Columns returns the column definitions.
func (t *Table) Columns() []record.Column {
	if t.schema == nil {
		return nil
	}
	return t.schema.Columns()
}

// Metadata returns a copy of the table metadata.
func (t *Table) Metadata() map[string]any {
	return maps.Clone(t.metadata)
}

// SetMetadata merges entries into the table metadata.
func (t *Table) SetMetadata(m map[string]any) {
	if t.metadata == nil {
		t.metadata = map[string]any{}
	}
	maps.Copy(t.metadata, m)
}

// Len returns the number of visible rows, pending inserts included.
func (t *Table) Len() int { return len(t.index) }

// IDs returns a copy of the ids of the visible rows.
func (t *Table) IDs() []int { return slices.Clone(t.index) }

// Row returns the pending version of a row if there is one, else the
// committed version. Removed rows are nil.
func (t *Table) Row(id int) (*record.Record, error) {
	if id < 0 || id >= len(t.data) {
		return nil, &RowLookupError{ID: id}
	}
	if r := t.diff[id]; r != nil {
		return r, nil
	}
	return t.data[id], nil
}

func (t *Table) row(id int) *record.Record {
	r, _ := t.Row(id)
	return r
}

func (t *Table) checkColumn(name string) error {
	if _, ok := t.schema.Index(name); !ok {
		return &ColumnLookupError{Name: name}
	}
	return nil
}

// Insert appends one row. A row is a []any in the order of columns (or of
// the schema when columns is empty), a map[string]any or a record, which
// is re-projected by column name.
func (t *Table) Insert(row any, columns ...string) error {
	if t.schema == nil {
		return ErrNoSchema
	}
	rec, err := t.newRecord(row, columns)
	if err != nil {
		return fmt.Errorf("insert into %s: %w", t.name, err)
	}
	t.data = append(t.data, nil)
	t.diff = append(t.diff, rec)
	t.index = append(t.index, rec.ID())
	return nil
}

// InsertMany appends rows in order. It stops at the first failing row;
// the rows before it stay pending.
func (t *Table) InsertMany(rows []any, columns ...string) error {
	for i, row := range rows {
		if err := t.Insert(row, columns...); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	return nil
}

func (t *Table) newRecord(row any, columns []string) (*record.Record, error) {
	switch r := row.(type) {
	case []any:
		if len(columns) == 0 {
			return t.schema.New(r...)
		}
		if len(columns) != len(r) {
			return nil, fmt.Errorf("%w: %d values for %d columns", record.ErrArity, len(r), len(columns))
		}
		m := make(map[string]any, len(r))
		for i, name := range columns {
			m[name] = r[i]
		}
		return t.recordFromMap(m)
	case map[string]any:
		return t.recordFromMap(r)
	case *record.Record:
		m := make(map[string]any)
		for _, name := range t.schema.Names() {
			v, ok := r.Attr(name)
			if !ok {
				return nil, &ColumnLookupError{Name: name}
			}
			m[name] = v
		}
		return t.schema.NewFromMap(m)
	default:
		return nil, fmt.Errorf("%w: unsupported row of type %T", record.ErrType, row)
	}
}

func (t *Table) recordFromMap(m map[string]any) (*record.Record, error) {
	for name := range m {
		if err := t.checkColumn(name); err != nil {
			return nil, err
		}
	}
	return t.schema.NewFromMap(m)
}

// Update applies changes to every visible row matching where, which is
// an expression string, a Predicate or nil for all rows. A row that
// already has a pending update gets the new changes merged in. Update
// returns the number of matched rows.
func (t *Table) Update(where any, changes map[string]any) (int, error) {
	if t.schema == nil {
		return 0, ErrNoSchema
	}
	for name := range changes {
		if err := t.checkColumn(name); err != nil {
			return 0, err
		}
	}
	return t.apply(t.index, where, func(r *record.Record) error {
		if r.State().Has(record.Update) || r.State().Has(record.Create) {
			merged, err := t.schema.CreateFrom(r, changes)
			if err != nil {
				return err
			}
			t.diff[r.ID()] = merged
			return nil
		}
		return r.Update(changes)
	})
}

// Delete marks every visible row matching where as deleted.
func (t *Table) Delete(where any) (int, error) {
	if t.schema == nil {
		return 0, ErrNoSchema
	}
	return t.apply(t.index, where, (*record.Record).Delete)
}

// Restore clears the pending delete of every row matching where.
func (t *Table) Restore(where any) (int, error) {
	if t.schema == nil {
		return 0, ErrNoSchema
	}
	var deleted []int
	for id := range t.data {
		if r := t.row(id); r != nil && r.State().Has(record.Delete) {
			deleted = append(deleted, id)
		}
	}
	return t.apply(deleted, where, (*record.Record).Restore)
}

func (t *Table) apply(ids []int, where any, f func(*record.Record) error) (int, error) {
	cfg := newSelectConfig([]SelectOption{Where(where), DType(RowRecord)})
	if err := t.checkFilter(cfg.where, cfg.vocab); err != nil {
		return 0, err
	}
	cur, err := newCursor(t.Row, ids, cfg)
	if err != nil {
		return 0, err
	}
	n := 0
	for {
		v, err := cur.Next()
		if errors.Is(err, ErrExhausted) {
			return n, nil
		}
		if err != nil {
			return n, err
		}
		if err := f(v.(*record.Record)); err != nil {
			return n, err
		}
		n++
	}
}

// Select returns a cursor over the visible rows. Requested fields have to
// refer to table columns. Without fields the cursor returns records, or
// all columns when a tuple or dict row type is requested.
func (t *Table) Select(opts ...SelectOption) (*Cursor, error) {
	if t.schema == nil {
		return nil, ErrNoSchema
	}
	cfg := newSelectConfig(opts)
	if len(cfg.fields) == 0 && cfg.dtypeSet && cfg.dtype != RowRecord {
		for _, name := range t.schema.Names() {
			cfg.fields = append(cfg.fields, operator.Var(name))
		}
	}
	if len(cfg.fields) > 0 {
		for _, def := range cfg.fields {
			v, err := operator.Resolve(def, operator.WithVocabulary(cfg.vocab))
			if err != nil {
				return nil, err
			}
			for _, f := range v.Fields {
				name, _ := f.(string)
				if err := t.checkColumn(name); err != nil {
					return nil, err
				}
			}
		}
	}
	if err := t.checkFilter(cfg.where, cfg.vocab); err != nil {
		return nil, err
	}
	for _, name := range cfg.groupby {
		if err := t.checkColumn(name); err != nil {
			return nil, err
		}
	}
	// grouped rows are sorted by their field names
	if len(cfg.groupby) == 0 {
		for _, name := range cfg.orderby {
			if err := t.checkColumn(name); err != nil {
				return nil, err
			}
		}
	}
	return newCursor(t.Row, t.index, cfg)
}

// checkFilter checks that a filter expression only refers to columns.
// Filters given as functions are not checked.
func (t *Table) checkFilter(where any, vocab *expr.Vocabulary) error {
	s, ok := where.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return nil
	}
	e, err := expr.Parse(s, expr.WithVocabulary(vocab))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCursor, err)
	}
	for _, name := range e.Variables() {
		if err := t.checkColumn(name); err != nil {
			return err
		}
	}
	return nil
}

// Commit folds pending changes into the committed rows. Committing
// without pending changes does nothing.
func (t *Table) Commit() {
	var created, updated, deleted int
	for id := range t.data {
		r := t.row(id)
		if r == nil {
			continue
		}
		switch s := r.State(); {
		case s.Has(record.Delete):
			t.data[id] = nil
			t.dropID(id)
			deleted++
		case s&(record.Create|record.Update) != 0:
			if s.Has(record.Create) {
				created++
			} else {
				updated++
			}
			t.data[id] = r
			r.ResetState()
		}
	}
	t.diff = make([]*record.Record, len(t.data))
	if created+updated+deleted > 0 {
		t.log.Debugf("table %s: committed %d created, %d updated, %d deleted", t.name, created, updated, deleted)
	}
}

// Rollback discards pending changes. Pending inserts disappear, pending
// deletes become visible again.
func (t *Table) Rollback() {
	n := 0
	for id := range t.data {
		r := t.row(id)
		if r == nil || r.State() == 0 {
			continue
		}
		n++
		if r.State().Has(record.Create) {
			t.dropID(id)
			continue
		}
		if r.State().Has(record.Delete) {
			t.insertID(id)
		}
		if c := t.data[id]; c != nil {
			c.ResetState()
		}
	}
	t.diff = make([]*record.Record, len(t.data))
	if n > 0 {
		t.log.Debugf("table %s: rolled back %d rows", t.name, n)
	}
}

// Changes returns the pending created, updated and deleted rows in id
// order.
func (t *Table) Changes() (created, updated, deleted []*record.Record) {
	for id := range t.data {
		r := t.row(id)
		if r == nil {
			continue
		}
		switch s := r.State(); {
		case s.Has(record.Create) && s.Has(record.Delete):
		case s.Has(record.Delete):
			deleted = append(deleted, r)
		case s.Has(record.Create):
			created = append(created, r)
		case s.Has(record.Update):
			updated = append(updated, r)
		}
	}
	return created, updated, deleted
}

// Pack commits, drops removed rows and renumbers the remaining rows from
// zero. Row ids held by callers are invalid afterwards.
func (t *Table) Pack() {
	t.Commit()
	live := t.data[:0]
	for _, r := range t.data {
		if r != nil {
			live = append(live, r)
		}
	}
	clear(t.data[len(live):])
	t.data = live
	t.index = make([]int, len(live))
	for i, r := range live {
		r.SetID(i)
		t.index[i] = i
	}
	t.diff = make([]*record.Record, len(live))
	t.log.Debugf("table %s: packed to %d rows", t.name, len(live))
}

// Truncate removes all rows and keeps the schema.
func (t *Table) Truncate() {
	t.reset()
}

// Drop removes rows, schema, metadata and name.
func (t *Table) Drop() {
	t.reset()
	t.schema = nil
	t.metadata = map[string]any{}
	t.name = ""
}

// dropID removes an id from the index if present.
func (t *Table) dropID(id int) {
	if i, ok := slices.BinarySearch(t.index, id); ok {
		t.index = slices.Delete(t.index, i, i+1)
	}
}

// insertID puts an id back at its ordered position.
func (t *Table) insertID(id int) {
	if i, ok := slices.BinarySearch(t.index, id); !ok {
		t.index = slices.Insert(t.index, i, id)
	}
}

func (t *Table) removeID(id int) error {
	t.dropID(id)
	return nil
}

func (t *Table) restoreID(id int) error {
	t.insertID(id)
	return nil
}

func (t *Table) updateRow(id int, changes map[string]any) error {
	r, err := t.Row(id)
	if err != nil {
		return err
	}
	rec, err := t.schema.CreateFrom(r, changes)
	if err != nil {
		return err
	}
	t.diff[id] = rec
	return nil
}

func (t *Table) revokeRow(id int) error {
	r, err := t.Row(id)
	if err != nil {
		return err
	}
	if r.State().Has(record.Create) {
		return ErrRevokeCreate
	}
	committed := t.data[id]
	t.diff[id] = nil
	if committed == nil {
		return nil
	}
	committed.ResetState()
	if r.State().Has(record.Delete) {
		return committed.Delete()
	}
	return nil
}
