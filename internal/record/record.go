package record

import (
	"fmt"
	"sort"
	"strings"

	"github.com/frootlab/rian-sub004/internal/expr"
	"github.com/frootlab/rian-sub004/internal/operator"
)

// State is the lifecycle bitmask of a record.
type State int

const (
	Create State = 1 << iota
	Update
	Delete
)

// Has reports whether all flags of f are set.
func (s State) Has(f State) bool {
	return s&f == f
}

func (s State) String() string {
	if s == 0 {
		return "clean"
	}
	var parts []string
	for _, f := range []struct {
		flag State
		name string
	}{{Create, "create"}, {Update, "update"}, {Delete, "delete"}} {
		if s&f.flag != 0 {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "|")
}

// Record is one row of a schema.
type Record struct {
	schema *Schema
	id     int
	state  State
	values []any
}

// ID returns the row id.
func (r *Record) ID() int { return r.id }

// State returns the lifecycle state.
func (r *Record) State() State { return r.state }

// Schema returns the schema the record was built from.
func (r *Record) Schema() *Schema { return r.schema }

// Get returns the value of a column, or nil for an unknown name.
func (r *Record) Get(name string) any {
	v, _ := r.Attr(name)
	return v
}

// Attr returns the value of a column.
func (r *Record) Attr(name string) (any, bool) {
	i, ok := r.schema.slots[name]
	if !ok {
		return nil, false
	}
	return r.values[i], true
}

// SetAttr assigns a validated value to a column.
func (r *Record) SetAttr(name string, v any) error {
	i, ok := r.schema.slots[name]
	if !ok {
		return fmt.Errorf("%w: unknown column %q", ErrColumn, name)
	}
	if err := r.schema.validate(i, v); err != nil {
		return err
	}
	r.values[i] = v
	return nil
}

// Values returns a copy of the values in column order.
func (r *Record) Values() []any {
	return append([]any(nil), r.values...)
}

// Map returns the values keyed by column name.
func (r *Record) Map() map[string]any {
	m := make(map[string]any, len(r.values))
	for i, c := range r.schema.columns {
		m[c.Name] = r.values[i]
	}
	return m
}

// Delete marks the record as deleted.
func (r *Record) Delete() error {
	if r.state&Delete != 0 {
		return nil
	}
	r.state |= Delete
	if h := r.schema.hooks.Delete; h != nil {
		if err := h(r.id); err != nil {
			r.state &^= Delete
			return err
		}
	}
	return nil
}

// Restore clears the deleted mark.
func (r *Record) Restore() error {
	if r.state&Delete == 0 {
		return nil
	}
	r.state &^= Delete
	if h := r.schema.hooks.Restore; h != nil {
		if err := h(r.id); err != nil {
			r.state |= Delete
			return err
		}
	}
	return nil
}

// Update marks the record as updated and hands the changes to the update
// hook. The record itself keeps its values.
func (r *Record) Update(changes map[string]any) error {
	if r.state&Update != 0 {
		return nil
	}
	r.state |= Update
	if h := r.schema.hooks.Update; h != nil {
		if err := h(r.id, changes); err != nil {
			r.state &^= Update
			return err
		}
	}
	return nil
}

// Revoke clears the updated mark.
func (r *Record) Revoke() error {
	if r.state&Update == 0 {
		return nil
	}
	r.state &^= Update
	if h := r.schema.hooks.Revoke; h != nil {
		if err := h(r.id); err != nil {
			r.state |= Update
			return err
		}
	}
	return nil
}

// SetID renumbers the record. Only the owning table calls it.
func (r *Record) SetID(id int) { r.id = id }

// ResetState clears all state flags.
func (r *Record) ResetState() { r.state = 0 }

func (r *Record) String() string {
	parts := make([]string, len(r.values))
	for i, c := range r.schema.columns {
		parts[i] = fmt.Sprintf("%s=%s", c.Name, expr.Str(r.values[i]))
	}
	return fmt.Sprintf("Record(%d, %s)", r.id, strings.Join(parts, ", "))
}

// CreateFrom clones a record with some values replaced. The clone keeps
// id and state of the original.
func (s *Schema) CreateFrom(r *Record, changes map[string]any) (*Record, error) {
	if r == nil || r.schema != s {
		return nil, fmt.Errorf("%w: record of a different schema", ErrType)
	}
	clone := &Record{schema: s, id: r.id, state: r.state, values: r.Values()}
	if len(changes) == 0 {
		return clone, nil
	}
	names := make([]string, 0, len(changes))
	for name := range changes {
		names = append(names, name)
	}
	sort.Strings(names)
	items := make([]operator.Item, len(names))
	for i, name := range names {
		items[i] = operator.Item{Field: name, Value: changes[name]}
	}
	set, err := operator.Setter(items, operator.Domain{Kind: operator.Struct})
	if err != nil {
		return nil, err
	}
	if _, err := set.Call(clone); err != nil {
		return nil, err
	}
	return clone, nil
}
