// Package record implements typed rows with a lifecycle state.
//
// EDUCATIONAL NOTES:
// ------------------
// A Schema is built at runtime from column definitions, similar to the
// catalog entry of a database table. Each Record is a fixed slice of
// values laid out in column order, plus two pieces of bookkeeping:
//
//   - an id, the row's position in the owning table
//   - a state bitmask: Create, Update and Delete
//
// Records never change table storage themselves. State transitions call
// hooks supplied by the owner, and the owner decides what a deleted or
// updated row means for its storage. Transitions are idempotent: deleting
// a row twice calls the delete hook once.

package record

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/frootlab/rian-sub004/internal/expr"
)

// Errors returned by schema construction and record validation.
var (
	ErrColumn = errors.New("invalid column")
	ErrType   = errors.New("invalid type")
	ErrArity  = errors.New("wrong number of values")
)

// Type is the declared type of a column.
type Type int

const (
	Any Type = iota
	Int
	Float
	String
	Bool
	Bytes
	Time
)

var typeNames = [...]string{"any", "int", "float", "string", "bool", "bytes", "time"}

func (t Type) String() string {
	if t >= 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// ParseType resolves a type name as printed by Type.String.
func ParseType(name string) (Type, error) {
	for i, n := range typeNames {
		if n == name {
			return Type(i), nil
		}
	}
	return Any, fmt.Errorf("%w: unknown type %q", ErrType, name)
}

// Check reports whether v is a value of the type. Nil is checked
// separately by the column's NotNull constraint.
func (t Type) Check(v any) bool {
	switch t {
	case Any:
		return true
	case Int:
		switch v.(type) {
		case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
			return true
		}
	case Float:
		switch v.(type) {
		case float32, float64:
			return true
		}
	case String:
		_, ok := v.(string)
		return ok
	case Bool:
		_, ok := v.(bool)
		return ok
	case Bytes:
		_, ok := v.([]byte)
		return ok
	case Time:
		_, ok := v.(time.Time)
		return ok
	}
	return false
}

// Column defines one field of a schema.
type Column struct {
	Name    string
	Type    Type
	NotNull bool
	Default any
}

// Hooks are called on record state transitions. A hook error aborts the
// transition.
type Hooks struct {
	Delete  func(id int) error
	Restore func(id int) error
	Update  func(id int, changes map[string]any) error
	Revoke  func(id int) error
}

// Schema is a runtime built record type.
type Schema struct {
	columns []Column
	slots   map[string]int
	newid   func() int
	hooks   Hooks
	counter atomic.Int64
}

// Option configures Build.
type Option func(*Schema)

// WithNewID sets the function that assigns ids to new records. The
// default is a counter per schema.
func WithNewID(f func() int) Option {
	return func(s *Schema) { s.newid = f }
}

// WithHooks binds lifecycle hooks to the records of the schema.
func WithHooks(h Hooks) Option {
	return func(s *Schema) { s.hooks = h }
}

// Build creates a schema from column definitions. Column names have to be
// unique identifiers.
func Build(columns []Column, opts ...Option) (*Schema, error) {
	s := &Schema{
		columns: append([]Column(nil), columns...),
		slots:   make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		if !expr.IsIdentifier(c.Name) {
			return nil, fmt.Errorf("%w: %q is not an identifier", ErrColumn, c.Name)
		}
		if _, dup := s.slots[c.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate column %q", ErrColumn, c.Name)
		}
		if c.Default != nil && !c.Type.Check(c.Default) {
			return nil, fmt.Errorf("%w: default of column %q is %T, not %s", ErrType, c.Name, c.Default, c.Type)
		}
		s.slots[c.Name] = i
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.newid == nil {
		s.newid = func() int { return int(s.counter.Add(1) - 1) }
	}
	return s, nil
}

// Columns returns a copy of the column definitions.
func (s *Schema) Columns() []Column {
	return append([]Column(nil), s.columns...)
}

// Names returns the column names in order.
func (s *Schema) Names() []string {
	names := make([]string, len(s.columns))
	for i, c := range s.columns {
		names[i] = c.Name
	}
	return names
}

// Index returns the slot of a column.
func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.slots[name]
	return i, ok
}

func (s *Schema) validate(i int, v any) error {
	c := s.columns[i]
	if v == nil {
		if c.NotNull {
			return fmt.Errorf("%w: column %q must not be null", ErrType, c.Name)
		}
		return nil
	}
	if !c.Type.Check(v) {
		return fmt.Errorf("%w: column %q expects %s, got %T", ErrType, c.Name, c.Type, v)
	}
	return nil
}

// New creates a record from values in column order. Missing trailing
// values take the column default.
func (s *Schema) New(values ...any) (*Record, error) {
	if len(values) > len(s.columns) {
		return nil, fmt.Errorf("%w: %d values for %d columns", ErrArity, len(values), len(s.columns))
	}
	row := make([]any, len(s.columns))
	for i := range s.columns {
		if i < len(values) {
			row[i] = values[i]
		} else {
			row[i] = s.columns[i].Default
		}
		if err := s.validate(i, row[i]); err != nil {
			return nil, err
		}
	}
	return &Record{schema: s, id: s.newid(), state: Create, values: row}, nil
}

// NewFromMap creates a record from named values. Missing columns take
// their default, unknown names are an error.
func (s *Schema) NewFromMap(m map[string]any) (*Record, error) {
	values := make([]any, len(s.columns))
	for i, c := range s.columns {
		values[i] = c.Default
	}
	for name, v := range m {
		i, ok := s.slots[name]
		if !ok {
			return nil, fmt.Errorf("%w: unknown column %q", ErrColumn, name)
		}
		values[i] = v
	}
	return s.New(values...)
}
