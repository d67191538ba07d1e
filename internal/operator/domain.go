// Package operator builds plain callables from declarative field and
// variable definitions.
//
// EDUCATIONAL NOTES:
// ------------------
// Query engines spend most of their time moving values between shapes:
// pick two columns out of a row, turn a row into a tuple, apply an
// expression to a few fields, sort rows by a key. Instead of writing each
// of these by hand, the operator package describes them with a Domain
// (the shape an operator reads) and a target Domain (the shape it
// returns) and builds the function once:
//
//	Getter([a b], Struct, Sequence)   row -> []any{row.a, row.b}
//	Lambda("a + b", Struct)           row -> row.a + row.b
//	Sorter([a], Struct, false)        []row -> []row sorted by a
//
// A domain value can be positional arguments, an object with attributes,
// a map or a slice. Builders dispatch on the DomainKind once, at
// construction time, so calling an operator never inspects the shape of
// the domain again.

package operator

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
)

// Errors returned by operator builders and operators.
var (
	ErrArity     = errors.New("wrong number of arguments")
	ErrField     = errors.New("unknown field")
	ErrNotUnique = errors.New("type has no unique zero value")
	ErrDomain    = errors.New("unsupported domain")
	ErrVariable  = errors.New("invalid variable definition")
)

// DomainKind selects how fields are read from (or written to) a value.
type DomainKind int

const (
	// Args addresses the positional arguments of a call.
	Args DomainKind = iota
	// Struct addresses named attributes of an object.
	Struct
	// Mapping addresses the keys of a map.
	Mapping
	// Sequence addresses the positions of a slice.
	Sequence
)

func (k DomainKind) String() string {
	switch k {
	case Args:
		return "args"
	case Struct:
		return "struct"
	case Mapping:
		return "mapping"
	case Sequence:
		return "sequence"
	default:
		return fmt.Sprintf("DomainKind(%d)", int(k))
	}
}

// Field describes one addressable slot of a domain value.
type Field struct {
	ID   any
	Type reflect.Type
}

// Domain is the shape an operator consumes or produces. The frame names
// the slots in order, which is needed to resolve names to positions for
// Args and Sequence domains.
type Domain struct {
	Kind  DomainKind
	Frame []any
	Basis map[any]Field
	Type  reflect.Type
}

// NewDomain creates a domain of the given kind with an untyped basis for
// every frame entry.
func NewDomain(kind DomainKind, frame ...any) Domain {
	d := Domain{Kind: kind, Frame: frame}
	if len(frame) > 0 {
		d.Basis = make(map[any]Field, len(frame))
		for _, id := range frame {
			d.Basis[id] = Field{ID: id}
		}
	}
	return d
}

// Typed returns a scalar domain of the given type. It is used as the
// target of Zero.
func Typed(t reflect.Type) Domain {
	return Domain{Kind: Args, Type: t}
}

// position resolves a field id to a slot position: through the frame if
// one is set, else the id itself must be a non-negative int.
func (d Domain) position(id any) (int, error) {
	if len(d.Frame) > 0 {
		for i, f := range d.Frame {
			if f == id {
				return i, nil
			}
		}
		return 0, fmt.Errorf("%w: %v not in frame", ErrField, id)
	}
	switch v := id.(type) {
	case int:
		if v >= 0 {
			return v, nil
		}
	case int64:
		if v >= 0 {
			return int(v), nil
		}
	}
	return 0, fmt.Errorf("%w: %v is not a position", ErrField, id)
}

func (d Domain) sameShape(other Domain) bool {
	if d.Kind != other.Kind || len(d.Frame) != len(other.Frame) {
		return false
	}
	for i := range d.Frame {
		if d.Frame[i] != other.Frame[i] {
			return false
		}
	}
	return true
}

func (d Domain) String() string {
	if len(d.Frame) == 0 {
		return fmt.Sprintf("Domain(%s)", d.Kind)
	}
	parts := make([]string, len(d.Frame))
	for i, f := range d.Frame {
		parts[i] = fmt.Sprint(f)
	}
	return fmt.Sprintf("Domain(%s, frame=%s)", d.Kind, strings.Join(parts, ", "))
}

// Attributer is implemented by values that expose named attributes
// without being plain structs, like table records.
type Attributer interface {
	Attr(name string) (any, bool)
}

// AttrSetter is the writable counterpart of Attributer.
type AttrSetter interface {
	SetAttr(name string, value any) error
}

// attr reads a named attribute through Attributer, else from an exported
// struct field or a string keyed map.
func attr(obj any, name string) (any, error) {
	if a, ok := obj.(Attributer); ok {
		if v, ok := a.Attr(name); ok {
			return v, nil
		}
		return nil, fmt.Errorf("%w: %q", ErrField, name)
	}
	rv := reflect.ValueOf(obj)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, fmt.Errorf("%w: %q of nil value", ErrField, name)
		}
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Struct {
		f := rv.FieldByName(name)
		if f.IsValid() && f.CanInterface() {
			return f.Interface(), nil
		}
	}
	return nil, fmt.Errorf("%w: %q of %T", ErrField, name, obj)
}

func setAttr(obj any, name string, value any) error {
	if s, ok := obj.(AttrSetter); ok {
		return s.SetAttr(name, value)
	}
	rv := reflect.ValueOf(obj)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return fmt.Errorf("%w: cannot set %q on %T", ErrField, name, obj)
	}
	f := rv.Elem().FieldByName(name)
	if !f.IsValid() || !f.CanSet() {
		return fmt.Errorf("%w: %q of %T", ErrField, name, obj)
	}
	v := reflect.ValueOf(value)
	if value == nil {
		v = reflect.Zero(f.Type())
	}
	if !v.Type().AssignableTo(f.Type()) {
		return fmt.Errorf("%w: %T is not assignable to field %q", ErrField, value, name)
	}
	f.Set(v)
	return nil
}

// item reads a map entry. map[string]any is the common case, other maps
// go through reflection.
func item(obj any, key any) (any, error) {
	switch m := obj.(type) {
	case map[string]any:
		if s, ok := key.(string); ok {
			if v, ok := m[s]; ok {
				return v, nil
			}
		}
		return nil, fmt.Errorf("%w: key %v", ErrField, key)
	case map[any]any:
		if v, ok := m[key]; ok {
			return v, nil
		}
		return nil, fmt.Errorf("%w: key %v", ErrField, key)
	}
	rv := reflect.ValueOf(obj)
	if rv.Kind() != reflect.Map {
		return nil, fmt.Errorf("%w: %T is not a mapping", ErrDomain, obj)
	}
	k := reflect.ValueOf(key)
	if !k.IsValid() || !k.Type().AssignableTo(rv.Type().Key()) {
		return nil, fmt.Errorf("%w: key %v", ErrField, key)
	}
	v := rv.MapIndex(k)
	if !v.IsValid() {
		return nil, fmt.Errorf("%w: key %v", ErrField, key)
	}
	return v.Interface(), nil
}

func setItem(obj any, key any, value any) error {
	switch m := obj.(type) {
	case map[string]any:
		s, ok := key.(string)
		if !ok {
			return fmt.Errorf("%w: key %v", ErrField, key)
		}
		m[s] = value
		return nil
	case map[any]any:
		m[key] = value
		return nil
	}
	rv := reflect.ValueOf(obj)
	if rv.Kind() != reflect.Map || rv.IsNil() {
		return fmt.Errorf("%w: %T is not a mapping", ErrDomain, obj)
	}
	k, v := reflect.ValueOf(key), reflect.ValueOf(value)
	if !k.IsValid() || !k.Type().AssignableTo(rv.Type().Key()) ||
		!v.IsValid() || !v.Type().AssignableTo(rv.Type().Elem()) {
		return fmt.Errorf("%w: cannot set key %v", ErrField, key)
	}
	rv.SetMapIndex(k, v)
	return nil
}

// index reads a slice position.
func index(obj any, i int) (any, error) {
	if s, ok := obj.([]any); ok {
		if i < len(s) {
			return s[i], nil
		}
		return nil, fmt.Errorf("%w: position %d out of range", ErrField, i)
	}
	rv := reflect.ValueOf(obj)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("%w: %T is not a sequence", ErrDomain, obj)
	}
	if i >= rv.Len() {
		return nil, fmt.Errorf("%w: position %d out of range", ErrField, i)
	}
	return rv.Index(i).Interface(), nil
}

func setIndex(obj any, i int, value any) error {
	if s, ok := obj.([]any); ok {
		if i < len(s) {
			s[i] = value
			return nil
		}
		return fmt.Errorf("%w: position %d out of range", ErrField, i)
	}
	rv := reflect.ValueOf(obj)
	if rv.Kind() != reflect.Slice {
		return fmt.Errorf("%w: %T is not a sequence", ErrDomain, obj)
	}
	if i >= rv.Len() {
		return fmt.Errorf("%w: position %d out of range", ErrField, i)
	}
	v := reflect.ValueOf(value)
	if !v.IsValid() || !v.Type().AssignableTo(rv.Type().Elem()) {
		return fmt.Errorf("%w: %T is not assignable to position %d", ErrField, value, i)
	}
	rv.Index(i).Set(v)
	return nil
}
