package operator

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/frootlab/rian-sub004/internal/expr"
)

// Func is the calling convention shared by all operators.
type Func func(args ...any) (any, error)

// Operator is a callable built once from a declarative description. It
// remembers the domain it reads and the target shape it returns.
type Operator struct {
	fn       Func
	name     string
	domain   Domain
	target   Domain
	fields   []any
	vars     []Variable
	identity bool
	zero     bool
}

// New wraps a plain function as an operator.
func New(f Func, domain, target Domain) *Operator {
	return &Operator{fn: f, name: "Operator", domain: domain, target: target, fields: domain.Frame}
}

// Call applies the operator.
func (op *Operator) Call(args ...any) (any, error) {
	return op.fn(args...)
}

// Func returns the operator's function.
func (op *Operator) Func() Func {
	return op.fn
}

// Len returns the number of fields the operator reads. Identity and zero
// operators have length 0.
func (op *Operator) Len() int {
	if op.identity || op.zero {
		return 0
	}
	return len(op.fields)
}

// Domain returns the shape the operator consumes.
func (op *Operator) Domain() Domain { return op.domain }

// Target returns the shape the operator produces.
func (op *Operator) Target() Domain { return op.target }

// IsIdentity reports whether the operator returns its arguments unchanged.
func (op *Operator) IsIdentity() bool { return op != nil && op.identity }

// IsZero reports whether the operator ignores its arguments.
func (op *Operator) IsZero() bool { return op != nil && op.zero }

// Fields returns the field ids the operator reads from its domain.
func (op *Operator) Fields() []any {
	return append([]any(nil), op.fields...)
}

// Components returns the variables of a vector operator.
func (op *Operator) Components() []Variable {
	return append([]Variable(nil), op.vars...)
}

// Variables returns the names of the components of a vector operator.
func (op *Operator) Variables() []any {
	names := make([]any, len(op.vars))
	for i, v := range op.vars {
		names[i] = v.Name
	}
	return names
}

func (op *Operator) String() string {
	if len(op.fields) == 0 {
		return op.name + "()"
	}
	parts := make([]string, len(op.fields))
	for i, f := range op.fields {
		parts[i] = fmt.Sprint(f)
	}
	return fmt.Sprintf("%s(%s)", op.name, strings.Join(parts, ", "))
}

func arityError(want, got int) error {
	return fmt.Errorf("%w: takes %d, got %d", ErrArity, want, got)
}

// Identity returns an operator that returns its arguments unchanged. On
// an Args domain with a frame the arity is fixed to the frame length,
// without a frame the operator is variadic: no argument gives nil, one
// argument is returned as is, and several are returned as a []any.
func Identity(domain Domain) *Operator {
	op := &Operator{name: "Identity", domain: domain, target: domain, fields: domain.Frame, identity: true}
	require := len(domain.Frame)
	if domain.Kind != Args {
		require = 1
	}
	switch require {
	case 0:
		op.fn = func(args ...any) (any, error) {
			switch len(args) {
			case 0:
				return nil, nil
			case 1:
				return args[0], nil
			}
			return args, nil
		}
	case 1:
		op.fn = func(args ...any) (any, error) {
			if len(args) != 1 {
				return nil, arityError(1, len(args))
			}
			return args[0], nil
		}
	case 2:
		op.fn = func(args ...any) (any, error) {
			if len(args) != 2 {
				return nil, arityError(2, len(args))
			}
			return []any{args[0], args[1]}, nil
		}
	case 3:
		op.fn = func(args ...any) (any, error) {
			if len(args) != 3 {
				return nil, arityError(3, len(args))
			}
			return []any{args[0], args[1], args[2]}, nil
		}
	default:
		op.fn = func(args ...any) (any, error) {
			if len(args) != require {
				return nil, arityError(require, len(args))
			}
			return append([]any(nil), args...), nil
		}
	}
	return op
}

// Zero returns an operator that ignores its arguments and returns the
// empty value of the target: nil for Args, an empty []any for Sequence
// and an empty map for Mapping. A typed target yields the zero value of
// its type, which has to be comparable.
func Zero(target Domain) (*Operator, error) {
	op := &Operator{name: "Zero", target: target, zero: true}
	if target.Type != nil {
		if !target.Type.Comparable() {
			return nil, fmt.Errorf("%w: %s", ErrNotUnique, target.Type)
		}
		zero := reflect.Zero(target.Type).Interface()
		op.fn = func(...any) (any, error) { return zero, nil }
		return op, nil
	}
	switch target.Kind {
	case Args:
		op.fn = func(...any) (any, error) { return nil, nil }
	case Sequence:
		op.fn = func(...any) (any, error) { return []any{}, nil }
	case Mapping:
		op.fn = func(...any) (any, error) { return map[string]any{}, nil }
	default:
		return nil, fmt.Errorf("%w: zero of %s", ErrDomain, target.Kind)
	}
	return op, nil
}

// Getter returns an operator that fetches fields from its domain and
// formats them into the target shape.
//
// EDUCATIONAL NOTE:
// -----------------
// A getter is the composition of two steps chosen at construction time.
// The fetch step knows where the values live (argument positions,
// attributes, map keys or slice positions), the format step knows what to
// return (a scalar for a single field, a tuple or a map). Resolving
// field names to positions happens here, once, and not on every call.
func Getter(fields []any, domain, target Domain) (*Operator, error) {
	if len(fields) == 0 {
		return Zero(target)
	}
	if domain.sameShape(target) && sameIDs(fields, domain.Frame) {
		return Identity(domain), nil
	}
	fetch, err := fetcher(fields, domain)
	if err != nil {
		return nil, err
	}
	format, err := formatter(fields, target)
	if err != nil {
		return nil, err
	}
	op := &Operator{name: "Getter", domain: domain, target: target, fields: append([]any(nil), fields...)}
	op.fn = func(args ...any) (any, error) {
		values, err := fetch(args)
		if err != nil {
			return nil, err
		}
		return format(values), nil
	}
	return op, nil
}

func sameIDs(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func fetcher(fields []any, domain Domain) (func(args []any) ([]any, error), error) {
	n := len(fields)
	switch domain.Kind {
	case Args:
		pos, err := positions(fields, domain)
		if err != nil {
			return nil, err
		}
		return func(args []any) ([]any, error) {
			out := make([]any, n)
			for i, p := range pos {
				if p >= len(args) {
					return nil, fmt.Errorf("%w: position %d of %d arguments", ErrArity, p, len(args))
				}
				out[i] = args[p]
			}
			return out, nil
		}, nil
	case Struct:
		names := make([]string, n)
		for i, f := range fields {
			s, ok := f.(string)
			if !ok {
				return nil, fmt.Errorf("%w: attribute name %v is not a string", ErrField, f)
			}
			names[i] = s
		}
		return func(args []any) ([]any, error) {
			if len(args) != 1 {
				return nil, arityError(1, len(args))
			}
			out := make([]any, n)
			for i, name := range names {
				v, err := attr(args[0], name)
				if err != nil {
					return nil, err
				}
				out[i] = v
			}
			return out, nil
		}, nil
	case Mapping:
		return func(args []any) ([]any, error) {
			if len(args) != 1 {
				return nil, arityError(1, len(args))
			}
			out := make([]any, n)
			for i, key := range fields {
				v, err := item(args[0], key)
				if err != nil {
					return nil, err
				}
				out[i] = v
			}
			return out, nil
		}, nil
	case Sequence:
		pos, err := positions(fields, domain)
		if err != nil {
			return nil, err
		}
		return func(args []any) ([]any, error) {
			if len(args) != 1 {
				return nil, arityError(1, len(args))
			}
			out := make([]any, n)
			for i, p := range pos {
				v, err := index(args[0], p)
				if err != nil {
					return nil, err
				}
				out[i] = v
			}
			return out, nil
		}, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrDomain, domain.Kind)
}

func positions(fields []any, domain Domain) ([]int, error) {
	pos := make([]int, len(fields))
	for i, f := range fields {
		p, err := domain.position(f)
		if err != nil {
			return nil, err
		}
		pos[i] = p
	}
	return pos, nil
}

func formatter(fields []any, target Domain) (func(values []any) any, error) {
	switch target.Kind {
	case Args:
		return func(values []any) any {
			if len(values) == 1 {
				return values[0]
			}
			return values
		}, nil
	case Sequence:
		return func(values []any) any { return values }, nil
	case Mapping:
		keys := target.Frame
		if len(keys) == 0 {
			keys = fields
		}
		if len(keys) != len(fields) {
			return nil, fmt.Errorf("%w: target frame has %d keys for %d fields", ErrField, len(keys), len(fields))
		}
		names := make([]string, len(keys))
		for i, k := range keys {
			names[i] = KeyString(k)
		}
		return func(values []any) any {
			out := make(map[string]any, len(values))
			for i, v := range values {
				out[names[i]] = v
			}
			return out
		}, nil
	}
	return nil, fmt.Errorf("%w: format as %s", ErrDomain, target.Kind)
}

// KeyString renders a field id as a map key.
func KeyString(id any) string {
	if s, ok := id.(string); ok {
		return s
	}
	return fmt.Sprint(id)
}

// Tuple converts a slice of any element type to []any.
func Tuple(v any) ([]any, bool) {
	if t, ok := v.([]any); ok {
		return t, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// Compose chains operators right to left, so Compose(false, f, g) calls
// g first and passes its result to f. Nil and identity operators are
// skipped. With unpack set, a []any result is spread into the arguments
// of the next operator.
func Compose(unpack bool, ops ...*Operator) *Operator {
	var kept []*Operator
	for _, op := range ops {
		if op == nil || op.identity {
			continue
		}
		kept = append(kept, op)
	}
	switch len(kept) {
	case 0:
		return Identity(Domain{})
	case 1:
		return kept[0]
	}
	first, last := kept[len(kept)-1], kept[0]
	op := &Operator{name: "Compose", domain: first.domain, target: last.target, fields: first.fields}
	op.fn = func(args ...any) (any, error) {
		v, err := first.fn(args...)
		for i := len(kept) - 2; i >= 0 && err == nil; i-- {
			if t, ok := v.([]any); ok && unpack {
				v, err = kept[i].fn(t...)
				continue
			}
			v, err = kept[i].fn(v)
		}
		if err != nil {
			return nil, err
		}
		return v, nil
	}
	return op
}

// Item is a field id and the value to assign to it.
type Item struct {
	Field any
	Value any
}

// Setter returns an operator that assigns the items to its single
// argument and returns it. Attributes are set through AttrSetter or on
// pointers to structs, map keys are set in place and slice positions are
// overwritten.
func Setter(items []Item, domain Domain) (*Operator, error) {
	if len(items) == 0 {
		return Zero(Domain{})
	}
	fields := make([]any, len(items))
	for i, it := range items {
		fields[i] = it.Field
	}
	var set func(obj any) error
	switch domain.Kind {
	case Struct:
		names := make([]string, len(items))
		for i, it := range items {
			s, ok := it.Field.(string)
			if !ok {
				return nil, fmt.Errorf("%w: attribute name %v is not a string", ErrField, it.Field)
			}
			names[i] = s
		}
		set = func(obj any) error {
			for i, name := range names {
				if err := setAttr(obj, name, items[i].Value); err != nil {
					return err
				}
			}
			return nil
		}
	case Mapping:
		set = func(obj any) error {
			for _, it := range items {
				if err := setItem(obj, it.Field, it.Value); err != nil {
					return err
				}
			}
			return nil
		}
	case Sequence:
		pos, err := positions(fields, domain)
		if err != nil {
			return nil, err
		}
		set = func(obj any) error {
			for i, p := range pos {
				if err := setIndex(obj, p, items[i].Value); err != nil {
					return err
				}
			}
			return nil
		}
	default:
		return nil, fmt.Errorf("%w: setter on %s", ErrDomain, domain.Kind)
	}
	op := &Operator{name: "Setter", domain: domain, target: domain, fields: fields}
	op.fn = func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, arityError(1, len(args))
		}
		if err := set(args[0]); err != nil {
			return nil, err
		}
		return args[0], nil
	}
	return op, nil
}

// Option configures Lambda, Vector and the aggregators.
type Option func(*options)

type options struct {
	vocab *expr.Vocabulary
	deflt *Operator
}

func newOptions(opts []Option) options {
	o := options{vocab: expr.Calculator()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithVocabulary selects the vocabulary for expression variables. The
// default is the calculator vocabulary.
func WithVocabulary(v *expr.Vocabulary) Option {
	return func(o *options) {
		if v != nil {
			o.vocab = v
		}
	}
}

// WithDefault sets the operator applied to variables defined without a
// function.
func WithDefault(op *Operator) Option {
	return func(o *options) { o.deflt = op }
}

// Lambda wraps an expression as an operator on the domain. Expression
// variables name domain fields; field ids that are not identifiers are
// matched through the domain frame. A bare field name degenerates to a
// Getter, an empty expression to the default operator or Zero.
func Lambda(expression string, domain Domain, opts ...Option) (*Operator, error) {
	o := newOptions(opts)
	if strings.TrimSpace(expression) == "" {
		if o.deflt != nil {
			return o.deflt, nil
		}
		return Zero(Domain{})
	}
	popts := []expr.Option{expr.WithVocabulary(o.vocab)}
	if len(domain.Frame) > 0 {
		popts = append(popts, expr.WithVariables(domain.Frame...))
	}
	e, err := expr.Parse(expression, popts...)
	if err != nil {
		return nil, fmt.Errorf("lambda %q: %w", expression, err)
	}
	if e, err = e.Simplify(nil); err != nil {
		return nil, fmt.Errorf("lambda %q: %w", expression, err)
	}
	origin := e.Origin()
	if tokens := e.Tokens(); len(tokens) == 1 && tokens[0].Kind == expr.Variable {
		if domain.Kind != Args || len(domain.Frame) > 0 {
			return Getter(origin, domain, Domain{})
		}
	}
	f, err := e.Func(true)
	if err != nil {
		return nil, fmt.Errorf("lambda %q: %w", expression, err)
	}
	op := &Operator{name: "Lambda", domain: domain, fields: origin}
	if domain.Kind == Args && len(domain.Frame) == 0 {
		op.fn = Func(f)
		return op, nil
	}
	getter, err := Getter(origin, domain, Domain{Kind: Sequence})
	if err != nil {
		return nil, fmt.Errorf("lambda %q: %w", expression, err)
	}
	op.fn = func(args ...any) (any, error) {
		v, err := getter.fn(args...)
		if err != nil {
			return nil, err
		}
		t, _ := Tuple(v)
		return f(t...)
	}
	return op, nil
}
