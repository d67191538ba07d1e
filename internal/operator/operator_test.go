package operator

import (
	"errors"
	"reflect"
	"testing"

	"gotest.tools/assert"
)

type point struct {
	X, Y int
	Name string
}

// attrs is a minimal Attributer used in place of table records.
type attrs map[string]any

func (a attrs) Attr(name string) (any, bool) {
	v, ok := a[name]
	return v, ok
}

func (a attrs) SetAttr(name string, v any) error {
	a[name] = v
	return nil
}

func TestIdentity(t *testing.T) {
	tests := []struct {
		frame    []any
		args     []any
		expected any
	}{
		{nil, nil, nil},
		{nil, []any{1}, 1},
		{nil, []any{1, 2}, []any{1, 2}},
		{[]any{"a"}, []any{1}, 1},
		{[]any{"a", "b"}, []any{1, 2}, []any{1, 2}},
		{[]any{"a", "b", "c"}, []any{1, 2, 3}, []any{1, 2, 3}},
		{[]any{"a", "b", "c", "d"}, []any{1, 2, 3, 4}, []any{1, 2, 3, 4}},
	}

	for _, tt := range tests {
		op := Identity(NewDomain(Args, tt.frame...))
		assert.Assert(t, op.IsIdentity())
		assert.Equal(t, op.Len(), 0)
		v, err := op.Call(tt.args...)
		assert.NilError(t, err)
		assert.DeepEqual(t, v, tt.expected)
	}
}

func TestIdentityArity(t *testing.T) {
	op := Identity(NewDomain(Args, "a", "b"))
	_, err := op.Call(1)
	assert.Assert(t, errors.Is(err, ErrArity))
}

func TestZero(t *testing.T) {
	tests := []struct {
		target   Domain
		expected any
	}{
		{Domain{}, nil},
		{Domain{Kind: Sequence}, []any{}},
		{Domain{Kind: Mapping}, map[string]any{}},
		{Typed(reflect.TypeOf(0)), 0},
		{Typed(reflect.TypeOf("")), ""},
	}

	for _, tt := range tests {
		op, err := Zero(tt.target)
		assert.NilError(t, err)
		assert.Assert(t, op.IsZero())
		v, err := op.Call("ignored", 1, 2)
		assert.NilError(t, err)
		assert.DeepEqual(t, v, tt.expected)
	}

	_, err := Zero(Typed(reflect.TypeOf([]int(nil))))
	assert.Assert(t, errors.Is(err, ErrNotUnique))
}

func TestGetterDomains(t *testing.T) {
	tests := []struct {
		name     string
		fields   []any
		domain   Domain
		target   Domain
		arg      any
		expected any
	}{
		{"struct", []any{"Y"}, Domain{Kind: Struct}, Domain{}, point{X: 1, Y: 2}, 2},
		{"struct pointer", []any{"X", "Name"}, Domain{Kind: Struct}, Domain{}, &point{X: 1, Name: "p"}, []any{1, "p"}},
		{"attributer", []any{"a"}, Domain{Kind: Struct}, Domain{}, attrs{"a": 5}, 5},
		{"mapping", []any{"b", "a"}, Domain{Kind: Mapping}, Domain{Kind: Sequence}, map[string]any{"a": 1, "b": 2}, []any{2, 1}},
		{"any mapping", []any{3}, Domain{Kind: Mapping}, Domain{}, map[any]any{3: "x"}, "x"},
		{"sequence position", []any{1}, Domain{Kind: Sequence}, Domain{}, []any{"a", "b"}, "b"},
		{"sequence frame", []any{"y"}, NewDomain(Sequence, "x", "y"), Domain{}, []any{1, 2}, 2},
		{"typed sequence", []any{0}, Domain{Kind: Sequence}, Domain{}, []int{7, 8}, 7},
		{"to mapping", []any{"X", "Y"}, Domain{Kind: Struct}, Domain{Kind: Mapping}, point{X: 1, Y: 2}, map[string]any{"X": 1, "Y": 2}},
		{"to framed mapping", []any{"X"}, Domain{Kind: Struct}, NewDomain(Mapping, "x"), point{X: 1}, map[string]any{"x": 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op, err := Getter(tt.fields, tt.domain, tt.target)
			assert.NilError(t, err)
			v, err := op.Call(tt.arg)
			assert.NilError(t, err)
			assert.DeepEqual(t, v, tt.expected)
		})
	}
}

func TestGetterArgs(t *testing.T) {
	op, err := Getter([]any{"c", "a"}, NewDomain(Args, "a", "b", "c"), Domain{Kind: Sequence})
	assert.NilError(t, err)
	v, err := op.Call(1, 2, 3)
	assert.NilError(t, err)
	assert.DeepEqual(t, v, []any{3, 1})
}

func TestGetterDegenerates(t *testing.T) {
	op, err := Getter(nil, Domain{Kind: Struct}, Domain{Kind: Sequence})
	assert.NilError(t, err)
	assert.Assert(t, op.IsZero())

	d := NewDomain(Sequence, "a", "b")
	op, err = Getter([]any{"a", "b"}, d, d)
	assert.NilError(t, err)
	assert.Assert(t, op.IsIdentity())
}

func TestGetterErrors(t *testing.T) {
	_, err := Getter([]any{"z"}, NewDomain(Sequence, "x"), Domain{})
	assert.Assert(t, errors.Is(err, ErrField))

	op, err := Getter([]any{"Missing"}, Domain{Kind: Struct}, Domain{})
	assert.NilError(t, err)
	_, err = op.Call(point{})
	assert.Assert(t, errors.Is(err, ErrField))

	op, err = Getter([]any{"k"}, Domain{Kind: Mapping}, Domain{})
	assert.NilError(t, err)
	_, err = op.Call(map[string]any{})
	assert.Assert(t, errors.Is(err, ErrField))
}

func TestCompose(t *testing.T) {
	double := New(func(args ...any) (any, error) { return args[0].(int) * 2, nil }, Domain{}, Domain{})
	inc := New(func(args ...any) (any, error) { return args[0].(int) + 1, nil }, Domain{}, Domain{})

	op := Compose(false, double, nil, Identity(Domain{}), inc)
	v, err := op.Call(3)
	assert.NilError(t, err)
	assert.Equal(t, v, 8)

	assert.Assert(t, Compose(false).IsIdentity())
	assert.Equal(t, Compose(false, nil, double), double)
}

func TestComposeUnpack(t *testing.T) {
	split := New(func(args ...any) (any, error) { return []any{args[0], args[0]}, nil }, Domain{}, Domain{})
	add := New(func(args ...any) (any, error) {
		assert.Equal(t, len(args), 2)
		return args[0].(int) + args[1].(int), nil
	}, Domain{}, Domain{})

	v, err := Compose(true, add, split).Call(4)
	assert.NilError(t, err)
	assert.Equal(t, v, 8)
}

func TestSetter(t *testing.T) {
	p := &point{X: 1}
	op, err := Setter([]Item{{"X", 5}, {"Name", "q"}}, Domain{Kind: Struct})
	assert.NilError(t, err)
	_, err = op.Call(p)
	assert.NilError(t, err)
	assert.DeepEqual(t, *p, point{X: 5, Name: "q"})

	a := attrs{}
	op, err = Setter([]Item{{"k", 1}}, Domain{Kind: Struct})
	assert.NilError(t, err)
	_, err = op.Call(a)
	assert.NilError(t, err)
	assert.Equal(t, a["k"], 1)

	m := map[string]any{}
	op, err = Setter([]Item{{"k", 1}}, Domain{Kind: Mapping})
	assert.NilError(t, err)
	_, err = op.Call(m)
	assert.NilError(t, err)
	assert.Equal(t, m["k"], 1)

	s := []any{0, 0}
	op, err = Setter([]Item{{"b", 9}}, NewDomain(Sequence, "a", "b"))
	assert.NilError(t, err)
	_, err = op.Call(s)
	assert.NilError(t, err)
	assert.DeepEqual(t, s, []any{0, 9})

	op, err = Setter([]Item{{"X", "wrong type"}}, Domain{Kind: Struct})
	assert.NilError(t, err)
	_, err = op.Call(p)
	assert.Assert(t, errors.Is(err, ErrField))
}

func TestLambda(t *testing.T) {
	op, err := Lambda("X * 10 + Y", Domain{Kind: Struct})
	assert.NilError(t, err)
	assert.DeepEqual(t, op.Fields(), []any{"X", "Y"})
	v, err := op.Call(point{X: 2, Y: 3})
	assert.NilError(t, err)
	assert.Equal(t, v, int64(23))

	op, err = Lambda("a > 1", NewDomain(Sequence, "a", "b"))
	assert.NilError(t, err)
	v, err = op.Call([]any{int64(2), int64(0)})
	assert.NilError(t, err)
	assert.Equal(t, v, true)

	op, err = Lambda("x + y", Domain{})
	assert.NilError(t, err)
	v, err = op.Call(int64(1), int64(2))
	assert.NilError(t, err)
	assert.Equal(t, v, int64(3))
}

func TestLambdaBareField(t *testing.T) {
	op, err := Lambda("Name", Domain{Kind: Struct})
	assert.NilError(t, err)
	assert.Equal(t, op.name, "Getter")
	v, err := op.Call(point{Name: "n"})
	assert.NilError(t, err)
	assert.Equal(t, v, "n")
}

func TestLambdaEmpty(t *testing.T) {
	op, err := Lambda("", Domain{Kind: Struct})
	assert.NilError(t, err)
	assert.Assert(t, op.IsZero())

	deflt := Identity(Domain{})
	op, err = Lambda(" ", Domain{Kind: Struct}, WithDefault(deflt))
	assert.NilError(t, err)
	assert.Equal(t, op, deflt)
}

func TestLambdaNonIdentifierFields(t *testing.T) {
	key := [2]int{1, 2}
	op, err := Lambda("[1 2] * 2", NewDomain(Mapping, key))
	assert.NilError(t, err)
	v, err := op.Call(map[any]any{key: int64(21)})
	assert.NilError(t, err)
	assert.Equal(t, v, int64(42))
}
