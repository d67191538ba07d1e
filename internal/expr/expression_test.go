package expr

import (
	"errors"
	"testing"

	"gotest.tools/assert"
)

func TestFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"a + b * 2", "a + (b * 2)"},
		{"(a + b) * 2", "(a + b) * 2"},
		{"-a", "-a"},
		{"max(a, 1)", "max(a, 1)"},
		{"'x' || name", `"x" || name`},
		{"2.0 * x", "2.0 * x"},
		{"random()", "random()"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, mustParse(t, tt.input).String(), tt.expected)
		})
	}
}

func TestFormatAlphabeticUnary(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"not a", "not(a)"},
		{"not a == b", "not(a == b)"},
		{"a and not b", "a and not(b)"},
	}
	values := map[string]any{"a": true, "b": false}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			e := mustParse(t, tt.input, WithVocabulary(Core()))
			assert.Equal(t, e.String(), tt.expected)

			again := mustParse(t, e.String(), WithVocabulary(Core()))
			want, err := e.EvalMap(values)
			assert.NilError(t, err)
			got, err := again.EvalMap(values)
			assert.NilError(t, err)
			assert.Equal(t, got, want)
		})
	}
}

func TestFormatRoundTrip(t *testing.T) {
	inputs := []string{
		"a + b * 2 - c / 4",
		"-(a ^ 2) + max(a, b, 3)",
		"if(a > b, 'big', 'small') || '!'",
	}
	values := map[string]any{"a": int64(3), "b": int64(2), "c": int64(8)}

	for _, input := range inputs {
		t.Run(input, func(t *testing.T) {
			e := mustParse(t, input)
			again := mustParse(t, e.String())
			want, err := e.EvalMap(values)
			assert.NilError(t, err)
			got, err := again.EvalMap(values)
			assert.NilError(t, err)
			assert.Equal(t, got, want)
		})
	}
}

func TestFormatTranslate(t *testing.T) {
	e := mustParse(t, "a ^ 2 + fac(b)")
	assert.Equal(t, e.Format(true), "_op0(a, 2) + _op3(b)")
	assert.Equal(t, e.Format(false), "(a ^ 2) + fac(b)")
}

func TestFormatKeepsTuplesGrouped(t *testing.T) {
	e := mustParse(t, "x in (1, 2)", WithVocabulary(Core()))
	assert.Equal(t, e.String(), "x in (1, 2)")
}

func TestFunc(t *testing.T) {
	e := mustParse(t, "a ^ 2 + b * fac(3)")
	for _, compile := range []bool{true, false} {
		f, err := e.Func(compile)
		assert.NilError(t, err)

		v, err := f(int64(3), int64(2))
		assert.NilError(t, err)
		assert.Equal(t, v, int64(21))

		_, err = f(int64(1))
		assert.Assert(t, errors.Is(err, ErrArguments))
	}
}

func TestFuncSQL(t *testing.T) {
	e := mustParse(t, "name LIKE 'a%' AND n > 1", WithVocabulary(SQL()))
	f, err := e.Func(true)
	assert.NilError(t, err)

	v, err := f("alice", int64(2))
	assert.NilError(t, err)
	assert.Equal(t, v, true)

	v, err = f("bob", int64(2))
	assert.NilError(t, err)
	assert.Equal(t, v, false)
}

func TestSimplify(t *testing.T) {
	e := mustParse(t, "x + 2 * 3")

	s, err := e.Simplify(nil)
	assert.NilError(t, err)
	assert.Equal(t, s.String(), "x + 6")
	assert.DeepEqual(t, s.Variables(), []string{"x"})

	s, err = e.Simplify(map[string]any{"x": int64(1)})
	assert.NilError(t, err)
	assert.Equal(t, s.String(), "7")
	assert.DeepEqual(t, s.Variables(), []string(nil))
}

func TestSimplifyKeepsCalls(t *testing.T) {
	e := mustParse(t, "random() * (1 + 1)")
	s, err := e.Simplify(nil)
	assert.NilError(t, err)
	assert.Equal(t, s.String(), "random() * 2")
}

func TestSimplifyPropagatesErrors(t *testing.T) {
	_, err := mustParse(t, "x + 1 / 0").Simplify(nil)
	assert.Assert(t, errors.Is(err, ErrZeroDivision))
}

func TestSubst(t *testing.T) {
	e := mustParse(t, "a + b")
	s, err := e.SubstString("b", "c * 2")
	assert.NilError(t, err)
	assert.Equal(t, s.String(), "a + (c * 2)")
	assert.DeepEqual(t, s.Variables(), []string{"a", "c"})

	v, err := s.Eval(int64(1), int64(4))
	assert.NilError(t, err)
	assert.Equal(t, v, int64(9))
}

func TestEvalErrors(t *testing.T) {
	e := mustParse(t, "a + 1")

	_, err := e.EvalMap(nil)
	assert.Assert(t, errors.Is(err, ErrUndefined))

	_, err = e.Eval()
	assert.Assert(t, errors.Is(err, ErrArguments))

	_, err = mustParse(t, "f(1)").EvalMap(map[string]any{"f": int64(2)})
	assert.Assert(t, errors.Is(err, ErrNotCallable))

	_, err = mustParse(t, "'a' - 1").Eval()
	assert.Assert(t, errors.Is(err, ErrOperand))
}

func TestUserSuppliedFunction(t *testing.T) {
	e := mustParse(t, "twice(x) + 1")
	assert.DeepEqual(t, e.Variables(), []string{"twice", "x"})

	twice := Func(func(args ...any) (any, error) { return Mul(args[0], int64(2)) })
	v, err := e.Eval(twice, int64(4))
	assert.NilError(t, err)
	assert.Equal(t, v, int64(9))
}

func TestSymbols(t *testing.T) {
	e := mustParse(t, "sin(x) + PI * y")
	assert.DeepEqual(t, e.Symbols(), []string{"sin", "PI", "*", "+"})
}

func TestTupleResult(t *testing.T) {
	v, err := mustParse(t, "1, 2 + 1").Eval()
	assert.NilError(t, err)
	assert.DeepEqual(t, v, []any{int64(1), int64(3)})
}

func TestLookup(t *testing.T) {
	for _, name := range []string{GroupCore, GroupBuiltins, GroupCalculator, GroupSQL} {
		v, err := Lookup(name)
		assert.NilError(t, err)
		assert.Equal(t, v.Name(), name)
	}

	_, err := Lookup("cobol")
	assert.Assert(t, errors.Is(err, ErrUnknownVocabulary))
}

func TestBuiltins(t *testing.T) {
	tests := []struct {
		input    string
		expected any
	}{
		{"len('abc') + sum(x)", int64(9)},
		{"abs(-2) ** 2", int64(4)},
		{"str(1.5) + 'x'", "1.5x"},
		{"int('7') // 2", int64(3)},
		{"round(2.5)", int64(2)},
		{"all(x) and any(x)", true},
		{"x is None", false},
		{"True and max(x)", int64(4)},
	}

	values := map[string]any{"x": []any{int64(2), int64(4)}}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := mustParse(t, tt.input, WithVocabulary(Builtins())).EvalMap(values)
			assert.NilError(t, err)
			assert.Equal(t, v, tt.expected)
		})
	}
}

func TestCompare(t *testing.T) {
	assert.Equal(t, Compare(nil, false), -1)
	assert.Equal(t, Compare(int64(2), 1.5), 1)
	assert.Equal(t, Compare("a", "b"), -1)
	assert.Equal(t, Compare([]any{int64(1), "b"}, []any{int64(1), "a"}), 1)
	assert.Equal(t, Compare(int64(3), "3"), -1)
	assert.Assert(t, Equal(int64(2), 2.0))
	assert.Assert(t, Equal([]any{int64(1)}, []int{1}))
}
