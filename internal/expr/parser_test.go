package expr

import (
	"errors"
	"math"
	"testing"

	"gotest.tools/assert"
)

func mustParse(t *testing.T, s string, opts ...Option) *Expression {
	t.Helper()
	e, err := Parse(s, opts...)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", s, err)
	}
	return e
}

func TestPrecedence(t *testing.T) {
	tests := []struct {
		input    string
		expected any
	}{
		{"1 + 2 * 3", int64(7)},
		{"(1 + 2) * 3", int64(9)},
		{"2 * (3 + 4) * 5", int64(70)},
		{"10 - 4 - 3", int64(3)},
		{"2 ^ 3", int64(8)},
		{"-2 ^ 2", int64(-4)},
		{"-2 + 3", int64(1)},
		{"2 * -3", int64(-6)},
		{"10 / 4", 2.5},
		{"7 % 3", int64(1)},
		{"((2))", int64(2)},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := mustParse(t, tt.input).Eval()
			assert.NilError(t, err)
			assert.Equal(t, v, tt.expected)
		})
	}
}

// TestCalculatorMatchesHost compares the parser against arithmetic
// written directly in Go.
func TestCalculatorMatchesHost(t *testing.T) {
	tests := []struct {
		input string
		host  float64
	}{
		{"1 + 2 * 3 - 4 / 2", 1 + 2*3 - 4.0/2},
		{"(1.5 + 2.5) * (3 - 1)", (1.5 + 2.5) * (3 - 1)},
		{"2 ^ 10 / 4", math.Pow(2, 10) / 4},
		{"-3 * -3 + 1", -3*-3 + 1},
		{"100 / 8 / 2", 100.0 / 8 / 2},
		{"1 - (2 - (3 - 4))", 1 - (2 - (3 - 4))},
		{"0.1 * 3 + 2e2", 0.1*3 + 2e2},
		{"sqrt(16) + abs(-2.5)", math.Sqrt(16) + math.Abs(-2.5)},
		{"sin(PI / 2) * E", math.Sin(math.Pi/2) * math.E},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := mustParse(t, tt.input).Eval()
			assert.NilError(t, err)
			got, ok := ToFloat(v)
			assert.Assert(t, ok, "result %v is not numeric", v)
			assert.Assert(t, math.Abs(got-tt.host) < 1e-9, "got %v, host %v", got, tt.host)
		})
	}
}

func TestLongestMatch(t *testing.T) {
	e := mustParse(t, "3 >= 2")
	tokens := e.Tokens()
	assert.Equal(t, len(tokens), 3)
	assert.Equal(t, tokens[2].Kind, Binary)
	assert.Equal(t, tokens[2].Key, ">=")

	v, err := e.Eval()
	assert.NilError(t, err)
	assert.Equal(t, v, true)
}

func TestAlphabeticOperatorsNeedWordBoundary(t *testing.T) {
	e := mustParse(t, "android and notes", WithVocabulary(Core()))
	assert.DeepEqual(t, e.Variables(), []string{"android", "notes"})

	v, err := e.EvalMap(map[string]any{"android": int64(1), "notes": "x"})
	assert.NilError(t, err)
	assert.Equal(t, v, "x")
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		input  string
		column int
		msg    string
	}{
		{"", 1, "empty expression"},
		{"1 +", 4, "unexpected end of expression"},
		{"(1 + 2", 7, "unmatched '('"},
		{"1 + 2)", 6, "unmatched ')'"},
		{"1 2", 3, "unexpected number"},
		{"1 $ 2", 3, "unknown character '$'"},
		{"* 2", 1, "unexpected operator"},
		{"f(1,)", 5, "unexpected ')'"},
		{"'abc", 1, "unterminated string"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			_, err := Parse(tt.input)
			if err == nil {
				t.Fatalf("expected error for %q", tt.input)
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("expected *ParseError, got %T", err)
			}
			if pe.Column != tt.column {
				t.Errorf("expected column %d, got %d (%v)", tt.column, pe.Column, err)
			}
			assert.ErrorContains(t, err, tt.msg)
		})
	}
}

func TestParseErrorFormat(t *testing.T) {
	_, err := Parse("1 2")
	assert.Error(t, err, "parse error [column 3]: unexpected number")
}

func TestFunctionCalls(t *testing.T) {
	tests := []struct {
		input    string
		expected any
	}{
		{"max(1, 5, 3)", int64(5)},
		{"min(4, 2 + 1)", int64(3)},
		{"pow(2, 3) + 1", int64(9)},
		{"if(1 > 2, 'x', 'y')", "y"},
		{"fac(5)", int64(120)},
		{"max(abs(-7), 2)", int64(7)},
		{"'a' || 'b' || 1", "ab1"},
		{"concat(x, y)", []any{int64(1), int64(2)}},
	}

	values := map[string]any{"x": []any{int64(1)}, "y": []any{int64(2)}}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := mustParse(t, tt.input).EvalMap(values)
			assert.NilError(t, err)
			assert.DeepEqual(t, v, tt.expected)
		})
	}
}

func TestNullaryCall(t *testing.T) {
	v, err := mustParse(t, "random() < 1").Eval()
	assert.NilError(t, err)
	assert.Equal(t, v, true)
}

func TestCoreVocabulary(t *testing.T) {
	tests := []struct {
		input    string
		expected any
	}{
		{"7 // 2", int64(3)},
		{"-7 // 2", int64(-4)},
		{"-7 % 3", int64(2)},
		{"2 ** 10", int64(1024)},
		{"not 1 == 2", true},
		{"3 in (1, 2, 3)", true},
		{"5 & 3 | 8", int64(9)},
		{"1 << 4", int64(16)},
		{"~0", int64(-1)},
		{"'ab' + 'c'", "abc"},
		{"1 < 2 and 0 or 'z'", "z"},
		{"1 is 1", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := mustParse(t, tt.input, WithVocabulary(Core())).Eval()
			assert.NilError(t, err)
			assert.Equal(t, v, tt.expected)
		})
	}
}

func TestSQLVocabulary(t *testing.T) {
	tests := []struct {
		input    string
		expected any
	}{
		{"a = 1 AND b LIKE 'x%'", true},
		{"a <> 1 OR b LIKE 'x_'", false},
		{"NOT a IN (2, 3)", true},
		{"b || '!'", "xyz!"},
		{"COUNT(c)", int64(2)},
		{"MAX(c) + MIN(c)", int64(4)},
		{"AVG(c)", 2.0},
		{"UPPER(b)", "XYZ"},
		{"COALESCE(NULL, a)", int64(1)},
		{"a * 2 + 1 >= 3", true},
	}

	values := map[string]any{"a": int64(1), "b": "xyz", "c": []any{int64(1), nil, int64(3)}}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := mustParse(t, tt.input, WithVocabulary(SQL())).EvalMap(values)
			assert.NilError(t, err)
			assert.Equal(t, v, tt.expected)
		})
	}
}

func TestSurrogateVariables(t *testing.T) {
	e := mustParse(t, "x y + 1", WithVariables("x y"))
	assert.DeepEqual(t, e.Variables(), []string{"X0"})
	assert.DeepEqual(t, e.Origin(), []any{"x y"})
	assert.DeepEqual(t, e.Mapping(), map[string]any{"X0": "x y"})

	v, err := e.Eval(int64(2))
	assert.NilError(t, err)
	assert.Equal(t, v, int64(3))
}

func TestSurrogateSkipsUsedNames(t *testing.T) {
	key := [2]string{"a", "b"}
	e := mustParse(t, "X0 * [a b]", WithVariables("X0", key))
	assert.DeepEqual(t, e.Variables(), []string{"X0", "X1"})
	assert.DeepEqual(t, e.Origin(), []any{"X0", key})
}

func TestSurrogateKeepsStringLiterals(t *testing.T) {
	e := mustParse(t, "a-b || 'a-b'", WithVariables("a-b"))
	v, err := e.Eval("v")
	assert.NilError(t, err)
	assert.Equal(t, v, "va-b")
}

func TestSurrogateOverlappingIDs(t *testing.T) {
	e := mustParse(t, "10 - 1", WithVariables(1, 10))
	assert.DeepEqual(t, e.Variables(), []string{"X1", "X0"})
	assert.DeepEqual(t, e.Origin(), []any{10, 1})
	assert.DeepEqual(t, e.Mapping(), map[string]any{"X0": 1, "X1": 10})

	v, err := e.Eval(int64(10), int64(1))
	assert.NilError(t, err)
	assert.Equal(t, v, int64(9))
}

func TestSurrogateMatchesWholeTokens(t *testing.T) {
	e := mustParse(t, "x1 + 1.5 * 1", WithVariables(1))
	assert.DeepEqual(t, e.Variables(), []string{"x1", "X0"})
	assert.DeepEqual(t, e.Origin(), []any{"x1", 1})

	v, err := e.Eval(int64(1), int64(2))
	assert.NilError(t, err)
	assert.Equal(t, v, 4.0)
}

func TestStringLiterals(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{`'it\'s'`, "it's"},
		{`"say \"hi\""`, `say "hi"`},
		{`'a"b'`, `a"b`},
		{`'a\\b'`, `a\b`},
		{`'tab\tend'`, "tab\tend"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v, err := mustParse(t, tt.input).Eval()
			assert.NilError(t, err)
			assert.Equal(t, v, tt.expected)
		})
	}

	_, err := Parse(`'abc\`)
	assert.ErrorContains(t, err, "unterminated string")
}

func TestDottedIdentifiers(t *testing.T) {
	e := mustParse(t, "a.b + 1")
	assert.DeepEqual(t, e.Variables(), []string{"a.b"})
	v, err := e.EvalMap(map[string]any{"a.b": int64(2)})
	assert.NilError(t, err)
	assert.Equal(t, v, int64(3))

	assert.Assert(t, IsIdentifier("users.name"))
	assert.Assert(t, !IsIdentifier(".name"))
}
