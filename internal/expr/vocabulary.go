package expr

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Group names accepted by Lookup.
const (
	GroupCore       = "core"
	GroupBuiltins   = "builtins"
	GroupCalculator = "calculator"
	GroupSQL        = "sql"
)

var (
	vocabOnce sync.Once
	vocabs    map[string]*Vocabulary
)

func registry() map[string]*Vocabulary {
	vocabOnce.Do(func() {
		core := newCore()
		vocabs = map[string]*Vocabulary{
			GroupCore:       core,
			GroupBuiltins:   newBuiltins(core),
			GroupCalculator: newCalculator(),
			GroupSQL:        newSQL(),
		}
	})
	return vocabs
}

// Lookup returns a shipped vocabulary by its group name.
func Lookup(name string) (*Vocabulary, error) {
	v, ok := registry()[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVocabulary, name)
	}
	return v, nil
}

// Groups lists the names accepted by Lookup.
func Groups() []string {
	names := make([]string, 0, len(registry()))
	for name := range registry() {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Core returns the general arithmetic, comparison, boolean and bitwise
// operator vocabulary.
func Core() *Vocabulary { return registry()[GroupCore] }

// Builtins returns Core extended by the safe builtin functions.
func Builtins() *Vocabulary { return registry()[GroupBuiltins] }

// Calculator returns the compact calculator vocabulary. It is the
// default vocabulary of Parse.
func Calculator() *Vocabulary { return registry()[GroupCalculator] }

// SQL returns the SQL-flavoured vocabulary.
func SQL() *Vocabulary { return registry()[GroupSQL] }

func unary(name string, f func(a any) (any, error)) Func {
	return func(args ...any) (any, error) {
		if len(args) != 1 {
			return nil, arityError(name, "1 argument", len(args))
		}
		return f(args[0])
	}
}

func binary(name string, f func(a, b any) (any, error)) Func {
	return func(args ...any) (any, error) {
		if len(args) != 2 {
			return nil, arityError(name, "2 arguments", len(args))
		}
		return f(args[0], args[1])
	}
}

func compare(op string, test func(c int) bool) Func {
	return binary(op, func(a, b any) (any, error) {
		c, err := ordered(op, a, b)
		if err != nil {
			return nil, err
		}
		return test(c), nil
	})
}

func eq(a, b any) (any, error) { return Equal(a, b), nil }
func ne(a, b any) (any, error) { return !Equal(a, b), nil }

func not(a any) (any, error) { return !Truth(a), nil }

// and/or follow short-circuit value semantics: the deciding operand is
// returned, not a bool.
func and(a, b any) (any, error) {
	if !Truth(a) {
		return a, nil
	}
	return b, nil
}

func or(a, b any) (any, error) {
	if Truth(a) {
		return a, nil
	}
	return b, nil
}

func comparisons(priority int, equals string) []Symbol {
	return []Symbol{
		{Kind: Binary, Key: equals, Func: binary(equals, eq), Priority: priority, Builtin: true},
		{Kind: Binary, Key: "!=", Func: binary("!=", ne), Priority: priority, Builtin: true},
		{Kind: Binary, Key: "<", Func: compare("<", func(c int) bool { return c < 0 }), Priority: priority, Builtin: true},
		{Kind: Binary, Key: "<=", Func: compare("<=", func(c int) bool { return c <= 0 }), Priority: priority, Builtin: true},
		{Kind: Binary, Key: ">", Func: compare(">", func(c int) bool { return c > 0 }), Priority: priority, Builtin: true},
		{Kind: Binary, Key: ">=", Func: compare(">=", func(c int) bool { return c >= 0 }), Priority: priority, Builtin: true},
	}
}

func newCore() *Vocabulary {
	v := NewVocabulary(GroupCore,
		Symbol{Kind: Unary, Key: "+", Func: unary("+", Pos), Priority: 11, Builtin: true},
		Symbol{Kind: Unary, Key: "-", Func: unary("-", Neg), Priority: 11, Builtin: true},
		Symbol{Kind: Unary, Key: "~", Func: unary("~", Invert), Priority: 11, Builtin: true},
		Symbol{Kind: Binary, Key: "**", Func: binary("**", Pow), Priority: 10, Builtin: true},
		Symbol{Kind: Binary, Key: "@", Func: binary("@", MatMul), Priority: 9, Builtin: true},
		Symbol{Kind: Binary, Key: "/", Func: binary("/", TrueDiv), Priority: 9, Builtin: true},
		Symbol{Kind: Binary, Key: "//", Func: binary("//", FloorDiv), Priority: 9, Builtin: true},
		Symbol{Kind: Binary, Key: "%", Func: binary("%", Mod), Priority: 9, Builtin: true},
		Symbol{Kind: Binary, Key: "*", Func: binary("*", Mul), Priority: 9, Builtin: true},
		Symbol{Kind: Binary, Key: "+", Func: binary("+", Add), Priority: 8, Builtin: true},
		Symbol{Kind: Binary, Key: "-", Func: binary("-", Sub), Priority: 8, Builtin: true},
		Symbol{Kind: Binary, Key: ">>", Func: shift(">>", false), Priority: 7, Builtin: true},
		Symbol{Kind: Binary, Key: "<<", Func: shift("<<", true), Priority: 7, Builtin: true},
		Symbol{Kind: Binary, Key: "&", Func: bitwise("&", func(x, y int64) int64 { return x & y }, func(x, y bool) bool { return x && y }), Priority: 6, Builtin: true},
		Symbol{Kind: Binary, Key: "^", Func: bitwise("^", func(x, y int64) int64 { return x ^ y }, func(x, y bool) bool { return x != y }), Priority: 5, Builtin: true},
		Symbol{Kind: Binary, Key: "|", Func: bitwise("|", func(x, y int64) int64 { return x | y }, func(x, y bool) bool { return x || y }), Priority: 4, Builtin: true},
		Symbol{Kind: Binary, Key: "is", Func: binary("is", Is), Priority: 3, Builtin: true},
		Symbol{Kind: Binary, Key: "in", Func: binary("in", Contains), Priority: 3, Builtin: true},
		Symbol{Kind: Unary, Key: "not", Func: unary("not", not), Priority: 2, Builtin: true},
		Symbol{Kind: Binary, Key: "and", Func: binary("and", and), Priority: 1, Builtin: true},
		Symbol{Kind: Binary, Key: "or", Func: binary("or", or), Priority: 0, Builtin: true},
	)
	v.Add(comparisons(3, "==")...)
	return v
}

func newBuiltins(core *Vocabulary) *Vocabulary {
	fn := func(key string, f Func) Symbol {
		return Symbol{Kind: Function, Key: key, Func: f, Priority: 12, Builtin: true}
	}
	return core.Extend(GroupBuiltins,
		fn("abs", unary("abs", absolute)),
		fn("all", unary("all", func(a any) (any, error) {
			l, ok := asSlice(a)
			if !ok {
				return nil, operandError("all", a)
			}
			for _, e := range l {
				if !Truth(e) {
					return false, nil
				}
			}
			return true, nil
		})),
		fn("any", unary("any", func(a any) (any, error) {
			l, ok := asSlice(a)
			if !ok {
				return nil, operandError("any", a)
			}
			for _, e := range l {
				if Truth(e) {
					return true, nil
				}
			}
			return false, nil
		})),
		fn("bool", unary("bool", func(a any) (any, error) { return Truth(a), nil })),
		fn("float", unary("float", toFloat)),
		fn("int", unary("int", toInt)),
		fn("len", unary("len", length)),
		fn("max", extremum("max", 1)),
		fn("min", extremum("min", -1)),
		fn("pow", binary("pow", Pow)),
		fn("round", round),
		fn("sorted", unary("sorted", func(a any) (any, error) {
			l, ok := asSlice(a)
			if !ok {
				return nil, operandError("sorted", a)
			}
			out := append([]any(nil), l...)
			sort.SliceStable(out, func(i, j int) bool { return Compare(out[i], out[j]) < 0 })
			return out, nil
		})),
		fn("str", unary("str", func(a any) (any, error) { return Str(a), nil })),
		fn("sum", sum("sum")),
		Symbol{Kind: Constant, Key: "True", Value: true, Builtin: true},
		Symbol{Kind: Constant, Key: "False", Value: false, Builtin: true},
		Symbol{Kind: Constant, Key: "None", Value: nil, Builtin: true},
	)
}

func newCalculator() *Vocabulary {
	math1 := func(key string, f func(float64) float64) Symbol {
		return Symbol{Kind: Function, Key: key, Priority: 0, Builtin: true, Func: unary(key, func(a any) (any, error) {
			x, ok := ToFloat(a)
			if !ok {
				return nil, operandError(key, a)
			}
			return f(x), nil
		})}
	}
	fn := func(key string, f Func, builtin bool) Symbol {
		return Symbol{Kind: Function, Key: key, Func: f, Builtin: builtin}
	}
	iif := func(args ...any) (any, error) {
		if len(args) != 3 {
			return nil, arityError("if", "3 arguments", len(args))
		}
		if Truth(args[0]) {
			return args[1], nil
		}
		return args[2], nil
	}
	v := NewVocabulary(GroupCalculator,
		Symbol{Kind: Unary, Key: "-", Func: unary("-", Neg), Priority: 5, Builtin: true},
		Symbol{Kind: Binary, Key: "+", Func: binary("+", Add), Priority: 2, Builtin: true},
		Symbol{Kind: Binary, Key: "-", Func: binary("-", Sub), Priority: 2, Builtin: true},
		Symbol{Kind: Binary, Key: "*", Func: binary("*", Mul), Priority: 3, Builtin: true},
		Symbol{Kind: Binary, Key: "/", Func: binary("/", TrueDiv), Priority: 4, Builtin: true},
		Symbol{Kind: Binary, Key: "%", Func: binary("%", Mod), Priority: 4, Builtin: true},
		Symbol{Kind: Binary, Key: "^", Func: binary("^", Pow), Priority: 6},
		Symbol{Kind: Binary, Key: "||", Func: binary("||", concatStrings), Priority: 1},
		Symbol{Kind: Binary, Key: "and", Func: binary("and", and), Priority: 0, Builtin: true},
		Symbol{Kind: Binary, Key: "or", Func: binary("or", or), Priority: 0, Builtin: true},
		math1("sin", math.Sin), math1("cos", math.Cos), math1("tan", math.Tan),
		math1("asin", math.Asin), math1("acos", math.Acos), math1("atan", math.Atan),
		math1("sqrt", math.Sqrt), math1("log", math.Log), math1("exp", math.Exp),
		math1("ceil", math.Ceil), math1("floor", math.Floor),
		fn("abs", unary("abs", absolute), true),
		fn("round", round, true),
		fn("min", extremum("min", -1), true),
		fn("max", extremum("max", 1), true),
		fn("pow", binary("pow", Pow), true),
		fn("atan2", binary("atan2", func(a, b any) (any, error) {
			y, ok1 := ToFloat(a)
			x, ok2 := ToFloat(b)
			if !ok1 || !ok2 {
				return nil, operandError("atan2", a, b)
			}
			return math.Atan2(y, x), nil
		}), true),
		fn("random", random, false),
		fn("fac", unary("fac", factorial), false),
		fn("concat", concatLists, false),
		fn("if", iif, false),
		fn("iif", iif, false),
		Symbol{Kind: Constant, Key: "E", Value: math.E, Builtin: true},
		Symbol{Kind: Constant, Key: "PI", Value: math.Pi, Builtin: true},
	)
	v.Add(comparisons(1, "==")...)
	return v
}

func newSQL() *Vocabulary {
	agg := func(key string, f Func) Symbol {
		return Symbol{Kind: Function, Key: key, Func: f, Priority: 20}
	}
	fn := func(key string, f Func) Symbol {
		return Symbol{Kind: Function, Key: key, Func: f, Priority: 20, Builtin: true}
	}
	v := NewVocabulary(GroupSQL,
		Symbol{Kind: Binary, Key: "||", Func: binary("||", func(a, b any) (any, error) {
			if a == nil || b == nil {
				return nil, nil
			}
			return concatStrings(a, b)
		}), Priority: 1},
		Symbol{Kind: Unary, Key: "+", Func: unary("+", Pos), Priority: 11, Builtin: true},
		Symbol{Kind: Unary, Key: "-", Func: unary("-", Neg), Priority: 11, Builtin: true},
		Symbol{Kind: Binary, Key: "*", Func: binary("*", Mul), Priority: 10, Builtin: true},
		Symbol{Kind: Binary, Key: "/", Func: binary("/", TrueDiv), Priority: 10, Builtin: true},
		Symbol{Kind: Binary, Key: "%", Func: binary("%", Mod), Priority: 10, Builtin: true},
		Symbol{Kind: Binary, Key: "+", Func: binary("+", Add), Priority: 9, Builtin: true},
		Symbol{Kind: Binary, Key: "-", Func: binary("-", Sub), Priority: 9, Builtin: true},
		Symbol{Kind: Binary, Key: "&", Func: bitwise("&", func(x, y int64) int64 { return x & y }, func(x, y bool) bool { return x && y }), Priority: 7, Builtin: true},
		Symbol{Kind: Binary, Key: "^", Func: bitwise("^", func(x, y int64) int64 { return x ^ y }, func(x, y bool) bool { return x != y }), Priority: 6, Builtin: true},
		Symbol{Kind: Binary, Key: "|", Func: bitwise("|", func(x, y int64) int64 { return x | y }, func(x, y bool) bool { return x || y }), Priority: 5, Builtin: true},
		Symbol{Kind: Binary, Key: "<>", Func: binary("<>", ne), Priority: 4, Builtin: true},
		Symbol{Kind: Binary, Key: "IN", Func: binary("IN", Contains), Priority: 4, Builtin: true},
		Symbol{Kind: Binary, Key: "LIKE", Func: binary("LIKE", Like), Priority: 4},
		Symbol{Kind: Unary, Key: "NOT", Func: unary("NOT", not), Priority: 3, Builtin: true},
		Symbol{Kind: Binary, Key: "AND", Func: binary("AND", and), Priority: 2, Builtin: true},
		Symbol{Kind: Binary, Key: "OR", Func: binary("OR", or), Priority: 1, Builtin: true},
		agg("COUNT", func(args ...any) (any, error) {
			var n int64
			for _, a := range flatten(args) {
				if a != nil {
					n++
				}
			}
			return n, nil
		}),
		agg("MIN", extremum("MIN", -1)),
		agg("MAX", extremum("MAX", 1)),
		agg("SUM", sum("SUM")),
		agg("AVG", func(args ...any) (any, error) {
			values := nonNil(flatten(args))
			if len(values) == 0 {
				return nil, nil
			}
			total, err := sum("AVG")(values...)
			if err != nil {
				return nil, err
			}
			return TrueDiv(total, int64(len(values)))
		}),
		fn("UPPER", unary("UPPER", stringFunc("UPPER", strings.ToUpper))),
		fn("LOWER", unary("LOWER", stringFunc("LOWER", strings.ToLower))),
		fn("TRIM", unary("TRIM", stringFunc("TRIM", strings.TrimSpace))),
		fn("LENGTH", unary("LENGTH", length)),
		fn("ABS", unary("ABS", absolute)),
		fn("ROUND", round),
		fn("COALESCE", func(args ...any) (any, error) {
			for _, a := range args {
				if a != nil {
					return a, nil
				}
			}
			return nil, nil
		}),
		Symbol{Kind: Constant, Key: "TRUE", Value: true, Builtin: true},
		Symbol{Kind: Constant, Key: "FALSE", Value: false, Builtin: true},
		Symbol{Kind: Constant, Key: "NULL", Value: nil, Builtin: true},
	)
	v.Add(comparisons(4, "=")...)
	return v
}

// flatten expands a single sequence argument, so that aggregate
// functions accept both f(1, 2, 3) and f(column).
func flatten(args []any) []any {
	if len(args) == 1 {
		if l, ok := asSlice(args[0]); ok {
			return l
		}
	}
	return args
}

func nonNil(values []any) []any {
	out := values[:0:0]
	for _, v := range values {
		if v != nil {
			out = append(out, v)
		}
	}
	return out
}

func extremum(name string, sign int) Func {
	return func(args ...any) (any, error) {
		values := nonNil(flatten(args))
		if len(values) == 0 {
			return nil, arityError(name, "a non-empty sequence", 0)
		}
		best := values[0]
		for _, v := range values[1:] {
			if _, err := ordered(name, best, v); err != nil {
				return nil, err
			}
			if Compare(v, best)*sign > 0 {
				best = v
			}
		}
		return best, nil
	}
}

func sum(name string) Func {
	return func(args ...any) (any, error) {
		var total any = int64(0)
		for _, v := range nonNil(flatten(args)) {
			next, err := Add(total, v)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			total = next
		}
		return total, nil
	}
}

func absolute(a any) (any, error) {
	n, ok := asNumber(a)
	if !ok {
		return nil, operandError("abs", a)
	}
	if n.float {
		return math.Abs(n.f), nil
	}
	if n.i < 0 {
		return -n.i, nil
	}
	return n.i, nil
}

func round(args ...any) (any, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, arityError("round", "1 or 2 arguments", len(args))
	}
	x, ok := ToFloat(args[0])
	if !ok {
		return nil, operandError("round", args[0])
	}
	if len(args) == 1 {
		return int64(math.RoundToEven(x)), nil
	}
	digits, ok := ToInt(args[1])
	if !ok {
		return nil, operandError("round", args[1])
	}
	scale := math.Pow(10, float64(digits))
	return math.RoundToEven(x*scale) / scale, nil
}

func length(a any) (any, error) {
	if s, ok := a.(string); ok {
		return int64(len([]rune(s))), nil
	}
	if l, ok := asSlice(a); ok {
		return int64(len(l)), nil
	}
	if m, ok := a.(map[string]any); ok {
		return int64(len(m)), nil
	}
	return nil, operandError("len", a)
}

func toFloat(a any) (any, error) {
	if s, ok := a.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: float(%q)", ErrOperand, s)
		}
		return f, nil
	}
	if b, ok := a.(bool); ok {
		if b {
			return 1.0, nil
		}
		return 0.0, nil
	}
	f, ok := ToFloat(a)
	if !ok {
		return nil, operandError("float", a)
	}
	return f, nil
}

func toInt(a any) (any, error) {
	if s, ok := a.(string); ok {
		i, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: int(%q)", ErrOperand, s)
		}
		return i, nil
	}
	if b, ok := a.(bool); ok {
		if b {
			return int64(1), nil
		}
		return int64(0), nil
	}
	n, ok := asNumber(a)
	if !ok {
		return nil, operandError("int", a)
	}
	if n.float {
		return int64(n.f), nil
	}
	return n.i, nil
}

func stringFunc(name string, f func(string) string) func(a any) (any, error) {
	return func(a any) (any, error) {
		if a == nil {
			return nil, nil
		}
		s, ok := a.(string)
		if !ok {
			return nil, operandError(name, a)
		}
		return f(s), nil
	}
}

func concatStrings(a, b any) (any, error) {
	return Str(a) + Str(b), nil
}

func concatLists(args ...any) (any, error) {
	var out []any
	for _, a := range args {
		l, ok := asSlice(a)
		if !ok {
			return nil, operandError("concat", a)
		}
		out = append(out, l...)
	}
	return out, nil
}

func factorial(a any) (any, error) {
	n, ok := ToInt(a)
	if !ok || n < 0 {
		return nil, operandError("fac", a)
	}
	r := int64(1)
	for i := int64(2); i <= n; i++ {
		r *= i
	}
	return r, nil
}

// random returns a uniform float in [0, 1), scaled by the optional
// argument.
func random(args ...any) (any, error) {
	switch len(args) {
	case 0:
		return rand.Float64(), nil
	case 1:
		scale, ok := ToFloat(args[0])
		if !ok {
			return nil, operandError("random", args[0])
		}
		if scale == 0 {
			scale = 1
		}
		return rand.Float64() * scale, nil
	}
	return nil, arityError("random", "at most 1 argument", len(args))
}
