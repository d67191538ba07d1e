package expr

import (
	"fmt"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// number is a normalized numeric operand: every Go integer kind becomes
// int64 and every float kind becomes float64.
type number struct {
	i     int64
	f     float64
	float bool
}

func asNumber(v any) (number, bool) {
	switch x := v.(type) {
	case int64:
		return number{i: x}, true
	case int:
		return number{i: int64(x)}, true
	case float64:
		return number{f: x, float: true}, true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return number{i: rv.Int()}, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return number{i: int64(rv.Uint())}, true
	case reflect.Float32, reflect.Float64:
		return number{f: rv.Float(), float: true}, true
	}
	return number{}, false
}

func (n number) float64() float64 {
	if n.float {
		return n.f
	}
	return float64(n.i)
}

func (n number) value() any {
	if n.float {
		return n.f
	}
	return n.i
}

// IsNumber reports whether v is a Go integer or float.
func IsNumber(v any) bool {
	_, ok := asNumber(v)
	return ok
}

// ToFloat converts a numeric value to float64.
func ToFloat(v any) (float64, bool) {
	n, ok := asNumber(v)
	if !ok {
		return 0, false
	}
	return n.float64(), true
}

// ToInt converts an integral value to int64.
func ToInt(v any) (int64, bool) {
	n, ok := asNumber(v)
	if !ok {
		return 0, false
	}
	if n.float {
		if n.f != math.Trunc(n.f) {
			return 0, false
		}
		return int64(n.f), true
	}
	return n.i, true
}

// Truth returns the boolean interpretation of a value: nil, false, zero
// and empty containers are false.
func Truth(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case argList:
		return len(x) > 0
	}
	if n, ok := asNumber(v); ok {
		return n.float64() != 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Map, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

// Equal compares two values, treating integers and floats of the same
// magnitude as equal.
func Equal(a, b any) bool {
	if na, ok := asNumber(a); ok {
		nb, ok := asNumber(b)
		if !ok {
			return false
		}
		if !na.float && !nb.float {
			return na.i == nb.i
		}
		return na.float64() == nb.float64()
	}
	sa, aok := asSlice(a)
	sb, bok := asSlice(b)
	if aok && bok {
		if len(sa) != len(sb) {
			return false
		}
		for i := range sa {
			if !Equal(sa[i], sb[i]) {
				return false
			}
		}
		return true
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	return reflect.DeepEqual(a, b)
}

func typeRank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case string:
		return 3
	case time.Time:
		return 4
	}
	if IsNumber(v) {
		return 2
	}
	if _, ok := asSlice(v); ok {
		return 5
	}
	return 6
}

// Compare returns a total order over values: nil < bool < number <
// string < time < sequence < other. Sequences compare lexicographically,
// unknown types by their printed form.
func Compare(a, b any) int {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch ra {
	case 0:
		return 0
	case 1:
		x, y := a.(bool), b.(bool)
		switch {
		case x == y:
			return 0
		case !x:
			return -1
		}
		return 1
	case 2:
		na, _ := asNumber(a)
		nb, _ := asNumber(b)
		if !na.float && !nb.float {
			return cmpOrdered(na.i, nb.i)
		}
		return cmpOrdered(na.float64(), nb.float64())
	case 3:
		return strings.Compare(a.(string), b.(string))
	case 4:
		return a.(time.Time).Compare(b.(time.Time))
	case 5:
		sa, _ := asSlice(a)
		sb, _ := asSlice(b)
		for i := 0; i < len(sa) && i < len(sb); i++ {
			if c := Compare(sa[i], sb[i]); c != 0 {
				return c
			}
		}
		return cmpOrdered(len(sa), len(sb))
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func cmpOrdered[T int | int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// asSlice converts lists of any element type to []any.
func asSlice(v any) ([]any, bool) {
	switch x := v.(type) {
	case []any:
		return x, true
	case argList:
		return []any(x), true
	case string, []byte:
		return nil, false
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

// Str renders a value the way the str() builtin does.
func Str(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case bool:
		if x {
			return "True"
		}
		return "False"
	case string:
		return x
	case float64:
		return formatFloat(x)
	case float32:
		return formatFloat(float64(x))
	}
	if s, ok := asSlice(v); ok {
		parts := make([]string, len(s))
		for i, e := range s {
			parts[i] = repr(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return fmt.Sprint(v)
}

func repr(v any) string {
	if s, ok := v.(string); ok {
		return strconv.Quote(s)
	}
	return Str(v)
}

func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".eEnN") {
		s += ".0"
	}
	return s
}

// ordered compares operands of the same kind; mixing kinds is an error
// for the relational operators.
func ordered(op string, a, b any) (int, error) {
	ra, rb := typeRank(a), typeRank(b)
	if ra != rb || ra == 0 || ra == 6 {
		return 0, operandError(op, a, b)
	}
	return Compare(a, b), nil
}

func arith(op string, a, b any, ints func(x, y int64) (any, error), floats func(x, y float64) (any, error)) (any, error) {
	na, ok1 := asNumber(a)
	nb, ok2 := asNumber(b)
	if !ok1 || !ok2 {
		return nil, operandError(op, a, b)
	}
	if !na.float && !nb.float && ints != nil {
		return ints(na.i, nb.i)
	}
	return floats(na.float64(), nb.float64())
}

// Add sums numbers and concatenates strings and lists.
func Add(a, b any) (any, error) {
	if sa, ok := a.(string); ok {
		if sb, ok := b.(string); ok {
			return sa + sb, nil
		}
		return nil, operandError("+", a, b)
	}
	if la, ok := asSlice(a); ok {
		lb, ok := asSlice(b)
		if !ok {
			return nil, operandError("+", a, b)
		}
		out := make([]any, 0, len(la)+len(lb))
		return append(append(out, la...), lb...), nil
	}
	return arith("+", a, b,
		func(x, y int64) (any, error) { return x + y, nil },
		func(x, y float64) (any, error) { return x + y, nil })
}

// Sub subtracts numbers.
func Sub(a, b any) (any, error) {
	return arith("-", a, b,
		func(x, y int64) (any, error) { return x - y, nil },
		func(x, y float64) (any, error) { return x - y, nil })
}

// Mul multiplies numbers.
func Mul(a, b any) (any, error) {
	return arith("*", a, b,
		func(x, y int64) (any, error) { return x * y, nil },
		func(x, y float64) (any, error) { return x * y, nil })
}

// TrueDiv divides numbers and always yields a float.
func TrueDiv(a, b any) (any, error) {
	return arith("/", a, b, nil, func(x, y float64) (any, error) {
		if y == 0 {
			return nil, ErrZeroDivision
		}
		return x / y, nil
	})
}

// FloorDiv divides and rounds towards negative infinity.
func FloorDiv(a, b any) (any, error) {
	return arith("//", a, b,
		func(x, y int64) (any, error) {
			if y == 0 {
				return nil, ErrZeroDivision
			}
			q := x / y
			if (x%y != 0) && ((x < 0) != (y < 0)) {
				q--
			}
			return q, nil
		},
		func(x, y float64) (any, error) {
			if y == 0 {
				return nil, ErrZeroDivision
			}
			return math.Floor(x / y), nil
		})
}

// Mod returns the remainder with the sign of the divisor.
func Mod(a, b any) (any, error) {
	return arith("%", a, b,
		func(x, y int64) (any, error) {
			if y == 0 {
				return nil, ErrZeroDivision
			}
			r := x % y
			if r != 0 && ((r < 0) != (y < 0)) {
				r += y
			}
			return r, nil
		},
		func(x, y float64) (any, error) {
			if y == 0 {
				return nil, ErrZeroDivision
			}
			r := math.Mod(x, y)
			if r != 0 && ((r < 0) != (y < 0)) {
				r += y
			}
			return r, nil
		})
}

// Pow raises a to the power b. Integer powers with a non-negative
// exponent stay integral.
func Pow(a, b any) (any, error) {
	return arith("**", a, b,
		func(x, y int64) (any, error) {
			if y < 0 {
				return math.Pow(float64(x), float64(y)), nil
			}
			r := int64(1)
			for ; y > 0; y-- {
				r *= x
			}
			return r, nil
		},
		func(x, y float64) (any, error) { return math.Pow(x, y), nil })
}

// Neg negates a number.
func Neg(a any) (any, error) {
	n, ok := asNumber(a)
	if !ok {
		return nil, operandError("unary -", a)
	}
	if n.float {
		return -n.f, nil
	}
	return -n.i, nil
}

// Pos returns a number unchanged.
func Pos(a any) (any, error) {
	n, ok := asNumber(a)
	if !ok {
		return nil, operandError("unary +", a)
	}
	return n.value(), nil
}

func integers(op string, a, b any) (int64, int64, error) {
	x, ok1 := asNumber(a)
	y, ok2 := asNumber(b)
	if !ok1 || !ok2 || x.float || y.float {
		return 0, 0, operandError(op, a, b)
	}
	return x.i, y.i, nil
}

// Invert returns the bitwise complement of an integer.
func Invert(a any) (any, error) {
	n, ok := asNumber(a)
	if !ok || n.float {
		return nil, operandError("~", a)
	}
	return ^n.i, nil
}

func bitwise(op string, f func(x, y int64) int64, g func(x, y bool) bool) Func {
	return binary(op, func(a, b any) (any, error) {
		if x, ok := a.(bool); ok {
			if y, ok := b.(bool); ok {
				return g(x, y), nil
			}
		}
		x, y, err := integers(op, a, b)
		if err != nil {
			return nil, err
		}
		return f(x, y), nil
	})
}

func shift(op string, left bool) Func {
	return binary(op, func(a, b any) (any, error) {
		x, y, err := integers(op, a, b)
		if err != nil {
			return nil, err
		}
		if y < 0 {
			return nil, fmt.Errorf("%w: negative shift count", ErrOperand)
		}
		if left {
			return x << uint(y), nil
		}
		return x >> uint(y), nil
	})
}

// MatMul returns the dot product of two numeric sequences.
func MatMul(a, b any) (any, error) {
	la, ok1 := asSlice(a)
	lb, ok2 := asSlice(b)
	if !ok1 || !ok2 || len(la) != len(lb) {
		return nil, operandError("@", a, b)
	}
	var sum any = int64(0)
	for i := range la {
		p, err := Mul(la[i], lb[i])
		if err != nil {
			return nil, err
		}
		if sum, err = Add(sum, p); err != nil {
			return nil, err
		}
	}
	return sum, nil
}

// Contains implements the membership test "a in b".
func Contains(a, b any) (any, error) {
	switch x := b.(type) {
	case string:
		s, ok := a.(string)
		if !ok {
			return nil, operandError("in", a, b)
		}
		return strings.Contains(x, s), nil
	case map[string]any:
		s, ok := a.(string)
		if !ok {
			return false, nil
		}
		_, found := x[s]
		return found, nil
	}
	if l, ok := asSlice(b); ok {
		for _, e := range l {
			if Equal(a, e) {
				return true, nil
			}
		}
		return false, nil
	}
	return nil, operandError("in", a, b)
}

// Is implements the identity test of scalar values.
func Is(a, b any) (any, error) {
	if a == nil || b == nil {
		return a == nil && b == nil, nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false, nil
	}
	return a == b, nil
}

var likeCache sync.Map

// Like matches a string against a SQL pattern where "%" matches any run
// of characters and "_" matches exactly one.
func Like(a, b any) (any, error) {
	s, ok1 := a.(string)
	p, ok2 := b.(string)
	if !ok1 || !ok2 {
		return nil, operandError("LIKE", a, b)
	}
	var re *regexp.Regexp
	if cached, ok := likeCache.Load(p); ok {
		re = cached.(*regexp.Regexp)
	} else {
		var sb strings.Builder
		sb.WriteString("(?s)^")
		for _, r := range p {
			switch r {
			case '%':
				sb.WriteString(".*")
			case '_':
				sb.WriteString(".")
			default:
				sb.WriteString(regexp.QuoteMeta(string(r)))
			}
		}
		sb.WriteString("$")
		re = regexp.MustCompile(sb.String())
		likeCache.Store(p, re)
	}
	return re.MatchString(s), nil
}
