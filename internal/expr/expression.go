package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// Token is one element of a parsed expression in postfix order.
// Function tokens with a key name a callee, Function tokens without a
// key are calls. Operator tokens carry their Func as Value.
type Token struct {
	Kind     Kind
	Key      string
	Priority int
	Value    any
	Column   int
}

func (t Token) isCall() bool {
	return t.Kind == Function && t.Key == ""
}

// argList is the packed argument list built by the comma operator. It
// is a distinct type so that a list valued argument is never mistaken
// for several arguments.
type argList []any

func pack(args ...any) (any, error) {
	if len(args) != 2 {
		return nil, arityError(",", "2 arguments", len(args))
	}
	if l, ok := args[0].(argList); ok {
		out := make(argList, len(l), len(l)+1)
		copy(out, l)
		return append(out, args[1]), nil
	}
	return argList{args[0], args[1]}, nil
}

// Expression is a parsed expression: postfix tokens, the vocabulary that
// produced them and the surrogate mapping of renamed field ids.
type Expression struct {
	tokens  []Token
	vocab   *Vocabulary
	mapping map[string]any
}

// Tokens returns a copy of the postfix token sequence.
func (e *Expression) Tokens() []Token {
	return append([]Token(nil), e.tokens...)
}

// Vocabulary returns the vocabulary the expression was parsed with.
func (e *Expression) Vocabulary() *Vocabulary {
	return e.vocab
}

// Mapping returns the surrogate names and the field ids they replace.
func (e *Expression) Mapping() map[string]any {
	out := make(map[string]any, len(e.mapping))
	for k, v := range e.mapping {
		out[k] = v
	}
	return out
}

func (e *Expression) isFunction(name string) bool {
	_, ok := e.vocab.Lookup(Function, name)
	return ok
}

// Variables returns the free variables in order of first occurrence.
// Callees that are not vocabulary functions count as variables, since
// their value has to be supplied.
func (e *Expression) Variables() []string {
	var names []string
	seen := make(map[string]bool)
	for _, tok := range e.tokens {
		if seen[tok.Key] {
			continue
		}
		if tok.Kind == Variable || (tok.Kind == Function && tok.Key != "" && !e.isFunction(tok.Key)) {
			seen[tok.Key] = true
			names = append(names, tok.Key)
		}
	}
	return names
}

// Origin returns the field ids of Variables, resolving surrogate names.
func (e *Expression) Origin() []any {
	vars := e.Variables()
	out := make([]any, len(vars))
	for i, name := range vars {
		if id, ok := e.mapping[name]; ok {
			out[i] = id
		} else {
			out[i] = name
		}
	}
	return out
}

// Symbols returns the vocabulary keys used by the expression.
func (e *Expression) Symbols() []string {
	var keys []string
	seen := make(map[string]bool)
	add := func(key string) {
		if key != "" && !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	for _, tok := range e.tokens {
		switch tok.Kind {
		case Unary, Binary, Constant:
			if tok.Key != "," {
				add(tok.Key)
			}
		case Function:
			if e.isFunction(tok.Key) {
				add(tok.Key)
			}
		}
	}
	return keys
}

// Eval evaluates the expression, binding positional arguments to
// Variables in order.
func (e *Expression) Eval(args ...any) (any, error) {
	vars := e.Variables()
	if len(args) != len(vars) {
		return nil, fmt.Errorf("%w: expression takes %d arguments, got %d", ErrArguments, len(vars), len(args))
	}
	values := make(map[string]any, len(vars))
	for i, name := range vars {
		values[name] = args[i]
	}
	return e.EvalMap(values)
}

// EvalMap evaluates the expression with variables bound by name.
func (e *Expression) EvalMap(values map[string]any) (any, error) {
	var stack []any
	pop := func() any {
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v
	}
	for _, tok := range e.tokens {
		switch tok.Kind {
		case Constant:
			stack = append(stack, tok.Value)
		case Variable:
			v, ok := values[tok.Key]
			if !ok {
				return nil, fmt.Errorf("%w: %q", ErrUndefined, tok.Key)
			}
			stack = append(stack, v)
		case Unary:
			if len(stack) < 1 {
				return nil, ErrStack
			}
			v, err := tok.Value.(Func)(pop())
			if err != nil {
				return nil, err
			}
			stack = append(stack, v)
		case Binary:
			if len(stack) < 2 {
				return nil, ErrStack
			}
			b, a := pop(), pop()
			v, err := tok.Value.(Func)(a, b)
			if err != nil {
				return nil, err
			}
			stack = append(stack, v)
		case Function:
			if !tok.isCall() {
				if v, ok := values[tok.Key]; ok {
					stack = append(stack, v)
				} else if sym, ok := e.vocab.Lookup(Function, tok.Key); ok {
					stack = append(stack, sym.Func)
				} else {
					return nil, fmt.Errorf("%w: %q", ErrUndefined, tok.Key)
				}
				continue
			}
			if len(stack) < 2 {
				return nil, ErrStack
			}
			args, callee := pop(), pop()
			v, err := call(callee, args)
			if err != nil {
				return nil, err
			}
			stack = append(stack, v)
		}
	}
	if len(stack) != 1 {
		return nil, fmt.Errorf("%w: %d values left", ErrStack, len(stack))
	}
	return result(stack[0]), nil
}

func call(callee, args any) (any, error) {
	var f Func
	switch x := callee.(type) {
	case Func:
		f = x
	case func(...any) (any, error):
		f = x
	default:
		return nil, fmt.Errorf("%w: %T", ErrNotCallable, callee)
	}
	if l, ok := args.(argList); ok {
		return f(l...)
	}
	return f(args)
}

// result turns a top level argument list into a plain tuple.
func result(v any) any {
	if l, ok := v.(argList); ok {
		return []any(l)
	}
	return v
}

// String renders the expression in fully parenthesized infix form.
func (e *Expression) String() string {
	return e.Format(false)
}

// Format renders the expression. With translate, non-builtin symbols are
// replaced by surrogate names so that the text can be parsed again
// against the vocabulary's namespace.
func (e *Expression) Format(translate bool) string {
	type item struct {
		text  string
		tuple bool
	}
	var stack []item
	pop := func() item {
		if len(stack) == 0 {
			return item{}
		}
		v := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return v
	}
	// operand wraps comma separated lists used as a single operand
	operand := func(it item) string {
		if it.tuple {
			return "(" + it.text + ")"
		}
		return it.text
	}
	for _, tok := range e.tokens {
		switch tok.Kind {
		case Constant:
			_, tuple := tok.Value.(argList)
			stack = append(stack, item{e.formatConstant(tok, translate), tuple})
		case Variable:
			stack = append(stack, item{text: tok.Key})
		case Unary:
			a := operand(pop())
			switch sur, ok := e.surrogate(Unary, tok.Key, translate); {
			case ok:
				stack = append(stack, item{text: sur + "(" + a + ")"})
			case isAlpha(tok.Key) && strings.HasPrefix(a, "(") && enclosed(a):
				stack = append(stack, item{text: tok.Key + a})
			case isAlpha(tok.Key):
				stack = append(stack, item{text: tok.Key + "(" + a + ")"})
			default:
				stack = append(stack, item{text: "(" + tok.Key + a + ")"})
			}
		case Binary:
			b, a := pop(), pop()
			if tok.Key == "," {
				stack = append(stack, item{a.text + ", " + operand(b), true})
			} else if sur, ok := e.surrogate(Binary, tok.Key, translate); ok {
				stack = append(stack, item{text: sur + "(" + operand(a) + ", " + operand(b) + ")"})
			} else {
				stack = append(stack, item{text: "(" + operand(a) + " " + tok.Key + " " + operand(b) + ")"})
			}
		case Function:
			if !tok.isCall() {
				name := tok.Key
				if sur, ok := e.surrogate(Function, name, translate); ok {
					name = sur
				}
				stack = append(stack, item{text: name})
				continue
			}
			args, callee := pop(), pop()
			stack = append(stack, item{text: callee.text + "(" + args.text + ")"})
		}
	}
	parts := make([]string, len(stack))
	for i, it := range stack {
		parts[i] = it.text
	}
	s := strings.Join(parts, " ")
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") && enclosed(s) {
		s = s[1 : len(s)-1]
	}
	return s
}

func (e *Expression) surrogate(kind Kind, key string, translate bool) (string, bool) {
	if !translate {
		return "", false
	}
	return e.vocab.surrogate(kind, key)
}

func (e *Expression) formatConstant(tok Token, translate bool) string {
	if tok.Key != "" {
		if sur, ok := e.surrogate(Constant, tok.Key, translate); ok {
			return sur
		}
		return tok.Key
	}
	return literal(tok.Value)
}

// literal renders a value so that the parser reads it back.
func literal(v any) string {
	switch x := v.(type) {
	case string:
		return strconv.Quote(x)
	case argList:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = literal(e)
		}
		return strings.Join(parts, ", ")
	case float64:
		return formatFloat(x)
	}
	return Str(v)
}

// enclosed reports whether the first parenthesis of s closes at its
// last character.
func enclosed(s string) bool {
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if quote != 0 {
			if ch == '\\' {
				i++
			} else if ch == quote {
				quote = 0
			}
			continue
		}
		switch ch {
		case '"', '\'':
			quote = ch
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 && i != len(s)-1 {
				return false
			}
		}
	}
	return depth == 0
}

// Simplify folds every operation whose operands are constants or values
// supplied by name. Calls are never folded, since functions like random
// are not deterministic.
func (e *Expression) Simplify(values map[string]any) (*Expression, error) {
	var out []Token
	var stack []Token
	flush := func() {
		out = append(out, stack...)
		stack = stack[:0]
	}
	for _, tok := range e.tokens {
		switch {
		case tok.Kind == Constant:
			stack = append(stack, tok)
		case tok.Kind == Variable && values != nil && hasKey(values, tok.Key):
			stack = append(stack, Token{Kind: Constant, Value: values[tok.Key], Column: tok.Column})
		case tok.Kind == Unary && len(stack) > 0:
			a := stack[len(stack)-1]
			v, err := tok.Value.(Func)(a.Value)
			if err != nil {
				return nil, err
			}
			stack[len(stack)-1] = Token{Kind: Constant, Value: v, Column: a.Column}
		case tok.Kind == Binary && len(stack) > 1:
			a, b := stack[len(stack)-2], stack[len(stack)-1]
			v, err := tok.Value.(Func)(a.Value, b.Value)
			if err != nil {
				return nil, err
			}
			stack = stack[:len(stack)-2]
			stack = append(stack, Token{Kind: Constant, Value: v, Column: a.Column})
		default:
			flush()
			out = append(out, tok)
		}
	}
	flush()
	return &Expression{tokens: out, vocab: e.vocab, mapping: e.mapping}, nil
}

func hasKey(m map[string]any, key string) bool {
	_, ok := m[key]
	return ok
}

// Subst replaces every occurrence of a variable by a sub expression.
func (e *Expression) Subst(name string, sub *Expression) *Expression {
	var out []Token
	for _, tok := range e.tokens {
		if tok.Kind == Variable && tok.Key == name {
			out = append(out, sub.tokens...)
			continue
		}
		out = append(out, tok)
	}
	mapping := e.Mapping()
	for k, v := range sub.mapping {
		mapping[k] = v
	}
	if len(mapping) == 0 {
		mapping = nil
	}
	return &Expression{tokens: out, vocab: e.vocab, mapping: mapping}
}

// SubstString parses s with the expression's vocabulary and substitutes
// it for the named variable.
func (e *Expression) SubstString(name, s string) (*Expression, error) {
	sub, err := Parse(s, WithVocabulary(e.vocab))
	if err != nil {
		return nil, err
	}
	return e.Subst(name, sub), nil
}
