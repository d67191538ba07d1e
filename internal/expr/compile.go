package expr

import "fmt"

// node is one compiled sub expression reading its free variables from
// the positional argument slice.
type node func(args []any) (any, error)

// Func returns the expression as a function of its free variables, which
// are taken as positional arguments in the order of Variables.
//
// EDUCATIONAL NOTE:
// -----------------
// With compile set, the expression is translated to text where every
// non-builtin symbol carries a surrogate name, parsed again against a
// namespace vocabulary binding those names, and lowered into a tree of
// closures. Evaluating the tree does no token dispatch or name lookup,
// which pays off when the same expression runs once per table row.
// Without compile, the returned function simply calls Eval.
func (e *Expression) Func(compile bool) (Func, error) {
	if !compile {
		return e.Eval, nil
	}
	vars := e.Variables()
	ns := e.vocab.namespace()
	translated, err := Parse(e.Format(true), WithVocabulary(ns))
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", e.String(), err)
	}
	root, err := lower(translated.tokens, ns, vars)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", e.String(), err)
	}
	return func(args ...any) (any, error) {
		if len(args) != len(vars) {
			return nil, fmt.Errorf("%w: expression takes %d arguments, got %d", ErrArguments, len(vars), len(args))
		}
		v, err := root(args)
		if err != nil {
			return nil, err
		}
		return result(v), nil
	}, nil
}

// lower turns postfix tokens into a closure tree.
func lower(tokens []Token, ns *Vocabulary, vars []string) (node, error) {
	position := make(map[string]int, len(vars))
	for i, name := range vars {
		position[name] = i
	}
	var stack []node
	pop := func() node {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		return n
	}
	for _, tok := range tokens {
		switch tok.Kind {
		case Constant:
			v := tok.Value
			stack = append(stack, func([]any) (any, error) { return v, nil })
		case Variable:
			i, ok := position[tok.Key]
			if !ok {
				return nil, fmt.Errorf("%w: %q", ErrUndefined, tok.Key)
			}
			stack = append(stack, func(args []any) (any, error) { return args[i], nil })
		case Unary:
			if len(stack) < 1 {
				return nil, ErrStack
			}
			a, f := pop(), tok.Value.(Func)
			stack = append(stack, func(args []any) (any, error) {
				x, err := a(args)
				if err != nil {
					return nil, err
				}
				return f(x)
			})
		case Binary:
			if len(stack) < 2 {
				return nil, ErrStack
			}
			b, a, f := pop(), pop(), tok.Value.(Func)
			stack = append(stack, func(args []any) (any, error) {
				x, err := a(args)
				if err != nil {
					return nil, err
				}
				y, err := b(args)
				if err != nil {
					return nil, err
				}
				return f(x, y)
			})
		case Function:
			if !tok.isCall() {
				if i, ok := position[tok.Key]; ok {
					stack = append(stack, func(args []any) (any, error) { return args[i], nil })
					continue
				}
				sym, ok := ns.Lookup(Function, tok.Key)
				if !ok {
					return nil, fmt.Errorf("%w: %q", ErrUndefined, tok.Key)
				}
				f := sym.Func
				stack = append(stack, func([]any) (any, error) { return f, nil })
				continue
			}
			if len(stack) < 2 {
				return nil, ErrStack
			}
			params, callee := pop(), pop()
			stack = append(stack, func(args []any) (any, error) {
				f, err := callee(args)
				if err != nil {
					return nil, err
				}
				p, err := params(args)
				if err != nil {
					return nil, err
				}
				return call(f, p)
			})
		}
	}
	if len(stack) != 1 {
		return nil, fmt.Errorf("%w: %d values left", ErrStack, len(stack))
	}
	return stack[0], nil
}
