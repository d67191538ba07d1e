// Package expr implements a vocabulary driven parser and evaluator for
// infix expressions.
//
// EDUCATIONAL NOTES:
// ------------------
// The parser does not know any operator by itself. Every operator,
// function and constant is a Symbol taken from a Vocabulary, so the same
// machinery handles a calculator grammar, a general operator grammar and a
// SQL-flavoured grammar.
//
// Parsing follows the shunting-yard idea: operands are written straight
// to the output while operators wait on a stack until an operator of
// lower or equal priority arrives. The output is a postfix token
// sequence, for example:
//
//	1 + 2 * 3   ->   1 2 3 * +
//
// Evaluating postfix is a simple stack machine: push operands, and let
// each operator pop its arguments and push its result.

package expr

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Kind classifies symbols and tokens.
type Kind int

const (
	Unary Kind = iota
	Binary
	Function
	Constant
	Variable
)

func (k Kind) String() string {
	switch k {
	case Unary:
		return "unary"
	case Binary:
		return "binary"
	case Function:
		return "function"
	case Constant:
		return "constant"
	case Variable:
		return "variable"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Func is the calling convention of operators and functions.
type Func func(args ...any) (any, error)

// Symbol is a single vocabulary entry.
//
// Builtin marks symbols that are safe to keep verbatim when an expression
// is translated for compilation. All other symbols are replaced by
// surrogate names.
type Symbol struct {
	Kind     Kind
	Key      string
	Func     Func
	Value    any
	Priority int
	Builtin  bool
}

type symbolKey struct {
	kind Kind
	key  string
}

// Vocabulary is a named set of symbols keyed by kind and key, so that a
// key like "-" can be both a unary and a binary operator.
type Vocabulary struct {
	name    string
	symbols map[symbolKey]Symbol

	mu         sync.Mutex
	surrogates map[symbolKey]string
}

// NewVocabulary creates a vocabulary holding the given symbols.
func NewVocabulary(name string, symbols ...Symbol) *Vocabulary {
	v := &Vocabulary{name: name, symbols: make(map[symbolKey]Symbol)}
	v.Add(symbols...)
	return v
}

// Name returns the vocabulary's group name.
func (v *Vocabulary) Name() string {
	return v.name
}

// Add inserts or replaces symbols.
func (v *Vocabulary) Add(symbols ...Symbol) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, s := range symbols {
		v.symbols[symbolKey{s.Kind, s.Key}] = s
	}
	v.surrogates = nil
}

// Lookup returns the symbol of the given kind and key.
func (v *Vocabulary) Lookup(kind Kind, key string) (Symbol, bool) {
	s, ok := v.symbols[symbolKey{kind, key}]
	return s, ok
}

// Has reports whether key names any symbol of the vocabulary.
func (v *Vocabulary) Has(key string) bool {
	for k := range v.symbols {
		if k.key == key {
			return true
		}
	}
	return false
}

// Symbols returns all symbols of a kind in reverse-lexical key order.
// Longer keys sort after their prefixes, so the reversed order makes a
// scan try ">=" before ">".
func (v *Vocabulary) Symbols(kind Kind) []Symbol {
	var out []Symbol
	for k, s := range v.symbols {
		if k.kind == kind {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key > out[j].Key })
	return out
}

// Extend returns a copy of the vocabulary under a new name with the
// given symbols added.
func (v *Vocabulary) Extend(name string, symbols ...Symbol) *Vocabulary {
	out := NewVocabulary(name)
	for k, s := range v.symbols {
		out.symbols[k] = s
	}
	out.Add(symbols...)
	return out
}

// surrogate returns the replacement name of a non-builtin symbol. Names
// are assigned in a stable order: operators and functions get "_opN",
// constants "_cN".
func (v *Vocabulary) surrogate(kind Kind, key string) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.surrogates == nil {
		keys := make([]symbolKey, 0, len(v.symbols))
		for k, s := range v.symbols {
			if !s.Builtin {
				keys = append(keys, k)
			}
		}
		sort.Slice(keys, func(i, j int) bool {
			if keys[i].kind != keys[j].kind {
				return keys[i].kind < keys[j].kind
			}
			return keys[i].key < keys[j].key
		})
		v.surrogates = make(map[symbolKey]string, len(keys))
		var ops, consts int
		for _, k := range keys {
			if k.kind == Constant {
				v.surrogates[k] = fmt.Sprintf("_c%d", consts)
				consts++
				continue
			}
			v.surrogates[k] = fmt.Sprintf("_op%d", ops)
			ops++
		}
	}
	name, ok := v.surrogates[symbolKey{kind, key}]
	return name, ok
}

// namespace builds the vocabulary used to re-parse a translated
// expression: builtin symbols stay as they are, non-builtin operators and
// functions become functions named by their surrogates.
func (v *Vocabulary) namespace() *Vocabulary {
	ns := NewVocabulary(v.name + ":namespace")
	for k, s := range v.symbols {
		if s.Builtin {
			ns.symbols[k] = s
			continue
		}
		name, _ := v.surrogate(k.kind, k.key)
		if k.kind == Constant {
			ns.Add(Symbol{Kind: Constant, Key: name, Value: s.Value, Builtin: true})
			continue
		}
		ns.Add(Symbol{Kind: Function, Key: name, Func: s.Func, Priority: s.Priority, Builtin: true})
	}
	return ns
}

func isAlpha(key string) bool {
	return key != "" && isLetter(key[0])
}

func (v *Vocabulary) String() string {
	var sb strings.Builder
	sb.WriteString(v.name)
	sb.WriteString(":")
	for _, kind := range []Kind{Unary, Binary, Function, Constant} {
		for _, s := range v.Symbols(kind) {
			sb.WriteString(" ")
			sb.WriteString(s.Key)
		}
	}
	return sb.String()
}
