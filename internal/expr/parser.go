package expr

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// expectation flags tell the parser which token classes may follow.
type expectation uint16

const (
	expPrimary expectation = 1 << iota
	expOperator
	expFunction
	expLParen
	expRParen
	expComma
	expSign
	expCall
	expNullary
)

// nesting is the priority offset of one parenthesis level.
const nesting = 100

const (
	commaPriority = -1
	callPriority  = -2
)

// Option configures Parse.
type Option func(*options)

type options struct {
	vocab     *Vocabulary
	variables []any
}

// WithVocabulary selects the vocabulary used for tokenizing. The default
// is the calculator vocabulary.
func WithVocabulary(v *Vocabulary) Option {
	return func(o *options) { o.vocab = v }
}

// WithVariables declares the field ids the expression may refer to. Ids
// that are not valid identifiers are replaced by surrogate names.
func WithVariables(ids ...any) Option {
	return func(o *options) { o.variables = ids }
}

// parser holds the state of one Parse call.
type parser struct {
	vocab    *Vocabulary
	s        *scanner
	expect   expectation
	depth    int // priority offset, nesting * open parentheses
	ops      []Token
	out      []Token
	operands int
}

// Parse tokenizes and parses an infix expression into postfix form.
//
// EDUCATIONAL NOTE:
// -----------------
// The parser is a state machine. After every token it sets `expect`,
// a bitmask of what may legally come next. After an operand we expect
// an operator, a closing parenthesis or a comma. After an operator we
// expect an operand, a sign or an opening parenthesis. Anything else
// is a syntax error reported with its column.
func Parse(s string, opts ...Option) (*Expression, error) {
	o := options{vocab: Calculator()}
	for _, opt := range opts {
		opt(&o)
	}
	var mapping map[string]any
	if len(o.variables) > 0 {
		s, mapping = substitute(s, o.variables, o.vocab)
	}
	p := &parser{
		vocab:  o.vocab,
		s:      newScanner(s),
		expect: expPrimary | expLParen | expFunction | expSign,
	}
	if err := p.parse(); err != nil {
		return nil, err
	}
	return &Expression{tokens: p.out, vocab: o.vocab, mapping: mapping}, nil
}

func (p *parser) parse() error {
	for {
		p.s.skipWhitespace()
		if p.s.eof() {
			break
		}
		if err := p.next(); err != nil {
			return err
		}
	}
	column := p.s.column
	if len(p.out) == 0 && len(p.ops) == 0 {
		return parseErrorf(column, "empty expression")
	}
	if p.depth > 0 {
		return parseErrorf(column, "unmatched '('")
	}
	if p.expect&expOperator == 0 {
		return parseErrorf(column, "unexpected end of expression")
	}
	for len(p.ops) > 0 {
		p.popOperator()
	}
	if p.operands+1 != len(p.out) {
		return parseErrorf(column, "parity mismatch: %d operands for %d tokens", p.operands, len(p.out))
	}
	return nil
}

// next consumes exactly one token.
func (p *parser) next() error {
	s := p.s
	column := s.column

	if p.expect&expSign != 0 {
		if sym, ok := s.matchSymbol(p.vocab, Unary); ok {
			s.advance(len(sym.Key))
			p.ops = append(p.ops, Token{Kind: Unary, Key: sym.Key, Priority: sym.Priority + p.depth, Value: sym.Func, Column: column})
			p.operands++
			p.expect = expPrimary | expLParen | expFunction | expSign
			return nil
		}
	}
	if p.expect&expOperator != 0 {
		if sym, ok := s.matchSymbol(p.vocab, Binary); ok {
			s.advance(len(sym.Key))
			p.pushOperator(Token{Kind: Binary, Key: sym.Key, Priority: sym.Priority + p.depth, Value: sym.Func, Column: column})
			p.operands += 2
			p.expect = expPrimary | expLParen | expFunction | expSign
			return nil
		}
	}

	switch ch := s.ch; {
	case ch == '(':
		if p.expect&expLParen == 0 {
			return parseErrorf(column, "unexpected '('")
		}
		s.readChar()
		p.depth += nesting
		if p.expect&expCall != 0 {
			p.out[len(p.out)-1].Kind = Function
			p.pushOperator(Token{Kind: Function, Priority: callPriority + p.depth, Column: column})
			p.operands += 2
			p.expect = expPrimary | expLParen | expFunction | expSign | expNullary
			return nil
		}
		p.expect = expPrimary | expLParen | expFunction | expSign
	case ch == ')':
		if p.expect&(expRParen|expNullary) == 0 {
			return parseErrorf(column, "unexpected ')'")
		}
		s.readChar()
		p.depth -= nesting
		if p.depth < 0 {
			return parseErrorf(column, "unmatched ')'")
		}
		if p.expect&expNullary != 0 {
			p.out = append(p.out, Token{Kind: Constant, Value: argList{}, Column: column})
		}
		p.expect = expOperator | expRParen | expComma
	case ch == ',':
		if p.expect&expComma == 0 {
			return parseErrorf(column, "unexpected ','")
		}
		s.readChar()
		p.pushOperator(Token{Kind: Binary, Key: ",", Priority: commaPriority + p.depth, Value: Func(pack), Column: column})
		p.operands += 2
		p.expect = expPrimary | expLParen | expFunction | expSign
	case isDigit(ch) || (ch == '.' && isDigit(s.peekChar())):
		if p.expect&expPrimary == 0 {
			return parseErrorf(column, "unexpected number")
		}
		value, err := s.readNumber()
		if err != nil {
			return parseErrorf(column, "invalid number: %v", err)
		}
		p.operand(Token{Kind: Constant, Value: value, Column: column})
	case ch == '\'' || ch == '"':
		if p.expect&expPrimary == 0 {
			return parseErrorf(column, "unexpected string")
		}
		value, ok := s.readString()
		if !ok {
			return parseErrorf(column, "unterminated string")
		}
		p.operand(Token{Kind: Constant, Value: value, Column: column})
	case isLetter(ch):
		if p.expect&expPrimary == 0 {
			return parseErrorf(column, "unexpected identifier")
		}
		if sym, ok := s.matchSymbol(p.vocab, Constant); ok {
			s.advance(len(sym.Key))
			p.operand(Token{Kind: Constant, Key: sym.Key, Value: sym.Value, Column: column})
			return nil
		}
		name := s.readIdentifier()
		p.operand(Token{Kind: Variable, Key: name, Column: column})
		p.expect |= expLParen | expCall
	default:
		if _, ok := s.matchSymbol(p.vocab, Binary); ok {
			return parseErrorf(column, "unexpected operator")
		}
		return parseErrorf(column, "unknown character %q", ch)
	}
	return nil
}

func (p *parser) operand(tok Token) {
	p.out = append(p.out, tok)
	p.expect = expOperator | expRParen | expComma
}

// pushOperator moves every stacked operator of greater or equal priority
// to the output before stacking the new one, which makes binary
// operators of equal priority left associative.
func (p *parser) pushOperator(tok Token) {
	for len(p.ops) > 0 && p.ops[len(p.ops)-1].Priority >= tok.Priority {
		p.popOperator()
	}
	p.ops = append(p.ops, tok)
}

func (p *parser) popOperator() {
	top := p.ops[len(p.ops)-1]
	p.ops = p.ops[:len(p.ops)-1]
	p.out = append(p.out, top)
}

var surrogatePattern = regexp.MustCompile(`^X[0-9]+$`)

// substitute replaces every field id that is not a valid identifier by
// a surrogate name X0, X1, ... Surrogates are numbered in the given
// order of ids and names already used in the text are skipped.
func substitute(s string, ids []any, v *Vocabulary) (string, map[string]any) {
	used := make(map[string]bool)
	for _, word := range identifiers(s) {
		if surrogatePattern.MatchString(word) {
			used[word] = true
		}
	}
	mapping := make(map[string]any)
	var subs []surrogate
	n := 0
	for _, id := range ids {
		text, isString := id.(string)
		if isString && IsIdentifier(text) && !v.Has(text) {
			continue
		}
		if !isString {
			text = fmt.Sprint(id)
		}
		if text == "" {
			continue
		}
		var name string
		for {
			name = fmt.Sprintf("X%d", n)
			n++
			if !used[name] {
				break
			}
		}
		used[name] = true
		mapping[name] = id
		subs = append(subs, surrogate{text: text, name: name})
	}
	// longer texts win, so "10" is not read as "1" followed by "0"
	sort.SliceStable(subs, func(i, j int) bool {
		return len(subs[i].text) > len(subs[j].text)
	})
	return replaceOutsideQuotes(s, subs), mapping
}

type surrogate struct {
	text string
	name string
}

// identifiers lists the identifier-like words of s outside of string
// literals.
func identifiers(s string) []string {
	var words []string
	var quote byte
	for i := 0; i < len(s); i++ {
		ch := s[i]
		switch {
		case quote != 0:
			if ch == '\\' {
				i++
			} else if ch == quote {
				quote = 0
			}
		case ch == '\'' || ch == '"':
			quote = ch
		case isLetter(ch):
			j := i
			for j < len(s) && isIdentChar(s[j]) {
				j++
			}
			words = append(words, s[i:j])
			i = j - 1
		case isDigit(ch):
			for i+1 < len(s) && isIdentChar(s[i+1]) {
				i++
			}
		}
	}
	return words
}

// replaceOutsideQuotes rewrites the ids of subs to their surrogate
// names in a single pass. An id only matches at token boundaries: an id
// that starts or ends with an identifier character must not continue a
// longer identifier or number.
func replaceOutsideQuotes(s string, subs []surrogate) string {
	var sb strings.Builder
	var quote byte
	for i := 0; i < len(s); {
		ch := s[i]
		if quote != 0 {
			sb.WriteByte(ch)
			if ch == '\\' && i+1 < len(s) {
				sb.WriteByte(s[i+1])
				i += 2
				continue
			}
			if ch == quote {
				quote = 0
			}
			i++
			continue
		}
		if sub, ok := matchSurrogate(s, i, subs); ok {
			sb.WriteString(sub.name)
			i += len(sub.text)
			continue
		}
		if ch == '\'' || ch == '"' {
			quote = ch
		}
		sb.WriteByte(ch)
		i++
		// skip the rest of a word, so no id starts inside it
		if isIdentChar(ch) {
			for i < len(s) && isIdentChar(s[i]) {
				sb.WriteByte(s[i])
				i++
			}
		}
	}
	return sb.String()
}

func matchSurrogate(s string, i int, subs []surrogate) (surrogate, bool) {
	for _, sub := range subs {
		if !strings.HasPrefix(s[i:], sub.text) {
			continue
		}
		end := i + len(sub.text)
		if isIdentChar(sub.text[len(sub.text)-1]) && end < len(s) && isIdentChar(s[end]) {
			continue
		}
		return sub, true
	}
	return surrogate{}, false
}
