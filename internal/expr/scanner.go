package expr

import (
	"strconv"
	"strings"
	"unicode"
)

// scanner walks the expression text one byte at a time and keeps the
// column of the current character for error messages.
type scanner struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      byte // current character
	column  int
}

func newScanner(input string) *scanner {
	s := &scanner{input: input}
	s.readChar()
	return s
}

// readChar reads the next character and advances position.
func (s *scanner) readChar() {
	if s.readPos >= len(s.input) {
		s.ch = 0 // ASCII NUL signifies EOF
	} else {
		s.ch = s.input[s.readPos]
	}
	s.pos = s.readPos
	s.readPos++
	s.column++
}

// peekChar looks at the next character without advancing.
func (s *scanner) peekChar() byte {
	if s.readPos >= len(s.input) {
		return 0
	}
	return s.input[s.readPos]
}

func (s *scanner) eof() bool {
	return s.pos >= len(s.input)
}

// advance skips n characters.
func (s *scanner) advance(n int) {
	for i := 0; i < n; i++ {
		s.readChar()
	}
}

// skipWhitespace skips spaces, tabs, and newlines.
func (s *scanner) skipWhitespace() {
	for s.ch == ' ' || s.ch == '\t' || s.ch == '\n' || s.ch == '\r' {
		s.readChar()
	}
}

// match reports whether key starts at the current position. Alphabetic
// keys must end on a word boundary, so "in" does not match "index".
func (s *scanner) match(key string) bool {
	if key == "" || !strings.HasPrefix(s.input[s.pos:], key) {
		return false
	}
	if isAlpha(key) {
		end := s.pos + len(key)
		if end < len(s.input) && isIdentChar(s.input[end]) {
			return false
		}
	}
	return true
}

// matchSymbol returns the longest symbol of the given kind starting at
// the current position.
func (s *scanner) matchSymbol(v *Vocabulary, kind Kind) (Symbol, bool) {
	var best Symbol
	found := false
	for _, sym := range v.Symbols(kind) {
		if s.match(sym.Key) && (!found || len(sym.Key) > len(best.Key)) {
			best, found = sym, true
		}
	}
	return best, found
}

// readIdentifier reads a variable or function name.
func (s *scanner) readIdentifier() string {
	start := s.pos
	for isIdentChar(s.ch) {
		s.readChar()
	}
	return s.input[start:s.pos]
}

// readNumber reads a numeric literal. Literals without a decimal point
// or exponent are integers.
func (s *scanner) readNumber() (any, error) {
	start := s.pos
	isFloat := false
	for isDigit(s.ch) {
		s.readChar()
	}
	if s.ch == '.' {
		isFloat = true
		s.readChar()
		for isDigit(s.ch) {
			s.readChar()
		}
	}
	if s.ch == 'e' || s.ch == 'E' {
		next := s.peekChar()
		if isDigit(next) || ((next == '+' || next == '-') && s.readPos+1 < len(s.input) && isDigit(s.input[s.readPos+1])) {
			isFloat = true
			s.advance(2)
			for isDigit(s.ch) {
				s.readChar()
			}
		}
	}
	literal := s.input[start:s.pos]
	if isFloat {
		return strconv.ParseFloat(literal, 64)
	}
	return strconv.ParseInt(literal, 10, 64)
}

// readString reads a quoted string literal. Both quote characters are
// accepted and backslash escapes follow Go's rules.
func (s *scanner) readString() (string, bool) {
	quote := s.ch
	var sb strings.Builder
	s.readChar() // consume opening quote
	for {
		switch s.ch {
		case 0:
			if s.eof() {
				return "", false
			}
			sb.WriteByte(s.ch)
		case '\\':
			s.readChar()
			if s.eof() {
				return "", false
			}
			// Go has no \' escape inside double quotes
			if s.ch != '\'' {
				sb.WriteByte('\\')
			}
			sb.WriteByte(s.ch)
		case '"':
			if quote == '"' {
				s.readChar()
				return unquote(sb.String())
			}
			sb.WriteString(`\"`)
		case quote:
			s.readChar()
			return unquote(sb.String())
		default:
			sb.WriteByte(s.ch)
		}
		s.readChar()
	}
}

func unquote(body string) (string, bool) {
	out, err := strconv.Unquote(`"` + body + `"`)
	if err != nil {
		return "", false
	}
	return out, true
}

// isLetter checks if the character can start an identifier.
func isLetter(ch byte) bool {
	return unicode.IsLetter(rune(ch)) || ch == '_'
}

// isDigit checks if the character is a digit.
func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

// isIdentChar checks if the character can continue an identifier. Dots
// allow dotted names such as "table.column".
func isIdentChar(ch byte) bool {
	return isLetter(ch) || isDigit(ch) || ch == '.'
}

// IsIdentifier reports whether s is usable as a variable name.
func IsIdentifier(s string) bool {
	if s == "" || !isLetter(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentChar(s[i]) {
			return false
		}
	}
	return true
}
