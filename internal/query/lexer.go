// Package query implements the statement language of the REPL.
//
// EDUCATIONAL NOTES:
// ------------------
// A statement is a sequence of clauses introduced by keywords:
//
//	SELECT name, age + 1 FROM users WHERE age > 18 ORDER BY name LIMIT 10
//
// The lexer turns the input into tokens. The parser only understands the
// clause structure; it never looks inside the expressions between the
// keywords. Instead it remembers the byte offsets of the first and last
// token of each expression and hands the original text to the expression
// parser later. That keeps a single expression grammar for the whole
// project, and the statement keywords are the only reserved words.
//
// For example, the WHERE clause above is kept as the text "age > 18",
// which the table compiles with the SQL vocabulary.

package query

import (
	"fmt"
	"strings"
	"unicode"
)

// TokenType represents the type of a token.
type TokenType int

const (
	// Special tokens
	TokenEOF TokenType = iota
	TokenError

	// Literals
	TokenIdent    // column names, table names, functions
	TokenNumber   // 123, 45.67, 1e3
	TokenString   // 'hello', "hello"
	TokenOperator // any run of operator characters

	// Keywords
	TokenSelect
	TokenInsert
	TokenUpdate
	TokenDelete
	TokenCreate
	TokenDrop
	TokenInto
	TokenValues
	TokenFrom
	TokenWhere
	TokenSet
	TokenTable
	TokenNot
	TokenNull
	TokenDefault
	TokenGroup
	TokenHaving
	TokenOrder
	TokenBy
	TokenAsc
	TokenDesc
	TokenLimit
	TokenOffset

	// Punctuation
	TokenComma       // ,
	TokenSemicolon   // ;
	TokenLeftParen   // (
	TokenRightParen  // )
	TokenLeftSquare  // [
	TokenRightSquare // ]
)

// Token represents a lexical token. Pos and End are byte offsets into
// the input, so that the text of a token range can be recovered.
type Token struct {
	Type    TokenType
	Literal string
	Pos     int
	End     int
	Column  int
}

// String returns a human-readable representation of the token.
func (t Token) String() string {
	return fmt.Sprintf("Token{%s, %q, col:%d}", t.Type, t.Literal, t.Column)
}

var tokenNames = map[TokenType]string{
	TokenEOF:         "EOF",
	TokenError:       "ERROR",
	TokenIdent:       "IDENT",
	TokenNumber:      "NUMBER",
	TokenString:      "STRING",
	TokenOperator:    "OPERATOR",
	TokenSelect:      "SELECT",
	TokenInsert:      "INSERT",
	TokenUpdate:      "UPDATE",
	TokenDelete:      "DELETE",
	TokenCreate:      "CREATE",
	TokenDrop:        "DROP",
	TokenInto:        "INTO",
	TokenValues:      "VALUES",
	TokenFrom:        "FROM",
	TokenWhere:       "WHERE",
	TokenSet:         "SET",
	TokenTable:       "TABLE",
	TokenNot:         "NOT",
	TokenNull:        "NULL",
	TokenDefault:     "DEFAULT",
	TokenGroup:       "GROUP",
	TokenHaving:      "HAVING",
	TokenOrder:       "ORDER",
	TokenBy:          "BY",
	TokenAsc:         "ASC",
	TokenDesc:        "DESC",
	TokenLimit:       "LIMIT",
	TokenOffset:      "OFFSET",
	TokenComma:       "COMMA",
	TokenSemicolon:   "SEMICOLON",
	TokenLeftParen:   "LEFT_PAREN",
	TokenRightParen:  "RIGHT_PAREN",
	TokenLeftSquare:  "LEFT_SQUARE",
	TokenRightSquare: "RIGHT_SQUARE",
}

func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", int(t))
}

// keywords maps statement keywords to their token types. Keywords are
// case-insensitive, so we store them in uppercase. Operators such as AND
// or LIKE belong to the expression vocabulary and are plain identifiers
// here.
var keywords = map[string]TokenType{
	"SELECT":  TokenSelect,
	"INSERT":  TokenInsert,
	"UPDATE":  TokenUpdate,
	"DELETE":  TokenDelete,
	"CREATE":  TokenCreate,
	"DROP":    TokenDrop,
	"INTO":    TokenInto,
	"VALUES":  TokenValues,
	"FROM":    TokenFrom,
	"WHERE":   TokenWhere,
	"SET":     TokenSet,
	"TABLE":   TokenTable,
	"NOT":     TokenNot,
	"NULL":    TokenNull,
	"DEFAULT": TokenDefault,
	"GROUP":   TokenGroup,
	"HAVING":  TokenHaving,
	"ORDER":   TokenOrder,
	"BY":      TokenBy,
	"ASC":     TokenAsc,
	"DESC":    TokenDesc,
	"LIMIT":   TokenLimit,
	"OFFSET":  TokenOffset,
}

// operatorChars are the characters of operator tokens.
const operatorChars = "=<>!+-*/%&|^~@."

// Lexer tokenizes statement input.
type Lexer struct {
	input   string
	pos     int  // current position in input
	readPos int  // reading position (after current char)
	ch      byte // current character
	column  int
}

// NewLexer creates a new Lexer for the given input.
func NewLexer(input string) *Lexer {
	l := &Lexer{input: input}
	l.readChar() // Initialize first character
	return l
}

// readChar reads the next character and advances position.
func (l *Lexer) readChar() {
	if l.readPos >= len(l.input) {
		l.ch = 0 // ASCII NUL signifies EOF
	} else {
		l.ch = l.input[l.readPos]
	}
	l.pos = l.readPos
	l.readPos++
	l.column++
}

// peekChar looks at the next character without advancing.
func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

// NextToken returns the next token from the input.
//
// EDUCATIONAL NOTE:
// -----------------
// This is the main lexer function. It examines the current character
// and decides what type of token it starts. Unlike a full SQL lexer it
// does not need to tell "<=" from "<>": every run of operator characters
// is a single token, and its meaning is decided by the expression parser.
func (l *Lexer) NextToken() Token {
	l.skipWhitespace()

	switch {
	case l.pos >= len(l.input):
		return Token{Type: TokenEOF, Pos: len(l.input), End: len(l.input), Column: l.column}
	case l.ch == '\'' || l.ch == '"':
		return l.readString()
	case isLetter(l.ch):
		return l.readIdentifier()
	case isDigit(l.ch), l.ch == '.' && isDigit(l.peekChar()):
		return l.readNumber()
	case strings.IndexByte(operatorChars, l.ch) >= 0:
		return l.readOperator()
	}

	var typ TokenType
	switch l.ch {
	case ',':
		typ = TokenComma
	case ';':
		typ = TokenSemicolon
	case '(':
		typ = TokenLeftParen
	case ')':
		typ = TokenRightParen
	case '[':
		typ = TokenLeftSquare
	case ']':
		typ = TokenRightSquare
	default:
		tok := l.makeToken(TokenError, fmt.Sprintf("unexpected character %q", l.ch), l.pos)
		l.readChar()
		return tok
	}
	tok := l.makeToken(typ, string(l.ch), l.pos)
	l.readChar()
	tok.End = l.pos
	return tok
}

// makeToken creates a token starting at start.
func (l *Lexer) makeToken(tokenType TokenType, literal string, start int) Token {
	return Token{
		Type:    tokenType,
		Literal: literal,
		Pos:     start,
		End:     l.pos,
		Column:  start + 1,
	}
}

// skipWhitespace skips spaces, tabs, and newlines.
func (l *Lexer) skipWhitespace() {
	for l.ch == ' ' || l.ch == '\t' || l.ch == '\n' || l.ch == '\r' {
		l.readChar()
	}
}

// readIdentifier reads an identifier or keyword.
func (l *Lexer) readIdentifier() Token {
	start := l.pos
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	literal := l.input[start:l.pos]
	tokenType, isKeyword := keywords[strings.ToUpper(literal)]
	if !isKeyword {
		tokenType = TokenIdent
	}
	return l.makeToken(tokenType, literal, start)
}

// readNumber reads a numeric literal with an optional fraction and
// exponent. A sign is an operator token of its own.
func (l *Lexer) readNumber() Token {
	start := l.pos
	for isDigit(l.ch) {
		l.readChar()
	}
	if l.ch == '.' {
		l.readChar()
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' {
		next := l.peekChar()
		if isDigit(next) || next == '+' || next == '-' {
			l.readChar()
			l.readChar()
			for isDigit(l.ch) {
				l.readChar()
			}
		}
	}
	return l.makeToken(TokenNumber, l.input[start:l.pos], start)
}

// readOperator reads a run of operator characters.
func (l *Lexer) readOperator() Token {
	start := l.pos
	for l.ch != 0 && strings.IndexByte(operatorChars, l.ch) >= 0 {
		l.readChar()
	}
	return l.makeToken(TokenOperator, l.input[start:l.pos], start)
}

// readString reads a quoted string literal. The literal keeps its quotes
// and escapes, since the expression parser decodes it.
//
// EDUCATIONAL NOTE:
// -----------------
// Both quote characters are accepted and a backslash escapes the next
// character, the same rules the expression parser applies.
func (l *Lexer) readString() Token {
	start := l.pos
	quote := l.ch
	l.readChar() // consume opening quote
	for l.ch != quote {
		if l.pos >= len(l.input) {
			return l.makeToken(TokenError, "unterminated string", start)
		}
		if l.ch == '\\' {
			l.readChar()
			if l.pos >= len(l.input) {
				return l.makeToken(TokenError, "unterminated string", start)
			}
		}
		l.readChar()
	}
	l.readChar() // consume closing quote
	return l.makeToken(TokenString, l.input[start:l.pos], start)
}

// Tokenize returns all tokens from the input.
// Useful for debugging and testing.
func (l *Lexer) Tokenize() []Token {
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			break
		}
	}
	return tokens
}

// isLetter checks if the character can start an identifier.
func isLetter(ch byte) bool {
	return unicode.IsLetter(rune(ch)) || ch == '_'
}

// isDigit checks if the character is a digit.
func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}
