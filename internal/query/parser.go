package query

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrSyntax is returned for statements that do not parse.
var ErrSyntax = errors.New("syntax error")

// typeNames maps the column types accepted by CREATE TABLE to record
// type names.
var typeNames = map[string]string{
	"ANY":       "any",
	"INT":       "int",
	"INTEGER":   "int",
	"BIGINT":    "int",
	"FLOAT":     "float",
	"REAL":      "float",
	"DOUBLE":    "float",
	"STRING":    "string",
	"TEXT":      "string",
	"VARCHAR":   "string",
	"BOOL":      "bool",
	"BOOLEAN":   "bool",
	"BYTES":     "bytes",
	"BLOB":      "bytes",
	"TIME":      "time",
	"TIMESTAMP": "time",
	"DATETIME":  "time",
}

// Parser parses statement tokens.
//
// EDUCATIONAL NOTES:
// ------------------
// This is a recursive descent parser with one token of lookahead. The
// parser keeps a "current token" and can "peek" at the next one. Every
// parse function leaves the current token on the last token it consumed.
type Parser struct {
	lexer     *Lexer
	input     string
	curToken  Token
	peekToken Token
	errors    []string
}

// NewParser creates a new Parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{lexer: NewLexer(input), input: input}
	// Read two tokens to initialize curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses a single statement. A trailing semicolon is allowed.
func Parse(input string) (Statement, error) {
	return NewParser(input).Parse()
}

// Parse parses the input and returns the statement.
func (p *Parser) Parse() (Statement, error) {
	stmt := p.parseStatement()
	if len(p.errors) == 0 {
		if p.peekTokenIs(TokenSemicolon) {
			p.nextToken()
		}
		if !p.peekTokenIs(TokenEOF) {
			p.errorf(p.peekToken, "unexpected %s after statement", describe(p.peekToken))
		}
	}
	if len(p.errors) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrSyntax, strings.Join(p.errors, "; "))
	}
	return stmt, nil
}

// Errors returns any parsing errors encountered.
func (p *Parser) Errors() []string {
	return p.errors
}

// nextToken advances to the next token.
func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

// curTokenIs checks if the current token is of the given type.
func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

// peekTokenIs checks if the next token is of the given type.
func (p *Parser) peekTokenIs(t TokenType) bool {
	return p.peekToken.Type == t
}

// expectPeek advances if the next token is of the expected type.
func (p *Parser) expectPeek(t TokenType) bool {
	if p.peekTokenIs(t) {
		p.nextToken()
		return true
	}
	p.errorf(p.peekToken, "expected %s, got %s", t, describe(p.peekToken))
	return false
}

// expectOperator advances if the next token is the given operator.
func (p *Parser) expectOperator(op string) bool {
	if p.peekTokenIs(TokenOperator) && p.peekToken.Literal == op {
		p.nextToken()
		return true
	}
	p.errorf(p.peekToken, "expected %q, got %s", op, describe(p.peekToken))
	return false
}

func (p *Parser) errorf(tok Token, format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf("col %d: ", tok.Column)+fmt.Sprintf(format, args...))
}

func describe(tok Token) string {
	switch tok.Type {
	case TokenEOF:
		return "end of input"
	case TokenError:
		return tok.Literal
	}
	return strconv.Quote(tok.Literal)
}

// parseStatement parses a statement.
//
// EDUCATIONAL NOTE:
// -----------------
// This is the entry point for parsing. We look at the first token
// to determine what kind of statement we're parsing.
func (p *Parser) parseStatement() Statement {
	switch p.curToken.Type {
	case TokenSelect:
		return p.parseSelectStatement()
	case TokenInsert:
		return p.parseInsertStatement()
	case TokenUpdate:
		return p.parseUpdateStatement()
	case TokenDelete:
		return p.parseDeleteStatement()
	case TokenCreate:
		return p.parseCreateTableStatement()
	case TokenDrop:
		return p.parseDropTableStatement()
	default:
		p.errorf(p.curToken, "unexpected %s at start of statement", describe(p.curToken))
		return nil
	}
}

// parseSelectStatement parses:
// SELECT fields FROM table [WHERE e] [GROUP BY keys] [HAVING e]
// [ORDER BY keys [ASC|DESC]] [LIMIT n] [OFFSET n]
func (p *Parser) parseSelectStatement() *SelectStatement {
	stmt := &SelectStatement{Limit: -1}

	p.nextToken() // move past SELECT
	if !p.curTokenIs(TokenOperator) || p.curToken.Literal != "*" {
		if stmt.Fields = p.parseExpressionList(); stmt.Fields == nil {
			return nil
		}
	}

	if !p.expectPeek(TokenFrom) || !p.expectPeek(TokenIdent) {
		return nil
	}
	stmt.From = p.curToken.Literal

	if p.peekTokenIs(TokenWhere) {
		p.nextToken()
		p.nextToken()
		if stmt.Where = p.parseExpression(); stmt.Where == "" {
			return nil
		}
	}
	if p.peekTokenIs(TokenGroup) {
		p.nextToken()
		if !p.expectPeek(TokenBy) || !p.expectPeek(TokenIdent) {
			return nil
		}
		stmt.GroupBy = p.parseIdentifierList()
	}
	if p.peekTokenIs(TokenHaving) {
		p.nextToken()
		p.nextToken()
		if stmt.Having = p.parseExpression(); stmt.Having == "" {
			return nil
		}
	}
	if p.peekTokenIs(TokenOrder) {
		p.nextToken()
		if !p.expectPeek(TokenBy) || !p.expectPeek(TokenIdent) {
			return nil
		}
		if !p.parseOrderByClause(stmt) {
			return nil
		}
	}
	if p.peekTokenIs(TokenLimit) {
		p.nextToken()
		if stmt.Limit = p.parseCount(); stmt.Limit < 0 {
			return nil
		}
	}
	if p.peekTokenIs(TokenOffset) {
		p.nextToken()
		if stmt.Offset = p.parseCount(); stmt.Offset < 0 {
			return nil
		}
	}
	return stmt
}

// parseOrderByClause parses the sort keys. Rows are sorted by all keys
// in one direction, so mixed directions are rejected.
func (p *Parser) parseOrderByClause(stmt *SelectStatement) bool {
	var direction TokenType
	for {
		stmt.OrderBy = append(stmt.OrderBy, p.curToken.Literal)
		if p.peekTokenIs(TokenAsc) || p.peekTokenIs(TokenDesc) {
			p.nextToken()
			if direction != 0 && direction != p.curToken.Type {
				p.errorf(p.curToken, "mixed sort directions in ORDER BY")
				return false
			}
			direction = p.curToken.Type
		}
		if !p.peekTokenIs(TokenComma) {
			break
		}
		p.nextToken()
		if !p.expectPeek(TokenIdent) {
			return false
		}
	}
	stmt.Descending = direction == TokenDesc
	return true
}

// parseCount parses the non-negative integer after LIMIT or OFFSET. It
// returns -1 on errors.
func (p *Parser) parseCount() int {
	if !p.expectPeek(TokenNumber) {
		return -1
	}
	n, err := strconv.Atoi(p.curToken.Literal)
	if err != nil || n < 0 {
		p.errorf(p.curToken, "expected a non-negative integer, got %s", describe(p.curToken))
		return -1
	}
	return n
}

// parseInsertStatement parses:
// INSERT INTO table [(columns)] VALUES (values) [, (values)]
func (p *Parser) parseInsertStatement() *InsertStatement {
	stmt := &InsertStatement{}

	if !p.expectPeek(TokenInto) || !p.expectPeek(TokenIdent) {
		return nil
	}
	stmt.Table = p.curToken.Literal

	if p.peekTokenIs(TokenLeftParen) {
		p.nextToken()
		if !p.expectPeek(TokenIdent) {
			return nil
		}
		stmt.Columns = p.parseIdentifierList()
		if !p.expectPeek(TokenRightParen) {
			return nil
		}
	}

	if !p.expectPeek(TokenValues) {
		return nil
	}
	for {
		if !p.expectPeek(TokenLeftParen) {
			return nil
		}
		p.nextToken()
		row := p.parseExpressionList()
		if row == nil || !p.expectPeek(TokenRightParen) {
			return nil
		}
		if len(stmt.Columns) > 0 && len(row) != len(stmt.Columns) {
			p.errorf(p.curToken, "%d values for %d columns", len(row), len(stmt.Columns))
			return nil
		}
		stmt.Rows = append(stmt.Rows, row)
		if !p.peekTokenIs(TokenComma) {
			return stmt
		}
		p.nextToken()
	}
}

// parseUpdateStatement parses: UPDATE table SET col = value [, ...] [WHERE e]
func (p *Parser) parseUpdateStatement() *UpdateStatement {
	stmt := &UpdateStatement{}

	if !p.expectPeek(TokenIdent) {
		return nil
	}
	stmt.Table = p.curToken.Literal

	if !p.expectPeek(TokenSet) {
		return nil
	}
	for {
		if !p.expectPeek(TokenIdent) {
			return nil
		}
		column := p.curToken.Literal
		if !p.expectOperator("=") {
			return nil
		}
		p.nextToken()
		value := p.parseExpression()
		if value == "" {
			return nil
		}
		stmt.Set = append(stmt.Set, Assignment{Column: column, Value: value})
		if !p.peekTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}

	if p.peekTokenIs(TokenWhere) {
		p.nextToken()
		p.nextToken()
		if stmt.Where = p.parseExpression(); stmt.Where == "" {
			return nil
		}
	}
	return stmt
}

// parseDeleteStatement parses: DELETE FROM table [WHERE e]
func (p *Parser) parseDeleteStatement() *DeleteStatement {
	stmt := &DeleteStatement{}

	if !p.expectPeek(TokenFrom) || !p.expectPeek(TokenIdent) {
		return nil
	}
	stmt.Table = p.curToken.Literal

	if p.peekTokenIs(TokenWhere) {
		p.nextToken()
		p.nextToken()
		if stmt.Where = p.parseExpression(); stmt.Where == "" {
			return nil
		}
	}
	return stmt
}

// parseCreateTableStatement parses:
// CREATE TABLE name (col type [NOT NULL | NULL] [DEFAULT value], ...)
func (p *Parser) parseCreateTableStatement() *CreateTableStatement {
	stmt := &CreateTableStatement{}

	if !p.expectPeek(TokenTable) || !p.expectPeek(TokenIdent) {
		return nil
	}
	stmt.Table = p.curToken.Literal

	if !p.expectPeek(TokenLeftParen) {
		return nil
	}
	for {
		col, ok := p.parseColumnDefinition()
		if !ok {
			return nil
		}
		stmt.Columns = append(stmt.Columns, col)
		if !p.peekTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}
	if !p.expectPeek(TokenRightParen) {
		return nil
	}
	return stmt
}

func (p *Parser) parseColumnDefinition() (ColumnDefinition, bool) {
	var col ColumnDefinition
	if !p.expectPeek(TokenIdent) {
		return col, false
	}
	col.Name = p.curToken.Literal

	if !p.expectPeek(TokenIdent) {
		return col, false
	}
	name, ok := typeNames[strings.ToUpper(p.curToken.Literal)]
	if !ok {
		p.errorf(p.curToken, "unknown column type %s", describe(p.curToken))
		return col, false
	}
	col.Type = name
	// VARCHAR(255) and the like: the size is accepted and ignored
	if p.peekTokenIs(TokenLeftParen) {
		p.nextToken()
		if !p.expectPeek(TokenNumber) || !p.expectPeek(TokenRightParen) {
			return col, false
		}
	}

	for {
		switch {
		case p.peekTokenIs(TokenNot):
			p.nextToken()
			if !p.expectPeek(TokenNull) {
				return col, false
			}
			col.NotNull = true
		case p.peekTokenIs(TokenNull):
			p.nextToken()
		case p.peekTokenIs(TokenDefault):
			p.nextToken()
			p.nextToken()
			if col.Default = p.parseExpression(TokenNot); col.Default == "" {
				return col, false
			}
		default:
			return col, true
		}
	}
}

// parseDropTableStatement parses: DROP TABLE name
func (p *Parser) parseDropTableStatement() *DropTableStatement {
	if !p.expectPeek(TokenTable) || !p.expectPeek(TokenIdent) {
		return nil
	}
	return &DropTableStatement{Table: p.curToken.Literal}
}

// parseIdentifierList parses a comma-separated list of identifiers,
// starting at the current token.
func (p *Parser) parseIdentifierList() []string {
	list := []string{p.curToken.Literal}
	for p.peekTokenIs(TokenComma) {
		p.nextToken()
		if !p.expectPeek(TokenIdent) {
			return list
		}
		list = append(list, p.curToken.Literal)
	}
	return list
}

// parseExpressionList parses comma-separated expressions, starting at
// the current token. It returns nil on errors.
func (p *Parser) parseExpressionList() []string {
	var list []string
	for {
		e := p.parseExpression()
		if e == "" {
			return nil
		}
		list = append(list, e)
		if !p.peekTokenIs(TokenComma) {
			return list
		}
		p.nextToken()
		p.nextToken()
	}
}

// parseExpression returns the source text of the expression starting at
// the current token.
//
// EDUCATIONAL NOTE:
// -----------------
// The expression ends before the first token at nesting depth zero that
// cannot continue it: a statement keyword, a comma, a closing bracket of
// an enclosing list or the end of the input. Brackets inside the
// expression, as in max(a, b) or [1, 2], raise the depth, so their
// commas stay part of the expression. The tokens in between are not
// interpreted; the text is compiled later by the expression parser.
func (p *Parser) parseExpression(stops ...TokenType) string {
	if p.isBoundary(p.curToken, stops) {
		p.errorf(p.curToken, "expected expression, got %s", describe(p.curToken))
		return ""
	}
	first := p.curToken
	depth := 0
	for {
		switch p.curToken.Type {
		case TokenError:
			p.errorf(p.curToken, "%s", p.curToken.Literal)
			return ""
		case TokenLeftParen, TokenLeftSquare:
			depth++
		case TokenRightParen, TokenRightSquare:
			depth--
		}
		if depth < 0 {
			p.errorf(p.curToken, "unbalanced %s", describe(p.curToken))
			return ""
		}
		if p.peekTokenIs(TokenEOF) || p.peekTokenIs(TokenError) {
			if depth > 0 {
				p.errorf(p.peekToken, "unclosed bracket in expression")
				return ""
			}
			if p.peekTokenIs(TokenError) {
				p.errorf(p.peekToken, "%s", p.peekToken.Literal)
				return ""
			}
			break
		}
		if depth == 0 && p.isBoundary(p.peekToken, stops) {
			break
		}
		p.nextToken()
	}
	return p.input[first.Pos:p.curToken.End]
}

// isBoundary reports whether tok ends an expression at depth zero. NOT
// and NULL are expression words unless a caller lists them in stops.
func (p *Parser) isBoundary(tok Token, stops []TokenType) bool {
	switch tok.Type {
	case TokenEOF, TokenSemicolon, TokenComma, TokenRightParen, TokenRightSquare:
		return true
	case TokenNot, TokenNull:
		for _, s := range stops {
			if s == tok.Type {
				return true
			}
		}
		return false
	}
	return tok.Type >= TokenSelect && tok.Type <= TokenOffset
}
