package parser

import (
	"fmt"
	"strconv"
	"strings"

	metaerrors "github.com/arkilian/metatables/internal/errors"
	"github.com/arkilian/metatables/internal/expr"
)

// ParseError represents a parsing error with location information.
type ParseError struct {
	Message  string
	Position int
	Token    Token
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at position %d: %s (got %s)", e.Position, e.Message, e.Token.Type)
}

// Parser parses row filters into expressions.
type Parser struct {
	lexer     *Lexer
	curToken  Token
	peekToken Token
}

// NewParser creates a new Parser for the given input.
func NewParser(input string) *Parser {
	p := &Parser{
		lexer: NewLexer(input),
	}
	// Read two tokens to initialize curToken and peekToken
	p.nextToken()
	p.nextToken()
	return p
}

// Parse parses a row filter such as
//
//	status = 1 AND data_file.record_count > 100
//
// An empty filter matches every row. Failures are EXPRESSION/PARSE_ERROR
// errors wrapping a *ParseError.
func Parse(input string) (expr.Expression, error) {
	e, err := NewParser(input).ParseFilter()
	if err != nil {
		return nil, metaerrors.Wrap(metaerrors.ErrCategoryExpression, metaerrors.CodeParseError,
			"invalid row filter", err)
	}
	return e, nil
}

func (p *Parser) nextToken() {
	p.curToken = p.peekToken
	p.peekToken = p.lexer.NextToken()
}

func (p *Parser) curTokenIs(t TokenType) bool {
	return p.curToken.Type == t
}

func (p *Parser) errorf(format string, args ...any) *ParseError {
	return &ParseError{
		Message:  fmt.Sprintf(format, args...),
		Position: p.curToken.Pos,
		Token:    p.curToken,
	}
}

// expect advances past the current token if it has type t.
func (p *Parser) expect(t TokenType) error {
	if !p.curTokenIs(t) {
		return p.errorf("expected %s", t)
	}
	p.nextToken()
	return nil
}

// ParseFilter parses the whole input as one filter expression.
func (p *Parser) ParseFilter() (expr.Expression, error) {
	if p.curTokenIs(TokenEOF) {
		return expr.AlwaysTrue(), nil
	}

	e, err := p.parseExpression(precLowest)
	if err != nil {
		return nil, err
	}
	if p.curTokenIs(TokenError) {
		return nil, p.errorf("invalid input %q", p.curToken.Literal)
	}
	if !p.curTokenIs(TokenEOF) {
		return nil, p.errorf("unexpected token after filter")
	}
	return e, nil
}

// Operator precedence levels
const (
	precLowest = 0
	precOr     = 1
	precAnd    = 2
	precNot    = 3
)

func (p *Parser) getPrecedence() int {
	switch p.curToken.Type {
	case TokenOr:
		return precOr
	case TokenAnd:
		return precAnd
	default:
		return precLowest
	}
}

// parseExpression parses a boolean expression with operator precedence.
func (p *Parser) parseExpression(precedence int) (expr.Expression, error) {
	left, err := p.parsePrefixExpression()
	if err != nil {
		return nil, err
	}

	for !p.curTokenIs(TokenEOF) && precedence < p.getPrecedence() {
		left, err = p.parseInfixExpression(left)
		if err != nil {
			return nil, err
		}
	}

	return left, nil
}

func (p *Parser) parsePrefixExpression() (expr.Expression, error) {
	switch p.curToken.Type {
	case TokenNot:
		p.nextToken()
		operand, err := p.parseExpression(precNot)
		if err != nil {
			return nil, err
		}
		return expr.NewNot(operand), nil
	case TokenLParen:
		return p.parseGroupedExpression()
	case TokenTrue:
		p.nextToken()
		return expr.AlwaysTrue(), nil
	case TokenFalse:
		p.nextToken()
		return expr.AlwaysFalse(), nil
	case TokenIdent:
		return p.parsePredicate()
	case TokenNumber, TokenString, TokenMinus:
		return p.parseReversedComparison()
	default:
		return nil, p.errorf("unexpected token in expression")
	}
}

func (p *Parser) parseInfixExpression(left expr.Expression) (expr.Expression, error) {
	op := p.curToken.Type
	precedence := p.getPrecedence()
	p.nextToken()

	right, err := p.parseExpression(precedence)
	if err != nil {
		return nil, err
	}

	if op == TokenAnd {
		return expr.NewAnd(left, right), nil
	}
	return expr.NewOr(left, right), nil
}

func (p *Parser) parseGroupedExpression() (expr.Expression, error) {
	p.nextToken() // Skip (

	e, err := p.parseExpression(precLowest)
	if err != nil {
		return nil, err
	}
	if err := p.expect(TokenRParen); err != nil {
		return nil, err
	}
	return e, nil
}

// parseTerm parses a possibly dotted column name.
func (p *Parser) parseTerm() (string, error) {
	if !p.curTokenIs(TokenIdent) {
		return "", p.errorf("expected column name")
	}
	parts := []string{p.curToken.Literal}
	p.nextToken()

	for p.curTokenIs(TokenDot) {
		p.nextToken()
		if !p.curTokenIs(TokenIdent) {
			return "", p.errorf("expected column name after dot")
		}
		parts = append(parts, p.curToken.Literal)
		p.nextToken()
	}
	return strings.Join(parts, "."), nil
}

// parsePredicate parses a predicate whose left side is a column.
func (p *Parser) parsePredicate() (expr.Expression, error) {
	term, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	switch p.curToken.Type {
	case TokenEq, TokenNe, TokenLt, TokenGt, TokenLe, TokenGe:
		op := p.curToken.Type
		p.nextToken()
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return comparison(op, term, lit), nil
	case TokenIn:
		return p.parseInExpression(term, false)
	case TokenLike:
		return p.parseLikeExpression(term, false)
	case TokenBetween:
		return p.parseBetweenExpression(term, false)
	case TokenIs:
		return p.parseIsExpression(term)
	case TokenNot:
		return p.parseNotInfix(term)
	default:
		return nil, p.errorf("expected comparison operator after %s", term)
	}
}

// parseReversedComparison parses "literal op column".
func (p *Parser) parseReversedComparison() (expr.Expression, error) {
	lit, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}

	var op TokenType
	switch p.curToken.Type {
	case TokenEq, TokenNe:
		op = p.curToken.Type
	case TokenLt:
		op = TokenGt
	case TokenGt:
		op = TokenLt
	case TokenLe:
		op = TokenGe
	case TokenGe:
		op = TokenLe
	default:
		return nil, p.errorf("expected comparison operator after literal")
	}
	p.nextToken()

	term, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	return comparison(op, term, lit), nil
}

func comparison(op TokenType, term string, lit any) expr.Expression {
	switch op {
	case TokenEq:
		return expr.Equal(term, lit)
	case TokenNe:
		return expr.NotEqual(term, lit)
	case TokenLt:
		return expr.LessThan(term, lit)
	case TokenGt:
		return expr.GreaterThan(term, lit)
	case TokenLe:
		return expr.LessThanOrEqual(term, lit)
	default:
		return expr.GreaterThanOrEqual(term, lit)
	}
}

// parseLiteral parses a number, string or boolean literal.
func (p *Parser) parseLiteral() (any, error) {
	switch p.curToken.Type {
	case TokenNumber:
		return p.parseNumber(false)
	case TokenMinus:
		p.nextToken()
		if !p.curTokenIs(TokenNumber) {
			return nil, p.errorf("expected number after -")
		}
		return p.parseNumber(true)
	case TokenString:
		s := p.curToken.Literal
		p.nextToken()
		return s, nil
	case TokenTrue, TokenFalse:
		b := p.curTokenIs(TokenTrue)
		p.nextToken()
		return b, nil
	case TokenNull:
		return nil, p.errorf("NULL cannot be compared, use IS NULL")
	default:
		return nil, p.errorf("expected literal")
	}
}

func (p *Parser) parseNumber(negative bool) (any, error) {
	literal := p.curToken.Literal
	if negative {
		literal = "-" + literal
	}

	// Try parsing as int64 first
	if !strings.Contains(literal, ".") {
		if val, err := strconv.ParseInt(literal, 10, 64); err == nil {
			p.nextToken()
			return val, nil
		}
	}

	val, err := strconv.ParseFloat(literal, 64)
	if err != nil {
		return nil, p.errorf("invalid number")
	}
	p.nextToken()
	return val, nil
}

func (p *Parser) parseInExpression(term string, not bool) (expr.Expression, error) {
	p.nextToken() // Skip IN

	if err := p.expect(TokenLParen); err != nil {
		return nil, err
	}

	var values []any
	for {
		val, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		values = append(values, val)

		if !p.curTokenIs(TokenComma) {
			break
		}
		p.nextToken()
	}

	if err := p.expect(TokenRParen); err != nil {
		return nil, err
	}

	if not {
		return expr.NotIn(term, values...), nil
	}
	return expr.In(term, values...), nil
}

// parseLikeExpression supports a pattern without wildcards (equality) or
// with a single trailing % (prefix match). Underscore is matched literally.
func (p *Parser) parseLikeExpression(term string, not bool) (expr.Expression, error) {
	p.nextToken() // Skip LIKE

	if !p.curTokenIs(TokenString) {
		return nil, p.errorf("expected string pattern after LIKE")
	}
	pattern := p.curToken.Literal

	prefix := strings.TrimSuffix(pattern, "%")
	if strings.Contains(prefix, "%") {
		return nil, p.errorf("unsupported LIKE pattern %q: only a trailing %% is supported", pattern)
	}
	p.nextToken()

	switch {
	case prefix == pattern && not:
		return expr.NotEqual(term, pattern), nil
	case prefix == pattern:
		return expr.Equal(term, pattern), nil
	case not:
		return expr.NotStartsWith(term, prefix), nil
	default:
		return expr.StartsWith(term, prefix), nil
	}
}

// parseBetweenExpression expands BETWEEN into inclusive range comparisons.
func (p *Parser) parseBetweenExpression(term string, not bool) (expr.Expression, error) {
	p.nextToken() // Skip BETWEEN

	low, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}
	if err := p.expect(TokenAnd); err != nil {
		return nil, err
	}
	high, err := p.parseLiteral()
	if err != nil {
		return nil, err
	}

	if not {
		return expr.NewOr(expr.LessThan(term, low), expr.GreaterThan(term, high)), nil
	}
	return expr.NewAnd(expr.GreaterThanOrEqual(term, low), expr.LessThanOrEqual(term, high)), nil
}

func (p *Parser) parseIsExpression(term string) (expr.Expression, error) {
	p.nextToken() // Skip IS

	not := false
	if p.curTokenIs(TokenNot) {
		not = true
		p.nextToken()
	}

	if err := p.expect(TokenNull); err != nil {
		return nil, err
	}

	if not {
		return expr.NotNull(term), nil
	}
	return expr.IsNull(term), nil
}

// parseNotInfix parses NOT IN, NOT LIKE and NOT BETWEEN.
func (p *Parser) parseNotInfix(term string) (expr.Expression, error) {
	p.nextToken() // Skip NOT

	switch p.curToken.Type {
	case TokenIn:
		return p.parseInExpression(term, true)
	case TokenLike:
		return p.parseLikeExpression(term, true)
	case TokenBetween:
		return p.parseBetweenExpression(term, true)
	default:
		return nil, p.errorf("expected IN, LIKE, or BETWEEN after NOT")
	}
}
