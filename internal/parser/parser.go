// Package parser provides xcc parsing into an AST.
//
// The parser is a classic recursive descent over the token stream, with
// current/previous/next/advance/check primitives as the only lookahead and
// consume surface. There is no backtracking.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xcc-lang/xcc/internal/ast"
	"github.com/xcc-lang/xcc/internal/lexer"
)

// ParseError is a syntax failure with a 1-based source line.
type ParseError struct {
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%d: %s", e.Line, e.Message)
}

// Parser parses a token stream into an AST block.
type Parser struct {
	tokens []lexer.Token
	pos    int
}

// New creates a parser over the given tokens.
func New(tokens []lexer.Token) *Parser {
	return &Parser{tokens: tokens}
}

// Parse consumes the whole token stream. In whole-program mode only
// function declarations, global var declarations and struct definitions
// are accepted at top level; REPL mode also accepts arbitrary statements.
func (p *Parser) Parse(isRepl bool) (*ast.Block, error) {
	block := &ast.Block{}

	for !p.isAtEnd() {
		switch {
		case p.checkAnyOf(lexer.TokFn, lexer.TokExtern):
			fn, err := p.parseFunction(false, "")
			if err != nil {
				return nil, err
			}
			block.Body = append(block.Body, fn)

		case p.check(lexer.TokVar):
			decl, err := p.parseVar(true)
			if err != nil {
				return nil, err
			}
			if !p.checkAdvance(lexer.TokSemicolon) {
				return nil, p.errorf("expected ';' after variable declaration")
			}
			block.Body = append(block.Body, decl)

		case p.check(lexer.TokStruct):
			st, err := p.parseStruct()
			if err != nil {
				return nil, err
			}
			block.Body = append(block.Body, st)

		default:
			if !isRepl {
				return nil, p.errorf("unexpected token at top-level scope: '%s'", p.current())
			}
			stmt, err := p.parseStmt()
			if err != nil {
				return nil, err
			}
			block.Body = append(block.Body, stmt)
			p.checkAdvance(lexer.TokSemicolon)
		}
	}

	return block, nil
}

// ----------------------------------------------------------------------------
// Token Helpers
// ----------------------------------------------------------------------------

func (p *Parser) isAtEnd() bool {
	return p.pos >= len(p.tokens)
}

func (p *Parser) current() lexer.Token {
	if p.isAtEnd() {
		return lexer.Token{Kind: lexer.TokEOF, Line: p.lastLine()}
	}
	return p.tokens[p.pos]
}

func (p *Parser) previous() lexer.Token {
	if p.pos == 0 {
		return lexer.Token{Kind: lexer.TokEOF}
	}
	return p.tokens[p.pos-1]
}

func (p *Parser) next() lexer.Token {
	if p.pos+1 >= len(p.tokens) {
		return lexer.Token{Kind: lexer.TokEOF, Line: p.lastLine()}
	}
	return p.tokens[p.pos+1]
}

func (p *Parser) advance() lexer.Token {
	tok := p.current()
	if !p.isAtEnd() {
		p.pos++
	}
	return tok
}

func (p *Parser) check(kind lexer.TokenKind) bool {
	return p.current().Is(kind)
}

func (p *Parser) checkAnyOf(kinds ...lexer.TokenKind) bool {
	return p.current().IsAnyOf(kinds...)
}

func (p *Parser) checkAdvance(kind lexer.TokenKind) bool {
	if p.check(kind) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) checkAdvanceAnyOf(kinds ...lexer.TokenKind) bool {
	if p.checkAnyOf(kinds...) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) lastLine() int {
	if len(p.tokens) == 0 {
		return 1
	}
	return p.tokens[len(p.tokens)-1].Line
}

func (p *Parser) errorf(format string, args ...any) error {
	return &ParseError{Line: p.current().Line, Message: fmt.Sprintf(format, args...)}
}

// ----------------------------------------------------------------------------
// Declarations
// ----------------------------------------------------------------------------

func (p *Parser) parseIdentifier(what string) (*ast.Identifier, error) {
	if p.checkAdvance(lexer.TokIdentifier) {
		return &ast.Identifier{Name: p.previous().Text}, nil
	}
	return nil, p.errorf("expected identifier %s", what)
}

// parseType parses a type name followed by any number of '*' wrappers.
func (p *Parser) parseType() (*ast.TypeExpr, error) {
	id, err := p.parseIdentifier("for type name")
	if err != nil {
		return nil, err
	}

	typ := &ast.TypeExpr{Name: id}
	for p.checkAdvance(lexer.TokStar) {
		typ = ast.PointerType(typ)
	}
	return typ, nil
}

// parseValueDecl parses "name[: Type][= expr]".
func (p *Parser) parseValueDecl() (*ast.TypedIdent, error) {
	name, err := p.parseIdentifier("for variable name")
	if err != nil {
		return nil, err
	}

	decl := &ast.TypedIdent{Name: name}

	if p.checkAdvance(lexer.TokColon) {
		if decl.Type, err = p.parseType(); err != nil {
			return nil, err
		}
	}

	if p.checkAdvance(lexer.TokEq) {
		if decl.Value, err = p.parseExpr(); err != nil {
			return nil, err
		}
	}

	return decl, nil
}

// parseFunction parses "[extern] fn name(args): T" followed by ';' or a
// body block. Methods receive an implicit first parameter
// "self: <structName>*" unless written explicitly.
func (p *Parser) parseFunction(isMethod bool, structName string) (ast.Node, error) {
	isExtern := p.checkAdvance(lexer.TokExtern)

	if !p.checkAdvance(lexer.TokFn) {
		return nil, p.errorf("expected 'fn'")
	}

	name, err := p.parseIdentifier("for function name")
	if err != nil {
		return nil, err
	}

	if !p.checkAdvance(lexer.TokLParen) {
		return nil, p.errorf("expected '(' after function name")
	}

	var args []*ast.TypedIdent
	isVariadic := false

	if !p.check(lexer.TokRParen) {
		for {
			if p.checkAdvance(lexer.TokEllipsis) {
				isVariadic = true
				break
			}
			if p.checkAdvance(lexer.TokSelf) {
				if structName == "" {
					return nil, p.errorf("'self' parameter outside of struct method")
				}
				arg := selfArg(structName)
				if p.checkAdvance(lexer.TokColon) {
					if arg.Type, err = p.parseType(); err != nil {
						return nil, err
					}
				}
				args = append(args, arg)
			} else {
				arg, err := p.parseValueDecl()
				if err != nil {
					return nil, err
				}
				args = append(args, arg)
			}
			if !p.checkAdvance(lexer.TokComma) {
				break
			}
		}
	}

	if !p.checkAdvance(lexer.TokRParen) {
		return nil, p.errorf("expected ')' after function arguments")
	}
	if !p.checkAdvance(lexer.TokColon) {
		return nil, p.errorf("expected ':' after function arguments")
	}

	returnType, err := p.parseType()
	if err != nil {
		return nil, err
	}

	if isMethod && (len(args) == 0 || args[0].Name.Name != "self") {
		args = append([]*ast.TypedIdent{selfArg(structName)}, args...)
	}

	decl := &ast.FnDecl{
		Name:     name,
		Return:   returnType,
		Args:     args,
		Extern:   isExtern,
		Variadic: isVariadic,
	}

	if !p.check(lexer.TokLBrace) {
		if !p.checkAdvance(lexer.TokSemicolon) {
			return nil, p.errorf("expected ';' after function declaration")
		}
		return decl, nil
	}

	body, err := p.parseBlock()
	if err != nil {
		return nil, err
	}

	return &ast.FnDef{Decl: decl, Body: body}, nil
}

func selfArg(structName string) *ast.TypedIdent {
	return &ast.TypedIdent{
		Name: &ast.Identifier{Name: "self"},
		Type: ast.PointerType(ast.NamedType(structName)),
	}
}

func (p *Parser) parseVar(global bool) (*ast.VarDecl, error) {
	if !p.checkAdvance(lexer.TokVar) {
		return nil, p.errorf("expected 'var'")
	}

	decl, err := p.parseValueDecl()
	if err != nil {
		return nil, err
	}

	return &ast.VarDecl{Name: decl.Name, Type: decl.Type, Value: decl.Value, Global: global}, nil
}

// parseStruct parses a struct body: a sequence of field declarations and
// method definitions.
func (p *Parser) parseStruct() (*ast.Struct, error) {
	if !p.checkAdvance(lexer.TokStruct) {
		return nil, p.errorf("expected 'struct'")
	}

	name, err := p.parseIdentifier("for struct name")
	if err != nil {
		return nil, err
	}

	if !p.checkAdvance(lexer.TokLBrace) {
		return nil, p.errorf("expected '{' after 'struct'")
	}

	st := &ast.Struct{Name: name}

	for !p.isAtEnd() && !p.check(lexer.TokRBrace) {
		if p.check(lexer.TokFn) {
			method, err := p.parseFunction(true, name.Name)
			if err != nil {
				return nil, err
			}
			def, ok := method.(*ast.FnDef)
			if !ok {
				return nil, p.errorf("struct method '%s' needs a body", name.Name)
			}
			st.Methods = append(st.Methods, def)
			continue
		}

		field, err := p.parseValueDecl()
		if err != nil {
			return nil, err
		}
		st.Fields = append(st.Fields, field)

		if !p.checkAdvance(lexer.TokSemicolon) && !p.check(lexer.TokRBrace) {
			return nil, p.errorf("expected ';' after struct field")
		}
	}

	if !p.checkAdvance(lexer.TokRBrace) {
		return nil, p.errorf("expected '}' after struct definition")
	}

	return st, nil
}

// ----------------------------------------------------------------------------
// Statements
// ----------------------------------------------------------------------------

func (p *Parser) parseStmt() (ast.Node, error) {
	switch {
	case p.check(lexer.TokVar):
		return p.parseVar(false)
	case p.check(lexer.TokIf):
		return p.parseIf()
	case p.check(lexer.TokFor):
		return p.parseFor()
	case p.check(lexer.TokWhile):
		return p.parseWhile()
	case p.check(lexer.TokReturn):
		return p.parseReturn()
	case p.check(lexer.TokLBrace):
		return p.parseBlock()
	default:
		return p.parseExpr()
	}
}

func (p *Parser) parseBlock() (*ast.Block, error) {
	if !p.checkAdvance(lexer.TokLBrace) {
		return nil, p.errorf("expected '{'")
	}

	block := &ast.Block{}

	for {
		if p.isAtEnd() || p.check(lexer.TokRBrace) {
			break
		}

		stmt, err := p.parseStmt()
		if err != nil {
			return nil, err
		}
		block.Body = append(block.Body, stmt)

		// A block ending a statement also terminates it without ';'.
		if !p.previous().Is(lexer.TokRBrace) && !p.checkAdvance(lexer.TokSemicolon) {
			break
		}
	}

	if !p.checkAdvance(lexer.TokRBrace) {
		return nil, p.errorf("expected '}'")
	}

	return block, nil
}

func (p *Parser) parseIf() (ast.Node, error) {
	if !p.checkAdvance(lexer.TokIf) {
		return nil, p.errorf("expected 'if'")
	}
	if !p.checkAdvance(lexer.TokLParen) {
		return nil, p.errorf("expected '(' after 'if'")
	}

	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	if !p.checkAdvance(lexer.TokRParen) {
		return nil, p.errorf("expected ')' after 'if' condition")
	}

	then, err := p.parseStmt()
	if err != nil {
		return nil, err
	}

	stmt := &ast.If{Cond: cond, Then: then}

	// "if (x) return 1; else ..." — the ';' terminates the then branch,
	// not the whole if.
	if p.check(lexer.TokSemicolon) && p.next().Is(lexer.TokElse) {
		p.advance()
	}

	if p.checkAdvance(lexer.TokElse) {
		if stmt.Else, err = p.parseStmt(); err != nil {
			return nil, err
		}
	}

	return stmt, nil
}

func (p *Parser) parseFor() (ast.Node, error) {
	if !p.checkAdvance(lexer.TokFor) {
		return nil, p.errorf("expected 'for'")
	}
	if !p.checkAdvance(lexer.TokLParen) {
		return nil, p.errorf("expected '(' after 'for'")
	}

	init, err := p.parseVar(false)
	if err != nil {
		return nil, err
	}
	if !p.checkAdvance(lexer.TokSemicolon) {
		return nil, p.errorf("expected ';' after 'init' part of 'for'")
	}

	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if !p.checkAdvance(lexer.TokSemicolon) {
		return nil, p.errorf("expected ';' after 'cond' part of 'for'")
	}

	step, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if !p.checkAdvance(lexer.TokRParen) {
		return nil, p.errorf("expected ')' after 'step' part of 'for'")
	}

	body, err := p.parseStmt()
	if err != nil {
		return nil, err
	}

	return &ast.For{Init: init, Cond: cond, Step: step, Body: body}, nil
}

func (p *Parser) parseWhile() (ast.Node, error) {
	if !p.checkAdvance(lexer.TokWhile) {
		return nil, p.errorf("expected 'while'")
	}
	if !p.checkAdvance(lexer.TokLParen) {
		return nil, p.errorf("expected '(' after 'while'")
	}

	cond, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if !p.checkAdvance(lexer.TokRParen) {
		return nil, p.errorf("expected ')' after 'while' condition")
	}

	body, err := p.parseStmt()
	if err != nil {
		return nil, err
	}

	return &ast.While{Cond: cond, Body: body}, nil
}

func (p *Parser) parseReturn() (ast.Node, error) {
	if !p.checkAdvance(lexer.TokReturn) {
		return nil, p.errorf("expected 'return'")
	}

	stmt := &ast.Return{}

	if !p.check(lexer.TokSemicolon) && !p.check(lexer.TokRBrace) && !p.isAtEnd() {
		value, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		stmt.Value = value
	}

	return stmt, nil
}

// ----------------------------------------------------------------------------
// Expressions (precedence low to high, left-associative)
// ----------------------------------------------------------------------------

func (p *Parser) parseExpr() (ast.Node, error) {
	return p.parseAssignment()
}

func (p *Parser) parseAssignment() (ast.Node, error) {
	expr, err := p.parseLogicAndBitOps()
	if err != nil {
		return nil, err
	}

	for p.checkAdvanceAnyOf(lexer.TokEq, lexer.TokPlusEq, lexer.TokMinusEq, lexer.TokStarEq,
		lexer.TokSlashEq, lexer.TokAmpEq, lexer.TokPipeEq, lexer.TokAndEq, lexer.TokOrEq) {
		op := p.previous()

		rhs, err := p.parseLogicAndBitOps()
		if err != nil {
			return nil, err
		}

		if !ast.IsLvalue(expr) {
			return nil, &ParseError{Line: op.Line, Message: fmt.Sprintf("invalid LHS for assignment (%s)", expr.Kind())}
		}
		expr = &ast.Assign{Op: op, LHS: expr, RHS: rhs}
	}

	return expr, nil
}

func (p *Parser) parseLogicAndBitOps() (ast.Node, error) {
	return p.parseBinaryLevel(p.parseEquality, lexer.TokAndAnd, lexer.TokOrOr, lexer.TokAmp, lexer.TokPipe)
}

func (p *Parser) parseEquality() (ast.Node, error) {
	return p.parseBinaryLevel(p.parseComparison, lexer.TokEqEq, lexer.TokBangEq)
}

func (p *Parser) parseComparison() (ast.Node, error) {
	return p.parseBinaryLevel(p.parseTerm, lexer.TokLt, lexer.TokLtEq, lexer.TokGt, lexer.TokGtEq)
}

func (p *Parser) parseTerm() (ast.Node, error) {
	return p.parseBinaryLevel(p.parseFactor, lexer.TokPlus, lexer.TokMinus)
}

func (p *Parser) parseFactor() (ast.Node, error) {
	return p.parseBinaryLevel(p.parseCast, lexer.TokStar, lexer.TokSlash)
}

func (p *Parser) parseBinaryLevel(next func() (ast.Node, error), ops ...lexer.TokenKind) (ast.Node, error) {
	expr, err := next()
	if err != nil {
		return nil, err
	}

	for p.checkAdvanceAnyOf(ops...) {
		op := p.previous()
		rhs, err := next()
		if err != nil {
			return nil, err
		}
		expr = &ast.Binary{Op: op, LHS: expr, RHS: rhs}
	}

	return expr, nil
}

func (p *Parser) parseCast() (ast.Node, error) {
	expr, err := p.parseUnary()
	if err != nil {
		return nil, err
	}

	if p.checkAdvance(lexer.TokAs) {
		typ, err := p.parseType()
		if err != nil {
			return nil, err
		}
		return &ast.Cast{Expr: expr, Type: typ}, nil
	}

	return expr, nil
}

func (p *Parser) parseUnary() (ast.Node, error) {
	if p.checkAdvanceAnyOf(lexer.TokBang, lexer.TokMinus, lexer.TokAmp, lexer.TokStar) {
		op := p.previous()
		rhs, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &ast.Unary{Op: op, RHS: rhs}, nil
	}

	return p.parseSubscript()
}

func (p *Parser) parseSubscript() (ast.Node, error) {
	expr, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	for p.checkAdvance(lexer.TokLBracket) {
		index, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if !p.checkAdvance(lexer.TokRBracket) {
			return nil, p.errorf("missing closing ']' in subscript")
		}
		expr = &ast.Subscript{Base: expr, Index: index}
	}

	return expr, nil
}

func (p *Parser) parsePrimary() (ast.Node, error) {
	switch {
	case p.checkAdvance(lexer.TokNumber):
		return parseNumber(p.previous())

	case p.checkAdvance(lexer.TokString):
		return &ast.String{Value: p.previous().Text}, nil

	case p.checkAdvance(lexer.TokChar):
		return ast.IntNumber(int64(p.previous().Text[0])), nil

	case p.checkAdvance(lexer.TokLParen):
		expr, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if !p.checkAdvance(lexer.TokRParen) {
			return nil, p.errorf("expected ')' after expression")
		}
		return expr, nil
	}

	return p.parseLvalueOrCall()
}

// parseLvalueOrCall parses an identifier (or self), a chain of '.'/'->'
// accessors, then optionally a call argument list. The chain nests
// left-associatively and each access node takes the kind of its own
// operator ('->' by-pointer, '.' by-value); an earlier '->' in the chain
// does not make a later '.' node pointer-kind.
func (p *Parser) parseLvalueOrCall() (ast.Node, error) {
	var expr ast.Node

	switch {
	case p.checkAdvance(lexer.TokSelf):
		expr = &ast.Identifier{Name: "self"}
	case p.check(lexer.TokIdentifier):
		id, err := p.parseIdentifier("")
		if err != nil {
			return nil, err
		}
		expr = id
	default:
		return nil, p.errorf("unexpected token '%s', expected identifier", p.current())
	}

	for p.checkAnyOf(lexer.TokDot, lexer.TokArrow) {
		access := ast.ByValue
		if p.advance().Is(lexer.TokArrow) {
			access = ast.ByPointer
		}

		member, err := p.parseIdentifier("for member access")
		if err != nil {
			return nil, err
		}
		expr = &ast.MemberAccess{Access: access, LHS: expr, Member: member}
	}

	if p.check(lexer.TokLParen) {
		return p.parseCallArgs(expr)
	}

	return expr, nil
}

func (p *Parser) parseCallArgs(callee ast.Node) (ast.Node, error) {
	if !p.checkAdvance(lexer.TokLParen) {
		return nil, p.errorf("expected '(' after function name")
	}

	call := &ast.Call{Callee: callee}

	if !p.check(lexer.TokRParen) {
		for {
			if p.isAtEnd() || p.check(lexer.TokRParen) {
				break
			}
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)
			if !p.checkAdvance(lexer.TokComma) {
				break
			}
		}
	}

	if !p.checkAdvance(lexer.TokRParen) {
		return nil, p.errorf("expected ')' after function arguments")
	}

	return call, nil
}

// parseNumber converts a NUMBER token into a literal node. Integer bases:
// 0x (hex), 0b (binary), 0o (octal), or 0 followed by a digit (octal);
// a '.' anywhere makes it a float.
func parseNumber(tok lexer.Token) (ast.Node, error) {
	text := tok.Text

	if strings.ContainsRune(text, '.') {
		v, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, &ParseError{Line: tok.Line, Message: fmt.Sprintf("invalid number literal '%s'", text)}
		}
		return ast.FloatNumber(v), nil
	}

	base := 10
	if len(text) > 1 && text[0] == '0' {
		switch text[1] {
		case 'x':
			base, text = 16, text[2:]
		case 'b':
			base, text = 2, text[2:]
		case 'o':
			base, text = 8, text[2:]
		default:
			base, text = 8, text[1:]
		}
	}

	v, err := strconv.ParseInt(text, base, 64)
	if err != nil {
		return nil, &ParseError{Line: tok.Line, Message: fmt.Sprintf("invalid number literal '%s'", tok.Text)}
	}
	return ast.IntNumber(v), nil
}
