// Package parser implements glox's recursive-descent expression/statement
// parser.
//
// Parser Architecture:
//
// The parser uses recursive descent for statements and Pratt (precedence
// climbing) parsing for expressions:
//  1. Each grammar rule corresponds to a parsing function.
//  2. The parser looks ahead one token (via peekTok) to decide what to parse.
//  3. parsePrecedence walks operators by binding power, dispatching to
//     prefix and infix parse functions with a switch on the token type.
//
// Token Management:
//
// The parser maintains two tokens at all times:
//   - curTok: the current token being examined
//   - peekTok: the next token (one token lookahead)
//
// Error Handling:
//
// The parser accumulates errors in the `errors` slice rather than stopping
// at the first error, then synchronizes to the next statement boundary
// (the next semicolon or a statement-starting keyword) so later real errors
// in the same source are still reported in one pass — matching the
// panic-mode recovery a single-pass Lox compiler performs inline.
//
// Grammar Overview (simplified):
//
//	Program      := Declaration* EOF
//	Declaration  := ClassDecl | FunDecl | VarDecl | Statement
//	Statement    := ExprStmt | PrintStmt | Block | If | While | For | Return
//	Expression   := Assignment
//	Assignment   := (Call ".")? IDENTIFIER "=" Assignment | LogicOr
//	LogicOr      := LogicAnd ("or" LogicAnd)*
//	LogicAnd     := Equality ("and" Equality)*
//	Equality     := Comparison (("==" | "!=") Comparison)*
//	Comparison   := Term ((">" | ">=" | "<" | "<=") Term)*
//	Term         := Factor (("+" | "-") Factor)*
//	Factor       := Unary (("*" | "/") Unary)*
//	Unary        := ("!" | "-") Unary | Call
//	Call         := Primary ("(" Arguments? ")" | "." IDENTIFIER)*
//	Primary      := NUMBER | STRING | "true" | "false" | "nil" | "this"
//	              | "(" Expression ")" | IDENTIFIER | "super" "." IDENTIFIER
package parser

import (
	"fmt"
	"strconv"

	"github.com/kristofer/glox/pkg/ast"
	"github.com/kristofer/glox/pkg/lexer"
)

// precedence levels, lowest to highest.
const (
	precNone       = iota
	precAssignment // =
	precOr         // or
	precAnd        // and
	precEquality   // == !=
	precComparison // < > <= >=
	precTerm       // + -
	precFactor     // * /
	precUnary      // ! -
	precCall       // . ()
)

var precedences = map[lexer.TokenType]int{
	lexer.TokenEqual:        precAssignment,
	lexer.TokenOr:           precOr,
	lexer.TokenAnd:          precAnd,
	lexer.TokenEqualEqual:   precEquality,
	lexer.TokenBangEqual:    precEquality,
	lexer.TokenLess:         precComparison,
	lexer.TokenLessEqual:    precComparison,
	lexer.TokenGreater:      precComparison,
	lexer.TokenGreaterEqual: precComparison,
	lexer.TokenPlus:         precTerm,
	lexer.TokenMinus:        precTerm,
	lexer.TokenStar:         precFactor,
	lexer.TokenSlash:        precFactor,
	lexer.TokenLParen:       precCall,
	lexer.TokenDot:          precCall,
}

// Parser is glox's stateful, single-use recursive-descent parser: create a
// new one for each source file or REPL line.
type Parser struct {
	l       *lexer.Lexer
	curTok  lexer.Token
	peekTok lexer.Token
	errors  []string
}

// New creates a Parser over source, priming the two-token lookahead
// window.
func New(source string) *Parser {
	p := &Parser{l: lexer.New(source)}
	p.advance()
	p.advance()
	return p
}

// Errors returns every syntax error accumulated during Parse.
func (p *Parser) Errors() []string { return p.errors }

func (p *Parser) advance() {
	p.curTok = p.peekTok
	p.peekTok = p.l.NextToken()
	if p.peekTok.Type == lexer.TokenIllegal {
		p.errorAt(p.peekTok, p.peekTok.Lexeme)
	}
}

func (p *Parser) check(t lexer.TokenType) bool { return p.curTok.Type == t }

func (p *Parser) match(t lexer.TokenType) bool {
	if !p.check(t) {
		return false
	}
	p.advance()
	return true
}

func (p *Parser) consume(t lexer.TokenType, message string) lexer.Token {
	if p.check(t) {
		tok := p.curTok
		p.advance()
		return tok
	}
	p.errorAt(p.curTok, message)
	return p.curTok
}

func (p *Parser) errorAt(tok lexer.Token, message string) {
	where := "at end"
	if tok.Type != lexer.TokenEOF {
		where = fmt.Sprintf("at '%s'", tok.Lexeme)
	}
	p.errors = append(p.errors, fmt.Sprintf("[line %d] Error %s: %s", tok.Line, where, message))
}

// synchronize discards tokens until it reaches a likely statement
// boundary, so one syntax error doesn't cascade into spurious follow-on
// errors.
func (p *Parser) synchronize() {
	for p.curTok.Type != lexer.TokenEOF {
		if p.curTok.Type == lexer.TokenSemicolon {
			p.advance()
			return
		}
		switch p.curTok.Type {
		case lexer.TokenClass, lexer.TokenFun, lexer.TokenVar, lexer.TokenFor,
			lexer.TokenIf, lexer.TokenWhile, lexer.TokenPrint, lexer.TokenReturn:
			return
		}
		p.advance()
	}
}

// Parse runs the parser to completion, returning the program and true on
// success, or a partial program and false if any syntax errors were
// accumulated (retrievable via Errors).
func (p *Parser) Parse() (*ast.Program, bool) {
	program := &ast.Program{}
	for p.curTok.Type != lexer.TokenEOF {
		program.Statements = append(program.Statements, p.declaration())
	}
	return program, len(p.errors) == 0
}

// --- Declarations --------------------------------------------------------

func (p *Parser) declaration() ast.Statement {
	errorsBefore := len(p.errors)
	var stmt ast.Statement
	switch {
	case p.match(lexer.TokenClass):
		stmt = p.classDeclaration()
	case p.match(lexer.TokenFun):
		stmt = p.function("function")
	case p.match(lexer.TokenVar):
		stmt = p.varDeclaration()
	default:
		stmt = p.statement()
	}
	if len(p.errors) > errorsBefore {
		p.synchronize()
	}
	return stmt
}

func (p *Parser) classDeclaration() ast.Statement {
	tok := p.curTok
	name := p.consume(lexer.TokenIdentifier, "Expect class name.")

	var superclass *ast.Variable
	if p.match(lexer.TokenLess) {
		superTok := p.consume(lexer.TokenIdentifier, "Expect superclass name.")
		superclass = &ast.Variable{Token: superTok, Name: superTok.Lexeme}
	}

	p.consume(lexer.TokenLBrace, "Expect '{' before class body.")
	var methods []*ast.FunctionStmt
	for !p.check(lexer.TokenRBrace) && p.curTok.Type != lexer.TokenEOF {
		methods = append(methods, p.function("method"))
	}
	p.consume(lexer.TokenRBrace, "Expect '}' after class body.")

	return &ast.ClassStmt{Token: tok, Name: name.Lexeme, Superclass: superclass, Methods: methods}
}

func (p *Parser) function(kind string) *ast.FunctionStmt {
	tok := p.curTok
	name := p.consume(lexer.TokenIdentifier, "Expect "+kind+" name.")
	p.consume(lexer.TokenLParen, "Expect '(' after "+kind+" name.")

	var params []string
	if !p.check(lexer.TokenRParen) {
		for {
			if len(params) >= 255 {
				p.errorAt(p.curTok, "Can't have more than 255 parameters.")
			}
			params = append(params, p.consume(lexer.TokenIdentifier, "Expect parameter name.").Lexeme)
			if !p.match(lexer.TokenComma) {
				break
			}
		}
	}
	p.consume(lexer.TokenRParen, "Expect ')' after parameters.")
	p.consume(lexer.TokenLBrace, "Expect '{' before "+kind+" body.")
	body := p.block()

	return &ast.FunctionStmt{Token: tok, Name: name.Lexeme, Params: params, Body: body}
}

func (p *Parser) varDeclaration() ast.Statement {
	tok := p.curTok
	name := p.consume(lexer.TokenIdentifier, "Expect variable name.")

	var initializer ast.Expression
	if p.match(lexer.TokenEqual) {
		initializer = p.expression()
	}
	p.consume(lexer.TokenSemicolon, "Expect ';' after variable declaration.")
	return &ast.VarStmt{Token: tok, Name: name.Lexeme, Initializer: initializer}
}

// --- Statements ------------------------------------------------------------

func (p *Parser) statement() ast.Statement {
	switch {
	case p.match(lexer.TokenPrint):
		return p.printStatement()
	case p.match(lexer.TokenFor):
		return p.forStatement()
	case p.match(lexer.TokenIf):
		return p.ifStatement()
	case p.match(lexer.TokenReturn):
		return p.returnStatement()
	case p.match(lexer.TokenWhile):
		return p.whileStatement()
	case p.match(lexer.TokenLBrace):
		tok := p.curTok
		return &ast.BlockStmt{Token: tok, Statements: p.block()}
	default:
		return p.expressionStatement()
	}
}

func (p *Parser) printStatement() ast.Statement {
	tok := p.curTok
	value := p.expression()
	p.consume(lexer.TokenSemicolon, "Expect ';' after value.")
	return &ast.PrintStmt{Token: tok, Expression: value}
}

func (p *Parser) returnStatement() ast.Statement {
	tok := p.curTok
	var value ast.Expression
	if !p.check(lexer.TokenSemicolon) {
		value = p.expression()
	}
	p.consume(lexer.TokenSemicolon, "Expect ';' after return value.")
	return &ast.ReturnStmt{Token: tok, Value: value}
}

func (p *Parser) whileStatement() ast.Statement {
	tok := p.curTok
	p.consume(lexer.TokenLParen, "Expect '(' after 'while'.")
	condition := p.expression()
	p.consume(lexer.TokenRParen, "Expect ')' after condition.")
	body := p.statement()
	return &ast.WhileStmt{Token: tok, Condition: condition, Body: body}
}

// forStatement desugars `for (init; cond; incr) body` into a BlockStmt
// wrapping init followed by a WhileStmt, so the compiler never needs its
// own FOR opcode handling (the bytecode interpreter has no FOR
// opcode — only JUMP/LOOP primitives, matching this desugaring).
func (p *Parser) forStatement() ast.Statement {
	tok := p.curTok
	p.consume(lexer.TokenLParen, "Expect '(' after 'for'.")

	var initializer ast.Statement
	switch {
	case p.match(lexer.TokenSemicolon):
		initializer = nil
	case p.match(lexer.TokenVar):
		initializer = p.varDeclaration()
	default:
		initializer = p.expressionStatement()
	}

	var condition ast.Expression
	if !p.check(lexer.TokenSemicolon) {
		condition = p.expression()
	}
	p.consume(lexer.TokenSemicolon, "Expect ';' after loop condition.")

	var increment ast.Expression
	if !p.check(lexer.TokenRParen) {
		increment = p.expression()
	}
	p.consume(lexer.TokenRParen, "Expect ')' after for clauses.")

	body := p.statement()

	if increment != nil {
		body = &ast.BlockStmt{Token: tok, Statements: []ast.Statement{
			body,
			&ast.ExpressionStmt{Token: tok, Expression: increment},
		}}
	}

	if condition == nil {
		condition = &ast.Literal{Token: tok, Value: true}
	}
	body = &ast.WhileStmt{Token: tok, Condition: condition, Body: body}

	if initializer != nil {
		body = &ast.BlockStmt{Token: tok, Statements: []ast.Statement{initializer, body}}
	}
	return body
}

func (p *Parser) ifStatement() ast.Statement {
	tok := p.curTok
	p.consume(lexer.TokenLParen, "Expect '(' after 'if'.")
	condition := p.expression()
	p.consume(lexer.TokenRParen, "Expect ')' after if condition.")

	thenBranch := p.statement()
	var elseBranch ast.Statement
	if p.match(lexer.TokenElse) {
		elseBranch = p.statement()
	}
	return &ast.IfStmt{Token: tok, Condition: condition, Then: thenBranch, Else: elseBranch}
}

func (p *Parser) block() []ast.Statement {
	var statements []ast.Statement
	for !p.check(lexer.TokenRBrace) && p.curTok.Type != lexer.TokenEOF {
		statements = append(statements, p.declaration())
	}
	p.consume(lexer.TokenRBrace, "Expect '}' after block.")
	return statements
}

func (p *Parser) expressionStatement() ast.Statement {
	tok := p.curTok
	expr := p.expression()
	p.consume(lexer.TokenSemicolon, "Expect ';' after expression.")
	return &ast.ExpressionStmt{Token: tok, Expression: expr}
}

// --- Expressions (Pratt parser) --------------------------------------------

func (p *Parser) expression() ast.Expression {
	return p.parsePrecedence(precAssignment)
}

func (p *Parser) parsePrecedence(minPrec int) ast.Expression {
	left := p.parsePrefix()
	if left == nil {
		return nil
	}

	for minPrec <= precedences[p.curTok.Type] {
		switch p.curTok.Type {
		case lexer.TokenEqual:
			left = p.finishAssignment(left)
		case lexer.TokenOr, lexer.TokenAnd:
			left = p.finishLogical(left)
		case lexer.TokenLParen:
			left = p.finishCall(left)
		case lexer.TokenDot:
			left = p.finishGetOrSet(left)
		default:
			left = p.finishBinary(left)
		}
	}
	return left
}

func (p *Parser) parsePrefix() ast.Expression {
	switch p.curTok.Type {
	case lexer.TokenNumber:
		return p.number()
	case lexer.TokenString:
		return p.stringLiteral()
	case lexer.TokenTrue:
		tok := p.curTok
		p.advance()
		return &ast.Literal{Token: tok, Value: true}
	case lexer.TokenFalse:
		tok := p.curTok
		p.advance()
		return &ast.Literal{Token: tok, Value: false}
	case lexer.TokenNil:
		tok := p.curTok
		p.advance()
		return &ast.Literal{Token: tok, Value: nil}
	case lexer.TokenThis:
		tok := p.curTok
		p.advance()
		return &ast.This{Token: tok}
	case lexer.TokenSuper:
		return p.super_()
	case lexer.TokenIdentifier:
		tok := p.curTok
		p.advance()
		return &ast.Variable{Token: tok, Name: tok.Lexeme}
	case lexer.TokenLParen:
		return p.grouping()
	case lexer.TokenBang, lexer.TokenMinus:
		return p.unary()
	default:
		p.errorAt(p.curTok, "Expect expression.")
		p.advance()
		return nil
	}
}

func (p *Parser) number() ast.Expression {
	tok := p.curTok
	value, err := strconv.ParseFloat(tok.Lexeme, 64)
	if err != nil {
		p.errorAt(tok, "Invalid number literal.")
	}
	p.advance()
	return &ast.Literal{Token: tok, Value: value}
}

func (p *Parser) stringLiteral() ast.Expression {
	tok := p.curTok
	// Lexeme includes the surrounding quotes; strip them.
	text := tok.Lexeme
	if len(text) >= 2 {
		text = text[1 : len(text)-1]
	}
	p.advance()
	return &ast.Literal{Token: tok, Value: text}
}

func (p *Parser) grouping() ast.Expression {
	tok := p.curTok
	p.advance() // '('
	expr := p.expression()
	p.consume(lexer.TokenRParen, "Expect ')' after expression.")
	return &ast.Grouping{Token: tok, Expression: expr}
}

func (p *Parser) unary() ast.Expression {
	tok := p.curTok
	op := tok.Type
	p.advance()
	operand := p.parsePrecedence(precUnary)
	return &ast.Unary{Token: tok, Operator: op, Operand: operand}
}

func (p *Parser) super_() ast.Expression {
	tok := p.curTok
	p.advance() // 'super'
	p.consume(lexer.TokenDot, "Expect '.' after 'super'.")
	method := p.consume(lexer.TokenIdentifier, "Expect superclass method name.")
	return &ast.Super{Token: tok, Method: method.Lexeme}
}

func (p *Parser) finishBinary(left ast.Expression) ast.Expression {
	tok := p.curTok
	op := tok.Type
	prec := precedences[op]
	p.advance()
	right := p.parsePrecedence(prec + 1)
	return &ast.Binary{Token: tok, Left: left, Operator: op, Right: right}
}

func (p *Parser) finishLogical(left ast.Expression) ast.Expression {
	tok := p.curTok
	op := tok.Type
	prec := precedences[op]
	p.advance()
	right := p.parsePrecedence(prec + 1)
	return &ast.Logical{Token: tok, Left: left, Operator: op, Right: right}
}

func (p *Parser) finishAssignment(left ast.Expression) ast.Expression {
	tok := p.curTok
	p.advance() // '='
	value := p.parsePrecedence(precAssignment)

	switch target := left.(type) {
	case *ast.Variable:
		return &ast.Assign{Token: tok, Name: target.Name, Value: value}
	case *ast.Get:
		return &ast.Set{Token: tok, Object: target.Object, Name: target.Name, Value: value}
	default:
		p.errorAt(tok, "Invalid assignment target.")
		return left
	}
}

func (p *Parser) finishCall(callee ast.Expression) ast.Expression {
	tok := p.curTok
	p.advance() // '('
	var args []ast.Expression
	if !p.check(lexer.TokenRParen) {
		for {
			if len(args) >= 255 {
				p.errorAt(p.curTok, "Can't have more than 255 arguments.")
			}
			args = append(args, p.expression())
			if !p.match(lexer.TokenComma) {
				break
			}
		}
	}
	p.consume(lexer.TokenRParen, "Expect ')' after arguments.")
	return &ast.Call{Token: tok, Callee: callee, Arguments: args}
}

func (p *Parser) finishGetOrSet(object ast.Expression) ast.Expression {
	tok := p.curTok
	p.advance() // '.'
	name := p.consume(lexer.TokenIdentifier, "Expect property name after '.'.")
	return &ast.Get{Token: tok, Object: object, Name: name.Lexeme}
}
