package lexer

import "testing"

func TestNextToken_BasicTokens(t *testing.T) {
	input := `(){};,.-+/* ! != = == > >= < <=`

	tests := []struct {
		expectedType   TokenType
		expectedLexeme string
	}{
		{TokenLParen, "("},
		{TokenRParen, ")"},
		{TokenLBrace, "{"},
		{TokenRBrace, "}"},
		{TokenSemicolon, ";"},
		{TokenComma, ","},
		{TokenDot, "."},
		{TokenMinus, "-"},
		{TokenPlus, "+"},
		{TokenSlash, "/"},
		{TokenStar, "*"},
		{TokenBang, "!"},
		{TokenBangEqual, "!="},
		{TokenEqual, "="},
		{TokenEqualEqual, "=="},
		{TokenGreater, ">"},
		{TokenGreaterEqual, ">="},
		{TokenLess, "<"},
		{TokenLessEqual, "<="},
		{TokenEOF, ""},
	}

	l := New(input)
	for i, tt := range tests {
		tok := l.NextToken()
		if tok.Type != tt.expectedType {
			t.Fatalf("tests[%d] - type wrong. expected=%s, got=%s", i, tt.expectedType, tok.Type)
		}
		if tok.Lexeme != tt.expectedLexeme {
			t.Fatalf("tests[%d] - lexeme wrong. expected=%q, got=%q", i, tt.expectedLexeme, tok.Lexeme)
		}
	}
}

func TestNextToken_KeywordsAndIdentifiers(t *testing.T) {
	input := `var x = foo and bar or class else false for fun if nil print return super this true while`

	expected := []TokenType{
		TokenVar, TokenIdentifier, TokenEqual, TokenIdentifier, TokenAnd, TokenIdentifier,
		TokenOr, TokenClass, TokenElse, TokenFalse, TokenFor, TokenFun, TokenIf, TokenNil,
		TokenPrint, TokenReturn, TokenSuper, TokenThis, TokenTrue, TokenWhile, TokenEOF,
	}

	l := New(input)
	for i, want := range expected {
		tok := l.NextToken()
		if tok.Type != want {
			t.Fatalf("tests[%d] - type wrong. expected=%s, got=%s (%q)", i, want, tok.Type, tok.Lexeme)
		}
	}
}

func TestNextToken_NumbersAndStrings(t *testing.T) {
	input := `123 45.67 "hello world"`

	l := New(input)

	tok := l.NextToken()
	if tok.Type != TokenNumber || tok.Lexeme != "123" {
		t.Fatalf("unexpected token: %+v", tok)
	}
	tok = l.NextToken()
	if tok.Type != TokenNumber || tok.Lexeme != "45.67" {
		t.Fatalf("unexpected token: %+v", tok)
	}
	tok = l.NextToken()
	if tok.Type != TokenString || tok.Lexeme != `"hello world"` {
		t.Fatalf("unexpected token: %+v", tok)
	}
}

func TestNextToken_CommentsAndWhitespace(t *testing.T) {
	input := "// a comment\nvar a = 1; // trailing\nvar b = 2;"

	l := New(input)
	var types []TokenType
	for {
		tok := l.NextToken()
		types = append(types, tok.Type)
		if tok.Type == TokenEOF {
			break
		}
	}

	want := []TokenType{
		TokenVar, TokenIdentifier, TokenEqual, TokenNumber, TokenSemicolon,
		TokenVar, TokenIdentifier, TokenEqual, TokenNumber, TokenSemicolon,
		TokenEOF,
	}
	if len(types) != len(want) {
		t.Fatalf("got %d tokens, want %d: %v", len(types), len(want), types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("tests[%d] - type wrong. expected=%s, got=%s", i, want[i], types[i])
		}
	}
}

func TestNextToken_UnterminatedString(t *testing.T) {
	l := New(`"no closing quote`)
	tok := l.NextToken()
	if tok.Type != TokenIllegal {
		t.Fatalf("expected illegal token, got %s", tok.Type)
	}
}

func TestNextToken_LineTracking(t *testing.T) {
	l := New("var a = 1;\nvar b = 2;")
	var last Token
	for {
		tok := l.NextToken()
		if tok.Type == TokenVar && tok.Lexeme == "var" {
			last = tok
		}
		if tok.Type == TokenEOF {
			break
		}
	}
	if last.Line != 2 {
		t.Fatalf("expected second var on line 2, got line %d", last.Line)
	}
}
