package parser

import (
	"testing"

	"github.com/kristofer/glox/pkg/ast"
)

func parseOK(t *testing.T, source string) *ast.Program {
	t.Helper()
	p := New(source)
	program, ok := p.Parse()
	if !ok {
		t.Fatalf("unexpected parse errors: %v", p.Errors())
	}
	return program
}

func TestParse_VarDeclaration(t *testing.T) {
	program := parseOK(t, `var a = 1 + 2;`)
	if len(program.Statements) != 1 {
		t.Fatalf("expected 1 statement, got %d", len(program.Statements))
	}
	stmt, ok := program.Statements[0].(*ast.VarStmt)
	if !ok {
		t.Fatalf("expected *ast.VarStmt, got %T", program.Statements[0])
	}
	if stmt.Name != "a" {
		t.Fatalf("expected name 'a', got %q", stmt.Name)
	}
	if _, ok := stmt.Initializer.(*ast.Binary); !ok {
		t.Fatalf("expected binary initializer, got %T", stmt.Initializer)
	}
}

func TestParse_Precedence(t *testing.T) {
	program := parseOK(t, `print 1 + 2 * 3;`)
	stmt := program.Statements[0].(*ast.PrintStmt)
	bin, ok := stmt.Expression.(*ast.Binary)
	if !ok {
		t.Fatalf("expected *ast.Binary at top, got %T", stmt.Expression)
	}
	if _, ok := bin.Right.(*ast.Binary); !ok {
		t.Fatalf("expected 2*3 grouped on the right, got %T", bin.Right)
	}
}

func TestParse_IfElse(t *testing.T) {
	program := parseOK(t, `if (a) print 1; else print 2;`)
	stmt, ok := program.Statements[0].(*ast.IfStmt)
	if !ok {
		t.Fatalf("expected *ast.IfStmt, got %T", program.Statements[0])
	}
	if stmt.Then == nil || stmt.Else == nil {
		t.Fatalf("expected both branches present")
	}
}

func TestParse_ForDesugarsToWhile(t *testing.T) {
	program := parseOK(t, `for (var i = 0; i < 10; i = i + 1) print i;`)
	block, ok := program.Statements[0].(*ast.BlockStmt)
	if !ok {
		t.Fatalf("expected desugared *ast.BlockStmt, got %T", program.Statements[0])
	}
	if len(block.Statements) != 2 {
		t.Fatalf("expected [init, while], got %d statements", len(block.Statements))
	}
	if _, ok := block.Statements[1].(*ast.WhileStmt); !ok {
		t.Fatalf("expected second statement to be *ast.WhileStmt, got %T", block.Statements[1])
	}
}

func TestParse_ClassWithSuperclassAndMethods(t *testing.T) {
	program := parseOK(t, `class B < A { m() { return super.m(); } }`)
	class, ok := program.Statements[0].(*ast.ClassStmt)
	if !ok {
		t.Fatalf("expected *ast.ClassStmt, got %T", program.Statements[0])
	}
	if class.Superclass == nil || class.Superclass.Name != "A" {
		t.Fatalf("expected superclass A, got %+v", class.Superclass)
	}
	if len(class.Methods) != 1 || class.Methods[0].Name != "m" {
		t.Fatalf("expected single method 'm', got %+v", class.Methods)
	}
}

func TestParse_CallAndPropertyAccess(t *testing.T) {
	program := parseOK(t, `a.b(1, 2).c;`)
	stmt := program.Statements[0].(*ast.ExpressionStmt)
	get, ok := stmt.Expression.(*ast.Get)
	if !ok {
		t.Fatalf("expected outer *ast.Get, got %T", stmt.Expression)
	}
	if get.Name != "c" {
		t.Fatalf("expected property 'c', got %q", get.Name)
	}
	call, ok := get.Object.(*ast.Call)
	if !ok {
		t.Fatalf("expected *ast.Call as object, got %T", get.Object)
	}
	if len(call.Arguments) != 2 {
		t.Fatalf("expected 2 arguments, got %d", len(call.Arguments))
	}
}

func TestParse_AssignmentToPropertyBuildsSet(t *testing.T) {
	program := parseOK(t, `a.b = 1;`)
	stmt := program.Statements[0].(*ast.ExpressionStmt)
	if _, ok := stmt.Expression.(*ast.Set); !ok {
		t.Fatalf("expected *ast.Set, got %T", stmt.Expression)
	}
}

func TestParse_InvalidAssignmentTargetReportsError(t *testing.T) {
	p := New(`1 = 2;`)
	_, ok := p.Parse()
	if ok {
		t.Fatalf("expected parse errors for invalid assignment target")
	}
}

func TestParse_MissingSemicolonReportsErrorAndRecovers(t *testing.T) {
	p := New(`var a = 1 var b = 2;`)
	program, ok := p.Parse()
	if ok {
		t.Fatalf("expected a syntax error")
	}
	if len(program.Statements) != 2 {
		t.Fatalf("expected parser to recover and still produce 2 statements, got %d", len(program.Statements))
	}
}
