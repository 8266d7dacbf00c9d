package compiler_test

import (
	"testing"

	"github.com/kristofer/glox/pkg/bytecode"
	"github.com/kristofer/glox/pkg/compiler"
	"github.com/kristofer/glox/pkg/object"
	"github.com/kristofer/glox/pkg/vm"
)

func compileOK(t *testing.T, source string) *compiledFn {
	t.Helper()
	heap := vm.New()
	fn, ok := compiler.Compile(source, heap)
	if !ok {
		t.Fatalf("unexpected compile errors for %q", source)
	}
	return &compiledFn{code: fn.Chunk.Code, fn: fn}
}

// compiledFn is a small assertion helper over a chunk's raw byte stream,
// since the compiler only exposes the finished *object.Function.
type compiledFn struct {
	code []byte
	fn   *object.Function
}

// withNested returns a helper over this function's code followed by the
// code of every function constant nested in it, recursively, for
// instructions that live in a nested function's own chunk.
func (c *compiledFn) withNested() *compiledFn {
	all := &compiledFn{code: append([]byte(nil), c.fn.Chunk.Code...), fn: c.fn}
	for _, k := range c.fn.Chunk.Constants {
		if k.IsObj() {
			if inner, ok := k.AsObj().(*object.Function); ok {
				all.code = append(all.code, (&compiledFn{code: inner.Chunk.Code, fn: inner}).withNested().code...)
			}
		}
	}
	return all
}

func (c *compiledFn) contains(op bytecode.Op) bool {
	for _, b := range c.code {
		if bytecode.Op(b) == op {
			return true
		}
	}
	return false
}

func (c *compiledFn) count(op bytecode.Op) int {
	n := 0
	for _, b := range c.code {
		if bytecode.Op(b) == op {
			n++
		}
	}
	return n
}

func TestCompile_GlobalVarAndConstant(t *testing.T) {
	fn := compileOK(t, `var a = 1;`)
	if !fn.contains(bytecode.OpConstant) {
		t.Fatalf("expected OP_CONSTANT for the literal 1, got % x", fn.code)
	}
	if !fn.contains(bytecode.OpDefineGlobal) {
		t.Fatalf("expected OP_DEFINE_GLOBAL, got % x", fn.code)
	}
}

func TestCompile_LocalDoesNotEmitDefineGlobal(t *testing.T) {
	fn := compileOK(t, `{ var a = 1; print a; }`)
	if fn.contains(bytecode.OpDefineGlobal) {
		t.Fatalf("locals must not emit OP_DEFINE_GLOBAL, got % x", fn.code)
	}
	if !fn.contains(bytecode.OpGetLocal) {
		t.Fatalf("expected OP_GET_LOCAL reading back the block-scoped local, got % x", fn.code)
	}
}

func TestCompile_IfElseEmitsBothJumps(t *testing.T) {
	fn := compileOK(t, `if (true) print 1; else print 2;`)
	if fn.count(bytecode.OpJumpIfFalse) != 1 {
		t.Fatalf("expected exactly one OP_JUMP_IF_FALSE, got % x", fn.code)
	}
	if fn.count(bytecode.OpJump) != 1 {
		t.Fatalf("expected exactly one OP_JUMP (the jump over the else branch), got % x", fn.code)
	}
}

func TestCompile_WhileEmitsLoop(t *testing.T) {
	fn := compileOK(t, `while (true) print 1;`)
	if !fn.contains(bytecode.OpLoop) {
		t.Fatalf("expected OP_LOOP closing the while body, got % x", fn.code)
	}
	if !fn.contains(bytecode.OpJumpIfFalse) {
		t.Fatalf("expected OP_JUMP_IF_FALSE guarding the condition, got % x", fn.code)
	}
}

func TestCompile_ForDesugarsAndStillLoops(t *testing.T) {
	fn := compileOK(t, `for (var i = 0; i < 3; i = i + 1) print i;`)
	if !fn.contains(bytecode.OpLoop) {
		t.Fatalf("expected desugared for-loop to still emit OP_LOOP, got % x", fn.code)
	}
}

func TestCompile_NestedFunctionEmitsClosureWithUpvalue(t *testing.T) {
	fn := compileOK(t, `
		fun outer() {
			var x = 1;
			fun inner() {
				return x;
			}
			return inner;
		}
	`)
	all := fn.withNested()
	if all.count(bytecode.OpClosure) != 2 {
		t.Fatalf("expected OP_CLOSURE emitted for both outer and inner, got % x", all.code)
	}
	if !all.contains(bytecode.OpGetUpvalue) {
		t.Fatalf("expected inner to read x through OP_GET_UPVALUE, got % x", all.code)
	}
}

func TestCompile_ClassWithInheritanceEmitsInheritAndMethod(t *testing.T) {
	fn := compileOK(t, `
		class A { greet() { return "hi"; } }
		class B < A {
			greet() { return super.greet(); }
		}
	`)
	if fn.count(bytecode.OpClass) != 2 {
		t.Fatalf("expected one OP_CLASS per class, got % x", fn.code)
	}
	if !fn.contains(bytecode.OpInherit) {
		t.Fatalf("expected OP_INHERIT for `B < A`, got % x", fn.code)
	}
	if fn.count(bytecode.OpMethod) != 2 {
		t.Fatalf("expected one OP_METHOD per method, got % x", fn.code)
	}
	if !fn.withNested().contains(bytecode.OpSuperInvoke) {
		t.Fatalf("expected `super.greet()` in B's greet body to compile to OP_SUPER_INVOKE, got % x", fn.withNested().code)
	}
}

func TestCompile_MethodCallCompilesToInvoke(t *testing.T) {
	fn := compileOK(t, `
		class A { greet() { return "hi"; } }
		var a = A();
		print a.greet();
	`)
	if !fn.contains(bytecode.OpInvoke) {
		t.Fatalf("expected `a.greet()` to compile to OP_INVOKE, got % x", fn.code)
	}
}

func TestCompile_NotEqualCompilesToEqualThenNot(t *testing.T) {
	fn := compileOK(t, `print 1 != 2;`)
	code := fn.code
	found := false
	for i := 0; i+1 < len(code); i++ {
		if bytecode.Op(code[i]) == bytecode.OpEqual && bytecode.Op(code[i+1]) == bytecode.OpNot {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected `!=` to compile as adjacent OP_EQUAL, OP_NOT, got % x", code)
	}
}

func TestCompile_InvalidSuperOutsideClassIsAnError(t *testing.T) {
	heap := vm.New()
	_, ok := compiler.Compile(`fun f() { return super.m(); }`, heap)
	if ok {
		t.Fatalf("expected an error compiling `super` outside of a class")
	}
}

func TestCompile_ReturnValueFromInitializerIsAnError(t *testing.T) {
	heap := vm.New()
	_, ok := compiler.Compile(`class A { init() { return 1; } }`, heap)
	if ok {
		t.Fatalf("expected an error returning a value from init()")
	}
}

func TestCompile_TopLevelReturnIsAnError(t *testing.T) {
	heap := vm.New()
	_, ok := compiler.Compile(`return 1;`, heap)
	if ok {
		t.Fatalf("expected an error returning from top-level code")
	}
}

func TestCompile_SyntaxErrorFromParserFailsCompile(t *testing.T) {
	heap := vm.New()
	_, ok := compiler.Compile(`var a = ;`, heap)
	if ok {
		t.Fatalf("expected a parse error to propagate as a failed compile")
	}
}
