// Package compiler compiles a parsed glox program into a bytecode
// *object.Function the core can execute.
//
// The compiler is kept as a distinct external collaborator: the core
// only requires that it answer `Compile(source) -> (Function, ok)`. The
// compiler is a tree-walk over pkg/ast, not a single-pass parser/emitter
// like clox's own — glox runs the parser to completion first, then walks
// the resulting AST — but it follows clox's compiler.c in every way that
// matters to the VM: one Compiler struct per function body, chained
// through `enclosing`, tracking locals/upvalues/scope depth exactly as
// the interpreter needs so the emitted CLOSURE/GET_UPVALUE bytecode
// matches what pkg/vm expects.
//
// Compiler lifetime and GC roots: a fresh *object.Function is allocated
// through the Heap for every nested function before its body is walked,
// and is pushed as a compiler root for the duration — a collection
// triggered by CopyString or NewFunction while compiling a nested
// function must still see every enclosing, not-yet-linked Function.
package compiler

import (
	"fmt"
	"os"

	"github.com/kristofer/glox/pkg/ast"
	"github.com/kristofer/glox/pkg/bytecode"
	"github.com/kristofer/glox/pkg/lexer"
	"github.com/kristofer/glox/pkg/object"
	"github.com/kristofer/glox/pkg/parser"
)

// functionType distinguishes the four contexts a function body is
// compiled in, since each returns differently and has a different
// implicit slot-0 binding.
type functionType int

const (
	typeFunction functionType = iota
	typeInitializer
	typeMethod
	typeScript
)

// local is one entry in a function compiler's local-variable list, in
// declaration order. depth is -1 between declaration and initialization
// (so a local can't refer to itself in its own initializer); isCaptured
// marks a local some nested closure references, so popping it out of
// scope must go through CLOSE_UPVALUE rather than a bare POP.
type local struct {
	name       string
	depth      int
	isCaptured bool
}

// upvalueRef is a function compiler's record of one upvalue it captured,
// mirroring the bytecode CLOSURE operand pairs the enclosing compiler
// must emit.
type upvalueRef struct {
	index   byte
	isLocal bool
}

// funcState is the compiler state for a single function body, chained to
// its lexically enclosing function via enclosing — the same shape as
// clox's Compiler linked through `enclosing`, reborn as an explicit Go
// struct instead of a C stack of locals.
type funcState struct {
	enclosing *funcState
	function  *object.Function
	fnType    functionType

	locals     []local
	upvalues   []upvalueRef
	scopeDepth int
}

// classState tracks the class currently being compiled, chained through
// enclosing so a class declared inside a method body resolves
// `super`/`this` against itself, and the outer class is restored after it.
type classState struct {
	enclosing     *classState
	hasSuperclass bool
}

// Compiler walks one parsed program (or, recursively, one function body)
// and emits bytecode into the current funcState's chunk.
type Compiler struct {
	heap         object.Heap
	current      *funcState
	currentClass *classState
	hadError     bool
}

// Compile parses source and compiles it into a top-level script Function,
// per the `compile(source) -> option<Function>` collaborator
// interface. heap is the VM implementing object.Heap.
func Compile(source string, heap object.Heap) (*object.Function, bool) {
	p := parser.New(source)
	program, ok := p.Parse()
	if !ok {
		for _, e := range p.Errors() {
			fmt.Fprintln(os.Stderr, e)
		}
		return nil, false
	}

	c := &Compiler{heap: heap}
	c.beginFunction(typeScript, "")
	for _, stmt := range program.Statements {
		c.compileStatement(stmt)
	}
	fn, _ := c.endFunction()
	return fn, !c.hadError
}

func (c *Compiler) error(line int, format string, args ...interface{}) {
	c.hadError = true
	fmt.Fprintf(os.Stderr, "[line %d] Error: %s\n", line, fmt.Sprintf(format, args...))
}

// --- function compiler lifecycle -------------------------------------------

func (c *Compiler) beginFunction(fnType functionType, name string) {
	fn := c.heap.NewFunction()
	if name != "" {
		fn.Name = c.heap.CopyString([]byte(name))
	}
	c.heap.PushCompilerRoot(fn)

	fs := &funcState{enclosing: c.current, function: fn, fnType: fnType, scopeDepth: 0}
	// Slot 0 is reserved for the callee/receiver: named
	// "this" for methods so method bodies can resolve it as a local, left
	// anonymous everywhere else.
	slotZero := ""
	if fnType == typeMethod || fnType == typeInitializer {
		slotZero = "this"
	}
	fs.locals = append(fs.locals, local{name: slotZero, depth: 0})
	c.current = fs
}

// endFunction emits the implicit trailing return, pops the compiler-root
// stack, and restores the enclosing function compiler, returning the
// finished Function and the upvalues it captured (for the enclosing
// compiler to emit CLOSURE operand pairs for).
func (c *Compiler) endFunction() (*object.Function, []upvalueRef) {
	if c.current.fnType == typeInitializer {
		// `init` methods implicitly return the receiver, not nil.
		c.emitOpByte(bytecode.OpGetLocal, 0, 0)
	} else {
		c.emitOp(bytecode.OpNil, 0)
	}
	c.emitOp(bytecode.OpReturn, 0)

	fn := c.current.function
	fn.UpvalueCount = len(c.current.upvalues)
	upvalues := c.current.upvalues

	c.heap.PopCompilerRoot()
	c.current = c.current.enclosing
	return fn, upvalues
}

func (c *Compiler) chunk() *object.Chunk { return &c.current.function.Chunk }

// --- byte emission -----------------------------------------------------

func (c *Compiler) emitByte(b byte, line int) { c.chunk().Write(b, line) }
func (c *Compiler) emitOp(op bytecode.Op, line int) { c.chunk().WriteOp(op, line) }

func (c *Compiler) emitOpByte(op bytecode.Op, operand byte, line int) {
	c.emitOp(op, line)
	c.emitByte(operand, line)
}

func (c *Compiler) makeConstant(v object.Value) byte {
	idx := c.chunk().AddConstant(v)
	if idx > 255 {
		c.error(0, "Too many constants in one chunk.")
		return 0
	}
	return byte(idx)
}

func (c *Compiler) identifierConstant(name string) byte {
	return c.makeConstant(object.FromObj(c.heap.CopyString([]byte(name))))
}

// emitJump writes op followed by a two-byte placeholder offset, returning
// the offset of the first placeholder byte for patchJump to fill in.
func (c *Compiler) emitJump(op bytecode.Op, line int) int {
	c.emitOp(op, line)
	c.emitByte(0xff, line)
	c.emitByte(0xff, line)
	return len(c.chunk().Code) - 2
}

func (c *Compiler) patchJump(offset int) {
	jump := len(c.chunk().Code) - offset - 2
	if jump > 0xffff {
		c.error(0, "Too much code to jump over.")
	}
	c.chunk().Code[offset] = byte(jump >> 8)
	c.chunk().Code[offset+1] = byte(jump)
}

func (c *Compiler) emitLoop(loopStart int, line int) {
	c.emitOp(bytecode.OpLoop, line)
	offset := len(c.chunk().Code) - loopStart + 2
	if offset > 0xffff {
		c.error(line, "Loop body too large.")
	}
	c.emitByte(byte(offset>>8), line)
	c.emitByte(byte(offset), line)
}

// --- scope & local/upvalue resolution --------------------------------------

func (c *Compiler) beginScope() { c.current.scopeDepth++ }

func (c *Compiler) endScope(line int) {
	c.current.scopeDepth--
	locals := c.current.locals
	for len(locals) > 0 && locals[len(locals)-1].depth > c.current.scopeDepth {
		if locals[len(locals)-1].isCaptured {
			c.emitOp(bytecode.OpCloseUpvalue, line)
		} else {
			c.emitOp(bytecode.OpPop, line)
		}
		locals = locals[:len(locals)-1]
	}
	c.current.locals = locals
}

func (c *Compiler) addLocal(name string, line int) {
	if len(c.current.locals) >= 256 {
		c.error(line, "Too many local variables in function.")
		return
	}
	for i := len(c.current.locals) - 1; i >= 0; i-- {
		l := c.current.locals[i]
		if l.depth != -1 && l.depth < c.current.scopeDepth {
			break
		}
		if l.name == name {
			c.error(line, "Already a variable with this name in this scope.")
		}
	}
	c.current.locals = append(c.current.locals, local{name: name, depth: -1})
}

func (c *Compiler) markInitialized() {
	if c.current.scopeDepth == 0 {
		return
	}
	c.current.locals[len(c.current.locals)-1].depth = c.current.scopeDepth
}

func resolveLocal(fs *funcState, name string) int {
	for i := len(fs.locals) - 1; i >= 0; i-- {
		if fs.locals[i].name == name {
			return i
		}
	}
	return -1
}

func addUpvalue(fs *funcState, index byte, isLocal bool) int {
	for i, up := range fs.upvalues {
		if up.index == index && up.isLocal == isLocal {
			return i
		}
	}
	fs.upvalues = append(fs.upvalues, upvalueRef{index: index, isLocal: isLocal})
	return len(fs.upvalues) - 1
}

// resolveUpvalue recursively walks the enclosing function chain. The
// VM's captureUpvalue is the runtime half of this mechanism; this is its
// compile-time counterpart, deciding which CLOSURE operand pairs to emit
// so a doubly-nested closure can still reach a grandparent's local.
func resolveUpvalue(fs *funcState, name string) int {
	if fs.enclosing == nil {
		return -1
	}
	if local := resolveLocal(fs.enclosing, name); local != -1 {
		fs.enclosing.locals[local].isCaptured = true
		return addUpvalue(fs, byte(local), true)
	}
	if up := resolveUpvalue(fs.enclosing, name); up != -1 {
		return addUpvalue(fs, byte(up), false)
	}
	return -1
}

// --- statements --------------------------------------------------------

func (c *Compiler) compileStatement(stmt ast.Statement) {
	switch s := stmt.(type) {
	case *ast.ExpressionStmt:
		c.compileExpression(s.Expression)
		c.emitOp(bytecode.OpPop, s.Line())
	case *ast.PrintStmt:
		c.compileExpression(s.Expression)
		c.emitOp(bytecode.OpPrint, s.Line())
	case *ast.VarStmt:
		c.compileVarStmt(s)
	case *ast.BlockStmt:
		c.beginScope()
		for _, inner := range s.Statements {
			c.compileStatement(inner)
		}
		c.endScope(s.Line())
	case *ast.IfStmt:
		c.compileIfStmt(s)
	case *ast.WhileStmt:
		c.compileWhileStmt(s)
	case *ast.FunctionStmt:
		c.compileFunctionDeclaration(s)
	case *ast.ReturnStmt:
		c.compileReturnStmt(s)
	case *ast.ClassStmt:
		c.compileClassStmt(s)
	default:
		c.error(stmt.Line(), "unknown statement type %T", stmt)
	}
}

func (c *Compiler) declareVariable(name string, line int) {
	if c.current.scopeDepth == 0 {
		return
	}
	c.addLocal(name, line)
}

func (c *Compiler) defineVariable(nameConstant byte, line int) {
	if c.current.scopeDepth > 0 {
		c.markInitialized()
		return
	}
	c.emitOpByte(bytecode.OpDefineGlobal, nameConstant, line)
}

func (c *Compiler) compileVarStmt(s *ast.VarStmt) {
	c.declareVariable(s.Name, s.Line())
	nameConstant := c.identifierConstant(s.Name)

	if s.Initializer != nil {
		c.compileExpression(s.Initializer)
	} else {
		c.emitOp(bytecode.OpNil, s.Line())
	}
	c.defineVariable(nameConstant, s.Line())
}

func (c *Compiler) compileIfStmt(s *ast.IfStmt) {
	c.compileExpression(s.Condition)
	thenJump := c.emitJump(bytecode.OpJumpIfFalse, s.Line())
	c.emitOp(bytecode.OpPop, s.Line())
	c.compileStatement(s.Then)

	elseJump := c.emitJump(bytecode.OpJump, s.Line())
	c.patchJump(thenJump)
	c.emitOp(bytecode.OpPop, s.Line())
	if s.Else != nil {
		c.compileStatement(s.Else)
	}
	c.patchJump(elseJump)
}

func (c *Compiler) compileWhileStmt(s *ast.WhileStmt) {
	loopStart := len(c.chunk().Code)
	c.compileExpression(s.Condition)
	exitJump := c.emitJump(bytecode.OpJumpIfFalse, s.Line())
	c.emitOp(bytecode.OpPop, s.Line())
	c.compileStatement(s.Body)
	c.emitLoop(loopStart, s.Line())
	c.patchJump(exitJump)
	c.emitOp(bytecode.OpPop, s.Line())
}

func (c *Compiler) compileFunctionDeclaration(s *ast.FunctionStmt) {
	c.declareVariable(s.Name, s.Line())
	nameConstant := c.identifierConstant(s.Name)
	c.markInitialized()
	c.compileFunctionBody(s, typeFunction)
	c.defineVariable(nameConstant, s.Line())
}

func (c *Compiler) compileFunctionBody(s *ast.FunctionStmt, fnType functionType) {
	c.beginFunction(fnType, s.Name)
	c.beginScope()
	for _, param := range s.Params {
		c.current.function.Arity++
		c.declareVariable(param, s.Line())
		c.markInitialized()
	}
	for _, stmt := range s.Body {
		c.compileStatement(stmt)
	}
	fn, upvalues := c.endFunction()

	idx := c.makeConstant(object.FromObj(fn))
	c.emitOpByte(bytecode.OpClosure, idx, s.Line())
	for _, up := range upvalues {
		if up.isLocal {
			c.emitByte(1, s.Line())
		} else {
			c.emitByte(0, s.Line())
		}
		c.emitByte(up.index, s.Line())
	}
}

func (c *Compiler) compileReturnStmt(s *ast.ReturnStmt) {
	if c.current.fnType == typeScript {
		c.error(s.Line(), "Can't return from top-level code.")
	}
	if s.Value == nil {
		if c.current.fnType == typeInitializer {
			c.emitOpByte(bytecode.OpGetLocal, 0, s.Line())
		} else {
			c.emitOp(bytecode.OpNil, s.Line())
		}
		c.emitOp(bytecode.OpReturn, s.Line())
		return
	}
	if c.current.fnType == typeInitializer {
		c.error(s.Line(), "Can't return a value from an initializer.")
	}
	c.compileExpression(s.Value)
	c.emitOp(bytecode.OpReturn, s.Line())
}

func (c *Compiler) compileClassStmt(s *ast.ClassStmt) {
	nameConstant := c.identifierConstant(s.Name)
	c.declareVariable(s.Name, s.Line())
	c.emitOpByte(bytecode.OpClass, nameConstant, s.Line())
	c.defineVariable(nameConstant, s.Line())

	cs := &classState{enclosing: c.currentClass}
	c.currentClass = cs

	if s.Superclass != nil {
		if s.Superclass.Name == s.Name {
			c.error(s.Line(), "A class can't inherit from itself.")
		}
		c.compileNamedVariableGet(s.Superclass.Name, s.Line())

		c.beginScope()
		c.addLocal("super", s.Line())
		c.markInitialized()

		c.compileNamedVariableGet(s.Name, s.Line())
		c.emitOp(bytecode.OpInherit, s.Line())
		cs.hasSuperclass = true
	}

	c.compileNamedVariableGet(s.Name, s.Line())
	for _, m := range s.Methods {
		c.compileMethod(m)
	}
	c.emitOp(bytecode.OpPop, s.Line())

	if cs.hasSuperclass {
		c.endScope(s.Line())
	}
	c.currentClass = cs.enclosing
}

func (c *Compiler) compileMethod(m *ast.FunctionStmt) {
	nameConstant := c.identifierConstant(m.Name)
	fnType := typeMethod
	if m.Name == "init" {
		fnType = typeInitializer
	}
	c.compileFunctionBody(m, fnType)
	c.emitOpByte(bytecode.OpMethod, nameConstant, m.Line())
}

// --- expressions -------------------------------------------------------

func (c *Compiler) compileExpression(expr ast.Expression) {
	switch e := expr.(type) {
	case *ast.Literal:
		c.compileLiteral(e)
	case *ast.Variable:
		c.compileNamedVariableGet(e.Name, e.Line())
	case *ast.Assign:
		c.compileExpression(e.Value)
		c.compileNamedVariableSet(e.Name, e.Line())
	case *ast.Unary:
		c.compileUnary(e)
	case *ast.Binary:
		c.compileBinary(e)
	case *ast.Logical:
		c.compileLogical(e)
	case *ast.Grouping:
		c.compileExpression(e.Expression)
	case *ast.Call:
		c.compileCall(e)
	case *ast.Get:
		c.compileExpression(e.Object)
		c.emitOpByte(bytecode.OpGetProperty, c.identifierConstant(e.Name), e.Line())
	case *ast.Set:
		c.compileExpression(e.Object)
		c.compileExpression(e.Value)
		c.emitOpByte(bytecode.OpSetProperty, c.identifierConstant(e.Name), e.Line())
	case *ast.This:
		if c.currentClass == nil {
			c.error(e.Line(), "Can't use 'this' outside of a class.")
		}
		c.compileNamedVariableGet("this", e.Line())
	case *ast.Super:
		c.compileSuperGet(e)
	default:
		c.error(expr.Line(), "unknown expression type %T", expr)
	}
}

func (c *Compiler) compileLiteral(e *ast.Literal) {
	switch v := e.Value.(type) {
	case nil:
		c.emitOp(bytecode.OpNil, e.Line())
	case bool:
		if v {
			c.emitOp(bytecode.OpTrue, e.Line())
		} else {
			c.emitOp(bytecode.OpFalse, e.Line())
		}
	case float64:
		idx := c.makeConstant(object.Number(v))
		c.emitOpByte(bytecode.OpConstant, idx, e.Line())
	case string:
		idx := c.makeConstant(object.FromObj(c.heap.CopyString([]byte(v))))
		c.emitOpByte(bytecode.OpConstant, idx, e.Line())
	}
}

func (c *Compiler) compileNamedVariableGet(name string, line int) {
	if slot := resolveLocal(c.current, name); slot != -1 {
		if c.current.locals[slot].depth == -1 {
			c.error(line, "Can't read local variable in its own initializer.")
		}
		c.emitOpByte(bytecode.OpGetLocal, byte(slot), line)
		return
	}
	if slot := resolveUpvalue(c.current, name); slot != -1 {
		c.emitOpByte(bytecode.OpGetUpvalue, byte(slot), line)
		return
	}
	c.emitOpByte(bytecode.OpGetGlobal, c.identifierConstant(name), line)
}

func (c *Compiler) compileNamedVariableSet(name string, line int) {
	if slot := resolveLocal(c.current, name); slot != -1 {
		c.emitOpByte(bytecode.OpSetLocal, byte(slot), line)
		return
	}
	if slot := resolveUpvalue(c.current, name); slot != -1 {
		c.emitOpByte(bytecode.OpSetUpvalue, byte(slot), line)
		return
	}
	c.emitOpByte(bytecode.OpSetGlobal, c.identifierConstant(name), line)
}

func (c *Compiler) compileUnary(e *ast.Unary) {
	c.compileExpression(e.Operand)
	switch e.Operator {
	case lexer.TokenBang:
		c.emitOp(bytecode.OpNot, e.Line())
	default:
		c.emitOp(bytecode.OpNegate, e.Line())
	}
}

func (c *Compiler) compileBinary(e *ast.Binary) {
	c.compileExpression(e.Left)
	c.compileExpression(e.Right)
	switch e.Operator {
	case lexer.TokenPlus:
		c.emitOp(bytecode.OpAdd, e.Line())
	case lexer.TokenMinus:
		c.emitOp(bytecode.OpSubtract, e.Line())
	case lexer.TokenStar:
		c.emitOp(bytecode.OpMultiply, e.Line())
	case lexer.TokenSlash:
		c.emitOp(bytecode.OpDivide, e.Line())
	case lexer.TokenEqualEqual:
		c.emitOp(bytecode.OpEqual, e.Line())
	case lexer.TokenBangEqual:
		c.emitOp(bytecode.OpEqual, e.Line())
		c.emitOp(bytecode.OpNot, e.Line())
	case lexer.TokenGreater:
		c.emitOp(bytecode.OpGreater, e.Line())
	case lexer.TokenGreaterEqual:
		c.emitOp(bytecode.OpLess, e.Line())
		c.emitOp(bytecode.OpNot, e.Line())
	case lexer.TokenLess:
		c.emitOp(bytecode.OpLess, e.Line())
	case lexer.TokenLessEqual:
		c.emitOp(bytecode.OpGreater, e.Line())
		c.emitOp(bytecode.OpNot, e.Line())
	default:
		c.error(e.Line(), "unknown binary operator")
	}
}

func (c *Compiler) compileLogical(e *ast.Logical) {
	if e.Operator == lexer.TokenAnd {
		c.compileExpression(e.Left)
		endJump := c.emitJump(bytecode.OpJumpIfFalse, e.Line())
		c.emitOp(bytecode.OpPop, e.Line())
		c.compileExpression(e.Right)
		c.patchJump(endJump)
		return
	}
	// or
	c.compileExpression(e.Left)
	elseJump := c.emitJump(bytecode.OpJumpIfFalse, e.Line())
	endJump := c.emitJump(bytecode.OpJump, e.Line())
	c.patchJump(elseJump)
	c.emitOp(bytecode.OpPop, e.Line())
	c.compileExpression(e.Right)
	c.patchJump(endJump)
}

func (c *Compiler) compileCall(e *ast.Call) {
	switch callee := e.Callee.(type) {
	case *ast.Get:
		c.compileExpression(callee.Object)
		argCount := c.compileArguments(e.Arguments)
		c.emitOp(bytecode.OpInvoke, e.Line())
		c.emitByte(c.identifierConstant(callee.Name), e.Line())
		c.emitByte(byte(argCount), e.Line())
	case *ast.Super:
		c.compileSuperInvoke(callee, e)
	default:
		c.compileExpression(e.Callee)
		argCount := c.compileArguments(e.Arguments)
		c.emitOpByte(bytecode.OpCall, byte(argCount), e.Line())
	}
}

func (c *Compiler) compileArguments(args []ast.Expression) int {
	for _, a := range args {
		c.compileExpression(a)
	}
	return len(args)
}

func (c *Compiler) compileSuperGet(e *ast.Super) {
	if c.currentClass == nil {
		c.error(e.Line(), "Can't use 'super' outside of a class.")
	} else if !c.currentClass.hasSuperclass {
		c.error(e.Line(), "Can't use 'super' in a class with no superclass.")
	}
	nameConstant := c.identifierConstant(e.Method)
	c.compileNamedVariableGet("this", e.Line())
	c.compileNamedVariableGet("super", e.Line())
	c.emitOpByte(bytecode.OpGetSuper, nameConstant, e.Line())
}

func (c *Compiler) compileSuperInvoke(sup *ast.Super, call *ast.Call) {
	if c.currentClass == nil {
		c.error(call.Line(), "Can't use 'super' outside of a class.")
	} else if !c.currentClass.hasSuperclass {
		c.error(call.Line(), "Can't use 'super' in a class with no superclass.")
	}
	nameConstant := c.identifierConstant(sup.Method)
	c.compileNamedVariableGet("this", call.Line())
	argCount := c.compileArguments(call.Arguments)
	c.compileNamedVariableGet("super", call.Line())
	c.emitOp(bytecode.OpSuperInvoke, call.Line())
	c.emitByte(nameConstant, call.Line())
	c.emitByte(byte(argCount), call.Line())
}
