// Package vm implements the glox bytecode virtual machine.
//
// The VM is a stack-based interpreter: a value stack, an instruction
// pointer, and a dispatch loop. The hard part is what sits underneath
// that simple shape — every stack slot and call frame is a root the
// garbage collector must find, upvalues move between an open
// (stack-aliasing) and closed (heap-owned) lifecycle as frames return,
// and every allocation path may trigger a collection before it returns.
//
// Execution pipeline:
//
//	source text -> pkg/lexer -> pkg/parser -> AST -> pkg/compiler -> *object.Function -> VM
//
// Interpret wraps the compiled top-level function in a Closure, pushes
// it, and calls run until the call stack empties or an error occurs.
package vm

import (
	"unsafe"

	"github.com/kristofer/glox/pkg/compiler"
	"github.com/kristofer/glox/pkg/object"
)

const (
	// FramesMax bounds call-stack depth; exceeding it is a runtime error
	// rather than a host stack overflow.
	FramesMax = 64
	// StackMax is the value stack's fixed capacity: FramesMax frames at
	// up to 256 locals each.
	StackMax = FramesMax * 256
)

// CallFrame is one activation record: the closure being executed, its
// instruction pointer, and the base slot into the shared value stack
// where its locals (including the callee/receiver at slot 0) begin.
type CallFrame struct {
	closure   *object.Closure
	ip        int
	slotsBase int
}

// InterpretResult is the three-way outcome of VM.Interpret.
type InterpretResult int

const (
	InterpretOK InterpretResult = iota
	InterpretCompileError
	InterpretRuntimeError
)

// Printer abstracts PRINT's destination so tests can capture output
// without redirecting os.Stdout.
type Printer interface {
	Printf(format string, args ...interface{})
}

// VM owns every piece of process-wide interpreter state: the value
// stack, the call-frame array, globals, the string-intern table, the
// all-objects list, the open-upvalue list, and the collector's
// bookkeeping. This is an owned context rather than a package-level
// singleton — an embedder can construct as many as it likes, though only
// one should ever run at a time: the interpreter is strictly
// single-threaded, with no locking.
type VM struct {
	stack    [StackMax]object.Value
	stackTop int

	frames     [FramesMax]CallFrame
	frameCount int

	globals *object.Table
	strings *object.Table

	objects      object.Obj
	openUpvalues *object.Upvalue

	initString *object.String

	bytesAllocated int
	nextGC         int
	grayStack      []object.Obj
	stressGC       bool

	compilerRoots []*object.Function

	out Printer
}

// New constructs a fresh VM with an empty stack, no globals, and the
// pinned "init" string rooted for method-initializer lookup.
func New() *VM {
	vm := &VM{
		globals: object.NewTable(),
		strings: object.NewTable(),
		nextGC:  1 << 20, // 1 MiB before the first collection, like clox's default.
		out:     stdoutPrinter{},
	}
	vm.initString = vm.CopyString([]byte("init"))
	defineStandardNatives(vm)
	return vm
}

// SetStressGC toggles collect-before-every-allocation mode, used to
// surface reachability bugs that a lazier collection schedule would hide.
func (vm *VM) SetStressGC(enabled bool) { vm.stressGC = enabled }

// SetOutput redirects PRINT output, for tests that capture stdout.
func (vm *VM) SetOutput(p Printer) { vm.out = p }

// BytesAllocated reports the collector's current live-byte estimate, for
// tests that exercise string-interning and collection behavior.
func (vm *VM) BytesAllocated() int { return vm.bytesAllocated }

// StackTop returns the value currently on top of the stack, for tests
// and for a REPL that wants to echo the last expression's value.
func (vm *VM) StackTop() object.Value {
	if vm.stackTop == 0 {
		return object.Nil
	}
	return vm.stack[vm.stackTop-1]
}

// Push and Pop expose the value stack to native functions.
func (vm *VM) Push(v object.Value) {
	vm.stack[vm.stackTop] = v
	vm.stackTop++
}

func (vm *VM) Pop() object.Value {
	vm.stackTop--
	return vm.stack[vm.stackTop]
}

func (vm *VM) peek(distance int) object.Value {
	return vm.stack[vm.stackTop-1-distance]
}

// resetStack clears the value stack and call frames between top-level
// evaluations, so a REPL can recover from a runtime error and keep
// accepting input.
func (vm *VM) resetStack() {
	vm.stackTop = 0
	vm.frameCount = 0
	vm.openUpvalues = nil
}

// DefineNative registers a global native function (`clock()` is the one
// the core itself needs).
func (vm *VM) DefineNative(name string, fn object.NativeFn) {
	// Hidden-root parking: the name string and the native object are two
	// separate allocations, so the string is pushed before the native
	// allocation (which could trigger a collection) can sweep it away.
	nameStr := vm.CopyString([]byte(name))
	vm.Push(object.FromObj(nameStr))
	native := vm.newNative(name, fn)
	vm.Push(object.FromObj(native))
	vm.globals.Set(nameStr, vm.peek(0))
	vm.Pop()
	vm.Pop()
}

// Interpret compiles source and, on success, runs it to completion. This
// is glox's top-level façade.
func (vm *VM) Interpret(source string) (InterpretResult, error) {
	fn, ok := compiler.Compile(source, vm)
	if !ok {
		return InterpretCompileError, nil
	}

	vm.Push(object.FromObj(fn))
	closure := vm.newClosure(fn)
	vm.Pop()
	vm.Push(object.FromObj(closure))
	if err := vm.call(closure, 0); err != nil {
		vm.resetStack()
		return InterpretRuntimeError, err
	}

	return vm.run()
}

// call pushes a new call frame for closure, checking arity and recursion
// depth.
func (vm *VM) call(closure *object.Closure, argCount int) error {
	fn := closure.Function
	if argCount != fn.Arity {
		return vm.runtimeError("Expected %d arguments but got %d.", fn.Arity, argCount)
	}
	if vm.frameCount >= FramesMax {
		return vm.runtimeError("Stack overflow.")
	}
	frame := &vm.frames[vm.frameCount]
	vm.frameCount++
	frame.closure = closure
	frame.ip = 0
	frame.slotsBase = vm.stackTop - argCount - 1
	return nil
}

// callValue dispatches a call by callee kind.
func (vm *VM) callValue(callee object.Value, argCount int) error {
	if !callee.IsObj() {
		return vm.runtimeError("Can only call functions and classes.")
	}
	switch obj := callee.AsObj().(type) {
	case *object.Closure:
		return vm.call(obj, argCount)
	case *object.Native:
		args := vm.stack[vm.stackTop-argCount : vm.stackTop]
		result, err := obj.Function(vm, args)
		if err != nil {
			return vm.runtimeError("%s", err.Error())
		}
		vm.stackTop -= argCount + 1
		vm.Push(result)
		return nil
	case *object.Class:
		instance := vm.newInstance(obj)
		vm.stack[vm.stackTop-argCount-1] = object.FromObj(instance)
		if initializer, ok := obj.Methods.Get(vm.initString); ok {
			return vm.call(initializer.AsObj().(*object.Closure), argCount)
		} else if argCount != 0 {
			return vm.runtimeError("Expected 0 arguments but got %d.", argCount)
		}
		return nil
	case *object.BoundMethod:
		vm.stack[vm.stackTop-argCount-1] = obj.Receiver
		return vm.call(obj.Method, argCount)
	default:
		return vm.runtimeError("Can only call functions and classes.")
	}
}

// invoke implements the INVOKE fast path: look up name among the
// instance's fields first (a field holding a callable shadows a method),
// then among its class's methods, and call it directly, without
// materializing an intermediate BoundMethod.
func (vm *VM) invoke(name *object.String, argCount int) error {
	receiver := vm.peek(argCount)
	if !receiver.Is(object.KindInstance) {
		return vm.runtimeError("Only instances have methods.")
	}
	instance := receiver.AsObj().(*object.Instance)
	if field, ok := instance.Fields.Get(name); ok {
		vm.stack[vm.stackTop-argCount-1] = field
		return vm.callValue(field, argCount)
	}
	return vm.invokeFromClass(instance.Class, name, argCount)
}

func (vm *VM) invokeFromClass(class *object.Class, name *object.String, argCount int) error {
	method, ok := class.Methods.Get(name)
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name.Go())
	}
	return vm.call(method.AsObj().(*object.Closure), argCount)
}

// bindMethod resolves name on class, pushing a BoundMethod over the
// receiver that is already on top of the stack.
func (vm *VM) bindMethod(class *object.Class, name *object.String) error {
	method, ok := class.Methods.Get(name)
	if !ok {
		return vm.runtimeError("Undefined property '%s'.", name.Go())
	}
	bound := vm.newBoundMethod(vm.peek(0), method.AsObj().(*object.Closure))
	vm.Pop()
	vm.Push(object.FromObj(bound))
	return nil
}

// captureUpvalue returns the open upvalue for slot, creating and
// splicing one into the descending-by-address open list if none exists
// yet.
func (vm *VM) captureUpvalue(slot *object.Value) *object.Upvalue {
	var prev *object.Upvalue
	up := vm.openUpvalues
	for up != nil && addrGreater(up.Location, slot) {
		prev = up
		up = up.OpenNext
	}
	if up != nil && up.Location == slot {
		return up
	}

	created := vm.newUpvalue(slot)
	created.OpenNext = up
	if prev == nil {
		vm.openUpvalues = created
	} else {
		prev.OpenNext = created
	}
	return created
}

// closeUpvalues moves every open upvalue at or above boundary onto the
// heap, copying the stack slot's current value into Closed and
// redirecting Location to alias it. Called on function
// return (with the frame's base slot as boundary) and on the
// CLOSE_UPVALUE opcode (with the stack top slot as boundary).
func (vm *VM) closeUpvalues(boundary *object.Value) {
	for vm.openUpvalues != nil && addrGEQ(vm.openUpvalues.Location, boundary) {
		up := vm.openUpvalues
		up.Closed = *up.Location
		up.Location = &up.Closed
		vm.openUpvalues = up.OpenNext
		up.OpenNext = nil
	}
}

// addrGreater and addrGEQ compare stack-slot pointers by address so the
// open-upvalue list can be kept sorted and closeUpvalues can find its
// boundary, mirroring clox's raw pointer comparisons against the C
// stack array. vm.stack is a fixed array field (never reallocated), so
// these addresses are stable for the VM's lifetime.
func addrGreater(a, b *object.Value) bool {
	return uintptr(unsafe.Pointer(a)) > uintptr(unsafe.Pointer(b))
}

func addrGEQ(a, b *object.Value) bool {
	return uintptr(unsafe.Pointer(a)) >= uintptr(unsafe.Pointer(b))
}
