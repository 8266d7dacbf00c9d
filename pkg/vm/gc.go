package vm

import "github.com/kristofer/glox/pkg/object"

// heapGrowFactor scales nextGC after each collection: collect again once
// live bytes double.
const heapGrowFactor = 2

// track links a freshly allocated object at the head of the all-objects
// list and accounts its size, possibly triggering a collection first.
// Go objects
// aren't manually realloc'd, so "allocation" here is "construct the
// object, then register it with the collector" — the size passed in is
// an estimate used purely to drive the same threshold/stress trigger
// policy a manual allocator would use.
func (vm *VM) track(o object.Obj, size int) {
	vm.maybeCollect(size)
	o.SetNext(vm.objects)
	vm.objects = o
	vm.bytesAllocated += size
}

func (vm *VM) maybeCollect(growBy int) {
	if vm.stressGC || vm.bytesAllocated+growBy > vm.nextGC {
		vm.collectGarbage()
	}
}

// --- object.Heap implementation -------------------------------------------

// CopyString interns bytes, copying them into heap-owned storage on a
// cache miss. Implements object.Heap for pkg/compiler.
func (vm *VM) CopyString(chars []byte) *object.String {
	hash := object.HashBytes(chars)
	if interned := vm.strings.FindString(chars, hash); interned != nil {
		return interned
	}
	owned := make([]byte, len(chars))
	copy(owned, chars)
	return vm.allocateString(owned, hash)
}

// TakeString interns an already caller-owned buffer.
// On a cache hit the buffer is simply dropped — Go's own GC reclaims it,
// standing in for the source's explicit free.
func (vm *VM) TakeString(chars []byte) *object.String {
	hash := object.HashBytes(chars)
	if interned := vm.strings.FindString(chars, hash); interned != nil {
		return interned
	}
	return vm.allocateString(chars, hash)
}

func (vm *VM) allocateString(chars []byte, hash uint32) *object.String {
	s := object.NewString(chars, hash)
	vm.track(s, 24+len(chars))

	// Hidden-root parking: push the new string before
	// inserting into the intern table (inserting may itself grow the
	// table's backing array, which is plain Go allocation here but would
	// be a second GC-visible allocation in the source) and pop after.
	vm.Push(object.FromObj(s))
	vm.strings.Set(s, object.Nil)
	vm.Pop()
	return s
}

// NewFunction allocates and tracks a fresh Function for the compiler to
// populate. Implements object.Heap.
func (vm *VM) NewFunction() *object.Function {
	fn := object.NewFunction()
	vm.track(fn, 64)
	return fn
}

// PushCompilerRoot and PopCompilerRoot implement object.Heap's
// mark-compiler-roots hook: while the compiler holds a
// partially-built Function that isn't reachable from anywhere else yet,
// a collection triggered by compiling a nested function must still see
// it.
func (vm *VM) PushCompilerRoot(fn *object.Function) {
	vm.compilerRoots = append(vm.compilerRoots, fn)
}

func (vm *VM) PopCompilerRoot() {
	vm.compilerRoots = vm.compilerRoots[:len(vm.compilerRoots)-1]
}

func (vm *VM) newNative(name string, fn object.NativeFn) *object.Native {
	n := object.NewNative(name, fn)
	vm.track(n, 32)
	return n
}

func (vm *VM) newClosure(fn *object.Function) *object.Closure {
	c := object.NewClosure(fn)
	vm.track(c, 32+8*len(c.Upvalues))
	return c
}

func (vm *VM) newUpvalue(slot *object.Value) *object.Upvalue {
	u := object.NewUpvalue(slot)
	vm.track(u, 24)
	return u
}

func (vm *VM) newClass(name *object.String) *object.Class {
	c := object.NewClass(name)
	vm.track(c, 32)
	return c
}

func (vm *VM) newInstance(class *object.Class) *object.Instance {
	i := object.NewInstance(class)
	vm.track(i, 32)
	return i
}

func (vm *VM) newBoundMethod(receiver object.Value, method *object.Closure) *object.BoundMethod {
	b := object.NewBoundMethod(receiver, method)
	vm.track(b, 32)
	return b
}

// --- collection ------------------------------------------------------------

// collectGarbage runs one full stop-the-world mark-sweep cycle. The
// interpreter is single-threaded, so there is no concurrent
// mutation to guard against mid-collection.
func (vm *VM) collectGarbage() {
	vm.markRoots()
	vm.traceReferences()
	vm.strings.RemoveWhite()
	vm.sweep()
	vm.nextGC = vm.bytesAllocated * heapGrowFactor
}

// markRoots marks every GC root: the live
// value stack, each active frame's closure, every open upvalue, the
// globals table, the compiler's transient roots, and the pinned init
// string.
func (vm *VM) markRoots() {
	for i := 0; i < vm.stackTop; i++ {
		vm.markValue(vm.stack[i])
	}
	for i := 0; i < vm.frameCount; i++ {
		vm.markObject(vm.frames[i].closure)
	}
	for up := vm.openUpvalues; up != nil; up = up.OpenNext {
		vm.markObject(up)
	}
	vm.globals.Mark(vm.markObject, vm.markValue)
	for _, fn := range vm.compilerRoots {
		vm.markObject(fn)
	}
	vm.markObject(vm.initString)
}

func (vm *VM) markValue(v object.Value) {
	if v.IsObj() {
		vm.markObject(v.AsObj())
	}
}

// markObject marks o live and adds it to the gray worklist if this is
// the first time it was reached this collection. marked is never set
// anywhere except here and in the collector — allocation never marks its
// own result.
func (vm *VM) markObject(o object.Obj) {
	if o == nil || o.Marked() {
		return
	}
	o.SetMarked(true)
	vm.grayStack = append(vm.grayStack, o)
}

// traceReferences pops objects from the gray worklist, blackening each:
// marking its outgoing edges per a per-kind table.
func (vm *VM) traceReferences() {
	for len(vm.grayStack) > 0 {
		n := len(vm.grayStack) - 1
		o := vm.grayStack[n]
		vm.grayStack = vm.grayStack[:n]
		vm.blacken(o)
	}
}

func (vm *VM) blacken(o object.Obj) {
	switch obj := o.(type) {
	case *object.String, *object.Native:
		// No outgoing references.
	case *object.Function:
		// obj.Name is nil for the top-level script function (see
		// compiler.beginFunction), and a nil *String boxed in the Obj
		// interface does not compare equal to the untyped nil markObject
		// guards against — checking the concrete pointer here instead.
		if obj.Name != nil {
			vm.markObject(obj.Name)
		}
		for _, c := range obj.Chunk.Constants {
			vm.markValue(c)
		}
	case *object.Closure:
		vm.markObject(obj.Function)
		for _, up := range obj.Upvalues {
			// Upvalue slots are nil from NewClosure until OP_CLOSURE's
			// capture loop fills them in; a stress collection can run
			// mid-construction and see the gap.
			if up != nil {
				vm.markObject(up)
			}
		}
	case *object.Upvalue:
		vm.markValue(obj.Closed)
	case *object.Class:
		vm.markObject(obj.Name)
		obj.Methods.Mark(vm.markObject, vm.markValue)
	case *object.Instance:
		vm.markObject(obj.Class)
		obj.Fields.Mark(vm.markObject, vm.markValue)
	case *object.BoundMethod:
		vm.markValue(obj.Receiver)
		vm.markObject(obj.Method)
	}
}

// sweep walks the all-objects list, dropping every object that wasn't
// marked this cycle and resetting the mark bit on every survivor.
// Go's own allocator reclaims the storage once
// nothing references it; this loop's job is purely to make the
// all-objects list and bytesAllocated accounting match what a manual
// free() would have done, which is what the testable "GC safety" and
// "intern-table weakness" properties actually observe.
func (vm *VM) sweep() {
	var prev object.Obj
	curr := vm.objects
	for curr != nil {
		if curr.Marked() {
			curr.SetMarked(false)
			prev = curr
			curr = curr.Next()
			continue
		}
		unreached := curr
		curr = curr.Next()
		if prev == nil {
			vm.objects = curr
		} else {
			prev.SetNext(curr)
		}
		vm.bytesAllocated -= objectSize(unreached)
	}
}

func objectSize(o object.Obj) int {
	switch obj := o.(type) {
	case *object.String:
		return 24 + len(obj.Chars)
	case *object.Function:
		return 64
	case *object.Native:
		return 32
	case *object.Closure:
		return 32 + 8*len(obj.Upvalues)
	case *object.Upvalue:
		return 24
	case *object.Class:
		return 32
	case *object.Instance:
		return 32
	case *object.BoundMethod:
		return 32
	default:
		return 16
	}
}
