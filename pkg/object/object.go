package object

import "fmt"

// Kind discriminates the heap object variants glox allocates.
type Kind byte

const (
	KindString Kind = iota
	KindFunction
	KindNative
	KindClosure
	KindUpvalue
	KindClass
	KindInstance
	KindBoundMethod
)

func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindFunction:
		return "function"
	case KindNative:
		return "native"
	case KindClosure:
		return "closure"
	case KindUpvalue:
		return "upvalue"
	case KindClass:
		return "class"
	case KindInstance:
		return "instance"
	case KindBoundMethod:
		return "bound method"
	default:
		return "unknown"
	}
}

// Obj is the interface every heap object satisfies via an embedded Header.
// The collector never needs a type switch to reach the header fields: it
// type-switches on Kind() only when it must blacken kind-specific edges.
type Obj interface {
	Kind() Kind
	Marked() bool
	SetMarked(bool)
	Next() Obj
	SetNext(Obj)
}

// Header is the common prefix of every heap object: a kind discriminator,
// the collector's mark bit, and the intrusive link into the VM's
// all-objects list. Every concrete object type embeds Header by value and
// is always referenced by pointer, so the pointer-receiver methods below
// are promoted automatically.
type Header struct {
	kind    Kind
	marked  bool
	next    Obj
}

func (h *Header) Kind() Kind      { return h.kind }
func (h *Header) Marked() bool    { return h.marked }
func (h *Header) SetMarked(m bool) { h.marked = m }
func (h *Header) Next() Obj       { return h.next }
func (h *Header) SetNext(o Obj)   { h.next = o }

// String is an immutable, interned byte sequence with a cached FNV-1a
// hash. Two strings with equal bytes always share the same *String once
// interned, so Value equality and Table probing reduce to pointer
// comparison.
type String struct {
	Header
	Chars []byte
	Hash  uint32
}

// NewString wraps an already-allocated byte buffer as a String object.
// Callers (pkg/vm) are responsible for interning: NewString itself does
// not consult or update any table.
func NewString(chars []byte, hash uint32) *String {
	return &String{Header: Header{kind: KindString}, Chars: chars, Hash: hash}
}

func (s *String) Go() string { return string(s.Chars) }

// Function is a compiled, callable unit: its arity, how many upvalues its
// closures must capture, its bytecode chunk, and an optional name (nil
// for the implicit top-level script function).
type Function struct {
	Header
	Arity        int
	UpvalueCount int
	Chunk        Chunk
	Name         *String
}

func NewFunction() *Function {
	return &Function{Header: Header{kind: KindFunction}}
}

func (f *Function) DisplayName() string {
	if f.Name == nil {
		return "<script>"
	}
	return "<fn " + f.Name.Go() + ">"
}

// NativeFn is a host function exposed to glox source: it receives a Heap
// handle (so a native that needs to return a string can intern it rather
// than allocating an untracked, un-interned *String) plus the call's
// arguments, and returns a Value or a host-side error, which the VM
// surfaces as a runtime error.
type NativeFn func(heap Heap, args []Value) (Value, error)

// Native wraps a host function so it can live in a Value and be called
// like any other callee, without ever pushing a call frame.
type Native struct {
	Header
	Name     string
	Function NativeFn
}

func NewNative(name string, fn NativeFn) *Native {
	return &Native{Header: Header{kind: KindNative}, Name: name, Function: fn}
}

// Closure binds a compiled Function to the upvalues its nested function
// literal captured from enclosing scopes. A Function only becomes
// callable by being wrapped in a Closure.
type Closure struct {
	Header
	Function *Function
	Upvalues []*Upvalue
}

func NewClosure(fn *Function) *Closure {
	return &Closure{
		Header:   Header{kind: KindClosure},
		Function: fn,
		Upvalues: make([]*Upvalue, fn.UpvalueCount),
	}
}

// Upvalue is either open (Location aliases a live stack slot) or closed
// (Location aliases Closed, which holds the value the owning frame left
// behind at return). OpenNext links open upvalues into the VM's
// descending-by-address list.
type Upvalue struct {
	Header
	Location *Value
	Closed   Value
	OpenNext *Upvalue
}

func NewUpvalue(slot *Value) *Upvalue {
	return &Upvalue{Header: Header{kind: KindUpvalue}, Location: slot}
}

// Class holds a name and its own (non-inherited-copy) methods table;
// INHERIT copies the superclass's method entries into the subclass's
// table at class-definition time, so no separate superclass pointer is
// needed here (method resolution never walks a superclass chain at call
// time — GET_SUPER / SUPER_INVOKE look the method up directly in the
// superclass, which the compiler loads onto the stack from the class's
// captured `super` variable).
type Class struct {
	Header
	Name    *String
	Methods *Table
}

func NewClass(name *String) *Class {
	return &Class{Header: Header{kind: KindClass}, Name: name, Methods: NewTable()}
}

// Instance is a live object of a Class: its fields table, initially
// empty, grows as SET_PROPERTY installs new field names.
type Instance struct {
	Header
	Class  *Class
	Fields *Table
}

func NewInstance(class *Class) *Instance {
	return &Instance{Header: Header{kind: KindInstance}, Class: class, Fields: NewTable()}
}

// BoundMethod pairs a receiver with the closure GET_PROPERTY or
// GET_SUPER resolved for it, so that later calling the bound method
// rewrites slot 0 to Receiver without re-resolving the method.
type BoundMethod struct {
	Header
	Receiver Value
	Method   *Closure
}

func NewBoundMethod(receiver Value, method *Closure) *BoundMethod {
	return &BoundMethod{Header: Header{kind: KindBoundMethod}, Receiver: receiver, Method: method}
}

// Stringify renders a Value the way PRINT and the REPL do.
func Stringify(v Value) string {
	switch {
	case v.IsNil():
		return "nil"
	case v.IsBool():
		if v.AsBool() {
			return "true"
		}
		return "false"
	case v.IsNumber():
		return formatNumber(v.AsNumber())
	case v.IsObj():
		return stringifyObj(v.AsObj())
	default:
		return "<invalid value>"
	}
}

func formatNumber(n float64) string {
	if n == float64(int64(n)) {
		return fmt.Sprintf("%d", int64(n))
	}
	return fmt.Sprintf("%g", n)
}

func stringifyObj(o Obj) string {
	switch obj := o.(type) {
	case *String:
		return obj.Go()
	case *Function:
		return obj.DisplayName()
	case *Native:
		return "<native fn " + obj.Name + ">"
	case *Closure:
		return obj.Function.DisplayName()
	case *Upvalue:
		return "upvalue"
	case *Class:
		return obj.Name.Go()
	case *Instance:
		return obj.Class.Name.Go() + " instance"
	case *BoundMethod:
		return obj.Method.Function.DisplayName()
	default:
		return "<object>"
	}
}
