package object

// Heap is the allocator interface the compiler programs against. It is
// declared here (rather than in pkg/vm, which implements it) so that
// pkg/compiler never needs to import pkg/vm — only pkg/vm imports
// pkg/compiler, to drive Interpret. This is the Go-idiomatic rendering
// of the design note that the global VM singleton should be an owned
// context passed explicitly to core routines: the compiler never touches
// VM internals directly, only this narrow allocation surface.
type Heap interface {
	// CopyString interns (or creates and interns) a string with the given
	// bytes, copying them into heap-owned storage. Two calls with equal
	// bytes return the identical *String.
	CopyString(chars []byte) *String

	// NewFunction allocates and tracks a fresh, empty Function for the
	// compiler to fill in as it compiles one function body.
	NewFunction() *Function

	// PushCompilerRoot and PopCompilerRoot bracket compilation of a
	// single function so that a collection triggered mid-compile (by
	// CopyString or NewFunction for a *nested* function) still marks
	// every function further up the enclosing-compilation chain
	// (the mark-compiler-roots hook).
	PushCompilerRoot(fn *Function)
	PopCompilerRoot()
}
