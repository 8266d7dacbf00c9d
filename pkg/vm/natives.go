// Package vm - native function registration.
//
// The language core requires exactly one native — clock() — and treats a
// broader host stdlib as a module-system concern that's out of scope.
// This file registers that one required native plus two small,
// illustrative ones (len, type) built the same way.
package vm

import (
	"fmt"
	"time"

	"github.com/kristofer/glox/pkg/object"
)

// stdoutPrinter is the default Printer, writing PRINT output straight to
// the process's standard output.
type stdoutPrinter struct{}

func (stdoutPrinter) Printf(format string, args ...interface{}) {
	fmt.Printf(format, args...)
}

func defineStandardNatives(vm *VM) {
	vm.DefineNative("clock", nativeClock)
	vm.DefineNative("len", nativeLen)
	vm.DefineNative("type", nativeType)
}

// nativeClock returns the number of seconds since the Unix epoch as a
// glox number, matching clock()'s contract of "returning seconds as
// number".
func nativeClock(heap object.Heap, args []object.Value) (object.Value, error) {
	return object.Number(float64(time.Now().UnixNano()) / 1e9), nil
}

// nativeLen returns the byte length of a string argument.
func nativeLen(heap object.Heap, args []object.Value) (object.Value, error) {
	if len(args) != 1 || !args[0].Is(object.KindString) {
		return object.Nil, errArity("len", "a string")
	}
	s := args[0].AsObj().(*object.String)
	return object.Number(float64(len(s.Chars))), nil
}

// nativeType names a value's dynamic type, handy for debugging glox
// programs at the REPL. The name is interned through heap.CopyString
// rather than built with object.NewString directly, so the returned
// string is tracked on the all-objects list and shares a pointer with
// any equal literal already in the intern table (type(1) == "number"
// must hold).
func nativeType(heap object.Heap, args []object.Value) (object.Value, error) {
	if len(args) != 1 {
		return object.Nil, errArity("type", "exactly one value")
	}
	v := args[0]
	name := "object"
	switch {
	case v.IsNil():
		name = "nil"
	case v.IsBool():
		name = "bool"
	case v.IsNumber():
		name = "number"
	case v.IsObj():
		name = v.AsObj().Kind().String()
	}
	return object.FromObj(heap.CopyString([]byte(name))), nil
}

type nativeArityError struct {
	fn   string
	want string
}

func (e *nativeArityError) Error() string {
	return e.fn + "() expects " + e.want
}

func errArity(fn, want string) error {
	return &nativeArityError{fn: fn, want: want}
}
