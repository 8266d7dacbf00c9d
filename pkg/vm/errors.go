// Package vm - error handling with stack traces: a RuntimeError carries
// one StackFrame per active call, resolved from the CallFrame array and
// each frame's Function.Chunk line table.
package vm

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// StackFrame captures one call frame's position at the moment a runtime
// error was raised, for a trace formatted as one line per active frame,
// outermost last.
type StackFrame struct {
	Name string // function display name, or "script" for the top level
	Line int    // source line resolved from the frame's ip
}

// RuntimeError is a glox runtime error with its call-stack trace
// attached. It satisfies the standard error interface so it composes
// with github.com/pkg/errors.Wrap at the CLI boundary without glox's own
// callers needing to know about that dependency.
type RuntimeError struct {
	Message    string
	StackTrace []StackFrame
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	b.WriteString(e.Message)
	for i := len(e.StackTrace) - 1; i >= 0; i-- {
		f := e.StackTrace[i]
		b.WriteString("\n")
		if f.Line > 0 {
			fmt.Fprintf(&b, "[line %d] in %s", f.Line, f.Name)
		} else {
			fmt.Fprintf(&b, "in %s", f.Name)
		}
	}
	return b.String()
}

// runtimeError builds a RuntimeError from the VM's current call-frame
// array, formats message like fmt.Sprintf, and returns it ready to
// propagate out of run(). The stack is reset here so a REPL can recover
// and keep accepting input after a runtime error.
func (vm *VM) runtimeError(format string, args ...interface{}) error {
	trace := make([]StackFrame, 0, vm.frameCount)
	for i := 0; i < vm.frameCount; i++ {
		f := &vm.frames[i]
		fn := f.closure.Function
		name := "script"
		if fn.Name != nil {
			name = fn.Name.Go() + "()"
		}
		trace = append(trace, StackFrame{
			Name: name,
			Line: fn.Chunk.LineAt(f.ip - 1),
		})
	}
	vm.resetStack()
	return &RuntimeError{
		Message:    fmt.Sprintf(format, args...),
		StackTrace: trace,
	}
}

// WrapHostError lifts a host-side failure (a native function's error, or
// file I/O performed by an embedder) into a glox-domain error without
// pretending it came from the bytecode interpreter, using
// github.com/pkg/errors so the original cause survives for %+v
// formatting and errors.Cause.
func WrapHostError(err error, context string) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, context)
}
