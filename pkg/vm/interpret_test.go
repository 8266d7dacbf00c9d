package vm

import (
	"fmt"
	"strings"
	"testing"
)

// capturePrinter records every Printf call so tests can assert on PRINT
// output without redirecting os.Stdout.
type capturePrinter struct {
	lines []string
}

func (c *capturePrinter) Printf(format string, args ...interface{}) {
	c.lines = append(c.lines, fmt.Sprintf(format, args...))
}

func runCapture(t *testing.T, source string) (string, InterpretResult, error) {
	t.Helper()
	v := New()
	rec := &capturePrinter{}
	v.SetOutput(rec)
	result, err := v.Interpret(source)
	return strings.Join(rec.lines, ""), result, err
}

func TestInterpret_Arithmetic(t *testing.T) {
	out, result, err := runCapture(t, `print 1 + 2;`)
	if err != nil || result != InterpretOK {
		t.Fatalf("unexpected error: %v (result=%v)", err, result)
	}
	if out != "3\n" {
		t.Errorf("expected %q, got %q", "3\n", out)
	}
}

func TestInterpret_StringConcatenation(t *testing.T) {
	out, result, err := runCapture(t, `var a = "hi"; var b = "there"; print a + " " + b;`)
	if err != nil || result != InterpretOK {
		t.Fatalf("unexpected error: %v (result=%v)", err, result)
	}
	if out != "hi there\n" {
		t.Errorf("expected %q, got %q", "hi there\n", out)
	}
}

func TestInterpret_ClosuresShareUpvalue(t *testing.T) {
	source := `
		fun makeCounter() {
			var i = 0;
			fun count() {
				i = i + 1;
				return i;
			}
			return count;
		}
		var c = makeCounter();
		print c();
		print c();
		print c();
	`
	out, result, err := runCapture(t, source)
	if err != nil || result != InterpretOK {
		t.Fatalf("unexpected error: %v (result=%v)", err, result)
	}
	if out != "1\n2\n3\n" {
		t.Errorf("expected %q, got %q", "1\n2\n3\n", out)
	}
}

func TestInterpret_ClassAndMethod(t *testing.T) {
	source := `class Cake { taste() { print "yum"; } } Cake().taste();`
	out, result, err := runCapture(t, source)
	if err != nil || result != InterpretOK {
		t.Fatalf("unexpected error: %v (result=%v)", err, result)
	}
	if out != "yum\n" {
		t.Errorf("expected %q, got %q", "yum\n", out)
	}
}

func TestInterpret_InheritanceAndSuper(t *testing.T) {
	source := `
		class A { m() { print "A"; } }
		class B < A {
			m() { super.m(); print "B"; }
		}
		B().m();
	`
	out, result, err := runCapture(t, source)
	if err != nil || result != InterpretOK {
		t.Fatalf("unexpected error: %v (result=%v)", err, result)
	}
	if out != "A\nB\n" {
		t.Errorf("expected %q, got %q", "A\nB\n", out)
	}
}

func TestInterpret_StackOverflowReportsTrace(t *testing.T) {
	source := `fun f() { f(); } f();`
	_, result, err := runCapture(t, source)
	if result != InterpretRuntimeError {
		t.Fatalf("expected a runtime error, got result=%v", result)
	}
	if err == nil {
		t.Fatal("expected a non-nil error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "Stack overflow") {
		t.Errorf("expected error to mention Stack overflow, got %q", msg)
	}
	lines := strings.Split(msg, "\n")
	if len(lines) < 3 {
		t.Errorf("expected a multi-line trace, got %q", msg)
	}
	if lines[len(lines)-1] != "[line 1] in script" {
		t.Errorf("expected trace to end '[line 1] in script', got %q", lines[len(lines)-1])
	}
}

func TestInterpret_ArityMismatchIsRuntimeError(t *testing.T) {
	_, result, err := runCapture(t, `fun f(a, b) { return a + b; } f(1);`)
	if result != InterpretRuntimeError || err == nil {
		t.Fatalf("expected an arity runtime error, got result=%v err=%v", result, err)
	}
	if !strings.Contains(err.Error(), "Expected 2 arguments but got 1") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestInterpret_CompileErrorDoesNotRun(t *testing.T) {
	_, result, err := runCapture(t, `var a = ;`)
	if result != InterpretCompileError {
		t.Fatalf("expected a compile error, got result=%v err=%v", result, err)
	}
}

func TestInterpret_StressGCDoesNotChangeObservableOutput(t *testing.T) {
	source := `
		fun makeCounter() {
			var i = 0;
			fun count() { i = i + 1; return i; }
			return count;
		}
		var c = makeCounter();
		print c();
		print c();
	`
	v := New()
	rec := &capturePrinter{}
	v.SetOutput(rec)
	v.SetStressGC(true)
	if _, err := v.Interpret(source); err != nil {
		t.Fatalf("unexpected error under stress GC: %v", err)
	}
	if got := strings.Join(rec.lines, ""); got != "1\n2\n" {
		t.Errorf("stress GC changed observable output: got %q", got)
	}
}

func TestInterpret_InternTableReusesEqualStrings(t *testing.T) {
	v := New()
	a := v.CopyString([]byte("shared"))
	before := v.BytesAllocated()
	b := v.CopyString([]byte("shared"))
	if a != b {
		t.Fatalf("expected equal-bytes strings to intern to the same pointer")
	}
	if v.BytesAllocated() != before {
		t.Errorf("re-interning an existing string should not grow bytesAllocated, got %d -> %d", before, v.BytesAllocated())
	}
}
