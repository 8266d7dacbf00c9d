// Package object implements glox's tagged Value representation and its
// heap object model: strings, functions, closures, upvalues, classes,
// instances, and bound methods, plus the hash table and allocator
// interface (Heap) that the collector and the front end share.
//
// The package intentionally folds what could be three separate
// components (value representation, heap object model, hash table) into
// one Go package: Class.Methods and Instance.Fields are *Table
// values, and Table entries are keyed on *String, so splitting Table into
// its own package would create an import cycle against object. Table
// still lives in its own file (table.go) to keep the concern legible.
package object

import "math"

// Type discriminates the variants of Value.
type Type byte

const (
	TypeNil Type = iota
	TypeBool
	TypeNumber
	TypeObj
)

// Value is glox's tagged union over nil, bool, number, and heap object.
//
// A naive stack slot could reach for `interface{}` instead, but that
// loses the ability to distinguish "holds a nil object reference" from
// "is the nil value" and makes NaN/number comparisons do the wrong thing
// through boxing. The explicit tag keeps equality and truthiness exact.
type Value struct {
	typ Type
	b   bool
	n   float64
	o   Obj
}

// Nil is the singleton nil value.
var Nil = Value{typ: TypeNil}

// Bool constructs a boolean Value.
func Bool(b bool) Value { return Value{typ: TypeBool, b: b} }

// Number constructs a numeric Value.
func Number(n float64) Value { return Value{typ: TypeNumber, n: n} }

// FromObj constructs a Value wrapping a heap object reference.
func FromObj(o Obj) Value { return Value{typ: TypeObj, o: o} }

func (v Value) IsNil() bool    { return v.typ == TypeNil }
func (v Value) IsBool() bool   { return v.typ == TypeBool }
func (v Value) IsNumber() bool { return v.typ == TypeNumber }
func (v Value) IsObj() bool    { return v.typ == TypeObj }

func (v Value) AsBool() bool    { return v.b }
func (v Value) AsNumber() float64 { return v.n }
func (v Value) AsObj() Obj      { return v.o }

// Is reports whether an object Value holds a heap object of the given kind.
func (v Value) Is(k Kind) bool { return v.typ == TypeObj && v.o != nil && v.o.Kind() == k }

// IsFalsey implements glox's truthiness rule: nil and false are falsey,
// everything else (including 0 and "") is truthy.
func (v Value) IsFalsey() bool {
	return v.IsNil() || (v.IsBool() && !v.AsBool())
}

// Equal implements Value equality: nil==nil, numbers by IEEE-754 equality
// (so NaN != NaN), booleans by value, objects by identity, and never
// across distinct variants — interned strings make reference equality
// and content equality coincide for OBJ_STRING.
func Equal(a, b Value) bool {
	if a.typ != b.typ {
		return false
	}
	switch a.typ {
	case TypeNil:
		return true
	case TypeBool:
		return a.b == b.b
	case TypeNumber:
		return a.n == b.n
	case TypeObj:
		return a.o == b.o
	default:
		return false
	}
}

// IsNaN reports whether a numeric Value holds NaN.
func (v Value) IsNaN() bool {
	return v.typ == TypeNumber && math.IsNaN(v.n)
}
