package vm

import (
	"github.com/kristofer/glox/pkg/bytecode"
	"github.com/kristofer/glox/pkg/object"
)

// run is the dispatch loop: it holds a cached frame pointer into the top
// of the call-frame array and executes bytecode until the frame stack
// empties (successful return from the top-level script) or a runtime
// error unwinds it.
func (vm *VM) run() (InterpretResult, error) {
	frame := &vm.frames[vm.frameCount-1]

	readByte := func() byte {
		b := frame.closure.Function.Chunk.Code[frame.ip]
		frame.ip++
		return b
	}
	readShort := func() uint16 {
		hi := frame.closure.Function.Chunk.Code[frame.ip]
		lo := frame.closure.Function.Chunk.Code[frame.ip+1]
		frame.ip += 2
		return uint16(hi)<<8 | uint16(lo)
	}
	readConstant := func() object.Value {
		return frame.closure.Function.Chunk.Constants[readByte()]
	}
	readString := func() *object.String {
		return readConstant().AsObj().(*object.String)
	}

	for {
		if vm.stressGC {
			vm.collectGarbage()
		}

		op := bytecode.Op(readByte())
		switch op {
		case bytecode.OpConstant:
			vm.Push(readConstant())

		case bytecode.OpNil:
			vm.Push(object.Nil)
		case bytecode.OpTrue:
			vm.Push(object.Bool(true))
		case bytecode.OpFalse:
			vm.Push(object.Bool(false))

		case bytecode.OpPop:
			vm.Pop()

		case bytecode.OpGetLocal:
			slot := readByte()
			vm.Push(vm.stack[frame.slotsBase+int(slot)])

		case bytecode.OpSetLocal:
			slot := readByte()
			vm.stack[frame.slotsBase+int(slot)] = vm.peek(0)

		case bytecode.OpGetGlobal:
			name := readString()
			v, ok := vm.globals.Get(name)
			if !ok {
				return InterpretRuntimeError, vm.runtimeError("Undefined variable '%s'.", name.Go())
			}
			vm.Push(v)

		case bytecode.OpDefineGlobal:
			name := readString()
			vm.globals.Set(name, vm.peek(0))
			vm.Pop()

		case bytecode.OpSetGlobal:
			name := readString()
			if vm.globals.Set(name, vm.peek(0)) {
				vm.globals.Delete(name)
				return InterpretRuntimeError, vm.runtimeError("Undefined variable '%s'.", name.Go())
			}

		case bytecode.OpGetUpvalue:
			slot := readByte()
			vm.Push(*frame.closure.Upvalues[slot].Location)

		case bytecode.OpSetUpvalue:
			slot := readByte()
			*frame.closure.Upvalues[slot].Location = vm.peek(0)

		case bytecode.OpGetProperty:
			if !vm.peek(0).Is(object.KindInstance) {
				return InterpretRuntimeError, vm.runtimeError("Only instances have properties.")
			}
			instance := vm.peek(0).AsObj().(*object.Instance)
			name := readString()
			if v, ok := instance.Fields.Get(name); ok {
				vm.Pop()
				vm.Push(v)
				break
			}
			if err := vm.bindMethod(instance.Class, name); err != nil {
				return InterpretRuntimeError, err
			}

		case bytecode.OpSetProperty:
			if !vm.peek(1).Is(object.KindInstance) {
				return InterpretRuntimeError, vm.runtimeError("Only instances have fields.")
			}
			instance := vm.peek(1).AsObj().(*object.Instance)
			instance.Fields.Set(readString(), vm.peek(0))
			v := vm.Pop()
			vm.Pop()
			vm.Push(v)

		case bytecode.OpGetSuper:
			name := readString()
			super := vm.Pop().AsObj().(*object.Class)
			if err := vm.bindMethod(super, name); err != nil {
				return InterpretRuntimeError, err
			}

		case bytecode.OpEqual:
			b := vm.Pop()
			a := vm.Pop()
			vm.Push(object.Bool(object.Equal(a, b)))

		case bytecode.OpGreater, bytecode.OpLess:
			if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
				return InterpretRuntimeError, vm.runtimeError("Operands must be numbers.")
			}
			b := vm.Pop().AsNumber()
			a := vm.Pop().AsNumber()
			if op == bytecode.OpGreater {
				vm.Push(object.Bool(a > b))
			} else {
				vm.Push(object.Bool(a < b))
			}

		case bytecode.OpAdd:
			switch {
			case vm.peek(0).Is(object.KindString) && vm.peek(1).Is(object.KindString):
				vm.concatenate()
			case vm.peek(0).IsNumber() && vm.peek(1).IsNumber():
				b := vm.Pop().AsNumber()
				a := vm.Pop().AsNumber()
				vm.Push(object.Number(a + b))
			default:
				return InterpretRuntimeError, vm.runtimeError("Operands must be two numbers or two strings.")
			}

		case bytecode.OpSubtract, bytecode.OpMultiply, bytecode.OpDivide:
			if !vm.peek(0).IsNumber() || !vm.peek(1).IsNumber() {
				return InterpretRuntimeError, vm.runtimeError("Operands must be numbers.")
			}
			b := vm.Pop().AsNumber()
			a := vm.Pop().AsNumber()
			switch op {
			case bytecode.OpSubtract:
				vm.Push(object.Number(a - b))
			case bytecode.OpMultiply:
				vm.Push(object.Number(a * b))
			case bytecode.OpDivide:
				vm.Push(object.Number(a / b))
			}

		case bytecode.OpNot:
			vm.Push(object.Bool(vm.Pop().IsFalsey()))

		case bytecode.OpNegate:
			if !vm.peek(0).IsNumber() {
				return InterpretRuntimeError, vm.runtimeError("Operand must be a number.")
			}
			vm.Push(object.Number(-vm.Pop().AsNumber()))

		case bytecode.OpPrint:
			vm.out.Printf("%s\n", object.Stringify(vm.Pop()))

		case bytecode.OpJump:
			offset := readShort()
			frame.ip += int(offset)

		case bytecode.OpJumpIfFalse:
			offset := readShort()
			if vm.peek(0).IsFalsey() {
				frame.ip += int(offset)
			}

		case bytecode.OpLoop:
			offset := readShort()
			frame.ip -= int(offset)

		case bytecode.OpCall:
			argCount := int(readByte())
			if err := vm.callValue(vm.peek(argCount), argCount); err != nil {
				return InterpretRuntimeError, err
			}
			frame = &vm.frames[vm.frameCount-1]

		case bytecode.OpInvoke:
			name := readString()
			argCount := int(readByte())
			if err := vm.invoke(name, argCount); err != nil {
				return InterpretRuntimeError, err
			}
			frame = &vm.frames[vm.frameCount-1]

		case bytecode.OpSuperInvoke:
			name := readString()
			argCount := int(readByte())
			super := vm.Pop().AsObj().(*object.Class)
			if err := vm.invokeFromClass(super, name, argCount); err != nil {
				return InterpretRuntimeError, err
			}
			frame = &vm.frames[vm.frameCount-1]

		case bytecode.OpClosure:
			fn := readConstant().AsObj().(*object.Function)
			closure := vm.newClosure(fn)
			vm.Push(object.FromObj(closure))
			for i := 0; i < fn.UpvalueCount; i++ {
				isLocal := readByte()
				index := readByte()
				if isLocal != 0 {
					closure.Upvalues[i] = vm.captureUpvalue(&vm.stack[frame.slotsBase+int(index)])
				} else {
					closure.Upvalues[i] = frame.closure.Upvalues[index]
				}
			}

		case bytecode.OpCloseUpvalue:
			vm.closeUpvalues(&vm.stack[vm.stackTop-1])
			vm.Pop()

		case bytecode.OpReturn:
			result := vm.Pop()
			vm.closeUpvalues(&vm.stack[frame.slotsBase])
			vm.frameCount--
			if vm.frameCount == 0 {
				vm.Pop()
				return InterpretOK, nil
			}
			vm.stackTop = frame.slotsBase
			vm.Push(result)
			frame = &vm.frames[vm.frameCount-1]

		case bytecode.OpClass:
			vm.Push(object.FromObj(vm.newClass(readString())))

		case bytecode.OpInherit:
			superVal := vm.peek(1)
			if !superVal.Is(object.KindClass) {
				return InterpretRuntimeError, vm.runtimeError("Superclass must be a class.")
			}
			subclass := vm.peek(0).AsObj().(*object.Class)
			object.AddAll(superVal.AsObj().(*object.Class).Methods, subclass.Methods)
			vm.Pop() // subclass

		case bytecode.OpMethod:
			vm.defineMethod(readString())

		default:
			return InterpretRuntimeError, vm.runtimeError("Unknown opcode %d.", op)
		}
	}
}

// concatenate implements string ADD. Per the hidden-root
// rule, the two operand strings are only peeked (not popped) while the
// result byte buffer and the result string object are allocated, so
// root-scanning still finds them if either allocation triggers a
// collection; only once the new string exists are the operands popped
// and the result pushed.
func (vm *VM) concatenate() {
	b := vm.peek(0).AsObj().(*object.String)
	a := vm.peek(1).AsObj().(*object.String)

	buf := make([]byte, 0, len(a.Chars)+len(b.Chars))
	buf = append(buf, a.Chars...)
	buf = append(buf, b.Chars...)
	result := vm.TakeString(buf)

	vm.Pop()
	vm.Pop()
	vm.Push(object.FromObj(result))
}

// defineMethod binds the closure on top of the stack under name into the
// class below it, then pops the closure (the METHOD opcode).
func (vm *VM) defineMethod(name *object.String) {
	method := vm.peek(0)
	class := vm.peek(1).AsObj().(*object.Class)
	class.Methods.Set(name, method)
	vm.Pop()
}
