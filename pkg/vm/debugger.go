// Package vm - bytecode disassembler, debug only: no breakpoints or
// stepping, just a human-readable dump of a compiled chunk. It's
// stateless — it only ever needs the chunk being dumped, not a running
// VM.
package vm

import (
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/kristofer/glox/pkg/bytecode"
	"github.com/kristofer/glox/pkg/object"
)

var (
	opColor   = color.New(color.FgCyan)
	lineColor = color.New(color.FgHiBlack)
)

// DisassembleChunk writes a human-readable listing of every instruction
// in chunk to w, prefixed with name (the owning function's display
// name). Opcode mnemonics are colorized when w is a terminal-backed
// writer wrapped by a *color.Color-aware caller; color.NoColor disables
// it automatically when output isn't a TTY.
func DisassembleChunk(w io.Writer, chunk *object.Chunk, name string) {
	fmt.Fprintf(w, "== %s ==\n", name)
	for offset := 0; offset < len(chunk.Code); {
		offset = disassembleInstruction(w, chunk, offset)
	}
}

func disassembleInstruction(w io.Writer, chunk *object.Chunk, offset int) int {
	lineColor.Fprintf(w, "%4d ", chunk.LineAt(offset))
	op := bytecode.Op(chunk.Code[offset])
	switch op {
	case bytecode.OpConstant, bytecode.OpGetGlobal, bytecode.OpDefineGlobal,
		bytecode.OpSetGlobal, bytecode.OpGetProperty, bytecode.OpSetProperty,
		bytecode.OpGetSuper, bytecode.OpClass, bytecode.OpMethod:
		return constantInstruction(w, op, chunk, offset)
	case bytecode.OpGetLocal, bytecode.OpSetLocal, bytecode.OpGetUpvalue,
		bytecode.OpSetUpvalue, bytecode.OpCall:
		return byteInstruction(w, op, chunk, offset)
	case bytecode.OpInvoke, bytecode.OpSuperInvoke:
		return invokeInstruction(w, op, chunk, offset)
	case bytecode.OpJump, bytecode.OpJumpIfFalse:
		return jumpInstruction(w, op, 1, chunk, offset)
	case bytecode.OpLoop:
		return jumpInstruction(w, op, -1, chunk, offset)
	case bytecode.OpClosure:
		return closureInstruction(w, chunk, offset)
	default:
		opColor.Fprintf(w, "%s\n", op)
		return offset + 1
	}
}

func constantInstruction(w io.Writer, op bytecode.Op, chunk *object.Chunk, offset int) int {
	idx := chunk.Code[offset+1]
	opColor.Fprintf(w, "%-16s %4d '%s'\n", op, idx, object.Stringify(chunk.Constants[idx]))
	return offset + 2
}

func byteInstruction(w io.Writer, op bytecode.Op, chunk *object.Chunk, offset int) int {
	slot := chunk.Code[offset+1]
	opColor.Fprintf(w, "%-16s %4d\n", op, slot)
	return offset + 2
}

func invokeInstruction(w io.Writer, op bytecode.Op, chunk *object.Chunk, offset int) int {
	idx := chunk.Code[offset+1]
	argCount := chunk.Code[offset+2]
	opColor.Fprintf(w, "%-16s (%d args) %4d '%s'\n", op, argCount, idx, object.Stringify(chunk.Constants[idx]))
	return offset + 3
}

func jumpInstruction(w io.Writer, op bytecode.Op, sign int, chunk *object.Chunk, offset int) int {
	jump := int(chunk.Code[offset+1])<<8 | int(chunk.Code[offset+2])
	opColor.Fprintf(w, "%-16s %4d -> %d\n", op, offset, offset+3+sign*jump)
	return offset + 3
}

func closureInstruction(w io.Writer, chunk *object.Chunk, offset int) int {
	idx := chunk.Code[offset+1]
	opColor.Fprintf(w, "%-16s %4d '%s'\n", bytecode.OpClosure, idx, object.Stringify(chunk.Constants[idx]))
	offset += 2
	fn := chunk.Constants[idx].AsObj().(*object.Function)
	for i := 0; i < fn.UpvalueCount; i++ {
		isLocal := chunk.Code[offset]
		index := chunk.Code[offset+1]
		kind := "upvalue"
		if isLocal != 0 {
			kind = "local"
		}
		fmt.Fprintf(w, "%-20s %s %d\n", "", kind, index)
		offset += 2
	}
	return offset
}
