package vm

import (
	"bytes"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Low-level interpreter tests: hand-assembled chunks, bypassing the
// compiler entirely.
// ---------------------------------------------------------------------------

func TestInterpreterReturnsConstant(t *testing.T) {
	m := NewVM()
	defer m.Free()

	fn := m.NewFunctionObj("")
	chunk := fn.AsFunction().Chunk
	idx := chunk.AddConstant(NumberValue(42))
	chunk.WriteOp(OpConstant, 1)
	chunk.Write(byte(idx), 1)
	chunk.WriteOp(OpPop, 1)
	chunk.WriteOp(OpNil, 1)
	chunk.WriteOp(OpReturn, 1)

	if _, err := m.Run(fn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestInterpreterArithmetic(t *testing.T) {
	m := NewVM()
	defer m.Free()
	var out bytes.Buffer
	m.Out = &out

	fn := m.NewFunctionObj("")
	chunk := fn.AsFunction().Chunk
	a := chunk.AddConstant(NumberValue(3))
	b := chunk.AddConstant(NumberValue(4))
	chunk.WriteOp(OpConstant, 1)
	chunk.Write(byte(a), 1)
	chunk.WriteOp(OpConstant, 1)
	chunk.Write(byte(b), 1)
	chunk.WriteOp(OpAdd, 1)
	chunk.WriteOp(OpPrint, 1)
	chunk.WriteOp(OpNil, 1)
	chunk.WriteOp(OpReturn, 1)

	if _, err := m.Run(fn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "7" {
		t.Errorf("output = %q, want %q", got, "7")
	}
}

func TestInterpreterNegateNonNumberIsRuntimeError(t *testing.T) {
	m := NewVM()
	defer m.Free()

	fn := m.NewFunctionObj("")
	chunk := fn.AsFunction().Chunk
	chunk.WriteOp(OpTrue, 1)
	chunk.WriteOp(OpNegate, 1)
	chunk.WriteOp(OpReturn, 1)

	_, err := m.Run(fn)
	if err == nil {
		t.Fatal("expected a runtime error")
	}
	if !strings.Contains(err.Error(), "Operand must be a number") {
		t.Errorf("error = %q, want it to mention operand type", err.Error())
	}
}

func TestInterpreterCallNative(t *testing.T) {
	m := NewVM()
	defer m.Free()

	fn := m.NewFunctionObj("")
	chunk := fn.AsFunction().Chunk
	nameSlot := m.Globals.SlotFor("clock")
	chunk.WriteOp(OpGetGlobal, 1)
	chunk.Write(byte(nameSlot), 1)
	chunk.WriteOp(OpCall, 1)
	chunk.Write(0, 1)
	chunk.WriteOp(OpPop, 1)
	chunk.WriteOp(OpNil, 1)
	chunk.WriteOp(OpReturn, 1)

	if _, err := m.Run(fn); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
