package native

import (
	"strings"
	"testing"

	"github.com/covec/lumen/vm"
)

// buildScript assembles a chunk for a top-level script function, mirroring
// what compiler.Compile would emit for the given hand-written instructions,
// without going through the compiler package (native must not import it).
func buildScript(m *vm.VM, emit func(c *vm.Chunk)) *vm.Obj {
	obj := m.NewFunctionObj("")
	emit(obj.AsFunction().Chunk)
	return obj
}

func TestGenerateSourceConstantAndReturn(t *testing.T) {
	m := vm.NewVM()
	defer m.Free()

	obj := buildScript(m, func(c *vm.Chunk) {
		idx := c.AddConstant(vm.NumberValue(42))
		c.WriteOp(vm.OpConstant, 1)
		c.Write(byte(idx), 1)
		c.WriteOp(vm.OpPop, 1)
		c.WriteOp(vm.OpNil, 1)
		c.WriteOp(vm.OpReturn, 1)
	})

	units := Plan(obj)
	if len(units) != 1 {
		t.Fatalf("len(units) = %d, want 1", len(units))
	}
	src := GenerateSource("main", units)

	t.Logf("generated source:\n%s", src)

	if !strings.Contains(src, "func "+units[0].GoName+"(machine *vm.VM") {
		t.Error("missing compiled entry function declaration")
	}
	if !strings.Contains(src, "stack[top] = constants[0]") {
		t.Error("missing constant push")
	}
	if !strings.Contains(src, "func RegisterAll(install func(name string, entry vm.CompiledEntry))") {
		t.Error("missing RegisterAll")
	}
	if strings.Contains(src, `"math"`) {
		t.Error("math imported despite no MODULO instruction")
	}
}

func TestGenerateSourceModuloImportsMath(t *testing.T) {
	m := vm.NewVM()
	defer m.Free()

	obj := buildScript(m, func(c *vm.Chunk) {
		a := c.AddConstant(vm.NumberValue(7))
		b := c.AddConstant(vm.NumberValue(2))
		c.WriteOp(vm.OpConstant, 1)
		c.Write(byte(a), 1)
		c.WriteOp(vm.OpConstant, 1)
		c.Write(byte(b), 1)
		c.WriteOp(vm.OpModulo, 1)
		c.WriteOp(vm.OpPop, 1)
		c.WriteOp(vm.OpNil, 1)
		c.WriteOp(vm.OpReturn, 1)
	})

	src := GenerateSource("main", Plan(obj))
	if !strings.Contains(src, `"math"`) {
		t.Error(`expected "math" import for a MODULO instruction`)
	}
	if !strings.Contains(src, "math.Mod(a.Number, b.Number)") {
		t.Error("missing math.Mod lowering")
	}
}

func TestGenerateSourceConditionalEmitsLabelsAndGotos(t *testing.T) {
	m := vm.NewVM()
	defer m.Free()

	obj := buildScript(m, func(c *vm.Chunk) {
		c.WriteOp(vm.OpTrue, 1)
		thenJump := c.Len()
		c.WriteOp(vm.OpJumpIfFalse, 1)
		c.Write(0, 1)
		c.Write(0, 1)
		c.WriteOp(vm.OpPop, 1)

		idxThen := c.AddConstant(vm.NumberValue(1))
		c.WriteOp(vm.OpConstant, 1)
		c.Write(byte(idxThen), 1)
		c.WriteOp(vm.OpPop, 1)

		elseJump := c.Len()
		c.WriteOp(vm.OpJump, 1)
		c.Write(0, 1)
		c.Write(0, 1)

		thenTarget := c.Len()
		delta := thenTarget - (thenJump + 3)
		c.Code[thenJump+1] = byte(delta)
		c.Code[thenJump+2] = byte(delta >> 8)
		c.WriteOp(vm.OpPop, 1)

		idxElse := c.AddConstant(vm.NumberValue(0))
		c.WriteOp(vm.OpConstant, 1)
		c.Write(byte(idxElse), 1)
		c.WriteOp(vm.OpPop, 1)

		end := c.Len()
		edelta := end - (elseJump + 3)
		c.Code[elseJump+1] = byte(edelta)
		c.Code[elseJump+2] = byte(edelta >> 8)

		c.WriteOp(vm.OpNil, 1)
		c.WriteOp(vm.OpReturn, 1)
	})

	src := GenerateSource("main", Plan(obj))
	if !strings.Contains(src, "goto L") {
		t.Error("missing goto for a jump instruction")
	}
	if !strings.Contains(src, "if stack[top-1].IsFalsey() {") {
		t.Error("missing JUMP_IF_FALSE lowering")
	}
}

func TestGenerateSourceCallLowersByCalleeKind(t *testing.T) {
	m := vm.NewVM()
	defer m.Free()

	obj := buildScript(m, func(c *vm.Chunk) {
		slot := m.Globals.SlotFor("clock")
		c.WriteOp(vm.OpGetGlobal, 1)
		c.Write(byte(slot), 1)
		c.WriteOp(vm.OpCall, 1)
		c.Write(0, 1)
		c.WriteOp(vm.OpPop, 1)
		c.WriteOp(vm.OpNil, 1)
		c.WriteOp(vm.OpReturn, 1)
	})

	src := GenerateSource("main", Plan(obj))
	if !strings.Contains(src, "case callee.IsNative():") {
		t.Error("missing native call dispatch arm")
	}
	if !strings.Contains(src, "case callee.IsFunction():") {
		t.Error("missing function call dispatch arm")
	}
	if !strings.Contains(src, "native.CallError(machine") {
		t.Error("missing default call-error arm")
	}
}

func TestGoNameIsUniquePerUnit(t *testing.T) {
	m := vm.NewVM()
	defer m.Free()

	outer := m.NewFunctionObj("")
	inner := m.NewFunctionObj("helper")
	idx := outer.AsFunction().Chunk.AddConstant(vm.ObjValue(inner))
	outer.AsFunction().Chunk.WriteOp(vm.OpConstant, 1)
	outer.AsFunction().Chunk.Write(byte(idx), 1)
	outer.AsFunction().Chunk.WriteOp(vm.OpPop, 1)
	outer.AsFunction().Chunk.WriteOp(vm.OpNil, 1)
	outer.AsFunction().Chunk.WriteOp(vm.OpReturn, 1)

	units := Plan(outer)
	if len(units) != 2 {
		t.Fatalf("len(units) = %d, want 2", len(units))
	}
	if units[0].GoName == units[1].GoName {
		t.Errorf("units share a Go name: %q", units[0].GoName)
	}
}
