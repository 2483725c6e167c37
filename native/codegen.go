// Package native is documented in runtime.go; this file is the generator
// half: it walks a *vm.Chunk and emits the Go source of the function that
// implements vm.CompiledEntry for it.
package native

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/covec/lumen/vm"
)

// Unit is one function queued for ahead-of-execution compilation: the
// Function object whose CompiledEntry Build will install, and the
// generated symbol Build's caller should look up after linking.
type Unit struct {
	Obj        *vm.Obj
	GoName     string
	SourceName string // the language-level name, "" for the script
}

// Plan walks fn and every function reachable through its constant pool
// (nested `fun` declarations are compiled to CONSTANT entries in the
// enclosing chunk, per §4.1) and returns one Unit per distinct function,
// root first. A function reachable from more than one constant pool
// (e.g. a closure-free helper referenced twice) is only planned once,
// since Units key off the Obj's identity.
func Plan(root *vm.Obj) []*Unit {
	seen := make(map[*vm.Obj]bool)
	var units []*Unit
	var walk func(o *vm.Obj)
	walk = func(o *vm.Obj) {
		if seen[o] {
			return
		}
		seen[o] = true
		fn := o.AsFunction()
		units = append(units, &Unit{
			Obj:        o,
			GoName:     goName(fn.Name, len(units)),
			SourceName: fn.Name,
		})
		for _, c := range fn.Chunk.Constants {
			if c.IsFunction() {
				walk(c.Obj)
			}
		}
	}
	walk(root)
	return units
}

// goName derives a Go-safe, collision-free identifier for a compiled
// function. Lumen identifiers already satisfy Go's identifier grammar
// ([A-Za-z_][A-Za-z_0-9]*), so the only real risk is a name that happens
// to be a Go keyword or predeclared identifier (e.g. a script defining
// `fun type(x) {...}`); the Fn_ prefix sidesteps that entirely, and ord
// disambiguates the nameless top-level script and any theoretical
// duplicate.
func goName(name string, ord int) string {
	if name == "" {
		return fmt.Sprintf("Fn_script_%d", ord)
	}
	return fmt.Sprintf("Fn_%s_%d", name, ord)
}

// compiler holds the translation state for a single function's Go source.
// Mirrors the teacher's AOT compiler shape (a strings.Builder plus indent
// and label bookkeeping) generalized from one bytecode set to another.
type compiler struct {
	sb     strings.Builder
	indent int
}

func (c *compiler) writeLine(format string, args ...interface{}) {
	for i := 0; i < c.indent; i++ {
		c.sb.WriteString("\t")
	}
	fmt.Fprintf(&c.sb, format, args...)
	c.sb.WriteByte('\n')
}

// GenerateSource emits one Go source file containing every unit's
// compiled function plus the package header. pkgName is the generated
// package's own name (package main, for go build -buildmode=plugin).
//
// Each unit's body is independent of every other's, so build.go generates
// them concurrently and calls assembleSource directly instead of this
// function; GenerateSource stays around as the sequential, single-call
// form tests exercise.
func GenerateSource(pkgName string, units []*Unit) string {
	bodies := make([]string, len(units))
	for i, u := range units {
		bodies[i] = generateUnitSource(u)
	}
	return assembleSource(pkgName, units, bodies)
}

// generateUnitSource translates one unit's bytecode to the Go source of
// its CompiledEntry function, with no package header -- callers combine
// several units' bodies with assembleSource after generating them, which
// is safe to do concurrently since no unit's translation reads any other
// unit's state.
func generateUnitSource(u *Unit) string {
	c := &compiler{}
	c.compileFunction(u)
	return c.sb.String()
}

// assembleSource combines pre-generated per-unit bodies with the package
// header and the RegisterAll trailer every plugin build needs.
func assembleSource(pkgName string, units []*Unit, bodies []string) string {
	c := &compiler{}
	c.writeLine("package %s", pkgName)
	c.writeLine("")
	c.writeLine("import (")
	c.indent++
	if usesModulo(units) {
		c.writeLine(`"math"`)
	}
	c.writeLine(`"github.com/covec/lumen/native"`)
	c.writeLine(`"github.com/covec/lumen/vm"`)
	c.indent--
	c.writeLine(")")
	c.writeLine("")
	c.writeLine("// Referenced unconditionally so both imports are used even by a")
	c.writeLine("// program whose bytecode never needs them (e.g. no globals, no")
	c.writeLine("// calls, no operator that can mismatch types).")
	c.writeLine("var (")
	c.indent++
	c.writeLine("_ = native.Equal")
	c.writeLine("_ = vm.NilValue")
	c.indent--
	c.writeLine(")")
	c.writeLine("")

	for _, body := range bodies {
		c.sb.WriteString(body)
		c.writeLine("")
	}

	c.writeLine("// RegisterAll installs every generated entry point onto its")
	c.writeLine("// Function object. Looked up and called by name after the plugin")
	c.writeLine("// is opened; see native/build.go.")
	c.writeLine("func RegisterAll(install func(name string, entry vm.CompiledEntry)) {")
	c.indent++
	for _, u := range units {
		c.writeLine("install(%q, %s)", u.GoName, u.GoName)
	}
	c.indent--
	c.writeLine("}")

	return c.sb.String()
}

// compileFunction emits the Go function implementing u's CompiledEntry.
func (c *compiler) compileFunction(u *Unit) {
	fn := u.Obj.AsFunction()
	chunk := fn.Chunk

	c.writeLine("// %s compiles %s (arity %d).", u.GoName, displayName(u.SourceName), fn.Arity)
	c.writeLine("func %s(machine *vm.VM, globals []vm.Value, constants []vm.Value, stack []vm.Value, topPtr *int) int32 {", u.GoName)
	c.indent++
	c.writeLine("top := *topPtr")
	c.writeLine("base := top - %d - 1", fn.Arity)
	c.writeLine("_ = base")
	c.writeLine("goto L0")
	c.writeLine("")

	targets := jumpTargets(chunk.Code)
	c.compileBody(chunk, targets)

	c.indent--
	c.writeLine("}")
}

func displayName(name string) string {
	if name == "" {
		return "<script>"
	}
	return name
}

// jumpTargets returns the set of bytecode offsets that some JUMP, JUMP_IF_*
// or JUMP_BACK instruction lands on, the only offsets that need a Go
// label -- straight-line offsets just flow into the next statement.
func jumpTargets(code []byte) map[int]bool {
	targets := make(map[int]bool)
	pos := 0
	for pos < len(code) {
		op := vm.Opcode(code[pos])
		opStart := pos
		pos++
		switch op {
		case vm.OpJump, vm.OpJumpIfFalse, vm.OpJumpIfTrue:
			delta := int(binary.LittleEndian.Uint16(code[pos:]))
			pos += 2
			targets[opStart+3+delta] = true
		case vm.OpJumpBack:
			delta := int(binary.LittleEndian.Uint16(code[pos:]))
			pos += 2
			targets[opStart+3-delta] = true
		default:
			pos += op.OperandBytes()
		}
	}
	targets[0] = true
	return targets
}

// usesModulo reports whether any unit's chunk contains a MODULO
// instruction, so GenerateSource only imports "math" when it's needed --
// an unconditional import would leave it unused (a compile error) for
// any program whose bytecode never emits OpModulo.
func usesModulo(units []*Unit) bool {
	for _, u := range units {
		code := u.Obj.AsFunction().Chunk.Code
		pos := 0
		for pos < len(code) {
			op := vm.Opcode(code[pos])
			pos++
			if op == vm.OpModulo {
				return true
			}
			pos += op.OperandBytes()
		}
	}
	return false
}

func read24(code []byte, offset int) int {
	return int(code[offset]) | int(code[offset+1])<<8 | int(code[offset+2])<<16
}

// compileBody performs the second pass: one emitted block of statements
// per instruction, each preceded by its label (L<offset>:) if that offset
// is a jump target. Control transfers are `goto L<target>` -- literal
// labels standing in for the SSA basic-block graph, since Go has no
// first-class basic blocks of its own.
func (c *compiler) compileBody(chunk *vm.Chunk, targets map[int]bool) {
	code := chunk.Code
	pos := 0
	for pos < len(code) {
		if targets[pos] {
			c.indent--
			c.writeLine("L%d:", pos)
			c.indent++
		}

		opStart := pos
		op := vm.Opcode(code[pos])
		pos++

		switch op {
		case vm.OpConstant:
			idx := int(code[pos])
			pos++
			c.writeLine("stack[top] = constants[%d]", idx)
			c.writeLine("top++")

		case vm.OpConstantLong:
			idx := read24(code, pos)
			pos += 3
			c.writeLine("stack[top] = constants[%d]", idx)
			c.writeLine("top++")

		case vm.OpNil:
			c.writeLine("stack[top] = vm.NilValue()")
			c.writeLine("top++")

		case vm.OpTrue:
			c.writeLine("stack[top] = vm.BoolValue(true)")
			c.writeLine("top++")

		case vm.OpFalse:
			c.writeLine("stack[top] = vm.BoolValue(false)")
			c.writeLine("top++")

		case vm.OpPop:
			c.writeLine("top--")

		case vm.OpDup:
			c.writeLine("stack[top] = stack[top-1]")
			c.writeLine("top++")

		case vm.OpGetLocal:
			slot := int(code[pos])
			pos++
			c.writeLine("stack[top] = stack[base+%d]", slot)
			c.writeLine("top++")

		case vm.OpGetLocalShort:
			slot := int(binary.LittleEndian.Uint16(code[pos:]))
			pos += 2
			c.writeLine("stack[top] = stack[base+%d]", slot)
			c.writeLine("top++")

		case vm.OpSetLocal:
			slot := int(code[pos])
			pos++
			c.writeLine("stack[base+%d] = stack[top-1]", slot)

		case vm.OpSetLocalShort:
			slot := int(binary.LittleEndian.Uint16(code[pos:]))
			pos += 2
			c.writeLine("stack[base+%d] = stack[top-1]", slot)

		case vm.OpGetGlobal:
			slot := int(code[pos])
			pos++
			c.emitGetGlobal(slot, opStart)

		case vm.OpGetGlobalLong:
			slot := read24(code, pos)
			pos += 3
			c.emitGetGlobal(slot, opStart)

		case vm.OpSetGlobal:
			slot := int(code[pos])
			pos++
			c.emitSetGlobal(slot, opStart)

		case vm.OpSetGlobalLong:
			slot := read24(code, pos)
			pos += 3
			c.emitSetGlobal(slot, opStart)

		case vm.OpDefineGlobal:
			slot := int(code[pos])
			pos++
			c.writeLine("globals[%d] = stack[top-1]", slot)
			c.writeLine("top--")

		case vm.OpDefineGlobalLong:
			slot := read24(code, pos)
			pos += 3
			c.writeLine("globals[%d] = stack[top-1]", slot)
			c.writeLine("top--")

		case vm.OpEqual:
			c.writeLine("{")
			c.indent++
			c.writeLine("b := stack[top-1]")
			c.writeLine("a := stack[top-2]")
			c.writeLine("top -= 2")
			c.writeLine("stack[top] = vm.BoolValue(native.Equal(a, b))")
			c.writeLine("top++")
			c.indent--
			c.writeLine("}")

		case vm.OpGreater:
			c.emitComparison(">", opStart)

		case vm.OpLess:
			c.emitComparison("<", opStart)

		case vm.OpAdd:
			c.emitAdd(opStart)

		case vm.OpSubtract:
			c.emitArithmetic("-", opStart)

		case vm.OpMultiply:
			c.emitArithmetic("*", opStart)

		case vm.OpDivide:
			c.emitArithmetic("/", opStart)

		case vm.OpModulo:
			c.emitModulo(opStart)

		case vm.OpNot:
			c.writeLine("stack[top-1] = vm.BoolValue(stack[top-1].IsFalsey())")

		case vm.OpNegate:
			c.writeLine("if !stack[top-1].IsNumber() {")
			c.indent++
			c.writeLine("*topPtr = top")
			c.writeLine("return native.NumberError(machine, %d)", opStart)
			c.indent--
			c.writeLine("}")
			c.writeLine("stack[top-1] = vm.NumberValue(-stack[top-1].Number)")

		case vm.OpPrint:
			c.writeLine("top--")
			c.writeLine("native.Print(machine, stack[top])")

		case vm.OpJump:
			delta := int(binary.LittleEndian.Uint16(code[pos:]))
			pos += 2
			c.writeLine("goto L%d", opStart+3+delta)

		case vm.OpJumpIfFalse:
			delta := int(binary.LittleEndian.Uint16(code[pos:]))
			pos += 2
			c.writeLine("if stack[top-1].IsFalsey() {")
			c.indent++
			c.writeLine("goto L%d", opStart+3+delta)
			c.indent--
			c.writeLine("}")

		case vm.OpJumpIfTrue:
			delta := int(binary.LittleEndian.Uint16(code[pos:]))
			pos += 2
			c.writeLine("if !stack[top-1].IsFalsey() {")
			c.indent++
			c.writeLine("goto L%d", opStart+3+delta)
			c.indent--
			c.writeLine("}")

		case vm.OpJumpBack:
			delta := int(binary.LittleEndian.Uint16(code[pos:]))
			pos += 2
			c.writeLine("goto L%d", opStart+3-delta)

		case vm.OpCall:
			argCount := int(code[pos])
			pos++
			c.emitCall(argCount, opStart)

		case vm.OpReturn:
			c.writeLine("{")
			c.indent++
			c.writeLine("result := stack[top-1]")
			c.writeLine("stack[base] = result")
			c.writeLine("*topPtr = base + 1")
			c.writeLine("return vm.ResultOKCode")
			c.indent--
			c.writeLine("}")

		default:
			c.writeLine("// unreachable: unknown opcode %d at %d", byte(op), opStart)
		}
	}
}

func (c *compiler) emitGetGlobal(slot, pc int) {
	c.writeLine("if globals[%d].Kind == vm.KindUndefined {", slot)
	c.indent++
	c.writeLine("*topPtr = top")
	c.writeLine("return native.VariableError(machine, %d, %d)", slot, pc)
	c.indent--
	c.writeLine("}")
	c.writeLine("stack[top] = globals[%d]", slot)
	c.writeLine("top++")
}

func (c *compiler) emitSetGlobal(slot, pc int) {
	c.writeLine("if globals[%d].Kind == vm.KindUndefined {", slot)
	c.indent++
	c.writeLine("*topPtr = top")
	c.writeLine("return native.VariableError(machine, %d, %d)", slot, pc)
	c.indent--
	c.writeLine("}")
	c.writeLine("globals[%d] = stack[top-1]", slot)
}

func (c *compiler) emitComparison(op string, pc int) {
	c.writeLine("{")
	c.indent++
	c.writeLine("b := stack[top-1]")
	c.writeLine("a := stack[top-2]")
	c.writeLine("top -= 2")
	c.writeLine("if !a.IsNumber() || !b.IsNumber() {")
	c.indent++
	c.writeLine("*topPtr = top")
	c.writeLine("return native.NumberError(machine, %d)", pc)
	c.indent--
	c.writeLine("}")
	c.writeLine("stack[top] = vm.BoolValue(a.Number %s b.Number)", op)
	c.writeLine("top++")
	c.indent--
	c.writeLine("}")
}

func (c *compiler) emitArithmetic(op string, pc int) {
	c.writeLine("{")
	c.indent++
	c.writeLine("b := stack[top-1]")
	c.writeLine("a := stack[top-2]")
	c.writeLine("top -= 2")
	c.writeLine("if !a.IsNumber() || !b.IsNumber() {")
	c.indent++
	c.writeLine("*topPtr = top")
	c.writeLine("return native.NumberError(machine, %d)", pc)
	c.indent--
	c.writeLine("}")
	c.writeLine("stack[top] = vm.NumberValue(a.Number %s b.Number)", op)
	c.writeLine("top++")
	c.indent--
	c.writeLine("}")
}

func (c *compiler) emitModulo(pc int) {
	c.writeLine("{")
	c.indent++
	c.writeLine("b := stack[top-1]")
	c.writeLine("a := stack[top-2]")
	c.writeLine("top -= 2")
	c.writeLine("if !a.IsNumber() || !b.IsNumber() {")
	c.indent++
	c.writeLine("*topPtr = top")
	c.writeLine("return native.NumberError(machine, %d)", pc)
	c.indent--
	c.writeLine("}")
	c.writeLine("stack[top] = vm.NumberValue(math.Mod(a.Number, b.Number))")
	c.writeLine("top++")
	c.indent--
	c.writeLine("}")
}

// emitAdd lowers ADD's type-sensitive behavior. The number+number case is
// specialized inline; anything else calls Concatenate, matching §4.3's
// "ADD branches to concatenate when at least one operand is non-number".
func (c *compiler) emitAdd(pc int) {
	c.writeLine("{")
	c.indent++
	c.writeLine("b := stack[top-1]")
	c.writeLine("a := stack[top-2]")
	c.writeLine("top -= 2")
	c.writeLine("if a.IsNumber() && b.IsNumber() {")
	c.indent++
	c.writeLine("stack[top] = vm.NumberValue(a.Number + b.Number)")
	c.writeLine("top++")
	c.indent--
	c.writeLine("} else {")
	c.indent++
	c.writeLine("result, status := native.Concatenate(machine, a, b, %d)", pc)
	c.writeLine("if status != vm.ResultOKCode {")
	c.indent++
	c.writeLine("*topPtr = top")
	c.writeLine("return status")
	c.indent--
	c.writeLine("}")
	c.writeLine("stack[top] = result")
	c.writeLine("top++")
	c.indent--
	c.writeLine("}")
	c.indent--
	c.writeLine("}")
}

// emitCall lowers CALL by dispatching on the callee's object kind
// directly in the generated code, per §4.3: Native resolves inline,
// Function invokes the callee's own CompiledEntry (every function in the
// program is linked before the trampoline runs, so this is never nil),
// and anything else is call_error.
func (c *compiler) emitCall(argCount, pc int) {
	c.writeLine("{")
	c.indent++
	c.writeLine("calleeIdx := top - %d - 1", argCount)
	c.writeLine("callee := stack[calleeIdx]")
	c.writeLine("switch {")
	c.writeLine("case callee.IsNative():")
	c.indent++
	c.writeLine("args := stack[calleeIdx+1 : top]")
	c.writeLine("result := native.CallNative(callee.Obj.AsNative(), %d, args)", argCount)
	c.writeLine("top = calleeIdx")
	c.writeLine("stack[top] = result")
	c.writeLine("top++")
	c.indent--
	c.writeLine("case callee.IsFunction():")
	c.indent++
	c.writeLine("fn := callee.Obj.AsFunction()")
	c.writeLine("if %d != fn.Arity {", argCount)
	c.indent++
	c.writeLine("*topPtr = top")
	c.writeLine("return native.ArityError(machine, fn.Arity, %d, %d)", argCount, pc)
	c.indent--
	c.writeLine("}")
	c.writeLine("*topPtr = top")
	c.writeLine("status := fn.CompiledEntry(machine, globals, fn.Chunk.Constants, stack, topPtr)")
	c.writeLine("top = *topPtr")
	c.writeLine("if status != vm.ResultOKCode {")
	c.indent++
	c.writeLine("return status")
	c.indent--
	c.writeLine("}")
	c.indent--
	c.writeLine("default:")
	c.indent++
	c.writeLine("*topPtr = top")
	c.writeLine("return native.CallError(machine, %d)", pc)
	c.indent--
	c.writeLine("}")
	c.indent--
	c.writeLine("}")
}
