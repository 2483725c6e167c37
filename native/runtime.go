// Package native is the ahead-of-execution backend: it translates a
// compiled function's bytecode to Go source, builds it as a plugin, and
// links the result back into the VM as that function's CompiledEntry.
//
// This file is the runtime half of the ABI described by the generator:
// the small set of C-callable-shaped entry points that generated code
// calls back into for anything that can't be specialized inline (type
// errors, string concatenation, equality, native invocation, printing).
// Every generated function is built against this package by name, so
// its exported signatures are load-bearing -- changing one means
// regenerating every plugin.
package native

import "github.com/covec/lumen/vm"

// CallError records "object not callable" at pc and returns the
// RUNTIME_ERROR status code.
func CallError(machine *vm.VM, pc int) int32 {
	machine.SyncFrameIP(pc)
	err := machine.RuntimeErrorf("Can only call functions.")
	machine.SetPendingError(err)
	return vm.ResultRuntimeErrorCode
}

// NumberError records "operands must be numbers" at pc.
func NumberError(machine *vm.VM, pc int) int32 {
	machine.SyncFrameIP(pc)
	err := machine.RuntimeErrorf("Operands must be numbers.")
	machine.SetPendingError(err)
	return vm.ResultRuntimeErrorCode
}

// VariableError records "undefined variable <name>" for the global at
// globalSlot.
func VariableError(machine *vm.VM, globalSlot int, pc int) int32 {
	machine.SyncFrameIP(pc)
	err := machine.RuntimeErrorf("Undefined variable %s.", machine.Globals.Names[globalSlot])
	machine.SetPendingError(err)
	return vm.ResultRuntimeErrorCode
}

// ArityError records an argument-count mismatch.
func ArityError(machine *vm.VM, expected, got, pc int) int32 {
	machine.SyncFrameIP(pc)
	err := machine.RuntimeErrorf("Expected %d arguments but got %d.", expected, got)
	machine.SetPendingError(err)
	return vm.ResultRuntimeErrorCode
}

// Concatenate implements ADD's type-sensitive behavior for the generated
// code's non-number fast path: number+number never reaches here (the
// generator inlines it), so this only has to handle the string cases and
// the mixed string/number coercion.
func Concatenate(machine *vm.VM, a, b vm.Value, pc int) (vm.Value, int32) {
	switch {
	case a.IsString() && b.IsString():
		return vm.ObjValue(machine.NewStringObj(a.Obj.AsString() + b.Obj.AsString())), vm.ResultOKCode
	case a.IsString() && b.IsNumber():
		return vm.ObjValue(machine.NewStringObj(a.Obj.AsString() + vm.Stringize(b))), vm.ResultOKCode
	case a.IsNumber() && b.IsString():
		return vm.ObjValue(machine.NewStringObj(vm.Stringize(a) + b.Obj.AsString())), vm.ResultOKCode
	default:
		machine.SyncFrameIP(pc)
		err := machine.RuntimeErrorf("Operands must be two numbers or at least one string.")
		machine.SetPendingError(err)
		return vm.NilValue(), vm.ResultRuntimeErrorCode
	}
}

// Equal is Value equality, exposed for the generated EQUAL lowering.
func Equal(a, b vm.Value) bool {
	return a.Equal(b)
}

// Print writes v's display form with a trailing newline.
func Print(machine *vm.VM, v vm.Value) {
	machine.Print(v)
}

// CallNative invokes a native function with the given argument window and
// returns its result. Generated code calls this for the Native arm of
// CALL's kind dispatch; the Function arm invokes the callee's compiled
// entry point directly, since every user function is linked before the
// trampoline runs (§4.3 "Installation").
func CallNative(fn vm.NativeFn, argCount int, args []vm.Value) vm.Value {
	return fn(argCount, args)
}
