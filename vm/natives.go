package vm

import (
	"fmt"
	"time"
)

// DefineNative installs a host-provided native function under name in the
// global table, the way the VM's constructor registers built-ins before
// any script runs (spec §5 "Resource discipline").
func (vm *VM) DefineNative(name string, fn NativeFn) {
	obj := vm.NewNativeObj(fn)
	slot := vm.Globals.SlotFor(name)
	vm.Globals.Values[slot] = ObjValue(obj)
}

// registerBuiltins installs the built-in natives every VM starts with:
// clock(), carried verbatim from spec §6, plus len and str, the two small
// deterministic utilities original_source/src/nativeFunctions.hpp defines
// alongside clock.
func (vm *VM) registerBuiltins() {
	vm.DefineNative("clock", nativeClock)
	vm.DefineNative("len", nativeLen)
	// str allocates its result through this VM's string interner, so it is
	// bound as a closure rather than a free function -- every heap object
	// is created through the owning VM's allocator (spec §3 "Lifecycle"),
	// and there is no process-wide VM singleton to reach for instead.
	vm.DefineNative("str", func(argCount int, args []Value) Value {
		if argCount != 1 {
			return NilValue()
		}
		return ObjValue(vm.NewStringObj(stringizeValue(args[0])))
	})
}

// nativeClock returns milliseconds elapsed since local midnight, as a
// double -- spec §6's one mandated built-in.
func nativeClock(argCount int, args []Value) Value {
	now := time.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return NumberValue(float64(now.Sub(midnight).Milliseconds()))
}

// nativeLen returns the rune length of a string argument. For any other
// argument type, or an argument count other than one, it returns 0; a
// native has no way to raise a runtime error itself.
func nativeLen(argCount int, args []Value) Value {
	if argCount != 1 || !args[0].IsString() {
		return NumberValue(0)
	}
	return NumberValue(float64(len([]rune(args[0].Obj.AsString()))))
}

// Stringize renders v the way PRINT and string-coercing ADD do. Exported
// so the native package's ABI (Concatenate, Print) shares the exact same
// formatting as the interpreter instead of re-deriving it.
func Stringize(v Value) string {
	return stringizeValue(v)
}

// stringizeValue renders v using the same %g-based formatting the
// interpreter's ADD uses when coercing a number into a concatenation.
func stringizeValue(v Value) string {
	switch v.Kind {
	case KindBool:
		if v.Bool {
			return "true"
		}
		return "false"
	case KindNil:
		return "nil"
	case KindNumber:
		return fmt.Sprintf("%g", v.Number)
	case KindObj:
		switch v.Obj.Kind {
		case ObjString:
			return v.Obj.AsString()
		case ObjFunction:
			return fmt.Sprintf("<fn %s>", v.Obj.AsFunction().DisplayName())
		case ObjNative:
			return "<native fn>"
		}
	}
	return "undefined"
}
