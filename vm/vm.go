package vm

import (
	"fmt"
	"io"
	"os"
)

// Globals holds the three parallel structures a script's global scope
// needs: a name->slot table, an index->name sequence for diagnostics, and
// an index->value sequence where Undefined means "declared but not yet
// defined". Slots are allocated on first textual reference, so the
// compiler calls SlotFor for both reads and writes before a global is
// necessarily defined by a runtime DEFINE_GLOBAL.
type Globals struct {
	indices *Table
	Names   []string
	Values  []Value
}

func NewGlobals() *Globals {
	return &Globals{indices: NewTable()}
}

// SlotFor returns the slot index for name, allocating a new Undefined
// slot on first reference.
func (g *Globals) SlotFor(name string) int {
	if v, ok := g.indices.Get(name); ok {
		return v.(int)
	}
	idx := len(g.Names)
	g.indices.Set(name, idx)
	g.Names = append(g.Names, name)
	g.Values = append(g.Values, UndefinedValue())
	return idx
}

// Lookup returns the slot for name without allocating one.
func (g *Globals) Lookup(name string) (int, bool) {
	v, ok := g.indices.Get(name)
	if !ok {
		return 0, false
	}
	return v.(int), true
}

// VM is a scoped resource: one instance per script run, owning its own
// stack, frames, globals, interned strings and all-objects list. There is
// no process-wide singleton; every native, every allocation, and every
// runtime error is reached through a *VM passed explicitly.
type VM struct {
	Stack    [MaxStack]Value
	StackTop int

	Frames     [MaxFrames]CallFrame
	FrameCount int

	Globals *Globals
	Strings *Table

	objects          *Obj
	nextIdentityHash uint64

	Out    io.Writer
	ErrOut io.Writer

	// pendingError stashes a runtime error raised by a native-compiled
	// function across the plugin ABI boundary, where a call can only
	// return an int32 status code (§4.3's runtime-call table). The
	// trampoline reads it back out once a compiled entry returns
	// ResultRuntimeErrorCode.
	pendingError *RuntimeError
}

// NewVM constructs a VM with its built-in natives registered.
func NewVM() *VM {
	vm := &VM{
		Globals: NewGlobals(),
		Strings: NewTable(),
		Out:     os.Stdout,
		ErrOut:  os.Stderr,
	}
	vm.registerBuiltins()
	return vm
}

// Free drains the all-objects list at VM teardown. There is no tracing
// collector: once unlinked here the objects are simply unreferenced and
// the Go runtime reclaims them, but walking and unlinking the list keeps
// the lifecycle explicit rather than implicit.
func (vm *VM) Free() {
	for o := vm.objects; o != nil; {
		next := o.Next
		o.Next = nil
		o = next
	}
	vm.objects = nil
}

func (vm *VM) resetStack() {
	vm.StackTop = 0
	vm.FrameCount = 0
}

func (vm *VM) push(v Value) {
	vm.Stack[vm.StackTop] = v
	vm.StackTop++
}

func (vm *VM) pop() Value {
	vm.StackTop--
	return vm.Stack[vm.StackTop]
}

func (vm *VM) peek(distanceFromTop int) Value {
	return vm.Stack[vm.StackTop-1-distanceFromTop]
}

// Run executes fn, the compiled top-level script function, under the
// stack-based interpreter. A fresh frame 0 is pushed with slot 0 holding
// fn itself, reserving slot 0 the way every call frame does.
func (vm *VM) Run(fn *Obj) (ResultCode, error) {
	vm.resetStack()
	vm.push(ObjValue(fn))
	vm.Frames[0] = CallFrame{Function: fn, IP: 0, Base: 0}
	vm.FrameCount = 1

	if err := vm.runLoop(); err != nil {
		vm.resetStack()
		return ResultRuntimeError, err
	}
	return ResultOK, nil
}

// RuntimeErrorf is exported so the native package's runtime-call ABI
// (call_error, number_error, variable_error, arity_error) can raise the
// same structured *RuntimeError the interpreter raises, keeping the two
// backends' error text and line reporting identical.
func (vm *VM) RuntimeErrorf(format string, args ...interface{}) *RuntimeError {
	return vm.newRuntimeError(format, args...)
}

// Print writes v's display form followed by a newline to vm.Out.
func (vm *VM) Print(v Value) {
	fmt.Fprintln(vm.Out, stringizeValue(v))
}

// SetPendingError and PendingError carry a *RuntimeError across the
// native plugin ABI, whose functions return only an int32 status.
func (vm *VM) SetPendingError(err *RuntimeError) {
	vm.pendingError = err
}

func (vm *VM) PendingError() *RuntimeError {
	return vm.pendingError
}

// SyncFrameIP records pc as the innermost frame's instruction pointer
// before a runtime error is raised. Generated native code has no frame to
// advance the way the interpreter's fetch-decode loop does, so each ABI
// error function calls this first, passing the offset of the failing
// instruction -- keeping newRuntimeError's line lookup accurate for the
// native path the same way frame.IP already is for the interpreted one.
func (vm *VM) SyncFrameIP(pc int) {
	if vm.FrameCount > 0 {
		vm.Frames[vm.FrameCount-1].IP = pc + 1
	}
}

// RunCompiled invokes fn's native-compiled entry point instead of
// interpreting its Chunk, following the same call convention CALL uses:
// slot 0 holds fn itself, stack_top starts at 1. A frame is pushed for fn
// exactly as Run does, purely so SyncFrameIP has somewhere to record the
// faulting offset; the native entry never reads or advances it itself.
func (vm *VM) RunCompiled(fn *Obj) (ResultCode, error) {
	vm.resetStack()
	vm.push(ObjValue(fn))
	vm.Frames[0] = CallFrame{Function: fn, IP: 0, Base: 0}
	vm.FrameCount = 1
	vm.pendingError = nil

	entry := fn.AsFunction().CompiledEntry
	if entry == nil {
		return ResultRuntimeError, vm.newRuntimeError("Function has no compiled entry.")
	}

	status := entry(vm, vm.Globals.Values, fn.AsFunction().Chunk.Constants, vm.Stack[:], &vm.StackTop)
	if status == ResultRuntimeErrorCode {
		vm.resetStack()
		return ResultRuntimeError, vm.pendingError
	}
	return ResultOK, nil
}
