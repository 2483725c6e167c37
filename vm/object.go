package vm

// ObjKind tags the variant held by an Obj.
type ObjKind uint8

const (
	ObjString ObjKind = iota
	ObjFunction
	ObjNative
)

// NativeFn is the signature of a host-provided built-in: it receives the
// argument count and a slice over the arguments (args[0] is the first
// argument) and returns a Value.
type NativeFn func(argCount int, args []Value) Value

// CompiledEntry is the ABI signature the native-code generator installs
// into a Function's CompiledEntry slot once the function has been lowered
// and linked. It mirrors the bytecode VM's own call protocol: the callee
// reads its arguments from the caller's stack window starting at *top-n,
// and returns a result code -- 0 for OK, 2 for a runtime error (matching
// ResultRuntimeError). On OK its return value is left in the callee's own
// slot at *top-n-1, and *top is set to just above it.
//
// constants is the owning Function's own Chunk.Constants: unlike the
// generator's original target, a Go plugin is loaded into the same
// address space it was built from, so there is no need to bake constant
// values into the generated source as pointer casts -- the caller simply
// passes the slice it already has (fn.Chunk.Constants) at each call.
type CompiledEntry func(vm *VM, globals []Value, constants []Value, stackWindow []Value, stackTop *int) int32

// Obj is the common representation for every heap-allocated value: a
// variant type with a shared header (Next, IdentityHash, Kind) exactly as
// spec'd, so the interpreter and the native backend switch on Kind
// instead of relying on dynamic dispatch.
type Obj struct {
	Kind ObjKind
	// Next links every live object in the VM's all-objects list, used only
	// for bulk destruction at VM teardown -- there is no GC.
	Next *Obj
	// IdentityHash is assigned once, at allocation, and never changes.
	IdentityHash uint64

	str string

	fn *Function

	native NativeFn
}

// Function describes a user-defined function: its arity, optional name,
// bytecode Chunk, and (once the native backend has run) a compiled entry
// point.
type Function struct {
	Name string // "" for the top-level script; printed as "<script>"
	Arity int
	Chunk *Chunk

	// CompiledEntry is nil until the native backend installs it. The
	// interpreter's CALL always interprets Chunk and never reads this
	// field; it is invoked by RunCompiled and by native-generated code.
	CompiledEntry CompiledEntry
}

// newObj allocates a bare object and threads it onto vm's all-objects
// list. Every object is created through this path so that VM teardown can
// walk the list and free everything without a tracing collector.
func (vm *VM) newObj(kind ObjKind) *Obj {
	vm.nextIdentityHash++
	o := &Obj{
		Kind:         kind,
		IdentityHash: vm.nextIdentityHash,
		Next:         vm.objects,
	}
	vm.objects = o
	return o
}

// NewStringObj creates (or reuses, via interning) a String object with the
// given content. Creating a string with existing content returns the
// existing object, preserving the invariant that equal strings share one
// identity.
func (vm *VM) NewStringObj(s string) *Obj {
	if existing, ok := vm.Strings.GetObj(s); ok {
		return existing
	}
	o := vm.newObj(ObjString)
	o.str = s
	vm.Strings.Set(s, o)
	return o
}

// NewFunctionObj allocates a new, empty user function with its own Chunk.
// name is "" for the implicit top-level script function.
func (vm *VM) NewFunctionObj(name string) *Obj {
	o := vm.newObj(ObjFunction)
	o.fn = &Function{Name: name, Chunk: NewChunk()}
	return o
}

// NewNativeObj wraps a host Go function as a callable Native object.
func (vm *VM) NewNativeObj(fn NativeFn) *Obj {
	o := vm.newObj(ObjNative)
	o.native = fn
	return o
}

// AsString, AsFunction and AsNative assert the object's kind and return
// its payload. Like the teacher's value accessors, they panic on a kind
// mismatch -- a mismatch here is always a compiler or VM bug, never a
// user-triggerable condition, since the bytecode's opcode choice already
// determines which accessor is safe to call.
func (o *Obj) AsString() string {
	if o.Kind != ObjString {
		panic("Obj.AsString: not a string")
	}
	return o.str
}

func (o *Obj) AsFunction() *Function {
	if o.Kind != ObjFunction {
		panic("Obj.AsFunction: not a function")
	}
	return o.fn
}

func (o *Obj) AsNative() NativeFn {
	if o.Kind != ObjNative {
		panic("Obj.AsNative: not a native function")
	}
	return o.native
}

// DisplayName returns the name used in error messages and PRINT output
// for a function object: its declared name, or "<script>" for the
// nameless top-level function (spec's open question on this is resolved
// in favor of "<script>").
func (f *Function) DisplayName() string {
	if f.Name == "" {
		return "<script>"
	}
	return f.Name
}
