package vm

// CallFrame is one activation record: the function being executed, its
// instruction pointer, and the stack index its locals are based at.
// Local slot k is stack position Base+k; frame 0's Base holds the
// top-level script function itself, reserving slot 0.
type CallFrame struct {
	Function *Obj // Kind == ObjFunction
	IP       int
	Base     int
}

// MaxFrames bounds call depth. Exceeding it on a CALL is a runtime error
// ("Stack overflow"), not a panic.
const MaxFrames = 1024

// MaxStack bounds the operand stack. Each frame may use up to 256 local
// slots (the compiler's per-scope local limit), so this comfortably
// covers MaxFrames nested calls plus expression temporaries.
const MaxStack = MaxFrames * 256
