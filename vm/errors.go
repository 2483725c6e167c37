package vm

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ResultCode mirrors the driver-facing result enum: OK, COMPILE_ERROR, or
// RUNTIME_ERROR. The native backend's compiled entries return the integer
// form of this same enum (0 or 2) across the plugin ABI.
type ResultCode int

const (
	ResultOK ResultCode = iota
	ResultCompileError
	ResultRuntimeError
)

const ResultRuntimeErrorCode int32 = 2
const ResultOKCode int32 = 0

// FrameSnapshot captures one call frame's identity at the moment a
// runtime error was raised, used to build a multi-frame trace rather than
// just the innermost line -- a feature this repo carries over from
// reading original_source/src/vm.cpp's error dump, which prints a full
// chain rather than a single frame.
type FrameSnapshot struct {
	FunctionName string
	Line         int
}

// RuntimeError is returned when bytecode execution fails after at least
// one frame has started running. It carries the faulting line and a
// snapshot of the call chain at the moment of failure.
type RuntimeError struct {
	Message string
	Line    int
	Frames  []FrameSnapshot
	cause   error
}

func (e *RuntimeError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n[line %d]", e.Message, e.Line)
	for _, f := range e.Frames {
		fmt.Fprintf(&b, "\n  at %s (line %d)", f.FunctionName, f.Line)
	}
	return b.String()
}

func (e *RuntimeError) Unwrap() error { return e.cause }

// newRuntimeError builds a RuntimeError from the VM's current frame
// stack, formatting message the way fmt.Sprintf would.
func (vm *VM) newRuntimeError(format string, args ...interface{}) *RuntimeError {
	msg := fmt.Sprintf(format, args...)
	line := 0
	frames := make([]FrameSnapshot, 0, vm.FrameCount)
	for i := vm.FrameCount - 1; i >= 0; i-- {
		fr := &vm.Frames[i]
		fn := fr.Function.AsFunction()
		frameLine := fn.Chunk.LineAt(fr.IP - 1)
		if i == vm.FrameCount-1 {
			line = frameLine
		}
		frames = append(frames, FrameSnapshot{FunctionName: fn.DisplayName(), Line: frameLine})
	}
	return &RuntimeError{Message: msg, Line: line, Frames: frames, cause: errors.New(msg)}
}

// CompileError is returned by the compiler when had_error was set; the
// individual diagnostics have already been written to the error sink.
type CompileError struct {
	Count int
}

func (e *CompileError) Error() string {
	if e.Count == 1 {
		return "1 compile error"
	}
	return fmt.Sprintf("%d compile errors", e.Count)
}

// Wrap attaches additional context to err using github.com/pkg/errors,
// preserving the original error for errors.Is/errors.As.
func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}
