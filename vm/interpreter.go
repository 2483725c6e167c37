package vm

import (
	"encoding/binary"
	"math"
)

// runLoop is the interpreter's fetch-decode-execute cycle. It runs until
// the outermost frame returns (OK) or an opcode raises a runtime error.
// Either a dense switch or a threaded dispatch table is conforming; this
// uses a switch, matching the teacher's own dispatch style.
func (vm *VM) runLoop() error {
	frame := &vm.Frames[vm.FrameCount-1]

	for {
		chunk := frame.Function.AsFunction().Chunk
		op := Opcode(chunk.Code[frame.IP])
		frame.IP++

		switch op {
		case OpConstant:
			idx := int(chunk.Code[frame.IP])
			frame.IP++
			vm.push(chunk.Constants[idx])

		case OpConstantLong:
			idx := vm.read24(chunk, frame)
			vm.push(chunk.Constants[idx])

		case OpNil:
			vm.push(NilValue())

		case OpTrue:
			vm.push(BoolValue(true))

		case OpFalse:
			vm.push(BoolValue(false))

		case OpPop:
			vm.pop()

		case OpDup:
			vm.push(vm.peek(0))

		case OpGetLocal:
			slot := int(chunk.Code[frame.IP])
			frame.IP++
			vm.push(vm.Stack[frame.Base+slot])

		case OpGetLocalShort:
			slot := vm.read16(chunk, frame)
			vm.push(vm.Stack[frame.Base+slot])

		case OpSetLocal:
			slot := int(chunk.Code[frame.IP])
			frame.IP++
			vm.Stack[frame.Base+slot] = vm.peek(0)

		case OpSetLocalShort:
			slot := vm.read16(chunk, frame)
			vm.Stack[frame.Base+slot] = vm.peek(0)

		case OpGetGlobal:
			slot := int(chunk.Code[frame.IP])
			frame.IP++
			if err := vm.getGlobal(slot); err != nil {
				return err
			}

		case OpGetGlobalLong:
			slot := vm.read24(chunk, frame)
			if err := vm.getGlobal(slot); err != nil {
				return err
			}

		case OpSetGlobal:
			slot := int(chunk.Code[frame.IP])
			frame.IP++
			if err := vm.setGlobal(slot); err != nil {
				return err
			}

		case OpSetGlobalLong:
			slot := vm.read24(chunk, frame)
			if err := vm.setGlobal(slot); err != nil {
				return err
			}

		case OpDefineGlobal:
			slot := int(chunk.Code[frame.IP])
			frame.IP++
			vm.Globals.Values[slot] = vm.pop()

		case OpDefineGlobalLong:
			slot := vm.read24(chunk, frame)
			vm.Globals.Values[slot] = vm.pop()

		case OpEqual:
			b := vm.pop()
			a := vm.pop()
			vm.push(BoolValue(a.Equal(b)))

		case OpGreater:
			b, a, err := vm.popNumberPair()
			if err != nil {
				return err
			}
			vm.push(BoolValue(a > b))

		case OpLess:
			b, a, err := vm.popNumberPair()
			if err != nil {
				return err
			}
			vm.push(BoolValue(a < b))

		case OpAdd:
			if err := vm.add(); err != nil {
				return err
			}

		case OpSubtract:
			b, a, err := vm.popNumberPair()
			if err != nil {
				return err
			}
			vm.push(NumberValue(a - b))

		case OpMultiply:
			b, a, err := vm.popNumberPair()
			if err != nil {
				return err
			}
			vm.push(NumberValue(a * b))

		case OpDivide:
			b, a, err := vm.popNumberPair()
			if err != nil {
				return err
			}
			vm.push(NumberValue(a / b))

		case OpModulo:
			b, a, err := vm.popNumberPair()
			if err != nil {
				return err
			}
			vm.push(NumberValue(math.Mod(a, b)))

		case OpNot:
			vm.push(BoolValue(vm.pop().IsFalsey()))

		case OpNegate:
			if !vm.peek(0).IsNumber() {
				return vm.newRuntimeError("Operand must be a number.")
			}
			vm.push(NumberValue(-vm.pop().Number))

		case OpPrint:
			vm.Print(vm.pop())

		case OpJump:
			delta := vm.read16Raw(chunk, frame.IP)
			frame.IP += 2 + delta

		case OpJumpIfFalse:
			delta := vm.read16Raw(chunk, frame.IP)
			frame.IP += 2
			if vm.peek(0).IsFalsey() {
				frame.IP += delta
			}

		case OpJumpIfTrue:
			delta := vm.read16Raw(chunk, frame.IP)
			frame.IP += 2
			if !vm.peek(0).IsFalsey() {
				frame.IP += delta
			}

		case OpJumpBack:
			delta := vm.read16Raw(chunk, frame.IP)
			frame.IP += 2 - delta

		case OpCall:
			argCount := int(chunk.Code[frame.IP])
			frame.IP++
			newFrame, err := vm.call(argCount)
			if err != nil {
				return err
			}
			if newFrame {
				frame = &vm.Frames[vm.FrameCount-1]
			}

		case OpReturn:
			result := vm.pop()
			vm.FrameCount--
			if vm.FrameCount == 0 {
				vm.pop()
				return nil
			}
			vm.StackTop = frame.Base
			vm.push(result)
			frame = &vm.Frames[vm.FrameCount-1]

		default:
			return vm.newRuntimeError("Unknown opcode %d.", byte(op))
		}
	}
}

func (vm *VM) read16(chunk *Chunk, frame *CallFrame) int {
	v := binary.LittleEndian.Uint16(chunk.Code[frame.IP:])
	frame.IP += 2
	return int(v)
}

func (vm *VM) read16Raw(chunk *Chunk, offset int) int {
	return int(binary.LittleEndian.Uint16(chunk.Code[offset:]))
}

func (vm *VM) read24(chunk *Chunk, frame *CallFrame) int {
	idx := read24(chunk.Code, frame.IP)
	frame.IP += 3
	return idx
}

func (vm *VM) getGlobal(slot int) error {
	v := vm.Globals.Values[slot]
	if v.Kind == KindUndefined {
		return vm.newRuntimeError("Undefined variable %s.", vm.Globals.Names[slot])
	}
	vm.push(v)
	return nil
}

func (vm *VM) setGlobal(slot int) error {
	if vm.Globals.Values[slot].Kind == KindUndefined {
		return vm.newRuntimeError("Undefined variable %s.", vm.Globals.Names[slot])
	}
	vm.Globals.Values[slot] = vm.peek(0)
	return nil
}

// popNumberPair pops b then a (b was pushed last) and requires both to be
// numbers, matching the stack order every binary arithmetic op shares.
func (vm *VM) popNumberPair() (b, a float64, err error) {
	bv := vm.pop()
	av := vm.pop()
	if !bv.IsNumber() || !av.IsNumber() {
		return 0, 0, vm.newRuntimeError("Operands must be numbers.")
	}
	return bv.Number, av.Number, nil
}

// add implements ADD's type-sensitive behavior: number+number sums,
// string+string concatenates, and a mixed string/number pair formats the
// number with %g and concatenates.
func (vm *VM) add() error {
	b := vm.pop()
	a := vm.pop()

	switch {
	case a.IsNumber() && b.IsNumber():
		vm.push(NumberValue(a.Number + b.Number))
		return nil
	case a.IsString() && b.IsString():
		vm.push(ObjValue(vm.NewStringObj(a.Obj.AsString() + b.Obj.AsString())))
		return nil
	case a.IsString() && b.IsNumber():
		vm.push(ObjValue(vm.NewStringObj(a.Obj.AsString() + stringizeValue(b))))
		return nil
	case a.IsNumber() && b.IsString():
		vm.push(ObjValue(vm.NewStringObj(stringizeValue(a) + b.Obj.AsString())))
		return nil
	default:
		return vm.newRuntimeError("Operands must be two numbers or at least one string.")
	}
}

// call implements CALL n: the callee sits at stack[top-n-1], arguments
// above it. Returns whether a new frame was pushed (false for a native
// call, which resolves entirely within this function).
func (vm *VM) call(argCount int) (bool, error) {
	callee := vm.peek(argCount)

	if !callee.IsFunction() && !callee.IsNative() {
		return false, vm.newRuntimeError("Can only call functions.")
	}

	if callee.IsNative() {
		native := callee.Obj.AsNative()
		args := vm.Stack[vm.StackTop-argCount : vm.StackTop]
		result := native(argCount, args)
		vm.StackTop -= argCount + 1
		vm.push(result)
		return false, nil
	}

	fn := callee.Obj.AsFunction()
	if argCount != fn.Arity {
		return false, vm.newRuntimeError("Expected %d arguments but got %d.", fn.Arity, argCount)
	}

	if vm.FrameCount == MaxFrames {
		return false, vm.newRuntimeError("Stack overflow.")
	}

	vm.Frames[vm.FrameCount] = CallFrame{
		Function: callee.Obj,
		IP:       0,
		Base:     vm.StackTop - argCount - 1,
	}
	vm.FrameCount++
	return true, nil
}
