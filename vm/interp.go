package vm

import "fmt"

// Run executes bytecode starting at entry until OpHalt or a top-level
// return. It is the sole driver of the machine: every core operation runs
// to completion before the next instruction is fetched, so stack mutations
// are strictly sequential and an aggregate is always observed either fully
// constructed or not yet started.
//
// On an unrecovered failure Run wraps the error with the faulting
// instruction position and returns it; it does not reset the machine, so
// the caller can inspect the wreckage before calling Reset.
func (vm *VM) Run(entry int) error {
	if entry < 0 || entry >= vm.code.Size() {
		return fmt.Errorf("vm: run: %w: entry %d", ErrBounds, entry)
	}
	vm.ip = entry
	for {
		at := vm.ip
		op, err := vm.fetchByte()
		if err != nil {
			return fmt.Errorf("vm: at %d: %w", at, err)
		}
		done, err := vm.step(Opcode(op))
		if err != nil {
			return fmt.Errorf("vm: at %d (%v): %w", at, Opcode(op), err)
		}
		if done {
			return nil
		}
	}
}

func (vm *VM) fetchByte() (byte, error) {
	b, err := vm.code.ReadByte(vm.ip)
	if err != nil {
		return 0, err
	}
	vm.ip++
	return b, nil
}

func (vm *VM) fetchU16() (uint16, error) {
	u, err := vm.code.ReadU16(vm.ip)
	if err != nil {
		return 0, err
	}
	vm.ip += 2
	return u, nil
}

func (vm *VM) fetchCell() (Value, error) {
	var bits uint32
	for i := 0; i < CellSize; i++ {
		b, err := vm.fetchByte()
		if err != nil {
			return 0, err
		}
		bits |= uint32(b) << (8 * i)
	}
	return Value(bits), nil
}

// step executes one instruction. It reports done=true when the run should
// stop (OpHalt or a top-level return).
func (vm *VM) step(op Opcode) (done bool, err error) {
	switch op {
	case OpNop:
		return false, nil

	case OpHalt:
		return true, nil

	case OpLit:
		cell, err := vm.fetchCell()
		if err != nil {
			return false, err
		}
		return false, vm.data.Push(cell)

	case OpCall:
		addr, err := vm.fetchU16()
		if err != nil {
			return false, err
		}
		return false, vm.pushFrame(int(addr))

	case OpReturn:
		had, err := vm.popFrame()
		if err != nil {
			return false, err
		}
		return !had, nil

	case OpInvoke:
		ref, err := vm.data.Pop()
		if err != nil {
			return false, err
		}
		return false, vm.Dispatch(ref)

	case OpBuiltin:
		idx, err := vm.fetchU16()
		if err != nil {
			return false, err
		}
		if int(idx) >= len(vm.builtins) {
			return false, fmt.Errorf("%w: builtin %d", ErrNotInvokable, idx)
		}
		return false, vm.builtins[idx].fn(vm)

	case OpJump:
		addr, err := vm.fetchU16()
		if err != nil {
			return false, err
		}
		vm.ip = int(addr)
		return false, nil

	case OpJumpZero:
		addr, err := vm.fetchU16()
		if err != nil {
			return false, err
		}
		cond, err := vm.data.Pop()
		if err != nil {
			return false, err
		}
		if isZero(cond) {
			vm.ip = int(addr)
		}
		return false, nil

	case OpLocalBind:
		v, err := vm.data.Pop()
		if err != nil {
			return false, err
		}
		return false, vm.ret.Push(v)

	case OpLocalGet:
		slot, err := vm.fetchByte()
		if err != nil {
			return false, err
		}
		v, err := vm.local(int(slot))
		if err != nil {
			return false, err
		}
		return false, vm.data.Push(v)

	case OpLocalSet:
		slot, err := vm.fetchByte()
		if err != nil {
			return false, err
		}
		v, err := vm.data.Pop()
		if err != nil {
			return false, err
		}
		return false, vm.setLocal(int(slot), v)

	case OpFreeze:
		entry, err := vm.fetchU16()
		if err != nil {
			return false, err
		}
		_, err = vm.Freeze(int(entry))
		return false, err

	default:
		return false, fmt.Errorf("%w: opcode %#02x", ErrNotInvokable, byte(op))
	}
}

// local reads the active frame's local at the given slot (0 = oldest).
func (vm *VM) local(slot int) (Value, error) {
	addr := vm.bp + slot*CellSize
	if slot < 0 || addr+CellSize > vm.ret.SP() {
		return 0, fmt.Errorf("vm: %w: local %d, frame has %d",
			ErrBounds, slot, (vm.ret.SP()-vm.bp)/CellSize)
	}
	return vm.ret.Segment().ReadCell(addr)
}

func (vm *VM) setLocal(slot int, v Value) error {
	addr := vm.bp + slot*CellSize
	if slot < 0 || addr+CellSize > vm.ret.SP() {
		return fmt.Errorf("vm: %w: local %d, frame has %d",
			ErrBounds, slot, (vm.ret.SP()-vm.bp)/CellSize)
	}
	return vm.ret.Segment().WriteCell(addr, v)
}

// isZero reports whether a cell counts as false for conditional jumps:
// INTEGER 0 or the number 0.0.
func isZero(v Value) bool {
	if v.IsInteger() {
		return v.Payload() == 0
	}
	if v.IsNumber() {
		return v.Float32() == 0
	}
	return false
}
