package vm

import "fmt"

// BuiltinFunc is the signature of a native operation. A builtin manipulates
// the machine through the same public stack and traversal primitives user
// code reaches through bytecode.
type BuiltinFunc func(*VM) error

// RegisterBuiltin adds a native operation to the machine's builtin table and
// binds it in the dictionary, returning its BUILTIN reference. Operation
// indexes are assigned in registration order.
func (vm *VM) RegisterBuiltin(name string, fn BuiltinFunc) (Value, error) {
	op := int32(len(vm.builtins))
	ref, err := vm.dict.DefineBuiltin(name, op)
	if err != nil {
		return 0, err
	}
	vm.builtins = append(vm.builtins, builtinEntry{name: name, fn: fn})
	return ref, nil
}

// BuiltinName returns the registered name for an operation index, or "".
func (vm *VM) BuiltinName(op int32) string {
	if op < 0 || int(op) >= len(vm.builtins) {
		return ""
	}
	return vm.builtins[op].name
}

// Dispatch invokes the operation a tagged reference denotes. It is the
// single entry point for both directly named invocations and references
// obtained at runtime (the push-then-invoke pattern), and it branches on
// the value's tag alone:
//
//   - BUILTIN runs the native operation with that index to completion.
//   - CODE pushes a new call frame and transfers control to the address;
//     the new frame runs when the fetch loop resumes.
//
// Any other tag — including plain numbers — fails with ErrNotInvokable.
// The dispatcher never needs to know whether the target is primitive or
// user-defined; that uniformity is what lets programs store and pass
// "what to run" values.
func (vm *VM) Dispatch(v Value) error {
	tag, p, err := v.Decode()
	if err != nil {
		return fmt.Errorf("vm: dispatch: %w: %v", ErrNotInvokable, v)
	}
	switch tag {
	case TagBuiltin:
		if p < 0 || int(p) >= len(vm.builtins) {
			return fmt.Errorf("vm: dispatch: %w: builtin %d", ErrNotInvokable, p)
		}
		return vm.builtins[p].fn(vm)
	case TagCode:
		return vm.pushFrame(int(p))
	default:
		return fmt.Errorf("vm: dispatch: %w: tag %v", ErrNotInvokable, tag)
	}
}

// pushFrame saves the caller's resume address and frame base on the return
// stack and transfers control to addr. Frame layout, low to high:
//
//	[CODE(return ip)] [ADDR(saved bp)] [locals ...]
//
// BP points at the first local slot.
func (vm *VM) pushFrame(addr int) error {
	if addr < 0 || addr >= vm.code.Size() {
		return fmt.Errorf("vm: call: %w: addr %d", ErrBounds, addr)
	}
	ret, err := Encode(TagCode, int32(vm.ip))
	if err != nil {
		return fmt.Errorf("vm: call: %w", err)
	}
	saved, err := Encode(TagAddr, int32(vm.bp))
	if err != nil {
		return fmt.Errorf("vm: call: %w", err)
	}
	if err := vm.ret.Push(ret); err != nil {
		return err
	}
	if err := vm.ret.Push(saved); err != nil {
		// Keep the frame balanced: undo the first push.
		_ = vm.ret.Truncate(vm.ret.SP() - CellSize)
		return err
	}
	vm.bp = vm.ret.SP()
	vm.ip = addr
	return nil
}

// popFrame discards the active frame's locals, restores the caller's BP and
// resume address, and reports whether a frame existed (false means a
// top-level return, which halts the run).
func (vm *VM) popFrame() (bool, error) {
	if vm.ret.Depth() == 0 {
		return false, nil
	}
	if err := vm.ret.Truncate(vm.bp); err != nil {
		return false, err
	}
	saved, err := vm.ret.Pop()
	if err != nil {
		return false, err
	}
	ret, err := vm.ret.Pop()
	if err != nil {
		return false, err
	}
	stag, sbp, serr := saved.Decode()
	rtag, rip, rerr := ret.Decode()
	if serr != nil || stag != TagAddr || rerr != nil || rtag != TagCode {
		return false, fmt.Errorf("vm: return: %w: frame cells %v %v", ErrMalformed, saved, ret)
	}
	vm.bp = int(sbp)
	vm.ip = int(rip)
	return true, nil
}
