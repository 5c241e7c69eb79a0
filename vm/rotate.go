package vm

import "fmt"

// Rotate left-rotates a contiguous run of data-stack slots in place.
//
// The run begins at slot offset start (0 = top) and spans size slots going
// down into the stack; the top shift slots of the run end up at its bottom.
// shift is normalized modulo size into [0, size), so negative and oversized
// shifts are legal. A normalized shift of 0, or a size <= 0, is a no-op.
//
// The rotation is the classic three-reversal form: reverse the first shift
// slots, reverse the remaining size-shift slots, then reverse the whole
// run. That needs O(size) swaps and no temporary buffer, unlike a
// copy-based roll. Bounds are validated for the whole run before the first
// swap, so a failed call never leaves the run partially mutated.
//
// Rotate works on raw slots, not logical elements. Callers shuffling whole
// aggregates must size the run with FindElement first and pass slot counts.
func (vm *VM) Rotate(start, size, shift int) error {
	if size <= 0 {
		return nil
	}
	shift %= size
	if shift < 0 {
		shift += size
	}
	if shift == 0 {
		return nil
	}
	if start < 0 || start+size > vm.data.Depth() {
		return fmt.Errorf("vm: rotate: %w: slots [%d, %d), depth %d",
			ErrRange, start, start+size, vm.data.Depth())
	}
	if err := vm.reverseSlots(start, shift); err != nil {
		return err
	}
	if err := vm.reverseSlots(start+shift, size-shift); err != nil {
		return err
	}
	return vm.reverseSlots(start, size)
}

// reverseSlots reverses count slots starting at the given slot offset.
func (vm *VM) reverseSlots(start, count int) error {
	if count <= 1 {
		return nil
	}
	if start < 0 || start+count > vm.data.Depth() {
		return fmt.Errorf("vm: rotate: %w: slots [%d, %d), depth %d",
			ErrRange, start, start+count, vm.data.Depth())
	}
	for i, j := start, start+count-1; i < j; i, j = i+1, j-1 {
		a, err := vm.data.PeekSlot(i)
		if err != nil {
			return err
		}
		b, err := vm.data.PeekSlot(j)
		if err != nil {
			return err
		}
		if err := vm.data.PokeSlot(i, b); err != nil {
			return err
		}
		if err := vm.data.PokeSlot(j, a); err != nil {
			return err
		}
	}
	return nil
}
