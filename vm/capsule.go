package vm

import "fmt"

// A capsule is a frozen call frame packaged as an ordinary list value: the
// frame's locals followed by one CODE cell naming the entry point to resume,
// under a LIST header. Once built it has no remaining relationship to the
// frame it was captured from.

// CapsuleLayout is the result of inspecting a capsule with ReadLayout.
type CapsuleLayout struct {
	Code        Value     // the CODE cell at payload slot 0
	Slots       int       // payload slot count (locals + the code cell)
	PayloadBase int       // byte address of the lowest payload cell
	Segment     SegmentID // always SegData for live capsules
}

// Freeze captures the active call frame — the return-stack cells between BP
// and RSP — together with a resumption address into a capsule on the data
// stack. It pushes, in order: each local from lowest address to highest
// (oldest-defined first), one CODE cell wrapping entry, and a LIST header
// with payload localCount+1. That order puts the code cell at payload slot 0
// no matter how many locals were captured, including zero, which is what
// ReadLayout relies on.
//
// The captured frame itself is not modified; it stays valid until its own
// caller tears it down through the ordinary return path. On any failure the
// data stack is rewound to its state before the call.
func (vm *VM) Freeze(entry int) (Value, error) {
	mark := vm.data.SP()
	header, err := vm.freeze(entry)
	if err != nil {
		// The rewind cannot fail: mark is a prior, aligned SP.
		_ = vm.data.Truncate(mark)
		return 0, err
	}
	return header, nil
}

func (vm *VM) freeze(entry int) (Value, error) {
	if vm.bp < 0 || vm.bp > vm.ret.SP() {
		return 0, fmt.Errorf("vm: freeze: %w: bp %d, rsp %d", ErrBounds, vm.bp, vm.ret.SP())
	}
	locals := (vm.ret.SP() - vm.bp) / CellSize
	seg := vm.ret.Segment()
	for addr := vm.bp; addr < vm.ret.SP(); addr += CellSize {
		cell, err := seg.ReadCell(addr)
		if err != nil {
			return 0, fmt.Errorf("vm: freeze: %w", err)
		}
		if err := vm.data.Push(cell); err != nil {
			return 0, fmt.Errorf("vm: freeze: %w", err)
		}
	}
	code, err := Encode(TagCode, int32(entry))
	if err != nil {
		return 0, fmt.Errorf("vm: freeze: %w", err)
	}
	if err := vm.data.Push(code); err != nil {
		return 0, fmt.Errorf("vm: freeze: %w", err)
	}
	header, err := Encode(TagList, int32(locals+1))
	if err != nil {
		return 0, fmt.Errorf("vm: freeze: %w", err)
	}
	if err := vm.data.Push(header); err != nil {
		return 0, fmt.Errorf("vm: freeze: %w", err)
	}
	return header, nil
}

// ReadLayout inspects a capsule given its LIST header cell and the header's
// byte address on the data stack. It fails with a structural error when the
// value does not resolve to an accessible list, when the payload is empty
// (a capsule carries at least its code cell), or when payload slot 0 is not
// a CODE cell.
func (vm *VM) ReadLayout(header Value, addr int) (CapsuleLayout, error) {
	span, err := vm.ListBounds(header, addr)
	if err != nil {
		return CapsuleLayout{}, fmt.Errorf("vm: capsule: %w", err)
	}
	if span.Count == 0 {
		return CapsuleLayout{}, fmt.Errorf("vm: capsule: %w: empty payload", ErrMalformed)
	}
	// Payload slot 0 is the cell directly beneath the header.
	code, err := vm.data.Segment().ReadCell(span.HeaderAddr - CellSize)
	if err != nil {
		return CapsuleLayout{}, fmt.Errorf("vm: capsule: %w", err)
	}
	if !code.IsCode() {
		return CapsuleLayout{}, fmt.Errorf("vm: capsule: %w: payload slot 0 is %v, not CODE",
			ErrMalformed, code)
	}
	return CapsuleLayout{
		Code:        code,
		Slots:       span.Count,
		PayloadBase: span.Base,
		Segment:     span.Segment,
	}, nil
}
