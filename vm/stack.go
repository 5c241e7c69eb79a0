package vm

import "fmt"

// Stack is a cell stack over one segment. SP is a byte offset to the next
// free cell; push writes then advances, pop retreats then reads. Growth is
// saturating: a push past the segment end or a pop below the base fails and
// leaves SP unmodified. No cell is ever individually freed; compound values
// are reclaimed by rewinding SP.
//
// Higher layers address stack contents by slot offsets only: slot 0 is the
// top cell, slot 1 the one beneath it, and so on. Byte arithmetic stays
// inside this file so cell alignment is an invariant, not a convention.
type Stack struct {
	seg  *Segment
	name string
	sp   int
}

func newStack(seg *Segment, name string) *Stack {
	return &Stack{seg: seg, name: name}
}

// SP returns the stack pointer as a byte offset into the segment.
func (s *Stack) SP() int { return s.sp }

// Depth returns the number of cells on the stack.
func (s *Stack) Depth() int { return s.sp / CellSize }

// Segment returns the segment backing this stack.
func (s *Stack) Segment() *Segment { return s.seg }

// Push writes v at SP and advances.
func (s *Stack) Push(v Value) error {
	if s.sp+CellSize > s.seg.Size() {
		return fmt.Errorf("vm: %s stack: %w", s.name, ErrOverflow)
	}
	if err := s.seg.WriteCell(s.sp, v); err != nil {
		return err
	}
	s.sp += CellSize
	return nil
}

// Pop retreats SP and returns the cell it uncovered.
func (s *Stack) Pop() (Value, error) {
	if s.sp < CellSize {
		return 0, fmt.Errorf("vm: %s stack: %w", s.name, ErrUnderflow)
	}
	v, err := s.seg.ReadCell(s.sp - CellSize)
	if err != nil {
		return 0, err
	}
	s.sp -= CellSize
	return v, nil
}

// Peek returns the top cell without popping.
func (s *Stack) Peek() (Value, error) {
	return s.PeekSlot(0)
}

// SlotAddr resolves a slot offset (0 = top) to an absolute byte address.
func (s *Stack) SlotAddr(slot int) (int, error) {
	addr := s.sp - (slot+1)*CellSize
	if slot < 0 || addr < 0 {
		return 0, fmt.Errorf("vm: %s stack: %w: slot %d, depth %d",
			s.name, ErrUnderflow, slot, s.Depth())
	}
	return addr, nil
}

// PeekSlot reads the cell at a slot offset from the top.
func (s *Stack) PeekSlot(slot int) (Value, error) {
	addr, err := s.SlotAddr(slot)
	if err != nil {
		return 0, err
	}
	return s.seg.ReadCell(addr)
}

// PokeSlot overwrites the cell at a slot offset from the top.
func (s *Stack) PokeSlot(slot int, v Value) error {
	addr, err := s.SlotAddr(slot)
	if err != nil {
		return err
	}
	return s.seg.WriteCell(addr, v)
}

// Truncate rewinds SP to the given byte offset, reclaiming everything above
// it. The offset must be cell-aligned and no greater than the current SP.
func (s *Stack) Truncate(sp int) error {
	if sp < 0 || sp > s.sp {
		return fmt.Errorf("vm: %s stack: %w: truncate to %d, sp %d", s.name, ErrBounds, sp, s.sp)
	}
	if sp%CellSize != 0 {
		return fmt.Errorf("vm: %s stack: %w: truncate to %d", s.name, ErrUnaligned, sp)
	}
	s.sp = sp
	return nil
}

// Reset empties the stack.
func (s *Stack) Reset() { s.sp = 0 }
