package vm

import (
	"errors"
	"testing"
)

func stackSnapshot(t *testing.T, machine *VM) []Value {
	t.Helper()
	depth := machine.Data().Depth()
	out := make([]Value, depth)
	for i := 0; i < depth; i++ {
		v, err := machine.Data().PeekSlot(i)
		if err != nil {
			t.Fatalf("PeekSlot(%d): %v", i, err)
		}
		out[i] = v
	}
	return out
}

func TestRotateShiftsRun(t *testing.T) {
	machine := New(testConfig())
	// Slots, top first after pushing: 4 3 2 1.
	pushAll(t, machine, num(1), num(2), num(3), num(4))

	// Left-rotating the whole run by one moves the top to the bottom of
	// the run.
	if err := machine.Rotate(0, 4, 1); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	got := stackSnapshot(t, machine)
	want := []float32{3, 2, 1, 4}
	for i := range want {
		if got[i].Float32() != want[i] {
			t.Fatalf("after Rotate(0,4,1) slot %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRotateInnerRunLeavesRest(t *testing.T) {
	machine := New(testConfig())
	pushAll(t, machine, num(1), num(2), num(3), num(4), num(5))

	// Rotate the three middle slots; top and bottom stay put.
	if err := machine.Rotate(1, 3, 2); err != nil {
		t.Fatalf("Rotate failed: %v", err)
	}
	got := stackSnapshot(t, machine)
	want := []float32{5, 2, 4, 3, 1}
	for i := range want {
		if got[i].Float32() != want[i] {
			t.Fatalf("slot %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestRotateRoundTrip(t *testing.T) {
	machine := New(testConfig())
	pushAll(t, machine, num(1), num(2), num(3), num(4), num(5))
	before := stackSnapshot(t, machine)

	// size rotations by one compose to the identity.
	for i := 0; i < 5; i++ {
		if err := machine.Rotate(0, 5, 1); err != nil {
			t.Fatalf("Rotate %d failed: %v", i, err)
		}
	}
	after := stackSnapshot(t, machine)
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("slot %d changed: %v -> %v", i, before[i], after[i])
		}
	}

	// Opposite shifts cancel.
	if err := machine.Rotate(0, 5, 2); err != nil {
		t.Fatal(err)
	}
	if err := machine.Rotate(0, 5, -2); err != nil {
		t.Fatal(err)
	}
	after = stackSnapshot(t, machine)
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("shift/unshift slot %d changed: %v -> %v", i, before[i], after[i])
		}
	}
}

func TestRotateNoOps(t *testing.T) {
	machine := New(testConfig())
	pushAll(t, machine, num(1), num(2), num(3))
	before := stackSnapshot(t, machine)

	for _, tt := range []struct{ start, size, shift int }{
		{0, 0, 1},  // empty run
		{0, -2, 1}, // negative size
		{0, 3, 0},  // zero shift
		{0, 3, 3},  // full-cycle shift
		{0, 3, -6}, // negative full-cycle shift
	} {
		if err := machine.Rotate(tt.start, tt.size, tt.shift); err != nil {
			t.Fatalf("Rotate(%d,%d,%d) failed: %v", tt.start, tt.size, tt.shift, err)
		}
	}
	after := stackSnapshot(t, machine)
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("no-op rotation changed slot %d: %v -> %v", i, before[i], after[i])
		}
	}
}

func TestRotateRangeErrors(t *testing.T) {
	machine := New(testConfig())
	pushAll(t, machine, num(1), num(2))
	before := stackSnapshot(t, machine)

	for _, tt := range []struct{ start, size, shift int }{
		{-1, 2, 1}, // negative start
		{0, 3, 1},  // run deeper than the stack
		{1, 2, 1},  // run falls off the bottom
	} {
		if err := machine.Rotate(tt.start, tt.size, tt.shift); !errors.Is(err, ErrRange) {
			t.Errorf("Rotate(%d,%d,%d) err = %v, want ErrRange", tt.start, tt.size, tt.shift, err)
		}
	}
	// A failed rotation must not touch the stack.
	after := stackSnapshot(t, machine)
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("failed rotation mutated slot %d: %v -> %v", i, before[i], after[i])
		}
	}
}
