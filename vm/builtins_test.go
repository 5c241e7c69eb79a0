package vm

import (
	"errors"
	"testing"
)

func runBuiltin(t *testing.T, machine *VM, name string) error {
	t.Helper()
	ref, ok := machine.Dict().Resolve(name)
	if !ok {
		t.Fatalf("builtin %q not registered", name)
	}
	return machine.Dispatch(ref)
}

func popFloat(t *testing.T, machine *VM) float32 {
	t.Helper()
	v, err := machine.Data().Pop()
	if err != nil {
		t.Fatalf("Pop failed: %v", err)
	}
	f, _, ok := asNumeric(v)
	if !ok {
		t.Fatalf("top of stack %v is not numeric", v)
	}
	return f
}

// ---------------------------------------------------------------------------
// Arithmetic and comparison
// ---------------------------------------------------------------------------

func TestArithmetic(t *testing.T) {
	tests := []struct {
		name string
		a, b float32
		want float32
	}{
		{"+", 2, 3, 5},
		{"-", 10, 4, 6},
		{"*", 6, 7, 42},
		{"/", 10, 4, 2.5},
	}
	machine := New(testConfig())
	for _, tt := range tests {
		machine.Data().Reset()
		pushAll(t, machine, num(tt.a), num(tt.b))
		if err := runBuiltin(t, machine, tt.name); err != nil {
			t.Errorf("%v %v %s failed: %v", tt.a, tt.b, tt.name, err)
			continue
		}
		if got := popFloat(t, machine); got != tt.want {
			t.Errorf("%v %v %s = %v, want %v", tt.a, tt.b, tt.name, got, tt.want)
		}
	}
}

func TestIntegerArithmeticStaysIntegral(t *testing.T) {
	machine := New(testConfig())
	two, _ := FromInteger(2)
	three, _ := FromInteger(3)
	pushAll(t, machine, two, three)
	if err := runBuiltin(t, machine, "+"); err != nil {
		t.Fatal(err)
	}
	v, _ := machine.Data().Pop()
	if !v.IsInteger() || v.Payload() != 5 {
		t.Errorf("2 3 + = %v, want INTEGER 5", v)
	}

	// Integer division truncates toward zero.
	seven, _ := FromInteger(7)
	negTwo, _ := FromInteger(-2)
	pushAll(t, machine, seven, negTwo)
	if err := runBuiltin(t, machine, "/"); err != nil {
		t.Fatal(err)
	}
	v, _ = machine.Data().Pop()
	if !v.IsInteger() || v.Payload() != -3 {
		t.Errorf("7 -2 / = %v, want INTEGER -3", v)
	}
}

func TestDivisionByZero(t *testing.T) {
	machine := New(testConfig())
	pushAll(t, machine, num(1), num(0))
	if err := runBuiltin(t, machine, "/"); !errors.Is(err, ErrDivision) {
		t.Errorf("1 0 / err = %v, want ErrDivision", err)
	}
}

func TestComparisons(t *testing.T) {
	machine := New(testConfig())
	tests := []struct {
		name string
		a, b float32
		want int32
	}{
		{"=", 3, 3, 1},
		{"=", 3, 4, 0},
		{"<", 2, 5, 1},
		{"<", 5, 2, 0},
		{">", 5, 2, 1},
	}
	for _, tt := range tests {
		machine.Data().Reset()
		pushAll(t, machine, num(tt.a), num(tt.b))
		if err := runBuiltin(t, machine, tt.name); err != nil {
			t.Fatal(err)
		}
		v, _ := machine.Data().Pop()
		if !v.IsInteger() || v.Payload() != tt.want {
			t.Errorf("%v %v %s = %v, want INTEGER %d", tt.a, tt.b, tt.name, v, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Element-aware shuffles
// ---------------------------------------------------------------------------

// buildList pushes a sealed-free counted list (payload then header).
func buildList(t *testing.T, machine *VM, elems ...float32) {
	t.Helper()
	for _, e := range elems {
		pushAll(t, machine, num(e))
	}
	pushAll(t, machine, MustEncode(TagList, int32(len(elems))))
}

func TestDupCopiesWholeAggregate(t *testing.T) {
	machine := New(testConfig())
	buildList(t, machine, 1, 2)
	if err := runBuiltin(t, machine, "dup"); err != nil {
		t.Fatal(err)
	}
	got := stackSnapshot(t, machine)
	// Two identical three-slot runs.
	if len(got) != 6 {
		t.Fatalf("depth = %d, want 6", len(got))
	}
	for i := 0; i < 3; i++ {
		if got[i] != got[i+3] {
			t.Errorf("slot %d = %v, copy = %v", i+3, got[i+3], got[i])
		}
	}
}

func TestDropRemovesWholeAggregate(t *testing.T) {
	machine := New(testConfig())
	pushAll(t, machine, num(9))
	buildList(t, machine, 1, 2)
	if err := runBuiltin(t, machine, "drop"); err != nil {
		t.Fatal(err)
	}
	if machine.Data().Depth() != 1 {
		t.Fatalf("depth = %d, want 1", machine.Data().Depth())
	}
	top, _ := machine.Data().Peek()
	if top.Float32() != 9 {
		t.Errorf("remaining cell = %v, want 9", top)
	}
}

func TestSwapMixedSizes(t *testing.T) {
	machine := New(testConfig())
	pushAll(t, machine, num(9))
	buildList(t, machine, 1, 2)
	if err := runBuiltin(t, machine, "swap"); err != nil {
		t.Fatal(err)
	}
	// Now the scalar is on top, the intact list beneath.
	got := stackSnapshot(t, machine)
	if got[0].Float32() != 9 {
		t.Fatalf("top after swap = %v, want 9", got[0])
	}
	next, size := machine.FindElement(1)
	if next != 4 || size != 3 {
		t.Errorf("list under swap = (%d, %d), want (4, 3)", next, size)
	}
}

func TestRotAndRoll(t *testing.T) {
	machine := New(testConfig())
	pushAll(t, machine, num(1), num(2), num(3))
	if err := runBuiltin(t, machine, "rot"); err != nil {
		t.Fatal(err)
	}
	// 1 2 3 rot leaves 2 3 1 (deepest of the three comes to the top).
	got := stackSnapshot(t, machine)
	want := []float32{1, 3, 2}
	for i := range want {
		if got[i].Float32() != want[i] {
			t.Fatalf("after rot slot %d = %v, want %v", i, got[i], want[i])
		}
	}

	// 2 roll is rot: applying it twice more restores the original order.
	for i := 0; i < 2; i++ {
		two, _ := FromInteger(2)
		pushAll(t, machine, two)
		if err := runBuiltin(t, machine, "roll"); err != nil {
			t.Fatal(err)
		}
	}
	got = stackSnapshot(t, machine)
	want = []float32{3, 2, 1}
	for i := range want {
		if got[i].Float32() != want[i] {
			t.Fatalf("after 2x roll slot %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestOverMixedSizes(t *testing.T) {
	machine := New(testConfig())
	buildList(t, machine, 7, 8)
	pushAll(t, machine, num(1))
	if err := runBuiltin(t, machine, "over"); err != nil {
		t.Fatal(err)
	}
	// A copy of the list sits on top; the original is untouched beneath.
	next, size := machine.FindElement(0)
	if next != 3 || size != 3 {
		t.Fatalf("copied list = (%d, %d), want (3, 3)", next, size)
	}
	got := stackSnapshot(t, machine)
	for i := 0; i < 3; i++ {
		if got[i] != got[i+4] {
			t.Errorf("copy slot %d = %v, original = %v", i, got[i], got[i+4])
		}
	}
}

func TestShuffleUnderflow(t *testing.T) {
	machine := New(testConfig())
	pushAll(t, machine, num(1))
	if err := runBuiltin(t, machine, "swap"); !errors.Is(err, ErrUnderflow) {
		t.Errorf("swap on one element err = %v, want ErrUnderflow", err)
	}
}

func TestDepthBuiltin(t *testing.T) {
	machine := New(testConfig())
	pushAll(t, machine, num(1), num(2))
	if err := runBuiltin(t, machine, "depth"); err != nil {
		t.Fatal(err)
	}
	v, _ := machine.Data().Pop()
	if !v.IsInteger() || v.Payload() != 2 {
		t.Errorf("depth = %v, want INTEGER 2", v)
	}
}

// ---------------------------------------------------------------------------
// Aggregate construction
// ---------------------------------------------------------------------------

func TestPackAndUnpack(t *testing.T) {
	machine := New(testConfig())
	pushAll(t, machine, num(1), num(2), num(3))
	three, _ := FromInteger(3)
	pushAll(t, machine, three)
	if err := runBuiltin(t, machine, "pack"); err != nil {
		t.Fatal(err)
	}
	top, _ := machine.Data().Peek()
	if !top.IsList() || top.Payload() != 3 {
		t.Fatalf("pack header = %v, want LIST(3)", top)
	}

	if err := runBuiltin(t, machine, "unpack"); err != nil {
		t.Fatal(err)
	}
	if machine.Data().Depth() != 3 {
		t.Errorf("depth after unpack = %d, want 3", machine.Data().Depth())
	}
}

func TestPackCountsSlotsNotElements(t *testing.T) {
	machine := New(testConfig())
	// One scalar and one sealed sublist: 2 elements, 5 slots.
	pushAll(t, machine, num(1))
	buildList(t, machine, 2, 3)
	if err := machine.Seal(); err != nil {
		t.Fatal(err)
	}
	two, _ := FromInteger(2)
	pushAll(t, machine, two)
	if err := runBuiltin(t, machine, "pack"); err != nil {
		t.Fatal(err)
	}
	top, _ := machine.Data().Peek()
	if top.Payload() != 5 {
		t.Errorf("pack header payload = %d, want 5 slots", top.Payload())
	}

	// length reports logical elements, not slots.
	if err := runBuiltin(t, machine, "length"); err != nil {
		t.Fatal(err)
	}
	n, _ := machine.Data().Pop()
	if !n.IsInteger() || n.Payload() != 2 {
		t.Errorf("length = %v, want INTEGER 2", n)
	}
}

func TestTupleBuiltin(t *testing.T) {
	machine := New(testConfig())
	pushAll(t, machine, num(10), num(20))
	two, _ := FromInteger(2)
	pushAll(t, machine, two)
	if err := runBuiltin(t, machine, "tuple"); err != nil {
		t.Fatal(err)
	}

	span, ok := machine.FindTuple(0)
	if !ok {
		t.Fatal("tuple builtin did not leave a well-formed tuple")
	}
	if span.Size != 2 || span.TotalSize != 4 {
		t.Errorf("tuple span = %+v", span)
	}
	// Data order is preserved: deepest data slot is the first element.
	v, _ := machine.Data().PeekSlot(span.Start - 1)
	if v.Float32() != 10 {
		t.Errorf("first tuple field = %v, want 10", v)
	}
}

func TestPackUnderflow(t *testing.T) {
	machine := New(testConfig())
	pushAll(t, machine, num(1))
	five, _ := FromInteger(5)
	pushAll(t, machine, five)
	if err := runBuiltin(t, machine, "pack"); !errors.Is(err, ErrUnderflow) {
		t.Errorf("pack err = %v, want ErrUnderflow", err)
	}
}

// ---------------------------------------------------------------------------
// eval and capsule-code
// ---------------------------------------------------------------------------

func TestEvalBuiltin(t *testing.T) {
	machine := New(testConfig())
	add, _ := machine.Dict().Resolve("+")
	pushAll(t, machine, num(2), num(3), add)
	if err := runBuiltin(t, machine, "eval"); err != nil {
		t.Fatal(err)
	}
	if got := popFloat(t, machine); got != 5 {
		t.Errorf("eval + = %v, want 5", got)
	}
}

func TestCapsuleCodeBuiltin(t *testing.T) {
	machine := New(testConfig())
	enterFrame(t, machine, num(5))
	if _, err := machine.Freeze(0x22); err != nil {
		t.Fatal(err)
	}
	if err := runBuiltin(t, machine, "capsule-code"); err != nil {
		t.Fatal(err)
	}
	code, _ := machine.Data().Peek()
	if !code.IsCode() || code.Payload() != 0x22 {
		t.Errorf("capsule-code = %v, want CODE(0x22)", code)
	}
	// The capsule itself is still beneath the pushed reference.
	under, _ := machine.Data().PeekSlot(1)
	if !under.IsList() {
		t.Errorf("capsule header gone: %v", under)
	}
}

// ---------------------------------------------------------------------------
// Boxed pointers
// ---------------------------------------------------------------------------

func TestRefLoadStore(t *testing.T) {
	machine := New(testConfig())
	pushAll(t, machine, num(7), num(8))

	// Box slot 1 (the 7), then read through it.
	one, _ := FromInteger(1)
	pushAll(t, machine, one)
	if err := runBuiltin(t, machine, "ref"); err != nil {
		t.Fatal(err)
	}
	box, _ := machine.Data().Peek()
	if err := runBuiltin(t, machine, "load"); err != nil {
		t.Fatal(err)
	}
	if got := popFloat(t, machine); got != 7 {
		t.Fatalf("load = %v, want 7", got)
	}

	// Write through the same box and observe the slot change.
	pushAll(t, machine, num(99), box)
	if err := runBuiltin(t, machine, "store"); err != nil {
		t.Fatal(err)
	}
	v, _ := machine.Data().PeekSlot(1)
	if v.Float32() != 99 {
		t.Errorf("slot after store = %v, want 99", v)
	}
}

func TestStoreRejectsCodeRef(t *testing.T) {
	machine := New(testConfig())
	box, err := PackRef(RefCode, 0)
	if err != nil {
		t.Fatal(err)
	}
	pushAll(t, machine, num(1), box)
	if err := runBuiltin(t, machine, "store"); !errors.Is(err, ErrBounds) {
		t.Errorf("store through code ref err = %v, want ErrBounds", err)
	}
}
