package vm

import (
	"errors"
	"testing"
)

func TestRegisterBuiltinAssignsIndexes(t *testing.T) {
	machine := New(testConfig())
	base := len(machine.builtins)

	ref, err := machine.RegisterBuiltin("noop-test", func(*VM) error { return nil })
	if err != nil {
		t.Fatal(err)
	}
	if !ref.IsBuiltin() || int(ref.Payload()) != base {
		t.Errorf("ref = %v, want BUILTIN(%d)", ref, base)
	}
	if machine.BuiltinName(ref.Payload()) != "noop-test" {
		t.Errorf("BuiltinName = %q", machine.BuiltinName(ref.Payload()))
	}
	if got, ok := machine.Dict().Resolve("noop-test"); !ok || got != ref {
		t.Errorf("Resolve = %v, %v, want %v", got, ok, ref)
	}
}

func TestDispatchBuiltin(t *testing.T) {
	machine := New(testConfig())
	ran := false
	ref, err := machine.RegisterBuiltin("probe", func(*VM) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := machine.Dispatch(ref); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if !ran {
		t.Error("builtin did not run")
	}
}

func TestDispatchCodePushesFrame(t *testing.T) {
	machine := New(testConfig())
	machine.ip = 0x33
	machine.bp = 0

	if err := machine.Dispatch(MustEncode(TagCode, 0x10)); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	if machine.IP() != 0x10 {
		t.Errorf("IP = %#x, want 0x10", machine.IP())
	}
	if machine.Return().Depth() != 2 {
		t.Fatalf("return depth = %d, want 2", machine.Return().Depth())
	}
	if machine.BP() != machine.RSP() {
		t.Errorf("BP = %d, want RSP %d (no locals yet)", machine.BP(), machine.RSP())
	}
	// The saved resume address is the caller's IP.
	ret, err := machine.Return().PeekSlot(1)
	if err != nil {
		t.Fatal(err)
	}
	if !ret.IsCode() || ret.Payload() != 0x33 {
		t.Errorf("saved return = %v, want CODE(0x33)", ret)
	}
}

func TestDispatchRejectsNonInvokable(t *testing.T) {
	machine := New(testConfig())
	for _, v := range []Value{
		FromFloat32(3.5),
		MustEncode(TagList, 2),
		MustEncode(TagString, 1),
		MustEncode(TagBuiltin, 9999),
	} {
		if err := machine.Dispatch(v); !errors.Is(err, ErrNotInvokable) {
			t.Errorf("Dispatch(%v) err = %v, want ErrNotInvokable", v, err)
		}
	}
}

// The push-then-invoke pattern: a reference fetched from the dictionary and
// left on the data stack runs exactly like a direct invocation.
func TestPushThenInvoke(t *testing.T) {
	machine := New(testConfig())
	pushAll(t, machine, num(6), num(7))

	ref, ok := machine.Dict().Resolve("*")
	if !ok {
		t.Fatal("core builtin * not registered")
	}
	pushAll(t, machine, ref)

	popped, err := machine.Data().Pop()
	if err != nil {
		t.Fatal(err)
	}
	if err := machine.Dispatch(popped); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	top, err := machine.Data().Pop()
	if err != nil {
		t.Fatal(err)
	}
	if top.Float32() != 42 {
		t.Errorf("6 7 * = %v, want 42", top)
	}
}

func TestPopFrameRestoresCaller(t *testing.T) {
	machine := New(testConfig())
	machine.ip = 0x44
	machine.bp = 0

	if err := machine.pushFrame(0x08); err != nil {
		t.Fatal(err)
	}
	// Bind a local inside the frame.
	if err := machine.Return().Push(num(1)); err != nil {
		t.Fatal(err)
	}

	had, err := machine.popFrame()
	if err != nil {
		t.Fatalf("popFrame failed: %v", err)
	}
	if !had {
		t.Fatal("popFrame reported top level with a live frame")
	}
	if machine.IP() != 0x44 || machine.BP() != 0 {
		t.Errorf("restored IP/BP = %#x/%d, want 0x44/0", machine.IP(), machine.BP())
	}
	if machine.Return().Depth() != 0 {
		t.Errorf("return depth = %d, want 0", machine.Return().Depth())
	}

	// With no frame left the next return means top level.
	had, err = machine.popFrame()
	if err != nil || had {
		t.Errorf("popFrame at top level = %v, %v, want false, nil", had, err)
	}
}
