package vm

import (
	"fmt"
	"math"
)

// Core native operations. Builtins work through the same stack and
// traversal primitives bytecode does; stack-shuffling words are
// element-aware, sizing whole aggregates with FindElement before moving
// raw slots with Rotate.

func (vm *VM) registerCoreBuiltins() {
	reg := func(name string, fn BuiltinFunc) {
		if _, err := vm.RegisterBuiltin(name, fn); err != nil {
			// Core registration happens before any user payload exists;
			// a failure here is a programming error in the table itself.
			panic(err)
		}
	}

	reg("+", builtinAdd)
	reg("-", builtinSub)
	reg("*", builtinMul)
	reg("/", builtinDiv)
	reg("neg", builtinNeg)
	reg("=", builtinEq)
	reg("<", builtinLt)
	reg(">", builtinGt)

	reg("dup", builtinDup)
	reg("drop", builtinDrop)
	reg("swap", builtinSwap)
	reg("over", builtinOver)
	reg("rot", builtinRot)
	reg("roll", builtinRoll)
	reg("rotate", builtinRotate)
	reg("depth", builtinDepth)

	reg("pack", builtinPack)
	reg("seal", builtinSeal)
	reg("unpack", builtinUnpack)
	reg("tuple", builtinTuple)
	reg("length", builtinLength)

	reg("eval", builtinEval)
	reg("capsule-code", builtinCapsuleCode)

	reg("ref", builtinRef)
	reg("load", builtinLoad)
	reg("store", builtinStore)
}

// ---------------------------------------------------------------------------
// Numeric helpers
// ---------------------------------------------------------------------------

// asNumeric reads a cell as a numeric operand: a plain number, or an
// INTEGER cell widened to float. The second result distinguishes the
// integer case so operators can keep integer results integral.
func asNumeric(v Value) (f float32, isInt bool, ok bool) {
	if v.IsInteger() {
		return float32(v.Payload()), true, true
	}
	if v.IsNumber() {
		return v.Float32(), false, true
	}
	return 0, false, false
}

func (vm *VM) popNumeric() (float32, bool, error) {
	v, err := vm.data.Pop()
	if err != nil {
		return 0, false, err
	}
	f, isInt, ok := asNumeric(v)
	if !ok {
		return 0, false, fmt.Errorf("vm: %w: %v is not numeric", ErrNotTagged, v)
	}
	return f, isInt, nil
}

func (vm *VM) pushNumeric(f float32, keepInt bool) error {
	if keepInt {
		n := int32(f)
		if float32(n) == f {
			if cell, ok := FromInteger(n); ok {
				return vm.data.Push(cell)
			}
		}
	}
	return vm.data.Push(FromFloat32(f))
}

func (vm *VM) binaryNumeric(op func(a, b float32) float32) error {
	b, bInt, err := vm.popNumeric()
	if err != nil {
		return err
	}
	a, aInt, err := vm.popNumeric()
	if err != nil {
		return err
	}
	return vm.pushNumeric(op(a, b), aInt && bInt)
}

func builtinAdd(vm *VM) error { return vm.binaryNumeric(func(a, b float32) float32 { return a + b }) }
func builtinSub(vm *VM) error { return vm.binaryNumeric(func(a, b float32) float32 { return a - b }) }
func builtinMul(vm *VM) error { return vm.binaryNumeric(func(a, b float32) float32 { return a * b }) }

func builtinDiv(vm *VM) error {
	b, bInt, err := vm.popNumeric()
	if err != nil {
		return err
	}
	a, aInt, err := vm.popNumeric()
	if err != nil {
		return err
	}
	if b == 0 {
		return fmt.Errorf("vm: /: %w", ErrDivision)
	}
	if aInt && bInt {
		return vm.pushNumeric(float32(math.Trunc(float64(a)/float64(b))), true)
	}
	return vm.pushNumeric(a/b, false)
}

func builtinNeg(vm *VM) error {
	f, isInt, err := vm.popNumeric()
	if err != nil {
		return err
	}
	return vm.pushNumeric(-f, isInt)
}

func (vm *VM) compare(op func(a, b float32) bool) error {
	b, _, err := vm.popNumeric()
	if err != nil {
		return err
	}
	a, _, err := vm.popNumeric()
	if err != nil {
		return err
	}
	result := int32(0)
	if op(a, b) {
		result = 1
	}
	cell, _ := FromInteger(result)
	return vm.data.Push(cell)
}

func builtinEq(vm *VM) error { return vm.compare(func(a, b float32) bool { return a == b }) }
func builtinLt(vm *VM) error { return vm.compare(func(a, b float32) bool { return a < b }) }
func builtinGt(vm *VM) error { return vm.compare(func(a, b float32) bool { return a > b }) }

// ---------------------------------------------------------------------------
// Element-aware stack shuffling
// ---------------------------------------------------------------------------

// elementSpans walks n elements down from the top of the data stack and
// returns their sizes in slots plus the total. It fails with ErrUnderflow
// when fewer than n elements are on the stack.
func (vm *VM) elementSpans(n int, sizes []int) ([]int, int, error) {
	depth := vm.data.Depth()
	slot, total := 0, 0
	for i := 0; i < n; i++ {
		next, size := vm.FindElement(slot)
		if next > depth {
			return nil, 0, fmt.Errorf("vm: %w: need %d elements, have %d", ErrUnderflow, n, i)
		}
		sizes = append(sizes, size)
		total += size
		slot = next
	}
	return sizes, total, nil
}

func builtinDup(vm *VM) error {
	_, size := vm.FindElement(0)
	if size > vm.data.Depth() {
		return fmt.Errorf("vm: dup: %w", ErrUnderflow)
	}
	// Each push buries the original one slot deeper, so the deepest
	// not-yet-copied cell of the element stays at a fixed offset.
	for i := 0; i < size; i++ {
		v, err := vm.data.PeekSlot(size - 1)
		if err != nil {
			return err
		}
		if err := vm.data.Push(v); err != nil {
			return err
		}
	}
	return nil
}

func builtinDrop(vm *VM) error {
	_, size := vm.FindElement(0)
	if size > vm.data.Depth() {
		return fmt.Errorf("vm: drop: %w", ErrUnderflow)
	}
	return vm.data.Truncate(vm.data.SP() - size*CellSize)
}

func builtinSwap(vm *VM) error {
	var buf [2]int
	sizes, total, err := vm.elementSpans(2, buf[:0])
	if err != nil {
		return err
	}
	return vm.Rotate(0, total, sizes[0])
}

func builtinOver(vm *VM) error {
	var buf [2]int
	sizes, total, err := vm.elementSpans(2, buf[:0])
	if err != nil {
		return err
	}
	for i := 0; i < sizes[1]; i++ {
		v, err := vm.data.PeekSlot(total - 1)
		if err != nil {
			return err
		}
		if err := vm.data.Push(v); err != nil {
			return err
		}
	}
	return nil
}

func builtinRot(vm *VM) error {
	var buf [3]int
	sizes, total, err := vm.elementSpans(3, buf[:0])
	if err != nil {
		return err
	}
	return vm.Rotate(0, total, sizes[0]+sizes[1])
}

// builtinRoll brings the u-th element (0 = top) to the top: `2 roll` is rot.
func builtinRoll(vm *VM) error {
	u, err := vm.popIndex()
	if err != nil {
		return fmt.Errorf("vm: roll: %w", err)
	}
	if u == 0 {
		return nil
	}
	var buf [8]int
	sizes, total, err := vm.elementSpans(u+1, buf[:0])
	if err != nil {
		return err
	}
	return vm.Rotate(0, total, total-sizes[u])
}

// builtinRotate is the raw slot-level primitive: ( start size shift -- ).
func builtinRotate(vm *VM) error {
	shift, err := vm.popIndexSigned()
	if err != nil {
		return fmt.Errorf("vm: rotate: %w", err)
	}
	size, err := vm.popIndexSigned()
	if err != nil {
		return fmt.Errorf("vm: rotate: %w", err)
	}
	start, err := vm.popIndex()
	if err != nil {
		return fmt.Errorf("vm: rotate: %w", err)
	}
	return vm.Rotate(start, size, shift)
}

func builtinDepth(vm *VM) error {
	cell, ok := FromInteger(int32(vm.data.Depth()))
	if !ok {
		return fmt.Errorf("vm: depth: %w", ErrPayloadRange)
	}
	return vm.data.Push(cell)
}

func (vm *VM) popIndex() (int, error) {
	n, err := vm.popIndexSigned()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%w: negative count %d", ErrPayloadRange, n)
	}
	return n, nil
}

func (vm *VM) popIndexSigned() (int, error) {
	f, _, err := vm.popNumeric()
	if err != nil {
		return 0, err
	}
	n := int(f)
	if float32(n) != f {
		return 0, fmt.Errorf("%w: %v is not an index", ErrPayloadRange, f)
	}
	return n, nil
}

// ---------------------------------------------------------------------------
// Aggregates
// ---------------------------------------------------------------------------

// builtinPack collects the top n elements into a counted list:
// ( e0 .. en-1 n -- list ). The header payload counts slots, so nested
// sealed aggregates keep their full span.
func builtinPack(vm *VM) error {
	n, err := vm.popIndex()
	if err != nil {
		return fmt.Errorf("vm: pack: %w", err)
	}
	slot := 0
	depth := vm.data.Depth()
	for i := 0; i < n; i++ {
		next, _ := vm.FindElement(slot)
		if next > depth {
			return fmt.Errorf("vm: pack: %w: need %d elements, have %d", ErrUnderflow, n, i)
		}
		slot = next
	}
	header, err := Encode(TagList, int32(slot))
	if err != nil {
		return fmt.Errorf("vm: pack: %w", err)
	}
	return vm.data.Push(header)
}

func builtinSeal(vm *VM) error {
	return vm.Seal()
}

// builtinUnpack removes the header of the list on top, leaving its payload
// as loose elements (sealed nested aggregates stay sealed).
func builtinUnpack(vm *VM) error {
	top, err := vm.data.Peek()
	if err != nil {
		return fmt.Errorf("vm: unpack: %w", err)
	}
	if !top.IsList() {
		return fmt.Errorf("vm: unpack: %w: %v is not a list header", ErrMalformed, top)
	}
	_, err = vm.data.Pop()
	return err
}

// builtinTuple collects the top k elements into a tuple:
// ( e0 .. ek-1 k -- tuple ). The header is rotated beneath the data and a
// LINK marker caps the whole aggregate.
func builtinTuple(vm *VM) error {
	k, err := vm.popIndex()
	if err != nil {
		return fmt.Errorf("vm: tuple: %w", err)
	}
	slot := 0
	depth := vm.data.Depth()
	for i := 0; i < k; i++ {
		next, _ := vm.FindElement(slot)
		if next > depth {
			return fmt.Errorf("vm: tuple: %w: need %d elements, have %d", ErrUnderflow, k, i)
		}
		slot = next
	}
	header, err := Encode(TagTuple, int32(slot))
	if err != nil {
		return fmt.Errorf("vm: tuple: %w", err)
	}
	if err := vm.data.Push(header); err != nil {
		return err
	}
	// Move the header beneath its data, then cap with the LINK.
	if err := vm.Rotate(0, slot+1, 1); err != nil {
		return err
	}
	link, err := Encode(TagLink, int32(slot)+1)
	if err != nil {
		return fmt.Errorf("vm: tuple: %w", err)
	}
	return vm.data.Push(link)
}

// builtinLength pushes the logical element count of the list on top:
// ( list -- list n ).
func builtinLength(vm *VM) error {
	top, err := vm.data.Peek()
	if err != nil {
		return fmt.Errorf("vm: length: %w", err)
	}
	tag, p, derr := top.Decode()
	if derr != nil || tag != TagList || p < 0 {
		return fmt.Errorf("vm: length: %w: %v is not a list header", ErrMalformed, top)
	}
	end := 1 + int(p)
	if end > vm.data.Depth() {
		return fmt.Errorf("vm: length: %w: payload of %d slots underruns the stack", ErrBounds, p)
	}
	count := 0
	for slot := 1; slot < end; count++ {
		slot, _ = vm.FindElement(slot)
	}
	cell, ok := FromInteger(int32(count))
	if !ok {
		return fmt.Errorf("vm: length: %w", ErrPayloadRange)
	}
	return vm.data.Push(cell)
}

// ---------------------------------------------------------------------------
// Dispatch and capsules
// ---------------------------------------------------------------------------

// builtinEval pops a reference and dispatches it: the language's
// push-then-invoke primitive.
func builtinEval(vm *VM) error {
	ref, err := vm.data.Pop()
	if err != nil {
		return fmt.Errorf("vm: eval: %w", err)
	}
	return vm.Dispatch(ref)
}

// builtinCapsuleCode reads the capsule on top and pushes its entry
// reference: ( capsule -- capsule code ).
func builtinCapsuleCode(vm *VM) error {
	header, err := vm.data.Peek()
	if err != nil {
		return fmt.Errorf("vm: capsule-code: %w", err)
	}
	addr, err := vm.data.SlotAddr(0)
	if err != nil {
		return fmt.Errorf("vm: capsule-code: %w", err)
	}
	layout, err := vm.ReadLayout(header, addr)
	if err != nil {
		return err
	}
	return vm.data.Push(layout.Code)
}

// ---------------------------------------------------------------------------
// Boxed pointers
// ---------------------------------------------------------------------------

// builtinRef boxes the address of a data-stack slot: ( slot -- ref ).
func builtinRef(vm *VM) error {
	slot, err := vm.popIndex()
	if err != nil {
		return fmt.Errorf("vm: ref: %w", err)
	}
	addr, err := vm.data.SlotAddr(slot)
	if err != nil {
		return fmt.Errorf("vm: ref: %w", err)
	}
	ref, err := PackRef(RefData, int32(addr))
	if err != nil {
		return fmt.Errorf("vm: ref: %w", err)
	}
	return vm.data.Push(ref)
}

func (vm *VM) refSegment(kind RefKind) (*Segment, error) {
	switch kind {
	case RefData:
		return vm.data.Segment(), nil
	case RefReturn:
		return vm.ret.Segment(), nil
	case RefCode:
		return vm.code, nil
	default:
		return nil, fmt.Errorf("%w: %v ref is not an address", ErrNotTagged, kind)
	}
}

// builtinLoad dereferences a boxed pointer: ( ref -- cell ).
func builtinLoad(vm *VM) error {
	box, err := vm.data.Pop()
	if err != nil {
		return fmt.Errorf("vm: load: %w", err)
	}
	kind, addr, err := UnpackRef(box)
	if err != nil {
		return fmt.Errorf("vm: load: %w", err)
	}
	seg, err := vm.refSegment(kind)
	if err != nil {
		return fmt.Errorf("vm: load: %w", err)
	}
	cell, err := seg.ReadCell(int(addr))
	if err != nil {
		return fmt.Errorf("vm: load: %w", err)
	}
	return vm.data.Push(cell)
}

// builtinStore writes through a boxed pointer: ( cell ref -- ).
func builtinStore(vm *VM) error {
	box, err := vm.data.Pop()
	if err != nil {
		return fmt.Errorf("vm: store: %w", err)
	}
	cell, err := vm.data.Pop()
	if err != nil {
		return fmt.Errorf("vm: store: %w", err)
	}
	kind, addr, err := UnpackRef(box)
	if err != nil {
		return fmt.Errorf("vm: store: %w", err)
	}
	if kind == RefCode {
		return fmt.Errorf("vm: store: %w: code segment is not writable at run time", ErrBounds)
	}
	seg, err := vm.refSegment(kind)
	if err != nil {
		return fmt.Errorf("vm: store: %w", err)
	}
	return seg.WriteCell(int(addr), cell)
}
