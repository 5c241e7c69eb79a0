package vm

import "fmt"

// Aggregate layout on the data stack (slot 0 = top, slots grow downward
// into the stack):
//
//	counted list:  [payload slots ...] [LIST(n)]      header on top
//	sealed list:   [payload ...] [LIST(n)] [LINK(n+1)]
//	tuple:         [TUPLE(k)] [k data slots] [LINK(k+1)]
//
// A counted list is self-describing from above: its header says how many
// slots lie beneath. The LINK marker makes an aggregate self-describing
// from its other end too, which is what lets a top-down walk skip a buried
// aggregate in O(1): the LINK payload counts the slots beneath it that
// belong to the aggregate, always header payload + 1. For a tuple that is
// also the distance back to its header. Lists are sealed whenever they
// become elements of an enclosing aggregate; tuples always carry their
// LINK.

// TupleSpan describes a validated tuple found on the data stack. All fields
// are slot offsets from the top of the stack except the sizes.
type TupleSpan struct {
	Start     int // slot of the TUPLE header
	End       int // slot of the LINK marker (nearest the top)
	Size      int // data slots between header and LINK
	TotalSize int // full span in slots: header + data + LINK
	LinkSlot  int // alias of End, the slot the walk entered at
}

// ListSpan describes a validated list resolved by ListBounds.
type ListSpan struct {
	Segment    SegmentID
	HeaderAddr int // byte address of the LIST header cell
	Base       int // byte address of the lowest payload cell
	Count      int // payload slots
	Header     Value
}

// FindElement describes the element that begins at the given slot offset on
// the data stack, returning the offset just past it and its size in slots.
//
// This is the lenient, best-effort walk used for bulk traversal (display,
// stack shuffling): on any structural inconsistency — an implausible
// payload, a LINK whose header is missing or mismatched, a span that runs
// off the stack — it degrades to treating the cell as a single slot rather
// than failing. Operations that depend on an aggregate being well-formed
// must use the strict primitives (FindTuple, ListBounds, ReadLayout).
func (vm *VM) FindElement(slot int) (next int, size int) {
	depth := vm.data.Depth()
	v, err := vm.data.PeekSlot(slot)
	if err != nil {
		return slot + 1, 1
	}
	tag, p, err := v.Decode()
	if err != nil {
		// Plain number: one slot.
		return slot + 1, 1
	}
	switch tag {
	case TagList:
		// Counted header: payload lies beneath it.
		if p < 0 || slot+int(p)+1 > depth {
			return slot + 1, 1
		}
		size = int(p) + 1
		return slot + size, size
	case TagLink:
		// Marker above a sealed aggregate: p slots beneath the LINK belong
		// to it. The header is adjacent for a sealed list and deepest for a
		// tuple; either way its payload must agree with the marker.
		if p <= 0 || slot+int(p) >= depth {
			return slot + 1, 1
		}
		if h, err := vm.data.PeekSlot(slot + 1); err == nil {
			if htag, hp, err := h.Decode(); err == nil && htag == TagList && hp+1 == p {
				size = int(p) + 1
				return slot + size, size
			}
		}
		if h, err := vm.data.PeekSlot(slot + int(p)); err == nil {
			if htag, hp, err := h.Decode(); err == nil && htag == TagTuple && hp+1 == p {
				size = int(p) + 1
				return slot + size, size
			}
		}
		return slot + 1, 1
	default:
		return slot + 1, 1
	}
}

// FindTuple validates the tuple whose LINK marker sits at the given slot
// offset and returns its span.
//
// Unlike FindElement this is strict: it recomputes the header position from
// the LINK, re-reads the header, and re-verifies the structural invariant
// LINK.payload == TUPLE.payload + 1. Any mismatch — wrong tag, disagreeing
// payloads, a span outside the live stack — yields a definite not-found
// rather than a wrong span, so a corrupted trailer can never silently
// truncate a traversal.
func (vm *VM) FindTuple(slot int) (TupleSpan, bool) {
	depth := vm.data.Depth()
	link, err := vm.data.PeekSlot(slot)
	if err != nil {
		return TupleSpan{}, false
	}
	ltag, lp, err := link.Decode()
	if err != nil || ltag != TagLink || lp <= 0 {
		return TupleSpan{}, false
	}
	start := slot + int(lp)
	if start >= depth {
		return TupleSpan{}, false
	}
	header, err := vm.data.PeekSlot(start)
	if err != nil {
		return TupleSpan{}, false
	}
	htag, hp, err := header.Decode()
	if err != nil || htag != TagTuple || hp < 0 || hp+1 != lp {
		return TupleSpan{}, false
	}
	return TupleSpan{
		Start:     start,
		End:       slot,
		Size:      int(hp),
		TotalSize: int(hp) + 2,
		LinkSlot:  slot,
	}, true
}

// ListBounds resolves a list header cell and its byte address on the data
// stack to the validated span of the list. It fails with ErrMalformed when
// header is not a LIST cell or the cell at addr disagrees with it, and with
// a bounds error when the address or the implied payload does not lie
// inside the live data stack.
func (vm *VM) ListBounds(header Value, addr int) (ListSpan, error) {
	tag, n, err := header.Decode()
	if err != nil {
		return ListSpan{}, fmt.Errorf("vm: list bounds: %w", err)
	}
	if tag != TagList || n < 0 {
		return ListSpan{}, fmt.Errorf("vm: list bounds: %w: %v is not a list header", ErrMalformed, header)
	}
	seg := vm.data.Segment()
	if addr < 0 || addr%CellSize != 0 || addr+CellSize > vm.data.SP() {
		return ListSpan{}, fmt.Errorf("vm: list bounds: %w: header addr %d", ErrBounds, addr)
	}
	stored, err := seg.ReadCell(addr)
	if err != nil {
		return ListSpan{}, fmt.Errorf("vm: list bounds: %w", err)
	}
	if stored != header {
		return ListSpan{}, fmt.Errorf("vm: list bounds: %w: cell at %d is %v, not %v",
			ErrMalformed, addr, stored, header)
	}
	base := addr - int(n)*CellSize
	if base < 0 {
		return ListSpan{}, fmt.Errorf("vm: list bounds: %w: payload of %d slots underruns the stack",
			ErrBounds, n)
	}
	return ListSpan{
		Segment:    SegData,
		HeaderAddr: addr,
		Base:       base,
		Count:      int(n),
		Header:     header,
	}, nil
}

// Seal caps the counted aggregate whose header is on top of the data stack
// with a LINK marker so it can be skipped from above once it is buried
// inside an enclosing aggregate. Sealing is what turns a counted list into
// an element.
func (vm *VM) Seal() error {
	top, err := vm.data.Peek()
	if err != nil {
		return fmt.Errorf("vm: seal: %w", err)
	}
	tag, p, err := top.Decode()
	if err != nil || tag != TagList {
		return fmt.Errorf("vm: seal: %w: top of stack is %v, not a list header",
			ErrMalformed, top)
	}
	link, err := Encode(TagLink, p+1)
	if err != nil {
		return fmt.Errorf("vm: seal: %w", err)
	}
	return vm.data.Push(link)
}
