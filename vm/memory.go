package vm

import (
	"encoding/binary"
	"fmt"
)

// CellSize is the width of one stack cell in bytes.
const CellSize = 4

// SegmentID names one of the VM's disjoint address spaces.
type SegmentID uint8

const (
	SegData   SegmentID = iota // data stack
	SegReturn                  // return/frame stack
	SegCode                    // compiled bytecode

	segmentCount
)

var segmentNames = [...]string{
	SegData:   "data",
	SegReturn: "return",
	SegCode:   "code",
}

// String returns the segment name.
func (id SegmentID) String() string {
	if int(id) < len(segmentNames) {
		return segmentNames[id]
	}
	return fmt.Sprintf("SegmentID(%d)", uint8(id))
}

// Segment is one byte-addressable address range. Accesses are bounds-checked
// against the segment's own buffer; a segment can never alias another.
type Segment struct {
	id  SegmentID
	buf []byte
}

func newSegment(id SegmentID, size int) *Segment {
	if size < 0 {
		size = 0
	}
	size -= size % CellSize
	return &Segment{id: id, buf: make([]byte, size)}
}

// ID returns the segment's identity.
func (s *Segment) ID() SegmentID { return s.id }

// Size returns the segment size in bytes.
func (s *Segment) Size() int { return len(s.buf) }

func (s *Segment) checkCell(addr int) error {
	if addr < 0 || addr+CellSize > len(s.buf) {
		return fmt.Errorf("vm: %v segment: %w: addr %d, size %d", s.id, ErrBounds, addr, len(s.buf))
	}
	if addr%CellSize != 0 {
		return fmt.Errorf("vm: %v segment: %w: addr %d", s.id, ErrUnaligned, addr)
	}
	return nil
}

// ReadCell reads the tagged-value cell at a cell-aligned byte offset.
func (s *Segment) ReadCell(addr int) (Value, error) {
	if err := s.checkCell(addr); err != nil {
		return 0, err
	}
	return Value(binary.LittleEndian.Uint32(s.buf[addr:])), nil
}

// WriteCell writes the tagged-value cell at a cell-aligned byte offset.
func (s *Segment) WriteCell(addr int, v Value) error {
	if err := s.checkCell(addr); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(s.buf[addr:], uint32(v))
	return nil
}

// ReadByte reads one byte (used by the instruction fetch path).
func (s *Segment) ReadByte(addr int) (byte, error) {
	if addr < 0 || addr >= len(s.buf) {
		return 0, fmt.Errorf("vm: %v segment: %w: addr %d, size %d", s.id, ErrBounds, addr, len(s.buf))
	}
	return s.buf[addr], nil
}

// WriteByte writes one byte.
func (s *Segment) WriteByte(addr int, b byte) error {
	if addr < 0 || addr >= len(s.buf) {
		return fmt.Errorf("vm: %v segment: %w: addr %d, size %d", s.id, ErrBounds, addr, len(s.buf))
	}
	s.buf[addr] = b
	return nil
}

// ReadU16 reads a 16-bit instruction operand.
func (s *Segment) ReadU16(addr int) (uint16, error) {
	if addr < 0 || addr+2 > len(s.buf) {
		return 0, fmt.Errorf("vm: %v segment: %w: addr %d, size %d", s.id, ErrBounds, addr, len(s.buf))
	}
	return binary.LittleEndian.Uint16(s.buf[addr:]), nil
}

// WriteU16 writes a 16-bit instruction operand.
func (s *Segment) WriteU16(addr int, u uint16) error {
	if addr < 0 || addr+2 > len(s.buf) {
		return fmt.Errorf("vm: %v segment: %w: addr %d, size %d", s.id, ErrBounds, addr, len(s.buf))
	}
	binary.LittleEndian.PutUint16(s.buf[addr:], u)
	return nil
}

// Bytes exposes the raw segment contents. Used by the image codec; stack
// layers never touch it.
func (s *Segment) Bytes() []byte { return s.buf }

// Memory is the VM's full segmented address space.
type Memory struct {
	segs [segmentCount]*Segment
}

// NewMemory allocates all segments per the configuration.
func NewMemory(cfg Config) *Memory {
	m := &Memory{}
	m.segs[SegData] = newSegment(SegData, cfg.DataStackCells*CellSize)
	m.segs[SegReturn] = newSegment(SegReturn, cfg.ReturnStackCells*CellSize)
	m.segs[SegCode] = newSegment(SegCode, cfg.CodeBytes)
	return m
}

// Segment returns the segment with the given identity, or nil.
func (m *Memory) Segment(id SegmentID) *Segment {
	if int(id) >= int(segmentCount) {
		return nil
	}
	return m.segs[id]
}
