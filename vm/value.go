package vm

import (
	"fmt"
	"math"
)

// Value is one stack cell: a 32-bit IEEE 754 bit pattern using NaN-boxing.
//
// A cell is either an ordinary float32 (finite numbers, infinities, and
// untagged NaNs all count as numbers) or an encoded quiet NaN carrying a
// 6-bit tag and a 16-bit payload:
//
//	sign(0) | exponent all ones | quiet bit | tag:6 | payload:16
//
// The quiet bit is always forced on encode, so no produced pattern can be
// mistaken for a signaling NaN or for an arithmetic result. Tag 0 is
// reserved; a quiet NaN with a zero tag field is treated as a plain number.
//
// A second, compact 3-bit-tag/20-bit-payload encoding shares the NaN space
// (see ref.go). The two codecs are used in disjoint contexts: wide values are
// the VM's pervasive stack cells, compact refs are produced and consumed only
// by the ref builtins.
type Value uint32

// Tag is the logical discriminant of a wide tagged value. The enum is
// deliberately decoupled from its bit position; Encode/Decode are the only
// functions that touch the field widths.
type Tag uint8

const (
	// TagNumber is not encodable: plain floats carry no tag field.
	// It exists so classification switches have a name for "just a number".
	TagNumber Tag = 0

	TagInteger Tag = 1 // signed 16-bit integer payload
	TagCode    Tag = 2 // bytecode entry address (byte offset into SegCode)
	TagBuiltin Tag = 3 // native operation index
	TagString  Tag = 4 // interned string ID
	TagList    Tag = 5 // list header; payload counts payload slots
	TagLink    Tag = 6 // backward marker; payload is slot distance to header
	TagTuple   Tag = 7 // tuple header; payload counts data slots
	TagLocal   Tag = 8 // local slot index relative to BP
	TagAddr    Tag = 9 // absolute cell address on the return stack

	// MaxTag is the largest encodable tag; the field is 6 bits wide.
	MaxTag Tag = 63
)

// NaN-boxing constants for the wide scheme.
const (
	signBit  uint32 = 0x80000000
	expMask  uint32 = 0x7F800000 // exponent all ones => NaN or Inf
	quietBit uint32 = 0x00400000 // top mantissa bit
	nanBits  uint32 = expMask | quietBit

	tagShift        = 16
	tagMask  uint32 = 0x003F0000
	mantMask uint32 = 0x007FFFFF

	payloadMask uint32 = 0x0000FFFF

	// Payload limits. TagInteger is the one signed payload class.
	MaxPayload    int32 = 0xFFFF
	MaxIntPayload int32 = math.MaxInt16
	MinIntPayload int32 = math.MinInt16
)

var tagNames = [...]string{
	TagNumber:  "NUMBER",
	TagInteger: "INTEGER",
	TagCode:    "CODE",
	TagBuiltin: "BUILTIN",
	TagString:  "STRING",
	TagList:    "LIST",
	TagLink:    "LINK",
	TagTuple:   "TUPLE",
	TagLocal:   "LOCAL",
	TagAddr:    "ADDR",
}

// String returns the tag mnemonic.
func (t Tag) String() string {
	if int(t) < len(tagNames) && tagNames[t] != "" {
		return tagNames[t]
	}
	return fmt.Sprintf("Tag(%d)", uint8(t))
}

// ---------------------------------------------------------------------------
// Encode / Decode
// ---------------------------------------------------------------------------

// Encode packs (tag, payload) into a quiet-NaN cell.
//
// It fails with ErrTagRange for tag 0 or a tag beyond the 6-bit field, and
// with ErrPayloadRange for a payload outside the tag's range: signed 16-bit
// for TagInteger, unsigned 16-bit for every other tag. The round trip
// Decode(Encode(t, p)) == (t, p) holds for every accepted pair.
func Encode(tag Tag, payload int32) (Value, error) {
	if tag == TagNumber || tag > MaxTag {
		return 0, fmt.Errorf("vm: encode: %w: tag %d", ErrTagRange, tag)
	}
	if tag == TagInteger {
		if payload < MinIntPayload || payload > MaxIntPayload {
			return 0, fmt.Errorf("vm: encode: %w: %d not in [%d, %d]",
				ErrPayloadRange, payload, MinIntPayload, MaxIntPayload)
		}
		return Value(nanBits | uint32(tag)<<tagShift | uint32(uint16(payload))), nil
	}
	if payload < 0 || payload > MaxPayload {
		return 0, fmt.Errorf("vm: encode: %w: %d not in [0, %d] for tag %v",
			ErrPayloadRange, payload, MaxPayload, tag)
	}
	return Value(nanBits | uint32(tag)<<tagShift | uint32(payload)), nil
}

// MustEncode is Encode for arguments known valid at the call site.
// It panics on a domain error; use it only for compile-time constants.
func MustEncode(tag Tag, payload int32) Value {
	v, err := Encode(tag, payload)
	if err != nil {
		panic(err)
	}
	return v
}

// Decode unpacks a tagged cell into its (tag, payload) pair.
//
// It fails with ErrNotTagged when v is not a tagged value at all: a finite
// number, an infinity, a signaling NaN, or a quiet NaN with a zero tag field.
// Callers that may hold plain numbers must branch on IsTagged first.
func (v Value) Decode() (Tag, int32, error) {
	if !v.IsTagged() {
		return TagNumber, 0, fmt.Errorf("vm: decode: %w: %#08x", ErrNotTagged, uint32(v))
	}
	tag := Tag((uint32(v) & tagMask) >> tagShift)
	p := uint32(v) & payloadMask
	if tag == TagInteger {
		return tag, int32(int16(p)), nil
	}
	return tag, int32(p), nil
}

// ---------------------------------------------------------------------------
// Classification
// ---------------------------------------------------------------------------

// IsTagged reports whether v is a wide tagged value: a quiet NaN with the
// sign bit clear and a nonzero tag field.
func (v Value) IsTagged() bool {
	bits := uint32(v)
	if bits&(signBit|nanBits) != nanBits {
		return false
	}
	return bits&tagMask != 0
}

// IsNumber reports whether v is an ordinary number: any finite float,
// an infinity, or a NaN that carries no tag.
func (v Value) IsNumber() bool {
	return !v.IsTagged()
}

func (v Value) hasTag(t Tag) bool {
	return v.IsTagged() && Tag((uint32(v)&tagMask)>>tagShift) == t
}

// IsInteger reports whether v is an INTEGER cell.
func (v Value) IsInteger() bool { return v.hasTag(TagInteger) }

// IsCode reports whether v is a CODE reference.
func (v Value) IsCode() bool { return v.hasTag(TagCode) }

// IsBuiltin reports whether v is a BUILTIN reference.
func (v Value) IsBuiltin() bool { return v.hasTag(TagBuiltin) }

// IsString reports whether v is an interned string reference.
func (v Value) IsString() bool { return v.hasTag(TagString) }

// IsList reports whether v is a list header.
func (v Value) IsList() bool { return v.hasTag(TagList) }

// IsLink reports whether v is a backward LINK marker.
func (v Value) IsLink() bool { return v.hasTag(TagLink) }

// IsTuple reports whether v is a tuple header.
func (v Value) IsTuple() bool { return v.hasTag(TagTuple) }

// IsExecutable reports whether v can be handed to Dispatch: a CODE or
// BUILTIN reference.
func (v Value) IsExecutable() bool {
	return v.IsCode() || v.IsBuiltin()
}

// IsHeader reports whether v opens an aggregate (list or tuple header).
func (v Value) IsHeader() bool {
	return v.IsList() || v.IsTuple()
}

// ---------------------------------------------------------------------------
// Numbers
// ---------------------------------------------------------------------------

// FromFloat32 creates a numeric cell from a float32.
func FromFloat32(f float32) Value {
	return Value(math.Float32bits(f))
}

// Float32 returns v as a float32. Panics if v is a tagged value; numeric
// callers must check IsNumber first.
func (v Value) Float32() float32 {
	if v.IsTagged() {
		panic("Value.Float32: not a number")
	}
	return math.Float32frombits(uint32(v))
}

// FromInteger creates an INTEGER cell, returning false if n does not fit
// the signed 16-bit payload.
func FromInteger(n int32) (Value, bool) {
	if n < MinIntPayload || n > MaxIntPayload {
		return 0, false
	}
	return Value(nanBits | uint32(TagInteger)<<tagShift | uint32(uint16(n))), true
}

// Payload returns the raw payload of a tagged cell without classification.
// Panics if v is not tagged; use Decode for checked access.
func (v Value) Payload() int32 {
	_, p, err := v.Decode()
	if err != nil {
		panic("Value.Payload: not a tagged value")
	}
	return p
}

// String renders a cell for diagnostics: the tag mnemonic with its payload,
// or the numeric value.
func (v Value) String() string {
	tag, p, err := v.Decode()
	if err != nil {
		return fmt.Sprintf("%g", v.Float32())
	}
	return fmt.Sprintf("%v(%d)", tag, p)
}
