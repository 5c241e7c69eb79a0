package vm

import "fmt"

// Compact boxed-pointer encoding.
//
// Alongside the wide stack-cell scheme (value.go), the VM uses a second,
// narrower NaN encoding for generic boxed pointers: a 3-bit kind and a
// 20-bit payload. The kind's top bit lives in the float sign bit, the low
// two bits in mantissa bits 21..20, leaving mantissa bits 19..0 for the
// payload. The quiet bit is forced exactly as in the wide scheme.
//
// Kind 0 is reserved. RefInt is the one signed payload class; every other
// kind carries an unsigned 20-bit payload (a cell address or table index).
// Compact refs are produced and consumed only by the ref builtins; nothing
// else in the VM decodes them, which keeps the two codecs from being
// confused even though they share the NaN space.

// RefKind is the 3-bit discriminant of a compact boxed pointer.
type RefKind uint8

const (
	RefData    RefKind = 1 // cell address on the data stack
	RefReturn  RefKind = 2 // cell address on the return stack
	RefCode    RefKind = 3 // byte address in the code segment
	RefString  RefKind = 4 // interned string ID
	RefSymbol  RefKind = 5 // dictionary entry index
	RefBuiltin RefKind = 6 // native operation index
	RefInt     RefKind = 7 // signed 20-bit immediate

	// MaxRefKind is the largest encodable kind; the field is 3 bits wide.
	MaxRefKind RefKind = 7
)

const (
	refKindLowMask  uint32 = 0x00300000 // kind bits 1..0, mantissa 21..20
	refKindLowShift        = 20
	refPayloadMask  uint32 = 0x000FFFFF

	// RefInt payload limits (signed 20-bit).
	MaxRefPayload    int32 = 0xFFFFF
	MaxRefIntPayload int32 = 1<<19 - 1
	MinRefIntPayload int32 = -(1 << 19)
)

var refKindNames = [...]string{
	RefData:    "data",
	RefReturn:  "return",
	RefCode:    "code",
	RefString:  "string",
	RefSymbol:  "symbol",
	RefBuiltin: "builtin",
	RefInt:     "int",
}

// String returns the kind name.
func (k RefKind) String() string {
	if int(k) < len(refKindNames) && refKindNames[k] != "" {
		return refKindNames[k]
	}
	return fmt.Sprintf("RefKind(%d)", uint8(k))
}

// PackRef encodes a compact boxed pointer.
//
// It fails with ErrTagRange for kind 0 or a kind beyond the 3-bit field, and
// with ErrPayloadRange for a payload outside the kind's range: signed 20-bit
// for RefInt, unsigned 20-bit otherwise.
func PackRef(kind RefKind, payload int32) (Value, error) {
	if kind == 0 || kind > MaxRefKind {
		return 0, fmt.Errorf("vm: packref: %w: kind %d", ErrTagRange, kind)
	}
	if kind == RefInt {
		if payload < MinRefIntPayload || payload > MaxRefIntPayload {
			return 0, fmt.Errorf("vm: packref: %w: %d not in [%d, %d]",
				ErrPayloadRange, payload, MinRefIntPayload, MaxRefIntPayload)
		}
	} else if payload < 0 || payload > MaxRefPayload {
		return 0, fmt.Errorf("vm: packref: %w: %d not in [0, %d] for kind %v",
			ErrPayloadRange, payload, MaxRefPayload, kind)
	}
	bits := nanBits | uint32(payload)&refPayloadMask
	bits |= (uint32(kind) & 0x3) << refKindLowShift
	if kind&0x4 != 0 {
		bits |= signBit
	}
	return Value(bits), nil
}

// UnpackRef decodes a compact boxed pointer.
//
// It fails with ErrNotTagged when v is not a quiet NaN, or when the kind
// field is 0 (a plain quiet NaN is not a ref).
func UnpackRef(v Value) (RefKind, int32, error) {
	bits := uint32(v)
	if bits&nanBits != nanBits {
		return 0, 0, fmt.Errorf("vm: unpackref: %w: %#08x", ErrNotTagged, bits)
	}
	kind := RefKind((bits & refKindLowMask) >> refKindLowShift)
	if bits&signBit != 0 {
		kind |= 0x4
	}
	if kind == 0 {
		return 0, 0, fmt.Errorf("vm: unpackref: %w: zero kind", ErrNotTagged)
	}
	p := bits & refPayloadMask
	if kind == RefInt {
		// Sign extend from 20 bits.
		if p&(1<<19) != 0 {
			return kind, int32(p | 0xFFF00000), nil
		}
		return kind, int32(p), nil
	}
	return kind, int32(p), nil
}
