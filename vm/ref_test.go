package vm

import (
	"errors"
	"testing"
)

func TestPackRefRoundTrip(t *testing.T) {
	tests := []struct {
		kind    RefKind
		payload int32
	}{
		{RefData, 0},
		{RefData, MaxRefPayload},
		{RefReturn, 1024},
		{RefCode, 0xFFFF},
		{RefString, 7},
		{RefSymbol, 99},
		{RefBuiltin, 12},
		{RefInt, 0},
		{RefInt, -1},
		{RefInt, MaxRefIntPayload},
		{RefInt, MinRefIntPayload},
	}

	for _, tt := range tests {
		v, err := PackRef(tt.kind, tt.payload)
		if err != nil {
			t.Errorf("PackRef(%v, %d) failed: %v", tt.kind, tt.payload, err)
			continue
		}
		kind, payload, err := UnpackRef(v)
		if err != nil {
			t.Errorf("UnpackRef(PackRef(%v, %d)) failed: %v", tt.kind, tt.payload, err)
			continue
		}
		if kind != tt.kind || payload != tt.payload {
			t.Errorf("UnpackRef(PackRef(%v, %d)) = (%v, %d)", tt.kind, tt.payload, kind, payload)
		}
	}
}

func TestPackRefForcesQuietNaN(t *testing.T) {
	for kind := RefData; kind <= MaxRefKind; kind++ {
		v, err := PackRef(kind, 5)
		if err != nil {
			t.Fatalf("PackRef(%v, 5) failed: %v", kind, err)
		}
		if uint32(v)&nanBits != nanBits {
			t.Errorf("PackRef(%v) = %#08x: quiet NaN prefix missing", kind, uint32(v))
		}
	}
}

func TestPackRefRejections(t *testing.T) {
	tests := []struct {
		name    string
		kind    RefKind
		payload int32
		want    error
	}{
		{"kind zero", 0, 0, ErrTagRange},
		{"kind beyond field", MaxRefKind + 1, 0, ErrTagRange},
		{"negative unsigned payload", RefData, -1, ErrPayloadRange},
		{"unsigned payload overflow", RefCode, MaxRefPayload + 1, ErrPayloadRange},
		{"signed overflow", RefInt, MaxRefIntPayload + 1, ErrPayloadRange},
		{"signed underflow", RefInt, MinRefIntPayload - 1, ErrPayloadRange},
	}
	for _, tt := range tests {
		if _, err := PackRef(tt.kind, tt.payload); !errors.Is(err, tt.want) {
			t.Errorf("%s: PackRef(%v, %d) err = %v, want %v", tt.name, tt.kind, tt.payload, err, tt.want)
		}
	}
}

func TestUnpackRefRejectsNumbers(t *testing.T) {
	if _, _, err := UnpackRef(FromFloat32(1.5)); !errors.Is(err, ErrNotTagged) {
		t.Errorf("UnpackRef(1.5) err = %v, want ErrNotTagged", err)
	}
	// A quiet NaN with no kind bits is not a ref either.
	if _, _, err := UnpackRef(Value(nanBits)); !errors.Is(err, ErrNotTagged) {
		t.Errorf("UnpackRef(quiet NaN) err = %v, want ErrNotTagged", err)
	}
}
