package vm

import (
	"crypto/sha256"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
)

// Image is a relocatable snapshot of a machine's compiled state: the live
// prefix of the code segment, the dictionary, and the interned strings.
// Stacks are deliberately absent — an image resumes at top level.
type Image struct {
	Version int         `cbor:"1,keyasint"`
	ID      string      `cbor:"2,keyasint"`
	Code    []byte      `cbor:"3,keyasint"`
	Hash    [32]byte    `cbor:"4,keyasint"`
	Words   []ImageWord `cbor:"5,keyasint"`
	Strings []string    `cbor:"6,keyasint"`
}

// ImageWord is one dictionary entry in definition order. Builtin references
// are stored by name and re-resolved on load, so operation indexes may
// change between binaries without invalidating images.
type ImageWord struct {
	Name      string `cbor:"1,keyasint"`
	Builtin   bool   `cbor:"2,keyasint"`
	Addr      int32  `cbor:"3,keyasint"`
	Immediate bool   `cbor:"4,keyasint"`
}

// ImageVersion is the current snapshot format version. Increment on
// incompatible changes.
const ImageVersion = 1

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Snapshot captures the machine's compiled state as an Image.
func (vm *VM) Snapshot() (*Image, error) {
	code := make([]byte, vm.here)
	copy(code, vm.code.Bytes()[:vm.here])

	entries := vm.dict.All()
	words := make([]ImageWord, 0, len(entries))
	for _, e := range entries {
		tag, p, err := e.Ref.Decode()
		if err != nil {
			return nil, fmt.Errorf("vm: snapshot: entry %q: %w", e.Name, err)
		}
		switch tag {
		case TagBuiltin:
			words = append(words, ImageWord{Name: e.Name, Builtin: true, Immediate: e.Immediate})
		case TagCode:
			words = append(words, ImageWord{Name: e.Name, Addr: p, Immediate: e.Immediate})
		default:
			return nil, fmt.Errorf("vm: snapshot: entry %q: %w: tag %v", e.Name, ErrMalformed, tag)
		}
	}

	strings := make([]string, vm.strings.Len())
	for i := range strings {
		strings[i] = vm.strings.Name(int32(i))
	}

	return &Image{
		Version: ImageVersion,
		ID:      uuid.New().String(),
		Code:    code,
		Hash:    sha256.Sum256(code),
		Words:   words,
		Strings: strings,
	}, nil
}

// Restore replaces the machine's compiled state with the image's. The
// stacks are reset; builtin words are re-resolved against the running
// binary and unknown ones fail the load before anything is modified.
func (vm *VM) Restore(img *Image) error {
	if img.Version != ImageVersion {
		return fmt.Errorf("vm: restore: unsupported image version %d", img.Version)
	}
	if sha256.Sum256(img.Code) != img.Hash {
		return fmt.Errorf("vm: restore: %w: code hash mismatch", ErrMalformed)
	}
	if len(img.Code) > vm.code.Size() {
		return fmt.Errorf("vm: restore: %w: image code %d bytes, segment %d",
			ErrBounds, len(img.Code), vm.code.Size())
	}
	type resolved struct {
		word ImageWord
		op   int32
	}
	plan := make([]resolved, 0, len(img.Words))
	for _, w := range img.Words {
		r := resolved{word: w, op: -1}
		if w.Builtin {
			op := vm.findBuiltin(w.Name)
			if op < 0 {
				return fmt.Errorf("vm: restore: %w: builtin %q", ErrUndefined, w.Name)
			}
			r.op = op
		}
		plan = append(plan, r)
	}

	vm.Reset()
	buf := vm.code.Bytes()
	copy(buf, img.Code)
	for i := len(img.Code); i < len(buf); i++ {
		buf[i] = 0
	}
	vm.here = len(img.Code)

	dict := NewDictionary()
	for _, r := range plan {
		var err error
		if r.word.Builtin {
			_, err = dict.DefineBuiltin(r.word.Name, r.op)
		} else {
			_, err = dict.DefineCode(r.word.Name, int(r.word.Addr))
		}
		if err != nil {
			return fmt.Errorf("vm: restore: %w", err)
		}
		if r.word.Immediate {
			dict.SetImmediate(r.word.Name)
		}
	}
	vm.dict = dict

	st := NewStringTable()
	for _, s := range img.Strings {
		if _, err := st.Intern(s); err != nil {
			return fmt.Errorf("vm: restore: %w", err)
		}
	}
	vm.strings = st
	return nil
}

// findBuiltin returns the operation index registered under name, or -1.
// Restore resolves against the registry itself so user definitions that
// shadow a builtin name cannot break an image load.
func (vm *VM) findBuiltin(name string) int32 {
	for i := range vm.builtins {
		if vm.builtins[i].name == name {
			return int32(i)
		}
	}
	return -1
}

// MarshalImage serializes an Image to canonical CBOR bytes.
func MarshalImage(img *Image) ([]byte, error) {
	return cborEncMode.Marshal(img)
}

// UnmarshalImage deserializes an Image from CBOR bytes.
func UnmarshalImage(data []byte) (*Image, error) {
	var img Image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("vm: unmarshal image: %w", err)
	}
	return &img, nil
}

// SaveImage snapshots the machine and writes the image to path.
func (vm *VM) SaveImage(path string) (*Image, error) {
	img, err := vm.Snapshot()
	if err != nil {
		return nil, err
	}
	data, err := MarshalImage(img)
	if err != nil {
		return nil, fmt.Errorf("vm: save image: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("vm: save image: %w", err)
	}
	return img, nil
}

// LoadImage reads an image from path and restores it into the machine.
func (vm *VM) LoadImage(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("vm: load image: %w", err)
	}
	img, err := UnmarshalImage(data)
	if err != nil {
		return nil, err
	}
	if err := vm.Restore(img); err != nil {
		return nil, err
	}
	return img, nil
}
