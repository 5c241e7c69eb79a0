package vm

import "fmt"

// Config sizes a VM's segments. Cell counts are in 4-byte cells; the code
// segment is byte-addressed.
type Config struct {
	DataStackCells   int
	ReturnStackCells int
	CodeBytes        int
}

// DefaultConfig returns the standard segment sizes.
func DefaultConfig() Config {
	return Config{
		DataStackCells:   4096,
		ReturnStackCells: 1024,
		CodeBytes:        maxCodeBytes,
	}
}

// maxCodeBytes bounds the code segment so every byte address fits the
// 16-bit payload of a CODE cell.
const maxCodeBytes = 1 << 16

// VM is one Catena machine: segmented memory, the data and return stacks,
// the dictionary, and the native-operation registry. Each VM owns its state
// completely; embedding several interpreters means constructing several VMs.
type VM struct {
	mem  *Memory
	data *Stack
	ret  *Stack
	code *Segment

	bp   int // return-stack byte offset of the active frame's first local
	ip   int // byte offset of the next instruction
	here int // code allocation pointer (next free byte)

	dict     *Dictionary
	strings  *StringTable
	builtins []builtinEntry
}

type builtinEntry struct {
	name string
	fn   BuiltinFunc
}

// New constructs a machine with all core builtins registered.
func New(cfg Config) *VM {
	if cfg.DataStackCells <= 0 || cfg.ReturnStackCells <= 0 || cfg.CodeBytes <= 0 {
		cfg = DefaultConfig()
	}
	if cfg.CodeBytes > maxCodeBytes {
		cfg.CodeBytes = maxCodeBytes
	}
	m := NewMemory(cfg)
	vm := &VM{
		mem:     m,
		data:    newStack(m.Segment(SegData), "data"),
		ret:     newStack(m.Segment(SegReturn), "return"),
		code:    m.Segment(SegCode),
		dict:    NewDictionary(),
		strings: NewStringTable(),
	}
	vm.registerCoreBuiltins()
	return vm
}

// Data returns the data stack.
func (vm *VM) Data() *Stack { return vm.data }

// Return returns the return stack.
func (vm *VM) Return() *Stack { return vm.ret }

// Memory returns the full segmented address space.
func (vm *VM) Memory() *Memory { return vm.mem }

// Dict returns the dictionary.
func (vm *VM) Dict() *Dictionary { return vm.dict }

// Strings returns the interned-string table backing STRING cells.
func (vm *VM) Strings() *StringTable { return vm.strings }

// SP returns the data stack pointer (byte offset).
func (vm *VM) SP() int { return vm.data.SP() }

// RSP returns the return stack pointer (byte offset).
func (vm *VM) RSP() int { return vm.ret.SP() }

// BP returns the active frame's base pointer on the return stack.
func (vm *VM) BP() int { return vm.bp }

// IP returns the instruction pointer.
func (vm *VM) IP() int { return vm.ip }

// Reset unwinds both stacks and the frame pointer to top level. Compiled
// code and the dictionary survive; this is the outer loop's recovery point
// after an unrecovered core failure.
func (vm *VM) Reset() {
	vm.data.Reset()
	vm.ret.Reset()
	vm.bp = 0
	vm.ip = 0
}

// ---------------------------------------------------------------------------
// Code emission (used by the compiler and the image loader)
// ---------------------------------------------------------------------------

// Here returns the code allocation pointer.
func (vm *VM) Here() int { return vm.here }

// SetHere repositions the code allocation pointer. Used by the REPL to
// reclaim scratch code and by the image loader.
func (vm *VM) SetHere(addr int) error {
	if addr < 0 || addr > vm.code.Size() {
		return fmt.Errorf("vm: code segment: %w: here %d, size %d", ErrBounds, addr, vm.code.Size())
	}
	vm.here = addr
	return nil
}

// EmitByte appends one instruction byte at here.
func (vm *VM) EmitByte(b byte) error {
	if err := vm.code.WriteByte(vm.here, b); err != nil {
		return err
	}
	vm.here++
	return nil
}

// EmitU16 appends a 16-bit operand at here.
func (vm *VM) EmitU16(u uint16) error {
	if err := vm.code.WriteU16(vm.here, u); err != nil {
		return err
	}
	vm.here += 2
	return nil
}

// EmitCell appends a raw 32-bit cell operand at here.
func (vm *VM) EmitCell(v Value) error {
	if vm.here+CellSize > vm.code.Size() {
		return fmt.Errorf("vm: code segment: %w: here %d, size %d", ErrBounds, vm.here, vm.code.Size())
	}
	for i := 0; i < CellSize; i++ {
		if err := vm.code.WriteByte(vm.here+i, byte(uint32(v)>>(8*i))); err != nil {
			return err
		}
	}
	vm.here += CellSize
	return nil
}

// PatchU16 rewrites a previously emitted 16-bit operand (jump backpatching).
func (vm *VM) PatchU16(addr int, u uint16) error {
	return vm.code.WriteU16(addr, u)
}
