package vm

import "fmt"

// Opcode is one bytecode instruction. Opcodes are organized into ranges by
// category; operands are little-endian and follow the opcode byte.
type Opcode byte

const (
	// ========================================================================
	// Control (0x00-0x0F)
	// ========================================================================

	OpNop  Opcode = 0x00 // No operation
	OpHalt Opcode = 0x01 // Stop the run

	// ========================================================================
	// Literals (0x10-0x1F)
	// ========================================================================

	OpLit Opcode = 0x10 // Push cell: OpLit <cell:u32>

	// ========================================================================
	// Calls and dispatch (0x20-0x2F)
	// ========================================================================

	OpCall    Opcode = 0x20 // Call compiled code: OpCall <addr:u16>
	OpReturn  Opcode = 0x21 // Return from the active frame
	OpInvoke  Opcode = 0x22 // Pop a reference and dispatch it
	OpBuiltin Opcode = 0x23 // Run a native operation: OpBuiltin <op:u16>

	// ========================================================================
	// Jumps (0x30-0x3F)
	// ========================================================================

	OpJump     Opcode = 0x30 // Unconditional: OpJump <addr:u16>
	OpJumpZero Opcode = 0x31 // Pop; jump when zero/false: OpJumpZero <addr:u16>

	// ========================================================================
	// Locals (0x40-0x4F)
	// ========================================================================

	OpLocalBind Opcode = 0x40 // Pop data stack, append as newest local
	OpLocalGet  Opcode = 0x41 // Push local: OpLocalGet <slot:u8>
	OpLocalSet  Opcode = 0x42 // Pop into local: OpLocalSet <slot:u8>

	// ========================================================================
	// Capsules (0x50-0x5F)
	// ========================================================================

	OpFreeze Opcode = 0x50 // Freeze the active frame: OpFreeze <entry:u16>
)

var opcodeNames = map[Opcode]string{
	OpNop:       "nop",
	OpHalt:      "halt",
	OpLit:       "lit",
	OpCall:      "call",
	OpReturn:    "return",
	OpInvoke:    "invoke",
	OpBuiltin:   "builtin",
	OpJump:      "jump",
	OpJumpZero:  "jump-zero",
	OpLocalBind: "local-bind",
	OpLocalGet:  "local-get",
	OpLocalSet:  "local-set",
	OpFreeze:    "freeze",
}

// String returns the opcode mnemonic.
func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("Opcode(%#02x)", byte(op))
}
