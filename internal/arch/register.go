package arch

import "fmt"

// Register is the 3 bit encoding of a general purpose register as used in
// the ModR/M byte and the +r opcode forms.
type Register uint8

// General purpose registers, numbered by their hardware encoding.
const (
	AX Register = iota
	CX
	DX
	BX
	SP
	BP
	SI
	DI
)

// StackPointer and FramePointer are never handed out as pointer registers.
const (
	StackPointer = SP
	FramePointer = BP
)

var registerNames = map[Arch][8]string{
	X32: {"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi"},
	X64: {"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi"},
}

// Registers returns all general purpose registers in encoding order.
func Registers() []Register {
	return []Register{AX, CX, DX, BX, SP, BP, SI, DI}
}

// Valid returns whether the register has a 3 bit encoding.
func (r Register) Valid() bool {
	return r <= DI
}

// Name returns the register name for the architecture, like eax or rax.
func (r Register) Name(a Arch) string {
	names, ok := registerNames[a]
	if !ok || !r.Valid() {
		return fmt.Sprintf("r%d", uint8(r))
	}
	return names[r]
}

// ByteAddressable returns whether the low byte of the register can be
// addressed by an 8 bit operand. On x32 encodings 4-7 select ah, ch, dh
// and bh instead of the low byte.
func (r Register) ByteAddressable(a Arch) bool {
	if !r.Valid() {
		return false
	}
	return a == X64 || r < SP
}
