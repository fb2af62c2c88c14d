package x86

import (
	"errors"
	"fmt"
	"math"

	"github.com/retroenv/sgn/internal/arch"
)

// ErrRegister is returned for registers that are not supported by an instruction form.
var ErrRegister = errors.New("unsupported register")

const (
	prefixOperandSize = 0x66
	prefixREX         = 0x40
	prefixREXW        = 0x48

	opcodeAddRM8   = 0x02
	opcodeAddRM    = 0x03
	opcodeXorMR8   = 0x30
	opcodeXorMR    = 0x31
	opcodeDec32    = 0x48
	opcodePop      = 0x58
	opcodeJz       = 0x74
	opcodeJnz      = 0x75
	opcodeALUImm32 = 0x81
	opcodeALUImm8  = 0x83
	opcodeNop      = 0x90
	opcodePushf    = 0x9c
	opcodeMovImm   = 0xb8
	opcodeMovMImm8 = 0xc6
	opcodeInt3     = 0xcc
	opcodeCall     = 0xe8
	opcodeGroup5   = 0xff
)

// ALU operation extensions of the 0x81/0x83 immediate group, stored in the
// reg field of the ModR/M byte.
const (
	aluAdd = 0
	aluAnd = 4
	aluCmp = 7
)

const decExtension = 1

// ModR/M addressing modes.
const (
	modIndirect = 0b00
	modDisp8    = 0b01
	modRegister = 0b11
)

// Encoder emits instructions for one architecture.
type Encoder struct {
	arch arch.Arch
}

// New returns an instruction encoder for the architecture.
func New(a arch.Arch) Encoder {
	return Encoder{arch: a}
}

// Arch returns the architecture of the encoder.
func (e Encoder) Arch() arch.Arch {
	return e.arch
}

// MovImm emits mov reg, imm. On x64 the immediate is always encoded as 64 bit.
func (e Encoder) MovImm(reg arch.Register, value uint64) ([]byte, error) {
	if err := checkRegister(reg); err != nil {
		return nil, err
	}

	if e.arch == arch.X64 {
		b := []byte{prefixREXW, opcodeMovImm + byte(reg)}
		return appendLE(b, value, 8), nil
	}

	if value > math.MaxUint32 {
		return nil, fmt.Errorf("%w: immediate 0x%x does not fit 32 bits", arch.ErrEncodingRange, value)
	}
	b := []byte{opcodeMovImm + byte(reg)}
	return appendLE(b, value, 4), nil
}

// AddImm emits add reg, imm using the sign extended byte form if the value fits.
func (e Encoder) AddImm(reg arch.Register, value int64) ([]byte, error) {
	return e.aluImm(aluAdd, reg, value)
}

// AndImm emits and reg, imm.
func (e Encoder) AndImm(reg arch.Register, value int64) ([]byte, error) {
	return e.aluImm(aluAnd, reg, value)
}

// CmpImm emits cmp reg, imm.
func (e Encoder) CmpImm(reg arch.Register, value int64) ([]byte, error) {
	return e.aluImm(aluCmp, reg, value)
}

func (e Encoder) aluImm(extension byte, reg arch.Register, value int64) ([]byte, error) {
	if err := checkRegister(reg); err != nil {
		return nil, err
	}

	b := e.wordPrefix()
	modrm := modRM(modRegister, extension, byte(reg))

	switch {
	case fitsInt8(value):
		b = append(b, opcodeALUImm8, modrm, byte(int8(value)))
	case value >= math.MinInt32 && value <= math.MaxInt32:
		b = append(b, opcodeALUImm32, modrm)
		b = appendLE(b, uint64(uint32(int32(value))), 4)
	default:
		return nil, fmt.Errorf("%w: immediate %d does not fit 32 bits", arch.ErrEncodingRange, value)
	}
	return b, nil
}

// Dec emits dec reg.
func (e Encoder) Dec(reg arch.Register) ([]byte, error) {
	if err := checkRegister(reg); err != nil {
		return nil, err
	}

	if e.arch == arch.X64 {
		// 48+r is a REX prefix in 64 bit mode
		return []byte{prefixREXW, opcodeGroup5, modRM(modRegister, decExtension, byte(reg))}, nil
	}
	return []byte{opcodeDec32 + byte(reg)}, nil
}

// Jnz emits a short jnz with a displacement relative to the end of the instruction.
func (e Encoder) Jnz(rel int) ([]byte, error) {
	return shortJump(opcodeJnz, rel)
}

// Jz emits a short jz with a displacement relative to the end of the instruction.
func (e Encoder) Jz(rel int) ([]byte, error) {
	return shortJump(opcodeJz, rel)
}

func shortJump(opcode byte, rel int) ([]byte, error) {
	if !fitsInt8(int64(rel)) {
		return nil, fmt.Errorf("%w: jump displacement %d does not fit a signed byte", arch.ErrEncodingRange, rel)
	}
	return []byte{opcode, byte(int8(rel))}, nil
}

// XorMemReg emits xor [ptr], src with the operand size in bytes.
func (e Encoder) XorMemReg(ptr, src arch.Register, size int) ([]byte, error) {
	return e.memReg(opcodeXorMR8, opcodeXorMR, ptr, src, size)
}

// AddRegMem emits add dst, [ptr] with the operand size in bytes.
func (e Encoder) AddRegMem(dst, ptr arch.Register, size int) ([]byte, error) {
	return e.memReg(opcodeAddRM8, opcodeAddRM, ptr, dst, size)
}

// memReg emits an instruction with a [ptr] memory operand in the r/m field
// and a register operand in the reg field.
func (e Encoder) memReg(opcode8, opcode byte, ptr, reg arch.Register, size int) ([]byte, error) {
	if err := checkBase(ptr); err != nil {
		return nil, err
	}
	if err := checkRegister(reg); err != nil {
		return nil, err
	}

	var b []byte
	switch size {
	case 1:
		if !reg.ByteAddressable(e.arch) {
			return nil, fmt.Errorf("%w: low byte of %s is not addressable", ErrRegister, reg.Name(e.arch))
		}
		if reg >= arch.SP {
			// selects spl, bpl, sil and dil instead of ah, ch, dh and bh
			b = append(b, prefixREX)
		}
		opcode = opcode8
	case 2:
		b = append(b, prefixOperandSize)
	case 4:
	case 8:
		if e.arch != arch.X64 {
			return nil, fmt.Errorf("%w: operand size %d is not supported by %s", arch.ErrConfiguration, size, e.arch)
		}
		b = append(b, prefixREXW)
	default:
		return nil, fmt.Errorf("%w: unsupported operand size %d", arch.ErrConfiguration, size)
	}

	return append(b, opcode, modRM(modIndirect, byte(reg), byte(ptr))), nil
}

// MovMemImm8 emits mov byte [ptr+disp], value.
func (e Encoder) MovMemImm8(ptr arch.Register, disp int, value byte) ([]byte, error) {
	if err := checkBase(ptr); err != nil {
		return nil, err
	}
	if !fitsInt8(int64(disp)) {
		return nil, fmt.Errorf("%w: displacement %d does not fit a signed byte", arch.ErrEncodingRange, disp)
	}
	return []byte{opcodeMovMImm8, modRM(modDisp8, 0, byte(ptr)), byte(int8(disp)), value}, nil
}

// CallNext emits a call to the directly following instruction, which pushes
// the address of that instruction.
func (e Encoder) CallNext() []byte {
	return []byte{opcodeCall, 0x00, 0x00, 0x00, 0x00}
}

// Pop emits pop reg. The operand size defaults to the register width on both architectures.
func (e Encoder) Pop(reg arch.Register) ([]byte, error) {
	if err := checkRegister(reg); err != nil {
		return nil, err
	}
	return []byte{opcodePop + byte(reg)}, nil
}

// Pushf emits pushfd on x32 and pushfq on x64.
func (e Encoder) Pushf() []byte {
	return []byte{opcodePushf}
}

// Int3 emits a breakpoint trap.
func (e Encoder) Int3() []byte {
	return []byte{opcodeInt3}
}

// Nop emits a single byte nop.
func (e Encoder) Nop() []byte {
	return []byte{opcodeNop}
}

// wordPrefix returns the prefix that selects the register width operand size.
func (e Encoder) wordPrefix() []byte {
	if e.arch == arch.X64 {
		return []byte{prefixREXW}
	}
	return nil
}

func checkRegister(reg arch.Register) error {
	if !reg.Valid() {
		return fmt.Errorf("%w: register encoding %d", ErrRegister, uint8(reg))
	}
	return nil
}

// checkBase verifies that the register can be used as [reg] base without
// SIB byte or displacement.
func checkBase(reg arch.Register) error {
	if err := checkRegister(reg); err != nil {
		return err
	}
	if reg == arch.StackPointer || reg == arch.FramePointer {
		return fmt.Errorf("%w: %d can not be used as memory base", ErrRegister, uint8(reg))
	}
	return nil
}

func modRM(mod, reg, rm byte) byte {
	return mod<<6 | (reg&7)<<3 | rm&7
}

func fitsInt8(value int64) bool {
	return value >= math.MinInt8 && value <= math.MaxInt8
}

func appendLE(b []byte, value uint64, size int) []byte {
	for i := range size {
		b = append(b, byte(value>>(8*uint(i))))
	}
	return b
}
