// Package x86 emits the exact machine code bytes of the instructions used by
// the decoder stubs, for both the x32 and the x64 architecture.
//
// # Encoding Overview
//
// All emitters are pure functions of their operands: the same input always
// produces the same bytes, and the length of an instruction only depends on
// its form and not on the operand values within that form. This allows the
// stub assembler to compute all offsets before emitting a single byte.
//
// The operand encoding byte (ModR/M) is shared between both architectures.
// x64 forms prepend a REX prefix where a 64 bit operand size or a uniform
// byte register is needed:
//
//	mov reg, imm        B8+r imm32          REX.W B8+r imm64
//	add reg, imm        83 /0 ib, 81 /0 id  REX.W 83 /0 ib, REX.W 81 /0 id
//	dec reg             48+r                REX.W FF /1
//	jnz rel8            75 rel8             75 rel8
//	xor [ptr], reg      30/31 /r            30/31 /r, REX.W 31 /r
//	add reg, [ptr]      02/03 /r            02/03 /r, REX.W 03 /r
//
// Only registers with a 3 bit encoding are supported, which keeps every
// register selectable without REX.B or REX.R.
package x86
