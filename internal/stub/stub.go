// Package stub assembles the decoder stub that reverses the cipher over the
// encoded payload in place and then falls through into it.
//
// A stub consists of the regions get-PC, optional anti-debug, init, adjust
// and loop, concatenated without padding. The adjustment immediate and the
// loop displacement depend on the size of regions that follow them, so all
// instruction lengths are computed first and the offsets are derived from
// them before the final bytes are emitted.
package stub

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/retroenv/sgn/internal/arch"
	"github.com/retroenv/sgn/internal/regalloc"
	"github.com/retroenv/sgn/internal/x86"
)

// Region names.
const (
	RegionGetPC     = "getpc"
	RegionAntiDebug = "antidebug"
	RegionInit      = "init"
	RegionAdjust    = "adjust"
	RegionLoop      = "loop"
)

const (
	trapFlag      = 0x100 // EFLAGS.TF, set while single stepping
	trapSentinel  = 0
	maxStoreDelta = 8
)

// Source is the random number source used for the polymorphic choices.
type Source interface {
	IntN(n int) int
}

// Options defines the stub to assemble.
type Options struct {
	Arch       arch.Arch
	BlockSize  int
	BlockCount int
	Key        uint64
	Registers  regalloc.Triple

	AntiDebug bool // check the trap flag and break if it is set
	SelfMod   bool // store a filler byte in front of the pointer in every loop iteration
}

// Region is a contiguous part of the stub.
type Region struct {
	Name   string
	Offset int
	Size   int
}

// End returns the offset after the last byte of the region.
func (r Region) End() int {
	return r.Offset + r.Size
}

// Layout describes the geometry of an assembled stub.
type Layout struct {
	Regions   []Region
	Registers regalloc.Triple

	ReturnAddress    int // stub offset pushed by the get-PC call
	Adjustment       int // immediate added to the pointer register
	LoopStart        int // stub offset of the first loop instruction
	LoopDisplacement int // displacement encoded in the jnz
	StoreDelta       int // displacement of the self-modifying store, 0 if disabled
	StoreValue       byte
}

// Region returns the region with the given name.
func (l Layout) Region(name string) (Region, bool) {
	for _, r := range l.Regions {
		if r.Name == name {
			return r, true
		}
	}
	return Region{}, false
}

// Stub is an immutable assembled decoder stub.
type Stub struct {
	code   []byte
	layout Layout
}

// Bytes returns a copy of the stub code.
func (s Stub) Bytes() []byte {
	return slices.Clone(s.code)
}

// Len returns the stub size in bytes.
func (s Stub) Len() int {
	return len(s.code)
}

// Layout returns the geometry of the stub.
func (s Stub) Layout() Layout {
	return s.layout
}

// Assembler builds decoder stubs.
type Assembler struct {
	rng Source
}

// New returns a new stub assembler.
func New(rng Source) *Assembler {
	return &Assembler{
		rng: rng,
	}
}

// Assemble builds a decoder stub for the given options.
func (a *Assembler) Assemble(opts Options) (Stub, error) {
	if err := opts.Arch.ValidateBlockSize(opts.BlockSize); err != nil {
		return Stub{}, err
	}
	if opts.BlockCount <= 0 {
		return Stub{}, fmt.Errorf("%w: block count %d must be positive", arch.ErrConfiguration, opts.BlockCount)
	}

	enc := x86.New(opts.Arch)
	regs := opts.Registers
	layout := Layout{Registers: regs}

	getPC, err := a.getPC(enc, regs)
	if err != nil {
		return Stub{}, fmt.Errorf("assembling get-PC block: %w", err)
	}

	var antiDebug []byte
	if opts.AntiDebug {
		if antiDebug, err = a.antiDebug(enc, regs); err != nil {
			return Stub{}, fmt.Errorf("assembling anti-debug block: %w", err)
		}
	}

	initBlock, err := a.initialize(enc, regs, opts)
	if err != nil {
		return Stub{}, fmt.Errorf("assembling init block: %w", err)
	}

	loop, err := a.loop(enc, regs, opts, &layout)
	if err != nil {
		return Stub{}, fmt.Errorf("assembling loop block: %w", err)
	}

	// first pass: the size of the adjust instruction is fixed by its short
	// form, which allows computing the distance from the address pushed by
	// the call to the first payload byte.
	placeholder, err := enc.AddImm(regs.Pointer, 0)
	if err != nil {
		return Stub{}, fmt.Errorf("sizing adjust block: %w", err)
	}

	blocks := []struct {
		name string
		code []byte
	}{
		{RegionGetPC, getPC},
		{RegionAntiDebug, antiDebug},
		{RegionInit, initBlock},
		{RegionAdjust, placeholder},
		{RegionLoop, loop},
	}

	offset := 0
	for _, block := range blocks {
		if block.code == nil {
			continue
		}
		layout.Regions = append(layout.Regions, Region{Name: block.name, Offset: offset, Size: len(block.code)})
		offset += len(block.code)
	}
	stubSize := offset

	layout.ReturnAddress = len(enc.CallNext())
	layout.Adjustment = stubSize - layout.ReturnAddress
	loopRegion, _ := layout.Region(RegionLoop)
	layout.LoopStart = loopRegion.Offset

	// second pass: emit the adjust instruction with the computed immediate
	if layout.Adjustment > 127 {
		return Stub{}, fmt.Errorf("%w: pointer adjustment %d does not fit a signed byte",
			arch.ErrEncodingRange, layout.Adjustment)
	}
	adjust, err := enc.AddImm(regs.Pointer, int64(layout.Adjustment))
	if err != nil {
		return Stub{}, fmt.Errorf("assembling adjust block: %w", err)
	}
	if len(adjust) != len(placeholder) {
		return Stub{}, fmt.Errorf("%w: adjust instruction changed size from %d to %d bytes",
			arch.ErrEncodingRange, len(placeholder), len(adjust))
	}

	buf := bytes.NewBuffer(make([]byte, 0, stubSize))
	for _, block := range blocks {
		if block.name == RegionAdjust {
			buf.Write(adjust)
			continue
		}
		buf.Write(block.code)
	}

	return Stub{
		code:   buf.Bytes(),
		layout: layout,
	}, nil
}

// getPC emits call $+5; pop ptr which loads the address of the pop
// instruction into the pointer register without relocation.
func (a *Assembler) getPC(enc x86.Encoder, regs regalloc.Triple) ([]byte, error) {
	pop, err := enc.Pop(regs.Pointer)
	if err != nil {
		return nil, err
	}
	return slices.Concat(enc.CallNext(), pop), nil
}

// antiDebug emits a trap flag check that uses the counter register as
// scratch register before it gets initialized:
//
//	pushf
//	pop counter
//	and counter, 0x100
//	cmp counter, 0
//	jz +1
//	int3
func (a *Assembler) antiDebug(enc x86.Encoder, regs regalloc.Triple) ([]byte, error) {
	pop, err := enc.Pop(regs.Counter)
	if err != nil {
		return nil, err
	}
	and, err := enc.AndImm(regs.Counter, trapFlag)
	if err != nil {
		return nil, err
	}
	cmp, err := enc.CmpImm(regs.Counter, trapSentinel)
	if err != nil {
		return nil, err
	}
	trap := enc.Int3()
	jz, err := enc.Jz(len(trap))
	if err != nil {
		return nil, err
	}
	return slices.Concat(enc.Pushf(), pop, and, cmp, jz, trap), nil
}

// initialize loads the block count and the initial key in random order.
func (a *Assembler) initialize(enc x86.Encoder, regs regalloc.Triple, opts Options) ([]byte, error) {
	counter, err := enc.MovImm(regs.Counter, uint64(opts.BlockCount))
	if err != nil {
		return nil, fmt.Errorf("loading block count: %w", err)
	}
	key, err := enc.MovImm(regs.Key, opts.Key)
	if err != nil {
		return nil, fmt.Errorf("loading key: %w", err)
	}

	if a.rng.IntN(2) == 0 {
		return slices.Concat(counter, key), nil
	}
	return slices.Concat(key, counter), nil
}

// loop emits the decode loop:
//
//	[mov byte [ptr-n], filler]
//	xor [ptr], key
//	add key, [ptr]
//	add ptr, block_size
//	dec counter
//	jnz loop
func (a *Assembler) loop(enc x86.Encoder, regs regalloc.Triple, opts Options, layout *Layout) ([]byte, error) {
	var body []byte

	if opts.SelfMod {
		layout.StoreDelta = -(1 + a.rng.IntN(maxStoreDelta))
		layout.StoreValue = byte(a.rng.IntN(256))
		store, err := enc.MovMemImm8(regs.Pointer, layout.StoreDelta, layout.StoreValue)
		if err != nil {
			return nil, err
		}
		body = append(body, store...)
	}

	xor, err := enc.XorMemReg(regs.Pointer, regs.Key, opts.BlockSize)
	if err != nil {
		return nil, err
	}
	add, err := enc.AddRegMem(regs.Key, regs.Pointer, opts.BlockSize)
	if err != nil {
		return nil, err
	}
	advance, err := enc.AddImm(regs.Pointer, int64(opts.BlockSize))
	if err != nil {
		return nil, err
	}
	dec, err := enc.Dec(regs.Counter)
	if err != nil {
		return nil, err
	}
	body = slices.Concat(body, xor, add, advance, dec)

	// the jnz has a fixed size, the displacement covers the whole loop
	// including the jnz itself
	sizing, err := enc.Jnz(0)
	if err != nil {
		return nil, err
	}
	layout.LoopDisplacement = -(len(body) + len(sizing))
	jnz, err := enc.Jnz(layout.LoopDisplacement)
	if err != nil {
		return nil, err
	}

	return append(body, jnz...), nil
}
