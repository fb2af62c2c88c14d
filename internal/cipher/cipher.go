// Package cipher implements the additive feedback block cipher that the
// generated decoder stubs reverse at runtime.
//
// Every block is XORed with the current key truncated to the block width.
// The key then advances by the encoded block value, wrapping at the full
// register width of the architecture and not at the block width, which keeps
// a register sized accumulator in lock step with a narrower XOR window.
package cipher

import (
	"fmt"

	"github.com/retroenv/sgn/internal/arch"
)

// State holds the rolling key of a single encode or decode pass.
type State struct {
	key      uint64
	wordMask uint64
}

// NewState returns a state seeded with the given key.
func NewState(a arch.Arch, key uint64) (*State, error) {
	if err := a.ValidateKey(key); err != nil {
		return nil, err
	}
	return &State{
		key:      key,
		wordMask: a.Mask(),
	}, nil
}

// Key returns the current key.
func (s *State) Key() uint64 {
	return s.key
}

// EncodeBlock encodes a single block value and advances the key.
func (s *State) EncodeBlock(value, blockMask uint64) uint64 {
	encoded := (value ^ s.key) & blockMask
	s.feedback(encoded)
	return encoded
}

// DecodeBlock decodes a single block value and advances the key.
func (s *State) DecodeBlock(encoded, blockMask uint64) uint64 {
	value := (encoded ^ s.key) & blockMask
	s.feedback(encoded)
	return value
}

func (s *State) feedback(encoded uint64) {
	s.key = (encoded + s.key) & s.wordMask
}

// Result is the output of an encode pass.
type Result struct {
	Arch       arch.Arch
	Data       []byte // padded encoded bytes
	BlockSize  int
	BlockCount int
	InitialKey uint64
	FinalKey   uint64
}

// Encode pads the data with zero bytes to a multiple of the block size and
// encodes it block by block.
func Encode(a arch.Arch, data []byte, key uint64, blockSize int) (Result, error) {
	encoded, finalKey, err := process(a, data, key, blockSize, (*State).EncodeBlock, nil)
	if err != nil {
		return Result{}, err
	}

	return Result{
		Arch:       a,
		Data:       encoded,
		BlockSize:  blockSize,
		BlockCount: len(encoded) / blockSize,
		InitialKey: key,
		FinalKey:   finalKey,
	}, nil
}

// Decode reverses Encode and returns the padded plain data and the final key.
func Decode(a arch.Arch, data []byte, key uint64, blockSize int) ([]byte, uint64, error) {
	return process(a, data, key, blockSize, (*State).DecodeBlock, nil)
}

// Trace encodes the data like Encode and returns the key that was used for
// every block, followed by the final key.
func Trace(a arch.Arch, data []byte, key uint64, blockSize int) ([]uint64, error) {
	var keys []uint64
	observe := func(key uint64) {
		keys = append(keys, key)
	}
	_, finalKey, err := process(a, data, key, blockSize, (*State).EncodeBlock, observe)
	if err != nil {
		return nil, err
	}
	return append(keys, finalKey), nil
}

// Pad returns a copy of data padded with zero bytes to a multiple of the block size.
func Pad(data []byte, blockSize int) []byte {
	size := len(data)
	if rem := size % blockSize; rem != 0 {
		size += blockSize - rem
	}
	padded := make([]byte, size)
	copy(padded, data)
	return padded
}

// BlockCount returns the number of blocks needed to hold the given length.
func BlockCount(length, blockSize int) int {
	return (length + blockSize - 1) / blockSize
}

type blockFunc func(s *State, value, blockMask uint64) uint64

func process(a arch.Arch, data []byte, key uint64, blockSize int,
	transform blockFunc, observe func(key uint64)) ([]byte, uint64, error) {

	if err := a.ValidateBlockSize(blockSize); err != nil {
		return nil, 0, err
	}
	state, err := NewState(a, key)
	if err != nil {
		return nil, 0, fmt.Errorf("creating cipher state: %w", err)
	}

	buf := Pad(data, blockSize)
	blockMask := arch.BlockMask(blockSize)

	for offset := 0; offset < len(buf); offset += blockSize {
		block := buf[offset : offset+blockSize]
		if observe != nil {
			observe(state.Key())
		}
		value := transform(state, readLE(block), blockMask)
		writeLE(block, value)
	}

	return buf, state.Key(), nil
}

func readLE(b []byte) uint64 {
	var value uint64
	for i, c := range b {
		value |= uint64(c) << (8 * uint(i))
	}
	return value
}

func writeLE(b []byte, value uint64) {
	for i := range b {
		b[i] = byte(value >> (8 * uint(i)))
	}
}
