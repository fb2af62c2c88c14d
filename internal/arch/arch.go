// Package arch contains types and functions used for multi architecture support.
// It acts as a bridge between the cipher, the register allocator and the
// instruction encoder, which all branch on the closed Arch type.
package arch

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Arch identifies a supported target architecture.
type Arch int

// Supported architectures.
const (
	X32 Arch = iota
	X64
)

var (
	// ErrConfiguration is returned for invalid architecture, block size or key settings.
	ErrConfiguration = errors.New("configuration error")
	// ErrEncodingRange is returned when a value does not fit the implemented instruction encoding.
	ErrEncodingRange = errors.New("encoding range error")
	// ErrAllocation is returned when no distinct set of registers can be allocated.
	ErrAllocation = errors.New("register allocation error")
)

var (
	blockSizes32 = []int{1, 2, 4}
	blockSizes64 = []int{1, 2, 4, 8}
)

// Parse converts an architecture name like x32 or x64 to its Arch value.
func Parse(name string) (Arch, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "x32", "x86", "386", "i386":
		return X32, nil
	case "x64", "amd64", "x86_64":
		return X64, nil
	default:
		return 0, fmt.Errorf("%w: unsupported architecture '%s'", ErrConfiguration, name)
	}
}

// String returns the canonical name of the architecture.
func (a Arch) String() string {
	switch a {
	case X32:
		return "x32"
	case X64:
		return "x64"
	default:
		return fmt.Sprintf("arch(%d)", int(a))
	}
}

// Bits returns the general purpose register width in bits.
func (a Arch) Bits() int {
	if a == X64 {
		return 64
	}
	return 32
}

// WordSize returns the general purpose register width in bytes.
func (a Arch) WordSize() int {
	return a.Bits() / 8
}

// Mask returns the mask that wraps a value to the register width.
func (a Arch) Mask() uint64 {
	if a == X64 {
		return ^uint64(0)
	}
	return 0xffffffff
}

// BlockSizes returns the allowed block sizes in ascending order.
func (a Arch) BlockSizes() []int {
	if a == X64 {
		return slices.Clone(blockSizes64)
	}
	return slices.Clone(blockSizes32)
}

// DefaultBlockSize returns the block size used when none is given,
// which is the register width.
func (a Arch) DefaultBlockSize() int {
	return a.WordSize()
}

// ValidateBlockSize returns a configuration error if the block size is not
// supported by the architecture.
func (a Arch) ValidateBlockSize(blockSize int) error {
	if a != X32 && a != X64 {
		return fmt.Errorf("%w: unsupported architecture %s", ErrConfiguration, a)
	}
	sizes := blockSizes32
	if a == X64 {
		sizes = blockSizes64
	}
	if !slices.Contains(sizes, blockSize) {
		return fmt.Errorf("%w: block size %d is not supported by %s, valid sizes: %v",
			ErrConfiguration, blockSize, a, sizes)
	}
	return nil
}

// ValidateKey returns a configuration error if the key does not fit the register width.
func (a Arch) ValidateKey(key uint64) error {
	if key&a.Mask() != key {
		return fmt.Errorf("%w: key 0x%x exceeds the %d bit register width of %s",
			ErrConfiguration, key, a.Bits(), a)
	}
	return nil
}

// BlockMask returns the mask that truncates a value to the given block size in bytes.
func BlockMask(blockSize int) uint64 {
	if blockSize >= 8 {
		return ^uint64(0)
	}
	return uint64(1)<<(8*uint(blockSize)) - 1
}
