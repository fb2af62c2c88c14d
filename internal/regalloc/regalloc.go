// Package regalloc chooses the key, counter and pointer registers of a
// decoder stub. Any eligible register may fill any role, so separately
// generated stubs use different opcodes for identical logic.
package regalloc

import (
	"fmt"

	"github.com/retroenv/retrogolib/set"
	"github.com/retroenv/sgn/internal/arch"
)

// Source is the random number source used for register selection.
type Source interface {
	IntN(n int) int
}

// Triple holds the registers used by one decoder stub.
type Triple struct {
	Key     arch.Register
	Counter arch.Register
	Pointer arch.Register
}

// String returns the register names of the triple for the architecture.
func (t Triple) String(a arch.Arch) string {
	return fmt.Sprintf("key=%s counter=%s pointer=%s",
		t.Key.Name(a), t.Counter.Name(a), t.Pointer.Name(a))
}

// Allocator picks register triples using an explicit random source.
type Allocator struct {
	rng Source
}

// New returns a new register allocator.
func New(rng Source) *Allocator {
	return &Allocator{
		rng: rng,
	}
}

// Choose returns three distinct registers. The stack pointer is never used,
// the pointer register additionally excludes the frame pointer as [ebp]
// has no encoding without a displacement. For byte blocks the key register
// must have an addressable low byte.
func (a *Allocator) Choose(ar arch.Arch, blockSize int) (Triple, error) {
	used := set.New[arch.Register]()
	used.Add(arch.StackPointer)

	pointerExcluded := set.New[arch.Register]()
	pointerExcluded.Add(arch.FramePointer)

	ptr, err := a.pick(used, pointerExcluded, func(arch.Register) bool { return true })
	if err != nil {
		return Triple{}, fmt.Errorf("choosing pointer register: %w", err)
	}
	used.Add(ptr)

	key, err := a.pick(used, nil, func(r arch.Register) bool {
		return blockSize != 1 || r.ByteAddressable(ar)
	})
	if err != nil {
		return Triple{}, fmt.Errorf("choosing key register: %w", err)
	}
	used.Add(key)

	counter, err := a.pick(used, nil, func(arch.Register) bool { return true })
	if err != nil {
		return Triple{}, fmt.Errorf("choosing counter register: %w", err)
	}

	return Triple{
		Key:     key,
		Counter: counter,
		Pointer: ptr,
	}, nil
}

func (a *Allocator) pick(used, excluded set.Set[arch.Register], allowed func(arch.Register) bool) (arch.Register, error) {
	var candidates []arch.Register
	for _, r := range arch.Registers() {
		if used.Contains(r) || (excluded != nil && excluded.Contains(r)) || !allowed(r) {
			continue
		}
		candidates = append(candidates, r)
	}
	if len(candidates) == 0 {
		return 0, fmt.Errorf("%w: no eligible register left", arch.ErrAllocation)
	}
	return candidates[a.rng.IntN(len(candidates))], nil
}
