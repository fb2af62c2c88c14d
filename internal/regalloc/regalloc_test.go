package regalloc

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/sgn/internal/arch"
)

func TestChooseDistinct(t *testing.T) {
	allocator := New(rand.New(rand.NewPCG(7, 11)))

	for _, a := range []arch.Arch{arch.X32, arch.X64} {
		for _, blockSize := range a.BlockSizes() {
			for range 10000 {
				triple, err := allocator.Choose(a, blockSize)
				assert.NoError(t, err)

				assert.True(t, triple.Key != triple.Counter)
				assert.True(t, triple.Key != triple.Pointer)
				assert.True(t, triple.Counter != triple.Pointer)

				assert.True(t, triple.Pointer != arch.FramePointer)
				assert.True(t, triple.Pointer != arch.StackPointer)
				assert.True(t, triple.Key != arch.StackPointer)
				assert.True(t, triple.Counter != arch.StackPointer)

				if blockSize == 1 {
					assert.True(t, triple.Key.ByteAddressable(a))
				}
			}
		}
	}
}

func TestChooseCoversAllRoles(t *testing.T) {
	allocator := New(rand.New(rand.NewPCG(3, 5)))

	keys := map[arch.Register]bool{}
	counters := map[arch.Register]bool{}
	pointers := map[arch.Register]bool{}
	for range 2000 {
		triple, err := allocator.Choose(arch.X64, 8)
		assert.NoError(t, err)
		keys[triple.Key] = true
		counters[triple.Counter] = true
		pointers[triple.Pointer] = true
	}

	assert.Len(t, keys, 7)
	assert.Len(t, counters, 7)
	assert.Len(t, pointers, 6)
}

func TestChooseDeterministicWithSeed(t *testing.T) {
	first := New(rand.New(rand.NewPCG(42, 42)))
	second := New(rand.New(rand.NewPCG(42, 42)))

	for range 100 {
		a, err := first.Choose(arch.X32, 4)
		assert.NoError(t, err)
		b, err := second.Choose(arch.X32, 4)
		assert.NoError(t, err)
		assert.Equal(t, a, b)
	}
}

type fixedSource struct{}

func (fixedSource) IntN(int) int { return 0 }

func TestPickExhausted(t *testing.T) {
	allocator := New(fixedSource{})

	used := setOf(arch.Registers()...)
	_, err := allocator.pick(used, nil, func(arch.Register) bool { return true })
	assert.Error(t, err)
	assert.True(t, errors.Is(err, arch.ErrAllocation))
}

func TestTripleString(t *testing.T) {
	triple := Triple{Key: arch.AX, Counter: arch.CX, Pointer: arch.SI}
	assert.Equal(t, "key=eax counter=ecx pointer=esi", triple.String(arch.X32))
	assert.Equal(t, "key=rax counter=rcx pointer=rsi", triple.String(arch.X64))
}
