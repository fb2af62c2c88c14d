package cipher

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/sgn/internal/arch"
)

func TestEncodeSingleBlockZeroKey(t *testing.T) {
	result, err := Encode(arch.X32, []byte("AAAA"), 0, 4)
	assert.NoError(t, err)
	assert.Equal(t, []byte{0x41, 0x41, 0x41, 0x41}, result.Data)
	assert.Equal(t, 1, result.BlockCount)
	assert.Equal(t, uint64(0x41414141), result.FinalKey)
}

func TestEncodeKeyAdvance(t *testing.T) {
	data := []byte{
		0x01, 0x00, 0x00, 0x00,
		0x01, 0x00, 0x00, 0x00,
	}

	result, err := Encode(arch.X32, data, 5, 4)
	assert.NoError(t, err)

	expected := []byte{
		0x04, 0x00, 0x00, 0x00,
		0x08, 0x00, 0x00, 0x00,
	}
	assert.Equal(t, expected, result.Data)
	assert.False(t, cmp.Equal(result.Data[:4], result.Data[4:]))
	assert.Equal(t, uint64(0x11), result.FinalKey)
}

func TestRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	for _, a := range []arch.Arch{arch.X32, arch.X64} {
		for _, blockSize := range a.BlockSizes() {
			for length := 0; length < 40; length++ {
				data := make([]byte, length)
				for i := range data {
					data[i] = byte(rng.Uint32())
				}
				key := rng.Uint64() & a.Mask()

				result, err := Encode(a, data, key, blockSize)
				assert.NoError(t, err)

				decoded, finalKey, err := Decode(a, result.Data, key, blockSize)
				assert.NoError(t, err)
				if diff := cmp.Diff(Pad(data, blockSize), decoded); diff != "" {
					t.Fatalf("%s block size %d length %d: round trip mismatch (-want +got):\n%s",
						a, blockSize, length, diff)
				}
				assert.Equal(t, result.FinalKey, finalKey)
			}
		}
	}
}

func TestBlockCountInvariant(t *testing.T) {
	for _, blockSize := range arch.X64.BlockSizes() {
		for length := 0; length < 33; length++ {
			result, err := Encode(arch.X64, make([]byte, length), 0x1234, blockSize)
			assert.NoError(t, err)
			assert.Equal(t, BlockCount(length, blockSize), result.BlockCount)
			assert.Equal(t, result.BlockCount*blockSize, len(result.Data))
		}
	}
}

func TestKeyFeedbackUsesRegisterWidth(t *testing.T) {
	data := make([]byte, 8)
	for i := range data {
		data[i] = byte(0x11 * (i + 1))
	}

	tests := []struct {
		arch arch.Arch
		key  uint64
	}{
		{arch: arch.X32, key: 0xfffffff0},
		{arch: arch.X64, key: 0xfffffffffffffff0},
	}

	for _, tt := range tests {
		t.Run(tt.arch.String(), func(t *testing.T) {
			var sawWideKey bool

			for _, blockSize := range tt.arch.BlockSizes() {
				keys, err := Trace(tt.arch, data, tt.key, blockSize)
				assert.NoError(t, err)

				result, err := Encode(tt.arch, data, tt.key, blockSize)
				assert.NoError(t, err)
				assert.Equal(t, result.BlockCount+1, len(keys))

				for i := 0; i < result.BlockCount; i++ {
					block := readLE(result.Data[i*blockSize : (i+1)*blockSize])
					expected := (keys[i] + block) & tt.arch.Mask()
					assert.Equal(t, expected, keys[i+1])
					if keys[i+1] > arch.BlockMask(blockSize) {
						sawWideKey = true
					}
				}
			}

			assert.True(t, sawWideKey)
		})
	}
}

func TestByteBlocksCarryIntoFullKey(t *testing.T) {
	// With zero data every encoded block equals the truncated key, so the
	// carry out of the low byte shows up in the next key.
	keys, err := Trace(arch.X32, make([]byte, 4), 0x000000ff, 1)
	assert.NoError(t, err)
	assert.Equal(t, []uint64{0xff, 0x1fe, 0x2fc, 0x3f8, 0x4f0}, keys)
}

func TestInvalidBlockSize(t *testing.T) {
	tests := []struct {
		arch      arch.Arch
		blockSize int
	}{
		{arch: arch.X32, blockSize: 0},
		{arch: arch.X32, blockSize: 3},
		{arch: arch.X32, blockSize: 8},
		{arch: arch.X64, blockSize: 16},
		{arch: arch.X64, blockSize: -1},
	}

	for _, tt := range tests {
		_, err := Encode(tt.arch, []byte{1, 2, 3}, 0, tt.blockSize)
		assert.Error(t, err)
		assert.True(t, errors.Is(err, arch.ErrConfiguration))

		_, _, err = Decode(tt.arch, []byte{1, 2, 3}, 0, tt.blockSize)
		assert.True(t, errors.Is(err, arch.ErrConfiguration))
	}
}

func TestKeyWiderThanRegister(t *testing.T) {
	_, err := Encode(arch.X32, []byte{1}, 0x100000000, 4)
	assert.True(t, errors.Is(err, arch.ErrConfiguration))
}

func TestEncodeDoesNotModifyInput(t *testing.T) {
	data := []byte{1, 2, 3}
	_, err := Encode(arch.X32, data, 0xdeadbeef, 2)
	assert.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, data)
}
