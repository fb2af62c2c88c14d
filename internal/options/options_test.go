package options

import (
	"errors"
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/sgn/internal/arch"
)

func TestNewEncoder(t *testing.T) {
	opts := NewEncoder(arch.X32)
	assert.Equal(t, 4, opts.BlockSize)
	assert.True(t, opts.EmitStub)
	assert.NoError(t, opts.Validate())

	opts = NewEncoder(arch.X64)
	assert.Equal(t, 8, opts.BlockSize)
	assert.NoError(t, opts.Validate())
}

func TestEncoderValidate(t *testing.T) {
	wideKey := uint64(0x1_0000_0000)

	tests := []struct {
		name   string
		modify func(o *Encoder)
		arch   arch.Arch
		valid  bool
	}{
		{name: "x32 byte blocks", arch: arch.X32, modify: func(o *Encoder) { o.BlockSize = 1 }, valid: true},
		{name: "x32 qword blocks", arch: arch.X32, modify: func(o *Encoder) { o.BlockSize = 8 }},
		{name: "x64 qword blocks", arch: arch.X64, modify: func(o *Encoder) { o.BlockSize = 8 }, valid: true},
		{name: "x64 three byte blocks", arch: arch.X64, modify: func(o *Encoder) { o.BlockSize = 3 }},
		{name: "x32 wide key", arch: arch.X32, modify: func(o *Encoder) { o.Key = &wideKey }},
		{name: "x64 wide key", arch: arch.X64, modify: func(o *Encoder) { o.Key = &wideKey }, valid: true},
		{name: "multistage without stub", arch: arch.X32, modify: func(o *Encoder) {
			o.Multistage = true
			o.EmitStub = false
		}},
		{name: "crypto without stub", arch: arch.X64, modify: func(o *Encoder) {
			o.Crypto = true
			o.EmitStub = false
		}},
		{name: "plain without stub", arch: arch.X64, modify: func(o *Encoder) { o.EmitStub = false }, valid: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := NewEncoder(tt.arch)
			tt.modify(&opts)

			err := opts.Validate()
			if tt.valid {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			assert.True(t, errors.Is(err, arch.ErrConfiguration))
		})
	}
}
