package fileprocessor

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/sgn/internal/options"
)

func TestProcessFile(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "payload.bin")
	output := filepath.Join(dir, "payload.sgn")
	assert.NoError(t, os.WriteFile(input, []byte{0x31, 0xc0, 0xc3}, 0o600))

	opts := options.Program{
		Parameters: options.Parameters{Input: input, Output: output},
		Flags:      options.Flags{Arch: "x64", Verify: true, Quiet: true},
	}
	encOpts := options.Encoder{EmitStub: true, Multistage: true}

	err := ProcessFile(context.Background(), log.NewTestLogger(t), rand.New(rand.NewPCG(3, 4)), opts, encOpts)
	assert.NoError(t, err)

	data, err := os.ReadFile(output)
	assert.NoError(t, err)
	assert.True(t, len(data) > 8)
}

func TestProcessFileWritesNothingOnError(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "payload.bin")
	output := filepath.Join(dir, "payload.sgn")
	assert.NoError(t, os.WriteFile(input, []byte{0x90}, 0o600))

	opts := options.Program{
		Parameters: options.Parameters{Input: input, Output: output},
		Flags:      options.Flags{Arch: "x32", Quiet: true},
	}
	encOpts := options.Encoder{EmitStub: true, BlockSize: 8}

	err := ProcessFile(context.Background(), log.NewTestLogger(t), rand.New(rand.NewPCG(3, 4)), opts, encOpts)
	assert.Error(t, err)

	_, err = os.Stat(output)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestGetFilesToProcess(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.bin", "b.bin", "c.txt"} {
		assert.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte{0x90}, 0o600))
	}

	t.Run("single input", func(t *testing.T) {
		files, err := GetFilesToProcess(&options.Program{Parameters: options.Parameters{Input: "x.bin"}})
		assert.NoError(t, err)
		assert.Equal(t, []string{"x.bin"}, files)
	})

	t.Run("batch", func(t *testing.T) {
		opts := &options.Program{Parameters: options.Parameters{Batch: filepath.Join(dir, "*.bin")}}
		files, err := GetFilesToProcess(opts)
		assert.NoError(t, err)
		assert.Equal(t, []string{filepath.Join(dir, "a.bin"), filepath.Join(dir, "b.bin")}, files)
	})

	t.Run("batch without matches", func(t *testing.T) {
		opts := &options.Program{Parameters: options.Parameters{Batch: filepath.Join(dir, "*.exe")}}
		_, err := GetFilesToProcess(opts)
		assert.True(t, errors.Is(err, errNoBatchMatches))
	})
}

func TestGenerateOutputFilename(t *testing.T) {
	tests := []struct {
		input  string
		format string
		want   string
	}{
		{input: "payload.bin", format: "raw", want: "payload.sgn"},
		{input: "dir/payload.bin", format: "hex", want: "dir/payload.hex"},
		{input: "payload", format: "c", want: "payload.h"},
		{input: "payload.bin", format: "", want: "payload.sgn"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, GenerateOutputFilename(tt.input, tt.format))
		})
	}
}
