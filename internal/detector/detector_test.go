package detector

import (
	"errors"
	"testing"

	"github.com/retroenv/retrogolib/assert"
	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/sgn/internal/arch"
	"github.com/retroenv/sgn/internal/options"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		name     string
		archOpt  string
		envArch  string
		wantArch arch.Arch
		wantErr  bool
	}{
		{
			name:     "explicit x64 option",
			archOpt:  "x64",
			envArch:  "x32",
			wantArch: arch.X64,
		},
		{
			name:     "explicit amd64 alias",
			archOpt:  "amd64",
			wantArch: arch.X64,
		},
		{
			name:     "environment default",
			envArch:  "x64",
			wantArch: arch.X64,
		},
		{
			name:     "fallback to x32",
			wantArch: arch.X32,
		},
		{
			name:    "unsupported option",
			archOpt: "arm64",
			wantErr: true,
		},
		{
			name:    "unsupported environment",
			envArch: "mips",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvArch, tt.envArch)
			d := New(log.NewTestLogger(t))

			opts := options.Program{Flags: options.Flags{Arch: tt.archOpt}}
			got, err := d.Detect(opts)
			if tt.wantErr {
				assert.Error(t, err)
				assert.True(t, errors.Is(err, arch.ErrConfiguration))
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.wantArch, got)
		})
	}
}
