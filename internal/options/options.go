// Package options contains the program options.
package options

import (
	"fmt"

	"github.com/retroenv/sgn/internal/arch"
)

// Positional contains positional arguments.
type Positional struct {
	File string `arg:"positional" usage:"file to encode"`
}

// Parameters contains input and output options.
type Parameters struct {
	Input  string `flag:"i" usage:"input file (default: stdin)"`
	Output string `flag:"o" usage:"output file (default: stdout)"`
	String string `flag:"s" usage:"encode the given string instead of a file"`
	Batch  string `flag:"batch" usage:"batch process files matching pattern (e.g. *.bin)"`
}

// Flags contains behavior options.
type Flags struct {
	Arch      string `flag:"a" usage:"architecture: x32, x64 (default: $SGN_ARCH or x32)"`
	BlockSize int    `flag:"b" usage:"block size in bytes (default: register width)"`
	Key       string `flag:"k" usage:"initial key as hex value (default: random)"`
	Format    string `flag:"format" usage:"output format: raw, hex, c" default:"raw"`
	Verify    bool   `flag:"verify" usage:"verify the decoder stubs and the encoding of every layer"`
	List      bool   `flag:"list" usage:"log a disassembly of the generated stubs"`
	Debug     bool   `flag:"debug" usage:"enable debug logging"`
	Quiet     bool   `flag:"q" usage:"quiet mode"`
}

// EncoderFlags contains the encoder feature toggles.
type EncoderFlags struct {
	Multistage bool `flag:"multistage" usage:"decode the decoder stub with a second stub"`
	SelfMod    bool `flag:"selfmod" usage:"add a self-modifying store to the decode loop"`
	AntiDebug  bool `flag:"antidebug" usage:"add a trap flag check to the stub"`
	Crypto     bool `flag:"crypto" usage:"add an outer encryption layer with its own stub"`
	NoStub     bool `flag:"nostub" usage:"output only the encoded payload without decoder stub"`
}

// Program options of the encoder.
type Program struct {
	Parameters
	Flags
	EncoderFlags
}

// Encoder defines options to control the encoder.
type Encoder struct {
	Arch      arch.Arch
	BlockSize int
	Key       *uint64 // initial key, random if nil

	AntiDebug  bool // check for a debugger in the stub
	Crypto     bool // outer encryption layer with its own stub
	EmitStub   bool // prepend the decoder stub to the encoded payload
	Multistage bool // stub that decodes the stub that decodes the payload
	SelfMod    bool // self-modifying store in the decode loop
}

// NewEncoder returns a new options instance with default options.
func NewEncoder(a arch.Arch) Encoder {
	return Encoder{
		Arch:      a,
		BlockSize: a.DefaultBlockSize(),
		EmitStub:  true,
	}
}

// Validate returns a configuration error if the options can not be used
// for encoding. It is called before any data is processed.
func (o Encoder) Validate() error {
	if err := o.Arch.ValidateBlockSize(o.BlockSize); err != nil {
		return err
	}
	if o.Key != nil {
		if err := o.Arch.ValidateKey(*o.Key); err != nil {
			return err
		}
	}
	if !o.EmitStub && (o.Multistage || o.Crypto) {
		return fmt.Errorf("%w: multistage and crypto layers require the decoder stub output", arch.ErrConfiguration)
	}
	return nil
}
