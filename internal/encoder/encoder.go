// Package encoder composes the cipher, the register allocator and the stub
// assembler into the final output, optionally wrapping the decoder stub in a
// second decoding stage and adding an outer encryption layer.
package encoder

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/sgn/internal/arch"
	"github.com/retroenv/sgn/internal/cipher"
	"github.com/retroenv/sgn/internal/options"
	"github.com/retroenv/sgn/internal/regalloc"
	"github.com/retroenv/sgn/internal/stub"
	"github.com/retroenv/sgn/internal/x86"
)

// Source is the random number source of an encoder. It is shared by the
// key generation, the register allocator and the stub assembler.
type Source interface {
	IntN(n int) int
	Uint64() uint64
}

// LayerKind identifies the role of a layer in the output.
type LayerKind string

// Layer kinds, from innermost to outermost.
const (
	LayerPayload LayerKind = "payload" // encodes the input data
	LayerPrimary LayerKind = "primary" // multistage, encodes the payload stub
	LayerCrypto  LayerKind = "crypto"  // encodes everything that follows its stub
)

// Layer is a single encode pass with its decoder stub.
type Layer struct {
	Kind   LayerKind
	Stub   stub.Stub     // zero value if no stub is emitted
	Cipher cipher.Result // encoded data of the layer
	Plain  []byte        // data that the layer encoded, including the sled
	Sled   int           // number of nop bytes prepended to the encoded data

	// Offsets in the output, valid once all outer layers are decoded in place.
	StubOffset int
	DataOffset int
}

// HasStub returns whether the layer emitted a decoder stub.
func (l Layer) HasStub() bool {
	return l.Stub.Len() > 0
}

// Result is the output of an encoder run.
type Result struct {
	Arch   arch.Arch
	Output []byte
	Layers []Layer // outermost layer first
}

// Encoder runs the complete encoding pipeline.
type Encoder struct {
	logger    *log.Logger
	rng       Source
	allocator *regalloc.Allocator
	assembler *stub.Assembler
}

// New returns a new encoder using the given random source.
func New(logger *log.Logger, rng Source) *Encoder {
	return &Encoder{
		logger:    logger,
		rng:       rng,
		allocator: regalloc.New(rng),
		assembler: stub.New(rng),
	}
}

// Encode encodes the data according to the options. Either a complete,
// consistent result is returned or an error, never partial output.
func (e *Encoder) Encode(data []byte, opts options.Encoder) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: no input data", arch.ErrConfiguration)
	}

	key := e.randomKey(opts.Arch)
	if opts.Key != nil {
		key = *opts.Key
	}

	payload, err := e.layer(LayerPayload, data, 0, key, opts)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	if !opts.EmitStub {
		return &Result{
			Arch:   opts.Arch,
			Output: payload.Cipher.Data,
			Layers: []Layer{payload},
		}, nil
	}

	layers := []Layer{payload}
	output := slices.Concat(payload.Stub.Bytes(), payload.Cipher.Data)

	if opts.Multistage {
		sled := sledSize(payload.Stub.Len(), opts.BlockSize)
		primary, err := e.layer(LayerPrimary, payload.Stub.Bytes(), sled, e.randomKey(opts.Arch), opts)
		if err != nil {
			return nil, fmt.Errorf("encoding primary stage: %w", err)
		}
		output = slices.Concat(primary.Stub.Bytes(), primary.Cipher.Data, payload.Cipher.Data)
		layers = append([]Layer{primary}, layers...)
	}

	if opts.Crypto {
		outer, err := e.layer(LayerCrypto, output, 0, e.randomKey(opts.Arch), opts)
		if err != nil {
			return nil, fmt.Errorf("encoding crypto layer: %w", err)
		}
		output = slices.Concat(outer.Stub.Bytes(), outer.Cipher.Data)
		layers = append([]Layer{outer}, layers...)
	}

	assignOffsets(layers)

	return &Result{
		Arch:   opts.Arch,
		Output: output,
		Layers: layers,
	}, nil
}

// layer encodes the data prefixed with a nop sled and assembles the
// decoder stub for it, using its own register triple.
func (e *Encoder) layer(kind LayerKind, data []byte, sled int, key uint64, opts options.Encoder) (Layer, error) {
	plain := slices.Concat(bytes.Repeat(x86.New(opts.Arch).Nop(), sled), data)

	encoded, err := cipher.Encode(opts.Arch, plain, key, opts.BlockSize)
	if err != nil {
		return Layer{}, fmt.Errorf("encoding data: %w", err)
	}
	l := Layer{
		Kind:   kind,
		Cipher: encoded,
		Plain:  plain,
		Sled:   sled,
	}
	if !opts.EmitStub {
		return l, nil
	}

	registers, err := e.allocator.Choose(opts.Arch, opts.BlockSize)
	if err != nil {
		return Layer{}, fmt.Errorf("allocating registers: %w", err)
	}
	l.Stub, err = e.assembler.Assemble(stub.Options{
		Arch:       opts.Arch,
		BlockSize:  opts.BlockSize,
		BlockCount: encoded.BlockCount,
		Key:        key,
		Registers:  registers,
		AntiDebug:  opts.AntiDebug,
		SelfMod:    opts.SelfMod,
	})
	if err != nil {
		return Layer{}, fmt.Errorf("assembling stub: %w", err)
	}

	e.logger.Debug("Encoded layer",
		log.String("layer", string(kind)),
		log.Hex("key", key),
		log.Int("blocks", encoded.BlockCount),
		log.Int("stub_size", l.Stub.Len()),
		log.String("registers", registers.String(opts.Arch)),
	)
	return l, nil
}

func (e *Encoder) randomKey(a arch.Arch) uint64 {
	return e.rng.Uint64() & a.Mask()
}

// assignOffsets sets the stub and data offsets of all layers, which are
// ordered outermost first. Every layer decodes the region directly after
// its stub; the primary stage is followed by the payload stub it decodes.
func assignOffsets(layers []Layer) {
	offset := 0
	for i := range layers {
		l := &layers[i]
		l.StubOffset = offset
		l.DataOffset = offset + l.Stub.Len()

		switch l.Kind {
		case LayerPrimary:
			// the sled is executed before the payload stub that follows it
			offset = l.DataOffset + l.Sled
		default:
			offset = l.DataOffset
		}
	}
}

// sledSize returns the number of nop bytes that align a stub of the given
// size to the block size, so that padding never ends up between the
// decoded stub and the data that it decodes.
func sledSize(size, blockSize int) int {
	return (blockSize - size%blockSize) % blockSize
}
