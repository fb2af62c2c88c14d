// Package verification verifies that the generated output decodes back to
// the input and that every decoder stub is geometrically consistent.
package verification

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/retroenv/retrogolib/log"
	"github.com/retroenv/sgn/internal/arch"
	"github.com/retroenv/sgn/internal/cipher"
	"github.com/retroenv/sgn/internal/encoder"
	"github.com/retroenv/sgn/internal/stub"
	"golang.org/x/arch/x86/x86asm"
)

var errVerification = errors.New("verification failed")

// VerifyOutput decodes all layers of the result in place, outermost first,
// and checks every stub against its recorded layout and the input data.
func VerifyOutput(logger *log.Logger, result *encoder.Result, input []byte) error {
	image := bytes.Clone(result.Output)

	for _, l := range result.Layers {
		if l.HasStub() {
			if err := verifyStub(result.Arch, image, l); err != nil {
				return fmt.Errorf("%s layer: %w", l.Kind, err)
			}
		}

		end := l.DataOffset + len(l.Cipher.Data)
		if end > len(image) {
			return fmt.Errorf("%w: %s layer data ends at 0x%x after the output end 0x%x",
				errVerification, l.Kind, end, len(image))
		}
		decoded, _, err := cipher.Decode(result.Arch, image[l.DataOffset:end], l.Cipher.InitialKey, l.Cipher.BlockSize)
		if err != nil {
			return fmt.Errorf("decoding %s layer: %w", l.Kind, err)
		}
		if err := compare(cipher.Pad(l.Plain, l.Cipher.BlockSize), decoded); err != nil {
			return fmt.Errorf("%s layer: %w", l.Kind, err)
		}
		copy(image[l.DataOffset:end], decoded)

		logger.Debug("Verified layer",
			log.String("layer", string(l.Kind)),
			log.Hex("stub_offset", l.StubOffset),
			log.Hex("data_offset", l.DataOffset))
	}

	innermost := result.Layers[len(result.Layers)-1]
	payload := image[innermost.DataOffset:]
	if len(payload) < len(input) || !bytes.Equal(payload[:len(input)], input) {
		return fmt.Errorf("%w: decoded payload does not match the input", errVerification)
	}
	return nil
}

// verifyStub checks that the stub is present in the decoded image, that its
// regions start on instruction boundaries and that the get-PC adjustment
// and the loop jump target the recorded offsets.
func verifyStub(a arch.Arch, image []byte, l encoder.Layer) error {
	code := l.Stub.Bytes()
	layout := l.Stub.Layout()

	if l.DataOffset > len(image) || !bytes.Equal(image[l.StubOffset:l.DataOffset], code) {
		return fmt.Errorf("%w: stub not found at offset 0x%x", errVerification, l.StubOffset)
	}
	if l.StubOffset+layout.ReturnAddress+layout.Adjustment != l.DataOffset {
		return fmt.Errorf("%w: pointer adjustment %d does not reach the data at 0x%x",
			errVerification, layout.Adjustment, l.DataOffset)
	}

	boundaries := map[int]x86asm.Inst{}
	var last int
	for offset := 0; offset < len(code); {
		inst, err := x86asm.Decode(code[offset:], a.Bits())
		if err != nil {
			return fmt.Errorf("%w: decoding instruction at stub offset 0x%x: %w", errVerification, offset, err)
		}
		boundaries[offset] = inst
		last = offset
		offset += inst.Len
	}

	for _, region := range layout.Regions {
		if _, ok := boundaries[region.Offset]; !ok {
			return fmt.Errorf("%w: %s region at 0x%x is not on an instruction boundary",
				errVerification, region.Name, region.Offset)
		}
	}

	adjustRegion, _ := layout.Region(stub.RegionAdjust)
	adjust := boundaries[adjustRegion.Offset]
	if adjust.Op != x86asm.ADD || adjust.Args[1] != x86asm.Imm(layout.Adjustment) {
		return fmt.Errorf("%w: unexpected adjust instruction %s", errVerification, adjust)
	}

	jnz := boundaries[last]
	if jnz.Op != x86asm.JNE {
		return fmt.Errorf("%w: stub does not end with a loop jump but %s", errVerification, jnz)
	}
	rel, ok := jnz.Args[0].(x86asm.Rel)
	if !ok || last+jnz.Len+int(rel) != layout.LoopStart {
		return fmt.Errorf("%w: loop jump does not target the loop start 0x%x", errVerification, layout.LoopStart)
	}
	return nil
}

func compare(expected, actual []byte) error {
	if len(expected) != len(actual) {
		return fmt.Errorf("%w: mismatched lengths, %d != %d", errVerification, len(expected), len(actual))
	}

	var diffs uint64
	firstDiff := -1
	for i := range expected {
		if expected[i] == actual[i] {
			continue
		}
		diffs++
		if firstDiff == -1 {
			firstDiff = i
		}
	}
	if diffs == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d offset mismatches, first at offset %d", errVerification, diffs, firstDiff)
}
