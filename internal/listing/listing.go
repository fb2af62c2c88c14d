// Package listing renders generated stubs as disassembly and the layer
// structure of an encoder result as a tree.
package listing

import (
	"fmt"
	"strings"

	"github.com/retroenv/sgn/internal/arch"
	"github.com/retroenv/sgn/internal/encoder"
	"github.com/xlab/treeprint"
	"golang.org/x/arch/x86/x86asm"
)

// Disassemble returns one line per instruction with its offset relative to
// base, the opcode bytes and the Intel syntax mnemonic. Bytes that do not
// decode are listed as db.
func Disassemble(code []byte, a arch.Arch, base int) string {
	var sb strings.Builder

	for offset := 0; offset < len(code); {
		inst, err := x86asm.Decode(code[offset:], a.Bits())
		if err != nil {
			fmt.Fprintf(&sb, "0x%04x: %-30s db 0x%02x\n", base+offset, fmt.Sprintf("%02x", code[offset]), code[offset])
			offset++
			continue
		}

		hexBytes := make([]string, 0, inst.Len)
		for _, b := range code[offset : offset+inst.Len] {
			hexBytes = append(hexBytes, fmt.Sprintf("%02x", b))
		}
		fmt.Fprintf(&sb, "0x%04x: %-30s %s\n",
			base+offset, strings.Join(hexBytes, " "), x86asm.IntelSyntax(inst, uint64(base+offset), nil))
		offset += inst.Len
	}
	return sb.String()
}

// Tree returns the layer and region structure of the result.
func Tree(result *encoder.Result) string {
	tree := treeprint.New()
	tree.SetValue(fmt.Sprintf("%s output, %d bytes", result.Arch, len(result.Output)))

	for _, l := range result.Layers {
		layer := tree.AddBranch(fmt.Sprintf("%s layer: key=0x%x block_size=%d blocks=%d",
			l.Kind, l.Cipher.InitialKey, l.Cipher.BlockSize, l.Cipher.BlockCount))

		if l.HasStub() {
			layout := l.Stub.Layout()
			stubBranch := layer.AddBranch(fmt.Sprintf("stub 0x%04x-0x%04x: %s",
				l.StubOffset, l.DataOffset, layout.Registers.String(result.Arch)))
			for _, region := range layout.Regions {
				stubBranch.AddNode(fmt.Sprintf("%-9s 0x%04x %d bytes",
					region.Name, l.StubOffset+region.Offset, region.Size))
			}
		}

		if l.Sled > 0 {
			layer.AddNode(fmt.Sprintf("sled %d bytes", l.Sled))
		}
		layer.AddNode(fmt.Sprintf("data 0x%04x-0x%04x",
			l.DataOffset, l.DataOffset+len(l.Cipher.Data)))
	}

	return tree.String()
}
