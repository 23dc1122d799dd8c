// Package disasm decodes ARM64 code regions for the ELF analysis provider.
package disasm

import (
	"encoding/binary"
	"fmt"
	"strings"

	"golang.org/x/arch/arm64/arm64asm"
)

// Inst is a decoded ARM64 instruction. Words that do not decode (literal
// pools, padding) are kept with Valid false and a .word rendering.
type Inst struct {
	Addr     uint64
	Raw      uint32
	Valid    bool
	Mnemonic string
	Operands string
	Text     string
}

// SymbolLookup resolves an address to a name.
type SymbolLookup func(addr uint64) (name string, ok bool)

// MapLookup returns a SymbolLookup over a fixed address→name map.
func MapLookup(names map[uint64]string) SymbolLookup {
	return func(addr uint64) (string, bool) {
		name, ok := names[addr]
		return name, ok
	}
}

// Options controls disassembly.
type Options struct {
	BaseAddr uint64 // VA of data[0]
	MaxSteps int    // 0 = 10M
}

const defaultMaxSteps = 10_000_000

func (o Options) maxSteps() int {
	if o.MaxSteps > 0 {
		return o.MaxSteps
	}
	return defaultMaxSteps
}

// Disassemble decodes whole 4-byte words from data. A trailing partial
// word is ignored.
func Disassemble(data []byte, opts Options) []Inst {
	n := min(len(data)/4, opts.maxSteps())
	out := make([]Inst, 0, n)
	for i := 0; i < n; i++ {
		word := data[i*4 : i*4+4]
		inst := Inst{
			Addr: opts.BaseAddr + uint64(i*4),
			Raw:  binary.LittleEndian.Uint32(word),
		}
		dec, err := arm64asm.Decode(word)
		if err != nil {
			inst.Mnemonic = ".word"
			inst.Operands = fmt.Sprintf("0x%08x", inst.Raw)
			inst.Text = inst.Mnemonic + " " + inst.Operands
		} else {
			inst.Valid = true
			inst.Text = dec.String()
			inst.Mnemonic, inst.Operands, _ = strings.Cut(inst.Text, " ")
		}
		out = append(out, inst)
	}
	return out
}

// Format renders one line per instruction:
//
//	0x00001000  1f 20 03 d5  NOP  ; <name>
//
// The symbol comment appears when lookup names the instruction's address
// or, for calls and branches, its target.
func Format(insts []Inst, lookup SymbolLookup) string {
	var b strings.Builder
	for _, inst := range insts {
		fmt.Fprintf(&b, "0x%08x  %02x %02x %02x %02x  %s",
			inst.Addr, byte(inst.Raw), byte(inst.Raw>>8), byte(inst.Raw>>16), byte(inst.Raw>>24), inst.Text)
		if lookup != nil {
			if name, ok := lookup(inst.Addr); ok {
				fmt.Fprintf(&b, "  ; <%s>", name)
			} else if target, ok := DirectTarget(inst.Raw, inst.Addr); ok {
				if name, ok := lookup(target); ok {
					fmt.Fprintf(&b, "  ; -> %s", name)
				}
			}
		}
		b.WriteByte('\n')
	}
	return b.String()
}
