package analysis

import (
	"debug/elf"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"

	"binmap/internal/elfx"
	"binmap/internal/elfx/elfxtest"
	"binmap/internal/palette"
	"binmap/internal/ranges"
)

const textVA = 0x10000

// sampleSpec lays out:
//
//	0x10000 main:   NOP; BL helper; RET; .word   (size 0x10)
//	0x10010         NOP x4                       (no symbol)
//	0x10020 helper: NOP; RET                     (size 8)
//	0x11000 .rodata "hello\0" "ab\0" table[4] ...
//	0x12000 .bss    counter[8] ...
func sampleSpec(machine elf.Machine) elfxtest.Spec {
	text := elfxtest.Code(
		elfxtest.NOP, elfxtest.BL(textVA+4, textVA+0x20), elfxtest.RET, 0x02000000,
		elfxtest.NOP, elfxtest.NOP, elfxtest.NOP, elfxtest.NOP,
		elfxtest.NOP, elfxtest.RET,
	)
	return elfxtest.Spec{
		Machine: machine,
		Sections: []elfxtest.Section{
			{Name: ".text", Addr: textVA, Flags: elf.SHF_EXECINSTR, Data: text},
			{Name: ".rodata", Addr: 0x11000, Data: []byte("hello\x00ab\x00\x01\x02\x03\x04\x05\x06\x07\x08")},
			{Name: ".bss", Addr: 0x12000, Type: elf.SHT_NOBITS, Flags: elf.SHF_WRITE, Size: 0x100},
		},
		Symbols: []elfxtest.Symbol{
			{Name: "main", Value: textVA, Size: 0x10, Type: elf.STT_FUNC, Section: ".text"},
			{Name: "helper", Value: textVA + 0x20, Size: 8, Type: elf.STT_FUNC, Section: ".text"},
			{Name: "table", Value: 0x11009, Size: 4, Type: elf.STT_OBJECT, Section: ".rodata"},
			{Name: "counter", Value: 0x12000, Size: 8, Type: elf.STT_OBJECT, Section: ".bss"},
		},
	}
}

func openSample(t *testing.T, machine elf.Machine, opts ELFOptions) *ELF {
	t.Helper()
	p, err := OpenELF(elfxtest.Write(t, sampleSpec(machine)), opts)
	require.NoError(t, err)
	return p
}

func factsAt(t *testing.T, p Provider, off uint64) (Facts, uint64) {
	t.Helper()
	f, n, err := p.ClassifyRun(off)
	require.NoError(t, err)
	return f, n
}

func TestELFLayout(t *testing.T) {
	p := openSample(t, elf.EM_AARCH64, ELFOptions{})

	assert.Equal(t, uint64(textVA), p.Base())
	assert.Equal(t, uint64(0x2100), p.Length())
	assert.Equal(t, []ranges.AddressRange{
		{Start: 0, Length: 0x28},
		{Start: 0x1000, Length: 0x10},
		{Start: 0x2000, Length: 0x100},
	}, p.AddressRanges())

	va := p.VA(0x24)
	assert.Equal(t, uint64(textVA+0x24), va)
	off, ok := p.Offset(va)
	assert.True(t, ok)
	assert.Equal(t, uint64(0x24), off)
	_, ok = p.Offset(textVA - 1)
	assert.False(t, ok)
	_, ok = p.Offset(textVA + 0x2100)
	assert.False(t, ok)

	code := Facts{Mapped: true, Code: true}
	tests := []struct {
		name string
		off  uint64
		want Facts
		n    uint64
	}{
		{"main blocks", 0x0, code, 0xC},
		{"literal word in main", 0xC, Facts{Mapped: true}, 4},
		{"code outside functions and helper", 0x10, code, 0x18},
		{"gap between segments", 0x28, Facts{}, 0x1000 - 0x28},
		{"string", 0x1000, Facts{Mapped: true, String: true}, 6},
		{"short string", 0x1006, Facts{Mapped: true}, 3},
		{"object", 0x1009, Facts{Mapped: true, DataVar: true}, 4},
		{"bss object", 0x2000, Facts{Mapped: true, DataVar: true}, 8},
		{"bss", 0x2008, Facts{Mapped: true}, 0xF8},
	}
	for _, tc := range tests {
		f, n := factsAt(t, p, tc.off)
		assert.Equal(t, tc.want, f, tc.name)
		assert.Equal(t, tc.n, n, tc.name)
	}

	_, _, err := p.ClassifyRun(0x2100)
	assert.ErrorIs(t, err, ErrOutOfRange)
}

func TestELFSymbolTagging(t *testing.T) {
	p := openSample(t, elf.EM_AARCH64, ELFOptions{
		ColorFunctions: true,
		Tags:           map[string]palette.ColorID{"helper": 9},
	})

	f, _ := factsAt(t, p, 0x4)
	require.NotNil(t, f.Symbol)
	assert.Equal(t, "main", f.Symbol.Name)
	assert.False(t, f.Symbol.HasColor)
	assert.Equal(t, uint64(0), f.Symbol.Address)

	f, _ = factsAt(t, p, 0x10)
	assert.Nil(t, f.Symbol, "no function owns the gap")

	f, n := factsAt(t, p, 0x20)
	require.NotNil(t, f.Symbol)
	assert.Equal(t, "helper", f.Symbol.Name)
	assert.True(t, f.Symbol.HasColor)
	assert.EqualValues(t, 9, f.Symbol.Color)
	assert.Equal(t, uint64(8), n)
}

func TestELFFunctions(t *testing.T) {
	p := openSample(t, elf.EM_AARCH64, ELFOptions{})

	fns := p.Functions()
	require.Len(t, fns, 2)
	assert.Equal(t, Function{Name: "main", Offset: 0, Size: 0x10}, fns[0])

	fn, ok := p.FunctionAt(0xC)
	assert.True(t, ok)
	assert.Equal(t, "main", fn.Name)
	_, ok = p.FunctionAt(0x10)
	assert.False(t, ok)
	fn, ok = p.FunctionAt(0x24)
	assert.True(t, ok)
	assert.Equal(t, "helper", fn.Name)
	_, ok = p.FunctionAt(0x1009)
	assert.False(t, ok, "objects are not functions")
}

func TestELFFunctionCFG(t *testing.T) {
	p := openSample(t, elf.EM_AARCH64, ELFOptions{})

	lcfg, err := p.FunctionCFG(0x8)
	require.NoError(t, err)
	assert.Equal(t, "main", lcfg.Name)
	require.Len(t, lcfg.Blocks, 2)
	require.Len(t, lcfg.Blocks[0].Calls, 1)
	assert.Equal(t, "helper", lcfg.Blocks[0].Calls[0].Callee)
	assert.True(t, lcfg.Blocks[0].Term)

	insts, err := p.Disassemble(Function{Name: "helper", Offset: 0x20, Size: 8})
	require.NoError(t, err)
	require.Len(t, insts, 2)
	assert.Equal(t, uint64(textVA+0x20), insts[0].Addr)

	_, err = p.FunctionCFG(0x10)
	assert.Error(t, err)
}

func TestELFCallGraph(t *testing.T) {
	p := openSample(t, elf.EM_AARCH64, ELFOptions{})

	g, err := p.CallGraph()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"main", "helper"}, g.Nodes)
	require.Len(t, g.Edges, 1)
	assert.Equal(t, "main", g.Edges[0].Caller)
	assert.Equal(t, "helper", g.Edges[0].Callee)
}

func TestELFOtherMachine(t *testing.T) {
	p := openSample(t, elf.EM_X86_64, ELFOptions{})

	f, n := factsAt(t, p, 0)
	assert.Equal(t, Facts{Mapped: true, Code: true}, f)
	assert.Equal(t, uint64(0x28), n, "whole exec section is code")

	_, err := p.FunctionCFG(0)
	assert.ErrorIs(t, err, elfx.ErrNotARM64)
	_, err = p.CallGraph()
	assert.ErrorIs(t, err, elfx.ErrNotARM64)
}

func TestELFReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lib.so")
	require.NoError(t, os.WriteFile(path, elfxtest.Build(sampleSpec(elf.EM_AARCH64)), 0o644))

	p, err := OpenELF(path, ELFOptions{})
	require.NoError(t, err)

	var notified atomic.Int32
	cancel := p.Subscribe(func() { notified.Inc() })
	defer cancel()

	spec := sampleSpec(elf.EM_AARCH64)
	spec.Sections = spec.Sections[:1]
	spec.Symbols = spec.Symbols[:2]
	require.NoError(t, os.WriteFile(path, elfxtest.Build(spec), 0o644))
	require.NoError(t, p.Reload())
	assert.Equal(t, int32(1), notified.Load())
	assert.Equal(t, uint64(0x28), p.Length())

	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))
	assert.ErrorIs(t, p.Reload(), elfx.ErrNotELF)
	assert.Equal(t, int32(1), notified.Load(), "failed reload must not notify")
	assert.Equal(t, uint64(0x28), p.Length(), "failed reload keeps contents")
}

func TestOpenELFErrors(t *testing.T) {
	_, err := OpenELF(filepath.Join(t.TempDir(), "missing.so"), ELFOptions{})
	assert.Error(t, err)
}

func TestFindStrings(t *testing.T) {
	got := findStrings([]byte("abc\x00abcd\x00\x01abcde\x00xyzw"), 4)
	assert.Equal(t, []ranges.AddressRange{{Start: 4, Length: 5}, {Start: 10, Length: 6}}, got)
}

func TestUncovered(t *testing.T) {
	funcs := []Function{{Offset: 10, Size: 10}, {Offset: 15, Size: 10}, {Offset: 40, Size: 5}}
	got := uncovered(0, 50, funcs)
	assert.Equal(t, []ranges.AddressRange{{Start: 0, Length: 10}, {Start: 25, Length: 15}, {Start: 45, Length: 5}}, got)
	assert.Empty(t, uncovered(10, 10, funcs))
}
