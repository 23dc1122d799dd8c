package disasm

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pool is an unallocated encoding, as found in literal pools.
const pool = 0x02000000

func makeInst(addr uint64, raw uint32) Inst {
	return Inst{Addr: addr, Raw: raw, Valid: true}
}

func words(raws ...uint32) []byte {
	data := make([]byte, 4*len(raws))
	for i, raw := range raws {
		binary.LittleEndian.PutUint32(data[i*4:], raw)
	}
	return data
}

func TestDisassembleMarksInvalidWords(t *testing.T) {
	// A trailing partial word is dropped.
	data := append(words(nop, pool, ret), 0xaa, 0xbb)
	insts := Disassemble(data, Options{BaseAddr: 0x10000})
	require.Len(t, insts, 3)

	for i, inst := range insts {
		assert.Equal(t, uint64(0x10000+4*i), inst.Addr)
	}
	assert.True(t, insts[0].Valid)
	assert.True(t, strings.EqualFold(insts[0].Mnemonic, "nop"), insts[0].Text)
	assert.True(t, insts[2].Valid)
	assert.True(t, strings.EqualFold(insts[2].Mnemonic, "ret"), insts[2].Text)

	assert.Equal(t, Inst{
		Addr:     0x10004,
		Raw:      pool,
		Mnemonic: ".word",
		Operands: "0x02000000",
		Text:     ".word 0x02000000",
	}, insts[1])
}

func TestDisassembleLimits(t *testing.T) {
	data := words(nop, nop, nop, nop, nop, nop)
	assert.Len(t, Disassemble(data, Options{MaxSteps: 4}), 4)
	assert.Len(t, Disassemble(data, Options{}), 6)
	assert.Empty(t, Disassemble(nil, Options{}))
	assert.Empty(t, Disassemble([]byte{1, 2, 3}, Options{}))
}

func TestFormat(t *testing.T) {
	insts := Disassemble(words(nop, blValue|2, pool), Options{BaseAddr: 0x1000})
	text := Format(insts, MapLookup(map[uint64]string{0x1000: "entry", 0x100C: "callee"}))
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	require.Len(t, lines, 3)

	assert.True(t, strings.HasPrefix(lines[0], "0x00001000  1f 20 03 d5  "), lines[0])
	assert.True(t, strings.HasSuffix(lines[0], "  ; <entry>"), lines[0])
	assert.True(t, strings.HasSuffix(lines[1], "  ; -> callee"), lines[1])
	assert.Equal(t, "0x00001008  00 00 00 02  .word 0x02000000", lines[2])

	assert.Equal(t, text, Format(insts, MapLookup(map[uint64]string{0x1000: "entry", 0x100C: "callee"})))
	assert.NotContains(t, Format(insts, nil), ";")
}
