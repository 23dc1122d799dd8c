package output

import (
	"encoding/json"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binmap/internal/disasm"
	"binmap/internal/palette"
	"binmap/internal/raster"
)

func testPalette(t *testing.T) *palette.Palette {
	t.Helper()
	p, err := palette.NASA.Palette(4, nil)
	require.NoError(t, err)
	return p
}

func TestWritePNG(t *testing.T) {
	p := testPalette(t)
	img := raster.New(4, 8, palette.Data)
	img.Set(1, 2, palette.Code)

	path := filepath.Join(t.TempDir(), "out", "map.png")
	require.NoError(t, WritePNG(path, img, p))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	decoded, err := png.Decode(f)
	require.NoError(t, err)

	pal, ok := decoded.(*image.Paletted)
	require.True(t, ok, "PNG should stay indexed, got %T", decoded)
	assert.Equal(t, image.Rect(0, 0, 4, 8), pal.Bounds())
	assert.Equal(t, uint8(palette.Code), pal.ColorIndexAt(1, 2))
	assert.Equal(t, uint8(palette.Data), pal.ColorIndexAt(0, 0))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestWritePNGEmpty(t *testing.T) {
	err := WritePNG(filepath.Join(t.TempDir(), "map.png"), raster.Empty(), testPalette(t))
	assert.ErrorContains(t, err, "empty image")
}

func TestWriteRunsJSON(t *testing.T) {
	p := testPalette(t)
	runs := &raster.RunList{Length: 300}
	runs.Append(raster.Run{Start: 0, Length: 100, Color: palette.Code})
	runs.Append(raster.Run{Start: 100, Length: 200, Color: p.SymbolBase()})

	path := filepath.Join(t.TempDir(), "runs.json")
	require.NoError(t, WriteRunsJSON(path, runs, p))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc RunsDoc
	require.NoError(t, json.Unmarshal(data, &doc))

	assert.Equal(t, uint64(300), doc.Length)
	require.Len(t, doc.Runs, 2)
	assert.Equal(t, "code", doc.Runs[0].Color)
	assert.Equal(t, "symbol0", doc.Runs[1].Color)
	c := p.RGBA(palette.Code)
	assert.Len(t, doc.Runs[0].RGB, 7)
	assert.Equal(t, byte(c.R), hexByte(t, doc.Runs[0].RGB[1:3]))
}

func hexByte(t *testing.T, s string) byte {
	t.Helper()
	var b byte
	for _, r := range s {
		b <<= 4
		switch {
		case r >= '0' && r <= '9':
			b |= byte(r - '0')
		case r >= 'a' && r <= 'f':
			b |= byte(r-'a') + 10
		default:
			t.Fatalf("bad hex %q", s)
		}
	}
	return b
}

func TestWriteDOTAndASM(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteDOT(filepath.Join(dir, "f.dot"), "digraph {}\n"))
	data, err := os.ReadFile(filepath.Join(dir, "f.dot"))
	require.NoError(t, err)
	assert.Equal(t, "digraph {}\n", string(data))

	insts := disasm.Disassemble([]byte{0x1f, 0x20, 0x03, 0xd5}, disasm.Options{BaseAddr: 0x1000})
	require.NoError(t, WriteASM(filepath.Join(dir, "f.s"), insts, disasm.MapLookup(map[uint64]string{0x1000: "f"})))
	data, err = os.ReadFile(filepath.Join(dir, "f.s"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "<f>")
}
