// Package classify turns analysis facts into palette colors.
package classify

import (
	"encoding/binary"

	"github.com/zeebo/xxh3"
	"go.uber.org/atomic"

	"binmap/internal/analysis"
	"binmap/internal/palette"
)

// Classifier maps facts to a ColorID under the current palette.
type Classifier struct {
	pal atomic.Pointer[palette.Palette]
}

// New returns a Classifier using p.
func New(p *palette.Palette) *Classifier {
	c := &Classifier{}
	c.pal.Store(p)
	return c
}

// SetPalette swaps the palette. Calls already in flight finish with the
// palette they loaded.
func (c *Classifier) SetPalette(p *palette.Palette) { c.pal.Store(p) }

// Palette returns the current palette.
func (c *Classifier) Palette() *palette.Palette { return c.pal.Load() }

// Classify returns the color for the byte at off. A tagged symbol always
// wins; otherwise string > data variable > code > mapped data > unmapped.
func (c *Classifier) Classify(off uint64, f analysis.Facts) palette.ColorID {
	p := c.pal.Load()
	if f.Symbol != nil {
		if f.Symbol.HasColor && int(f.Symbol.Color) < p.Len() {
			return f.Symbol.Color
		}
		return symbolColor(p, f.Symbol)
	}
	switch {
	case f.String:
		return palette.String
	case f.DataVar:
		return palette.DataVar
	case f.Code:
		return palette.Code
	case f.Mapped:
		return palette.Data
	}
	return palette.Unmapped
}

// SymbolColor derives a stable color from the symbol's name and address: the
// same symbol gets the same slot for any palette with the same symbol count.
func (c *Classifier) SymbolColor(sym *analysis.Symbol) palette.ColorID {
	return symbolColor(c.pal.Load(), sym)
}

func symbolColor(p *palette.Palette, sym *analysis.Symbol) palette.ColorID {
	n := p.SymbolCount()
	if n == 0 {
		return palette.Data
	}
	return p.SymbolBase() + palette.ColorID(SymbolHash(sym)%uint64(n))
}

// SymbolHash is the identity hash behind SymbolColor.
func SymbolHash(sym *analysis.Symbol) uint64 {
	buf := make([]byte, 0, len(sym.Name)+8)
	buf = append(buf, sym.Name...)
	buf = binary.LittleEndian.AppendUint64(buf, sym.Address)
	return xxh3.Hash(buf)
}
