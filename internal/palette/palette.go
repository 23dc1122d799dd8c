// Package palette defines the color table used by the feature map.
//
// Pixels in a raster are ColorIDs, not colors: a ColorID indexes a Palette.
// The first NumClasses slots hold the fixed semantic classes, followed by the
// symbol-color subrange and finally any explicit tag colors.
package palette

import (
	"fmt"
	"image/color"
)

// ColorID indexes a Palette.
type ColorID uint8

// Class is a fixed semantic color slot.
type Class = ColorID

const (
	Unmapped  Class = iota // not in any renderable range, or unknown
	Data                   // mapped bytes with no further classification
	DataVar                // defined data variable
	Code                   // instructions / basic blocks
	String                 // string data
	Position               // current-address highlight overlay
	Selection              // navigation-in-progress overlay

	NumClasses = int(iota)
)

// MaxColors is the largest palette a ColorID can address.
const MaxColors = 256

var classNames = [NumClasses]string{
	Unmapped:  "unmapped",
	Data:      "data",
	DataVar:   "datavar",
	Code:      "code",
	String:    "string",
	Position:  "position",
	Selection: "selection",
}

// ClassName returns the config name of a fixed class.
func ClassName(c Class) string {
	if int(c) < NumClasses {
		return classNames[c]
	}
	return fmt.Sprintf("symbol%d", int(c)-NumClasses)
}

// ClassByName resolves a config name ("code", "string", ...) to a class.
func ClassByName(name string) (Class, bool) {
	for i, n := range classNames {
		if n == name {
			return Class(i), true
		}
	}
	return 0, false
}

// Palette is an immutable color table.
type Palette struct {
	colors  []color.RGBA
	symbols int
}

// New builds a palette from the fixed class colors, the symbol ramp and the
// explicit tag colors, in that order. Slots past MaxColors are dropped, tags
// first.
func New(classes [NumClasses]color.RGBA, symbols, tags []color.RGBA) *Palette {
	if len(symbols) > MaxColors-NumClasses {
		symbols = symbols[:MaxColors-NumClasses]
	}
	if room := MaxColors - NumClasses - len(symbols); len(tags) > room {
		tags = tags[:room]
	}
	colors := make([]color.RGBA, 0, NumClasses+len(symbols)+len(tags))
	colors = append(colors, classes[:]...)
	colors = append(colors, symbols...)
	colors = append(colors, tags...)
	return &Palette{colors: colors, symbols: len(symbols)}
}

// Len returns the number of slots.
func (p *Palette) Len() int { return len(p.colors) }

// SymbolBase is the first symbol-color slot.
func (p *Palette) SymbolBase() ColorID { return ColorID(NumClasses) }

// SymbolCount is the size of the symbol-color subrange.
func (p *Palette) SymbolCount() int { return p.symbols }

// Tag returns the slot of the i-th explicit tag color; ok is false when the
// palette has no such tag.
func (p *Palette) Tag(i int) (ColorID, bool) {
	slot := NumClasses + p.symbols + i
	if i < 0 || slot >= len(p.colors) {
		return 0, false
	}
	return ColorID(slot), true
}

// RGBA returns the color for id; out-of-range ids fall back to Unmapped.
func (p *Palette) RGBA(id ColorID) color.RGBA {
	if int(id) < len(p.colors) {
		return p.colors[id]
	}
	return p.colors[Unmapped]
}

// Colors returns the table as a color.Palette for image.Paletted.
func (p *Palette) Colors() color.Palette {
	out := make(color.Palette, len(p.colors))
	for i, c := range p.colors {
		out[i] = c
	}
	return out
}

// With returns a copy of p with slot id recolored.
func (p *Palette) With(id ColorID, c color.RGBA) *Palette {
	colors := append([]color.RGBA(nil), p.colors...)
	if int(id) < len(colors) {
		colors[id] = c
	}
	return &Palette{colors: colors, symbols: p.symbols}
}
