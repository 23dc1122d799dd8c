package palette

import (
	"fmt"
	"image/color"
	"sort"

	"github.com/lucasb-eyer/go-colorful"
)

// Theme holds the feature-map colors as hex strings.
type Theme struct {
	Name string

	Unmapped string // outside every range
	Data     string // mapped, unclassified
	DataVar  string // defined data variables
	Code     string
	String   string

	// Overlays.
	Position  string // current address marker
	Selection string // drag-navigation marker

	// Symbol ramp: SymbolChroma/SymbolLuminance in HCL, hues evenly spaced.
	SymbolChroma    float64
	SymbolLuminance float64
}

// NASA is the NASA/Bauhaus theme: light background, sparse color.
var NASA = Theme{
	Name:      "nasa",
	Unmapped:  "#F5F5F5",
	Data:      "#BDBDBD",
	DataVar:   "#00695C", // teal
	Code:      "#0B3D91", // NASA blue
	String:    "#E65100", // deep orange
	Position:  "#FC3D21", // NASA red
	Selection: "#1A1A1A",

	SymbolChroma:    0.55,
	SymbolLuminance: 0.55,
}

// Dark suits dark editor backgrounds.
var Dark = Theme{
	Name:      "dark",
	Unmapped:  "#1E1E1E",
	Data:      "#3C3C3C",
	DataVar:   "#4EC9B0",
	Code:      "#569CD6",
	String:    "#CE9178",
	Position:  "#FFFFFF",
	Selection: "#F44747",

	SymbolChroma:    0.45,
	SymbolLuminance: 0.70,
}

var themes = map[string]Theme{
	NASA.Name: NASA,
	Dark.Name: Dark,
}

// ThemeByName looks up a built-in theme.
func ThemeByName(name string) (Theme, bool) {
	t, ok := themes[name]
	return t, ok
}

// ThemeNames lists the built-in themes in sorted order.
func ThemeNames() []string {
	names := make([]string, 0, len(themes))
	for n := range themes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// ParseHex parses "#rrggbb" into an opaque color.
func ParseHex(s string) (color.RGBA, error) {
	c, err := colorful.Hex(s)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("palette: bad color %q: %w", s, err)
	}
	r, g, b := c.RGB255()
	return color.RGBA{R: r, G: g, B: b, A: 0xff}, nil
}

// Override replaces one class color by config name.
func (t Theme) Override(class, hex string) (Theme, error) {
	c, ok := ClassByName(class)
	if !ok {
		return t, fmt.Errorf("palette: unknown class %q", class)
	}
	if _, err := ParseHex(hex); err != nil {
		return t, err
	}
	switch c {
	case Unmapped:
		t.Unmapped = hex
	case Data:
		t.Data = hex
	case DataVar:
		t.DataVar = hex
	case Code:
		t.Code = hex
	case String:
		t.String = hex
	case Position:
		t.Position = hex
	case Selection:
		t.Selection = hex
	}
	return t, nil
}

// Palette builds the color table: the fixed classes, symbolSlots evenly spaced
// symbol hues, then one slot per tag color.
func (t Theme) Palette(symbolSlots int, tags []string) (*Palette, error) {
	var classes [NumClasses]color.RGBA
	for class, hex := range map[Class]string{
		Unmapped:  t.Unmapped,
		Data:      t.Data,
		DataVar:   t.DataVar,
		Code:      t.Code,
		String:    t.String,
		Position:  t.Position,
		Selection: t.Selection,
	} {
		c, err := ParseHex(hex)
		if err != nil {
			return nil, fmt.Errorf("theme %s: %s: %w", t.Name, ClassName(class), err)
		}
		classes[class] = c
	}

	symbols := make([]color.RGBA, 0, symbolSlots)
	for i := 0; i < symbolSlots; i++ {
		h := 360 * float64(i) / float64(symbolSlots)
		r, g, b := colorful.Hcl(h, t.SymbolChroma, t.SymbolLuminance).Clamped().RGB255()
		symbols = append(symbols, color.RGBA{R: r, G: g, B: b, A: 0xff})
	}

	tagColors := make([]color.RGBA, 0, len(tags))
	for _, hex := range tags {
		c, err := ParseHex(hex)
		if err != nil {
			return nil, fmt.Errorf("theme %s: tag: %w", t.Name, err)
		}
		tagColors = append(tagColors, c)
	}
	return New(classes, symbols, tagColors), nil
}
