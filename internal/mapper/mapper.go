// Package mapper converts between linear byte offsets and raster pixels.
//
// The canvas is a grid of Width*Height cells. Offsets are spread over the
// cells in raster order along the major axis: row-major for Vertical (the
// major axis is Y), column-major for Horizontal (the major axis is X). The
// major-axis coordinate of an offset is therefore floor(off*N/L), with N the
// canvas extent along that axis, and the minor axis subdivides each line.
//
// Scale zooms the major axis: offsets are quantized over round(N*Scale)
// lines instead of N, and lines past the canvas clamp onto the last one.
package mapper

import (
	"fmt"
	"math"
	"math/bits"
)

// Orientation selects the major axis.
type Orientation int

const (
	Vertical Orientation = iota
	Horizontal
)

func (o Orientation) String() string {
	if o == Horizontal {
		return "horizontal"
	}
	return "vertical"
}

// ParseOrientation accepts "vertical" or "horizontal".
func ParseOrientation(s string) (Orientation, error) {
	switch s {
	case "vertical", "v", "":
		return Vertical, nil
	case "horizontal", "h":
		return Horizontal, nil
	}
	return Vertical, fmt.Errorf("mapper: unknown orientation %q", s)
}

// Point is a pixel coordinate.
type Point struct {
	X, Y int
}

// Params are the mapping parameters.
type Params struct {
	Width, Height int
	Length        uint64
	Orientation   Orientation
	// Scale is the major-axis zoom applied before quantization. New sets
	// 1; WithScale changes it.
	Scale float64
}

// Cells returns Width*Height, or 0 for an empty canvas.
func (p Params) Cells() uint64 {
	if p.Width <= 0 || p.Height <= 0 {
		return 0
	}
	return uint64(p.Width) * uint64(p.Height)
}

// Mapper is an immutable mapping. Resize by building a new one.
type Mapper struct {
	p Params
}

// major returns the canvas extent along the major axis.
func (p Params) major() int {
	if p.Orientation == Horizontal {
		return p.Width
	}
	return p.Height
}

// Span is the number of cells offsets are quantized over: Cells at Scale 1,
// round(N*Scale) whole lines otherwise, at least one line.
func (p Params) Span() uint64 {
	cells := p.Cells()
	if cells == 0 || !(p.Scale > 0) || p.Scale == 1 {
		return cells
	}
	minor := cells / uint64(p.major())
	lines := math.Round(float64(p.major()) * p.Scale)
	if lines < 1 {
		lines = 1
	}
	if lines >= float64(math.MaxUint64/minor) {
		return math.MaxUint64 / minor * minor
	}
	return uint64(lines) * minor
}

// New returns the mapping at Scale 1.
func New(width, height int, length uint64, o Orientation) Mapper {
	return Mapper{p: Params{Width: width, Height: height, Length: length, Orientation: o, Scale: 1}}
}

// WithScale returns m zoomed by s along the major axis.
func (m Mapper) WithScale(s float64) Mapper {
	m.p.Scale = NormScale(s)
	return m
}

// NormScale maps non-positive and non-finite zooms to 1.
func NormScale(s float64) float64 {
	if !(s > 0) || math.IsInf(s, 0) {
		return 1
	}
	return s
}

// Params returns the mapping parameters.
func (m Mapper) Params() Params { return m.p }

// Degenerate reports the no-mapping case: empty canvas or empty binary.
func (m Mapper) Degenerate() bool {
	return m.p.Cells() == 0 || m.p.Length == 0
}

// Major returns the canvas extent along the major axis.
func (m Mapper) Major() int { return m.p.major() }

// Minor returns the canvas extent along the minor axis.
func (m Mapper) Minor() int {
	if m.p.Orientation == Horizontal {
		return m.p.Height
	}
	return m.p.Width
}

// mulDiv returns floor(a*b/c) using 128-bit intermediates. c must be > 0;
// a quotient that does not fit in 64 bits saturates.
func mulDiv(a, b, c uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi >= c {
		return ^uint64(0)
	}
	q, _ := bits.Div64(hi, lo, c)
	return q
}

// mulDivCeil returns ceil(a*b/c).
func mulDivCeil(a, b, c uint64) uint64 {
	hi, lo := bits.Mul64(a, b)
	if hi >= c {
		return ^uint64(0)
	}
	q, r := bits.Div64(hi, lo, c)
	if r != 0 {
		q++
	}
	return q
}

// Cell returns the raster-order cell index of off.
func (m Mapper) Cell(off uint64) (uint64, bool) {
	if m.Degenerate() || off >= m.p.Length {
		return 0, false
	}
	cells := m.p.Cells()
	c := mulDiv(off, m.p.Span(), m.p.Length)
	if c >= cells {
		c = cells - 1
	}
	return c, true
}

// CellPoint converts a cell index into a pixel.
func (m Mapper) CellPoint(c uint64) Point {
	minor := uint64(m.Minor())
	a, b := int(c/minor), int(c%minor)
	if m.p.Orientation == Horizontal {
		return Point{X: a, Y: b}
	}
	return Point{X: b, Y: a}
}

// PointCell converts an in-canvas pixel into its cell index.
func (m Mapper) PointCell(pt Point) uint64 {
	major, minor := pt.Y, pt.X
	if m.p.Orientation == Horizontal {
		major, minor = pt.X, pt.Y
	}
	return uint64(major)*uint64(m.Minor()) + uint64(minor)
}

// Forward maps an offset in [0, L) to its pixel.
func (m Mapper) Forward(off uint64) (Point, bool) {
	c, ok := m.Cell(off)
	if !ok {
		return Point{}, false
	}
	return m.CellPoint(c), true
}

// CellSpan returns the inclusive cell range covered by [start, start+length).
// A non-empty run always covers at least one cell.
func (m Mapper) CellSpan(start, length uint64) (first, last uint64, ok bool) {
	if length == 0 {
		return 0, 0, false
	}
	first, ok = m.Cell(start)
	if !ok {
		return 0, 0, false
	}
	end := start + length
	if end > m.p.Length || end < start {
		end = m.p.Length
	}
	// The cell of the last byte, not of end: a run ending exactly on a cell
	// boundary must not bleed into the next cell.
	last, _ = m.Cell(end - 1)
	return first, last, true
}

// Contains reports whether pt is on the canvas.
func (m Mapper) Contains(pt Point) bool {
	return pt.X >= 0 && pt.Y >= 0 && pt.X < m.p.Width && pt.Y < m.p.Height
}

// Inverse maps a pixel to the first offset whose cell is that pixel's cell
// (or the next offset, for cells that no byte starts in). Points off the
// canvas are clamped onto it and reported as inexact.
func (m Mapper) Inverse(pt Point) (off uint64, exact, ok bool) {
	if m.Degenerate() {
		return 0, false, false
	}
	exact = m.Contains(pt)
	pt.X = clamp(pt.X, 0, m.p.Width-1)
	pt.Y = clamp(pt.Y, 0, m.p.Height-1)

	off = mulDivCeil(m.PointCell(pt), m.p.Length, m.p.Span())
	if off >= m.p.Length {
		off = m.p.Length - 1
	}
	return off, exact, true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// NeedsRepaint reports whether moving from a to b changes which bytes share
// a cell, so the static image must be repainted from runs. When it returns
// false the image can be re-laid out cell for cell.
func NeedsRepaint(a, b Mapper) bool {
	return a.p.Length != b.p.Length || a.p.Cells() != b.p.Cells() || a.p.Span() != b.p.Span()
}
