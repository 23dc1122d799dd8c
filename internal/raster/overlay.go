package raster

import (
	"binmap/internal/mapper"
	"binmap/internal/palette"
)

// CompositeHighlight returns a copy of static with the current-position
// marker: a Position-colored line across the minor axis at pt's major
// coordinate. static is not modified. A point off the canvas yields a plain
// copy.
func CompositeHighlight(static *Image, m mapper.Mapper, pt mapper.Point) *Image {
	return marker(static, m, pt, 1, palette.Position)
}

// CompositeSelection is CompositeHighlight for a navigation in progress:
// Selection-colored and two pixels thick along the major axis.
func CompositeSelection(static *Image, m mapper.Mapper, pt mapper.Point) *Image {
	return marker(static, m, pt, 2, palette.Selection)
}

func marker(static *Image, m mapper.Mapper, pt mapper.Point, thickness int, c palette.ColorID) *Image {
	if static.IsEmpty() {
		return Empty()
	}
	out := static.Clone()
	p := m.Params()
	if p.Width != out.Width || p.Height != out.Height || !m.Contains(pt) {
		return out
	}
	major := pt.Y
	if p.Orientation == mapper.Horizontal {
		major = pt.X
	}
	// Thick markers grow toward the end of the canvas, or back from it at
	// the last line.
	if major+thickness > m.Major() {
		major = m.Major() - thickness
		if major < 0 {
			major, thickness = 0, m.Major()
		}
	}
	for line := major; line < major+thickness; line++ {
		for i := 0; i < m.Minor(); i++ {
			if p.Orientation == mapper.Horizontal {
				out.Set(line, i, c)
			} else {
				out.Set(i, line, c)
			}
		}
	}
	return out
}
