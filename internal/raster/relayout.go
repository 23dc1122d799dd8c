package raster

import "binmap/internal/mapper"

// Relayout moves img from one mapping to another with the same length and
// cell count, cell for cell, without going back to the runs. It returns
// false when the mappings do not share cell boundaries.
func Relayout(img *Image, from, to mapper.Mapper) (*Image, bool) {
	if mapper.NeedsRepaint(from, to) {
		return nil, false
	}
	if to.Degenerate() {
		return Empty(), true
	}
	fp := from.Params()
	if img.Width != fp.Width || img.Height != fp.Height {
		return nil, false
	}
	tp := to.Params()
	out := New(tp.Width, tp.Height, 0)
	cells := tp.Cells()
	for c := uint64(0); c < cells; c++ {
		src := from.CellPoint(c)
		dst := to.CellPoint(c)
		out.Pix[dst.Y*out.Width+dst.X] = img.Pix[src.Y*img.Width+src.X]
	}
	return out, true
}

// Resample approximates img, painted at from, at mapping to. Each target
// cell takes the color of the source cell holding its first offset. Runs
// narrower than a source cell may be lost; a repaint is exact.
func Resample(img *Image, from, to mapper.Mapper) *Image {
	if to.Degenerate() {
		return Empty()
	}
	tp := to.Params()
	out := New(tp.Width, tp.Height, 0)
	fp := from.Params()
	if from.Degenerate() || img.Width != fp.Width || img.Height != fp.Height || fp.Length != tp.Length {
		return out
	}
	cells := tp.Cells()
	for c := uint64(0); c < cells; c++ {
		dst := to.CellPoint(c)
		off, _, ok := to.Inverse(dst)
		if !ok {
			continue
		}
		if own, _ := to.Cell(off); own != c {
			// No byte starts in this cell.
			continue
		}
		if src, ok := from.Forward(off); ok {
			out.Pix[dst.Y*out.Width+dst.X] = img.Pix[src.Y*img.Width+src.X]
		}
	}
	return out
}
