package raster

import (
	"binmap/internal/mapper"
	"binmap/internal/palette"
)

// Compositor paints runs onto a private image at fixed mapping parameters.
// It is single-owner: the background pass builds one, paints, and publishes
// a snapshot.
type Compositor struct {
	m   mapper.Mapper
	img *Image
}

// NewCompositor returns a compositor whose canvas is filled with background.
func NewCompositor(m mapper.Mapper, background palette.ColorID) *Compositor {
	p := m.Params()
	return &Compositor{m: m, img: New(p.Width, p.Height, background)}
}

// Mapper returns the mapping the compositor paints with.
func (c *Compositor) Mapper() mapper.Mapper { return c.m }

// PaintRun colors every cell the run touches. Later runs overwrite earlier
// ones where they share a cell.
func (c *Compositor) PaintRun(start, length uint64, color palette.ColorID) {
	first, last, ok := c.m.CellSpan(start, length)
	if !ok {
		return
	}
	if c.m.Params().Orientation == mapper.Vertical {
		// Row-major cells are already the Pix order.
		for i := first; i <= last; i++ {
			c.img.Pix[i] = color
		}
		return
	}
	for i := first; i <= last; i++ {
		pt := c.m.CellPoint(i)
		c.img.Pix[pt.Y*c.img.Width+pt.X] = color
	}
}

// PaintRuns paints a run list. translate, when non-nil, maps each run start
// into the mapper's offset space; runs it rejects are skipped.
func (c *Compositor) PaintRuns(l *RunList, translate func(uint64) (uint64, bool)) {
	if l == nil {
		return
	}
	for _, r := range l.Runs {
		start := r.Start
		if translate != nil {
			var ok bool
			if start, ok = translate(start); !ok {
				continue
			}
		}
		c.PaintRun(start, r.Length, r.Color)
	}
}

// SnapshotStatic returns an immutable copy of the painted image.
func (c *Compositor) SnapshotStatic() *Image {
	if c.img.IsEmpty() {
		return Empty()
	}
	return c.img.Clone()
}

// Paint builds a compositor for m, paints l and returns the snapshot.
func Paint(m mapper.Mapper, l *RunList, translate func(uint64) (uint64, bool)) *Image {
	if m.Degenerate() {
		return Empty()
	}
	c := NewCompositor(m, palette.Unmapped)
	c.PaintRuns(l, translate)
	return c.img
}
