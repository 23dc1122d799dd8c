package raster

import "binmap/internal/palette"

// Run is a classified byte range in linear offset space.
type Run struct {
	Start  uint64          `json:"start"`
	Length uint64          `json:"length"`
	Color  palette.ColorID `json:"color"`
}

// End returns Start+Length.
func (r Run) End() uint64 { return r.Start + r.Length }

// RunList is the layout-independent result of a refresh pass.
type RunList struct {
	Length uint64 `json:"length"`
	Runs   []Run  `json:"runs"`
}

// Append adds r, merging it into the previous run when they touch and share
// a color. Empty runs are ignored.
func (l *RunList) Append(r Run) {
	if r.Length == 0 {
		return
	}
	if n := len(l.Runs); n > 0 {
		last := &l.Runs[n-1]
		if last.Color == r.Color && last.End() == r.Start {
			last.Length += r.Length
			return
		}
	}
	l.Runs = append(l.Runs, r)
}

// ColorAt returns the color of the run containing off.
func (l *RunList) ColorAt(off uint64) (palette.ColorID, bool) {
	lo, hi := 0, len(l.Runs)
	for lo < hi {
		mid := int(uint(lo+hi) >> 1)
		if l.Runs[mid].End() <= off {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(l.Runs) && l.Runs[lo].Start <= off {
		return l.Runs[lo].Color, true
	}
	return palette.Unmapped, false
}
