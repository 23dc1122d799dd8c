package featuremap

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"binmap/internal/mapper"
	"binmap/internal/nav"
	"binmap/internal/palette"
	"binmap/internal/raster"
	"binmap/internal/ranges"
)

// runsPerCancelCheck bounds how long a cancelled pass keeps classifying.
const runsPerCancelCheck = 1024

// pass is one full refresh. Its result is dropped when a notification
// arrived while it ran, or when the provider's length moved under it.
func (e *Engine) pass(ctx context.Context) string {
	start := time.Now()
	outcome := e.classifyAndCommit(ctx)
	e.metrics.Passes.WithLabelValues(outcome).Inc()
	e.metrics.PassDuration.Observe(time.Since(start).Seconds())
	e.log.Debug().Str("outcome", outcome).Dur("took", time.Since(start)).Msg("refresh pass")
	return outcome
}

func (e *Engine) classifyAndCommit(ctx context.Context) string {
	length := e.provider.Length()
	set, repaired := ranges.Normalize(e.provider.AddressRanges())
	if repaired {
		e.log.Warn().Int("ranges", set.Len()).Msg("provider ranges overlapped or were unsorted; normalized")
	}
	set = clipSet(set, length)

	runs, err := e.classify(ctx, set, length)
	if err != nil {
		e.log.Warn().Err(err).Msg("provider failures; affected bytes painted unmapped")
	}
	if ctx.Err() != nil {
		return outcomeCancelled
	}
	if e.sched.Superseded() {
		return outcomeStale
	}
	if e.provider.Length() != length {
		// Refreshing becomes PendingWhileRefreshing, so Finish schedules
		// the restart.
		e.sched.Notify()
		return outcomeRestarted
	}
	e.metrics.Runs.Set(float64(len(runs.Runs)))
	e.commit(set, length, runs)
	return outcomeCommitted
}

// classify walks every range run by run. Failed queries degrade to one
// cell's worth of Unmapped bytes so the pass always completes.
func (e *Engine) classify(ctx context.Context, set *ranges.Set, length uint64) (*raster.RunList, error) {
	runs := &raster.RunList{Length: length}
	var errs *multierror.Error
	step := e.failureStep(set, length)

	n := 0
	for _, r := range set.Ranges() {
		for off, end := r.Start, r.End(); off < end; {
			n++
			if n%runsPerCancelCheck == 0 && ctx.Err() != nil {
				return runs, errs.ErrorOrNil()
			}

			facts, size, err := e.provider.ClassifyRun(off)
			color := palette.Unmapped
			if err != nil {
				e.metrics.ProviderFailures.Inc()
				errs = multierror.Append(errs, fmt.Errorf("classify 0x%x: %w", off, err))
				size = step
			} else {
				color = e.classifier.Classify(off, facts)
				if size == 0 {
					e.log.Debug().Uint64("offset", off).Msg("provider returned an empty run")
					size = 1
				}
			}
			if size > end-off {
				size = end - off
			}
			runs.Append(raster.Run{Start: off, Length: size, Color: color})
			off += size
		}
	}
	return runs, errs.ErrorOrNil()
}

// failureStep is the number of bytes one cell covers at the current layout,
// at least 1.
func (e *Engine) failureStep(set *ranges.Set, length uint64) uint64 {
	e.mu.Lock()
	m := e.mapperFor(set, length, e.width, e.height, e.orientation)
	e.mu.Unlock()
	cells := m.Params().Cells()
	space := m.Params().Length
	if cells == 0 || space <= cells {
		return 1
	}
	return space / cells
}

// clipSet drops the parts of the ranges at or past length.
func clipSet(set *ranges.Set, length uint64) *ranges.Set {
	if set.Extent() <= length {
		return set
	}
	var rs []ranges.AddressRange
	for _, r := range set.Ranges() {
		if r.Start >= length {
			break
		}
		if r.End() > length {
			r.Length = length - r.Start
		}
		rs = append(rs, r)
	}
	clipped, _ := ranges.Normalize(rs)
	return clipped
}

// commit paints the runs at the interactive layout and publishes the frame
// and display image. Painting happens outside the lock; if the layout moved
// meanwhile it is painted again.
func (e *Engine) commit(set *ranges.Set, length uint64, runs *raster.RunList) {
	for {
		e.mu.Lock()
		m := e.mapperFor(set, length, e.width, e.height, e.orientation)
		e.mu.Unlock()

		static := raster.Paint(m, runs, e.translate(set))

		e.mu.Lock()
		if m != e.mapperFor(set, length, e.width, e.height, e.orientation) {
			e.mu.Unlock()
			continue
		}
		e.gen++
		f := &frame{gen: e.gen, length: length, set: set, runs: runs, m: m, static: static}
		e.registry.Store(set)
		e.frame.Store(f)
		e.statics.Purge()
		display := e.composeLocked(f, m, static)
		e.display.Store(display)
		e.mu.Unlock()

		e.log.Debug().
			Uint64("length", length).
			Int("ranges", set.Len()).
			Int("runs", len(runs.Runs)).
			Msg("frame committed")
		e.emit(display)
		return
	}
}

// composeLocked overlays the selection marker during a drag, else the
// current-address highlight. e.mu must be held.
func (e *Engine) composeLocked(f *frame, m mapper.Mapper, static *raster.Image) *raster.Image {
	if static.IsEmpty() {
		return static
	}
	if e.bridge.Dragging() {
		pt, ok := m.Forward(e.dragOff)
		if !ok {
			return static
		}
		return raster.CompositeSelection(static, m, pt)
	}
	if !e.hasCurrent {
		return static
	}
	off, ok := e.canvasOffset(f.set, e.current)
	if !ok {
		return static
	}
	pt, ok := nav.OnAddressChanged(m, off)
	if !ok {
		return static
	}
	return raster.CompositeHighlight(static, m, pt)
}
