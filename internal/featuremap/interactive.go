package featuremap

import (
	"binmap/internal/mapper"
	"binmap/internal/nav"
	"binmap/internal/raster"
)

// Render returns the display image for a canvas of the given size. It never
// queries the provider: a layout other than the committed one is re-laid out
// or repainted from the committed runs.
func (e *Engine) Render(width, height int, o mapper.Orientation) *raster.Image {
	f := e.frame.Load()
	if f == nil {
		return raster.Empty()
	}
	m := e.mapperFor(f.set, f.length, width, height, o)
	static := e.staticFor(f, m)

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.composeLocked(f, m, static)
}

// staticFor returns f's static image at mapping m.
func (e *Engine) staticFor(f *frame, m mapper.Mapper) *raster.Image {
	if m == f.m {
		e.metrics.Statics.WithLabelValues(sourceFrame).Inc()
		return f.static
	}
	key := keyFor(f, m)
	if img, ok := e.statics.Get(key); ok {
		e.metrics.Statics.WithLabelValues(sourceCache).Inc()
		return img
	}
	img, ok := raster.Relayout(f.static, f.m, m)
	if ok {
		e.metrics.Statics.WithLabelValues(sourceRelayout).Inc()
	} else {
		img = raster.Paint(m, f.runs, e.translate(f.set))
		e.metrics.Statics.WithLabelValues(sourceRepaint).Inc()
	}
	e.statics.Add(key, img)
	return img
}

// Mapper returns the mapping for the interactive layout over the committed
// frame.
func (e *Engine) Mapper() mapper.Mapper {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mapperLocked(e.frame.Load())
}

func (e *Engine) mapperLocked(f *frame) mapper.Mapper {
	if f == nil {
		return mapper.New(e.width, e.height, 0, e.orientation)
	}
	return e.mapperFor(f.set, f.length, e.width, e.height, e.orientation)
}

// relayoutLocked rebuilds the display image after an interactive change.
func (e *Engine) relayoutLocked() *raster.Image {
	f := e.frame.Load()
	if f == nil {
		return e.display.Load()
	}
	m := e.mapperLocked(f)
	display := e.composeLocked(f, m, e.interactiveStatic(f, m))
	e.display.Store(display)
	return display
}

// interactiveStatic is staticFor for the interactive layout. Repainting a
// large run list moves to the background; the committed static, resampled,
// stands in until it lands. e.mu must be held.
func (e *Engine) interactiveStatic(f *frame, m mapper.Mapper) *raster.Image {
	if m == f.m || len(f.runs.Runs) < e.opts.AsyncRepaintRuns || !mapper.NeedsRepaint(f.m, m) {
		return e.staticFor(f, m)
	}
	key := keyFor(f, m)
	if img, ok := e.statics.Get(key); ok {
		e.metrics.Statics.WithLabelValues(sourceCache).Inc()
		return img
	}
	e.repaintLocked(f, m, key)
	e.metrics.Statics.WithLabelValues(sourceResample).Inc()
	return raster.Resample(f.static, f.m, m)
}

// repaintLocked paints f at m in the background and, if the interactive
// layout still matches when it is done, publishes the result.
func (e *Engine) repaintLocked(f *frame, m mapper.Mapper, key layoutKey) {
	if e.repainting[key] {
		return
	}
	e.repainting[key] = true
	e.repaints.Add(1)
	go func() {
		defer e.repaints.Done()
		img := raster.Paint(m, f.runs, e.translate(f.set))
		e.metrics.Statics.WithLabelValues(sourceRepaint).Inc()
		e.statics.Add(key, img)

		e.mu.Lock()
		delete(e.repainting, key)
		var display *raster.Image
		if e.frame.Load() == f && e.mapperLocked(f) == m {
			display = e.composeLocked(f, m, img)
			e.display.Store(display)
		}
		e.mu.Unlock()
		if display != nil {
			e.emit(display)
		}
	}()
}

// HandleResize changes the interactive canvas size and returns the new
// display image.
func (e *Engine) HandleResize(width, height int) *raster.Image {
	e.mu.Lock()
	defer e.mu.Unlock()
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	e.width, e.height = width, height
	return e.relayoutLocked()
}

// SetOrientation switches the major axis and returns the new display image.
func (e *Engine) SetOrientation(o mapper.Orientation) *raster.Image {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.orientation = o
	return e.relayoutLocked()
}

// SetScale zooms the major axis and returns the new display image. Values
// that are not positive and finite reset the zoom to 1.
func (e *Engine) SetScale(s float64) *raster.Image {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.scale.Store(mapper.NormScale(s))
	return e.relayoutLocked()
}

// Scale returns the current major-axis zoom.
func (e *Engine) Scale() float64 { return e.scale.Load() }

// SetCurrentAddress moves the position highlight. Only the display image is
// rebuilt.
func (e *Engine) SetCurrentAddress(off uint64) *raster.Image {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.current, e.hasCurrent = off, true
	return e.relayoutLocked()
}

// HandlePointerEvent resolves a press on the canvas, starts a navigation
// drag and forwards the request to the Navigator.
func (e *Engine) HandlePointerEvent(pt mapper.Point) (nav.Request, bool) {
	e.mu.Lock()
	req, ok := e.resolveLocked(pt, false)
	if ok {
		e.bridge.BeginDrag()
		e.trackDragLocked(pt)
		e.relayoutLocked()
	}
	e.mu.Unlock()
	if ok {
		e.navigate(req)
	}
	return req, ok
}

// HandlePointerMove follows the pointer during a drag. Outside a drag it
// does nothing.
func (e *Engine) HandlePointerMove(pt mapper.Point) (nav.Request, bool) {
	e.mu.Lock()
	req, ok := e.resolveLocked(pt, true)
	if ok {
		e.trackDragLocked(pt)
		e.relayoutLocked()
	}
	e.mu.Unlock()
	if ok {
		e.navigate(req)
	}
	return req, ok
}

// trackDragLocked records the canvas offset under pt so the selection
// marker follows it at any layout.
func (e *Engine) trackDragLocked(pt mapper.Point) {
	if off, _, ok := e.mapperLocked(e.frame.Load()).Inverse(pt); ok {
		e.dragOff = off
	}
}

// HandlePointerRelease ends a drag; the display returns to the position
// highlight.
func (e *Engine) HandlePointerRelease() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.bridge.EndDrag() {
		e.relayoutLocked()
	}
}

// Resolve inverse-maps a canvas point the way a click would, without
// navigating or starting a drag.
func (e *Engine) Resolve(pt mapper.Point) (nav.Request, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.resolveLocked(pt, false)
}

// PointOf forward-maps an address onto the interactive canvas.
func (e *Engine) PointOf(off uint64) (mapper.Point, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f := e.frame.Load()
	if f == nil {
		return mapper.Point{}, false
	}
	c, ok := e.canvasOffset(f.set, off)
	if !ok {
		return mapper.Point{}, false
	}
	return e.mapperLocked(f).Forward(c)
}

func (e *Engine) resolveLocked(pt mapper.Point, drag bool) (nav.Request, bool) {
	f := e.frame.Load()
	if f == nil {
		return nav.Request{}, false
	}
	m := e.mapperLocked(f)
	snap := f.set
	if e.opts.CompactGaps {
		// Every canvas offset is inside a range; it only needs translating.
		snap = nil
	}

	var req nav.Request
	var ok bool
	if drag {
		req, ok = e.bridge.Drag(m, snap, pt)
	} else {
		req, ok = e.bridge.ResolveClick(m, snap, pt)
	}
	if !ok || !e.opts.CompactGaps {
		return req, ok
	}
	addr, ok := f.set.Address(req.Offset)
	req.Offset = addr
	return req, ok
}

func (e *Engine) navigate(req nav.Request) {
	if e.opts.Navigator != nil {
		e.opts.Navigator.Navigate(req)
	}
}
