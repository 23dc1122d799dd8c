// Package featuremap is the feature map engine. It keeps a color-coded
// raster of a binary's offset space current as the analysis changes, and
// translates pointer input on the raster back into navigation requests.
//
// Two contexts use an Engine. The interactive context calls Render and the
// Handle* and Set* methods; they never query the analysis provider. The
// background context is Run (or RefreshNow), which classifies the whole
// offset space and publishes a new frame with a single pointer swap.
package featuremap

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"

	"binmap/internal/analysis"
	"binmap/internal/classify"
	"binmap/internal/logging"
	"binmap/internal/mapper"
	"binmap/internal/nav"
	"binmap/internal/notify"
	"binmap/internal/palette"
	"binmap/internal/raster"
	"binmap/internal/ranges"
	"binmap/internal/refresh"
)

// Canvas size used when Options leaves it unset.
const (
	DefaultWidth  = 64
	DefaultHeight = 1024
)

// DefaultAsyncRepaintRuns is the run count from which an interactive layout
// change repaints in the background.
const DefaultAsyncRepaintRuns = 1 << 16

// ErrBusy is returned by RefreshNow while another pass is running.
var ErrBusy = errors.New("featuremap: refresh already running")

// Options configure an Engine.
type Options struct {
	// Width and Height default to DefaultWidth and DefaultHeight when 0.
	Width, Height int
	Orientation   mapper.Orientation
	// Scale zooms the major axis; 0 means 1.
	Scale float64
	// CompactGaps lays the ranges end to end, so unmapped gaps take no
	// space on the canvas.
	CompactGaps bool
	// HistoryForInexact asks for history entries on snapped clicks too.
	HistoryForInexact bool
	Debounce          time.Duration
	LayoutCacheSize   int
	// AsyncRepaintRuns is the committed run count from which HandleResize,
	// SetOrientation and SetScale repaint in the background and show a
	// resampled image meanwhile. 0 means DefaultAsyncRepaintRuns.
	AsyncRepaintRuns  int
	Logger            zerolog.Logger
	Registerer        prometheus.Registerer
	Navigator         nav.Navigator
}

// frame is one committed refresh: everything Render needs, immutable.
type frame struct {
	gen    uint64
	length uint64
	set    *ranges.Set
	runs   *raster.RunList
	m      mapper.Mapper
	static *raster.Image
}

type layoutKey struct {
	gen           uint64
	width, height int
	orientation   mapper.Orientation
	scale         float64
}

func keyFor(f *frame, m mapper.Mapper) layoutKey {
	p := m.Params()
	return layoutKey{gen: f.gen, width: p.Width, height: p.Height, orientation: p.Orientation, scale: p.Scale}
}

// Engine is the feature map. Create it with New.
type Engine struct {
	provider   analysis.Provider
	themes     *palette.Source
	classifier *classify.Classifier
	sched      *refresh.Scheduler
	registry   ranges.Registry
	opts       Options
	log        zerolog.Logger
	metrics    *Metrics
	statics    *lru.Cache[layoutKey, *raster.Image]

	frame   atomic.Pointer[frame]
	display atomic.Pointer[raster.Image]
	scale   atomic.Float64

	// mu guards the interactive state below. The background pass takes it
	// only to commit, never while classifying.
	mu          sync.Mutex
	width       int
	height      int
	orientation mapper.Orientation
	current     uint64
	hasCurrent  bool
	bridge      nav.Bridge
	dragOff     uint64 // canvas offset under the pointer during a drag
	gen         uint64
	repainting  map[layoutKey]bool
	repaints    sync.WaitGroup

	ready notify.List[*raster.Image]

	cancels []func()
}

// New wires an engine to its provider and theme source. The first frame is
// produced by Run or RefreshNow.
func New(provider analysis.Provider, themes *palette.Source, opts Options) (*Engine, error) {
	if provider == nil {
		return nil, errors.New("featuremap: nil provider")
	}
	if themes == nil {
		return nil, errors.New("featuremap: nil theme source")
	}
	if opts.Width == 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height == 0 {
		opts.Height = DefaultHeight
	}
	if opts.AsyncRepaintRuns <= 0 {
		opts.AsyncRepaintRuns = DefaultAsyncRepaintRuns
	}
	if opts.Width < 0 || opts.Height < 0 {
		return nil, fmt.Errorf("featuremap: invalid canvas %dx%d", opts.Width, opts.Height)
	}
	if opts.LayoutCacheSize <= 0 {
		opts.LayoutCacheSize = 8
	}
	statics, err := lru.New[layoutKey, *raster.Image](opts.LayoutCacheSize)
	if err != nil {
		return nil, fmt.Errorf("featuremap: layout cache: %w", err)
	}

	e := &Engine{
		provider:    provider,
		themes:      themes,
		classifier:  classify.New(themes.Current()),
		opts:        opts,
		log:         logging.Component(opts.Logger, "featuremap"),
		metrics:     NewMetrics(opts.Registerer),
		statics:     statics,
		width:       opts.Width,
		height:      opts.Height,
		orientation: opts.Orientation,
		bridge:      nav.Bridge{HistoryForInexact: opts.HistoryForInexact},
		repainting:  make(map[layoutKey]bool),
	}
	e.scale.Store(mapper.NormScale(opts.Scale))
	e.sched = refresh.New(opts.Debounce, e.log)
	e.display.Store(raster.Empty())
	e.cancels = append(e.cancels,
		provider.Subscribe(e.sched.Notify),
		themes.OnChanged(e.onThemeChanged),
	)
	return e, nil
}

// Close detaches the engine from its provider and theme source and waits
// for background repaints.
func (e *Engine) Close() {
	for _, cancel := range e.cancels {
		cancel()
	}
	e.cancels = nil
	e.repaints.Wait()
}

// Run refreshes in the background until ctx is done. It schedules the
// first pass itself.
func (e *Engine) Run(ctx context.Context) error {
	e.sched.Notify()
	return e.sched.Run(ctx, func(ctx context.Context) { e.pass(ctx) })
}

// RefreshNow runs passes synchronously until none is pending. It is for
// callers without a Run loop.
func (e *Engine) RefreshNow(ctx context.Context) error {
	e.sched.Notify()
	if !e.sched.Begin() {
		return ErrBusy
	}
	for {
		e.pass(ctx)
		if !e.sched.Finish() {
			break
		}
		if !e.sched.Begin() {
			return ErrBusy
		}
	}
	return ctx.Err()
}

// Scheduler exposes the refresh state machine.
func (e *Engine) Scheduler() *refresh.Scheduler { return e.sched }

// Metrics returns the engine's collectors.
func (e *Engine) Metrics() *Metrics { return e.metrics }

// Palette returns the palette images are classified with.
func (e *Engine) Palette() *palette.Palette { return e.classifier.Palette() }

// Ranges returns the committed, normalized range set.
func (e *Engine) Ranges() *ranges.Set { return e.registry.Load() }

// Length returns the committed offset space size.
func (e *Engine) Length() uint64 {
	if f := e.frame.Load(); f != nil {
		return f.length
	}
	return 0
}

// Runs returns the committed classification, or nil before the first
// commit.
func (e *Engine) Runs() *raster.RunList {
	if f := e.frame.Load(); f != nil {
		return f.runs
	}
	return nil
}

// Display returns the current display image.
func (e *Engine) Display() *raster.Image { return e.display.Load() }

// OnDisplayImageReady registers fn for display images produced by the
// background context. fn runs on that context and must not block.
func (e *Engine) OnDisplayImageReady(fn func(*raster.Image)) (cancel func()) {
	return e.ready.Subscribe(fn)
}

func (e *Engine) emit(img *raster.Image) { e.ready.Notify(img) }

// onThemeChanged swaps the palette. Symbol colors only move when the number
// of symbol slots changes; otherwise the committed ColorIDs stay valid and
// the display image is re-emitted for the new colors.
func (e *Engine) onThemeChanged(p *palette.Palette) {
	old := e.classifier.Palette()
	e.classifier.SetPalette(p)
	if old == nil || old.SymbolCount() != p.SymbolCount() {
		e.log.Debug().Int("symbols", p.SymbolCount()).Msg("symbol slots changed, refreshing")
		e.sched.Notify()
		return
	}
	e.emit(e.display.Load())
}

// mapperFor builds the mapping for a layout over f's offset space.
func (e *Engine) mapperFor(set *ranges.Set, length uint64, w, h int, o mapper.Orientation) mapper.Mapper {
	if e.opts.CompactGaps {
		length = set.Total()
	}
	return mapper.New(w, h, length, o).WithScale(e.scale.Load())
}

// translate maps run starts into the canvas offset space.
func (e *Engine) translate(set *ranges.Set) func(uint64) (uint64, bool) {
	if e.opts.CompactGaps {
		return set.Linear
	}
	return nil
}

// canvasOffset snaps an address into the ranges and maps it to the canvas
// offset space.
func (e *Engine) canvasOffset(set *ranges.Set, off uint64) (uint64, bool) {
	snapped, _ := set.Clamp(off)
	if !e.opts.CompactGaps {
		return snapped, true
	}
	return set.Linear(snapped)
}
