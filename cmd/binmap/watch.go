package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"binmap/internal/output"
	"binmap/internal/raster"
)

func newWatchCmd(o *options) *cobra.Command {
	var out, metricsAddr string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep the feature map current while the library or config changes",
		Long: `watch re-classifies the library whenever it is rewritten and rewrites
the PNG after every refresh. Config edits change the theme and canvas
without re-reading the library.`,
		Example: `  binmap watch --lib build/libapp.so --config binmap.yaml --out map.png --metrics-addr :9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			reg := prometheus.NewRegistry()
			s, err := openSession(cmd, o, reg)
			if err != nil {
				return err
			}
			defer s.Close()
			if !cmd.Flags().Changed("metrics-addr") {
				metricsAddr = s.cfg.Metrics.Addr
			}

			w := &watcher{session: s, opts: o, cmd: cmd, out: out, images: make(chan *raster.Image, 1)}
			fw, err := w.watchFiles()
			if err != nil {
				return err
			}
			defer fw.Close()
			cancel := s.engine.OnDisplayImageReady(w.publish)
			defer cancel()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error { return s.engine.Run(ctx) })
			g.Go(func() error { return w.writeLoop(ctx) })
			g.Go(func() error { return w.watchLoop(ctx, fw) })
			if metricsAddr != "" {
				g.Go(func() error { return serveMetrics(ctx, metricsAddr, reg) })
			}
			err = g.Wait()
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&out, "out", "", "PNG output path")
	f.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

type watcher struct {
	*session
	opts   *options
	cmd    *cobra.Command
	out    string
	images chan *raster.Image

	libPath  string
	confPath string
}

// publish hands img to the writer, replacing an image it has not taken yet.
func (w *watcher) publish(img *raster.Image) {
	for {
		select {
		case w.images <- img:
			return
		default:
		}
		select {
		case <-w.images:
		default:
		}
	}
}

func (w *watcher) writeLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case img := <-w.images:
			if img.IsEmpty() {
				continue
			}
			if err := output.WritePNG(w.out, img, w.engine.Palette()); err != nil {
				w.log.Error().Err(err).Str("out", w.out).Msg("write map")
				continue
			}
			w.log.Info().Str("out", w.out).Int("width", img.Width).Int("height", img.Height).Msg("map written")
		}
	}
}

// watchFiles watches the directories of the library and config file.
// Editors and linkers often replace a file by rename, which a watch on the
// file itself would lose.
func (w *watcher) watchFiles() (*fsnotify.Watcher, error) {
	var err error
	if w.libPath, err = filepath.Abs(w.opts.lib); err != nil {
		return nil, err
	}
	dirs := map[string]bool{filepath.Dir(w.libPath): true}
	if w.opts.configPath != "" {
		if w.confPath, err = filepath.Abs(w.opts.configPath); err != nil {
			return nil, err
		}
		dirs[filepath.Dir(w.confPath)] = true
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for dir := range dirs {
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, err
		}
	}
	return fw, nil
}

func (w *watcher) watchLoop(ctx context.Context, fw *fsnotify.Watcher) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn().Err(err).Msg("watch")
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			switch name := filepath.Clean(ev.Name); {
			case name == w.libPath:
				w.reloadLib()
			case w.confPath != "" && name == w.confPath:
				w.reloadConfig()
			}
		}
	}
}

func (w *watcher) reloadLib() {
	if err := w.lib.Reload(); err != nil {
		// Linkers often write in several steps; the next event retries.
		w.log.Debug().Err(err).Msg("library not readable yet")
		return
	}
	w.log.Info().Str("lib", w.lib.Path()).Msg("library changed")
}

// reloadConfig applies theme and canvas changes. Symbol tags are bound
// when the library is opened and need a restart.
func (w *watcher) reloadConfig() {
	cfg, err := w.opts.loadConfig(w.cmd)
	if err != nil {
		w.log.Warn().Err(err).Msg("config rejected, keeping the current one")
		return
	}
	pal, err := cfg.Palette()
	if err != nil {
		w.log.Warn().Err(err).Msg("config rejected, keeping the current one")
		return
	}
	w.cfg = cfg
	w.themes.Set(pal)
	w.engine.HandleResize(cfg.Canvas.Width, cfg.Canvas.Height)
	w.engine.SetScale(cfg.Canvas.Scale)
	w.publish(w.engine.SetOrientation(cfg.Orientation()))
	w.log.Info().Str("theme", cfg.Theme.Name).Msg("config changed")
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
		return ctx.Err()
	}
}
