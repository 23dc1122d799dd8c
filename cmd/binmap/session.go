package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"binmap/internal/analysis"
	"binmap/internal/config"
	"binmap/internal/featuremap"
	"binmap/internal/logging"
	"binmap/internal/palette"
)

// session is an opened library with an engine over it.
type session struct {
	cfg    *config.Config
	log    zerolog.Logger
	themes *palette.Source
	lib    *analysis.ELF
	engine *featuremap.Engine
}

func changed(cmd *cobra.Command, name string) bool {
	f := cmd.Flag(name)
	return f != nil && f.Changed
}

// loadConfig reads the config file and applies flag overrides.
func (o *options) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if changed(cmd, "width") {
		cfg.Canvas.Width = o.width
	}
	if changed(cmd, "height") {
		cfg.Canvas.Height = o.height
	}
	if changed(cmd, "orientation") {
		cfg.Canvas.Orientation = o.orientation
	}
	if changed(cmd, "scale") {
		cfg.Canvas.Scale = o.scale
	}
	if changed(cmd, "compact") {
		cfg.Canvas.CompactGaps = o.compact
	}
	if changed(cmd, "theme") {
		cfg.Theme.Name = o.theme
	}
	if changed(cmd, "log-level") {
		cfg.Log.Level = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// openSession loads the library and wires an engine to it. reg may be nil.
func openSession(cmd *cobra.Command, o *options, reg prometheus.Registerer) (*session, error) {
	if o.lib == "" {
		return nil, errors.New("--lib is required")
	}
	cfg, err := o.loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	lc := logging.DefaultConfig()
	lc.Level, lc.Pretty, lc.Output = cfg.Log.Level, cfg.Log.Pretty, cmd.ErrOrStderr()
	log := logging.NewWithComponent(lc, "cli")

	pal, err := cfg.Palette()
	if err != nil {
		return nil, err
	}
	lib, err := analysis.OpenELF(o.lib, analysis.ELFOptions{
		Tags:           cfg.TagColors(pal),
		ColorFunctions: cfg.Symbols.ColorFunctions,
		Logger:         log,
	})
	if err != nil {
		return nil, err
	}

	themes := palette.NewSource(pal)
	engine, err := featuremap.New(lib, themes, featuremap.Options{
		Width:             cfg.Canvas.Width,
		Height:            cfg.Canvas.Height,
		Orientation:       cfg.Orientation(),
		Scale:             cfg.Canvas.Scale,
		CompactGaps:       cfg.Canvas.CompactGaps,
		HistoryForInexact: cfg.Navigation.HistoryForInexact,
		Debounce:          cfg.Refresh.Debounce,
		Logger:            log,
		Registerer:        reg,
	})
	if err != nil {
		return nil, err
	}
	return &session{cfg: cfg, log: log, themes: themes, lib: lib, engine: engine}, nil
}

func (s *session) Close() { s.engine.Close() }

// parseAddr parses a hex virtual address, with or without 0x.
func parseAddr(s string) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(s), "0x"), 16, 64)
	if err != nil {
		return 0, fmt.Errorf("bad address %q: %w", s, err)
	}
	return v, nil
}
