// Package config loads the binmap YAML configuration.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"binmap/internal/logging"
	"binmap/internal/mapper"
	"binmap/internal/palette"
	"binmap/internal/refresh"
)

// Config is the file format. Zero values are filled from Default by Load.
type Config struct {
	Canvas     Canvas     `yaml:"canvas"`
	Theme      Theme      `yaml:"theme"`
	Symbols    Symbols    `yaml:"symbols"`
	Navigation Navigation `yaml:"navigation"`
	Refresh    Refresh    `yaml:"refresh"`
	Log        Log        `yaml:"log"`
	Metrics    Metrics    `yaml:"metrics"`
}

type Canvas struct {
	Width       int    `yaml:"width"`
	Height      int    `yaml:"height"`
	Orientation string `yaml:"orientation"`
	// Scale zooms the major axis.
	Scale float64 `yaml:"scale"`
	// CompactGaps removes unmapped gaps from the canvas.
	CompactGaps bool `yaml:"compact_gaps"`
}

type Theme struct {
	Name string `yaml:"name"`
	// Overrides recolor fixed classes: class name -> "#rrggbb".
	Overrides map[string]string `yaml:"overrides,omitempty"`
}

type Symbols struct {
	// Slots is the size of the derived symbol-color ramp.
	Slots int `yaml:"slots"`
	// ColorFunctions tags every function symbol with its derived color.
	ColorFunctions bool  `yaml:"color_functions"`
	Tags           []Tag `yaml:"tags,omitempty"`
}

// Tag colors the symbol Name. Color is "#rrggbb" or a class name.
type Tag struct {
	Name  string `yaml:"name"`
	Color string `yaml:"color"`
}

type Navigation struct {
	HistoryForInexact bool `yaml:"history_for_inexact"`
}

type Refresh struct {
	Debounce time.Duration `yaml:"debounce"`
}

type Log struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

type Metrics struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	log := logging.DefaultConfig()
	return &Config{
		Canvas: Canvas{
			Width:       64,
			Height:      1024,
			Orientation: mapper.Vertical.String(),
			Scale:       1,
		},
		Theme:   Theme{Name: palette.NASA.Name},
		Symbols: Symbols{Slots: 32},
		Refresh: Refresh{Debounce: refresh.DefaultDebounce},
		Log:     Log{Level: log.Level, Pretty: log.Pretty},
	}
}

// Load reads path over the defaults and validates the result. An empty
// path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs *multierror.Error
	if c.Canvas.Width <= 0 || c.Canvas.Height <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("canvas: size %dx%d must be positive", c.Canvas.Width, c.Canvas.Height))
	}
	if !(c.Canvas.Scale > 0) || math.IsInf(c.Canvas.Scale, 0) {
		errs = multierror.Append(errs, fmt.Errorf("canvas: scale %v must be positive", c.Canvas.Scale))
	}
	if _, err := mapper.ParseOrientation(c.Canvas.Orientation); err != nil {
		errs = multierror.Append(errs, err)
	}
	if _, ok := palette.ThemeByName(c.Theme.Name); !ok {
		errs = multierror.Append(errs, fmt.Errorf("theme: unknown %q (have %v)", c.Theme.Name, palette.ThemeNames()))
	}
	for class, hex := range c.Theme.Overrides {
		if _, err := palette.NASA.Override(class, hex); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("theme override %s: %w", class, err))
		}
	}
	if c.Symbols.Slots < 0 || c.Symbols.Slots > palette.MaxColors-palette.NumClasses {
		errs = multierror.Append(errs, fmt.Errorf("symbols: slots %d out of range [0, %d]",
			c.Symbols.Slots, palette.MaxColors-palette.NumClasses))
	}
	seen := make(map[string]bool)
	for i, t := range c.Symbols.Tags {
		if t.Name == "" {
			errs = multierror.Append(errs, fmt.Errorf("symbols: tag %d has no name", i))
		}
		if seen[t.Name] {
			errs = multierror.Append(errs, fmt.Errorf("symbols: duplicate tag %q", t.Name))
		}
		seen[t.Name] = true
		if _, ok := palette.ClassByName(t.Color); ok {
			continue
		}
		if _, err := palette.ParseHex(t.Color); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("symbols: tag %q: %w", t.Name, err))
		}
	}
	if c.Refresh.Debounce < 0 {
		errs = multierror.Append(errs, errors.New("refresh: negative debounce"))
	}
	return errs.ErrorOrNil()
}

// Orientation returns the parsed canvas orientation.
func (c *Config) Orientation() mapper.Orientation {
	o, _ := mapper.ParseOrientation(c.Canvas.Orientation)
	return o
}

// Palette builds the palette for the configured theme, overrides and tag
// colors.
func (c *Config) Palette() (*palette.Palette, error) {
	theme, ok := palette.ThemeByName(c.Theme.Name)
	if !ok {
		return nil, fmt.Errorf("config: unknown theme %q", c.Theme.Name)
	}
	classes := make([]string, 0, len(c.Theme.Overrides))
	for class := range c.Theme.Overrides {
		classes = append(classes, class)
	}
	sort.Strings(classes)
	for _, class := range classes {
		var err error
		if theme, err = theme.Override(class, c.Theme.Overrides[class]); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}
	return theme.Palette(c.Symbols.Slots, c.tagHexes())
}

func (c *Config) tagHexes() []string {
	var hexes []string
	for _, t := range c.Symbols.Tags {
		if _, ok := palette.ClassByName(t.Color); !ok {
			hexes = append(hexes, t.Color)
		}
	}
	return hexes
}

// TagColors resolves each tag to its slot in p, which must have been built
// by Palette. Tags naming a class use that class.
func (c *Config) TagColors(p *palette.Palette) map[string]palette.ColorID {
	out := make(map[string]palette.ColorID, len(c.Symbols.Tags))
	slot := 0
	for _, t := range c.Symbols.Tags {
		if class, ok := palette.ClassByName(t.Color); ok {
			out[t.Name] = class
			continue
		}
		if id, ok := p.Tag(slot); ok {
			out[t.Name] = id
		}
		slot++
	}
	return out
}
