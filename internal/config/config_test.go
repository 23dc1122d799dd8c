package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"binmap/internal/mapper"
	"binmap/internal/palette"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "binmap.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
canvas:
  height: 256
  scale: 2.5
  orientation: horizontal
  compact_gaps: true
theme:
  name: dark
  overrides:
    code: "#123456"
symbols:
  slots: 8
  color_functions: true
  tags:
    - name: main
      color: "#ff0000"
    - name: init
      color: string
    - name: fini
      color: "#00ff00"
refresh:
  debounce: 250ms
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 64, cfg.Canvas.Width, "default kept")
	assert.Equal(t, 256, cfg.Canvas.Height)
	assert.Equal(t, 2.5, cfg.Canvas.Scale)
	assert.Equal(t, mapper.Horizontal, cfg.Orientation())
	assert.True(t, cfg.Canvas.CompactGaps)
	assert.True(t, cfg.Symbols.ColorFunctions)
	assert.Equal(t, 250*time.Millisecond, cfg.Refresh.Debounce)
	assert.Equal(t, "info", cfg.Log.Level)

	p, err := cfg.Palette()
	require.NoError(t, err)
	assert.Equal(t, palette.NumClasses+8+2, p.Len())
	code, err := palette.ParseHex("#123456")
	require.NoError(t, err)
	assert.Equal(t, code, p.RGBA(palette.Code))

	tags := cfg.TagColors(p)
	assert.Equal(t, palette.String, tags["init"])
	main, _ := p.Tag(0)
	fini, _ := p.Tag(1)
	assert.Equal(t, main, tags["main"])
	assert.Equal(t, fini, tags["fini"])
	red, _ := palette.ParseHex("#ff0000")
	assert.Equal(t, red, p.RGBA(tags["main"]))
}

func TestValidateCollectsEveryError(t *testing.T) {
	cfg := Default()
	cfg.Canvas.Width = 0
	cfg.Canvas.Scale = -1
	cfg.Canvas.Orientation = "diagonal"
	cfg.Theme.Name = "neon"
	cfg.Symbols.Slots = 1000
	cfg.Symbols.Tags = []Tag{{Name: "a", Color: "nope"}, {Name: "a", Color: "code"}}

	err := cfg.Validate()
	require.Error(t, err)
	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	assert.Len(t, merr.Errors, 7)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "canvas: [1, 2"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "theme:\n  name: neon\n"))
	assert.ErrorContains(t, err, "neon")

	_, err = Load(writeConfig(t, "canvas:\n  scale: 0\n"))
	assert.ErrorContains(t, err, "scale")
}
