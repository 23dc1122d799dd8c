// Package output writes binmap results to files: PNG snapshots, run lists,
// DOT graphs and disassembly listings.
//
// Every writer replaces its target atomically so a watcher never reads a
// half-written file.
package output

import (
	"bytes"
	"encoding/json"
	"fmt"
	"image/png"
	"os"
	"path/filepath"

	"binmap/internal/disasm"
	"binmap/internal/palette"
	"binmap/internal/raster"
)

// WritePNG writes img as an indexed PNG using p's colors.
func WritePNG(path string, img *raster.Image, p *palette.Palette) error {
	if img.IsEmpty() {
		return fmt.Errorf("output: %s: empty image", path)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img.Paletted(p)); err != nil {
		return fmt.Errorf("output: encode %s: %w", path, err)
	}
	return writeFile(path, buf.Bytes())
}

// RunEntry is one run in the JSON run list, with its class or symbol slot
// spelled out.
type RunEntry struct {
	Start  uint64 `json:"start"`
	Length uint64 `json:"length"`
	Color  string `json:"color"`
	RGB    string `json:"rgb"`
}

// RunsDoc is the JSON run-list document.
type RunsDoc struct {
	Length uint64     `json:"length"`
	Runs   []RunEntry `json:"runs"`
}

// WriteRunsJSON writes the committed run list.
func WriteRunsJSON(path string, runs *raster.RunList, p *palette.Palette) error {
	doc := RunsDoc{Length: runs.Length, Runs: make([]RunEntry, 0, len(runs.Runs))}
	for _, r := range runs.Runs {
		c := p.RGBA(r.Color)
		doc.Runs = append(doc.Runs, RunEntry{
			Start:  r.Start,
			Length: r.Length,
			Color:  palette.ClassName(r.Color),
			RGB:    fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B),
		})
	}
	return writeJSON(path, doc)
}

// WriteDOT writes a rendered DOT graph.
func WriteDOT(path, dot string) error {
	return writeFile(path, []byte(dot))
}

// WriteASM writes a disassembly listing.
func WriteASM(path string, insts []disasm.Inst, lookup disasm.SymbolLookup) error {
	return writeFile(path, []byte(disasm.Format(insts, lookup)))
}

func writeJSON(path string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("output: encode %s: %w", path, err)
	}
	return writeFile(path, buf.Bytes())
}

// writeFile writes data next to path and renames it into place.
func writeFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("output: mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("output: create %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("output: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("output: close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("output: rename %s: %w", path, err)
	}
	return nil
}
