// Package raster paints classified runs into indexed images and composites
// the interactive overlays on top of them.
package raster

import (
	"image"

	"binmap/internal/palette"
)

// Image is an indexed raster. Published images are never mutated; every
// writer works on a Clone.
type Image struct {
	Width, Height int
	Pix           []palette.ColorID
}

// New returns a w×h image filled with bg.
func New(w, h int, bg palette.ColorID) *Image {
	if w <= 0 || h <= 0 {
		return Empty()
	}
	img := &Image{Width: w, Height: h, Pix: make([]palette.ColorID, w*h)}
	if bg != 0 {
		for i := range img.Pix {
			img.Pix[i] = bg
		}
	}
	return img
}

// Empty is the image for degenerate input.
func Empty() *Image { return &Image{} }

// IsEmpty reports a 0×0 image.
func (img *Image) IsEmpty() bool {
	return img == nil || img.Width == 0 || img.Height == 0
}

// Clone returns a deep copy.
func (img *Image) Clone() *Image {
	out := &Image{Width: img.Width, Height: img.Height}
	out.Pix = append([]palette.ColorID(nil), img.Pix...)
	return out
}

func (img *Image) in(x, y int) bool {
	return x >= 0 && y >= 0 && x < img.Width && y < img.Height
}

// At returns the color at (x, y); off-image pixels read as Unmapped.
func (img *Image) At(x, y int) palette.ColorID {
	if !img.in(x, y) {
		return palette.Unmapped
	}
	return img.Pix[y*img.Width+x]
}

// Set writes (x, y); off-image writes are dropped.
func (img *Image) Set(x, y int, c palette.ColorID) {
	if img.in(x, y) {
		img.Pix[y*img.Width+x] = c
	}
}

// Histogram counts pixels per color.
func (img *Image) Histogram() map[palette.ColorID]int {
	h := make(map[palette.ColorID]int)
	for _, c := range img.Pix {
		h[c]++
	}
	return h
}

// Paletted converts to an image/png-ready paletted image.
func (img *Image) Paletted(p *palette.Palette) *image.Paletted {
	out := image.NewPaletted(image.Rect(0, 0, img.Width, img.Height), p.Colors())
	for i, c := range img.Pix {
		if int(c) >= p.Len() {
			c = palette.Unmapped
		}
		out.Pix[i] = uint8(c)
	}
	return out
}

// RGBA expands the image through p.
func (img *Image) RGBA(p *palette.Palette) *image.RGBA {
	out := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			out.SetRGBA(x, y, p.RGBA(img.Pix[y*img.Width+x]))
		}
	}
	return out
}
