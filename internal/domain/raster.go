package domain

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
)

// EncodeWindPNG packs the u and v wind components into the red and green
// channels of a width×height PNG, each normalized to 0-255 against the
// supplied global min/max. Blue is zero and alpha is opaque, matching the
// layout the windgl renderer decodes.
//
// A degenerate range (max == min) maps the whole channel to 0 instead of
// dividing by zero.
func EncodeWindPNG(width, height int, u, v []float64, uMin, uMax, vMin, vMax float64) ([]byte, error) {
	if len(u) != width*height || len(v) != width*height {
		return nil, fmt.Errorf("wind raster: %d×%d grid needs %d samples, got u=%d v=%d",
			width, height, width*height, len(u), len(v))
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))

	for i := range u {
		x := i % width
		y := i / width

		img.SetRGBA(x, y, color.RGBA{
			R: normalizeChannel(u[i], uMin, uMax),
			G: normalizeChannel(v[i], vMin, vMax),
			B: 0,
			A: 255,
		})
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode wind png: %w", err)
	}

	return buf.Bytes(), nil
}

func normalizeChannel(value, min, max float64) uint8 {
	if max == min {
		return 0
	}
	n := math.Round((value - min) / (max - min) * 255.0)
	if n < 0 {
		return 0
	}
	if n > 255 {
		return 255
	}
	return uint8(n)
}
