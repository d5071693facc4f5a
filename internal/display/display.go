// Package display decodes the device's screen snapshot.
package display

import (
	"fmt"
	"image"
	"image/color"
)

const (
	Width  = 32
	Height = 8
	Pixels = Width * Height
)

type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Unpack splits a packed 24-bit RGB value.
func Unpack(v int) Color {
	return Color{R: uint8((v >> 16) & 0xFF), G: uint8((v >> 8) & 0xFF), B: uint8(v & 0xFF)}
}

func (c Color) Packed() int {
	return int(c.R)<<16 | int(c.G)<<8 | int(c.B)
}

func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

func (c Color) RGBA() color.RGBA {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xFF}
}

// Grid is one 32x8 frame, row-major.
type Grid [Height][Width]Color

// Decode turns the flat /api/screen array into a grid. Short arrays are
// padded with black, as the device sends them while booting.
func Decode(values []int) (Grid, error) {
	var g Grid
	if len(values) > Pixels {
		return g, fmt.Errorf("invalid screen data: %d values, want at most %d", len(values), Pixels)
	}
	for i, v := range values {
		g[i/Width][i%Width] = Unpack(v)
	}
	return g, nil
}

func (g *Grid) At(x, y int) Color {
	return g[y][x]
}

// Image renders the grid with each pixel scaled to scale x scale.
func (g *Grid) Image(scale int) *image.RGBA {
	if scale < 1 {
		scale = 1
	}
	img := image.NewRGBA(image.Rect(0, 0, Width*scale, Height*scale))
	for y := 0; y < Height; y++ {
		for x := 0; x < Width; x++ {
			c := g[y][x].RGBA()
			for dy := 0; dy < scale; dy++ {
				for dx := 0; dx < scale; dx++ {
					img.SetRGBA(x*scale+dx, y*scale+dy, c)
				}
			}
		}
	}
	return img
}
