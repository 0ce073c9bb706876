package models

import (
	"image"
	"math"
)

// Plane is a 2D array of 8-bit samples co-registered with a volume slice.
// It is used for normalized slices, mask slices and enhanced regions alike.
type Plane struct {
	// Pix holds the samples in row-major order: index = y*Width + x
	Pix []uint8

	Width  int
	Height int
}

// NewPlane allocates a zero-filled plane
func NewPlane(width, height int) *Plane {
	return &Plane{
		Pix:    make([]uint8, width*height),
		Width:  width,
		Height: height,
	}
}

// Shape returns the (H, W) extent of the plane
func (p *Plane) Shape() Shape {
	return Shape{Height: p.Height, Width: p.Width, Planar: true}
}

// At returns the sample at (x, y)
func (p *Plane) At(x, y int) uint8 {
	return p.Pix[y*p.Width+x]
}

// Set stores the sample at (x, y)
func (p *Plane) Set(x, y int, value uint8) {
	p.Pix[y*p.Width+x] = value
}

// Clone returns a deep copy of the plane
func (p *Plane) Clone() *Plane {
	out := NewPlane(p.Width, p.Height)
	copy(out.Pix, p.Pix)
	return out
}

// SameShape reports whether both planes have identical (H, W)
func (p *Plane) SameShape(o *Plane) bool {
	return p.Width == o.Width && p.Height == o.Height
}

// IsZero reports whether every sample is zero
func (p *Plane) IsZero() bool {
	for _, v := range p.Pix {
		if v != 0 {
			return false
		}
	}
	return true
}

// IsPortrait reports whether the plane is taller than it is wide
func (p *Plane) IsPortrait() bool {
	return p.Height > p.Width
}

// Transpose returns a new plane with rows and columns swapped
func (p *Plane) Transpose() *Plane {
	out := NewPlane(p.Height, p.Width)
	for y := 0; y < p.Height; y++ {
		for x := 0; x < p.Width; x++ {
			out.Pix[x*out.Width+y] = p.Pix[y*p.Width+x]
		}
	}
	return out
}

// Gray wraps the samples in an *image.Gray without copying
func (p *Plane) Gray() *image.Gray {
	return &image.Gray{
		Pix:    p.Pix,
		Stride: p.Width,
		Rect:   image.Rect(0, 0, p.Width, p.Height),
	}
}

// PlaneFromGray copies a grayscale image into a plane
func PlaneFromGray(img *image.Gray) *Plane {
	b := img.Bounds()
	out := NewPlane(b.Dx(), b.Dy())
	for y := 0; y < out.Height; y++ {
		copy(out.Pix[y*out.Width:(y+1)*out.Width], img.Pix[img.PixOffset(b.Min.X, b.Min.Y+y):])
	}
	return out
}

// MaskSample converts a raw mask voxel to 8 bits without losing whether it
// is inside the region: zero stays zero, anything else lands in [1, 255].
func MaskSample(v float64) uint8 {
	if v == 0 || math.IsNaN(v) {
		return 0
	}
	r := math.Round(math.Abs(v))
	if r < 1 {
		return 1
	}
	if r > 255 {
		return 255
	}
	return uint8(r)
}
