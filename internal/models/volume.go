package models

import (
	"fmt"
)

// Volume represents a 3D scan (or its companion mask) loaded from disk
type Volume struct {
	// Data is the 3D volume data as a 1D array in row-major order:
	// index = z*Width*Height + y*Width + x
	Data []float64

	// Width is the width of the volume in voxels (x axis, fastest varying)
	Width int

	// Height is the height of the volume in voxels (y axis)
	Height int

	// Depth is the number of slices along the first array axis (z)
	Depth int

	// VoxelSize is the physical size of each voxel in mm
	VoxelSize struct {
		X, Y, Z float64
	}
}

// Shape is the (D, H, W) extent of a volume or, when Planar is set, the
// (H, W) extent of a plane
type Shape struct {
	Depth, Height, Width int

	Planar bool
}

func (s Shape) String() string {
	if s.Planar {
		return fmt.Sprintf("(%d, %d)", s.Height, s.Width)
	}
	return fmt.Sprintf("(%d, %d, %d)", s.Depth, s.Height, s.Width)
}

// NewVolume allocates a zero-filled volume of the given dimensions
func NewVolume(width, height, depth int) *Volume {
	return &Volume{
		Data:   make([]float64, width*height*depth),
		Width:  width,
		Height: height,
		Depth:  depth,
	}
}

// Shape returns the (D, H, W) extent of the volume
func (v *Volume) Shape() Shape {
	return Shape{Depth: v.Depth, Height: v.Height, Width: v.Width}
}

// Index returns the flat offset of voxel (x, y, z)
func (v *Volume) Index(x, y, z int) int {
	return z*v.Width*v.Height + y*v.Width + x
}

// Set stores a voxel value
func (v *Volume) Set(x, y, z int, value float64) {
	v.Data[v.Index(x, y, z)] = value
}

// At returns a voxel value
func (v *Volume) At(x, y, z int) float64 {
	return v.Data[v.Index(x, y, z)]
}

// Validate checks that the dimensions are positive and agree with the data
// length. Failures wrap ErrShapeMismatch.
func (v *Volume) Validate() error {
	if v.Width <= 0 || v.Height <= 0 || v.Depth <= 0 {
		return fmt.Errorf("%w: volume dimensions must be positive, got %s", ErrShapeMismatch, v.Shape())
	}
	if len(v.Data) != v.Width*v.Height*v.Depth {
		return fmt.Errorf("%w: volume data length %d does not match shape %s", ErrShapeMismatch, len(v.Data), v.Shape())
	}
	return nil
}

// Slice returns the samples of the z-th slice. The returned slice aliases
// the volume data and must not be modified.
func (v *Volume) Slice(z int) ([]float64, error) {
	if z < 0 || z >= v.Depth {
		return nil, fmt.Errorf("slice index %d outside depth %d", z, v.Depth)
	}
	size := v.Width * v.Height
	return v.Data[z*size : (z+1)*size], nil
}
