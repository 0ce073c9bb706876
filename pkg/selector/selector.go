// Package selector picks the representative cross-section from a pair of
// co-registered volumes and rescales its intensities to the 8-bit display range.
package selector

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"prostateview/internal/models"
)

// MidpointIndex selects depth/2 along the first axis
const MidpointIndex = -1

// Status tells callers whether the normalized slice carries intensity
// information or is the all-zero rendition of a constant slice.
type Status int

const (
	// StatusNormal means the slice spanned a non-empty intensity range
	StatusNormal Status = iota

	// StatusDegenerate means the slice was constant; the normalized plane is all zero
	StatusDegenerate
)

func (s Status) String() string {
	switch s {
	case StatusNormal:
		return "normal"
	case StatusDegenerate:
		return "degenerate-intensity-range"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Policy controls which slice is chosen and the output intensity range
type Policy struct {
	// SliceIndex pins the slice along the first axis. MidpointIndex (the
	// default) selects depth/2, the anatomical midpoint.
	SliceIndex int

	// OutMin and OutMax are the target range of the min-max rescale
	OutMin, OutMax float64
}

// DefaultPolicy returns midpoint selection with a 0-255 output range
func DefaultPolicy() Policy {
	return Policy{
		SliceIndex: MidpointIndex,
		OutMin:     0,
		OutMax:     255,
	}
}

// Selection is the slice pair handed to the region enhancer
type Selection struct {
	// Index is the position of the chosen slice along the first axis
	Index int

	// Normalized is the image slice rescaled to [OutMin, OutMax]
	Normalized *models.Plane

	// Mask is the co-registered mask slice; nonzero samples are inside
	Mask *models.Plane

	Status Status
}

// SelectAndNormalize extracts the slice pair at the policy's index and
// min-max normalizes the image slice. Both volumes must share their
// (D, H, W) shape.
func SelectAndNormalize(volume, mask *models.Volume, policy Policy) (*Selection, error) {
	if volume == nil || mask == nil {
		return nil, fmt.Errorf("volume and mask are required")
	}
	if volume.Shape() != mask.Shape() {
		return nil, models.NewShapeMismatch("select slice", volume.Shape(), mask.Shape())
	}
	if err := volume.Validate(); err != nil {
		return nil, fmt.Errorf("invalid image volume: %w", err)
	}
	if err := mask.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mask volume: %w", err)
	}

	index := policy.SliceIndex
	if index == MidpointIndex {
		index = volume.Depth / 2
	}

	imageSlice, err := volume.Slice(index)
	if err != nil {
		return nil, err
	}
	maskSlice, err := mask.Slice(index)
	if err != nil {
		return nil, err
	}

	normalized, status := Normalize(imageSlice, volume.Width, volume.Height, policy.OutMin, policy.OutMax)

	maskPlane := models.NewPlane(mask.Width, mask.Height)
	for i, v := range maskSlice {
		maskPlane.Pix[i] = models.MaskSample(v)
	}

	return &Selection{
		Index:      index,
		Normalized: normalized,
		Mask:       maskPlane,
		Status:     status,
	}, nil
}

// Normalize linearly maps min(data) to outMin and max(data) to outMax,
// rounding to the nearest 8-bit value. A constant input has no range to
// stretch and yields an all-zero plane with StatusDegenerate.
func Normalize(data []float64, width, height int, outMin, outMax float64) (*models.Plane, Status) {
	out := models.NewPlane(width, height)
	if len(data) == 0 {
		return out, StatusDegenerate
	}

	lo, hi := floats.Min(data), floats.Max(data)
	if hi == lo || math.IsNaN(hi-lo) || math.IsInf(hi-lo, 0) {
		return out, StatusDegenerate
	}

	scale := (outMax - outMin) / (hi - lo)
	for i, v := range data {
		out.Pix[i] = saturateUint8((v-lo)*scale + outMin)
	}
	return out, StatusNormal
}

func saturateUint8(v float64) uint8 {
	r := math.Round(v)
	if r <= 0 || math.IsNaN(r) {
		return 0
	}
	if r >= 255 {
		return 255
	}
	return uint8(r)
}
