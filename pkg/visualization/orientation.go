package visualization

import (
	"prostateview/internal/models"
)

// Oriented holds the three co-registered planes handed to the renderer
type Oriented struct {
	// Original is the normalized slice
	Original *models.Plane

	// Enhanced is the masked, enhanced region
	Enhanced *models.Plane

	// Mask is the raw mask slice used for the contour overlay
	Mask *models.Plane

	// Transposed records whether rows and columns were swapped
	Transposed bool
}

// Orient transposes all three planes when transposePortrait is set and the
// slice is taller than wide, and leaves all three untouched otherwise. The
// planes stay co-registered either way; they must share one shape.
func Orient(original, enhanced, mask *models.Plane, transposePortrait bool) (*Oriented, error) {
	if err := models.CheckPlanes("orient", original, enhanced, mask); err != nil {
		return nil, err
	}

	if !transposePortrait || !original.IsPortrait() {
		return &Oriented{Original: original, Enhanced: enhanced, Mask: mask}, nil
	}

	return &Oriented{
		Original:   original.Transpose(),
		Enhanced:   enhanced.Transpose(),
		Mask:       mask.Transpose(),
		Transposed: true,
	}, nil
}
