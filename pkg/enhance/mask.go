package enhance

import (
	"prostateview/internal/models"
)

// Binarize returns a plane holding 1 where mask is nonzero and 0 elsewhere
func Binarize(mask *models.Plane) *models.Plane {
	out := models.NewPlane(mask.Width, mask.Height)
	for i, v := range mask.Pix {
		if v != 0 {
			out.Pix[i] = 1
		}
	}
	return out
}

// ApplyMask keeps src where mask is nonzero and writes 0 everywhere else
func ApplyMask(src, mask *models.Plane) *models.Plane {
	out := models.NewPlane(src.Width, src.Height)
	for i, v := range src.Pix {
		if mask.Pix[i] != 0 {
			out.Pix[i] = v
		}
	}
	return out
}

// countOutside counts nonzero pixels of p where mask is zero
func countOutside(p, mask *models.Plane) int {
	if p == nil || mask == nil {
		return 0
	}
	n := 0
	for i, v := range p.Pix {
		if v != 0 && mask.Pix[i] == 0 {
			n++
		}
	}
	return n
}

// countZeroed counts pixels that are nonzero in before and zero in after
func countZeroed(before, after *models.Plane) int {
	n := 0
	for i, v := range before.Pix {
		if v != 0 && after.Pix[i] == 0 {
			n++
		}
	}
	return n
}
