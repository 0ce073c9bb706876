package enhance

import (
	"math"

	"prostateview/internal/models"
)

// GammaLUT precomputes v -> uint8((v/255)^gamma * 255) for every 8-bit value.
// The float result is truncated, so 0 stays 0 and 255 stays 255.
func GammaLUT(gamma float64) [histSize]uint8 {
	var lut [histSize]uint8
	for i := range lut {
		v := math.Pow(float64(i)/255.0, gamma) * 255.0
		if v >= 255 {
			lut[i] = 255
			continue
		}
		lut[i] = uint8(v)
	}
	return lut
}

// applyLUT maps every sample of src through lut into a new plane
func applyLUT(src *models.Plane, lut *[histSize]uint8) *models.Plane {
	out := models.NewPlane(src.Width, src.Height)
	for i, v := range src.Pix {
		out.Pix[i] = lut[v]
	}
	return out
}
