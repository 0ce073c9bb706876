// Package quality summarizes how enhancement changed the masked region,
// comparing intensity statistics inside the mask before and after.
package quality

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"prostateview/internal/models"
)

// RegionStats describes the 8-bit intensities inside a mask
type RegionStats struct {
	// Pixels is the number of mask pixels
	Pixels int

	Mean   float64
	StdDev float64
	Min    float64
	Max    float64

	// Entropy is the Shannon entropy of the 256-bin histogram in bits
	Entropy float64
}

// Report compares the region before and after enhancement
type Report struct {
	Before RegionStats
	After  RegionStats

	// ContrastGain is After.StdDev / Before.StdDev (0 when undefined)
	ContrastGain float64

	// MeanShift is After.Mean - Before.Mean; positive values mean brighter
	MeanShift float64

	// EntropyDiff is After.Entropy - Before.Entropy
	EntropyDiff float64

	// Correlation is the Pearson correlation of the pixel pairs; a low value
	// would mean enhancement reshuffled the structure instead of stretching it
	Correlation float64

	// SSIM is the single-window structural similarity of the two regions
	SSIM float64
}

// Region computes statistics of p over the pixels where mask is nonzero
func Region(p, mask *models.Plane) (RegionStats, error) {
	if err := models.CheckPlanes("region stats", p, mask); err != nil {
		return RegionStats{}, err
	}
	return regionStats(maskedValues(p, mask)), nil
}

// Compare builds a Report for original and enhanced restricted to mask
func Compare(original, enhanced, mask *models.Plane) (*Report, error) {
	if err := models.CheckPlanes("compare regions", original, enhanced, mask); err != nil {
		return nil, err
	}

	before := maskedValues(original, mask)
	after := maskedValues(enhanced, mask)

	r := &Report{
		Before: regionStats(before),
		After:  regionStats(after),
	}
	r.MeanShift = r.After.Mean - r.Before.Mean
	r.EntropyDiff = r.After.Entropy - r.Before.Entropy
	if r.Before.StdDev > 0 {
		r.ContrastGain = r.After.StdDev / r.Before.StdDev
	}
	if len(before) > 1 && r.Before.StdDev > 0 && r.After.StdDev > 0 {
		r.Correlation = stat.Correlation(before, after, nil)
	}
	r.SSIM = ssim(before, after)

	return r, nil
}

func maskedValues(p, mask *models.Plane) []float64 {
	values := make([]float64, 0, len(p.Pix))
	for i, v := range p.Pix {
		if mask.Pix[i] != 0 {
			values = append(values, float64(v))
		}
	}
	return values
}

func regionStats(values []float64) RegionStats {
	s := RegionStats{Pixels: len(values)}
	if len(values) == 0 {
		return s
	}
	s.Min = floats.Min(values)
	s.Max = floats.Max(values)
	if len(values) > 1 {
		s.Mean, s.StdDev = stat.MeanStdDev(values, nil)
	} else {
		s.Mean = values[0]
	}
	s.Entropy = entropy(values)
	return s
}

// entropy computes the Shannon entropy of 8-bit samples in bits
func entropy(values []float64) float64 {
	var hist [256]float64
	for _, v := range values {
		hist[int(v)]++
	}
	floats.Scale(1/float64(len(values)), hist[:])
	// stat.Entropy works in nats
	return stat.Entropy(hist[:]) / math.Ln2
}

// ssim evaluates structural similarity over the whole region as one window
func ssim(x, y []float64) float64 {
	const (
		l  = 255.0
		k1 = 0.01
		k2 = 0.03
	)
	if len(x) < 2 || len(x) != len(y) {
		return 0
	}
	c1 := (k1 * l) * (k1 * l)
	c2 := (k2 * l) * (k2 * l)

	muX := stat.Mean(x, nil)
	muY := stat.Mean(y, nil)
	varX := stat.Variance(x, nil)
	varY := stat.Variance(y, nil)
	cov := stat.Covariance(x, y, nil)

	num := (2*muX*muY + c1) * (2*cov + c2)
	den := (muX*muX + muY*muY + c1) * (varX + varY + c2)
	if den > 0 {
		return num / den
	}
	return 0
}
