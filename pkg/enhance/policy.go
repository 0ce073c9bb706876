package enhance

import (
	"fmt"
)

// Policy holds the fixed numeric policy of the region enhancer. The values
// are not user input; DefaultPolicy documents them and tests may vary them.
type Policy struct {
	// ClipLimit bounds contrast amplification per tile (OpenCV convention:
	// multiples of the mean histogram bin height). Zero disables clipping.
	ClipLimit float64

	// TileRows and TileCols define the equalization tile grid
	TileRows int
	TileCols int

	// Gamma is the power-law exponent applied to intensities in [0, 1];
	// values below 1 brighten midtones
	Gamma float64
}

// DefaultPolicy returns clip limit 3.0, an 8x8 tile grid and gamma 0.6
func DefaultPolicy() Policy {
	return Policy{
		ClipLimit: 3.0,
		TileRows:  8,
		TileCols:  8,
		Gamma:     0.6,
	}
}

// Validate rejects policies the enhancer cannot execute
func (p Policy) Validate() error {
	if p.ClipLimit < 0 {
		return fmt.Errorf("clip limit must be non-negative, got %g", p.ClipLimit)
	}
	if p.TileRows <= 0 || p.TileCols <= 0 {
		return fmt.Errorf("tile grid must be positive, got %dx%d", p.TileCols, p.TileRows)
	}
	if p.Gamma <= 0 {
		return fmt.Errorf("gamma must be positive, got %g", p.Gamma)
	}
	return nil
}
