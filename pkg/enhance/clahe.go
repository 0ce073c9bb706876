package enhance

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"prostateview/internal/models"
)

const histSize = 256

// Equalizer performs contrast-limited adaptive histogram equalization on an
// 8-bit plane and returns a new plane of the same shape.
type Equalizer interface {
	Equalize(src *models.Plane) (*models.Plane, error)
}

// EqualizerFactory builds an equalizer for a policy
type EqualizerFactory func(policy Policy) (Equalizer, error)

var (
	backendsMu sync.RWMutex
	backends   = map[string]EqualizerFactory{
		"native": func(policy Policy) (Equalizer, error) {
			return NewNativeCLAHE(policy)
		},
	}
)

// RegisterBackend makes an equalizer implementation selectable by name
func RegisterBackend(name string, factory EqualizerFactory) {
	backendsMu.Lock()
	defer backendsMu.Unlock()
	backends[name] = factory
}

// Backends lists the registered equalizer names
func Backends() []string {
	backendsMu.RLock()
	defer backendsMu.RUnlock()
	names := make([]string, 0, len(backends))
	for name := range backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewEqualizer returns the named backend configured with policy
func NewEqualizer(backend string, policy Policy) (Equalizer, error) {
	backendsMu.RLock()
	factory, ok := backends[backend]
	backendsMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown equalizer backend %q (available: %v)", backend, Backends())
	}
	return factory(policy)
}

// NativeCLAHE is a pure Go implementation that follows OpenCV's CLAHE:
// the image is padded by reflection to a multiple of the tile grid, each
// tile gets a clipped histogram whose excess is redistributed evenly, and
// output pixels blend the four nearest tile lookup tables bilinearly.
type NativeCLAHE struct {
	clipLimit float64
	tileRows  int
	tileCols  int
}

// NewNativeCLAHE creates the pure Go equalizer
func NewNativeCLAHE(policy Policy) (*NativeCLAHE, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &NativeCLAHE{
		clipLimit: policy.ClipLimit,
		tileRows:  policy.TileRows,
		tileCols:  policy.TileCols,
	}, nil
}

// Equalize applies CLAHE to src
func (c *NativeCLAHE) Equalize(src *models.Plane) (*models.Plane, error) {
	width, height := src.Width, src.Height
	if width == 0 || height == 0 {
		return src.Clone(), nil
	}

	paddedW, paddedH := width, height
	if r := width % c.tileCols; r != 0 {
		paddedW += c.tileCols - r
	}
	if r := height % c.tileRows; r != 0 {
		paddedH += c.tileRows - r
	}
	tileW := paddedW / c.tileCols
	tileH := paddedH / c.tileRows
	tileArea := tileW * tileH

	clip := 0
	if c.clipLimit > 0 {
		clip = int(c.clipLimit * float64(tileArea) / histSize)
		if clip < 1 {
			clip = 1
		}
	}
	lutScale := float64(histSize-1) / float64(tileArea)

	// Per-tile lookup tables
	luts := make([][histSize]uint8, c.tileRows*c.tileCols)
	for ty := 0; ty < c.tileRows; ty++ {
		for tx := 0; tx < c.tileCols; tx++ {
			var hist [histSize]int
			for y := ty * tileH; y < (ty+1)*tileH; y++ {
				row := reflect101(y, height) * width
				for x := tx * tileW; x < (tx+1)*tileW; x++ {
					hist[src.Pix[row+reflect101(x, width)]]++
				}
			}
			if clip > 0 {
				clipHistogram(&hist, clip)
			}
			luts[ty*c.tileCols+tx] = cumulativeLUT(&hist, lutScale)
		}
	}

	// Bilinear interpolation between the four nearest tiles
	dst := models.NewPlane(width, height)
	invTW := 1.0 / float64(tileW)
	invTH := 1.0 / float64(tileH)
	for y := 0; y < height; y++ {
		tyf := float64(y)*invTH - 0.5
		ty1 := int(math.Floor(tyf))
		ty2 := ty1 + 1
		ya := tyf - float64(ty1)
		ya1 := 1 - ya
		ty1 = max(ty1, 0)
		ty2 = min(ty2, c.tileRows-1)

		for x := 0; x < width; x++ {
			txf := float64(x)*invTW - 0.5
			tx1 := int(math.Floor(txf))
			tx2 := tx1 + 1
			xa := txf - float64(tx1)
			xa1 := 1 - xa
			tx1 = max(tx1, 0)
			tx2 = min(tx2, c.tileCols-1)

			v := src.Pix[y*width+x]
			top := float64(luts[ty1*c.tileCols+tx1][v])*xa1 + float64(luts[ty1*c.tileCols+tx2][v])*xa
			bottom := float64(luts[ty2*c.tileCols+tx1][v])*xa1 + float64(luts[ty2*c.tileCols+tx2][v])*xa
			dst.Pix[y*width+x] = roundUint8(top*ya1 + bottom*ya)
		}
	}

	return dst, nil
}

// clipHistogram caps every bin at limit and spreads the excess over all
// bins, handing any remainder out at a regular stride
func clipHistogram(hist *[histSize]int, limit int) {
	clipped := 0
	for i := range hist {
		if hist[i] > limit {
			clipped += hist[i] - limit
			hist[i] = limit
		}
	}

	batch := clipped / histSize
	residual := clipped - batch*histSize
	for i := range hist {
		hist[i] += batch
	}

	if residual != 0 {
		step := max(histSize/residual, 1)
		for i := 0; i < histSize && residual > 0; i += step {
			hist[i]++
			residual--
		}
	}
}

// cumulativeLUT turns a histogram into an equalization lookup table
func cumulativeLUT(hist *[histSize]int, scale float64) [histSize]uint8 {
	var lut [histSize]uint8
	sum := 0
	for i := range hist {
		sum += hist[i]
		lut[i] = roundUint8(float64(sum) * scale)
	}
	return lut
}

// reflect101 maps an out-of-range coordinate back into [0, n) by mirroring
// around the edge pixels without repeating them (dcb|abcd|cba)
func reflect101(i, n int) int {
	if n == 1 {
		return 0
	}
	for i < 0 || i >= n {
		if i < 0 {
			i = -i
		}
		if i >= n {
			i = 2*n - 2 - i
		}
	}
	return i
}

func roundUint8(v float64) uint8 {
	r := math.RoundToEven(v)
	if r <= 0 {
		return 0
	}
	if r >= 255 {
		return 255
	}
	return uint8(r)
}
