//go:build opencv

package enhance

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"prostateview/internal/models"
)

func init() {
	RegisterBackend("opencv", func(policy Policy) (Equalizer, error) {
		return NewOpenCVCLAHE(policy)
	})
}

// OpenCVCLAHE delegates equalization to OpenCV through gocv
type OpenCVCLAHE struct {
	clipLimit float64
	tileGrid  image.Point
}

// NewOpenCVCLAHE creates the OpenCV-backed equalizer
func NewOpenCVCLAHE(policy Policy) (*OpenCVCLAHE, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &OpenCVCLAHE{
		clipLimit: policy.ClipLimit,
		tileGrid:  image.Point{X: policy.TileCols, Y: policy.TileRows},
	}, nil
}

// Equalize applies cv::CLAHE to src
func (c *OpenCVCLAHE) Equalize(src *models.Plane) (*models.Plane, error) {
	mat, err := gocv.NewMatFromBytes(src.Height, src.Width, gocv.MatTypeCV8U, src.Pix)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap plane in Mat: %w", err)
	}
	defer mat.Close()

	clahe := gocv.NewCLAHEWithParams(c.clipLimit, c.tileGrid)
	defer clahe.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	clahe.Apply(mat, &dst)

	if dst.Rows() != src.Height || dst.Cols() != src.Width {
		return nil, models.NewShapeMismatch("opencv clahe", src.Shape(), models.Shape{Height: dst.Rows(), Width: dst.Cols(), Planar: true})
	}

	out := models.NewPlane(src.Width, src.Height)
	copy(out.Pix, dst.ToBytes())
	return out, nil
}
