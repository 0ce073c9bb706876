package visualization

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prostateview/internal/models"
)

func uniformPlane(width, height int, value uint8) *models.Plane {
	p := models.NewPlane(width, height)
	for i := range p.Pix {
		p.Pix[i] = value
	}
	return p
}

func squareMask(width, height, x0, y0, x1, y1 int) *models.Plane {
	p := models.NewPlane(width, height)
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			p.Set(x, y, 1)
		}
	}
	return p
}

// countColour counts pixels of c inside rect
func countColour(img *image.RGBA, rect image.Rectangle, c color.RGBA) int {
	n := 0
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			if img.RGBAAt(x, y) == c {
				n++
			}
		}
	}
	return n
}

func testOptions() RenderOptions {
	opts := DefaultRenderOptions()
	opts.PanelSize = 64
	opts.Margin = 10
	return opts
}

func panelRect(opts RenderOptions, i int) image.Rectangle {
	top := opts.Margin + glyphHeight*figureTitleScale + opts.Margin + glyphHeight*panelTitleScale + opts.Margin/2
	left := opts.Margin + i*(opts.PanelSize+opts.Margin)
	return image.Rect(left, top, left+opts.PanelSize, top+opts.PanelSize)
}

func TestComposeLayout(t *testing.T) {
	opts := testOptions()
	r := NewRenderer(opts)

	o, err := Orient(uniformPlane(16, 16, 90), uniformPlane(16, 16, 0), squareMask(16, 16, 4, 4, 12, 12), true)
	require.NoError(t, err)

	img := r.Compose("Patient 10005", o)
	b := img.Bounds()
	assert.Equal(t, 3*opts.PanelSize+4*opts.Margin, b.Dx())
	assert.Greater(t, b.Dy(), opts.PanelSize)

	// background is white, panels carry the slice intensity
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, img.RGBAAt(0, b.Max.Y-1))
	p0 := panelRect(opts, 0)
	center := img.RGBAAt(p0.Min.X+opts.PanelSize/2, p0.Min.Y+opts.PanelSize/2)
	assert.Equal(t, uint8(90), center.R)
	assert.Equal(t, uint8(90), center.G)

	p1 := panelRect(opts, 1)
	assert.Equal(t, color.RGBA{0, 0, 0, 255}, img.RGBAAt(p1.Min.X+5, p1.Min.Y+5))
}

func TestContourOnlyOnThirdPanel(t *testing.T) {
	opts := testOptions()
	r := NewRenderer(opts)

	o, err := Orient(uniformPlane(16, 16, 90), uniformPlane(16, 16, 0), squareMask(16, 16, 4, 4, 12, 12), true)
	require.NoError(t, err)
	img := r.Compose("Patient 1", o)

	assert.Zero(t, countColour(img, panelRect(opts, 0), opts.ContourColor))
	assert.Zero(t, countColour(img, panelRect(opts, 1), opts.ContourColor))

	p2 := panelRect(opts, 2)
	assert.Greater(t, countColour(img, p2, opts.ContourColor), 0)

	// the centre of the square stays grey and the corners stay outside
	assert.NotEqual(t, opts.ContourColor, img.RGBAAt(p2.Min.X+opts.PanelSize/2, p2.Min.Y+opts.PanelSize/2))
	assert.NotEqual(t, opts.ContourColor, img.RGBAAt(p2.Min.X+1, p2.Min.Y+1))
}

func TestNoContourForEmptyMask(t *testing.T) {
	opts := testOptions()
	r := NewRenderer(opts)

	o, err := Orient(uniformPlane(8, 8, 10), uniformPlane(8, 8, 0), models.NewPlane(8, 8), true)
	require.NoError(t, err)
	img := r.Compose("Patient 2", o)
	assert.Zero(t, countColour(img, img.Bounds(), opts.ContourColor))
}

func TestOrientTransposesPortrait(t *testing.T) {
	original := models.NewPlane(3, 5)
	original.Set(2, 4, 9)
	enhanced := models.NewPlane(3, 5)
	enhanced.Set(1, 0, 7)
	mask := models.NewPlane(3, 5)
	mask.Set(0, 3, 1)

	o, err := Orient(original, enhanced, mask, true)
	require.NoError(t, err)
	assert.True(t, o.Transposed)
	for _, p := range []*models.Plane{o.Original, o.Enhanced, o.Mask} {
		assert.Equal(t, 5, p.Width)
		assert.Equal(t, 3, p.Height)
	}
	assert.Equal(t, uint8(9), o.Original.At(4, 2))
	assert.Equal(t, uint8(7), o.Enhanced.At(0, 1))
	assert.Equal(t, uint8(1), o.Mask.At(3, 0))
}

func TestOrientKeepsLandscapeAndRespectsSwitch(t *testing.T) {
	landscape := models.NewPlane(5, 3)
	o, err := Orient(landscape, landscape.Clone(), landscape.Clone(), true)
	require.NoError(t, err)
	assert.False(t, o.Transposed)
	assert.Same(t, landscape, o.Original)

	portrait := models.NewPlane(3, 5)
	o, err = Orient(portrait, portrait.Clone(), portrait.Clone(), false)
	require.NoError(t, err)
	assert.False(t, o.Transposed)
	assert.Equal(t, 3, o.Original.Width)
}

func TestOrientRejectsMismatch(t *testing.T) {
	_, err := Orient(models.NewPlane(3, 5), models.NewPlane(3, 5), models.NewPlane(5, 3), true)
	assert.ErrorIs(t, err, models.ErrShapeMismatch)
}

func TestParseHexColor(t *testing.T) {
	c, err := ParseHexColor("#ff8000")
	require.NoError(t, err)
	assert.Equal(t, color.RGBA{R: 255, G: 128, B: 0, A: 255}, c)

	_, err = ParseHexColor("red")
	assert.Error(t, err)
	_, err = ParseHexColor("#zzzzzz")
	assert.Error(t, err)
}

func TestSavePNG(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "10005_all_in_one.png")

	img := NewRenderer(testOptions()).Compose("Patient 10005", &Oriented{
		Original: uniformPlane(4, 4, 50),
		Enhanced: uniformPlane(4, 4, 0),
		Mask:     models.NewPlane(4, 4),
	})
	require.NoError(t, SavePNG(path, img))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	decoded, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, img.Bounds(), decoded.Bounds())
}
