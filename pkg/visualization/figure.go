// Package visualization lays out the per-subject comparison figure: the
// normalized slice, the enhanced region and a contour overlay of the mask.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// RenderOptions controls the figure geometry and colours
type RenderOptions struct {
	// PanelSize is the edge length of each square panel in pixels
	PanelSize int

	// Margin separates panels from each other and from the canvas border
	Margin int

	// ContourColor is used for the mask outline on the third panel
	ContourColor color.RGBA

	// ContourWidth is the outline thickness in pixels
	ContourWidth int

	// PanelTitles are drawn above the three panels
	PanelTitles [3]string
}

// DefaultRenderOptions returns the standard three-panel layout
func DefaultRenderOptions() RenderOptions {
	return RenderOptions{
		PanelSize:    400,
		Margin:       20,
		ContourColor: color.RGBA{R: 255, A: 255},
		ContourWidth: 2,
		PanelTitles: [3]string{
			"Original T2W Image",
			"Masked Prostate",
			"Prostate Contour Overlay",
		},
	}
}

// Renderer composes comparison figures
type Renderer struct {
	opts RenderOptions
}

// NewRenderer creates a renderer, falling back to defaults for unset sizes
func NewRenderer(opts RenderOptions) *Renderer {
	def := DefaultRenderOptions()
	if opts.PanelSize <= 0 {
		opts.PanelSize = def.PanelSize
	}
	if opts.Margin < 0 {
		opts.Margin = def.Margin
	}
	if opts.ContourWidth <= 0 {
		opts.ContourWidth = def.ContourWidth
	}
	if opts.ContourColor == (color.RGBA{}) {
		opts.ContourColor = def.ContourColor
	}
	if opts.PanelTitles == ([3]string{}) {
		opts.PanelTitles = def.PanelTitles
	}
	return &Renderer{opts: opts}
}

const (
	figureTitleScale = 3
	panelTitleScale  = 2
	glyphHeight      = 13
)

// Compose draws the three panels side by side under title on a white canvas
func (r *Renderer) Compose(title string, o *Oriented) *image.RGBA {
	ps, m := r.opts.PanelSize, r.opts.Margin
	figureTitleH := glyphHeight * figureTitleScale
	panelTitleH := glyphHeight * panelTitleScale

	width := 3*ps + 4*m
	height := m + figureTitleH + m + panelTitleH + m/2 + ps + m
	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)

	drawText(canvas, title, width/2, m, figureTitleScale)

	panelTop := m + figureTitleH + m + panelTitleH + m/2
	panels := []*image.Gray{o.Original.Gray(), o.Enhanced.Gray(), o.Original.Gray()}
	for i, src := range panels {
		left := m + i*(ps+m)
		rect := image.Rect(left, panelTop, left+ps, panelTop+ps)

		drawText(canvas, r.opts.PanelTitles[i], left+ps/2, panelTop-m/2-panelTitleH, panelTitleScale)
		draw.BiLinear.Scale(canvas, rect, src, src.Bounds(), draw.Src, nil)

		if i == 2 {
			r.drawContour(canvas, rect, o.Mask.Gray())
		}
	}

	return canvas
}

// drawContour outlines the region where the bilinearly resampled mask
// exceeds half of its range, i.e. the 0.5 level of a 0/1 mask
func (r *Renderer) drawContour(dst *image.RGBA, rect image.Rectangle, mask *image.Gray) {
	binary := image.NewGray(mask.Bounds())
	for i, v := range mask.Pix {
		if v != 0 {
			binary.Pix[i] = 255
		}
	}

	scaled := image.NewGray(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.BiLinear.Scale(scaled, scaled.Bounds(), binary, binary.Bounds(), draw.Src, nil)

	inside := func(x, y int) bool {
		return scaled.GrayAt(x, y).Y >= 128
	}

	half := r.opts.ContourWidth / 2
	w, h := scaled.Bounds().Dx(), scaled.Bounds().Dy()
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if !inside(x, y) || !onBoundary(x, y, w, h, inside) {
				continue
			}
			for dy := -half; dy < r.opts.ContourWidth-half; dy++ {
				for dx := -half; dx < r.opts.ContourWidth-half; dx++ {
					px, py := x+dx, y+dy
					if px < 0 || py < 0 || px >= w || py >= h {
						continue
					}
					dst.SetRGBA(rect.Min.X+px, rect.Min.Y+py, r.opts.ContourColor)
				}
			}
		}
	}
}

// onBoundary reports whether an inside pixel has a 4-neighbour outside.
// The image border is not a boundary, as with matplotlib contours.
func onBoundary(x, y, w, h int, inside func(x, y int) bool) bool {
	for _, d := range [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
		nx, ny := x+d[0], y+d[1]
		if nx < 0 || ny < 0 || nx >= w || ny >= h {
			continue
		}
		if !inside(nx, ny) {
			return true
		}
	}
	return false
}

// drawText renders text in black with basicfont, scaled up by an integer
// factor and centred horizontally on centerX
func drawText(dst *image.RGBA, text string, centerX, top, scale int) {
	if text == "" {
		return
	}
	face := basicfont.Face7x13
	textW := font.MeasureString(face, text).Ceil()

	textImg := image.NewRGBA(image.Rect(0, 0, textW, glyphHeight))
	drawer := &font.Drawer{
		Dst:  textImg,
		Src:  image.NewUniform(color.Black),
		Face: face,
		Dot:  fixed.Point26_6{Y: fixed.I(face.Ascent)},
	}
	drawer.DrawString(text)

	scaledW, scaledH := textW*scale, glyphHeight*scale
	left := centerX - scaledW/2
	target := image.Rect(left, top, left+scaledW, top+scaledH)
	draw.NearestNeighbor.Scale(dst, target, textImg, textImg.Bounds(), draw.Over, nil)
}

// ParseHexColor parses "#rrggbb" or "rrggbb"
func ParseHexColor(s string) (color.RGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid colour %q: expected 6 hex digits", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}

// SavePNG writes img to path, creating parent directories as needed
func SavePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := png.Encode(file, img); err != nil {
		file.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return file.Close()
}
