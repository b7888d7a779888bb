// Package render draws the box under review onto its image.
package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/medveriground/bbox-annotator/pkg/types"
)

var (
	// Original is the outline color of an unedited proposal
	Original = color.NRGBA{0, 255, 0, 255}
	// Adjusted is the outline color once the box has been moved or resized
	Adjusted = color.NRGBA{255, 165, 0, 255}

	white  = color.NRGBA{255, 255, 255, 255}
	banner = color.NRGBA{0, 0, 0, 170}
)

const (
	// Stroke is the outline width in pixels
	Stroke = 3
	// HandleRadius is the radius of the corner handles
	HandleRadius = 8
)

// Options controls an overlay
type Options struct {
	Adjusted bool
	// MaxWidth and MaxHeight bound the output, 0 keeps the source size
	MaxWidth  int
	MaxHeight int
}

// Overlay draws the box onto a copy of img. A sentinel draws a text banner
// instead; an absent box leaves the image unmarked.
func Overlay(img image.Image, box types.PixelGrounding, opts Options) *image.NRGBA {
	dst := imaging.Clone(img)

	switch box.Kind {
	case types.Boxed:
		c := Original
		if opts.Adjusted {
			c = Adjusted
		}
		drawBox(dst, box.Box, c)
	case types.Sentinel:
		drawBanner(dst, types.NoVisibleGrounding)
	}

	if opts.MaxWidth > 0 && opts.MaxHeight > 0 {
		b := dst.Bounds()
		if b.Dx() > opts.MaxWidth || b.Dy() > opts.MaxHeight {
			dst = imaging.Fit(dst, opts.MaxWidth, opts.MaxHeight, imaging.Lanczos)
		}
	}
	return dst
}

// Encode writes img as png, jpg or webp
func Encode(w io.Writer, img image.Image, format string, quality int) error {
	if quality <= 0 {
		quality = 90
	}
	switch strings.ToLower(format) {
	case "webp":
		return webp.Encode(w, img, &webp.Options{Quality: float32(quality)})
	case "jpg", "jpeg":
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(quality))
	case "png", "":
		return imaging.Encode(w, img, imaging.PNG)
	default:
		return fmt.Errorf("unsupported image format %q", format)
	}
}

// ContentType maps an Encode format to its MIME type
func ContentType(format string) string {
	switch strings.ToLower(format) {
	case "webp":
		return "image/webp"
	case "jpg", "jpeg":
		return "image/jpeg"
	default:
		return "image/png"
	}
}

func drawBox(img *image.NRGBA, p types.PixelBox, c color.NRGBA) {
	x0, y0, x1, y1 := p.X1, p.Y1, p.X2, p.Y2
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}

	for s := 0; s < Stroke; s++ {
		drawHLine(img, y0+s, x0, x1+1, c)
		drawHLine(img, y1-s, x0, x1+1, c)
		drawVLine(img, x0+s, y0, y1+1, c)
		drawVLine(img, x1-s, y0, y1+1, c)
	}

	for _, pt := range [][2]int{{x0, y0}, {x1, y0}, {x0, y1}, {x1, y1}} {
		drawHandle(img, pt[0], pt[1], c)
	}
}

func drawHandle(img *image.NRGBA, cx, cy int, c color.NRGBA) {
	r := HandleRadius
	inner := (r - 1) * (r - 1)
	outer := r * r
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			d := dx*dx + dy*dy
			switch {
			case d <= inner:
				setPixel(img, cx+dx, cy+dy, c)
			case d <= outer:
				setPixel(img, cx+dx, cy+dy, white)
			}
		}
	}
}

func drawBanner(img *image.NRGBA, text string) {
	face := basicfont.Face7x13
	b := img.Bounds()
	width := font.MeasureString(face, text).Ceil() + 16
	height := face.Height + 10

	rect := image.Rect(b.Min.X, b.Min.Y, b.Min.X+width, b.Min.Y+height).Intersect(b)
	draw.Draw(img, rect, image.NewUniform(banner), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(white),
		Face: face,
		Dot:  fixed.P(b.Min.X+8, b.Min.Y+5+face.Ascent),
	}
	d.DrawString(text)
}

func setPixel(img *image.NRGBA, x, y int, c color.NRGBA) {
	if !(image.Point{x, y}).In(img.Bounds()) {
		return
	}
	img.SetNRGBA(x, y, c)
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	for x := x0; x < x1; x++ {
		setPixel(img, x, y, c)
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	for y := y0; y < y1; y++ {
		setPixel(img, x, y, c)
	}
}
