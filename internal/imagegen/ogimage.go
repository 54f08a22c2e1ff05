package imagegen

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font/basicfont"

	"github.com/lox/ecocast/internal/forecast"
)

// OGWidth and OGHeight are the standard Open Graph image dimensions.
const (
	OGWidth  = 1200
	OGHeight = 630
)

// GenerateOGImage renders the social preview card: a blue gradient with
// the forecast averages in large text.
func GenerateOGImage(avg forecast.Averages) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, OGWidth, OGHeight))

	for y := 0; y < OGHeight; y++ {
		progress := float64(y) / float64(OGHeight)
		c := color.RGBA{
			R: uint8(14 + progress*20),
			G: uint8(60 + progress*60),
			B: uint8(120 + progress*80),
			A: 255,
		}
		for x := 0; x < OGWidth; x++ {
			img.SetRGBA(x, y, c)
		}
	}

	white := color.RGBA{255, 255, 255, 255}
	light := color.RGBA{200, 220, 255, 255}

	drawScaledText(img, "EcoCast", 60, 60, 6, white)
	drawScaledText(img, fmt.Sprintf("%.1f C  avg temperature", avg.Temperature), 60, 260, 4, white)
	drawScaledText(img, fmt.Sprintf("%.1f%% rain  %.1f%% humidity", avg.RainChance, avg.Humidity*100), 60, 340, 3, light)
	drawScaledText(img, fmt.Sprintf("%.0f mb  |  %d day forecast", avg.Pressure, avg.Count), 60, 400, 3, light)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode OG image: %w", err)
	}
	return buf.Bytes(), nil
}

// drawScaledText renders text with the bitmap face into a scratch image and
// scales it onto dst with its top-left corner at (x, y).
func drawScaledText(dst *image.RGBA, text string, x, y, scale int, col color.Color) {
	face := basicfont.Face7x13
	w := textWidth(face, text)
	h := face.Height
	scratch := image.NewRGBA(image.Rect(0, 0, w, h))
	drawText(scratch, text, 0, face.Ascent, col, face)

	target := image.Rect(x, y, x+w*scale, y+h*scale)
	xdraw.NearestNeighbor.Scale(dst, target, scratch, scratch.Bounds(), xdraw.Over, nil)
}
