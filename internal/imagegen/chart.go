package imagegen

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/lox/ecocast/internal/forecast"
)

const (
	ChartWidth  = 1000
	ChartHeight = 320

	marginLeft   = 56
	marginRight  = 20
	marginTop    = 36
	marginBottom = 40
	gridLines    = 5
)

var (
	colBackground = color.RGBA{255, 255, 255, 255}
	colGrid       = color.RGBA{226, 232, 240, 255}
	colAxisText   = color.RGBA{100, 116, 139, 255}
	colTitle      = color.RGBA{30, 41, 59, 255}
)

// ChartStyle colours a line chart.
type ChartStyle struct {
	Line color.RGBA
	Fill color.RGBA
}

var (
	TemperatureStyle = ChartStyle{Line: color.RGBA{249, 115, 22, 255}, Fill: color.RGBA{249, 115, 22, 40}}
	RainStyle        = ChartStyle{Line: color.RGBA{37, 99, 235, 255}, Fill: color.RGBA{37, 99, 235, 40}}
)

// RenderLineChart draws a series as a PNG line chart with a filled area,
// horizontal grid lines, y-axis values and date labels.
func RenderLineChart(s forecast.Series, style ChartStyle) ([]byte, error) {
	if len(s.Values) == 0 {
		return nil, errors.New("empty series")
	}

	img := image.NewRGBA(image.Rect(0, 0, ChartWidth, ChartHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(colBackground), image.Point{}, draw.Src)

	lo, hi := niceRange(s.Values)
	plotW := float64(ChartWidth - marginLeft - marginRight)
	plotH := float64(ChartHeight - marginTop - marginBottom)

	xAt := func(i int) float64 {
		if len(s.Values) == 1 {
			return marginLeft + plotW/2
		}
		return marginLeft + plotW*float64(i)/float64(len(s.Values)-1)
	}
	yAt := func(v float64) float64 {
		return marginTop + plotH*(1-(v-lo)/(hi-lo))
	}

	face := basicfont.Face7x13
	for i := 0; i <= gridLines; i++ {
		v := lo + (hi-lo)*float64(i)/gridLines
		y := int(math.Round(yAt(v)))
		draw.Draw(img, image.Rect(marginLeft, y, ChartWidth-marginRight, y+1), image.NewUniform(colGrid), image.Point{}, draw.Src)
		label := fmt.Sprintf("%.0f", v)
		drawText(img, label, marginLeft-8-textWidth(face, label), y+4, colAxisText, face)
	}

	pts := make([][2]float64, len(s.Values))
	for i, v := range s.Values {
		pts[i] = [2]float64{xAt(i), yAt(v)}
	}

	baseline := yAt(lo)
	fill := vector.NewRasterizer(ChartWidth, ChartHeight)
	fill.DrawOp = draw.Over
	fill.MoveTo(float32(pts[0][0]), float32(baseline))
	for _, p := range pts {
		fill.LineTo(float32(p[0]), float32(p[1]))
	}
	fill.LineTo(float32(pts[len(pts)-1][0]), float32(baseline))
	fill.ClosePath()
	fill.Draw(img, img.Bounds(), image.NewUniform(style.Fill), image.Point{})

	line := vector.NewRasterizer(ChartWidth, ChartHeight)
	line.DrawOp = draw.Over
	for i := 1; i < len(pts); i++ {
		strokeSegment(line, pts[i-1], pts[i], 1.5)
	}
	for _, p := range pts {
		circle(line, p, 3.5)
	}
	line.Draw(img, img.Bounds(), image.NewUniform(style.Line), image.Point{})

	step := labelStep(len(s.Labels), face)
	for i, label := range s.Labels {
		if i%step != 0 {
			continue
		}
		x := int(xAt(i)) - textWidth(face, label)/2
		drawText(img, label, x, ChartHeight-marginBottom+20, colAxisText, face)
	}

	// basicfont has no degree sign.
	title := s.Name
	if unit := strings.ReplaceAll(s.Unit, "°", ""); unit != "" {
		title += " (" + unit + ")"
	}
	drawText(img, title, marginLeft, 22, colTitle, face)

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode chart: %w", err)
	}
	return buf.Bytes(), nil
}

// niceRange pads the data range and rounds it outward to whole numbers.
func niceRange(values []float64) (lo, hi float64) {
	lo, hi = values[0], values[0]
	for _, v := range values {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	pad := (hi - lo) * 0.1
	if pad == 0 {
		pad = 1
	}
	return math.Floor(lo - pad), math.Ceil(hi + pad)
}

// labelStep thins x labels so they do not overlap.
func labelStep(n int, face font.Face) int {
	if n == 0 {
		return 1
	}
	slot := textWidth(face, "Jan 00") + 12
	fit := (ChartWidth - marginLeft - marginRight) / slot
	if fit <= 0 || n <= fit {
		return 1
	}
	return int(math.Ceil(float64(n) / float64(fit)))
}

func strokeSegment(z *vector.Rasterizer, a, b [2]float64, half float64) {
	dx, dy := b[0]-a[0], b[1]-a[1]
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	nx, ny := -dy/length*half, dx/length*half
	z.MoveTo(float32(a[0]+nx), float32(a[1]+ny))
	z.LineTo(float32(b[0]+nx), float32(b[1]+ny))
	z.LineTo(float32(b[0]-nx), float32(b[1]-ny))
	z.LineTo(float32(a[0]-nx), float32(a[1]-ny))
	z.ClosePath()
}

func circle(z *vector.Rasterizer, c [2]float64, r float64) {
	const segments = 16
	for i := range segments {
		theta := 2 * math.Pi * float64(i) / segments
		x, y := float32(c[0]+r*math.Cos(theta)), float32(c[1]+r*math.Sin(theta))
		if i == 0 {
			z.MoveTo(x, y)
		} else {
			z.LineTo(x, y)
		}
	}
	z.ClosePath()
}

func drawText(img draw.Image, text string, x, y int, col color.Color, face font.Face) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

func textWidth(face font.Face, text string) int {
	return font.MeasureString(face, text).Round()
}
