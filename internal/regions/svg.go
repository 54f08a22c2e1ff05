package regions

import (
	"fmt"
	"math"
	"strings"

	"github.com/paulmach/orb"
)

// Shape is a region projected into SVG user space.
type Shape struct {
	Name   string
	Path   string
	Mapped bool // has fixed coordinates for a weather lookup
}

// Projection maps lon/lat into a width x height viewBox, preserving aspect
// ratio and centring the outline.
type Projection struct {
	Width, Height float64
	bound         orb.Bound
	scale         float64
	offX, offY    float64
}

func NewProjection(b orb.Bound, width, height, padding float64) Projection {
	dLon := b.Max[0] - b.Min[0]
	dLat := b.Max[1] - b.Min[1]
	if dLon <= 0 {
		dLon = 1
	}
	if dLat <= 0 {
		dLat = 1
	}
	innerW, innerH := width-2*padding, height-2*padding
	scale := math.Min(innerW/dLon, innerH/dLat)
	return Projection{
		Width:  width,
		Height: height,
		bound:  b,
		scale:  scale,
		offX:   padding + (innerW-dLon*scale)/2,
		offY:   padding + (innerH-dLat*scale)/2,
	}
}

// Point projects a lon/lat pair.
func (p Projection) Point(lon, lat float64) (x, y float64) {
	x = p.offX + (lon-p.bound.Min[0])*p.scale
	y = p.offY + (p.bound.Max[1]-lat)*p.scale
	return x, y
}

// Invert maps a point in the viewBox back to lon/lat.
func (p Projection) Invert(x, y float64) (lon, lat float64) {
	lon = p.bound.Min[0] + (x-p.offX)/p.scale
	lat = p.bound.Max[1] - (y-p.offY)/p.scale
	return lon, lat
}

// Shapes projects every region of the map.
func (m *Map) Shapes(p Projection) []Shape {
	shapes := make([]Shape, 0, len(m.Regions))
	for _, r := range m.Regions {
		_, mapped := Lookup(r.Name)
		shapes = append(shapes, Shape{
			Name:   r.Name,
			Path:   p.path(r.Geometry),
			Mapped: mapped,
		})
	}
	return shapes
}

func (p Projection) path(g orb.Geometry) string {
	var sb strings.Builder
	switch g := g.(type) {
	case orb.Polygon:
		p.writePolygon(&sb, g)
	case orb.MultiPolygon:
		for _, poly := range g {
			p.writePolygon(&sb, poly)
		}
	}
	return strings.TrimSpace(sb.String())
}

func (p Projection) writePolygon(sb *strings.Builder, poly orb.Polygon) {
	for _, ring := range poly {
		for i, pt := range ring {
			x, y := p.Point(pt[0], pt[1])
			cmd := "L"
			if i == 0 {
				cmd = "M"
			}
			fmt.Fprintf(sb, "%s%.1f %.1f ", cmd, x, y)
		}
		sb.WriteString("Z ")
	}
}
