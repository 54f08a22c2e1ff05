package regions

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// Region is one clickable feature of the outline.
type Region struct {
	Name     string
	Geometry orb.Geometry
}

// Map is a parsed outline: the regions in file order and their combined bounds.
type Map struct {
	Regions []Region
	Bound   orb.Bound
}

// nameKeys are the feature properties that can carry a region's name,
// in order of preference.
var nameKeys = []string{"ST_NM", "NAME_1", "name"}

// FeatureName resolves the display name of a GeoJSON feature.
func FeatureName(props geojson.Properties) string {
	for _, k := range nameKeys {
		if s := props.MustString(k, ""); s != "" {
			return s
		}
	}
	return ""
}

// Parse reads a GeoJSON FeatureCollection. Features without an areal
// geometry or without a name are skipped.
func Parse(data []byte) (*Map, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal geojson: %w", err)
	}

	m := &Map{}
	first := true
	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			continue
		}
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			continue
		}
		name := FeatureName(f.Properties)
		if name == "" {
			continue
		}
		m.Regions = append(m.Regions, Region{Name: name, Geometry: f.Geometry})
		if first {
			m.Bound = f.Geometry.Bound()
			first = false
		} else {
			m.Bound = m.Bound.Union(f.Geometry.Bound())
		}
	}
	if len(m.Regions) == 0 {
		return nil, fmt.Errorf("geojson has no named polygon features")
	}
	return m, nil
}

// Locate returns the region containing the point, if any.
func (m *Map) Locate(lon, lat float64) (Region, bool) {
	pt := orb.Point{lon, lat}
	for _, r := range m.Regions {
		if !r.Geometry.Bound().Contains(pt) {
			continue
		}
		switch g := r.Geometry.(type) {
		case orb.Polygon:
			if planar.PolygonContains(g, pt) {
				return r, true
			}
		case orb.MultiPolygon:
			if planar.MultiPolygonContains(g, pt) {
				return r, true
			}
		}
	}
	return Region{}, false
}

// Names lists region names in file order.
func (m *Map) Names() []string {
	names := make([]string, len(m.Regions))
	for i, r := range m.Regions {
		names[i] = r.Name
	}
	return names
}
