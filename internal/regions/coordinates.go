package regions

import (
	"sort"

	"github.com/lox/ecocast/internal/models"
)

// Lookup coordinates for each clickable state. A region that is drawn on the
// map but missing here has no weather lookup.
var stateCoordinates = map[string]models.StateCoordinate{
	"Karnataka":   {Name: "Karnataka", Lat: 12.9716, Lon: 77.5946},
	"Maharashtra": {Name: "Maharashtra", Lat: 19.076, Lon: 72.8777},
	"Tamil Nadu":  {Name: "Tamil Nadu", Lat: 13.0827, Lon: 80.2707},
	"West Bengal": {Name: "West Bengal", Lat: 22.5726, Lon: 88.3639},
	"Delhi":       {Name: "Delhi", Lat: 28.6139, Lon: 77.209},
}

// Lookup returns the fixed coordinates for a state name.
func Lookup(name string) (models.StateCoordinate, bool) {
	c, ok := stateCoordinates[name]
	return c, ok
}

// Coordinates returns the whole table ordered by name.
func Coordinates() []models.StateCoordinate {
	out := make([]models.StateCoordinate, 0, len(stateCoordinates))
	for _, c := range stateCoordinates {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
