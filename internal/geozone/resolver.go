package geozone

import (
	"math"

	"github.com/rotisserie/eris"
)

// Resolver errors.
var (
	ErrCoordinateRange = eris.New("geozone: coordinate out of range")
	ErrInvalidLayer    = eris.New("geozone: invalid layer")
)

// Layer is a named polygon collection with one zone code per polygon.
type Layer struct {
	Name  string
	Codes []string
	Zones *Collection
}

// Match identifies the zone that contains a point.
type Match struct {
	Layer      string
	LayerIndex int
	Polygon    int
	Code       string
}

// Resolver looks a point up in an ordered list of layers and reports the
// first layer with a containing polygon, e.g. cities before counties.
type Resolver struct {
	layers []*Layer
}

// NewResolver validates layers and returns a Resolver over them in order.
func NewResolver(layers ...*Layer) (*Resolver, error) {
	for i, l := range layers {
		if l == nil || l.Zones == nil {
			return nil, eris.Wrapf(ErrInvalidLayer, "geozone: layer %d has no zones", i)
		}
		if len(l.Codes) != l.Zones.Len() {
			return nil, eris.Wrapf(ErrInvalidLayer, "geozone: layer %q has %d codes for %d polygons",
				l.Name, len(l.Codes), l.Zones.Len())
		}
	}
	return &Resolver{layers: layers}, nil
}

// Layers returns the resolver's layers in priority order.
func (r *Resolver) Layers() []*Layer {
	return r.layers
}

// ValidateCoordinate rejects non-finite points and points outside
// longitude [-180, 180] or latitude [-90, 90].
func ValidateCoordinate(p Point) error {
	if math.IsNaN(p.Lon) || math.IsNaN(p.Lat) ||
		p.Lon < -180 || p.Lon > 180 || p.Lat < -90 || p.Lat > 90 {
		return ErrCoordinateRange
	}
	return nil
}

// Resolve returns the first match across layers. An out-of-range point is an
// error; a point no layer contains returns false with a nil error.
func (r *Resolver) Resolve(p Point) (Match, bool, error) {
	if err := ValidateCoordinate(p); err != nil {
		return Match{}, false, err
	}
	for i, l := range r.layers {
		if idx, ok := l.Zones.FindFirst(p); ok {
			return Match{
				Layer:      l.Name,
				LayerIndex: i,
				Polygon:    idx,
				Code:       l.Codes[idx],
			}, true, nil
		}
	}
	return Match{}, false, nil
}
