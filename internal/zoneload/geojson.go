package zoneload

import (
	"encoding/json"
	"io"
	"math"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/zonematch/internal/geozone"
)

// LoadGeoJSON reads a FeatureCollection into a layer. Each Polygon or
// MultiPolygon feature becomes one zone. The code comes from codeProperty,
// or from the feature id when codeProperty is empty.
func LoadGeoJSON(r io.Reader, codeProperty, name string, opts ...geozone.Option) (*geozone.Layer, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "zoneload: read geojson")
	}

	var fc geojson.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, eris.Wrap(err, "zoneload: decode geojson")
	}

	log := zap.L().With(zap.String("component", "zoneload.geojson"), zap.String("layer", name))

	b := geozone.NewBuilder(opts...)
	var codes []string
	var skipped int

	for _, f := range fc.Features {
		if f == nil || f.Geometry == nil {
			skipped++
			continue
		}
		code, err := geozone.NormalizeCode(featureCode(f, codeProperty))
		if err != nil {
			skipped++
			continue
		}
		points, parts, ok := fromGeom(f.Geometry)
		if !ok {
			skipped++
			continue
		}

		b.Add(points, parts)
		codes = append(codes, code)
	}

	if skipped > 0 {
		log.Debug("skipped geojson features", zap.Int("skipped", skipped))
	}
	log.Info("geojson loaded", zap.Int("zones", len(codes)))

	return &geozone.Layer{Name: name, Codes: codes, Zones: b.Build()}, nil
}

// featureCode renders the code property as text. Integral numbers are
// written without a fractional part.
func featureCode(f *geojson.Feature, prop string) string {
	if prop == "" {
		return f.ID
	}
	switch v := f.Properties[prop].(type) {
	case string:
		return v
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1e15 {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case json.Number:
		return v.String()
	}
	return ""
}

// WriteGeoJSON writes layer as a FeatureCollection with one MultiPolygon
// per zone and the code under codeProperty.
func WriteGeoJSON(w io.Writer, layer *geozone.Layer, codeProperty string) error {
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, layer.Zones.Len())}
	for i := range layer.Zones.Len() {
		points, parts := layer.Zones.Polygon(i)
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         layer.Codes[i],
			Geometry:   toMultiPolygon(points, parts),
			Properties: map[string]interface{}{codeProperty: layer.Codes[i]},
		})
	}

	data, err := json.Marshal(&fc)
	if err != nil {
		return eris.Wrap(err, "zoneload: encode geojson")
	}
	if _, err := w.Write(data); err != nil {
		return eris.Wrap(err, "zoneload: write geojson")
	}
	return nil
}
