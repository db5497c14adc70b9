// Package zoneload builds geozone layers from shapefiles, GeoJSON, and
// PostGIS tables.
package zoneload

import (
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/zonematch/internal/geozone"
)

// shapeReader is the read API shared by *shp.Reader and *shp.ZipReader.
type shapeReader interface {
	Next() bool
	Shape() (int, shp.Shape)
	Attribute(n int) string
	Fields() []shp.Field
	Err() error
	Close() error
}

func openShapefile(path string) (shapeReader, error) {
	if strings.EqualFold(filepath.Ext(path), ".zip") {
		return shp.OpenZip(path)
	}
	return shp.Open(path)
}

// LoadShapefile reads polygon records from a .shp file (or a .zip holding a
// single shapefile) into a layer. codeField names the DBF attribute holding
// the zone code, matched case-insensitively. Records with a missing or
// invalid code or a non-polygon shape are skipped.
func LoadShapefile(path, codeField, name string, opts ...geozone.Option) (*geozone.Layer, error) {
	reader, err := openShapefile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "zoneload: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	codeIdx := fieldIndex(reader, codeField)
	if codeIdx < 0 {
		return nil, eris.Errorf("zoneload: field %q not found in %s", codeField, path)
	}

	log := zap.L().With(zap.String("component", "zoneload.shapefile"), zap.String("layer", name))

	b := geozone.NewBuilder(opts...)
	var codes []string
	var skipped int

	for reader.Next() {
		_, shape := reader.Shape()

		code, err := geozone.NormalizeCode(strings.TrimRight(reader.Attribute(codeIdx), "\x00"))
		if err != nil {
			skipped++
			continue
		}
		box, points, parts, ok := fromShape(shape)
		if !ok {
			skipped++
			continue
		}

		b.AddWithBBox(box, points, parts)
		codes = append(codes, code)
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "zoneload: read shapefile %s", path)
	}

	if skipped > 0 {
		log.Debug("skipped shapefile records", zap.Int("skipped", skipped))
	}
	log.Info("shapefile loaded", zap.String("path", path), zap.Int("zones", len(codes)))

	return &geozone.Layer{Name: name, Codes: codes, Zones: b.Build()}, nil
}

// fieldIndex returns the index of the named DBF field, or -1.
func fieldIndex(reader shapeReader, name string) int {
	for i, f := range reader.Fields() {
		if strings.EqualFold(strings.TrimSpace(f.String()), name) {
			return i
		}
	}
	return -1
}
