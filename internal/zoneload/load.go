package zoneload

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/zonematch/internal/db"
	"github.com/sells-group/zonematch/internal/geozone"
)

// Default column names for PostGIS sources.
const (
	DefaultCodeColumn = "code"
	DefaultGeomColumn = "geom"
)

// Source describes where one layer's zones come from. Exactly one of Path or
// Table is set.
type Source struct {
	Name       string `yaml:"name" mapstructure:"name" json:"name"`
	Path       string `yaml:"path" mapstructure:"path" json:"path,omitempty"`
	CodeField  string `yaml:"code_field" mapstructure:"code_field" json:"code_field,omitempty"`
	Table      string `yaml:"table" mapstructure:"table" json:"table,omitempty"`
	GeomColumn string `yaml:"geom_column" mapstructure:"geom_column" json:"geom_column,omitempty"`
}

// Kind reports the loader used for s: "shapefile", "geojson", "postgis", or
// "" if s cannot be loaded.
func (s Source) Kind() string {
	if s.Table != "" {
		if s.Path != "" {
			return ""
		}
		return "postgis"
	}
	switch strings.ToLower(filepath.Ext(s.Path)) {
	case ".shp", ".zip":
		return "shapefile"
	case ".geojson", ".json":
		return "geojson"
	}
	return ""
}

// Load builds one layer from src. pool is only used for PostGIS sources and
// may be nil otherwise.
func Load(ctx context.Context, src Source, pool db.Pool, opts ...geozone.Option) (*geozone.Layer, error) {
	if src.Name == "" {
		return nil, eris.New("zoneload: source has no name")
	}

	switch src.Kind() {
	case "shapefile":
		return LoadShapefile(src.Path, src.CodeField, src.Name, opts...)

	case "geojson":
		f, err := os.Open(src.Path)
		if err != nil {
			return nil, eris.Wrapf(err, "zoneload: open %s", src.Path)
		}
		defer f.Close() //nolint:errcheck
		return LoadGeoJSON(f, src.CodeField, src.Name, opts...)

	case "postgis":
		if pool == nil {
			return nil, eris.Errorf("zoneload: layer %q needs a database connection", src.Name)
		}
		codeCol := src.CodeField
		if codeCol == "" {
			codeCol = DefaultCodeColumn
		}
		geomCol := src.GeomColumn
		if geomCol == "" {
			geomCol = DefaultGeomColumn
		}
		return LoadPostGIS(ctx, pool, src.Table, codeCol, geomCol, src.Name, opts...)
	}

	return nil, eris.Errorf("zoneload: layer %q has no usable path or table", src.Name)
}

// LoadAll loads every source in order and returns the layers in the same
// order, ready for geozone.NewResolver.
func LoadAll(ctx context.Context, sources []Source, pool db.Pool, opts ...geozone.Option) ([]*geozone.Layer, error) {
	layers := make([]*geozone.Layer, 0, len(sources))
	for _, src := range sources {
		layer, err := Load(ctx, src, pool, opts...)
		if err != nil {
			return nil, eris.Wrapf(err, "zoneload: load layer %q", src.Name)
		}
		layers = append(layers, layer)
	}
	return layers, nil
}

// NeedsDatabase reports whether any source reads from PostGIS.
func NeedsDatabase(sources []Source) bool {
	for _, s := range sources {
		if s.Kind() == "postgis" {
			return true
		}
	}
	return false
}
