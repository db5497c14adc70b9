package zoneload

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSource_Kind(t *testing.T) {
	tests := []struct {
		src  Source
		want string
	}{
		{Source{Path: "tl_2024_us_county.shp"}, "shapefile"},
		{Source{Path: "tl_2024_us_county.ZIP"}, "shapefile"},
		{Source{Path: "cities.geojson"}, "geojson"},
		{Source{Path: "cities.json"}, "geojson"},
		{Source{Table: "geo.counties"}, "postgis"},
		{Source{Table: "geo.counties", Path: "x.shp"}, ""},
		{Source{Path: "cities.kml"}, ""},
		{Source{}, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.src.Kind(), "%+v", tt.src)
	}
}

func TestLoadAll_InOrder(t *testing.T) {
	dir := t.TempDir()
	shpPath := writeShapefile(t, dir, fixtureZones())
	gjPath := filepath.Join(dir, "cities.geojson")
	require.NoError(t, os.WriteFile(gjPath, []byte(fixtureGeoJSON), 0o644))

	layers, err := LoadAll(context.Background(), []Source{
		{Name: "cities", Path: gjPath, CodeField: "zone"},
		{Name: "tracts", Path: shpPath, CodeField: "GEOID"},
	}, nil)
	require.NoError(t, err)
	require.Len(t, layers, 2)
	assert.Equal(t, "cities", layers[0].Name)
	assert.Equal(t, "tracts", layers[1].Name)
	assert.Equal(t, 2, layers[1].Zones.Len())
}

func TestLoad_Errors(t *testing.T) {
	ctx := context.Background()

	_, err := Load(ctx, Source{Path: "x.shp"}, nil)
	assert.ErrorContains(t, err, "no name")

	_, err = Load(ctx, Source{Name: "x", Path: "x.kml"}, nil)
	assert.ErrorContains(t, err, "no usable path or table")

	_, err = Load(ctx, Source{Name: "x", Table: "zones"}, nil)
	assert.ErrorContains(t, err, "needs a database connection")

	_, err = Load(ctx, Source{Name: "x", Path: filepath.Join(t.TempDir(), "missing.geojson")}, nil)
	assert.ErrorContains(t, err, "open")
}

func TestLoad_PostGISDefaults(t *testing.T) {
	mock := newMockPool(t)
	mock.ExpectQuery(`SELECT "code"::text, ST_AsEWKB\("geom"\) FROM "zones"`).
		WillReturnRows(mock.NewRows([]string{"code", "geom"}))

	layer, err := Load(context.Background(), Source{Name: "z", Table: "zones"}, mock)
	require.NoError(t, err)
	assert.Zero(t, layer.Zones.Len())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNeedsDatabase(t *testing.T) {
	assert.False(t, NeedsDatabase([]Source{{Path: "a.shp"}}))
	assert.True(t, NeedsDatabase([]Source{{Path: "a.shp"}, {Table: "zones"}}))
}
