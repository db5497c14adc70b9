//go:build !integration

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/zonematch/internal/config"
	"github.com/sells-group/zonematch/internal/zoneload"
)

const testZonesGeoJSON = `{"type":"FeatureCollection","features":[
  {"type":"Feature","properties":{"zone":"42"},"geometry":{"type":"Polygon","coordinates":[[[0,0],[0,10],[10,10],[10,0],[0,0]]]}},
  {"type":"Feature","properties":{"zone":"B7"},"geometry":{"type":"Polygon","coordinates":[[[20,20],[20,30],[30,30],[30,20],[20,20]]]}}
]}`

// withTestConfig installs a config with one GeoJSON layer and a SQLite
// store under a temp dir, restoring the previous config afterwards.
func withTestConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	dir := t.TempDir()

	zonesPath := filepath.Join(dir, "zones.geojson")
	require.NoError(t, os.WriteFile(zonesPath, []byte(testZonesGeoJSON), 0o644))

	c := &config.Config{}
	c.Zones.Layers = []zoneload.Source{{Name: "districts", Path: zonesPath, CodeField: "zone"}}
	c.Match.ChunkSize = 100
	c.Match.Epsilon = 1e-12
	c.Store.Driver = "sqlite"
	c.Store.DatabaseURL = filepath.Join(dir, "runs.db")
	c.Store.MaxConns = 10
	c.Store.MinConns = 2

	prev := cfg
	cfg = c
	t.Cleanup(func() { cfg = prev })
	return c, dir
}

func writeInput(t *testing.T, dir, content string) string {
	t.Helper()
	p := filepath.Join(dir, "orders.csv")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

const testRates = `{
  "42": {
    "state_rate": [{"name": "State", "rate": 0.04}],
    "county_rate": [{"name": "County", "rate": 0.0475}],
    "city_rate": [],
    "special_rates": [{"name": "Transit", "rate": 0.00375}]
  }
}`

// withTestRates writes a rate file for zone 42 and enables taxes.
func withTestRates(t *testing.T, c *config.Config, dir string) string {
	t.Helper()
	p := filepath.Join(dir, "rates.json")
	require.NoError(t, os.WriteFile(p, []byte(testRates), 0o644))
	c.Tax.RatesFile = p
	c.Tax.MinDate = "2025-03-01"
	return p
}
