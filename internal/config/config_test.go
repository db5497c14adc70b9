package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/zonematch/internal/zoneload"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "zonematch.db", cfg.Store.DatabaseURL)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, int32(2), cfg.Store.MinConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 0, cfg.Match.Workers)
	assert.Equal(t, 1000, cfg.Match.ChunkSize)
	assert.InDelta(t, 1e-12, cfg.Match.Epsilon, 1e-15)
	assert.Equal(t, 2*time.Second, cfg.Match.ProgressInterval())
	assert.Empty(t, cfg.Zones.Layers)
	assert.Empty(t, cfg.Tax.RatesFile)
	assert.Equal(t, "2025-03-01", cfg.Tax.MinDate)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
zones:
  layers:
    - name: cities
      path: data/cities.geojson
      code_field: zone
    - name: counties
      table: geo.counties
      code_field: geoid
      geom_column: the_geom
match:
  workers: 4
  chunk_size: 250
store:
  driver: postgres
  database_url: postgres://localhost/zones
tax:
  rates_file: rates.json
log:
  level: debug
  format: console
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	require.Len(t, cfg.Zones.Layers, 2)
	assert.Equal(t, zoneload.Source{Name: "cities", Path: "data/cities.geojson", CodeField: "zone"}, cfg.Zones.Layers[0])
	assert.Equal(t, zoneload.Source{Name: "counties", Table: "geo.counties", CodeField: "geoid", GeomColumn: "the_geom"}, cfg.Zones.Layers[1])
	assert.Equal(t, 4, cfg.Match.Workers)
	assert.Equal(t, 250, cfg.Match.ChunkSize)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, "rates.json", cfg.Tax.RatesFile)
	// Defaults still apply for unset values
	assert.Equal(t, 2, cfg.Match.ProgressSecs)
	assert.Equal(t, "2025-03-01", cfg.Tax.MinDate)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("ZONEMATCH_STORE_DRIVER", "sqlite")
	t.Setenv("ZONEMATCH_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("ZONEMATCH_MATCH_CHUNK_SIZE", "64")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 64, cfg.Match.ChunkSize)
}

func TestLoadBadYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("zones: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("ZONEMATCH_LOG_LEVEL=error\nZONEMATCH_STORE_DRIVER=postgres\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.local"), []byte("ZONEMATCH_LOG_LEVEL=debug\n"), 0644))

	// Registered so the values written by godotenv are restored afterwards.
	t.Setenv("ZONEMATCH_LOG_LEVEL", "")
	t.Setenv("ZONEMATCH_STORE_DRIVER", "")
	os.Unsetenv("ZONEMATCH_LOG_LEVEL")    //nolint:errcheck
	os.Unsetenv("ZONEMATCH_STORE_DRIVER") //nolint:errcheck

	require.NoError(t, LoadDotEnv())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "postgres", cfg.Store.Driver)
}

func TestLoadDotEnv_Missing(t *testing.T) {
	chdirTemp(t)
	assert.NoError(t, LoadDotEnv())
	assert.NoError(t, LoadDotEnv("nope.env"))
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Zones.Layers = []zoneload.Source{{Name: "cities", Path: "cities.geojson"}}
	cfg.Match.ChunkSize = 1000
	cfg.Match.Epsilon = 1e-12
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = "zonematch.db"
	cfg.Store.MaxConns = 10
	cfg.Store.MinConns = 2
	cfg.Tax.MinDate = "2025-03-01"
	return cfg
}

func TestValidateMatch_Defaults(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("match"))
	assert.NoError(t, validDefaults().Validate("zones"))
	assert.NoError(t, validDefaults().Validate("store"))
}

func TestValidateMatch_NoLayers(t *testing.T) {
	cfg := validDefaults()
	cfg.Zones.Layers = nil

	err := cfg.Validate("match")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "zones.layers must list at least one layer")
}

func TestValidateMatch_BadLayers(t *testing.T) {
	cfg := validDefaults()
	cfg.Zones.Layers = []zoneload.Source{
		{Name: "cities", Path: "cities.geojson"},
		{Name: "cities", Path: "more.shp"},
		{Path: "x.kml"},
	}

	err := cfg.Validate("zones")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), `zones.layers[1].name "cities" is duplicated`)
	assert.Contains(t, err.Error(), "zones.layers[2].name is required")
	assert.Contains(t, err.Error(), "zones.layers[2] needs a .shp, .zip, .geojson path or a table")
}

func TestValidateMatch_Bounds(t *testing.T) {
	cfg := validDefaults()
	cfg.Match.Workers = -1
	cfg.Match.ChunkSize = 0
	cfg.Match.Epsilon = -1
	cfg.Match.ProgressSecs = -5

	err := cfg.Validate("match")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "match.workers must be >= 0")
	assert.Contains(t, err.Error(), "match.chunk_size must be >= 1")
	assert.Contains(t, err.Error(), "match.epsilon must be >= 0")
	assert.Contains(t, err.Error(), "match.progress_secs must be >= 0")
}

func TestValidateMatch_PostGISNeedsStore(t *testing.T) {
	cfg := validDefaults()
	cfg.Zones.Layers = append(cfg.Zones.Layers, zoneload.Source{Name: "counties", Table: "geo.counties"})
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("match")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required")

	cfg.Zones.Layers = cfg.Zones.Layers[:1]
	assert.NoError(t, cfg.Validate("match"))
}

func TestValidateStore(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	cfg.Store.MinConns = 20

	err := cfg.Validate("store")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), `store.driver "mysql" must be sqlite or postgres`)
	assert.Contains(t, err.Error(), "store.min_conns must not exceed store.max_conns")
}

func TestValidateTax(t *testing.T) {
	tests := []struct {
		name      string
		mode      string
		ratesFile string
		minDate   string
		want      string
	}{
		{"taxes off", "match", "", "2025-03-01", ""},
		{"no floor", "match", "rates.json", "", ""},
		{"bad date", "match", "rates.json", "03/01/2025", "tax.min_date must be a YYYY-MM-DD date"},
		{"rates needs file", "rates", "", "2025-03-01", "tax.rates_file is required"},
		{"rates ok", "rates", "rates.json", "2025-03-01", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			cfg.Tax.RatesFile = tt.ratesFile
			cfg.Tax.MinDate = tt.minDate

			err := cfg.Validate(tt.mode)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestTaxMinDateTime(t *testing.T) {
	d, err := TaxConfig{MinDate: "2025-03-01"}.MinDateTime()
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC), d)

	d, err = TaxConfig{}.MinDateTime()
	require.NoError(t, err)
	assert.True(t, d.IsZero())
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
