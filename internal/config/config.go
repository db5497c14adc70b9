package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/zonematch/internal/zoneload"
)

// Config holds the full application configuration.
type Config struct {
	Zones ZonesConfig `yaml:"zones" mapstructure:"zones"`
	Match MatchConfig `yaml:"match" mapstructure:"match"`
	Store StoreConfig `yaml:"store" mapstructure:"store"`
	Tax   TaxConfig   `yaml:"tax" mapstructure:"tax"`
	Log   LogConfig   `yaml:"log" mapstructure:"log"`
}

// ZonesConfig lists the zone layers in priority order.
type ZonesConfig struct {
	Layers []zoneload.Source `yaml:"layers" mapstructure:"layers"`
}

// MatchConfig configures the enrichment pipeline.
type MatchConfig struct {
	Workers      int     `yaml:"workers" mapstructure:"workers"`
	ChunkSize    int     `yaml:"chunk_size" mapstructure:"chunk_size"`
	Epsilon      float64 `yaml:"epsilon" mapstructure:"epsilon"`
	ProgressSecs int     `yaml:"progress_secs" mapstructure:"progress_secs"`
}

// ProgressInterval returns ProgressSecs as a duration.
func (m MatchConfig) ProgressInterval() time.Duration {
	return time.Duration(m.ProgressSecs) * time.Second
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// TaxConfig configures tax computation for matched rows. Taxes are off
// when RatesFile is empty.
type TaxConfig struct {
	RatesFile string `yaml:"rates_file" mapstructure:"rates_file"`
	MinDate   string `yaml:"min_date" mapstructure:"min_date"`
}

// MinDateTime parses MinDate. An empty MinDate yields the zero time.
func (t TaxConfig) MinDateTime() (time.Time, error) {
	if t.MinDate == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(time.DateOnly, t.MinDate)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "config: tax.min_date %q", t.MinDate)
	}
	return d, nil
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ZONEMATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "zonematch.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("match.workers", 0)
	v.SetDefault("match.chunk_size", 1000)
	v.SetDefault("match.epsilon", 1e-12)
	v.SetDefault("match.progress_secs", 2)
	v.SetDefault("tax.min_date", "2025-03-01")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command needs. mode is one of "match",
// "zones", "store", or "rates".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "match":
		errs = append(errs, c.validateLayers()...)
		errs = append(errs, c.validateMatch()...)
		errs = append(errs, c.validateTax()...)
		if zoneload.NeedsDatabase(c.Zones.Layers) {
			errs = append(errs, c.validateStore()...)
		}
	case "zones":
		errs = append(errs, c.validateLayers()...)
		if zoneload.NeedsDatabase(c.Zones.Layers) {
			errs = append(errs, c.validateStore()...)
		}
	case "store":
		errs = append(errs, c.validateStore()...)
	case "rates":
		if c.Tax.RatesFile == "" {
			errs = append(errs, "tax.rates_file is required")
		}
		errs = append(errs, c.validateTax()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateLayers() []string {
	if len(c.Zones.Layers) == 0 {
		return []string{"zones.layers must list at least one layer"}
	}

	var errs []string
	seen := make(map[string]bool, len(c.Zones.Layers))
	for i, l := range c.Zones.Layers {
		if l.Name == "" {
			errs = append(errs, fmt.Sprintf("zones.layers[%d].name is required", i))
		} else if seen[l.Name] {
			errs = append(errs, fmt.Sprintf("zones.layers[%d].name %q is duplicated", i, l.Name))
		}
		seen[l.Name] = true

		if l.Kind() == "" {
			errs = append(errs, fmt.Sprintf("zones.layers[%d] needs a .shp, .zip, .geojson path or a table", i))
		}
	}
	return errs
}

func (c *Config) validateMatch() []string {
	var errs []string
	if c.Match.Workers < 0 {
		errs = append(errs, "match.workers must be >= 0")
	}
	if c.Match.ChunkSize < 1 {
		errs = append(errs, "match.chunk_size must be >= 1")
	}
	if c.Match.Epsilon < 0 {
		errs = append(errs, "match.epsilon must be >= 0")
	}
	if c.Match.ProgressSecs < 0 {
		errs = append(errs, "match.progress_secs must be >= 0")
	}
	return errs
}

func (c *Config) validateTax() []string {
	if _, err := c.Tax.MinDateTime(); err != nil {
		return []string{"tax.min_date must be a YYYY-MM-DD date"}
	}
	return nil
}

func (c *Config) validateStore() []string {
	var errs []string
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if c.Store.MinConns > c.Store.MaxConns {
		errs = append(errs, "store.min_conns must not exceed store.max_conns")
	}
	return errs
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
