package main

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/zonematch/internal/db"
	"github.com/sells-group/zonematch/internal/geozone"
	"github.com/sells-group/zonematch/internal/store"
	"github.com/sells-group/zonematch/internal/taxrate"
	"github.com/sells-group/zonematch/internal/zoneload"
)

func poolConfig() *db.PoolConfig {
	return &db.PoolConfig{MaxConns: cfg.Store.MaxConns, MinConns: cfg.Store.MinConns}
}

// initStore opens and migrates the configured run store.
func initStore(ctx context.Context) (store.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}

	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		st, err = store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, poolConfig())
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

// openPostgres connects to the configured database for PostGIS layers.
func openPostgres(ctx context.Context) (*pgxpool.Pool, error) {
	if cfg.Store.DatabaseURL == "" {
		return nil, eris.New("store.database_url is required (ZONEMATCH_STORE_DATABASE_URL)")
	}
	return db.Open(ctx, cfg.Store.DatabaseURL, poolConfig())
}

func zoneOptions() []geozone.Option {
	return []geozone.Option{geozone.WithEpsilon(cfg.Match.Epsilon)}
}

// loadLayers loads every configured layer in priority order.
func loadLayers(ctx context.Context) ([]*geozone.Layer, error) {
	var pool db.Pool
	if zoneload.NeedsDatabase(cfg.Zones.Layers) {
		p, err := openPostgres(ctx)
		if err != nil {
			return nil, err
		}
		defer p.Close()
		pool = p
	}
	return zoneload.LoadAll(ctx, cfg.Zones.Layers, pool, zoneOptions()...)
}

// loadResolver loads the configured layers into a Resolver.
func loadResolver(ctx context.Context) (*geozone.Resolver, error) {
	layers, err := loadLayers(ctx)
	if err != nil {
		return nil, err
	}
	return geozone.NewResolver(layers...)
}

// findSource returns the configured layer named name.
func findSource(name string) (zoneload.Source, error) {
	for _, s := range cfg.Zones.Layers {
		if s.Name == name {
			return s, nil
		}
	}
	return zoneload.Source{}, eris.Errorf("no layer named %q in zones.layers", name)
}

// loadCalculator loads the configured rate file. It returns nil when taxes
// are not configured.
func loadCalculator() (*taxrate.Calculator, error) {
	if cfg.Tax.RatesFile == "" {
		return nil, nil
	}
	minDate, err := cfg.Tax.MinDateTime()
	if err != nil {
		return nil, err
	}
	tbl, err := taxrate.LoadFile(cfg.Tax.RatesFile)
	if err != nil {
		return nil, err
	}
	zap.L().Info("tax rates loaded", zap.String("path", cfg.Tax.RatesFile), zap.Int("codes", tbl.Len()))
	return taxrate.NewCalculator(tbl, minDate), nil
}
