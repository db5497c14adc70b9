package zoneload

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/zonematch/internal/db"
	"github.com/sells-group/zonematch/internal/geozone"
)

// LoadPostGIS reads zones from a PostGIS table. Rows are ordered by code so
// that overlap priority is stable between loads.
func LoadPostGIS(ctx context.Context, pool db.Pool, table, codeColumn, geomColumn, name string, opts ...geozone.Option) (*geozone.Layer, error) {
	code := db.SanitizeColumn(codeColumn)
	geomCol := db.SanitizeColumn(geomColumn)
	query := fmt.Sprintf(
		"SELECT %s::text, ST_AsEWKB(%s) FROM %s WHERE %s IS NOT NULL ORDER BY %s",
		code, geomCol, db.SanitizeTable(table), geomCol, code,
	)

	rows, err := pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrapf(err, "zoneload: query %s", table)
	}
	defer rows.Close()

	log := zap.L().With(zap.String("component", "zoneload.postgis"), zap.String("layer", name))

	b := geozone.NewBuilder(opts...)
	var codes []string
	var skipped int

	for rows.Next() {
		var rawCode string
		var data []byte
		if err := rows.Scan(&rawCode, &data); err != nil {
			return nil, eris.Wrapf(err, "zoneload: scan %s", table)
		}

		zoneCode, err := geozone.NormalizeCode(rawCode)
		if err != nil {
			skipped++
			continue
		}
		points, parts, err := DecodeEWKB(data)
		if err != nil {
			log.Debug("skipping undecodable geometry", zap.String("code", zoneCode), zap.Error(err))
			skipped++
			continue
		}

		b.Add(points, parts)
		codes = append(codes, zoneCode)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "zoneload: iterate %s", table)
	}

	if skipped > 0 {
		log.Debug("skipped postgis rows", zap.Int("skipped", skipped))
	}
	log.Info("postgis layer loaded", zap.String("table", table), zap.Int("zones", len(codes)))

	return &geozone.Layer{Name: name, Codes: codes, Zones: b.Build()}, nil
}

// PublishPostGIS replaces the contents of table with layer's zones, one
// MultiPolygon row per zone, creating the table and its spatial index if
// needed.
func PublishPostGIS(ctx context.Context, pool db.Pool, table, codeColumn, geomColumn string, layer *geozone.Layer) (int64, error) {
	tbl := db.SanitizeTable(table)
	code := db.SanitizeColumn(codeColumn)
	geomCol := db.SanitizeColumn(geomColumn)

	_, err := pool.Exec(ctx, fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS %s (%s TEXT NOT NULL, %s geometry(MultiPolygon, %d))",
		tbl, code, geomCol, SRID,
	))
	if err != nil {
		return 0, eris.Wrapf(err, "zoneload: create %s", table)
	}

	if _, err := pool.Exec(ctx, fmt.Sprintf("TRUNCATE %s", tbl)); err != nil {
		return 0, eris.Wrapf(err, "zoneload: truncate %s", table)
	}

	rows := make([][]any, 0, layer.Zones.Len())
	for i := range layer.Zones.Len() {
		points, parts := layer.Zones.Polygon(i)
		data, err := EncodeEWKB(points, parts)
		if err != nil {
			zap.L().Debug("zoneload: skipping zone without rings", zap.String("code", layer.Codes[i]))
			continue
		}
		rows = append(rows, []any{layer.Codes[i], data})
	}

	n, err := db.CopyFrom(ctx, pool, table, []string{codeColumn, geomColumn}, rows)
	if err != nil {
		return 0, eris.Wrapf(err, "zoneload: publish %s", table)
	}

	_, err = pool.Exec(ctx, fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s ON %s USING gist (%s)",
		db.SanitizeColumn(indexName(table, geomColumn)), tbl, geomCol,
	))
	if err != nil {
		return n, eris.Wrapf(err, "zoneload: index %s", table)
	}
	return n, nil
}

func indexName(table, column string) string {
	id := db.Identifier(table)
	return "idx_" + id[len(id)-1] + "_" + column
}
