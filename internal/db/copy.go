package db

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// CopyFrom bulk-inserts rows into table using the PostgreSQL COPY protocol.
// table may be schema-qualified ("geo.zone_matches").
func CopyFrom(ctx context.Context, pool Pool, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	n, err := pool.CopyFrom(ctx, Identifier(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}
	return n, nil
}

// Identifier splits a possibly schema-qualified name into a pgx.Identifier.
func Identifier(name string) pgx.Identifier {
	parts := strings.SplitN(name, ".", 2)
	if len(parts) == 2 {
		return pgx.Identifier{parts[0], parts[1]}
	}
	return pgx.Identifier{name}
}

// SanitizeTable quotes a possibly schema-qualified table name for use in SQL.
func SanitizeTable(table string) string {
	return Identifier(table).Sanitize()
}

// SanitizeColumn quotes a single column name for use in SQL.
func SanitizeColumn(col string) string {
	return pgx.Identifier{col}.Sanitize()
}
