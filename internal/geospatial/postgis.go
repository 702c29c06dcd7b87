package geospatial

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"

	"github.com/sells-group/site-screener/internal/db"
)

// PostGISStore implements SpatialStore and FeatureWriter on geo.features.
type PostGISStore struct {
	pool db.Pool
}

// NewPostGISStore creates a PostGISStore.
func NewPostGISStore(pool db.Pool) *PostGISStore {
	return &PostGISStore{pool: pool}
}

// Nearest implements SpatialStore. Distances are geodesic (geography cast).
func (s *PostGISStore) Nearest(ctx context.Context, q NearestQuery) ([]Feature, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}

	sql := `
		SELECT id::text, category, type, COALESCE(name, ''), attributes,
		       ST_Distance(geom::geography, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography) AS distance_m
		FROM geo.features
		WHERE category = $3
		  AND ST_DWithin(geom::geography, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $4)`
	args := []any{q.Point.Lng, q.Point.Lat, string(q.Category), q.RadiusM}
	argNum := 5

	if q.MinAttr != nil {
		sql += fmt.Sprintf(`
		  AND CASE WHEN (attributes ->> $%d) ~ $%d
		           THEN (attributes ->> $%d)::numeric >= $%d
		           ELSE false END`, argNum, argNum+1, argNum, argNum+2)
		args = append(args, q.MinAttr.Key, numericPattern, q.MinAttr.Min)
		argNum += 3
	}

	if len(q.TypeAny) > 0 {
		patterns := make([]string, len(q.TypeAny))
		for i, kw := range q.TypeAny {
			patterns[i] = likeContains(kw)
		}
		sql += fmt.Sprintf(`
		  AND lower(type) LIKE ANY($%d)`, argNum)
		args = append(args, patterns)
		argNum++
	}

	order := "distance_m, id"
	if len(q.TypeRank) > 0 {
		var b strings.Builder
		b.WriteString("CASE")
		for i, kw := range q.TypeRank {
			fmt.Fprintf(&b, " WHEN lower(type) LIKE $%d THEN %d", argNum, i)
			args = append(args, likeContains(kw))
			argNum++
		}
		fmt.Fprintf(&b, " ELSE %d END, ", len(q.TypeRank))
		order = b.String() + order
	}

	sql += fmt.Sprintf(`
		ORDER BY %s
		LIMIT $%d`, order, argNum)
	args = append(args, q.limit())

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: nearest %s", q.Category)
	}
	defer rows.Close()

	var features []Feature
	for rows.Next() {
		var f Feature
		var category string
		var attrs []byte
		if err := rows.Scan(&f.ID, &category, &f.Type, &f.Name, &attrs, &f.DistanceM); err != nil {
			return nil, eris.Wrap(err, "geo: scan nearest row")
		}
		f.Category = Category(category)
		if f.Attributes, err = decodeAttributes(attrs); err != nil {
			return nil, err
		}
		features = append(features, f)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "geo: iterate nearest rows")
	}
	return features, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

// likeContains builds a case-folded LIKE pattern matching kw anywhere.
func likeContains(kw string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(kw)) + "%"
}

var stagingColumns = []string{"category", "type", "name", "source", "source_id", "attributes", "geom_ewkb"}

// UpsertFeatures implements FeatureWriter. Rows are COPY-ed into a temp
// staging table and merged into geo.features in one transaction.
func (s *PostGISStore) UpsertFeatures(ctx context.Context, features []FeatureInput) (int64, error) {
	if len(features) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(features))
	for i, f := range features {
		if !validCategories[f.Category] {
			return 0, eris.Errorf("geo: feature %d: invalid category %q", i, f.Category)
		}
		wkb, err := encodeEWKB(f.Geometry)
		if err != nil {
			return 0, eris.Wrapf(err, "geo: feature %d", i)
		}
		attrs, err := normalizeAttributes(f.Attributes)
		if err != nil {
			return 0, err
		}
		rows = append(rows, []any{string(f.Category), f.Type, f.Name, f.Source, f.SourceID, attrs, wkb})
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "geo: begin feature load")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `
		CREATE TEMP TABLE feature_staging (
			category  TEXT,
			type      TEXT,
			name      TEXT,
			source    TEXT,
			source_id TEXT,
			attributes TEXT,
			geom_ewkb BYTEA
		) ON COMMIT DROP`); err != nil {
		return 0, eris.Wrap(err, "geo: create feature staging")
	}

	if _, err := db.CopyFrom(ctx, tx, "feature_staging", stagingColumns, rows); err != nil {
		return 0, err
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO geo.features (category, type, name, source, source_id, attributes, geom)
		SELECT category, type, name, source, source_id, attributes::jsonb, ST_SetSRID(ST_GeomFromEWKB(geom_ewkb), 4326)
		FROM feature_staging
		ON CONFLICT (category, source, source_id) DO UPDATE SET
			type = EXCLUDED.type,
			name = EXCLUDED.name,
			attributes = EXCLUDED.attributes,
			geom = EXCLUDED.geom,
			updated_at = now()`)
	if err != nil {
		return 0, eris.Wrap(err, "geo: merge features")
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "geo: commit feature load")
	}

	zap.L().Info("geo: features loaded",
		zap.Int("staged", len(rows)),
		zap.Int64("upserted", tag.RowsAffected()),
	)
	return tag.RowsAffected(), nil
}

// FeatureCount returns the number of stored features per category.
func (s *PostGISStore) FeatureCount(ctx context.Context) (map[Category]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT category, COUNT(*) FROM geo.features GROUP BY category`)
	if err != nil {
		return nil, eris.Wrap(err, "geo: count features")
	}
	defer rows.Close()

	counts := make(map[Category]int)
	for rows.Next() {
		var c string
		var n int
		if err := rows.Scan(&c, &n); err != nil {
			return nil, eris.Wrap(err, "geo: scan count")
		}
		counts[Category(c)] = n
	}
	return counts, eris.Wrap(rows.Err(), "geo: iterate counts")
}

// encodeEWKB encodes g as little-endian EWKB with SRID 4326.
func encodeEWKB(g geom.T) ([]byte, error) {
	if g == nil {
		return nil, eris.New("geo: missing geometry")
	}
	if g.SRID() == 0 {
		g = withSRID(g)
	}
	data, err := ewkb.Marshal(g, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geo: encode EWKB")
	}
	return data, nil
}

func withSRID(g geom.T) geom.T {
	switch t := g.(type) {
	case *geom.Point:
		return t.SetSRID(4326)
	case *geom.MultiPoint:
		return t.SetSRID(4326)
	case *geom.LineString:
		return t.SetSRID(4326)
	case *geom.MultiLineString:
		return t.SetSRID(4326)
	case *geom.Polygon:
		return t.SetSRID(4326)
	case *geom.MultiPolygon:
		return t.SetSRID(4326)
	default:
		return g
	}
}
