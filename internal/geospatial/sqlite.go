package geospatial

import (
	"context"
	"database/sql"
	"sort"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom/encoding/ewkb"
	"go.uber.org/zap"
)

// SQLiteStore implements SpatialStore and FeatureWriter on a plain SQLite
// table. Candidates are pre-filtered by bounding box columns and measured
// in Go.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an open SQLite database (modernc.org/sqlite driver).
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

const sqliteFeatureMigration = `
CREATE TABLE IF NOT EXISTS features (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	category   TEXT NOT NULL,
	type       TEXT NOT NULL DEFAULT '',
	name       TEXT NOT NULL DEFAULT '',
	source     TEXT NOT NULL DEFAULT '',
	source_id  TEXT NOT NULL DEFAULT '',
	attributes TEXT NOT NULL DEFAULT '{}',
	min_lng    REAL NOT NULL,
	min_lat    REAL NOT NULL,
	max_lng    REAL NOT NULL,
	max_lat    REAL NOT NULL,
	geom       BLOB NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE (category, source, source_id)
);

CREATE INDEX IF NOT EXISTS idx_features_bbox ON features(category, min_lat, max_lat);
`

// Migrate creates the features table.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteFeatureMigration)
	return eris.Wrap(err, "geo: sqlite migrate")
}

// Nearest implements SpatialStore.
func (s *SQLiteStore) Nearest(ctx context.Context, q NearestQuery) ([]Feature, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}

	box := RadiusBBox(q.Point, q.RadiusM)
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, type, name, attributes, geom
		FROM features
		WHERE category = ?
		  AND max_lat >= ? AND min_lat <= ?
		  AND max_lng >= ? AND min_lng <= ?`,
		string(q.Category), box.MinLat, box.MaxLat, box.MinLng, box.MaxLng,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: sqlite nearest %s", q.Category)
	}
	defer rows.Close() //nolint:errcheck

	type hit struct {
		id   int64
		rank int
		f    Feature
	}
	var hits []hit
	for rows.Next() {
		var (
			id    int64
			f     Feature
			attrs string
			blob  []byte
		)
		if err := rows.Scan(&id, &f.Type, &f.Name, &attrs, &blob); err != nil {
			return nil, eris.Wrap(err, "geo: sqlite scan feature")
		}
		g, err := ewkb.Unmarshal(blob)
		if err != nil {
			return nil, eris.Wrapf(err, "geo: decode feature %d", id)
		}
		f.DistanceM = DistanceToGeometry(q.Point, g)
		if f.DistanceM > q.RadiusM {
			continue
		}
		f.ID = strconv.FormatInt(id, 10)
		f.Category = q.Category
		if f.Attributes, err = decodeAttributes([]byte(attrs)); err != nil {
			return nil, err
		}
		if !q.Accepts(f) {
			continue
		}
		hits = append(hits, hit{id: id, rank: q.Rank(f.Type), f: f})
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "geo: sqlite iterate features")
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].rank != hits[j].rank {
			return hits[i].rank < hits[j].rank
		}
		if hits[i].f.DistanceM != hits[j].f.DistanceM {
			return hits[i].f.DistanceM < hits[j].f.DistanceM
		}
		return hits[i].id < hits[j].id
	})
	if len(hits) == 0 {
		return nil, nil
	}
	if len(hits) > q.limit() {
		hits = hits[:q.limit()]
	}
	features := make([]Feature, len(hits))
	for i, h := range hits {
		features[i] = h.f
	}
	return features, nil
}

// UpsertFeatures implements FeatureWriter.
func (s *SQLiteStore) UpsertFeatures(ctx context.Context, features []FeatureInput) (int64, error) {
	if len(features) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "geo: sqlite begin feature load")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO features (category, type, name, source, source_id, attributes, min_lng, min_lat, max_lng, max_lat, geom)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (category, source, source_id) DO UPDATE SET
			type = excluded.type,
			name = excluded.name,
			attributes = excluded.attributes,
			min_lng = excluded.min_lng,
			min_lat = excluded.min_lat,
			max_lng = excluded.max_lng,
			max_lat = excluded.max_lat,
			geom = excluded.geom,
			updated_at = datetime('now')`)
	if err != nil {
		return 0, eris.Wrap(err, "geo: sqlite prepare feature upsert")
	}
	defer stmt.Close() //nolint:errcheck

	var n int64
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
		b := GeometryBBox(f.Geometry)
		if _, err := stmt.ExecContext(ctx, string(f.Category), f.Type, f.Name, f.Source, f.SourceID, attrs,
			b.MinLng, b.MinLat, b.MaxLng, b.MaxLat, wkb); err != nil {
			return 0, eris.Wrapf(err, "geo: sqlite upsert feature %d", i)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "geo: sqlite commit feature load")
	}
	zap.L().Info("geo: features loaded", zap.Int64("upserted", n), zap.String("backend", "sqlite"))
	return n, nil
}

// FeatureCount returns the number of stored features per category.
func (s *SQLiteStore) FeatureCount(ctx context.Context) (map[Category]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT category, COUNT(*) FROM features GROUP BY category`)
	if err != nil {
		return nil, eris.Wrap(err, "geo: sqlite count features")
	}
	defer rows.Close() //nolint:errcheck

	counts := make(map[Category]int)
	for rows.Next() {
		var c string
		var n int
		if err := rows.Scan(&c, &n); err != nil {
			return nil, eris.Wrap(err, "geo: sqlite scan count")
		}
		counts[Category(c)] = n
	}
	return counts, eris.Wrap(rows.Err(), "geo: sqlite iterate counts")
}
