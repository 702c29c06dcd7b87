package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/site-screener/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// DB returns the underlying handle so the spatial store can share the file.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS sites (
	id           TEXT PRIMARY KEY,
	external_ref TEXT UNIQUE,
	name         TEXT NOT NULL,
	address      TEXT NOT NULL DEFAULT '',
	latitude     REAL NOT NULL,
	longitude    REAL NOT NULL,
	area_sqm     REAL NOT NULL DEFAULT 0,
	land_use     TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'pending',
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at   DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_sites_status ON sites(status);

CREATE TABLE IF NOT EXISTS evaluation_configs (
	id         TEXT PRIMARY KEY,
	version    INTEGER NOT NULL UNIQUE,
	name       TEXT NOT NULL,
	parameters TEXT NOT NULL,
	active     BOOLEAN NOT NULL DEFAULT 0,
	created_by TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_evaluation_configs_active ON evaluation_configs(active) WHERE active;

CREATE TABLE IF NOT EXISTS evaluations (
	id                    TEXT PRIMARY KEY,
	site_id               TEXT NOT NULL REFERENCES sites(id),
	grid_score            REAL NOT NULL,
	setback_score         REAL NOT NULL,
	road_score            REAL NOT NULL,
	pole_score            REAL NOT NULL,
	total_score           REAL NOT NULL,
	weighted_score        REAL NOT NULL,
	recommendation        TEXT NOT NULL,
	recommendation_reason TEXT NOT NULL DEFAULT '',
	details               TEXT NOT NULL,
	config_id             TEXT,
	config_snapshot       TEXT NOT NULL,
	evaluated_by          TEXT NOT NULL DEFAULT '',
	evaluated_at          DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evaluations_site_time ON evaluations(site_id, evaluated_at DESC);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateSite(ctx context.Context, site *model.Site) error {
	if err := prepareSite(site, time.Now().UTC()); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sites (id, external_ref, name, address, latitude, longitude, area_sqm, land_use, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		site.ID, nullIfEmpty(site.ExternalRef), site.Name, site.Address, site.Latitude, site.Longitude,
		site.AreaSqm, site.LandUse, string(site.Status), site.CreatedAt, site.UpdatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert site %s", site.ID)
}

// UpsertSites inserts or refreshes sites keyed by external reference.
func (s *SQLiteStore) UpsertSites(ctx context.Context, sites []model.Site) (int64, error) {
	if len(sites) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert sites")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO sites (id, external_ref, name, address, latitude, longitude, area_sqm, land_use, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (external_ref) DO UPDATE SET
			name = excluded.name, address = excluded.address,
			latitude = excluded.latitude, longitude = excluded.longitude,
			area_sqm = excluded.area_sqm, land_use = excluded.land_use,
			updated_at = excluded.updated_at`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert sites")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	var n int64
	for i := range sites {
		st := sites[i]
		if st.ExternalRef == "" {
			return 0, eris.Errorf("sqlite: upsert site %d: external reference is required", i)
		}
		if err := prepareSite(&st, now); err != nil {
			return 0, err
		}
		if _, err := stmt.ExecContext(ctx, st.ID, st.ExternalRef, st.Name, st.Address, st.Latitude, st.Longitude,
			st.AreaSqm, st.LandUse, string(st.Status), st.CreatedAt, st.UpdatedAt); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert site %s", st.ExternalRef)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit upsert sites")
	}
	return n, nil
}

func (s *SQLiteStore) GetSite(ctx context.Context, siteID string) (*model.Site, error) {
	st, err := scanSite(s.db.QueryRowContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE id = ?`, siteID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "site %s", siteID)
		}
		return nil, eris.Wrapf(err, "sqlite: get site %s", siteID)
	}
	return st, nil
}

func (s *SQLiteStore) ListSites(ctx context.Context, filter SiteFilter) ([]model.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM sites WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at, id`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sites")
	}
	defer rows.Close() //nolint:errcheck

	var sites []model.Site
	for rows.Next() {
		st, err := scanSite(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan site")
		}
		sites = append(sites, *st)
	}
	return sites, eris.Wrap(rows.Err(), "sqlite: list sites iterate")
}

func (s *SQLiteStore) UpdateSiteStatus(ctx context.Context, siteID string, status model.SiteStatus) error {
	site, err := s.GetSite(ctx, siteID)
	if err != nil {
		return err
	}
	if err := checkTransition(siteID, site.Status, status); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sites SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(status), time.Now().UTC(), siteID, string(site.Status),
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update site status %s", siteID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrInvalidTransition, "site %s: status changed concurrently", siteID)
	}
	return nil
}

func (s *SQLiteStore) CreateConfig(ctx context.Context, cfg *model.EvaluationConfig) error {
	if err := cfg.Parameters.Validate(); err != nil {
		return err
	}
	params, err := json.Marshal(cfg.Parameters)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal parameters")
	}
	cfg.ID = uuid.NewString()
	cfg.CreatedAt = time.Now().UTC()
	cfg.Active = false

	err = s.db.QueryRowContext(ctx,
		`INSERT INTO evaluation_configs (id, version, name, parameters, active, created_by, created_at)
		 SELECT ?, COALESCE(MAX(version), 0) + 1, ?, ?, 0, ?, ? FROM evaluation_configs
		 RETURNING version`,
		cfg.ID, cfg.Name, string(params), cfg.CreatedBy, cfg.CreatedAt,
	).Scan(&cfg.Version)
	return eris.Wrap(err, "sqlite: insert evaluation config")
}

func (s *SQLiteStore) ActivateConfig(ctx context.Context, configID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin activate config")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `UPDATE evaluation_configs SET active = 0 WHERE active`); err != nil {
		return eris.Wrap(err, "sqlite: deactivate configs")
	}
	res, err := tx.ExecContext(ctx, `UPDATE evaluation_configs SET active = 1 WHERE id = ?`, configID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: activate config %s", configID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "config %s", configID)
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit activate config")
}

func (s *SQLiteStore) ActiveConfig(ctx context.Context) (*model.EvaluationConfig, error) {
	cfg, err := scanConfig(s.db.QueryRowContext(ctx, `SELECT `+configColumns+` FROM evaluation_configs WHERE active`))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoActiveConfig
		}
		return nil, eris.Wrap(err, "sqlite: get active config")
	}
	return cfg, nil
}

func (s *SQLiteStore) ListConfigs(ctx context.Context) ([]model.EvaluationConfig, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+configColumns+` FROM evaluation_configs ORDER BY version DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list configs")
	}
	defer rows.Close() //nolint:errcheck

	var cfgs []model.EvaluationConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan config")
		}
		cfgs = append(cfgs, *cfg)
	}
	return cfgs, eris.Wrap(rows.Err(), "sqlite: list configs iterate")
}

func (s *SQLiteStore) SaveEvaluation(ctx context.Context, rec *model.EvaluationRecord) error {
	details, snapshot, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO evaluations (id, site_id, grid_score, setback_score, road_score, pole_score, total_score,
			weighted_score, recommendation, recommendation_reason, details, config_id, config_snapshot, evaluated_by, evaluated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SiteID, rec.GridScore, rec.SetbackScore, rec.RoadScore, rec.PoleScore, rec.TotalScore,
		rec.WeightedScore, string(rec.Recommendation), rec.RecommendationReason, string(details), nullIfEmpty(rec.ConfigID),
		string(snapshot), rec.EvaluatedBy, rec.EvaluatedAt,
	)
	return eris.Wrapf(err, "sqlite: insert evaluation for site %s", rec.SiteID)
}

func (s *SQLiteStore) ListEvaluations(ctx context.Context, siteID string) ([]model.EvaluationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+evaluationColumns+` FROM evaluations e WHERE e.site_id = ? ORDER BY e.evaluated_at DESC, e.id DESC`,
		siteID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list evaluations for site %s", siteID)
	}
	defer rows.Close() //nolint:errcheck

	var recs []model.EvaluationRecord
	for rows.Next() {
		var rec model.EvaluationRecord
		var details, snapshot []byte
		if err := rows.Scan(evaluationDest(&rec, &details, &snapshot)...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan evaluation")
		}
		if err := decodeRecord(&rec, details, snapshot); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list evaluations iterate")
}

func (s *SQLiteStore) CurrentEvaluations(ctx context.Context) ([]model.ScreeningRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+evaluationColumns+`,
		       s.name, s.address, s.status, s.area_sqm, s.land_use, s.latitude, s.longitude, s.created_at
		FROM (
			SELECT *, ROW_NUMBER() OVER (PARTITION BY site_id ORDER BY evaluated_at DESC, id DESC) AS rn
			FROM evaluations
		) e
		JOIN sites s ON s.id = e.site_id
		WHERE e.rn = 1`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: current evaluations")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.ScreeningRow
	for rows.Next() {
		var r model.ScreeningRow
		var details, snapshot []byte
		dest := append(evaluationDest(&r.EvaluationRecord, &details, &snapshot),
			&r.SiteName, &r.SiteAddress, &r.SiteStatus, &r.AreaSqm, &r.LandUse, &r.Latitude, &r.Longitude, &r.SiteCreatedAt)
		if err := rows.Scan(dest...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan current evaluation")
		}
		if err := decodeRecord(&r.EvaluationRecord, details, snapshot); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: current evaluations iterate")
}
