package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/site-screener/internal/db"
	"github.com/sells-group/site-screener/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. The caller keeps ownership.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying pool for the spatial store and geo migrations.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS sites (
	id           TEXT PRIMARY KEY,
	external_ref TEXT UNIQUE,
	name         TEXT NOT NULL,
	address      TEXT NOT NULL DEFAULT '',
	latitude     DOUBLE PRECISION NOT NULL,
	longitude    DOUBLE PRECISION NOT NULL,
	area_sqm     DOUBLE PRECISION NOT NULL DEFAULT 0,
	land_use     TEXT NOT NULL DEFAULT '',
	status       TEXT NOT NULL DEFAULT 'pending',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_sites_status ON sites(status);

CREATE TABLE IF NOT EXISTS evaluation_configs (
	id         TEXT PRIMARY KEY,
	version    INTEGER NOT NULL UNIQUE,
	name       TEXT NOT NULL,
	parameters JSONB NOT NULL,
	active     BOOLEAN NOT NULL DEFAULT false,
	created_by TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_evaluation_configs_active ON evaluation_configs(active) WHERE active;

CREATE TABLE IF NOT EXISTS evaluations (
	id                    TEXT PRIMARY KEY,
	site_id               TEXT NOT NULL REFERENCES sites(id),
	grid_score            DOUBLE PRECISION NOT NULL,
	setback_score         DOUBLE PRECISION NOT NULL,
	road_score            DOUBLE PRECISION NOT NULL,
	pole_score            DOUBLE PRECISION NOT NULL,
	total_score           DOUBLE PRECISION NOT NULL,
	weighted_score        DOUBLE PRECISION NOT NULL,
	recommendation        TEXT NOT NULL,
	recommendation_reason TEXT NOT NULL DEFAULT '',
	details               JSONB NOT NULL,
	config_id             TEXT,
	config_snapshot       JSONB NOT NULL,
	evaluated_by          TEXT NOT NULL DEFAULT '',
	evaluated_at          TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_evaluations_site_time ON evaluations(site_id, evaluated_at DESC);
CREATE INDEX IF NOT EXISTS idx_evaluations_recommendation ON evaluations(recommendation);
`

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

// Migrate creates the site, config and evaluation tables.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool when the store owns it.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

const siteColumns = `id, COALESCE(external_ref, ''), name, address, latitude, longitude, area_sqm, land_use, status, created_at, updated_at`

func scanSite(row scannable) (*model.Site, error) {
	var st model.Site
	err := row.Scan(&st.ID, &st.ExternalRef, &st.Name, &st.Address, &st.Latitude, &st.Longitude,
		&st.AreaSqm, &st.LandUse, &st.Status, &st.CreatedAt, &st.UpdatedAt)
	return &st, err
}

func (s *PostgresStore) CreateSite(ctx context.Context, site *model.Site) error {
	if err := prepareSite(site, time.Now().UTC()); err != nil {
		return err
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sites (id, external_ref, name, address, latitude, longitude, area_sqm, land_use, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		site.ID, nullIfEmpty(site.ExternalRef), site.Name, site.Address, site.Latitude, site.Longitude,
		site.AreaSqm, site.LandUse, string(site.Status), site.CreatedAt, site.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: insert site %s", site.ID)
}

var siteUpsert = db.UpsertConfig{
	Table:        "sites",
	Columns:      []string{"id", "external_ref", "name", "address", "latitude", "longitude", "area_sqm", "land_use", "status", "created_at", "updated_at"},
	ConflictKeys: []string{"external_ref"},
	UpdateCols:   []string{"name", "address", "latitude", "longitude", "area_sqm", "land_use", "updated_at"},
}

// UpsertSites bulk-loads sites keyed by external reference. Existing sites
// keep their id, status and creation time.
func (s *PostgresStore) UpsertSites(ctx context.Context, sites []model.Site) (int64, error) {
	now := time.Now().UTC()
	rows := make([][]any, 0, len(sites))
	for i := range sites {
		st := sites[i]
		if st.ExternalRef == "" {
			return 0, eris.Errorf("postgres: upsert site %d: external reference is required", i)
		}
		if err := prepareSite(&st, now); err != nil {
			return 0, err
		}
		rows = append(rows, []any{st.ID, st.ExternalRef, st.Name, st.Address, st.Latitude, st.Longitude,
			st.AreaSqm, st.LandUse, string(st.Status), st.CreatedAt, st.UpdatedAt})
	}
	n, err := db.BulkUpsert(ctx, s.pool, siteUpsert, rows)
	return n, eris.Wrap(err, "postgres: upsert sites")
}

func (s *PostgresStore) GetSite(ctx context.Context, siteID string) (*model.Site, error) {
	st, err := scanSite(s.pool.QueryRow(ctx, `SELECT `+siteColumns+` FROM sites WHERE id = $1`, siteID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "site %s", siteID)
		}
		return nil, eris.Wrapf(err, "postgres: get site %s", siteID)
	}
	return st, nil
}

func (s *PostgresStore) ListSites(ctx context.Context, filter SiteFilter) ([]model.Site, error) {
	query := `SELECT ` + siteColumns + ` FROM sites WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY created_at, id`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sites")
	}
	defer rows.Close()

	var sites []model.Site
	for rows.Next() {
		st, err := scanSite(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan site")
		}
		sites = append(sites, *st)
	}
	return sites, eris.Wrap(rows.Err(), "postgres: list sites iterate")
}

// UpdateSiteStatus moves a site along its lifecycle. The update is guarded
// on the status read so concurrent changes cannot skip a step.
func (s *PostgresStore) UpdateSiteStatus(ctx context.Context, siteID string, status model.SiteStatus) error {
	site, err := s.GetSite(ctx, siteID)
	if err != nil {
		return err
	}
	if err := checkTransition(siteID, site.Status, status); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE sites SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		string(status), time.Now().UTC(), siteID, string(site.Status),
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update site status %s", siteID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrInvalidTransition, "site %s: status changed concurrently", siteID)
	}
	return nil
}

// CreateConfig stores a new inactive config with the next version number.
func (s *PostgresStore) CreateConfig(ctx context.Context, cfg *model.EvaluationConfig) error {
	if err := cfg.Parameters.Validate(); err != nil {
		return err
	}
	params, err := json.Marshal(cfg.Parameters)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal parameters")
	}
	cfg.ID = uuid.NewString()
	cfg.CreatedAt = time.Now().UTC()
	cfg.Active = false

	err = s.pool.QueryRow(ctx,
		`INSERT INTO evaluation_configs (id, version, name, parameters, active, created_by, created_at)
		 SELECT $1, COALESCE(MAX(version), 0) + 1, $2, $3, false, $4, $5 FROM evaluation_configs
		 RETURNING version`,
		cfg.ID, cfg.Name, params, cfg.CreatedBy, cfg.CreatedAt,
	).Scan(&cfg.Version)
	return eris.Wrap(err, "postgres: insert evaluation config")
}

// ActivateConfig makes configID the single active config.
func (s *PostgresStore) ActivateConfig(ctx context.Context, configID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin activate config")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `UPDATE evaluation_configs SET active = false WHERE active`); err != nil {
		return eris.Wrap(err, "postgres: deactivate configs")
	}
	tag, err := tx.Exec(ctx, `UPDATE evaluation_configs SET active = true WHERE id = $1`, configID)
	if err != nil {
		return eris.Wrapf(err, "postgres: activate config %s", configID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "config %s", configID)
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit activate config")
}

const configColumns = `id, version, name, parameters, active, created_by, created_at`

func scanConfig(row scannable) (*model.EvaluationConfig, error) {
	var cfg model.EvaluationConfig
	var params []byte
	if err := row.Scan(&cfg.ID, &cfg.Version, &cfg.Name, &params, &cfg.Active, &cfg.CreatedBy, &cfg.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(params, &cfg.Parameters); err != nil {
		return nil, eris.Wrap(err, "store: unmarshal parameters")
	}
	return &cfg, nil
}

func (s *PostgresStore) ActiveConfig(ctx context.Context) (*model.EvaluationConfig, error) {
	cfg, err := scanConfig(s.pool.QueryRow(ctx, `SELECT `+configColumns+` FROM evaluation_configs WHERE active`))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoActiveConfig
		}
		return nil, eris.Wrap(err, "postgres: get active config")
	}
	return cfg, nil
}

func (s *PostgresStore) ListConfigs(ctx context.Context) ([]model.EvaluationConfig, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+configColumns+` FROM evaluation_configs ORDER BY version DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list configs")
	}
	defer rows.Close()

	var cfgs []model.EvaluationConfig
	for rows.Next() {
		cfg, err := scanConfig(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan config")
		}
		cfgs = append(cfgs, *cfg)
	}
	return cfgs, eris.Wrap(rows.Err(), "postgres: list configs iterate")
}

// SaveEvaluation appends a record to the evaluation log.
func (s *PostgresStore) SaveEvaluation(ctx context.Context, rec *model.EvaluationRecord) error {
	details, snapshot, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO evaluations (id, site_id, grid_score, setback_score, road_score, pole_score, total_score,
			weighted_score, recommendation, recommendation_reason, details, config_id, config_snapshot, evaluated_by, evaluated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		rec.ID, rec.SiteID, rec.GridScore, rec.SetbackScore, rec.RoadScore, rec.PoleScore, rec.TotalScore,
		rec.WeightedScore, string(rec.Recommendation), rec.RecommendationReason, details, nullIfEmpty(rec.ConfigID),
		snapshot, rec.EvaluatedBy, rec.EvaluatedAt,
	)
	return eris.Wrapf(err, "postgres: insert evaluation for site %s", rec.SiteID)
}

const evaluationColumns = `e.id, e.site_id, e.grid_score, e.setback_score, e.road_score, e.pole_score, e.total_score,
	e.weighted_score, e.recommendation, e.recommendation_reason, e.details, COALESCE(e.config_id, ''),
	e.config_snapshot, e.evaluated_by, e.evaluated_at`

func evaluationDest(rec *model.EvaluationRecord, details, snapshot *[]byte) []any {
	return []any{&rec.ID, &rec.SiteID, &rec.GridScore, &rec.SetbackScore, &rec.RoadScore, &rec.PoleScore,
		&rec.TotalScore, &rec.WeightedScore, &rec.Recommendation, &rec.RecommendationReason, details,
		&rec.ConfigID, snapshot, &rec.EvaluatedBy, &rec.EvaluatedAt}
}

// ListEvaluations returns a site's history, newest first.
func (s *PostgresStore) ListEvaluations(ctx context.Context, siteID string) ([]model.EvaluationRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+evaluationColumns+` FROM evaluations e WHERE e.site_id = $1 ORDER BY e.evaluated_at DESC, e.id DESC`,
		siteID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list evaluations for site %s", siteID)
	}
	defer rows.Close()

	var recs []model.EvaluationRecord
	for rows.Next() {
		var rec model.EvaluationRecord
		var details, snapshot []byte
		if err := rows.Scan(evaluationDest(&rec, &details, &snapshot)...); err != nil {
			return nil, eris.Wrap(err, "postgres: scan evaluation")
		}
		if err := decodeRecord(&rec, details, snapshot); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list evaluations iterate")
}

// CurrentEvaluations returns the newest evaluation of every site joined
// with the site's attributes.
func (s *PostgresStore) CurrentEvaluations(ctx context.Context) ([]model.ScreeningRow, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+evaluationColumns+`,
		       s.name, s.address, s.status, s.area_sqm, s.land_use, s.latitude, s.longitude, s.created_at
		FROM (
			SELECT DISTINCT ON (site_id) *
			FROM evaluations
			ORDER BY site_id, evaluated_at DESC, id DESC
		) e
		JOIN sites s ON s.id = e.site_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: current evaluations")
	}
	defer rows.Close()

	var out []model.ScreeningRow
	for rows.Next() {
		var r model.ScreeningRow
		var details, snapshot []byte
		dest := append(evaluationDest(&r.EvaluationRecord, &details, &snapshot),
			&r.SiteName, &r.SiteAddress, &r.SiteStatus, &r.AreaSqm, &r.LandUse, &r.Latitude, &r.Longitude, &r.SiteCreatedAt)
		if err := rows.Scan(dest...); err != nil {
			return nil, eris.Wrap(err, "postgres: scan current evaluation")
		}
		if err := decodeRecord(&r.EvaluationRecord, details, snapshot); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: current evaluations iterate")
}
