package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/site-screener/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

func testParameters() model.Parameters {
	return model.Parameters{
		Weights: model.Weights{Grid: 0.35, Setback: 0.30, Road: 0.20, Pole: 0.15},
		Thresholds: model.Thresholds{
			GridMaxDistanceM:    1000,
			GridMinCapacityKW:   300,
			ResidentialSetbackM: 50,
			SchoolSetbackM:      100,
			HospitalSetbackM:    150,
			RoadMaxDistanceM:    500,
			RoadMinWidthM:       4,
			PoleMaxDistanceM:    200,
		},
	}
}

var siteCols = []string{"id", "external_ref", "name", "address", "latitude", "longitude", "area_sqm", "land_use", "status", "created_at", "updated_at"}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS sites`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateSite(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO sites`).
		WithArgs(pgxmock.AnyArg(), "PARCEL-1", "North Field", "", 30.1, -97.1, 12000.0, "agricultural",
			"pending", pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	site := &model.Site{ExternalRef: "PARCEL-1", Name: "North Field", Latitude: 30.1, Longitude: -97.1, AreaSqm: 12000, LandUse: "agricultural"}
	require.NoError(t, s.CreateSite(context.Background(), site))
	assert.NotEmpty(t, site.ID)
	assert.Equal(t, model.SiteStatusPending, site.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateSite_InvalidCoordinates(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	err := s.CreateSite(context.Background(), &model.Site{Name: "Bad", Latitude: 95})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid coordinates")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSite(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT id, .* FROM sites WHERE id = \$1`).
		WithArgs("site-1").
		WillReturnRows(pgxmock.NewRows(siteCols).
			AddRow("site-1", "PARCEL-1", "North Field", "1 Farm Rd", 30.1, -97.1, 12000.0, "agricultural", model.SiteStatusEvaluated, now, now))

	site, err := s.GetSite(context.Background(), "site-1")
	require.NoError(t, err)
	assert.Equal(t, "North Field", site.Name)
	assert.Equal(t, model.SiteStatusEvaluated, site.Status)
	assert.Equal(t, now, site.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetSite_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM sites WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetSite(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListSites_StatusFilter(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM sites WHERE true AND status = \$1 ORDER BY created_at, id LIMIT \$2 OFFSET \$3`).
		WithArgs("pending", 10, 20).
		WillReturnRows(pgxmock.NewRows(siteCols).
			AddRow("site-1", "", "A", "", 1.0, 2.0, 0.0, "", model.SiteStatusPending, now, now).
			AddRow("site-2", "", "B", "", 1.0, 2.0, 0.0, "", model.SiteStatusPending, now, now))

	sites, err := s.ListSites(context.Background(), SiteFilter{Status: model.SiteStatusPending, Limit: 10, Offset: 20})
	require.NoError(t, err)
	require.Len(t, sites, 2)
	assert.Equal(t, "site-2", sites[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListSites_DefaultLimit(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM sites WHERE true ORDER BY created_at, id LIMIT \$1$`).
		WithArgs(defaultListLimit).
		WillReturnRows(pgxmock.NewRows(siteCols))

	sites, err := s.ListSites(context.Background(), SiteFilter{})
	require.NoError(t, err)
	assert.Empty(t, sites)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertSites(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_sites"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_sites"}, siteUpsert.Columns).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "sites" .* ON CONFLICT \("external_ref"\) DO UPDATE SET "name" = EXCLUDED."name"`).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := s.UpsertSites(context.Background(), []model.Site{
		{ExternalRef: "P-1", Name: "One", Latitude: 30, Longitude: -97},
		{ExternalRef: "P-2", Name: "Two", Latitude: 31, Longitude: -98},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertSites_MissingExternalRef(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	_, err := s.UpsertSites(context.Background(), []model.Site{{Name: "One", Latitude: 30, Longitude: -97}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "external reference is required")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateSiteStatus(t *testing.T) {
	now := time.Now().UTC()
	tests := []struct {
		name    string
		from    model.SiteStatus
		to      model.SiteStatus
		updated int64
		wantErr error
	}{
		{name: "pending to evaluated", from: model.SiteStatusPending, to: model.SiteStatusEvaluated, updated: 1},
		{name: "evaluated to approved", from: model.SiteStatusEvaluated, to: model.SiteStatusApproved, updated: 1},
		{name: "pending to approved", from: model.SiteStatusPending, to: model.SiteStatusApproved, wantErr: ErrInvalidTransition},
		{name: "concurrent change", from: model.SiteStatusPending, to: model.SiteStatusEvaluated, updated: 0, wantErr: ErrInvalidTransition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockPostgresStore(t)

			mock.ExpectQuery(`FROM sites WHERE id = \$1`).
				WithArgs("site-1").
				WillReturnRows(pgxmock.NewRows(siteCols).
					AddRow("site-1", "", "A", "", 1.0, 2.0, 0.0, "", tt.from, now, now))
			if tt.from.CanTransition(tt.to) {
				mock.ExpectExec(`UPDATE sites SET status = \$1, updated_at = \$2 WHERE id = \$3 AND status = \$4`).
					WithArgs(string(tt.to), pgxmock.AnyArg(), "site-1", string(tt.from)).
					WillReturnResult(pgxmock.NewResult("UPDATE", tt.updated))
			}

			err := s.UpdateSiteStatus(context.Background(), "site-1", tt.to)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, eris.Is(err, tt.wantErr))
			} else {
				require.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresStore_CreateConfig(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`INSERT INTO evaluation_configs .* COALESCE\(MAX\(version\), 0\) \+ 1 .* RETURNING version`).
		WithArgs(pgxmock.AnyArg(), "baseline", pgxmock.AnyArg(), "analyst", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"version"}).AddRow(3))

	cfg := &model.EvaluationConfig{Name: "baseline", Parameters: testParameters(), CreatedBy: "analyst", Active: true}
	require.NoError(t, s.CreateConfig(context.Background(), cfg))
	assert.Equal(t, 3, cfg.Version)
	assert.NotEmpty(t, cfg.ID)
	assert.False(t, cfg.Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateConfig_InvalidParameters(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	params := testParameters()
	params.Weights.Grid = -1
	err := s.CreateConfig(context.Background(), &model.EvaluationConfig{Name: "bad", Parameters: params})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weight grid must be >= 0")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ActivateConfig(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE evaluation_configs SET active = false WHERE active`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE evaluation_configs SET active = true WHERE id = \$1`).
		WithArgs("cfg-2").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	require.NoError(t, s.ActivateConfig(context.Background(), "cfg-2"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ActivateConfig_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE evaluation_configs SET active = false WHERE active`).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE evaluation_configs SET active = true WHERE id = \$1`).
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := s.ActivateConfig(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ActiveConfig(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	params, err := json.Marshal(testParameters())
	require.NoError(t, err)
	now := time.Now().UTC()

	mock.ExpectQuery(`FROM evaluation_configs WHERE active`).
		WillReturnRows(pgxmock.NewRows([]string{"id", "version", "name", "parameters", "active", "created_by", "created_at"}).
			AddRow("cfg-1", 1, "baseline", params, true, "analyst", now))

	cfg, err := s.ActiveConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cfg-1", cfg.ID)
	assert.Equal(t, testParameters(), cfg.Parameters)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ActiveConfig_None(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM evaluation_configs WHERE active`).WillReturnError(pgx.ErrNoRows)

	_, err := s.ActiveConfig(context.Background())
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNoActiveConfig))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func sampleRecord() *model.EvaluationRecord {
	return &model.EvaluationRecord{
		ID:             "eval-1",
		SiteID:         "site-1",
		GridScore:      80,
		SetbackScore:   100,
		RoadScore:      70,
		PoleScore:      50,
		TotalScore:     75,
		WeightedScore:  80.5,
		Recommendation: model.RecommendationExcellent,
		Details: model.CriterionDetails{
			Grid: model.CriterionSummary[model.GridDetail]{Passed: true, Reason: "substation",
				Detail: &model.GridDetail{AssetID: "sub-1", DistanceM: 420.5}},
			Setback: model.CriterionSummary[model.SetbackDetail]{Passed: true, Reason: "clear"},
		},
		ConfigID:       "cfg-1",
		ConfigSnapshot: testParameters(),
		EvaluatedBy:    "analyst",
		EvaluatedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestPostgresStore_SaveEvaluation(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	rec := sampleRecord()

	mock.ExpectExec(`INSERT INTO evaluations`).
		WithArgs("eval-1", "site-1", 80.0, 100.0, 70.0, 50.0, 75.0, 80.5, "excellent", "",
			pgxmock.AnyArg(), "cfg-1", pgxmock.AnyArg(), "analyst", rec.EvaluatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SaveEvaluation(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

var evaluationCols = []string{"id", "site_id", "grid_score", "setback_score", "road_score", "pole_score", "total_score",
	"weighted_score", "recommendation", "recommendation_reason", "details", "config_id", "config_snapshot",
	"evaluated_by", "evaluated_at"}

func recordValues(t *testing.T, rec *model.EvaluationRecord) []any {
	t.Helper()
	details, snapshot, err := encodeRecord(rec)
	require.NoError(t, err)
	return []any{rec.ID, rec.SiteID, rec.GridScore, rec.SetbackScore, rec.RoadScore, rec.PoleScore, rec.TotalScore,
		rec.WeightedScore, rec.Recommendation, rec.RecommendationReason, details, rec.ConfigID, snapshot,
		rec.EvaluatedBy, rec.EvaluatedAt}
}

func TestPostgresStore_ListEvaluations(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	rec := sampleRecord()

	mock.ExpectQuery(`FROM evaluations e WHERE e.site_id = \$1 ORDER BY e.evaluated_at DESC, e.id DESC`).
		WithArgs("site-1").
		WillReturnRows(pgxmock.NewRows(evaluationCols).AddRow(recordValues(t, rec)...))

	recs, err := s.ListEvaluations(context.Background(), "site-1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, *rec, recs[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CurrentEvaluations(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	rec := sampleRecord()
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	cols := append(append([]string{}, evaluationCols...),
		"name", "address", "status", "area_sqm", "land_use", "latitude", "longitude", "created_at")
	vals := append(recordValues(t, rec), "North Field", "1 Farm Rd", model.SiteStatusEvaluated, 12000.0, "agricultural", 30.1, -97.1, created)

	mock.ExpectQuery(`DISTINCT ON \(site_id\)`).
		WillReturnRows(pgxmock.NewRows(cols).AddRow(vals...))

	rows, err := s.CurrentEvaluations(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "North Field", rows[0].SiteName)
	assert.Equal(t, 80.5, rows[0].WeightedScore)
	assert.Equal(t, created, rows[0].SiteCreatedAt)
	d, ok := rows[0].GridDistanceM()
	assert.True(t, ok)
	assert.Equal(t, 420.5, d)
	assert.NoError(t, mock.ExpectationsWereMet())
}
