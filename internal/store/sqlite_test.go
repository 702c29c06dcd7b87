package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/site-screener/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func createTestSite(t *testing.T, st *SQLiteStore, name string) *model.Site {
	t.Helper()
	site := &model.Site{Name: name, Address: name + " Road", Latitude: 30.1, Longitude: -97.1, AreaSqm: 12000, LandUse: "agricultural"}
	require.NoError(t, st.CreateSite(context.Background(), site))
	return site
}

// --- Sites ---

func TestSQLite_CreateAndGetSite(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	site := createTestSite(t, st, "North Field")

	got, err := st.GetSite(ctx, site.ID)
	require.NoError(t, err)
	assert.Equal(t, "North Field", got.Name)
	assert.Equal(t, "North Field Road", got.Address)
	assert.Equal(t, model.SiteStatusPending, got.Status)
	assert.InDelta(t, 30.1, got.Latitude, 1e-9)
	assert.WithinDuration(t, site.CreatedAt, got.CreatedAt, time.Second)
}

func TestSQLite_GetSite_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetSite(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLite_ListSites(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a := createTestSite(t, st, "A")
	createTestSite(t, st, "B")
	createTestSite(t, st, "C")
	require.NoError(t, st.UpdateSiteStatus(ctx, a.ID, model.SiteStatusEvaluated))

	pending, err := st.ListSites(ctx, SiteFilter{Status: model.SiteStatusPending})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	page, err := st.ListSites(ctx, SiteFilter{Limit: 2, Offset: 1})
	require.NoError(t, err)
	assert.Len(t, page, 2)
}

func TestSQLite_UpsertSites_KeepsIdentity(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	n, err := st.UpsertSites(ctx, []model.Site{
		{ExternalRef: "P-1", Name: "One", Latitude: 30, Longitude: -97},
		{ExternalRef: "P-2", Name: "Two", Latitude: 31, Longitude: -98},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	before, err := st.ListSites(ctx, SiteFilter{})
	require.NoError(t, err)
	require.Len(t, before, 2)
	require.NoError(t, st.UpdateSiteStatus(ctx, before[0].ID, model.SiteStatusEvaluated))

	_, err = st.UpsertSites(ctx, []model.Site{{ExternalRef: before[0].ExternalRef, Name: "Renamed", Latitude: 30, Longitude: -97}})
	require.NoError(t, err)

	got, err := st.GetSite(ctx, before[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, model.SiteStatusEvaluated, got.Status)

	all, err := st.ListSites(ctx, SiteFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSQLite_UpdateSiteStatus_Lifecycle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	site := createTestSite(t, st, "A")

	err := st.UpdateSiteStatus(ctx, site.ID, model.SiteStatusApproved)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrInvalidTransition))

	require.NoError(t, st.UpdateSiteStatus(ctx, site.ID, model.SiteStatusEvaluated))
	require.NoError(t, st.UpdateSiteStatus(ctx, site.ID, model.SiteStatusRejected))

	err = st.UpdateSiteStatus(ctx, site.ID, model.SiteStatusApproved)
	assert.True(t, eris.Is(err, ErrInvalidTransition))

	err = st.UpdateSiteStatus(ctx, "missing", model.SiteStatusEvaluated)
	assert.True(t, eris.Is(err, ErrNotFound))
}

// --- Evaluation configs ---

func TestSQLite_Configs_VersionAndActivation(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.ActiveConfig(ctx)
	assert.True(t, eris.Is(err, ErrNoActiveConfig))

	first := &model.EvaluationConfig{Name: "baseline", Parameters: testParameters()}
	require.NoError(t, st.CreateConfig(ctx, first))
	second := &model.EvaluationConfig{Name: "strict", Parameters: testParameters()}
	second.Parameters.Thresholds.GridMinCapacityKW = 500
	require.NoError(t, st.CreateConfig(ctx, second))

	assert.Equal(t, 1, first.Version)
	assert.Equal(t, 2, second.Version)

	require.NoError(t, st.ActivateConfig(ctx, first.ID))
	require.NoError(t, st.ActivateConfig(ctx, second.ID))

	active, err := st.ActiveConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, active.ID)
	assert.True(t, active.Active)
	assert.Equal(t, 500.0, active.Parameters.Thresholds.GridMinCapacityKW)

	cfgs, err := st.ListConfigs(ctx)
	require.NoError(t, err)
	require.Len(t, cfgs, 2)
	assert.Equal(t, 2, cfgs[0].Version)
	assert.False(t, cfgs[1].Active)
}

func TestSQLite_ActivateConfig_NotFoundKeepsActive(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	cfg := &model.EvaluationConfig{Name: "baseline", Parameters: testParameters()}
	require.NoError(t, st.CreateConfig(ctx, cfg))
	require.NoError(t, st.ActivateConfig(ctx, cfg.ID))

	err := st.ActivateConfig(ctx, "missing")
	assert.True(t, eris.Is(err, ErrNotFound))

	active, err := st.ActiveConfig(ctx)
	require.NoError(t, err)
	assert.Equal(t, cfg.ID, active.ID)
}

// --- Evaluations ---

func TestSQLite_Evaluations_HistoryAndCurrent(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	a := createTestSite(t, st, "Alpha")
	b := createTestSite(t, st, "Bravo")
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	save := func(id, siteID string, weighted float64, at time.Time) {
		rec := sampleRecord()
		rec.ID = id
		rec.SiteID = siteID
		rec.WeightedScore = weighted
		rec.EvaluatedAt = at
		require.NoError(t, st.SaveEvaluation(ctx, rec))
	}
	save("eval-a1", a.ID, 40, base)
	save("eval-a2", a.ID, 70, base.Add(time.Hour))
	save("eval-b1", b.ID, 55, base.Add(30*time.Minute))

	history, err := st.ListEvaluations(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "eval-a2", history[0].ID)
	assert.Equal(t, "eval-a1", history[1].ID)
	assert.Equal(t, testParameters(), history[0].ConfigSnapshot)
	require.NotNil(t, history[0].Details.Grid.Detail)
	assert.Equal(t, "sub-1", history[0].Details.Grid.Detail.AssetID)

	current, err := st.CurrentEvaluations(ctx)
	require.NoError(t, err)
	require.Len(t, current, 2)
	byID := map[string]model.ScreeningRow{}
	for _, r := range current {
		byID[r.SiteID] = r
	}
	assert.Equal(t, "eval-a2", byID[a.ID].ID)
	assert.Equal(t, 70.0, byID[a.ID].WeightedScore)
	assert.Equal(t, "Alpha", byID[a.ID].SiteName)
	assert.Equal(t, "Alpha Road", byID[a.ID].SiteAddress)
	assert.Equal(t, "eval-b1", byID[b.ID].ID)
}

func TestSQLite_Ping(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.Ping(context.Background()))
	assert.NotNil(t, st.DB())
}
