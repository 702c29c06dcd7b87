package evaluator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/site-screener/internal/geospatial"
	"github.com/sells-group/site-screener/internal/model"
)

func TestPoleEvaluator_NoneFound(t *testing.T) {
	res, err := NewPoleEvaluator(newFakeStore()).Evaluate(context.Background(), testSite, defaultParams())
	require.NoError(t, err)
	assert.Equal(t, 50.0, res.Score)
	assert.True(t, res.Passed)
	assert.Contains(t, res.Reason, "not critical")
	assert.False(t, res.Details.(*model.PoleDetail).Found)
}

func TestPoleEvaluator_Bands(t *testing.T) {
	tests := []struct {
		distance float64
		score    float64
		band     string
	}{
		{0, 100, "excellent"},
		{40, 80, "excellent"},
		{50, 75, "good"},
		{99, 50.5, "good"},
		{100, 50, "acceptable"},
		{150, 25, "acceptable"},
		{200, 0, "acceptable"},
	}
	for _, tt := range tests {
		store := newFakeStore().add(geospatial.CategoryPole,
			geospatial.Feature{ID: "p1", DistanceM: tt.distance},
			geospatial.Feature{ID: "p2", DistanceM: tt.distance + 1},
		)
		res, err := NewPoleEvaluator(store).Evaluate(context.Background(), testSite, defaultParams())
		require.NoError(t, err)
		assert.InDelta(t, tt.score, res.Score, 1e-9, "distance %v", tt.distance)
		assert.True(t, res.Passed)
		assert.Contains(t, res.Reason, tt.band)

		d := res.Details.(*model.PoleDetail)
		assert.True(t, d.Found)
		assert.Equal(t, "p1", d.PoleID)
	}
}

func TestPoleEvaluator_StoreError(t *testing.T) {
	store := newFakeStore()
	store.errs[geospatial.CategoryPole] = errors.New("timeout")
	_, err := NewPoleEvaluator(store).Evaluate(context.Background(), testSite, defaultParams())
	assert.ErrorContains(t, err, "evaluator: pole query")
}

func TestDecay(t *testing.T) {
	assert.Equal(t, 100.0, decay(0, 100))
	assert.Equal(t, 50.0, decay(50, 100))
	assert.Zero(t, decay(150, 100))
	assert.Zero(t, decay(10, 0))
}
