package geospatial

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/site-screener/internal/model"
	"github.com/sells-group/site-screener/internal/resilience"
)

type stubSpatialStore struct {
	calls    int
	err      error
	features []Feature
}

func (s *stubSpatialStore) Nearest(_ context.Context, _ NearestQuery) ([]Feature, error) {
	s.calls++
	return s.features, s.err
}

func TestGuardedStore_PassesThrough(t *testing.T) {
	inner := &stubSpatialStore{features: []Feature{{ID: "1", DistanceM: 12}}}
	g := NewGuardedStore(inner, 2, time.Minute)

	got, err := g.Nearest(context.Background(), NearestQuery{Point: model.Point{Lat: 1, Lng: 1}, Category: CategoryPole, RadiusM: 100})
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, resilience.CircuitClosed, g.State())
}

func TestGuardedStore_OpensAfterFailures(t *testing.T) {
	inner := &stubSpatialStore{err: errors.New("connection refused")}
	g := NewGuardedStore(inner, 2, time.Minute)
	q := NearestQuery{Point: model.Point{Lat: 1, Lng: 1}, Category: CategoryGrid, RadiusM: 100}

	for range 2 {
		_, err := g.Nearest(context.Background(), q)
		assert.ErrorContains(t, err, "connection refused")
	}
	assert.Equal(t, resilience.CircuitOpen, g.State())

	_, err := g.Nearest(context.Background(), q)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 2, inner.calls)
}
