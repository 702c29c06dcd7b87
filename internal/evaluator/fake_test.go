package evaluator

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/site-screener/internal/geospatial"
	"github.com/sells-group/site-screener/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var testSite = model.Point{Lat: 36.35, Lng: 127.38}

func defaultParams() model.Parameters {
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

// fakeStore serves canned features per category and applies the radius,
// filters, type ranking and limit the way a real store would.
type fakeStore struct {
	mu       sync.Mutex
	features map[geospatial.Category][]geospatial.Feature
	errs     map[geospatial.Category]error
	queries  []geospatial.NearestQuery
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		features: make(map[geospatial.Category][]geospatial.Feature),
		errs:     make(map[geospatial.Category]error),
	}
}

func (s *fakeStore) add(c geospatial.Category, fs ...geospatial.Feature) *fakeStore {
	for i := range fs {
		fs[i].Category = c
	}
	s.features[c] = append(s.features[c], fs...)
	return s
}

func (s *fakeStore) Nearest(_ context.Context, q geospatial.NearestQuery) ([]geospatial.Feature, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, q)
	if err := s.errs[q.Category]; err != nil {
		return nil, err
	}

	var out []geospatial.Feature
	for _, f := range s.features[q.Category] {
		if f.DistanceM > q.RadiusM {
			continue
		}
		if !q.Accepts(f) {
			continue
		}
		out = append(out, f)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if ri, rj := q.Rank(out[i].Type), q.Rank(out[j].Type); ri != rj {
			return ri < rj
		}
		return out[i].DistanceM < out[j].DistanceM
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *fakeStore) query(c geospatial.Category) (geospatial.NearestQuery, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.queries {
		if q.Category == c {
			return q, true
		}
	}
	return geospatial.NearestQuery{}, false
}

func capacity(kw float64) map[string]any {
	return map[string]any{AttrCapacityKW: kw}
}
