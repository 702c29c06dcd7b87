package evaluator

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"

	"github.com/sells-group/site-screener/internal/geospatial"
	"github.com/sells-group/site-screener/internal/model"
)

const neutralPoleScore = 50.0

// PoleEvaluator rewards a nearby utility pole. It never fails a site.
type PoleEvaluator struct {
	store geospatial.SpatialStore
}

// NewPoleEvaluator creates a PoleEvaluator.
func NewPoleEvaluator(store geospatial.SpatialStore) *PoleEvaluator {
	return &PoleEvaluator{store: store}
}

// Criterion implements Evaluator.
func (e *PoleEvaluator) Criterion() model.Criterion { return model.CriterionPole }

// Evaluate implements Evaluator.
func (e *PoleEvaluator) Evaluate(ctx context.Context, site model.Point, params model.Parameters) (model.CriterionResult, error) {
	maxDist := params.Thresholds.PoleMaxDistanceM
	poles, err := e.store.Nearest(ctx, geospatial.NearestQuery{
		Point:    site,
		Category: geospatial.CategoryPole,
		RadiusM:  maxDist,
		Limit:    1,
	})
	if err != nil {
		return model.CriterionResult{}, eris.Wrap(err, "evaluator: pole query")
	}

	detail := &model.PoleDetail{SearchRadiusM: maxDist}
	if len(poles) == 0 {
		return model.CriterionResult{
			Criterion: model.CriterionPole,
			Score:     neutralPoleScore,
			Passed:    true,
			Reason:    fmt.Sprintf("No utility pole within %.0fm; not critical", maxDist),
			Details:   detail,
		}, nil
	}

	p := poles[0]
	detail.Found = true
	detail.PoleID = p.ID
	detail.DistanceM = p.DistanceM

	band := "acceptable"
	switch {
	case p.DistanceM < 50:
		band = "excellent"
	case p.DistanceM < 100:
		band = "good"
	}
	return model.CriterionResult{
		Criterion: model.CriterionPole,
		Score:     decay(p.DistanceM, maxDist),
		Passed:    true,
		Reason:    fmt.Sprintf("Utility pole at %.0fm (%s)", p.DistanceM, band),
		Details:   detail,
	}, nil
}
