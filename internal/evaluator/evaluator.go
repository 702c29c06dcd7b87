// Package evaluator scores candidate BESS sites against grid connectivity,
// setback compliance, road access and pole proximity, and combines the four
// scores into a recommendation.
package evaluator

import (
	"context"
	"math"

	"github.com/sells-group/site-screener/internal/geospatial"
	"github.com/sells-group/site-screener/internal/model"
)

// Evaluator scores one criterion for a site location. Implementations issue
// read-only spatial queries and hold no mutable state.
type Evaluator interface {
	Criterion() model.Criterion
	Evaluate(ctx context.Context, site model.Point, params model.Parameters) (model.CriterionResult, error)
}

// DefaultEvaluators returns the four evaluators in canonical order.
// roadCandidates bounds how many nearby roads are reported; values <= 0 use
// the default of 5.
func DefaultEvaluators(store geospatial.SpatialStore, roadCandidates int) []Evaluator {
	return []Evaluator{
		NewGridEvaluator(store),
		NewSetbackEvaluator(store),
		NewRoadEvaluator(store, roadCandidates),
		NewPoleEvaluator(store),
	}
}

// decay maps distance onto [0, 100], falling linearly to 0 at maxDistance.
func decay(distance, maxDistance float64) float64 {
	if maxDistance <= 0 {
		return 0
	}
	return 100 * math.Max(0, 1-distance/maxDistance)
}

func clampScore(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
