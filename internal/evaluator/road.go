package evaluator

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/site-screener/internal/geospatial"
	"github.com/sells-group/site-screener/internal/model"
)

const (
	// AttrWidth is the feature attribute holding an explicit road width in metres.
	AttrWidth = "width"

	defaultRoadCandidates = 5
	defaultRoadWidthM     = 4.0
)

var roadWidths = []struct {
	keywords []string
	widthM   float64
}{
	{[]string{"highway", "motorway"}, 12},
	{[]string{"primary", "trunk"}, 8},
	{[]string{"secondary"}, 6},
	{[]string{"tertiary"}, 5},
}

// EstimateRoadWidth returns the typical width of a road type.
func EstimateRoadWidth(roadType string) float64 {
	t := strings.ToLower(roadType)
	for _, w := range roadWidths {
		for _, kw := range w.keywords {
			if strings.Contains(t, kw) {
				return w.widthM
			}
		}
	}
	return defaultRoadWidthM
}

func roadTypeBonus(roadType string) float64 {
	t := strings.ToLower(roadType)
	switch {
	case strings.Contains(t, "highway"), strings.Contains(t, "motorway"):
		return 20
	case strings.Contains(t, "primary"):
		return 10
	default:
		return 0
	}
}

// RoadEvaluator scores access to a road wide enough for equipment delivery.
type RoadEvaluator struct {
	store      geospatial.SpatialStore
	candidates int
}

// NewRoadEvaluator creates a RoadEvaluator reporting up to candidates nearby
// roads.
func NewRoadEvaluator(store geospatial.SpatialStore, candidates int) *RoadEvaluator {
	if candidates <= 0 {
		candidates = defaultRoadCandidates
	}
	return &RoadEvaluator{store: store, candidates: candidates}
}

// Criterion implements Evaluator.
func (e *RoadEvaluator) Criterion() model.Criterion { return model.CriterionRoad }

// Evaluate scores the nearest road. Width adequacy is required in addition
// to a passing blended score.
func (e *RoadEvaluator) Evaluate(ctx context.Context, site model.Point, params model.Parameters) (model.CriterionResult, error) {
	t := params.Thresholds
	roads, err := e.store.Nearest(ctx, geospatial.NearestQuery{
		Point:    site,
		Category: geospatial.CategoryRoad,
		RadiusM:  t.RoadMaxDistanceM,
		Limit:    e.candidates,
	})
	if err != nil {
		return model.CriterionResult{}, eris.Wrap(err, "evaluator: road query")
	}

	detail := &model.RoadDetail{SearchRadiusM: t.RoadMaxDistanceM}
	if len(roads) == 0 {
		return model.CriterionResult{
			Criterion: model.CriterionRoad,
			Score:     0,
			Passed:    false,
			Reason:    fmt.Sprintf("No road within %.0fm", t.RoadMaxDistanceM),
			Details:   detail,
		}, nil
	}

	for _, r := range roads {
		w, _ := roadWidth(r)
		detail.Candidates = append(detail.Candidates, model.RoadCandidate{
			ID:        r.ID,
			Name:      r.Name,
			Type:      r.Type,
			DistanceM: model.Round1(r.DistanceM),
			WidthM:    w,
		})
	}

	nearest := roads[0]
	width, explicit := roadWidth(nearest)
	detail.RoadType = nearest.Type
	detail.RoadName = nearest.Name
	detail.DistanceM = nearest.DistanceM
	detail.EstimatedWidth = width
	detail.WidthExplicit = explicit
	detail.DistanceScore = decay(nearest.DistanceM, t.RoadMaxDistanceM)
	detail.WidthScore = 100
	if width < t.RoadMinWidthM {
		detail.WidthScore = width / t.RoadMinWidthM * 100
	}
	detail.TypeBonus = roadTypeBonus(nearest.Type)

	score := clampScore(0.5*detail.DistanceScore + 0.5*detail.WidthScore + detail.TypeBonus)
	wideEnough := width >= t.RoadMinWidthM
	passed := score >= 50 && wideEnough

	label := nearest.Type
	if label == "" {
		label = "road"
	}
	if nearest.Name != "" {
		label = fmt.Sprintf("%s %q", label, nearest.Name)
	}
	reason := fmt.Sprintf("Nearest %s at %.0fm, width %.1fm", label, nearest.DistanceM, width)
	if !wideEnough {
		reason += fmt.Sprintf(" is below the required %.1fm", t.RoadMinWidthM)
	}
	return model.CriterionResult{
		Criterion: model.CriterionRoad,
		Score:     score,
		Passed:    passed,
		Reason:    reason,
		Details:   detail,
	}, nil
}

// roadWidth prefers an explicit positive width attribute over the type
// lookup table.
func roadWidth(f geospatial.Feature) (float64, bool) {
	if w, ok := f.Float(AttrWidth); ok && w > 0 && !math.IsNaN(w) {
		return w, true
	}
	return EstimateRoadWidth(f.Type), false
}
