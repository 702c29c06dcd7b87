package evaluator

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/site-screener/internal/geospatial"
	"github.com/sells-group/site-screener/internal/model"
)

const (
	// AttrCapacityKW is the feature attribute holding spare grid capacity.
	AttrCapacityKW = "available_capacity_kw"

	gridCandidateLimit = 50
	substationBonus    = 20.0
)

// gridTypes is the asset preference order: substations, then lines.
var gridTypes = []string{"substation", "line"}

// GridEvaluator scores access to a grid asset with enough spare capacity.
type GridEvaluator struct {
	store geospatial.SpatialStore
}

// NewGridEvaluator creates a GridEvaluator.
func NewGridEvaluator(store geospatial.SpatialStore) *GridEvaluator {
	return &GridEvaluator{store: store}
}

// Criterion implements Evaluator.
func (e *GridEvaluator) Criterion() model.Criterion { return model.CriterionGrid }

// Evaluate picks the best qualifying asset (substation, then line, then
// anything else; nearest first within a type) and blends distance decay
// with capacity adequacy.
func (e *GridEvaluator) Evaluate(ctx context.Context, site model.Point, params model.Parameters) (model.CriterionResult, error) {
	t := params.Thresholds
	q := geospatial.NearestQuery{
		Point:    site,
		Category: geospatial.CategoryGrid,
		RadiusM:  t.GridMaxDistanceM,
		Limit:    gridCandidateLimit,
		TypeRank: gridTypes,
	}
	if t.GridMinCapacityKW > 0 {
		q.MinAttr = &geospatial.AttrFloor{Key: AttrCapacityKW, Min: t.GridMinCapacityKW}
	}

	assets, err := e.store.Nearest(ctx, q)
	if err != nil {
		return model.CriterionResult{}, eris.Wrap(err, "evaluator: grid query")
	}

	detail := &model.GridDetail{SearchRadiusM: t.GridMaxDistanceM, CandidateCount: len(assets)}
	if len(assets) == 0 {
		return model.CriterionResult{
			Criterion: model.CriterionGrid,
			Score:     0,
			Passed:    false,
			Reason: fmt.Sprintf("No grid asset with %.0f kW available capacity within %.0fm",
				t.GridMinCapacityKW, t.GridMaxDistanceM),
			Details: detail,
		}, nil
	}

	best := bestGridAsset(assets)
	capacity, _ := best.Float(AttrCapacityKW)

	detail.AssetID = best.ID
	detail.AssetName = best.Name
	detail.AssetType = best.Type
	detail.DistanceM = best.DistanceM
	detail.CapacityKW = capacity
	detail.DistanceScore = decay(best.DistanceM, t.GridMaxDistanceM)
	detail.CapacityScore = 100
	if t.GridMinCapacityKW > 0 {
		detail.CapacityScore = math.Min(100, capacity/t.GridMinCapacityKW*50)
	}
	if gridTypeRank(best.Type) == 0 {
		detail.TypeBonus = substationBonus
	}

	score := clampScore(0.5*detail.DistanceScore + 0.5*detail.CapacityScore + detail.TypeBonus)
	label := best.Type
	if label == "" {
		label = "grid asset"
	}
	return model.CriterionResult{
		Criterion: model.CriterionGrid,
		Score:     score,
		Passed:    score >= 50,
		Reason:    fmt.Sprintf("Nearest qualifying %s at %.0fm with %.0f kW available", label, best.DistanceM, capacity),
		Details:   detail,
	}, nil
}

// gridTypeRank orders asset types: substations first, then lines.
func gridTypeRank(assetType string) int {
	return geospatial.NearestQuery{TypeRank: gridTypes}.Rank(assetType)
}

func bestGridAsset(assets []geospatial.Feature) geospatial.Feature {
	ranked := make([]geospatial.Feature, len(assets))
	copy(ranked, assets)
	sort.SliceStable(ranked, func(i, j int) bool {
		ri, rj := gridTypeRank(ranked[i].Type), gridTypeRank(ranked[j].Type)
		if ri != rj {
			return ri < rj
		}
		return ranked[i].DistanceM < ranked[j].DistanceM
	})
	return ranked[0]
}
