package evaluator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/site-screener/internal/model"
)

// Aggregator runs every evaluator for a site and folds the results into an
// EvaluationRecord. Any evaluator error fails the whole evaluation.
type Aggregator struct {
	evaluators []Evaluator
	now        func() time.Time
}

// NewAggregator creates an Aggregator. Exactly one evaluator per criterion
// is expected.
func NewAggregator(evaluators ...Evaluator) *Aggregator {
	return &Aggregator{evaluators: evaluators, now: time.Now}
}

// Evaluate scores site under cfg. The returned record is not persisted.
func (a *Aggregator) Evaluate(ctx context.Context, site *model.Site, cfg *model.EvaluationConfig, evaluatedBy string) (*model.EvaluationRecord, error) {
	if site == nil || cfg == nil {
		return nil, eris.New("evaluator: site and config are required")
	}
	loc := site.Location()
	if !loc.Valid() {
		return nil, eris.Errorf("evaluator: site %s has invalid coordinates %.6f,%.6f", site.ID, loc.Lat, loc.Lng)
	}
	params := cfg.Parameters

	results := make([]model.CriterionResult, len(a.evaluators))
	g, gctx := errgroup.WithContext(ctx)
	for i, ev := range a.evaluators {
		g.Go(func() error {
			res, err := ev.Evaluate(gctx, loc, params)
			if err != nil {
				return eris.Wrapf(err, "evaluator: %s", ev.Criterion())
			}
			res.Criterion = ev.Criterion()
			res.Score = clampScore(res.Score)
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	byCriterion := make(map[model.Criterion]model.CriterionResult, len(results))
	for _, r := range results {
		byCriterion[r.Criterion] = r
	}
	for _, c := range model.AllCriteria() {
		if _, ok := byCriterion[c]; !ok {
			return nil, eris.Errorf("evaluator: no result for criterion %s", c)
		}
	}

	var total, weighted float64
	for _, c := range model.AllCriteria() {
		s := byCriterion[c].Score
		total += s
		weighted += s * params.Weights.For(c)
	}
	total /= float64(len(model.AllCriteria()))

	rec, reason := Classify(weighted, byCriterion[model.CriterionSetback])

	record := &model.EvaluationRecord{
		ID:                   uuid.NewString(),
		SiteID:               site.ID,
		GridScore:            model.Round1(byCriterion[model.CriterionGrid].Score),
		SetbackScore:         model.Round1(byCriterion[model.CriterionSetback].Score),
		RoadScore:            model.Round1(byCriterion[model.CriterionRoad].Score),
		PoleScore:            model.Round1(byCriterion[model.CriterionPole].Score),
		TotalScore:           model.Round1(total),
		WeightedScore:        model.Round1(weighted),
		Recommendation:       rec,
		RecommendationReason: reason,
		Details:              buildDetails(byCriterion),
		ConfigID:             cfg.ID,
		ConfigSnapshot:       params,
		EvaluatedBy:          evaluatedBy,
		EvaluatedAt:          a.now().UTC(),
	}

	zap.L().Info("evaluator: site evaluated",
		zap.String("site_id", site.ID),
		zap.Float64("weighted_score", record.WeightedScore),
		zap.String("recommendation", string(rec)),
	)
	return record, nil
}

func buildDetails(results map[model.Criterion]model.CriterionResult) model.CriterionDetails {
	grid := results[model.CriterionGrid]
	setback := results[model.CriterionSetback]
	road := results[model.CriterionRoad]
	pole := results[model.CriterionPole]

	gd, _ := grid.Details.(*model.GridDetail)
	sd, _ := setback.Details.(*model.SetbackDetail)
	rd, _ := road.Details.(*model.RoadDetail)
	pd, _ := pole.Details.(*model.PoleDetail)

	return model.CriterionDetails{
		Grid:    model.CriterionSummary[model.GridDetail]{Passed: grid.Passed, Reason: grid.Reason, Detail: gd},
		Setback: model.CriterionSummary[model.SetbackDetail]{Passed: setback.Passed, Reason: setback.Reason, Detail: sd},
		Road:    model.CriterionSummary[model.RoadDetail]{Passed: road.Passed, Reason: road.Reason, Detail: rd},
		Pole:    model.CriterionSummary[model.PoleDetail]{Passed: pole.Passed, Reason: pole.Reason, Detail: pd},
	}
}
