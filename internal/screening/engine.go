package screening

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/site-screener/internal/model"
)

// Source supplies the latest evaluation of every evaluated site joined with
// its site attributes.
type Source interface {
	CurrentEvaluations(ctx context.Context) ([]model.ScreeningRow, error)
}

// Stats summarises a screening.
type Stats struct {
	TotalSites              int                          `json:"total_sites"`
	MatchingSites           int                          `json:"matching_sites"`
	AverageScore            float64                      `json:"average_score"`
	RecommendationBreakdown map[model.Recommendation]int `json:"recommendation_breakdown"`
}

// Result is one page of matching rows plus statistics over all matches.
type Result struct {
	Results    []model.ScreeningRow `json:"results"`
	Stats      Stats                `json:"stats"`
	Criteria   Criteria             `json:"criteria"`
	Page       int                  `json:"page"`
	Limit      int                  `json:"limit"`
	TotalPages int                  `json:"total_pages"`
}

// Engine runs read-only screenings. It is safe for concurrent use.
type Engine struct {
	source       Source
	defaultLimit int
	maxLimit     int
}

// NewEngine creates an Engine. Zero limits fall back to DefaultLimit and
// MaxLimit.
func NewEngine(source Source, defaultLimit, maxLimit int) *Engine {
	return &Engine{source: source, defaultLimit: defaultLimit, maxLimit: maxLimit}
}

// Screen filters, sorts and paginates the current evaluations.
func (e *Engine) Screen(ctx context.Context, c Criteria) (*Result, error) {
	c = c.Normalize(e.defaultLimit, e.maxLimit)

	rows, err := e.source.CurrentEvaluations(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "screening: load current evaluations")
	}

	matched := filter(rows, BuildPredicates(c))
	sortRows(matched, c.SortBy, c.Order)

	res := &Result{
		Stats:      computeStats(len(rows), matched),
		Criteria:   c,
		Page:       c.Page,
		Limit:      c.Limit,
		TotalPages: (len(matched) + c.Limit - 1) / c.Limit,
		Results:    []model.ScreeningRow{},
	}
	if start := (c.Page - 1) * c.Limit; start < len(matched) {
		res.Results = matched[start:min(start+c.Limit, len(matched))]
	}

	zap.L().Debug("screening: screened sites",
		zap.Int("total", res.Stats.TotalSites),
		zap.Int("matching", res.Stats.MatchingSites),
		zap.Int("page", c.Page),
	)
	return res, nil
}

// Stats returns statistics for the criteria without materializing a page.
func (e *Engine) Stats(ctx context.Context, c Criteria) (*Stats, error) {
	c = c.Normalize(e.defaultLimit, e.maxLimit)

	rows, err := e.source.CurrentEvaluations(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "screening: load current evaluations")
	}
	stats := computeStats(len(rows), filter(rows, BuildPredicates(c)))
	return &stats, nil
}

func filter(rows []model.ScreeningRow, preds []Predicate) []model.ScreeningRow {
	matched := make([]model.ScreeningRow, 0, len(rows))
	for i := range rows {
		if MatchAll(preds, &rows[i]) {
			matched = append(matched, rows[i])
		}
	}
	return matched
}

// computeStats averages weighted scores over matching rows. Tiers with no
// matches are omitted from the breakdown.
func computeStats(total int, matched []model.ScreeningRow) Stats {
	s := Stats{
		TotalSites:              total,
		MatchingSites:           len(matched),
		RecommendationBreakdown: make(map[model.Recommendation]int),
	}
	if len(matched) == 0 {
		return s
	}
	var sum float64
	for _, r := range matched {
		sum += r.WeightedScore
		s.RecommendationBreakdown[r.Recommendation]++
	}
	s.AverageScore = model.Round1(sum / float64(len(matched)))
	return s
}

func sortKey(column string) func(a, b *model.ScreeningRow) int {
	switch column {
	case SortSiteName:
		return func(a, b *model.ScreeningRow) int {
			return strings.Compare(strings.ToLower(a.SiteName), strings.ToLower(b.SiteName))
		}
	case SortGridScore, SortSetbackScore, SortRoadScore, SortPoleScore:
		criterion := model.Criterion(strings.TrimSuffix(column, "_score"))
		return func(a, b *model.ScreeningRow) int { return cmp.Compare(a.Score(criterion), b.Score(criterion)) }
	case SortTotalScore:
		return func(a, b *model.ScreeningRow) int { return cmp.Compare(a.TotalScore, b.TotalScore) }
	case SortArea:
		return func(a, b *model.ScreeningRow) int { return cmp.Compare(a.AreaSqm, b.AreaSqm) }
	case SortEvaluatedAt:
		return func(a, b *model.ScreeningRow) int { return a.EvaluatedAt.Compare(b.EvaluatedAt) }
	case SortCreatedAt:
		return func(a, b *model.ScreeningRow) int { return a.SiteCreatedAt.Compare(b.SiteCreatedAt) }
	default:
		return func(a, b *model.ScreeningRow) int { return cmp.Compare(a.WeightedScore, b.WeightedScore) }
	}
}

// sortRows orders rows by column; ties break on site id ascending so pages
// are stable across calls.
func sortRows(rows []model.ScreeningRow, column, order string) {
	key := sortKey(column)
	slices.SortStableFunc(rows, func(a, b model.ScreeningRow) int {
		c := key(&a, &b)
		if order == OrderDesc {
			c = -c
		}
		if c != 0 {
			return c
		}
		return strings.Compare(a.SiteID, b.SiteID)
	})
}
