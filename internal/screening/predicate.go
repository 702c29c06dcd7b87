package screening

import (
	"slices"
	"strings"

	"golang.org/x/text/cases"

	"github.com/sells-group/site-screener/internal/model"
)

// Predicate is one AND-ed screening condition.
type Predicate struct {
	Name  string
	Match func(row *model.ScreeningRow) bool
}

// BuildPredicates translates normalized criteria into predicates. Absent
// criteria contribute nothing, so an empty criteria set yields no
// predicates and matches every row.
func BuildPredicates(c Criteria) []Predicate {
	var preds []Predicate
	add := func(name string, match func(*model.ScreeningRow) bool) {
		preds = append(preds, Predicate{Name: name, Match: match})
	}

	if !c.WeightedScore.IsZero() {
		r := c.WeightedScore
		add("weighted_score", func(row *model.ScreeningRow) bool { return r.contains(row.WeightedScore) })
	}

	floors := []struct {
		criterion model.Criterion
		min       *float64
	}{
		{model.CriterionGrid, c.MinGridScore},
		{model.CriterionSetback, c.MinSetbackScore},
		{model.CriterionRoad, c.MinRoadScore},
		{model.CriterionPole, c.MinPoleScore},
	}
	for _, f := range floors {
		if f.min == nil {
			continue
		}
		criterion, floor := f.criterion, *f.min
		add("min_"+string(criterion)+"_score", func(row *model.ScreeningRow) bool {
			return row.Score(criterion) >= floor
		})
	}

	if len(c.Recommendations) > 0 {
		recs := c.Recommendations
		add("recommendation", func(row *model.ScreeningRow) bool { return slices.Contains(recs, row.Recommendation) })
	}

	if len(c.Statuses) > 0 {
		statuses := c.Statuses
		add("status", func(row *model.ScreeningRow) bool { return slices.Contains(statuses, row.SiteStatus) })
	}

	if !c.Area.IsZero() {
		r := c.Area
		add("area", func(row *model.ScreeningRow) bool { return r.contains(row.AreaSqm) })
	}

	if len(c.LandUses) > 0 {
		folder := cases.Fold()
		uses := make(map[string]bool, len(c.LandUses))
		for _, l := range c.LandUses {
			uses[folder.String(l)] = true
		}
		add("land_use", func(row *model.ScreeningRow) bool { return uses[folder.String(row.LandUse)] })
	}

	if c.MaxGridDistanceM != nil {
		maxDist := *c.MaxGridDistanceM
		add("max_grid_distance", func(row *model.ScreeningRow) bool {
			d, ok := row.GridDistanceM()
			return ok && d <= maxDist
		})
	}

	if c.SetbackViolation != nil {
		want := *c.SetbackViolation
		add("setback_violation", func(row *model.ScreeningRow) bool { return row.HasSetbackViolation() == want })
	}

	if c.Search != "" {
		folder := cases.Fold()
		needle := folder.String(c.Search)
		add("search", func(row *model.ScreeningRow) bool {
			return strings.Contains(folder.String(row.SiteName), needle) ||
				strings.Contains(folder.String(row.SiteAddress), needle)
		})
	}

	return preds
}

// MatchAll reports whether row satisfies every predicate.
func MatchAll(preds []Predicate, row *model.ScreeningRow) bool {
	for _, p := range preds {
		if !p.Match(row) {
			return false
		}
	}
	return true
}
