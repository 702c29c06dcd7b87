package screening

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/site-screener/internal/model"
)

func TestCriteria_NormalizeDefaults(t *testing.T) {
	c := Criteria{}.Normalize(0, 0)
	assert.Equal(t, SortWeightedScore, c.SortBy)
	assert.Equal(t, OrderDesc, c.Order)
	assert.Equal(t, 1, c.Page)
	assert.Equal(t, DefaultLimit, c.Limit)
	assert.Empty(t, BuildPredicates(c))
}

func TestCriteria_NormalizeLimits(t *testing.T) {
	assert.Equal(t, 20, Criteria{}.Normalize(20, 100).Limit)
	assert.Equal(t, 100, Criteria{Limit: 1000}.Normalize(20, 100).Limit)
	assert.Equal(t, 7, Criteria{Limit: 7}.Normalize(20, 100).Limit)
	assert.Equal(t, 10, Criteria{}.Normalize(50, 10).Limit)
	assert.Equal(t, 1, Criteria{Page: -4}.Normalize(0, 0).Page)
}

func TestCriteria_NormalizeSort(t *testing.T) {
	c := Criteria{SortBy: " Site_Name ", Order: "ASC"}.Normalize(0, 0)
	assert.Equal(t, SortSiteName, c.SortBy)
	assert.Equal(t, OrderAsc, c.Order)

	c = Criteria{SortBy: "password", Order: "random"}.Normalize(0, 0)
	assert.Equal(t, SortWeightedScore, c.SortBy)
	assert.Equal(t, OrderDesc, c.Order)
}

func TestCriteria_NormalizeRanges(t *testing.T) {
	c := Criteria{
		WeightedScore:    Range{Min: ptr(80.0), Max: ptr(20.0)},
		Area:             Range{Min: ptr(math.NaN()), Max: ptr(5000.0)},
		MinRoadScore:     ptr(math.NaN()),
		MaxGridDistanceM: ptr(750.0),
	}.Normalize(0, 0)

	assert.True(t, c.WeightedScore.IsZero())
	assert.Nil(t, c.Area.Min)
	assert.Equal(t, 5000.0, *c.Area.Max)
	assert.Nil(t, c.MinRoadScore)
	assert.Equal(t, 750.0, *c.MaxGridDistanceM)
}

func TestCriteria_NormalizeSets(t *testing.T) {
	c := Criteria{
		Recommendations: []model.Recommendation{"Excellent", "bogus", " poor "},
		Statuses:        []model.SiteStatus{"PENDING", "archived"},
		LandUses:        []string{" farmland ", ""},
		Search:          "   ",
	}.Normalize(0, 0)

	assert.Equal(t, []model.Recommendation{model.RecommendationExcellent, model.RecommendationPoor}, c.Recommendations)
	assert.Equal(t, []model.SiteStatus{model.SiteStatusPending}, c.Statuses)
	assert.Equal(t, []string{"farmland"}, c.LandUses)
	assert.Empty(t, c.Search)
	assert.Empty(t, BuildPredicates(Criteria{Recommendations: []model.Recommendation{"bogus"}}.Normalize(0, 0)))
}

func TestRange_Contains(t *testing.T) {
	r := Range{Min: ptr(10.0), Max: ptr(20.0)}
	assert.True(t, r.contains(10))
	assert.True(t, r.contains(20))
	assert.False(t, r.contains(9.9))
	assert.False(t, r.contains(20.1))
	assert.True(t, Range{}.contains(-1))
}

func TestBuildPredicates_Names(t *testing.T) {
	c := Criteria{
		WeightedScore:    Range{Min: ptr(1.0)},
		MinPoleScore:     ptr(10.0),
		SetbackViolation: ptr(false),
		Search:           "asan",
	}.Normalize(0, 0)

	var names []string
	for _, p := range BuildPredicates(c) {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"weighted_score", "min_pole_score", "setback_violation", "search"}, names)
}
