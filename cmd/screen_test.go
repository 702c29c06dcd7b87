package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/site-screener/internal/model"
	"github.com/sells-group/site-screener/internal/screening"
)

func parseScreenFlags(t *testing.T, args ...string) screening.Criteria {
	t.Helper()
	cmd := &cobra.Command{Use: "screen"}
	addScreenFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	c, err := criteriaFromFlags(cmd)
	require.NoError(t, err)
	return c
}

func TestCriteriaFromFlags_Defaults(t *testing.T) {
	c := parseScreenFlags(t)

	assert.True(t, c.WeightedScore.IsZero())
	assert.True(t, c.Area.IsZero())
	assert.Nil(t, c.MinGridScore)
	assert.Nil(t, c.MaxGridDistanceM)
	assert.Nil(t, c.SetbackViolation)
	assert.Empty(t, c.Recommendations)
	assert.Equal(t, screening.SortWeightedScore, c.SortBy)
	assert.Equal(t, screening.OrderDesc, c.Order)
	assert.Equal(t, 1, c.Page)
	assert.Equal(t, 0, c.Limit)
}

func TestCriteriaFromFlags_ZeroIsAFilter(t *testing.T) {
	c := parseScreenFlags(t, "--min-score", "0", "--setback-violation=false")

	require.NotNil(t, c.WeightedScore.Min)
	assert.Zero(t, *c.WeightedScore.Min)
	require.NotNil(t, c.SetbackViolation)
	assert.False(t, *c.SetbackViolation)
}

func TestCriteriaFromFlags_All(t *testing.T) {
	c := parseScreenFlags(t,
		"--min-score", "40", "--max-score", "90",
		"--min-grid", "50", "--min-setback", "60", "--min-road", "70", "--min-pole", "80",
		"--min-area", "1000", "--max-area", "5000",
		"--max-grid-distance", "750",
		"--recommendation", "excellent", "--recommendation", "good",
		"--status", "evaluated",
		"--land-use", "industrial,agricultural",
		"--search", "farm",
		"--sort", "area", "--order", "asc", "--page", "3", "--limit", "25",
	)

	assert.InDelta(t, 40, *c.WeightedScore.Min, 1e-9)
	assert.InDelta(t, 90, *c.WeightedScore.Max, 1e-9)
	assert.InDelta(t, 50, *c.MinGridScore, 1e-9)
	assert.InDelta(t, 60, *c.MinSetbackScore, 1e-9)
	assert.InDelta(t, 70, *c.MinRoadScore, 1e-9)
	assert.InDelta(t, 80, *c.MinPoleScore, 1e-9)
	assert.InDelta(t, 1000, *c.Area.Min, 1e-9)
	assert.InDelta(t, 5000, *c.Area.Max, 1e-9)
	assert.InDelta(t, 750, *c.MaxGridDistanceM, 1e-9)
	assert.Equal(t, []model.Recommendation{model.RecommendationExcellent, model.RecommendationGood}, c.Recommendations)
	assert.Equal(t, []model.SiteStatus{model.SiteStatusEvaluated}, c.Statuses)
	assert.Equal(t, []string{"industrial", "agricultural"}, c.LandUses)
	assert.Equal(t, "farm", c.Search)
	assert.Equal(t, screening.SortArea, c.SortBy)
	assert.Equal(t, screening.OrderAsc, c.Order)
	assert.Equal(t, 3, c.Page)
	assert.Equal(t, 25, c.Limit)
}

func TestFormatScreening(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 15, 0, 0, time.UTC)
	res := &screening.Result{
		Results: []model.ScreeningRow{{
			EvaluationRecord: model.EvaluationRecord{
				SiteID:         "site-1",
				WeightedScore:  82.5,
				Recommendation: model.RecommendationExcellent,
				EvaluatedAt:    now,
			},
			SiteName:   "North Farm Parcel",
			SiteStatus: model.SiteStatusEvaluated,
			AreaSqm:    4200,
		}},
		Stats:      screening.Stats{TotalSites: 10, MatchingSites: 1, AverageScore: 82.5},
		Page:       1,
		TotalPages: 1,
	}

	var buf bytes.Buffer
	formatScreening(&buf, res)
	out := buf.String()

	assert.Contains(t, out, "SITE_ID")
	assert.Contains(t, out, "North Farm Parcel")
	assert.Contains(t, out, "82.5")
	assert.Contains(t, out, "excellent")
	assert.Contains(t, out, "2026-03-02 09:15")
	assert.Contains(t, out, "matching 1 of 10")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
