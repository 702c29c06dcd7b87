// Package screening filters, sorts and summarises the current evaluation of
// every site.
package screening

import (
	"math"
	"strings"

	"github.com/sells-group/site-screener/internal/model"
)

// Sort columns accepted by Criteria.SortBy.
const (
	SortSiteName      = "site_name"
	SortGridScore     = "grid_score"
	SortSetbackScore  = "setback_score"
	SortRoadScore     = "road_score"
	SortPoleScore     = "pole_score"
	SortTotalScore    = "total_score"
	SortWeightedScore = "weighted_score"
	SortArea          = "area"
	SortEvaluatedAt   = "evaluated_at"
	SortCreatedAt     = "created_at"
)

// Sort orders.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// Pagination defaults used when the engine is built with zero limits.
const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// Range is an optional inclusive numeric interval. A nil bound is open.
type Range struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// IsZero reports whether neither bound is set.
func (r Range) IsZero() bool { return r.Min == nil && r.Max == nil }

func (r Range) contains(v float64) bool {
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

// normalize drops NaN bounds, and drops the whole range when inverted.
func (r Range) normalize() Range {
	if r.Min != nil && math.IsNaN(*r.Min) {
		r.Min = nil
	}
	if r.Max != nil && math.IsNaN(*r.Max) {
		r.Max = nil
	}
	if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		return Range{}
	}
	return r
}

// Criteria is an ad-hoc set of optional filters. Zero-valued fields match
// every row.
type Criteria struct {
	WeightedScore    Range                  `json:"weighted_score"`
	MinGridScore     *float64               `json:"min_grid_score,omitempty"`
	MinSetbackScore  *float64               `json:"min_setback_score,omitempty"`
	MinRoadScore     *float64               `json:"min_road_score,omitempty"`
	MinPoleScore     *float64               `json:"min_pole_score,omitempty"`
	Recommendations  []model.Recommendation `json:"recommendations,omitempty"`
	Statuses         []model.SiteStatus     `json:"statuses,omitempty"`
	Area             Range                  `json:"area"`
	LandUses         []string               `json:"land_uses,omitempty"`
	MaxGridDistanceM *float64               `json:"max_grid_distance_m,omitempty"`
	SetbackViolation *bool                  `json:"setback_violation,omitempty"`
	Search           string                 `json:"search,omitempty"`

	SortBy string `json:"sort_by,omitempty"`
	Order  string `json:"order,omitempty"`
	Page   int    `json:"page,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

var sortable = map[string]bool{
	SortSiteName:      true,
	SortGridScore:     true,
	SortSetbackScore:  true,
	SortRoadScore:     true,
	SortPoleScore:     true,
	SortTotalScore:    true,
	SortWeightedScore: true,
	SortArea:          true,
	SortEvaluatedAt:   true,
	SortCreatedAt:     true,
}

// Normalize returns a copy of c with invalid values replaced by safe
// defaults. It never fails.
func (c Criteria) Normalize(defaultLimit, maxLimit int) Criteria {
	if maxLimit <= 0 {
		maxLimit = MaxLimit
	}
	if defaultLimit <= 0 || defaultLimit > maxLimit {
		defaultLimit = min(DefaultLimit, maxLimit)
	}

	c.WeightedScore = c.WeightedScore.normalize()
	c.Area = c.Area.normalize()
	for _, p := range []**float64{&c.MinGridScore, &c.MinSetbackScore, &c.MinRoadScore, &c.MinPoleScore, &c.MaxGridDistanceM} {
		if *p != nil && math.IsNaN(**p) {
			*p = nil
		}
	}

	var recs []model.Recommendation
	for _, r := range c.Recommendations {
		r = model.Recommendation(strings.ToLower(strings.TrimSpace(string(r))))
		if r.Valid() {
			recs = append(recs, r)
		}
	}
	c.Recommendations = recs

	var statuses []model.SiteStatus
	for _, s := range c.Statuses {
		s = model.SiteStatus(strings.ToLower(strings.TrimSpace(string(s))))
		if s.Valid() {
			statuses = append(statuses, s)
		}
	}
	c.Statuses = statuses

	var landUses []string
	for _, l := range c.LandUses {
		if l = strings.TrimSpace(l); l != "" {
			landUses = append(landUses, l)
		}
	}
	c.LandUses = landUses
	c.Search = strings.TrimSpace(c.Search)

	c.SortBy = strings.ToLower(strings.TrimSpace(c.SortBy))
	if !sortable[c.SortBy] {
		c.SortBy = SortWeightedScore
	}
	c.Order = strings.ToLower(strings.TrimSpace(c.Order))
	if c.Order != OrderAsc {
		c.Order = OrderDesc
	}
	if c.Page < 1 {
		c.Page = 1
	}
	switch {
	case c.Limit <= 0:
		c.Limit = defaultLimit
	case c.Limit > maxLimit:
		c.Limit = maxLimit
	}
	return c
}
