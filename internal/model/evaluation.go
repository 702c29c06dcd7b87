package model

import (
	"math"
	"time"
)

// Criterion names one of the four site screening checks.
type Criterion string

const (
	CriterionGrid    Criterion = "grid"
	CriterionSetback Criterion = "setback"
	CriterionRoad    Criterion = "road"
	CriterionPole    Criterion = "pole"
)

// AllCriteria returns the criteria in their canonical order.
func AllCriteria() []Criterion {
	return []Criterion{CriterionGrid, CriterionSetback, CriterionRoad, CriterionPole}
}

// Recommendation is the discrete suitability tier of an evaluated site.
type Recommendation string

const (
	RecommendationExcellent  Recommendation = "excellent"
	RecommendationGood       Recommendation = "good"
	RecommendationFair       Recommendation = "fair"
	RecommendationPoor       Recommendation = "poor"
	RecommendationUnsuitable Recommendation = "unsuitable"
)

// AllRecommendations returns the tiers from best to worst.
func AllRecommendations() []Recommendation {
	return []Recommendation{
		RecommendationExcellent,
		RecommendationGood,
		RecommendationFair,
		RecommendationPoor,
		RecommendationUnsuitable,
	}
}

// Valid reports whether r is a known tier.
func (r Recommendation) Valid() bool {
	for _, t := range AllRecommendations() {
		if r == t {
			return true
		}
	}
	return false
}

// CriterionResult is the transient output of one evaluator. Score is always
// within [0, 100].
type CriterionResult struct {
	Criterion Criterion `json:"criterion"`
	Score     float64   `json:"score"`
	Passed    bool      `json:"passed"`
	Reason    string    `json:"reason"`
	Details   any       `json:"details,omitempty"`
}

// GridDetail describes the grid asset chosen for scoring.
type GridDetail struct {
	SearchRadiusM  float64 `json:"search_radius_m"`
	CandidateCount int     `json:"candidate_count"`
	AssetID        string  `json:"asset_id,omitempty"`
	AssetName      string  `json:"asset_name,omitempty"`
	AssetType      string  `json:"asset_type,omitempty"`
	DistanceM      float64 `json:"distance_m,omitempty"`
	CapacityKW     float64 `json:"capacity_kw,omitempty"`
	DistanceScore  float64 `json:"distance_score"`
	CapacityScore  float64 `json:"capacity_score"`
	TypeBonus      float64 `json:"type_bonus"`
}

// SetbackSeverity distinguishes disqualifying findings from advisory ones.
type SetbackSeverity string

const (
	SeverityViolation SetbackSeverity = "violation"
	SeverityWarning   SetbackSeverity = "warning"
)

// SetbackFinding is a single amenity closer than its required setback.
type SetbackFinding struct {
	AmenityType string          `json:"amenity_type"`
	Category    string          `json:"category"`
	Name        string          `json:"name,omitempty"`
	DistanceM   float64         `json:"distance_m"`
	RequiredM   float64         `json:"required_m"`
	Severity    SetbackSeverity `json:"severity"`
}

// SetbackDetail reports every setback finding around a site.
type SetbackDetail struct {
	SearchRadiusM          float64          `json:"search_radius_m"`
	AmenitiesChecked       int              `json:"amenities_checked"`
	Violations             []SetbackFinding `json:"violations"`
	Warnings               []SetbackFinding `json:"warnings"`
	MinResidentialDistance *float64         `json:"min_residential_distance_m,omitempty"`
	ClearanceBonus         float64          `json:"clearance_bonus"`
}

// RoadCandidate is one of the nearest roads considered for access.
type RoadCandidate struct {
	ID        string  `json:"id"`
	Name      string  `json:"name,omitempty"`
	Type      string  `json:"type"`
	DistanceM float64 `json:"distance_m"`
	WidthM    float64 `json:"width_m"`
}

// RoadDetail describes the road used for scoring.
type RoadDetail struct {
	SearchRadiusM  float64         `json:"search_radius_m"`
	Candidates     []RoadCandidate `json:"candidates,omitempty"`
	RoadType       string          `json:"road_type,omitempty"`
	RoadName       string          `json:"road_name,omitempty"`
	DistanceM      float64         `json:"distance_m,omitempty"`
	EstimatedWidth float64         `json:"estimated_width_m,omitempty"`
	WidthExplicit  bool            `json:"width_explicit"`
	DistanceScore  float64         `json:"distance_score"`
	WidthScore     float64         `json:"width_score"`
	TypeBonus      float64         `json:"type_bonus"`
}

// PoleDetail describes the nearest utility pole.
type PoleDetail struct {
	SearchRadiusM float64 `json:"search_radius_m"`
	Found         bool    `json:"found"`
	PoleID        string  `json:"pole_id,omitempty"`
	DistanceM     float64 `json:"distance_m,omitempty"`
}

// CriterionDetails groups the diagnostic detail of all four criteria as
// persisted on an EvaluationRecord.
type CriterionDetails struct {
	Grid    CriterionSummary[GridDetail]    `json:"grid"`
	Setback CriterionSummary[SetbackDetail] `json:"setback"`
	Road    CriterionSummary[RoadDetail]    `json:"road"`
	Pole    CriterionSummary[PoleDetail]    `json:"pole"`
}

// CriterionSummary is the persisted form of a CriterionResult.
type CriterionSummary[T any] struct {
	Passed bool   `json:"passed"`
	Reason string `json:"reason"`
	Detail *T     `json:"detail,omitempty"`
}

// EvaluationRecord is the append-only output of one evaluation run.
type EvaluationRecord struct {
	ID                   string           `json:"id"`
	SiteID               string           `json:"site_id"`
	GridScore            float64          `json:"grid_score"`
	SetbackScore         float64          `json:"setback_score"`
	RoadScore            float64          `json:"road_score"`
	PoleScore            float64          `json:"pole_score"`
	TotalScore           float64          `json:"total_score"`
	WeightedScore        float64          `json:"weighted_score"`
	Recommendation       Recommendation   `json:"recommendation"`
	RecommendationReason string           `json:"recommendation_reason"`
	Details              CriterionDetails `json:"details"`
	ConfigID             string           `json:"config_id,omitempty"`
	ConfigSnapshot       Parameters       `json:"config_snapshot"`
	EvaluatedBy          string           `json:"evaluated_by"`
	EvaluatedAt          time.Time        `json:"evaluated_at"`
}

// Score returns the persisted score of a single criterion.
func (r *EvaluationRecord) Score(c Criterion) float64 {
	switch c {
	case CriterionGrid:
		return r.GridScore
	case CriterionSetback:
		return r.SetbackScore
	case CriterionRoad:
		return r.RoadScore
	case CriterionPole:
		return r.PoleScore
	default:
		return 0
	}
}

// HasSetbackViolation reports whether the setback hard gate failed.
func (r *EvaluationRecord) HasSetbackViolation() bool {
	return !r.Details.Setback.Passed
}

// GridDistanceM returns the distance to the scored grid asset, or false when
// no qualifying asset was found.
func (r *EvaluationRecord) GridDistanceM() (float64, bool) {
	d := r.Details.Grid.Detail
	if d == nil || d.AssetID == "" {
		return 0, false
	}
	return d.DistanceM, true
}

// ScreeningRow is the current evaluation of a site joined with its attributes.
type ScreeningRow struct {
	EvaluationRecord
	SiteName      string     `json:"site_name"`
	SiteAddress   string     `json:"site_address,omitempty"`
	SiteStatus    SiteStatus `json:"site_status"`
	AreaSqm       float64    `json:"area_sqm"`
	LandUse       string     `json:"land_use,omitempty"`
	Latitude      float64    `json:"latitude"`
	Longitude     float64    `json:"longitude"`
	SiteCreatedAt time.Time  `json:"site_created_at"`
}

// Round1 rounds v to one decimal place.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
