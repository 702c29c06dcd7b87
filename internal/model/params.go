package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Weights holds the per-criterion multipliers applied to raw scores.
// They conventionally sum to 1.0 but are applied verbatim.
type Weights struct {
	Grid    float64 `json:"grid" yaml:"grid" mapstructure:"grid"`
	Setback float64 `json:"setback" yaml:"setback" mapstructure:"setback"`
	Road    float64 `json:"road" yaml:"road" mapstructure:"road"`
	Pole    float64 `json:"pole" yaml:"pole" mapstructure:"pole"`
}

// Sum returns the total of all four weights.
func (w Weights) Sum() float64 {
	return w.Grid + w.Setback + w.Road + w.Pole
}

// For returns the weight of a single criterion.
func (w Weights) For(c Criterion) float64 {
	switch c {
	case CriterionGrid:
		return w.Grid
	case CriterionSetback:
		return w.Setback
	case CriterionRoad:
		return w.Road
	case CriterionPole:
		return w.Pole
	default:
		return 0
	}
}

// Thresholds holds the distance and capacity limits used by the evaluators.
type Thresholds struct {
	GridMaxDistanceM    float64 `json:"grid_max_distance_m" yaml:"grid_max_distance_m" mapstructure:"grid_max_distance_m"`
	GridMinCapacityKW   float64 `json:"grid_min_capacity_kw" yaml:"grid_min_capacity_kw" mapstructure:"grid_min_capacity_kw"`
	ResidentialSetbackM float64 `json:"residential_setback_m" yaml:"residential_setback_m" mapstructure:"residential_setback_m"`
	SchoolSetbackM      float64 `json:"school_setback_m" yaml:"school_setback_m" mapstructure:"school_setback_m"`
	HospitalSetbackM    float64 `json:"hospital_setback_m" yaml:"hospital_setback_m" mapstructure:"hospital_setback_m"`
	RoadMaxDistanceM    float64 `json:"road_max_distance_m" yaml:"road_max_distance_m" mapstructure:"road_max_distance_m"`
	RoadMinWidthM       float64 `json:"road_min_width_m" yaml:"road_min_width_m" mapstructure:"road_min_width_m"`
	PoleMaxDistanceM    float64 `json:"pole_max_distance_m" yaml:"pole_max_distance_m" mapstructure:"pole_max_distance_m"`
}

// Parameters is the full set of tunables an evaluation runs under.
type Parameters struct {
	Weights    Weights    `json:"weights" yaml:"weights" mapstructure:"weights"`
	Thresholds Thresholds `json:"thresholds" yaml:"thresholds" mapstructure:"thresholds"`
}

// MaxSetbackM returns the largest of the three setback radii.
func (p Parameters) MaxSetbackM() float64 {
	m := p.Thresholds.ResidentialSetbackM
	if p.Thresholds.SchoolSetbackM > m {
		m = p.Thresholds.SchoolSetbackM
	}
	if p.Thresholds.HospitalSetbackM > m {
		m = p.Thresholds.HospitalSetbackM
	}
	return m
}

// Validate rejects negative weights and non-positive search radii. It does
// not require the weights to sum to 1.
func (p Parameters) Validate() error {
	var errs []string

	weights := map[string]float64{
		"grid":    p.Weights.Grid,
		"setback": p.Weights.Setback,
		"road":    p.Weights.Road,
		"pole":    p.Weights.Pole,
	}
	for name, w := range weights {
		if w < 0 {
			errs = append(errs, fmt.Sprintf("weight %s must be >= 0", name))
		}
	}
	if p.Weights.Sum() <= 0 {
		errs = append(errs, "weight sum must be > 0")
	}

	t := p.Thresholds
	radii := map[string]float64{
		"grid_max_distance_m":   t.GridMaxDistanceM,
		"residential_setback_m": t.ResidentialSetbackM,
		"school_setback_m":      t.SchoolSetbackM,
		"hospital_setback_m":    t.HospitalSetbackM,
		"road_max_distance_m":   t.RoadMaxDistanceM,
		"pole_max_distance_m":   t.PoleMaxDistanceM,
	}
	for name, v := range radii {
		if v <= 0 {
			errs = append(errs, fmt.Sprintf("%s must be > 0", name))
		}
	}
	if t.GridMinCapacityKW < 0 {
		errs = append(errs, "grid_min_capacity_kw must be >= 0")
	}
	if t.RoadMinWidthM < 0 {
		errs = append(errs, "road_min_width_m must be >= 0")
	}

	if len(errs) > 0 {
		return eris.Errorf("model: invalid parameters: %s", strings.Join(errs, "; "))
	}
	return nil
}

// EvaluationConfig is an immutable, versioned parameter set. Exactly one
// config is active at a time.
type EvaluationConfig struct {
	ID         string     `json:"id"`
	Version    int        `json:"version"`
	Name       string     `json:"name"`
	Parameters Parameters `json:"parameters"`
	Active     bool       `json:"active"`
	CreatedBy  string     `json:"created_by,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}
