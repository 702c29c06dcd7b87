package evaluator

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/site-screener/internal/geospatial"
	"github.com/sells-group/site-screener/internal/model"
)

// Amenity classes with a setback radius.
const (
	AmenityResidential = "residential"
	AmenitySchool      = "school"
	AmenityHospital    = "hospital"
	AmenityOther       = "other"
)

const (
	setbackCandidateLimit = 500
	warningPenalty        = 15.0
	clearanceBonus        = 20.0
)

var amenityKeywords = []struct {
	class    string
	keywords []string
}{
	{AmenityResidential, []string{"residential", "house", "apartment"}},
	{AmenitySchool, []string{"school", "kindergarten", "college"}},
	{AmenityHospital, []string{"hospital", "clinic"}},
}

// setbackTypes lists every amenity keyword, residential first, so the
// residential gate survives the candidate limit.
var setbackTypes = func() []string {
	var out []string
	for _, k := range amenityKeywords {
		out = append(out, k.keywords...)
	}
	return out
}()

// ClassifyAmenity maps a free-form amenity type label onto a setback class.
func ClassifyAmenity(amenityType string) string {
	t := strings.ToLower(amenityType)
	for _, k := range amenityKeywords {
		for _, kw := range k.keywords {
			if strings.Contains(t, kw) {
				return k.class
			}
		}
	}
	return AmenityOther
}

// SetbackEvaluator checks required distances from residences, schools and
// hospitals. Only the residential setback is a hard gate.
type SetbackEvaluator struct {
	store geospatial.SpatialStore
}

// NewSetbackEvaluator creates a SetbackEvaluator.
func NewSetbackEvaluator(store geospatial.SpatialStore) *SetbackEvaluator {
	return &SetbackEvaluator{store: store}
}

// Criterion implements Evaluator.
func (e *SetbackEvaluator) Criterion() model.Criterion { return model.CriterionSetback }

// Evaluate implements Evaluator.
func (e *SetbackEvaluator) Evaluate(ctx context.Context, site model.Point, params model.Parameters) (model.CriterionResult, error) {
	t := params.Thresholds
	radius := params.MaxSetbackM()
	detail := &model.SetbackDetail{
		SearchRadiusM: radius,
		Violations:    []model.SetbackFinding{},
		Warnings:      []model.SetbackFinding{},
	}

	var amenities []geospatial.Feature
	if radius > 0 {
		var err error
		amenities, err = e.store.Nearest(ctx, geospatial.NearestQuery{
			Point:    site,
			Category: geospatial.CategoryAmenity,
			RadiusM:  radius,
			Limit:    setbackCandidateLimit,
			TypeAny:  setbackTypes,
			TypeRank: setbackTypes,
		})
		if err != nil {
			return model.CriterionResult{}, eris.Wrap(err, "evaluator: setback query")
		}
		sort.SliceStable(amenities, func(i, j int) bool { return amenities[i].DistanceM < amenities[j].DistanceM })
	}
	detail.AmenitiesChecked = len(amenities)

	required := map[string]float64{
		AmenityResidential: t.ResidentialSetbackM,
		AmenitySchool:      t.SchoolSetbackM,
		AmenityHospital:    t.HospitalSetbackM,
	}

	minResidential := math.Inf(1)
	for _, a := range amenities {
		class := ClassifyAmenity(a.Type)
		if class == AmenityOther {
			continue
		}
		if class == AmenityResidential && a.DistanceM < minResidential {
			minResidential = a.DistanceM
		}
		if a.DistanceM >= required[class] {
			continue
		}
		f := model.SetbackFinding{
			AmenityType: a.Type,
			Category:    class,
			Name:        a.Name,
			DistanceM:   model.Round1(a.DistanceM),
			RequiredM:   required[class],
			Severity:    model.SeverityWarning,
		}
		if class == AmenityResidential {
			f.Severity = model.SeverityViolation
			detail.Violations = append(detail.Violations, f)
		} else {
			detail.Warnings = append(detail.Warnings, f)
		}
	}
	if !math.IsInf(minResidential, 1) {
		d := model.Round1(minResidential)
		detail.MinResidentialDistance = &d
	}

	if len(detail.Violations) > 0 {
		v := detail.Violations[0]
		return model.CriterionResult{
			Criterion: model.CriterionSetback,
			Score:     0,
			Passed:    false,
			Reason: fmt.Sprintf("Residential setback violated: %s at %.0fm (required %.0fm)",
				findingLabel(v), v.DistanceM, v.RequiredM),
			Details: detail,
		}, nil
	}

	score := math.Max(0, 100-warningPenalty*float64(len(detail.Warnings)))
	if minResidential >= 2*t.ResidentialSetbackM {
		detail.ClearanceBonus = math.Min(clearanceBonus, 100-score)
		score += detail.ClearanceBonus
	}

	reason := fmt.Sprintf("No setback conflicts within %.0fm", radius)
	if n := len(detail.Warnings); n > 0 {
		w := detail.Warnings[0]
		reason = fmt.Sprintf("%d setback warning(s); nearest %s at %.0fm (recommended %.0fm)",
			n, findingLabel(w), w.DistanceM, w.RequiredM)
	}
	return model.CriterionResult{
		Criterion: model.CriterionSetback,
		Score:     clampScore(score),
		Passed:    true,
		Reason:    reason,
		Details:   detail,
	}, nil
}

func findingLabel(f model.SetbackFinding) string {
	if f.Name != "" {
		return fmt.Sprintf("%s %q", f.Category, f.Name)
	}
	return f.Category
}
