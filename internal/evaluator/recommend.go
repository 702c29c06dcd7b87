package evaluator

import (
	"fmt"

	"github.com/sells-group/site-screener/internal/model"
)

var tiers = []struct {
	min    float64
	rec    model.Recommendation
	reason string
}{
	{80, model.RecommendationExcellent, "Highly suitable for BESS installation"},
	{65, model.RecommendationGood, "Suitable with minor concerns"},
	{50, model.RecommendationFair, "Potentially suitable; review weaker criteria"},
	{30, model.RecommendationPoor, "Significant concerns; not recommended without mitigation"},
}

// Classify returns the recommendation tier for a raw weighted score. A
// failed setback gate overrides the score and reuses the setback reason.
func Classify(weighted float64, setback model.CriterionResult) (model.Recommendation, string) {
	if !setback.Passed {
		return model.RecommendationUnsuitable, setback.Reason
	}
	for _, t := range tiers {
		if weighted >= t.min {
			return t.rec, fmt.Sprintf("%s (weighted score %.1f)", t.reason, weighted)
		}
	}
	return model.RecommendationUnsuitable, fmt.Sprintf("Unsuitable: weighted score %.1f is below 30", weighted)
}
