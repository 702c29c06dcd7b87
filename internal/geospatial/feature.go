package geospatial

import (
	"context"
	"encoding/json"
	"regexp"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/site-screener/internal/model"
)

// Category is the layer a spatial feature belongs to.
type Category string

const (
	CategoryGrid    Category = "grid"
	CategoryAmenity Category = "amenity"
	CategoryRoad    Category = "road"
	CategoryPole    Category = "pole"
)

// validCategories is the allowlist of feature layers that may be queried or loaded.
var validCategories = map[Category]bool{
	CategoryGrid:    true,
	CategoryAmenity: true,
	CategoryRoad:    true,
	CategoryPole:    true,
}

// ParseCategory normalizes a layer name. "highway" is accepted as an alias
// for the road layer.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if c == "highway" {
		c = CategoryRoad
	}
	if !validCategories[c] {
		return "", eris.Errorf("geo: invalid feature category %q", s)
	}
	return c, nil
}

// Feature is a spatial feature returned by a Nearest query.
type Feature struct {
	ID         string         `json:"id"`
	Category   Category       `json:"category"`
	Type       string         `json:"type"`
	Name       string         `json:"name,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
	DistanceM  float64        `json:"distance_m"`
}

// numericPattern is the decimal number syntax accepted for string
// attributes. PostGIS applies the same pattern before casting.
const numericPattern = `^\s*[-+]?([0-9]+\.?[0-9]*|\.[0-9]+)([eE][-+]?[0-9]+)?\s*$`

var numericText = regexp.MustCompile(numericPattern)

// Float reads a numeric attribute. Decimal strings are accepted.
func (f Feature) Float(key string) (float64, bool) {
	v, ok := f.Attributes[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		x, err := n.Float64()
		return x, err == nil
	case string:
		if !numericText.MatchString(n) {
			return 0, false
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return x, err == nil
	default:
		return 0, false
	}
}

// AttrFloor restricts results to features whose numeric attribute Key is at
// least Min.
type AttrFloor struct {
	Key string
	Min float64
}

func (a *AttrFloor) match(f Feature) bool {
	if a == nil {
		return true
	}
	v, ok := f.Float(a.Key)
	return ok && v >= a.Min
}

// NearestQuery asks for features of one category within RadiusM of Point.
type NearestQuery struct {
	Point    model.Point
	Category Category
	RadiusM  float64
	Limit    int
	MinAttr  *AttrFloor

	// TypeAny keeps only features whose type contains one of the keywords.
	TypeAny []string
	// TypeRank orders results by the first keyword found in the type, ahead
	// of distance. Types matching no keyword sort last. The limit applies
	// after ranking.
	TypeRank []string
}

// Rank is the TypeRank position of a feature type.
func (q NearestQuery) Rank(featureType string) int {
	t := strings.ToLower(featureType)
	for i, kw := range q.TypeRank {
		if strings.Contains(t, strings.ToLower(kw)) {
			return i
		}
	}
	return len(q.TypeRank)
}

// Accepts reports whether f passes the type and attribute filters.
func (q NearestQuery) Accepts(f Feature) bool {
	if len(q.TypeAny) > 0 {
		t := strings.ToLower(f.Type)
		found := false
		for _, kw := range q.TypeAny {
			if strings.Contains(t, strings.ToLower(kw)) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return q.MinAttr.match(f)
}

func (q NearestQuery) validate() error {
	if !validCategories[q.Category] {
		return eris.Errorf("geo: invalid feature category %q", q.Category)
	}
	if !q.Point.Valid() {
		return eris.Errorf("geo: invalid point %.6f,%.6f", q.Point.Lat, q.Point.Lng)
	}
	if q.RadiusM < 0 {
		return eris.Errorf("geo: negative radius %.1f", q.RadiusM)
	}
	return nil
}

const defaultNearestLimit = 50

func (q NearestQuery) limit() int {
	if q.Limit <= 0 {
		return defaultNearestLimit
	}
	return q.Limit
}

// SpatialStore answers "nearest features of category X within radius R of
// point P" queries. Results are ordered by distance ascending.
type SpatialStore interface {
	Nearest(ctx context.Context, q NearestQuery) ([]Feature, error)
}

// FeatureInput is a feature to be loaded into a store.
type FeatureInput struct {
	Category   Category
	Type       string
	Name       string
	Source     string
	SourceID   string
	Attributes map[string]any
	Geometry   geom.T
}

// FeatureWriter loads features into a spatial store, replacing rows that
// share (category, source, source_id).
type FeatureWriter interface {
	UpsertFeatures(ctx context.Context, features []FeatureInput) (int64, error)
}

// FeatureCounter reports how many features each layer holds.
type FeatureCounter interface {
	FeatureCount(ctx context.Context) (map[Category]int, error)
}

// normalizeAttributes returns JSON for an attribute map, defaulting to "{}".
func normalizeAttributes(attrs map[string]any) (string, error) {
	if len(attrs) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(attrs)
	if err != nil {
		return "", eris.Wrap(err, "geo: marshal attributes")
	}
	return string(data), nil
}

// decodeAttributes parses stored attribute JSON, keeping numbers as float64.
func decodeAttributes(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var attrs map[string]any
	if err := json.Unmarshal(raw, &attrs); err != nil {
		return nil, eris.Wrap(err, "geo: unmarshal attributes")
	}
	return attrs, nil
}
