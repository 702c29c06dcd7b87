package geospatial

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/site-screener/internal/model"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in      string
		want    Category
		wantErr bool
	}{
		{"grid", CategoryGrid, false},
		{" Amenity ", CategoryAmenity, false},
		{"highway", CategoryRoad, false},
		{"ROAD", CategoryRoad, false},
		{"pole", CategoryPole, false},
		{"parcel", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCategory(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFeature_Float(t *testing.T) {
	f := Feature{Attributes: map[string]any{
		"f64":    12.5,
		"int":    7,
		"num":    json.Number("3.25"),
		"str":    " 8.0 ",
		"bad":    "wide",
		"nil":    nil,
		"bool":   true,
		"int64":  int64(4),
		"float3": float32(1.5),
		"nan":    "NaN",
		"inf":    "-Infinity",
		"hex":    "0x1p4",
		"exp":    "1.5e3",
	}}

	for key, want := range map[string]float64{"f64": 12.5, "int": 7, "num": 3.25, "str": 8, "int64": 4, "float3": 1.5, "exp": 1500} {
		got, ok := f.Float(key)
		assert.True(t, ok, key)
		assert.InDelta(t, want, got, 1e-9, key)
	}
	for _, key := range []string{"bad", "nil", "bool", "missing", "nan", "inf", "hex"} {
		_, ok := f.Float(key)
		assert.False(t, ok, key)
	}
}

func TestAttrFloor_Match(t *testing.T) {
	var none *AttrFloor
	assert.True(t, none.match(Feature{}))

	floor := &AttrFloor{Key: "available_capacity_kw", Min: 300}
	assert.True(t, floor.match(Feature{Attributes: map[string]any{"available_capacity_kw": 300.0}}))
	assert.False(t, floor.match(Feature{Attributes: map[string]any{"available_capacity_kw": 299.9}}))
	assert.False(t, floor.match(Feature{}))
}

func TestNearestQuery_RankAndAccepts(t *testing.T) {
	q := NearestQuery{TypeRank: []string{"substation", "line"}}
	assert.Equal(t, 0, q.Rank("Primary_Substation"))
	assert.Equal(t, 1, q.Rank("distribution_line"))
	assert.Equal(t, 2, q.Rank("transformer"))
	assert.Equal(t, 0, NearestQuery{}.Rank("anything"))

	assert.True(t, q.Accepts(Feature{Type: "transformer"}))

	q = NearestQuery{
		TypeAny: []string{"school", "hospital"},
		MinAttr: &AttrFloor{Key: "beds", Min: 10},
	}
	assert.True(t, q.Accepts(Feature{Type: "Hospital", Attributes: map[string]any{"beds": "12"}}))
	assert.False(t, q.Accepts(Feature{Type: "hospital", Attributes: map[string]any{"beds": 4.0}}))
	assert.False(t, q.Accepts(Feature{Type: "shop", Attributes: map[string]any{"beds": 40.0}}))
}

func TestNearestQuery_Validate(t *testing.T) {
	ok := NearestQuery{Point: model.Point{Lat: 37.5, Lng: 127}, Category: CategoryGrid, RadiusM: 1000}
	assert.NoError(t, ok.validate())
	assert.Equal(t, defaultNearestLimit, ok.limit())

	bad := ok
	bad.Category = "parcel"
	assert.Error(t, bad.validate())

	bad = ok
	bad.Point = model.Point{Lat: 91, Lng: 0}
	assert.Error(t, bad.validate())

	bad = ok
	bad.RadiusM = -1
	assert.Error(t, bad.validate())

	ok.Limit = 5
	assert.Equal(t, 5, ok.limit())
}

func TestAttributesRoundTrip(t *testing.T) {
	s, err := normalizeAttributes(nil)
	require.NoError(t, err)
	assert.Equal(t, "{}", s)

	s, err = normalizeAttributes(map[string]any{"width": 6.5})
	require.NoError(t, err)

	attrs, err := decodeAttributes([]byte(s))
	require.NoError(t, err)
	assert.Equal(t, 6.5, attrs["width"])

	attrs, err = decodeAttributes(nil)
	require.NoError(t, err)
	assert.Nil(t, attrs)

	_, err = decodeAttributes([]byte("{"))
	assert.Error(t, err)
}
