package geospatial

import (
	"math"

	"github.com/twpayne/go-geom"

	"github.com/sells-group/site-screener/internal/model"
)

const earthRadiusM = 6371008.8

func toRad(deg float64) float64 { return deg * math.Pi / 180 }

// Haversine returns the great-circle distance in metres between two points.
func Haversine(a, b model.Point) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusM * math.Asin(math.Min(1, math.Sqrt(h)))
}

// BBox is a geographic bounding box in degrees.
type BBox struct {
	MinLng float64 `json:"min_lng"`
	MinLat float64 `json:"min_lat"`
	MaxLng float64 `json:"max_lng"`
	MaxLat float64 `json:"max_lat"`
}

// RadiusBBox returns a box that contains every point within radiusM of p.
func RadiusBBox(p model.Point, radiusM float64) BBox {
	dLat := radiusM / (earthRadiusM * math.Pi / 180)
	cosLat := math.Cos(toRad(p.Lat))
	dLng := 180.0
	if cosLat > 1e-6 {
		dLng = math.Min(180, dLat/cosLat)
	}
	return BBox{
		MinLng: p.Lng - dLng,
		MinLat: p.Lat - dLat,
		MaxLng: p.Lng + dLng,
		MaxLat: p.Lat + dLat,
	}
}

// GeometryBBox returns the bounding box of g.
func GeometryBBox(g geom.T) BBox {
	b := g.Bounds()
	return BBox{MinLng: b.Min(0), MinLat: b.Min(1), MaxLng: b.Max(0), MaxLat: b.Max(1)}
}

// DistanceToGeometry returns the distance in metres from p to the nearest
// part of g. Points inside a polygon are at distance 0. Line and ring
// segments are measured in a local equirectangular projection around p,
// which is accurate to well under a metre at screening radii.
func DistanceToGeometry(p model.Point, g geom.T) float64 {
	switch t := g.(type) {
	case *geom.Point:
		return Haversine(p, model.Point{Lat: t.Y(), Lng: t.X()})
	case *geom.MultiPoint:
		best := math.Inf(1)
		for i := 0; i < t.NumPoints(); i++ {
			best = math.Min(best, DistanceToGeometry(p, t.Point(i)))
		}
		return best
	case *geom.LineString:
		return distanceToPath(p, t.FlatCoords(), t.Stride())
	case *geom.MultiLineString:
		best := math.Inf(1)
		for i := 0; i < t.NumLineStrings(); i++ {
			best = math.Min(best, DistanceToGeometry(p, t.LineString(i)))
		}
		return best
	case *geom.Polygon:
		if t.NumLinearRings() == 0 {
			return math.Inf(1)
		}
		if inRing(p, t.LinearRing(0)) {
			inHole := false
			for i := 1; i < t.NumLinearRings(); i++ {
				if inRing(p, t.LinearRing(i)) {
					inHole = true
					break
				}
			}
			if !inHole {
				return 0
			}
		}
		best := math.Inf(1)
		for i := 0; i < t.NumLinearRings(); i++ {
			r := t.LinearRing(i)
			best = math.Min(best, distanceToPath(p, r.FlatCoords(), r.Stride()))
		}
		return best
	case *geom.MultiPolygon:
		best := math.Inf(1)
		for i := 0; i < t.NumPolygons(); i++ {
			best = math.Min(best, DistanceToGeometry(p, t.Polygon(i)))
		}
		return best
	default:
		return math.Inf(1)
	}
}

// project maps lng/lat to metres east/north of origin.
func project(origin model.Point, lng, lat float64) (x, y float64) {
	x = toRad(lng-origin.Lng) * math.Cos(toRad(origin.Lat)) * earthRadiusM
	y = toRad(lat-origin.Lat) * earthRadiusM
	return x, y
}

func distanceToPath(p model.Point, flat []float64, stride int) float64 {
	n := len(flat) / stride
	if n == 0 {
		return math.Inf(1)
	}
	if n == 1 {
		return Haversine(p, model.Point{Lat: flat[1], Lng: flat[0]})
	}
	best := math.Inf(1)
	ax, ay := project(p, flat[0], flat[1])
	for i := 1; i < n; i++ {
		bx, by := project(p, flat[i*stride], flat[i*stride+1])
		best = math.Min(best, originToSegment(ax, ay, bx, by))
		ax, ay = bx, by
	}
	return best
}

// originToSegment is the planar distance from (0,0) to segment AB.
func originToSegment(ax, ay, bx, by float64) float64 {
	dx, dy := bx-ax, by-ay
	lenSq := dx*dx + dy*dy
	t := 0.0
	if lenSq > 0 {
		t = math.Max(0, math.Min(1, -(ax*dx+ay*dy)/lenSq))
	}
	cx, cy := ax+t*dx, ay+t*dy
	return math.Hypot(cx, cy)
}

// inRing is a ray-casting point-in-ring test in lng/lat space.
func inRing(p model.Point, r *geom.LinearRing) bool {
	flat, stride := r.FlatCoords(), r.Stride()
	n := len(flat) / stride
	inside := false
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := flat[i*stride], flat[i*stride+1]
		xj, yj := flat[j*stride], flat[j*stride+1]
		if (yi > p.Lat) != (yj > p.Lat) &&
			p.Lng < (xj-xi)*(p.Lat-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}
