package geospatial

import (
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"
)

// LoadOptions maps shapefile DBF fields onto feature columns.
type LoadOptions struct {
	Category Category
	// Source tags every loaded row; defaults to the file's base name.
	Source string
	// TypeField holds the feature type (e.g. "substation", "residential").
	TypeField string
	// DefaultType is used when TypeField is empty or missing.
	DefaultType string
	NameField   string
	// IDField holds a stable identifier. Record index is used when unset.
	IDField string
}

// LoadShapefile reads a shapefile into feature inputs. All DBF fields are
// kept as attributes; values that parse as numbers are stored as numbers.
// Records with no usable geometry are skipped.
func LoadShapefile(shpPath string, opts LoadOptions) ([]FeatureInput, error) {
	if !validCategories[opts.Category] {
		return nil, eris.Errorf("geo: invalid feature category %q", opts.Category)
	}
	if opts.Source == "" {
		opts.Source = strings.TrimSuffix(filepath.Base(shpPath), filepath.Ext(shpPath))
	}

	reader, err := shp.Open(shpPath)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: open shapefile %s", shpPath)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.ToLower(strings.TrimRight(f.String(), "\x00"))
	}

	var features []FeatureInput
	var skipped int
	for reader.Next() {
		n, shape := reader.Shape()
		g := ShapeGeometry(shape)
		if g == nil {
			skipped++
			continue
		}

		raw := make(map[string]string, len(names))
		attrs := make(map[string]any, len(names))
		for i, name := range names {
			val := strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
			raw[name] = val
			if val == "" {
				continue
			}
			if f, err := strconv.ParseFloat(val, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
				attrs[name] = f
			} else {
				attrs[name] = val
			}
		}

		fi := FeatureInput{
			Category:   opts.Category,
			Type:       opts.DefaultType,
			Source:     opts.Source,
			SourceID:   strconv.Itoa(n),
			Attributes: attrs,
			Geometry:   g,
		}
		if v := raw[strings.ToLower(opts.TypeField)]; opts.TypeField != "" && v != "" {
			fi.Type = strings.ToLower(v)
		}
		if opts.NameField != "" {
			fi.Name = raw[strings.ToLower(opts.NameField)]
		}
		if v := raw[strings.ToLower(opts.IDField)]; opts.IDField != "" && v != "" {
			fi.SourceID = v
		}
		features = append(features, fi)
	}

	if skipped > 0 {
		zap.L().Debug("geo: skipped shapefile records",
			zap.String("file", shpPath),
			zap.Int("skipped", skipped),
		)
	}
	return features, nil
}

// ShapeGeometry converts a go-shp shape into a go-geom geometry with SRID
// 4326. It returns nil for empty or unsupported shapes.
func ShapeGeometry(shape shp.Shape) geom.T {
	switch s := shape.(type) {
	case *shp.Point:
		return geom.NewPointFlat(geom.XY, []float64{s.X, s.Y}).SetSRID(4326)
	case *shp.MultiPoint:
		if len(s.Points) == 0 {
			return nil
		}
		return geom.NewMultiPointFlat(geom.XY, shpFlat(s.Points)).SetSRID(4326)
	case *shp.PolyLine:
		return polyLineGeometry(s)
	case *shp.Polygon:
		return polygonGeometry(s)
	default:
		return nil
	}
}

func polyLineGeometry(pl *shp.PolyLine) geom.T {
	if pl == nil || pl.NumParts == 0 || len(pl.Points) == 0 {
		return nil
	}
	mls := geom.NewMultiLineString(geom.XY).SetSRID(4326)
	for i, part := range shpParts(pl.Parts, pl.NumParts, len(pl.Points)) {
		pts := pl.Points[part[0]:part[1]]
		if len(pts) < 2 {
			continue
		}
		if err := mls.Push(geom.NewLineStringFlat(geom.XY, shpFlat(pts))); err != nil {
			zap.L().Debug("geo: skipping malformed linestring part", zap.Int("part", i), zap.Error(err))
		}
	}
	if mls.NumLineStrings() == 0 {
		return nil
	}
	return mls
}

// polygonGeometry treats each shapefile part as a separate outer ring.
func polygonGeometry(p *shp.Polygon) geom.T {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}
	mp := geom.NewMultiPolygon(geom.XY).SetSRID(4326)
	for i, part := range shpParts(p.Parts, p.NumParts, len(p.Points)) {
		pts := p.Points[part[0]:part[1]]
		if len(pts) < 3 {
			continue
		}
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(geom.NewLinearRingFlat(geom.XY, shpFlat(pts))); err != nil {
			zap.L().Debug("geo: skipping malformed polygon ring", zap.Int("part", i), zap.Error(err))
			continue
		}
		if err := mp.Push(poly); err != nil {
			zap.L().Debug("geo: skipping malformed polygon part", zap.Int("part", i), zap.Error(err))
		}
	}
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}

// shpParts returns [start, end) point ranges for each part.
func shpParts(parts []int32, numParts int32, numPoints int) [][2]int {
	out := make([][2]int, 0, numParts)
	for i := int32(0); i < numParts && int(i) < len(parts); i++ {
		start := int(parts[i])
		end := numPoints
		if i+1 < numParts && int(i+1) < len(parts) {
			end = int(parts[i+1])
		}
		end = min(end, numPoints)
		if start < 0 || start >= end {
			continue
		}
		out = append(out, [2]int{start, end})
	}
	return out
}

func shpFlat(pts []shp.Point) []float64 {
	flat := make([]float64, 0, len(pts)*2)
	for _, p := range pts {
		flat = append(flat, p.X, p.Y)
	}
	return flat
}
