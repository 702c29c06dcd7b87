package fetcher

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/site-screener/internal/model"
)

// siteHeaders maps accepted header spellings onto site fields.
var siteHeaders = map[string]string{
	"ref":          "ref",
	"external_ref": "ref",
	"parcel_id":    "ref",
	"id":           "ref",
	"name":         "name",
	"site_name":    "name",
	"address":      "address",
	"latitude":     "lat",
	"lat":          "lat",
	"longitude":    "lng",
	"lng":          "lng",
	"lon":          "lng",
	"area":         "area",
	"area_sqm":     "area",
	"land_use":     "land_use",
	"landuse":      "land_use",
}

// ReadSites reads candidate sites from a spreadsheet whose first row is a
// header. Name, latitude and longitude columns are required. Rows without a
// reference column are keyed by name and coordinates.
func ReadSites(path string, opts XLSXOptions) ([]model.Site, error) {
	rows, err := ReadXLSX(path, opts)
	if err != nil {
		return nil, err
	}
	return ParseSiteRows(rows)
}

// ParseSiteRows converts a header row plus data rows into sites. Blank rows
// are skipped.
func ParseSiteRows(rows [][]string) ([]model.Site, error) {
	if len(rows) == 0 {
		return nil, eris.New("fetcher: site sheet is empty")
	}

	cols := map[string]int{}
	for i, h := range rows[0] {
		key := strings.ToLower(strings.TrimSpace(strings.ReplaceAll(h, " ", "_")))
		if field, ok := siteHeaders[key]; ok {
			if _, dup := cols[field]; !dup {
				cols[field] = i
			}
		}
	}
	for _, req := range []string{"name", "lat", "lng"} {
		if _, ok := cols[req]; !ok {
			return nil, eris.Errorf("fetcher: site sheet is missing a %s column", req)
		}
	}

	cell := func(row []string, field string) string {
		i, ok := cols[field]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var sites []model.Site
	for n, row := range rows[1:] {
		line := n + 2
		if blankRow(row) {
			continue
		}

		name := cell(row, "name")
		if name == "" {
			return nil, eris.Errorf("fetcher: row %d: name is required", line)
		}
		lat, err := strconv.ParseFloat(cell(row, "lat"), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: row %d: latitude", line)
		}
		lng, err := strconv.ParseFloat(cell(row, "lng"), 64)
		if err != nil {
			return nil, eris.Wrapf(err, "fetcher: row %d: longitude", line)
		}
		var area float64
		if v := cell(row, "area"); v != "" {
			if area, err = strconv.ParseFloat(v, 64); err != nil {
				return nil, eris.Wrapf(err, "fetcher: row %d: area", line)
			}
		}

		site := model.Site{
			ExternalRef: cell(row, "ref"),
			Name:        name,
			Address:     cell(row, "address"),
			Latitude:    lat,
			Longitude:   lng,
			AreaSqm:     area,
			LandUse:     strings.ToLower(cell(row, "land_use")),
		}
		if !site.Location().Valid() {
			return nil, eris.Errorf("fetcher: row %d: coordinates %.6f,%.6f out of range", line, lat, lng)
		}
		if site.ExternalRef == "" {
			site.ExternalRef = fmt.Sprintf("%s@%.6f,%.6f", strings.ToLower(name), lat, lng)
		}
		sites = append(sites, site)
	}
	return sites, nil
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
