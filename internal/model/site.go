package model

import "time"

// SiteStatus represents where a candidate parcel is in its review lifecycle.
type SiteStatus string

const (
	SiteStatusPending   SiteStatus = "pending"
	SiteStatusEvaluated SiteStatus = "evaluated"
	SiteStatusApproved  SiteStatus = "approved"
	SiteStatusRejected  SiteStatus = "rejected"
)

// siteTransitions lists the statuses reachable from each status.
var siteTransitions = map[SiteStatus][]SiteStatus{
	SiteStatusPending:   {SiteStatusEvaluated},
	SiteStatusEvaluated: {SiteStatusApproved, SiteStatusRejected},
	SiteStatusApproved:  {},
	SiteStatusRejected:  {},
}

// Valid reports whether s is a known status.
func (s SiteStatus) Valid() bool {
	_, ok := siteTransitions[s]
	return ok
}

// CanTransition reports whether a site may move from s to next.
func (s SiteStatus) CanTransition(next SiteStatus) bool {
	for _, allowed := range siteTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Site is a candidate land parcel.
type Site struct {
	ID          string     `json:"id"`
	ExternalRef string     `json:"external_ref,omitempty"`
	Name        string     `json:"name"`
	Address     string     `json:"address,omitempty"`
	Latitude    float64    `json:"latitude"`
	Longitude   float64    `json:"longitude"`
	AreaSqm     float64    `json:"area_sqm"`
	LandUse     string     `json:"land_use,omitempty"`
	Status      SiteStatus `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Location returns the WGS84 point of the site.
func (s Site) Location() Point {
	return Point{Lat: s.Latitude, Lng: s.Longitude}
}

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point lies within WGS84 bounds.
func (p Point) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}
