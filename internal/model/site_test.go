package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSiteStatusValues(t *testing.T) {
	assert.Equal(t, SiteStatus("pending"), SiteStatusPending)
	assert.Equal(t, SiteStatus("evaluated"), SiteStatusEvaluated)
	assert.Equal(t, SiteStatus("approved"), SiteStatusApproved)
	assert.Equal(t, SiteStatus("rejected"), SiteStatusRejected)
	assert.False(t, SiteStatus("archived").Valid())
}

func TestSiteStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from, to SiteStatus
		want     bool
	}{
		{SiteStatusPending, SiteStatusEvaluated, true},
		{SiteStatusPending, SiteStatusApproved, false},
		{SiteStatusEvaluated, SiteStatusApproved, true},
		{SiteStatusEvaluated, SiteStatusRejected, true},
		{SiteStatusEvaluated, SiteStatusPending, false},
		{SiteStatusApproved, SiteStatusRejected, false},
		{SiteStatusRejected, SiteStatusEvaluated, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.from.CanTransition(tt.to))
		})
	}
}

func TestPoint_Valid(t *testing.T) {
	assert.True(t, Point{Lat: 30.27, Lng: -97.74}.Valid())
	assert.False(t, Point{Lat: 91, Lng: 0}.Valid())
	assert.False(t, Point{Lat: 0, Lng: -181}.Valid())
}
