// Package store persists sites, evaluation configs and the append-only
// evaluation log.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/site-screener/internal/model"
)

var (
	// ErrNotFound is returned when a site or config does not exist.
	ErrNotFound = eris.New("store: not found")
	// ErrNoActiveConfig is returned by ActiveConfig when no config is active.
	ErrNoActiveConfig = eris.New("store: no active evaluation config")
	// ErrInvalidTransition is returned when a site status change is not allowed.
	ErrInvalidTransition = eris.New("store: invalid site status transition")
)

// SiteFilter specifies criteria for listing sites.
type SiteFilter struct {
	Status model.SiteStatus `json:"status,omitempty"`
	Limit  int              `json:"limit,omitempty"`
	Offset int              `json:"offset,omitempty"`
}

// Store defines the persistence interface for site screening.
type Store interface {
	// Sites
	CreateSite(ctx context.Context, site *model.Site) error
	UpsertSites(ctx context.Context, sites []model.Site) (int64, error)
	GetSite(ctx context.Context, siteID string) (*model.Site, error)
	ListSites(ctx context.Context, filter SiteFilter) ([]model.Site, error)
	UpdateSiteStatus(ctx context.Context, siteID string, status model.SiteStatus) error

	// Evaluation configs
	CreateConfig(ctx context.Context, cfg *model.EvaluationConfig) error
	ActivateConfig(ctx context.Context, configID string) error
	ActiveConfig(ctx context.Context) (*model.EvaluationConfig, error)
	ListConfigs(ctx context.Context) ([]model.EvaluationConfig, error)

	// Evaluations
	SaveEvaluation(ctx context.Context, rec *model.EvaluationRecord) error
	ListEvaluations(ctx context.Context, siteID string) ([]model.EvaluationRecord, error)
	CurrentEvaluations(ctx context.Context) ([]model.ScreeningRow, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

type scannable interface {
	Scan(dest ...any) error
}

// checkTransition validates a status change against the lifecycle.
func checkTransition(siteID string, from, to model.SiteStatus) error {
	if !to.Valid() {
		return eris.Wrapf(ErrInvalidTransition, "site %s: unknown status %q", siteID, to)
	}
	if !from.CanTransition(to) {
		return eris.Wrapf(ErrInvalidTransition, "site %s: %s -> %s", siteID, from, to)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// encodeRecord marshals the JSON columns of an evaluation record.
func encodeRecord(rec *model.EvaluationRecord) (details, snapshot []byte, err error) {
	if details, err = json.Marshal(rec.Details); err != nil {
		return nil, nil, eris.Wrap(err, "store: marshal evaluation details")
	}
	if snapshot, err = json.Marshal(rec.ConfigSnapshot); err != nil {
		return nil, nil, eris.Wrap(err, "store: marshal config snapshot")
	}
	return details, snapshot, nil
}

func decodeRecord(rec *model.EvaluationRecord, details, snapshot []byte) error {
	if len(details) > 0 {
		if err := json.Unmarshal(details, &rec.Details); err != nil {
			return eris.Wrap(err, "store: unmarshal evaluation details")
		}
	}
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &rec.ConfigSnapshot); err != nil {
			return eris.Wrap(err, "store: unmarshal config snapshot")
		}
	}
	return nil
}

// prepareSite fills identity, status and timestamps for a new site.
func prepareSite(site *model.Site, now time.Time) error {
	if site.Name == "" {
		return eris.New("store: site name is required")
	}
	if !site.Location().Valid() {
		return eris.Errorf("store: site %q has invalid coordinates", site.Name)
	}
	if site.ID == "" {
		site.ID = uuid.NewString()
	}
	if site.Status == "" {
		site.Status = model.SiteStatusPending
	}
	if !site.Status.Valid() {
		return eris.Errorf("store: site %q has unknown status %q", site.Name, site.Status)
	}
	site.CreatedAt = now
	site.UpdatedAt = now
	return nil
}
