// Package service orchestrates site evaluation and screening over the store,
// the evaluation engine and the screening engine.
package service

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/site-screener/internal/model"
	"github.com/sells-group/site-screener/internal/screening"
	"github.com/sells-group/site-screener/internal/store"
)

// Repository is the subset of the store the service needs.
type Repository interface {
	GetSite(ctx context.Context, siteID string) (*model.Site, error)
	ListSites(ctx context.Context, filter store.SiteFilter) ([]model.Site, error)
	UpdateSiteStatus(ctx context.Context, siteID string, status model.SiteStatus) error
	ActiveConfig(ctx context.Context) (*model.EvaluationConfig, error)
	SaveEvaluation(ctx context.Context, rec *model.EvaluationRecord) error
	ListEvaluations(ctx context.Context, siteID string) ([]model.EvaluationRecord, error)
	CurrentEvaluations(ctx context.Context) ([]model.ScreeningRow, error)
}

// Evaluator produces an unsaved evaluation record for a site.
type Evaluator interface {
	Evaluate(ctx context.Context, site *model.Site, cfg *model.EvaluationConfig, evaluatedBy string) (*model.EvaluationRecord, error)
}

// BatchConfig bounds batch evaluation.
type BatchConfig struct {
	MaxConcurrentSites int
	SitesPerSecond     float64
}

// Service exposes the site screening operations.
type Service struct {
	repo      Repository
	evaluator Evaluator
	screener  *screening.Engine
	batch     BatchConfig
}

// New creates a Service. Screening reads current evaluations from repo.
func New(repo Repository, evaluator Evaluator, screener *screening.Engine, batch BatchConfig) *Service {
	if batch.MaxConcurrentSites <= 0 {
		batch.MaxConcurrentSites = 4
	}
	return &Service{repo: repo, evaluator: evaluator, screener: screener, batch: batch}
}

// EvaluateSite scores a site under the active config and appends the result
// to its history. Nothing is written unless every criterion was scored.
func (s *Service) EvaluateSite(ctx context.Context, siteID, evaluatedBy string) (*model.EvaluationRecord, error) {
	site, err := s.repo.GetSite(ctx, siteID)
	if err != nil {
		return nil, eris.Wrapf(err, "service: load site %s", siteID)
	}
	cfg, err := s.repo.ActiveConfig(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "service: load active config")
	}

	rec, err := s.evaluator.Evaluate(ctx, site, cfg, evaluatedBy)
	if err != nil {
		return nil, eris.Wrapf(err, "service: evaluate site %s", siteID)
	}
	if err := s.repo.SaveEvaluation(ctx, rec); err != nil {
		return nil, eris.Wrapf(err, "service: save evaluation for site %s", siteID)
	}

	if site.Status == model.SiteStatusPending {
		if err := s.repo.UpdateSiteStatus(ctx, siteID, model.SiteStatusEvaluated); err != nil {
			// The record is already persisted; a concurrent evaluation may
			// have moved the site first.
			zap.L().Warn("service: mark site evaluated",
				zap.String("site_id", siteID),
				zap.Error(err),
			)
		}
	}
	return rec, nil
}

// BatchResult reports the outcome of a batch evaluation.
type BatchResult struct {
	Records []*model.EvaluationRecord `json:"records"`
	Failed  map[string]string         `json:"failed,omitempty"`
}

// EvaluateBatch evaluates sites with bounded concurrency. Per-site failures
// are collected; only cancellation of ctx fails the batch.
func (s *Service) EvaluateBatch(ctx context.Context, siteIDs []string, evaluatedBy string) (*BatchResult, error) {
	log := zap.L().With(zap.String("component", "batch"), zap.Int("sites", len(siteIDs)))

	var limiter *rate.Limiter
	if s.batch.SitesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.batch.SitesPerSecond), 1)
	}

	var (
		mu     sync.Mutex
		result = &BatchResult{Failed: map[string]string{}}
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.batch.MaxConcurrentSites)

	for _, id := range siteIDs {
		if limiter != nil {
			if err := limiter.Wait(gctx); err != nil {
				break
			}
		}
		g.Go(func() error {
			rec, err := s.EvaluateSite(gctx, id, evaluatedBy)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Warn("site evaluation failed", zap.String("site_id", id), zap.Error(err))
				result.Failed[id] = err.Error()
				return nil
			}
			result.Records = append(result.Records, rec)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return result, eris.Wrap(err, "service: evaluate batch")
	}

	log.Info("batch evaluation complete",
		zap.Int("evaluated", len(result.Records)),
		zap.Int("failed", len(result.Failed)),
	)
	return result, nil
}

// PendingSiteIDs lists the ids of sites awaiting their first evaluation.
func (s *Service) PendingSiteIDs(ctx context.Context, limit int) ([]string, error) {
	sites, err := s.repo.ListSites(ctx, store.SiteFilter{Status: model.SiteStatusPending, Limit: limit})
	if err != nil {
		return nil, eris.Wrap(err, "service: list pending sites")
	}
	ids := make([]string, len(sites))
	for i := range sites {
		ids[i] = sites[i].ID
	}
	return ids, nil
}

// GetEvaluationHistory returns every evaluation of a site, newest first.
func (s *Service) GetEvaluationHistory(ctx context.Context, siteID string) ([]model.EvaluationRecord, error) {
	if _, err := s.repo.GetSite(ctx, siteID); err != nil {
		return nil, eris.Wrapf(err, "service: load site %s", siteID)
	}
	recs, err := s.repo.ListEvaluations(ctx, siteID)
	if err != nil {
		return nil, eris.Wrapf(err, "service: list evaluations for site %s", siteID)
	}
	if recs == nil {
		recs = []model.EvaluationRecord{}
	}
	return recs, nil
}

// ScreenSites filters, sorts and pages the current evaluations.
func (s *Service) ScreenSites(ctx context.Context, c screening.Criteria) (*screening.Result, error) {
	res, err := s.screener.Screen(ctx, c)
	return res, eris.Wrap(err, "service: screen sites")
}

// GetScreeningStats returns statistics over the sites matching c.
func (s *Service) GetScreeningStats(ctx context.Context, c screening.Criteria) (*screening.Stats, error) {
	stats, err := s.screener.Stats(ctx, c)
	return stats, eris.Wrap(err, "service: screening stats")
}

// GetSite returns a site by id.
func (s *Service) GetSite(ctx context.Context, siteID string) (*model.Site, error) {
	site, err := s.repo.GetSite(ctx, siteID)
	return site, eris.Wrapf(err, "service: load site %s", siteID)
}

// ActiveConfig returns the config new evaluations run under.
func (s *Service) ActiveConfig(ctx context.Context) (*model.EvaluationConfig, error) {
	cfg, err := s.repo.ActiveConfig(ctx)
	return cfg, eris.Wrap(err, "service: load active config")
}
