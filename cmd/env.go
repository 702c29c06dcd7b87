package main

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/site-screener/internal/evaluator"
	"github.com/sells-group/site-screener/internal/geospatial"
	"github.com/sells-group/site-screener/internal/screening"
	"github.com/sells-group/site-screener/internal/service"
	"github.com/sells-group/site-screener/internal/store"
)

// spatialBackend is what the evaluators query and the layer loader writes.
type spatialBackend interface {
	geospatial.SpatialStore
	geospatial.FeatureWriter
	geospatial.FeatureCounter
}

// screenerEnv holds the store, spatial backend and service shared by the
// serve/evaluate/screen commands.
type screenerEnv struct {
	Store   store.Store
	Spatial spatialBackend
	Guarded *geospatial.GuardedStore
	Service *service.Service
}

// Close releases resources held by the environment.
func (e *screenerEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		return store.NewSQLite(cfg.Store.DatabaseURL)
	case "postgres":
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// initSpatial picks the feature backend that matches the store driver so
// both share one database.
func initSpatial(ctx context.Context, st store.Store) (spatialBackend, error) {
	switch s := st.(type) {
	case *store.PostgresStore:
		if err := geospatial.Migrate(ctx, s.Pool()); err != nil {
			return nil, err
		}
		return geospatial.NewPostGISStore(s.Pool()), nil
	case *store.SQLiteStore:
		sp := geospatial.NewSQLiteStore(s.DB())
		if err := sp.Migrate(ctx); err != nil {
			return nil, err
		}
		return sp, nil
	default:
		return nil, eris.Errorf("no spatial backend for store %T", st)
	}
}

// initEnv validates config for section, opens and migrates the store and
// wires the evaluation and screening engines. Callers should defer
// env.Close().
func initEnv(ctx context.Context, section string) (*screenerEnv, error) {
	if err := cfg.Validate(section); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	spatial, err := initSpatial(ctx, st)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	guarded := geospatial.NewGuardedStore(spatial,
		cfg.Spatial.FailureThreshold,
		time.Duration(cfg.Spatial.ResetTimeoutSecs)*time.Second,
	)
	agg := evaluator.NewAggregator(evaluator.DefaultEvaluators(guarded, cfg.Spatial.RoadCandidates)...)
	screener := screening.NewEngine(st, cfg.Screening.DefaultLimit, cfg.Screening.MaxLimit)
	svc := service.New(st, agg, screener, service.BatchConfig{
		MaxConcurrentSites: cfg.Batch.MaxConcurrentSites,
		SitesPerSecond:     cfg.Batch.SitesPerSecond,
	})

	zap.L().Debug("environment ready",
		zap.String("driver", cfg.Store.Driver),
		zap.Int("road_candidates", cfg.Spatial.RoadCandidates),
	)
	return &screenerEnv{Store: st, Spatial: spatial, Guarded: guarded, Service: svc}, nil
}
