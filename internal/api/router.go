// Package api serves the site screening operations over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/site-screener/internal/model"
	"github.com/sells-group/site-screener/internal/resilience"
	"github.com/sells-group/site-screener/internal/screening"
	"github.com/sells-group/site-screener/internal/store"
)

// Service is the set of operations exposed over HTTP.
type Service interface {
	GetSite(ctx context.Context, siteID string) (*model.Site, error)
	EvaluateSite(ctx context.Context, siteID, evaluatedBy string) (*model.EvaluationRecord, error)
	GetEvaluationHistory(ctx context.Context, siteID string) ([]model.EvaluationRecord, error)
	ScreenSites(ctx context.Context, c screening.Criteria) (*screening.Result, error)
	GetScreeningStats(ctx context.Context, c screening.Criteria) (*screening.Stats, error)
	ActiveConfig(ctx context.Context) (*model.EvaluationConfig, error)
}

// Options configures the router.
type Options struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

const defaultEvaluatedBy = "api"

// NewRouter builds the HTTP handler.
func NewRouter(svc Service, opts Options) http.Handler {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	h := &handler{svc: svc}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", h.health)
	r.Route("/sites/{siteID}", func(r chi.Router) {
		r.Get("/", h.getSite)
		r.Post("/evaluate", h.evaluateSite)
		r.Get("/evaluations", h.evaluationHistory)
	})
	r.Post("/screening", h.screen)
	r.Post("/screening/stats", h.screeningStats)
	r.Get("/params/active", h.activeParams)
	return r
}

type handler struct {
	svc Service
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) getSite(w http.ResponseWriter, r *http.Request) {
	site, err := h.svc.GetSite(r.Context(), chi.URLParam(r, "siteID"))
	if err != nil {
		writeError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, site)
}

func (h *handler) evaluateSite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EvaluatedBy string `json:"evaluated_by"`
	}
	if err := decodeOptional(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.EvaluatedBy == "" {
		req.EvaluatedBy = defaultEvaluatedBy
	}

	rec, err := h.svc.EvaluateSite(r.Context(), chi.URLParam(r, "siteID"), req.EvaluatedBy)
	if err != nil {
		writeError(w, r, err, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *handler) evaluationHistory(w http.ResponseWriter, r *http.Request) {
	recs, err := h.svc.GetEvaluationHistory(r.Context(), chi.URLParam(r, "siteID"))
	if err != nil {
		writeError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *handler) screen(w http.ResponseWriter, r *http.Request) {
	var c screening.Criteria
	if err := decodeOptional(r, &c); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid screening criteria"})
		return
	}
	res, err := h.svc.ScreenSites(r.Context(), c)
	if err != nil {
		writeError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handler) screeningStats(w http.ResponseWriter, r *http.Request) {
	var c screening.Criteria
	if err := decodeOptional(r, &c); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid screening criteria"})
		return
	}
	stats, err := h.svc.GetScreeningStats(r.Context(), c)
	if err != nil {
		writeError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *handler) activeParams(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.svc.ActiveConfig(r.Context())
	if err != nil {
		writeError(w, r, err, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// decodeOptional decodes a JSON body into v. An empty body leaves v untouched.
func decodeOptional(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error, fallback int) int {
	switch {
	case eris.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case eris.Is(err, store.ErrNoActiveConfig):
		return http.StatusConflict
	case eris.Is(err, resilience.ErrCircuitOpen):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return fallback
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error, fallback int) {
	status := statusFor(err, fallback)
	if status >= http.StatusInternalServerError {
		zap.L().Error("api: request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}
