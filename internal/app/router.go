package app

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/stockbook/internal/coordinator"
	"github.com/odyssey-erp/stockbook/internal/observability"
	"github.com/odyssey-erp/stockbook/internal/platform/httpx"
	"github.com/odyssey-erp/stockbook/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger     *slog.Logger
	Config     *Config
	Metrics    *observability.Metrics
	Health     func(ctx context.Context) error
	Integrity  jobs.IntegrityChecker
	JobHandler *jobs.Handler
}

// NewRouter constructs the ops router.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		if params.Health != nil {
			if err := params.Health(r.Context()); err != nil {
				if params.Logger != nil {
					params.Logger.Warn("health check failed", slog.Any("error", err))
				}
				status, code = "unavailable", http.StatusServiceUnavailable
			}
		}
		httpx.JSON(w, code, map[string]string{"status": status})
	})

	if params.Integrity != nil {
		r.Group(func(r chi.Router) {
			if limit := opsRateLimit(params.Config); limit > 0 {
				r.Use(httprate.Limit(limit, time.Minute,
					httprate.WithKeyFuncs(httprate.KeyByIP),
					httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
						httpx.Problem(w, http.StatusTooManyRequests, "", "integrity checks are rate limited")
					}),
				))
			}
			r.Get("/ops/integrity/{tenantID}", func(w http.ResponseWriter, r *http.Request) {
				tenantID, err := strconv.ParseInt(chi.URLParam(r, "tenantID"), 10, 64)
				if err != nil || tenantID <= 0 {
					httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "tenant id must be a positive integer")
					return
				}
				report, err := params.Integrity.CheckIntegrity(r.Context(), tenantID)
				if err != nil {
					httpx.RespondError(w, err)
					return
				}
				httpx.JSON(w, http.StatusOK, integrityResponse(report))
			})
		})
	}

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	return r
}

type integrityView struct {
	TenantID      int64  `json:"tenant_id"`
	OK            bool   `json:"ok"`
	RankError     string `json:"rank_error,omitempty"`
	Mismatches    int    `json:"stock_mismatches"`
	BrokenHolders int    `json:"broken_holders"`
}

func integrityResponse(r coordinator.IntegrityReport) integrityView {
	return integrityView{
		TenantID:      r.TenantID,
		OK:            r.OK(),
		RankError:     r.RankError,
		Mismatches:    len(r.Mismatches),
		BrokenHolders: len(r.BrokenHolders),
	}
}

func opsRateLimit(cfg *Config) int {
	if cfg == nil {
		return 30
	}
	return cfg.OpsRateLimit
}
