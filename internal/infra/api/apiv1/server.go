package apiv1

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"launchkit-core/internal/domain/model"
	"launchkit-core/internal/infra/api"
	"launchkit-core/internal/infra/logging"
	"launchkit-core/internal/infra/metrics"
	"launchkit-core/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"
)

// PlanService is the operator view of plans and orgs.
type PlanService interface {
	List(ctx context.Context) ([]*model.Plan, error)
	Save(ctx context.Context, plan *model.Plan) error
	CreateOrg(ctx context.Context, id, name string, tier model.PlanTier) (*model.Org, error)
	GetOrg(ctx context.Context, id string) (*model.Org, error)
	ListOrgs(ctx context.Context) ([]*model.Org, error)
	ChangeOrgPlan(ctx context.Context, id string, tier model.PlanTier) (*model.Org, error)
}

// Dependencies holds everything the router mounts.
type Dependencies struct {
	Jobs     usecase.JobUseCase
	Usage    usecase.UsageUseCase
	Webhooks usecase.WebhookUseCase
	APIKeys  usecase.APIKeyUseCase
	Queues   usecase.QueueUseCase
	Plans    PlanService

	Admin   *api.AdminAuth
	Limiter api.Limiter // nil disables per-org rate limiting

	// Ready reports dependency health for /ready; nil means always ready.
	Ready func(ctx context.Context) error

	RateLimitPerMin int
	RequestTimeout  time.Duration
	AllowedOrigins  []string
}

type Server struct {
	deps Dependencies
	log  *zerolog.Logger
}

func NewServer(deps Dependencies, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "APIv1").Logger()
	return &Server{deps: deps, log: &l}
}

// Router builds the chi router with the middleware stack and all routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(api.TraceID(), api.RequestLog(s.log), api.Recover(s.log), api.Metrics())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.deps.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "X-RateLimit-Limit", "X-RateLimit-Reset", "Retry-After"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Get("/ready", s.ready)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(api.Timeout(s.deps.RequestTimeout))
		r.Use(api.APIKeyAuth(s.deps.APIKeys, s.log))
		if s.deps.Limiter != nil {
			r.Use(api.OrgRateLimit(s.deps.Limiter, s.deps.RateLimitPerMin, s.log))
		}

		r.Get("/jobs", s.listJobs)
		r.Post("/jobs/{type}", s.createJob)
		r.Get("/jobs/{id}", s.getJob)

		r.Get("/usage", s.getUsage)

		r.Get("/webhooks", s.listWebhooks)
		r.Post("/webhooks", s.createWebhook)
		r.Patch("/webhooks/{id}", s.updateWebhook)
		r.Delete("/webhooks/{id}", s.deleteWebhook)
		r.Get("/webhooks/{id}/deliveries", s.webhookDeliveries)
		r.Post("/webhooks/{id}/test", s.testWebhook)

		r.Get("/api-keys", s.listAPIKeys)
		r.Post("/api-keys", s.issueAPIKey)
		r.Delete("/api-keys/{id}", s.revokeAPIKey)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(api.Timeout(s.deps.RequestTimeout))
		r.Use(s.deps.Admin.Require(s.log))

		r.Get("/queue/metrics", s.queueMetrics)
		r.Get("/queue/metrics/all", s.queueMetricsAll)
		r.Post("/queue/pause", s.pauseQueue)
		r.Post("/queue/resume", s.resumeQueue)
		r.Post("/queue/clean", s.cleanQueue)

		r.Post("/jobs/{id}/requeue", s.requeueJob)

		r.Get("/plans", s.listPlans)
		r.Put("/plans/{code}", s.putPlan)

		r.Get("/orgs", s.listOrgs)
		r.Post("/orgs", s.createOrg)
		r.Get("/orgs/{id}", s.getOrg)
		r.Patch("/orgs/{id}/plan", s.changeOrgPlan)
		r.Post("/orgs/{id}/api-keys", s.adminIssueAPIKey)
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	api.JSON(w, map[string]string{"status": "ok"})
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ready != nil {
		if err := s.deps.Ready(r.Context()); err != nil {
			s.log.Warn().Err(err).Msg("readiness check failed")
			api.Error(w, http.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependencies not ready", nil)
			return
		}
	}
	api.JSON(w, map[string]string{"status": "ready"})
}

// queryInt returns def when the parameter is absent and an error when it is malformed.
func queryInt(r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (s *Server) pagination(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	if limit, ok = queryInt(r, "limit", 0); !ok {
		api.Error(w, http.StatusBadRequest, api.CodeValidation, "limit must be an integer", nil)
		return 0, 0, false
	}
	if offset, ok = queryInt(r, "offset", 0); !ok {
		api.Error(w, http.StatusBadRequest, api.CodeValidation, "offset must be an integer", nil)
		return 0, 0, false
	}
	return limit, offset, true
}

// fail writes err through the domain mapping and logs server-side failures.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	if status, _ := api.Classify(err); status >= http.StatusInternalServerError {
		l := logging.With(r.Context(), s.log)
		l.Error().Err(err).Str("op", op).Msg("request failed")
	}
	api.WriteError(w, err)
}
