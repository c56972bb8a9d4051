package apiv1

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"launchkit-core/internal/domain"
	"launchkit-core/internal/domain/model"
	"launchkit-core/internal/domain/ports/adapter"
	"launchkit-core/internal/infra/api"
	"launchkit-core/internal/infra/metrics"

	"github.com/go-chi/chi/v5"
)

type actionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// lane reads ?queue=, defaulting to ai-jobs.
func lane(r *http.Request) string {
	if q := r.URL.Query().Get("queue"); q != "" {
		return q
	}
	return string(adapter.LaneAIJobs)
}

func (s *Server) queueMetrics(w http.ResponseWriter, r *http.Request) {
	m, err := s.deps.Queues.GetMetrics(r.Context(), lane(r))
	if err != nil {
		s.fail(w, r, "queue_metrics", err)
		return
	}
	api.JSON(w, m)
}

func (s *Server) queueMetricsAll(w http.ResponseWriter, r *http.Request) {
	all, err := s.deps.Queues.GetAllMetrics(r.Context())
	if err != nil {
		s.fail(w, r, "queue_metrics_all", err)
		return
	}
	out := make(map[string]adapter.LaneMetrics, len(all))
	for _, m := range all {
		out[string(m.Queue)] = m
	}
	api.JSON(w, out)
}

func (s *Server) pauseQueue(w http.ResponseWriter, r *http.Request) {
	q := lane(r)
	if err := s.deps.Queues.PauseQueue(r.Context(), q); err != nil {
		s.fail(w, r, "queue_pause", err)
		return
	}
	api.JSON(w, actionResponse{Success: true, Message: fmt.Sprintf("Queue %s paused", q)})
}

func (s *Server) resumeQueue(w http.ResponseWriter, r *http.Request) {
	q := lane(r)
	if err := s.deps.Queues.ResumeQueue(r.Context(), q); err != nil {
		s.fail(w, r, "queue_resume", err)
		return
	}
	api.JSON(w, actionResponse{Success: true, Message: fmt.Sprintf("Queue %s resumed", q)})
}

// POST /admin/queue/clean?queue=&grace=<ms>
func (s *Server) cleanQueue(w http.ResponseWriter, r *http.Request) {
	var grace time.Duration
	if raw := r.URL.Query().Get("grace"); raw != "" {
		ms, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || ms < 0 {
			api.Error(w, http.StatusBadRequest, api.CodeValidation, "grace must be a non-negative number of milliseconds", nil)
			return
		}
		grace = time.Duration(ms) * time.Millisecond
	}
	res, err := s.deps.Queues.CleanQueue(r.Context(), lane(r), grace)
	if err != nil {
		s.fail(w, r, "queue_clean", err)
		return
	}
	api.JSON(w, res)
}

func (s *Server) requeueJob(w http.ResponseWriter, r *http.Request) {
	created, err := s.deps.Jobs.RequeueJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		metrics.IncAdminAction("job_requeue", "error")
		s.fail(w, r, "requeue_job", err)
		return
	}
	metrics.IncAdminAction("job_requeue", "ok")
	msg := "task already queued"
	if created {
		msg = "task re-enqueued"
	}
	api.JSON(w, actionResponse{Success: true, Message: msg})
}

// ===== Plans & orgs =====

type planRequest struct {
	Name                 string  `json:"name"`
	MonthlyJobLimit      int64   `json:"monthlyJobLimit"`
	MonthlyTokenLimit    int64   `json:"monthlyTokenLimit"`
	RatePer1kTokensCents float64 `json:"ratePer1kTokensCents"`
}

func (s *Server) listPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := s.deps.Plans.List(r.Context())
	if err != nil {
		s.fail(w, r, "list_plans", err)
		return
	}
	api.JSON(w, plans)
}

func (s *Server) putPlan(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.WriteError(w, err)
		return
	}
	code := model.PlanTier(strings.ToUpper(chi.URLParam(r, "code")))
	plan, err := model.NewPlan(code, req.Name, req.MonthlyJobLimit, req.MonthlyTokenLimit, req.RatePer1kTokensCents)
	if err != nil {
		api.WriteError(w, err)
		return
	}
	if err := s.deps.Plans.Save(r.Context(), plan); err != nil {
		s.fail(w, r, "save_plan", err)
		return
	}
	metrics.IncAdminAction("plan_save", "ok")
	api.JSON(w, plan)
}

type orgRequest struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	PlanTier model.PlanTier `json:"planTier,omitempty"`
}

type orgPlanRequest struct {
	PlanTier model.PlanTier `json:"planTier"`
}

func (s *Server) listOrgs(w http.ResponseWriter, r *http.Request) {
	orgs, err := s.deps.Plans.ListOrgs(r.Context())
	if err != nil {
		s.fail(w, r, "list_orgs", err)
		return
	}
	api.JSON(w, orgs)
}

func (s *Server) createOrg(w http.ResponseWriter, r *http.Request) {
	var req orgRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.WriteError(w, err)
		return
	}
	org, err := s.deps.Plans.CreateOrg(r.Context(), req.ID, req.Name, normTier(req.PlanTier))
	if err != nil {
		s.fail(w, r, "create_org", err)
		return
	}
	metrics.IncAdminAction("org_create", "ok")
	api.Created(w, org)
}

func (s *Server) getOrg(w http.ResponseWriter, r *http.Request) {
	org, err := s.deps.Plans.GetOrg(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, "get_org", err)
		return
	}
	api.JSON(w, org)
}

func (s *Server) changeOrgPlan(w http.ResponseWriter, r *http.Request) {
	var req orgPlanRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.WriteError(w, err)
		return
	}
	if req.PlanTier == "" {
		api.WriteError(w, fmt.Errorf("%w: planTier is required", domain.ErrInvalidArgument))
		return
	}
	org, err := s.deps.Plans.ChangeOrgPlan(r.Context(), chi.URLParam(r, "id"), normTier(req.PlanTier))
	if err != nil {
		s.fail(w, r, "change_org_plan", err)
		return
	}
	metrics.IncAdminAction("org_plan_change", "ok")
	api.JSON(w, org)
}

func normTier(t model.PlanTier) model.PlanTier {
	return model.PlanTier(strings.ToUpper(strings.TrimSpace(string(t))))
}
