package apiv1

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"launchkit-core/internal/domain/model"
	"launchkit-core/internal/infra/api"

	"github.com/go-chi/chi/v5"
)

const maxJobInputBytes = 256 << 10

// POST /v1/jobs/{type}; the body is the job input object.
func (s *Server) createJob(w http.ResponseWriter, r *http.Request) {
	jobType := model.JobType(chi.URLParam(r, "type"))

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJobInputBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Error(w, http.StatusRequestEntityTooLarge, api.CodeBadRequest, "input too large", nil)
			return
		}
		api.Error(w, http.StatusBadRequest, api.CodeBadRequest, "unreadable body", nil)
		return
	}
	if len(body) > 0 && !json.Valid(body) {
		api.Error(w, http.StatusBadRequest, api.CodeBadRequest, "body must be a JSON object", nil)
		return
	}

	created, err := s.deps.Jobs.CreateJob(r.Context(), api.OrgID(r), jobType, json.RawMessage(body))
	if err != nil {
		s.fail(w, r, "create_job", err)
		return
	}
	api.Accepted(w, created)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	view, err := s.deps.Jobs.GetJob(r.Context(), chi.URLParam(r, "id"), api.OrgID(r))
	if err != nil {
		s.fail(w, r, "get_job", err)
		return
	}
	api.JSON(w, view)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := s.pagination(w, r)
	if !ok {
		return
	}
	page, err := s.deps.Jobs.ListJobs(r.Context(), api.OrgID(r), limit, offset)
	if err != nil {
		s.fail(w, r, "list_jobs", err)
		return
	}
	api.JSON(w, page)
}

func (s *Server) getUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := s.deps.Usage.MonthlyUsage(r.Context(), api.OrgID(r), r.URL.Query().Get("month"))
	if err != nil {
		s.fail(w, r, "get_usage", err)
		return
	}
	api.JSON(w, usage)
}
