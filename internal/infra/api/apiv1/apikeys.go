package apiv1

import (
	"net/http"

	"launchkit-core/internal/infra/api"

	"github.com/go-chi/chi/v5"
)

type issueKeyRequest struct {
	Name string `json:"name"`
}

func (s *Server) listAPIKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.deps.APIKeys.List(r.Context(), api.OrgID(r))
	if err != nil {
		s.fail(w, r, "list_api_keys", err)
		return
	}
	api.JSON(w, keys)
}

func (s *Server) issueAPIKey(w http.ResponseWriter, r *http.Request) {
	s.issueFor(w, r, api.OrgID(r))
}

// adminIssueAPIKey bootstraps the first key of an org.
func (s *Server) adminIssueAPIKey(w http.ResponseWriter, r *http.Request) {
	s.issueFor(w, r, chi.URLParam(r, "id"))
}

func (s *Server) issueFor(w http.ResponseWriter, r *http.Request, orgID string) {
	var req issueKeyRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.WriteError(w, err)
		return
	}
	issued, err := s.deps.APIKeys.Issue(r.Context(), orgID, req.Name)
	if err != nil {
		s.fail(w, r, "issue_api_key", err)
		return
	}
	api.Created(w, issued)
}

func (s *Server) revokeAPIKey(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if cur := api.CurrentAPIKey(r); cur != nil && cur.ID == id {
		api.Error(w, http.StatusConflict, api.CodeConflict, "cannot revoke the key used for this request", nil)
		return
	}
	if err := s.deps.APIKeys.Revoke(r.Context(), api.OrgID(r), id); err != nil {
		s.fail(w, r, "revoke_api_key", err)
		return
	}
	api.NoContent(w)
}
