package apiv1

import (
	"net/http"

	"launchkit-core/internal/domain/model"
	"launchkit-core/internal/infra/api"

	"github.com/go-chi/chi/v5"
)

type createWebhookRequest struct {
	URL string `json:"url"`
}

func (s *Server) listWebhooks(w http.ResponseWriter, r *http.Request) {
	eps, err := s.deps.Webhooks.List(r.Context(), api.OrgID(r))
	if err != nil {
		s.fail(w, r, "list_webhooks", err)
		return
	}
	api.JSON(w, eps)
}

// The secret is only ever returned by this call.
func (s *Server) createWebhook(w http.ResponseWriter, r *http.Request) {
	var req createWebhookRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.WriteError(w, err)
		return
	}
	created, err := s.deps.Webhooks.Create(r.Context(), api.OrgID(r), req.URL)
	if err != nil {
		s.fail(w, r, "create_webhook", err)
		return
	}
	api.Created(w, created)
}

func (s *Server) updateWebhook(w http.ResponseWriter, r *http.Request) {
	var upd model.WebhookUpdate
	if err := api.DecodeJSON(w, r, &upd); err != nil {
		api.WriteError(w, err)
		return
	}
	ep, err := s.deps.Webhooks.Update(r.Context(), api.OrgID(r), chi.URLParam(r, "id"), upd)
	if err != nil {
		s.fail(w, r, "update_webhook", err)
		return
	}
	api.JSON(w, ep)
}

func (s *Server) deleteWebhook(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Webhooks.Delete(r.Context(), api.OrgID(r), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, "delete_webhook", err)
		return
	}
	api.NoContent(w)
}

func (s *Server) webhookDeliveries(w http.ResponseWriter, r *http.Request) {
	limit, offset, ok := s.pagination(w, r)
	if !ok {
		return
	}
	page, err := s.deps.Webhooks.DeliveryHistory(r.Context(), api.OrgID(r), chi.URLParam(r, "id"), limit, offset)
	if err != nil {
		s.fail(w, r, "webhook_deliveries", err)
		return
	}
	api.JSON(w, page)
}

func (s *Server) testWebhook(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Webhooks.TestEndpoint(r.Context(), api.OrgID(r), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, "test_webhook", err)
		return
	}
	api.Accepted(w, res)
}
