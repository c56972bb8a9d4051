package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"launchkit-core/internal/domain"
	"launchkit-core/internal/domain/model"
	"launchkit-core/internal/domain/ports/adapter"
	"launchkit-core/internal/domain/ports/repository"
	"launchkit-core/internal/domain/ports/usecase"
	"launchkit-core/internal/infra/metrics"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

const webhookTaskName = "webhook-delivery"

// Compile-time checks
var (
	_ WebhookUseCase            = (*webhookUC)(nil)
	_ usecase.WebhookDispatcher = (*webhookUC)(nil)
)

// WebhookUseCase manages endpoints and fans events out to them. An empty
// orgID on the per-endpoint operations skips the ownership check (admin).
type WebhookUseCase interface {
	usecase.WebhookDispatcher
	Create(ctx context.Context, orgID, url string) (*model.CreatedWebhookEndpoint, error)
	List(ctx context.Context, orgID string) ([]*model.WebhookEndpoint, error)
	Update(ctx context.Context, orgID, id string, upd model.WebhookUpdate) (*model.WebhookEndpoint, error)
	Delete(ctx context.Context, orgID, id string) error
	DeliveryHistory(ctx context.Context, orgID, id string, limit, offset int) (*model.DeliveryPage, error)
	TestEndpoint(ctx context.Context, orgID, id string) (*model.TestDelivery, error)
}

type webhookUC struct {
	endpoints  repository.WebhookEndpointRepository
	deliveries repository.WebhookDeliveryRepository
	queue      adapter.WorkQueue

	now func() time.Time
	log *zerolog.Logger
}

func NewWebhookUseCase(endpoints repository.WebhookEndpointRepository, deliveries repository.WebhookDeliveryRepository, queue adapter.WorkQueue, logger *zerolog.Logger) *webhookUC {
	l := logger.With().Str("component", "WebhookUseCase").Logger()
	return &webhookUC{
		endpoints:  endpoints,
		deliveries: deliveries,
		queue:      queue,
		now:        time.Now,
		log:        &l,
	}
}

// Dispatch enqueues one delivery task per enabled endpoint of orgID.
func (uc *webhookUC) Dispatch(ctx context.Context, orgID, event string, data any) (*model.DispatchResult, error) {
	endpoints, err := uc.endpoints.ListEnabledByOrg(ctx, repository.NoTX, orgID)
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	if len(endpoints) == 0 {
		return &model.DispatchResult{Sent: 0, Message: "No webhook endpoints configured"}, nil
	}

	body, err := json.Marshal(model.WebhookEnvelope{
		Event:     event,
		Data:      data,
		Timestamp: model.ISOMillis(uc.now()),
		OrgID:     orgID,
	})
	if err != nil {
		return nil, fmt.Errorf("encode envelope: %w", err)
	}

	// every endpoint gets its own attempt at a task
	refs := make([]model.EndpointRef, 0, len(endpoints))
	var errs []error
	for _, ep := range endpoints {
		if err := uc.enqueue(ctx, ep, event, body); err != nil {
			errs = append(errs, err)
			continue
		}
		refs = append(refs, model.EndpointRef{ID: ep.ID, URL: ep.URL})
	}
	metrics.AddWebhookFanout(event, len(refs))
	log := uc.log.With().Str("org_id", orgID).Str("event", event).Logger()
	if len(errs) > 0 {
		log.Warn().Int("endpoints", len(refs)).Int("failed", len(errs)).Msg("webhook fan-out partially failed")
	} else {
		log.Debug().Int("endpoints", len(refs)).Msg("webhook fanned out")
	}

	return &model.DispatchResult{
		Sent:      len(refs),
		Message:   fmt.Sprintf("Webhook queued for %d endpoint(s)", len(refs)),
		Event:     event,
		Endpoints: refs,
	}, errors.Join(errs...)
}

func (uc *webhookUC) enqueue(ctx context.Context, ep *model.WebhookEndpoint, event string, body json.RawMessage) error {
	task := model.WebhookTask{WebhookID: ep.ID, URL: ep.URL, Event: event, Data: body}
	if _, err := uc.queue.Enqueue(ctx, adapter.LaneWebhooks, uc.newTaskID(), webhookTaskName, task, adapter.EnqueueOptions{}); err != nil {
		return fmt.Errorf("enqueue webhook for %s: %w", ep.ID, err)
	}
	return nil
}

// newTaskID returns a ULID; several deliveries of one event must not share an id.
func (uc *webhookUC) newTaskID() string {
	return ulid.Make().String()
}

func (uc *webhookUC) Create(ctx context.Context, orgID, url string) (*model.CreatedWebhookEndpoint, error) {
	ep, err := model.NewWebhookEndpoint(orgID, url)
	if err != nil {
		return nil, err
	}
	if err := uc.endpoints.Save(ctx, repository.NoTX, ep); err != nil {
		return nil, err
	}
	return &model.CreatedWebhookEndpoint{WebhookEndpoint: ep, Secret: ep.Secret}, nil
}

func (uc *webhookUC) List(ctx context.Context, orgID string) ([]*model.WebhookEndpoint, error) {
	eps, err := uc.endpoints.ListByOrg(ctx, repository.NoTX, orgID)
	if err != nil {
		return nil, err
	}
	if eps == nil {
		eps = []*model.WebhookEndpoint{}
	}
	return eps, nil
}

func (uc *webhookUC) owned(ctx context.Context, orgID, id string) (*model.WebhookEndpoint, error) {
	ep, err := uc.endpoints.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return nil, err
	}
	if orgID != "" && ep.OrgID != orgID {
		return nil, domain.ErrNotFound
	}
	return ep, nil
}

func (uc *webhookUC) Update(ctx context.Context, orgID, id string, upd model.WebhookUpdate) (*model.WebhookEndpoint, error) {
	ep, err := uc.owned(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	if upd.URL != nil {
		if err := model.ValidateWebhookURL(*upd.URL); err != nil {
			return nil, err
		}
		ep.URL = *upd.URL
	}
	if upd.Enabled != nil {
		ep.Enabled = *upd.Enabled
	}
	if err := uc.endpoints.Update(ctx, repository.NoTX, ep); err != nil {
		return nil, err
	}
	return ep, nil
}

func (uc *webhookUC) Delete(ctx context.Context, orgID, id string) error {
	if _, err := uc.owned(ctx, orgID, id); err != nil {
		return err
	}
	return uc.endpoints.Delete(ctx, repository.NoTX, id)
}

func (uc *webhookUC) DeliveryHistory(ctx context.Context, orgID, id string, limit, offset int) (*model.DeliveryPage, error) {
	if _, err := uc.owned(ctx, orgID, id); err != nil {
		return nil, err
	}
	limit, offset = clampPage(limit, offset)
	rows, total, err := uc.deliveries.ListByEndpoint(ctx, repository.NoTX, id, limit, offset)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []*model.WebhookDelivery{}
	}
	return &model.DeliveryPage{Deliveries: rows, Total: total, Limit: limit, Offset: offset}, nil
}

// TestEndpoint queues a webhook.test event to a single endpoint, enabled or not.
func (uc *webhookUC) TestEndpoint(ctx context.Context, orgID, id string) (*model.TestDelivery, error) {
	ep, err := uc.owned(ctx, orgID, id)
	if err != nil {
		return nil, err
	}
	now := model.ISOMillis(uc.now())
	body, err := json.Marshal(model.WebhookEnvelope{
		Event: model.EventWebhookTest,
		Data: map[string]string{
			"message":   "This is a test webhook from LaunchKit",
			"timestamp": now,
			"webhookId": ep.ID,
		},
		Timestamp: now,
		OrgID:     ep.OrgID,
	})
	if err != nil {
		return nil, err
	}
	if err := uc.enqueue(ctx, ep, model.EventWebhookTest, body); err != nil {
		return nil, err
	}
	return &model.TestDelivery{Message: "Test webhook queued for delivery", WebhookID: ep.ID, URL: ep.URL}, nil
}
