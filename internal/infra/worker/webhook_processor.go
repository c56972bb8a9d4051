package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"launchkit-core/internal/domain"
	"launchkit-core/internal/domain/model"
	"launchkit-core/internal/domain/ports/adapter"
	"launchkit-core/internal/domain/ports/repository"
	"launchkit-core/internal/infra/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type WebhookProcessorConfig struct {
	Timeout         time.Duration
	UserAgent       string
	MaxResponseBody int64
}

// WebhookProcessor delivers webhooks tasks and appends one delivery row per attempt.
type WebhookProcessor struct {
	endpoints  repository.WebhookEndpointRepository
	deliveries repository.WebhookDeliveryRepository
	client     *http.Client
	cfg        WebhookProcessorConfig
	tracer     trace.Tracer
	now        func() time.Time
	log        *zerolog.Logger
}

func NewWebhookProcessor(
	endpoints repository.WebhookEndpointRepository,
	deliveries repository.WebhookDeliveryRepository,
	cfg WebhookProcessorConfig,
	logger *zerolog.Logger,
) *WebhookProcessor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "LaunchKit-Webhook/1.0"
	}
	if cfg.MaxResponseBody <= 0 {
		cfg.MaxResponseBody = 64 << 10
	}
	l := logger.With().Str("component", "WebhookProcessor").Logger()
	return &WebhookProcessor{
		endpoints:  endpoints,
		deliveries: deliveries,
		client: &http.Client{
			Timeout: cfg.Timeout,
			// a redirect is reported as-is and classified like any other non-2xx
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
		cfg:    cfg,
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
		log:    &l,
	}
}

type deliveryOutcome int

const (
	outcomeSuccess deliveryOutcome = iota
	outcomeRetryable
	outcomePermanent
)

// classify: 2xx succeeds; transport errors, timeouts, 5xx and 429 are
// retryable; every other status is not.
func classify(status int, err error) deliveryOutcome {
	if err != nil {
		return outcomeRetryable
	}
	switch {
	case status >= 200 && status < 300:
		return outcomeSuccess
	case status >= 500, status == http.StatusTooManyRequests:
		return outcomeRetryable
	default:
		return outcomePermanent
	}
}

// Handle is the webhooks lane handler.
func (p *WebhookProcessor) Handle(ctx context.Context, task *adapter.Task) error {
	var wt model.WebhookTask
	if err := task.Decode(&wt); err != nil {
		return Permanent(fmt.Errorf("decode webhook task: %w", err))
	}
	attempt, maxAttempts := task.Attempt(), task.MaxAttempts

	ctx, span := p.tracer.Start(ctx, "webhook.deliver", trace.WithAttributes(
		attribute.String("webhook.id", wt.WebhookID),
		attribute.String("webhook.event", wt.Event),
		attribute.Int("task.attempt", attempt),
	))
	defer span.End()
	log := p.log.With().Str("webhook_id", wt.WebhookID).Str("event", wt.Event).Int("attempt", attempt).Logger()

	ep, err := p.endpoints.FindByID(ctx, nil, wt.WebhookID)
	if errors.Is(err, domain.ErrNotFound) {
		// deleted endpoint: nothing to attach a delivery row to
		log.Warn().Msg("webhook endpoint not found, dropping delivery")
		return Permanent(fmt.Errorf("%w: %s", domain.ErrEndpointNotFound, wt.WebhookID))
	}
	if err != nil {
		return fmt.Errorf("load endpoint: %w", err)
	}

	body := []byte(wt.Data)
	if len(body) == 0 {
		body = []byte("null")
	}
	signature := Sign(ep.Secret, body)
	started := p.now()

	row := &model.WebhookDelivery{
		ID:            uuid.NewString(),
		EndpointID:    ep.ID,
		EventType:     wt.Event,
		Payload:       body,
		Signature:     signature,
		Attempt:       attempt,
		MaxAttempts:   maxAttempts,
		LastAttemptAt: started.UTC(),
		CreatedAt:     started.UTC(),
	}

	if !ep.Enabled {
		msg := domain.ErrEndpointDisabled.Error()
		row.Status = model.DeliveryFailed
		row.Error = &msg
		p.save(ctx, &log, row)
		metrics.ObserveWebhookDelivery(wt.Event, string(row.Status), 0)
		return Permanent(fmt.Errorf("%w: %s", domain.ErrEndpointDisabled, ep.ID))
	}

	status, respBody, postErr := p.post(ctx, wt.URL, wt.Event, signature, body)
	took := p.now().Sub(started)
	row.DurationMs = took.Milliseconds()
	if status > 0 {
		row.ResponseStatus = &status
	}
	if respBody != "" {
		row.ResponseBody = &respBody
	}

	outcome := classify(status, postErr)
	if outcome == outcomeSuccess {
		row.Status = model.DeliverySuccess
		p.save(ctx, &log, row)
		if err := p.endpoints.TouchDelivered(ctx, nil, ep.ID, started.UTC()); err != nil {
			log.Warn().Err(err).Msg("failed to update endpoint last delivery")
		}
		metrics.ObserveWebhookDelivery(wt.Event, string(row.Status), took)
		log.Info().Int("status", status).Dur("took", took).Msg("webhook delivered")
		return nil
	}

	cause := postErr
	if cause == nil {
		cause = fmt.Errorf("webhook endpoint responded with status %d", status)
	}
	msg := cause.Error()
	row.Error = &msg
	span.RecordError(cause)
	span.SetStatus(codes.Error, msg)

	if outcome == outcomeRetryable && attempt < maxAttempts {
		next := row.LastAttemptAt.Add(task.Backoff.Delay(attempt))
		row.Status = model.DeliveryRetrying
		row.NextAttemptAt = &next
		p.save(ctx, &log, row)
		metrics.ObserveWebhookDelivery(wt.Event, string(row.Status), took)
		log.Warn().Err(cause).Time("next_attempt_at", next).Msg("webhook delivery failed, will retry")
		return cause
	}

	row.Status = model.DeliveryFailed
	p.save(ctx, &log, row)
	metrics.ObserveWebhookDelivery(wt.Event, string(row.Status), took)
	log.Error().Err(cause).Bool("retryable", outcome == outcomeRetryable).Msg("webhook delivery failed permanently")
	return Permanent(cause)
}

func (p *WebhookProcessor) post(ctx context.Context, url, event, signature string, body []byte) (int, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, signature)
	req.Header.Set(HeaderEvent, event)
	req.Header.Set(HeaderTimestamp, model.ISOMillis(p.now()))
	req.Header.Set("User-Agent", p.cfg.UserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, p.cfg.MaxResponseBody))
	return resp.StatusCode, string(raw), nil
}

// save appends the attempt row. The row is history; failing to write it does
// not change how the attempt itself is settled.
func (p *WebhookProcessor) save(ctx context.Context, log *zerolog.Logger, row *model.WebhookDelivery) {
	if err := p.deliveries.Save(ctx, nil, row); err != nil {
		log.Error().Err(err).Str("delivery_id", row.ID).Str("status", string(row.Status)).Msg("failed to record webhook delivery")
	}
}
