package model

import (
	"crypto/rand"
	"encoding/json"
	"math/big"
	"net/url"
	"time"

	"launchkit-core/internal/domain"

	"github.com/google/uuid"
)

// Event names fanned out to webhook endpoints.
const (
	EventJobCompleted = "job.completed"
	EventJobFailed    = "job.failed"
	EventWebhookTest  = "webhook.test"
)

const (
	secretPrefix   = "whsec_"
	secretAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	secretLength   = 32
)

// WebhookEndpoint is a registered delivery target. Secret is only ever
// serialized by the create response.
type WebhookEndpoint struct {
	ID             string     `json:"id"`
	OrgID          string     `json:"orgId"`
	URL            string     `json:"url"`
	Secret         string     `json:"-"`
	Enabled        bool       `json:"enabled"`
	LastDeliveryAt *time.Time `json:"lastDeliveryAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// NewWebhookEndpoint validates the target URL and mints a fresh signing secret.
func NewWebhookEndpoint(orgID, rawURL string) (*WebhookEndpoint, error) {
	if orgID == "" {
		return nil, domain.ErrInvalidArgument
	}
	if err := ValidateWebhookURL(rawURL); err != nil {
		return nil, err
	}
	secret, err := NewWebhookSecret()
	if err != nil {
		return nil, err
	}
	return &WebhookEndpoint{
		ID:        uuid.NewString(),
		OrgID:     orgID,
		URL:       rawURL,
		Secret:    secret,
		Enabled:   true,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (e *WebhookEndpoint) IsZero() bool { return e == nil || e.ID == "" }

// ValidateWebhookURL accepts absolute http(s) URLs only.
func ValidateWebhookURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return domain.ErrInvalidArgument
	}
	return nil
}

// NewWebhookSecret returns "whsec_" followed by 32 random [a-z0-9] characters.
func NewWebhookSecret() (string, error) {
	buf := make([]byte, secretLength)
	max := big.NewInt(int64(len(secretAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = secretAlphabet[n.Int64()]
	}
	return secretPrefix + string(buf), nil
}

// CreatedWebhookEndpoint is the one response that exposes the secret.
type CreatedWebhookEndpoint struct {
	*WebhookEndpoint
	Secret string `json:"secret"`
}

type DeliveryStatus string

const (
	DeliverySuccess  DeliveryStatus = "SUCCESS"
	DeliveryRetrying DeliveryStatus = "RETRYING"
	DeliveryFailed   DeliveryStatus = "FAILED"
)

// WebhookDelivery records one attempt. A chain of attempts appends one row each.
type WebhookDelivery struct {
	ID             string          `json:"id"`
	EndpointID     string          `json:"endpointId"`
	EventType      string          `json:"eventType"`
	Payload        json.RawMessage `json:"payload"`
	Signature      string          `json:"signature"`
	Status         DeliveryStatus  `json:"status"`
	Attempt        int             `json:"attempt"`
	MaxAttempts    int             `json:"maxAttempts"`
	ResponseStatus *int            `json:"responseStatus,omitempty"`
	ResponseBody   *string         `json:"responseBody,omitempty"`
	Error          *string         `json:"error,omitempty"`
	DurationMs     int64           `json:"durationMs"`
	LastAttemptAt  time.Time       `json:"lastAttemptAt"`
	NextAttemptAt  *time.Time      `json:"nextAttemptAt,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
}

// DeliveryPage is one page of delivery history, newest first.
type DeliveryPage struct {
	Deliveries []*WebhookDelivery `json:"deliveries"`
	Total      int                `json:"total"`
	Limit      int                `json:"limit"`
	Offset     int                `json:"offset"`
}

// WebhookEnvelope is the body fanned out to every enabled endpoint.
type WebhookEnvelope struct {
	Event     string `json:"event"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
	OrgID     string `json:"orgId"`
}

// ISOMillis formats t as ISO-8601 UTC with millisecond precision.
func ISOMillis(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// WebhookTask is the work-queue payload for one delivery chain.
type WebhookTask struct {
	WebhookID string          `json:"webhookId"`
	URL       string          `json:"url"`
	Event     string          `json:"event"`
	Data      json.RawMessage `json:"data"`
}

// EndpointRef names one fan-out target.
type EndpointRef struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// DispatchResult summarises a fan-out.
type DispatchResult struct {
	Sent      int           `json:"sent"`
	Message   string        `json:"message"`
	Event     string        `json:"event,omitempty"`
	Endpoints []EndpointRef `json:"endpoints,omitempty"`
}

// WebhookUpdate is a partial endpoint update; nil fields are left unchanged.
type WebhookUpdate struct {
	URL     *string `json:"url,omitempty"`
	Enabled *bool   `json:"enabled,omitempty"`
}

// TestDelivery acknowledges a queued webhook.test event.
type TestDelivery struct {
	Message   string `json:"message"`
	WebhookID string `json:"webhookId"`
	URL       string `json:"url"`
}
