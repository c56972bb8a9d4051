package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"launchkit-core/internal/domain"
	"launchkit-core/internal/domain/model"
	"launchkit-core/internal/domain/ports/repository"
	"launchkit-core/internal/infra/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

const (
	apiKeyWarning     = "Save this key securely - it will not be shown again!"
	touchTimeout      = 5 * time.Second
	defaultBcryptCost = 12
)

// Compile-time check
var _ APIKeyUseCase = (*apiKeyUC)(nil)

type APIKeyUseCase interface {
	Issue(ctx context.Context, orgID, name string) (*model.IssuedAPIKey, error)
	List(ctx context.Context, orgID string) ([]*model.APIKey, error)
	Revoke(ctx context.Context, orgID, id string) error
	// Authenticate resolves a full key to its active record.
	Authenticate(ctx context.Context, key string) (*model.APIKey, error)
}

type apiKeyUC struct {
	keys repository.APIKeyRepository
	orgs repository.OrgRepository

	env  string
	cost int
	now  func() time.Time
	log  *zerolog.Logger
}

type APIKeyOption func(*apiKeyUC)

// WithKeyEnv sets the env segment of minted keys ("live" or "test").
func WithKeyEnv(env string) APIKeyOption {
	return func(uc *apiKeyUC) { uc.env = env }
}

func WithBcryptCost(cost int) APIKeyOption {
	return func(uc *apiKeyUC) { uc.cost = cost }
}

func NewAPIKeyUseCase(keys repository.APIKeyRepository, orgs repository.OrgRepository, logger *zerolog.Logger, opts ...APIKeyOption) *apiKeyUC {
	l := logger.With().Str("component", "APIKeyUseCase").Logger()
	uc := &apiKeyUC{keys: keys, orgs: orgs, env: "test", cost: defaultBcryptCost, now: time.Now, log: &l}
	for _, opt := range opts {
		opt(uc)
	}
	return uc
}

func (uc *apiKeyUC) Issue(ctx context.Context, orgID, name string) (*model.IssuedAPIKey, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", domain.ErrInvalidArgument)
	}
	org, err := uc.orgs.FindByID(ctx, repository.NoTX, orgID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrOrgNotFound, orgID)
	}
	if err != nil {
		return nil, err
	}

	existing, err := uc.keys.ListByOrg(ctx, repository.NoTX, orgID)
	if err != nil {
		return nil, err
	}
	active := 0
	for _, k := range existing {
		if k.Active() {
			active++
		}
	}
	if limit, ok := model.APIKeyLimits[org.PlanTier]; ok && active >= limit {
		return nil, fmt.Errorf("%w: your %s plan allows maximum %d API keys", domain.ErrAPIKeyLimit, org.PlanTier, limit)
	}

	prefix, full, err := model.NewAPIKeyMaterial(uc.env)
	if err != nil {
		return nil, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(full), uc.cost)
	if err != nil {
		return nil, fmt.Errorf("hash api key: %w", err)
	}
	key := &model.APIKey{
		ID:        uuid.NewString(),
		OrgID:     orgID,
		Name:      name,
		Prefix:    prefix,
		KeyHash:   string(hash),
		CreatedAt: uc.now().UTC(),
	}
	if err := uc.keys.Save(ctx, repository.NoTX, key); err != nil {
		return nil, err
	}
	uc.log.Info().Str("org_id", orgID).Str("prefix", prefix).Msg("api key issued")
	return &model.IssuedAPIKey{APIKey: key, Key: full, Warning: apiKeyWarning}, nil
}

func (uc *apiKeyUC) List(ctx context.Context, orgID string) ([]*model.APIKey, error) {
	keys, err := uc.keys.ListByOrg(ctx, repository.NoTX, orgID)
	if err != nil {
		return nil, err
	}
	if keys == nil {
		keys = []*model.APIKey{}
	}
	return keys, nil
}

func (uc *apiKeyUC) Revoke(ctx context.Context, orgID, id string) error {
	keys, err := uc.keys.ListByOrg(ctx, repository.NoTX, orgID)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if k.ID == id {
			if !k.Active() {
				return nil
			}
			if err := uc.keys.Revoke(ctx, repository.NoTX, id, uc.now().UTC()); err != nil {
				return err
			}
			uc.log.Info().Str("org_id", orgID).Str("prefix", k.Prefix).Msg("api key revoked")
			return nil
		}
	}
	return domain.ErrNotFound
}

func (uc *apiKeyUC) Authenticate(ctx context.Context, key string) (*model.APIKey, error) {
	prefix, err := model.APIKeyPrefix(key)
	if err != nil {
		return nil, err
	}
	candidates, err := uc.keys.FindActiveByPrefix(ctx, repository.NoTX, prefix)
	if err != nil {
		return nil, err
	}
	for _, k := range candidates {
		if bcrypt.CompareHashAndPassword([]byte(k.KeyHash), []byte(key)) == nil {
			uc.touch(ctx, k.ID)
			return k, nil
		}
	}
	return nil, domain.ErrInvalidAPIKey
}

// touch records last use off the request path.
func (uc *apiKeyUC) touch(ctx context.Context, id string) {
	at := uc.now().UTC()
	worker.Detach(ctx, uc.log, "apikey_touch", touchTimeout, func(ctx context.Context) error {
		return uc.keys.TouchLastUsed(ctx, repository.NoTX, id, at)
	})
}
