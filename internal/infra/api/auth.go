package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"launchkit-core/internal/domain"
	"launchkit-core/internal/domain/model"
	"launchkit-core/internal/infra/logging"
	"launchkit-core/internal/infra/metrics"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

const apiKeyHeader = "X-API-Key"

// KeyAuthenticator resolves a presented key to its active record.
type KeyAuthenticator interface {
	Authenticate(ctx context.Context, key string) (*model.APIKey, error)
}

type ctxKey int

const apiKeyCtxKey ctxKey = iota

// OrgID returns the org resolved by APIKeyAuth.
func OrgID(r *http.Request) string {
	return logging.OrgID(r.Context())
}

// CurrentAPIKey returns the key record resolved by APIKeyAuth.
func CurrentAPIKey(r *http.Request) *model.APIKey {
	k, _ := r.Context().Value(apiKeyCtxKey).(*model.APIKey)
	return k
}

// APIKeyAuth accepts "Authorization: Bearer lk_..." or "X-API-Key: lk_..." and
// stores the owning org in the request context.
func APIKeyAuth(auth KeyAuthenticator, logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.Header.Get(apiKeyHeader)
			if raw == "" {
				raw = bearerToken(r)
			}
			if raw == "" {
				Error(w, http.StatusUnauthorized, CodeInvalidToken, "missing API key", nil)
				return
			}

			key, err := auth.Authenticate(r.Context(), raw)
			if err != nil {
				if errors.Is(err, domain.ErrInvalidAPIKey) {
					Error(w, http.StatusUnauthorized, CodeInvalidToken, "invalid API key", nil)
					return
				}
				l := logging.With(r.Context(), logger)
				l.Error().Err(err).Msg("api key lookup failed")
				Error(w, http.StatusInternalServerError, CodeInternal, "failed to validate API key", nil)
				return
			}

			ctx := logging.WithOrgID(r.Context(), key.OrgID)
			ctx = context.WithValue(ctx, apiKeyCtxKey, key)
			noteOrg(w, key.OrgID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	hdr := r.Header.Get("Authorization")
	parts := strings.SplitN(hdr, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// ===== Admin JWT =====

type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AdminAuth mints and verifies HS256 bearer tokens for the operator surface.
type AdminAuth struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAdminAuth(secret string, ttl time.Duration) *AdminAuth {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &AdminAuth{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Mint issues a token for subject.
func (a *AdminAuth) Mint(subject string) (string, error) {
	now := a.now()
	claims := AdminClaims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			Subject:   subject,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

func (a *AdminAuth) ParseFromRequest(r *http.Request) (*AdminClaims, error) {
	tok := bearerToken(r)
	if tok == "" {
		return nil, domain.ErrUnauthorized
	}
	return a.parse(tok)
}

func (a *AdminAuth) parse(tok string) (*AdminClaims, error) {
	claims := &AdminClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(a.now))
	if err != nil || !tkn.Valid || claims.Role != "admin" {
		return nil, domain.ErrUnauthorized
	}
	return claims, nil
}

// Require rejects requests without a valid admin token.
func (a *AdminAuth) Require(logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := a.ParseFromRequest(r)
			if err != nil {
				metrics.IncAdminAction("auth", "unauthorized")
				Error(w, http.StatusUnauthorized, CodeUnauthorized, "admin token required", nil)
				return
			}
			l := logging.With(r.Context(), logger)
			l.Debug().Str("admin", claims.Subject).Str("path", r.URL.Path).Msg("admin request")
			next.ServeHTTP(w, r)
		})
	}
}
