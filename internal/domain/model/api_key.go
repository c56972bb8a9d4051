package model

import (
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	"launchkit-core/internal/domain"
)

const (
	apiKeyAlphabet  = "abcdefghijklmnopqrstuvwxyz0123456789"
	apiKeyIDLen     = 8
	apiKeySecretLen = 32
)

// APIKeyLimits caps the active keys an org may hold per plan tier.
var APIKeyLimits = map[PlanTier]int{
	PlanFree:       2,
	PlanPro:        10,
	PlanEnterprise: 50,
}

// APIKey authenticates an org. Only the bcrypt hash of the full key is stored.
type APIKey struct {
	ID         string     `json:"id"`
	OrgID      string     `json:"orgId"`
	Name       string     `json:"name"`
	Prefix     string     `json:"prefix"`
	KeyHash    string     `json:"-"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	RevokedAt  *time.Time `json:"revokedAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

func (k *APIKey) Active() bool { return k != nil && k.RevokedAt == nil }

// IssuedAPIKey carries the plaintext key exactly once.
type IssuedAPIKey struct {
	*APIKey
	Key     string `json:"key"`
	Warning string `json:"warning"`
}

// NewAPIKeyMaterial mints "lk_<env>_pk_<8>" as the lookup prefix and
// "<prefix>_<32>" as the full key.
func NewAPIKeyMaterial(env string) (prefix, key string, err error) {
	if env == "" {
		env = "test"
	}
	id, err := randomString(apiKeyIDLen)
	if err != nil {
		return "", "", err
	}
	secret, err := randomString(apiKeySecretLen)
	if err != nil {
		return "", "", err
	}
	prefix = "lk_" + env + "_pk_" + id
	return prefix, prefix + "_" + secret, nil
}

// APIKeyPrefix extracts the lookup prefix from a full key.
func APIKeyPrefix(key string) (string, error) {
	parts := strings.Split(key, "_")
	if len(parts) < 5 || parts[0] != "lk" || parts[2] != "pk" {
		return "", domain.ErrInvalidAPIKey
	}
	return strings.Join(parts[:4], "_"), nil
}

func randomString(n int) (string, error) {
	buf := make([]byte, n)
	max := big.NewInt(int64(len(apiKeyAlphabet)))
	for i := range buf {
		r, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = apiKeyAlphabet[r.Int64()]
	}
	return string(buf), nil
}
