package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"launchkit-core/internal/infra/logging"
	"launchkit-core/internal/infra/metrics"
	red "launchkit-core/internal/infra/redis"

	"github.com/rs/zerolog"
)

const rateWindow = time.Minute

// Limiter is a fixed-window request counter.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// OrgRateLimit caps requests per org per minute. It must run after APIKeyAuth.
// Redis errors fail open.
func OrgRateLimit(l Limiter, perMin int, logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		if perMin <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			orgID := OrgID(r)
			if orgID == "" {
				next.ServeHTTP(w, r)
				return
			}

			now := time.Now()
			ok, err := l.Allow(r.Context(), red.OrgRequestKey(orgID, now), perMin, rateWindow)
			if err != nil {
				log := logging.With(r.Context(), logger)
				log.Warn().Err(err).Msg("rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}

			reset := now.Truncate(rateWindow).Add(rateWindow)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(perMin))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			if !ok {
				metrics.IncRateLimitTriggered()
				w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(reset).Seconds())+1))
				Error(w, http.StatusTooManyRequests, CodeRateLimited, "too many requests", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
