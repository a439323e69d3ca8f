package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dunamismax/pixelpack/internal/ratelimit"
)

// RateLimiter takes n tokens from subject's bucket.
type RateLimiter interface {
	AllowN(ctx context.Context, subject string, n int) (ratelimit.Decision, error)
}

// routeCost is the token price of a write route. Warmups fan out into many
// transforms and asset registration signs an upload URL.
var routeCost = map[string]int{
	"/v1/warm":   5,
	"/v1/assets": 2,
}

func (s *Server) withRateLimit(next http.Handler) http.Handler {
	if s.rateLimiter == nil {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead || !strings.HasPrefix(r.URL.Path, "/v1/") {
			next.ServeHTTP(w, r)
			return
		}

		caller := strings.TrimSpace(r.Header.Get(s.rateLimitHeader))
		if caller == "" {
			caller = "anonymous"
		}
		route := routeLabel(r.URL.Path)
		subject := caller + ":" + route
		cost := max(routeCost[route], 1)

		decision, err := s.rateLimiter.AllowN(r.Context(), subject, cost)
		if err != nil {
			// Fails open.
			s.logger.Warn("rate limiter check failed", "subject", subject, "err", err)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(decision.Remaining, 10))
		if decision.Allowed {
			next.ServeHTTP(w, r)
			return
		}

		s.metrics.rateLimited.WithLabelValues(route).Inc()
		w.Header().Set("Retry-After", strconv.Itoa(max(1, int(decision.RetryAfter.Round(time.Second).Seconds()))))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{
			"error": "rate limit exceeded",
			"cost":  cost,
		})
	})
}
