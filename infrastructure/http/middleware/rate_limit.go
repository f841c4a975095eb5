package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spacedesk/spacedesk/infrastructure/http/response"
	"github.com/spacedesk/spacedesk/infrastructure/service/logger"
	"github.com/spacedesk/spacedesk/infrastructure/service/ratelimit"
)

// RateLimitMiddleware throttles allocation writes per client IP. Admin
// consoles fan out bursts of create/modify/revoke calls; reads stay
// unthrottled.
type RateLimitMiddleware struct {
	limiter       ratelimit.Service
	log           logger.Logger
	requests      int
	window        time.Duration
	blockDuration time.Duration
}

func NewRateLimitMiddleware(limiter ratelimit.Service, log logger.Logger, requests int, window, blockDuration time.Duration) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiter:       limiter,
		log:           log,
		requests:      requests,
		window:        window,
		blockDuration: blockDuration,
	}
}

func (m *RateLimitMiddleware) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if m.limiter == nil || r.Method == http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}

		clientIP := getClientIP(r)
		key := "write:ip:" + clientIP

		blocked, err := m.limiter.IsBlocked(ctx, key)
		if err != nil {
			// Throttling is advisory; never fail a request over limiter trouble.
			m.log.Error(ctx, "failed to check block status", err, map[string]interface{}{"ip": clientIP})
		}
		if blocked {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(m.blockDuration.Seconds())))
			response.Error(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
			return
		}

		allowed, err := m.limiter.Allow(ctx, key, m.requests, m.window)
		if err != nil {
			m.log.Error(ctx, "failed to check rate limit", err, map[string]interface{}{"ip": clientIP})
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			if err := m.limiter.Block(ctx, key, m.blockDuration); err != nil {
				m.log.Error(ctx, "failed to block client", err, map[string]interface{}{"ip": clientIP})
			}
			m.log.Warn(ctx, "rate limit exceeded", map[string]interface{}{
				"ip":   clientIP,
				"path": r.URL.Path,
			})
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(m.blockDuration.Seconds())))
			response.Error(w, http.StatusTooManyRequests, "Too many requests. Please try again later.")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	xff := r.Header.Get("X-Forwarded-For")
	if xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	ip := r.RemoteAddr
	if idx := strings.LastIndex(ip, ":"); idx != -1 {
		ip = ip[:idx]
	}
	return ip
}
