package security

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pocketbase/pocketbase/core"
	"github.com/redis/go-redis/v9"

	"ticket-gate/monitoring"
)

// OfficerHeader carries the verifier identity on door requests.
const OfficerHeader = "X-Officer-ID"

const verifyWindow = time.Minute

type RateLimiter struct {
	redis   *redis.Client
	limit   int
	monitor *monitoring.Monitor
	now     func() time.Time
}

// NewRateLimiter allows limit verification requests per officer per minute.
// A non-positive limit disables limiting.
func NewRateLimiter(redisClient *redis.Client, limit int, mon *monitoring.Monitor) *RateLimiter {
	return &RateLimiter{
		redis:   redisClient,
		limit:   limit,
		monitor: mon,
		now:     time.Now,
	}
}

func windowKey(identity string, at time.Time) string {
	return fmt.Sprintf("verify:rl:%s:%d", identity, at.Unix()/int64(verifyWindow.Seconds()))
}

// Allow counts one request for identity in the current fixed window.
func (r *RateLimiter) Allow(ctx context.Context, identity string) (bool, error) {
	if r.limit <= 0 || r.redis == nil {
		return true, nil
	}

	key := windowKey(identity, r.now())
	count, err := r.redis.Incr(ctx, key).Result()
	if err != nil {
		return true, err
	}
	if count == 1 {
		r.redis.Expire(ctx, key, 2*verifyWindow)
	}
	return count <= int64(r.limit), nil
}

// VerifyRateLimit limits door scans per officer. Requests without an
// officer header are counted per client IP. Redis failures let the request
// through.
func (r *RateLimiter) VerifyRateLimit() func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		identity := e.Request.Header.Get(OfficerHeader)
		if identity == "" {
			identity = "ip:" + e.RealIP()
		}

		allowed, err := r.Allow(e.Request.Context(), identity)
		if err != nil {
			slog.Error("Rate limit check failed", "error", err, "identity", identity)
		}
		if !allowed {
			r.monitor.TrackRateLimited()
			return e.JSON(http.StatusTooManyRequests, map[string]string{
				"error": "Rate limit exceeded. Please try again later.",
			})
		}

		return e.Next()
	}
}

// AntiBotMiddleware turns away obvious crawlers.
func (r *RateLimiter) AntiBotMiddleware() func(e *core.RequestEvent) error {
	return func(e *core.RequestEvent) error {
		if isSuspiciousUserAgent(e.Request.Header.Get("User-Agent")) {
			return e.JSON(http.StatusForbidden, map[string]string{
				"error": "Access denied",
			})
		}
		return e.Next()
	}
}

func isSuspiciousUserAgent(ua string) bool {
	suspicious := []string{"bot", "crawler", "spider", "scraper"}
	for _, pattern := range suspicious {
		if strings.Contains(strings.ToLower(ua), pattern) {
			return true
		}
	}
	return false
}
