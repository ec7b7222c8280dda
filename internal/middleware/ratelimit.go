package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

var fixedWindowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RateLimiter counts attempts per subject in fixed Redis windows.
type RateLimiter struct {
	client redis.UniversalClient
	prefix string
}

func NewRateLimiter(client redis.UniversalClient, prefix string) *RateLimiter {
	prefix = strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = "multiwallet:rate_limit"
	}
	return &RateLimiter{client: client, prefix: prefix}
}

// Consume records one attempt and returns the count in the current window and
// the seconds until it resets.
func (r *RateLimiter) Consume(ctx context.Context, scope, subject string, window time.Duration) (count int, retryAfter int, err error) {
	windowMs := window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}
	key := fmt.Sprintf("%s:%s:%s", r.prefix, scope, subject)
	raw, err := fixedWindowScript.Run(ctx, r.client, []string{key}, windowMs).Result()
	if err != nil {
		return 0, 0, err
	}
	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return 0, 0, fmt.Errorf("unexpected rate limiter response: %T", raw)
	}
	current, ok := values[0].(int64)
	if !ok {
		return 0, 0, fmt.Errorf("unexpected rate limiter count: %T", values[0])
	}
	ttlMs, _ := values[1].(int64)
	if ttlMs <= 0 {
		ttlMs = windowMs
	}
	return int(current), int(math.Ceil(float64(ttlMs) / 1000.0)), nil
}

// RateLimit allows at most limit requests per window for each authenticated
// account (falling back to the client IP). It fails open when Redis errors or
// when limiter is nil.
func RateLimit(limiter *RateLimiter, scope string, limit int, window time.Duration, logger *slog.Logger) fiber.Handler {
	if limit <= 0 {
		limit = 5
	}
	return func(c *fiber.Ctx) error {
		if limiter == nil {
			return c.Next()
		}
		subject := AccountID(c)
		if subject == "" {
			subject = c.IP()
		}
		count, retryAfter, err := limiter.Consume(c.UserContext(), scope, subject, window)
		if err != nil {
			logger.Warn("rate limiter unavailable", slog.String("scope", scope), slog.Any("error", err))
			return c.Next()
		}
		if count > limit {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
			return fiber.NewError(fiber.StatusTooManyRequests, "too many attempts, try again later")
		}
		return c.Next()
	}
}
