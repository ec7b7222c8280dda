package middleware

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/multiwallet/internal/logging"
)

func TestRateLimiterWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	limiter := NewRateLimiter(client, "")
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		count, retry, err := limiter.Consume(ctx, "confirm", "acct-1", time.Minute)
		if err != nil {
			t.Fatalf("consume: %v", err)
		}
		if count != i || retry < 1 || retry > 60 {
			t.Fatalf("attempt %d: count=%d retry=%d", i, count, retry)
		}
	}

	mr.FastForward(time.Minute)
	if count, _, _ := limiter.Consume(ctx, "confirm", "acct-1", time.Minute); count != 1 {
		t.Fatalf("window should have reset, got %d", count)
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(AccountIDKey, "acct-1")
		return c.Next()
	})
	app.Post("/confirm", RateLimit(NewRateLimiter(client, "test"), "confirm", 2, time.Minute, logging.Discard()), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/confirm", nil))
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		codes = append(codes, resp.StatusCode)
		if i == 2 && resp.Header.Get(fiber.HeaderRetryAfter) == "" {
			t.Fatalf("expected Retry-After header")
		}
	}
	if codes[0] != fiber.StatusNoContent || codes[1] != fiber.StatusNoContent || codes[2] != fiber.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	defer client.Close()
	mr.Close()

	app := fiber.New()
	app.Post("/confirm", RateLimit(NewRateLimiter(client, ""), "confirm", 1, time.Minute, logging.Discard()), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	for i := 0; i < 2; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/confirm", nil))
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != fiber.StatusNoContent {
			t.Fatalf("expected fail-open, got %d", resp.StatusCode)
		}
	}
}
