package middleware

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/multiwallet/internal/apperr"
	"github.com/congo-pay/multiwallet/internal/logging"
)

func setupTestApp(t *testing.T) (*fiber.App, *int32) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	var calls int32
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(AccountIDKey, c.Get("X-Test-Account"))
		return c.Next()
	})
	app.Use(Idempotency(cache, time.Minute, logging.Discard()))
	app.Post("/resource", func(c *fiber.Ctx) error {
		n := atomic.AddInt32(&calls, 1)
		if c.Query("fail") != "" {
			return apperr.New(apperr.KindInsufficientFunds, "insufficient_funds", "insufficient funds")
		}
		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"call": n})
	})
	return app, &calls
}

func post(t *testing.T, app *fiber.App, path, key, account string) (int, string, string) {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader("{}"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if key != "" {
		req.Header.Set(idempotencyKeyHeader, key)
	}
	req.Header.Set("X-Test-Account", account)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, string(body), resp.Header.Get(replayHeader)
}

func TestIdempotencyRequiresHeader(t *testing.T) {
	app, _ := setupTestApp(t)
	status, body, _ := post(t, app, "/resource", "", "acct-1")
	if status != fiber.StatusBadRequest {
		t.Fatalf("expected %d got %d", fiber.StatusBadRequest, status)
	}
	var decoded errorBody
	if err := json.Unmarshal([]byte(body), &decoded); err != nil || decoded.Reason != "missing_idempotency_key" {
		t.Fatalf("unexpected error body %s", body)
	}
}

func TestIdempotencyReturnsCachedResponse(t *testing.T) {
	app, calls := setupTestApp(t)

	status, first, _ := post(t, app, "/resource", "abc123", "acct-1")
	if status != fiber.StatusCreated {
		t.Fatalf("expected status %d got %d", fiber.StatusCreated, status)
	}

	// The retry must not reach the handler again.
	status, second, replayed := post(t, app, "/resource", "abc123", "acct-1")
	if status != fiber.StatusCreated || second != first || replayed != "true" {
		t.Fatalf("expected replay of %s, got %d %s", first, status, second)
	}
	if atomic.LoadInt32(calls) != 1 {
		t.Fatalf("handler ran %d times", atomic.LoadInt32(calls))
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(second), &decoded); err != nil {
		t.Fatalf("cached payload invalid json: %v", err)
	}
}

func TestIdempotencyKeysAreScopedPerAccount(t *testing.T) {
	app, calls := setupTestApp(t)
	post(t, app, "/resource", "same-key", "acct-1")
	_, _, replayed := post(t, app, "/resource", "same-key", "acct-2")
	if replayed != "" || atomic.LoadInt32(calls) != 2 {
		t.Fatalf("a different account must not see another account's response")
	}
}

func TestIdempotencyDoesNotStoreFailures(t *testing.T) {
	app, calls := setupTestApp(t)
	status, _, _ := post(t, app, "/resource?fail=1", "retry-me", "acct-1")
	if status != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", status)
	}
	status, _, _ = post(t, app, "/resource", "retry-me", "acct-1")
	if status != fiber.StatusCreated || atomic.LoadInt32(calls) != 2 {
		t.Fatalf("a failed request must be retryable, got %d after %d calls", status, atomic.LoadInt32(calls))
	}
}
