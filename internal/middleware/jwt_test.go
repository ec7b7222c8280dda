package middleware

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

type fakeTokens map[string]string

func (f fakeTokens) Parse(token string) (string, error) {
	if id, ok := f[token]; ok {
		return id, nil
	}
	return "", errors.New("bad token")
}

func TestJWTAuth(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Get("/me", JWTAuth(fakeTokens{"good": "acct-1"}), func(c *fiber.Ctx) error {
		return c.SendString(AccountID(c))
	})

	cases := []struct {
		header string
		status int
	}{
		{header: "", status: fiber.StatusUnauthorized},
		{header: "Basic abc", status: fiber.StatusUnauthorized},
		{header: "Bearer nope", status: fiber.StatusUnauthorized},
		{header: "bearer good", status: fiber.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(fiber.MethodGet, "/me", nil)
		if tc.header != "" {
			req.Header.Set(fiber.HeaderAuthorization, tc.header)
		}
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("app.Test: %v", err)
		}
		if resp.StatusCode != tc.status {
			t.Fatalf("%q: expected %d got %d", tc.header, tc.status, resp.StatusCode)
		}
		if tc.status == fiber.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			if string(body) != "acct-1" {
				t.Fatalf("expected account id in locals, got %q", body)
			}
		}
	}
}
