package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/multiwallet/internal/apperr"
)

// AccountIDKey is the locals key holding the authenticated account id.
const AccountIDKey = "account_id"

// TokenParser verifies an access token and returns its account id.
type TokenParser interface {
	Parse(token string) (string, error)
}

// JWTAuth rejects requests without a valid bearer token and exposes the
// token's account id to downstream handlers.
func JWTAuth(tokens TokenParser) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if len(authz) < 7 || !strings.EqualFold(authz[:7], "bearer ") {
			return apperr.New(apperr.KindUnauthorized, "missing_token", "missing bearer token")
		}
		accountID, err := tokens.Parse(strings.TrimSpace(authz[7:]))
		if err != nil {
			return apperr.Wrap(apperr.KindUnauthorized, "invalid_token", "invalid token", err)
		}
		c.Locals(AccountIDKey, accountID)
		return c.Next()
	}
}

// AccountID returns the authenticated account id, or "" on public routes.
func AccountID(c *fiber.Ctx) string {
	id, _ := c.Locals(AccountIDKey).(string)
	return id
}
