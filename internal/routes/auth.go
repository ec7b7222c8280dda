package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/multiwallet/internal/auth"
)

// RegisterAuthRoutes wires the token endpoint behind the login rate limiter.
func RegisterAuthRoutes(r fiber.Router, h *auth.Handler, rateLimiter fiber.Handler) {
	r.Post("/auth/token", rateLimiter, h.Login)
}
