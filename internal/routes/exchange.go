package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/multiwallet/internal/exchange"
)

// RegisterExchangeRoutes wires conversions and rate quotes.
func RegisterExchangeRoutes(r fiber.Router, h *exchange.Handler, idempotent fiber.Handler) {
	r.Post("/conversions", idempotent, h.Convert)
	r.Get("/rates/quote", h.Quote)
}
