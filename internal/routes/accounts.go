package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/multiwallet/internal/account"
)

// RegisterAccountRoutes wires public account registration.
func RegisterAccountRoutes(r fiber.Router, h *account.Handler) {
	r.Post("/accounts", h.Register)
}

// RegisterProfileRoutes wires the caller's own account endpoints.
func RegisterProfileRoutes(r fiber.Router, h *account.Handler) {
	me := r.Group("/me")
	me.Get("", h.Me)
	me.Put("/pin", h.SetPIN)
	me.Put("/two-factor", h.SetTwoFactor)
	me.Put("/default-currency", h.SetDefaultCurrency)
	me.Get("/transactions", h.History)
}
