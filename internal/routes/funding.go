package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/multiwallet/internal/funding"
)

// RegisterFundingRoutes wires deposit and withdrawal endpoints.
func RegisterFundingRoutes(r fiber.Router, h *funding.Handler, idempotent fiber.Handler) {
	r.Post("/deposits", idempotent, h.Deposit)
	r.Post("/withdrawals", idempotent, h.Withdraw)
}
