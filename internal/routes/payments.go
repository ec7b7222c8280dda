package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/multiwallet/internal/payments"
)

// RegisterPaymentRoutes wires transfer initiation, OTP confirmation and cancellation.
func RegisterPaymentRoutes(r fiber.Router, h *payments.Handler, idempotent, confirmLimit fiber.Handler) {
	r.Post("/transfers", idempotent, h.Transfer)
	r.Post("/transfers/confirm", confirmLimit, h.Confirm)
	r.Delete("/transfers/pending", h.Cancel)
}
