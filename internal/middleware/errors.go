package middleware

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/multiwallet/internal/apperr"
)

type errorBody struct {
	Error   string `json:"error"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
}

// ErrorHandler renders handler errors as {"error","reason","message"}.
// Internal causes are never echoed to the client.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(errorBody{Error: statusKind(fe.Code), Message: fe.Message})
	}

	var ae *apperr.Error
	if !errors.As(err, &ae) || ae.Kind == apperr.KindInternal {
		return c.Status(fiber.StatusInternalServerError).JSON(errorBody{
			Error:   string(apperr.KindInternal),
			Message: "internal error",
		})
	}
	return c.Status(apperr.HTTPStatus(ae.Kind)).JSON(errorBody{
		Error:   string(ae.Kind),
		Reason:  ae.Reason,
		Message: ae.Message,
	})
}

func statusKind(code int) string {
	switch code {
	case fiber.StatusTooManyRequests:
		return "rate_limited"
	case fiber.StatusNotFound:
		return string(apperr.KindNotFound)
	case fiber.StatusMethodNotAllowed:
		return "method_not_allowed"
	case fiber.StatusBadRequest, fiber.StatusUnprocessableEntity:
		return string(apperr.KindInvalidInput)
	}
	if code >= fiber.StatusInternalServerError {
		return string(apperr.KindInternal)
	}
	return "error"
}
