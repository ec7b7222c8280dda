package middleware

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/multiwallet/internal/apperr"
)

// Audit emits one structured log line per request. Business rejections are
// logged at warn level, infrastructure failures at error level.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = StatusOf(err)
		}

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
		}
		if id := RequestIDOf(c); id != "" {
			attrs = append(attrs, slog.String("request_id", id))
		}
		if id := AccountID(c); id != "" {
			attrs = append(attrs, slog.String("account_id", id))
		}

		switch {
		case err == nil:
			logger.Info("request completed", attrs...)
		case status >= fiber.StatusInternalServerError:
			logger.Error("request completed", append(attrs, slog.Any("error", err))...)
		default:
			logger.Warn("request completed", append(attrs,
				slog.String("error_kind", string(apperr.KindOf(err))),
				slog.String("reason", apperr.ReasonOf(err)),
			)...)
		}
		return err
	}
}

// StatusOf returns the status code err will be rendered with.
func StatusOf(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return apperr.HTTPStatus(apperr.KindOf(err))
}
