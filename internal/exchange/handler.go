package exchange

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/multiwallet/internal/apperr"
	"github.com/congo-pay/multiwallet/internal/money"
)

// Handler exposes conversion and quote endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs an exchange handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type convertRequest struct {
	From   string          `json:"from"`
	To     string          `json:"to"`
	Amount decimal.Decimal `json:"amount"`
}

type quoteResponse struct {
	From               string `json:"from"`
	To                 string `json:"to"`
	Amount             string `json:"amount"`
	Rate               string `json:"rate"`
	Converted          string `json:"converted_amount"`
	FormattedConverted string `json:"formatted_converted_amount"`
}

type convertResponse struct {
	quoteResponse
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	FromBalance   string `json:"from_balance"`
	ToBalance     string `json:"to_balance"`
	Message       string `json:"message"`
}

func quoteOf(q Quote) quoteResponse {
	return quoteResponse{
		From:               string(q.From),
		To:                 string(q.To),
		Amount:             q.Amount.StringFixed(money.Scale),
		Rate:               q.Rate.String(),
		Converted:          q.Converted.StringFixed(money.Scale),
		FormattedConverted: money.Format(q.To, q.Converted),
	}
}

// Convert exchanges part of the caller's balance.
func (h *Handler) Convert(c *fiber.Ctx) error {
	var req convertRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Wrap(apperr.KindInvalidInput, "invalid_body", "request body is not valid JSON", err)
	}
	uid, _ := c.Locals("account_id").(string)
	res, err := h.service.Convert(c.UserContext(), ConvertInput{AccountID: uid, From: req.From, To: req.To, Amount: req.Amount})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(convertResponse{
		quoteResponse: quoteOf(res.Quote),
		TransactionID: res.Transaction.ID,
		Status:        string(res.Transaction.Status),
		FromBalance:   res.FromBalance.StringFixed(money.Scale),
		ToBalance:     res.ToBalance.StringFixed(money.Scale),
		Message:       res.Transaction.Message,
	})
}

// Quote previews a conversion from query parameters from, to and amount.
func (h *Handler) Quote(c *fiber.Ctx) error {
	amount, err := money.ParseAmount(c.Query("amount"))
	if err != nil {
		return apperr.Wrap(apperr.KindInvalidInput, "invalid_amount", "amount must be a decimal number", err)
	}
	q, err := h.service.Quote(c.UserContext(), amount, c.Query("from"), c.Query("to"))
	if err != nil {
		return err
	}
	return c.JSON(quoteOf(q))
}
