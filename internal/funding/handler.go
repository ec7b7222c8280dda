package funding

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/multiwallet/internal/apperr"
	"github.com/congo-pay/multiwallet/internal/money"
)

// Handler exposes HTTP endpoints for deposits and withdrawals.
type Handler struct {
	service *Service
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type fundingRequest struct {
	Currency string          `json:"currency"`
	Amount   decimal.Decimal `json:"amount"`
}

type fundingResponse struct {
	TransactionID    string `json:"transaction_id"`
	Status           string `json:"status"`
	Currency         string `json:"currency"`
	Amount           string `json:"amount"`
	Balance          string `json:"balance"`
	FormattedBalance string `json:"formatted_balance"`
	Message          string `json:"message"`
}

func toResponse(r Result) fundingResponse {
	return fundingResponse{
		TransactionID:    r.Transaction.ID,
		Status:           string(r.Transaction.Status),
		Currency:         string(r.Currency),
		Amount:           r.Transaction.Amount.StringFixed(money.Scale),
		Balance:          r.Balance.StringFixed(money.Scale),
		FormattedBalance: money.Format(r.Currency, r.Balance),
		Message:          r.Transaction.Message,
	}
}

func (h *Handler) input(c *fiber.Ctx) (Input, error) {
	var req fundingRequest
	if err := c.BodyParser(&req); err != nil {
		return Input{}, apperr.Wrap(apperr.KindInvalidInput, "invalid_body", "request body is not valid JSON", err)
	}
	uid, _ := c.Locals("account_id").(string)
	return Input{AccountID: uid, Currency: req.Currency, Amount: req.Amount}, nil
}

// Deposit credits the caller's balance.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	in, err := h.input(c)
	if err != nil {
		return err
	}
	res, err := h.service.Deposit(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(toResponse(res))
}

// Withdraw debits the caller's balance.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	in, err := h.input(c)
	if err != nil {
		return err
	}
	res, err := h.service.Withdraw(c.UserContext(), in)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(toResponse(res))
}
