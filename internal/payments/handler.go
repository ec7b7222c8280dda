package payments

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/multiwallet/internal/apperr"
	"github.com/congo-pay/multiwallet/internal/money"
)

// Handler exposes payment endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a payment handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type transferRequest struct {
	Recipient string          `json:"recipient"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"currency"`
	PIN       string          `json:"pin"`
}

type confirmRequest struct {
	Code string `json:"code"`
}

type transferResponse struct {
	State         State      `json:"state"`
	TransactionID string     `json:"transaction_id,omitempty"`
	Status        string     `json:"status,omitempty"`
	ReceiverID    string     `json:"receiver_id"`
	Currency      string     `json:"currency"`
	Amount        string     `json:"amount"`
	SenderBalance string     `json:"sender_balance"`
	Message       string     `json:"message"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
}

func toResponse(r TransferResult) transferResponse {
	resp := transferResponse{
		State:         r.State,
		TransactionID: r.Transaction.ID,
		Status:        string(r.Transaction.Status),
		ReceiverID:    r.ReceiverID,
		Currency:      string(r.Currency),
		Amount:        r.Amount.StringFixed(money.Scale),
		SenderBalance: r.SenderBalance.StringFixed(money.Scale),
		Message:       r.Transaction.Message,
	}
	if r.State == StateAwaitingOTP {
		expires := r.ExpiresAt
		resp.ExpiresAt = &expires
		resp.Message = "A verification code has been sent to your email"
	}
	return resp
}

func accountID(c *fiber.Ctx) string {
	uid, _ := c.Locals("account_id").(string)
	return uid
}

// Transfer starts a transfer from the caller's account.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Wrap(apperr.KindInvalidInput, "invalid_body", "request body is not valid JSON", err)
	}
	res, err := h.service.Transfer(c.UserContext(), TransferInput{
		SenderID:  accountID(c),
		Recipient: req.Recipient,
		Amount:    req.Amount,
		Currency:  req.Currency,
		PIN:       req.PIN,
	})
	if err != nil {
		return err
	}
	status := http.StatusCreated
	if res.State == StateAwaitingOTP {
		status = http.StatusAccepted
	}
	return c.Status(status).JSON(toResponse(res))
}

// Confirm completes the caller's pending transfer with an OTP code.
func (h *Handler) Confirm(c *fiber.Ctx) error {
	var req confirmRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Wrap(apperr.KindInvalidInput, "invalid_body", "request body is not valid JSON", err)
	}
	res, err := h.service.ConfirmTransfer(c.UserContext(), ConfirmInput{SenderID: accountID(c), Code: req.Code})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(toResponse(res))
}

// Cancel abandons the caller's pending transfer.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	res, err := h.service.CancelTransfer(c.UserContext(), accountID(c))
	if err != nil {
		return err
	}
	return c.JSON(toResponse(res))
}
