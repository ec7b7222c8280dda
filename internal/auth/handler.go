package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/multiwallet/internal/account"
	"github.com/congo-pay/multiwallet/internal/apperr"
)

// Handler exposes the login endpoint.
type Handler struct {
	accounts *account.Service
	issuer   *Issuer
}

func NewHandler(accounts *account.Service, issuer *Issuer) *Handler {
	return &Handler{accounts: accounts, issuer: issuer}
}

type loginRequest struct {
	Username string `json:"username"`
	PIN      string `json:"pin"`
}

type loginResponse struct {
	TokenPair
	AccountID string `json:"account_id"`
}

// Login exchanges a username (or account number) and PIN for an access token.
func (h *Handler) Login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperr.Wrap(apperr.KindInvalidInput, "invalid_body", "request body is not valid JSON", err)
	}
	acct, err := h.accounts.Authenticate(c.UserContext(), req.Username, req.PIN)
	if err != nil {
		return err
	}
	pair, err := h.issuer.Pair(acct.ID)
	if err != nil {
		return apperr.Internal("issue token", err)
	}
	return c.JSON(loginResponse{TokenPair: pair, AccountID: acct.ID})
}
