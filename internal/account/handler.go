package account

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/multiwallet/internal/apperr"
)

// TokenIssuer signs access tokens for freshly registered accounts.
type TokenIssuer interface {
	Issue(accountID string) (string, error)
}

// Handler exposes account endpoints.
type Handler struct {
	service *Service
	tokens  TokenIssuer
}

// NewHandler constructs an account HTTP handler.
func NewHandler(service *Service, tokens TokenIssuer) *Handler {
	return &Handler{service: service, tokens: tokens}
}

type registerRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Name            string `json:"name"`
	PIN             string `json:"pin"`
	DefaultCurrency string `json:"default_currency"`
}

type setPINRequest struct {
	CurrentPIN string `json:"current_pin"`
	NewPIN     string `json:"new_pin"`
}

type twoFactorRequest struct {
	Enabled bool `json:"enabled"`
}

type currencyRequest struct {
	Currency string `json:"currency"`
}

func badBody(err error) error {
	return apperr.Wrap(apperr.KindInvalidInput, "invalid_body", "request body is not valid JSON", err)
}

func accountID(c *fiber.Ctx) string {
	id, _ := c.Locals("account_id").(string)
	return id
}

// Register opens an account and returns it with an access token.
func (h *Handler) Register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(err)
	}
	acct, err := h.service.Create(c.UserContext(), CreateInput{
		Username:        req.Username,
		Email:           req.Email,
		Name:            req.Name,
		PIN:             req.PIN,
		DefaultCurrency: req.DefaultCurrency,
	})
	if err != nil {
		return err
	}

	resp := fiber.Map{"account": ProfileOf(acct)}
	if h.tokens != nil {
		token, err := h.tokens.Issue(acct.ID)
		if err != nil {
			return apperr.Internal("issue token", err)
		}
		resp["access_token"] = token
		resp["token_type"] = "Bearer"
	}
	return c.Status(http.StatusCreated).JSON(resp)
}

// Me returns the caller's profile.
func (h *Handler) Me(c *fiber.Ctx) error {
	profile, err := h.service.Profile(c.UserContext(), accountID(c))
	if err != nil {
		return err
	}
	return c.JSON(profile)
}

// SetPIN changes the caller's transfer PIN.
func (h *Handler) SetPIN(c *fiber.Ctx) error {
	var req setPINRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(err)
	}
	err := h.service.SetPIN(c.UserContext(), SetPINInput{AccountID: accountID(c), CurrentPIN: req.CurrentPIN, NewPIN: req.NewPIN})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"message": "PIN updated"})
}

// SetTwoFactor toggles OTP confirmation of transfers.
func (h *Handler) SetTwoFactor(c *fiber.Ctx) error {
	var req twoFactorRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(err)
	}
	acct, err := h.service.SetTwoFactor(c.UserContext(), accountID(c), req.Enabled)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"two_factor_enabled": acct.TwoFactorEnabled})
}

// SetDefaultCurrency switches the caller's default currency.
func (h *Handler) SetDefaultCurrency(c *fiber.Ctx) error {
	var req currencyRequest
	if err := c.BodyParser(&req); err != nil {
		return badBody(err)
	}
	acct, err := h.service.SetDefaultCurrency(c.UserContext(), accountID(c), req.Currency)
	if err != nil {
		return err
	}
	return c.JSON(ProfileOf(acct))
}

// History lists the caller's transaction records, newest first.
func (h *Handler) History(c *fiber.Ctx) error {
	id := accountID(c)
	txs, err := h.service.History(c.UserContext(), id)
	if err != nil {
		return err
	}
	entries := make([]HistoryEntry, 0, len(txs))
	for _, t := range txs {
		entries = append(entries, EntryOf(id, t))
	}
	return c.JSON(fiber.Map{"total": len(entries), "transactions": entries})
}
