package account

import (
	"time"

	"github.com/congo-pay/multiwallet/internal/ledger"
	"github.com/congo-pay/multiwallet/internal/money"
)

// CreateInput carries the data needed to open a wallet account.
type CreateInput struct {
	Username        string
	Email           string
	Name            string
	PIN             string
	DefaultCurrency string
}

// SetPINInput changes the transfer PIN.
type SetPINInput struct {
	AccountID  string
	CurrentPIN string
	NewPIN     string
}

// Profile is the public view of an account.
type Profile struct {
	ID               string            `json:"id"`
	Username         string            `json:"username"`
	Email            string            `json:"email"`
	Name             string            `json:"name"`
	AccountNumber    string            `json:"account_number"`
	DefaultCurrency  money.Currency    `json:"default_currency"`
	Balance          string            `json:"balance"`
	FormattedBalance string            `json:"formatted_balance"`
	Balances         map[string]string `json:"balances"`
	TwoFactorEnabled bool              `json:"two_factor_enabled"`
	PendingTransfer  *PendingView      `json:"pending_transfer,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// PendingView describes a transfer awaiting OTP confirmation.
type PendingView struct {
	Amount     string         `json:"amount"`
	Currency   money.Currency `json:"currency"`
	ReceiverID string         `json:"receiver_id"`
	ExpiresAt  time.Time      `json:"expires_at"`
}

// ProfileOf renders an account for API consumers. Balances are exact decimal strings.
func ProfileOf(a ledger.Account) Profile {
	p := Profile{
		ID:               a.ID,
		Username:         a.Username,
		Email:            a.Email,
		Name:             a.Name,
		AccountNumber:    a.AccountNumber,
		DefaultCurrency:  a.DefaultCurrency,
		Balance:          a.Balance(a.DefaultCurrency).StringFixed(money.Scale),
		FormattedBalance: money.Format(a.DefaultCurrency, a.Balance(a.DefaultCurrency)),
		Balances:         make(map[string]string, len(money.Supported())),
		TwoFactorEnabled: a.TwoFactorEnabled,
		CreatedAt:        a.CreatedAt,
	}
	for _, c := range money.Supported() {
		p.Balances[string(c)] = a.Balance(c).StringFixed(money.Scale)
	}
	if a.Pending != nil {
		p.PendingTransfer = &PendingView{
			Amount:     a.Pending.Amount.StringFixed(money.Scale),
			Currency:   a.Pending.Currency,
			ReceiverID: a.Pending.ReceiverID,
			ExpiresAt:  a.Pending.ExpiresAt,
		}
	}
	return p
}

// HistoryEntry is one transaction record as shown to its owner.
type HistoryEntry struct {
	ID             string         `json:"id"`
	Kind           ledger.Kind    `json:"kind"`
	Status         ledger.Status  `json:"status"`
	Direction      string         `json:"direction"`
	ActorID        string         `json:"actor_id"`
	CounterpartyID string         `json:"counterparty_id,omitempty"`
	Currency       money.Currency `json:"currency"`
	Amount         string         `json:"amount"`
	TargetCurrency money.Currency `json:"target_currency,omitempty"`
	TargetAmount   string         `json:"target_amount,omitempty"`
	Message        string         `json:"message"`
	CreatedAt      time.Time      `json:"created_at"`
}

// EntryOf renders t from the point of view of viewerID.
func EntryOf(viewerID string, t ledger.Transaction) HistoryEntry {
	e := HistoryEntry{
		ID:             t.ID,
		Kind:           t.Kind,
		Status:         t.Status,
		Direction:      "out",
		ActorID:        t.ActorID,
		CounterpartyID: t.CounterpartyID,
		Currency:       t.Currency,
		Amount:         t.Amount.StringFixed(money.Scale),
		Message:        t.Message,
		CreatedAt:      t.CreatedAt,
	}
	if t.Kind == ledger.KindDeposit || (t.CounterpartyID == viewerID && t.ActorID != viewerID) {
		e.Direction = "in"
	}
	if t.TargetCurrency != "" {
		e.TargetCurrency = t.TargetCurrency
		e.TargetAmount = t.TargetAmount.StringFixed(money.Scale)
	}
	return e
}
