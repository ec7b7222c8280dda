package payments

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/multiwallet/internal/ledger"
	"github.com/congo-pay/multiwallet/internal/money"
)

// State is where a transfer attempt ended up.
type State string

const (
	StateSettled     State = "settled"
	StateAwaitingOTP State = "awaiting_otp"
	StateRejected    State = "rejected"
	StateExpired     State = "expired"
	StateCancelled   State = "cancelled"
)

// TransferInput captures the data needed to move funds between accounts.
// Recipient is an account id, username or account number. An empty Currency
// means the sender's default currency.
type TransferInput struct {
	SenderID  string
	Recipient string
	Amount    decimal.Decimal
	Currency  string
	PIN       string
}

// ConfirmInput completes a transfer held for OTP confirmation.
type ConfirmInput struct {
	SenderID string
	Code     string
}

// TransferResult describes the outcome of a transfer step. Transaction is
// zero while a transfer awaits confirmation.
type TransferResult struct {
	State         State
	Transaction   ledger.Transaction
	ReceiverID    string
	Currency      money.Currency
	Amount        decimal.Decimal
	SenderBalance decimal.Decimal
	ExpiresAt     time.Time
}
