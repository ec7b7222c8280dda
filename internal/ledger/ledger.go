package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/multiwallet/internal/money"
)

var (
	// ErrInsufficientFunds occurs when the source balance cannot cover a debit.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAccountNotFound indicates no account matches the given id or reference.
	ErrAccountNotFound = errors.New("account not found")

	// ErrAmbiguousReference indicates a recipient reference matched more than one account.
	ErrAmbiguousReference = errors.New("reference matches more than one account")

	// ErrDuplicateAccount indicates a unique account field is already taken.
	ErrDuplicateAccount = errors.New("account already exists")

	// ErrAccountNumberTaken is the ErrDuplicateAccount raised for an account number collision.
	ErrAccountNumberTaken = fmt.Errorf("%w: account number", ErrDuplicateAccount)
)

// Kind classifies a transaction record.
type Kind string

const (
	KindDeposit    Kind = "deposit"
	KindWithdrawal Kind = "withdrawal"
	KindTransfer   Kind = "transfer"
	KindConversion Kind = "conversion"
)

// Status is the outcome recorded for a decision.
type Status string

const (
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusFlagged Status = "flagged"
)

// PendingTransfer is a transfer held until its sender confirms an OTP challenge.
type PendingTransfer struct {
	Amount     decimal.Decimal
	Currency   money.Currency
	ReceiverID string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the confirmation window has elapsed at now.
func (p PendingTransfer) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// Account is a wallet owner together with its per-currency balances.
type Account struct {
	ID               string
	Username         string
	Email            string
	AccountNumber    string
	Name             string
	Balances         map[money.Currency]decimal.Decimal
	DefaultCurrency  money.Currency
	PINHash          []byte
	TwoFactorEnabled bool
	Pending          *PendingTransfer
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Balance returns the balance held in c.
func (a Account) Balance(c money.Currency) decimal.Decimal {
	return a.Balances[c]
}

// Credit adds amount to the balance in c.
func (a *Account) Credit(c money.Currency, amount decimal.Decimal) {
	if a.Balances == nil {
		a.Balances = make(map[money.Currency]decimal.Decimal)
	}
	a.Balances[c] = a.Balances[c].Add(amount)
}

// Debit subtracts amount from the balance in c, refusing to go negative.
func (a *Account) Debit(c money.Currency, amount decimal.Decimal) error {
	current := a.Balances[c]
	if current.LessThan(amount) {
		return ErrInsufficientFunds
	}
	a.Balances[c] = current.Sub(amount)
	return nil
}

func (a Account) clone() Account {
	out := a
	out.Balances = make(map[money.Currency]decimal.Decimal, len(a.Balances))
	for c, v := range a.Balances {
		out.Balances[c] = v
	}
	if a.PINHash != nil {
		out.PINHash = append([]byte(nil), a.PINHash...)
	}
	if a.Pending != nil {
		p := *a.Pending
		out.Pending = &p
	}
	return out
}

// ZeroBalances returns a balance map holding zero in every supported currency.
func ZeroBalances() map[money.Currency]decimal.Decimal {
	out := make(map[money.Currency]decimal.Decimal, len(money.Supported()))
	for _, c := range money.Supported() {
		out[c] = decimal.Zero
	}
	return out
}

// Transaction is one immutable entry of the transaction log.
type Transaction struct {
	ID             string
	ActorID        string
	CounterpartyID string
	Kind           Kind
	Currency       money.Currency
	Amount         decimal.Decimal
	TargetCurrency money.Currency
	TargetAmount   decimal.Decimal
	Status         Status
	Message        string
	CreatedAt      time.Time
}

// Timestamp normalises t to UTC at the microsecond precision Postgres keeps,
// so both stores compare window boundaries the same way.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// Record builds a transaction stamped with a fresh id and the decision time at.
func Record(actorID string, kind Kind, currency money.Currency, amount decimal.Decimal, status Status, message string, at time.Time) Transaction {
	return Transaction{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Kind:      kind,
		Currency:  currency,
		Amount:    amount,
		Status:    status,
		Message:   message,
		CreatedAt: Timestamp(at),
	}
}

// WindowQuery selects the actor's records used by the fraud heuristic.
type WindowQuery struct {
	ActorID  string
	Currency money.Currency
	Kind     Kind
	Status   Status
	Since    time.Time
}

func (q WindowQuery) matches(t Transaction) bool {
	return t.ActorID == q.ActorID &&
		t.Currency == q.Currency &&
		t.Kind == q.Kind &&
		t.Status == q.Status &&
		!t.CreatedAt.Before(q.Since)
}

// Tx is the view handed to an Update callback. Accounts returned by Account are
// locked for the duration of the callback and written back when it returns nil.
type Tx interface {
	Account(ctx context.Context, id string) (*Account, error)
	Recent(ctx context.Context, q WindowQuery) ([]Transaction, error)
	Append(ctx context.Context, t Transaction) error
}

// Store defines the contract implemented by ledger backends (e.g. Postgres).
type Store interface {
	CreateAccount(ctx context.Context, account Account) error
	Account(ctx context.Context, id string) (Account, error)
	// Resolve finds exactly one account by id, username or account number.
	Resolve(ctx context.Context, ref string) (Account, error)
	// Update serializes fn against every account in ids. Balance, PIN, two factor,
	// default currency and pending changes plus appended records commit together,
	// or not at all when fn returns an error.
	Update(ctx context.Context, ids []string, fn func(tx Tx) error) error
	Append(ctx context.Context, t Transaction) error
	// ListFor returns records where id is actor or counterparty, newest first.
	ListFor(ctx context.Context, id string) ([]Transaction, error)
	Recent(ctx context.Context, q WindowQuery) ([]Transaction, error)
	// PendingExpired lists accounts whose pending transfer expired at or before now.
	PendingExpired(ctx context.Context, now time.Time) ([]string, error)
}
