package funding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/multiwallet/internal/apperr"
	"github.com/congo-pay/multiwallet/internal/events"
	"github.com/congo-pay/multiwallet/internal/fraud"
	"github.com/congo-pay/multiwallet/internal/ledger"
	"github.com/congo-pay/multiwallet/internal/money"
)

// Service applies deposits and withdrawals to account balances.
type Service struct {
	store    ledger.Store
	detector *fraud.Detector
	events   *events.Emitter
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a funding service.
func NewService(store ledger.Store, detector *fraud.Detector, emitter *events.Emitter, logger *slog.Logger) *Service {
	if detector == nil {
		detector = fraud.NewDetector()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, detector: detector, events: emitter, logger: logger, now: time.Now}
}

// Input describes a deposit or withdrawal. An empty Currency means the
// account's default currency.
type Input struct {
	AccountID string
	Currency  string
	Amount    decimal.Decimal
}

// Result is the recorded outcome of a funding operation. It is populated for
// failed and flagged attempts as well, alongside the returned error.
type Result struct {
	Transaction ledger.Transaction
	Currency    money.Currency
	Balance     decimal.Decimal
}

// Deposit credits the account unless the fraud heuristic flags the amount.
func (s *Service) Deposit(ctx context.Context, in Input) (Result, error) {
	return s.apply(ctx, ledger.KindDeposit, in)
}

// Withdraw debits the account. An overdraft is reported as insufficient funds
// before the fraud heuristic is consulted.
func (s *Service) Withdraw(ctx context.Context, in Input) (Result, error) {
	return s.apply(ctx, ledger.KindWithdrawal, in)
}

func (s *Service) apply(ctx context.Context, kind ledger.Kind, in Input) (Result, error) {
	var requested money.Currency
	if in.Currency != "" {
		c, err := money.ParseCurrency(in.Currency)
		if err != nil {
			return Result{}, apperr.Wrap(apperr.KindInvalidInput, "invalid_currency", "unsupported currency", err)
		}
		requested = c
	}
	if err := money.CheckRange(in.Amount); err != nil {
		return Result{}, apperr.Wrap(apperr.KindInvalidInput, "amount_out_of_range", "amount is too large or too precise", err)
	}

	now := ledger.Timestamp(s.now())
	var (
		res     Result
		outcome error
	)
	err := s.store.Update(ctx, []string{in.AccountID}, func(tx ledger.Tx) error {
		acct, err := tx.Account(ctx, in.AccountID)
		if err != nil {
			return err
		}
		currency := requested
		if currency == "" {
			currency = acct.DefaultCurrency
		}
		rec := ledger.Record(acct.ID, kind, currency, in.Amount, ledger.StatusSuccess, "", now)

		outcome, err = s.decide(ctx, tx, acct, kind, currency, in.Amount, now, &rec)
		if err != nil {
			return err
		}
		res = Result{Transaction: rec, Currency: currency, Balance: acct.Balance(currency)}
		return tx.Append(ctx, rec)
	})
	if err != nil {
		if errors.Is(err, ledger.ErrAccountNotFound) {
			return Result{}, apperr.Wrap(apperr.KindNotFound, "no_such_account", "account not found", err)
		}
		return Result{}, apperr.Internal(string(kind), err)
	}

	s.events.Recorded(ctx, res.Transaction)
	s.logger.Info(string(kind)+" recorded",
		"account_id", in.AccountID,
		"transaction_id", res.Transaction.ID,
		"status", res.Transaction.Status,
		"currency", res.Currency,
		"amount", in.Amount.String(),
	)
	return res, outcome
}

// decide fills in rec and mutates acct for a successful operation. The
// returned outcome is the business error, if any; err aborts the update.
func (s *Service) decide(ctx context.Context, tx ledger.Tx, acct *ledger.Account, kind ledger.Kind, currency money.Currency, amount decimal.Decimal, now time.Time, rec *ledger.Transaction) (outcome error, err error) {
	if verr := money.ValidateAmount(amount); verr != nil {
		rec.Status = ledger.StatusFailed
		rec.Message = "Invalid amount"
		return apperr.Wrap(apperr.KindInvalidInput, "invalid_amount", "amount must be positive with at most two decimal places", verr), nil
	}

	if kind == ledger.KindWithdrawal && acct.Balance(currency).LessThan(amount) {
		rec.Status = ledger.StatusFailed
		rec.Message = "Insufficient funds"
		return apperr.New(apperr.KindInsufficientFunds, "insufficient_funds", "insufficient funds"), nil
	}

	decision, err := s.detector.Evaluate(ctx, tx, acct.ID, currency, kind, amount, now)
	if err != nil {
		return nil, err
	}
	if decision.Flagged {
		rec.Status = ledger.StatusFlagged
		rec.Message = decision.Message
		s.logger.Warn("fraud flagged", "account_id", acct.ID, "kind", kind, "reason", decision.Reason)
		return apperr.New(apperr.KindFlagged, decision.Reason, decision.Message), nil
	}

	switch kind {
	case ledger.KindDeposit:
		acct.Credit(currency, amount)
		rec.Message = fmt.Sprintf("Deposited %s", money.Format(currency, amount))
	case ledger.KindWithdrawal:
		if err := acct.Debit(currency, amount); err != nil {
			return nil, err
		}
		rec.Message = fmt.Sprintf("Withdrew %s", money.Format(currency, amount))
	}
	return nil, nil
}
