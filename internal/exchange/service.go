package exchange

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/multiwallet/internal/apperr"
	"github.com/congo-pay/multiwallet/internal/events"
	"github.com/congo-pay/multiwallet/internal/ledger"
	"github.com/congo-pay/multiwallet/internal/money"
	"github.com/congo-pay/multiwallet/internal/rates"
)

// Service converts balances between currencies of the same account.
type Service struct {
	store  ledger.Store
	rates  rates.Source
	events *events.Emitter
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs an exchange service.
func NewService(store ledger.Store, source rates.Source, emitter *events.Emitter, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, rates: source, events: emitter, logger: logger, now: time.Now}
}

// ConvertInput moves Amount of From into To on one account.
type ConvertInput struct {
	AccountID string
	From      string
	To        string
	Amount    decimal.Decimal
}

// Quote previews a conversion.
type Quote struct {
	From      money.Currency
	To        money.Currency
	Amount    decimal.Decimal
	Rate      decimal.Decimal
	Converted decimal.Decimal
}

// Result is the recorded outcome of a conversion, populated for failed
// attempts as well.
type Result struct {
	Quote
	Transaction ledger.Transaction
	FromBalance decimal.Decimal
	ToBalance   decimal.Decimal
}

// Quote looks up the current rate and computes the converted amount without
// touching any balance.
func (s *Service) Quote(ctx context.Context, amount decimal.Decimal, from, to string) (Quote, error) {
	src, dst, err := pair(from, to)
	if err != nil {
		return Quote{}, err
	}
	if err := money.ValidateAmount(amount); err != nil {
		return Quote{}, apperr.Wrap(apperr.KindInvalidInput, "invalid_amount", "amount must be positive with at most two decimal places", err)
	}
	rate, err := s.rates.Rate(ctx, src, dst)
	if err != nil {
		return Quote{}, rateError(err)
	}
	return Quote{From: src, To: dst, Amount: amount, Rate: rate, Converted: convert(amount, rate)}, nil
}

// Convert debits From and credits To with the converted amount in one atomic
// update. The rate is fetched before the account is locked.
func (s *Service) Convert(ctx context.Context, in ConvertInput) (Result, error) {
	src, dst, err := pair(in.From, in.To)
	if err != nil {
		return Result{}, err
	}
	if err := money.CheckRange(in.Amount); err != nil {
		return Result{}, apperr.Wrap(apperr.KindInvalidInput, "amount_out_of_range", "amount is too large or too precise", err)
	}
	acct, err := s.store.Account(ctx, in.AccountID)
	if err != nil {
		return Result{}, storeError("load account", err)
	}
	now := ledger.Timestamp(s.now())
	q := Quote{From: src, To: dst, Amount: in.Amount}

	if verr := money.ValidateAmount(in.Amount); verr != nil {
		return s.reject(ctx, acct, q, "Invalid amount", now,
			apperr.Wrap(apperr.KindInvalidInput, "invalid_amount", "amount must be positive with at most two decimal places", verr))
	}
	rate, rerr := s.rates.Rate(ctx, src, dst)
	if rerr != nil {
		s.logger.Warn("rate lookup failed", "account_id", acct.ID, "from", src, "to", dst, "error", rerr)
		return s.reject(ctx, acct, q, "Exchange rate unavailable", now, rateError(rerr))
	}
	q.Rate = rate
	q.Converted = convert(in.Amount, rate)
	if !q.Converted.IsPositive() {
		return s.reject(ctx, acct, q, "Converted amount rounds to zero", now,
			apperr.New(apperr.KindInvalidInput, "amount_too_small", "converted amount rounds to zero"))
	}

	var (
		res     Result
		outcome error
	)
	err = s.store.Update(ctx, []string{acct.ID}, func(tx ledger.Tx) error {
		a, err := tx.Account(ctx, acct.ID)
		if err != nil {
			return err
		}
		rec := conversionRecord(a.ID, q, ledger.StatusSuccess, "", now)
		if a.Balance(src).LessThan(in.Amount) {
			rec.Status = ledger.StatusFailed
			rec.Message = "Insufficient funds"
			outcome = apperr.New(apperr.KindInsufficientFunds, "insufficient_funds", "insufficient funds")
		} else {
			if err := a.Debit(src, in.Amount); err != nil {
				return err
			}
			a.Credit(dst, q.Converted)
			rec.Message = fmt.Sprintf("Converted %s to %s", money.Format(src, in.Amount), money.Format(dst, q.Converted))
		}
		res = Result{Quote: q, Transaction: rec, FromBalance: a.Balance(src), ToBalance: a.Balance(dst)}
		return tx.Append(ctx, rec)
	})
	if err != nil {
		return Result{}, storeError("convert", err)
	}

	s.events.Recorded(ctx, res.Transaction)
	s.logger.Info("conversion recorded",
		"account_id", acct.ID,
		"transaction_id", res.Transaction.ID,
		"status", res.Transaction.Status,
		"from", src,
		"to", dst,
		"rate", rate.String(),
	)
	return res, outcome
}

func (s *Service) reject(ctx context.Context, acct ledger.Account, q Quote, message string, now time.Time, cause error) (Result, error) {
	rec := conversionRecord(acct.ID, q, ledger.StatusFailed, message, now)
	if err := s.store.Append(ctx, rec); err != nil {
		return Result{}, apperr.Internal("record conversion", err)
	}
	s.events.Recorded(ctx, rec)
	return Result{Quote: q, Transaction: rec, FromBalance: acct.Balance(q.From), ToBalance: acct.Balance(q.To)}, cause
}

func conversionRecord(actorID string, q Quote, status ledger.Status, message string, now time.Time) ledger.Transaction {
	rec := ledger.Record(actorID, ledger.KindConversion, q.From, q.Amount, status, message, now)
	rec.TargetCurrency = q.To
	rec.TargetAmount = q.Converted
	return rec
}

func pair(from, to string) (money.Currency, money.Currency, error) {
	src, err := money.ParseCurrency(from)
	if err != nil {
		return "", "", apperr.Wrap(apperr.KindInvalidInput, "invalid_currency", "unsupported source currency", err)
	}
	dst, err := money.ParseCurrency(to)
	if err != nil {
		return "", "", apperr.Wrap(apperr.KindInvalidInput, "invalid_currency", "unsupported target currency", err)
	}
	if src == dst {
		return "", "", apperr.New(apperr.KindInvalidInput, "same_currency", "source and target currency must differ")
	}
	return src, dst, nil
}

func convert(amount, rate decimal.Decimal) decimal.Decimal {
	return amount.Mul(rate).Round(money.Scale)
}

func rateError(err error) error {
	if errors.Is(err, rates.ErrUnknownCurrency) {
		return apperr.Wrap(apperr.KindInvalidInput, "unsupported_pair", "no rate for this currency pair", err)
	}
	return apperr.Wrap(apperr.KindUpstreamUnavailable, "rate_unavailable", "exchange rate unavailable", err)
}

func storeError(op string, err error) error {
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return apperr.Wrap(apperr.KindNotFound, "no_such_account", "account not found", err)
	}
	return apperr.Internal(op, err)
}
