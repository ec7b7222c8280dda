package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/multiwallet/internal/account"
	"github.com/congo-pay/multiwallet/internal/apperr"
	"github.com/congo-pay/multiwallet/internal/events"
	"github.com/congo-pay/multiwallet/internal/fraud"
	"github.com/congo-pay/multiwallet/internal/ledger"
	"github.com/congo-pay/multiwallet/internal/money"
	"github.com/congo-pay/multiwallet/internal/notification"
	"github.com/congo-pay/multiwallet/internal/otp"
)

const (
	msgInvalidPIN       = "Invalid transaction credentials"
	msgOTPExpired       = "OTP expired"
	msgCancelled        = "Transfer cancelled"
	msgPendingReclaimed = "Pending transfer expired before confirmation"
	msgPendingConflict  = "Another transfer is awaiting confirmation"
	msgOTPUndelivered   = "Verification code could not be delivered"
)

// Service runs the transfer state machine: direct settlement, or a pending
// transfer confirmed by OTP.
type Service struct {
	store    ledger.Store
	detector *fraud.Detector
	otps     *otp.Service
	notifier notification.Notifier
	events   *events.Emitter
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs a payment service.
func NewService(store ledger.Store, detector *fraud.Detector, otps *otp.Service, notifier notification.Notifier, emitter *events.Emitter, logger *slog.Logger) *Service {
	if detector == nil {
		detector = fraud.NewDetector()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		detector: detector,
		otps:     otps,
		notifier: notifier,
		events:   emitter,
		logger:   logger,
		now:      time.Now,
	}
}

// Transfer validates and either settles a transfer or holds it for OTP
// confirmation when the sender has two factor enabled. Checks run in order:
// recipient, amount, self transfer, balance, fraud, PIN. Every rejection is
// recorded, apart from amounts too large or too precise to store.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (TransferResult, error) {
	var requested money.Currency
	if in.Currency != "" {
		c, err := money.ParseCurrency(in.Currency)
		if err != nil {
			return TransferResult{}, apperr.Wrap(apperr.KindInvalidInput, "invalid_currency", "unsupported currency", err)
		}
		requested = c
	}
	if err := money.CheckRange(in.Amount); err != nil {
		return TransferResult{}, apperr.Wrap(apperr.KindInvalidInput, "amount_out_of_range", "amount is too large or too precise", err)
	}

	sender, err := s.store.Account(ctx, in.SenderID)
	if err != nil {
		return TransferResult{}, storeError("load sender", err)
	}
	now := s.clock()

	receiver, err := s.store.Resolve(ctx, in.Recipient)
	if err != nil {
		if !errors.Is(err, ledger.ErrAccountNotFound) && !errors.Is(err, ledger.ErrAmbiguousReference) {
			return TransferResult{}, apperr.Internal("resolve recipient", err)
		}
		currency := requested
		if currency == "" {
			currency = sender.DefaultCurrency
		}
		rec := ledger.Record(sender.ID, ledger.KindTransfer, currency, in.Amount, ledger.StatusFailed, "Recipient not found", now)
		if err := s.store.Append(ctx, rec); err != nil {
			return TransferResult{}, apperr.Internal("record transfer", err)
		}
		s.events.Recorded(ctx, rec)
		return TransferResult{State: StateRejected, Transaction: rec, Currency: currency, Amount: in.Amount},
			apperr.Wrap(apperr.KindNotFound, "no_such_recipient", "recipient not found", err)
	}

	var (
		res      TransferResult
		outcome  error
		recorded []ledger.Transaction
		notifyTo string
	)
	err = s.store.Update(ctx, []string{sender.ID, receiver.ID}, func(tx ledger.Tx) error {
		from, err := tx.Account(ctx, sender.ID)
		if err != nil {
			return err
		}
		to, err := tx.Account(ctx, receiver.ID)
		if err != nil {
			return err
		}
		currency := requested
		if currency == "" {
			currency = from.DefaultCurrency
		}
		res = TransferResult{ReceiverID: to.ID, Currency: currency, Amount: in.Amount}

		reject := func(status ledger.Status, message string, cause error) error {
			rec := ledger.Record(from.ID, ledger.KindTransfer, currency, in.Amount, status, message, now)
			rec.CounterpartyID = to.ID
			res.State = StateRejected
			res.Transaction = rec
			res.SenderBalance = from.Balance(currency)
			outcome = cause
			recorded = append(recorded, rec)
			return tx.Append(ctx, rec)
		}

		if verr := money.ValidateAmount(in.Amount); verr != nil {
			return reject(ledger.StatusFailed, "Invalid amount",
				apperr.Wrap(apperr.KindInvalidInput, "invalid_amount", "amount must be positive with at most two decimal places", verr))
		}
		if from.ID == to.ID {
			return reject(ledger.StatusFailed, "Cannot transfer to self",
				apperr.New(apperr.KindInvalidInput, "self_transfer", "cannot transfer to your own account"))
		}
		if from.Balance(currency).LessThan(in.Amount) {
			return reject(ledger.StatusFailed, "Insufficient funds",
				apperr.New(apperr.KindInsufficientFunds, "insufficient_funds", "insufficient funds"))
		}
		decision, err := s.detector.Evaluate(ctx, tx, from.ID, currency, ledger.KindTransfer, in.Amount, now)
		if err != nil {
			return err
		}
		if decision.Flagged {
			s.logger.Warn("fraud flagged", "account_id", from.ID, "kind", ledger.KindTransfer, "reason", decision.Reason)
			return reject(ledger.StatusFlagged, decision.Message, apperr.New(apperr.KindFlagged, decision.Reason, decision.Message))
		}
		if !account.CheckPIN(from.PINHash, in.PIN) {
			return reject(ledger.StatusFailed, msgInvalidPIN, apperr.New(apperr.KindUnauthorized, "invalid_pin", msgInvalidPIN))
		}

		if from.TwoFactorEnabled {
			if from.Pending != nil {
				if !from.Pending.Expired(now) {
					return reject(ledger.StatusFailed, msgPendingConflict,
						apperr.New(apperr.KindConflict, "transfer_pending", "another transfer is awaiting confirmation"))
				}
				stale := pendingRecord(from, from.Pending, ledger.StatusFailed, msgPendingReclaimed, now)
				recorded = append(recorded, stale)
				if err := tx.Append(ctx, stale); err != nil {
					return err
				}
			}
			from.Pending = &ledger.PendingTransfer{
				Amount:     in.Amount,
				Currency:   currency,
				ReceiverID: to.ID,
				CreatedAt:  now,
				ExpiresAt:  now.Add(s.otps.TTL()),
			}
			res.State = StateAwaitingOTP
			res.ExpiresAt = from.Pending.ExpiresAt
			res.SenderBalance = from.Balance(currency)
			return nil
		}

		rec, err := settle(from, to, currency, in.Amount, now)
		if err != nil {
			return err
		}
		res.State = StateSettled
		res.Transaction = rec
		res.SenderBalance = from.Balance(currency)
		recorded = append(recorded, rec)
		notifyTo = to.Email
		return tx.Append(ctx, rec)
	})
	if outcome != nil && res.State == "" {
		return TransferResult{}, outcome
	}
	if err != nil {
		return TransferResult{}, storeError("transfer", err)
	}
	s.events.Recorded(ctx, recorded...)

	if res.State == StateAwaitingOTP {
		if _, err := s.otps.Issue(ctx, sender.ID, sender.Email); err != nil {
			if rec, ok := s.releasePending(ctx, sender.ID, now); ok {
				res.State = StateRejected
				res.Transaction = rec
				res.ExpiresAt = time.Time{}
				return res, err
			}
			return TransferResult{}, err
		}
		s.logger.Info("transfer awaiting otp", "account_id", sender.ID, "receiver_id", res.ReceiverID, "expires_at", res.ExpiresAt)
		return res, nil
	}

	if res.State == StateSettled {
		s.logger.Info("transfer settled", "account_id", sender.ID, "receiver_id", res.ReceiverID, "transaction_id", res.Transaction.ID)
		s.notifySettled(ctx, notifyTo, res)
	}
	return res, outcome
}

// ConfirmTransfer settles the sender's pending transfer when code matches the
// live challenge. A wrong code leaves both the challenge and the pending
// transfer in place.
func (s *Service) ConfirmTransfer(ctx context.Context, in ConfirmInput) (TransferResult, error) {
	sender, err := s.store.Account(ctx, in.SenderID)
	if err != nil {
		return TransferResult{}, storeError("load sender", err)
	}
	if sender.Pending == nil {
		return TransferResult{}, apperr.New(apperr.KindNotFound, "no_pending_transfer", "no transfer is awaiting confirmation")
	}
	pending := *sender.Pending

	_, verr := s.otps.Verify(ctx, sender.ID, in.Code)
	now := s.clock()
	switch {
	case verr == nil:
	case apperr.IsKind(verr, apperr.KindExpired):
		return s.expire(ctx, sender.ID, pending, now)
	case apperr.IsKind(verr, apperr.KindNotFound) && pending.Expired(now):
		return s.expire(ctx, sender.ID, pending, now)
	default:
		return TransferResult{}, verr
	}

	var (
		res      TransferResult
		outcome  error
		notifyTo string
	)
	err = s.store.Update(ctx, []string{sender.ID, pending.ReceiverID}, func(tx ledger.Tx) error {
		from, err := tx.Account(ctx, sender.ID)
		if err != nil {
			return err
		}
		if from.Pending == nil || !samePending(*from.Pending, pending) {
			outcome = apperr.New(apperr.KindNotFound, "no_pending_transfer", "no transfer is awaiting confirmation")
			return outcome
		}
		to, err := tx.Account(ctx, pending.ReceiverID)
		if err != nil {
			return err
		}
		from.Pending = nil
		res = TransferResult{ReceiverID: to.ID, Currency: pending.Currency, Amount: pending.Amount}

		if from.Balance(pending.Currency).LessThan(pending.Amount) {
			rec := pendingRecord(from, &pending, ledger.StatusFailed, "Insufficient funds", now)
			res.State = StateRejected
			res.Transaction = rec
			res.SenderBalance = from.Balance(pending.Currency)
			outcome = apperr.New(apperr.KindInsufficientFunds, "insufficient_funds", "insufficient funds")
			return tx.Append(ctx, rec)
		}

		rec, err := settle(from, to, pending.Currency, pending.Amount, now)
		if err != nil {
			return err
		}
		res.State = StateSettled
		res.Transaction = rec
		res.SenderBalance = from.Balance(pending.Currency)
		notifyTo = to.Email
		return tx.Append(ctx, rec)
	})
	if outcome != nil && res.State == "" {
		return TransferResult{}, outcome
	}
	if err != nil {
		return TransferResult{}, storeError("confirm transfer", err)
	}
	s.events.Recorded(ctx, res.Transaction)

	if res.State == StateSettled {
		s.logger.Info("transfer settled", "account_id", sender.ID, "receiver_id", res.ReceiverID, "transaction_id", res.Transaction.ID, "confirmed", true)
		s.notifySettled(ctx, notifyTo, res)
	}
	return res, outcome
}

// CancelTransfer abandons the sender's pending transfer and discards its challenge.
func (s *Service) CancelTransfer(ctx context.Context, senderID string) (TransferResult, error) {
	now := s.clock()
	var (
		res     TransferResult
		outcome error
	)
	err := s.store.Update(ctx, []string{senderID}, func(tx ledger.Tx) error {
		from, err := tx.Account(ctx, senderID)
		if err != nil {
			return err
		}
		if from.Pending == nil {
			outcome = apperr.New(apperr.KindNotFound, "no_pending_transfer", "no transfer is awaiting confirmation")
			return outcome
		}
		rec := pendingRecord(from, from.Pending, ledger.StatusFailed, msgCancelled, now)
		res = TransferResult{
			State:         StateCancelled,
			Transaction:   rec,
			ReceiverID:    from.Pending.ReceiverID,
			Currency:      from.Pending.Currency,
			Amount:        from.Pending.Amount,
			SenderBalance: from.Balance(from.Pending.Currency),
		}
		from.Pending = nil
		return tx.Append(ctx, rec)
	})
	if outcome != nil {
		return TransferResult{}, outcome
	}
	if err != nil {
		return TransferResult{}, storeError("cancel transfer", err)
	}
	s.discard(ctx, senderID)
	s.events.Recorded(ctx, res.Transaction)
	s.logger.Info("transfer cancelled", "account_id", senderID, "transaction_id", res.Transaction.ID)
	return res, nil
}

// SweepExpired reclaims every pending transfer whose confirmation window has
// elapsed and returns how many were reclaimed.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	now := s.clock()
	ids, err := s.store.PendingExpired(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list expired pending transfers: %w", err)
	}

	swept := 0
	for _, id := range ids {
		var rec *ledger.Transaction
		err := s.store.Update(ctx, []string{id}, func(tx ledger.Tx) error {
			from, err := tx.Account(ctx, id)
			if err != nil {
				return err
			}
			if from.Pending == nil || !from.Pending.Expired(now) {
				return nil
			}
			r := pendingRecord(from, from.Pending, ledger.StatusFailed, msgOTPExpired, now)
			from.Pending = nil
			rec = &r
			return tx.Append(ctx, r)
		})
		if err != nil {
			s.logger.Error("sweep pending transfer failed", "account_id", id, "error", err)
			continue
		}
		if rec == nil {
			continue
		}
		s.discard(ctx, id)
		s.events.Recorded(ctx, *rec)
		swept++
	}
	if swept > 0 {
		s.logger.Info("expired pending transfers swept", "count", swept)
	}
	return swept, nil
}

func (s *Service) clock() time.Time {
	return ledger.Timestamp(s.now())
}

func (s *Service) expire(ctx context.Context, senderID string, pending ledger.PendingTransfer, now time.Time) (TransferResult, error) {
	var res TransferResult
	err := s.store.Update(ctx, []string{senderID}, func(tx ledger.Tx) error {
		from, err := tx.Account(ctx, senderID)
		if err != nil {
			return err
		}
		if from.Pending == nil || !samePending(*from.Pending, pending) {
			return nil
		}
		rec := pendingRecord(from, from.Pending, ledger.StatusFailed, msgOTPExpired, now)
		res = TransferResult{
			State:         StateExpired,
			Transaction:   rec,
			ReceiverID:    pending.ReceiverID,
			Currency:      pending.Currency,
			Amount:        pending.Amount,
			SenderBalance: from.Balance(pending.Currency),
		}
		from.Pending = nil
		return tx.Append(ctx, rec)
	})
	if err != nil {
		return TransferResult{}, storeError("expire transfer", err)
	}
	s.discard(ctx, senderID)
	if res.State == "" {
		return TransferResult{}, apperr.New(apperr.KindNotFound, "no_pending_transfer", "no transfer is awaiting confirmation")
	}
	s.events.Recorded(ctx, res.Transaction)
	s.logger.Info("pending transfer expired", "account_id", senderID, "transaction_id", res.Transaction.ID)
	return res, apperr.New(apperr.KindExpired, "otp_expired", "verification code expired")
}

// releasePending undoes a pending slot whose challenge could not be issued and
// records the failed attempt in the same update.
func (s *Service) releasePending(ctx context.Context, senderID string, createdAt time.Time) (ledger.Transaction, bool) {
	var rec *ledger.Transaction
	err := s.store.Update(ctx, []string{senderID}, func(tx ledger.Tx) error {
		from, err := tx.Account(ctx, senderID)
		if err != nil {
			return err
		}
		if from.Pending == nil || !from.Pending.CreatedAt.Equal(createdAt) {
			return nil
		}
		r := pendingRecord(from, from.Pending, ledger.StatusFailed, msgOTPUndelivered, s.clock())
		from.Pending = nil
		rec = &r
		return tx.Append(ctx, r)
	})
	if err != nil {
		s.logger.Error("release pending transfer failed", "account_id", senderID, "error", err)
		return ledger.Transaction{}, false
	}
	if rec == nil {
		return ledger.Transaction{}, false
	}
	s.events.Recorded(ctx, *rec)
	return *rec, true
}

func (s *Service) discard(ctx context.Context, senderID string) {
	if err := s.otps.Discard(ctx, senderID); err != nil {
		s.logger.Warn("discard otp failed", "account_id", senderID, "error", err)
	}
}

func (s *Service) notifySettled(ctx context.Context, destination string, res TransferResult) {
	if s.notifier == nil || destination == "" {
		return
	}
	err := s.notifier.Send(ctx, notification.Message{
		Kind:        notification.KindTransferSettled,
		Destination: destination,
		Subject:     "You received a transfer",
		Body:        fmt.Sprintf("You received %s", money.Format(res.Currency, res.Amount)),
	})
	if err != nil {
		s.logger.Warn("settlement notification failed", "transaction_id", res.Transaction.ID, "error", err)
	}
}

// settle moves amount between the two locked accounts and returns the single
// success record referencing both.
func settle(from, to *ledger.Account, currency money.Currency, amount decimal.Decimal, now time.Time) (ledger.Transaction, error) {
	if err := from.Debit(currency, amount); err != nil {
		return ledger.Transaction{}, err
	}
	to.Credit(currency, amount)
	rec := ledger.Record(from.ID, ledger.KindTransfer, currency, amount, ledger.StatusSuccess,
		fmt.Sprintf("Transferred %s to %s", money.Format(currency, amount), to.Username), now)
	rec.CounterpartyID = to.ID
	return rec, nil
}

func pendingRecord(from *ledger.Account, p *ledger.PendingTransfer, status ledger.Status, message string, now time.Time) ledger.Transaction {
	rec := ledger.Record(from.ID, ledger.KindTransfer, p.Currency, p.Amount, status, message, now)
	rec.CounterpartyID = p.ReceiverID
	return rec
}

func samePending(a, b ledger.PendingTransfer) bool {
	return a.ReceiverID == b.ReceiverID &&
		a.Currency == b.Currency &&
		a.Amount.Equal(b.Amount) &&
		a.CreatedAt.Equal(b.CreatedAt)
}

func storeError(op string, err error) error {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return apperr.Wrap(apperr.KindNotFound, "no_such_account", "account not found", err)
	}
	return apperr.Internal(op, err)
}
