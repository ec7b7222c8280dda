package account

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/multiwallet/internal/apperr"
	"github.com/congo-pay/multiwallet/internal/ledger"
	"github.com/congo-pay/multiwallet/internal/money"
)

const (
	accountNumberPrefix = "25"
	accountNumberDigits = 8
	maxNumberAttempts   = 5
)

var (
	usernamePattern = regexp.MustCompile(`^[a-z0-9_-]{3,32}$`)
	emailPattern    = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
)

// Service manages the account lifecycle.
type Service struct {
	store   ledger.Store
	logger  *slog.Logger
	numbers func() (string, error)
}

// NewService creates a new account service.
func NewService(store ledger.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, logger: logger, numbers: randomAccountNumber}
}

// Create opens an account with zero balances in every currency and a hashed PIN.
func (s *Service) Create(ctx context.Context, in CreateInput) (ledger.Account, error) {
	username := strings.ToLower(strings.TrimSpace(in.Username))
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if !usernamePattern.MatchString(username) {
		return ledger.Account{}, apperr.New(apperr.KindInvalidInput, "invalid_username", "username must be 3-32 letters, digits, '_' or '-'")
	}
	if !emailPattern.MatchString(email) {
		return ledger.Account{}, apperr.New(apperr.KindInvalidInput, "invalid_email", "email address is not valid")
	}

	currency := money.NGN
	if in.DefaultCurrency != "" {
		c, err := money.ParseCurrency(in.DefaultCurrency)
		if err != nil {
			return ledger.Account{}, apperr.Wrap(apperr.KindInvalidInput, "invalid_currency", "unsupported currency", err)
		}
		currency = c
	}

	hash, err := HashPIN(in.PIN)
	if err != nil {
		if errors.Is(err, ErrInvalidPIN) {
			return ledger.Account{}, apperr.Wrap(apperr.KindInvalidInput, "invalid_pin", err.Error(), err)
		}
		return ledger.Account{}, apperr.Internal("create account", err)
	}

	now := time.Now().UTC()
	acct := ledger.Account{
		ID:              uuid.NewString(),
		Username:        username,
		Email:           email,
		Name:            strings.TrimSpace(in.Name),
		Balances:        ledger.ZeroBalances(),
		DefaultCurrency: currency,
		PINHash:         hash,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	for attempt := 1; ; attempt++ {
		number, err := s.numbers()
		if err != nil {
			return ledger.Account{}, apperr.Internal("generate account number", err)
		}
		acct.AccountNumber = number

		err = s.store.CreateAccount(ctx, acct)
		switch {
		case err == nil:
			s.logger.Info("account created", "account_id", acct.ID, "username", acct.Username)
			return acct, nil
		case errors.Is(err, ledger.ErrAccountNumberTaken) && attempt < maxNumberAttempts:
			continue
		case errors.Is(err, ledger.ErrDuplicateAccount):
			return ledger.Account{}, apperr.Wrap(apperr.KindConflict, "account_exists", "username or email already registered", err)
		default:
			return ledger.Account{}, apperr.Internal("create account", err)
		}
	}
}

// Get loads an account by id.
func (s *Service) Get(ctx context.Context, id string) (ledger.Account, error) {
	acct, err := s.store.Account(ctx, id)
	if err != nil {
		return ledger.Account{}, mapLookup(err)
	}
	return acct, nil
}

// Profile returns the public view of an account.
func (s *Service) Profile(ctx context.Context, id string) (Profile, error) {
	acct, err := s.Get(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	return ProfileOf(acct), nil
}

// Authenticate checks a username (or account number) and PIN pair. The same
// error is returned for an unknown user and a wrong PIN.
func (s *Service) Authenticate(ctx context.Context, ref, pin string) (ledger.Account, error) {
	acct, err := s.store.Resolve(ctx, ref)
	if err != nil && !errors.Is(err, ledger.ErrAccountNotFound) && !errors.Is(err, ledger.ErrAmbiguousReference) {
		return ledger.Account{}, apperr.Internal("authenticate", err)
	}
	if err != nil || !CheckPIN(acct.PINHash, pin) {
		return ledger.Account{}, apperr.New(apperr.KindUnauthorized, "invalid_credentials", "invalid credentials")
	}
	return acct, nil
}

// SetPIN replaces the PIN. The current PIN is required whenever one is set.
func (s *Service) SetPIN(ctx context.Context, in SetPINInput) error {
	hash, err := HashPIN(in.NewPIN)
	if err != nil {
		if errors.Is(err, ErrInvalidPIN) {
			return apperr.Wrap(apperr.KindInvalidInput, "invalid_pin", err.Error(), err)
		}
		return apperr.Internal("set pin", err)
	}

	var outcome error
	err = s.store.Update(ctx, []string{in.AccountID}, func(tx ledger.Tx) error {
		acct, err := tx.Account(ctx, in.AccountID)
		if err != nil {
			return err
		}
		if len(acct.PINHash) > 0 && !CheckPIN(acct.PINHash, in.CurrentPIN) {
			outcome = apperr.New(apperr.KindUnauthorized, "invalid_pin", "current PIN is incorrect")
			return outcome
		}
		acct.PINHash = hash
		return nil
	})
	if outcome != nil {
		return outcome
	}
	if err != nil {
		return mapLookup(err)
	}
	s.logger.Info("pin updated", "account_id", in.AccountID)
	return nil
}

// SetTwoFactor turns OTP confirmation of transfers on or off.
func (s *Service) SetTwoFactor(ctx context.Context, id string, enabled bool) (ledger.Account, error) {
	var updated ledger.Account
	err := s.store.Update(ctx, []string{id}, func(tx ledger.Tx) error {
		acct, err := tx.Account(ctx, id)
		if err != nil {
			return err
		}
		acct.TwoFactorEnabled = enabled
		updated = *acct
		return nil
	})
	if err != nil {
		return ledger.Account{}, mapLookup(err)
	}
	s.logger.Info("two factor updated", "account_id", id, "enabled", enabled)
	return updated, nil
}

// SetDefaultCurrency changes the currency used when an operation names none.
func (s *Service) SetDefaultCurrency(ctx context.Context, id, code string) (ledger.Account, error) {
	currency, err := money.ParseCurrency(code)
	if err != nil {
		return ledger.Account{}, apperr.Wrap(apperr.KindInvalidInput, "invalid_currency", "unsupported currency", err)
	}

	var updated ledger.Account
	err = s.store.Update(ctx, []string{id}, func(tx ledger.Tx) error {
		acct, err := tx.Account(ctx, id)
		if err != nil {
			return err
		}
		acct.DefaultCurrency = currency
		updated = *acct
		return nil
	})
	if err != nil {
		return ledger.Account{}, mapLookup(err)
	}
	return updated, nil
}

// History returns the account's records, newest first, read fresh on every call.
func (s *Service) History(ctx context.Context, id string) ([]ledger.Transaction, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	txs, err := s.store.ListFor(ctx, id)
	if err != nil {
		return nil, apperr.Internal("list transactions", err)
	}
	return txs, nil
}

func mapLookup(err error) error {
	if errors.Is(err, ledger.ErrAccountNotFound) {
		return apperr.Wrap(apperr.KindNotFound, "no_such_account", "account not found", err)
	}
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return apperr.Internal("account store", err)
}

func randomAccountNumber() (string, error) {
	max := big.NewInt(100_000_000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%0*d", accountNumberPrefix, accountNumberDigits, n.Int64()), nil
}
