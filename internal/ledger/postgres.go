package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/multiwallet/internal/money"
)

const (
	uniqueViolation         = "23505"
	accountNumberConstraint = "accounts_account_number_key"
)

const selectAccountSQL = `
        SELECT id::text, username, email, account_number, name, default_currency, pin_hash,
               two_factor_enabled, pending_amount::text, pending_currency, pending_receiver_id::text,
               pending_created_at, pending_expires_at, created_at, updated_at
        FROM accounts`

const selectTransactionSQL = `
        SELECT id::text, actor_id::text, COALESCE(counterparty_id::text, ''), kind, currency,
               amount::text, COALESCE(target_currency, ''), COALESCE(target_amount::text, ''),
               status, message, created_at
        FROM transactions`

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists accounts, balances and the transaction log in PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// CreateAccount inserts the account and a zero balance row per supported currency.
func (s *PostgresStore) CreateAccount(ctx context.Context, account Account) error {
	id, err := uuid.Parse(account.ID)
	if err != nil {
		return fmt.Errorf("account id: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	created := account.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err = tx.Exec(ctx, `INSERT INTO accounts
        (id, username, email, account_number, name, default_currency, pin_hash, two_factor_enabled, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $9)`,
		id, strings.ToLower(account.Username), strings.ToLower(account.Email), account.AccountNumber,
		account.Name, string(account.DefaultCurrency), account.PINHash, account.TwoFactorEnabled, created.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			if pgErr.ConstraintName == accountNumberConstraint {
				return ErrAccountNumberTaken
			}
			return fmt.Errorf("%w: %s", ErrDuplicateAccount, pgErr.ConstraintName)
		}
		return err
	}

	for _, c := range money.Supported() {
		amount := account.Balances[c]
		if _, err := tx.Exec(ctx, `INSERT INTO account_balances (account_id, currency, amount)
            VALUES ($1, $2, $3::numeric)`, id, string(c), amount.String()); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// Account loads an account and its balances.
func (s *PostgresStore) Account(ctx context.Context, id string) (Account, error) {
	return loadAccount(ctx, s.db, id, false)
}

// Resolve finds exactly one account by id, username or account number.
func (s *PostgresStore) Resolve(ctx context.Context, ref string) (Account, error) {
	ref = strings.TrimSpace(ref)
	rows, err := s.db.Query(ctx, `SELECT id::text FROM accounts
        WHERE id::text = $1 OR username = $2 OR account_number = $1
        LIMIT 2`, ref, strings.ToLower(ref))
	if err != nil {
		return Account{}, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return Account{}, err
	}
	switch len(ids) {
	case 0:
		return Account{}, ErrAccountNotFound
	case 1:
		return s.Account(ctx, ids[0])
	default:
		return Account{}, ErrAmbiguousReference
	}
}

// Update locks the account rows in id order, runs fn and writes the result back in
// the same database transaction.
func (s *PostgresStore) Update(ctx context.Context, ids []string, fn func(tx Tx) error) error {
	dbTx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer dbTx.Rollback(ctx) // nolint:errcheck

	tx := &postgresTx{tx: dbTx, accounts: make(map[string]*Account)}
	for _, id := range sortedUnique(ids) {
		account, err := loadAccount(ctx, dbTx, id, true)
		if err != nil {
			return err
		}
		tx.accounts[id] = &account
	}

	if err := fn(tx); err != nil {
		return err
	}

	for _, account := range tx.accounts {
		if err := saveAccount(ctx, dbTx, account); err != nil {
			return err
		}
	}

	return dbTx.Commit(ctx)
}

// Append inserts a single record outside of any account update.
func (s *PostgresStore) Append(ctx context.Context, t Transaction) error {
	return insertTransaction(ctx, s.db, withDefaults(t))
}

// ListFor returns the records where the account is actor or counterparty, newest first.
func (s *PostgresStore) ListFor(ctx context.Context, id string) ([]Transaction, error) {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrAccountNotFound
	}
	rows, err := s.db.Query(ctx, selectTransactionSQL+`
        WHERE actor_id = $1 OR counterparty_id = $1
        ORDER BY created_at DESC`, accountID)
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

// Recent returns the records matching the fraud window query.
func (s *PostgresStore) Recent(ctx context.Context, q WindowQuery) ([]Transaction, error) {
	return recent(ctx, s.db, q)
}

// PendingExpired lists accounts holding a pending transfer whose window has elapsed.
func (s *PostgresStore) PendingExpired(ctx context.Context, now time.Time) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT id::text FROM accounts
        WHERE pending_expires_at IS NOT NULL AND pending_expires_at <= $1
        ORDER BY id`, now.UTC())
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

type postgresTx struct {
	tx       pgx.Tx
	accounts map[string]*Account
}

func (t *postgresTx) Account(_ context.Context, id string) (*Account, error) {
	account, ok := t.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s is not part of this update", id)
	}
	return account, nil
}

func (t *postgresTx) Recent(ctx context.Context, q WindowQuery) ([]Transaction, error) {
	return recent(ctx, t.tx, q)
}

func (t *postgresTx) Append(ctx context.Context, txn Transaction) error {
	return insertTransaction(ctx, t.tx, withDefaults(txn))
}

func loadAccount(ctx context.Context, q querier, id string, forUpdate bool) (Account, error) {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return Account{}, ErrAccountNotFound
	}

	query := selectAccountSQL + ` WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var (
		a               Account
		defaultCurrency string
		pendingAmount   *string
		pendingCurrency *string
		pendingReceiver *string
		pendingCreated  *time.Time
		pendingExpires  *time.Time
	)
	err = q.QueryRow(ctx, query, accountID).Scan(
		&a.ID, &a.Username, &a.Email, &a.AccountNumber, &a.Name, &defaultCurrency, &a.PINHash,
		&a.TwoFactorEnabled, &pendingAmount, &pendingCurrency, &pendingReceiver,
		&pendingCreated, &pendingExpires, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, fmt.Errorf("%w: %s", ErrAccountNotFound, id)
		}
		return Account{}, err
	}
	a.DefaultCurrency = money.Currency(defaultCurrency)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()

	if pendingAmount != nil && pendingReceiver != nil && pendingExpires != nil {
		amount, err := decimal.NewFromString(*pendingAmount)
		if err != nil {
			return Account{}, fmt.Errorf("pending amount: %w", err)
		}
		p := &PendingTransfer{Amount: amount, ReceiverID: *pendingReceiver, ExpiresAt: pendingExpires.UTC()}
		if pendingCurrency != nil {
			p.Currency = money.Currency(*pendingCurrency)
		}
		if pendingCreated != nil {
			p.CreatedAt = pendingCreated.UTC()
		}
		a.Pending = p
	}

	rows, err := q.Query(ctx, `SELECT currency, amount::text FROM account_balances WHERE account_id = $1`, accountID)
	if err != nil {
		return Account{}, err
	}
	defer rows.Close()

	a.Balances = ZeroBalances()
	for rows.Next() {
		var currency, raw string
		if err := rows.Scan(&currency, &raw); err != nil {
			return Account{}, err
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return Account{}, fmt.Errorf("balance %s: %w", currency, err)
		}
		a.Balances[money.Currency(currency)] = amount
	}
	if err := rows.Err(); err != nil {
		return Account{}, err
	}
	return a, nil
}

func saveAccount(ctx context.Context, tx pgx.Tx, a *Account) error {
	var (
		pendingAmount   *string
		pendingCurrency *string
		pendingReceiver *string
		pendingCreated  *time.Time
		pendingExpires  *time.Time
	)
	if p := a.Pending; p != nil {
		amount := p.Amount.String()
		currency := string(p.Currency)
		receiver := p.ReceiverID
		created := p.CreatedAt.UTC()
		expires := p.ExpiresAt.UTC()
		pendingAmount, pendingCurrency, pendingReceiver = &amount, &currency, &receiver
		pendingCreated, pendingExpires = &created, &expires
	}

	if _, err := tx.Exec(ctx, `UPDATE accounts SET
            default_currency = $2, pin_hash = $3, two_factor_enabled = $4,
            pending_amount = $5::numeric, pending_currency = $6, pending_receiver_id = $7::uuid,
            pending_created_at = $8, pending_expires_at = $9, updated_at = NOW()
        WHERE id = $1::uuid`,
		a.ID, string(a.DefaultCurrency), a.PINHash, a.TwoFactorEnabled,
		pendingAmount, pendingCurrency, pendingReceiver, pendingCreated, pendingExpires); err != nil {
		return err
	}

	for c, amount := range a.Balances {
		if amount.IsNegative() {
			return fmt.Errorf("%w: %s balance would be %s", ErrInsufficientFunds, c, amount)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO account_balances (account_id, currency, amount)
            VALUES ($1::uuid, $2, $3::numeric)
            ON CONFLICT (account_id, currency) DO UPDATE SET amount = EXCLUDED.amount`,
			a.ID, string(c), amount.String()); err != nil {
			return err
		}
	}
	return nil
}

func insertTransaction(ctx context.Context, q querier, t Transaction) error {
	var counterparty, targetCurrency, targetAmount *string
	if t.CounterpartyID != "" {
		counterparty = &t.CounterpartyID
	}
	if t.TargetCurrency != "" {
		tc := string(t.TargetCurrency)
		ta := t.TargetAmount.String()
		targetCurrency, targetAmount = &tc, &ta
	}
	_, err := q.Exec(ctx, `INSERT INTO transactions
        (id, actor_id, counterparty_id, kind, currency, amount, target_currency, target_amount, status, message, created_at)
        VALUES ($1::uuid, $2::uuid, $3::uuid, $4, $5, $6::numeric, $7, $8::numeric, $9, $10, $11)`,
		t.ID, t.ActorID, counterparty, string(t.Kind), string(t.Currency), t.Amount.String(),
		targetCurrency, targetAmount, string(t.Status), t.Message, t.CreatedAt.UTC())
	return err
}

func recent(ctx context.Context, q querier, w WindowQuery) ([]Transaction, error) {
	actorID, err := uuid.Parse(w.ActorID)
	if err != nil {
		return nil, ErrAccountNotFound
	}
	rows, err := q.Query(ctx, selectTransactionSQL+`
        WHERE actor_id = $1 AND currency = $2 AND kind = $3 AND status = $4 AND created_at >= $5
        ORDER BY created_at DESC`,
		actorID, string(w.Currency), string(w.Kind), string(w.Status), w.Since.UTC())
	if err != nil {
		return nil, err
	}
	return collectTransactions(rows)
}

func collectTransactions(rows pgx.Rows) ([]Transaction, error) {
	defer rows.Close()
	out := make([]Transaction, 0)
	for rows.Next() {
		var (
			t              Transaction
			kind, currency string
			amount, target string
			targetCurrency string
			status         string
		)
		if err := rows.Scan(&t.ID, &t.ActorID, &t.CounterpartyID, &kind, &currency, &amount,
			&targetCurrency, &target, &status, &t.Message, &t.CreatedAt); err != nil {
			return nil, err
		}
		parsed, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("transaction %s amount: %w", t.ID, err)
		}
		t.Amount = parsed
		if target != "" {
			targetAmount, err := decimal.NewFromString(target)
			if err != nil {
				return nil, fmt.Errorf("transaction %s target amount: %w", t.ID, err)
			}
			t.TargetAmount = targetAmount
		}
		t.Kind = Kind(kind)
		t.Currency = money.Currency(currency)
		t.TargetCurrency = money.Currency(targetCurrency)
		t.Status = Status(status)
		t.CreatedAt = t.CreatedAt.UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}
