package exchange

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/multiwallet/internal/apperr"
	"github.com/congo-pay/multiwallet/internal/ledger"
	"github.com/congo-pay/multiwallet/internal/logging"
	"github.com/congo-pay/multiwallet/internal/money"
	"github.com/congo-pay/multiwallet/internal/rates"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type failingSource struct{ err error }

func (f failingSource) Rate(context.Context, money.Currency, money.Currency) (decimal.Decimal, error) {
	return decimal.Decimal{}, f.err
}

func setup(t *testing.T, source rates.Source) (*Service, ledger.Store, ledger.Account) {
	t.Helper()
	store := ledger.NewInMemory()
	acct := ledger.Account{
		ID:              uuid.NewString(),
		Username:        "ada",
		Email:           "ada@example.com",
		AccountNumber:   "2512345678",
		Balances:        ledger.ZeroBalances(),
		DefaultCurrency: money.USD,
	}
	if err := store.CreateAccount(context.Background(), acct); err != nil {
		t.Fatalf("create account: %v", err)
	}
	return NewService(store, source, nil, logging.Discard()), store, acct
}

func staticRates() rates.StaticSource {
	return rates.StaticSource{
		"USD/NGN": dec("1500.5"),
		"NGN/USD": dec("0.000666"),
		"USD/EUR": dec("0.9213"),
	}
}

func balances(t *testing.T, store ledger.Store, id string) map[money.Currency]decimal.Decimal {
	t.Helper()
	acct, err := store.Account(context.Background(), id)
	if err != nil {
		t.Fatalf("load account: %v", err)
	}
	return acct.Balances
}

func TestConvertMovesBothBalances(t *testing.T) {
	svc, store, acct := setup(t, staticRates())
	ctx := context.Background()
	ledger.SeedBalance(store, acct.ID, money.USD, dec("100"))

	res, err := svc.Convert(ctx, ConvertInput{AccountID: acct.ID, From: "USD", To: "EUR", Amount: dec("10.55")})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	// 10.55 * 0.9213 = 9.719715
	if !res.Converted.Equal(dec("9.72")) {
		t.Fatalf("expected 9.72, got %s", res.Converted)
	}
	b := balances(t, store, acct.ID)
	if !b[money.USD].Equal(dec("89.45")) || !b[money.EUR].Equal(dec("9.72")) {
		t.Fatalf("unexpected balances %v", b)
	}

	txs, _ := store.ListFor(ctx, acct.ID)
	if len(txs) != 1 {
		t.Fatalf("expected one record, got %d", len(txs))
	}
	rec := txs[0]
	if rec.Kind != ledger.KindConversion || rec.Status != ledger.StatusSuccess || rec.TargetCurrency != money.EUR || !rec.TargetAmount.Equal(dec("9.72")) {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestConvertInsufficientFunds(t *testing.T) {
	svc, store, acct := setup(t, staticRates())
	ctx := context.Background()
	ledger.SeedBalance(store, acct.ID, money.USD, dec("5"))

	res, err := svc.Convert(ctx, ConvertInput{AccountID: acct.ID, From: "USD", To: "NGN", Amount: dec("5.01")})
	if !apperr.IsKind(err, apperr.KindInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if res.Transaction.Status != ledger.StatusFailed {
		t.Fatalf("expected failed record, got %+v", res.Transaction)
	}
	b := balances(t, store, acct.ID)
	if !b[money.USD].Equal(dec("5")) || !b[money.NGN].IsZero() {
		t.Fatalf("balances must be untouched, got %v", b)
	}
}

func TestConvertRateFailures(t *testing.T) {
	cases := []struct {
		name   string
		source rates.Source
		to     string
		kind   apperr.Kind
	}{
		{name: "missing pair", source: staticRates(), to: "GBP", kind: apperr.KindInvalidInput},
		{name: "provider down", source: failingSource{err: fmt.Errorf("%w: timeout", rates.ErrUnavailable)}, to: "EUR", kind: apperr.KindUpstreamUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc, store, acct := setup(t, tc.source)
			ctx := context.Background()
			ledger.SeedBalance(store, acct.ID, money.USD, dec("100"))

			_, err := svc.Convert(ctx, ConvertInput{AccountID: acct.ID, From: "USD", To: tc.to, Amount: dec("10")})
			if !apperr.IsKind(err, tc.kind) {
				t.Fatalf("expected %s, got %v", tc.kind, err)
			}
			if !balances(t, store, acct.ID)[money.USD].Equal(dec("100")) {
				t.Fatalf("balance must be untouched")
			}
			txs, _ := store.ListFor(ctx, acct.ID)
			if len(txs) != 1 || txs[0].Status != ledger.StatusFailed || txs[0].Kind != ledger.KindConversion {
				t.Fatalf("expected one failed conversion record, got %+v", txs)
			}
		})
	}
}

func TestConvertRejectsBadInput(t *testing.T) {
	svc, store, acct := setup(t, staticRates())
	ctx := context.Background()
	ledger.SeedBalance(store, acct.ID, money.USD, dec("100"))

	for _, in := range []ConvertInput{
		{AccountID: acct.ID, From: "USD", To: "USD", Amount: dec("1")},
		{AccountID: acct.ID, From: "XAF", To: "USD", Amount: dec("1")},
		{AccountID: acct.ID, From: "USD", To: "JPY", Amount: dec("1")},
		{AccountID: acct.ID, From: "USD", To: "EUR", Amount: dec("1e2000000000")},
		{AccountID: acct.ID, From: "USD", To: "EUR", Amount: dec("1e-9000000")},
	} {
		if _, err := svc.Convert(ctx, in); !apperr.IsKind(err, apperr.KindInvalidInput) {
			t.Fatalf("%s->%s: expected invalid input, got %v", in.From, in.To, err)
		}
	}
	if txs, _ := store.ListFor(ctx, acct.ID); len(txs) != 0 {
		t.Fatalf("currency and range errors must not write records, got %d", len(txs))
	}

	if _, err := svc.Convert(ctx, ConvertInput{AccountID: acct.ID, From: "USD", To: "EUR", Amount: dec("0")}); apperr.ReasonOf(err) != "invalid_amount" {
		t.Fatalf("expected invalid amount, got %v", err)
	}
	if _, err := svc.Convert(ctx, ConvertInput{AccountID: uuid.NewString(), From: "USD", To: "EUR", Amount: dec("1")}); !apperr.IsKind(err, apperr.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConvertRoundsToZero(t *testing.T) {
	svc, store, acct := setup(t, staticRates())
	ledger.SeedBalance(store, acct.ID, money.NGN, dec("100"))

	_, err := svc.Convert(context.Background(), ConvertInput{AccountID: acct.ID, From: "NGN", To: "USD", Amount: dec("0.01")})
	if apperr.ReasonOf(err) != "amount_too_small" {
		t.Fatalf("expected amount_too_small, got %v", err)
	}
	if !balances(t, store, acct.ID)[money.NGN].Equal(dec("100")) {
		t.Fatalf("balance must be untouched")
	}
}

func TestQuoteDoesNotMutate(t *testing.T) {
	svc, store, acct := setup(t, staticRates())
	ctx := context.Background()

	q, err := svc.Quote(ctx, dec("2"), "usd", "ngn")
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if !q.Converted.Equal(dec("3001")) || !q.Rate.Equal(dec("1500.5")) {
		t.Fatalf("unexpected quote %+v", q)
	}
	if txs, _ := store.ListFor(ctx, acct.ID); len(txs) != 0 {
		t.Fatalf("quote must not write records")
	}
	if _, err := svc.Quote(ctx, dec("-1"), "USD", "NGN"); !apperr.IsKind(err, apperr.KindInvalidInput) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestConcurrentConversionsNeverOverdraw(t *testing.T) {
	svc, store, acct := setup(t, staticRates())
	ctx := context.Background()
	ledger.SeedBalance(store, acct.ID, money.USD, dec("50"))

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Convert(ctx, ConvertInput{AccountID: acct.ID, From: "USD", To: "NGN", Amount: dec("10")})
		}()
	}
	wg.Wait()

	b := balances(t, store, acct.ID)
	if !b[money.USD].IsZero() || !b[money.NGN].Equal(dec("75025")) {
		t.Fatalf("unexpected balances %v", b)
	}
}
