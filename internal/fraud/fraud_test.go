package fraud

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/multiwallet/internal/ledger"
	"github.com/congo-pay/multiwallet/internal/money"
)

func TestAssessSingleCapBoundary(t *testing.T) {
	for _, c := range money.Supported() {
		l := LimitsFor(c)

		atCap := Assess(l, nil, l.Single)
		if atCap.Flagged {
			t.Fatalf("%s: amount equal to single cap must be accepted", c)
		}

		above := Assess(l, nil, l.Single.Add(decimal.NewFromInt(1)))
		if !above.Flagged || above.Reason != ReasonSingleLimit {
			t.Fatalf("%s: one unit above single cap must be flagged, got %+v", c, above)
		}

		cent := Assess(l, nil, l.Single.Add(decimal.RequireFromString("0.01")))
		if !cent.Flagged {
			t.Fatalf("%s: one cent above single cap must be flagged", c)
		}
	}
}

func TestAssessSingleReasonWinsTie(t *testing.T) {
	l := LimitsFor(money.USD)
	window := []ledger.Transaction{{Amount: decimal.NewFromInt(4_900)}}
	d := Assess(l, window, decimal.NewFromInt(2_500))
	if !d.Flagged || d.Reason != ReasonSingleLimit {
		t.Fatalf("expected single limit reason, got %+v", d)
	}
	if d.Message != "Single Dollar transaction exceeds 2000" {
		t.Fatalf("unexpected message %q", d.Message)
	}
}

func TestLimitsFallbackToNGN(t *testing.T) {
	if got := LimitsFor(money.Currency("XAF")); !got.Single.Equal(decimal.NewFromInt(1_000_000)) {
		t.Fatalf("expected NGN fallback, got %+v", got)
	}
}

func seed(t *testing.T, s ledger.Store, actor string, kind ledger.Kind, amount int64, at time.Time) {
	t.Helper()
	err := s.Append(context.Background(), ledger.Transaction{
		ActorID: actor, Kind: kind, Currency: money.USD, Amount: decimal.NewFromInt(amount),
		Status: ledger.StatusSuccess, CreatedAt: at,
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
}

func TestEvaluateRollingWindowBoundary(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemory()
	detector := NewDetector()
	actor := uuid.NewString()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	// 2000 + 2000 already in the window; 1000 more reaches exactly 5000.
	seed(t, store, actor, ledger.KindDeposit, 2_000, now.Add(-9*time.Minute))
	seed(t, store, actor, ledger.KindDeposit, 2_000, now.Add(-5*time.Minute))

	d, err := detector.Evaluate(ctx, store, actor, money.USD, ledger.KindDeposit, decimal.NewFromInt(1_000), now)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if d.Flagged {
		t.Fatalf("sum equal to rolling cap must be accepted, got %+v", d)
	}

	seed(t, store, actor, ledger.KindDeposit, 1_000, now)
	d, _ = detector.Evaluate(ctx, store, actor, money.USD, ledger.KindDeposit, decimal.RequireFromString("0.01"), now)
	if !d.Flagged || d.Reason != ReasonRollingLimit {
		t.Fatalf("exceeding rolling cap must be flagged, got %+v", d)
	}

	// 10 minutes and 1 second later the first record drops out of the window.
	later := now.Add(-9*time.Minute).Add(Window + time.Second)
	d, _ = detector.Evaluate(ctx, store, actor, money.USD, ledger.KindDeposit, decimal.NewFromInt(2_000), later)
	if d.Flagged {
		t.Fatalf("record older than the window must be excluded, got %+v (window total %s)", d, d.WindowTotal)
	}
	if !d.WindowTotal.Equal(decimal.NewFromInt(3_000)) {
		t.Fatalf("expected window total 3000, got %s", d.WindowTotal)
	}
}

func TestEvaluateIgnoresOtherKindsAndStatuses(t *testing.T) {
	ctx := context.Background()
	store := ledger.NewInMemory()
	actor := uuid.NewString()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	seed(t, store, actor, ledger.KindWithdrawal, 2_000, now)
	seed(t, store, actor, ledger.KindTransfer, 2_000, now)
	_ = store.Append(ctx, ledger.Transaction{
		ActorID: actor, Kind: ledger.KindDeposit, Currency: money.USD, Amount: decimal.NewFromInt(2_000),
		Status: ledger.StatusFlagged, CreatedAt: now,
	})
	_ = store.Append(ctx, ledger.Transaction{
		ActorID: uuid.NewString(), Kind: ledger.KindDeposit, Currency: money.USD, Amount: decimal.NewFromInt(2_000),
		Status: ledger.StatusSuccess, CreatedAt: now,
	})

	d, err := NewDetector().Evaluate(ctx, store, actor, money.USD, ledger.KindDeposit, decimal.NewFromInt(2_000), now)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if d.Flagged || !d.WindowTotal.IsZero() {
		t.Fatalf("expected empty window, got %+v", d)
	}
}
