package fraud

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/multiwallet/internal/ledger"
	"github.com/congo-pay/multiwallet/internal/money"
)

// Window is the trailing period whose successful activity counts toward the rolling cap.
const Window = 10 * time.Minute

const (
	ReasonSingleLimit  = "single_limit"
	ReasonRollingLimit = "rolling_limit"
)

// Limits caps a single operation and the rolling sum within Window.
type Limits struct {
	Single  decimal.Decimal
	Rolling decimal.Decimal
	Name    string
}

var limits = map[money.Currency]Limits{
	money.USD: {Single: decimal.NewFromInt(2_000), Rolling: decimal.NewFromInt(5_000), Name: "Dollar"},
	money.NGN: {Single: decimal.NewFromInt(1_000_000), Rolling: decimal.NewFromInt(3_000_000), Name: "Naira"},
	money.EUR: {Single: decimal.NewFromInt(1_500), Rolling: decimal.NewFromInt(4_000), Name: "Euro"},
	money.GBP: {Single: decimal.NewFromInt(1_200), Rolling: decimal.NewFromInt(3_500), Name: "Pound"},
}

// LimitsFor returns the thresholds for c, falling back to the NGN table.
func LimitsFor(c money.Currency) Limits {
	if l, ok := limits[c]; ok {
		return l
	}
	return limits[money.NGN]
}

// Decision is the outcome of an evaluation.
type Decision struct {
	Flagged bool
	Reason  string
	Message string
	// WindowTotal is the sum of the matching successful records, excluding the proposal.
	WindowTotal decimal.Decimal
}

// Assess flags proposed when it exceeds the single cap, or when it would push the
// window total over the rolling cap. The single cap is reported first when both hold.
func Assess(l Limits, window []ledger.Transaction, proposed decimal.Decimal) Decision {
	total := decimal.Zero
	for _, t := range window {
		total = total.Add(t.Amount)
	}

	d := Decision{WindowTotal: total, Message: "No fraud detected"}
	switch {
	case proposed.GreaterThan(l.Single):
		d.Flagged = true
		d.Reason = ReasonSingleLimit
		d.Message = fmt.Sprintf("Single %s transaction exceeds %s", l.Name, l.Single)
	case total.Add(proposed).GreaterThan(l.Rolling):
		d.Flagged = true
		d.Reason = ReasonRollingLimit
		d.Message = fmt.Sprintf("Total %s transactions in the last 10 minutes exceeds %s %s", l.Name, l.Rolling, l.Name)
	}
	return d
}

// History is the read side of the transaction log the detector needs. Both
// ledger.Store and ledger.Tx satisfy it.
type History interface {
	Recent(ctx context.Context, q ledger.WindowQuery) ([]ledger.Transaction, error)
}

// Detector evaluates proposed operations against recent successful activity.
type Detector struct{}

// NewDetector builds a detector using the built-in threshold table.
func NewDetector() *Detector {
	return &Detector{}
}

// Evaluate loads the actor's window for the same currency and kind and assesses amount.
func (d *Detector) Evaluate(ctx context.Context, h History, accountID string, currency money.Currency, kind ledger.Kind, amount decimal.Decimal, now time.Time) (Decision, error) {
	window, err := h.Recent(ctx, ledger.WindowQuery{
		ActorID:  accountID,
		Currency: currency,
		Kind:     kind,
		Status:   ledger.StatusSuccess,
		Since:    now.Add(-Window),
	})
	if err != nil {
		return Decision{}, fmt.Errorf("load fraud window: %w", err)
	}
	return Assess(LimitsFor(currency), window, amount), nil
}
