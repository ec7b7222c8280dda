package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/congo-pay/multiwallet/internal/ledger"
)

// LedgerExchange receives one event per committed transaction record.
const LedgerExchange = "ledger_events"

// TransactionRecorded is the payload published for a committed record.
type TransactionRecorded struct {
	ID             string    `json:"id"`
	ActorID        string    `json:"actor_id"`
	CounterpartyID string    `json:"counterparty_id,omitempty"`
	Kind           string    `json:"kind"`
	Status         string    `json:"status"`
	Currency       string    `json:"currency"`
	Amount         string    `json:"amount"`
	TargetCurrency string    `json:"target_currency,omitempty"`
	TargetAmount   string    `json:"target_amount,omitempty"`
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"created_at"`
}

// RoutingKey is "transaction.<kind>.<status>", e.g. "transaction.transfer.success".
func (e TransactionRecorded) RoutingKey() string {
	return "transaction." + e.Kind + "." + e.Status
}

// Emitter publishes ledger events after commit. Publishing is best effort: a
// broker failure is logged and never undoes the committed record.
type Emitter struct {
	publisher Publisher
	logger    *slog.Logger
}

// NewEmitter wraps publisher. A nil publisher yields an emitter that drops events.
func NewEmitter(publisher Publisher, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	if publisher == nil {
		publisher = Fallback{Logger: logger}
	}
	return &Emitter{publisher: publisher, logger: logger}
}

// Recorded publishes every record in txs.
func (e *Emitter) Recorded(ctx context.Context, txs ...ledger.Transaction) {
	if e == nil {
		return
	}
	for _, t := range txs {
		evt := FromTransaction(t)
		if err := e.publisher.Publish(ctx, LedgerExchange, evt.RoutingKey(), evt); err != nil {
			e.logger.Warn("ledger event publish failed", "transaction_id", t.ID, "routing_key", evt.RoutingKey(), "error", err)
		}
	}
}

// FromTransaction converts a ledger record into its event form.
func FromTransaction(t ledger.Transaction) TransactionRecorded {
	evt := TransactionRecorded{
		ID:             t.ID,
		ActorID:        t.ActorID,
		CounterpartyID: t.CounterpartyID,
		Kind:           string(t.Kind),
		Status:         string(t.Status),
		Currency:       string(t.Currency),
		Amount:         t.Amount.StringFixed(2),
		Message:        t.Message,
		CreatedAt:      t.CreatedAt,
	}
	if t.TargetCurrency != "" {
		evt.TargetCurrency = string(t.TargetCurrency)
		evt.TargetAmount = t.TargetAmount.StringFixed(2)
	}
	return evt
}
