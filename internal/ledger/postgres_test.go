package ledger

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/congo-pay/multiwallet/internal/money"
)

func TestPostgresStore_MalformedIDs(t *testing.T) {
	ctx := context.Background()
	store := &PostgresStore{}

	if _, err := store.ListFor(ctx, "not-a-uuid"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("ListFor: expected ErrAccountNotFound, got %v", err)
	}

	txs, err := recent(ctx, nil, WindowQuery{
		ActorID:  "not-a-uuid",
		Currency: money.USD,
		Kind:     KindDeposit,
		Status:   StatusSuccess,
		Since:    time.Now().Add(-10 * time.Minute),
	})
	if !errors.Is(err, ErrAccountNotFound) || txs != nil {
		t.Fatalf("recent: expected ErrAccountNotFound, got %v %v", txs, err)
	}
}
