package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/congo-pay/multiwallet/internal/money"
)

// SeedBalance is a test helper that seeds the balance for an account when using the in-memory store.
func SeedBalance(s Store, id string, currency money.Currency, amount decimal.Decimal) {
	if mem, ok := s.(*inMemoryStore); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		account, exists := mem.accounts[id]
		if !exists {
			return
		}
		account.Balances[currency] = amount
		mem.accounts[id] = account
	}
}
