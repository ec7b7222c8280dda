package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

type inMemoryStore struct {
	mu         sync.RWMutex
	accounts   map[string]Account
	byUsername map[string]string
	byEmail    map[string]string
	byNumber   map[string]string
	log        []Transaction

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// NewInMemory creates a concurrency-safe in-memory store useful for unit tests
// and local development.
func NewInMemory() Store {
	return &inMemoryStore{
		accounts:   make(map[string]Account),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
		byNumber:   make(map[string]string),
		locks:      make(map[string]*sync.Mutex),
	}
}

func (s *inMemoryStore) CreateAccount(_ context.Context, account Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(account.Username)
	email := strings.ToLower(account.Email)
	if _, exists := s.accounts[account.ID]; exists {
		return ErrDuplicateAccount
	}
	if _, exists := s.byUsername[username]; exists {
		return fmt.Errorf("%w: username", ErrDuplicateAccount)
	}
	if _, exists := s.byEmail[email]; exists {
		return fmt.Errorf("%w: email", ErrDuplicateAccount)
	}
	if _, exists := s.byNumber[account.AccountNumber]; exists {
		return ErrAccountNumberTaken
	}

	stored := account.clone()
	stored.Username = username
	stored.Email = email
	for c, v := range ZeroBalances() {
		if _, ok := stored.Balances[c]; !ok {
			stored.Balances[c] = v
		}
	}
	s.accounts[account.ID] = stored
	s.byUsername[username] = account.ID
	s.byEmail[email] = account.ID
	s.byNumber[account.AccountNumber] = account.ID
	return nil
}

func (s *inMemoryStore) Account(_ context.Context, id string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return account.clone(), nil
}

func (s *inMemoryStore) Resolve(_ context.Context, ref string) (Account, error) {
	ref = strings.TrimSpace(ref)
	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := make(map[string]struct{})
	if _, ok := s.accounts[ref]; ok {
		matches[ref] = struct{}{}
	}
	if id, ok := s.byUsername[strings.ToLower(ref)]; ok {
		matches[id] = struct{}{}
	}
	if id, ok := s.byNumber[ref]; ok {
		matches[id] = struct{}{}
	}

	switch len(matches) {
	case 0:
		return Account{}, ErrAccountNotFound
	case 1:
		for id := range matches {
			return s.accounts[id].clone(), nil
		}
	}
	return Account{}, ErrAmbiguousReference
}

func (s *inMemoryStore) lockFor(id string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *inMemoryStore) Update(ctx context.Context, ids []string, fn func(tx Tx) error) error {
	ordered := sortedUnique(ids)

	// Locks are always taken in id order so two updates over the same pair cannot deadlock.
	for _, id := range ordered {
		l := s.lockFor(id)
		l.Lock()
		defer l.Unlock()
	}

	tx := &memoryTx{store: s, accounts: make(map[string]*Account, len(ordered))}
	s.mu.RLock()
	for _, id := range ordered {
		account, ok := s.accounts[id]
		if !ok {
			s.mu.RUnlock()
			return fmt.Errorf("%w: %s", ErrAccountNotFound, id)
		}
		working := account.clone()
		tx.accounts[id] = &working
	}
	s.mu.RUnlock()

	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	for id, working := range tx.accounts {
		current := s.accounts[id]
		current.Balances = working.Balances
		current.DefaultCurrency = working.DefaultCurrency
		current.PINHash = working.PINHash
		current.TwoFactorEnabled = working.TwoFactorEnabled
		current.Pending = working.Pending
		current.UpdatedAt = now
		s.accounts[id] = current
	}
	s.log = append(s.log, tx.appended...)
	return nil
}

func (s *inMemoryStore) Append(_ context.Context, t Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = append(s.log, withDefaults(t))
	return nil
}

func (s *inMemoryStore) ListFor(_ context.Context, id string) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Transaction, 0)
	for i := len(s.log) - 1; i >= 0; i-- {
		if t := s.log[i]; t.ActorID == id || t.CounterpartyID == id {
			out = append(out, t)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func (s *inMemoryStore) Recent(_ context.Context, q WindowQuery) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filterWindow(s.log, q), nil
}

func (s *inMemoryStore) PendingExpired(_ context.Context, now time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, account := range s.accounts {
		if account.Pending != nil && account.Pending.Expired(now) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

type memoryTx struct {
	store    *inMemoryStore
	accounts map[string]*Account
	appended []Transaction
}

func (tx *memoryTx) Account(_ context.Context, id string) (*Account, error) {
	account, ok := tx.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %s is not part of this update", id)
	}
	return account, nil
}

func (tx *memoryTx) Recent(_ context.Context, q WindowQuery) ([]Transaction, error) {
	tx.store.mu.RLock()
	out := filterWindow(tx.store.log, q)
	tx.store.mu.RUnlock()
	return append(out, filterWindow(tx.appended, q)...), nil
}

func (tx *memoryTx) Append(_ context.Context, t Transaction) error {
	tx.appended = append(tx.appended, withDefaults(t))
	return nil
}

func withDefaults(t Transaction) Transaction {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	return t
}

func filterWindow(log []Transaction, q WindowQuery) []Transaction {
	var out []Transaction
	for _, t := range log {
		if q.matches(t) {
			out = append(out, t)
		}
	}
	return out
}

func sortNewestFirst(txs []Transaction) {
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].CreatedAt.After(txs[j].CreatedAt)
	})
}

func sortedUnique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
