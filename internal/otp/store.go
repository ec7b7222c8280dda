package otp

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrNoChallenge indicates no live challenge exists for the identity.
	ErrNoChallenge = errors.New("no otp challenge")
	// ErrExpired indicates the challenge expired. It has been removed.
	ErrExpired = errors.New("otp challenge expired")
	// ErrMismatch indicates the submitted code is wrong. The challenge is kept.
	ErrMismatch = errors.New("otp code mismatch")
)

// Challenge is a one-time code bound to an identity.
type Challenge struct {
	Identity    string
	Destination string
	Code        string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// Expired reports whether the challenge can no longer be used at now.
func (c Challenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Store persists challenges. Save replaces any challenge already held for the
// identity. Consume compares and deletes in one atomic step.
type Store interface {
	Save(ctx context.Context, c Challenge, retention time.Duration) error
	Consume(ctx context.Context, identity, code string, now time.Time) (Challenge, error)
	Delete(ctx context.Context, identity string) error
}

type memoryStore struct {
	mu         sync.Mutex
	challenges map[string]Challenge
}

// NewMemoryStore returns a process-local challenge store.
func NewMemoryStore() Store {
	return &memoryStore{challenges: make(map[string]Challenge)}
}

func (s *memoryStore) Save(_ context.Context, c Challenge, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[c.Identity] = c
	return nil
}

func (s *memoryStore) Consume(_ context.Context, identity, code string, now time.Time) (Challenge, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.challenges[identity]
	if !ok {
		return Challenge{}, ErrNoChallenge
	}
	if c.Expired(now) {
		delete(s.challenges, identity)
		return c, ErrExpired
	}
	if c.Code != code {
		return Challenge{}, ErrMismatch
	}
	delete(s.challenges, identity)
	return c, nil
}

func (s *memoryStore) Delete(_ context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.challenges, identity)
	return nil
}
