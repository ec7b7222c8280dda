package otp

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/congo-pay/multiwallet/internal/apperr"
	"github.com/congo-pay/multiwallet/internal/notification"
)

const (
	// DefaultTTL is how long an issued code stays valid.
	DefaultTTL = 5 * time.Minute
	// retentionGrace keeps expired challenges around long enough to report them as expired.
	retentionGrace = 10 * time.Minute
	codeDigits     = 6
)

// Service issues and verifies one-time codes.
type Service struct {
	store    Store
	notifier notification.Notifier
	logger   *slog.Logger
	ttl      time.Duration
	now      func() time.Time
	generate func() (string, error)
}

// NewService constructs an OTP service. A zero ttl means DefaultTTL and a nil
// clock means time.Now.
func NewService(store Store, notifier notification.Notifier, logger *slog.Logger, ttl time.Duration, now func() time.Time) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, notifier: notifier, logger: logger, ttl: ttl, now: now, generate: randomCode}
}

// TTL returns the validity window of issued codes.
func (s *Service) TTL() time.Duration { return s.ttl }

// Issue creates a fresh challenge for identity, replacing any live one, and
// delivers the code to destination. When delivery fails the challenge is
// removed again.
func (s *Service) Issue(ctx context.Context, identity, destination string) (Challenge, error) {
	code, err := s.generate()
	if err != nil {
		return Challenge{}, apperr.Internal("generate otp", err)
	}
	now := s.now().UTC()
	c := Challenge{
		Identity:    identity,
		Destination: destination,
		Code:        code,
		IssuedAt:    now,
		ExpiresAt:   now.Add(s.ttl),
	}
	if err := s.store.Save(ctx, c, s.ttl+retentionGrace); err != nil {
		return Challenge{}, apperr.Wrap(apperr.KindUpstreamUnavailable, "otp_store", "could not issue verification code", err)
	}

	err = s.notifier.Send(ctx, notification.Message{
		Kind:        notification.KindOTP,
		Destination: destination,
		Subject:     "Your transfer verification code",
		Body:        fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, int(s.ttl.Minutes())),
	})
	if err != nil {
		if delErr := s.store.Delete(ctx, identity); delErr != nil {
			s.logger.Error("otp rollback failed", "identity", identity, "error", delErr)
		}
		return Challenge{}, apperr.Wrap(apperr.KindUpstreamUnavailable, "otp_delivery", "could not deliver verification code", err)
	}

	s.logger.Info("otp issued", "identity", identity, "expires_at", c.ExpiresAt)
	return c, nil
}

// Verify consumes the identity's challenge if code matches. A wrong code keeps
// the challenge live; an expired one is removed.
func (s *Service) Verify(ctx context.Context, identity, code string) (Challenge, error) {
	c, err := s.store.Consume(ctx, identity, code, s.now().UTC())
	switch {
	case err == nil:
		return c, nil
	case errors.Is(err, ErrNoChallenge):
		return Challenge{}, apperr.New(apperr.KindNotFound, "no_challenge", "no verification code is pending")
	case errors.Is(err, ErrExpired):
		return c, apperr.New(apperr.KindExpired, "otp_expired", "verification code expired")
	case errors.Is(err, ErrMismatch):
		return Challenge{}, apperr.New(apperr.KindUnauthorized, "invalid_code", "invalid verification code")
	default:
		return Challenge{}, apperr.Wrap(apperr.KindUpstreamUnavailable, "otp_store", "could not verify code", err)
	}
}

// Discard removes the identity's challenge, if any.
func (s *Service) Discard(ctx context.Context, identity string) error {
	return s.store.Delete(ctx, identity)
}

func randomCode() (string, error) {
	max := big.NewInt(1_000_000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}
