package auth

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndParse(t *testing.T) {
	issuer := NewIssuer("secret", time.Minute, "multiwallet")
	token, err := issuer.Issue("acct-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	sub, err := issuer.Parse(token)
	if err != nil || sub != "acct-1" {
		t.Fatalf("parse: %q %v", sub, err)
	}
}

func TestParseRejects(t *testing.T) {
	issuer := NewIssuer("secret", time.Minute, "multiwallet")
	token, _ := issuer.Issue("acct-1")

	other := NewIssuer("other-secret", time.Minute, "multiwallet")
	if _, err := other.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected signature failure, got %v", err)
	}

	foreign := NewIssuer("secret", time.Minute, "someone-else")
	if _, err := foreign.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected issuer failure, got %v", err)
	}

	issuer.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := issuer.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected expiry failure, got %v", err)
	}

	if _, err := issuer.Parse("not-a-token"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected malformed failure, got %v", err)
	}
}
