package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindSurvivesWrapping(t *testing.T) {
	base := New(KindFlagged, "single_limit", "Single USD transaction exceeds 2000")
	wrapped := fmt.Errorf("transfer: %w", base)

	if KindOf(wrapped) != KindFlagged {
		t.Fatalf("expected flagged, got %s", KindOf(wrapped))
	}
	if ReasonOf(wrapped) != "single_limit" {
		t.Fatalf("unexpected reason %q", ReasonOf(wrapped))
	}
	if !errors.Is(wrapped, &Error{Kind: KindFlagged}) {
		t.Fatal("expected errors.Is to match on kind")
	}
	if errors.Is(wrapped, &Error{Kind: KindFlagged, Reason: "rolling_limit"}) {
		t.Fatal("expected reason mismatch")
	}
}

func TestUnknownErrorsAreInternal(t *testing.T) {
	if KindOf(errors.New("boom")) != KindInternal {
		t.Fatal("expected internal")
	}
	if HTTPStatus(KindOf(errors.New("boom"))) != http.StatusInternalServerError {
		t.Fatal("expected 500")
	}
	if HTTPStatus(KindInsufficientFunds) != http.StatusUnprocessableEntity {
		t.Fatal("expected 422 for insufficient funds")
	}
}
