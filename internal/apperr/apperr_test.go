package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIs_MatchesOnKind(t *testing.T) {
	errUnsupported := New(KindUnsupportedDestination, "no active rate for destination")

	wrapped := fmt.Errorf("create call: %w", errUnsupported)
	if !errors.Is(wrapped, New(KindUnsupportedDestination, "")) {
		t.Fatalf("expected kind match through fmt wrapping")
	}
	if errors.Is(wrapped, ErrNotFound) {
		t.Fatalf("did not expect not_found match")
	}
}

func TestWrap_KeepsCauseOutOfMessage(t *testing.T) {
	cause := errors.New("twilio: 503")
	err := Wrap(KindProvider, "call could not be placed", cause)

	if !errors.Is(err, cause) {
		t.Fatalf("expected cause reachable")
	}
	if Message(err) != "call could not be placed" {
		t.Fatalf("unexpected message %q", Message(err))
	}
	if KindOf(fmt.Errorf("x: %w", err)) != KindProvider {
		t.Fatalf("expected provider kind")
	}
}

func TestKindOf_DefaultsToInternal(t *testing.T) {
	if KindOf(errors.New("plain")) != KindInternal {
		t.Fatalf("expected internal")
	}
	if Message(errors.New("secret detail")) != "internal error" {
		t.Fatalf("expected generic message")
	}
}
