package errs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestIsMatchesByKind(t *testing.T) {
	err := E(KindNotFound, "gateway.fetch", fmt.Errorf("no rows")).WithClaim("abc")
	wrapped := fmt.Errorf("predict: %w", err)

	if !errors.Is(wrapped, NotFound) {
		t.Error("expected wrapped error to match NotFound")
	}
	if errors.Is(wrapped, RepositoryUnavailable) {
		t.Error("did not expect match with RepositoryUnavailable")
	}
	if got := KindOf(wrapped); got != KindNotFound {
		t.Errorf("KindOf = %q, want %q", got, KindNotFound)
	}
}

func TestUnwrapPreservesCancellation(t *testing.T) {
	err := E(KindReasoningUnavailable, "reasoning.ask", context.Canceled)
	if !errors.Is(err, context.Canceled) {
		t.Error("expected context.Canceled to be reachable through Unwrap")
	}
}

func TestErrorMessage(t *testing.T) {
	err := &Error{
		Kind:        KindRepositoryUnavailable,
		Op:          "gateway.fetch",
		ClaimID:     "c-1",
		Diagnostics: []string{"mcp: timeout", "rest: 503"},
	}
	msg := err.Error()
	for _, want := range []string{"gateway.fetch", "RepositoryUnavailable", "c-1", "mcp: timeout", "rest: 503"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
	if d := Diagnostics(fmt.Errorf("x: %w", err)); len(d) != 2 {
		t.Errorf("Diagnostics = %v, want 2 entries", d)
	}
}

func TestKindOfPlainError(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != "" {
		t.Errorf("KindOf(plain) = %q, want empty", got)
	}
}
