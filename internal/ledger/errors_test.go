package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestKindOf(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindNone},
		{"not found", NotFound("fetch"), KindNotFound},
		{"wrapped not found", fmt.Errorf("bootstrap: %w", NotFound("fetch")), KindNotFound},
		{"network", NetworkError("submit", errors.New("dial tcp: refused")), KindNetwork},
		{"rejected", Rejected("submit", "code %d", 3), KindRejected},
		{"deadline", context.DeadlineExceeded, KindNetwork},
		{"unknown", errors.New("boom"), KindNetwork},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := KindOf(tc.err); got != tc.want {
				t.Errorf("KindOf(%v) = %q, want %q", tc.err, got, tc.want)
			}
		})
	}
}

func TestErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := NetworkError("fetch account", cause)
	if !errors.Is(err, cause) || !errors.Is(err, ErrNetwork) {
		t.Fatalf("expected both cause and kind reachable from %v", err)
	}
	if errors.Is(err, ErrRejected) {
		t.Fatal("network error must not match ErrRejected")
	}
}
