package apperr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestIsMatchesOnKindAlone(t *testing.T) {
	cause := errors.New("connection refused")
	err := New(KindUpstreamUnavailable, "priceoracle.Fetch", "coingecko unreachable", cause)

	if !errors.Is(err, UpstreamUnavailable) {
		t.Errorf("expected errors.Is to match UpstreamUnavailable sentinel")
	}
	if errors.Is(err, NotFound) {
		t.Errorf("expected errors.Is to not match a different kind")
	}
}

func TestIsIgnoresOpAndMessage(t *testing.T) {
	a := New(KindConflict, "op-a", "message a", nil)
	b := New(KindConflict, "op-b", "message b", nil)
	if !errors.Is(a, b) {
		t.Errorf("expected two errors of the same kind to match regardless of op/message")
	}
}

func TestUnwrapReachesCause(t *testing.T) {
	cause := errors.New("deadline exceeded")
	err := Wrap(KindUpstreamUnavailable, "collectors.FetchSince", cause)

	if !errors.Is(err, cause) {
		t.Errorf("expected Wrap to preserve the underlying cause for errors.Is")
	}
}

func TestWrapNilReturnsNil(t *testing.T) {
	if Wrap(KindInvariant, "op", nil) != nil {
		t.Errorf("expected Wrap(nil) to return nil")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"tagged", New(KindRateLimited, "op", "msg", nil), KindRateLimited},
		{"plain", errors.New("boom"), KindUnknown},
		{"wrapped further", fmt.Errorf("outer: %w", New(KindNotFound, "op", "msg", nil)), KindNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestErrorStringIncludesCause(t *testing.T) {
	cause := errors.New("timeout")
	err := New(KindUpstreamUnavailable, "op", "upstream failed", cause)
	got := err.Error()
	if !strings.Contains(got, "timeout") {
		t.Fatalf("Error() = %q, want it to include the cause %q", got, "timeout")
	}
	if !errors.Is(err, UpstreamUnavailable) {
		t.Errorf("sanity check failed: error lost its kind")
	}
}
