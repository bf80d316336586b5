package apperrors

import (
	"fmt"
	"net/http"
	"testing"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{New(KindAgentNotFound, "a1"), http.StatusNotFound},
		{New(KindAgentAlreadyExists, "a1"), http.StatusConflict},
		{New(KindInvalidState, "bogus"), http.StatusBadRequest},
		{New(KindUnauthorized, ""), http.StatusUnauthorized},
		{New(KindStorageError, "down"), http.StatusServiceUnavailable},
		{fmt.Errorf("plain error"), http.StatusInternalServerError},
		{nil, http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := StatusFor(c.err); got != c.want {
			t.Errorf("StatusFor(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := fmt.Errorf("boom")
	err := Wrap(KindStorageError, "write failed", cause)

	if kind, ok := KindOf(err); !ok || kind != KindStorageError {
		t.Fatalf("KindOf() = (%v, %v), want (%v, true)", kind, ok, KindStorageError)
	}
	if err.Unwrap() != cause {
		t.Fatal("Unwrap should return the original cause")
	}
}

func TestIs(t *testing.T) {
	err := New(KindAgentNotFound, "a1")
	if !Is(err, KindAgentNotFound) {
		t.Fatal("expected Is to match same kind")
	}
	if Is(err, KindStorageError) {
		t.Fatal("expected Is to reject different kind")
	}
}

func TestDetailHidesInternalKinds(t *testing.T) {
	// TaskDispatchError and ConfigurationError never reach HTTP callers;
	// Detail should fall back to the generic body for them too.
	err := New(KindTaskDispatchError, "routing down")
	if got := Detail(err); got != "Internal Server Error" {
		t.Errorf("Detail() = %q, want generic internal error body", got)
	}

	visible := New(KindAgentNotFound, "a1")
	if got := Detail(visible); got == "Internal Server Error" {
		t.Error("Detail() should surface recognized kinds, not the generic body")
	}
}
