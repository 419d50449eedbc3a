package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf_Wrapped(t *testing.T) {
	base := Validationf("quantity must be positive")
	wrapped := fmt.Errorf("create order: %w", base)
	if KindOf(wrapped) != KindValidation {
		t.Fatalf("kind=%q want %q", KindOf(wrapped), KindValidation)
	}
	if !IsValidation(wrapped) {
		t.Fatalf("IsValidation=false want true")
	}
}

func TestKindOf_Untyped(t *testing.T) {
	if KindOf(errors.New("boom")) != "" {
		t.Fatalf("expected empty kind for untyped error")
	}
	if KindOf(nil) != "" {
		t.Fatalf("expected empty kind for nil error")
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Validationf("bad input"), http.StatusBadRequest},
		{NotFound("order", 42), http.StatusNotFound},
		{InvalidStatef("order is FILLED"), http.StatusConflict},
		{Conflictf("row locked"), http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Fatalf("HTTPStatus(%v)=%d want %d", tc.err, got, tc.want)
		}
	}
}

func TestNotFound_Message(t *testing.T) {
	err := NotFound("instrument", "AAPL")
	if err.Error() != "instrument: AAPL not found" {
		t.Fatalf("msg=%q", err.Error())
	}
}

func TestWrap_KeepsChain(t *testing.T) {
	base := errors.New("deadlock detected")
	err := Wrap(KindConflict, base, "order row contention")
	if !errors.Is(err, base) {
		t.Fatalf("wrapped error lost its chain")
	}
	if !IsConflict(err) {
		t.Fatalf("IsConflict=false want true")
	}
}
