package faults

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsCode(t *testing.T) {
	err := QuotaExceeded("region", 50, 50)

	if !IsCode(err, CodeQuotaExceeded) {
		t.Error("expected CodeQuotaExceeded to match")
	}
	if IsCode(err, CodeCapacityExhausted) {
		t.Error("wrong code should not match")
	}
	if IsCode(nil, CodeQuotaExceeded) {
		t.Error("nil error should not match any code")
	}
}

func TestIsCodeWrapped(t *testing.T) {
	wrapped := fmt.Errorf("allocate region: %w", CapacityExhausted("host", 254, 254))
	if !IsCode(wrapped, CodeCapacityExhausted) {
		t.Error("expected code match through fmt.Errorf wrapping")
	}
}

func TestErrorContext(t *testing.T) {
	err := QuotaExceeded("host", 1000, 1000)

	var fe *Error
	if !errors.As(err, &fe) {
		t.Fatal("expected *Error")
	}
	if fe.Context["limit"] != int64(1000) || fe.Context["current"] != int64(1000) {
		t.Errorf("context = %v, want limit and current of 1000", fe.Context)
	}
}

func TestNotFoundDoesNotLeakID(t *testing.T) {
	err := NotFound("region", "42")
	if got := err.Error(); got != "NOT_FOUND: region not found" {
		t.Errorf("message = %q, should not embed the identifier", got)
	}
}
