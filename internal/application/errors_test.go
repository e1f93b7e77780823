package application

import (
	"errors"
	"fmt"
	"testing"

	"github.com/marcantoine-malacquis/hydracat-sub001/internal/persistence"
)

func TestErrorKind(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "nil", err: nil, want: ""},
		{name: "no user", err: ErrNoAuthenticatedUser, want: "precondition"},
		{name: "no pet", err: ErrNoPetResolved, want: "precondition"},
		{name: "not found", err: ErrNotFound, want: "not_found"},
		{name: "persistence not found", err: fmt.Errorf("get: %w", persistence.ErrNotFound), want: "not_found"},
		{name: "duplicate", err: persistence.ErrDuplicate, want: "duplicate"},
		{name: "validation", err: &ValidationError{FieldErrors: map[string]string{"kind": "required"}}, want: "validation"},
		{name: "data format", err: &DataFormatError{Detail: "bad reminder time"}, want: "data_format"},
		{name: "state", err: &StateError{Message: "derivation failed"}, want: "state"},
		{name: "anything else", err: errors.New("connection reset"), want: "transient"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ErrorKind(tc.err); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	vErr := &ValidationError{}
	if vErr.HasErrors() {
		t.Fatalf("empty error must report no issues")
	}
	vErr.add("medication_name", "required")
	if !vErr.HasErrors() {
		t.Fatalf("expected recorded issue to register")
	}
	if vErr.FieldErrors["medication_name"] != "required" {
		t.Fatalf("unexpected field errors: %v", vErr.FieldErrors)
	}
}

func TestDataFormatError_Unwrap(t *testing.T) {
	cause := errors.New("bad csv")
	err := fmt.Errorf("scan: %w", &DataFormatError{Detail: "reminder times", Cause: cause})

	var dErr *DataFormatError
	if !errors.As(err, &dErr) {
		t.Fatalf("expected DataFormatError in chain")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected the cause to stay reachable")
	}
}
