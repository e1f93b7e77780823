package application

import (
	"context"
	"errors"
	"log/slog"

	"github.com/marcantoine-malacquis/hydracat-sub001/internal/logging"
	"github.com/marcantoine-malacquis/hydracat-sub001/internal/persistence"
)

func defaultLogger(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}

func serviceLogger(ctx context.Context, base *slog.Logger, serviceName, operation string, attrs ...any) *slog.Logger {
	logger := logging.FromContext(ctx)
	if logger == nil {
		logger = base
	}
	if logger == nil {
		logger = slog.Default()
	}

	pairs := []any{"service", serviceName}
	if operation != "" {
		pairs = append(pairs, "operation", operation)
	}
	if len(attrs) > 0 {
		pairs = append(pairs, attrs...)
	}
	return logger.With(pairs...)
}

// ErrorKind maps sentinel, validation and data errors to a stable logging
// label.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	switch {
	case errors.Is(err, ErrNoAuthenticatedUser), errors.Is(err, ErrNoPetResolved):
		return "precondition"
	case errors.Is(err, ErrNotFound), errors.Is(err, persistence.ErrNotFound):
		return "not_found"
	case errors.Is(err, persistence.ErrDuplicate):
		return "duplicate"
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return "validation"
	}
	var dErr *DataFormatError
	if errors.As(err, &dErr) {
		return "data_format"
	}
	var sErr *StateError
	if errors.As(err, &sErr) {
		return "state"
	}

	return "transient"
}
