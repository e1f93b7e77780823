// Package analytics forwards usage events to the diagnostics log. Events are
// advisory; nothing in the app waits on them.
package analytics

import (
	"log/slog"

	"github.com/marcantoine-malacquis/hydracat-sub001/internal/application"
)

// SlogSink implements application.Analytics by emitting each event as a
// structured log record.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink returns a sink writing to the given logger.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger.With("component", "analytics")}
}

// Track records the event.
func (s *SlogSink) Track(event application.AnalyticsEvent) error {
	attrs := make([]any, 0, 2*len(event.Fields)+2)
	attrs = append(attrs, "event", event.Name)
	for key, value := range event.Fields {
		attrs = append(attrs, key, value)
	}
	s.logger.Info("usage event", attrs...)
	return nil
}
