package logging

import (
	"log/slog"
)

// ScopedLogger wraps a base logger so that every record it emits is also
// captured in the collector under the given scope. The pipeline runner calls
// this once per stage, using the stage name as the scope, which is how the
// per-execution log history exposed by the server gets built.
func ScopedLogger(base *slog.Logger, collector *Collector, scope string) *slog.Logger {
	handler := NewCaptureHandler(base.Handler(), collector, scope)
	return slog.New(handler)
}
