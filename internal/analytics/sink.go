// Package analytics is the best-effort audit event sink. Emission never
// fails the operation that produced the event: sinks swallow and log their
// own errors.
package analytics

import (
	"context"

	"go.uber.org/zap"
)

// Event is one audit record.
type Event struct {
	Type         string
	TestID       string
	AssignmentID string
	Variant      string
	Detail       string
}

// Sink receives audit events. Emit must not block on outbound I/O and must
// never propagate failures to the caller.
type Sink interface {
	Emit(ctx context.Context, ev Event)
}

// LogSink writes audit events to the application log.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(_ context.Context, ev Event) {
	s.logger.Info("audit event",
		zap.String("type", ev.Type),
		zap.String("test_id", ev.TestID),
		zap.String("assignment_id", ev.AssignmentID),
		zap.String("variant", ev.Variant),
		zap.String("detail", ev.Detail),
	)
}

type nopSink struct{}

func (nopSink) Emit(context.Context, Event) {}

// Nop returns a sink that discards everything.
func Nop() Sink {
	return nopSink{}
}
