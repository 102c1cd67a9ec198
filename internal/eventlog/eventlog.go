// Package eventlog implements the structured-log events.Sink: every
// event the control loop publishes gets a zap log line, the operator's
// other window onto the system besides the Prometheus counters and the
// Redis stream.
package eventlog

import (
	"go.uber.org/zap"

	"github.com/you/arbcore/internal/events"
)

// Sink writes every event to a zap.Logger at a level derived from its
// Kind: breaker trips, safety violations, execution failures and
// kill-switch activation are warnings, everything else is informational.
type Sink struct {
	log *zap.Logger
}

// NewSink constructs a Sink writing through log.
func NewSink(log *zap.Logger) *Sink {
	return &Sink{log: log}
}

// Handle implements events.Sink.
func (s *Sink) Handle(ev events.Event) {
	fields := make([]zap.Field, 0, len(ev.Data)+2)
	if ev.Pair != "" {
		fields = append(fields, zap.String("pair", ev.Pair))
	}
	if ev.SignalID != "" {
		fields = append(fields, zap.String("signal_id", ev.SignalID))
	}
	for k, v := range ev.Data {
		fields = append(fields, zap.Any(k, v))
	}

	if warnLevel(ev.Kind) {
		s.log.Warn(string(ev.Kind), fields...)
		return
	}
	s.log.Info(string(ev.Kind), fields...)
}

func warnLevel(kind events.Kind) bool {
	switch kind {
	case events.KindBreakerTrip, events.KindSafetyViolation, events.KindExecutionFailed, events.KindKillSwitchActive:
		return true
	default:
		return false
	}
}
