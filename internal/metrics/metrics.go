// Package metrics updates Prometheus collectors from the control
// loop's event stream. HTTP exposition is out of scope, so there is no
// Serve function here: Sink only updates in-process collectors,
// generalized to the event kinds this system emits.
package metrics

import (
	"github.com/you/arbcore/internal/events"
)

// Sink updates the package-level collectors from every event a Bus
// publishes. Register it once with events.Bus.Subscribe.
type Sink struct{}

// NewSink constructs a metrics Sink.
func NewSink() *Sink { return &Sink{} }

// Handle implements events.Sink.
func (s *Sink) Handle(ev events.Event) {
	switch ev.Kind {
	case events.KindSignalGenerated:
		SignalsGenerated.Inc()
	case events.KindSignalDropped:
		reason, _ := ev.Data["detail"].(string)
		SignalsDropped.WithLabelValues(reason).Inc()
	case events.KindExecutionStarted:
		ExecutionsStarted.Inc()
	case events.KindExecutionDone:
		state, _ := ev.Data["state"].(string)
		ExecutionsDone.WithLabelValues(state).Inc()
	case events.KindBreakerTrip:
		BreakerTrips.WithLabelValues(ev.Pair).Inc()
	case events.KindSafetyViolation:
		rule, _ := ev.Data["detail"].(string)
		SafetyViolations.WithLabelValues(rule).Inc()
	}
}
