// Package recovery implements the recovery plane wrapping the
// executor: failure classification, a global+per-pair circuit breaker,
// replay/staleness protection, and the final absolute-limits safety
// gate. The orchestrator calls Manager.Admit before an execution and
// Manager.RecordOutcome after it; the executor does not call into this
// package.
package recovery

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/you/arbcore/internal/events"
	"github.com/you/arbcore/internal/signal"
)

// DenialReason names why Admit refused a signal.
type DenialReason string

const (
	DenyBreakerOpen     DenialReason = "BreakerOpen"
	DenyReplayRejected  DenialReason = "ReplayRejected"
	DenyStale           DenialReason = "Stale"
	DenySafetyViolation DenialReason = "SafetyViolation"
)

// Config bundles every sub-component's configuration.
type Config struct {
	Breaker BreakerConfig
	Replay  ReplayConfig
}

// DefaultConfig mirrors this system's original recovery defaults.
func DefaultConfig() Config {
	return Config{Breaker: DefaultBreakerConfig(), Replay: DefaultReplayConfig()}
}

// Outcome is one recorded execution result, kept for observability.
type Outcome struct {
	SignalID string
	Pair     string
	Success  bool
	Error    string
	Category FailureCategory
	PnlUSD   decimal.Decimal
	Ts       time.Time
}

// Manager is the single entry point the orchestrator calls into for
// pre-flight admission and post-flight outcome recording.
type Manager struct {
	Breaker *CircuitBreaker
	Replay  *ReplayProtection

	classifier FailureClassifier
	bus        *events.Bus

	mu       sync.Mutex
	outcomes []Outcome
}

// New constructs a Manager from cfg, publishing breaker/replay/safety
// events to bus (nil disables eventing).
func New(cfg Config, bus *events.Bus) *Manager {
	return &Manager{
		Breaker: NewCircuitBreaker(cfg.Breaker),
		Replay:  NewReplayProtection(cfg.Replay),
		bus:     bus,
	}
}

// Admit runs the pre-flight gate in order: circuit breaker, replay
// protection. It does not run the safety gate; SafetyCheck is a
// separate, capital-aware call the orchestrator makes with the latest
// CapitalState. Manager has no capital dependency.
func (m *Manager) Admit(sig signal.Signal, now time.Time) (bool, DenialReason, string) {
	pair := sig.Pair.Canonical()

	prevMode := m.Breaker.Mode(pair)
	allowsTrade := m.Breaker.AllowsTrade(pair)
	m.publishBreakerTransition(pair, prevMode, m.Breaker.Mode(pair))
	if !allowsTrade {
		return false, DenyBreakerOpen, "circuit breaker open"
	}

	allowed, reason := m.Replay.Check(sig, now)
	if !allowed {
		return false, DenyReplayRejected, reason
	}

	return true, "", "ok"
}

// publishBreakerTransition emits breaker_half_open on OPEN->HALF_OPEN
// and breaker_reset on any transition into CLOSED, mirroring the
// breaker_trip event RecordOutcome already emits on the opposite edge.
func (m *Manager) publishBreakerTransition(pair string, from, to BreakerMode) {
	if m.bus == nil || from == to {
		return
	}
	switch to {
	case BreakerHalfOpen:
		m.bus.Publish(events.New(events.KindBreakerHalfOpen, time.Now()).WithPair(pair))
	case BreakerClosed:
		m.bus.Publish(events.New(events.KindBreakerReset, time.Now()).WithPair(pair))
	}
}

// RecordOutcome records the result of an execution attempt: marks the
// signal executed in the replay ledger, classifies the error (if any),
// and updates the circuit breaker. Emits a breaker_trip event on the
// open-edge transition.
func (m *Manager) RecordOutcome(sig signal.Signal, success bool, errMsg string, pnlUSD decimal.Decimal, now time.Time) {
	pair := sig.Pair.Canonical()
	m.Replay.MarkExecuted(sig, now)

	wasOpen := m.Breaker.IsOpen(pair)

	var category FailureCategory
	if success {
		m.Breaker.RecordSuccess(pair, pnlUSD)
	} else {
		category = m.classifier.Classify(errMsg)
		m.Breaker.RecordFailure(pair, category, pnlUSD)
	}

	isOpenNow := m.Breaker.IsOpen(pair)
	if !wasOpen && isOpenNow && m.bus != nil {
		m.bus.Publish(events.New(events.KindBreakerTrip, now).WithPair(pair).WithData("category", string(category)))
	}

	m.mu.Lock()
	m.outcomes = append(m.outcomes, Outcome{
		SignalID: sig.ID,
		Pair:     pair,
		Success:  success,
		Error:    errMsg,
		Category: category,
		PnlUSD:   pnlUSD,
		Ts:       now,
	})
	m.mu.Unlock()
}

// RecentOutcomes returns up to n of the most recently recorded
// outcomes.
func (m *Manager) RecentOutcomes(n int) []Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= 0 || n > len(m.outcomes) {
		n = len(m.outcomes)
	}
	return append([]Outcome(nil), m.outcomes[len(m.outcomes)-n:]...)
}

// WindowStats aggregates the recorded outcome log into the two rolling
// figures the absolute safety gate needs: realized P&L over the
// trailing 24h (negative means a net loss) and the trade count over
// the trailing 1h.
func (m *Manager) WindowStats(now time.Time) (dailyPnlUSD decimal.Decimal, tradesLastHour int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.outcomes {
		age := now.Sub(o.Ts)
		if age <= 24*time.Hour {
			dailyPnlUSD = dailyPnlUSD.Add(o.PnlUSD)
		}
		if age <= time.Hour {
			tradesLastHour++
		}
	}
	return dailyPnlUSD, tradesLastHour
}
