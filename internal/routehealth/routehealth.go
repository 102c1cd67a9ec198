// Package routehealth tracks a bounded moving window of outcomes per
// route tag (gas cost and success) so the generator can penalize routes
// that have recently been unreliable or expensive, the way an
// aggregator-facing system has to when it has more than one quote
// source for the same pair.
package routehealth

import (
	"sync"

	"github.com/shopspring/decimal"
	"github.com/you/arbcore/internal/types"
)

const defaultWindow = 20

type sample struct {
	gasUSD  decimal.Decimal
	success bool
}

// Tracker keeps a per-route ring buffer of recent swap outcomes.
type Tracker struct {
	mu     sync.Mutex
	window int
	routes map[string][]sample
}

// New constructs a Tracker with the given window size; window <= 0
// falls back to defaultWindow.
func New(window int) *Tracker {
	if window <= 0 {
		window = defaultWindow
	}
	return &Tracker{window: window, routes: make(map[string][]sample)}
}

// Record appends one outcome for route.
func (t *Tracker) Record(route types.RouteTag, gasUSD decimal.Decimal, success bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := route.String()
	samples := append(t.routes[key], sample{gasUSD: gasUSD, success: success})
	if len(samples) > t.window {
		samples = samples[len(samples)-t.window:]
	}
	t.routes[key] = samples
}

// UnreliabilityPenalty returns a bps penalty in [0, 10000] to subtract
// from a route's attractiveness, derived from its recent failure rate
// and average gas cost relative to the other tracked routes. A route
// with no history is treated as neutral (zero penalty).
func (t *Tracker) UnreliabilityPenalty(route types.RouteTag) decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()

	samples := t.routes[route.String()]
	if len(samples) == 0 {
		return decimal.Zero
	}

	var failures int
	var gasSum decimal.Decimal
	for _, s := range samples {
		if !s.success {
			failures++
		}
		gasSum = gasSum.Add(s.gasUSD)
	}
	failureRate := float64(failures) / float64(len(samples))
	avgGas := gasSum.Div(decimal.NewFromInt(int64(len(samples))))

	// Every 10% failure rate costs 200bps; every $1 of average gas
	// costs 50bps, capped at the 10000bps ceiling.
	penalty := decimal.NewFromFloat(failureRate * 2000.0).Add(avgGas.Mul(decimal.NewFromInt(50)))
	cap := decimal.NewFromInt(10000)
	if penalty.GreaterThan(cap) {
		return cap
	}
	return penalty
}
