package recovery

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// BreakerMode is the circuit breaker's current state.
type BreakerMode string

const (
	BreakerClosed   BreakerMode = "CLOSED"
	BreakerOpen     BreakerMode = "OPEN"
	BreakerHalfOpen BreakerMode = "HALF_OPEN"
)

// BreakerConfig tunes one breaker instance; global and per-pair
// breakers share the same config shape.
type BreakerConfig struct {
	FailureThreshold int
	WindowSeconds    time.Duration
	MaxDrawdownUSD   decimal.Decimal
	CooldownSeconds  time.Duration
	HalfOpenAfterPct float64
	SuccessDecay     int
	PerPair          bool
}

// DefaultBreakerConfig matches this system's original circuit-breaker
// defaults.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 3,
		WindowSeconds:    300 * time.Second,
		MaxDrawdownUSD:   decimal.NewFromInt(50),
		CooldownSeconds:  600 * time.Second,
		HalfOpenAfterPct: 0.8,
		SuccessDecay:     1,
		PerPair:          true,
	}
}

// BreakerSnapshot is a read-only view of one breaker's state.
type BreakerSnapshot struct {
	Mode             BreakerMode
	FailuresInWindow int
	CumulativePnlUSD decimal.Decimal
	TrippedAt        time.Time
	TimeUntilReset   time.Duration
	Pair             string
}

type singleBreaker struct {
	cfg   BreakerConfig
	label string

	mu           sync.Mutex
	failures     []time.Time
	mode         BreakerMode
	trippedAt    time.Time
	cumulative   decimal.Decimal
}

func newSingleBreaker(cfg BreakerConfig, label string) *singleBreaker {
	return &singleBreaker{cfg: cfg, label: label, mode: BreakerClosed}
}

func (b *singleBreaker) recordFailure(category FailureCategory, pnl decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	weight := 1
	if category == CategoryPermanent {
		weight = 2
	}
	for i := 0; i < weight; i++ {
		b.failures = append(b.failures, now)
	}
	b.cumulative = b.cumulative.Add(pnl)
	b.prune(now)

	if b.shouldTrip(now) {
		b.trip(now)
	}
}

func (b *singleBreaker) recordSuccess(pnl decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cumulative = b.cumulative.Add(pnl)
	decay := b.cfg.SuccessDecay
	if decay > len(b.failures) {
		decay = len(b.failures)
	}
	b.failures = b.failures[decay:]

	if b.mode == BreakerHalfOpen {
		b.reset()
	}
}

func (b *singleBreaker) currentMode() BreakerMode {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeTransition(time.Now())
	return b.mode
}

func (b *singleBreaker) isOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeTransition(time.Now())
	return b.mode == BreakerOpen
}

func (b *singleBreaker) allowsTrade() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeTransition(time.Now())
	return b.mode == BreakerClosed || b.mode == BreakerHalfOpen
}

func (b *singleBreaker) timeUntilReset() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.trippedAt.IsZero() {
		return 0
	}
	elapsed := time.Since(b.trippedAt)
	remaining := b.cfg.CooldownSeconds - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (b *singleBreaker) snapshot(pair string) BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.maybeTransition(time.Now())
	b.prune(time.Now())
	return BreakerSnapshot{
		Mode:             b.mode,
		FailuresInWindow: len(b.failures),
		CumulativePnlUSD: b.cumulative,
		TrippedAt:        b.trippedAt,
		TimeUntilReset:   b.timeUntilResetLocked(),
		Pair:             pair,
	}
}

func (b *singleBreaker) timeUntilResetLocked() time.Duration {
	if b.trippedAt.IsZero() {
		return 0
	}
	elapsed := time.Since(b.trippedAt)
	remaining := b.cfg.CooldownSeconds - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (b *singleBreaker) manualTrip() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trip(time.Now())
}

func (b *singleBreaker) prune(now time.Time) {
	cutoff := now.Add(-b.cfg.WindowSeconds)
	kept := b.failures[:0]
	for _, t := range b.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.failures = kept
}

func (b *singleBreaker) shouldTrip(now time.Time) bool {
	if len(b.failures) >= b.cfg.FailureThreshold {
		return true
	}
	if b.cumulative.LessThanOrEqual(b.cfg.MaxDrawdownUSD.Neg()) {
		return true
	}
	return false
}

func (b *singleBreaker) trip(now time.Time) {
	if b.mode == BreakerOpen || b.mode == BreakerHalfOpen {
		return
	}
	b.mode = BreakerOpen
	b.trippedAt = now
}

func (b *singleBreaker) reset() {
	b.mode = BreakerClosed
	b.trippedAt = time.Time{}
	b.failures = nil
}

func (b *singleBreaker) maybeTransition(now time.Time) {
	if b.trippedAt.IsZero() {
		return
	}
	elapsed := now.Sub(b.trippedAt)
	if elapsed >= b.cfg.CooldownSeconds {
		b.reset()
		return
	}
	halfOpenAt := time.Duration(float64(b.cfg.CooldownSeconds) * b.cfg.HalfOpenAfterPct)
	if elapsed >= halfOpenAt && b.mode == BreakerOpen {
		b.mode = BreakerHalfOpen
	}
}

// CircuitBreaker wraps a global breaker plus one per-pair breaker,
// both of which must allow a trade for it to be admitted.
type CircuitBreaker struct {
	cfg    BreakerConfig
	global *singleBreaker

	mu      sync.Mutex
	perPair map[string]*singleBreaker
}

// NewCircuitBreaker constructs a CircuitBreaker from cfg.
func NewCircuitBreaker(cfg BreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		cfg:     cfg,
		global:  newSingleBreaker(cfg, "global"),
		perPair: make(map[string]*singleBreaker),
	}
}

func (c *CircuitBreaker) pairBreaker(pair string) *singleBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, ok := c.perPair[pair]
	if !ok {
		b = newSingleBreaker(c.cfg, pair)
		c.perPair[pair] = b
	}
	return b
}

// RecordFailure records a failed outcome against both the global and
// (when PerPair) per-pair breakers.
func (c *CircuitBreaker) RecordFailure(pair string, category FailureCategory, pnl decimal.Decimal) {
	c.global.recordFailure(category, pnl)
	if pair != "" && c.cfg.PerPair {
		c.pairBreaker(pair).recordFailure(category, pnl)
	}
}

// RecordSuccess records a successful outcome.
func (c *CircuitBreaker) RecordSuccess(pair string, pnl decimal.Decimal) {
	c.global.recordSuccess(pnl)
	if pair != "" && c.cfg.PerPair {
		c.pairBreaker(pair).recordSuccess(pnl)
	}
}

// IsOpen reports whether trading is blocked globally or for pair.
func (c *CircuitBreaker) IsOpen(pair string) bool {
	if c.global.isOpen() {
		return true
	}
	if pair != "" && c.cfg.PerPair {
		return c.pairBreaker(pair).isOpen()
	}
	return false
}

// Mode reports the combined global+per-pair breaker state: OPEN if
// either breaker is open, HALF_OPEN if either is half-open and neither
// is open, CLOSED otherwise.
func (c *CircuitBreaker) Mode(pair string) BreakerMode {
	g := c.global.currentMode()
	if pair == "" || !c.cfg.PerPair {
		return g
	}
	p := c.pairBreaker(pair).currentMode()
	if g == BreakerOpen || p == BreakerOpen {
		return BreakerOpen
	}
	if g == BreakerHalfOpen || p == BreakerHalfOpen {
		return BreakerHalfOpen
	}
	return BreakerClosed
}

// AllowsTrade reports whether a trade (including a half-open probe)
// may proceed for pair.
func (c *CircuitBreaker) AllowsTrade(pair string) bool {
	if !c.global.allowsTrade() {
		return false
	}
	if pair != "" && c.cfg.PerPair {
		return c.pairBreaker(pair).allowsTrade()
	}
	return true
}

// Trip manually opens the global and (when pair is set) per-pair
// breaker, for emergency stop use.
func (c *CircuitBreaker) Trip(pair string) {
	c.global.manualTrip()
	if pair != "" && c.cfg.PerPair {
		c.pairBreaker(pair).manualTrip()
	}
}

// TimeUntilReset returns the longer of the global and per-pair cooldown
// remaining.
func (c *CircuitBreaker) TimeUntilReset(pair string) time.Duration {
	g := c.global.timeUntilReset()
	if pair != "" && c.cfg.PerPair {
		if p := c.pairBreaker(pair).timeUntilReset(); p > g {
			return p
		}
	}
	return g
}

// Snapshot returns the global breaker's state, and pair's state when
// pair is non-empty.
func (c *CircuitBreaker) Snapshot(pair string) (global BreakerSnapshot, perPair BreakerSnapshot, havePerPair bool) {
	global = c.global.snapshot("")
	if pair != "" {
		perPair = c.pairBreaker(pair).snapshot(pair)
		havePerPair = true
	}
	return
}
