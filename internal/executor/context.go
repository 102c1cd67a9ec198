package executor

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/you/arbcore/internal/signal"
)

// StateEvent is one row of an execution's audit trail.
type StateEvent struct {
	Ts     time.Time
	From   State
	To     State
	Detail string
	Err    string
}

// LegFill records one leg's outcome.
type LegFill struct {
	Venue         string
	FilledQty     decimal.Decimal
	AvgPrice      decimal.Decimal
	VenueOrderID  string
	TxHash        string
	FeesPaid      decimal.Decimal
	LatencyMs     int64
	Attempts      int
	SlippageBps   decimal.Decimal
}

// ExecutionContext is the mutable record the executor owns for one
// Signal across its entire lifecycle.
type ExecutionContext struct {
	Signal signal.Signal
	State  State

	Leg1 LegFill
	Leg2 LegFill

	StartedAt  time.Time
	FinishedAt time.Time

	ActualNetPnlUSD decimal.Decimal
	ActualFeesUSD   decimal.Decimal

	Error                     string
	RequiresManualIntervention bool
	UnwindAttempted           bool
	UnwindSuccess             bool

	Events []StateEvent
}

// NewContext constructs an ExecutionContext in the IDLE state for sig.
func NewContext(sig signal.Signal, now time.Time) *ExecutionContext {
	return &ExecutionContext{Signal: sig, State: StateIdle, StartedAt: now}
}

// Transition moves ctx to newState if the edge is allowed, appending an
// audit entry either way. An invalid transition returns
// *InvalidTransitionError and leaves ctx.State unchanged; the caller
// must treat this as fatal.
func (ctx *ExecutionContext) Transition(newState State, detail string, now time.Time) error {
	allowed := validTransitions[ctx.State]
	if !allowed[newState] {
		return &InvalidTransitionError{From: ctx.State, To: newState}
	}
	ctx.Events = append(ctx.Events, StateEvent{Ts: now, From: ctx.State, To: newState, Detail: detail})
	ctx.State = newState
	return nil
}

// DurationMs returns the elapsed wall time between StartedAt and
// FinishedAt, or zero when the context has not finished.
func (ctx *ExecutionContext) DurationMs() int64 {
	if ctx.FinishedAt.IsZero() {
		return 0
	}
	return ctx.FinishedAt.Sub(ctx.StartedAt).Milliseconds()
}
