package executor

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/you/arbcore/internal/cexadapter"
	"github.com/you/arbcore/internal/dexadapter"
	"github.com/you/arbcore/internal/events"
	"github.com/you/arbcore/internal/signal"
	"github.com/you/arbcore/internal/types"
	"golang.org/x/sync/errgroup"
)

var (
	errPartialFillBelowThreshold = errors.New("fill ratio below configured minimum")
	errSwapRejected              = errors.New("swap did not succeed")
)

// LegOrder selects which venue's leg is submitted first.
type LegOrder string

const (
	DexFirst LegOrder = "dex_first"
	CexFirst LegOrder = "cex_first"
)

// Config tunes timeouts, retries, and leg ordering.
type Config struct {
	LegOrder                LegOrder
	MaxLeg1Retries          int
	MaxLeg2Retries          int
	RetryBaseDelay          time.Duration
	RetryCapDelay           time.Duration
	Leg1Timeout             time.Duration
	Leg2Timeout             time.Duration
	MinFillRatio            decimal.Decimal
	MaxConcurrentExecutions int
	SimulationMode          bool
	DexSlippageBps          decimal.Decimal
	DexDeadlineSeconds      int
	// PollInterval paces PollOrder calls while awaiting a resting
	// maker order's fill.
	PollInterval time.Duration
	// CancelTimeout bounds the best-effort Cancel issued when a leg's
	// deadline passes before it fills.
	CancelTimeout time.Duration
}

// DefaultConfig mirrors this system's original executor defaults.
func DefaultConfig() Config {
	return Config{
		LegOrder:           DexFirst,
		MaxLeg1Retries:     2,
		MaxLeg2Retries:     1,
		RetryBaseDelay:     500 * time.Millisecond,
		RetryCapDelay:      8 * time.Second,
		Leg1Timeout:        5 * time.Second,
		Leg2Timeout:        60 * time.Second,
		MinFillRatio:       decimal.NewFromFloat(0.8),
		SimulationMode:     true,
		DexSlippageBps:     decimal.NewFromInt(100),
		DexDeadlineSeconds: 120,
		PollInterval:       200 * time.Millisecond,
		CancelTimeout:      5 * time.Second,
	}
}

// Executor runs the full two-leg lifecycle for admitted signals. It
// has no recovery-plane dependency: admission (recovery.Admit) and
// outcome recording (recovery.RecordOutcome) are the orchestrator's
// responsibility, keeping the state machine free of breaker/replay
// concerns.
type Executor struct {
	cfg Config
	cex cexadapter.CexAdapter
	dex dexadapter.DexAdapter
	bus *events.Bus

	clock func() time.Time
}

// New constructs an Executor. bus may be nil to disable eventing.
func New(cfg Config, cex cexadapter.CexAdapter, dex dexadapter.DexAdapter, bus *events.Bus) *Executor {
	return &Executor{cfg: cfg, cex: cex, dex: dex, bus: bus, clock: time.Now}
}

// Execute runs sig's full lifecycle, from VALIDATING through a
// terminal state. The caller must have already admitted sig via
// recovery.Manager.Admit.
func (ex *Executor) Execute(parent context.Context, sig signal.Signal) *ExecutionContext {
	now := ex.clock()
	ctx := NewContext(sig, now)

	if err := ex.transition(ctx, StateValidating, "pre-flight checks", now); err != nil {
		ctx.Error = err.Error()
		return ctx
	}

	var err error
	if ex.cfg.LegOrder == DexFirst {
		err = ex.runDexFirst(parent, ctx)
	} else {
		err = ex.runCexFirst(parent, ctx)
	}
	if err != nil {
		ctx.Error = err.Error()
	}

	ctx.FinishedAt = ex.clock()
	if ctx.Error != "" {
		ex.publish(events.KindExecutionFailed, ctx, "error", ctx.Error)
	} else {
		ex.publish(events.KindExecutionDone, ctx)
	}
	return ctx
}

func (ex *Executor) publish(kind events.Kind, ctx *ExecutionContext, extra ...string) {
	if ex.bus == nil {
		return
	}
	ev := events.New(kind, ex.clock()).
		WithPair(ctx.Signal.Pair.Canonical()).
		WithSignal(ctx.Signal.ID).
		WithData("state", string(ctx.State))
	for i := 0; i+1 < len(extra); i += 2 {
		ev = ev.WithData(extra[i], extra[i+1])
	}
	ex.bus.Publish(ev)
}

// transition drives ctx's state machine and publishes an audit trail
// to the event bus: every transition as state_transition, plus
// leg_submitted/leg_filled on the states that mark those milestones.
func (ex *Executor) transition(ctx *ExecutionContext, newState State, detail string, now time.Time) error {
	if err := ctx.Transition(newState, detail, now); err != nil {
		return err
	}
	ex.publish(events.KindStateTransition, ctx, "detail", detail)
	switch newState {
	case StateLeg1Submitting, StateLeg2Submitting:
		ex.publish(events.KindLegSubmitted, ctx)
	case StateLeg1Filled, StateLeg2Filled:
		ex.publish(events.KindLegFilled, ctx)
	}
	return nil
}

// runDexFirst submits both legs with overlap: leg2 goes out to the CEX
// concurrently with leg1's DEX submission rather than waiting for
// leg1's terminal fill, so the two legs spend the least possible time
// exposed to the other venue's price moving before both are in
// flight. runCexFirst stays fully sequential.
func (ex *Executor) runDexFirst(parent context.Context, ctx *ExecutionContext) error {
	now := ex.clock()
	if err := ex.transition(ctx, StateLeg1Submitting, "starting DEX leg", now); err != nil {
		return err
	}
	ctx.Leg1.Venue = "dex"
	ctx.Leg2.Venue = "cex"
	legsStart := now
	if err := ex.transition(ctx, StateLeg1Pending, "DEX and CEX legs submitted concurrently", ex.clock()); err != nil {
		return err
	}

	sig := ctx.Signal
	var leg1Fill, leg2Fill LegFill
	var leg1Err, leg2Err error
	g := new(errgroup.Group)
	g.Go(func() error {
		leg1Fill, leg1Err = ex.retryLeg(parent, sig, true, sig.SizeBase, ex.cfg.Leg1Timeout, ex.cfg.MaxLeg1Retries)
		return nil
	})
	g.Go(func() error {
		leg2Fill, leg2Err = ex.retryLeg(parent, sig, false, sig.SizeBase, ex.cfg.Leg2Timeout, ex.cfg.MaxLeg2Retries)
		return nil
	})
	_ = g.Wait()

	leg1Fill.Venue, leg2Fill.Venue = "dex", "cex"
	leg1Fill.LatencyMs = ex.clock().Sub(legsStart).Milliseconds()
	leg2Fill.LatencyMs = ex.clock().Sub(legsStart).Milliseconds()

	switch {
	case leg1Err == nil && leg2Err == nil:
		ctx.Leg1 = leg1Fill
		ctx.Leg1.SlippageBps = slippageBps(ctx.Signal.DexSidePrice, ctx.Leg1.AvgPrice)
		if err := ex.transition(ctx, StateLeg1Filled, "DEX leg filled", ex.clock()); err != nil {
			return err
		}
		if err := ex.transition(ctx, StateLeg2Submitting, "CEX leg confirmed from concurrent submission", ex.clock()); err != nil {
			return err
		}
		if err := ex.transition(ctx, StateLeg2Pending, "CEX leg confirmed from concurrent submission", ex.clock()); err != nil {
			return err
		}
		ctx.Leg2 = leg2Fill
		ctx.Leg2.SlippageBps = slippageBps(ctx.Signal.CexSidePrice, ctx.Leg2.AvgPrice)
		if err := ex.transition(ctx, StateLeg2Filled, "CEX leg filled", ex.clock()); err != nil {
			return err
		}
		computePnl(ctx)
		return ex.transition(ctx, StateDone, "execution complete", ex.clock())

	case leg1Err == nil && leg2Err != nil:
		ctx.Leg1 = leg1Fill
		if err := ex.transition(ctx, StateLeg1Filled, "DEX leg filled", ex.clock()); err != nil {
			return err
		}
		if err := ex.transition(ctx, StateLeg2Submitting, "CEX leg submitted concurrently", ex.clock()); err != nil {
			return err
		}
		return ex.unwindAndFinish(parent, ctx, ctx.Leg1, "concurrent CEX leg failed: "+leg2Err.Error())

	case leg1Err != nil && leg2Err == nil:
		ctx.Leg2 = leg2Fill
		return ex.unwindAndFinish(parent, ctx, ctx.Leg2, "concurrent DEX leg failed: "+leg1Err.Error())

	default:
		reason := "both legs failed: " + leg1Err.Error() + "; " + leg2Err.Error()
		_ = ex.transition(ctx, StateLeg1Failed, reason, ex.clock())
		_ = ex.transition(ctx, StateFailed, "both legs failed", ex.clock())
		return errors.New(reason)
	}
}

// unwindAndFinish reverses filled (whichever leg actually went through
// when its concurrently-submitted counterpart failed) and drives ctx to
// its terminal state.
func (ex *Executor) unwindAndFinish(parent context.Context, ctx *ExecutionContext, filled LegFill, reason string) error {
	if err := ex.transition(ctx, StateUnwinding, reason, ex.clock()); err != nil {
		return err
	}
	ex.publish(events.KindUnwindStarted, ctx)
	ex.unwind(parent, ctx, filled)
	if ctx.UnwindSuccess {
		ctx.ActualNetPnlUSD = unwindPnl(ctx, filled)
		return ex.transition(ctx, StateDone, "unwound after leg failure", ex.clock())
	}
	ctx.RequiresManualIntervention = true
	if err := ex.transition(ctx, StateFailed, "unwind failed", ex.clock()); err != nil {
		return err
	}
	return errors.New("unwind failed after " + reason)
}

func (ex *Executor) runCexFirst(parent context.Context, ctx *ExecutionContext) error {
	now := ex.clock()
	if err := ex.transition(ctx, StateLeg1Submitting, "starting CEX leg", now); err != nil {
		return err
	}
	ctx.Leg1.Venue = "cex"
	leg1Start := now

	fill, failErr := ex.runLegWithRetry(parent, ctx, false, ctx.Signal.SizeBase, ex.cfg.Leg1Timeout, ex.cfg.MaxLeg1Retries, &ctx.Leg1)
	if failErr != nil {
		_ = ex.transition(ctx, StateLeg1Failed, failErr.Error(), ex.clock())
		_ = ex.transition(ctx, StateFailed, "CEX leg failed", ex.clock())
		return failErr
	}
	ctx.Leg1 = fill
	ctx.Leg1.LatencyMs = ex.clock().Sub(leg1Start).Milliseconds()
	ctx.Leg1.SlippageBps = slippageBps(ctx.Signal.CexSidePrice, ctx.Leg1.AvgPrice)
	if err := ex.transition(ctx, StateLeg1Filled, "CEX leg filled", ex.clock()); err != nil {
		return err
	}

	return ex.runLeg2(parent, ctx, "dex", ctx.Signal.DexSidePrice, ctx.Leg1.FilledQty, ex.cfg.Leg2Timeout, ex.cfg.MaxLeg2Retries)
}

func (ex *Executor) runLeg2(parent context.Context, ctx *ExecutionContext, venue string, expectedPrice decimal.Decimal, size decimal.Decimal, timeout time.Duration, maxRetries int) error {
	now := ex.clock()
	if err := ex.transition(ctx, StateLeg2Submitting, "starting "+venue+" leg", now); err != nil {
		return err
	}
	ctx.Leg2.Venue = venue
	leg2Start := now

	isDex := venue == "dex"
	fill, failErr := ex.runLegWithRetry(parent, ctx, isDex, size, timeout, maxRetries, &ctx.Leg2)
	if failErr != nil {
		return ex.unwindAndFinish(parent, ctx, ctx.Leg1, "leg2 failed: "+failErr.Error())
	}

	ctx.Leg2 = fill
	ctx.Leg2.LatencyMs = ex.clock().Sub(leg2Start).Milliseconds()
	ctx.Leg2.SlippageBps = slippageBps(expectedPrice, ctx.Leg2.AvgPrice)
	if err := ex.transition(ctx, StateLeg2Filled, venue+" leg filled", ex.clock()); err != nil {
		return err
	}

	computePnl(ctx)
	return ex.transition(ctx, StateDone, "execution complete", ex.clock())
}

// runLegWithRetry submits one leg up to 1+maxRetries times with
// exponential backoff between attempts, mirroring this system's
// original retry wrapper. A LEG*_PENDING->LEG*_SUBMITTING self-loop
// transition records each retry in the audit trail.
func (ex *Executor) runLegWithRetry(parent context.Context, ctx *ExecutionContext, isDex bool, size decimal.Decimal, timeout time.Duration, maxRetries int, slot *LegFill) (LegFill, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		pendingState := StateLeg1Pending
		if slot == &ctx.Leg2 {
			pendingState = StateLeg2Pending
		}
		_ = ex.transition(ctx, pendingState, "awaiting fill", ex.clock())

		callCtx, cancel := context.WithTimeout(parent, timeout)
		fill, err := ex.submitLeg(callCtx, ctx.Signal, isDex, size)
		cancel()

		slot.Attempts = attempt + 1
		if err == nil {
			fill.Venue = slot.Venue
			fill.Attempts = slot.Attempts
			return fill, nil
		}
		lastErr = err

		if !isRetriable(err) {
			return LegFill{}, lastErr
		}
		if attempt < maxRetries {
			submittingState := StateLeg1Submitting
			if slot == &ctx.Leg2 {
				submittingState = StateLeg2Submitting
			}
			_ = ex.transition(ctx, submittingState, "retrying after "+err.Error(), ex.clock())
			delay := backoffDelay(ex.cfg.RetryBaseDelay, ex.cfg.RetryCapDelay, attempt)
			select {
			case <-time.After(delay):
			case <-parent.Done():
				return LegFill{}, parent.Err()
			}
		}
	}
	return LegFill{}, lastErr
}

// retryLeg is runLegWithRetry's bookkeeping-free twin: same
// submit/backoff/retry loop, but it never touches ctx.State, since the
// overlapped dex_first path runs it from two goroutines at once and
// only the calling goroutine may safely drive the state machine.
func (ex *Executor) retryLeg(parent context.Context, sig signal.Signal, isDex bool, size decimal.Decimal, timeout time.Duration, maxRetries int) (LegFill, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		callCtx, cancel := context.WithTimeout(parent, timeout)
		fill, err := ex.submitLeg(callCtx, sig, isDex, size)
		cancel()

		fill.Attempts = attempt + 1
		if err == nil {
			return fill, nil
		}
		lastErr = err

		if !isRetriable(err) {
			return LegFill{}, lastErr
		}
		if attempt < maxRetries {
			delay := backoffDelay(ex.cfg.RetryBaseDelay, ex.cfg.RetryCapDelay, attempt)
			select {
			case <-time.After(delay):
			case <-parent.Done():
				return LegFill{}, parent.Err()
			}
		}
	}
	return LegFill{}, lastErr
}

func (ex *Executor) submitLeg(ctx context.Context, sig signal.Signal, isDex bool, size decimal.Decimal) (LegFill, error) {
	if isDex {
		return ex.submitDexLeg(ctx, sig, size)
	}
	return ex.submitCexLeg(ctx, sig, size)
}

func (ex *Executor) submitCexLeg(ctx context.Context, sig signal.Signal, size decimal.Decimal) (LegFill, error) {
	side := cexadapter.SideBuy
	if sig.Direction == types.BuyDexSellCex {
		side = cexadapter.SideSell
	}
	req := cexadapter.OrderRequest{
		Symbol:     sig.Pair.VenueSymbol,
		Side:       side,
		Quantity:   size,
		LimitPrice: sig.CexSidePrice,
	}
	placed, err := ex.cex.PlaceLimitPostOnly(ctx, req)
	if err != nil {
		return LegFill{}, err
	}

	res, pollErr := ex.awaitFill(ctx, req.Symbol, placed)
	if pollErr != nil {
		ex.cancelBestEffort(req.Symbol, placed.OrderID)
		return LegFill{}, pollErr
	}
	if res.FilledQty.Div(size).LessThan(ex.cfg.MinFillRatio) {
		ex.cancelBestEffort(req.Symbol, res.OrderID)
		return LegFill{}, &types.AdapterError{Kind: types.ErrPermanent, Op: "PlaceLimitPostOnly", Err: errPartialFillBelowThreshold}
	}
	return LegFill{FilledQty: res.FilledQty, AvgPrice: res.AvgPrice, VenueOrderID: res.OrderID, FeesPaid: res.FeePaid}, nil
}

// awaitFill polls orderID until it reaches a terminal state or ctx is
// done, mirroring this system's original maker-order wait loop.
func (ex *Executor) awaitFill(ctx context.Context, symbol string, last cexadapter.OrderResult) (cexadapter.OrderResult, error) {
	if last.Status.Terminal() {
		return last, nil
	}
	ticker := time.NewTicker(ex.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return last, &types.AdapterError{Kind: types.ErrTransient, Op: "PollOrder", Err: ctx.Err()}
		case <-ticker.C:
			res, err := ex.cex.PollOrder(ctx, symbol, last.OrderID)
			if err != nil {
				return last, err
			}
			last = res
			if res.Status.Terminal() {
				return res, nil
			}
		}
	}
}

// cancelBestEffort issues a cancel for orderID and ignores its result:
// the order may already have filled or been canceled by the venue.
func (ex *Executor) cancelBestEffort(symbol, orderID string) {
	if orderID == "" {
		return
	}
	cancelCtx, cancel := context.WithTimeout(context.Background(), ex.cfg.CancelTimeout)
	defer cancel()
	_ = ex.cex.Cancel(cancelCtx, symbol, orderID)
}

func (ex *Executor) submitDexLeg(ctx context.Context, sig signal.Signal, size decimal.Decimal) (LegFill, error) {
	quoteReq := dexadapter.QuoteRequest{
		TokenIn:         sig.Pair.QuoteTokenAddress,
		TokenOut:        sig.Pair.TokenAddress,
		AmountIn:        size,
		PoolFeeTierHint: sig.Pair.PoolFeeTierHint,
	}
	quote, err := ex.dex.Quote(ctx, quoteReq)
	if err != nil {
		return LegFill{}, err
	}
	minOut := quote.AmountOut.Mul(decimal.NewFromInt(10000).Sub(ex.cfg.DexSlippageBps)).Div(decimal.NewFromInt(10000))
	res, err := ex.dex.Swap(ctx, dexadapter.SwapRequest{
		Quote:        quote,
		MinAmountOut: minOut,
		DeadlineUnix: ex.clock().Add(time.Duration(ex.cfg.DexDeadlineSeconds) * time.Second).Unix(),
	})
	if err != nil {
		return LegFill{}, err
	}
	if !res.Success {
		return LegFill{}, &types.AdapterError{Kind: types.ErrPermanent, Op: "Swap", Err: errSwapRejected}
	}
	return LegFill{FilledQty: res.AmountOut, AvgPrice: quote.EffectivePrice, TxHash: res.TxHash, FeesPaid: res.GasUsedUSD}, nil
}

// unwind reverses filled on the venue it filled on: whichever leg
// actually went through when its counterpart failed, sequential leg1
// or either leg of an overlapped dex_first execution.
func (ex *Executor) unwind(parent context.Context, ctx *ExecutionContext, filled LegFill) {
	ctx.UnwindAttempted = true
	if ex.cfg.SimulationMode {
		ctx.UnwindSuccess = true
		return
	}

	callCtx, cancel := context.WithTimeout(parent, ex.cfg.Leg1Timeout)
	defer cancel()

	if filled.Venue == "cex" {
		reverseSide := cexadapter.SideSell
		if ctx.Signal.Direction == types.BuyDexSellCex {
			reverseSide = cexadapter.SideBuy
		}
		req := cexadapter.OrderRequest{
			Symbol:     ctx.Signal.Pair.VenueSymbol,
			Side:       reverseSide,
			Quantity:   filled.FilledQty,
			LimitPrice: decimal.Zero,
		}
		placed, err := ex.cex.PlaceLimitPostOnly(callCtx, req)
		if err != nil {
			ctx.UnwindSuccess = false
			return
		}
		res, pollErr := ex.awaitFill(callCtx, req.Symbol, placed)
		if pollErr != nil {
			ex.cancelBestEffort(req.Symbol, placed.OrderID)
			ctx.UnwindSuccess = false
			return
		}
		ctx.UnwindSuccess = res.Status == cexadapter.OrderStatusFilled
		return
	}

	quote, err := ex.dex.Quote(callCtx, dexadapter.QuoteRequest{
		TokenIn:  ctx.Signal.Pair.TokenAddress,
		TokenOut: ctx.Signal.Pair.QuoteTokenAddress,
		AmountIn: filled.FilledQty,
	})
	if err != nil {
		ctx.UnwindSuccess = false
		return
	}
	res, err := ex.dex.Swap(callCtx, dexadapter.SwapRequest{
		Quote:        quote,
		MinAmountOut: decimal.Zero,
		DeadlineUnix: ex.clock().Add(ex.cfg.Leg1Timeout).Unix(),
	})
	ctx.UnwindSuccess = err == nil && res.Success
}

// computePnl derives gross P&L from whichever leg actually bought and
// whichever actually sold, independent of leg ordering: dex_first and
// cex_first must produce the same economics for the same Direction.
func computePnl(ctx *ExecutionContext) {
	buyVenue := "dex"
	if ctx.Signal.Direction == types.BuyCexSellDex {
		buyVenue = "cex"
	}

	buyPrice, sellPrice := ctx.Leg1.AvgPrice, ctx.Leg2.AvgPrice
	if ctx.Leg1.Venue != buyVenue {
		buyPrice, sellPrice = ctx.Leg2.AvgPrice, ctx.Leg1.AvgPrice
	}
	size := ctx.Leg1.FilledQty

	gross := sellPrice.Sub(buyPrice).Mul(size)

	fees := ctx.Leg1.FeesPaid.Add(ctx.Leg2.FeesPaid).Add(ctx.Signal.Fees.GasUSD).Add(ctx.Signal.Fees.BridgeAmortizedUSD)
	ctx.ActualFeesUSD = fees
	ctx.ActualNetPnlUSD = gross.Sub(fees)
}

// unwindPnl estimates the realized loss from an unwind as the fees the
// filled leg already paid plus the signal's gas cost, negated. The price
// difference between the filled leg and the reversing trade is not
// included.
func unwindPnl(ctx *ExecutionContext, filled LegFill) decimal.Decimal {
	fees := filled.FeesPaid.Add(ctx.Signal.Fees.GasUSD)
	return fees.Neg()
}

func slippageBps(expected, actual decimal.Decimal) decimal.Decimal {
	if expected.IsZero() {
		return decimal.Zero
	}
	return actual.Sub(expected).Abs().Div(expected).Mul(decimal.NewFromInt(10000))
}

func backoffDelay(base, cap time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
	}
	if d > cap {
		d = cap
	}
	return d
}

func isRetriable(err error) bool {
	if ae, ok := err.(*types.AdapterError); ok {
		return ae.Kind.Retriable()
	}
	return false
}
