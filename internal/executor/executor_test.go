package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/you/arbcore/internal/cexadapter"
	"github.com/you/arbcore/internal/dexadapter"
	"github.com/you/arbcore/internal/signal"
	"github.com/you/arbcore/internal/types"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testPair() types.Pair {
	return types.Pair{
		Base: "ARB", Quote: "USDT",
		VenueSymbol:       "ARBUSDT",
		TokenAddress:      "0xtoken",
		QuoteTokenAddress: "0xquote",
	}
}

func testSignal() signal.Signal {
	sig := signal.New(testPair(), types.BuyDexSellCex, time.Unix(1000, 0))
	sig.SizeBase = d("100")
	sig.CexSidePrice = d("1.05")
	sig.DexSidePrice = d("1.00")
	sig.ExpiresAt = time.Unix(1030, 0)
	return sig
}

// fakeCex is a deterministic in-memory CexAdapter. failTimes counts down
// transient failures before the next PlaceLimitPostOnly call succeeds.
// neverFills keeps every order OPEN, forcing callers to hit their
// deadline and cancel rather than observing a fill.
type fakeCex struct {
	mu             sync.Mutex
	failTimes      int
	failKind       types.AdapterErrorKind
	fillPrice      decimal.Decimal
	fillQty        decimal.Decimal
	calls          int
	failAfterCalls int // once calls exceeds this, every subsequent call fails permanently
	neverFills     bool
	canceled       []string
	placeDelay     time.Duration
}

func (f *fakeCex) OrderBook(ctx context.Context, symbol string) (types.OrderBook, error) {
	return types.OrderBook{}, nil
}

func (f *fakeCex) PlaceLimitPostOnly(ctx context.Context, req cexadapter.OrderRequest) (cexadapter.OrderResult, error) {
	f.mu.Lock()
	f.calls++
	delay := f.placeDelay
	f.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return cexadapter.OrderResult{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTimes > 0 {
		f.failTimes--
		return cexadapter.OrderResult{}, &types.AdapterError{Kind: f.failKind, Op: "PlaceLimitPostOnly"}
	}
	if f.failAfterCalls > 0 && f.calls > f.failAfterCalls {
		return cexadapter.OrderResult{}, &types.AdapterError{Kind: types.ErrPermanent, Op: "PlaceLimitPostOnly"}
	}
	if f.neverFills {
		return cexadapter.OrderResult{OrderID: "cex-1", Status: cexadapter.OrderStatusOpen}, nil
	}
	qty := f.fillQty
	if qty.IsZero() {
		qty = req.Quantity
	}
	return cexadapter.OrderResult{
		OrderID: "cex-1", Status: cexadapter.OrderStatusFilled, FilledQty: qty, AvgPrice: f.fillPrice,
		FeePaid: d("0.01"),
	}, nil
}

func (f *fakeCex) PollOrder(ctx context.Context, symbol, orderID string) (cexadapter.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.neverFills {
		return cexadapter.OrderResult{OrderID: orderID, Status: cexadapter.OrderStatusOpen}, nil
	}
	return cexadapter.OrderResult{OrderID: orderID, Status: cexadapter.OrderStatusFilled}, nil
}

func (f *fakeCex) Cancel(ctx context.Context, symbol, orderID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, orderID)
	return nil
}

func (f *fakeCex) MakerFeeBps(symbol string) decimal.Decimal { return d("10") }

func (f *fakeCex) FetchBalances(ctx context.Context) (map[string]decimal.Decimal, error) {
	return nil, nil
}

// fakeDex is a deterministic in-memory DexAdapter.
type fakeDex struct {
	mu          sync.Mutex
	quoteErr    error
	swapErr     error
	swapSuccess bool
	amountOut   decimal.Decimal
	calls       int
	failTimes   int
	failKind    types.AdapterErrorKind
	swapDelay   time.Duration
}

func (f *fakeDex) Quote(ctx context.Context, req dexadapter.QuoteRequest) (types.DexQuote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.quoteErr != nil {
		return types.DexQuote{}, f.quoteErr
	}
	out := f.amountOut
	if out.IsZero() {
		out = req.AmountIn
	}
	return types.DexQuote{
		TokenIn: req.TokenIn, TokenOut: req.TokenOut, AmountIn: req.AmountIn,
		AmountOut: out, EffectivePrice: d("1.00"),
	}, nil
}

func (f *fakeDex) Swap(ctx context.Context, req dexadapter.SwapRequest) (dexadapter.SwapResult, error) {
	f.mu.Lock()
	f.calls++
	failTimes := f.failTimes
	if failTimes > 0 {
		f.failTimes--
	}
	delay := f.swapDelay
	failKind := f.failKind
	swapErr := f.swapErr
	swapSuccess := f.swapSuccess
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return dexadapter.SwapResult{}, ctx.Err()
		}
	}

	if failTimes > 0 {
		return dexadapter.SwapResult{}, &types.AdapterError{Kind: failKind, Op: "Swap"}
	}
	if swapErr != nil {
		return dexadapter.SwapResult{}, swapErr
	}
	return dexadapter.SwapResult{
		TxHash: "0xabc", AmountOut: req.Quote.AmountOut, Success: swapSuccess, GasUsedUSD: d("0.20"),
	}, nil
}

func (f *fakeDex) NativeTokenUSD(ctx context.Context) (decimal.Decimal, error) {
	return d("3000"), nil
}

func fastExecutorConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryBaseDelay = time.Millisecond
	cfg.RetryCapDelay = 5 * time.Millisecond
	cfg.Leg1Timeout = time.Second
	cfg.Leg2Timeout = time.Second
	cfg.PollInterval = time.Millisecond
	cfg.CancelTimeout = time.Second
	cfg.SimulationMode = true
	return cfg
}

func TestExecute_HappyPath_DexFirst(t *testing.T) {
	cex := &fakeCex{fillPrice: d("1.05")}
	dex := &fakeDex{swapSuccess: true}
	ex := New(fastExecutorConfig(), cex, dex, nil)

	ctx := ex.Execute(context.Background(), testSignal())

	require.Equal(t, StateDone, ctx.State)
	assert.Equal(t, "", ctx.Error)
	assert.Equal(t, "dex", ctx.Leg1.Venue)
	assert.Equal(t, "cex", ctx.Leg2.Venue)
	assert.False(t, ctx.UnwindAttempted)
	assert.True(t, ctx.ActualNetPnlUSD.GreaterThan(decimal.Zero), "expected positive net pnl, got %s", ctx.ActualNetPnlUSD)
}

func TestExecute_HappyPath_CexFirst(t *testing.T) {
	cfg := fastExecutorConfig()
	cfg.LegOrder = CexFirst
	cex := &fakeCex{fillPrice: d("1.05")}
	dex := &fakeDex{swapSuccess: true}
	ex := New(cfg, cex, dex, nil)

	ctx := ex.Execute(context.Background(), testSignal())

	require.Equal(t, StateDone, ctx.State)
	assert.Equal(t, "cex", ctx.Leg1.Venue)
	assert.Equal(t, "dex", ctx.Leg2.Venue)
}

func TestExecute_DexFirst_Leg1UsesLeg1RetryBudgetNotLeg2(t *testing.T) {
	cfg := fastExecutorConfig()
	cfg.MaxLeg1Retries = 3
	cfg.MaxLeg2Retries = 0
	cex := &fakeCex{fillPrice: d("1.05")}
	dex := &fakeDex{swapSuccess: true, failTimes: 2, failKind: types.ErrTransient}
	ex := New(cfg, cex, dex, nil)

	ctx := ex.Execute(context.Background(), testSignal())

	require.Equal(t, StateDone, ctx.State)
	assert.Equal(t, "dex", ctx.Leg1.Venue)
	assert.Equal(t, 3, ctx.Leg1.Attempts)
	assert.Equal(t, 3, dex.calls)
}

func TestExecute_Leg1RetriesThenSucceeds(t *testing.T) {
	cfg := fastExecutorConfig()
	cfg.LegOrder = CexFirst
	cex := &fakeCex{fillPrice: d("1.05"), failTimes: 1, failKind: types.ErrTransient}
	dex := &fakeDex{swapSuccess: true}
	ex := New(cfg, cex, dex, nil)

	ctx := ex.Execute(context.Background(), testSignal())

	require.Equal(t, StateDone, ctx.State)
	assert.Equal(t, 2, ctx.Leg1.Attempts)
	assert.Equal(t, 2, cex.calls)
}

func TestExecute_Leg1PermanentFailure_NeverStartsLeg2(t *testing.T) {
	cfg := fastExecutorConfig()
	cfg.LegOrder = CexFirst
	cex := &fakeCex{failTimes: 1, failKind: types.ErrPermanent}
	dex := &fakeDex{swapSuccess: true}
	ex := New(cfg, cex, dex, nil)

	ctx := ex.Execute(context.Background(), testSignal())

	require.Equal(t, StateFailed, ctx.State)
	assert.Equal(t, LegFill{}, ctx.Leg2)
	assert.NotEmpty(t, ctx.Error)
}

func TestExecute_Leg2Fails_UnwindsInSimulationMode(t *testing.T) {
	cex := &fakeCex{fillPrice: d("1.05")}
	dex := &fakeDex{swapSuccess: false}

	// cex_first so leg1 (cex) succeeds and leg2 (dex) is the one that
	// fails and triggers the unwind.
	cfg := fastExecutorConfig()
	cfg.LegOrder = CexFirst
	ex := New(cfg, cex, dex, nil)

	ctx := ex.Execute(context.Background(), testSignal())

	require.Equal(t, StateDone, ctx.State)
	assert.True(t, ctx.UnwindAttempted)
	assert.True(t, ctx.UnwindSuccess)
	assert.True(t, ctx.ActualNetPnlUSD.LessThanOrEqual(decimal.Zero))
}

func TestExecute_Leg2Fails_UnwindFailsOutsideSimulation(t *testing.T) {
	cfg := fastExecutorConfig()
	cfg.SimulationMode = false
	cfg.LegOrder = CexFirst
	cex := &fakeCex{fillPrice: d("1.05"), failAfterCalls: 1}
	dex := &fakeDex{swapSuccess: false}
	ex := New(cfg, cex, dex, nil)

	ctx := ex.Execute(context.Background(), testSignal())

	require.Equal(t, StateFailed, ctx.State)
	assert.True(t, ctx.RequiresManualIntervention)
}

func TestExecute_CexLegTimeout_IssuesBestEffortCancel(t *testing.T) {
	cfg := fastExecutorConfig()
	cfg.LegOrder = CexFirst
	cfg.Leg1Timeout = 10 * time.Millisecond
	cex := &fakeCex{neverFills: true}
	dex := &fakeDex{swapSuccess: true}
	ex := New(cfg, cex, dex, nil)

	ctx := ex.Execute(context.Background(), testSignal())

	require.Equal(t, StateFailed, ctx.State)
	assert.Contains(t, cex.canceled, "cex-1")
}

func TestTransition_InvalidEdgeIsFatal(t *testing.T) {
	ctx := NewContext(testSignal(), time.Now())
	err := ctx.Transition(StateDone, "skip ahead", time.Now())
	require.Error(t, err)
	var invalidErr *InvalidTransitionError
	assert.ErrorAs(t, err, &invalidErr)
	assert.Equal(t, StateIdle, ctx.State)
}

func TestBackoffDelay_CapsAtConfiguredMax(t *testing.T) {
	base := 100 * time.Millisecond
	cap := 500 * time.Millisecond
	assert.Equal(t, base, backoffDelay(base, cap, 0))
	assert.Equal(t, 200*time.Millisecond, backoffDelay(base, cap, 1))
	assert.Equal(t, cap, backoffDelay(base, cap, 10))
}

func TestSlippageBps_ZeroExpectedIsZero(t *testing.T) {
	assert.True(t, slippageBps(decimal.Zero, d("1.0")).IsZero())
}

func TestExecute_DexFirst_LegsOverlapRatherThanSequence(t *testing.T) {
	cfg := fastExecutorConfig()
	legDelay := 60 * time.Millisecond
	cex := &fakeCex{fillPrice: d("1.05"), placeDelay: legDelay}
	dex := &fakeDex{swapSuccess: true, swapDelay: legDelay}
	ex := New(cfg, cex, dex, nil)

	start := time.Now()
	ctx := ex.Execute(context.Background(), testSignal())
	elapsed := time.Since(start)

	require.Equal(t, StateDone, ctx.State)
	// Run sequentially the two delays would stack to ~120ms; submitted
	// concurrently, elapsed tracks the slower leg alone.
	assert.Less(t, elapsed, legDelay+40*time.Millisecond)
}

func TestExecute_DexFirst_Leg1FailsLeg2Fills_UnwindsLeg2(t *testing.T) {
	cfg := fastExecutorConfig()
	cex := &fakeCex{fillPrice: d("1.05")}
	dex := &fakeDex{failTimes: 1, failKind: types.ErrPermanent}
	ex := New(cfg, cex, dex, nil)

	ctx := ex.Execute(context.Background(), testSignal())

	require.Equal(t, StateDone, ctx.State)
	assert.True(t, ctx.UnwindAttempted)
	assert.True(t, ctx.UnwindSuccess)
	assert.Equal(t, "cex", ctx.Leg2.Venue)
	assert.True(t, ctx.ActualNetPnlUSD.LessThanOrEqual(decimal.Zero))
}

func TestExecute_DexFirst_Leg2FailsLeg1Fills_UnwindsLeg1(t *testing.T) {
	cfg := fastExecutorConfig()
	cex := &fakeCex{failTimes: 1, failKind: types.ErrPermanent}
	dex := &fakeDex{swapSuccess: true}
	ex := New(cfg, cex, dex, nil)

	ctx := ex.Execute(context.Background(), testSignal())

	require.Equal(t, StateDone, ctx.State)
	assert.True(t, ctx.UnwindAttempted)
	assert.True(t, ctx.UnwindSuccess)
	assert.Equal(t, "dex", ctx.Leg1.Venue)
	assert.True(t, ctx.ActualNetPnlUSD.LessThanOrEqual(decimal.Zero))
}

func TestExecute_DexFirst_BothLegsFail_FailsWithoutUnwind(t *testing.T) {
	cfg := fastExecutorConfig()
	cex := &fakeCex{failTimes: 1, failKind: types.ErrPermanent}
	dex := &fakeDex{failTimes: 1, failKind: types.ErrPermanent}
	ex := New(cfg, cex, dex, nil)

	ctx := ex.Execute(context.Background(), testSignal())

	require.Equal(t, StateFailed, ctx.State)
	assert.False(t, ctx.UnwindAttempted)
	assert.NotEmpty(t, ctx.Error)
}
