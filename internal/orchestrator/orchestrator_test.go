package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/you/arbcore/internal/capital"
	"github.com/you/arbcore/internal/cexadapter"
	"github.com/you/arbcore/internal/dexadapter"
	"github.com/you/arbcore/internal/executor"
	"github.com/you/arbcore/internal/generator"
	"github.com/you/arbcore/internal/inventory"
	"github.com/you/arbcore/internal/queue"
	"github.com/you/arbcore/internal/recovery"
	"github.com/you/arbcore/internal/scorer"
	"github.com/you/arbcore/internal/signal"
	"github.com/you/arbcore/internal/types"
)

func od(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type stubCex struct {
	book types.OrderBook
	// placeErr, when set, is returned by PlaceLimitPostOnly instead of a
	// filled order, so a test can simulate a leg that never fills.
	placeErr error
}

func (s *stubCex) OrderBook(ctx context.Context, symbol string) (types.OrderBook, error) {
	return s.book, nil
}

func (s *stubCex) PlaceLimitPostOnly(ctx context.Context, req cexadapter.OrderRequest) (cexadapter.OrderResult, error) {
	if s.placeErr != nil {
		return cexadapter.OrderResult{}, s.placeErr
	}
	return cexadapter.OrderResult{
		OrderID: "o1", Status: cexadapter.OrderStatusFilled, FilledQty: req.Quantity, AvgPrice: req.LimitPrice,
	}, nil
}

func (s *stubCex) PollOrder(ctx context.Context, symbol, orderID string) (cexadapter.OrderResult, error) {
	return cexadapter.OrderResult{OrderID: orderID, Status: cexadapter.OrderStatusFilled}, nil
}

func (s *stubCex) Cancel(ctx context.Context, symbol, orderID string) error { return nil }

func (s *stubCex) MakerFeeBps(symbol string) decimal.Decimal { return od("10") }

func (s *stubCex) FetchBalances(ctx context.Context) (map[string]decimal.Decimal, error) {
	return nil, nil
}

type stubDex struct {
	out decimal.Decimal
}

func (s *stubDex) Quote(ctx context.Context, req dexadapter.QuoteRequest) (types.DexQuote, error) {
	return types.DexQuote{
		TokenIn: req.TokenIn, TokenOut: req.TokenOut, AmountIn: req.AmountIn,
		AmountOut: s.out, EffectivePrice: s.out.Div(req.AmountIn), GasEstimateUnits: 100000,
	}, nil
}

func (s *stubDex) Swap(ctx context.Context, req dexadapter.SwapRequest) (dexadapter.SwapResult, error) {
	return dexadapter.SwapResult{TxHash: "0x1", AmountOut: req.Quote.AmountOut, Success: true, GasUsedUSD: od("0.1")}, nil
}

func (s *stubDex) NativeTokenUSD(ctx context.Context) (decimal.Decimal, error) { return od("3000"), nil }

func testPair() types.Pair {
	return types.Pair{
		Base: "ARB", Quote: "USDT",
		VenueSymbol:       "ARBUSDT",
		TokenAddress:      "0xtoken",
		QuoteTokenAddress: "0xquote",
		MinTradableBase:   od("1"),
	}
}

func testConfig() Config {
	return Config{
		Generator: generator.Config{
			MinSpreadBps:   od("10"),
			MinProfitUSD:   od("0"),
			MaxPositionUSD: od("10000"),
			SignalTTL:      10 * time.Second,
			Cooldown:       time.Millisecond,
		},
		Scorer: scorer.DefaultConfig(),
		Queue:  queue.Config{MaxDepth: 50, MaxPerPair: 5, MinScore: 0},
		Executor: executor.Config{
			LegOrder: executor.DexFirst, MaxLeg1Retries: 1, MaxLeg2Retries: 1,
			RetryBaseDelay: time.Millisecond, RetryCapDelay: 5 * time.Millisecond,
			Leg1Timeout: time.Second, Leg2Timeout: time.Second,
			MinFillRatio: od("0.8"), SimulationMode: true,
			DexSlippageBps: od("100"), DexDeadlineSeconds: 30,
		},
		Recovery:                recovery.DefaultConfig(),
		Capital:                 capital.DefaultConfig(),
		MaxConcurrentExecutions: 2,
		QuoteAsset:              "USDT",
	}
}

// Scenario A/B from the acceptance walkthrough: a wide, clean spread
// generates a signal, it clears the queue and every admission gate,
// and the execution finishes DONE with a positive realized P&L.
func TestOrchestrator_Tick_GeneratesAndExecutesProfitableSignal(t *testing.T) {
	cex := &stubCex{book: types.OrderBook{
		Bids: []types.PriceLevel{{Price: od("1.10"), Size: od("1000")}},
		Asks: []types.PriceLevel{{Price: od("1.11"), Size: od("1000")}},
		Ts:   time.Now(),
	}}
	dex := &stubDex{out: od("10")} // effective price 1.00 vs cex bid 1.10: wide spread

	o := New(testConfig(), cex, []dexadapter.DexAdapter{dex}, nil)
	// Fund both legs of BUY_DEX_SELL_CEX: quote in the wallet, base on the CEX.
	o.Inventory().Set(inventory.VenueWallet, "USDT", inventory.Balance{Free: od("1000")})
	o.Inventory().Set(inventory.VenueCex, "ARB", inventory.Balance{Free: od("1000")})

	// A 10-unit clip (~$11) stays under the $25 absolute trade limit, and
	// 0.3 gwei keeps gas (~$0.09) below the ~$1.10 gross edge.
	universe := []PairUniverse{{
		Pair:           testPair(),
		SizeBase:       od("10"),
		GasPriceWei:    od("300000000"),
		NativeTokenUSD: od("3000"),
	}}

	generated, executed := o.Tick(context.Background(), universe, time.Now())

	require.GreaterOrEqual(t, generated, 1)
	require.GreaterOrEqual(t, executed, 1)

	outcomes := o.rec.RecentOutcomes(1)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Success)
	assert.True(t, outcomes[0].PnlUSD.IsPositive())
}

// buildSignal constructs an admittable signal with exact, test-chosen
// prices so computePnl's result is deterministic instead of whatever
// the generator's own direction/size search would have picked.
func buildSignal(pair types.Pair, sizeBase, dexPrice, cexPrice decimal.Decimal, createdAt time.Time) signal.Signal {
	sig := signal.New(pair, types.BuyDexSellCex, createdAt)
	sig.SizeBase = sizeBase
	sig.SizeQuote = sizeBase.Mul(dexPrice)
	sig.DexSidePrice = dexPrice
	sig.CexSidePrice = cexPrice
	return sig
}

// Scenario B, executable. DEX buy at 1.00, CEX sell at 1.022 on a
// 10-unit clip: gross spread 0.22 USD, the only fee is the DEX leg's
// fixed $0.10 gas stub, netting 0.12 USD inside the spec's [0.10,0.15]
// target band.
func TestOrchestrator_Admit_ExecutableSignalNetsWithinTargetBand(t *testing.T) {
	cex := &stubCex{}
	dex := &stubDex{out: od("10")}
	o := New(testConfig(), cex, []dexadapter.DexAdapter{dex}, nil)

	now := time.Now()
	sig := buildSignal(testPair(), od("10"), od("1.00"), od("1.022"), now)

	require.True(t, o.admit(sig, now))
	o.runOne(context.Background(), sig, now)

	outcomes := o.rec.RecentOutcomes(1)
	require.Len(t, outcomes, 1)
	assert.True(t, outcomes[0].Success)
	assert.True(t, outcomes[0].PnlUSD.GreaterThanOrEqual(od("0.10")))
	assert.True(t, outcomes[0].PnlUSD.LessThanOrEqual(od("0.15")))
}

// Scenario C: leg2 never fills, DEX leg unwinds, breaker records a
// failure despite the execution reaching DONE.
func TestOrchestrator_Admit_Leg2NeverFillsUnwindsAndRecordsFailure(t *testing.T) {
	cex := &stubCex{placeErr: &types.AdapterError{Kind: types.ErrPermanent, Op: "PlaceLimitPostOnly"}}
	dex := &stubDex{out: od("10")}
	o := New(testConfig(), cex, []dexadapter.DexAdapter{dex}, nil)

	now := time.Now()
	sig := buildSignal(testPair(), od("10"), od("1.00"), od("1.022"), now)

	require.True(t, o.admit(sig, now))
	o.runOne(context.Background(), sig, now)

	outcomes := o.rec.RecentOutcomes(1)
	require.Len(t, outcomes, 1)
	assert.False(t, outcomes[0].Success)
	assert.True(t, outcomes[0].PnlUSD.IsNegative())

	snapshot, _, _ := o.rec.Breaker.Snapshot("")
	assert.Equal(t, 1, snapshot.FailuresInWindow)
}

// Scenario D: three consecutive unwinds within the configured window
// trip the breaker CLOSED->OPEN; admission is refused during cooldown,
// then a single HALF_OPEN trial is admitted and its success resets the
// breaker to CLOSED.
func TestOrchestrator_Breaker_TripsOnThreeFailuresThenRecoversViaHalfOpen(t *testing.T) {
	cex := &stubCex{placeErr: &types.AdapterError{Kind: types.ErrPermanent, Op: "PlaceLimitPostOnly"}}
	dex := &stubDex{out: od("10")}

	cfg := testConfig()
	cfg.Recovery = recovery.Config{
		Breaker: recovery.BreakerConfig{
			FailureThreshold: 3,
			WindowSeconds:    60 * time.Second,
			MaxDrawdownUSD:   od("1000"),
			CooldownSeconds:  150 * time.Millisecond,
			HalfOpenAfterPct: 0.8,
			SuccessDecay:     1,
			PerPair:          true,
		},
		Replay: recovery.DefaultReplayConfig(),
	}
	o := New(cfg, cex, []dexadapter.DexAdapter{dex}, nil)

	pair := testPair()
	now := time.Now()

	for i := 0; i < 3; i++ {
		sig := buildSignal(pair, od("10"), od("1.00"), od("1.022"), now.Add(time.Duration(i)*time.Millisecond))
		require.True(t, o.admit(sig, now), "attempt %d should still be admitted", i)
		o.runOne(context.Background(), sig, now)
	}
	assert.Equal(t, recovery.BreakerOpen, o.rec.Breaker.Mode(pair.Canonical()))

	blocked := buildSignal(pair, od("10"), od("1.00"), od("1.022"), now.Add(10*time.Millisecond))
	assert.False(t, o.admit(blocked, now))

	time.Sleep(135 * time.Millisecond) // land inside [halfOpenAt, cooldown) of the 150ms window
	require.Equal(t, recovery.BreakerHalfOpen, o.rec.Breaker.Mode(pair.Canonical()))

	cex.placeErr = nil // the probe trial now succeeds
	trial := buildSignal(pair, od("10"), od("1.00"), od("1.022"), time.Now())
	require.True(t, o.admit(trial, time.Now()))
	o.runOne(context.Background(), trial, time.Now())

	assert.Equal(t, recovery.BreakerClosed, o.rec.Breaker.Mode(pair.Canonical()))
}

// Scenario E: resubmitting an identical signal_id after it already
// reached DONE is rejected by replay protection, with no re-execution.
func TestOrchestrator_Admit_DuplicateSignalIDRejectedAfterExecution(t *testing.T) {
	cex := &stubCex{}
	dex := &stubDex{out: od("10")}
	o := New(testConfig(), cex, []dexadapter.DexAdapter{dex}, nil)

	now := time.Now()
	sig := buildSignal(testPair(), od("10"), od("1.00"), od("1.022"), now)

	require.True(t, o.admit(sig, now))
	o.runOne(context.Background(), sig, now)
	require.Len(t, o.rec.RecentOutcomes(10), 1)

	resubmitted := sig
	assert.False(t, o.admit(resubmitted, now.Add(time.Millisecond)))
	assert.Len(t, o.rec.RecentOutcomes(10), 1, "the duplicate must never reach execution")
}

// Scenario F: a signal sized above the absolute, non-configurable
// max-trade limit is denied at the safety gate regardless of how
// healthy the breaker and replay guard are.
func TestOrchestrator_Admit_OversizedTradeBlockedBySafetyGate(t *testing.T) {
	cex := &stubCex{}
	dex := &stubDex{out: od("10")}
	o := New(testConfig(), cex, []dexadapter.DexAdapter{dex}, nil)

	now := time.Now()
	sig := buildSignal(testPair(), od("10"), od("1.00"), od("1.022"), now)
	sig.SizeQuote = od("30") // exceeds recovery.AbsoluteMaxTradeUSD ($25)

	assert.False(t, o.admit(sig, now))
	assert.Empty(t, o.rec.RecentOutcomes(10))
}
