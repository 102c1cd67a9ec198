// Package generator implements SignalGenerator: the gated pipeline that
// turns a live CEX order book and DEX quotes into a scored-ready Signal,
// grounded on this system's original price-dislocation detection logic.
package generator

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/you/arbcore/internal/cexadapter"
	"github.com/you/arbcore/internal/dexadapter"
	"github.com/you/arbcore/internal/inventory"
	"github.com/you/arbcore/internal/routehealth"
	"github.com/you/arbcore/internal/scorer"
	"github.com/you/arbcore/internal/signal"
	"github.com/you/arbcore/internal/types"
)

// Config holds every generator tuning knob.
type Config struct {
	MinSpreadBps        decimal.Decimal
	MinProfitUSD        decimal.Decimal
	MaxPositionUSD       decimal.Decimal
	SignalTTL            time.Duration
	Cooldown             time.Duration
	PerTierMinSpreadBps  map[uint32]decimal.Decimal
}

// FeeInputs is the per-pair fee/cost model fed into a signal's
// breakdown, grounded on this system's original FeeStructure.
type FeeInputs struct {
	CexMakerBps       decimal.Decimal
	DexLpFeeBps       decimal.Decimal
	AggregatorFeeBps  decimal.Decimal
	SlippageBufferBps decimal.Decimal
}

// BridgeCostSource supplies the amortized bridge cost the generator
// must subtract; implemented by the capital manager.
type BridgeCostSource interface {
	EffectiveBridgeCostUSD() decimal.Decimal
}

// BalancePreflight answers whether both legs of a trade are fundable;
// implemented by the inventory tracker.
type BalancePreflight interface {
	Available(venue inventory.Venue, asset string) decimal.Decimal
}

// RejectionReason names why a Signal was blocked from execution even
// though it was emitted for observability.
type RejectionReason string

const (
	RejectCooldown        RejectionReason = "cooldown"
	RejectNoSpread        RejectionReason = "no_spread_above_min"
	RejectMinProfit        RejectionReason = "below_min_profit"
	RejectInventory        RejectionReason = "inventory"
	RejectPositionLimit    RejectionReason = "position_limit"
	RejectQuoteUnavailable RejectionReason = "quote_unavailable"
)

// Generator detects arbitrage opportunities for a configured universe
// of pairs.
type Generator struct {
	cfg   Config
	cex   cexadapter.CexAdapter
	dex   []dexadapter.DexAdapter
	inv   BalancePreflight
	bridge BridgeCostSource
	routes *routehealth.Tracker

	mu           sync.Mutex
	lastSignalAt map[string]time.Time
}

// New constructs a Generator. dex may hold more than one adapter
// (aggregator plus an optional direct-pool evaluator); route selection
// picks the best net-of-penalty candidate among them.
func New(cfg Config, cex cexadapter.CexAdapter, dex []dexadapter.DexAdapter, inv BalancePreflight, bridge BridgeCostSource, routes *routehealth.Tracker) *Generator {
	return &Generator{
		cfg:          cfg,
		cex:          cex,
		dex:          dex,
		inv:          inv,
		bridge:       bridge,
		routes:       routes,
		lastSignalAt: make(map[string]time.Time),
	}
}

// Result is the outcome of one Generate call: either a signal (possibly
// carrying rejection reasons for observability) or nothing at all when
// an earlier gate drops the attempt before a Signal can be constructed.
type Result struct {
	Signal            *signal.Signal
	RejectionReasons  []RejectionReason
	Dropped           bool
	DropReason        RejectionReason
	// Depth is the order-book context this call already walked while
	// picking a direction; the orchestrator feeds it straight into the
	// scorer instead of re-fetching the book.
	Depth scorer.DepthInput
}

// Generate attempts to detect an opportunity for pair at sizeBase units
// of the base asset, at wall-clock now.
func (g *Generator) Generate(ctx context.Context, pair types.Pair, sizeBase decimal.Decimal, fees FeeInputs, nativeTokenUSD decimal.Decimal, gasPriceWei decimal.Decimal, now time.Time) Result {
	if g.inCooldown(pair, now) {
		return Result{Dropped: true, DropReason: RejectCooldown}
	}

	book, dexQuote, ok := g.fetchQuotes(ctx, pair, sizeBase)
	if !ok {
		return Result{Dropped: true, DropReason: RejectQuoteUnavailable}
	}

	direction, cexPrice, dexPrice, spreadBps, route, ok := g.pickDirection(book, dexQuote, sizeBase)
	if !ok {
		return Result{Dropped: true, DropReason: RejectNoSpread}
	}

	sizeQuote := sizeBase.Mul(cexPrice)
	gasUSD := gasUnitsToUSD(dexQuote.GasEstimateUnits, gasPriceWei, nativeTokenUSD)
	bridgeUSD := decimal.Zero
	if g.bridge != nil {
		bridgeUSD = g.bridge.EffectiveBridgeCostUSD()
	}

	breakdown := signal.FeeBreakdown{
		CexFeeBps:          fees.CexMakerBps,
		DexLpFeeBps:        fees.DexLpFeeBps,
		AggregatorFeeBps:   fees.AggregatorFeeBps,
		GasUSD:             gasUSD,
		BridgeAmortizedUSD: bridgeUSD,
		SlippageBufferBps:  fees.SlippageBufferBps,
	}
	totalFeeBps := breakdown.TotalFeeBps()
	grossPnl := spreadBps.Div(decimal.NewFromInt(10000)).Mul(sizeQuote)
	feesUSD := totalFeeBps.Div(decimal.NewFromInt(10000)).Mul(sizeQuote)
	netPnl := grossPnl.Sub(feesUSD).Sub(gasUSD).Sub(bridgeUSD)

	sig := signal.New(pair, direction, now)
	sig.SizeBase = sizeBase
	sig.SizeQuote = sizeQuote
	sig.CexSidePrice = cexPrice
	sig.DexSidePrice = dexPrice
	sig.GrossSpreadBps = spreadBps
	sig.Fees = breakdown
	sig.ExpectedNetPnlUSD = netPnl
	sig.BreakevenBps = totalFeeBps
	sig.ChosenRoute = route
	sig.ExpiresAt = now.Add(g.cfg.SignalTTL)

	var reasons []RejectionReason
	if netPnl.LessThan(g.cfg.MinProfitUSD) {
		reasons = append(reasons, RejectMinProfit)
	}
	if g.inv != nil {
		if ok, _ := g.checkInventory(pair, direction, sizeBase, cexPrice); !ok {
			reasons = append(reasons, RejectInventory)
		}
	}
	if sizeQuote.GreaterThan(g.cfg.MaxPositionUSD) {
		reasons = append(reasons, RejectPositionLimit)
	}

	g.mu.Lock()
	g.lastSignalAt[pair.Canonical()] = now
	g.mu.Unlock()

	depth := scorer.DepthInput{
		HaveDepth:    true,
		BidDepthBase: bookDepth(book.Bids),
		AskDepthBase: bookDepth(book.Asks),
		BidPrice:     book.Bids[0].Price,
		AskPrice:     book.Asks[0].Price,
	}

	return Result{Signal: &sig, RejectionReasons: reasons, Depth: depth}
}

// bookDepth sums every level's size on one side of the book, independent
// of the sizeBase a given signal is walking against.
func bookDepth(levels []types.PriceLevel) decimal.Decimal {
	total := decimal.Zero
	for _, lvl := range levels {
		total = total.Add(lvl.Size)
	}
	return total
}

func (g *Generator) inCooldown(pair types.Pair, now time.Time) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	last, ok := g.lastSignalAt[pair.Canonical()]
	if !ok {
		return false
	}
	return now.Sub(last) < g.cfg.Cooldown
}

func (g *Generator) fetchQuotes(ctx context.Context, pair types.Pair, sizeBase decimal.Decimal) (types.OrderBook, types.DexQuote, bool) {
	book, err := g.cex.OrderBook(ctx, pair.VenueSymbol)
	if err != nil || !book.Valid() || len(book.Bids) == 0 || len(book.Asks) == 0 {
		return types.OrderBook{}, types.DexQuote{}, false
	}

	best, bestErr, found := g.bestDexQuote(ctx, pair, sizeBase)
	if !found || bestErr != nil {
		return types.OrderBook{}, types.DexQuote{}, false
	}
	return book, best, true
}

// bestDexQuote asks every configured DEX adapter for a quote and keeps
// the one with the highest EffectivePrice × sizeBase after deducting the
// route's unreliability penalty (basis points of that notional),
// tie-breaking on lower GasEstimateUnits. Fees, gas cost in USD and the
// trade direction are not part of this ranking.
func (g *Generator) bestDexQuote(ctx context.Context, pair types.Pair, sizeBase decimal.Decimal) (types.DexQuote, error, bool) {
	var best types.DexQuote
	var bestScore decimal.Decimal
	var found bool
	var lastErr error

	req := dexadapter.QuoteRequest{
		TokenIn:         pair.QuoteTokenAddress,
		TokenOut:        pair.TokenAddress,
		AmountIn:        sizeBase,
		PoolFeeTierHint: pair.PoolFeeTierHint,
	}
	for _, dex := range g.dex {
		q, err := dex.Quote(ctx, req)
		if err != nil {
			lastErr = err
			continue
		}
		penalty := decimal.Zero
		if g.routes != nil {
			penalty = g.routes.UnreliabilityPenalty(q.Route)
		}
		notional := q.EffectivePrice.Mul(sizeBase)
		score := notional.Sub(notional.Mul(penalty).Div(decimal.NewFromInt(10000)))
		if !found || score.GreaterThan(bestScore) ||
			(score.Equal(bestScore) && decimal.NewFromInt(int64(q.GasEstimateUnits)).LessThan(decimal.NewFromInt(int64(best.GasEstimateUnits)))) {
			best, bestScore, found = q, score, true
		}
	}
	if !found {
		return types.DexQuote{}, lastErr, false
	}
	return best, nil, true
}

// pickDirection compares both spread directions and returns the wider
// one if it clears MinSpreadBps, mirroring this system's original
// wider-spread-wins comparison. The CEX side of each comparison uses
// the size-weighted fill price across the book, not the top-of-book
// quote, since sizeBase may run deeper than the first level.
func (g *Generator) pickDirection(book types.OrderBook, dexQuote types.DexQuote, sizeBase decimal.Decimal) (types.Direction, decimal.Decimal, decimal.Decimal, decimal.Decimal, types.RouteTag, bool) {
	cexAsk, _ := types.WalkFill(book.Asks, sizeBase)
	cexBid, _ := types.WalkFill(book.Bids, sizeBase)
	if cexAsk.IsZero() || cexBid.IsZero() {
		return "", decimal.Zero, decimal.Zero, decimal.Zero, types.RouteTag{}, false
	}

	dexSellPrice := dexQuote.EffectivePrice
	dexBuyPrice := dexQuote.EffectivePrice

	spreadA := dexSellPrice.Sub(cexAsk).Div(cexAsk).Mul(decimal.NewFromInt(10000))
	spreadB := cexBid.Sub(dexBuyPrice).Div(dexBuyPrice).Mul(decimal.NewFromInt(10000))

	if spreadA.GreaterThanOrEqual(spreadB) && spreadA.GreaterThanOrEqual(g.cfg.MinSpreadBps) {
		return types.BuyCexSellDex, cexAsk, dexSellPrice, spreadA, dexQuote.Route, true
	}
	if spreadB.GreaterThanOrEqual(g.cfg.MinSpreadBps) {
		return types.BuyDexSellCex, cexBid, dexBuyPrice, spreadB, dexQuote.Route, true
	}
	return "", decimal.Zero, decimal.Zero, decimal.Zero, types.RouteTag{}, false
}

// checkInventory pre-flights both legs' funding, mirroring this
// system's original buy/sell-asset-per-venue mapping: BUY_CEX_SELL_DEX
// spends quote on the CEX and sells base from the wallet; BUY_DEX_SELL_CEX
// is the mirror image.
func (g *Generator) checkInventory(pair types.Pair, direction types.Direction, sizeBase, cexPrice decimal.Decimal) (bool, string) {
	cost := sizeBase.Mul(cexPrice).Mul(decimal.NewFromFloat(1.01))

	var buyVenue, sellVenue inventory.Venue
	var buyAsset, sellAsset string
	var buyAmount, sellAmount decimal.Decimal

	if direction == types.BuyCexSellDex {
		buyVenue, buyAsset, buyAmount = inventory.VenueCex, pair.Quote, cost
		sellVenue, sellAsset, sellAmount = inventory.VenueWallet, pair.Base, sizeBase
	} else {
		buyVenue, buyAsset, buyAmount = inventory.VenueWallet, pair.Quote, cost
		sellVenue, sellAsset, sellAmount = inventory.VenueCex, pair.Base, sizeBase
	}

	if g.inv.Available(buyVenue, buyAsset).LessThan(buyAmount) {
		return false, "insufficient balance at buy venue"
	}
	if g.inv.Available(sellVenue, sellAsset).LessThan(sellAmount) {
		return false, "insufficient balance at sell venue"
	}
	return true, ""
}

func gasUnitsToUSD(units uint64, gasPriceWei, nativeUSD decimal.Decimal) decimal.Decimal {
	const weiPerEther = "1000000000000000000"
	ether := decimal.NewFromInt(int64(units)).Mul(gasPriceWei).Div(decimal.RequireFromString(weiPerEther))
	return ether.Mul(nativeUSD)
}
