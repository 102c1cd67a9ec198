// Package types holds the venue-agnostic data model shared by every
// component of the arbitrage core: trading pairs, order books, DEX
// quotes, and the adapter error taxonomy.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Direction names which venue is bought and which is sold.
type Direction string

const (
	BuyCexSellDex Direction = "BUY_CEX_SELL_DEX"
	BuyDexSellCex Direction = "BUY_DEX_SELL_CEX"
)

// RouteKind discriminates how a DexQuote was produced.
type RouteKind string

const (
	RouteAggregator RouteKind = "aggregator"
	RouteDirectPool RouteKind = "direct_pool"
)

// RouteTag identifies the concrete route a DexQuote came from.
type RouteTag struct {
	Kind        RouteKind
	PoolAddress string // set only when Kind == RouteDirectPool
	FeeTierBps  uint32 // set only when Kind == RouteDirectPool
}

func (r RouteTag) String() string {
	if r.Kind == RouteDirectPool {
		return string(r.Kind) + ":" + r.PoolAddress
	}
	return string(r.Kind)
}

// Pair is the immutable configuration for one traded instrument.
type Pair struct {
	Base, Quote       string
	VenueSymbol       string // CEX order-book symbol, e.g. "ARBUSDT"
	TokenAddress      string // on-chain address of Base
	QuoteTokenAddress string // on-chain address of Quote
	PoolFeeTierHint   uint32
	MinTradableBase   decimal.Decimal
	TierMinSpreadBps  map[uint32]decimal.Decimal // fee tier -> floor
}

// Canonical returns the pair's canonical string identity, "BASE/QUOTE".
func (p Pair) Canonical() string { return p.Base + "/" + p.Quote }

// TierMinSpread returns the minimum gross-spread floor configured for
// feeTierBps, falling back to the largest configured tier when no exact
// match exists, and to zero when no tiers are configured at all.
func (p Pair) TierMinSpread(feeTierBps uint32) decimal.Decimal {
	if v, ok := p.TierMinSpreadBps[feeTierBps]; ok {
		return v
	}
	var best decimal.Decimal
	var bestTier uint32
	var haveBest bool
	for tier, v := range p.TierMinSpreadBps {
		if !haveBest || tier > bestTier {
			best, bestTier, haveBest = v, tier, true
		}
	}
	if haveBest {
		return best
	}
	return decimal.Zero
}

// PriceLevel is one (price, size) entry of an order book.
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// OrderBook is a two-sided snapshot: Bids descending, Asks ascending.
type OrderBook struct {
	Bids, Asks []PriceLevel
	Ts         time.Time
}

// BestBid returns the top bid, or the zero level when the book is empty.
func (b OrderBook) BestBid() PriceLevel {
	if len(b.Bids) == 0 {
		return PriceLevel{}
	}
	return b.Bids[0]
}

// BestAsk returns the top ask, or the zero level when the book is empty.
func (b OrderBook) BestAsk() PriceLevel {
	if len(b.Asks) == 0 {
		return PriceLevel{}
	}
	return b.Asks[0]
}

// Valid checks the book invariants: non-crossed spread and monotonic
// prices within each side.
func (b OrderBook) Valid() bool {
	if len(b.Bids) > 0 && len(b.Asks) > 0 && b.Bids[0].Price.GreaterThanOrEqual(b.Asks[0].Price) {
		return false
	}
	for i := 1; i < len(b.Bids); i++ {
		if b.Bids[i].Price.GreaterThan(b.Bids[i-1].Price) {
			return false
		}
	}
	for i := 1; i < len(b.Asks); i++ {
		if b.Asks[i].Price.LessThan(b.Asks[i-1].Price) {
			return false
		}
	}
	return true
}

// WalkFill returns the size-weighted average fill price for buying (or
// selling) size units against this side of the book, and the size that
// was actually fillable (less than size when the book runs dry).
func WalkFill(levels []PriceLevel, size decimal.Decimal) (avgPrice decimal.Decimal, filled decimal.Decimal) {
	remaining := size
	var notional decimal.Decimal
	for _, lvl := range levels {
		if remaining.LessThanOrEqual(decimal.Zero) {
			break
		}
		take := decimal.Min(remaining, lvl.Size)
		notional = notional.Add(take.Mul(lvl.Price))
		filled = filled.Add(take)
		remaining = remaining.Sub(take)
	}
	if filled.IsZero() {
		return decimal.Zero, decimal.Zero
	}
	return notional.Div(filled), filled
}

// DexQuote is a single-sided quote produced by an aggregator or a
// direct pool evaluator.
type DexQuote struct {
	TokenIn, TokenOut  string
	AmountIn           decimal.Decimal
	AmountOut          decimal.Decimal
	GasEstimateUnits   uint64
	EffectivePrice     decimal.Decimal
	Route              RouteTag
	AggregatorFeeBps   decimal.Decimal
	FreshnessTimestamp time.Time
}

// AdapterErrorKind classifies a venue-adapter failure for retry and
// circuit-breaker purposes.
type AdapterErrorKind string

const (
	ErrTransient   AdapterErrorKind = "TRANSIENT"
	ErrRateLimited AdapterErrorKind = "RATE_LIMITED"
	ErrNetwork     AdapterErrorKind = "NETWORK"
	ErrPermanent   AdapterErrorKind = "PERMANENT"
	ErrUnknown     AdapterErrorKind = "UNKNOWN"
)

// AdapterError is the error type every venue adapter method returns on
// failure. The core never interprets the message text itself: the
// Kind has already been set by the adapter, or is left ErrUnknown for
// recovery.FailureClassifier to resolve from Err's text.
type AdapterError struct {
	Kind AdapterErrorKind
	Op   string
	Err  error
}

func (e *AdapterError) Error() string {
	if e.Err == nil {
		return e.Op + ": " + string(e.Kind)
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *AdapterError) Unwrap() error { return e.Err }

// Retriable reports whether Kind warrants a retry within a leg's retry
// budget (Transient, RateLimited, Network). Permanent and Unknown are
// not retried; recovery.FailureClassifier.IsRetriable also reports
// false for its Unknown category.
func (k AdapterErrorKind) Retriable() bool {
	switch k {
	case ErrTransient, ErrRateLimited, ErrNetwork:
		return true
	default:
		return false
	}
}
