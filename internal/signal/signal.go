// Package signal defines the immutable opportunity record produced by
// the generator, scored by the scorer, and consumed by the queue and
// executor.
package signal

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/you/arbcore/internal/types"
)

// FeeBreakdown is the fee/cost attribution carried by a Signal, used by
// both the scorer (net-of-fees spread) and post-trade P&L accounting.
type FeeBreakdown struct {
	CexFeeBps          decimal.Decimal
	DexLpFeeBps        decimal.Decimal
	AggregatorFeeBps   decimal.Decimal
	GasUSD             decimal.Decimal
	BridgeAmortizedUSD decimal.Decimal
	SlippageBufferBps  decimal.Decimal
}

// TotalFeeBps sums every basis-point component of the breakdown; the
// USD components (gas, bridge) are not bps and are applied separately
// in ExpectedNetPnlUSD.
func (f FeeBreakdown) TotalFeeBps() decimal.Decimal {
	return f.CexFeeBps.Add(f.DexLpFeeBps).Add(f.AggregatorFeeBps).Add(f.SlippageBufferBps)
}

// ScoreBreakdown is the per-component scorer output attached to a
// Signal for observability: spread, depth, inventory, history, and
// freshness.
type ScoreBreakdown struct {
	Spread    float64
	Depth     float64
	Inventory float64
	History   float64
	Freshness float64
	Final     float64
}

// RouteScore pairs a candidate route with the net score the generator
// computed for it, so the chosen route can be explained against its
// alternatives.
type RouteScore struct {
	Route types.RouteTag
	Score decimal.Decimal
}

// Signal is an immutable arbitrage opportunity. Every field is set at
// creation except Score and ScoreBreakdown, which the scorer fills in.
type Signal struct {
	ID        string
	Pair      types.Pair
	Direction types.Direction

	SizeBase  decimal.Decimal
	SizeQuote decimal.Decimal

	CexSidePrice   decimal.Decimal
	DexSidePrice   decimal.Decimal
	GrossSpreadBps decimal.Decimal

	Fees FeeBreakdown

	ExpectedNetPnlUSD decimal.Decimal
	BreakevenBps      decimal.Decimal

	ChosenRoute     types.RouteTag
	RouteAlternates []RouteScore

	Score          float64
	ScoreBreakdown ScoreBreakdown

	CreatedAt time.Time
	ExpiresAt time.Time

	Meta map[string]any
}

// New constructs a Signal, deriving its ID deterministically as a hash
// of the pair, direction, and creation instant.
func New(pair types.Pair, direction types.Direction, createdAt time.Time) Signal {
	return Signal{
		ID:        deriveID(pair, direction, createdAt),
		Pair:      pair,
		Direction: direction,
		CreatedAt: createdAt,
		Meta:      make(map[string]any),
	}
}

func deriveID(pair types.Pair, direction types.Direction, createdAt time.Time) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%d", pair.Canonical(), direction, createdAt.UnixNano())
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// AgeSeconds returns the signal's age relative to now.
func (s Signal) AgeSeconds(now time.Time) float64 {
	return now.Sub(s.CreatedAt).Seconds()
}

// TTLSeconds returns the signal's configured time-to-live.
func (s Signal) TTLSeconds() float64 {
	return s.ExpiresAt.Sub(s.CreatedAt).Seconds()
}

// Expired reports whether now is at or past ExpiresAt.
func (s Signal) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Executable reports whether the gross spread clears the pair's
// per-tier floor for the chosen route's fee tier, and the expected net
// P&L clears the configured minimum.
func (s Signal) Executable(minProfitUSD decimal.Decimal) bool {
	floor := s.Pair.TierMinSpread(s.ChosenRoute.FeeTierBps)
	if s.GrossSpreadBps.LessThan(floor) {
		return false
	}
	return s.ExpectedNetPnlUSD.GreaterThanOrEqual(minProfitUSD)
}
