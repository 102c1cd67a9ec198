// Package simfeed provides deterministic paper-trading CexAdapter and
// DexAdapter implementations for dry-run operation, grounded on this
// system's original marketdata runner's ticker-driven
// BestBidAsk/quote polling, replacing real venue network calls with a
// seeded synthetic book a dry-run deployment logs instead of executing
// against.
package simfeed

import (
	"context"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"github.com/you/arbcore/internal/cexadapter"
	"github.com/you/arbcore/internal/dexadapter"
	"github.com/you/arbcore/internal/types"
)

// Config seeds the synthetic book every pair gets simulated against.
type Config struct {
	MidPrice       decimal.Decimal
	SpreadBps      decimal.Decimal
	DexEffectiveBp decimal.Decimal // dex effective price, expressed as bps off MidPrice
	JitterBps      int64           // random walk magnitude applied to Mid each call
	DepthBase      decimal.Decimal
	MakerFeeBps    decimal.Decimal
	GasUnits       uint64
	NativeUSD      decimal.Decimal
	Seed           int64
	// Balances seeds the account this adapter's FetchBalances reports,
	// keyed by asset symbol.
	Balances map[string]decimal.Decimal
}

// DefaultConfig returns a mild, mildly-profitable synthetic book
// useful for smoke-testing the orchestrator end to end without a real
// venue connection.
func DefaultConfig() Config {
	return Config{
		MidPrice:       decimal.RequireFromString("1.00"),
		SpreadBps:      decimal.RequireFromString("5"),
		DexEffectiveBp: decimal.RequireFromString("-40"),
		JitterBps:      10,
		DepthBase:      decimal.RequireFromString("5000"),
		MakerFeeBps:    decimal.RequireFromString("10"),
		GasUnits:       120000,
		NativeUSD:      decimal.RequireFromString("3000"),
		Seed:           1,
	}
}

// Cex is a synthetic CexAdapter walking MidPrice by a bounded random
// jitter on every OrderBook call.
type Cex struct {
	cfg  Config
	rnd  *rand.Rand
	mid  decimal.Decimal
}

// NewCex constructs a Cex seeded from cfg.
func NewCex(cfg Config) *Cex {
	return &Cex{cfg: cfg, rnd: rand.New(rand.NewSource(cfg.Seed)), mid: cfg.MidPrice}
}

// OrderBook returns a synthetic two-level book centered on the current
// walked mid price, spread SpreadBps wide.
func (c *Cex) OrderBook(ctx context.Context, symbol string) (types.OrderBook, error) {
	c.walk()
	half := c.cfg.SpreadBps.Div(decimal.NewFromInt(2)).Div(decimal.NewFromInt(10000))
	bid := c.mid.Sub(c.mid.Mul(half))
	ask := c.mid.Add(c.mid.Mul(half))
	now := time.Now()
	return types.OrderBook{
		Bids: []types.PriceLevel{{Price: bid, Size: c.cfg.DepthBase}},
		Asks: []types.PriceLevel{{Price: ask, Size: c.cfg.DepthBase}},
		Ts:   now,
	}, nil
}

// PlaceLimitPostOnly fills req in full at its limit price; real
// maker-order resting behavior belongs to a real venue integration,
// out of scope here.
func (c *Cex) PlaceLimitPostOnly(ctx context.Context, req cexadapter.OrderRequest) (cexadapter.OrderResult, error) {
	fee := req.Quantity.Mul(req.LimitPrice).Mul(c.cfg.MakerFeeBps).Div(decimal.NewFromInt(10000))
	return cexadapter.OrderResult{
		OrderID:   "sim-" + symbolStamp(),
		Status:    cexadapter.OrderStatusFilled,
		FilledQty: req.Quantity,
		AvgPrice:  req.LimitPrice,
		FeePaid:   fee,
	}, nil
}

// PollOrder always reports filled: this synthetic adapter fills every
// order synchronously inside PlaceLimitPostOnly.
func (c *Cex) PollOrder(ctx context.Context, symbol, orderID string) (cexadapter.OrderResult, error) {
	return cexadapter.OrderResult{OrderID: orderID, Status: cexadapter.OrderStatusFilled}, nil
}

// Cancel is a no-op: every order this adapter places is already
// filled by the time a caller could cancel it.
func (c *Cex) Cancel(ctx context.Context, symbol, orderID string) error { return nil }

// MakerFeeBps returns the configured synthetic fee for every symbol.
func (c *Cex) MakerFeeBps(symbol string) decimal.Decimal { return c.cfg.MakerFeeBps }

// FetchBalances returns a copy of the account balances seeded in Config;
// a real venue integration would hit its account-balance endpoint here.
func (c *Cex) FetchBalances(ctx context.Context) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal, len(c.cfg.Balances))
	for asset, amount := range c.cfg.Balances {
		out[asset] = amount
	}
	return out, nil
}

func (c *Cex) walk() {
	jitter := decimal.NewFromInt(c.rnd.Int63n(2*c.cfg.JitterBps+1) - c.cfg.JitterBps)
	delta := c.mid.Mul(jitter).Div(decimal.NewFromInt(10000))
	c.mid = c.mid.Add(delta)
	if c.mid.IsNegative() || c.mid.IsZero() {
		c.mid = c.cfg.MidPrice
	}
}

// Dex is a synthetic DexAdapter quoting at a fixed offset from the Cex
// mid price, simulating a persistent cross-venue spread.
type Dex struct {
	cfg Config
	cex *Cex
}

// NewDex constructs a Dex that reads its reference price off cex so
// the simulated spread tracks the same random walk.
func NewDex(cfg Config, cex *Cex) *Dex {
	return &Dex{cfg: cfg, cex: cex}
}

// Quote returns AmountOut priced at the configured effective-price
// offset from the shared walked mid.
func (d *Dex) Quote(ctx context.Context, req dexadapter.QuoteRequest) (types.DexQuote, error) {
	offset := decimal.NewFromInt(1).Add(d.cfg.DexEffectiveBp.Div(decimal.NewFromInt(10000)))
	price := d.cex.mid.Mul(offset)
	out := req.AmountIn.Mul(price)
	return types.DexQuote{
		TokenIn: req.TokenIn, TokenOut: req.TokenOut,
		AmountIn: req.AmountIn, AmountOut: out,
		GasEstimateUnits:   d.cfg.GasUnits,
		EffectivePrice:     price,
		Route:              types.RouteTag{Kind: types.RouteAggregator},
		FreshnessTimestamp: time.Now(),
	}, nil
}

// Swap always succeeds at the quoted amount; real transaction
// submission belongs to a real chain integration, out of scope here.
func (d *Dex) Swap(ctx context.Context, req dexadapter.SwapRequest) (dexadapter.SwapResult, error) {
	gasUSD := decimal.NewFromInt(int64(req.Quote.GasEstimateUnits)).
		Mul(decimal.RequireFromString("0.00000003")).
		Mul(d.cfg.NativeUSD)
	return dexadapter.SwapResult{
		TxHash:     "0xsim" + symbolStamp(),
		AmountOut:  req.Quote.AmountOut,
		GasUsedUSD: gasUSD,
		Success:    true,
	}, nil
}

// NativeTokenUSD returns the configured synthetic gas-token price.
func (d *Dex) NativeTokenUSD(ctx context.Context) (decimal.Decimal, error) {
	return d.cfg.NativeUSD, nil
}

var stampCounter int64

func symbolStamp() string {
	stampCounter++
	return decimal.NewFromInt(stampCounter).String()
}
