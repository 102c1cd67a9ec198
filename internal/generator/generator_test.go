package generator

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/you/arbcore/internal/cexadapter"
	"github.com/you/arbcore/internal/dexadapter"
	"github.com/you/arbcore/internal/inventory"
	"github.com/you/arbcore/internal/types"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeCex struct {
	book types.OrderBook
	err  error
}

func (f fakeCex) OrderBook(ctx context.Context, symbol string) (types.OrderBook, error) {
	return f.book, f.err
}
func (f fakeCex) PlaceLimitPostOnly(ctx context.Context, req cexadapter.OrderRequest) (cexadapter.OrderResult, error) {
	return cexadapter.OrderResult{}, nil
}
func (f fakeCex) PollOrder(ctx context.Context, symbol, orderID string) (cexadapter.OrderResult, error) {
	return cexadapter.OrderResult{}, nil
}
func (f fakeCex) Cancel(ctx context.Context, symbol, orderID string) error { return nil }
func (f fakeCex) MakerFeeBps(symbol string) decimal.Decimal                { return d("10") }
func (f fakeCex) FetchBalances(ctx context.Context) (map[string]decimal.Decimal, error) {
	return nil, nil
}

type fakeDex struct {
	quote types.DexQuote
	err   error
}

func (f fakeDex) Quote(ctx context.Context, req dexadapter.QuoteRequest) (types.DexQuote, error) {
	return f.quote, f.err
}
func (f fakeDex) Swap(ctx context.Context, req dexadapter.SwapRequest) (dexadapter.SwapResult, error) {
	return dexadapter.SwapResult{Success: true}, nil
}
func (f fakeDex) NativeTokenUSD(ctx context.Context) (decimal.Decimal, error) { return d("2000"), nil }

func testPair() types.Pair {
	return types.Pair{Base: "ARB", Quote: "USDT", VenueSymbol: "ARBUSDT"}
}

func wideBook() types.OrderBook {
	return types.OrderBook{
		Bids: []types.PriceLevel{{Price: d("0.99"), Size: d("1000")}},
		Asks: []types.PriceLevel{{Price: d("1.00"), Size: d("1000")}},
	}
}

func defaultConfig() Config {
	return Config{
		MinSpreadBps:   d("10"),
		MinProfitUSD:   d("0"),
		MaxPositionUSD: d("100000"),
		SignalTTL:      30 * time.Second,
		Cooldown:       time.Minute,
	}
}

func TestGenerate_DropsWhenNoSpreadClearsMinimum(t *testing.T) {
	cex := fakeCex{book: types.OrderBook{
		Bids: []types.PriceLevel{{Price: d("1.00"), Size: d("100")}},
		Asks: []types.PriceLevel{{Price: d("1.0001"), Size: d("100")}},
	}}
	dex := fakeDex{quote: types.DexQuote{EffectivePrice: d("1.0001")}}
	g := New(defaultConfig(), cex, []dexadapter.DexAdapter{dex}, nil, nil, nil)

	res := g.Generate(context.Background(), testPair(), d("10"), FeeInputs{}, d("2000"), d("30000000000"), time.Now())

	assert.True(t, res.Dropped)
	assert.Equal(t, RejectNoSpread, res.DropReason)
}

func TestGenerate_DropsOnEmptyOrMissingBook(t *testing.T) {
	cex := fakeCex{err: assertErr{}}
	dex := fakeDex{quote: types.DexQuote{EffectivePrice: d("1.1")}}
	g := New(defaultConfig(), cex, []dexadapter.DexAdapter{dex}, nil, nil, nil)

	res := g.Generate(context.Background(), testPair(), d("10"), FeeInputs{}, d("2000"), d("30000000000"), time.Now())

	assert.True(t, res.Dropped)
	assert.Equal(t, RejectQuoteUnavailable, res.DropReason)
}

func TestGenerate_RespectsCooldownBetweenSignals(t *testing.T) {
	cex := fakeCex{book: wideBook()}
	dex := fakeDex{quote: types.DexQuote{EffectivePrice: d("1.10")}}
	g := New(defaultConfig(), cex, []dexadapter.DexAdapter{dex}, nil, nil, nil)

	now := time.Now()
	first := g.Generate(context.Background(), testPair(), d("10"), FeeInputs{}, d("2000"), d("30000000000"), now)
	assert.False(t, first.Dropped)

	second := g.Generate(context.Background(), testPair(), d("10"), FeeInputs{}, d("2000"), d("30000000000"), now.Add(time.Second))
	assert.True(t, second.Dropped)
	assert.Equal(t, RejectCooldown, second.DropReason)
}

func TestGenerate_FlagsPositionLimitAndMinProfitAsRejectionReasons(t *testing.T) {
	cex := fakeCex{book: wideBook()}
	dex := fakeDex{quote: types.DexQuote{EffectivePrice: d("1.10")}}
	cfg := defaultConfig()
	cfg.MaxPositionUSD = d("1")
	cfg.MinProfitUSD = d("1000")
	g := New(cfg, cex, []dexadapter.DexAdapter{dex}, nil, nil, nil)

	res := g.Generate(context.Background(), testPair(), d("10"), FeeInputs{}, d("2000"), d("30000000000"), time.Now())

	assert.False(t, res.Dropped)
	assert.Contains(t, res.RejectionReasons, RejectPositionLimit)
	assert.Contains(t, res.RejectionReasons, RejectMinProfit)
}

func TestGenerate_FlagsInsufficientInventory(t *testing.T) {
	cex := fakeCex{book: wideBook()}
	dex := fakeDex{quote: types.DexQuote{EffectivePrice: d("1.10")}}
	inv := inventory.New(inventory.VenueCex, inventory.VenueWallet)
	g := New(defaultConfig(), cex, []dexadapter.DexAdapter{dex}, inv, nil, nil)

	res := g.Generate(context.Background(), testPair(), d("10"), FeeInputs{}, d("2000"), d("30000000000"), time.Now())

	assert.False(t, res.Dropped)
	assert.Contains(t, res.RejectionReasons, RejectInventory)
}

func TestGenerate_PicksWiderSpreadDirection(t *testing.T) {
	cex := fakeCex{book: types.OrderBook{
		Bids: []types.PriceLevel{{Price: d("1.30"), Size: d("100")}},
		Asks: []types.PriceLevel{{Price: d("1.31"), Size: d("100")}},
	}}
	dex := fakeDex{quote: types.DexQuote{EffectivePrice: d("1.10")}}
	g := New(defaultConfig(), cex, []dexadapter.DexAdapter{dex}, nil, nil, nil)

	res := g.Generate(context.Background(), testPair(), d("10"), FeeInputs{}, d("2000"), d("30000000000"), time.Now())

	assert.False(t, res.Dropped)
	// spreadA (dex sell 1.10 vs cex ask 1.31) = ~-1603bps; spreadB (cex bid 1.30 vs dex buy 1.10) = ~1818bps, wider wins.
	assert.Equal(t, types.BuyDexSellCex, res.Signal.Direction)
}

type assertErr struct{}

func (assertErr) Error() string { return "fake error" }
