// Package dexadapter defines the interface every on-chain DEX
// integration (aggregator or direct-pool) implements. Concrete
// integrations (RPC clients, tx builders) live outside this module's
// scope; callers wire in their own DexAdapter, and tests use small
// local fakes.
package dexadapter

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/you/arbcore/internal/types"
)

// QuoteRequest asks for a single-sided quote.
type QuoteRequest struct {
	TokenIn, TokenOut string
	AmountIn          decimal.Decimal
	// PoolFeeTierHint steers direct-pool adapters toward a specific
	// tier; aggregator adapters may ignore it.
	PoolFeeTierHint uint32
}

// SwapRequest is the single pre-validated struct fed to Swap; a
// multi-step builder would be overkill for one call site.
type SwapRequest struct {
	Quote         types.DexQuote
	MinAmountOut  decimal.Decimal
	DeadlineUnix  int64
}

// SwapResult is the on-chain outcome of a swap.
type SwapResult struct {
	TxHash     string
	AmountOut  decimal.Decimal
	GasUsedUSD decimal.Decimal
	Success    bool
}

// DexAdapter is the contract a DEX integration (aggregator or direct
// pool) must satisfy.
type DexAdapter interface {
	// Quote returns the best available quote for req.
	Quote(ctx context.Context, req QuoteRequest) (types.DexQuote, error)
	// Swap executes req and blocks until mined/rejected or ctx is done.
	Swap(ctx context.Context, req SwapRequest) (SwapResult, error)
	// NativeTokenUSD returns the current USD price of the chain's
	// native gas token, for gas-cost conversion.
	NativeTokenUSD(ctx context.Context) (decimal.Decimal, error)
}
