// Package cexadapter defines the interface every centralized-exchange
// integration implements. Concrete integrations (REST/WS venue
// clients) live outside this module's scope; callers wire in their own
// CexAdapter, and tests use small local fakes.
package cexadapter

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/you/arbcore/internal/types"
)

// OrderSide is the side of an order.
type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// OrderStatus is the lifecycle state of a resting order.
type OrderStatus string

const (
	OrderStatusOpen            OrderStatus = "OPEN"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
)

// Terminal reports whether status will never change again.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected:
		return true
	default:
		return false
	}
}

// OrderRequest is a single post-only maker order.
type OrderRequest struct {
	Symbol   string
	Side     OrderSide
	Quantity decimal.Decimal
	// LimitPrice is the resting price; post-only orders that would
	// cross the book on submission are rejected by the venue rather
	// than filled as a taker.
	LimitPrice decimal.Decimal
}

// OrderResult is a snapshot of an order's current state.
type OrderResult struct {
	OrderID   string
	Status    OrderStatus
	FilledQty decimal.Decimal
	AvgPrice  decimal.Decimal
	FeePaid   decimal.Decimal
	FeeAsset  string
}

// CexAdapter is the contract a centralized-exchange integration must
// satisfy. Every method returns a *types.AdapterError on failure so the
// recovery plane can classify it without inspecting venue-specific
// error text.
type CexAdapter interface {
	// OrderBook returns the current order book for symbol.
	OrderBook(ctx context.Context, symbol string) (types.OrderBook, error)
	// PlaceLimitPostOnly submits req as a maker-only resting order and
	// returns immediately with its initial state; it never blocks
	// until the order fills.
	PlaceLimitPostOnly(ctx context.Context, req OrderRequest) (OrderResult, error)
	// PollOrder returns the current state of a previously placed order.
	PollOrder(ctx context.Context, symbol, orderID string) (OrderResult, error)
	// Cancel requests cancellation of orderID. Best effort: the order
	// may already have filled or been canceled by the venue.
	Cancel(ctx context.Context, symbol, orderID string) error
	// MakerFeeBps returns the configured maker fee for symbol.
	MakerFeeBps(symbol string) decimal.Decimal
	// FetchBalances returns the account's free balance of every asset
	// the venue reports, keyed by asset symbol.
	FetchBalances(ctx context.Context) (map[string]decimal.Decimal, error)
}
