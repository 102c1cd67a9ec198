// Package inventory tracks per-venue asset balances and exposes the
// skew view the scorer's inventory factor and the capital manager's
// rebalance decisions consume.
package inventory

import (
	"sync"

	"github.com/shopspring/decimal"
)

// Venue names a balance-holding side: the CEX account or the on-chain
// wallet. Both legs of an arb trade live on one of these two.
type Venue string

const (
	VenueCex    Venue = "cex"
	VenueWallet Venue = "wallet"
)

// RebalanceThresholdPct is the deviation above which Skew reports
// NeedsRebalance, matching the 30% default in the rebalance planner
// this package's math is grounded on.
const RebalanceThresholdPct = 30.0

// Balance is one venue's holding of one asset.
type Balance struct {
	Free   decimal.Decimal
	Locked decimal.Decimal
}

// Total returns Free+Locked.
func (b Balance) Total() decimal.Decimal { return b.Free.Add(b.Locked) }

// VenueSkew is one venue's share of an asset's total inventory.
type VenueSkew struct {
	Amount       decimal.Decimal
	Pct          float64
	DeviationPct float64
}

// Skew is the cross-venue distribution of one asset.
type Skew struct {
	Asset           string
	Total           decimal.Decimal
	Venues          map[Venue]VenueSkew
	MaxDeviationPct float64
	NeedsRebalance  bool
}

// Tracker is the single source of truth for where capital sits across
// venues. All methods are safe for concurrent use.
type Tracker struct {
	mu       sync.RWMutex
	balances map[Venue]map[string]Balance
}

// New constructs an empty Tracker for the given venues.
func New(venues ...Venue) *Tracker {
	t := &Tracker{balances: make(map[Venue]map[string]Balance)}
	for _, v := range venues {
		t.balances[v] = make(map[string]Balance)
	}
	return t
}

// Set replaces venue's balance of asset, as a CEX or wallet balance
// refresh would.
func (t *Tracker) Set(venue Venue, asset string, bal Balance) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.balances[venue] == nil {
		t.balances[venue] = make(map[string]Balance)
	}
	t.balances[venue][asset] = bal
}

// Available returns the free (non-locked) balance of asset at venue.
func (t *Tracker) Available(venue Venue, asset string) decimal.Decimal {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.balances[venue][asset].Free
}

// SyncCexBalances replaces the CEX venue's free balance of every asset
// in balances with a fresh read from the exchange, as a
// fetch_balances() call against the real account would produce. Assets
// not present in balances are left untouched; locked amounts (open
// maker orders) are preserved across the refresh.
func (t *Tracker) SyncCexBalances(balances map[string]decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.balances[VenueCex] == nil {
		t.balances[VenueCex] = make(map[string]Balance)
	}
	for asset, amount := range balances {
		bal := t.balances[VenueCex][asset]
		bal.Free = amount
		t.balances[VenueCex][asset] = bal
	}
}

// RecordTrade applies a fill's balance deltas: a buy increases base and
// decreases quote at venue; a sell does the inverse. The fee is
// deducted from feeAsset's free balance.
func (t *Tracker) RecordTrade(venue Venue, isBuy bool, baseAsset, quoteAsset string, baseAmount, quoteAmount, fee decimal.Decimal, feeAsset string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.balances[venue] == nil {
		t.balances[venue] = make(map[string]Balance)
	}
	base := t.balances[venue][baseAsset]
	quote := t.balances[venue][quoteAsset]
	if isBuy {
		base.Free = base.Free.Add(baseAmount)
		quote.Free = quote.Free.Sub(quoteAmount)
	} else {
		base.Free = base.Free.Sub(baseAmount)
		quote.Free = quote.Free.Add(quoteAmount)
	}
	t.balances[venue][baseAsset] = base
	t.balances[venue][quoteAsset] = quote

	feeBal := t.balances[venue][feeAsset]
	feeBal.Free = feeBal.Free.Sub(fee)
	t.balances[venue][feeAsset] = feeBal
}

// Skew computes the cross-venue distribution of asset: each venue's
// share of the total, its deviation from an equal split across the
// tracked venues, and whether the maximum deviation exceeds
// RebalanceThresholdPct.
func (t *Tracker) Skew(asset string) Skew {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := Skew{Asset: asset, Venues: make(map[Venue]VenueSkew)}
	var total decimal.Decimal
	amounts := make(map[Venue]decimal.Decimal)
	for venue, assets := range t.balances {
		amt := assets[asset].Total()
		amounts[venue] = amt
		total = total.Add(amt)
	}
	out.Total = total
	if len(amounts) == 0 {
		return out
	}
	equalSharePct := 100.0 / float64(len(amounts))

	totalF, _ := total.Float64()
	for venue, amt := range amounts {
		var pct float64
		if totalF != 0 {
			amtF, _ := amt.Float64()
			pct = amtF / totalF * 100.0
		}
		deviation := pct - equalSharePct
		if deviation < 0 {
			deviation = -deviation
		}
		out.Venues[venue] = VenueSkew{Amount: amt, Pct: pct, DeviationPct: deviation}
		if deviation > out.MaxDeviationPct {
			out.MaxDeviationPct = deviation
		}
	}
	out.NeedsRebalance = out.MaxDeviationPct > RebalanceThresholdPct
	return out
}
