// Package capital implements CapitalManager: tracks balances across
// the CEX and on-chain wallet, amortizes the fixed bridging cost across
// trades, and decides when a rebalance is rational. Grounded on this
// system's original high-level USD-space capital tracker, generalized
// from CEX-only withdrawal tracking to both bridge directions.
package capital

import (
	"sync"

	"github.com/shopspring/decimal"
	"github.com/you/arbcore/internal/executor"
	"github.com/you/arbcore/internal/types"
)

// BridgeDirection names which way a rebalance should move funds.
type BridgeDirection string

const (
	BridgeChainToCex BridgeDirection = "chain_to_cex"
	BridgeCexToChain BridgeDirection = "cex_to_chain"
	BridgeNone       BridgeDirection = ""
)

// Config tunes capital allocation and bridging policy.
type Config struct {
	StartingCexUSD           decimal.Decimal
	StartingChainUSD         decimal.Decimal
	BridgeThresholdUSD       decimal.Decimal
	MinTradableUSD           decimal.Decimal
	BridgeFixedCostUSD       decimal.Decimal
	AmortizationTargetTrades int
}

// DefaultConfig mirrors this system's original capital-manager
// defaults.
func DefaultConfig() Config {
	return Config{
		StartingCexUSD:           decimal.NewFromInt(50),
		StartingChainUSD:         decimal.NewFromInt(50),
		BridgeThresholdUSD:       decimal.NewFromInt(20),
		MinTradableUSD:           decimal.NewFromInt(5),
		BridgeFixedCostUSD:       decimal.NewFromFloat(0.05),
		AmortizationTargetTrades: 20,
	}
}

// State is the mutable capital ledger: per-venue balances, cumulative
// realized P&L, and the bridge amortization counter.
type State struct {
	CexBalances          map[string]decimal.Decimal
	ChainBalances        map[string]decimal.Decimal
	RealizedPnlUSD       decimal.Decimal
	TradesSinceLastBridge int
}

func newState() State {
	return State{
		CexBalances:   make(map[string]decimal.Decimal),
		ChainBalances: make(map[string]decimal.Decimal),
	}
}

// Manager owns CapitalState and applies terminal execution outcomes to
// it exactly once per signal.
type Manager struct {
	cfg Config

	mu      sync.Mutex
	state   State
	applied map[string]bool // signal_id -> already applied, for idempotence
}

// New constructs a Manager seeded with cfg's starting balances in
// quoteAsset.
func New(cfg Config, quoteAsset string) *Manager {
	m := &Manager{cfg: cfg, state: newState(), applied: make(map[string]bool)}
	m.state.CexBalances[quoteAsset] = cfg.StartingCexUSD
	m.state.ChainBalances[quoteAsset] = cfg.StartingChainUSD
	return m
}

// EffectiveBridgeCostUSD returns the amortized bridge cost attributable
// to the next trade: bridge_fixed_cost_usd divided by a forward-looking
// trade-count projection clamped to AmortizationTargetTrades.
func (m *Manager) EffectiveBridgeCostUSD() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()

	projected := m.state.TradesSinceLastBridge + 1
	if m.cfg.AmortizationTargetTrades > 0 && projected > m.cfg.AmortizationTargetTrades {
		projected = m.cfg.AmortizationTargetTrades
	}
	if projected < 1 {
		projected = 1
	}
	return m.cfg.BridgeFixedCostUSD.Div(decimal.NewFromInt(int64(projected)))
}

// ShouldBridge decides whether either venue has fallen below
// MinTradableUSD and, if so, whether enough accumulated profit exists
// on the other side to justify a rebalance.
func (m *Manager) ShouldBridge(cexBalanceUSD, chainBalanceUSD decimal.Decimal) (bool, string, BridgeDirection) {
	minTrade := m.cfg.MinTradableUSD
	cexEmpty := cexBalanceUSD.LessThan(minTrade)
	chainEmpty := chainBalanceUSD.LessThan(minTrade)

	if !cexEmpty && !chainEmpty {
		return false, "both sides have sufficient capital", BridgeNone
	}

	var accumulated decimal.Decimal
	var direction BridgeDirection
	if cexEmpty {
		accumulated = chainBalanceUSD.Sub(m.cfg.StartingChainUSD)
		direction = BridgeChainToCex
	} else {
		accumulated = cexBalanceUSD.Sub(m.cfg.StartingCexUSD)
		direction = BridgeCexToChain
	}

	if accumulated.LessThanOrEqual(decimal.Zero) {
		return false, "no accumulated profit to bridge", BridgeNone
	}
	if accumulated.LessThan(m.cfg.BridgeThresholdUSD) {
		return false, "accumulated profit below bridge threshold", BridgeNone
	}
	return true, "accumulated profit clears bridge threshold", direction
}

// RecordBridge resets the trade counter after a bridge transfer
// executes.
func (m *Manager) RecordBridge() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.TradesSinceLastBridge = 0
}

// ApplyOutcome applies a terminal ExecutionContext's fill deltas to
// CapitalState exactly once per signal ID; a second call with the same
// signal ID is a no-op, satisfying the idempotent-capital-update
// invariant.
func (m *Manager) ApplyOutcome(signalID string, pair, quoteAsset string, baseAsset string, ctx executor.ExecutionContext) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.applied[signalID] {
		return
	}
	m.applied[signalID] = true

	buyVenue := "dex"
	if ctx.Signal.Direction == types.BuyCexSellDex {
		buyVenue = "cex"
	}
	m.applyLeg(ctx.Leg1, buyVenue, quoteAsset, baseAsset)
	m.applyLeg(ctx.Leg2, buyVenue, quoteAsset, baseAsset)

	m.state.RealizedPnlUSD = m.state.RealizedPnlUSD.Add(ctx.ActualNetPnlUSD)
	m.state.TradesSinceLastBridge++
}

// applyLeg moves leg's notional and fees into whichever venue's
// balances leg filled on: buying spends quoteAsset and receives
// baseAsset, selling is the mirror image.
func (m *Manager) applyLeg(leg executor.LegFill, buyVenue, quoteAsset, baseAsset string) {
	if leg.FilledQty.IsZero() {
		return
	}
	balances := m.state.ChainBalances
	if leg.Venue == "cex" {
		balances = m.state.CexBalances
	}
	notional := leg.FilledQty.Mul(leg.AvgPrice)
	if leg.Venue == buyVenue {
		balances[quoteAsset] = balances[quoteAsset].Sub(notional).Sub(leg.FeesPaid)
		balances[baseAsset] = balances[baseAsset].Add(leg.FilledQty)
	} else {
		balances[quoteAsset] = balances[quoteAsset].Add(notional).Sub(leg.FeesPaid)
		balances[baseAsset] = balances[baseAsset].Sub(leg.FilledQty)
	}
}

// Snapshot returns a copy of the current CapitalState.
func (m *Manager) Snapshot() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := State{
		CexBalances:           make(map[string]decimal.Decimal, len(m.state.CexBalances)),
		ChainBalances:         make(map[string]decimal.Decimal, len(m.state.ChainBalances)),
		RealizedPnlUSD:        m.state.RealizedPnlUSD,
		TradesSinceLastBridge: m.state.TradesSinceLastBridge,
	}
	for k, v := range m.state.CexBalances {
		out.CexBalances[k] = v
	}
	for k, v := range m.state.ChainBalances {
		out.ChainBalances[k] = v
	}
	return out
}
