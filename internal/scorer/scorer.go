// Package scorer ranks arbitrage signals on a 0-100 scale across five
// weighted dimensions, grounded on the five-factor model this trading
// system's scoring logic has always used, reweighted per the governing
// specification.
package scorer

import (
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/you/arbcore/internal/inventory"
	"github.com/you/arbcore/internal/signal"
	"github.com/you/arbcore/internal/types"
)

// Config holds every scorer tuning knob. The five *Weight fields must
// sum to 1.0.
type Config struct {
	SpreadWeight    float64
	DepthWeight     float64
	InventoryWeight float64
	HistoryWeight   float64
	FreshnessWeight float64

	MinSpreadBps       float64
	ExcellentSpreadBps float64
	UseNetSpread       bool

	MinDepthUSD       float64
	ExcellentDepthUSD float64

	HistoryLookback    int
	HistoryEMAAlpha    float64
	HistoryMinSamples  int

	MaxResults int
	MinScore   float64
}

// DefaultConfig sets the five weights to 0.40/0.20/0.15/0.15/0.10 and
// fills every other threshold with this scorer's production defaults.
func DefaultConfig() Config {
	return Config{
		SpreadWeight:    0.40,
		DepthWeight:     0.20,
		InventoryWeight: 0.15,
		HistoryWeight:   0.15,
		FreshnessWeight: 0.10,

		MinSpreadBps:       30.0,
		ExcellentSpreadBps: 100.0,
		UseNetSpread:       true,

		MinDepthUSD:       500.0,
		ExcellentDepthUSD: 10_000.0,

		HistoryLookback:   30,
		HistoryEMAAlpha:   0.15,
		HistoryMinSamples: 3,

		MaxResults: 200,
		MinScore:   55.0,
	}
}

type result struct {
	pair    string
	success bool
	ts      time.Time
}

// DepthInput carries the order-book depth context the generator knows
// about a signal but that Signal itself does not persist raw.
type DepthInput struct {
	HaveDepth    bool
	BidDepthBase decimal.Decimal
	AskDepthBase decimal.Decimal
	BidPrice     decimal.Decimal
	AskPrice     decimal.Decimal
}

// Scorer scores signals and tracks per-pair trade-outcome history for
// the history factor.
type Scorer struct {
	cfg Config

	mu      sync.Mutex
	results []result
}

// New constructs a Scorer with cfg.
func New(cfg Config) *Scorer {
	return &Scorer{cfg: cfg}
}

// Score computes the composite score for sig, attaching the per-factor
// breakdown to sig.ScoreBreakdown and sig.Score, and returns the final
// score.
func (s *Scorer) Score(sig *signal.Signal, depth DepthInput, skew inventory.Skew, haveSkew bool, now time.Time) float64 {
	bd := signal.ScoreBreakdown{
		Spread:    s.scoreSpread(*sig),
		Depth:     s.scoreDepth(depth),
		Inventory: s.scoreInventory(*sig, skew, haveSkew),
		History:   s.scoreHistory(sig.Pair.Canonical()),
		Freshness: s.scoreFreshness(*sig, now),
	}

	cfg := s.cfg
	raw := bd.Spread*cfg.SpreadWeight +
		bd.Depth*cfg.DepthWeight +
		bd.Inventory*cfg.InventoryWeight +
		bd.History*cfg.HistoryWeight +
		bd.Freshness*cfg.FreshnessWeight
	bd.Final = clamp(raw, 0, 100)

	sig.ScoreBreakdown = bd
	sig.Score = bd.Final
	return bd.Final
}

// RecordResult appends a trade outcome for pair's history factor,
// trimming the buffer to MaxResults.
func (s *Scorer) RecordResult(pair string, success bool, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, result{pair: pair, success: success, ts: now})
	if len(s.results) > s.cfg.MaxResults {
		s.results = s.results[len(s.results)-s.cfg.MaxResults:]
	}
}

// ApplyDecay returns sig's score after a linear time-decay that halves
// it at TTL expiry.
func ApplyDecay(sig signal.Signal, now time.Time) float64 {
	age := sig.AgeSeconds(now)
	ttl := sig.TTLSeconds()
	if ttl <= 0 {
		return 0
	}
	decayFactor := math.Max(0, 1.0-(age/ttl)*0.5)
	return round1(sig.Score * decayFactor)
}

func (s *Scorer) scoreSpread(sig signal.Signal) float64 {
	cfg := s.cfg
	raw, _ := sig.GrossSpreadBps.Float64()

	effective := raw
	if cfg.UseNetSpread {
		breakeven, _ := sig.BreakevenBps.Float64()
		effective = raw - breakeven
	}

	if effective <= 0 {
		return 0
	}
	if effective >= cfg.ExcellentSpreadBps {
		return 100
	}
	span := cfg.ExcellentSpreadBps - cfg.MinSpreadBps
	if span <= 0 {
		return 100
	}
	normalised := (effective - cfg.MinSpreadBps) / span
	return clamp(normalised*100, 0, 100)
}

func (s *Scorer) scoreDepth(d DepthInput) float64 {
	if !d.HaveDepth {
		return 60.0
	}
	bidUSD, _ := d.BidDepthBase.Mul(d.BidPrice).Float64()
	askUSD, _ := d.AskDepthBase.Mul(d.AskPrice).Float64()
	thinSide := math.Min(bidUSD, askUSD)

	cfg := s.cfg
	if thinSide <= cfg.MinDepthUSD {
		return 0
	}
	if thinSide >= cfg.ExcellentDepthUSD {
		return 100
	}
	span := cfg.ExcellentDepthUSD - cfg.MinDepthUSD
	return (thinSide - cfg.MinDepthUSD) / span * 100
}

func (s *Scorer) scoreInventory(sig signal.Signal, skew inventory.Skew, haveSkew bool) float64 {
	if !haveSkew || skew.Venues == nil {
		return 60.0
	}

	cexDev := signedDeviation(skew, inventory.VenueCex)
	walletDev := signedDeviation(skew, inventory.VenueWallet)

	var rebalancing bool
	if sig.Direction == types.BuyCexSellDex {
		rebalancing = walletDev > 0 && cexDev < 0
	} else {
		rebalancing = cexDev > 0 && walletDev < 0
	}

	if skew.NeedsRebalance {
		if rebalancing {
			return 95.0
		}
		return 15.0
	}
	if rebalancing {
		return 75.0
	}
	if skew.MaxDeviationPct > 15.0 {
		return 35.0
	}
	return 55.0
}

// signedDeviation returns the venue's pct-share minus its equal-split
// share, signed (positive = overweight), reconstructed from the
// unsigned magnitude inventory.Skew stores plus the venue's raw pct.
func signedDeviation(skew inventory.Skew, venue inventory.Venue) float64 {
	v, ok := skew.Venues[venue]
	if !ok {
		return 0
	}
	equalShare := 100.0 / float64(len(skew.Venues))
	return v.Pct - equalShare
}

func (s *Scorer) scoreHistory(pair string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	cfg := s.cfg
	var filtered []result
	for _, r := range s.results {
		if r.pair == pair {
			filtered = append(filtered, r)
		}
	}
	if len(filtered) > cfg.HistoryLookback {
		filtered = filtered[len(filtered)-cfg.HistoryLookback:]
	}
	if len(filtered) < cfg.HistoryMinSamples {
		return 50.0
	}

	alpha := cfg.HistoryEMAAlpha
	ema := 0.5
	for _, r := range filtered {
		v := 0.0
		if r.success {
			v = 1.0
		}
		ema = alpha*v + (1-alpha)*ema
	}
	return clamp(ema*100, 0, 100)
}

func (s *Scorer) scoreFreshness(sig signal.Signal, now time.Time) float64 {
	age := sig.AgeSeconds(now)
	ttl := sig.TTLSeconds()
	if ttl <= 0 {
		return 0
	}
	return clamp(100.0*(1.0-age/ttl), 0, 100)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
