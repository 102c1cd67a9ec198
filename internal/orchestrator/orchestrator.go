// Package orchestrator wires the generator, scorer, queue, executor,
// recovery plane, and capital manager into the single tick loop that
// drives live trading, grounded on this system's original
// marketdata/detector/execution goroutine pipeline, generalized from a
// channel-fed pipeline into an explicit per-pair tick function so the
// concurrency gate (max_concurrent_executions) has one place to live.
package orchestrator

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/you/arbcore/internal/capital"
	"github.com/you/arbcore/internal/cexadapter"
	"github.com/you/arbcore/internal/dexadapter"
	"github.com/you/arbcore/internal/events"
	"github.com/you/arbcore/internal/executor"
	"github.com/you/arbcore/internal/generator"
	"github.com/you/arbcore/internal/inventory"
	"github.com/you/arbcore/internal/killswitch"
	"github.com/you/arbcore/internal/queue"
	"github.com/you/arbcore/internal/recovery"
	"github.com/you/arbcore/internal/routehealth"
	"github.com/you/arbcore/internal/scorer"
	"github.com/you/arbcore/internal/signal"
	"github.com/you/arbcore/internal/types"
	"golang.org/x/sync/errgroup"
)

// PairUniverse is one configured trading pair plus its per-call market
// inputs (fees, gas price, native-token price) the generator needs
// each tick.
type PairUniverse struct {
	Pair           types.Pair
	SizeBase       decimal.Decimal
	Fees           generator.FeeInputs
	GasPriceWei    decimal.Decimal
	NativeTokenUSD decimal.Decimal
}

// Config bundles every sub-component's configuration the orchestrator
// constructs internally.
type Config struct {
	Generator               generator.Config
	Scorer                  scorer.Config
	Queue                   queue.Config
	Executor                executor.Config
	Recovery                recovery.Config
	Capital                 capital.Config
	MaxConcurrentExecutions int
	QuoteAsset              string
}

// Orchestrator runs the tick loop: generate -> score -> enqueue on one
// side, drain -> admit -> execute -> record on the other.
type Orchestrator struct {
	cfg Config

	gen   *generator.Generator
	score *scorer.Scorer
	q     *queue.Queue
	exec  *executor.Executor
	cex    cexadapter.CexAdapter
	rec    *recovery.Manager
	cap    *capital.Manager
	inv    *inventory.Tracker
	routes *routehealth.Tracker
	kill   *killswitch.KillSwitch
	bus    *events.Bus

	maxConcurrent int
}

// New wires every sub-component together from cfg. cex/dex are the
// live venue adapters; bus may be nil to disable eventing.
func New(cfg Config, cex cexadapter.CexAdapter, dex []dexadapter.DexAdapter, bus *events.Bus) *Orchestrator {
	inv := inventory.New(inventory.VenueCex, inventory.VenueWallet)
	routes := routehealth.New(0)
	capMgr := capital.New(cfg.Capital, cfg.QuoteAsset)

	gen := generator.New(cfg.Generator, cex, dex, inv, capMgr, routes)
	sc := scorer.New(cfg.Scorer)
	q := queue.New(queue.Config{
		MaxDepth:   cfg.Queue.MaxDepth,
		MaxPerPair: cfg.Queue.MaxPerPair,
		MinScore:   cfg.Queue.MinScore,
		Decay:      scorer.ApplyDecay,
	})
	rec := recovery.New(cfg.Recovery, bus)
	ex := executor.New(cfg.Executor, cex, dex0(dex), bus)

	maxConc := cfg.MaxConcurrentExecutions
	if maxConc <= 0 {
		maxConc = 1
	}

	return &Orchestrator{
		cfg:           cfg,
		gen:           gen,
		score:         sc,
		q:             q,
		exec:          ex,
		cex:           cex,
		rec:           rec,
		cap:           capMgr,
		inv:           inv,
		routes:        routes,
		kill:          killswitch.New("", bus),
		bus:           bus,
		maxConcurrent: maxConc,
	}
}

func dex0(dex []dexadapter.DexAdapter) dexadapter.DexAdapter {
	if len(dex) == 0 {
		return nil
	}
	return dex[0]
}

// Inventory exposes the inventory tracker so the caller can seed
// starting balances before the tick loop begins.
func (o *Orchestrator) Inventory() *inventory.Tracker { return o.inv }

// Capital exposes the capital manager for observability/snapshotting.
func (o *Orchestrator) Capital() *capital.Manager { return o.cap }

// Tick runs one full generate-score-enqueue pass over universe, then
// drains and executes the queue up to MaxConcurrentExecutions in
// flight at once. It returns the number of signals generated and the
// number of executions started.
func (o *Orchestrator) Tick(ctx context.Context, universe []PairUniverse, now time.Time) (generated, executed int) {
	if o.kill.Poll() {
		return 0, 0
	}

	o.refreshCexBalances(ctx)

	for _, pu := range universe {
		res := o.gen.Generate(ctx, pu.Pair, pu.SizeBase, pu.Fees, pu.NativeTokenUSD, pu.GasPriceWei, now)
		if res.Dropped || res.Signal == nil {
			o.publish(events.KindSignalDropped, "", string(res.DropReason), now)
			continue
		}
		generated++
		sig := *res.Signal
		o.publish(events.KindSignalGenerated, sig.ID, sig.Pair.Canonical(), now)

		skew := o.inv.Skew(sig.Pair.Base)
		o.score.Score(&sig, res.Depth, skew, true, now)
		o.publish(events.KindSignalScored, sig.ID, sig.Pair.Canonical(), now)

		if len(res.RejectionReasons) > 0 {
			o.publish(events.KindSignalDropped, sig.ID, string(res.RejectionReasons[0]), now)
			continue
		}

		switch o.q.Push(sig) {
		case queue.PushAccepted, queue.PushEvictedLowest:
			o.publish(events.KindSignalQueued, sig.ID, sig.Pair.Canonical(), now)
		default:
			o.publish(events.KindSignalDropped, sig.ID, "queue_rejected", now)
		}
	}

	ready := o.q.Drain(now)
	g := new(errgroup.Group)
	g.SetLimit(o.maxConcurrent)
	for _, sig := range ready {
		if !o.admit(sig, now) {
			continue
		}
		executed++
		sig := sig
		g.Go(func() error {
			o.runOne(ctx, sig, now)
			return nil
		})
	}
	_ = g.Wait()
	return generated, executed
}

// refreshCexBalances pulls the account's current free balances and
// syncs them into the inventory tracker, so generator.checkInventory's
// preflight reflects the exchange's actual state rather than only what
// recordInventory has derived from past fills. Best effort: a fetch
// failure leaves the tracker's last known balances in place.
func (o *Orchestrator) refreshCexBalances(ctx context.Context) {
	balances, err := o.cex.FetchBalances(ctx)
	if err != nil {
		return
	}
	o.inv.SyncCexBalances(balances)
}

// admit runs the recovery plane's Admit, then the capital-aware
// SafetyCheck, honoring the Breaker -> Replay -> Capital -> Queue lock
// ordering by the time this is called: Breaker/Replay already ran
// inside Manager.Admit before Capital's balances are read here.
func (o *Orchestrator) admit(sig signal.Signal, now time.Time) bool {
	ok, reason, detail := o.rec.Admit(sig, now)
	if !ok {
		o.publish(events.KindSignalDropped, sig.ID, string(reason)+": "+detail, now)
		return false
	}

	snap := o.cap.Snapshot()
	var totalCapital decimal.Decimal
	for _, v := range snap.CexBalances {
		totalCapital = totalCapital.Add(v)
	}
	for _, v := range snap.ChainBalances {
		totalCapital = totalCapital.Add(v)
	}

	dailyPnlUSD, tradesThisHour := o.rec.WindowStats(now)
	ok, rule, detail := recovery.SafetyCheck(sig.SizeQuote, dailyPnlUSD, totalCapital, tradesThisHour)
	if !ok {
		o.publish(events.KindSafetyViolation, sig.ID, string(rule)+": "+detail, now)
		return false
	}
	return true
}

func (o *Orchestrator) runOne(ctx context.Context, sig signal.Signal, now time.Time) {
	o.publish(events.KindExecutionStarted, sig.ID, sig.Pair.Canonical(), now)

	execCtx := o.exec.Execute(ctx, sig)

	// An unwound leg is a recovery-plane failure even when the unwind
	// itself succeeds and the state machine reaches DONE: one leg of
	// the intended trade never filled.
	success := execCtx.State == executor.StateDone && execCtx.Error == "" && !execCtx.UnwindAttempted
	o.rec.RecordOutcome(sig, success, execCtx.Error, execCtx.ActualNetPnlUSD, now)
	o.score.RecordResult(sig.Pair.Canonical(), success, now)
	o.cap.ApplyOutcome(sig.ID, sig.Pair.Canonical(), sig.Pair.Quote, sig.Pair.Base, *execCtx)
	o.recordRouteHealth(sig, *execCtx)

	if success {
		o.recordInventory(sig, *execCtx)
	}
}

// recordRouteHealth feeds the DEX leg's own outcome, not the execution's
// overall success, back into the route tracker: a DEX leg can fill fine
// while the other leg is what ultimately sinks the trade.
func (o *Orchestrator) recordRouteHealth(sig signal.Signal, execCtx executor.ExecutionContext) {
	dexLeg := execCtx.Leg1
	if execCtx.Leg2.Venue == "dex" {
		dexLeg = execCtx.Leg2
	}
	if dexLeg.Venue != "dex" {
		return
	}
	o.routes.Record(sig.ChosenRoute, dexLeg.FeesPaid, !dexLeg.FilledQty.IsZero())
}

func (o *Orchestrator) recordInventory(sig signal.Signal, execCtx executor.ExecutionContext) {
	for _, leg := range []executor.LegFill{execCtx.Leg1, execCtx.Leg2} {
		if leg.FilledQty.IsZero() {
			continue
		}
		venue := inventory.VenueWallet
		if leg.Venue == "cex" {
			venue = inventory.VenueCex
		}
		isBuy := (leg.Venue == "dex" && sig.Direction == types.BuyDexSellCex) ||
			(leg.Venue == "cex" && sig.Direction == types.BuyCexSellDex)
		quoteAmount := leg.FilledQty.Mul(leg.AvgPrice)
		o.inv.RecordTrade(venue, isBuy, sig.Pair.Base, sig.Pair.Quote, leg.FilledQty, quoteAmount, leg.FeesPaid, sig.Pair.Quote)
	}
}

func (o *Orchestrator) publish(kind events.Kind, signalID, detail string, now time.Time) {
	if o.bus == nil {
		return
	}
	o.bus.Publish(events.New(kind, now).WithSignal(signalID).WithData("detail", detail))
}
