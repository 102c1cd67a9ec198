package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/you/arbcore/internal/capital"
	"github.com/you/arbcore/internal/config"
	"github.com/you/arbcore/internal/connectors/redisfeed"
	"github.com/you/arbcore/internal/dexadapter"
	"github.com/you/arbcore/internal/events"
	"github.com/you/arbcore/internal/eventlog"
	"github.com/you/arbcore/internal/executor"
	"github.com/you/arbcore/internal/generator"
	"github.com/you/arbcore/internal/metrics"
	"github.com/you/arbcore/internal/orchestrator"
	"github.com/you/arbcore/internal/queue"
	"github.com/you/arbcore/internal/recovery"
	"github.com/you/arbcore/internal/scorer"
	"github.com/you/arbcore/internal/simfeed"
	"github.com/you/arbcore/internal/types"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	level := zap.InfoLevel
	if cfg.Level != "" {
		_ = level.UnmarshalText([]byte(cfg.Level))
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	zcfg.Encoding = "json"
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.EncoderConfig.LevelKey = "level"
	zcfg.EncoderConfig.MessageKey = "msg"
	zcfg.EncoderConfig.CallerKey = "caller"
	zcfg.EncoderConfig.StacktraceKey = "stacktrace"
	zcfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	if !cfg.Production {
		zcfg.Development = true
	}
	return zcfg.Build()
}

func main() {
	cfgPath := flag.String("config", "./config.yaml", "path to the control-loop config file")
	flag.Parse()

	boot, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		boot.Fatal("loading config", zap.Error(err))
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		boot.Fatal("constructing logger", zap.Error(err))
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		logger.Warn("shutdown signal received, draining")
		cancel()
	}()

	bus := events.NewBus()
	bus.Subscribe(metrics.NewSink(), 256)
	bus.Subscribe(eventlog.NewSink(logger), 256)
	if cfg.Redis.Addr != "" {
		sink := redisfeed.NewSink(redisfeed.Config{
			Addr: cfg.Redis.Addr, DB: cfg.Redis.DB,
			Username: cfg.Redis.Username, Password: cfg.Redis.Password,
			Stream: cfg.Redis.Stream, MaxLen: cfg.Redis.MaxLen,
		})
		defer sink.Close()
		bus.Subscribe(sink, 256)
	}
	defer bus.Close()

	sim := simfeed.DefaultConfig()
	cex := simfeed.NewCex(sim)
	dex := simfeed.NewDex(sim, cex)

	o := orchestrator.New(buildOrchestratorConfig(cfg), cex, []dexadapter.DexAdapter{dex}, bus)

	universe := buildUniverse(cfg, sim)

	logger.Info("arbcore starting",
		zap.String("mode", cfg.Mode),
		zap.Bool("dry_run", cfg.DryRun),
		zap.Int("pairs", len(universe)),
	)

	tick := time.NewTicker(time.Second)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("arbcore stopped")
			return
		case now := <-tick.C:
			generated, executed := o.Tick(ctx, universe, now)
			if generated > 0 || executed > 0 {
				logger.Info("tick",
					zap.Int("generated", generated),
					zap.Int("executed", executed),
				)
			}
		}
	}
}

func buildOrchestratorConfig(cfg *config.Config) orchestrator.Config {
	perTier := make(map[uint32]decimal.Decimal)
	for _, p := range cfg.Pairs {
		for tier, bps := range p.TierMinSpreadBps {
			perTier[tier] = decimal.NewFromFloat(bps)
		}
	}

	return orchestrator.Config{
		Generator: generator.Config{
			MinSpreadBps:       decimal.NewFromFloat(cfg.Strategy.MinSpreadBps),
			MinProfitUSD:       decimal.NewFromFloat(cfg.Strategy.MinProfitUSD),
			MaxPositionUSD:     decimal.NewFromFloat(cfg.Strategy.MaxPositionUSD),
			SignalTTL:          cfg.SignalTTL(),
			Cooldown:           cfg.Cooldown(),
			PerTierMinSpreadBps: perTier,
		},
		Scorer: scorerConfigFrom(cfg.Scorer),
		Queue: queue.Config{
			MaxDepth:   cfg.Queue.MaxDepth,
			MaxPerPair: cfg.Queue.MaxPerPair,
			MinScore:   cfg.Queue.MinScore,
		},
		Executor: executor.Config{
			LegOrder:           executor.LegOrder(cfg.Executor.LegOrder),
			MaxLeg1Retries:     cfg.Executor.MaxLeg1Retries,
			MaxLeg2Retries:     cfg.Executor.MaxLeg2Retries,
			RetryBaseDelay:     time.Duration(cfg.Executor.RetryBaseDelayMs) * time.Millisecond,
			RetryCapDelay:      time.Duration(cfg.Executor.RetryCapDelayMs) * time.Millisecond,
			Leg1Timeout:        time.Duration(cfg.Executor.Leg1TimeoutSeconds) * time.Second,
			Leg2Timeout:        time.Duration(cfg.Executor.Leg2TimeoutSeconds) * time.Second,
			MinFillRatio:       decimal.NewFromFloat(cfg.Executor.MinFillRatio),
			SimulationMode:     cfg.DryRun || cfg.Executor.SimulationMode,
			DexSlippageBps:     decimal.NewFromFloat(cfg.Executor.DexSlippageBps),
			DexDeadlineSeconds: cfg.Executor.DexDeadlineSeconds,
			PollInterval:       time.Duration(cfg.Executor.PollIntervalMs) * time.Millisecond,
			CancelTimeout:      time.Duration(cfg.Executor.CancelTimeoutSeconds) * time.Second,
		},
		Recovery: recoveryConfigFrom(cfg.Recovery),
		Capital: capital.Config{
			StartingCexUSD:           decimal.NewFromFloat(cfg.Capital.StartingCexUSD),
			StartingChainUSD:         decimal.NewFromFloat(cfg.Capital.StartingChainUSD),
			BridgeThresholdUSD:       decimal.NewFromFloat(cfg.Capital.BridgeThresholdUSD),
			MinTradableUSD:           decimal.NewFromFloat(cfg.Capital.MinTradableUSD),
			BridgeFixedCostUSD:       decimal.NewFromFloat(cfg.Capital.BridgeFixedCostUSD),
			AmortizationTargetTrades: cfg.Capital.AmortizationTargetTrades,
		},
		MaxConcurrentExecutions: cfg.Executor.MaxConcurrentExecutions,
		QuoteAsset:              "USDT",
	}
}

func scorerConfigFrom(c config.ScorerConfig) scorer.Config {
	sc := scorer.DefaultConfig()
	sc.SpreadWeight = c.WeightSpread
	sc.DepthWeight = c.WeightDepth
	sc.InventoryWeight = c.WeightInventory
	sc.HistoryWeight = c.WeightHistory
	sc.FreshnessWeight = c.WeightFreshness
	sc.HistoryMinSamples = c.HistoryMinSamples
	return sc
}

func recoveryConfigFrom(c config.RecoveryConfig) recovery.Config {
	rc := recovery.DefaultConfig()
	rc.Breaker.FailureThreshold = c.FailureThreshold
	rc.Breaker.WindowSeconds = time.Duration(c.WindowSeconds) * time.Second
	rc.Breaker.MaxDrawdownUSD = decimal.NewFromFloat(c.MaxDrawdownUSD)
	rc.Breaker.CooldownSeconds = time.Duration(c.CooldownSeconds) * time.Second
	rc.Breaker.HalfOpenAfterPct = c.HalfOpenAfterPct
	rc.Breaker.PerPair = c.PerPair
	rc.Replay.TTLSeconds = time.Duration(c.ReplayTTLSeconds) * time.Second
	rc.Replay.MaxEntries = c.ReplayMaxEntries
	rc.Replay.MaxAgeSeconds = time.Duration(c.ReplayMaxAgeSeconds) * time.Second
	return rc
}

func buildUniverse(cfg *config.Config, sim simfeed.Config) []orchestrator.PairUniverse {
	universe := make([]orchestrator.PairUniverse, 0, len(cfg.Pairs))
	for _, p := range cfg.Pairs {
		tierSpread := make(map[uint32]decimal.Decimal, len(p.TierMinSpreadBps))
		for tier, bps := range p.TierMinSpreadBps {
			tierSpread[tier] = decimal.NewFromFloat(bps)
		}
		universe = append(universe, orchestrator.PairUniverse{
			Pair: types.Pair{
				Base: p.Base, Quote: p.Quote,
				VenueSymbol:       p.VenueSymbol,
				TokenAddress:      p.TokenAddress,
				QuoteTokenAddress: p.QuoteTokenAddress,
				PoolFeeTierHint:   p.PoolFeeTierHint,
				MinTradableBase:   decimal.NewFromFloat(p.MinTradableBase),
				TierMinSpreadBps:  tierSpread,
			},
			SizeBase:       sim.DepthBase.Div(decimal.NewFromInt(10)),
			Fees:           generator.FeeInputs{CexMakerBps: sim.MakerFeeBps},
			GasPriceWei:    decimal.RequireFromString("30000000000"),
			NativeTokenUSD: sim.NativeUSD,
		})
	}
	return universe
}
