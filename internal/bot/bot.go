package bot

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vpk404/flashloan/internal/chain"
	"github.com/vpk404/flashloan/internal/config"
	"github.com/vpk404/flashloan/internal/connectors/redisfeed"
	"github.com/vpk404/flashloan/internal/detector"
	"github.com/vpk404/flashloan/internal/execution"
	"github.com/vpk404/flashloan/internal/lending"
	"github.com/vpk404/flashloan/internal/marketdata"
	"github.com/vpk404/flashloan/internal/metrics"
	"github.com/vpk404/flashloan/internal/pricing"
	"github.com/vpk404/flashloan/internal/risk"
	"github.com/vpk404/flashloan/internal/types"
	"github.com/vpk404/flashloan/internal/venue"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Bot wires the pipeline together and drives it with a single scan loop.
type Bot struct {
	cfg     *config.Config
	log     *zap.Logger
	c       chain.Client
	px      *pricing.Oracle
	wsFeed  *pricing.WSFeed
	agg     *marketdata.Aggregator
	spreadA *venue.Venue
	spreadB *venue.Venue
	monitor *lending.Monitor
	tracker *risk.Tracker
	engine  *risk.Engine
	exec    *execution.Executor
	journal *redisfeed.Journal
}

func New(cfg *config.Config, log *zap.Logger) (*Bot, error) {
	c, err := chain.Dial(cfg.Chain.RPCHTTP)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}

	signer, err := chain.NewSigner(cfg.Chain.WalletPK)
	if err != nil {
		return nil, err
	}

	px := pricing.NewOracle(cfg, log)

	if r := cfg.Venues.QuickSwap.Router; r != "" {
		q, err := venue.NewRouterQuoter(types.VenueQuickSwap, r, cfg, c, log)
		if err != nil {
			return nil, err
		}
		venue.Register(&venue.Venue{ID: types.VenueQuickSwap, Router: q.RouterAddr(), Quoter: q})
	}
	if r := cfg.Venues.SushiSwap.Router; r != "" {
		q, err := venue.NewRouterQuoter(types.VenueSushiSwap, r, cfg, c, log)
		if err != nil {
			return nil, err
		}
		venue.Register(&venue.Venue{ID: types.VenueSushiSwap, Router: q.RouterAddr(), Quoter: q})
	}
	if cfg.Venues.OneInch.APIKey != "" {
		venue.Register(&venue.Venue{ID: types.VenueOneInch, Quoter: venue.NewOneInch(cfg, log)})
	}

	enabled := venue.Enabled(cfg.Venues.Enabled)
	if len(enabled) < 2 {
		return nil, fmt.Errorf("spread scan needs two venues, got %d", len(enabled))
	}

	var monitor *lending.Monitor
	if cfg.Lending.Pool != "" {
		monitor, err = lending.NewMonitor(cfg, c, px, log)
		if err != nil {
			return nil, err
		}
	}

	tracker := risk.NewTracker()
	exec, err := execution.NewExecutor(cfg, c, signer, tracker, px, execution.VenueRequoter{}, log)
	if err != nil {
		return nil, err
	}

	var journal *redisfeed.Journal
	if cfg.Redis.Addr != "" {
		journal = redisfeed.NewJournal(cfg)
	}

	return &Bot{
		cfg:     cfg,
		log:     log,
		c:       c,
		px:      px,
		wsFeed:  pricing.NewWSFeed(cfg, px, log),
		agg:     marketdata.NewAggregator(enabled, cfg.VenueTimeout(), log),
		spreadA: enabled[0],
		spreadB: enabled[1],
		monitor: monitor,
		tracker: tracker,
		engine:  risk.NewEngine(cfg, tracker, c, log),
		exec:    exec,
		journal: journal,
	}, nil
}

func (b *Bot) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		b.log.Warn("received signal, shutting down...")
		cancel()
	}()

	metrics.Serve(ctx, b.cfg.Metrics.ListenAddr, nil, b.log)
	go b.wsFeed.Run(ctx)

	mode := "LIVE"
	if b.cfg.DryRun {
		mode = "DRY-RUN"
		b.log.Warn("DRY-RUN: no real transactions will be sent")
	}
	b.log.Info("bot started",
		zap.String("mode", mode),
		zap.Int("pairs", len(b.cfg.Pairs)),
		zap.Bool("liquidations", b.monitor != nil),
		zap.Float64("min_profit_usd", b.cfg.Risk.MinProfitUSD),
		zap.Float64("max_gas_gwei", b.cfg.Risk.MaxGasPriceGwei),
		zap.Int("max_daily_attempts", b.cfg.Risk.MaxDailyAttempts),
		zap.Float64("budget_usd", b.cfg.Risk.BudgetUSD),
	)

	t := time.NewTicker(b.cfg.ScanInterval())
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			b.log.Info("bot finished")
			return
		case <-t.C:
			if submitted := b.cycle(ctx); submitted {
				// Cooldown after any live transaction, confirmed or
				// reverted, before the next scan.
				select {
				case <-ctx.Done():
				case <-time.After(b.cfg.Cooldown()):
				}
			}
		}
	}
}

// cycle runs one scan: detect, pick the single best candidate, evaluate,
// execute. Returns true when a live transaction was submitted.
func (b *Bot) cycle(ctx context.Context) bool {
	candidates := b.detect(ctx)
	if len(candidates) == 0 {
		return false
	}

	best := pickBest(candidates)

	d, err := b.engine.Evaluate(ctx, best)
	if err != nil {
		b.log.Warn("evaluation skipped", zap.Error(err))
		return false
	}
	b.publishDecision(ctx, d)
	if !d.Accepted {
		return false
	}

	res, reason, err := b.exec.Execute(ctx, best)
	if err != nil {
		switch {
		case types.IsSubmission(err):
			b.log.Error("submission failed", zap.Error(err))
		default:
			b.log.Warn("execution error", zap.Error(err))
		}
	}
	if reason != types.ReasonNone {
		b.log.Info("execution aborted", zap.String("reason", string(reason)))
	}
	b.publishResult(ctx, best, res, reason)
	return res.Submitted
}

func (b *Bot) detect(ctx context.Context) []types.Opportunity {
	out := make([]types.Opportunity, 0, 4)

	for _, pair := range b.cfg.Pairs {
		tok, ok := b.cfg.Token(pair.AssetIn)
		if !ok {
			b.log.Warn("pair references unknown token", zap.String("asset", pair.AssetIn))
			continue
		}
		notional := types.ToUnits(pair.LoanUnits, tok.Decimals)
		snap := b.agg.Snapshot(ctx, pair.AssetIn, pair.AssetOut, notional)

		opp, err := detector.DetectSpread(ctx, b.cfg, pair, snap, b.spreadA, b.spreadB, b.px, b.log)
		if err != nil {
			b.log.Warn("spread scan failed",
				zap.String("pair", pair.AssetIn+"/"+pair.AssetOut), zap.Error(err))
			continue
		}
		if opp != nil {
			out = append(out, *opp)
		}
	}

	if b.monitor != nil {
		positions, err := b.monitor.Scan(ctx)
		if err != nil {
			b.log.Warn("lending scan failed", zap.Error(err))
		} else {
			opps, err := detector.DetectLiquidations(ctx, b.cfg, positions, b.px, b.log)
			if err != nil {
				b.log.Warn("liquidation scan failed", zap.Error(err))
			} else {
				out = append(out, opps...)
			}
		}
	}
	return out
}

// pickBest returns the candidate with the highest estimated net profit;
// earlier candidates win ties.
func pickBest(opps []types.Opportunity) types.Opportunity {
	best := opps[0]
	for _, o := range opps[1:] {
		if o.NetProfitUSD() > best.NetProfitUSD() {
			best = o
		}
	}
	return best
}

func (b *Bot) publishDecision(ctx context.Context, d types.Decision) {
	if b.journal == nil {
		return
	}
	if err := b.journal.PublishDecision(ctx, d); err != nil {
		b.log.Warn("journal decision failed", zap.Error(err))
	}
}

func (b *Bot) publishResult(ctx context.Context, opp types.Opportunity, res types.ExecutionResult, reason types.Reason) {
	if b.journal == nil {
		return
	}
	if err := b.journal.PublishResult(ctx, opp, res, reason); err != nil {
		b.log.Warn("journal result failed", zap.Error(err))
	}
}

func NewLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.CallerKey = "caller"
	cfg.EncoderConfig.StacktraceKey = "stacktrace"
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	return cfg.Build()
}
