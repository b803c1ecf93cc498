package risk

import (
	"context"
	"math/big"

	"github.com/vpk404/flashloan/internal/chain"
	"github.com/vpk404/flashloan/internal/config"
	"github.com/vpk404/flashloan/internal/metrics"
	"github.com/vpk404/flashloan/internal/types"
	"go.uber.org/zap"
)

// GasPricer reads the current network gas price. chain.Client satisfies it.
type GasPricer interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// Engine applies the ordered gate chain to a candidate opportunity. It reads
// the tracker but never mutates it; only the executor records attempts and
// spend.
type Engine struct {
	cfg     *config.Config
	tracker *Tracker
	gas     GasPricer
	log     *zap.Logger
}

func NewEngine(cfg *config.Config, tracker *Tracker, gas GasPricer, log *zap.Logger) *Engine {
	return &Engine{cfg: cfg, tracker: tracker, gas: gas, log: log}
}

// Evaluate short-circuits at the first failing gate: profit floor, gas price
// ceiling, daily attempt quota, spend budget. The freshness re-check happens
// later, at the submission edge, because venue state keeps moving between
// detection and submit.
func (e *Engine) Evaluate(ctx context.Context, opp types.Opportunity) (types.Decision, error) {
	net := opp.NetProfitUSD()
	metrics.NetProfitUSD.Set(net)
	d := types.Decision{Opp: opp, NetProfitUSD: net}

	if net < e.cfg.Risk.MinProfitUSD {
		return e.reject(d, types.ReasonProfitTooLow), nil
	}

	gwei, err := chain.GasPriceGwei(ctx, e.gas)
	if err != nil {
		return d, types.WrapErr(types.ErrTransient, "gas price", err)
	}
	metrics.GasPriceGwei.Set(gwei)
	if gwei > e.cfg.Risk.MaxGasPriceGwei {
		e.log.Warn("gas price above ceiling",
			zap.Float64("gwei", gwei),
			zap.Float64("max_gwei", e.cfg.Risk.MaxGasPriceGwei),
		)
		return e.reject(d, types.ReasonGasTooHigh), nil
	}

	if e.tracker.AttemptsToday() >= e.cfg.Risk.MaxDailyAttempts {
		return e.reject(d, types.ReasonQuotaExceeded), nil
	}

	if e.tracker.SpentUSD() >= e.cfg.Risk.BudgetUSD {
		return e.reject(d, types.ReasonBudgetExhausted), nil
	}

	d.Accepted = true
	d.Reason = types.ReasonNone
	return d, nil
}

func (e *Engine) reject(d types.Decision, reason types.Reason) types.Decision {
	d.Accepted = false
	d.Reason = reason
	metrics.GateRejections.WithLabelValues(string(reason)).Inc()
	e.log.Info("opportunity rejected",
		zap.String("kind", string(d.Opp.Kind)),
		zap.String("reason", string(reason)),
		zap.Float64("net_usd", d.NetProfitUSD),
	)
	return d
}
