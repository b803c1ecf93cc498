package detector

import (
	"context"
	"math/big"
	"time"

	"github.com/vpk404/flashloan/internal/config"
	"github.com/vpk404/flashloan/internal/marketdata"
	"github.com/vpk404/flashloan/internal/metrics"
	"github.com/vpk404/flashloan/internal/types"
	"github.com/vpk404/flashloan/internal/venue"
	"go.uber.org/zap"
)

// PriceSource is the slice of the pricing oracle the detector needs.
type PriceSource interface {
	USD(ctx context.Context, symbol string) (float64, error)
}

// DetectSpread compares the round trip across exactly two venues in both
// directions and returns the better positive one, or nil when neither clears
// the spread floor. The first leg comes from the snapshot; the closing leg is
// quoted here because its input depends on the first leg's output.
func DetectSpread(ctx context.Context, cfg *config.Config, pair config.Pair, snap marketdata.Snapshot, va, vb *venue.Venue, px PriceSource, log *zap.Logger) (*types.Opportunity, error) {
	qa, okA := snap.QuoteBy(va.ID)
	qb, okB := snap.QuoteBy(vb.ID)
	if !okA || !okB {
		// Partial snapshot: nothing to compare this cycle.
		return nil, nil
	}

	profitAB, err := closeRoundTrip(ctx, vb, pair, snap.Notional, qa)
	if err != nil {
		return nil, err
	}
	profitBA, err := closeRoundTrip(ctx, va, pair, snap.Notional, qb)
	if err != nil {
		return nil, err
	}

	buy, sell := va, vb
	profit, firstLeg := profitAB, qa
	if profitBA.Cmp(profitAB) > 0 {
		buy, sell = vb, va
		profit, firstLeg = profitBA, qb
	}
	if profit.Sign() <= 0 {
		return nil, nil
	}

	tin, _ := cfg.Token(pair.AssetIn)
	notionalF := types.FromUnits(snap.Notional, tin.Decimals)
	profitF := types.FromUnits(profit, tin.Decimals)
	spreadPct := profitF / notionalF * 100
	metrics.SpreadPct.Set(spreadPct)

	if spreadPct < cfg.Risk.MinSpreadPct {
		log.Debug("spread below floor",
			zap.String("pair", pair.AssetIn+"/"+pair.AssetOut),
			zap.Float64("spread_pct", spreadPct),
		)
		return nil, nil
	}

	pxIn, err := px.USD(ctx, pair.AssetIn)
	if err != nil {
		return nil, err
	}
	notionalUSD := notionalF * pxIn

	opp := &types.Opportunity{
		Kind:           types.KindArbitrage,
		BuyVenue:       buy.ID,
		SellVenue:      sell.ID,
		AssetIn:        pair.AssetIn,
		AssetOut:       pair.AssetOut,
		Notional:       new(big.Int).Set(snap.Notional),
		QuoteUsed:      firstLeg,
		GrossProfitUSD: profitF * pxIn,
		FeesUSD:        notionalUSD*cfg.Fees.FlashLoanFeePct + cfg.Fees.OverheadUSD,
		Ts:             time.Now(),
	}
	log.Info("spread opportunity",
		zap.String("buy", string(buy.ID)),
		zap.String("sell", string(sell.ID)),
		zap.Float64("spread_pct", spreadPct),
		zap.Float64("gross_usd", opp.GrossProfitUSD),
	)
	return opp, nil
}

// closeRoundTrip quotes the second leg (assetOut back to assetIn) on the
// closing venue and returns out minus the opening notional.
func closeRoundTrip(ctx context.Context, closing *venue.Venue, pair config.Pair, notional *big.Int, firstLeg types.Quote) (*big.Int, error) {
	back, err := closing.Quoter.Quote(ctx, pair.AssetOut, pair.AssetIn, firstLeg.AmountOut)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Sub(back.AmountOut, notional), nil
}
