package detector

import (
	"context"
	"math/big"
	"time"

	"github.com/vpk404/flashloan/internal/config"
	"github.com/vpk404/flashloan/internal/types"
	"go.uber.org/zap"
)

// DetectLiquidations turns unhealthy position snapshots into liquidation
// opportunities. For each eligible borrower the configured collateral
// candidates for the debt asset are tried under the fixed fee model and the
// most profitable one wins; ties keep the first in list order.
func DetectLiquidations(ctx context.Context, cfg *config.Config, positions []types.PositionSnapshot, px PriceSource, log *zap.Logger) ([]types.Opportunity, error) {
	out := make([]types.Opportunity, 0, 2)
	for _, pos := range positions {
		if pos.HealthFactor >= 1.0 {
			continue
		}

		tok, ok := cfg.Token(pos.DebtAsset)
		if !ok {
			continue
		}
		pxDebt, err := px.USD(ctx, pos.DebtAsset)
		if err != nil {
			log.Warn("no price for debt asset", zap.String("asset", pos.DebtAsset), zap.Error(err))
			continue
		}
		debtUSD := types.FromUnits(pos.DebtAmount, tok.Decimals) * pxDebt

		candidates := cfg.Lending.Collaterals[pos.DebtAsset]
		if len(candidates) == 0 {
			continue
		}

		best := ""
		bestProfit := 0.0
		for _, coll := range candidates {
			profit := liquidationProfitUSD(cfg, debtUSD)
			if best == "" || profit > bestProfit {
				best, bestProfit = coll, profit
			}
		}

		log.Info("liquidatable position",
			zap.String("borrower", pos.Borrower.Hex()),
			zap.Float64("health_factor", pos.HealthFactor),
			zap.Float64("debt_usd", debtUSD),
			zap.String("collateral", best),
			zap.Float64("est_profit_usd", bestProfit),
		)

		out = append(out, types.Opportunity{
			Kind:            types.KindLiquidation,
			Borrower:        pos.Borrower,
			DebtAsset:       pos.DebtAsset,
			DebtAmount:      new(big.Int).Set(pos.DebtAmount),
			CollateralAsset: best,
			GrossProfitUSD:  debtUSD * cfg.Fees.LiquidationBonusPct,
			FeesUSD:         debtUSD*(cfg.Fees.FlashLoanFeePct+cfg.Fees.SwapFeePct) + cfg.Fees.OverheadUSD,
			Ts:              time.Now(),
		})
	}
	return out, nil
}

// liquidationProfitUSD applies the fixed fee model: liquidation bonus minus
// flash-loan fee minus swap fee minus overhead.
func liquidationProfitUSD(cfg *config.Config, debtUSD float64) float64 {
	return debtUSD*cfg.Fees.LiquidationBonusPct -
		debtUSD*cfg.Fees.FlashLoanFeePct -
		debtUSD*cfg.Fees.SwapFeePct -
		cfg.Fees.OverheadUSD
}
