package detector

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vpk404/flashloan/internal/config"
	"github.com/vpk404/flashloan/internal/types"
	"go.uber.org/zap"
)

func lendingConfig() *config.Config {
	cfg := &config.Config{
		Tokens: map[string]config.Token{
			"USDC": {Addr: "0x2791bca1f2de4661ed88a30c99a7a9449aa84174", Decimals: 6},
		},
	}
	cfg.Lending.Collaterals = map[string][]string{
		"USDC": {"WETH", "WMATIC"},
	}
	cfg.Fees.LiquidationBonusPct = 0.05
	cfg.Fees.FlashLoanFeePct = 0.0009
	cfg.Fees.SwapFeePct = 0.003
	cfg.Fees.OverheadUSD = 0.50
	return cfg
}

func TestDetectLiquidations_UnhealthyPosition(t *testing.T) {
	cfg := lendingConfig()
	borrower := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	positions := []types.PositionSnapshot{
		{
			Borrower:     borrower,
			DebtAsset:    "USDC",
			DebtAmount:   big.NewInt(1_000_000_000), // 1,000 USDC
			HealthFactor: 0.95,
		},
	}

	opps, err := DetectLiquidations(context.Background(), cfg, positions, fakePx{"USDC": 1.0}, zap.NewNop())
	require.NoError(t, err)
	require.Len(t, opps, 1)

	opp := opps[0]
	assert.Equal(t, types.KindLiquidation, opp.Kind)
	assert.Equal(t, borrower, opp.Borrower)
	assert.Equal(t, "USDC", opp.DebtAsset)
	// Fixed fee model ties across candidates; the first in list order wins.
	assert.Equal(t, "WETH", opp.CollateralAsset)
	assert.InDelta(t, 50.0, opp.GrossProfitUSD, 1e-9)
	assert.InDelta(t, 4.4, opp.FeesUSD, 1e-9) // 1000*(0.0009+0.003) + 0.50
	assert.InDelta(t, 45.6, opp.NetProfitUSD(), 1e-9)
}

func TestDetectLiquidations_HealthyPositionSkipped(t *testing.T) {
	cfg := lendingConfig()
	positions := []types.PositionSnapshot{
		{
			Borrower:     common.HexToAddress("0x00000000000000000000000000000000000000bb"),
			DebtAsset:    "USDC",
			DebtAmount:   big.NewInt(5_000_000_000),
			HealthFactor: 1.2,
		},
	}

	opps, err := DetectLiquidations(context.Background(), cfg, positions, fakePx{"USDC": 1.0}, zap.NewNop())
	require.NoError(t, err)
	assert.Empty(t, opps)
}

func TestDetectLiquidations_NoCollateralCandidates(t *testing.T) {
	cfg := lendingConfig()
	cfg.Lending.Collaterals = map[string][]string{}
	positions := []types.PositionSnapshot{
		{
			Borrower:     common.HexToAddress("0x00000000000000000000000000000000000000cc"),
			DebtAsset:    "USDC",
			DebtAmount:   big.NewInt(1_000_000_000),
			HealthFactor: 0.8,
		},
	}

	opps, err := DetectLiquidations(context.Background(), cfg, positions, fakePx{"USDC": 1.0}, zap.NewNop())
	require.NoError(t, err)
	assert.Empty(t, opps)
}
