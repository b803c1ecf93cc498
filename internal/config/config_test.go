package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vpk404/flashloan/internal/types"
)

const sampleYAML = `
dry_run: true
chain:
  rpc_http: https://polygon-rpc.com
  wallet_pk: "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
  flashloan_contract: "0x0000000000000000000000000000000000000f1a"
tokens:
  USDC:
    addr: "0x2791bca1f2de4661ed88a30c99a7a9449aa84174"
    decimals: 6
  WETH:
    addr: "0x7ceb23fd6bc0add59e62ac25578270cff1b9f619"
    decimals: 18
    cg_id: weth
pairs:
  - asset_in: USDC
    asset_out: WETH
    loan_units: 1000
risk:
  min_profit_usd: 5
  max_gas_price_gwei: 100
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.True(t, cfg.DryRun)
	assert.Equal(t, "https://polygon-rpc.com", cfg.Chain.RPCHTTP)
	require.Len(t, cfg.Pairs, 1)
	assert.Equal(t, "USDC", cfg.Pairs[0].AssetIn)
	assert.Equal(t, 1000.0, cfg.Pairs[0].LoanUnits)

	tok, ok := cfg.Token("WETH")
	require.True(t, ok)
	assert.Equal(t, 18, tok.Decimals)
	assert.Equal(t, "weth", tok.CgID)
	_, ok = cfg.Token("WBTC")
	assert.False(t, ok)

	// Explicit values survive; gaps get defaults.
	assert.Equal(t, 5.0, cfg.Risk.MinProfitUSD)
	assert.Equal(t, 100.0, cfg.Risk.MaxGasPriceGwei)
	assert.Equal(t, int64(137), cfg.Chain.ChainID)
	assert.Equal(t, uint64(600000), cfg.Chain.GasLimitSwap)
	assert.Equal(t, "WMATIC", cfg.Chain.NativeToken)
	assert.Equal(t, 3, cfg.Risk.MaxDailyAttempts)
	assert.Equal(t, 30.0, cfg.Risk.BudgetUSD)
	assert.Equal(t, 0.0009, cfg.Fees.FlashLoanFeePct)
	assert.Equal(t, []types.VenueID{types.VenueQuickSwap, types.VenueSushiSwap}, cfg.Venues.Enabled)
	assert.Equal(t, "bot:decisions", cfg.Redis.Stream)
}

func TestLoad_Durations(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, cfg.ScanInterval())
	assert.Equal(t, 10*time.Second, cfg.Cooldown())
	assert.Equal(t, 5*time.Second, cfg.VenueTimeout())
	assert.Equal(t, 120*time.Second, cfg.ReceiptWait())
	assert.Equal(t, 15*time.Second, cfg.QuoteMaxAge())
	assert.Equal(t, time.Minute, cfg.PriceCacheTTL())
}

func TestLoad_MissingRPC(t *testing.T) {
	_, err := Load(writeConfig(t, "dry_run: true\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc_http")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_BadYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "chain: [not a map"))
	assert.Error(t, err)
}
