package config

import (
	"fmt"
	"os"
	"time"

	"github.com/vpk404/flashloan/internal/types"
	"gopkg.in/yaml.v3"
)

type Token struct {
	Addr     string `yaml:"addr"`
	Decimals int    `yaml:"decimals"`
	CgID     string `yaml:"cg_id"`
}

type Pair struct {
	AssetIn   string  `yaml:"asset_in"`  // loan asset, e.g. USDC
	AssetOut  string  `yaml:"asset_out"` // intermediate asset, e.g. WETH
	LoanUnits float64 `yaml:"loan_units"`
}

type Config struct {
	DryRun bool `yaml:"dry_run"`

	Chain struct {
		Network             string `yaml:"network"`
		RPCHTTP             string `yaml:"rpc_http"`
		ChainID             int64  `yaml:"chain_id"`
		WalletPK            string `yaml:"wallet_pk"`
		FlashLoanContract   string `yaml:"flashloan_contract"`
		LiquidationContract string `yaml:"liquidation_contract"`
		GasLimitSwap        uint64 `yaml:"gas_limit_swap"`
		GasLimitLiquidation uint64 `yaml:"gas_limit_liquidation"`
		NativeToken         string `yaml:"native_token"`
	} `yaml:"chain"`

	Tokens map[string]Token `yaml:"tokens"`

	Pairs []Pair `yaml:"pairs"`

	Venues struct {
		Enabled   []types.VenueID `yaml:"enabled"`
		QuickSwap struct {
			Router string `yaml:"router"`
		} `yaml:"quickswap"`
		SushiSwap struct {
			Router string `yaml:"router"`
		} `yaml:"sushiswap"`
		OneInch struct {
			BaseURL string `yaml:"base_url"`
			APIKey  string `yaml:"api_key"`
		} `yaml:"oneinch"`
	} `yaml:"venues"`

	Lending struct {
		Pool            string              `yaml:"pool"`
		LookbackBlocks  int64               `yaml:"lookback_blocks"`
		MinEventUSD     float64             `yaml:"min_event_usd"`
		CacheClearEvery int                 `yaml:"cache_clear_every"`
		PoolFeeTier     uint32              `yaml:"pool_fee_tier"`
		Collaterals     map[string][]string `yaml:"collaterals"`
	} `yaml:"lending"`

	Fees struct {
		LiquidationBonusPct float64 `yaml:"liquidation_bonus_pct"`
		FlashLoanFeePct     float64 `yaml:"flashloan_fee_pct"`
		SwapFeePct          float64 `yaml:"swap_fee_pct"`
		OverheadUSD         float64 `yaml:"overhead_usd"`
	} `yaml:"fees"`

	Risk struct {
		MinProfitUSD     float64 `yaml:"min_profit_usd"`
		MinSpreadPct     float64 `yaml:"min_spread_pct"`
		SlippagePct      float64 `yaml:"slippage_pct"`
		MaxGasPriceGwei  float64 `yaml:"max_gas_price_gwei"`
		MaxDailyAttempts int     `yaml:"max_daily_attempts"`
		BudgetUSD        float64 `yaml:"budget_usd"`
		FreshnessPct     float64 `yaml:"freshness_pct"`
		QuoteMaxAgeMs    int     `yaml:"quote_max_age_ms"`
	} `yaml:"risk"`

	Timings struct {
		ScanIntervalS  int `yaml:"scan_interval_s"`
		CooldownS      int `yaml:"cooldown_s"`
		VenueTimeoutMs int `yaml:"venue_timeout_ms"`
		ReceiptWaitS   int `yaml:"receipt_wait_s"`
	} `yaml:"timings"`

	Pricing struct {
		WsURL         string             `yaml:"ws_url"`
		WsSymbols     map[string]string  `yaml:"ws_symbols"` // exchange symbol -> token symbol, e.g. MATICUSDT: WMATIC
		CacheTTLS     int                `yaml:"cache_ttl_s"`
		Overrides     map[string]float64 `yaml:"overrides"`
		CoinGeckoBase string             `yaml:"coingecko_base"`
	} `yaml:"pricing"`

	Redis struct {
		Addr     string `yaml:"addr"`
		DB       int    `yaml:"db"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		Stream   string `yaml:"stream"`
	} `yaml:"redis"`

	Metrics struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"metrics"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	c.applyDefaults()
	if c.Chain.RPCHTTP == "" {
		return nil, fmt.Errorf("chain.rpc_http is required")
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Chain.ChainID == 0 {
		c.Chain.ChainID = 137
	}
	if c.Chain.GasLimitSwap == 0 {
		c.Chain.GasLimitSwap = 600000
	}
	if c.Chain.GasLimitLiquidation == 0 {
		c.Chain.GasLimitLiquidation = 1000000
	}
	if c.Chain.NativeToken == "" {
		c.Chain.NativeToken = "WMATIC"
	}
	if len(c.Venues.Enabled) == 0 {
		c.Venues.Enabled = []types.VenueID{types.VenueQuickSwap, types.VenueSushiSwap}
	}
	if c.Lending.LookbackBlocks == 0 {
		c.Lending.LookbackBlocks = 2000
	}
	if c.Lending.MinEventUSD == 0 {
		c.Lending.MinEventUSD = 50
	}
	if c.Lending.CacheClearEvery == 0 {
		c.Lending.CacheClearEvery = 10
	}
	if c.Lending.PoolFeeTier == 0 {
		c.Lending.PoolFeeTier = 3000
	}
	if c.Fees.LiquidationBonusPct == 0 {
		c.Fees.LiquidationBonusPct = 0.05
	}
	if c.Fees.FlashLoanFeePct == 0 {
		c.Fees.FlashLoanFeePct = 0.0009
	}
	if c.Fees.SwapFeePct == 0 {
		c.Fees.SwapFeePct = 0.003
	}
	if c.Fees.OverheadUSD == 0 {
		c.Fees.OverheadUSD = 0.50
	}
	if c.Risk.MinProfitUSD == 0 {
		c.Risk.MinProfitUSD = 2.0
	}
	if c.Risk.SlippagePct == 0 {
		c.Risk.SlippagePct = 0.005
	}
	if c.Risk.MaxGasPriceGwei == 0 {
		c.Risk.MaxGasPriceGwei = 80
	}
	if c.Risk.MaxDailyAttempts == 0 {
		c.Risk.MaxDailyAttempts = 3
	}
	if c.Risk.BudgetUSD == 0 {
		c.Risk.BudgetUSD = 30
	}
	if c.Risk.FreshnessPct == 0 {
		c.Risk.FreshnessPct = 0.01
	}
	if c.Risk.QuoteMaxAgeMs == 0 {
		c.Risk.QuoteMaxAgeMs = 15000
	}
	if c.Timings.ScanIntervalS == 0 {
		c.Timings.ScanIntervalS = 15
	}
	if c.Timings.CooldownS == 0 {
		c.Timings.CooldownS = 10
	}
	if c.Timings.VenueTimeoutMs == 0 {
		c.Timings.VenueTimeoutMs = 5000
	}
	if c.Timings.ReceiptWaitS == 0 {
		c.Timings.ReceiptWaitS = 120
	}
	if c.Pricing.CacheTTLS == 0 {
		c.Pricing.CacheTTLS = 60
	}
	if c.Pricing.CoinGeckoBase == "" {
		c.Pricing.CoinGeckoBase = "https://api.coingecko.com/api/v3"
	}
	if c.Redis.Stream == "" {
		c.Redis.Stream = "bot:decisions"
	}
}

func (c *Config) ScanInterval() time.Duration {
	return time.Duration(c.Timings.ScanIntervalS) * time.Second
}
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.Timings.CooldownS) * time.Second
}
func (c *Config) VenueTimeout() time.Duration {
	return time.Duration(c.Timings.VenueTimeoutMs) * time.Millisecond
}
func (c *Config) ReceiptWait() time.Duration {
	return time.Duration(c.Timings.ReceiptWaitS) * time.Second
}
func (c *Config) QuoteMaxAge() time.Duration {
	return time.Duration(c.Risk.QuoteMaxAgeMs) * time.Millisecond
}
func (c *Config) PriceCacheTTL() time.Duration {
	return time.Duration(c.Pricing.CacheTTLS) * time.Second
}

// Token returns the token entry for a symbol; second value false when the
// symbol is not configured.
func (c *Config) Token(symbol string) (Token, bool) {
	t, ok := c.Tokens[symbol]
	return t, ok
}
