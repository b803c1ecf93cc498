package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type VenueID string

const (
	VenueQuickSwap VenueID = "quickswap"
	VenueSushiSwap VenueID = "sushiswap"
	VenueOneInch   VenueID = "oneinch"
)

type Kind string

const (
	KindArbitrage   Kind = "ARBITRAGE"
	KindLiquidation Kind = "LIQUIDATION"
)

type Reason string

const (
	ReasonNone             Reason = "NONE"
	ReasonProfitTooLow     Reason = "PROFIT_TOO_LOW"
	ReasonSlippageExceeded Reason = "SLIPPAGE_EXCEEDED"
	ReasonGasTooHigh       Reason = "GAS_TOO_HIGH"
	ReasonQuotaExceeded    Reason = "QUOTA_EXCEEDED"
	ReasonBudgetExhausted  Reason = "BUDGET_EXHAUSTED"
	ReasonStaleQuote       Reason = "STALE_QUOTE"
	ReasonSimulationFailed Reason = "SIMULATION_FAILED"
)

// Quote is a single venue's answer for one pair and notional.
// Amounts are raw integer base units; never floats.
type Quote struct {
	Venue     VenueID
	AssetIn   string
	AssetOut  string
	AmountIn  *big.Int
	AmountOut *big.Int
	Ts        time.Time
}

// Fresh reports whether the quote is young enough to act on.
func (q Quote) Fresh(maxAge time.Duration) bool {
	return !q.Ts.IsZero() && time.Since(q.Ts) <= maxAge
}

// PositionSnapshot is one borrower's state on the lending pool.
// HealthFactor below 1.0 marks the position liquidatable.
type PositionSnapshot struct {
	Borrower     common.Address
	DebtAsset    string
	DebtAmount   *big.Int
	HealthFactor float64
}

// Opportunity is a tagged union over the two strategies. Kind decides
// which of the field groups is meaningful.
type Opportunity struct {
	Kind Kind

	// Arbitrage fields
	BuyVenue  VenueID
	SellVenue VenueID
	AssetIn   string
	AssetOut  string
	Notional  *big.Int

	// Liquidation fields
	Borrower        common.Address
	DebtAsset       string
	DebtAmount      *big.Int
	CollateralAsset string

	// QuoteUsed is the detection-time quote the trade was sized on;
	// the executor re-quotes against it before submitting.
	QuoteUsed Quote

	GrossProfitUSD float64
	FeesUSD        float64
	Ts             time.Time
}

// NetProfitUSD is the estimate the profit gate compares against the floor.
func (o Opportunity) NetProfitUSD() float64 {
	return o.GrossProfitUSD - o.FeesUSD
}

type Decision struct {
	Opp          Opportunity
	Accepted     bool
	Reason       Reason
	NetProfitUSD float64
}

type ExecutionResult struct {
	TxHash     string
	Simulated  bool
	Submitted  bool
	Confirmed  bool
	Reverted   bool
	GasCostUSD float64
}

// FromUnits converts a raw integer amount into a float using the token's
// decimals. Fine for USD estimates; raw amounts stay *big.Int everywhere else.
func FromUnits(amount *big.Int, decimals int) float64 {
	if amount == nil {
		return 0
	}
	f := new(big.Float).SetInt(amount)
	scale := new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil))
	out, _ := new(big.Float).Quo(f, scale).Float64()
	return out
}

// ToUnits converts a human amount into raw integer base units.
func ToUnits(amount float64, decimals int) *big.Int {
	f := new(big.Float).Mul(big.NewFloat(amount), new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)))
	out, _ := f.Int(nil)
	return out
}
