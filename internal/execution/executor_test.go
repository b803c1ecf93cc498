package execution

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vpk404/flashloan/internal/chain"
	"github.com/vpk404/flashloan/internal/config"
	"github.com/vpk404/flashloan/internal/risk"
	"github.com/vpk404/flashloan/internal/types"
	"github.com/vpk404/flashloan/internal/venue"
	"go.uber.org/zap"
)

// Well-known hardhat dev key; holds nothing anywhere real.
const testPK = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

type fakeChain struct {
	calls []string

	estimate    uint64
	estimateErr error
	callErr     error
	sendErr     error
	receipt     *ethtypes.Receipt
	receiptErr  error

	estMsg ethereum.CallMsg
	sentTx *ethtypes.Transaction
}

func (f *fakeChain) CallContract(_ context.Context, _ ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	f.calls = append(f.calls, "call")
	if f.callErr != nil {
		return nil, f.callErr
	}
	return []byte{}, nil
}

func (f *fakeChain) FilterLogs(context.Context, ethereum.FilterQuery) ([]ethtypes.Log, error) {
	return nil, nil
}

func (f *fakeChain) BlockNumber(context.Context) (uint64, error) { return 52_000_000, nil }

func (f *fakeChain) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(40_000_000_000), nil
}

func (f *fakeChain) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(30_000_000_000), nil
}

func (f *fakeChain) EstimateGas(_ context.Context, msg ethereum.CallMsg) (uint64, error) {
	f.calls = append(f.calls, "estimate")
	f.estMsg = msg
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return f.estimate, nil
}

func (f *fakeChain) HeaderByNumber(context.Context, *big.Int) (*ethtypes.Header, error) {
	return &ethtypes.Header{BaseFee: big.NewInt(30_000_000_000)}, nil
}

func (f *fakeChain) PendingNonceAt(context.Context, common.Address) (uint64, error) { return 7, nil }

func (f *fakeChain) ChainID(context.Context) (*big.Int, error) { return big.NewInt(137), nil }

func (f *fakeChain) SendTransaction(_ context.Context, tx *ethtypes.Transaction) error {
	f.calls = append(f.calls, "send")
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sentTx = tx
	return nil
}

func (f *fakeChain) TransactionReceipt(_ context.Context, _ common.Hash) (*ethtypes.Receipt, error) {
	f.calls = append(f.calls, "receipt")
	return f.receipt, f.receiptErr
}

var _ chain.Client = (*fakeChain)(nil)

type fakeRequoter struct {
	out *big.Int
	err error
}

func (f fakeRequoter) Requote(context.Context, types.Opportunity) (*big.Int, error) {
	return f.out, f.err
}

// fakeAggVenue quotes nothing but hands back a ready swap payload, the way
// the 1inch venue does.
type fakeAggVenue struct {
	to   common.Address
	data []byte

	gotSlippage float64
}

func (f *fakeAggVenue) Quote(context.Context, string, string, *big.Int) (types.Quote, error) {
	return types.Quote{}, errors.New("not a quoting venue")
}

func (f *fakeAggVenue) BuildSwapCalldata(_ context.Context, _, _ string, _ *big.Int, slippagePct float64, _ common.Address) (common.Address, []byte, error) {
	f.gotSlippage = slippagePct
	return f.to, f.data, nil
}

var _ venue.CalldataBuilder = (*fakeAggVenue)(nil)

type fakePrice map[string]float64

func (p fakePrice) USD(_ context.Context, symbol string) (float64, error) {
	v, ok := p[symbol]
	if !ok {
		return 0, fmt.Errorf("no price for %s", symbol)
	}
	return v, nil
}

func execConfig(dryRun bool) *config.Config {
	cfg := &config.Config{
		DryRun: dryRun,
		Tokens: map[string]config.Token{
			"USDC": {Addr: "0x2791bca1f2de4661ed88a30c99a7a9449aa84174", Decimals: 6},
			"WETH": {Addr: "0x7ceb23fd6bc0add59e62ac25578270cff1b9f619", Decimals: 18},
		},
	}
	cfg.Chain.FlashLoanContract = "0x0000000000000000000000000000000000000f1a"
	cfg.Chain.LiquidationContract = "0x0000000000000000000000000000000000000f1b"
	cfg.Chain.GasLimitSwap = 600_000
	cfg.Chain.GasLimitLiquidation = 1_000_000
	cfg.Chain.NativeToken = "WMATIC"
	cfg.Lending.PoolFeeTier = 3000
	cfg.Fees.FlashLoanFeePct = 0.0009
	cfg.Risk.FreshnessPct = 0.01
	cfg.Risk.QuoteMaxAgeMs = 15_000
	cfg.Timings.ReceiptWaitS = 5
	return cfg
}

func newTestExecutor(t *testing.T, cfg *config.Config, c chain.Client, tr *risk.Tracker, rq Requoter) *Executor {
	t.Helper()
	venue.Register(&venue.Venue{ID: types.VenueQuickSwap, Router: common.HexToAddress("0x00000000000000000000000000000000000000a1")})
	venue.Register(&venue.Venue{ID: types.VenueSushiSwap, Router: common.HexToAddress("0x00000000000000000000000000000000000000a2")})

	signer, err := chain.NewSigner(testPK)
	require.NoError(t, err)
	e, err := NewExecutor(cfg, c, signer, tr, fakePrice{"WMATIC": 0.5}, rq, zap.NewNop())
	require.NoError(t, err)
	return e
}

func arbOpp() types.Opportunity {
	return types.Opportunity{
		Kind:      types.KindArbitrage,
		BuyVenue:  types.VenueQuickSwap,
		SellVenue: types.VenueSushiSwap,
		AssetIn:   "USDC",
		AssetOut:  "WETH",
		Notional:  big.NewInt(1_000_000_000),
		QuoteUsed: types.Quote{
			Venue:     types.VenueQuickSwap,
			AssetIn:   "USDC",
			AssetOut:  "WETH",
			AmountIn:  big.NewInt(1_000_000_000),
			AmountOut: big.NewInt(500_000_000_000_000_000),
			Ts:        time.Now(),
		},
		GrossProfitUSD: 10.1,
		FeesUSD:        1.4,
		Ts:             time.Now(),
	}
}

func TestExecute_DryRunStopsBeforeSend(t *testing.T) {
	fc := &fakeChain{estimate: 400_000}
	tr := risk.NewTracker()
	e := newTestExecutor(t, execConfig(true), fc, tr, fakeRequoter{out: big.NewInt(500_000_000_000_000_000)})

	res, reason, err := e.Execute(context.Background(), arbOpp())
	require.NoError(t, err)
	assert.Equal(t, types.ReasonNone, reason)
	assert.True(t, res.Simulated)
	assert.False(t, res.Submitted)
	assert.Equal(t, []string{"estimate", "call"}, fc.calls)
	assert.Equal(t, 0, tr.AttemptsToday())
}

func TestExecute_EstimateFailureAborts(t *testing.T) {
	fc := &fakeChain{estimateErr: errors.New("execution reverted")}
	tr := risk.NewTracker()
	e := newTestExecutor(t, execConfig(false), fc, tr, fakeRequoter{out: big.NewInt(500_000_000_000_000_000)})

	res, reason, err := e.Execute(context.Background(), arbOpp())
	require.NoError(t, err)
	assert.Equal(t, types.ReasonSimulationFailed, reason)
	assert.False(t, res.Simulated)
	assert.False(t, res.Submitted)
	assert.NotContains(t, fc.calls, "send")
	assert.Equal(t, 0, tr.AttemptsToday())
	assert.Zero(t, tr.SpentUSD())
}

func TestExecute_SimulationFailureAborts(t *testing.T) {
	fc := &fakeChain{estimate: 400_000, callErr: errors.New("execution reverted")}
	tr := risk.NewTracker()
	e := newTestExecutor(t, execConfig(false), fc, tr, fakeRequoter{out: big.NewInt(500_000_000_000_000_000)})

	res, reason, err := e.Execute(context.Background(), arbOpp())
	require.NoError(t, err)
	assert.Equal(t, types.ReasonSimulationFailed, reason)
	assert.False(t, res.Simulated)
	assert.NotContains(t, fc.calls, "send")
	assert.Equal(t, 0, tr.AttemptsToday())
}

func TestExecute_StaleRequoteAborts(t *testing.T) {
	fc := &fakeChain{estimate: 400_000}
	tr := risk.NewTracker()
	// Re-quote came back 2% better than the sizing quote; tolerance is 1%.
	e := newTestExecutor(t, execConfig(false), fc, tr, fakeRequoter{out: big.NewInt(510_000_000_000_000_000)})

	res, reason, err := e.Execute(context.Background(), arbOpp())
	require.NoError(t, err)
	assert.Equal(t, types.ReasonStaleQuote, reason)
	assert.True(t, res.Simulated)
	assert.False(t, res.Submitted)
	assert.NotContains(t, fc.calls, "send")
	assert.Equal(t, 0, tr.AttemptsToday())
}

func TestExecute_AgedQuoteAbortsUpfront(t *testing.T) {
	fc := &fakeChain{estimate: 400_000}
	tr := risk.NewTracker()
	e := newTestExecutor(t, execConfig(false), fc, tr, fakeRequoter{out: big.NewInt(500_000_000_000_000_000)})

	opp := arbOpp()
	opp.QuoteUsed.Ts = time.Now().Add(-time.Minute)

	res, reason, err := e.Execute(context.Background(), opp)
	require.NoError(t, err)
	assert.Equal(t, types.ReasonStaleQuote, reason)
	assert.False(t, res.Simulated)
	assert.Empty(t, fc.calls)
}

func TestExecute_LiveSuccess(t *testing.T) {
	fc := &fakeChain{
		estimate: 500_000,
		receipt: &ethtypes.Receipt{
			Status:            1,
			GasUsed:           500_000,
			EffectiveGasPrice: big.NewInt(40_000_000_000),
		},
	}
	tr := risk.NewTracker()
	e := newTestExecutor(t, execConfig(false), fc, tr, fakeRequoter{out: big.NewInt(500_000_000_000_000_000)})

	res, reason, err := e.Execute(context.Background(), arbOpp())
	require.NoError(t, err)
	assert.Equal(t, types.ReasonNone, reason)
	assert.True(t, res.Simulated)
	assert.True(t, res.Submitted)
	assert.True(t, res.Confirmed)
	assert.False(t, res.Reverted)
	assert.NotEmpty(t, res.TxHash)

	// Simulation always precedes broadcast.
	assert.Equal(t, []string{"estimate", "call", "send", "receipt"}, fc.calls)

	// 500k gas * 40 gwei = 0.02 native, at $0.50.
	assert.InDelta(t, 0.01, res.GasCostUSD, 1e-9)
	assert.Equal(t, 1, tr.AttemptsToday())
	assert.InDelta(t, 0.01, tr.SpentUSD(), 1e-9)
}

func TestExecute_RevertedStillSpendsBudget(t *testing.T) {
	fc := &fakeChain{
		estimate: 500_000,
		receipt: &ethtypes.Receipt{
			Status:            0,
			GasUsed:           480_000,
			EffectiveGasPrice: big.NewInt(40_000_000_000),
		},
	}
	tr := risk.NewTracker()
	e := newTestExecutor(t, execConfig(false), fc, tr, fakeRequoter{out: big.NewInt(500_000_000_000_000_000)})

	res, reason, err := e.Execute(context.Background(), arbOpp())
	require.NoError(t, err)
	assert.Equal(t, types.ReasonNone, reason)
	assert.True(t, res.Submitted)
	assert.True(t, res.Reverted)
	assert.False(t, res.Confirmed)
	assert.Equal(t, 1, tr.AttemptsToday())
	assert.Greater(t, tr.SpentUSD(), 0.0)
}

func TestExecute_BroadcastFailureCountsNothing(t *testing.T) {
	fc := &fakeChain{estimate: 500_000, sendErr: errors.New("nonce too low")}
	tr := risk.NewTracker()
	e := newTestExecutor(t, execConfig(false), fc, tr, fakeRequoter{out: big.NewInt(500_000_000_000_000_000)})

	res, reason, err := e.Execute(context.Background(), arbOpp())
	require.Error(t, err)
	assert.True(t, types.IsSubmission(err))
	assert.Equal(t, types.ReasonNone, reason)
	assert.False(t, res.Submitted)
	assert.Equal(t, 0, tr.AttemptsToday())
	assert.Zero(t, tr.SpentUSD())
}

func TestExecute_AggregatorLegSendsSwapCalldata(t *testing.T) {
	agg := &fakeAggVenue{
		to:   common.HexToAddress("0x1111111254eeb25477b68fb85ed929f73a960582"),
		data: []byte{0xde, 0xad, 0xbe, 0xef},
	}
	venue.Register(&venue.Venue{ID: types.VenueOneInch, Quoter: agg})

	cfg := execConfig(true)
	cfg.Risk.SlippagePct = 0.005
	fc := &fakeChain{estimate: 400_000}
	tr := risk.NewTracker()
	e := newTestExecutor(t, cfg, fc, tr, fakeRequoter{out: big.NewInt(500_000_000_000_000_000)})

	opp := arbOpp()
	opp.BuyVenue = types.VenueOneInch
	opp.QuoteUsed.Venue = types.VenueOneInch

	res, reason, err := e.Execute(context.Background(), opp)
	require.NoError(t, err)
	assert.Equal(t, types.ReasonNone, reason)
	assert.True(t, res.Simulated)

	// The simulated payload is the aggregator's, not a flash-loan pack.
	require.NotNil(t, fc.estMsg.To)
	assert.Equal(t, agg.to, *fc.estMsg.To)
	assert.Equal(t, agg.data, fc.estMsg.Data)
	assert.InDelta(t, 0.005, agg.gotSlippage, 1e-12)
}

func TestBuildPayload_RouterlessSellVenueRejected(t *testing.T) {
	venue.Register(&venue.Venue{ID: types.VenueOneInch, Quoter: &fakeAggVenue{}})
	fc := &fakeChain{estimate: 400_000}
	e := newTestExecutor(t, execConfig(false), fc, risk.NewTracker(), fakeRequoter{})

	// Closing on a router-less venue cannot go through the flash-loan
	// contract, which only takes router addresses.
	opp := arbOpp()
	opp.SellVenue = types.VenueOneInch

	_, _, _, err := e.buildPayload(context.Background(), opp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no router")
}

func TestExecute_GasAccountingWithoutNativePrice(t *testing.T) {
	fc := &fakeChain{
		estimate: 500_000,
		receipt: &ethtypes.Receipt{
			Status:            0,
			GasUsed:           500_000,
			EffectiveGasPrice: big.NewInt(40_000_000_000),
		},
	}
	tr := risk.NewTracker()
	venue.Register(&venue.Venue{ID: types.VenueQuickSwap, Router: common.HexToAddress("0x00000000000000000000000000000000000000a1")})
	venue.Register(&venue.Venue{ID: types.VenueSushiSwap, Router: common.HexToAddress("0x00000000000000000000000000000000000000a2")})
	signer, err := chain.NewSigner(testPK)
	require.NoError(t, err)
	// No native price anywhere: the fallback mark still budgets the burn.
	e, err := NewExecutor(execConfig(false), fc, signer, tr, fakePrice{},
		fakeRequoter{out: big.NewInt(500_000_000_000_000_000)}, zap.NewNop())
	require.NoError(t, err)

	res, reason, err := e.Execute(context.Background(), arbOpp())
	require.NoError(t, err)
	assert.Equal(t, types.ReasonNone, reason)
	assert.True(t, res.Reverted)

	// 500k gas * 40 gwei = 0.02 native at the $1 stand-in mark.
	assert.InDelta(t, 0.02, res.GasCostUSD, 1e-9)
	assert.InDelta(t, 0.02, tr.SpentUSD(), 1e-9)
}

func TestBuildPayload_Liquidation(t *testing.T) {
	cfg := execConfig(false)
	cfg.Tokens["WMATIC"] = config.Token{Addr: "0x0d500b1d8e8ef31e21c99d1db9a6444d3adf1270", Decimals: 18}
	fc := &fakeChain{estimate: 700_000}
	e := newTestExecutor(t, cfg, fc, risk.NewTracker(), fakeRequoter{})

	opp := types.Opportunity{
		Kind:            types.KindLiquidation,
		Borrower:        common.HexToAddress("0x00000000000000000000000000000000000000aa"),
		DebtAsset:       "USDC",
		DebtAmount:      big.NewInt(1_000_000_000),
		CollateralAsset: "WMATIC",
	}
	to, data, gasCeil, err := e.buildPayload(context.Background(), opp)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress(cfg.Chain.LiquidationContract), to)
	assert.Equal(t, cfg.Chain.GasLimitLiquidation, gasCeil)
	assert.NotEmpty(t, data)

	// minOut = debt + 0.09% premium.
	outs, err := e.labi.Methods["requestLiquidation"].Inputs.Unpack(data[4:])
	require.NoError(t, err)
	minOut, ok := outs[5].(*big.Int)
	require.True(t, ok)
	assert.Equal(t, big.NewInt(1_000_900_000), minOut)
}
