package execution

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/vpk404/flashloan/internal/chain"
	"github.com/vpk404/flashloan/internal/config"
	"github.com/vpk404/flashloan/internal/metrics"
	"github.com/vpk404/flashloan/internal/risk"
	"github.com/vpk404/flashloan/internal/types"
	"github.com/vpk404/flashloan/internal/venue"
	"go.uber.org/zap"
)

// Minimal ABI for the flash-loan round-trip contract.
const flashLoanABI = `[{"inputs":[{"internalType":"address","name":"_token","type":"address"},{"internalType":"uint256","name":"_amount","type":"uint256"},{"internalType":"address","name":"_routerA","type":"address"},{"internalType":"address","name":"_routerB","type":"address"},{"internalType":"address","name":"_tokenB","type":"address"}],"name":"requestFlashLoan","outputs":[],"stateMutability":"nonpayable","type":"function"}]`

// Stand-in native/USD mark when the oracle has never answered. Overstates
// gas spend rather than letting a burned transaction skip the budget.
const fallbackNativeUSD = 1.0

// Minimal ABI for the liquidation contract.
const liquidationABI = `[{"inputs":[{"internalType":"address","name":"_borrower","type":"address"},{"internalType":"address","name":"_debtAsset","type":"address"},{"internalType":"address","name":"_collateralAsset","type":"address"},{"internalType":"uint256","name":"_debtAmount","type":"uint256"},{"internalType":"uint24","name":"_poolFee","type":"uint24"},{"internalType":"uint256","name":"_amountOutMin","type":"uint256"}],"name":"requestLiquidation","outputs":[],"stateMutability":"nonpayable","type":"function"}]`

// Requoter re-fetches the detection-time quote so the executor can verify the
// venue hasn't moved before paying to broadcast.
type Requoter interface {
	Requote(ctx context.Context, opp types.Opportunity) (*big.Int, error)
}

// PriceSource converts native gas cost to USD.
type PriceSource interface {
	USD(ctx context.Context, symbol string) (float64, error)
}

// Executor turns an accepted opportunity into (at most) one transaction:
// build, simulate, re-check freshness, then sign and send unless dry-run.
type Executor struct {
	cfg     *config.Config
	c       chain.Client
	signer  *chain.Signer
	tracker *risk.Tracker
	px      PriceSource
	requote Requoter
	fabi    abi.ABI
	labi    abi.ABI
	flash   common.Address
	liq     common.Address
	log     *zap.Logger

	lastNativeUSD float64
}

func NewExecutor(cfg *config.Config, c chain.Client, signer *chain.Signer, tracker *risk.Tracker, px PriceSource, requote Requoter, log *zap.Logger) (*Executor, error) {
	fabi, err := abi.JSON(strings.NewReader(flashLoanABI))
	if err != nil {
		return nil, fmt.Errorf("parse flashloan abi: %w", err)
	}
	labi, err := abi.JSON(strings.NewReader(liquidationABI))
	if err != nil {
		return nil, fmt.Errorf("parse liquidation abi: %w", err)
	}
	return &Executor{
		cfg:     cfg,
		c:       c,
		signer:  signer,
		tracker: tracker,
		px:      px,
		requote: requote,
		fabi:    fabi,
		labi:    labi,
		flash:   common.HexToAddress(cfg.Chain.FlashLoanContract),
		liq:     common.HexToAddress(cfg.Chain.LiquidationContract),
		log:     log,
	}, nil
}

func (e *Executor) buildPayload(ctx context.Context, opp types.Opportunity) (common.Address, []byte, uint64, error) {
	switch opp.Kind {
	case types.KindArbitrage:
		buy, sell := venue.Get(opp.BuyVenue), venue.Get(opp.SellVenue)
		if buy == nil || sell == nil {
			return common.Address{}, nil, 0, fmt.Errorf("unregistered venue %s or %s", opp.BuyVenue, opp.SellVenue)
		}

		// An aggregator leg carries no router for the flash-loan contract
		// to call; the venue hands back a ready swap payload instead, and
		// the transaction goes straight to the aggregator's router with a
		// slippage-bounded minimum output.
		if builder, ok := buy.Quoter.(venue.CalldataBuilder); ok && buy.Router == (common.Address{}) {
			to, data, err := builder.BuildSwapCalldata(ctx, opp.AssetIn, opp.AssetOut,
				opp.Notional, e.cfg.Risk.SlippagePct, e.signer.From())
			if err != nil {
				return common.Address{}, nil, 0, fmt.Errorf("build swap calldata %s: %w", opp.BuyVenue, err)
			}
			return to, data, e.cfg.Chain.GasLimitSwap, nil
		}
		if buy.Router == (common.Address{}) || sell.Router == (common.Address{}) {
			return common.Address{}, nil, 0, fmt.Errorf("venue %s or %s has no router for the flash-loan path", opp.BuyVenue, opp.SellVenue)
		}

		tin, ok := e.cfg.Token(opp.AssetIn)
		if !ok {
			return common.Address{}, nil, 0, fmt.Errorf("unknown token %s", opp.AssetIn)
		}
		tout, ok := e.cfg.Token(opp.AssetOut)
		if !ok {
			return common.Address{}, nil, 0, fmt.Errorf("unknown token %s", opp.AssetOut)
		}
		data, err := e.fabi.Pack("requestFlashLoan",
			common.HexToAddress(tin.Addr),
			opp.Notional,
			buy.Router,
			sell.Router,
			common.HexToAddress(tout.Addr),
		)
		if err != nil {
			return common.Address{}, nil, 0, fmt.Errorf("pack requestFlashLoan: %w", err)
		}
		return e.flash, data, e.cfg.Chain.GasLimitSwap, nil

	case types.KindLiquidation:
		debt, ok := e.cfg.Token(opp.DebtAsset)
		if !ok {
			return common.Address{}, nil, 0, fmt.Errorf("unknown token %s", opp.DebtAsset)
		}
		coll, ok := e.cfg.Token(opp.CollateralAsset)
		if !ok {
			return common.Address{}, nil, 0, fmt.Errorf("unknown token %s", opp.CollateralAsset)
		}
		// Minimum acceptable output covers the loan plus its premium.
		premium := new(big.Int).Div(
			new(big.Int).Mul(opp.DebtAmount, big.NewInt(int64(e.cfg.Fees.FlashLoanFeePct*1e6))),
			big.NewInt(1e6),
		)
		minOut := new(big.Int).Add(opp.DebtAmount, premium)
		data, err := e.labi.Pack("requestLiquidation",
			opp.Borrower,
			common.HexToAddress(debt.Addr),
			common.HexToAddress(coll.Addr),
			opp.DebtAmount,
			big.NewInt(int64(e.cfg.Lending.PoolFeeTier)),
			minOut,
		)
		if err != nil {
			return common.Address{}, nil, 0, fmt.Errorf("pack requestLiquidation: %w", err)
		}
		return e.liq, data, e.cfg.Chain.GasLimitLiquidation, nil
	}
	return common.Address{}, nil, 0, fmt.Errorf("unknown opportunity kind %q", opp.Kind)
}

// Execute runs the guarded submission sequence. The returned reason is NONE
// unless an executor-side gate (simulation, freshness) aborted the attempt.
func (e *Executor) Execute(ctx context.Context, opp types.Opportunity) (types.ExecutionResult, types.Reason, error) {
	var res types.ExecutionResult

	// A sizing quote past its freshness window is unusable outright.
	if opp.QuoteUsed.AmountOut != nil && !opp.QuoteUsed.Fresh(e.cfg.QuoteMaxAge()) {
		metrics.GateRejections.WithLabelValues(string(types.ReasonStaleQuote)).Inc()
		return res, types.ReasonStaleQuote, nil
	}

	to, data, gasCeil, err := e.buildPayload(ctx, opp)
	if err != nil {
		return res, types.ReasonNone, err
	}

	msg := ethereum.CallMsg{From: e.signer.From(), To: &to, Data: data}

	// Estimate, buffer 20%, clamp to the configured ceiling. A failed
	// estimate means the call reverts against current state.
	est, err := e.c.EstimateGas(ctx, msg)
	if err != nil {
		metrics.SimulationFailures.Inc()
		e.log.Warn("gas estimation failed", zap.Error(err))
		return res, types.ReasonSimulationFailed, nil
	}
	gasLimit := est + est/5
	if gasCeil > 0 && gasLimit > gasCeil {
		gasLimit = gasCeil
	}

	// Simulate with the exact payload and gas limit that would be sent.
	msg.Gas = gasLimit
	if _, err := e.c.CallContract(ctx, msg, nil); err != nil {
		metrics.SimulationFailures.Inc()
		e.log.Warn("simulation failed, aborting",
			zap.String("kind", string(opp.Kind)), zap.Error(err))
		return res, types.ReasonSimulationFailed, nil
	}
	res.Simulated = true

	// Freshness re-check just before submission: venue state may have moved
	// since detection, and a stale sizing quote risks a revert.
	if opp.QuoteUsed.AmountOut != nil {
		if reason := e.freshnessCheck(ctx, opp); reason != types.ReasonNone {
			return res, reason, nil
		}
	}

	if e.cfg.DryRun {
		e.log.Info("dry-run: qualified but not sending",
			zap.String("kind", string(opp.Kind)),
			zap.Float64("net_usd", opp.NetProfitUSD()),
		)
		return res, types.ReasonNone, nil
	}

	tx, err := e.signer.SignTx(ctx, e.c, to, data, gasLimit)
	if err != nil {
		return res, types.ReasonNone, types.WrapErr(types.ErrSubmission, "sign", err)
	}
	if err := e.c.SendTransaction(ctx, tx); err != nil {
		return res, types.ReasonNone, types.WrapErr(types.ErrSubmission, "broadcast", err)
	}
	res.Submitted = true
	res.TxHash = tx.Hash().Hex()
	e.tracker.RecordAttempt()
	metrics.TxSubmitted.Inc()
	e.log.Info("transaction sent", zap.String("tx", res.TxHash))

	rec, err := chain.WaitReceipt(ctx, e.c, tx.Hash(), e.cfg.ReceiptWait())
	if err != nil {
		// Inclusion unknown; report what we know and let the next cycle move on.
		return res, types.ReasonNone, types.WrapErr(types.ErrTransient, "receipt", err)
	}

	gasPrice := rec.EffectiveGasPrice
	if gasPrice == nil {
		gasPrice = tx.GasFeeCap()
	}
	costWei := new(big.Int).Mul(new(big.Int).SetUint64(rec.GasUsed), gasPrice)
	nativeUSD, perr := e.px.USD(ctx, e.cfg.Chain.NativeToken)
	if perr != nil {
		nativeUSD = e.lastNativeUSD
		if nativeUSD <= 0 {
			nativeUSD = fallbackNativeUSD
		}
		e.log.Warn("no native price for gas accounting, using fallback",
			zap.Float64("native_usd", nativeUSD), zap.Error(perr))
	} else {
		e.lastNativeUSD = nativeUSD
	}
	res.GasCostUSD = types.FromUnits(costWei, 18) * nativeUSD
	e.tracker.RecordSpend(res.GasCostUSD)

	if rec.Status == 1 {
		res.Confirmed = true
		e.log.Info("transaction confirmed",
			zap.String("tx", res.TxHash),
			zap.Float64("gas_usd", res.GasCostUSD),
		)
	} else {
		res.Reverted = true
		metrics.TxReverted.Inc()
		// Budgeted loss, not a pipeline fault: gas spent, no effect.
		e.log.Warn("transaction reverted",
			zap.String("tx", res.TxHash),
			zap.Float64("gas_usd", res.GasCostUSD),
		)
	}
	return res, types.ReasonNone, nil
}

func (e *Executor) freshnessCheck(ctx context.Context, opp types.Opportunity) types.Reason {
	fresh, err := e.requote.Requote(ctx, opp)
	if err != nil {
		// The original quote already passed simulation; proceed cautiously.
		e.log.Warn("re-quote failed, continuing", zap.Error(err))
		return types.ReasonNone
	}
	old := new(big.Float).SetInt(opp.QuoteUsed.AmountOut)
	delta := new(big.Float).Quo(
		new(big.Float).Sub(new(big.Float).SetInt(fresh), old),
		old,
	)
	df, _ := delta.Float64()
	if df > e.cfg.Risk.FreshnessPct || df < -e.cfg.Risk.FreshnessPct {
		e.log.Warn("quote moved beyond tolerance, aborting",
			zap.Float64("delta_pct", df*100),
			zap.Float64("tolerance_pct", e.cfg.Risk.FreshnessPct*100),
		)
		metrics.GateRejections.WithLabelValues(string(types.ReasonStaleQuote)).Inc()
		return types.ReasonStaleQuote
	}
	return types.ReasonNone
}
