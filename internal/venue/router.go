package venue

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/vpk404/flashloan/internal/chain"
	"github.com/vpk404/flashloan/internal/config"
	"github.com/vpk404/flashloan/internal/types"
	"go.uber.org/zap"
)

// Minimal ABI for a UniswapV2-style router's getAmountsOut view.
const routerABI = `[{"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"}],"name":"getAmountsOut","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"view","type":"function"}]`

// RouterQuoter quotes through an on-chain V2 router (QuickSwap, SushiSwap).
type RouterQuoter struct {
	id     types.VenueID
	cfg    *config.Config
	c      chain.Client
	router common.Address
	rabi   abi.ABI
	log    *zap.Logger
}

func NewRouterQuoter(id types.VenueID, router string, cfg *config.Config, c chain.Client, log *zap.Logger) (*RouterQuoter, error) {
	rabi, err := abi.JSON(strings.NewReader(routerABI))
	if err != nil {
		return nil, fmt.Errorf("parse router abi: %w", err)
	}
	addr := common.HexToAddress(router)
	if addr == (common.Address{}) {
		return nil, fmt.Errorf("venue %s: empty router address", id)
	}
	return &RouterQuoter{id: id, cfg: cfg, c: c, router: addr, rabi: rabi, log: log}, nil
}

func (q *RouterQuoter) RouterAddr() common.Address { return q.router }

func (q *RouterQuoter) Quote(ctx context.Context, assetIn, assetOut string, amountIn *big.Int) (types.Quote, error) {
	tin, ok := q.cfg.Token(assetIn)
	if !ok {
		return types.Quote{}, types.WrapErr(types.ErrMalformed, "quote", fmt.Errorf("unknown token %s", assetIn))
	}
	tout, ok := q.cfg.Token(assetOut)
	if !ok {
		return types.Quote{}, types.WrapErr(types.ErrMalformed, "quote", fmt.Errorf("unknown token %s", assetOut))
	}

	path := []common.Address{common.HexToAddress(tin.Addr), common.HexToAddress(tout.Addr)}
	input, err := q.rabi.Pack("getAmountsOut", amountIn, path)
	if err != nil {
		return types.Quote{}, fmt.Errorf("pack getAmountsOut: %w", err)
	}

	res, err := q.c.CallContract(ctx, ethereum.CallMsg{To: &q.router, Data: input}, nil)
	if err != nil {
		return types.Quote{}, types.WrapErr(types.ErrTransient, "getAmountsOut "+string(q.id), err)
	}

	outs, err := q.rabi.Methods["getAmountsOut"].Outputs.Unpack(res)
	if err != nil || len(outs) == 0 {
		return types.Quote{}, types.WrapErr(types.ErrMalformed, "decode getAmountsOut "+string(q.id), err)
	}
	amounts, ok := outs[0].([]*big.Int)
	if !ok || len(amounts) == 0 {
		return types.Quote{}, types.WrapErr(types.ErrMalformed, "decode getAmountsOut "+string(q.id), fmt.Errorf("unexpected shape %T", outs[0]))
	}

	out := amounts[len(amounts)-1]
	if out.Sign() <= 0 {
		return types.Quote{}, types.WrapErr(types.ErrMalformed, "quote "+string(q.id), fmt.Errorf("zero output for %s->%s", assetIn, assetOut))
	}

	return types.Quote{
		Venue:     q.id,
		AssetIn:   assetIn,
		AssetOut:  assetOut,
		AmountIn:  new(big.Int).Set(amountIn),
		AmountOut: out,
		Ts:        time.Now(),
	}, nil
}
