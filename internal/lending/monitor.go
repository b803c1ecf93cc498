package lending

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/vpk404/flashloan/internal/chain"
	"github.com/vpk404/flashloan/internal/config"
	"github.com/vpk404/flashloan/internal/pricing"
	"github.com/vpk404/flashloan/internal/types"
	"go.uber.org/zap"
)

// Aave V3 Borrow event topic.
const borrowTopic = "0xb3d084820fb1a9decffb176436bd02558d15fac9b0ddfed8c465bc7359d7dce0"

// Minimal ABI for Pool.getUserAccountData.
const poolABI = `[{"inputs":[{"internalType":"address","name":"user","type":"address"}],"name":"getUserAccountData","outputs":[{"internalType":"uint256","name":"totalCollateralBase","type":"uint256"},{"internalType":"uint256","name":"totalDebtBase","type":"uint256"},{"internalType":"uint256","name":"availableBorrowsBase","type":"uint256"},{"internalType":"uint256","name":"currentLiquidationThreshold","type":"uint256"},{"internalType":"uint256","name":"ltv","type":"uint256"},{"internalType":"uint256","name":"healthFactor","type":"uint256"}],"stateMutability":"view","type":"function"}]`

// Monitor watches the lending pool's recent Borrow events and checks the
// health of each distinct borrower it finds.
type Monitor struct {
	cfg  *config.Config
	c    chain.Client
	px   *pricing.Oracle
	pool common.Address
	pabi abi.ABI
	log  *zap.Logger

	byAddr  map[string]string // token addr (lowercase) -> symbol
	checked map[common.Address]struct{}
	scans   int
}

func NewMonitor(cfg *config.Config, c chain.Client, px *pricing.Oracle, log *zap.Logger) (*Monitor, error) {
	pabi, err := abi.JSON(strings.NewReader(poolABI))
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	pool := common.HexToAddress(cfg.Lending.Pool)
	if pool == (common.Address{}) {
		return nil, fmt.Errorf("lending.pool address is empty")
	}
	byAddr := make(map[string]string, len(cfg.Tokens))
	for sym, t := range cfg.Tokens {
		byAddr[strings.ToLower(t.Addr)] = sym
	}
	return &Monitor{
		cfg:     cfg,
		c:       c,
		px:      px,
		pool:    pool,
		pabi:    pabi,
		log:     log,
		byAddr:  byAddr,
		checked: make(map[common.Address]struct{}, 256),
	}, nil
}

type borrowEvent struct {
	Borrower common.Address
	Asset    string
	Amount   *big.Int
}

// decodeBorrow pulls reserve, onBehalfOf and amount out of a Borrow log.
// topics: [sig, reserve, onBehalfOf]; data starts with the uint256 amount.
func (m *Monitor) decodeBorrow(lg ethtypes.Log) (borrowEvent, error) {
	if len(lg.Topics) < 3 || len(lg.Data) < 32 {
		return borrowEvent{}, types.WrapErr(types.ErrMalformed, "borrow log", fmt.Errorf("short log %s", lg.TxHash.Hex()))
	}
	reserve := common.BytesToAddress(lg.Topics[1].Bytes())
	sym, ok := m.byAddr[strings.ToLower(reserve.Hex())]
	if !ok {
		return borrowEvent{}, types.WrapErr(types.ErrMalformed, "borrow log", fmt.Errorf("untracked reserve %s", reserve.Hex()))
	}
	return borrowEvent{
		Borrower: common.BytesToAddress(lg.Topics[2].Bytes()),
		Asset:    sym,
		Amount:   new(big.Int).SetBytes(lg.Data[:32]),
	}, nil
}

// Scan walks the recent block window for Borrow events, drops dust positions,
// skips recently checked borrowers and returns the health of the rest. The
// borrower cache is cleared every cache_clear_every scans so previously
// healthy positions get re-checked.
func (m *Monitor) Scan(ctx context.Context) ([]types.PositionSnapshot, error) {
	m.scans++
	if m.scans%m.cfg.Lending.CacheClearEvery == 0 {
		m.checked = make(map[common.Address]struct{}, 256)
	}

	latest, err := m.c.BlockNumber(ctx)
	if err != nil {
		return nil, types.WrapErr(types.ErrTransient, "block number", err)
	}
	from := int64(latest) - m.cfg.Lending.LookbackBlocks
	if from < 0 {
		from = 0
	}

	logs, err := m.c.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: big.NewInt(from),
		ToBlock:   new(big.Int).SetUint64(latest),
		Addresses: []common.Address{m.pool},
		Topics:    [][]common.Hash{{common.HexToHash(borrowTopic)}},
	})
	if err != nil {
		return nil, types.WrapErr(types.ErrTransient, "filter borrow logs", err)
	}

	seen := make(map[common.Address]borrowEvent, len(logs))
	for _, lg := range logs {
		ev, err := m.decodeBorrow(lg)
		if err != nil {
			m.log.Warn("dropping malformed borrow log", zap.Error(err))
			continue
		}
		tok, _ := m.cfg.Token(ev.Asset)
		px, err := m.px.USD(ctx, ev.Asset)
		if err != nil {
			m.log.Warn("no price for borrow asset", zap.String("asset", ev.Asset), zap.Error(err))
			continue
		}
		if types.FromUnits(ev.Amount, tok.Decimals)*px < m.cfg.Lending.MinEventUSD {
			continue // dust, not worth a health query
		}
		seen[ev.Borrower] = ev
	}

	out := make([]types.PositionSnapshot, 0, len(seen))
	for borrower, ev := range seen {
		if _, ok := m.checked[borrower]; ok {
			continue
		}
		hf, err := m.healthFactor(ctx, borrower)
		if err != nil {
			m.log.Warn("health query failed", zap.String("borrower", borrower.Hex()), zap.Error(err))
			continue
		}
		m.checked[borrower] = struct{}{}
		out = append(out, types.PositionSnapshot{
			Borrower:     borrower,
			DebtAsset:    ev.Asset,
			DebtAmount:   ev.Amount,
			HealthFactor: hf,
		})
	}

	m.log.Debug("lending scan complete",
		zap.Int("borrow_events", len(logs)),
		zap.Int("positions_checked", len(out)),
	)
	return out, nil
}

// healthFactor reads getUserAccountData; the pool reports it as a 1e18
// fixed-point ratio.
func (m *Monitor) healthFactor(ctx context.Context, user common.Address) (float64, error) {
	input, err := m.pabi.Pack("getUserAccountData", user)
	if err != nil {
		return 0, fmt.Errorf("pack getUserAccountData: %w", err)
	}
	res, err := m.c.CallContract(ctx, ethereum.CallMsg{To: &m.pool, Data: input}, nil)
	if err != nil {
		return 0, types.WrapErr(types.ErrTransient, "getUserAccountData", err)
	}
	outs, err := m.pabi.Methods["getUserAccountData"].Outputs.Unpack(res)
	if err != nil || len(outs) < 6 {
		return 0, types.WrapErr(types.ErrMalformed, "decode getUserAccountData", err)
	}
	raw, ok := outs[5].(*big.Int)
	if !ok {
		return 0, types.WrapErr(types.ErrMalformed, "decode getUserAccountData", fmt.Errorf("unexpected type %T", outs[5]))
	}
	return types.FromUnits(raw, 18), nil
}
