package pricing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vpk404/flashloan/internal/config"
	"go.uber.org/zap"
)

var stables = map[string]bool{"USDC": true, "USDT": true, "DAI": true}

type mark struct {
	px float64
	ts time.Time
}

// Oracle resolves token symbols to USD prices. Priority: config override,
// stablecoin pin, fresh websocket/HTTP mark, CoinGecko fetch.
type Oracle struct {
	cfg *config.Config
	log *zap.Logger
	cg  *coinGecko

	mu    sync.RWMutex
	marks map[string]mark
}

func NewOracle(cfg *config.Config, log *zap.Logger) *Oracle {
	return &Oracle{
		cfg:   cfg,
		log:   log,
		cg:    newCoinGecko(cfg),
		marks: make(map[string]mark, 8),
	}
}

// SetMark records an externally observed price (the ws feed calls this).
func (o *Oracle) SetMark(symbol string, px float64) {
	if px <= 0 {
		return
	}
	o.mu.Lock()
	o.marks[symbol] = mark{px: px, ts: time.Now()}
	o.mu.Unlock()
}

func (o *Oracle) USD(ctx context.Context, symbol string) (float64, error) {
	if px, ok := o.cfg.Pricing.Overrides[symbol]; ok && px > 0 {
		return px, nil
	}
	if stables[symbol] {
		return 1.0, nil
	}

	o.mu.RLock()
	m, ok := o.marks[symbol]
	o.mu.RUnlock()
	if ok && time.Since(m.ts) <= o.cfg.PriceCacheTTL() {
		return m.px, nil
	}

	px, err := o.cg.price(ctx, symbol)
	if err != nil {
		// A stale mark beats no mark when the fetch fails.
		if ok {
			o.log.Warn("price fetch failed, using stale mark",
				zap.String("symbol", symbol), zap.Error(err))
			return m.px, nil
		}
		return 0, fmt.Errorf("price %s: %w", symbol, err)
	}
	o.SetMark(symbol, px)
	return px, nil
}
