package marketdata

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/vpk404/flashloan/internal/metrics"
	"github.com/vpk404/flashloan/internal/types"
	"github.com/vpk404/flashloan/internal/venue"
	"go.uber.org/zap"
)

// Snapshot is one comparable view: the same pair and notional quoted on every
// venue that answered in time.
type Snapshot struct {
	AssetIn  string
	AssetOut string
	Notional *big.Int
	Quotes   []types.Quote
	Ts       time.Time
}

// QuoteBy returns the snapshot's quote for one venue, if it answered.
func (s Snapshot) QuoteBy(id types.VenueID) (types.Quote, bool) {
	for _, q := range s.Quotes {
		if q.Venue == id {
			return q, true
		}
	}
	return types.Quote{}, false
}

// Aggregator fans one pair/notional query out to all venues concurrently and
// joins the answers. A venue that errors or times out simply contributes no
// quote; the snapshot stays usable.
type Aggregator struct {
	venues  []*venue.Venue
	timeout time.Duration
	log     *zap.Logger
}

func NewAggregator(venues []*venue.Venue, timeout time.Duration, log *zap.Logger) *Aggregator {
	return &Aggregator{venues: venues, timeout: timeout, log: log}
}

func (a *Aggregator) Snapshot(ctx context.Context, assetIn, assetOut string, notional *big.Int) Snapshot {
	snap := Snapshot{
		AssetIn:  assetIn,
		AssetOut: assetOut,
		Notional: notional,
		Quotes:   make([]types.Quote, 0, len(a.venues)),
		Ts:       time.Now(),
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, v := range a.venues {
		v := v
		wg.Add(1)
		go func() {
			defer wg.Done()
			qctx, cancel := context.WithTimeout(ctx, a.timeout)
			defer cancel()

			start := time.Now()
			q, err := v.Quoter.Quote(qctx, assetIn, assetOut, notional)
			metrics.QuoteLatency.Observe(time.Since(start).Seconds())
			if err != nil {
				metrics.QuoterErrors.Inc()
				a.log.Warn("venue quote dropped",
					zap.String("venue", string(v.ID)),
					zap.String("pair", assetIn+"/"+assetOut),
					zap.Error(err),
				)
				return
			}
			mu.Lock()
			snap.Quotes = append(snap.Quotes, q)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return snap
}
