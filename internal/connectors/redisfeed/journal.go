package redisfeed

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/vpk404/flashloan/internal/config"
	"github.com/vpk404/flashloan/internal/types"
)

// Journal appends decision and execution records to a Redis stream so
// downstream tooling can tail what the bot saw and did.
type Journal struct {
	rdb    *redis.Client
	stream string
}

func NewJournal(cfg *config.Config) *Journal {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
	})
	return &Journal{rdb: rdb, stream: cfg.Redis.Stream}
}

func (j *Journal) Close() error { return j.rdb.Close() }

func (j *Journal) PublishDecision(ctx context.Context, d types.Decision) error {
	return j.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: j.stream,
		Values: map[string]interface{}{
			"type":     "decision",
			"kind":     string(d.Opp.Kind),
			"accepted": d.Accepted,
			"reason":   string(d.Reason),
			"net_usd":  d.NetProfitUSD,
			"ts_ms":    d.Opp.Ts.UnixMilli(),
		},
	}).Err()
}

func (j *Journal) PublishResult(ctx context.Context, opp types.Opportunity, res types.ExecutionResult, reason types.Reason) error {
	return j.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: j.stream,
		Values: map[string]interface{}{
			"type":      "result",
			"kind":      string(opp.Kind),
			"tx_hash":   res.TxHash,
			"simulated": res.Simulated,
			"submitted": res.Submitted,
			"confirmed": res.Confirmed,
			"reverted":  res.Reverted,
			"gas_usd":   res.GasCostUSD,
			"abort":     string(reason),
			"ts_ms":     opp.Ts.UnixMilli(),
		},
	}).Err()
}
