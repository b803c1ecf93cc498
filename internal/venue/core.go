package venue

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vpk404/flashloan/internal/types"
)

// Quoter answers "how much assetOut for amountIn of assetIn" on one venue.
type Quoter interface {
	Quote(ctx context.Context, assetIn, assetOut string, amountIn *big.Int) (types.Quote, error)
}

// CalldataBuilder is implemented by venues that hand back a ready swap
// payload instead of a plain router call (aggregators).
type CalldataBuilder interface {
	BuildSwapCalldata(ctx context.Context, assetIn, assetOut string, amountIn *big.Int, slippagePct float64, from common.Address) (to common.Address, data []byte, err error)
}

type Venue struct {
	ID     types.VenueID
	Router common.Address
	Quoter Quoter
}

var registry = map[types.VenueID]*Venue{}

func Register(v *Venue)           { registry[v.ID] = v }
func Get(id types.VenueID) *Venue { return registry[id] }

func Enabled(ids []types.VenueID) []*Venue {
	out := make([]*Venue, 0, len(ids))
	for _, id := range ids {
		if v := Get(id); v != nil {
			out = append(out, v)
		}
	}
	return out
}
