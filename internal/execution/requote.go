package execution

import (
	"context"
	"fmt"
	"math/big"

	"github.com/vpk404/flashloan/internal/types"
	"github.com/vpk404/flashloan/internal/venue"
)

// VenueRequoter re-runs the detection-time quote through the venue registry.
type VenueRequoter struct{}

func (VenueRequoter) Requote(ctx context.Context, opp types.Opportunity) (*big.Int, error) {
	v := venue.Get(opp.QuoteUsed.Venue)
	if v == nil {
		return nil, fmt.Errorf("unregistered venue %s", opp.QuoteUsed.Venue)
	}
	q, err := v.Quoter.Quote(ctx, opp.QuoteUsed.AssetIn, opp.QuoteUsed.AssetOut, opp.QuoteUsed.AmountIn)
	if err != nil {
		return nil, err
	}
	return q.AmountOut, nil
}
