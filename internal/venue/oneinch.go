package venue

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/vpk404/flashloan/internal/config"
	"github.com/vpk404/flashloan/internal/types"
	"go.uber.org/zap"
)

// OneInch quotes and builds swap payloads through the 1inch aggregator API.
type OneInch struct {
	cfg  *config.Config
	base string
	key  string
	cli  *http.Client
	log  *zap.Logger
}

func NewOneInch(cfg *config.Config, log *zap.Logger) *OneInch {
	base := strings.TrimRight(cfg.Venues.OneInch.BaseURL, "/")
	if base == "" {
		base = fmt.Sprintf("https://api.1inch.dev/swap/v6.0/%d", cfg.Chain.ChainID)
	}
	return &OneInch{
		cfg:  cfg,
		base: base,
		key:  cfg.Venues.OneInch.APIKey,
		cli:  &http.Client{Timeout: 8 * time.Second},
		log:  log,
	}
}

type oiHTTPError struct {
	Status      int
	URL         string
	Body        string
	RateLimited bool
}

func (e *oiHTTPError) Error() string {
	return fmt.Sprintf("http %d %s: %s", e.Status, e.URL, e.Body)
}

func (o *OneInch) getJSON(ctx context.Context, path string, q url.Values, v any) error {
	u := o.base + path + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return err
	}
	if o.key != "" {
		req.Header.Set("Authorization", "Bearer "+o.key)
	}

	resp, err := o.cli.Do(req)
	if err != nil {
		return types.WrapErr(types.ErrTransient, "1inch "+path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		b, _ := io.ReadAll(resp.Body)
		he := &oiHTTPError{
			Status:      resp.StatusCode,
			URL:         u,
			Body:        strings.TrimSpace(string(b)),
			RateLimited: resp.StatusCode == 429,
		}
		return types.WrapErr(types.ErrTransient, "1inch "+path, he)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return types.WrapErr(types.ErrMalformed, "1inch "+path, err)
	}
	return nil
}

type oiQuoteResp struct {
	DstAmount string `json:"dstAmount"`
}

func (o *OneInch) Quote(ctx context.Context, assetIn, assetOut string, amountIn *big.Int) (types.Quote, error) {
	tin, ok := o.cfg.Token(assetIn)
	if !ok {
		return types.Quote{}, types.WrapErr(types.ErrMalformed, "quote", fmt.Errorf("unknown token %s", assetIn))
	}
	tout, ok := o.cfg.Token(assetOut)
	if !ok {
		return types.Quote{}, types.WrapErr(types.ErrMalformed, "quote", fmt.Errorf("unknown token %s", assetOut))
	}

	q := url.Values{}
	q.Set("src", tin.Addr)
	q.Set("dst", tout.Addr)
	q.Set("amount", amountIn.String())

	var resp oiQuoteResp
	if err := o.getJSON(ctx, "/quote", q, &resp); err != nil {
		return types.Quote{}, err
	}

	out, ok := new(big.Int).SetString(resp.DstAmount, 10)
	if !ok || out.Sign() <= 0 {
		return types.Quote{}, types.WrapErr(types.ErrMalformed, "1inch quote", fmt.Errorf("bad dstAmount %q", resp.DstAmount))
	}

	return types.Quote{
		Venue:     types.VenueOneInch,
		AssetIn:   assetIn,
		AssetOut:  assetOut,
		AmountIn:  new(big.Int).Set(amountIn),
		AmountOut: out,
		Ts:        time.Now(),
	}, nil
}

type oiSwapResp struct {
	DstAmount string `json:"dstAmount"`
	Tx        struct {
		To   string `json:"to"`
		Data string `json:"data"`
	} `json:"tx"`
}

// BuildSwapCalldata asks /swap for a ready payload to embed in the flash-loan
// transaction. Gas estimation is disabled; the executor estimates itself.
func (o *OneInch) BuildSwapCalldata(ctx context.Context, assetIn, assetOut string, amountIn *big.Int, slippagePct float64, from common.Address) (common.Address, []byte, error) {
	tin, ok := o.cfg.Token(assetIn)
	if !ok {
		return common.Address{}, nil, types.WrapErr(types.ErrMalformed, "swap", fmt.Errorf("unknown token %s", assetIn))
	}
	tout, ok := o.cfg.Token(assetOut)
	if !ok {
		return common.Address{}, nil, types.WrapErr(types.ErrMalformed, "swap", fmt.Errorf("unknown token %s", assetOut))
	}

	q := url.Values{}
	q.Set("src", tin.Addr)
	q.Set("dst", tout.Addr)
	q.Set("amount", amountIn.String())
	q.Set("from", from.Hex())
	q.Set("slippage", strconv.FormatFloat(slippagePct*100, 'f', -1, 64))
	q.Set("disableEstimate", "true")

	var resp oiSwapResp
	if err := o.getJSON(ctx, "/swap", q, &resp); err != nil {
		return common.Address{}, nil, err
	}

	data, err := hex.DecodeString(strings.TrimPrefix(resp.Tx.Data, "0x"))
	if err != nil {
		return common.Address{}, nil, types.WrapErr(types.ErrMalformed, "1inch swap data", err)
	}
	return common.HexToAddress(resp.Tx.To), data, nil
}
