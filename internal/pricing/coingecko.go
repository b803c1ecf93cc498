package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vpk404/flashloan/internal/config"
	"github.com/vpk404/flashloan/internal/types"
)

type cgHTTPError struct {
	Status      int
	URL         string
	Body        string
	RateLimited bool
}

func (e *cgHTTPError) Error() string {
	return fmt.Sprintf("http %d %s: %s", e.Status, e.URL, e.Body)
}

type coinGecko struct {
	cfg *config.Config
	cli *http.Client
}

func newCoinGecko(cfg *config.Config) *coinGecko {
	return &coinGecko{cfg: cfg, cli: &http.Client{Timeout: 5 * time.Second}}
}

// price fetches a token's USD price via /simple/price. The coin id comes from
// the token's cg_id config entry.
func (c *coinGecko) price(ctx context.Context, symbol string) (float64, error) {
	tok, ok := c.cfg.Token(symbol)
	if !ok || tok.CgID == "" {
		return 0, types.WrapErr(types.ErrMalformed, "coingecko", fmt.Errorf("no cg_id for %s", symbol))
	}

	q := url.Values{}
	q.Set("ids", tok.CgID)
	q.Set("vs_currencies", "usd")
	u := strings.TrimRight(c.cfg.Pricing.CoinGeckoBase, "/") + "/simple/price?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.cli.Do(req)
	if err != nil {
		return 0, types.WrapErr(types.ErrTransient, "coingecko", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		b, _ := io.ReadAll(resp.Body)
		return 0, types.WrapErr(types.ErrTransient, "coingecko", &cgHTTPError{
			Status:      resp.StatusCode,
			URL:         u,
			Body:        strings.TrimSpace(string(b)),
			RateLimited: resp.StatusCode == 429,
		})
	}

	var out map[string]map[string]float64
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, types.WrapErr(types.ErrMalformed, "coingecko decode", err)
	}
	px := out[tok.CgID]["usd"]
	if px <= 0 {
		return 0, types.WrapErr(types.ErrMalformed, "coingecko", fmt.Errorf("no usd price for %s", tok.CgID))
	}
	return px, nil
}
