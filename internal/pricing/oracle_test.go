package pricing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vpk404/flashloan/internal/config"
	"github.com/vpk404/flashloan/internal/types"
	"go.uber.org/zap"
)

func pricingConfig(cgBase string) *config.Config {
	cfg := &config.Config{
		Tokens: map[string]config.Token{
			"WMATIC": {Addr: "0x0d500b1d8e8ef31e21c99d1db9a6444d3adf1270", Decimals: 18, CgID: "wmatic"},
			"USDC":   {Addr: "0x2791bca1f2de4661ed88a30c99a7a9449aa84174", Decimals: 6},
		},
	}
	cfg.Pricing.CoinGeckoBase = cgBase
	cfg.Pricing.CacheTTLS = 60
	return cfg
}

func TestOracle_StablecoinPinned(t *testing.T) {
	o := NewOracle(pricingConfig("http://127.0.0.1:1"), zap.NewNop())
	for _, sym := range []string{"USDC", "USDT", "DAI"} {
		px, err := o.USD(context.Background(), sym)
		require.NoError(t, err)
		assert.Equal(t, 1.0, px)
	}
}

func TestOracle_OverrideWins(t *testing.T) {
	cfg := pricingConfig("http://127.0.0.1:1")
	cfg.Pricing.Overrides = map[string]float64{"WMATIC": 0.42, "USDC": 0.99}
	o := NewOracle(cfg, zap.NewNop())

	px, err := o.USD(context.Background(), "WMATIC")
	require.NoError(t, err)
	assert.Equal(t, 0.42, px)

	// Overrides beat even the stablecoin pin.
	px, err = o.USD(context.Background(), "USDC")
	require.NoError(t, err)
	assert.Equal(t, 0.99, px)
}

func TestOracle_FreshMarkSkipsFetch(t *testing.T) {
	// Any fetch attempt would fail against this base URL.
	o := NewOracle(pricingConfig("http://127.0.0.1:1"), zap.NewNop())
	o.SetMark("WMATIC", 0.51)

	px, err := o.USD(context.Background(), "WMATIC")
	require.NoError(t, err)
	assert.Equal(t, 0.51, px)
}

func TestOracle_StaleMarkFallsBackOnFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	o := NewOracle(pricingConfig(srv.URL), zap.NewNop())
	o.marks["WMATIC"] = mark{px: 0.48, ts: time.Now().Add(-5 * time.Minute)}

	px, err := o.USD(context.Background(), "WMATIC")
	require.NoError(t, err)
	assert.Equal(t, 0.48, px)
}

func TestOracle_FetchAndCache(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"wmatic":{"usd":0.52}}`))
	}))
	defer srv.Close()

	o := NewOracle(pricingConfig(srv.URL), zap.NewNop())

	px, err := o.USD(context.Background(), "WMATIC")
	require.NoError(t, err)
	assert.Equal(t, 0.52, px)

	// Second read hits the fresh mark, not the API.
	px, err = o.USD(context.Background(), "WMATIC")
	require.NoError(t, err)
	assert.Equal(t, 0.52, px)
	assert.Equal(t, 1, hits)
}

func TestOracle_SetMarkIgnoresNonPositive(t *testing.T) {
	o := NewOracle(pricingConfig("http://127.0.0.1:1"), zap.NewNop())
	o.SetMark("WMATIC", 0)
	o.SetMark("WMATIC", -1)
	_, ok := o.marks["WMATIC"]
	assert.False(t, ok)
}

func TestCoinGecko_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"status":{"error_code":429}}`))
	}))
	defer srv.Close()

	cfg := pricingConfig(srv.URL)
	cg := newCoinGecko(cfg)

	_, err := cg.price(context.Background(), "WMATIC")
	require.Error(t, err)
	assert.True(t, types.IsTransient(err))

	// No cg_id configured: permanent, not transient.
	_, err = cg.price(context.Background(), "USDC")
	require.Error(t, err)
	assert.True(t, types.IsMalformed(err))
}
