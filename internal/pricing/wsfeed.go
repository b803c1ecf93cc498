package pricing

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vpk404/flashloan/internal/config"
	"go.uber.org/zap"
)

// WSFeed keeps the oracle's marks warm from an exchange bookTicker stream.
// The bot runs fine without it; CoinGecko fills the gaps.
type WSFeed struct {
	url     string
	symbols map[string]string // stream symbol -> token symbol
	oracle  *Oracle
	dialer  *websocket.Dialer
	log     *zap.Logger
}

func NewWSFeed(cfg *config.Config, oracle *Oracle, log *zap.Logger) *WSFeed {
	return &WSFeed{
		url:     strings.TrimRight(cfg.Pricing.WsURL, "/"),
		symbols: cfg.Pricing.WsSymbols,
		oracle:  oracle,
		dialer: &websocket.Dialer{
			HandshakeTimeout:  15 * time.Second,
			EnableCompression: true,
		},
		log: log,
	}
}

// Run dials, subscribes and pumps ticks until ctx is done, reconnecting on
// read errors with a short backoff.
func (f *WSFeed) Run(ctx context.Context) {
	if f.url == "" || len(f.symbols) == 0 {
		f.log.Info("price ws feed disabled")
		return
	}
	for ctx.Err() == nil {
		if err := f.pump(ctx); err != nil && ctx.Err() == nil {
			f.log.Warn("price ws feed dropped, reconnecting", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(3 * time.Second):
		}
	}
}

type wsTick struct {
	Symbol string `json:"s"`
	Bid    string `json:"b"`
	Ask    string `json:"a"`
}

func (f *WSFeed) pump(ctx context.Context) error {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	})

	params := make([]string, 0, len(f.symbols))
	for s := range f.symbols {
		params = append(params, strings.ToLower(s)+"@bookTicker")
	}
	sub := struct {
		ID     int      `json:"id"`
		Method string   `json:"method"`
		Params []string `json:"params"`
	}{ID: 1, Method: "SUBSCRIBE", Params: params}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}

	pingStop := make(chan struct{})
	defer close(pingStop)
	go func() {
		t := time.NewTicker(20 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-pingStop:
				return
			case <-t.C:
				_ = conn.WriteMessage(websocket.PingMessage, nil)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))

		var t wsTick
		if json.Unmarshal(data, &t) != nil || t.Symbol == "" {
			continue // subscribe ack or unrelated frame
		}
		token, ok := f.symbols[strings.ToUpper(t.Symbol)]
		if !ok {
			continue
		}
		bid, _ := strconv.ParseFloat(t.Bid, 64)
		ask, _ := strconv.ParseFloat(t.Ask, 64)
		if bid > 0 && ask > 0 {
			f.oracle.SetMark(token, 0.5*(bid+ask))
		}
	}
}
