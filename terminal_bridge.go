// FILE: terminal_bridge.go
// Package main – HTTP terminal that talks to the local MT5 sidecar.
//
// The sidecar is a thin Python service wrapping the MetaTrader5 package on the
// Windows host that runs the terminal. It exposes the terminal primitives 1:1:
//   • POST /initialize     {path, login, password, server}
//   • GET  /symbol_info    ?symbol=...
//   • GET  /tick           ?symbol=...
//   • GET  /rates          ?symbol=...&timeframe=M5&count=250
//   • GET  /account
//   • POST /symbol_select  {symbol, enable}
//   • POST /order_send     {action, symbol, volume, type, price, sl, tp, ...}
//   • POST /shutdown
//
// Error responses carry {"error": "...", "last_error": [code, "message"]}, which is
// surfaced through *TerminalError. 404 on the lookup endpoints maps to the
// DataUnavailable / NoMarketData / UnknownSymbol sentinels.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// bridgeTimeout bounds one sidecar round trip, order_send included.
const bridgeTimeout = 15 * time.Second

// BridgeTerminal talks to the local MT5 sidecar.
type BridgeTerminal struct {
	base string
	hc   *http.Client
	log  zerolog.Logger
}

func NewBridgeTerminal(base string, log zerolog.Logger) *BridgeTerminal {
	base = strings.TrimSpace(base)
	if i := strings.IndexAny(base, " \t#"); i >= 0 { // cut trailing comment/space
		base = strings.TrimSpace(base[:i])
	}
	if base == "" {
		base = "http://127.0.0.1:8787"
	}
	base = strings.TrimRight(base, "/")
	return &BridgeTerminal{
		base: base,
		hc:   &http.Client{Timeout: bridgeTimeout},
		log:  log.With().Str("terminal", "mt5-bridge").Logger(),
	}
}

func (bt *BridgeTerminal) Name() string { return "mt5-bridge" }

// --- Session ---

func (bt *BridgeTerminal) Initialize(ctx context.Context, creds Credentials) error {
	var out struct {
		OK bool `json:"ok"`
	}
	if err := bt.call(ctx, "initialize", http.MethodPost, "/initialize", nil, creds, &out); err != nil {
		return err
	}
	if !out.OK {
		return &TerminalError{Op: "initialize", Err: errors.New("sidecar reported failure")}
	}
	bt.log.Info().Int64("login", creds.Login).Str("server", creds.Server).Msg("terminal session initialized")
	return nil
}

func (bt *BridgeTerminal) Shutdown(ctx context.Context) error {
	return bt.call(ctx, "shutdown", http.MethodPost, "/shutdown", nil, struct{}{}, nil)
}

// --- Market data ---

func (bt *BridgeTerminal) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	var out Quote
	if err := bt.call(ctx, "symbol_info_tick", http.MethodGet, "/tick", q, nil, &out); err != nil {
		return Quote{}, notFoundAs(err, ErrNoMarketData)
	}
	if out.Bid <= 0 && out.Ask <= 0 {
		return Quote{}, &TerminalError{Op: "symbol_info_tick", Err: ErrNoMarketData}
	}
	return out, nil
}

func (bt *BridgeTerminal) GetSymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	// Raw MT5 field names; nulls decode to zero and are defaulted below.
	var out struct {
		TradeTickSize  float64 `json:"trade_tick_size"`
		TradeTickValue float64 `json:"trade_tick_value"`
		VolumeMin      float64 `json:"volume_min"`
		VolumeMax      float64 `json:"volume_max"`
		VolumeStep     float64 `json:"volume_step"`
		Point          float64 `json:"point"`
	}
	if err := bt.call(ctx, "symbol_info", http.MethodGet, "/symbol_info", q, nil, &out); err != nil {
		return SymbolInfo{}, notFoundAs(err, ErrUnknownSymbol)
	}
	return SymbolInfo{
		TickSize:   out.TradeTickSize,
		TickValue:  out.TradeTickValue,
		VolumeMin:  out.VolumeMin,
		VolumeMax:  out.VolumeMax,
		VolumeStep: out.VolumeStep,
		Point:      out.Point,
	}.Normalized(), nil
}

func (bt *BridgeTerminal) FetchCandles(ctx context.Context, symbol string, tf Timeframe, count int) ([]Candle, error) {
	if count <= 0 {
		count = 250
	}
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("timeframe", tf.Name)
	q.Set("count", strconv.Itoa(count))

	type row struct {
		Time       int64   `json:"time"`
		Open       float64 `json:"open"`
		High       float64 `json:"high"`
		Low        float64 `json:"low"`
		Close      float64 `json:"close"`
		TickVolume int64   `json:"tick_volume"`
		RealVolume int64   `json:"real_volume"`
	}
	var rows []row
	if err := bt.call(ctx, "copy_rates_from_pos", http.MethodGet, "/rates", q, nil, &rows); err != nil {
		return nil, notFoundAs(err, ErrDataUnavailable)
	}
	if len(rows) == 0 {
		return nil, &TerminalError{Op: "copy_rates_from_pos", Err: ErrDataUnavailable}
	}

	candles := make([]Candle, 0, len(rows))
	for _, r := range rows {
		candles = append(candles, Candle{
			Time:       r.Time,
			Open:       r.Open,
			High:       r.High,
			Low:        r.Low,
			Close:      r.Close,
			TickVolume: r.TickVolume,
			Volume:     r.RealVolume,
		})
	}
	return candles, nil
}

// --- Account ---

func (bt *BridgeTerminal) GetAccountBalance(ctx context.Context) (float64, error) {
	var out struct {
		Balance *float64 `json:"balance"`
	}
	if err := bt.call(ctx, "account_info", http.MethodGet, "/account", nil, nil, &out); err != nil {
		return 0, err
	}
	if out.Balance == nil {
		return 0, &TerminalError{Op: "account_info", Err: errors.New("account info unavailable")}
	}
	return *out.Balance, nil
}

// --- Orders ---

// SubmitOrder selects the symbol in Market Watch, then sends the request. A null
// order_send result is not an error: it yields an OrderResult with nil fields.
func (bt *BridgeTerminal) SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	var sel struct {
		OK bool `json:"ok"`
	}
	body := map[string]any{"symbol": req.Symbol, "enable": true}
	if err := bt.call(ctx, "symbol_select", http.MethodPost, "/symbol_select", nil, body, &sel); err != nil {
		return OrderResult{}, err
	}
	if !sel.OK {
		return OrderResult{}, &TerminalError{Op: "symbol_select", Err: fmt.Errorf("%w: %s", ErrSymbolSelectFailed, req.Symbol)}
	}

	var res *OrderResult
	if err := bt.call(ctx, "order_send", http.MethodPost, "/order_send", nil, req, &res); err != nil {
		return OrderResult{}, err
	}
	if res == nil {
		return OrderResult{}, nil
	}
	return *res, nil
}

// --- small helpers local to this file ---

type bridgeError struct {
	Error     string            `json:"error"`
	LastError []json.RawMessage `json:"last_error"`
}

// call performs one sidecar request. Transport failures and non-2xx statuses come
// back as *TerminalError.
func (bt *BridgeTerminal) call(ctx context.Context, op, method, path string, q url.Values, in, out any) error {
	u := bt.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	var rd io.Reader
	if in != nil {
		bs, err := json.Marshal(in)
		if err != nil {
			return &TerminalError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		rd = bytes.NewReader(bs)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return &TerminalError{Op: op, Err: fmt.Errorf("newrequest: %w (url=%s)", err, u)}
	}
	req.Header.Set("User-Agent", "mt5agent/bridge")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := bt.hc.Do(req)
	if err != nil {
		return &TerminalError{Op: op, Err: err}
	}
	defer res.Body.Close()

	b, err := readLimited(res.Body)
	if err != nil {
		return &TerminalError{Op: op, Status: res.StatusCode, Err: err}
	}
	if res.StatusCode >= 300 {
		te := &TerminalError{Op: op, Err: fmt.Errorf("status %d", res.StatusCode)}
		var be bridgeError
		if json.Unmarshal(b, &be) == nil {
			te.Code, te.Message = parseLastError(be.LastError)
			if te.Message == "" {
				te.Message = be.Error
			}
		} else {
			te.Message = strings.TrimSpace(string(b))
		}
		te.Status = res.StatusCode
		return te
	}
	if out == nil || len(bytes.TrimSpace(b)) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return &TerminalError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// parseLastError reads the [code, "message"] tuple returned by mt5.last_error().
func parseLastError(raw []json.RawMessage) (int, string) {
	if len(raw) == 0 {
		return 0, ""
	}
	var code int
	_ = json.Unmarshal(raw[0], &code)
	var msg string
	if len(raw) > 1 {
		_ = json.Unmarshal(raw[1], &msg)
	}
	return code, msg
}

// notFoundAs rewrites a 404 TerminalError so it unwraps to sentinel.
func notFoundAs(err error, sentinel error) error {
	var te *TerminalError
	if errors.As(err, &te) && te.Status == http.StatusNotFound {
		return &TerminalError{Op: te.Op, Status: te.Status, Code: te.Code, Message: te.Message, Err: sentinel}
	}
	return err
}
