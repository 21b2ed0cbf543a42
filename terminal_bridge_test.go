package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSidecar mimics the Python MT5 bridge.
type fakeSidecar struct {
	mu         sync.Mutex
	selectOK   bool
	orderBody  string
	sentOrders []map[string]any
	initCreds  Credentials
	shutdown   bool
}

func (s *fakeSidecar) handler() http.Handler {
	mux := http.NewServeMux()
	writeErr := func(w http.ResponseWriter, status int, msg string, code int) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": msg, "last_error": []any{code, msg}})
	}
	mux.HandleFunc("/initialize", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		_ = json.NewDecoder(r.Body).Decode(&s.initCreds)
		if s.initCreds.Password == "bad" {
			writeErr(w, http.StatusBadGateway, "Authorization failed", -6)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("/shutdown", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc("/tick", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "EURUSD" {
			writeErr(w, http.StatusNotFound, "no tick", 0)
			return
		}
		_, _ = w.Write([]byte(`{"bid":1.1,"ask":1.1002,"time":1700000000}`))
	})
	mux.HandleFunc("/symbol_info", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("symbol") {
		case "EURUSD":
			_, _ = w.Write([]byte(`{"trade_tick_size":0.00001,"trade_tick_value":1.0,"volume_min":0.01,"volume_max":200,"volume_step":0.01,"point":0.00001}`))
		case "XAUUSD":
			_, _ = w.Write([]byte(`{"trade_tick_size":null,"trade_tick_value":0,"point":0.01}`))
		default:
			writeErr(w, http.StatusNotFound, "unknown symbol", 0)
		}
	})
	mux.HandleFunc("/rates", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case q.Get("symbol") == "EMPTY":
			_, _ = w.Write([]byte(`[]`))
		case q.Get("symbol") != "EURUSD":
			writeErr(w, http.StatusNotFound, "no rates", 0)
		default:
			_, _ = w.Write([]byte(`[
				{"time":1700000000,"open":1.1,"high":1.2,"low":1.0,"close":1.15,"tick_volume":42,"spread":2,"real_volume":7},
				{"time":1700000300,"open":1.15,"high":1.16,"low":1.14,"close":1.155,"tick_volume":10,"spread":2,"real_volume":0}
			]`))
		}
	})
	mux.HandleFunc("/account", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"balance":10000.5,"equity":10001}`))
	})
	mux.HandleFunc("/symbol_select", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.selectOK {
			_, _ = w.Write([]byte(`{"ok":true}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":false}`))
	})
	mux.HandleFunc("/order_send", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		var m map[string]any
		_ = json.NewDecoder(r.Body).Decode(&m)
		s.sentOrders = append(s.sentOrders, m)
		_, _ = w.Write([]byte(s.orderBody))
	})
	return mux
}

func newBridgeForTest(t *testing.T) (*BridgeTerminal, *fakeSidecar) {
	t.Helper()
	sc := &fakeSidecar{selectOK: true, orderBody: `{"retcode":10009,"comment":"Request executed","order":123,"deal":456}`}
	srv := httptest.NewServer(sc.handler())
	t.Cleanup(srv.Close)
	return NewBridgeTerminal(srv.URL+"/", zerolog.Nop()), sc
}

func TestBridge_InitializeAndShutdown(t *testing.T) {
	bt, sc := newBridgeForTest(t)
	ctx := context.Background()

	require.NoError(t, bt.Initialize(ctx, Credentials{Login: 5001, Password: "pw", Server: "Demo"}))
	assert.Equal(t, int64(5001), sc.initCreds.Login)

	err := bt.Initialize(ctx, Credentials{Login: 5001, Password: "bad", Server: "Demo"})
	var te *TerminalError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "initialize", te.Op)
	assert.Equal(t, http.StatusBadGateway, te.Status)
	assert.Equal(t, -6, te.Code)
	assert.Equal(t, "Authorization failed", te.Message)

	require.NoError(t, bt.Shutdown(ctx))
	assert.True(t, sc.shutdown)
}

func TestBridge_Quote(t *testing.T) {
	bt, _ := newBridgeForTest(t)
	ctx := context.Background()

	q, err := bt.GetQuote(ctx, "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, 1.1, q.Bid)
	assert.Equal(t, 1.1002, q.Ask)

	_, err = bt.GetQuote(ctx, "NOPE")
	assert.ErrorIs(t, err, ErrNoMarketData)
}

func TestBridge_SymbolInfo(t *testing.T) {
	bt, _ := newBridgeForTest(t)
	ctx := context.Background()

	info, err := bt.GetSymbolInfo(ctx, "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, 200.0, info.VolumeMax)
	assert.Equal(t, 0.00001, info.TickSize)

	// null/zero fields are defaulted
	info, err = bt.GetSymbolInfo(ctx, "XAUUSD")
	require.NoError(t, err)
	assert.Equal(t, 0.01, info.TickSize)
	assert.Equal(t, 1.0, info.TickValue)
	assert.Equal(t, 0.01, info.VolumeStep)

	_, err = bt.GetSymbolInfo(ctx, "NOPE")
	assert.ErrorIs(t, err, ErrUnknownSymbol)
}

func TestBridge_FetchCandles(t *testing.T) {
	bt, _ := newBridgeForTest(t)
	ctx := context.Background()

	cs, err := bt.FetchCandles(ctx, "EURUSD", DefaultTimeframe, 2)
	require.NoError(t, err)
	require.Len(t, cs, 2)
	assert.Equal(t, int64(1700000000), cs[0].Time)
	assert.Equal(t, int64(42), cs[0].TickVolume)
	assert.Equal(t, int64(7), cs[0].Volume)
	assert.Equal(t, 1.155, cs[1].Close)

	_, err = bt.FetchCandles(ctx, "EMPTY", DefaultTimeframe, 2)
	assert.ErrorIs(t, err, ErrDataUnavailable)

	_, err = bt.FetchCandles(ctx, "NOPE", DefaultTimeframe, 2)
	assert.ErrorIs(t, err, ErrDataUnavailable)
}

func TestBridge_AccountBalance(t *testing.T) {
	bt, _ := newBridgeForTest(t)
	bal, err := bt.GetAccountBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10000.5, bal)
}

func TestBridge_SubmitOrder(t *testing.T) {
	bt, sc := newBridgeForTest(t)
	ctx := context.Background()
	req, err := NewOrderRequest("EURUSD", ActionBuy, 2, 1.1002, 1.095, 1.11)
	require.NoError(t, err)

	res, err := bt.SubmitOrder(ctx, req)
	require.NoError(t, err)
	assert.True(t, res.Done())
	require.NotNil(t, res.OrderID)
	assert.Equal(t, uint64(123), *res.OrderID)
	require.NotNil(t, res.DealID)
	assert.Equal(t, uint64(456), *res.DealID)

	require.Len(t, sc.sentOrders, 1)
	sent := sc.sentOrders[0]
	assert.Equal(t, "ORDER_TYPE_BUY", sent["type"])
	assert.Equal(t, 1.095, sent["sl"])
	assert.Equal(t, 1.11, sent["tp"])
	assert.Equal(t, float64(20), sent["deviation"])
}

func TestBridge_SubmitOrderNullResult(t *testing.T) {
	bt, sc := newBridgeForTest(t)
	sc.orderBody = `null`
	req, err := NewOrderRequest("EURUSD", ActionSell, 1, 1.1, 1.11, 1.09)
	require.NoError(t, err)

	res, err := bt.SubmitOrder(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, res.Retcode)
	assert.False(t, res.Done())
}

func TestBridge_SymbolSelectRejected(t *testing.T) {
	bt, sc := newBridgeForTest(t)
	sc.selectOK = false
	req, err := NewOrderRequest("EURUSD", ActionBuy, 1, 1.1, 1.09, 1.11)
	require.NoError(t, err)

	_, err = bt.SubmitOrder(context.Background(), req)
	assert.ErrorIs(t, err, ErrSymbolSelectFailed)
	assert.Empty(t, sc.sentOrders)
}

func TestBridge_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	bt := NewBridgeTerminal(srv.URL, zerolog.Nop())

	_, err := bt.GetAccountBalance(context.Background())
	var te *TerminalError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "account_info", te.Op)
	assert.Zero(t, te.Status)
}

func TestBridge_OversizedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"balance":10000}`))
		_, _ = w.Write([]byte(strings.Repeat(" ", maxResponseBytes)))
	}))
	defer srv.Close()
	bt := NewBridgeTerminal(srv.URL, zerolog.Nop())

	_, err := bt.GetAccountBalance(context.Background())
	var te *TerminalError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "account_info", te.Op)
	assert.Equal(t, http.StatusOK, te.Status)
	assert.ErrorIs(t, err, ErrResponseTooLarge)
}

func TestReadLimited(t *testing.T) {
	b, err := readLimited(strings.NewReader(strings.Repeat("x", maxResponseBytes)))
	require.NoError(t, err)
	assert.Len(t, b, maxResponseBytes)

	_, err = readLimited(strings.NewReader(strings.Repeat("x", maxResponseBytes+1)))
	assert.ErrorIs(t, err, ErrResponseTooLarge)
}

func TestNewBridgeTerminal_CleansBase(t *testing.T) {
	assert.Equal(t, "http://127.0.0.1:8787", NewBridgeTerminal("", zerolog.Nop()).base)
	assert.Equal(t, "http://host:8787", NewBridgeTerminal(" http://host:8787/ # sidecar", zerolog.Nop()).base)
}

func TestParseLastError(t *testing.T) {
	code, msg := parseLastError([]json.RawMessage{json.RawMessage(`-10004`), json.RawMessage(`"No connection"`)})
	assert.Equal(t, -10004, code)
	assert.Equal(t, "No connection", msg)

	code, msg = parseLastError(nil)
	assert.Zero(t, code)
	assert.Empty(t, msg)
}
