// FILE: terminal.go
// Package main – Terminal abstraction shared by all execution backends.
//
// This file defines the minimal interface the execution loop needs to talk to a
// MetaTrader 5 terminal (live through the sidecar, or paper):
//   • Terminal interface: session lifecycle, quotes, symbol metadata, candles,
//     account balance, order submission
//   • Tick-scoped value types: Candle, Quote, SymbolInfo, OrderRequest, OrderResult
//
// Two concrete implementations live in separate files:
//   • terminal_bridge.go – HTTP client for the Python MT5 sidecar
//   • terminal_paper.go  – dry-run terminal that simulates fills
package main

import (
	"context"
	"fmt"
)

// Action is the trade direction carried by a signal.
type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// Tradable reports whether a is an order-producing action.
func (a Action) Tradable() bool { return a == ActionBuy || a == ActionSell }

// Candle is one OHLC bar as the terminal reports it.
type Candle struct {
	Time       int64   `json:"time"`
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Close      float64 `json:"close"`
	TickVolume int64   `json:"tick_volume"`
	Volume     int64   `json:"volume"`
}

// Quote is a bid/ask pair at a single instant.
type Quote struct {
	Bid  float64 `json:"bid"`
	Ask  float64 `json:"ask"`
	Time int64   `json:"time,omitempty"`
}

// PriceFor returns the side of the book an order for action would fill against.
func (q Quote) PriceFor(action Action) float64 {
	if action == ActionSell {
		return q.Bid
	}
	return q.Ask
}

// Fallbacks applied to zero/absent broker metadata.
const (
	defaultPoint      = 0.00001
	defaultTickValue  = 1.0
	defaultVolumeMin  = 0.01
	defaultVolumeMax  = 100.0
	defaultVolumeStep = 0.01
)

// SymbolInfo is the broker's contract metadata for one symbol. It is a snapshot:
// the broker may change it at any time, so it is never cached across ticks.
type SymbolInfo struct {
	TickSize   float64 `json:"tick_size"`
	TickValue  float64 `json:"tick_value"`
	VolumeMin  float64 `json:"volume_min"`
	VolumeMax  float64 `json:"volume_max"`
	VolumeStep float64 `json:"volume_step"`
	Point      float64 `json:"point"`
}

// Normalized fills zero or negative fields with safe defaults so downstream math
// never divides by zero. TickSize falls back to Point before the hard floor.
func (s SymbolInfo) Normalized() SymbolInfo {
	if s.Point <= 0 {
		s.Point = defaultPoint
	}
	if s.TickSize <= 0 {
		s.TickSize = s.Point
	}
	if s.TickValue <= 0 {
		s.TickValue = defaultTickValue
	}
	if s.VolumeMin <= 0 {
		s.VolumeMin = defaultVolumeMin
	}
	if s.VolumeMax <= 0 {
		s.VolumeMax = defaultVolumeMax
	}
	if s.VolumeStep <= 0 {
		s.VolumeStep = defaultVolumeStep
	}
	return s
}

// Credentials opens a terminal session.
type Credentials struct {
	Path     string `json:"path"`
	Login    int64  `json:"login"`
	Password string `json:"password"`
	Server   string `json:"server"`
}

// Fixed protocol constants stamped on every order.
const (
	orderDeviation = 20
	orderMagic     = 880055535
	orderComment   = "agentic-0b78d445"

	tradeActionDeal  = "TRADE_ACTION_DEAL"
	orderFillingIOC  = "ORDER_FILLING_IOC"
	retcodeTradeDone = 10009
)

// OrderRequest is a fully validated market order. Build it with NewOrderRequest;
// the zero value is never submitted.
type OrderRequest struct {
	Action      string  `json:"action"`
	Symbol      string  `json:"symbol"`
	Volume      float64 `json:"volume"`
	Type        string  `json:"type"`
	Price       float64 `json:"price"`
	StopLoss    float64 `json:"sl"`
	TakeProfit  float64 `json:"tp"`
	Deviation   int     `json:"deviation"`
	Magic       int64   `json:"magic"`
	Comment     string  `json:"comment"`
	TypeFilling string  `json:"type_filling"`

	side Action
}

// Side returns the signal action the request was built from.
func (r OrderRequest) Side() Action { return r.side }

// NewOrderRequest is the only way to build an order. It refuses anything but a
// buy/sell with positive volume and non-zero stop-loss and take-profit.
func NewOrderRequest(symbol string, action Action, volume, price, stopLoss, takeProfit float64) (OrderRequest, error) {
	switch {
	case !action.Tradable():
		return OrderRequest{}, &ValidationFailure{Reason: fmt.Sprintf("action %q is not tradable", action)}
	case volume <= 0:
		return OrderRequest{}, &ValidationFailure{Reason: fmt.Sprintf("volume %.4f <= 0", volume)}
	case stopLoss == 0 || takeProfit == 0:
		return OrderRequest{}, &ValidationFailure{Reason: "stop-loss and take-profit are required"}
	case price <= 0:
		return OrderRequest{}, &ValidationFailure{Reason: fmt.Sprintf("price %.5f <= 0", price)}
	}
	orderType := "ORDER_TYPE_BUY"
	if action == ActionSell {
		orderType = "ORDER_TYPE_SELL"
	}
	return OrderRequest{
		Action:      tradeActionDeal,
		Symbol:      symbol,
		Volume:      volume,
		Type:        orderType,
		Price:       price,
		StopLoss:    stopLoss,
		TakeProfit:  takeProfit,
		Deviation:   orderDeviation,
		Magic:       orderMagic,
		Comment:     orderComment,
		TypeFilling: orderFillingIOC,
		side:        action,
	}, nil
}

// OrderResult is the terminal's answer to order_send. Every field is optional:
// the terminal can fail without returning a structured result.
type OrderResult struct {
	Retcode *int    `json:"retcode"`
	Comment *string `json:"comment"`
	OrderID *uint64 `json:"order"`
	DealID  *uint64 `json:"deal"`
}

// Done reports whether the terminal confirmed the deal.
func (r OrderResult) Done() bool { return r.Retcode != nil && *r.Retcode == retcodeTradeDone }

// Terminal is the minimal surface the agent needs from the broker terminal.
type Terminal interface {
	Name() string
	Initialize(ctx context.Context, creds Credentials) error
	FetchCandles(ctx context.Context, symbol string, tf Timeframe, count int) ([]Candle, error)
	GetQuote(ctx context.Context, symbol string) (Quote, error)
	GetSymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error)
	GetAccountBalance(ctx context.Context) (float64, error)
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	Shutdown(ctx context.Context) error
}
