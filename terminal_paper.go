// FILE: terminal_paper.go
// Package main – Dry-run terminal (no orders reach the broker).
//
// PaperTerminal simulates order execution. Market data comes from an optional
// feed terminal (normally the sidecar, so dry runs see real quotes and candles);
// without a feed it synthesizes a flat market around a fixed price so the loop
// can be exercised with no terminal at all.
//
// Fills are always full, at the requested price, with retcode TRADE_RETCODE_DONE
// and uuid-derived order/deal tickets. Balance is constant: the agent keeps no
// position state, so there is nothing to mark to market.
package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PaperTerminal keeps a fixed price and balance used to simulate fills.
type PaperTerminal struct {
	feed    Terminal
	price   float64
	balance float64
	log     zerolog.Logger

	mu     sync.Mutex
	fills  int
	closed bool
}

func NewPaperTerminal(feed Terminal, price, balance float64, log zerolog.Logger) *PaperTerminal {
	if price <= 0 {
		price = 1.1 // bootstrap price if none configured
	}
	if balance <= 0 {
		balance = 10000
	}
	return &PaperTerminal{
		feed:    feed,
		price:   price,
		balance: balance,
		log:     log.With().Str("terminal", "paper").Logger(),
	}
}

func (p *PaperTerminal) Name() string {
	if p.feed != nil {
		return "paper+" + p.feed.Name()
	}
	return "paper"
}

func (p *PaperTerminal) Initialize(ctx context.Context, creds Credentials) error {
	if p.feed != nil && creds.Login != 0 {
		return p.feed.Initialize(ctx, creds)
	}
	return nil
}

func (p *PaperTerminal) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	if p.feed != nil {
		return p.feed.Shutdown(ctx)
	}
	return nil
}

func (p *PaperTerminal) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	if p.feed != nil {
		return p.feed.GetQuote(ctx, symbol)
	}
	spread := 2 * defaultPoint
	return Quote{Bid: p.price, Ask: p.price + spread, Time: time.Now().Unix()}, nil
}

func (p *PaperTerminal) GetSymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error) {
	if p.feed != nil {
		return p.feed.GetSymbolInfo(ctx, symbol)
	}
	return SymbolInfo{TickSize: defaultPoint, TickValue: defaultTickValue, Point: defaultPoint}.Normalized(), nil
}

// FetchCandles returns count flat bars ending at the current period, oldest first.
func (p *PaperTerminal) FetchCandles(ctx context.Context, symbol string, tf Timeframe, count int) ([]Candle, error) {
	if p.feed != nil {
		return p.feed.FetchCandles(ctx, symbol, tf, count)
	}
	if count <= 0 {
		return nil, &TerminalError{Op: "copy_rates_from_pos", Err: ErrDataUnavailable}
	}
	period := int64(tf.Minutes) * 60
	last := time.Now().Unix() / period * period
	out := make([]Candle, count)
	for i := range out {
		out[i] = Candle{
			Time:  last - int64(count-1-i)*period,
			Open:  p.price,
			High:  p.price,
			Low:   p.price,
			Close: p.price,
		}
	}
	return out, nil
}

func (p *PaperTerminal) GetAccountBalance(ctx context.Context) (float64, error) {
	return p.balance, nil
}

// SubmitOrder simulates an immediate full fill at the request price.
func (p *PaperTerminal) SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	if req.Volume <= 0 {
		return OrderResult{}, errors.New("volume must be > 0")
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return OrderResult{}, &TerminalError{Op: "order_send", Err: errors.New("terminal shut down")}
	}
	p.fills++
	p.mu.Unlock()

	retcode := retcodeTradeDone
	comment := "Request executed (paper)"
	order := uint64(uuid.New().ID())
	deal := uint64(uuid.New().ID())

	p.log.Info().
		Str("symbol", req.Symbol).
		Str("type", req.Type).
		Float64("volume", req.Volume).
		Float64("price", req.Price).
		Float64("sl", req.StopLoss).
		Float64("tp", req.TakeProfit).
		Uint64("order", order).
		Msg("paper fill")

	return OrderResult{Retcode: &retcode, Comment: &comment, OrderID: &order, DealID: &deal}, nil
}

// Fills returns how many orders were simulated.
func (p *PaperTerminal) Fills() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fills
}
