// FILE: gate.go
// Package main – Pre-trade gates.
//
// SpreadOK is the market-condition filter run at the top of each tick; a quote
// that cannot be read counts as "do not trade", never as a fault.
// SignalActionable is the last check between an arbitrary remote payload and
// order construction.
package main

import (
	"context"

	"github.com/shopspring/decimal"
)

// SpreadPoints returns (ask − bid) / point. A zero point uses the 0.00001 floor.
func SpreadPoints(q Quote, point float64) float64 {
	if point <= 0 || !finite(point) {
		point = defaultPoint
	}
	if !finite(q.Ask, q.Bid) {
		return 0
	}
	d := decimal.NewFromFloat(q.Ask).Sub(decimal.NewFromFloat(q.Bid)).Div(decimal.NewFromFloat(point))
	return d.InexactFloat64()
}

// SpreadOK reports whether the current spread is within maxSpreadPoints.
func SpreadOK(ctx context.Context, term Terminal, symbol string, maxSpreadPoints float64) bool {
	q, err := term.GetQuote(ctx, symbol)
	if err != nil || q.Bid <= 0 || q.Ask <= 0 || !finite(q.Bid, q.Ask) {
		return false
	}
	info, err := term.GetSymbolInfo(ctx, symbol)
	if err != nil {
		return false
	}
	spread := SpreadPoints(q, info.Point)
	SetSpreadMetric(spread)
	return spread <= maxSpreadPoints
}

// SignalActionable is true iff the signal is a buy/sell carrying a non-zero
// stop-loss and take-profit.
func SignalActionable(sig TradeSignal) bool {
	if !sig.Action.Tradable() {
		return false
	}
	if sig.StopLoss == nil || *sig.StopLoss == 0 {
		return false
	}
	if sig.TakeProfit == nil || *sig.TakeProfit == 0 {
		return false
	}
	return true
}
