// FILE: sizing.go
// Package main – Risk-based position sizing.
//
// ComputeVolume turns a risk-percent policy into a broker-compliant lot size:
//
//   priceRisk  = |entry − stopLoss|
//   ticks      = priceRisk / tickSize
//   costPerLot = ticks × tickValue
//   rawLots    = balance × riskPercent/100 / costPerLot
//   volume     = clamp(round(rawLots/step) × step, min, max), rounded to 2 dp
//
// All arithmetic is decimal; rounding is half-to-even.
//
// A result of 0 means "do not trade". Callers must treat it as a hard skip and
// never retry with the broker minimum.
package main

import (
	"math"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

func ComputeVolume(info SymbolInfo, balance, entry, stopLoss, riskPercent float64) float64 {
	if !finite(balance, entry, stopLoss, riskPercent) {
		return 0
	}
	info = info.Normalized()
	if !finite(info.TickSize, info.TickValue, info.VolumeMin, info.VolumeMax, info.VolumeStep) {
		return 0
	}
	if info.VolumeMin > info.VolumeMax {
		return 0 // inverted broker bounds have no valid volume
	}

	priceRisk := decimal.NewFromFloat(entry).Sub(decimal.NewFromFloat(stopLoss)).Abs()
	if !priceRisk.IsPositive() {
		return 0
	}

	ticks := priceRisk.Div(decimal.NewFromFloat(info.TickSize))
	costPerLot := ticks.Mul(decimal.NewFromFloat(info.TickValue))
	if !costPerLot.IsPositive() {
		return 0
	}

	riskAmount := decimal.NewFromFloat(balance).Mul(decimal.NewFromFloat(riskPercent)).Div(hundred)
	rawLots := riskAmount.Div(costPerLot)
	if !rawLots.IsPositive() {
		// empty budget is a skip, not volume_min
		return 0
	}

	step := decimal.NewFromFloat(info.VolumeStep)
	stepped := rawLots.Div(step).RoundBank(0).Mul(step)
	stepped = decimal.Max(decimal.NewFromFloat(info.VolumeMin), decimal.Min(decimal.NewFromFloat(info.VolumeMax), stepped))

	return stepped.RoundBank(2).InexactFloat64()
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
