package main

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func fxInfo() SymbolInfo {
	return SymbolInfo{TickSize: 0.0001, TickValue: 1.0, VolumeMin: 0.01, VolumeMax: 100, VolumeStep: 0.01, Point: 0.00001}
}

func TestComputeVolume_RiskBudget(t *testing.T) {
	// priceRisk 0.0050 → 50 ticks → 50/lot; 1% of 10000 → 2.00 lots
	v := ComputeVolume(fxInfo(), 10000, 1.1000, 1.0950, 1)
	assert.Equal(t, 2.0, v)

	// sell side: stop above entry
	v = ComputeVolume(fxInfo(), 10000, 1.0950, 1.1000, 1)
	assert.Equal(t, 2.0, v)
}

func TestComputeVolume_EntryEqualsStop(t *testing.T) {
	assert.Zero(t, ComputeVolume(fxInfo(), 10000, 1.1, 1.1, 1))
}

func TestComputeVolume_NoBudget(t *testing.T) {
	assert.Zero(t, ComputeVolume(fxInfo(), 0, 1.1, 1.09, 1))
	assert.Zero(t, ComputeVolume(fxInfo(), -500, 1.1, 1.09, 1))
	assert.Zero(t, ComputeVolume(fxInfo(), 10000, 1.1, 1.09, 0))
}

func TestComputeVolume_NonFinite(t *testing.T) {
	assert.Zero(t, ComputeVolume(fxInfo(), math.NaN(), 1.1, 1.09, 1))
	assert.Zero(t, ComputeVolume(fxInfo(), 10000, math.Inf(1), 1.09, 1))
	assert.Zero(t, ComputeVolume(fxInfo(), 10000, 1.1, math.Inf(-1), 1))

	info := fxInfo()
	info.TickValue = math.NaN()
	assert.Zero(t, ComputeVolume(info, 10000, 1.1, 1.09, 1))
}

func TestComputeVolume_ClampsToBounds(t *testing.T) {
	info := fxInfo()
	info.VolumeMax = 1.5
	assert.Equal(t, 1.5, ComputeVolume(info, 10000, 1.1000, 1.0950, 1))

	// 0.002 lots rounds to 0 steps, then the broker minimum applies
	assert.Equal(t, 0.01, ComputeVolume(fxInfo(), 10, 1.1000, 1.0950, 1))
}

func TestComputeVolume_InvertedBounds(t *testing.T) {
	info := fxInfo()
	info.VolumeMin = 5
	info.VolumeMax = 1
	assert.Zero(t, ComputeVolume(info, 10000, 1.1000, 1.0950, 1))
	assert.Zero(t, ComputeVolume(info, 1e7, 1.1000, 1.0950, 1))
}

func TestComputeVolume_DefaultsZeroMetadata(t *testing.T) {
	// tick size falls back to point 0.00001: 500 ticks → 0.2 lots
	v := ComputeVolume(SymbolInfo{}, 10000, 1.1000, 1.0950, 1)
	assert.Equal(t, 0.2, v)
}

func TestComputeVolume_RoundsHalfToEven(t *testing.T) {
	info := fxInfo()
	info.VolumeStep = 0.1
	// rawLots 0.25 → 2.5 steps → 2 steps
	assert.Equal(t, 0.2, ComputeVolume(info, 1250, 1.1000, 1.0950, 1))
	// rawLots 0.35 → 3.5 steps → 4 steps
	assert.Equal(t, 0.4, ComputeVolume(info, 1750, 1.1000, 1.0950, 1))
}

func TestComputeVolume_BoundsAndStepProperty(t *testing.T) {
	steps := []float64{0.01, 0.1, 1}
	balances := []float64{1, 50, 999, 10000, 250000, 1e7}
	stops := []float64{1.0999, 1.0950, 1.05, 0.9}
	for _, step := range steps {
		info := fxInfo()
		info.VolumeStep = step
		info.VolumeMin = step
		info.VolumeMax = 50
		for _, bal := range balances {
			for _, sl := range stops {
				v := ComputeVolume(info, bal, 1.1, sl, 2)
				assert.GreaterOrEqual(t, v, info.VolumeMin)
				assert.LessOrEqual(t, v, info.VolumeMax)
				n := decimal.NewFromFloat(v).Div(decimal.NewFromFloat(step))
				assert.True(t, n.Equal(n.Truncate(0)), "volume %v not a multiple of step %v", v, step)
			}
		}
	}
}
