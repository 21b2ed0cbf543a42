// FILE: timeframe.go
// Package main – Timeframe lookup for candle requests.
//
// The terminal understands a fixed set of bar periods. Operators configure them by
// name; anything unrecognized resolves to M5 instead of failing, matching what the
// decision service expects. That fallback hides typos, so callers log it.
package main

import "strings"

// Timeframe is a terminal bar period, expressed in minutes (MT5 encodes H/D with
// flag bits, which the sidecar applies).
type Timeframe struct {
	Name    string
	Minutes int
}

var timeframes = map[string]Timeframe{
	"M1":  {Name: "M1", Minutes: 1},
	"M5":  {Name: "M5", Minutes: 5},
	"M15": {Name: "M15", Minutes: 15},
	"M30": {Name: "M30", Minutes: 30},
	"H1":  {Name: "H1", Minutes: 60},
	"H4":  {Name: "H4", Minutes: 240},
	"D1":  {Name: "D1", Minutes: 1440},
}

// DefaultTimeframe is used whenever a name is not in the table.
var DefaultTimeframe = timeframes["M5"]

// LookupTimeframe resolves name (case-insensitive). ok is false when the
// M5 fallback was applied.
func LookupTimeframe(name string) (tf Timeframe, ok bool) {
	tf, ok = timeframes[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return DefaultTimeframe, false
	}
	return tf, true
}
