// FILE: decision.go
// Package main – Client for the remote decision service.
//
// RequestSignal posts the tick's market snapshot to POST {api}/api/analyze and
// normalizes the answer into a TradeSignal. The service is trusted for strategy
// but not for shape: every field is read defensively and anything missing,
// mistyped or non-finite falls back to the safest value (hold, confidence 0,
// no prices). Transport failures, timeouts, non-2xx answers and bodies that are
// not a JSON object are returned as *DecisionServiceError.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// TradeSignal is the normalized decision for one tick.
type TradeSignal struct {
	Action     Action
	Entry      *float64
	StopLoss   *float64
	TakeProfit *float64
	Confidence float64
	Rationale  string
}

// HoldSignal is what any unusable response degrades to.
func HoldSignal() TradeSignal { return TradeSignal{Action: ActionHold} }

type analyzeRequest struct {
	Symbol    string   `json:"symbol"`
	Timeframe string   `json:"timeframe"`
	Candles   []Candle `json:"candles"`
}

// DecisionClient talks to the analyze endpoint.
type DecisionClient struct {
	base   string
	hc     *http.Client
	tokens *AgentToken
	log    zerolog.Logger
}

func NewDecisionClient(base string, timeout time.Duration, tokens *AgentToken, log zerolog.Logger) *DecisionClient {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &DecisionClient{
		base:   strings.TrimRight(strings.TrimSpace(base), "/"),
		hc:     &http.Client{Timeout: timeout},
		tokens: tokens,
		log:    log.With().Str("component", "decision").Logger(),
	}
}

func (dc *DecisionClient) RequestSignal(ctx context.Context, symbol string, tf Timeframe, candles []Candle) (TradeSignal, error) {
	if candles == nil {
		candles = []Candle{}
	}
	bs, err := json.Marshal(analyzeRequest{Symbol: symbol, Timeframe: tf.Name, Candles: candles})
	if err != nil {
		return HoldSignal(), &DecisionServiceError{Err: fmt.Errorf("encode: %w", err)}
	}

	u := dc.base + "/api/analyze"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(bs))
	if err != nil {
		return HoldSignal(), &DecisionServiceError{Err: fmt.Errorf("newrequest analyze: %w (url=%s)", err, u)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "mt5agent")
	dc.tokens.Authorize(req)

	start := time.Now()
	res, err := dc.hc.Do(req)
	ObserveDecideLatency(time.Since(start))
	if err != nil {
		return HoldSignal(), &DecisionServiceError{Err: err}
	}
	defer res.Body.Close()

	b, err := readLimited(res.Body)
	if err != nil {
		return HoldSignal(), &DecisionServiceError{StatusCode: res.StatusCode, Err: err}
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return HoldSignal(), &DecisionServiceError{StatusCode: res.StatusCode, Err: errors.New(strings.TrimSpace(string(b)))}
	}

	sig, err := parseSignal(b)
	if err != nil {
		return HoldSignal(), &DecisionServiceError{StatusCode: res.StatusCode, Err: err}
	}
	return sig, nil
}

// parseSignal reads {action, entry, stopLoss, takeProfit, confidence, rationale}.
func parseSignal(b []byte) (TradeSignal, error) {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return HoldSignal(), fmt.Errorf("decode signal: %w", err)
	}
	if raw == nil {
		return HoldSignal(), errors.New("decode signal: empty body")
	}

	sig := HoldSignal()
	if s, ok := raw["action"].(string); ok {
		switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
		case ActionBuy, ActionSell, ActionHold:
			sig.Action = a
		}
	}
	sig.Entry = optPrice(raw["entry"])
	sig.StopLoss = optPrice(raw["stopLoss"])
	sig.TakeProfit = optPrice(raw["takeProfit"])
	if c, ok := raw["confidence"].(float64); ok && !math.IsNaN(c) {
		sig.Confidence = math.Max(0, math.Min(1, c))
	}
	if r, ok := raw["rationale"].(string); ok {
		sig.Rationale = r
	}
	return sig, nil
}

// optPrice accepts a finite JSON number, else nil.
func optPrice(v any) *float64 {
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
