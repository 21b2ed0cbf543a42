// FILE: report.go
// Package main – Best-effort reporting of heartbeats and trade outcomes.
//
// Reporter fans each heartbeat/trade out to every configured sink on its own
// goroutine and returns immediately; the execution loop never waits on it.
//   • HTTPSink     – POST /api/agent/heartbeat and POST /api/trade (always on)
//   • NATSSink     – report_nats.go (optional, NATS_URL)
//   • Journal      – journal.go (optional, JOURNAL_DSN)
//
// In-flight sends are bounded; when the bound is hit the report is dropped and
// counted. Failures are counted and logged at debug, then discarded.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Heartbeat is the liveness ping body.
type Heartbeat struct {
	AgentID string `json:"agentId"`
	Secret  string `json:"secret"`
	TS      int64  `json:"ts"`
}

// TradeOutcome pairs what was sent with what the terminal answered.
type TradeOutcome struct {
	Request OrderRequest `json:"request"`
	Result  OrderResult  `json:"result"`
}

// TradeReport is the body of POST /api/trade.
type TradeReport struct {
	AgentID    string       `json:"agentId"`
	TickID     string       `json:"tickId,omitempty"`
	Symbol     string       `json:"symbol"`
	Action     Action       `json:"action"`
	Volume     float64      `json:"volume"`
	Entry      *float64     `json:"entry"`
	StopLoss   float64      `json:"stopLoss"`
	TakeProfit float64      `json:"takeProfit"`
	Confidence float64      `json:"confidence"`
	Result     TradeOutcome `json:"result"`
	Time       string       `json:"time"`
}

// reportTime renders t as ISO-8601 UTC with a Z suffix.
func reportTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000000Z")
}

// ReportSink is one destination for reports.
type ReportSink interface {
	Name() string
	SendHeartbeat(ctx context.Context, hb Heartbeat) error
	SendTrade(ctx context.Context, tr TradeReport) error
}

// ---- Reporter ----

type ReporterOptions struct {
	HeartbeatTimeout time.Duration
	TradeTimeout     time.Duration
	MaxInFlight      int
}

type Reporter struct {
	sinks []ReportSink
	opts  ReporterOptions
	sem   chan struct{}
	wg    sync.WaitGroup
	log   zerolog.Logger
}

func NewReporter(opts ReporterOptions, log zerolog.Logger, sinks ...ReportSink) *Reporter {
	if opts.HeartbeatTimeout <= 0 {
		opts.HeartbeatTimeout = 5 * time.Second
	}
	if opts.TradeTimeout <= 0 {
		opts.TradeTimeout = 10 * time.Second
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 16
	}
	return &Reporter{
		sinks: sinks,
		opts:  opts,
		sem:   make(chan struct{}, opts.MaxInFlight),
		log:   log.With().Str("component", "reporter").Logger(),
	}
}

func (r *Reporter) Heartbeat(hb Heartbeat) {
	r.dispatch("heartbeat", r.opts.HeartbeatTimeout, func(ctx context.Context, s ReportSink) error {
		return s.SendHeartbeat(ctx, hb)
	})
}

func (r *Reporter) Trade(tr TradeReport) {
	r.dispatch("trade", r.opts.TradeTimeout, func(ctx context.Context, s ReportSink) error {
		return s.SendTrade(ctx, tr)
	})
}

func (r *Reporter) dispatch(kind string, timeout time.Duration, send func(context.Context, ReportSink) error) {
	for _, s := range r.sinks {
		select {
		case r.sem <- struct{}{}:
		default:
			IncReportDropped(kind, s.Name())
			r.log.Warn().Str("kind", kind).Str("sink", s.Name()).Msg("report dropped: too many in flight")
			continue
		}
		r.wg.Add(1)
		go func(s ReportSink) {
			defer r.wg.Done()
			defer func() { <-r.sem }()
			// detached from the loop context; Close bounds the wait at shutdown
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			if err := send(ctx, s); err != nil {
				IncReportFailure(kind, s.Name())
				r.log.Debug().Err(err).Str("kind", kind).Str("sink", s.Name()).Msg("report failed")
				return
			}
			IncReportSent(kind, s.Name())
		}(s)
	}
}

// Close waits for in-flight reports until ctx expires.
func (r *Reporter) Close(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ---- HTTP sink ----

// HTTPSink posts reports to the remote service.
type HTTPSink struct {
	base   string
	hc     *http.Client
	tokens *AgentToken
}

func NewHTTPSink(base string, tokens *AgentToken) *HTTPSink {
	return &HTTPSink{
		base:   strings.TrimRight(strings.TrimSpace(base), "/"),
		hc:     &http.Client{Timeout: 15 * time.Second}, // upper bound; Reporter sets tighter per-call deadlines
		tokens: tokens,
	}
}

func (h *HTTPSink) Name() string { return "http" }

func (h *HTTPSink) SendHeartbeat(ctx context.Context, hb Heartbeat) error {
	return h.post(ctx, "/api/agent/heartbeat", hb)
}

func (h *HTTPSink) SendTrade(ctx context.Context, tr TradeReport) error {
	return h.post(ctx, "/api/trade", tr)
}

func (h *HTTPSink) post(ctx context.Context, path string, body any) error {
	bs, err := json.Marshal(body)
	if err != nil {
		return err
	}
	u := h.base + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(bs))
	if err != nil {
		return fmt.Errorf("newrequest %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "mt5agent")
	h.tokens.Authorize(req)

	res, err := h.hc.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("%s %d: %s", path, res.StatusCode, strings.TrimSpace(string(b)))
	}
	_, _ = io.Copy(io.Discard, res.Body)
	return nil
}
