// FILE: agent.go
// Package main – The execution loop.
//
// Overview
//   Run drives one tick at a time until the context is cancelled. Tick walks the
//   stages in strict order and returns a TickResult naming the stage it stopped
//   in, how it ended, and how long to sleep before the next tick. Run is the
//   single place that logs, counts and sleeps; no stage error escapes a tick.
//
//   Idle → Heartbeat → Lease → SpreadCheck → FetchData → Decide → Gate → Size → Submit → Report → Idle
//
// Stage rules
//   • Heartbeat / Report: dispatched to the Reporter and never awaited.
//   • Lease, SpreadCheck: not met → "wait", retry interval.
//   • FetchData, Decide, Size inputs, Submit: error → "fault", retry interval.
//   • Gate false, volume 0, order validation failure → "skipped", loop interval.
//   • Order sent → "traded" (or "rejected" on a non-DONE retcode), loop interval.
//
// Safety
//   • An order is only built through NewOrderRequest after SignalActionable and a
//     positive ComputeVolume; nothing is sent on any earlier failure.
//   • Quote, symbol info and balance are re-read every tick; nothing carries over.
//   • Cancellation is checked before each tick and again right before Submit.
//     The lease is refreshed at tick start and again right before Submit.
//     Once Submit starts it runs to completion on a detached context, so shutdown
//     never leaves an order in an unknown state.
//   • Panics are not recovered: they are bugs, not market conditions.
package main

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Stage names a step of the tick.
type Stage string

const (
	StageIdle        Stage = "idle"
	StageHeartbeat   Stage = "heartbeat"
	StageLease       Stage = "lease"
	StageSpreadCheck Stage = "spread_check"
	StageFetchData   Stage = "fetch_data"
	StageDecide      Stage = "decide"
	StageGate        Stage = "gate"
	StageSize        Stage = "size"
	StageSubmit      Stage = "submit"
	StageReport      Stage = "report"
	StageShutdown    Stage = "shutdown"
)

// Outcome is how a tick ended.
type Outcome string

const (
	OutcomeTraded   Outcome = "traded"
	OutcomeRejected Outcome = "rejected"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeWait     Outcome = "wait"
	OutcomeFault    Outcome = "fault"
	OutcomeCanceled Outcome = "canceled"
)

// TickResult is the single per-tick verdict handled by Run.
type TickResult struct {
	ID      string
	Stage   Stage
	Outcome Outcome
	Err     error
	Sleep   time.Duration
	Order   *TradeOutcome
}

// SignalSource produces a decision for a market snapshot.
type SignalSource interface {
	RequestSignal(ctx context.Context, symbol string, tf Timeframe, candles []Candle) (TradeSignal, error)
}

// ReportDispatcher accepts best-effort reports without blocking.
type ReportDispatcher interface {
	Heartbeat(hb Heartbeat)
	Trade(tr TradeReport)
}

type AgentOptions struct {
	AgentID         string
	AgentSecret     string
	Symbol          string
	Timeframe       Timeframe
	RiskPercent     float64
	MaxSpreadPoints float64
	Bars            int
	LoopInterval    time.Duration
	RetryInterval   time.Duration
	SubmitTimeout   time.Duration
	Mode            string // paper|live, metrics label only
}

type Agent struct {
	opts    AgentOptions
	term    Terminal
	signals SignalSource
	reports ReportDispatcher
	lease   SessionLease
	log     zerolog.Logger
	now     func() time.Time
}

func NewAgent(opts AgentOptions, term Terminal, signals SignalSource, reports ReportDispatcher, lease SessionLease, log zerolog.Logger) *Agent {
	if opts.LoopInterval <= 0 {
		opts.LoopInterval = 10 * time.Second
	}
	if opts.RetryInterval <= 0 {
		opts.RetryInterval = 5 * time.Second
	}
	if opts.SubmitTimeout <= 0 {
		opts.SubmitTimeout = bridgeTimeout
	}
	if opts.Mode == "" {
		opts.Mode = "live"
	}
	if lease == nil {
		lease = noopLease{}
	}
	return &Agent{
		opts:    opts,
		term:    term,
		signals: signals,
		reports: reports,
		lease:   lease,
		log:     log.With().Str("symbol", opts.Symbol).Logger(),
		now:     time.Now,
	}
}

// Run loops until ctx is cancelled. It never returns a tick error.
func (a *Agent) Run(ctx context.Context) {
	a.log.Info().
		Str("stage", string(StageIdle)).
		Str("terminal", a.term.Name()).
		Str("mode", a.opts.Mode).
		Str("timeframe", a.opts.Timeframe.Name).
		Float64("risk_pct", a.opts.RiskPercent).
		Float64("max_spread_pts", a.opts.MaxSpreadPoints).
		Int("bars", a.opts.Bars).
		Dur("loop", a.opts.LoopInterval).
		Dur("retry", a.opts.RetryInterval).
		Msg("execution loop starting")

	for {
		if ctx.Err() != nil {
			break
		}
		res := a.Tick(ctx)
		a.record(res)
		if !sleepCtx(ctx, res.Sleep) {
			break
		}
	}
	a.log.Info().Str("stage", string(StageShutdown)).Msg("execution loop stopped")
}

// Tick runs one pass of the loop.
func (a *Agent) Tick(ctx context.Context) TickResult {
	id := uuid.New().String()
	log := a.log.With().Str("tick", id).Logger()
	sym := a.opts.Symbol

	done := func(stage Stage, outcome Outcome, err error) TickResult {
		sleep := a.opts.LoopInterval
		if outcome == OutcomeFault || outcome == OutcomeWait {
			sleep = a.opts.RetryInterval
		}
		return TickResult{ID: id, Stage: stage, Outcome: outcome, Err: err, Sleep: sleep}
	}

	// Heartbeat
	a.reports.Heartbeat(Heartbeat{AgentID: a.opts.AgentID, Secret: a.opts.AgentSecret, TS: a.now().Unix()})
	log.Debug().Str("stage", string(StageHeartbeat)).Msg("heartbeat queued")

	// Lease
	if err := a.lease.Refresh(ctx); err != nil {
		return done(StageLease, OutcomeWait, err)
	}

	// SpreadCheck
	if !SpreadOK(ctx, a.term, sym, a.opts.MaxSpreadPoints) {
		return done(StageSpreadCheck, OutcomeWait, nil)
	}

	// FetchData
	candles, err := a.term.FetchCandles(ctx, sym, a.opts.Timeframe, a.opts.Bars)
	if err != nil {
		return done(StageFetchData, OutcomeFault, err)
	}

	// Decide
	sig, err := a.signals.RequestSignal(ctx, sym, a.opts.Timeframe, candles)
	if err != nil {
		return done(StageDecide, OutcomeFault, err)
	}
	IncSignal(sig.Action)
	log.Debug().
		Str("action", string(sig.Action)).
		Float64("confidence", sig.Confidence).
		Str("rationale", sig.Rationale).
		Msg("signal")

	// Gate
	if !SignalActionable(sig) {
		return done(StageGate, OutcomeSkipped, nil)
	}
	sl, tp := *sig.StopLoss, *sig.TakeProfit

	// Size
	entry := 0.0
	if sig.Entry != nil && *sig.Entry > 0 {
		entry = *sig.Entry
	} else {
		q, err := a.term.GetQuote(ctx, sym)
		if err != nil {
			return done(StageSize, OutcomeFault, err)
		}
		entry = q.PriceFor(sig.Action)
	}
	info, err := a.term.GetSymbolInfo(ctx, sym)
	if err != nil {
		return done(StageSize, OutcomeFault, err)
	}
	balance, err := a.term.GetAccountBalance(ctx)
	if err != nil {
		return done(StageSize, OutcomeFault, err)
	}
	volume := ComputeVolume(info, balance, entry, sl, a.opts.RiskPercent)
	SetVolumeMetric(volume)
	if volume <= 0 {
		log.Info().Float64("entry", entry).Float64("sl", sl).Float64("balance", balance).Msg("volume 0, not trading")
		return done(StageSize, OutcomeSkipped, nil)
	}

	// Submit
	q, err := a.term.GetQuote(ctx, sym)
	if err != nil {
		return done(StageSubmit, OutcomeFault, err)
	}
	req, err := NewOrderRequest(sym, sig.Action, volume, q.PriceFor(sig.Action), sl, tp)
	if err != nil {
		return done(StageSubmit, OutcomeSkipped, err)
	}
	if ctx.Err() != nil {
		return done(StageSubmit, OutcomeCanceled, ctx.Err())
	}
	// hold the lease across the send
	if err := a.lease.Refresh(ctx); err != nil {
		return done(StageLease, OutcomeWait, err)
	}
	subCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.opts.SubmitTimeout)
	res, err := a.term.SubmitOrder(subCtx, req)
	cancel()
	if err != nil {
		IncOrder(a.opts.Mode, sig.Action, "error")
		return done(StageSubmit, OutcomeFault, err)
	}

	outcome := OutcomeTraded
	if res.Done() {
		IncOrder(a.opts.Mode, sig.Action, "done")
	} else {
		outcome = OutcomeRejected
		IncOrder(a.opts.Mode, sig.Action, "rejected")
	}

	// Report
	order := TradeOutcome{Request: req, Result: res}
	a.reports.Trade(TradeReport{
		AgentID:    a.opts.AgentID,
		TickID:     id,
		Symbol:     sym,
		Action:     sig.Action,
		Volume:     volume,
		Entry:      sig.Entry,
		StopLoss:   sl,
		TakeProfit: tp,
		Confidence: sig.Confidence,
		Result:     order,
		Time:       reportTime(a.now()),
	})

	r := done(StageReport, outcome, nil)
	r.Order = &order
	return r
}

// record is the top-level handler for a tick's verdict.
func (a *Agent) record(res TickResult) {
	IncTick(res.Stage, res.Outcome)
	lvl := zerolog.InfoLevel
	switch res.Outcome {
	case OutcomeFault, OutcomeRejected:
		lvl = zerolog.WarnLevel
	case OutcomeWait:
		lvl = zerolog.DebugLevel
	case OutcomeSkipped:
		if isValidation(res.Err) {
			lvl = zerolog.WarnLevel
		}
	}
	ev := a.log.WithLevel(lvl)
	ev = ev.Str("tick", res.ID).
		Str("stage", string(res.Stage)).
		Str("outcome", string(res.Outcome)).
		Dur("sleep", res.Sleep)
	if res.Err != nil {
		ev = ev.Err(res.Err).Str("kind", errorKind(res.Err))
	}
	if res.Order != nil {
		ev = ev.Str("side", string(res.Order.Request.Side())).
			Float64("volume", res.Order.Request.Volume).
			Float64("price", res.Order.Request.Price)
		if rc := res.Order.Result.Retcode; rc != nil {
			ev = ev.Int("retcode", *rc)
		}
	}
	ev.Msg("tick")
}

// errorKind labels err with its taxonomy class for logs.
func errorKind(err error) string {
	var (
		te *TerminalError
		de *DecisionServiceError
		vf *ValidationFailure
	)
	switch {
	case errors.Is(err, ErrDataUnavailable):
		return "data_unavailable"
	case errors.Is(err, ErrNoMarketData):
		return "no_market_data"
	case errors.Is(err, ErrUnknownSymbol):
		return "unknown_symbol"
	case errors.Is(err, ErrSymbolSelectFailed):
		return "symbol_select_failed"
	case errors.Is(err, ErrLeaseLost), errors.Is(err, ErrLeaseHeld):
		return "lease"
	case errors.As(err, &de):
		return "decision_service"
	case errors.As(err, &vf):
		return "validation"
	case errors.As(err, &te):
		return "terminal"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}

// sleepCtx waits d or until ctx is done; false means ctx ended.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
