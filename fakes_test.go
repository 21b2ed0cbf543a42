package main

import (
	"context"
	"sync"
	"time"
)

// fakeTerminal is a scriptable Terminal for loop and gate tests.
type fakeTerminal struct {
	mu sync.Mutex

	quote      Quote
	quoteErr   error
	info       SymbolInfo
	infoErr    error
	candles    []Candle
	candlesErr error
	balance    float64
	balanceErr error
	result     OrderResult
	submitErr  error

	onSubmit func()

	submitted   []OrderRequest
	submitErrs  []error
	submitTimed []bool
}

func newFakeTerminal() *fakeTerminal {
	rc := retcodeTradeDone
	return &fakeTerminal{
		quote:   Quote{Bid: 1.10000, Ask: 1.10020},
		info:    SymbolInfo{TickSize: 0.0001, TickValue: 1.0, VolumeMin: 0.01, VolumeMax: 100, VolumeStep: 0.01, Point: 0.00001},
		candles: []Candle{{Time: 1, Open: 1.1, High: 1.1, Low: 1.1, Close: 1.1}},
		balance: 10000,
		result:  OrderResult{Retcode: &rc},
	}
}

func (f *fakeTerminal) Name() string                                  { return "fake" }
func (f *fakeTerminal) Initialize(context.Context, Credentials) error { return nil }
func (f *fakeTerminal) Shutdown(context.Context) error                { return nil }

func (f *fakeTerminal) FetchCandles(ctx context.Context, symbol string, tf Timeframe, count int) ([]Candle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.candles, f.candlesErr
}

func (f *fakeTerminal) GetQuote(ctx context.Context, symbol string) (Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quote, f.quoteErr
}

func (f *fakeTerminal) GetSymbolInfo(ctx context.Context, symbol string) (SymbolInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.info.Normalized(), f.infoErr
}

func (f *fakeTerminal) GetAccountBalance(ctx context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, f.balanceErr
}

func (f *fakeTerminal) SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.onSubmit != nil {
		f.onSubmit()
	}
	_, timed := ctx.Deadline()
	f.submitted = append(f.submitted, req)
	f.submitErrs = append(f.submitErrs, ctx.Err())
	f.submitTimed = append(f.submitTimed, timed)
	return f.result, f.submitErr
}

func (f *fakeTerminal) orders() []OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]OrderRequest(nil), f.submitted...)
}

// fakeSignals returns a fixed signal, or blocks until ctx ends when wait is set.
type fakeSignals struct {
	mu    sync.Mutex
	sig   TradeSignal
	err   error
	wait  time.Duration
	calls int
}

func (f *fakeSignals) RequestSignal(ctx context.Context, symbol string, tf Timeframe, candles []Candle) (TradeSignal, error) {
	f.mu.Lock()
	f.calls++
	sig, err, wait := f.sig, f.err, f.wait
	f.mu.Unlock()
	if wait > 0 {
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return HoldSignal(), &DecisionServiceError{Err: ctx.Err()}
		}
	}
	return sig, err
}

func (f *fakeSignals) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeReports records dispatches without sending anything.
type fakeReports struct {
	mu         sync.Mutex
	heartbeats []Heartbeat
	trades     []TradeReport
}

func (f *fakeReports) Heartbeat(hb Heartbeat) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heartbeats = append(f.heartbeats, hb)
}

func (f *fakeReports) Trade(tr TradeReport) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trades = append(f.trades, tr)
}

func (f *fakeReports) tradeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.trades)
}

// failingSink fails every send.
type failingSink struct {
	mu    sync.Mutex
	calls int
}

func (s *failingSink) Name() string { return "failing" }

func (s *failingSink) SendHeartbeat(ctx context.Context, hb Heartbeat) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return context.DeadlineExceeded
}

func (s *failingSink) SendTrade(ctx context.Context, tr TradeReport) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return context.DeadlineExceeded
}

type stubLease struct{ err error }

func (l stubLease) Acquire(context.Context) error { return l.err }
func (l stubLease) Refresh(context.Context) error { return l.err }
func (l stubLease) Release(context.Context) error { return nil }

// flakyLease fails every Refresh from call failFrom on; 0 never fails.
type flakyLease struct {
	mu       sync.Mutex
	failFrom int
	calls    int
}

func (l *flakyLease) Acquire(context.Context) error { return nil }
func (l *flakyLease) Release(context.Context) error { return nil }

func (l *flakyLease) Refresh(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.failFrom > 0 && l.calls >= l.failFrom {
		return ErrLeaseLost
	}
	return nil
}

func (l *flakyLease) refreshes() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func ptr[T any](v T) *T { return &v }
