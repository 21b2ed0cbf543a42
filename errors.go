// FILE: errors.go
// Package main – Error taxonomy for the execution agent.
//
// Terminal lookups fail with the sentinels below (wrapped with %w so callers can
// errors.Is them). Whole-call failures carry a typed error:
//   • *TerminalError        – init/transport/order failures, with the terminal's last_error
//   • *DecisionServiceError – remote /api/analyze failed (HTTP, network, timeout, body)
//   • *ValidationFailure    – a signal or order that must not be traded; a skip, not a fault
package main

import (
	"errors"
	"fmt"
	"io"
)

// maxResponseBytes caps any body read from the sidecar or the decision service.
const maxResponseBytes = 1 << 20

var (
	ErrDataUnavailable    = errors.New("terminal returned no candle data")
	ErrNoMarketData       = errors.New("no market tick data")
	ErrUnknownSymbol      = errors.New("unknown symbol")
	ErrSymbolSelectFailed = errors.New("symbol select rejected")
	ErrResponseTooLarge   = errors.New("response body too large")
)

// readLimited reads at most maxResponseBytes from r. Longer bodies are an error
// rather than a silently truncated document.
func readLimited(r io.Reader) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, maxResponseBytes+1))
	if err != nil {
		return b, err
	}
	if len(b) > maxResponseBytes {
		return nil, fmt.Errorf("%w: over %d bytes", ErrResponseTooLarge, maxResponseBytes)
	}
	return b, nil
}

// TerminalError wraps a failed terminal call. Code/Message mirror the terminal's
// last_error tuple when the sidecar supplied one; Status is the sidecar's HTTP
// status, 0 when the request never got an answer.
type TerminalError struct {
	Op      string
	Status  int
	Code    int
	Message string
	Err     error
}

func (e *TerminalError) Error() string {
	switch {
	case e.Err != nil && e.Message != "":
		return fmt.Sprintf("terminal %s: %v (last_error %d: %s)", e.Op, e.Err, e.Code, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("terminal %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("terminal %s: last_error %d: %s", e.Op, e.Code, e.Message)
	}
}

func (e *TerminalError) Unwrap() error { return e.Err }

// DecisionServiceError is returned for any failed call to the decision endpoint.
// StatusCode is 0 when no HTTP response was received.
type DecisionServiceError struct {
	StatusCode int
	Err        error
}

func (e *DecisionServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("decision service %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("decision service: %v", e.Err)
}

func (e *DecisionServiceError) Unwrap() error { return e.Err }

type ValidationFailure struct {
	Reason string
}

func (e *ValidationFailure) Error() string { return "validation: " + e.Reason }

// isValidation reports whether err is a non-actionable skip rather than a fault.
func isValidation(err error) bool {
	var vf *ValidationFailure
	return errors.As(err, &vf)
}
