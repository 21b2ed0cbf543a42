// FILE: metrics.go
// Package main – Prometheus metrics for observability.
//
// Exposes the metrics the agent updates during operation:
//   • agent_ticks_total{stage,outcome}          – Loop iterations by the stage they ended in
//   • agent_signals_total{action}               – Normalized decisions received (buy|sell|hold)
//   • agent_orders_total{mode,side,result}      – Orders sent (mode: paper|live; result: done|rejected|error)
//   • agent_reports_total{kind,sink,result}     – Report deliveries (kind: heartbeat|trade; result: sent|failed|dropped)
//   • agent_spread_points                       – Last observed spread in points
//   • agent_last_volume_lots                    – Last computed order volume
//   • agent_decide_latency_seconds              – Round-trip time of /api/analyze
//   • agent_last_tick_timestamp_seconds         – Unix time the last tick finished
//
// These are registered in init() and served by the HTTP handler started in main.go
// at /metrics (Prometheus text exposition format).

package main

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mtxTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_ticks_total",
			Help: "Loop iterations by final stage and outcome",
		},
		[]string{"stage", "outcome"},
	)

	mtxSignals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_signals_total",
			Help: "Decisions received from the decision service",
		},
		[]string{"action"},
	)

	mtxOrders = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_orders_total",
			Help: "Orders sent to the terminal",
		},
		[]string{"mode", "side", "result"},
	)

	mtxReports = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_reports_total",
			Help: "Report deliveries by kind, sink and result",
		},
		[]string{"kind", "sink", "result"},
	)

	mtxSpread = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agent_spread_points",
			Help: "Last observed spread in points",
		},
	)

	mtxVolume = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agent_last_volume_lots",
			Help: "Last computed order volume in lots",
		},
	)

	mtxDecideLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "agent_decide_latency_seconds",
			Help:    "Round-trip latency of the decision service",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
		},
	)

	mtxLastTick = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "agent_last_tick_timestamp_seconds",
			Help: "Unix time the last loop iteration finished",
		},
	)
)

func init() {
	prometheus.MustRegister(mtxTicks, mtxSignals, mtxOrders, mtxReports)
	prometheus.MustRegister(mtxSpread, mtxVolume, mtxDecideLatency, mtxLastTick)
}

func IncTick(stage Stage, outcome Outcome) {
	mtxTicks.WithLabelValues(string(stage), string(outcome)).Inc()
	mtxLastTick.Set(float64(time.Now().Unix()))
}

func IncSignal(action Action) { mtxSignals.WithLabelValues(string(action)).Inc() }

func IncOrder(mode string, side Action, result string) {
	mtxOrders.WithLabelValues(mode, string(side), result).Inc()
}

func IncReportSent(kind, sink string)    { mtxReports.WithLabelValues(kind, sink, "sent").Inc() }
func IncReportFailure(kind, sink string) { mtxReports.WithLabelValues(kind, sink, "failed").Inc() }
func IncReportDropped(kind, sink string) { mtxReports.WithLabelValues(kind, sink, "dropped").Inc() }

func SetSpreadMetric(points float64)       { mtxSpread.Set(points) }
func SetVolumeMetric(lots float64)         { mtxVolume.Set(lots) }
func ObserveDecideLatency(d time.Duration) { mtxDecideLatency.Observe(d.Seconds()) }
