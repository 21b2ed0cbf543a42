// FILE: main.go
// Package main – Program entrypoint and HTTP/metrics server.
//
// Boot sequence:
//   1) loadAgentEnv(".env")          – read .env (no shell exports required)
//   2) LoadConfig + Validate          – defaults → config file → env
//   3) resolve the timeframe          – unknown names fall back to M5 (logged)
//   4) wire terminal (bridge or paper) and Initialize it; failure is fatal
//   5) optional: Redis account lease, NATS sink, SQL trade journal
//   6) wire reporter / decision client / agent
//   7) start Prometheus /healthz + /metrics server on cfg.Port
//   8) run the execution loop until SIGINT/SIGTERM, then shut everything down
//
// Flags:
//   -config <path>    Config file (YAML or JSON). Default $AGENT_CONFIG or config.yaml
//   -dry-run          Force paper execution regardless of config
//
// Example:
//   go run . -config config.json -dry-run
//
// Notes:
//   - The MT5 sidecar must be running for live mode (bridgeUrl / BRIDGE_URL).
//   - LOG_PRETTY=1 switches to the console log writer.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	// ---- Flags ----
	var cfgPath string
	var forceDry bool
	flag.StringVar(&cfgPath, "config", getEnv("AGENT_CONFIG", "config.yaml"), "Path to config file (YAML or JSON)")
	flag.BoolVar(&forceDry, "dry-run", false, "Simulate orders instead of sending them")
	flag.Parse()

	// ---- Environment & Config ----
	boot := NewLogger(getEnv("LOG_LEVEL", "info"), getEnvBool("LOG_PRETTY", false))
	loadAgentEnv(boot, ".env")

	cfg, err := LoadConfig(cfgPath, false)
	if err != nil {
		boot.Fatal().Err(err).Str("path", cfgPath).Msg("config")
	}
	if forceDry {
		cfg.DryRun = true
	}
	if err := cfg.Validate(); err != nil {
		boot.Fatal().Err(err).Msg("config")
	}
	log := NewLogger(cfg.LogLevel, getEnvBool("LOG_PRETTY", false)).
		With().Str("agent", cfg.AgentID).Logger()

	tf, ok := LookupTimeframe(cfg.Timeframe)
	if !ok {
		log.Warn().Str("timeframe", cfg.Timeframe).Str("using", tf.Name).Msg("unknown timeframe, falling back")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// ---- Terminal wiring ----
	term, mode := buildTerminal(cfg, log)
	initCtx, initCancel := context.WithTimeout(ctx, 60*time.Second)
	err = term.Initialize(initCtx, cfg.Credentials())
	initCancel()
	if err != nil {
		log.Error().Err(err).Str("terminal", term.Name()).Msg("terminal initialize failed")
		shutdownTerminal(term, log)
		os.Exit(1)
	}

	// ---- Optional infrastructure ----
	var lease SessionLease = noopLease{}
	if cfg.RedisURL != "" {
		rl, err := NewRedisLease(ctx, cfg.RedisURL, leaseKey(cfg.Server, cfg.Login), cfg.LeaseTTL())
		if err == nil {
			err = rl.Acquire(ctx)
		}
		if err != nil {
			log.Error().Err(err).Msg("account lease")
			shutdownTerminal(term, log)
			os.Exit(1)
		}
		lease = rl
	}

	tokens := NewAgentToken(cfg.AgentID, cfg.AgentSecret)
	sinks := []ReportSink{NewHTTPSink(cfg.APIBaseURL, tokens)}

	var natsSink *NATSSink
	if cfg.NATSURL != "" {
		if natsSink, err = NewNATSSink(cfg.NATSURL, cfg.AgentID, log); err != nil {
			log.Warn().Err(err).Msg("nats sink disabled")
		} else {
			sinks = append(sinks, natsSink)
		}
	}

	var journal *Journal
	if cfg.JournalDSN != "" {
		if journal, err = OpenJournal(ctx, cfg.JournalDriver, cfg.JournalDSN); err != nil {
			log.Warn().Err(err).Str("driver", cfg.JournalDriver).Msg("trade journal disabled")
		} else {
			logJournalTail(ctx, journal, log)
			sinks = append(sinks, journal)
		}
	}

	reporter := NewReporter(ReporterOptions{
		HeartbeatTimeout: cfg.HeartbeatTimeout(),
		TradeTimeout:     cfg.ReportTimeout(),
	}, log, sinks...)

	decider := NewDecisionClient(cfg.APIBaseURL, cfg.DecideTimeout(), tokens, log)

	agent := NewAgent(AgentOptions{
		AgentID:         cfg.AgentID,
		AgentSecret:     cfg.AgentSecret,
		Symbol:          cfg.Symbol,
		Timeframe:       tf,
		RiskPercent:     cfg.RiskPercent,
		MaxSpreadPoints: cfg.MaxSpreadPoints,
		Bars:            cfg.Bars,
		LoopInterval:    cfg.LoopInterval(),
		RetryInterval:   cfg.RetryInterval(),
		Mode:            mode,
	}, term, decider, reporter, lease, log)

	// ---- HTTP metrics/health ----
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info().Int("port", cfg.Port).Msg("serving metrics on /metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server")
		}
	}()

	// ---- Run ----
	agent.Run(ctx)

	// ---- Graceful shutdown ----
	shutdownCtx, c := context.WithTimeout(context.Background(), 10*time.Second)
	defer c()
	if err := reporter.Close(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("reports still in flight at shutdown")
	}
	if err := lease.Release(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("lease release")
	}
	logPaperSummary(term, log)
	shutdownTerminal(term, log)
	if natsSink != nil {
		_ = natsSink.Close()
	}
	if journal != nil {
		_ = journal.Close()
	}
	_ = srv.Shutdown(shutdownCtx)
	log.Info().Msg("bye")
}

// buildTerminal picks the gateway for cfg and returns it with its metrics mode.
// Dry runs wrap the bridge for market data when credentials are present.
func buildTerminal(cfg Config, log zerolog.Logger) (Terminal, string) {
	if !cfg.DryRun {
		return NewBridgeTerminal(cfg.BridgeURL, log), "live"
	}
	var feed Terminal
	if cfg.BridgeURL != "" && cfg.Login != 0 {
		feed = NewBridgeTerminal(cfg.BridgeURL, log)
	}
	return NewPaperTerminal(feed, cfg.PaperPrice, cfg.PaperBalance, log), "paper"
}

// logJournalTail logs the newest journaled trade so a restart shows where it left off.
func logJournalTail(ctx context.Context, journal *Journal, log zerolog.Logger) {
	rows, err := journal.Recent(ctx, 1)
	if err != nil {
		log.Warn().Err(err).Msg("trade journal read")
		return
	}
	if len(rows) == 0 {
		log.Info().Msg("trade journal empty")
		return
	}
	last := rows[0]
	ev := log.Info().
		Str("tick", last.TickID).
		Str("symbol", last.Symbol).
		Str("action", last.Action).
		Float64("volume", last.Volume).
		Str("at", last.ReportedAt)
	if last.OrderID != nil {
		ev = ev.Str("order", *last.OrderID)
	}
	ev.Msg("last journaled trade")
}

// logPaperSummary reports the simulated fill count when running on paper.
func logPaperSummary(term Terminal, log zerolog.Logger) {
	if p, ok := term.(*PaperTerminal); ok {
		log.Info().Int("fills", p.Fills()).Msg("paper session summary")
	}
}

func shutdownTerminal(term Terminal, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := term.Shutdown(ctx); err != nil {
		log.Warn().Err(err).Str("terminal", term.Name()).Msg("terminal shutdown")
	}
}
