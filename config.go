// FILE: config.go
// Package main – Runtime configuration model and loader.
//
// This file defines the Config struct (every knob the agent uses) and LoadConfig,
// which layers three sources, last one wins:
//   1) built-in defaults
//   2) the config file (YAML; a JSON config.json is valid YAML and
//      loads unchanged since keys are camelCase)
//   3) environment variables (hydrated from .env by loadAgentEnv)
//
// Typical flow (see main.go):
//   loadAgentEnv(log, ".env")
//   cfg, err := LoadConfig(path, false)
//   err = cfg.Validate()
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all runtime knobs for the agent.
type Config struct {
	// Remote service
	APIBaseURL  string `yaml:"apiBaseUrl"`
	AgentID     string `yaml:"agentId"`
	AgentSecret string `yaml:"agentSecret"`

	// Terminal session
	Login        int64  `yaml:"login"`
	Password     string `yaml:"password"`
	Server       string `yaml:"server"`
	TerminalPath string `yaml:"terminalPath"`
	BridgeURL    string `yaml:"bridgeUrl"` // MT5 sidecar

	// Trading target & safety
	Symbol          string  `yaml:"symbol"`
	Timeframe       string  `yaml:"timeframe"`
	RiskPercent     float64 `yaml:"riskPercent"`
	MaxSpreadPoints float64 `yaml:"maxSpreadPoints"`
	Bars            int     `yaml:"bars"`
	DryRun          bool    `yaml:"dryRun"`

	// Loop control
	LoopIntervalSec     int `yaml:"loopIntervalSec"`
	RetryIntervalSec    int `yaml:"retryIntervalSec"`
	DecideTimeoutSec    int `yaml:"decideTimeoutSec"`
	HeartbeatTimeoutSec int `yaml:"heartbeatTimeoutSec"`
	ReportTimeoutSec    int `yaml:"reportTimeoutSec"`

	// Ops
	Port     int    `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	// Optional infrastructure
	NATSURL       string `yaml:"natsUrl"`
	RedisURL      string `yaml:"redisUrl"`
	LeaseTTLSec   int    `yaml:"leaseTtlSec"`
	JournalDriver string `yaml:"journalDriver"`
	JournalDSN    string `yaml:"journalDsn"`

	// Paper helpers
	PaperBalance float64 `yaml:"paperBalance"`
	PaperPrice   float64 `yaml:"paperPrice"`
}

func defaultConfig() Config {
	return Config{
		APIBaseURL:          "http://localhost:3000",
		BridgeURL:           "http://127.0.0.1:8787",
		Symbol:              "EURUSD",
		Timeframe:           "M5",
		RiskPercent:         1.0,
		MaxSpreadPoints:     30,
		Bars:                250,
		LoopIntervalSec:     10,
		RetryIntervalSec:    5,
		DecideTimeoutSec:    20,
		HeartbeatTimeoutSec: 5,
		ReportTimeoutSec:    10,
		Port:                8080,
		LogLevel:            "info",
		LeaseTTLSec:         60,
		JournalDriver:       "sqlite",
		PaperBalance:        10000,
		PaperPrice:          1.1,
	}
}

// LoadConfig reads path (if it exists) over the defaults, then applies env
// overrides. A missing file is only an error when required is true.
func LoadConfig(path string, required bool) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("decode config %s: %w", path, err)
			}
		case errors.Is(err, fs.ErrNotExist) && !required:
		default:
			return cfg, fmt.Errorf("read config: %w", err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.APIBaseURL = getEnv("API_BASE_URL", c.APIBaseURL)
	c.AgentID = getEnv("AGENT_ID", c.AgentID)
	c.AgentSecret = getEnv("AGENT_SECRET", c.AgentSecret)

	c.Login = getEnvInt64("MT5_LOGIN", c.Login)
	c.Password = getEnv("MT5_PASSWORD", c.Password)
	c.Server = getEnv("MT5_SERVER", c.Server)
	c.TerminalPath = getEnv("MT5_TERMINAL_PATH", c.TerminalPath)
	c.BridgeURL = getEnv("BRIDGE_URL", c.BridgeURL)

	c.Symbol = getEnv("SYMBOL", c.Symbol)
	c.Timeframe = getEnv("TIMEFRAME", c.Timeframe)
	c.RiskPercent = getEnvFloat("RISK_PERCENT", c.RiskPercent)
	c.MaxSpreadPoints = getEnvFloat("MAX_SPREAD_POINTS", c.MaxSpreadPoints)
	c.Bars = getEnvInt("BARS", c.Bars)
	c.DryRun = getEnvBool("DRY_RUN", c.DryRun)

	c.LoopIntervalSec = getEnvInt("LOOP_INTERVAL_SEC", c.LoopIntervalSec)
	c.RetryIntervalSec = getEnvInt("RETRY_INTERVAL_SEC", c.RetryIntervalSec)
	c.DecideTimeoutSec = getEnvInt("DECIDE_TIMEOUT_SEC", c.DecideTimeoutSec)
	c.HeartbeatTimeoutSec = getEnvInt("HEARTBEAT_TIMEOUT_SEC", c.HeartbeatTimeoutSec)
	c.ReportTimeoutSec = getEnvInt("REPORT_TIMEOUT_SEC", c.ReportTimeoutSec)

	c.Port = getEnvInt("PORT", c.Port)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)

	c.NATSURL = getEnv("NATS_URL", c.NATSURL)
	c.RedisURL = getEnv("REDIS_URL", c.RedisURL)
	c.LeaseTTLSec = getEnvInt("LEASE_TTL_SEC", c.LeaseTTLSec)
	c.JournalDriver = getEnv("JOURNAL_DRIVER", c.JournalDriver)
	c.JournalDSN = getEnv("JOURNAL_DSN", c.JournalDSN)

	c.PaperBalance = getEnvFloat("PAPER_BALANCE", c.PaperBalance)
	c.PaperPrice = getEnvFloat("PAPER_PRICE", c.PaperPrice)
}

// Validate rejects configs the loop cannot run safely with.
func (c Config) Validate() error {
	var problems []string
	if strings.TrimSpace(c.AgentID) == "" {
		problems = append(problems, "agentId is required")
	}
	if strings.TrimSpace(c.AgentSecret) == "" {
		problems = append(problems, "agentSecret is required")
	}
	if !c.DryRun {
		if c.Login == 0 {
			problems = append(problems, "login is required")
		}
		if c.Password == "" {
			problems = append(problems, "password is required")
		}
		if c.Server == "" {
			problems = append(problems, "server is required")
		}
	}
	if strings.TrimSpace(c.Symbol) == "" {
		problems = append(problems, "symbol is required")
	}
	if c.RiskPercent <= 0 || c.RiskPercent > 100 {
		problems = append(problems, fmt.Sprintf("riskPercent %.4f outside (0,100]", c.RiskPercent))
	}
	if c.MaxSpreadPoints < 0 {
		problems = append(problems, "maxSpreadPoints must be >= 0")
	}
	if c.Bars <= 0 {
		problems = append(problems, "bars must be > 0")
	}
	if c.RedisURL != "" && c.LeaseTTL() <= c.LoopInterval()+c.DecideTimeout()+bridgeTimeout {
		// a slow decide, a full order_send and a full sleep must fit inside one lease
		problems = append(problems, fmt.Sprintf("leaseTtlSec must exceed loopIntervalSec + decideTimeoutSec + %ds submit timeout", int(bridgeTimeout.Seconds())))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// ---- cfg helpers (getter methods) ----

func (c Config) LoopInterval() time.Duration  { return secondsOr(c.LoopIntervalSec, 10) }
func (c Config) RetryInterval() time.Duration { return secondsOr(c.RetryIntervalSec, 5) }
func (c Config) DecideTimeout() time.Duration { return secondsOr(c.DecideTimeoutSec, 20) }
func (c Config) HeartbeatTimeout() time.Duration {
	return secondsOr(c.HeartbeatTimeoutSec, 5)
}
func (c Config) ReportTimeout() time.Duration { return secondsOr(c.ReportTimeoutSec, 10) }
func (c Config) LeaseTTL() time.Duration      { return secondsOr(c.LeaseTTLSec, 60) }

func (c Config) Credentials() Credentials {
	return Credentials{Path: c.TerminalPath, Login: c.Login, Password: c.Password, Server: c.Server}
}

func secondsOr(v, def int) time.Duration {
	if v <= 0 {
		v = def
	}
	return time.Duration(v) * time.Second
}
