// FILE: report_nats.go
// Package main – NATS report sink.
//
// Publishes the same heartbeat/trade payloads the HTTP sink posts, on
//   agent.<agentId>.heartbeat
//   agent.<agentId>.trade
// so other services can follow the agent without polling the web API. Each
// publish is flushed so a dead connection surfaces as a sink failure.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

type NATSSink struct {
	nc      *nats.Conn
	subject string
}

func NewNATSSink(url, agentID string, log zerolog.Logger) (*NATSSink, error) {
	l := log.With().Str("sink", "nats").Logger()
	nc, err := nats.Connect(url,
		nats.Name("mt5agent-"+agentID),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				l.Warn().Err(err).Msg("nats disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			l.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	return &NATSSink{nc: nc, subject: "agent." + subjectToken(agentID)}, nil
}

func (n *NATSSink) Name() string { return "nats" }

func (n *NATSSink) SendHeartbeat(ctx context.Context, hb Heartbeat) error {
	hb.Secret = "" // never broadcast the agent secret
	return n.publish(ctx, n.subject+".heartbeat", hb)
}

func (n *NATSSink) SendTrade(ctx context.Context, tr TradeReport) error {
	return n.publish(ctx, n.subject+".trade", tr)
}

func (n *NATSSink) publish(ctx context.Context, subject string, v any) error {
	bs, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := n.nc.Publish(subject, bs); err != nil {
		return err
	}
	return n.nc.FlushWithContext(ctx)
}

func (n *NATSSink) Close() error {
	return n.nc.Drain()
}

// subjectToken strips characters NATS treats as subject syntax.
func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t':
			return '_'
		}
		return r
	}, s)
}
