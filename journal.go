// FILE: journal.go
// Package main – Local trade journal (SQL report sink).
//
// Journal keeps an append-only row per submitted order next to the agent, so an
// operator can reconcile terminal history even when the remote service missed a
// report. It is write-only from the loop's point of view: nothing read back here
// feeds a trading decision.
//
// Drivers:
//   • sqlite   (default; pure Go, DSN is a file path)
//   • postgres (lib/pq DSN)
package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

func init() {
	// glebarez registers as "sqlite", which sqlx does not know by name.
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

const journalSchema = `
CREATE TABLE IF NOT EXISTS agent_trades (
	id          TEXT PRIMARY KEY,
	tick_id     TEXT,
	agent_id    TEXT NOT NULL,
	symbol      TEXT NOT NULL,
	action      TEXT NOT NULL,
	volume      DOUBLE PRECISION NOT NULL,
	entry       DOUBLE PRECISION,
	price       DOUBLE PRECISION NOT NULL,
	stop_loss   DOUBLE PRECISION NOT NULL,
	take_profit DOUBLE PRECISION NOT NULL,
	confidence  DOUBLE PRECISION NOT NULL,
	retcode     INTEGER,
	comment     TEXT,
	order_id    TEXT,
	deal_id     TEXT,
	reported_at TEXT NOT NULL
)`

// JournalRow is one agent_trades row.
type JournalRow struct {
	ID         string   `db:"id"`
	TickID     string   `db:"tick_id"`
	AgentID    string   `db:"agent_id"`
	Symbol     string   `db:"symbol"`
	Action     string   `db:"action"`
	Volume     float64  `db:"volume"`
	Entry      *float64 `db:"entry"`
	Price      float64  `db:"price"`
	StopLoss   float64  `db:"stop_loss"`
	TakeProfit float64  `db:"take_profit"`
	Confidence float64  `db:"confidence"`
	Retcode    *int64   `db:"retcode"`
	Comment    *string  `db:"comment"`
	OrderID    *string  `db:"order_id"` // uint64 ticket, decimal text
	DealID     *string  `db:"deal_id"`
	ReportedAt string   `db:"reported_at"`
}

type Journal struct {
	db *sqlx.DB
}

// OpenJournal connects and ensures the schema exists.
func OpenJournal(ctx context.Context, driver, dsn string) (*Journal, error) {
	driver = strings.ToLower(strings.TrimSpace(driver))
	if driver == "" {
		driver = "sqlite"
	}
	if driver != "sqlite" && driver != "postgres" {
		return nil, fmt.Errorf("journal: unsupported driver %q", driver)
	}
	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("journal open: %w", err)
	}
	if driver == "sqlite" {
		db.SetMaxOpenConns(1) // single writer
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
			db.Close()
			return nil, fmt.Errorf("journal pragma: %w", err)
		}
	} else {
		db.SetMaxOpenConns(4)
		db.SetConnMaxIdleTime(5 * time.Minute)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, journalSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

func (j *Journal) Name() string { return "journal" }

// SendHeartbeat is a no-op; liveness is not journaled.
func (j *Journal) SendHeartbeat(ctx context.Context, hb Heartbeat) error { return nil }

func (j *Journal) SendTrade(ctx context.Context, tr TradeReport) error {
	row := JournalRow{
		ID:         uuid.New().String(),
		TickID:     tr.TickID,
		AgentID:    tr.AgentID,
		Symbol:     tr.Symbol,
		Action:     string(tr.Action),
		Volume:     tr.Volume,
		Entry:      tr.Entry,
		Price:      tr.Result.Request.Price,
		StopLoss:   tr.StopLoss,
		TakeProfit: tr.TakeProfit,
		Confidence: tr.Confidence,
		Comment:    tr.Result.Result.Comment,
		ReportedAt: tr.Time,
	}
	if rc := tr.Result.Result.Retcode; rc != nil {
		v := int64(*rc)
		row.Retcode = &v
	}
	row.OrderID = ticketText(tr.Result.Result.OrderID)
	row.DealID = ticketText(tr.Result.Result.DealID)
	_, err := j.db.NamedExecContext(ctx, `
		INSERT INTO agent_trades (id, tick_id, agent_id, symbol, action, volume, entry, price,
			stop_loss, take_profit, confidence, retcode, comment, order_id, deal_id, reported_at)
		VALUES (:id, :tick_id, :agent_id, :symbol, :action, :volume, :entry, :price,
			:stop_loss, :take_profit, :confidence, :retcode, :comment, :order_id, :deal_id, :reported_at)`, row)
	if err != nil {
		return fmt.Errorf("journal insert: %w", err)
	}
	return nil
}

// ticketText renders an MT5 ticket without narrowing it to a signed column.
func ticketText(id *uint64) *string {
	if id == nil {
		return nil
	}
	v := strconv.FormatUint(*id, 10)
	return &v
}

// Recent returns up to limit rows, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]JournalRow, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []JournalRow
	q := j.db.Rebind(`SELECT * FROM agent_trades ORDER BY reported_at DESC LIMIT ?`)
	if err := j.db.SelectContext(ctx, &rows, q, limit); err != nil {
		return nil, fmt.Errorf("journal select: %w", err)
	}
	return rows, nil
}

func (j *Journal) Close() error { return j.db.Close() }
