// Package store persists the audit trail: confirmed trades, per-cycle
// decisions, and balance snapshots. The engine only appends; reads serve the
// HTTP views.
package store

import (
	"context"
	"time"
)

// TradeRecord mirrors one confirmed fill. Quantity and Price are decimal
// strings; the store never does arithmetic on them.
type TradeRecord struct {
	ID         string
	TraceID    string
	ModelID    string
	Symbol     string
	Kind       string
	Side       string
	Quantity   string
	Price      string
	Leverage   int
	Confidence string
	Rationale  string
	OrderID    string
	Simulated  bool
	CreatedAt  time.Time

	// Position after the fill, as decimal strings. Empty side means flat.
	PosSide  string
	PosSize  string
	PosEntry string
}

// DecisionRecord captures one cycle's outcome, traded or not.
type DecisionRecord struct {
	TraceID    string
	ModelID    string
	Symbol     string
	Action     string
	Confidence string
	Decision   string
	Reason     string
	Snapshot   []byte
	RawOutput  string
	CreatedAt  time.Time
}

// BalanceRecord is a point-in-time account snapshot per model.
type BalanceRecord struct {
	ModelID   string
	Equity    string
	Available string
	Used      string
	CreatedAt time.Time
}

type Recorder interface {
	RecordTrade(ctx context.Context, rec TradeRecord) error
	RecordDecision(ctx context.Context, rec DecisionRecord) error
	RecordBalance(ctx context.Context, rec BalanceRecord) error

	ListTrades(ctx context.Context, modelID string, limit int) ([]TradeRecord, error)
	ListDecisions(ctx context.Context, modelID string, limit int) ([]DecisionRecord, error)
	ListBalances(ctx context.Context, modelID string, limit int) ([]BalanceRecord, error)

	Close() error
}

// Nop discards everything. Used in tests and when no store path is set.
type Nop struct{}

func (Nop) RecordTrade(context.Context, TradeRecord) error       { return nil }
func (Nop) RecordDecision(context.Context, DecisionRecord) error { return nil }
func (Nop) RecordBalance(context.Context, BalanceRecord) error   { return nil }
func (Nop) ListTrades(context.Context, string, int) ([]TradeRecord, error) {
	return nil, nil
}
func (Nop) ListDecisions(context.Context, string, int) ([]DecisionRecord, error) {
	return nil, nil
}
func (Nop) ListBalances(context.Context, string, int) ([]BalanceRecord, error) {
	return nil, nil
}
func (Nop) Close() error { return nil }
