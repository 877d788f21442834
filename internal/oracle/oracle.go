// Package oracle wraps the LLM behind a narrow contract: one market snapshot
// in, one raw decision string out. Everything downstream of the raw string
// (parsing, validation, sizing) lives outside this package.
package oracle

import (
	"context"
	"errors"

	"helmsman/internal/analysis/indicator"
)

// ErrUnavailable wraps any failure to obtain a decision: transport errors,
// exhausted retries, malformed responses. The cycle that hit it is skipped.
var ErrUnavailable = errors.New("oracle unavailable")

// PositionBrief is the open-position summary shown to the model.
type PositionBrief struct {
	Side          string `json:"side"`
	Size          string `json:"size"`
	EntryPrice    string `json:"entry_price"`
	Leverage      int    `json:"leverage"`
	UnrealizedPnL string `json:"unrealized_pnl,omitempty"`
	HeldFor       string `json:"held_for,omitempty"`
}

// Request carries everything the oracle sees for one pair.
type Request struct {
	Snapshot indicator.Snapshot
	Position *PositionBrief
	CanAdd   bool
}

// Oracle produces a raw decision for one pair. Implementations must honor
// ctx cancellation; a deadline hit surfaces as a wrapped ctx error.
type Oracle interface {
	Decide(ctx context.Context, req Request) (string, error)
}
