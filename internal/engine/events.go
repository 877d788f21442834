package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransitionKind names the ledger-mutating step a fill belongs to. A reversal
// produces two events sharing one trace id.
type TransitionKind string

const (
	TransitionOpen         TransitionKind = "open"
	TransitionAdd          TransitionKind = "add"
	TransitionReverseClose TransitionKind = "reverse_close"
	TransitionReverseOpen  TransitionKind = "reverse_open"
	TransitionClose        TransitionKind = "close"
	TransitionForceClose   TransitionKind = "force_close"
)

// Decision outcomes recorded for every cycle, including the ones that trade
// nothing.
const (
	DecisionHold          = "hold"
	DecisionSkipBusy      = "skip_busy"
	DecisionSkipLowConf   = "skip_low_confidence"
	DecisionSkipCloseConf = "skip_close_needs_high"
	DecisionSkipAddConf   = "skip_add_needs_high"
	DecisionRejected      = "risk_rejected"
	DecisionInvalid       = "invalid_signal"
	DecisionOracleDown    = "oracle_unavailable"
	DecisionIncomplete    = "incomplete"
	DecisionFailed        = "failed"
	DecisionTraded        = "traded"
)

// TradeEvent is the append-only record of one confirmed fill.
type TradeEvent struct {
	ID         string
	TraceID    string
	ModelID    string
	Symbol     string
	Kind       TransitionKind
	Side       string
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	Leverage   int
	Confidence string
	Rationale  string
	OrderID    string
	Simulated  bool
	CreatedAt  time.Time

	// Post-transition position snapshot. Empty side and zero size mean the
	// fill left the book flat.
	PosSide  string
	PosSize  decimal.Decimal
	PosEntry decimal.Decimal
}

func newTraceID() string { return uuid.NewString() }

func newTradeEvent(traceID, modelID, symbol string, kind TransitionKind) TradeEvent {
	return TradeEvent{
		ID:        uuid.NewString(),
		TraceID:   traceID,
		ModelID:   modelID,
		Symbol:    symbol,
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
	}
}
