// Package signal defines the canonical trading decision produced by the
// oracle and the normalizer that turns raw model output into it.
package signal

import (
	"github.com/shopspring/decimal"
)

// Action is a closed enum; anything outside it is rejected, never coerced.
type Action string

const (
	ActionLong  Action = "LONG"
	ActionShort Action = "SHORT"
	ActionClose Action = "CLOSE"
	ActionHold  Action = "HOLD"
)

// Confidence drives the fraction of available balance a plan may use.
type Confidence string

const (
	ConfidenceHigh   Confidence = "HIGH"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceLow    Confidence = "LOW"
)

// Signal is the normalized oracle decision. Price fields are zero when the
// oracle omitted them; for CLOSE and HOLD they are advisory only.
type Signal struct {
	Action     Action
	Confidence Confidence
	EntryPrice decimal.Decimal
	TakeProfit decimal.Decimal
	StopLoss   decimal.Decimal
	Rationale  string
}

// Directional reports whether the signal asks to hold a side.
func (s Signal) Directional() bool {
	return s.Action == ActionLong || s.Action == ActionShort
}
