// Package exchange defines the connector abstraction between the execution
// engine and a derivatives exchange. The engine depends only on these types;
// concrete backends (Binance futures, the in-memory simulator used by tests
// and simulated pairs) live elsewhere.
package exchange

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order sides use exchange vocabulary; position sides live in the engine.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// OrderRequest describes a market order. Quantity is in base units.
type OrderRequest struct {
	Symbol     string
	Side       string
	Quantity   decimal.Decimal
	Leverage   int
	ReduceOnly bool
	Tag        string
}

// Fill is the exchange-confirmed execution of an order. It is the only
// trigger for ledger mutation.
type Fill struct {
	OrderID  string
	Symbol   string
	Side     string
	Quantity decimal.Decimal
	Price    decimal.Decimal
	FilledAt time.Time
}

// Position is the exchange's own view of a holding, used for reconciliation.
type Position struct {
	Symbol     string
	Side       string // "long" or "short"
	Size       decimal.Decimal
	EntryPrice decimal.Decimal
	Leverage   int
	UnrealizedPnL decimal.Decimal
}

// AccountState is the per-sub-account margin aggregate. The exchange is the
// single writer; every sizer call reads a fresh snapshot.
type AccountState struct {
	Equity           decimal.Decimal
	AvailableBalance decimal.Decimal
	UsedMargin       decimal.Decimal
	UpdatedAt        time.Time
}
