package engine

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"helmsman/internal/gateway/exchange"
)

// Side is the direction of a held position. A flat position has SideFlat and
// zero size; the two always go together.
type Side string

const (
	SideFlat  Side = ""
	SideLong  Side = "long"
	SideShort Side = "short"
)

func (s Side) Opposite() Side {
	switch s {
	case SideLong:
		return SideShort
	case SideShort:
		return SideLong
	default:
		return SideFlat
	}
}

// orderSide maps a position side to the order side that grows it.
func orderSide(s Side) string {
	if s == SideShort {
		return exchange.SideSell
	}
	return exchange.SideBuy
}

// Position is the engine's view of one (model, symbol) holding.
type Position struct {
	ModelID    string
	Symbol     string
	Side       Side
	Size       decimal.Decimal
	EntryPrice decimal.Decimal
	Leverage   int
	OpenedAt   time.Time
	UpdatedAt  time.Time
}

func (p Position) Flat() bool { return p.Side == SideFlat }

// Notional is size times entry price.
func (p Position) Notional() decimal.Decimal {
	return p.Size.Mul(p.EntryPrice)
}

// Margin is the initial margin the position consumes at its entry price.
func (p Position) Margin() decimal.Decimal {
	if p.Leverage <= 0 {
		return p.Notional()
	}
	return p.Notional().Div(decimal.NewFromInt(int64(p.Leverage)))
}

// Ledger is the in-memory source of truth for positions, keyed by
// (model, symbol). Mutations happen only through confirmed fills or
// reconciliation against the exchange.
type Ledger struct {
	mu        sync.RWMutex
	positions map[string]Position
}

func NewLedger() *Ledger {
	return &Ledger{positions: make(map[string]Position)}
}

func ledgerKey(modelID, symbol string) string { return modelID + "|" + symbol }

// Get returns a copy; callers can never mutate ledger state through it.
func (l *Ledger) Get(modelID, symbol string) Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if p, ok := l.positions[ledgerKey(modelID, symbol)]; ok {
		return p
	}
	return Position{ModelID: modelID, Symbol: symbol}
}

// Snapshot lists all non-flat positions.
func (l *Ledger) Snapshot() []Position {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Position, 0, len(l.positions))
	for _, p := range l.positions {
		if !p.Flat() {
			out = append(out, p)
		}
	}
	return out
}

// ApplyFill folds a confirmed fill into the position. Growing fills on a flat
// book open it, same-side growing fills re-average the entry (VWAP), and
// reduce-only fills shrink it; a reduce to zero clears entry and side.
// A growing fill against the held side is a logic error, reversals must be
// expressed as close-then-open.
func (l *Ledger) ApplyFill(modelID string, fill exchange.Fill, reduceOnly bool, leverage int) (Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := ledgerKey(modelID, fill.Symbol)
	pos, ok := l.positions[key]
	if !ok {
		pos = Position{ModelID: modelID, Symbol: fill.Symbol}
	}

	if fill.Quantity.Sign() <= 0 {
		return pos, fmt.Errorf("fill quantity must be positive, got %s", fill.Quantity)
	}

	if reduceOnly {
		if pos.Flat() {
			return pos, fmt.Errorf("reduce-only fill on flat position %s", key)
		}
		if fill.Side == orderSide(pos.Side) {
			return pos, fmt.Errorf("reduce-only fill grows %s position %s", pos.Side, key)
		}
		rest := pos.Size.Sub(fill.Quantity)
		if rest.Sign() <= 0 {
			pos = Position{ModelID: modelID, Symbol: fill.Symbol, UpdatedAt: fill.FilledAt}
		} else {
			pos.Size = rest
			pos.UpdatedAt = fill.FilledAt
		}
		l.positions[key] = pos
		return pos, nil
	}

	fillSide := SideLong
	if fill.Side == exchange.SideSell {
		fillSide = SideShort
	}

	switch {
	case pos.Flat():
		pos.Side = fillSide
		pos.Size = fill.Quantity
		pos.EntryPrice = fill.Price
		pos.Leverage = leverage
		pos.OpenedAt = fill.FilledAt
		pos.UpdatedAt = fill.FilledAt
	case pos.Side == fillSide:
		oldNotional := pos.Size.Mul(pos.EntryPrice)
		addNotional := fill.Quantity.Mul(fill.Price)
		newSize := pos.Size.Add(fill.Quantity)
		pos.EntryPrice = oldNotional.Add(addNotional).Div(newSize)
		pos.Size = newSize
		if leverage > 0 {
			pos.Leverage = leverage
		}
		pos.UpdatedAt = fill.FilledAt
	default:
		return pos, fmt.Errorf("growing fill against held side on %s: have %s, fill %s",
			key, pos.Side, fillSide)
	}

	l.positions[key] = pos
	return pos, nil
}

// Reconcile overwrites local state with the exchange's view. A nil exchange
// position clears the entry.
func (l *Ledger) Reconcile(modelID, symbol string, exch *exchange.Position) Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := ledgerKey(modelID, symbol)
	if exch == nil || exch.Size.Sign() == 0 {
		pos := Position{ModelID: modelID, Symbol: symbol, UpdatedAt: time.Now().UTC()}
		l.positions[key] = pos
		return pos
	}

	prev := l.positions[key]
	pos := Position{
		ModelID:    modelID,
		Symbol:     symbol,
		Side:       Side(exch.Side),
		Size:       exch.Size,
		EntryPrice: exch.EntryPrice,
		Leverage:   exch.Leverage,
		OpenedAt:   prev.OpenedAt,
		UpdatedAt:  time.Now().UTC(),
	}
	if pos.OpenedAt.IsZero() || prev.Side != pos.Side {
		pos.OpenedAt = pos.UpdatedAt
	}
	l.positions[key] = pos
	return pos
}
