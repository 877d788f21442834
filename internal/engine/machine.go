package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"helmsman/internal/config"
	"helmsman/internal/gateway/exchange"
	"helmsman/internal/logger"
	"helmsman/internal/signal"
)

// retryBaseDelay seeds the exponential backoff between transient retries.
const retryBaseDelay = 250 * time.Millisecond

// Instruction is one normalized decision applied to one (model, symbol) pair.
// Price is the latest closed-candle price, used for sizing and for simulated
// fills when the signal carries no entry price.
type Instruction struct {
	ModelID   string
	Pair      config.PairConfig
	Signal    signal.Signal
	Price     decimal.Decimal
	Simulated bool
}

// Result reports what a cycle did. Events is empty unless something filled.
type Result struct {
	Decision string
	Reason   string
	Events   []TradeEvent
	Position Position
}

// Machine maps (held position, signal) to the single allowed transition and
// drives it through the exchange. All ledger mutation funnels through here.
type Machine struct {
	risk   config.RiskConfig
	ledger *Ledger
	sizer  *Sizer
	guards *guardBook
	exits  *ExitBook

	dirty dirtySet
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func NewMachine(risk config.RiskConfig, ledger *Ledger, exits *ExitBook) *Machine {
	return &Machine{
		risk:   risk,
		ledger: ledger,
		sizer:  NewSizer(risk),
		guards: newGuardBook(),
		exits:  exits,
		dirty:  newDirtySet(),
		now:    time.Now,
		sleep:  sleepCtx,
	}
}

func (m *Machine) Ledger() *Ledger { return m.ledger }

// Execute runs one decision against the pair. The caller must hold the pair
// lock; the machine itself assumes single-flight per (model, symbol).
func (m *Machine) Execute(ctx context.Context, conn exchange.Connector, ins Instruction) (Result, error) {
	key := ledgerKey(ins.ModelID, ins.Pair.Symbol)

	if m.dirty.has(key) {
		if err := m.reconcile(ctx, conn, ins.ModelID, ins.Pair.Symbol); err != nil {
			return Result{Decision: DecisionIncomplete, Reason: "reconcile failed"},
				fmt.Errorf("%w: %v", ErrExecutionIncomplete, err)
		}
	}

	pos := m.ledger.Get(ins.ModelID, ins.Pair.Symbol)
	sig := ins.Signal

	switch sig.Action {
	case signal.ActionHold:
		return Result{Decision: DecisionHold, Position: pos}, nil

	case signal.ActionClose:
		if pos.Flat() {
			// Idempotent: closing nothing is a no-op, not an error.
			return Result{Decision: DecisionHold, Reason: "already flat", Position: pos}, nil
		}
		if sig.Confidence != signal.ConfidenceHigh {
			return Result{Decision: DecisionSkipCloseConf, Position: pos}, nil
		}
		return m.close(ctx, conn, ins, pos, TransitionClose, newTraceID(), "")

	case signal.ActionLong, signal.ActionShort:
		target := SideLong
		if sig.Action == signal.ActionShort {
			target = SideShort
		}
		switch pos.Side {
		case SideFlat:
			return m.open(ctx, conn, ins, target, TransitionOpen, newTraceID())
		case target:
			return m.add(ctx, conn, ins, pos, target)
		default:
			return m.reverse(ctx, conn, ins, pos, target)
		}
	}

	return Result{}, fmt.Errorf("%w: unhandled action %q", signal.ErrInvalidSignal, sig.Action)
}

// ForceClose flattens the pair regardless of signals. Used by the SL/TP
// watchdog and the manual close endpoint; the caller must hold the pair lock
// and passes the current market price so simulated fills price correctly
// (zero falls back to the entry price).
func (m *Machine) ForceClose(ctx context.Context, conn exchange.Connector, modelID string, pair config.PairConfig, simulated bool, price decimal.Decimal, reason string) (Result, error) {
	if m.dirty.has(ledgerKey(modelID, pair.Symbol)) {
		if err := m.reconcile(ctx, conn, modelID, pair.Symbol); err != nil {
			return Result{Decision: DecisionIncomplete},
				fmt.Errorf("%w: %v", ErrExecutionIncomplete, err)
		}
	}
	pos := m.ledger.Get(modelID, pair.Symbol)
	if pos.Flat() {
		return Result{Decision: DecisionHold, Reason: "already flat", Position: pos}, nil
	}
	if price.Sign() <= 0 {
		price = pos.EntryPrice
	}
	ins := Instruction{ModelID: modelID, Pair: pair, Simulated: simulated, Price: price}
	return m.close(ctx, conn, ins, pos, TransitionForceClose, newTraceID(), reason)
}

// open vets a fresh position against the entry guards and submits it.
// LOW confidence never opens.
func (m *Machine) open(ctx context.Context, conn exchange.Connector, ins Instruction, target Side, kind TransitionKind, traceID string) (Result, error) {
	key := ledgerKey(ins.ModelID, ins.Pair.Symbol)

	if ins.Signal.Confidence == signal.ConfidenceLow {
		return Result{Decision: DecisionSkipLowConf}, nil
	}
	if err := m.guards.checkEntry(key, target, ins.Signal.Confidence, m.risk, m.now()); err != nil {
		return Result{Decision: DecisionRejected, Reason: err.Error()}, err
	}
	return m.openLeg(ctx, conn, ins, target, kind, traceID)
}

// openLeg sizes and submits a position-opening order. Guards are the
// caller's responsibility; a reversal runs them once for the whole flip.
func (m *Machine) openLeg(ctx context.Context, conn exchange.Connector, ins Instruction, target Side, kind TransitionKind, traceID string) (Result, error) {
	key := ledgerKey(ins.ModelID, ins.Pair.Symbol)

	acct, err := conn.GetAccount(ctx)
	if err != nil {
		return Result{Decision: DecisionFailed}, &ExecutionFailedError{Op: "get account", Err: err}
	}
	plan, err := m.sizer.PlanEntry(acct, ins.Pair, ins.Signal.Confidence, m.sizingPrice(ins), Position{})
	if err != nil {
		return Result{Decision: DecisionRejected, Reason: err.Error()}, err
	}

	if !ins.Simulated {
		if err := conn.SetLeverage(ctx, ins.Pair.Symbol, plan.Leverage); err != nil {
			logger.Warnf("engine %s: set leverage %dx failed: %v", key, plan.Leverage, err)
		}
	}

	req := exchange.OrderRequest{
		Symbol:   ins.Pair.Symbol,
		Side:     orderSide(target),
		Quantity: plan.Quantity,
		Leverage: plan.Leverage,
		Tag:      traceID,
	}
	fill, err := m.place(ctx, conn, ins, req)
	if err != nil {
		return m.submitFailure(kind, err)
	}

	pos, err := m.ledger.ApplyFill(ins.ModelID, *fill, false, plan.Leverage)
	if err != nil {
		return Result{Decision: DecisionFailed}, &ExecutionFailedError{Op: string(kind), Err: err}
	}
	m.guards.markTrade(key, fill.FilledAt)
	m.exits.Set(key, ExitPlan{TakeProfit: ins.Signal.TakeProfit, StopLoss: ins.Signal.StopLoss})

	ev := m.fillEvent(traceID, ins, kind, *fill, plan.Leverage, pos)
	logger.Infof("engine %s: %s %s %s @ %s (%dx, margin %s)",
		key, kind, ev.Side, ev.Quantity, ev.Price, plan.Leverage, plan.Margin)
	return Result{Decision: DecisionTraded, Events: []TradeEvent{ev}, Position: pos}, nil
}

// add grows the held side, re-averaging the entry price. Only HIGH
// confidence may pyramid.
func (m *Machine) add(ctx context.Context, conn exchange.Connector, ins Instruction, pos Position, target Side) (Result, error) {
	key := ledgerKey(ins.ModelID, ins.Pair.Symbol)

	if !ins.Pair.EnableAdd {
		return Result{Decision: DecisionHold, Reason: "adding disabled for pair", Position: pos}, nil
	}
	if ins.Signal.Confidence != signal.ConfidenceHigh {
		return Result{Decision: DecisionSkipAddConf, Position: pos}, nil
	}
	if err := m.guards.checkEntry(key, target, ins.Signal.Confidence, m.risk, m.now()); err != nil {
		return Result{Decision: DecisionRejected, Reason: err.Error(), Position: pos}, err
	}

	acct, err := conn.GetAccount(ctx)
	if err != nil {
		return Result{Decision: DecisionFailed, Position: pos},
			&ExecutionFailedError{Op: "get account", Err: err}
	}
	plan, err := m.sizer.PlanEntry(acct, ins.Pair, ins.Signal.Confidence, m.sizingPrice(ins), pos)
	if err != nil {
		return Result{Decision: DecisionRejected, Reason: err.Error(), Position: pos}, err
	}

	traceID := newTraceID()
	req := exchange.OrderRequest{
		Symbol:   ins.Pair.Symbol,
		Side:     orderSide(target),
		Quantity: plan.Quantity,
		Leverage: pos.Leverage,
		Tag:      traceID,
	}
	fill, err := m.place(ctx, conn, ins, req)
	if err != nil {
		return m.submitFailure(TransitionAdd, err)
	}

	newPos, err := m.ledger.ApplyFill(ins.ModelID, *fill, false, pos.Leverage)
	if err != nil {
		return Result{Decision: DecisionFailed}, &ExecutionFailedError{Op: "add", Err: err}
	}
	m.guards.markTrade(key, fill.FilledAt)

	ev := m.fillEvent(traceID, ins, TransitionAdd, *fill, pos.Leverage, newPos)
	logger.Infof("engine %s: add %s %s @ %s, entry now %s",
		key, ev.Side, ev.Quantity, ev.Price, newPos.EntryPrice)
	return Result{Decision: DecisionTraded, Events: []TradeEvent{ev}, Position: newPos}, nil
}

// reverse flattens the held side, then opens the opposite one sized from a
// fresh account read. Two legs, two fills, two events under one trace; the
// ledger is consistent after either leg.
func (m *Machine) reverse(ctx context.Context, conn exchange.Connector, ins Instruction, pos Position, target Side) (Result, error) {
	key := ledgerKey(ins.ModelID, ins.Pair.Symbol)

	if ins.Signal.Confidence == signal.ConfidenceLow {
		return Result{Decision: DecisionSkipLowConf, Position: pos}, nil
	}
	if err := m.guards.checkEntry(key, target, ins.Signal.Confidence, m.risk, m.now()); err != nil {
		return Result{Decision: DecisionRejected, Reason: err.Error(), Position: pos}, err
	}

	traceID := newTraceID()
	closed, err := m.close(ctx, conn, ins, pos, TransitionReverseClose, traceID, "")
	if err != nil {
		return closed, err
	}
	m.guards.markExitReversal(key, pos.Side, m.now())

	opened, err := m.openLeg(ctx, conn, ins, target, TransitionReverseOpen, traceID)
	opened.Events = append(closed.Events, opened.Events...)
	if err != nil {
		// The close leg landed; the book is flat and stays that way.
		return opened, fmt.Errorf("reverse open leg: %w", err)
	}
	return opened, nil
}

// close flattens the current position with one reduce-only order.
func (m *Machine) close(ctx context.Context, conn exchange.Connector, ins Instruction, pos Position, kind TransitionKind, traceID, reason string) (Result, error) {
	key := ledgerKey(ins.ModelID, ins.Pair.Symbol)

	req := exchange.OrderRequest{
		Symbol:     ins.Pair.Symbol,
		Side:       orderSide(pos.Side.Opposite()),
		Quantity:   pos.Size,
		ReduceOnly: true,
		Tag:        traceID,
	}
	fill, err := m.place(ctx, conn, ins, req)
	if err != nil {
		return m.submitFailure(kind, err)
	}

	newPos, err := m.ledger.ApplyFill(ins.ModelID, *fill, true, pos.Leverage)
	if err != nil {
		return Result{Decision: DecisionFailed}, &ExecutionFailedError{Op: string(kind), Err: err}
	}
	if kind != TransitionReverseClose {
		m.guards.markTrade(key, fill.FilledAt)
	}
	m.exits.Clear(key)

	ev := m.fillEvent(traceID, ins, kind, *fill, pos.Leverage, newPos)
	if reason != "" {
		ev.Rationale = reason
	}
	logger.Infof("engine %s: %s %s %s @ %s", key, kind, ev.Side, ev.Quantity, ev.Price)
	return Result{Decision: DecisionTraded, Events: []TradeEvent{ev}, Position: newPos}, nil
}

// place submits an order, retrying transient failures with exponential
// backoff. Unknown outcomes flag the pair dirty and surface as
// ErrExecutionIncomplete; everything else terminal is ExecutionFailed.
func (m *Machine) place(ctx context.Context, conn exchange.Connector, ins Instruction, req exchange.OrderRequest) (*exchange.Fill, error) {
	if ins.Simulated {
		return m.simulatedFill(ins, req), nil
	}

	attempts := m.risk.MaxOrderRetries + 1
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			delay := retryBaseDelay << (i - 1)
			logger.Warnf("engine %s: retry %d/%d after %s: %v",
				req.Symbol, i, attempts-1, delay, lastErr)
			if err := m.sleep(ctx, delay); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrExecutionIncomplete, err)
			}
		}
		fill, err := conn.PlaceOrder(ctx, req)
		if err == nil {
			return fill, nil
		}
		if errors.Is(err, exchange.ErrUnconfirmed) {
			m.dirty.add(ledgerKey(ins.ModelID, ins.Pair.Symbol))
			return nil, fmt.Errorf("%w: %v", ErrExecutionIncomplete, err)
		}
		if !exchange.IsTransient(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("retries exhausted: %w", lastErr)
}

func (m *Machine) simulatedFill(ins Instruction, req exchange.OrderRequest) *exchange.Fill {
	price := ins.Signal.EntryPrice
	if price.Sign() <= 0 {
		price = ins.Price
	}
	return &exchange.Fill{
		OrderID:  "sim-" + uuid.NewString(),
		Symbol:   req.Symbol,
		Side:     req.Side,
		Quantity: req.Quantity,
		Price:    price,
		FilledAt: m.now().UTC(),
	}
}

func (m *Machine) submitFailure(kind TransitionKind, err error) (Result, error) {
	if errors.Is(err, ErrExecutionIncomplete) {
		return Result{Decision: DecisionIncomplete, Reason: err.Error()}, err
	}
	if exchange.IsRejected(err) || !IsExecutionFailed(err) {
		err = &ExecutionFailedError{Op: string(kind), Err: err}
	}
	return Result{Decision: DecisionFailed, Reason: err.Error()}, err
}

// reconcile re-reads the exchange position and overwrites local state.
func (m *Machine) reconcile(ctx context.Context, conn exchange.Connector, modelID, symbol string) error {
	key := ledgerKey(modelID, symbol)
	exchPos, err := conn.GetPosition(ctx, symbol)
	if err != nil {
		return fmt.Errorf("reconcile %s: %w", key, err)
	}
	pos := m.ledger.Reconcile(modelID, symbol, exchPos)
	if pos.Flat() {
		m.exits.Clear(key)
	}
	m.dirty.remove(key)
	logger.Infof("engine %s: reconciled, side=%s size=%s", key, pos.Side, pos.Size)
	return nil
}

func (m *Machine) sizingPrice(ins Instruction) decimal.Decimal {
	if ins.Signal.EntryPrice.Sign() > 0 {
		return ins.Signal.EntryPrice
	}
	return ins.Price
}

func (m *Machine) fillEvent(traceID string, ins Instruction, kind TransitionKind, fill exchange.Fill, leverage int, after Position) TradeEvent {
	ev := newTradeEvent(traceID, ins.ModelID, ins.Pair.Symbol, kind)
	ev.Side = fill.Side
	ev.Quantity = fill.Quantity
	ev.Price = fill.Price
	ev.Leverage = leverage
	ev.Confidence = string(ins.Signal.Confidence)
	ev.Rationale = ins.Signal.Rationale
	ev.OrderID = fill.OrderID
	ev.Simulated = ins.Simulated
	ev.PosSide = string(after.Side)
	ev.PosSize = after.Size
	ev.PosEntry = after.EntryPrice
	return ev
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
