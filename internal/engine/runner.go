package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"helmsman/internal/analysis/indicator"
	"helmsman/internal/config"
	"helmsman/internal/gateway/exchange"
	"helmsman/internal/logger"
	"helmsman/internal/market"
	"helmsman/internal/notifier"
	"helmsman/internal/oracle"
	"helmsman/internal/pkg/circuit"
	symbolpkg "helmsman/internal/pkg/symbol"
	"helmsman/internal/scheduler"
	"helmsman/internal/signal"
	"helmsman/internal/store"
)

// pairConcurrency caps how many pairs one model works in parallel per tick.
const pairConcurrency = 4

// Runner drives all pairs of one model through a decision cycle: fetch
// candles, compute the snapshot, ask the oracle, normalize, execute. The
// machine and ledger may be shared across runners; connector and oracle are
// per model.
type Runner struct {
	Model config.ModelConfig
	Pairs []config.PairConfig

	Source   market.Source
	Oracle   oracle.Oracle
	Breaker  *circuit.Breaker
	Conn     exchange.Connector
	Machine  *Machine
	Exits    *ExitBook
	Recorder store.Recorder
	Notifier notifier.Notifier
	Locks    *scheduler.PairLocks

	CycleTimeout time.Duration
}

// Tick runs one full cycle across the model's pairs, then snapshots the
// account balance.
func (r *Runner) Tick(ctx context.Context, now time.Time) {
	g := &errgroup.Group{}
	g.SetLimit(pairConcurrency)
	for _, pair := range r.Pairs {
		pair := pair
		g.Go(func() error {
			r.runPair(ctx, pair)
			return nil
		})
	}
	_ = g.Wait()
	r.snapshotBalance(ctx)
}

func (r *Runner) runPair(ctx context.Context, pair config.PairConfig) {
	key := scheduler.PairKey(r.Model.ID, pair.Symbol)

	release, ok := r.Locks.TryAcquire(key)
	if !ok {
		logger.Warnf("cycle %s: previous execution still in flight, skipping tick", key)
		r.recordDecision(ctx, store.DecisionRecord{
			ModelID: r.Model.ID, Symbol: pair.Symbol,
			Decision: DecisionSkipBusy, CreatedAt: time.Now().UTC(),
		})
		return
	}
	defer release()

	cctx, cancel := context.WithTimeout(ctx, r.cycleTimeout())
	defer cancel()

	candles, err := r.Source.FetchHistory(cctx, pair.Symbol, pair.Timeframe, pair.DataPoints)
	if err != nil {
		logger.Errorf("cycle %s: fetch candles: %v", key, err)
		return
	}
	snap, err := indicator.Compute(candles, indicator.Settings{
		Symbol:       pair.Symbol,
		Timeframe:    pair.Timeframe,
		ShortWindow:  pair.ShortWindow,
		MediumWindow: pair.MediumWindow,
		LongWindow:   pair.LongWindow,
	})
	if err != nil {
		logger.Errorf("cycle %s: indicators: %v", key, err)
		return
	}
	price := decimal.NewFromFloat(snap.Price)

	if r.watchdogClose(cctx, pair, price) {
		return
	}

	if !r.Breaker.Allow() {
		logger.Warnf("cycle %s: oracle circuit open, skipping", key)
		r.recordDecision(cctx, store.DecisionRecord{
			ModelID: r.Model.ID, Symbol: pair.Symbol,
			Decision: DecisionOracleDown, Reason: "circuit open",
			CreatedAt: time.Now().UTC(),
		})
		return
	}

	raw, err := r.Oracle.Decide(cctx, r.oracleRequest(snap, pair))
	if err != nil {
		r.Breaker.RecordFailure()
		logger.Errorf("cycle %s: oracle: %v", key, err)
		r.recordDecision(cctx, store.DecisionRecord{
			ModelID: r.Model.ID, Symbol: pair.Symbol,
			Decision: DecisionOracleDown, Reason: err.Error(),
			CreatedAt: time.Now().UTC(),
		})
		return
	}
	r.Breaker.RecordSuccess()

	snapJSON, _ := json.Marshal(snap)
	sig, err := signal.Normalize(raw)
	if err != nil {
		logger.Warnf("cycle %s: %v", key, err)
		r.recordDecision(cctx, store.DecisionRecord{
			ModelID: r.Model.ID, Symbol: pair.Symbol,
			Decision: DecisionInvalid, Reason: err.Error(),
			Snapshot: snapJSON, RawOutput: raw,
			CreatedAt: time.Now().UTC(),
		})
		return
	}

	res, execErr := r.Machine.Execute(cctx, r.Conn, Instruction{
		ModelID:   r.Model.ID,
		Pair:      pair,
		Signal:    sig,
		Price:     price,
		Simulated: pair.Simulated,
	})

	rec := store.DecisionRecord{
		ModelID:    r.Model.ID,
		Symbol:     pair.Symbol,
		Action:     string(sig.Action),
		Confidence: string(sig.Confidence),
		Decision:   res.Decision,
		Reason:     res.Reason,
		Snapshot:   snapJSON,
		RawOutput:  raw,
		CreatedAt:  time.Now().UTC(),
	}
	if len(res.Events) > 0 {
		rec.TraceID = res.Events[0].TraceID
	}
	r.recordDecision(cctx, rec)
	r.recordEvents(cctx, res.Events)

	switch {
	case execErr == nil:
	case IsRiskRejected(execErr):
		logger.Infof("cycle %s: %v", key, execErr)
	case errors.Is(execErr, ErrExecutionIncomplete):
		logger.Errorf("cycle %s: %v", key, execErr)
		r.alert(fmt.Sprintf("⚠️ %s %s: order outcome unknown, will reconcile next cycle", r.Model.ID, pair.Symbol))
	case IsExecutionFailed(execErr):
		logger.Errorf("cycle %s: %v", key, execErr)
		r.alert(fmt.Sprintf("🚨 %s %s: execution failed: %v", r.Model.ID, pair.Symbol, execErr))
	default:
		logger.Errorf("cycle %s: %v", key, execErr)
	}
}

// watchdogClose flattens the position when price breached its exit plan.
// Returns true when a close was attempted; the oracle is not consulted on
// such a cycle. Caller holds the pair lock.
func (r *Runner) watchdogClose(ctx context.Context, pair config.PairConfig, price decimal.Decimal) bool {
	key := scheduler.PairKey(r.Model.ID, pair.Symbol)
	pos := r.Machine.Ledger().Get(r.Model.ID, pair.Symbol)
	if pos.Flat() {
		return false
	}
	plan, _ := r.Exits.Get(key)
	hit, reason := plan.Breached(pos.Side, pos.EntryPrice, price)
	if !hit {
		return false
	}

	logger.Warnf("watchdog %s: %s breached at %s (entry %s), closing", key, reason, price, pos.EntryPrice)
	res, err := r.Machine.ForceClose(ctx, r.Conn, r.Model.ID, pair, pair.Simulated, price, reason)
	r.recordEvents(ctx, res.Events)
	r.recordDecision(ctx, store.DecisionRecord{
		ModelID: r.Model.ID, Symbol: pair.Symbol,
		Decision: res.Decision, Reason: "watchdog " + reason,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		logger.Errorf("watchdog %s: close failed: %v", key, err)
		r.alert(fmt.Sprintf("🚨 %s %s: watchdog close failed: %v", r.Model.ID, pair.Symbol, err))
	} else {
		r.alert(fmt.Sprintf("🛑 %s %s: %s hit at %s, position closed", r.Model.ID, pair.Symbol, reason, price))
	}
	return true
}

// ForceClose serves the manual close endpoint. It waits for the pair lock
// instead of skipping, so it serializes behind any in-flight cycle.
func (r *Runner) ForceClose(ctx context.Context, symbol, reason string) (Result, error) {
	// Accept both the unified form (ETH/USDT:USDT) and the compact exchange
	// form (ETHUSDT), since URL paths cannot carry slashes.
	var pair config.PairConfig
	found := false
	for _, p := range r.Pairs {
		if p.Symbol == symbol || symbolpkg.ToBinance(p.Symbol) == symbolpkg.ToBinance(symbol) {
			pair, found = p, true
			break
		}
	}
	if !found {
		return Result{}, fmt.Errorf("unknown symbol %q", symbol)
	}

	key := scheduler.PairKey(r.Model.ID, pair.Symbol)
	release := r.Locks.Acquire(key)
	defer release()

	// Best-effort market price for the simulated fill; zero falls back to
	// the entry price inside the machine.
	price := decimal.Zero
	if candles, ferr := r.Source.FetchHistory(ctx, pair.Symbol, pair.Timeframe, 2); ferr == nil {
		price = decimal.NewFromFloat(market.LastClose(candles))
	}

	res, err := r.Machine.ForceClose(ctx, r.Conn, r.Model.ID, pair, pair.Simulated, price, reason)
	r.recordEvents(ctx, res.Events)
	r.recordDecision(ctx, store.DecisionRecord{
		ModelID: r.Model.ID, Symbol: pair.Symbol,
		Decision: res.Decision, Reason: "manual close: " + reason,
		CreatedAt: time.Now().UTC(),
	})
	return res, err
}

func (r *Runner) oracleRequest(snap indicator.Snapshot, pair config.PairConfig) oracle.Request {
	req := oracle.Request{Snapshot: snap, CanAdd: pair.EnableAdd}
	pos := r.Machine.Ledger().Get(r.Model.ID, pair.Symbol)
	if !pos.Flat() {
		req.Position = &oracle.PositionBrief{
			Side:       string(pos.Side),
			Size:       pos.Size.String(),
			EntryPrice: pos.EntryPrice.String(),
			Leverage:   pos.Leverage,
			HeldFor:    time.Since(pos.OpenedAt).Truncate(time.Minute).String(),
		}
	}
	return req
}

func (r *Runner) snapshotBalance(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	acct, err := r.Conn.GetAccount(cctx)
	if err != nil {
		logger.Warnf("balance %s: %v", r.Model.ID, err)
		return
	}
	err = r.Recorder.RecordBalance(cctx, store.BalanceRecord{
		ModelID:   r.Model.ID,
		Equity:    acct.Equity.String(),
		Available: acct.AvailableBalance.String(),
		Used:      acct.UsedMargin.String(),
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		logger.Warnf("balance %s: record: %v", r.Model.ID, err)
	}
}

func (r *Runner) recordEvents(ctx context.Context, events []TradeEvent) {
	for _, ev := range events {
		err := r.Recorder.RecordTrade(ctx, store.TradeRecord{
			ID:         ev.ID,
			TraceID:    ev.TraceID,
			ModelID:    ev.ModelID,
			Symbol:     ev.Symbol,
			Kind:       string(ev.Kind),
			Side:       ev.Side,
			Quantity:   ev.Quantity.String(),
			Price:      ev.Price.String(),
			Leverage:   ev.Leverage,
			Confidence: ev.Confidence,
			Rationale:  ev.Rationale,
			OrderID:    ev.OrderID,
			Simulated:  ev.Simulated,
			CreatedAt:  ev.CreatedAt,
			PosSide:    ev.PosSide,
			PosSize:    ev.PosSize.String(),
			PosEntry:   ev.PosEntry.String(),
		})
		if err != nil {
			logger.Errorf("record trade %s: %v", ev.ID, err)
		}
	}
}

func (r *Runner) recordDecision(ctx context.Context, rec store.DecisionRecord) {
	if err := r.Recorder.RecordDecision(ctx, rec); err != nil {
		logger.Errorf("record decision %s/%s: %v", rec.ModelID, rec.Symbol, err)
	}
}

func (r *Runner) alert(text string) {
	if r.Notifier == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := r.Notifier.Send(ctx, text); err != nil {
			logger.Warnf("notifier: %v", err)
		}
	}()
}

func (r *Runner) cycleTimeout() time.Duration {
	if r.CycleTimeout <= 0 {
		return 90 * time.Second
	}
	return r.CycleTimeout
}
