package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helmsman/internal/config"
	"helmsman/internal/gateway/exchange"
	"helmsman/internal/market"
	"helmsman/internal/oracle"
	"helmsman/internal/pkg/circuit"
	"helmsman/internal/scheduler"
	"helmsman/internal/store"
)

type fakeSource struct {
	price float64
}

func (f *fakeSource) FetchHistory(_ context.Context, _, _ string, limit int) ([]market.Candle, error) {
	if limit <= 0 {
		limit = 96
	}
	closed := time.Now().Add(-time.Minute).UnixMilli()
	out := make([]market.Candle, limit)
	for i := range out {
		out[i] = market.Candle{
			OpenTime:  closed - int64(limit-i)*300_000,
			CloseTime: closed - int64(limit-i-1)*300_000,
			Open:      f.price,
			High:      f.price + 1,
			Low:       f.price - 1,
			Close:     f.price,
			Volume:    100,
		}
	}
	return out, nil
}

func (f *fakeSource) Close() error { return nil }

type fakeOracle struct {
	out   string
	err   error
	calls int
}

func (f *fakeOracle) Decide(context.Context, oracle.Request) (string, error) {
	f.calls++
	return f.out, f.err
}

type memRecorder struct {
	mu        sync.Mutex
	trades    []store.TradeRecord
	decisions []store.DecisionRecord
	balances  []store.BalanceRecord
}

func (m *memRecorder) RecordTrade(_ context.Context, rec store.TradeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trades = append(m.trades, rec)
	return nil
}

func (m *memRecorder) RecordDecision(_ context.Context, rec store.DecisionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions = append(m.decisions, rec)
	return nil
}

func (m *memRecorder) RecordBalance(_ context.Context, rec store.BalanceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances = append(m.balances, rec)
	return nil
}

func (m *memRecorder) ListTrades(context.Context, string, int) ([]store.TradeRecord, error) {
	return nil, nil
}
func (m *memRecorder) ListDecisions(context.Context, string, int) ([]store.DecisionRecord, error) {
	return nil, nil
}
func (m *memRecorder) ListBalances(context.Context, string, int) ([]store.BalanceRecord, error) {
	return nil, nil
}
func (m *memRecorder) Close() error { return nil }

func (m *memRecorder) lastDecision() store.DecisionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.decisions) == 0 {
		return store.DecisionRecord{}
	}
	// Balance snapshots land after decisions; the last decision is the
	// cycle outcome.
	return m.decisions[len(m.decisions)-1]
}

func newTestRunner(orc *fakeOracle, conn *fakeConn) (*Runner, *memRecorder) {
	exits := NewExitBook()
	machine := NewMachine(testRisk(), NewLedger(), exits)
	machine.sleep = func(context.Context, time.Duration) error { return nil }
	rec := &memRecorder{}
	r := &Runner{
		Model:        config.ModelConfig{ID: "m1", Enabled: true},
		Pairs:        []config.PairConfig{testPair()},
		Source:       &fakeSource{price: 100},
		Oracle:       orc,
		Breaker:      circuit.NewBreaker("test", 3, time.Minute),
		Conn:         conn,
		Machine:      machine,
		Exits:        exits,
		Recorder:     rec,
		Locks:        scheduler.NewPairLocks(),
		CycleTimeout: 5 * time.Second,
	}
	return r, rec
}

func TestRunnerTradesOnDirectionalSignal(t *testing.T) {
	orc := &fakeOracle{out: `{"action":"LONG","confidence":"HIGH","analysis":"breakout"}`}
	conn := &fakeConn{acct: account(1000, 1000, 0)}
	r, rec := newTestRunner(orc, conn)

	r.Tick(context.Background(), time.Now())

	pos := r.Machine.Ledger().Get("m1", "ETH/USDT:USDT")
	assert.Equal(t, SideLong, pos.Side)

	require.Len(t, rec.trades, 1)
	assert.Equal(t, "open", rec.trades[0].Kind)
	assert.Equal(t, "long", rec.trades[0].PosSide)
	assert.Equal(t, DecisionTraded, rec.lastDecision().Decision)
	assert.Len(t, rec.balances, 1)
}

func TestRunnerInvalidOracleOutputTradesNothing(t *testing.T) {
	orc := &fakeOracle{out: `I would buy this dip aggressively!`}
	conn := &fakeConn{acct: account(1000, 1000, 0)}
	r, rec := newTestRunner(orc, conn)

	r.Tick(context.Background(), time.Now())

	assert.Empty(t, conn.placed)
	assert.Empty(t, rec.trades)
	assert.Equal(t, DecisionInvalid, rec.lastDecision().Decision)
	assert.True(t, r.Machine.Ledger().Get("m1", "ETH/USDT:USDT").Flat())
}

func TestRunnerOracleFailureSkipsCycle(t *testing.T) {
	orc := &fakeOracle{err: errors.New("upstream 500")}
	conn := &fakeConn{acct: account(1000, 1000, 0)}
	r, rec := newTestRunner(orc, conn)

	r.Tick(context.Background(), time.Now())

	assert.Empty(t, conn.placed)
	assert.Equal(t, DecisionOracleDown, rec.lastDecision().Decision)
}

func TestRunnerCircuitOpenSkipsOracle(t *testing.T) {
	orc := &fakeOracle{err: errors.New("upstream 500")}
	conn := &fakeConn{acct: account(1000, 1000, 0)}
	r, rec := newTestRunner(orc, conn)

	// Three failing cycles trip the breaker.
	for i := 0; i < 3; i++ {
		r.Tick(context.Background(), time.Now())
	}
	callsBefore := orc.calls

	r.Tick(context.Background(), time.Now())
	assert.Equal(t, callsBefore, orc.calls, "open circuit must not reach the oracle")
	last := rec.lastDecision()
	assert.Equal(t, DecisionOracleDown, last.Decision)
	assert.Contains(t, last.Reason, "circuit open")
}

func TestRunnerWatchdogClosesBreachedPosition(t *testing.T) {
	orc := &fakeOracle{out: `{"action":"HOLD","confidence":"LOW"}`}
	conn := &fakeConn{acct: account(1000, 1000, 0)}
	r, rec := newTestRunner(orc, conn)

	// Long from 100 with a stop at 95; market now prints 90.
	_, err := r.Machine.Ledger().ApplyFill("m1", fill(exchange.SideBuy, 6, 100), false, 2)
	require.NoError(t, err)
	r.Exits.Set(ledgerKey("m1", "ETH/USDT:USDT"), ExitPlan{StopLoss: decimal.NewFromInt(95)})
	r.Source = &fakeSource{price: 90}

	r.Tick(context.Background(), time.Now())

	assert.Zero(t, orc.calls, "watchdog cycles do not consult the oracle")
	assert.True(t, r.Machine.Ledger().Get("m1", "ETH/USDT:USDT").Flat())
	require.Len(t, rec.trades, 1)
	assert.Equal(t, "force_close", rec.trades[0].Kind)
}

func TestRunnerBusyPairSkipsTick(t *testing.T) {
	orc := &fakeOracle{out: `{"action":"HOLD","confidence":"LOW"}`}
	conn := &fakeConn{acct: account(1000, 1000, 0)}
	r, rec := newTestRunner(orc, conn)

	release, ok := r.Locks.TryAcquire(scheduler.PairKey("m1", "ETH/USDT:USDT"))
	require.True(t, ok)
	defer release()

	r.Tick(context.Background(), time.Now())

	assert.Zero(t, orc.calls)
	found := false
	for _, d := range rec.decisions {
		if d.Decision == DecisionSkipBusy {
			found = true
		}
	}
	assert.True(t, found, "busy pair must record a skip decision")
}

func TestRunnerForceCloseUnknownSymbol(t *testing.T) {
	orc := &fakeOracle{out: `{"action":"HOLD","confidence":"LOW"}`}
	conn := &fakeConn{acct: account(1000, 1000, 0)}
	r, _ := newTestRunner(orc, conn)

	_, err := r.ForceClose(context.Background(), "DOGE/USDT:USDT", "test")
	assert.Error(t, err)
}

func TestRunnerManualForceClose(t *testing.T) {
	orc := &fakeOracle{out: `{"action":"HOLD","confidence":"LOW"}`}
	conn := &fakeConn{acct: account(1000, 1000, 0)}
	r, rec := newTestRunner(orc, conn)

	_, err := r.Machine.Ledger().ApplyFill("m1", fill(exchange.SideBuy, 6, 100), false, 2)
	require.NoError(t, err)

	res, err := r.ForceClose(context.Background(), "ETH/USDT:USDT", "operator request")
	require.NoError(t, err)
	assert.Equal(t, DecisionTraded, res.Decision)
	assert.True(t, r.Machine.Ledger().Get("m1", "ETH/USDT:USDT").Flat())
	require.Len(t, rec.trades, 1)
	assert.Equal(t, "force_close", rec.trades[0].Kind)
}
