package engine

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"helmsman/internal/gateway/exchange"
)

func fill(side string, qty, price float64) exchange.Fill {
	return exchange.Fill{
		OrderID:  "o1",
		Symbol:   "ETH/USDT:USDT",
		Side:     side,
		Quantity: decimal.NewFromFloat(qty),
		Price:    decimal.NewFromFloat(price),
		FilledAt: time.Now().UTC(),
	}
}

func TestLedgerOpenLong(t *testing.T) {
	l := NewLedger()
	pos, err := l.ApplyFill("m1", fill(exchange.SideBuy, 6, 100), false, 2)
	require.NoError(t, err)
	assert.Equal(t, SideLong, pos.Side)
	assert.True(t, pos.Size.Equal(decimal.NewFromInt(6)))
	assert.True(t, pos.EntryPrice.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, 2, pos.Leverage)
	assert.False(t, pos.Flat())
}

func TestLedgerAddReaveragesEntry(t *testing.T) {
	l := NewLedger()
	_, err := l.ApplyFill("m1", fill(exchange.SideBuy, 2, 100), false, 2)
	require.NoError(t, err)
	pos, err := l.ApplyFill("m1", fill(exchange.SideBuy, 2, 110), false, 2)
	require.NoError(t, err)

	assert.True(t, pos.Size.Equal(decimal.NewFromInt(4)))
	// (2*100 + 2*110) / 4 = 105
	assert.True(t, pos.EntryPrice.Equal(decimal.NewFromInt(105)), "entry=%s", pos.EntryPrice)
}

func TestLedgerReduceToFlatClearsEverything(t *testing.T) {
	l := NewLedger()
	_, err := l.ApplyFill("m1", fill(exchange.SideSell, 3, 200), false, 2)
	require.NoError(t, err)

	pos, err := l.ApplyFill("m1", fill(exchange.SideBuy, 3, 190), true, 2)
	require.NoError(t, err)
	assert.True(t, pos.Flat())
	assert.True(t, pos.Size.IsZero())
	assert.True(t, pos.EntryPrice.IsZero())
	assert.Equal(t, SideFlat, pos.Side)
}

func TestLedgerPartialReduceKeepsEntry(t *testing.T) {
	l := NewLedger()
	_, err := l.ApplyFill("m1", fill(exchange.SideBuy, 4, 100), false, 2)
	require.NoError(t, err)

	pos, err := l.ApplyFill("m1", fill(exchange.SideSell, 1, 120), true, 2)
	require.NoError(t, err)
	assert.Equal(t, SideLong, pos.Side)
	assert.True(t, pos.Size.Equal(decimal.NewFromInt(3)))
	assert.True(t, pos.EntryPrice.Equal(decimal.NewFromInt(100)))
}

func TestLedgerRejectsGrowingAgainstHeldSide(t *testing.T) {
	l := NewLedger()
	_, err := l.ApplyFill("m1", fill(exchange.SideBuy, 4, 100), false, 2)
	require.NoError(t, err)

	_, err = l.ApplyFill("m1", fill(exchange.SideSell, 2, 100), false, 2)
	assert.Error(t, err)

	// The failed fill must not have touched the book.
	pos := l.Get("m1", "ETH/USDT:USDT")
	assert.True(t, pos.Size.Equal(decimal.NewFromInt(4)))
	assert.Equal(t, SideLong, pos.Side)
}

func TestLedgerRejectsReduceOnFlat(t *testing.T) {
	l := NewLedger()
	_, err := l.ApplyFill("m1", fill(exchange.SideSell, 1, 100), true, 2)
	assert.Error(t, err)
}

func TestLedgerIsolatesModels(t *testing.T) {
	l := NewLedger()
	_, err := l.ApplyFill("m1", fill(exchange.SideBuy, 2, 100), false, 2)
	require.NoError(t, err)

	assert.True(t, l.Get("m2", "ETH/USDT:USDT").Flat())
	assert.False(t, l.Get("m1", "ETH/USDT:USDT").Flat())
}

func TestLedgerReconcileOverwrites(t *testing.T) {
	l := NewLedger()
	_, err := l.ApplyFill("m1", fill(exchange.SideBuy, 2, 100), false, 2)
	require.NoError(t, err)

	pos := l.Reconcile("m1", "ETH/USDT:USDT", &exchange.Position{
		Symbol:     "ETH/USDT:USDT",
		Side:       "short",
		Size:       decimal.NewFromInt(5),
		EntryPrice: decimal.NewFromInt(90),
		Leverage:   3,
	})
	assert.Equal(t, SideShort, pos.Side)
	assert.True(t, pos.Size.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, 3, pos.Leverage)

	flat := l.Reconcile("m1", "ETH/USDT:USDT", nil)
	assert.True(t, flat.Flat())
}

func TestLedgerSnapshotSkipsFlat(t *testing.T) {
	l := NewLedger()
	_, err := l.ApplyFill("m1", fill(exchange.SideBuy, 2, 100), false, 2)
	require.NoError(t, err)
	l.Reconcile("m2", "BTC/USDT:USDT", nil)

	snap := l.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "m1", snap[0].ModelID)
}
