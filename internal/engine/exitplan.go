package engine

import (
	"sync"

	"github.com/shopspring/decimal"
)

// ExitPlan is the stop-loss / take-profit pair attached to an open position.
// Zero values mean the watchdog falls back to the configured default distance.
type ExitPlan struct {
	TakeProfit decimal.Decimal
	StopLoss   decimal.Decimal
}

// ExitBook holds the exit plan per (model, symbol). Cleared whenever the
// position goes flat.
type ExitBook struct {
	mu    sync.RWMutex
	plans map[string]ExitPlan
}

func NewExitBook() *ExitBook {
	return &ExitBook{plans: make(map[string]ExitPlan)}
}

func (b *ExitBook) Set(key string, plan ExitPlan) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.plans[key] = plan
}

func (b *ExitBook) Get(key string) (ExitPlan, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.plans[key]
	return p, ok
}

func (b *ExitBook) Clear(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.plans, key)
}

// defaultExitDistance is the fallback stop/target distance from entry when
// the oracle gave no explicit levels.
var defaultExitDistance = decimal.NewFromFloat(0.05)

// Breached reports whether price has crossed the stop or target for a
// position on the given side, deriving missing levels from entry.
func (p ExitPlan) Breached(side Side, entry, price decimal.Decimal) (hit bool, reason string) {
	if price.Sign() <= 0 || entry.Sign() <= 0 {
		return false, ""
	}
	tp, sl := p.TakeProfit, p.StopLoss
	one := decimal.NewFromInt(1)
	switch side {
	case SideLong:
		if tp.Sign() <= 0 {
			tp = entry.Mul(one.Add(defaultExitDistance))
		}
		if sl.Sign() <= 0 {
			sl = entry.Mul(one.Sub(defaultExitDistance))
		}
		if price.GreaterThanOrEqual(tp) {
			return true, "take_profit"
		}
		if price.LessThanOrEqual(sl) {
			return true, "stop_loss"
		}
	case SideShort:
		if tp.Sign() <= 0 {
			tp = entry.Mul(one.Sub(defaultExitDistance))
		}
		if sl.Sign() <= 0 {
			sl = entry.Mul(one.Add(defaultExitDistance))
		}
		if price.LessThanOrEqual(tp) {
			return true, "take_profit"
		}
		if price.GreaterThanOrEqual(sl) {
			return true, "stop_loss"
		}
	}
	return false, ""
}
