package engine

import (
	"sync"
	"time"

	"helmsman/internal/config"
	"helmsman/internal/signal"
)

// guardBook tracks per-pair trade timestamps for the frequency guards ported
// from the live bot: an absolute cooldown right after any trade, a window
// after that where only HIGH confidence may trade, and a block on flipping
// back into a side that was just exited by a reversal.
type guardBook struct {
	mu    sync.Mutex
	marks map[string]guardMark
}

type guardMark struct {
	lastTradeAt  time.Time
	lastExitSide Side
	lastExitAt   time.Time
	reversed     bool
}

func newGuardBook() *guardBook {
	return &guardBook{marks: make(map[string]guardMark)}
}

func (g *guardBook) markTrade(key string, at time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m := g.marks[key]
	m.lastTradeAt = at
	g.marks[key] = m
}

// markExitReversal records the side just flattened by a reversal so the
// re-entry guard can block an immediate flip back.
func (g *guardBook) markExitReversal(key string, side Side, at time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	m := g.marks[key]
	m.lastTradeAt = at
	m.lastExitSide = side
	m.lastExitAt = at
	m.reversed = true
	g.marks[key] = m
}

// checkEntry vets a position-growing trade (open, add, the opening leg of a
// reversal) against the frequency guards. Closes are never blocked.
func (g *guardBook) checkEntry(key string, target Side, conf signal.Confidence, risk config.RiskConfig, now time.Time) error {
	g.mu.Lock()
	m := g.marks[key]
	g.mu.Unlock()

	if !m.lastTradeAt.IsZero() {
		since := now.Sub(m.lastTradeAt)
		cooldown := time.Duration(risk.CooldownMinutes) * time.Minute
		highOnly := time.Duration(risk.HighOnlyMinutes) * time.Minute
		if cooldown > 0 && since < cooldown {
			return riskRejectedf("cooldown: last trade %s ago, need %s", since.Truncate(time.Second), cooldown)
		}
		if highOnly > 0 && since < highOnly && conf != signal.ConfidenceHigh {
			return riskRejectedf("only HIGH confidence allowed %s after a trade, got %s",
				highOnly, conf)
		}
	}

	if m.reversed && m.lastExitSide == target && !m.lastExitAt.IsZero() {
		guard := time.Duration(risk.ReversalGuardMinutes) * time.Minute
		if guard > 0 && now.Sub(m.lastExitAt) < guard {
			return riskRejectedf("reversal guard: exited %s %s ago, re-entry blocked for %s",
				target, now.Sub(m.lastExitAt).Truncate(time.Second), guard)
		}
	}
	return nil
}
