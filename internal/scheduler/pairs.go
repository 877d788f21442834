package scheduler

import "sync"

// PairLocks hands out one mutex per (model, symbol) pair. Scheduled cycles
// use TryAcquire so a slow cycle makes the next tick skip instead of queue;
// manual force-closes use Acquire and wait their turn. Either way at most
// one execution is in flight per pair.
type PairLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewPairLocks() *PairLocks {
	return &PairLocks{locks: make(map[string]*sync.Mutex)}
}

func PairKey(modelID, symbol string) string {
	return modelID + "|" + symbol
}

func (p *PairLocks) get(key string) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.locks[key]
	if !ok {
		m = &sync.Mutex{}
		p.locks[key] = m
	}
	return m
}

// TryAcquire returns a release func, or false when the pair is busy.
func (p *PairLocks) TryAcquire(key string) (func(), bool) {
	m := p.get(key)
	if !m.TryLock() {
		return nil, false
	}
	return m.Unlock, true
}

// Acquire blocks until the pair is free.
func (p *PairLocks) Acquire(key string) func() {
	m := p.get(key)
	m.Lock()
	return m.Unlock
}
