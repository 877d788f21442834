package engine

import "sync"

// dirtySet marks pairs whose last order outcome is unknown. A dirty pair
// must reconcile against the exchange before its next transition.
type dirtySet struct {
	mu   *sync.Mutex
	keys map[string]bool
}

func newDirtySet() dirtySet {
	return dirtySet{mu: &sync.Mutex{}, keys: make(map[string]bool)}
}

func (d dirtySet) add(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.keys[key] = true
}

func (d dirtySet) remove(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.keys, key)
}

func (d dirtySet) has(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.keys[key]
}
