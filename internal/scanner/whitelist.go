package scanner

import "sync"

// Whitelist is an unordered set of identifiers with O(1) membership and
// amortized O(1) removal. Removal swaps the last element into the removed
// slot and pops; ordering carries no semantic weight.
type Whitelist struct {
	mu    sync.RWMutex
	items []string
	index map[string]int
}

// NewWhitelist returns a whitelist seeded with the given identifiers.
func NewWhitelist(ids ...string) *Whitelist {
	w := &Whitelist{index: make(map[string]int, len(ids))}
	for _, id := range ids {
		w.add(id)
	}
	return w
}

func (w *Whitelist) add(id string) bool {
	if _, ok := w.index[id]; ok {
		return false
	}
	w.index[id] = len(w.items)
	w.items = append(w.items, id)
	return true
}

// Add inserts an identifier. It returns false if already present.
func (w *Whitelist) Add(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.add(id)
}

// Remove deletes an identifier via swap-with-last-and-pop. It returns false
// if the identifier was not present.
func (w *Whitelist) Remove(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	i, ok := w.index[id]
	if !ok {
		return false
	}
	last := len(w.items) - 1
	if i != last {
		moved := w.items[last]
		w.items[i] = moved
		w.index[moved] = i
	}
	w.items = w.items[:last]
	delete(w.index, id)
	return true
}

// Contains reports membership.
func (w *Whitelist) Contains(id string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, ok := w.index[id]
	return ok
}

// Snapshot returns a copy of the current members in internal order. A scan
// pass takes one snapshot up front and iterates it unchanged.
func (w *Whitelist) Snapshot() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]string(nil), w.items...)
}

// Len returns the number of members.
func (w *Whitelist) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.items)
}
