package materializer

import (
	"errors"
	"sync"
)

var (
	// ErrSealed is returned when appending to a sealed accumulator
	ErrSealed = errors.New("accumulator is sealed")
	// ErrNotSealed is returned when reading an accumulator that is still collecting
	ErrNotSealed = errors.New("accumulator is not sealed")
)

// Accumulator collects, per foreign id, the ids of the records that point at
// it. It is written while one collection is materialized, sealed, and then
// read while a later collection is materialized.
type Accumulator struct {
	mu      sync.Mutex
	entries map[string][]string
	sealed  bool
}

// NewAccumulator creates an empty accumulator in the collecting phase.
func NewAccumulator() *Accumulator {
	return &Accumulator{entries: make(map[string][]string)}
}

// Append records that id references key.
func (a *Accumulator) Append(key, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.sealed {
		return ErrSealed
	}
	a.entries[key] = append(a.entries[key], id)
	return nil
}

// Seal ends the collecting phase.
func (a *Accumulator) Seal() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sealed = true
}

// Get returns the ids collected for key, in append order.
func (a *Accumulator) Get(key string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.sealed {
		return nil, ErrNotSealed
	}
	return append([]string(nil), a.entries[key]...), nil
}

// Len returns the number of distinct keys.
func (a *Accumulator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}
