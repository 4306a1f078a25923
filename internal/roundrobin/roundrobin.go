// Package roundrobin implements a thread-safe round-robin draw over an
// ordered set of items, used by the evaluation stage to fan completed
// tasks out across multiple downstream inbox directories.
package roundrobin

import "sync/atomic"

// Picker draws the next item from an ordered, fixed list, wrapping back to
// the start. Concurrent calls to Next each advance the rotation by exactly
// one position, so N draws over K items hand each item out N/K times (give
// or take one); strict
// ordering across concurrent draws is not guaranteed, matching spec.md's
// "fairness under contention is best-effort" note.
type Picker[T any] struct {
	items []T
	next  atomic.Uint64
}

// New constructs a Picker over items. items must be non-empty.
func New[T any](items []T) *Picker[T] {
	cloned := make([]T, len(items))
	copy(cloned, items)
	return &Picker[T]{items: cloned}
}

// Next returns the next item in the rotation.
func (p *Picker[T]) Next() T {
	idx := p.next.Add(1) - 1
	return p.items[idx%uint64(len(p.items))]
}

// Len returns the number of items in the rotation.
func (p *Picker[T]) Len() int {
	return len(p.items)
}
