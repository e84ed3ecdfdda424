package pipeline

import "sync"

// DefaultUnitSize is the number of events grouped into one work unit.
const DefaultUnitSize = 4

// WorkUnit is a fixed-size batch of events, grouped in original
// timestamp order, used for progress reporting. The completed counter
// is only mutated under the unit's mutex, so notifications derived from
// it are non-decreasing.
type WorkUnit struct {
	ID       int
	Expected int

	mu        sync.Mutex
	completed int
}

// complete records one terminal event. notify runs with the updated
// count while the mutex is still held, so counts reach the observer in
// increasing order even when workers finish concurrently.
func (u *WorkUnit) complete(notify func(completed int)) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.completed++
	if notify != nil {
		notify(u.completed)
	}
}

// Completed returns the number of events that reached a terminal state.
func (u *WorkUnit) Completed() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.completed
}

// groupUnits slices n events into units of the given size.
func groupUnits(n, size int) []*WorkUnit {
	if size <= 0 {
		size = DefaultUnitSize
	}
	var units []*WorkUnit
	for start := 0; start < n; start += size {
		expected := size
		if start+expected > n {
			expected = n - start
		}
		units = append(units, &WorkUnit{ID: len(units), Expected: expected})
	}
	return units
}
