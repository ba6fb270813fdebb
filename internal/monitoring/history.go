package monitoring

import "sync"

// Ring is a fixed-capacity buffer that overwrites its oldest entry when full.
type Ring[T any] struct {
	mu       sync.RWMutex
	items    []T
	capacity int
	index    int
	size     int
}

func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

func (r *Ring[T]) Add(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[r.index] = item
	r.index = (r.index + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	}
}

// Last returns up to n most recent items in chronological order.
func (r *Ring[T]) Last(n int) []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n > r.size {
		n = r.size
	}
	if n <= 0 {
		return nil
	}

	out := make([]T, n)
	start := (r.index - n + r.capacity) % r.capacity
	for i := 0; i < n; i++ {
		out[i] = r.items[(start+i)%r.capacity]
	}
	return out
}

// All returns every retained item, oldest first.
func (r *Ring[T]) All() []T {
	return r.Last(r.Len())
}

// Latest returns the newest item.
func (r *Ring[T]) Latest() (T, bool) {
	last := r.Last(1)
	if len(last) == 0 {
		var zero T
		return zero, false
	}
	return last[0], true
}

func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

func (r *Ring[T]) Cap() int {
	return r.capacity
}
