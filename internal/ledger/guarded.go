package ledger

import "sync"

// Guarded owns a value of type T and serializes every access to it.
type Guarded[T any] struct {
	mu sync.Mutex
	v  T
}

// NewGuarded wraps v.
func NewGuarded[T any](v T) *Guarded[T] {
	return &Guarded[T]{v: v}
}

// Update runs fn with exclusive access to the value.
func (g *Guarded[T]) Update(fn func(*T)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	fn(&g.v)
}

// Snapshot returns clone(value) taken under the lock. A nil clone returns a
// shallow copy.
func (g *Guarded[T]) Snapshot(clone func(T) T) T {
	g.mu.Lock()
	defer g.mu.Unlock()
	if clone == nil {
		return g.v
	}
	return clone(g.v)
}
