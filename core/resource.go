package core

// Resource guards state shared between tasks. Its ceiling must be at least
// the priority of every task that locks it.
type Resource[T any] struct {
	k       *Kernel
	ceiling Priority
	value   T
}

// NewResource wraps an initial value with a priority ceiling
func NewResource[T any](k *Kernel, ceiling Priority, value T) *Resource[T] {
	return &Resource[T]{k: k, ceiling: ceiling, value: value}
}

// Lock runs fn with exclusive access to the value. Tasks at or below the
// ceiling cannot preempt fn; higher tasks still can. Tasks made ready
// inside fn run once the lock is released.
func (r *Resource[T]) Lock(fn func(*T)) {
	prev := r.k.raise(r.ceiling)
	defer r.k.lower(prev)
	fn(&r.value)
}

// Ceiling returns the static priority ceiling
func (r *Resource[T]) Ceiling() Priority {
	return r.ceiling
}
