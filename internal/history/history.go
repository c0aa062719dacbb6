// Package history implements linear snapshot undo/redo.
package history

// History keeps two stacks of snapshots around the current value. It is not
// safe for concurrent use; owners serialize access.
type History[T any] struct {
	past   []T
	future []T
	limit  int
}

// Option configures a History.
type Option func(*config)

type config struct {
	limit int
}

// WithLimit caps the number of undo steps kept. Zero or less means unbounded.
func WithLimit(n int) Option {
	return func(c *config) {
		c.limit = n
	}
}

// New returns an empty History.
func New[T any](opts ...Option) *History[T] {
	var c config
	for _, o := range opts {
		o(&c)
	}
	return &History[T]{limit: c.limit}
}

// Push records cur as the state before an edit and discards the redo stack.
func (h *History[T]) Push(cur T) {
	h.past = append(h.past, cur)
	h.trim()
	h.future = nil
}

// trim drops the oldest undo steps beyond the limit.
func (h *History[T]) trim() {
	if h.limit <= 0 || len(h.past) <= h.limit {
		return
	}
	drop := len(h.past) - h.limit
	var zero T
	for i := range drop {
		h.past[i] = zero
	}
	h.past = h.past[drop:]
}

// Undo returns the previous state and moves cur to the front of the redo
// stack. ok is false when there is nothing to undo.
func (h *History[T]) Undo(cur T) (prev T, ok bool) {
	if len(h.past) == 0 {
		return prev, false
	}
	last := len(h.past) - 1
	prev = h.past[last]
	var zero T
	h.past[last] = zero
	h.past = h.past[:last]
	h.future = append([]T{cur}, h.future...)
	return prev, true
}

// Redo returns the next state and appends cur to the undo stack. ok is false
// when there is nothing to redo.
func (h *History[T]) Redo(cur T) (next T, ok bool) {
	if len(h.future) == 0 {
		return next, false
	}
	next = h.future[0]
	h.future = h.future[1:]
	h.past = append(h.past, cur)
	h.trim()
	return next, true
}

func (h *History[T]) CanUndo() bool { return len(h.past) > 0 }
func (h *History[T]) CanRedo() bool { return len(h.future) > 0 }

// Depth returns the sizes of the undo and redo stacks.
func (h *History[T]) Depth() (past, future int) {
	return len(h.past), len(h.future)
}

// PeekFuture returns the state Redo would restore.
func (h *History[T]) PeekFuture() (T, bool) {
	if len(h.future) == 0 {
		var zero T
		return zero, false
	}
	return h.future[0], true
}

// Reset clears both stacks.
func (h *History[T]) Reset() {
	h.past = nil
	h.future = nil
}
