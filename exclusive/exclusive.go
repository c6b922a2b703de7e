// Package exclusive serializes asynchronous operations contending for one
// shared resource instance without blocking a thread. Operations take turns
// owning the resource: each is handed a release callback and holds the
// resource until it invokes it. Waiters queue in a fixed-capacity array;
// the package allocates nothing after construction.
//
// Everything here runs in a single cooperative task context. There is no
// timeout: an operation that never releases starves the queue.
package exclusive

// MaxWaiters bounds how many operations may be queued behind the current
// holder. Exceeding it is a programming error.
const MaxWaiters = 3

// Release relinquishes ownership of the resource, starting the oldest
// queued operation if there is one.
type Release func()

// Operation receives the shared resource and the callback that gives it
// back.
type Operation[T any] func(resource *T, release Release)

// Exclusive manages asynchronous exclusive ownership of one resource. The
// resource's lifetime is owned elsewhere; Exclusive only borrows it.
type Exclusive[T any] struct {
	resource *T
	busy     bool
	waiters  [MaxWaiters]Operation[T]
}

// New returns an Exclusive guarding resource.
func New[T any](resource *T) *Exclusive[T] {
	return &Exclusive[T]{resource: resource}
}

// AsyncStart invokes op as soon as the resource is available — immediately,
// on the caller's stack, when it is free. Otherwise op joins the wait
// queue; a full queue is fatal. Operations start in submission order:
// insertion fills the lowest empty slot and release always takes the lowest
// occupied one, so the queue never develops permanent gaps.
func (e *Exclusive[T]) AsyncStart(op Operation[T]) {
	if !e.busy {
		e.busy = true
		op(e.resource, e.release)
		return
	}

	for i := range e.waiters {
		if e.waiters[i] == nil {
			e.waiters[i] = op
			return
		}
	}

	panic("exclusive: waiter queue full")
}

func (e *Exclusive[T]) release() {
	e.busy = false

	for i := range e.waiters {
		if e.waiters[i] != nil {
			next := e.waiters[i]
			e.waiters[i] = nil
			e.AsyncStart(next)
			return
		}
	}
	// Nothing queued; the resource stays free.
}
