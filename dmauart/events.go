package dmauart

// Queue is a single-threaded cooperative deferred event queue: closures are
// executed strictly in submission order, one at a time, never re-entrantly.
// Interrupt handlers hand work to task context through it. Post is a
// non-blocking channel send, so it is safe from interrupt context; the
// buffered channel capacity is the queue bound.
type Queue struct {
	tasks chan func()
}

// NewQueue returns a queue able to hold up to capacity deferred closures.
func NewQueue(capacity int) *Queue {
	return &Queue{tasks: make(chan func(), capacity)}
}

// Post schedules fn to run later in task context. It never blocks and
// reports false when the queue is full. Callers that cannot tolerate a lost
// task treat false as fatal.
func (q *Queue) Post(fn func()) bool {
	select {
	case q.tasks <- fn:
		return true
	default:
		return false
	}
}

// Run executes posted closures until Close is called. This is the device
// main loop's task context.
func (q *Queue) Run() {
	for fn := range q.tasks {
		fn()
	}
}

// Drain executes every closure currently queued, including ones posted by
// the closures it runs, and returns how many ran. It is the host-side way
// to pump task context deterministically.
func (q *Queue) Drain() int {
	n := 0
	for {
		select {
		case fn := <-q.tasks:
			if fn == nil {
				return n
			}
			fn()
			n++
		default:
			return n
		}
	}
}

// Close stops Run once the closures already queued have executed.
func (q *Queue) Close() {
	close(q.tasks)
}
