package translator

import "sync"

// queue is the shared list of ranges still to be sent. Ranges produced by a
// split are pushed back so any worker can pick them up. pop blocks while the
// queue is empty but some range is still being processed, since that range
// may split into more work.
type queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []unit
	active int
	closed bool
}

func newQueue() *queue {
	q := &queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *queue) push(u unit) {
	q.mu.Lock()
	q.items = append(q.items, u)
	q.mu.Unlock()
	q.cond.Signal()
}

// pop returns the next range, or false once the queue is drained or closed.
func (q *queue) pop() (unit, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && q.active > 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed || len(q.items) == 0 {
		return unit{}, false
	}
	u := q.items[0]
	q.items = q.items[1:]
	q.active++
	return u, true
}

// done marks a popped range as finished.
func (q *queue) done() {
	q.mu.Lock()
	q.active--
	q.mu.Unlock()
	q.cond.Broadcast()
}

// close stops handing out ranges. Ranges still queued are dropped.
func (q *queue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}
