// Package dispatch delivers change notifications one at a time without
// holding the notifier's locks while listeners run.
package dispatch

import "sync"

// Queue runs queued funcs in the order they were added. Whichever Drain
// finds the queue idle runs everything until it is empty. A Drain made
// meanwhile, including one from inside a running func, returns at once and
// its work is run by the draining goroutine.
//
// Callers add under their own lock, so queue order matches the order of
// the state changes, and call Drain after releasing it.
type Queue struct {
	mu      sync.Mutex
	pending []func()
	running bool
}

// Add appends fn without running it.
func (q *Queue) Add(fn func()) {
	q.mu.Lock()
	q.pending = append(q.pending, fn)
	q.mu.Unlock()
}

// Drain runs queued funcs unless another goroutine already is.
func (q *Queue) Drain() {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.mu.Unlock()

	finished := false
	defer func() {
		// A panicking func must not leave the queue wedged.
		if !finished {
			q.mu.Lock()
			q.running = false
			q.mu.Unlock()
		}
	}()
	for {
		q.mu.Lock()
		if len(q.pending) == 0 {
			q.running = false
			q.mu.Unlock()
			finished = true
			return
		}
		fn := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		q.mu.Unlock()
		fn()
	}
}

// Run is Add followed by Drain.
func (q *Queue) Run(fn func()) {
	q.Add(fn)
	q.Drain()
}
