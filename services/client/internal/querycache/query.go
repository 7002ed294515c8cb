package querycache

import (
	"context"
	"sync"
)

// Result is a query snapshot for presentation code.
type Result[T any] struct {
	Data      T
	IsLoading bool
	IsError   bool
	Err       error
}

// Query tracks one fetch intent. Views read Result and may discard the
// query at any time; the underlying load is not cancelled.
type Query[T any] struct {
	mu     sync.Mutex
	result Result[T]
	done   chan struct{}
}

// Use starts a fetch for key and returns immediately. A fresh entry
// settles the query synchronously.
func Use[T any](ctx context.Context, c *Cache, key RequestKey, load Loader[T]) *Query[T] {
	q := &Query[T]{done: make(chan struct{})}
	if v, ok := c.fresh(key); ok {
		if typed, ok := v.(T); ok {
			q.result = Result[T]{Data: typed}
			close(q.done)
			return q
		}
	}
	q.result = Result[T]{IsLoading: true}
	go func() {
		v, err := Get(ctx, c, key, load)
		q.settle(v, err)
	}()
	return q
}

func (q *Query[T]) settle(v T, err error) {
	q.mu.Lock()
	if err != nil {
		q.result = Result[T]{IsError: true, Err: err}
	} else {
		q.result = Result[T]{Data: v}
	}
	q.mu.Unlock()
	close(q.done)
}

// Result returns the current snapshot.
func (q *Query[T]) Result() Result[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.result
}

// Done is closed when the query settled.
func (q *Query[T]) Done() <-chan struct{} {
	return q.done
}

// Wait blocks until the query settles or ctx ends.
func (q *Query[T]) Wait(ctx context.Context) Result[T] {
	select {
	case <-q.done:
		return q.Result()
	case <-ctx.Done():
		r := q.Result()
		if r.IsLoading {
			return Result[T]{IsError: true, Err: ctx.Err()}
		}
		return r
	}
}
