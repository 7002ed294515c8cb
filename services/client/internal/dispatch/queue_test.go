package dispatch

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunDeliversInOrder(t *testing.T) {
	var q Queue
	var got []int
	for i := 0; i < 5; i++ {
		q.Run(func() { got = append(got, i) })
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestReentrantRunIsDeferredNotDeadlocked(t *testing.T) {
	var q Queue
	var got []string
	q.Run(func() {
		got = append(got, "outer start")
		q.Run(func() { got = append(got, "inner") })
		got = append(got, "outer end")
	})
	assert.Equal(t, []string{"outer start", "outer end", "inner"}, got)
}

func TestConcurrentDrainsRunEverythingOnce(t *testing.T) {
	var q Queue
	var mu sync.Mutex
	count := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Run(func() {
				mu.Lock()
				count++
				mu.Unlock()
			})
		}()
	}
	wg.Wait()
	q.Drain()
	assert.Equal(t, 50, count)
}

func TestPanicDoesNotWedgeQueue(t *testing.T) {
	var q Queue
	assert.Panics(t, func() { q.Run(func() { panic("listener bug") }) })

	ran := false
	q.Run(func() { ran = true })
	assert.True(t, ran)
}
