package querycache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUseSettlesWithData(t *testing.T) {
	c, _ := newTestCache(t, nil)
	release := make(chan struct{})
	q := Use(context.Background(), c, NewKey("search", "dune"), func(ctx context.Context) ([]string, error) {
		<-release
		return []string{"Dune"}, nil
	})
	assert.True(t, q.Result().IsLoading)
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	res := q.Wait(ctx)
	assert.False(t, res.IsLoading)
	assert.False(t, res.IsError)
	assert.Equal(t, []string{"Dune"}, res.Data)
}

func TestUseReportsError(t *testing.T) {
	c, _ := newTestCache(t, func(o *Options) { o.MaxRetries = 0 })
	boom := errors.New("boom")
	q := Use(context.Background(), c, NewKey("book", "x"), func(ctx context.Context) (string, error) {
		return "", boom
	})
	<-q.Done()
	res := q.Result()
	assert.True(t, res.IsError)
	assert.ErrorIs(t, res.Err, boom)
}

func TestUseServesFreshEntrySynchronously(t *testing.T) {
	c, _ := newTestCache(t, nil)
	key := NewKey("book", "x")
	_, err := Get(context.Background(), c, key, func(ctx context.Context) (string, error) { return "cached", nil })
	require.NoError(t, err)

	q := Use(context.Background(), c, key, func(ctx context.Context) (string, error) {
		t.Fatal("loader must not run for a fresh entry")
		return "", nil
	})
	select {
	case <-q.Done():
	default:
		t.Fatal("query should be settled")
	}
	assert.Equal(t, "cached", q.Result().Data)
}
