package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"bookfinder/pkg/domain"
)

type fakeSource struct {
	mu             sync.Mutex
	persistErr     error
	subscribeCalls int
	unsubscribes   int
	fn             func(domain.Session)
}

func (f *fakeSource) EnablePersistence(context.Context) error {
	return f.persistErr
}

func (f *fakeSource) Subscribe(fn func(domain.Session)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribeCalls++
	f.fn = fn
	return func() {
		f.mu.Lock()
		f.unsubscribes++
		f.mu.Unlock()
	}
}

func (f *fakeSource) emit(u *domain.User) {
	f.mu.Lock()
	fn := f.fn
	f.mu.Unlock()
	fn(domain.SessionFor(u))
}

func user(id string) *domain.User {
	return &domain.User{ID: id}
}

func TestStoreBecomesReadyOnceAndTracksLatest(t *testing.T) {
	src := &fakeSource{}
	store := New(src, nil)
	require.False(t, store.Current().Ready)

	store.Start(context.Background())
	store.Start(context.Background())
	require.Equal(t, 1, src.subscribeCalls)

	var seen []State
	store.Subscribe(func(st State) { seen = append(seen, st) })

	src.emit(nil)
	select {
	case <-store.Ready():
	default:
		t.Fatal("ready channel should be closed after first notification")
	}
	src.emit(user("u1"))
	src.emit(nil)
	src.emit(user("u2"))

	require.Len(t, seen, 4)
	for _, st := range seen {
		require.True(t, st.Ready)
	}
	require.False(t, seen[0].Session.IsPresent())
	require.Equal(t, "u1", seen[1].Session.UserID())
	require.False(t, seen[2].Session.IsPresent())
	require.Equal(t, "u2", store.Current().Session.UserID())
}

func TestStorePersistenceFailureDoesNotBlockReadiness(t *testing.T) {
	src := &fakeSource{persistErr: errors.New("read-only filesystem")}
	store := New(src, nil)
	store.Start(context.Background())
	require.Equal(t, 1, src.subscribeCalls)

	go src.emit(user("u1"))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	st, err := store.WaitReady(ctx)
	require.NoError(t, err)
	require.True(t, st.Ready)
	require.Equal(t, "u1", st.Session.UserID())
}

func TestStoreFansOutWithoutResubscribing(t *testing.T) {
	src := &fakeSource{}
	store := New(src, nil)
	store.Start(context.Background())

	var a, b []string
	unsubA := store.Subscribe(func(st State) { a = append(a, st.Session.UserID()) })
	store.Subscribe(func(st State) { b = append(b, st.Session.UserID()) })

	src.emit(user("u1"))
	unsubA()
	src.emit(user("u2"))

	require.Equal(t, 1, src.subscribeCalls)
	require.Equal(t, []string{"u1"}, a)
	require.Equal(t, []string{"u1", "u2"}, b)
}

func TestStoreCloseIsIdempotent(t *testing.T) {
	src := &fakeSource{}
	store := New(src, nil)
	store.Start(context.Background())
	src.emit(user("u1"))

	var calls int
	store.Subscribe(func(State) { calls++ })
	store.Close()
	store.Close()
	require.Equal(t, 1, src.unsubscribes)

	src.emit(nil)
	require.Zero(t, calls)
	require.Equal(t, "u1", store.Current().Session.UserID())
}

func TestCloseBeforeStartReleasesLateSubscription(t *testing.T) {
	src := &fakeSource{}
	store := New(src, nil)
	store.Close()
	store.Start(context.Background())
	require.Equal(t, 1, src.unsubscribes)
}

func TestWaitReadyHonoursContext(t *testing.T) {
	store := New(&fakeSource{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	st, err := store.WaitReady(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, st.Ready)
}

func TestListenerMayReenterSource(t *testing.T) {
	src := &fakeSource{}
	store := New(src, nil)
	store.Start(context.Background())

	var seen []string
	store.Subscribe(func(st State) {
		seen = append(seen, st.Session.UserID())
		if st.Session.IsPresent() {
			src.emit(nil)
		}
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		src.emit(user("u1"))
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("re-entrant notification deadlocked")
	}
	require.Equal(t, []string{"u1", ""}, seen)
	require.False(t, store.Current().Session.IsPresent())
}

func TestWatchStartsWithCurrentState(t *testing.T) {
	src := &fakeSource{}
	store := New(src, nil)
	store.Start(context.Background())

	var seen []State
	store.Watch(func(st State) { seen = append(seen, st) })
	src.emit(user("u1"))

	require.Len(t, seen, 2)
	require.False(t, seen[0].Ready)
	require.True(t, seen[1].Ready)
	require.Equal(t, "u1", seen[1].Session.UserID())
}
