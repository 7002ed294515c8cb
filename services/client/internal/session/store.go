package session

import (
	"context"
	"log/slog"
	"sync"

	"bookfinder/pkg/domain"
	"bookfinder/services/client/internal/dispatch"
)

// Source is the identity side the store listens to.
type Source interface {
	EnablePersistence(ctx context.Context) error
	Subscribe(fn func(domain.Session)) (unsubscribe func())
}

// State is what consumers observe. Ready turns true on the first
// notification from the source and stays true.
type State struct {
	Session domain.Session `json:"session"`
	Ready   bool           `json:"ready"`
}

// Store owns the process-wide session. Only the source's notifications
// mutate it; consumers read Current, Subscribe or Watch.
type Store struct {
	source Source
	logger *slog.Logger

	mu          sync.RWMutex
	state       State
	listeners   map[uint64]func(State)
	nextID      uint64
	ready       chan struct{}
	unsubscribe func()
	closed      bool

	// deliveries runs listeners in change order with no lock held, so a
	// listener may call back into the identity gateway.
	deliveries dispatch.Queue
	startOnce  sync.Once
	closeOnce  sync.Once
}

// New builds the store. Call Start once to connect it to the source.
func New(source Source, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		source:    source,
		logger:    logger,
		listeners: make(map[uint64]func(State)),
		ready:     make(chan struct{}),
	}
}

// Start enables durable persistence and subscribes to the source.
// A persistence failure is logged and the session stays in memory only.
// Later calls are no-ops.
func (s *Store) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		if err := s.source.EnablePersistence(ctx); err != nil {
			s.logger.Warn("session persistence unavailable, continuing in memory", "err", err)
		}
		unsubscribe := s.source.Subscribe(s.apply)
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			unsubscribe()
			return
		}
		s.unsubscribe = unsubscribe
		s.mu.Unlock()
	})
}

func (s *Store) apply(sess domain.Session) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	wasReady := s.state.Ready
	s.state = State{Session: sess, Ready: true}
	if !wasReady {
		close(s.ready)
	}
	state := s.state
	listeners := s.snapshotLocked()
	s.deliveries.Add(func() {
		s.logger.Debug("session changed", "present", state.Session.IsPresent(), "user_id", state.Session.UserID())
		for _, fn := range listeners {
			fn(state)
		}
	})
	s.mu.Unlock()
	s.deliveries.Drain()
}

func (s *Store) snapshotLocked() []func(State) {
	listeners := make([]func(State), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	return listeners
}

// Current returns the latest state.
func (s *Store) Current() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Subscribe registers fn for every later change. It does not replay the
// current state; use Watch for that.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	unsubscribe = s.addLocked(fn)
	s.mu.Unlock()
	return unsubscribe
}

// Watch delivers the current state to fn and then every later change.
// The first call always carries the state at registration, so no change
// is skipped or seen twice.
func (s *Store) Watch(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	unsubscribe = s.addLocked(fn)
	state := s.state
	s.deliveries.Add(func() { fn(state) })
	s.mu.Unlock()
	s.deliveries.Drain()
	return unsubscribe
}

func (s *Store) addLocked(fn func(State)) (unsubscribe func()) {
	id := s.nextID
	s.nextID++
	if !s.closed {
		s.listeners[id] = fn
	}
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// Ready is closed once the first session value arrived.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// WaitReady blocks until the session is resolved or ctx ends.
func (s *Store) WaitReady(ctx context.Context) (State, error) {
	select {
	case <-s.ready:
		return s.Current(), nil
	case <-ctx.Done():
		return s.Current(), ctx.Err()
	}
}

// Close releases the source subscription. Safe to call more than once.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		unsubscribe := s.unsubscribe
		s.unsubscribe = nil
		s.listeners = make(map[uint64]func(State))
		s.mu.Unlock()
		if unsubscribe != nil {
			unsubscribe()
		}
	})
}
