// Package lock serialises work on a single session, in process or across
// replicas through Redis.
package lock

import (
	"context"
	"fmt"
	"sync"

	"github.com/bibbank/origination/internal/domain/apperr"
)

// MemoryLocker is a keyed mutex. Waiting honours context cancellation.
type MemoryLocker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewMemoryLocker creates an empty locker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{slots: make(map[string]*slot)}
}

// Lock blocks until sessionID is free or ctx is done.
func (l *MemoryLocker) Lock(ctx context.Context, sessionID string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[sessionID]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[sessionID] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(sessionID, s, false)
		return nil, fmt.Errorf("%w: lock session %s: %w", apperr.ErrExternalService, sessionID, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(sessionID, s, true) })
	}, nil
}

func (l *MemoryLocker) release(sessionID string, s *slot, held bool) {
	if held {
		<-s.ch
	}
	l.mu.Lock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, sessionID)
	}
	l.mu.Unlock()
}
