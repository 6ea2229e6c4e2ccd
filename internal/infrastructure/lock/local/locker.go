package local

import (
	"context"
	"sync"
)

// Locker is an in-process keyed mutex. Waiting honours context cancellation.
type Locker struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	sem  chan struct{}
	refs int
}

func NewLocker() *Locker {
	return &Locker{slots: make(map[string]*slot)}
}

func (l *Locker) Lock(ctx context.Context, documentID string) (func(), error) {
	l.mu.Lock()
	s, ok := l.slots[documentID]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		l.slots[documentID] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(documentID, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.sem
			l.release(documentID, s)
		})
	}, nil
}

func (l *Locker) release(documentID string, s *slot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, documentID)
	}
}

// Held returns the number of ids with a holder or waiter.
func (l *Locker) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
