package memory

import (
	"context"
	"sync"
)

// scopeLocks: именованные эксклюзивные блокировки с учётом ctx.
type scopeLocks struct {
	mu    sync.Mutex
	locks map[string]*scopeLock
}

type scopeLock struct {
	ch   chan struct{}
	refs int
}

func newScopeLocks() *scopeLocks {
	return &scopeLocks{locks: make(map[string]*scopeLock)}
}

// acquire блокирует scope и возвращает функцию освобождения.
func (s *scopeLocks) acquire(ctx context.Context, scope string) (func(), error) {
	s.mu.Lock()
	l, ok := s.locks[scope]
	if !ok {
		l = &scopeLock{ch: make(chan struct{}, 1)}
		s.locks[scope] = l
	}
	l.refs++
	s.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-l.ch
				s.unref(scope, l)
			})
		}, nil
	case <-ctx.Done():
		s.unref(scope, l)
		return nil, ctx.Err()
	}
}

func (s *scopeLocks) unref(scope string, l *scopeLock) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(s.locks, scope)
	}
}

func (s *scopeLocks) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.locks)
}
