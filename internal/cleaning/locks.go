package cleaning

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// KeyedLocks hands out exclusive locks by key. Entries are dropped once no
// caller holds or waits on them, so the map only grows with live sessions.
type KeyedLocks struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
}

type lockEntry struct {
	sem  *semaphore.Weighted
	refs int
}

func NewKeyedLocks() *KeyedLocks {
	return &KeyedLocks{entries: make(map[string]*lockEntry)}
}

// Acquire blocks until the lock for key is free, timeout elapses or ctx is done.
// A timeout yields ErrSessionBusy. The returned release func is safe to call twice.
func (l *KeyedLocks) Acquire(ctx context.Context, key string, timeout time.Duration) (func(), error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &lockEntry{sem: semaphore.NewWeighted(1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	acquireCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := e.sem.Acquire(acquireCtx, 1); err != nil {
		l.unref(key, e)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrSessionBusy
		}
		return nil, err
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			e.sem.Release(1)
			l.unref(key, e)
		})
	}, nil
}

func (l *KeyedLocks) unref(key string, e *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 && l.entries[key] == e {
		delete(l.entries, key)
	}
}

// Len reports how many keys are currently held or awaited.
func (l *KeyedLocks) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
