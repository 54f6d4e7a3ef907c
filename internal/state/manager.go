package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// #region locker

// Locker hands out one exclusive lock per key. Entries are dropped once no
// caller holds or waits on them.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sem  *semaphore.Weighted
	refs int
}

func NewLocker() *Locker {
	return &Locker{locks: make(map[string]*keyLock)}
}

// Lock blocks until key is free or ctx is done. The returned func releases it.
func (l *Locker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{sem: semaphore.NewWeighted(1)}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	if err := kl.sem.Acquire(ctx, 1); err != nil {
		l.release(key, kl)
		return nil, err
	}
	var once sync.Once
	return func() {
		once.Do(func() {
			kl.sem.Release(1)
			l.release(key, kl)
		})
	}, nil
}

func (l *Locker) release(key string, kl *keyLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}

// Len is the number of keys currently held or awaited.
func (l *Locker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// #endregion locker

// #region manager

// Mutation reads a learner's active record and returns the next one to commit.
// cur is the zero Record for a learner with no history. Returning nil commits nothing.
type Mutation func(ctx context.Context, cur Record) (*Record, error)

// Manager serializes read-modify-write per learner over a Store.
type Manager struct {
	store Store
	locks *Locker
	clock func() time.Time
}

func NewManager(store Store) *Manager {
	return &Manager{store: store, locks: NewLocker(), clock: time.Now}
}

// Store returns the backing store.
func (m *Manager) Store() Store { return m.store }

// WithLearner runs fn under learnerID's lock and commits what it returns.
// The committed record gets a fresh version id, the learner id and the
// previous version as parent. Returns the active record after fn.
func (m *Manager) WithLearner(ctx context.Context, learnerID string, fn Mutation) (Record, error) {
	unlock, err := m.locks.Lock(ctx, learnerID)
	if err != nil {
		return Record{}, fmt.Errorf("lock learner %s: %w", learnerID, err)
	}
	defer unlock()

	cur, err := m.store.Get(ctx, learnerID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Record{}, err
	}

	next, err := fn(ctx, cur)
	if err != nil {
		return cur, err
	}
	if next == nil {
		return cur, nil
	}

	rec := NewRecord(learnerID, cur.VersionID, next.PolicyBlob, next.ReviewBlob, m.clock())
	rec.MetricsJSON = next.MetricsJSON
	if err := m.store.Commit(ctx, rec); err != nil {
		return cur, fmt.Errorf("commit learner %s: %w", learnerID, err)
	}
	return rec, nil
}

// #endregion manager
