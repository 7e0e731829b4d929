package upcheck

import (
	"context"
	"sync"
	"time"
)

// StatusEvent is one observed mutation of a peer's shared status
// record, as delivered by StatusStore.Watch.
type StatusEvent struct {
	Index  int
	Status PeerStatus
}

// StatusStore holds the shared per-peer status records and the
// ownership lease over them.
//
// Acquire is the lease primitive: a worker becomes (or remains) a
// peer's owner either by already holding the lease or by superseding an
// owner that has been silent for at least staleAfter. Update is the
// exclusive mutation path and rejects workers that lost the lease with
// ErrNotOwner. Watch lets non-owning processes mirror verdict changes.
type StatusStore interface {
	// Acquire attempts to take or renew the lease for the peer at
	// index. It returns true if workerID now holds the lease.
	Acquire(ctx context.Context, index int, workerID string, staleAfter time.Duration) (bool, error)

	// Update applies fn to the peer's record under exclusive access.
	// It fails with ErrNotOwner if workerID does not hold the lease.
	Update(ctx context.Context, index int, workerID string, fn func(*PeerStatus)) error

	// Get returns a copy of the peer's current record.
	Get(ctx context.Context, index int) (PeerStatus, error)

	// Watch delivers status mutations until ctx is cancelled or the
	// store is closed.
	Watch(ctx context.Context) (<-chan StatusEvent, error)

	// Close releases the store's resources.
	Close() error
}

// MemoryStore is the single-process StatusStore. Each record is guarded
// by its own mutex; there is no global lock. With one process there is
// no dead worker to supersede, so the staleness window only matters to
// tests, but the semantics are the same as the distributed store's.
type MemoryStore struct {
	records []memoryRecord

	mu       sync.Mutex
	watchers []chan StatusEvent
	closed   bool
}

type memoryRecord struct {
	mu     sync.Mutex
	status PeerStatus
}

// NewMemoryStore creates a store with n zeroed records. Streak start
// times are stamped with the current time.
func NewMemoryStore(n int) *MemoryStore {
	s := &MemoryStore{records: make([]memoryRecord, n)}
	now := time.Now()
	for i := range s.records {
		s.records[i].status.Since = now
	}
	return s
}

// Acquire implements StatusStore.
func (s *MemoryStore) Acquire(_ context.Context, index int, workerID string, staleAfter time.Duration) (bool, error) {
	rec, err := s.record(index)
	if err != nil {
		return false, err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	switch {
	case rec.status.Owner == workerID:
		return true, nil
	case rec.status.Owner == "" || time.Since(rec.status.ActionTime) >= staleAfter:
		rec.status.Owner = workerID
		rec.status.ActionTime = time.Now()
		return true, nil
	default:
		return false, nil
	}
}

// Update implements StatusStore.
func (s *MemoryStore) Update(_ context.Context, index int, workerID string, fn func(*PeerStatus)) error {
	rec, err := s.record(index)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	if rec.status.Owner != workerID {
		rec.mu.Unlock()
		return ErrNotOwner
	}
	fn(&rec.status)
	updated := rec.status
	rec.mu.Unlock()

	s.notify(StatusEvent{Index: index, Status: updated})
	return nil
}

// Get implements StatusStore.
func (s *MemoryStore) Get(_ context.Context, index int) (PeerStatus, error) {
	rec, err := s.record(index)
	if err != nil {
		return PeerStatus{}, err
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.status, nil
}

// Watch implements StatusStore.
func (s *MemoryStore) Watch(ctx context.Context) (<-chan StatusEvent, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrStoreClosed
	}
	ch := make(chan StatusEvent, 64)
	s.watchers = append(s.watchers, ch)
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.dropWatcher(ch)
	}()
	return ch, nil
}

// Close implements StatusStore.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	for _, ch := range s.watchers {
		close(ch)
	}
	s.watchers = nil
	return nil
}

func (s *MemoryStore) record(index int) (*memoryRecord, error) {
	if index < 0 || index >= len(s.records) {
		return nil, ErrUnknownPeer
	}
	return &s.records[index], nil
}

func (s *MemoryStore) notify(ev StatusEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.watchers {
		// A stalled watcher drops events rather than blocking the
		// verdict path.
		select {
		case ch <- ev:
		default:
		}
	}
}

func (s *MemoryStore) dropWatcher(ch chan StatusEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for i, w := range s.watchers {
		if w == ch {
			s.watchers = append(s.watchers[:i], s.watchers[i+1:]...)
			close(w)
			return
		}
	}
}
