package room

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/park285/battlehub/internal/domain"
	"github.com/park285/battlehub/internal/obslog"
	"go.uber.org/zap"
)

type memEntry struct {
	room      *domain.Room
	expiresAt time.Time
}

// MemoryStore keeps rooms in process. Single-instance deployments only.
// Reads and writes extend a room's expiry; a background sweep evicts the rest.
type MemoryStore struct {
	mu    sync.Mutex
	rooms map[string]*memEntry
	ttl   time.Duration
	now   func() time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

type MemoryOption func(*MemoryStore)

func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore starts the sweep loop when sweepEvery > 0; Close stops it.
func NewMemoryStore(ttl, sweepEvery time.Duration, opts ...MemoryOption) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &MemoryStore{
		rooms:  make(map[string]*memEntry),
		ttl:    ttl,
		now:    time.Now,
		stopCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if sweepEvery > 0 {
		s.wg.Add(1)
		go s.sweepLoop(sweepEvery)
	}
	return s
}

func (s *MemoryStore) key(id string) string { return strings.TrimSpace(id) }

func (s *MemoryStore) Create(ctx context.Context, r *domain.Room) (bool, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.key(r.RoomID)
	if e, ok := s.rooms[k]; ok && e.expiresAt.After(now) {
		e.expiresAt = now.Add(s.ttl)
		return false, nil
	}
	s.rooms[k] = &memEntry{room: r.Clone(), expiresAt: now.Add(s.ttl)}
	return true, nil
}

func (s *MemoryStore) Get(ctx context.Context, roomID string) (*domain.Room, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(s.key(roomID), now)
	if !ok {
		return nil, ErrNotFound
	}
	e.expiresAt = now.Add(s.ttl)
	return e.room.Clone(), nil
}

func (s *MemoryStore) Update(ctx context.Context, roomID string, fn Mutator) (*domain.Room, error) {
	now := s.now()
	k := s.key(roomID)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(k, now)
	if !ok {
		return nil, ErrNotFound
	}
	cur := e.room.Clone()
	write, del, err := applyMutator(cur, fn)
	if err != nil {
		return nil, err
	}
	switch {
	case del:
		delete(s.rooms, k)
	case write:
		e.room = cur.Clone()
		e.expiresAt = now.Add(s.ttl)
	default:
		e.expiresAt = now.Add(s.ttl)
	}
	return cur, nil
}

func (s *MemoryStore) Delete(ctx context.Context, roomID string) error {
	s.mu.Lock()
	delete(s.rooms, s.key(roomID))
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, e := range s.rooms {
		if !e.expiresAt.After(now) {
			delete(s.rooms, k)
			n++
		}
	}
	return n, nil
}

// Len reports the number of stored rooms, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
	return nil
}

// live must be called with mu held.
func (s *MemoryStore) live(k string, now time.Time) (*memEntry, bool) {
	e, ok := s.rooms[k]
	if !ok {
		return nil, false
	}
	if !e.expiresAt.After(now) {
		delete(s.rooms, k)
		return nil, false
	}
	return e, true
}

func (s *MemoryStore) sweepLoop(every time.Duration) {
	defer s.wg.Done()
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-t.C:
			if n, _ := s.Sweep(context.Background(), s.now()); n > 0 {
				obslog.L().Info("room_sweep", zap.String("backend", "memory"), zap.Int("evicted", n))
			}
		}
	}
}
