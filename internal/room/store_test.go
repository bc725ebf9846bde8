package room

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/park285/battlehub/internal/domain"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newRoom(id, owner string) *domain.Room {
	now := time.Now().UTC()
	return &domain.Room{
		RoomID:    id,
		OwnerID:   owner,
		Players:   []domain.Player{{ID: owner, Username: owner, JoinedAt: now}},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestMemoryStore_TTLAndSweep(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	s := NewMemoryStore(time.Hour, 0, WithClock(clock.Now))
	defer s.Close()
	ctx := context.Background()

	if ok, err := s.Create(ctx, newRoom("a", "u1")); !ok || err != nil {
		t.Fatalf("create: ok=%v err=%v", ok, err)
	}
	if ok, _ := s.Create(ctx, newRoom("a", "u2")); ok {
		t.Fatalf("second create must not replace a live room")
	}

	clock.Advance(50 * time.Minute)
	if _, err := s.Get(ctx, "a"); err != nil {
		t.Fatalf("get before expiry: %v", err)
	}
	// the read above refreshed the deadline
	clock.Advance(50 * time.Minute)
	r, err := s.Get(ctx, "a")
	if err != nil || r.OwnerID != "u1" {
		t.Fatalf("get after refresh: r=%+v err=%v", r, err)
	}

	clock.Advance(61 * time.Minute)
	if _, err := s.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired room: %v", err)
	}
	if ok, _ := s.Create(ctx, newRoom("a", "u2")); !ok {
		t.Fatalf("create over expired room should succeed")
	}

	s.Create(ctx, newRoom("b", "u3"))
	clock.Advance(2 * time.Hour)
	n, err := s.Sweep(ctx, clock.Now())
	if err != nil || n != 2 || s.Len() != 0 {
		t.Fatalf("sweep: n=%d err=%v len=%d", n, err, s.Len())
	}
}

func TestMemoryStore_UpdateIsolation(t *testing.T) {
	s := NewMemoryStore(time.Hour, 0)
	defer s.Close()
	ctx := context.Background()
	s.Create(ctx, newRoom("a", "u1"))

	boom := errors.New("boom")
	if _, err := s.Update(ctx, "a", func(r *domain.Room) error {
		r.Started = true
		return boom
	}); !errors.Is(err, boom) {
		t.Fatalf("mutator error must surface: %v", err)
	}
	r, _ := s.Get(ctx, "a")
	if r.Started {
		t.Fatalf("aborted mutation leaked into the store")
	}

	r.Players = nil
	again, _ := s.Get(ctx, "a")
	if len(again.Players) != 1 {
		t.Fatalf("returned room must be a copy")
	}

	if _, err := s.Update(ctx, "a", func(*domain.Room) error { return errDeleteRoom }); err != nil {
		t.Fatalf("delete via mutator: %v", err)
	}
	if _, err := s.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("room should be deleted: %v", err)
	}
}

func TestMemoryStore_SweepLoop(t *testing.T) {
	s := NewMemoryStore(10*time.Millisecond, 5*time.Millisecond)
	defer s.Close()
	s.Create(context.Background(), newRoom("a", "u1"))
	deadline := time.Now().Add(2 * time.Second)
	for s.Len() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("sweep loop never evicted the room")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func newTestRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb, err := NewRedisClient("redis://" + mr.Addr() + "/0")
	if err != nil {
		t.Fatalf("NewRedisClient: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, time.Hour), mr
}

func TestRedisStore_TTL(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()

	if ok, err := s.Create(ctx, newRoom("a", "u1")); !ok || err != nil {
		t.Fatalf("create: ok=%v err=%v", ok, err)
	}
	if ttl := mr.TTL("battlehub:room:a"); ttl != time.Hour {
		t.Fatalf("ttl=%v", ttl)
	}

	mr.FastForward(30 * time.Minute)
	if _, err := s.Update(ctx, "a", func(r *domain.Room) error {
		r.Started = true
		return nil
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if ttl := mr.TTL("battlehub:room:a"); ttl != time.Hour {
		t.Fatalf("update must refresh ttl, got %v", ttl)
	}

	mr.FastForward(61 * time.Minute)
	if _, err := s.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired room: %v", err)
	}
	if _, err := s.Update(ctx, "a", func(*domain.Room) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update on expired room: %v", err)
	}
}

func TestRedisStore_DeleteViaMutator(t *testing.T) {
	s, mr := newTestRedisStore(t)
	ctx := context.Background()
	s.Create(ctx, newRoom("a", "u1"))
	if _, err := s.Update(ctx, "a", func(*domain.Room) error { return errDeleteRoom }); err != nil {
		t.Fatalf("update: %v", err)
	}
	if mr.Exists("battlehub:room:a") {
		t.Fatalf("key should be removed")
	}
}

func TestRedisStore_ConcurrentUpdates(t *testing.T) {
	s, _ := newTestRedisStore(t)
	ctx := context.Background()
	s.Create(ctx, newRoom("a", "u0"))

	const n = 6
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 1; i <= n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "u" + string(rune('0'+i))
			_, err := s.Update(ctx, "a", func(r *domain.Room) error {
				if r.HasPlayer(id) {
					return errUnchanged
				}
				r.Players = append(r.Players, domain.Player{ID: id})
				return nil
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("update: %v", err)
		}
	}
	r, _ := s.Get(ctx, "a")
	if len(r.Players) != n+1 {
		t.Fatalf("lost update: %d players", len(r.Players))
	}
}

func TestParseRedisURL(t *testing.T) {
	opts, err := parseRedisURL("redis://:pw@localhost:6380/2")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if opts.Addr != "localhost:6380" || opts.DB != 2 || opts.Password != "pw" {
		t.Fatalf("opts=%+v", opts)
	}
	if _, err := parseRedisURL(""); err == nil {
		t.Fatalf("empty url should fail")
	}
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("BATTLEHUB_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("BATTLEHUB_TEST_DATABASE_URL not set")
	}
	db, err := OpenPostgres(dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	ctx := context.Background()
	s := NewPostgresStore(db, time.Hour)
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("schema: %v", err)
	}
	id := "pgtest-" + time.Now().Format("150405.000000")
	t.Cleanup(func() { _ = s.Delete(context.Background(), id) })

	m := NewManager(s, nil, Config{})
	if res, err := m.JoinOrCreate(ctx, id, alice); err != nil || !res.Created {
		t.Fatalf("create: res=%+v err=%v", res, err)
	}
	if res, err := m.JoinOrCreate(ctx, id, bob); err != nil || res.Created || len(res.Room.Players) != 2 {
		t.Fatalf("join: res=%+v err=%v", res, err)
	}
	if _, err := m.SelectChallenge(ctx, id, bob, day(2)); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-owner select: %v", err)
	}
	r, err := m.SubmitScore(ctx, id, bob, 42)
	if err != nil || *r.Players[r.PlayerIndex(bob.ID)].Score != 42 {
		t.Fatalf("score: r=%+v err=%v", r, err)
	}

	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := s.Get(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired row should read as absent: %v", err)
	}
	n, err := s.Sweep(ctx, time.Now().Add(2*time.Hour))
	if err != nil || n < 1 {
		t.Fatalf("sweep: n=%d err=%v", n, err)
	}
}
