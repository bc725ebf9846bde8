package room

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/park285/battlehub/internal/domain"
	"github.com/park285/battlehub/internal/notify"
	"github.com/redis/go-redis/v9"
)

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Publish(_ context.Context, ev notify.Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	return nil
}

func (r *recorder) types() []notify.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

type backend struct {
	name string
	open func(t *testing.T) Store
}

func backends() []backend {
	return []backend{
		{"memory", func(t *testing.T) Store {
			s := NewMemoryStore(time.Hour, 0)
			t.Cleanup(func() { _ = s.Close() })
			return s
		}},
		{"redis", func(t *testing.T) Store {
			mr, err := miniredis.Run()
			if err != nil {
				t.Fatalf("miniredis: %v", err)
			}
			t.Cleanup(mr.Close)
			rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
			t.Cleanup(func() { _ = rdb.Close() })
			return NewRedisStore(rdb, time.Hour)
		}},
	}
}

func eachBackend(t *testing.T, fn func(t *testing.T, m *Manager, rec *recorder)) {
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			rec := &recorder{}
			fn(t, NewManager(b.open(t), rec, Config{MinPlayersToStart: 2}), rec)
		})
	}
}

var (
	alice = Caller{ID: "user-a", Username: "alice"}
	bob   = Caller{ID: "user-b", Username: "bob"}
	carol = Caller{ID: "user-c"}
)

func day(d int) domain.Challenge { return domain.Challenge{Day: d, Image: fmt.Sprintf("day%d.png", d)} }

func TestJoinOrCreate(t *testing.T) {
	eachBackend(t, func(t *testing.T, m *Manager, rec *recorder) {
		ctx := context.Background()
		res, err := m.JoinOrCreate(ctx, "abcdef", alice)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if !res.Created || !res.IsHost || res.Room.OwnerID != alice.ID {
			t.Fatalf("unexpected create result: %+v", res)
		}

		res, err = m.JoinOrCreate(ctx, "abcdef", bob)
		if err != nil {
			t.Fatalf("join: %v", err)
		}
		if res.Created || res.IsHost || len(res.Room.Players) != 2 {
			t.Fatalf("unexpected join result: %+v", res)
		}

		// idempotent
		res, err = m.JoinOrCreate(ctx, "abcdef", bob)
		if err != nil || len(res.Room.Players) != 2 {
			t.Fatalf("rejoin: err=%v players=%d", err, len(res.Room.Players))
		}
		if got := rec.types(); len(got) != 2 || got[0] != notify.EventRoomCreated || got[1] != notify.EventPlayerJoined {
			t.Fatalf("events=%v", got)
		}

		res, err = m.JoinOrCreate(ctx, "other", carol)
		if err != nil {
			t.Fatalf("create other: %v", err)
		}
		if res.Room.Players[0].Username != "user-er-c" {
			t.Fatalf("fallback username=%q", res.Room.Players[0].Username)
		}
	})
}

func TestJoinOrCreate_Rejects(t *testing.T) {
	eachBackend(t, func(t *testing.T, m *Manager, _ *recorder) {
		ctx := context.Background()
		if _, err := m.JoinOrCreate(ctx, "   ", alice); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("blank id: %v", err)
		}
		if _, err := m.JoinOrCreate(ctx, "room", Caller{}); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("no caller: %v", err)
		}
	})
}

func TestJoinOrCreate_ConcurrentFirstJoin(t *testing.T) {
	eachBackend(t, func(t *testing.T, m *Manager, _ *recorder) {
		ctx := context.Background()
		const n = 8
		var (
			wg      sync.WaitGroup
			mu      sync.Mutex
			created int
			errs    []error
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				res, err := m.JoinOrCreate(ctx, "race", Caller{ID: fmt.Sprintf("racer-%d", i)})
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					errs = append(errs, err)
					return
				}
				if res.Created {
					created++
				}
			}(i)
		}
		wg.Wait()
		if len(errs) > 0 {
			t.Fatalf("join errors: %v", errs)
		}
		if created != 1 {
			t.Fatalf("exactly one caller must create the room, got %d", created)
		}
		r, err := m.Get(ctx, "race")
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if len(r.Players) != n {
			t.Fatalf("all racers must be present, got %d", len(r.Players))
		}
		if !r.HasPlayer(r.OwnerID) {
			t.Fatalf("owner %q missing from roster", r.OwnerID)
		}
	})
}

func TestSelectChallenge(t *testing.T) {
	eachBackend(t, func(t *testing.T, m *Manager, _ *recorder) {
		ctx := context.Background()
		m.JoinOrCreate(ctx, "abcdef", alice)
		m.JoinOrCreate(ctx, "abcdef", bob)

		if _, err := m.SelectChallenge(ctx, "abcdef", bob, day(7)); !errors.Is(err, ErrForbidden) {
			t.Fatalf("non-owner select: %v", err)
		}
		r, _ := m.Get(ctx, "abcdef")
		if r.Started || r.Challenge != nil {
			t.Fatalf("forbidden select must not mutate: %+v", r)
		}

		r, err := m.SelectChallenge(ctx, "abcdef", alice, day(7))
		if err != nil {
			t.Fatalf("select: %v", err)
		}
		if !r.Started || r.Challenge == nil || r.Challenge.Day != 7 || r.StartedAt == nil {
			t.Fatalf("room not started on day 7: %+v", r)
		}

		r, err = m.SelectChallenge(ctx, "abcdef", alice, day(9))
		if err != nil || r.Challenge.Day != 7 {
			t.Fatalf("second select must keep day 7: err=%v room=%+v", err, r)
		}

		if _, err := m.SelectChallenge(ctx, "abcdef", alice, domain.Challenge{Day: 32, Image: "x"}); !errors.Is(err, ErrInvalidInput) || InvalidField(err) != "day" {
			t.Fatalf("day 32: %v", err)
		}
		if _, err := m.SelectChallenge(ctx, "abcdef", alice, domain.Challenge{Day: 3}); InvalidField(err) != "image" {
			t.Fatalf("missing image: %v", err)
		}
		if _, err := m.SelectChallenge(ctx, "nope", alice, day(1)); !errors.Is(err, ErrNotFound) {
			t.Fatalf("unknown room: %v", err)
		}
	})
}

func TestStart(t *testing.T) {
	eachBackend(t, func(t *testing.T, m *Manager, rec *recorder) {
		ctx := context.Background()
		m.JoinOrCreate(ctx, "r", alice)

		if _, err := m.Start(ctx, "r", alice, nil); !errors.Is(err, ErrInvalidState) {
			t.Fatalf("start alone: %v", err)
		}
		m.JoinOrCreate(ctx, "r", bob)
		if _, err := m.Start(ctx, "r", bob, nil); !errors.Is(err, ErrForbidden) {
			t.Fatalf("non-owner start: %v", err)
		}
		if _, err := m.Start(ctx, "r", alice, nil); !errors.Is(err, ErrInvalidState) {
			t.Fatalf("start without challenge: %v", err)
		}
		ch := day(4)
		r, err := m.Start(ctx, "r", alice, &ch)
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		if !r.Started || r.Challenge.Day != 4 {
			t.Fatalf("not started: %+v", r)
		}
		other := day(5)
		r, err = m.Start(ctx, "r", alice, &other)
		if err != nil || r.Challenge.Day != 4 {
			t.Fatalf("restart must be a no-op: err=%v room=%+v", err, r)
		}
		started := 0
		for _, typ := range rec.types() {
			if typ == notify.EventRoomStarted {
				started++
			}
		}
		if started != 1 {
			t.Fatalf("expected one started event, got %d", started)
		}
	})
}

func TestSubmitScore(t *testing.T) {
	eachBackend(t, func(t *testing.T, m *Manager, _ *recorder) {
		ctx := context.Background()
		m.JoinOrCreate(ctx, "abcdef", alice)
		m.JoinOrCreate(ctx, "abcdef", bob)
		m.SelectChallenge(ctx, "abcdef", alice, day(7))

		if _, err := m.SubmitScore(ctx, "abcdef", bob, 57); err != nil {
			t.Fatalf("score 57: %v", err)
		}
		r, err := m.SubmitScore(ctx, "abcdef", bob, 89)
		if err != nil {
			t.Fatalf("score 89: %v", err)
		}
		if got := *r.Players[r.PlayerIndex(bob.ID)].Score; got != 89 {
			t.Fatalf("score not overwritten: %v", got)
		}
		if r.Completed() {
			t.Fatalf("alice has no score yet")
		}

		for _, bad := range []float64{-5, 150} {
			if _, err := m.SubmitScore(ctx, "abcdef", alice, bad); !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("score %v: %v", bad, err)
			}
		}
		r, _ = m.Get(ctx, "abcdef")
		if r.Players[r.PlayerIndex(alice.ID)].Score != nil {
			t.Fatalf("rejected score stored")
		}

		r, err = m.SubmitScore(ctx, "abcdef", alice, 100)
		if err != nil || !r.Completed() {
			t.Fatalf("expected completed room: err=%v room=%+v", err, r)
		}

		// a missed join is repaired by the score submission
		r, err = m.SubmitScore(ctx, "abcdef", carol, 12.5)
		if err != nil || !r.HasPlayer(carol.ID) || len(r.Players) != 3 {
			t.Fatalf("upsert: err=%v room=%+v", err, r)
		}
		if _, err := m.SubmitScore(ctx, "gone", alice, 10); !errors.Is(err, ErrNotFound) {
			t.Fatalf("unknown room: %v", err)
		}
	})
}

func TestLeave(t *testing.T) {
	eachBackend(t, func(t *testing.T, m *Manager, rec *recorder) {
		ctx := context.Background()
		m.JoinOrCreate(ctx, "r", alice)
		m.JoinOrCreate(ctx, "r", bob)

		res, err := m.Leave(ctx, "r", alice)
		if err != nil || res.Deleted {
			t.Fatalf("owner leave: err=%v res=%+v", err, res)
		}
		if res.Room.OwnerID != alice.ID || res.Room.HasPlayer(alice.ID) {
			t.Fatalf("owner id must persist after leaving: %+v", res.Room)
		}
		if _, err := m.SelectChallenge(ctx, "r", bob, day(1)); !errors.Is(err, ErrForbidden) {
			t.Fatalf("host authority must not transfer: %v", err)
		}

		res, err = m.Leave(ctx, "r", carol)
		if err != nil || res.Deleted || len(res.Room.Players) != 1 {
			t.Fatalf("non-member leave: err=%v res=%+v", err, res)
		}

		res, err = m.Leave(ctx, "r", bob)
		if err != nil || !res.Deleted {
			t.Fatalf("last leave: err=%v res=%+v", err, res)
		}
		if _, err := m.Get(ctx, "r"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("room should be deleted: %v", err)
		}
		types := rec.types()
		if types[len(types)-1] != notify.EventRoomDeleted {
			t.Fatalf("events=%v", types)
		}
	})
}

func TestGet_NotFound(t *testing.T) {
	eachBackend(t, func(t *testing.T, m *Manager, _ *recorder) {
		if _, err := m.Get(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
			t.Fatalf("want ErrNotFound, got %v", err)
		}
	})
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	store := NewMemoryStore(time.Hour, 0)
	defer store.Close()
	failing := notify.PublisherFunc(func(context.Context, notify.Event) error { return errors.New("down") })
	m := NewManager(store, failing, Config{})
	if _, err := m.JoinOrCreate(context.Background(), "r", alice); err != nil {
		t.Fatalf("join must succeed when publishing fails: %v", err)
	}
}
