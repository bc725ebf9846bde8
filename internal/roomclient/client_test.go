package roomclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/park285/battlehub/internal/auth"
	"github.com/park285/battlehub/internal/domain"
	"github.com/park285/battlehub/internal/httpapi"
	"github.com/park285/battlehub/internal/notify"
	"github.com/park285/battlehub/internal/room"
	"github.com/park285/battlehub/internal/scores"
)

type harness struct {
	url string
	jwt *auth.JWTResolver
	hub *notify.Hub
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := room.NewMemoryStore(time.Hour, 0)
	t.Cleanup(func() { _ = store.Close() })
	hub := notify.NewHub()
	jwt := auth.NewJWTResolver("client-secret")
	srv := httpapi.New(httpapi.Deps{
		Rooms:  room.NewManager(store, hub, room.Config{}),
		Scores: scores.NewService(scores.NewMemoryRepository()),
		Auth:   jwt,
		Hub:    hub,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &harness{url: ts.URL, jwt: jwt, hub: hub}
}

func (h *harness) client(t *testing.T, id string) *Client {
	t.Helper()
	tok, err := h.jwt.Issue(id, id, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return New(h.url, WithToken(tok), WithTimeout(3*time.Second))
}

func TestClientRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, b := h.client(t, "alice"), h.client(t, "bob")

	jr, err := a.Join(ctx, "abcdef")
	if err != nil || !jr.IsHost || jr.UserID != "alice" {
		t.Fatalf("join a: jr=%+v err=%v", jr, err)
	}
	if jr, err = b.Join(ctx, "abcdef"); err != nil || jr.IsHost {
		t.Fatalf("join b: jr=%+v err=%v", jr, err)
	}

	_, err = b.SelectChallenge(ctx, "abcdef", domain.Challenge{Day: 7, Image: "x"})
	if StatusOf(err) != http.StatusForbidden {
		t.Fatalf("non-owner select: %v", err)
	}
	r, err := a.Start(ctx, "abcdef", &domain.Challenge{Day: 7, Image: "day7.png"})
	if err != nil || !r.Started || r.Challenge.Day != 7 {
		t.Fatalf("start: r=%+v err=%v", r, err)
	}

	if r, err = b.SubmitScore(ctx, "abcdef", 57); err != nil {
		t.Fatalf("score: %v", err)
	}
	if _, err = b.SubmitScore(ctx, "abcdef", 150); StatusOf(err) != http.StatusBadRequest {
		t.Fatalf("invalid score: %v", err)
	}

	r, err = New(h.url).Get(ctx, "abcdef")
	if err != nil || *r.Players[r.PlayerIndex("bob")].Score != 57 {
		t.Fatalf("get: r=%+v err=%v", r, err)
	}
	if _, err := New(h.url).Get(ctx, "missing"); StatusOf(err) != http.StatusNotFound {
		t.Fatalf("missing room: %v", err)
	}

	lr, err := b.Leave(ctx, "abcdef")
	if err != nil || lr.Deleted {
		t.Fatalf("leave: lr=%+v err=%v", lr, err)
	}

	if err := a.SaveScore(ctx, 7, 91); err != nil {
		t.Fatalf("save score: %v", err)
	}
	list, err := a.Scores(ctx)
	if err != nil || len(list) != 1 || list[0].Score != 91 {
		t.Fatalf("scores: %v err=%v", list, err)
	}
	if err := New(h.url).Health(ctx); err != nil {
		t.Fatalf("health: %v", err)
	}
}

func TestEventStream(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, b := h.client(t, "alice"), h.client(t, "bob")
	if _, err := a.Join(ctx, "live"); err != nil {
		t.Fatalf("join: %v", err)
	}

	stream := a.Events("live", 0)
	got := make(chan notify.Event, 4)
	stream.OnEvent(func(ev notify.Event) { got <- ev })
	var (
		mu     sync.Mutex
		states []StreamState
	)
	stream.OnStateChange(func(s StreamState) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	})
	if err := stream.Connect(ctx); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if stream.State() != StateConnected {
		t.Fatalf("state=%s", stream.State())
	}

	deadline := time.Now().Add(2 * time.Second)
	for h.hub.Subscribers("live") == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("subscription never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := b.Join(ctx, "live"); err != nil {
		t.Fatalf("join b: %v", err)
	}
	select {
	case ev := <-got:
		if ev.Type != notify.EventPlayerJoined || len(ev.Room.Players) != 2 {
			t.Fatalf("event=%+v", ev)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no event received")
	}

	cctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := stream.Close(cctx); err != nil {
		t.Fatalf("close: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(states) < 2 || states[0] != StateConnecting || states[1] != StateConnected {
		t.Fatalf("states=%v", states)
	}
}
