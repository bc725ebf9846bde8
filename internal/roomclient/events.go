package roomclient

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/park285/battlehub/internal/notify"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type StreamState string

const (
	StateDisconnected StreamState = "disconnected"
	StateConnecting   StreamState = "connecting"
	StateConnected    StreamState = "connected"
	StateReconnecting StreamState = "reconnecting"
	StateFailed       StreamState = "failed"
)

type EventHandler func(ev notify.Event)
type StateHandler func(s StreamState)

// EventStream follows /room/{id}/events and redials with backoff when the
// connection drops. Events missed while disconnected are not replayed.
type EventStream struct {
	url    string
	header http.Header

	mu      sync.Mutex
	conn    *websocket.Conn
	state   StreamState
	onEvent []EventHandler
	onState []StateHandler

	maxReconnects int
	pingInterval  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Events prepares a stream for roomID. Call Connect to start it.
func (c *Client) Events(roomID string, maxReconnects int) *EventStream {
	u := c.baseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	hdr := http.Header{}
	if c.token != "" {
		hdr.Set("Cookie", "token="+c.token)
	}
	return &EventStream{
		url:           u + roomPath(roomID, "/events"),
		header:        hdr,
		state:         StateDisconnected,
		maxReconnects: maxReconnects,
		pingInterval:  30 * time.Second,
	}
}

func (s *EventStream) OnEvent(h EventHandler) {
	s.mu.Lock()
	s.onEvent = append(s.onEvent, h)
	s.mu.Unlock()
}

func (s *EventStream) OnStateChange(h StateHandler) {
	s.mu.Lock()
	s.onState = append(s.onState, h)
	s.mu.Unlock()
}

func (s *EventStream) State() StreamState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connect dials once; failures after this point are retried in the background.
func (s *EventStream) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return nil
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	s.setState(StateConnecting)
	conn, err := s.dial(ctx)
	if err != nil {
		s.setState(StateFailed)
		return err
	}
	s.attach(conn)
	return nil
}

func (s *EventStream) dial(ctx context.Context) (*websocket.Conn, error) {
	dctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(dctx, s.url, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		HTTPHeader:      s.header,
	})
	return conn, err
}

func (s *EventStream) attach(conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.setState(StateConnected)

	connCtx, stop := context.WithCancel(s.ctx)
	s.wg.Add(2)
	go s.listen(connCtx, stop, conn)
	go s.pingLoop(connCtx, conn)
}

func (s *EventStream) listen(ctx context.Context, stop context.CancelFunc, conn *websocket.Conn) {
	defer s.wg.Done()
	defer stop()
	for {
		var ev notify.Event
		if err := wsjson.Read(ctx, conn, &ev); err != nil {
			_ = conn.Close(websocket.StatusGoingAway, "reconnect")
			if s.ctx.Err() != nil {
				return
			}
			s.setState(StateDisconnected)
			s.reconnect()
			return
		}
		s.mu.Lock()
		handlers := make([]EventHandler, len(s.onEvent))
		copy(handlers, s.onEvent)
		s.mu.Unlock()
		for _, h := range handlers {
			h(ev)
		}
	}
}

func (s *EventStream) pingLoop(ctx context.Context, conn *websocket.Conn) {
	defer s.wg.Done()
	t := time.NewTicker(s.pingInterval)
	defer t.Stop()
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := conn.Ping(pctx)
			cancel()
			if err == nil {
				failures = 0
				continue
			}
			failures++
			if failures >= 2 {
				// listen sees the closed conn and reconnects
				_ = conn.Close(websocket.StatusGoingAway, "ping failure")
				return
			}
		}
	}
}

func (s *EventStream) reconnect() {
	if s.maxReconnects <= 0 {
		s.setState(StateFailed)
		return
	}
	s.setState(StateReconnecting)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for attempt := 1; attempt <= s.maxReconnects; attempt++ {
			if err := sleepWithContext(s.ctx, backoffDuration(attempt)); err != nil {
				return
			}
			conn, err := s.dial(s.ctx)
			if err != nil {
				continue
			}
			s.attach(conn)
			return
		}
		s.setState(StateFailed)
	}()
}

func (s *EventStream) setState(st StreamState) {
	s.mu.Lock()
	s.state = st
	handlers := make([]StateHandler, len(s.onState))
	copy(handlers, s.onState)
	s.mu.Unlock()
	for _, h := range handlers {
		h(st)
	}
}

// Close stops the stream and waits for its goroutines, bounded by ctx.
func (s *EventStream) Close(ctx context.Context) error {
	s.mu.Lock()
	cancel, conn := s.cancel, s.conn
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "close")
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		s.setState(StateDisconnected)
		return nil
	}
}
