package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/park285/battlehub/internal/obslog"
	"go.uber.org/zap"
)

var (
	ErrQueueFull = errors.New("notify queue full")
	ErrClosed    = errors.New("notify dispatcher closed")
)

// Dispatcher decouples publishing from the request path: Publish only enqueues,
// a single worker forwards events to next in order.
type Dispatcher struct {
	next    Publisher
	queue   chan Event
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	dropped atomic.Uint64
}

func NewDispatcher(next Publisher, buffer int, timeout time.Duration) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	d := &Dispatcher{next: next, queue: make(chan Event, buffer), timeout: timeout}
	d.wg.Add(1)
	go d.run()
	return d
}

func (d *Dispatcher) Publish(_ context.Context, ev Event) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrClosed
	}
	select {
	case d.queue <- ev:
		return nil
	default:
		d.dropped.Add(1)
		return ErrQueueFull
	}
}

// Dropped reports how many events were discarded because the queue was full.
func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

// Close stops accepting events and waits for queued ones to drain.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
	return nil
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for ev := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := d.next.Publish(ctx, ev)
		cancel()
		if err != nil {
			obslog.L().Warn("notify_publish_error",
				zap.String("event_id", ev.ID),
				zap.String("type", string(ev.Type)),
				zap.String("room_id", ev.RoomID),
				zap.Error(err),
			)
		}
	}
}
