package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/park285/battlehub/internal/obslog"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultChannel = "battlehub:events"

// RedisBus relays events between instances over Redis pub/sub. Publish sends to
// the shared channel; Run delivers everything received to a local sink (the Hub).
type RedisBus struct {
	rdb     *redis.Client
	channel string
}

func NewRedisBus(rdb *redis.Client, channel string) *RedisBus {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBus{rdb: rdb, channel: channel}
}

func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

// Run blocks until ctx is done. ready, when non-nil, is closed once the
// subscription is confirmed.
func (b *RedisBus) Run(ctx context.Context, sink Publisher, ready chan<- struct{}) error {
	sub := b.rdb.Subscribe(ctx, b.channel)
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}
	if ready != nil {
		close(ready)
	}
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				obslog.L().Warn("notify_bus_decode_error", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			if err := sink.Publish(ctx, ev); err != nil {
				obslog.L().Warn("notify_bus_sink_error", zap.String("event_id", ev.ID), zap.Error(err))
			}
		}
	}
}
