package room

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/park285/battlehub/internal/domain"
	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 16

// RedisStore keeps each room as a JSON document under room:<id> with a TTL.
// Creation uses SETNX, updates run inside WATCH/MULTI and retry on conflict.
type RedisStore struct {
	rdb    *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl, prefix: "battlehub:room:"}
}

func (s *RedisStore) keyRoom(id string) string { return s.prefix + strings.TrimSpace(id) }

func (s *RedisStore) Create(ctx context.Context, r *domain.Room) (bool, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return false, err
	}
	ok, err := s.rdb.SetNX(ctx, s.keyRoom(r.RoomID), raw, s.ttl).Result()
	if err != nil {
		return false, err
	}
	if !ok {
		// refresh ttl on the existing room
		_ = s.rdb.Expire(ctx, s.keyRoom(r.RoomID), s.ttl).Err()
	}
	return ok, nil
}

func (s *RedisStore) Get(ctx context.Context, roomID string) (*domain.Room, error) {
	raw, err := s.rdb.Get(ctx, s.keyRoom(roomID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var r domain.Room
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode room %s: %w", roomID, err)
	}
	return &r, nil
}

func (s *RedisStore) Update(ctx context.Context, roomID string, fn Mutator) (*domain.Room, error) {
	key := s.keyRoom(roomID)
	var out *domain.Room
	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err == redis.Nil {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var cur domain.Room
		if err := json.Unmarshal(raw, &cur); err != nil {
			return fmt.Errorf("decode room %s: %w", roomID, err)
		}
		write, del, err := applyMutator(&cur, fn)
		if err != nil {
			return err
		}
		out = &cur
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			switch {
			case del:
				pipe.Del(ctx, key)
			case write:
				next, merr := json.Marshal(&cur)
				if merr != nil {
					return merr
				}
				pipe.Set(ctx, key, next, s.ttl)
			default:
				pipe.Expire(ctx, key, s.ttl)
			}
			return nil
		})
		return err
	}
	for i := 0; i < maxTxRetries; i++ {
		err := s.rdb.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, ErrConflict
}

func (s *RedisStore) Delete(ctx context.Context, roomID string) error {
	return s.rdb.Del(ctx, s.keyRoom(roomID)).Err()
}

// Sweep is a no-op: Redis expires room keys natively.
func (s *RedisStore) Sweep(ctx context.Context, now time.Time) (int, error) { return 0, nil }

func (s *RedisStore) Close() error { return nil }

// NewRedisClient connects to REDIS_URL and verifies the connection.
func NewRedisClient(redisURL string) (*redis.Client, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required for redis backend")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Username: u.User.Username(), Password: pass, DB: db}, nil
}
