// Package app wires stores, notifiers and the HTTP API from an AppConfig.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/park285/battlehub/internal/auth"
	"github.com/park285/battlehub/internal/config"
	"github.com/park285/battlehub/internal/httpapi"
	"github.com/park285/battlehub/internal/msgcat"
	"github.com/park285/battlehub/internal/notify"
	"github.com/park285/battlehub/internal/obslog"
	"github.com/park285/battlehub/internal/room"
	"github.com/park285/battlehub/internal/scores"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Deps struct {
	Config *config.AppConfig
	Rooms  *room.Manager
	Store  room.Store
	Scores *scores.Service
	Hub    *notify.Hub
	API    *httpapi.Server

	rdb        *redis.Client
	db         *sql.DB
	bus        *notify.RedisBus
	dispatcher *notify.Dispatcher
	// reap is set for backends without native expiry.
	reap bool

	wg sync.WaitGroup
}

func New(ctx context.Context, cfg *config.AppConfig) (*Deps, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	d := &Deps{Config: cfg, Hub: notify.NewHub()}
	ok := false
	defer func() {
		if !ok {
			_ = d.Close()
		}
	}()

	if err := d.openStore(ctx); err != nil {
		return nil, err
	}
	if err := d.openScores(ctx); err != nil {
		return nil, err
	}
	pub, err := d.buildPublisher()
	if err != nil {
		return nil, err
	}
	d.Rooms = room.NewManager(d.Store, pub, room.Config{MinPlayersToStart: cfg.MinPlayersToStart})

	msgs, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	d.API = httpapi.New(httpapi.Deps{
		Rooms:       d.Rooms,
		Scores:      d.Scores,
		Auth:        auth.NewJWTResolver(cfg.JWTSecret),
		Hub:         d.Hub,
		Messages:    msgs,
		CORSOrigins: cfg.CORSOrigins,
		Health:      d.health,
	})
	ok = true
	return d, nil
}

func (d *Deps) redisClient() (*redis.Client, error) {
	if d.rdb != nil {
		return d.rdb, nil
	}
	rdb, err := room.NewRedisClient(d.Config.RedisURL)
	if err != nil {
		return nil, err
	}
	d.rdb = rdb
	return rdb, nil
}

func (d *Deps) postgres() (*sql.DB, error) {
	if d.db != nil {
		return d.db, nil
	}
	db, err := room.OpenPostgres(d.Config.DatabaseURL)
	if err != nil {
		return nil, err
	}
	d.db = db
	return db, nil
}

func (d *Deps) openStore(ctx context.Context) error {
	cfg := d.Config
	switch cfg.StoreBackend {
	case config.BackendRedis:
		rdb, err := d.redisClient()
		if err != nil {
			return fmt.Errorf("init redis store: %w", err)
		}
		d.Store = room.NewRedisStore(rdb, cfg.RoomTTL)
	case config.BackendPostgres:
		db, err := d.postgres()
		if err != nil {
			return fmt.Errorf("init postgres store: %w", err)
		}
		ps := room.NewPostgresStore(db, cfg.RoomTTL)
		if err := ps.EnsureSchema(ctx); err != nil {
			return err
		}
		d.Store = ps
		d.reap = true
	default:
		d.Store = room.NewMemoryStore(cfg.RoomTTL, cfg.SweepInterval)
	}
	obslog.L().Info("room_store_ready", zap.String("backend", cfg.StoreBackend), zap.Duration("ttl", cfg.RoomTTL))
	return nil
}

func (d *Deps) openScores(ctx context.Context) error {
	if d.Config.ScoreBackend != config.BackendPostgres {
		d.Scores = scores.NewService(scores.NewMemoryRepository())
		return nil
	}
	db, err := d.postgres()
	if err != nil {
		return fmt.Errorf("init score repository: %w", err)
	}
	repo := scores.NewPostgresRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return err
	}
	d.Scores = scores.NewService(repo)
	return nil
}

// buildPublisher returns the async publisher handed to the room manager.
// In redis mode the local Hub is fed by the bus subscriber started in Start.
func (d *Deps) buildPublisher() (notify.Publisher, error) {
	cfg := d.Config
	var sinks notify.Multi
	switch cfg.NotifyMode {
	case config.NotifyRedis:
		rdb, err := d.redisClient()
		if err != nil {
			return nil, fmt.Errorf("init event bus: %w", err)
		}
		d.bus = notify.NewRedisBus(rdb, notify.DefaultChannel)
		sinks = append(sinks, d.bus)
	case config.NotifyLocal:
		sinks = append(sinks, d.Hub)
	}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, notify.NewWebhook(cfg.WebhookURL, notify.WithWebhookTimeout(cfg.WebhookTimeout)))
	}
	if len(sinks) == 0 {
		return notify.Nop{}, nil
	}
	d.dispatcher = notify.NewDispatcher(sinks, 256, cfg.WebhookTimeout)
	return d.dispatcher, nil
}

// Start launches background loops (event bus relay, expiry reaper) until ctx ends.
func (d *Deps) Start(ctx context.Context) {
	if d.bus != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.bus.Run(ctx, d.Hub, nil); err != nil {
				obslog.L().Error("notify_bus_stopped", zap.Error(err))
			}
		}()
	}
	if d.reap {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.Rooms.RunReaper(ctx, d.Config.SweepInterval)
		}()
	}
}

func (d *Deps) Handler() http.Handler { return d.API.Handler() }

func (d *Deps) health(r *http.Request) error {
	if d.rdb != nil {
		if err := d.rdb.Ping(r.Context()).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if d.db != nil {
		if err := d.db.PingContext(r.Context()); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	return nil
}

// Close waits for background loops (their ctx must be cancelled first),
// drains pending events and releases connections.
func (d *Deps) Close() error {
	d.wg.Wait()
	var errs []error
	if d.dispatcher != nil {
		errs = append(errs, d.dispatcher.Close())
	}
	if d.Store != nil {
		errs = append(errs, d.Store.Close())
	}
	if d.rdb != nil {
		errs = append(errs, d.rdb.Close())
	}
	if d.db != nil {
		errs = append(errs, d.db.Close())
	}
	return errors.Join(errs...)
}
