package room

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/park285/battlehub/internal/domain"
	"github.com/park285/battlehub/internal/notify"
	"github.com/park285/battlehub/internal/obslog"
	"go.uber.org/zap"
)

const (
	DefaultMinPlayersToStart = 2
	maxRoomIDLen             = 128
	maxImageLen              = 512
	joinAttempts             = 3
)

// Caller is the resolved identity behind a request.
type Caller struct {
	ID       string
	Username string
}

type Config struct {
	MinPlayersToStart int
}

type JoinResult struct {
	Room    *domain.Room
	Created bool
	IsHost  bool
}

type LeaveResult struct {
	Room    *domain.Room
	Deleted bool
}

// Manager applies the room state machine on top of a Store. It is the only
// writer of rooms; every mutation goes through Store.Create or Store.Update.
type Manager struct {
	store Store
	pub   notify.Publisher
	cfg   Config
	now   func() time.Time
}

func NewManager(store Store, pub notify.Publisher, cfg Config) *Manager {
	if pub == nil {
		pub = notify.Nop{}
	}
	if cfg.MinPlayersToStart <= 0 {
		cfg.MinPlayersToStart = DefaultMinPlayersToStart
	}
	return &Manager{store: store, pub: pub, cfg: cfg, now: time.Now}
}

// JoinOrCreate creates the room with the caller as owner, or adds the caller to
// an existing roster. Repeated joins are no-ops.
func (m *Manager) JoinOrCreate(ctx context.Context, roomID string, caller Caller) (*JoinResult, error) {
	roomID, err := normalizeRoomID(roomID)
	if err != nil {
		return nil, err
	}
	caller, err = normalizeCaller(caller)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < joinAttempts; attempt++ {
		now := m.now().UTC()
		fresh := &domain.Room{
			RoomID:    roomID,
			OwnerID:   caller.ID,
			Players:   []domain.Player{{ID: caller.ID, Username: caller.Username, JoinedAt: now}},
			CreatedAt: now,
			UpdatedAt: now,
		}
		created, err := m.store.Create(ctx, fresh)
		if err != nil {
			obslog.L().Error("room_create_error", zap.String("room_id", roomID), zap.String("user_id", caller.ID), zap.Error(err))
			return nil, err
		}
		if created {
			obslog.L().Info("room_create", zap.String("room_id", roomID), zap.String("owner_id", caller.ID))
			m.publish(ctx, notify.EventRoomCreated, fresh)
			return &JoinResult{Room: fresh, Created: true, IsHost: true}, nil
		}

		joined := false
		r, err := m.store.Update(ctx, roomID, func(r *domain.Room) error {
			joined = false
			if r.HasPlayer(caller.ID) {
				return errUnchanged
			}
			r.Players = append(r.Players, domain.Player{ID: caller.ID, Username: caller.Username, JoinedAt: now})
			r.UpdatedAt = now
			joined = true
			return nil
		})
		if errors.Is(err, ErrNotFound) {
			// expired or left-empty between Create and Update; try creating again
			continue
		}
		if err != nil {
			obslog.L().Error("room_join_error", zap.String("room_id", roomID), zap.String("user_id", caller.ID), zap.Error(err))
			return nil, err
		}
		if joined {
			obslog.L().Info("room_join", zap.String("room_id", roomID), zap.String("user_id", caller.ID), zap.Int("players", len(r.Players)))
			m.publish(ctx, notify.EventPlayerJoined, r)
		}
		return &JoinResult{Room: r, IsHost: r.OwnerID == caller.ID}, nil
	}
	return nil, ErrConflict
}

// SelectChallenge sets the challenge and starts the room. Only the owner may
// call it; once started the call is a no-op that returns the current state.
func (m *Manager) SelectChallenge(ctx context.Context, roomID string, caller Caller, ch domain.Challenge) (*domain.Room, error) {
	roomID, err := normalizeRoomID(roomID)
	if err != nil {
		return nil, err
	}
	if caller, err = normalizeCaller(caller); err != nil {
		return nil, err
	}
	if ch, err = normalizeChallenge(ch); err != nil {
		return nil, err
	}

	now := m.now().UTC()
	changed := false
	r, err := m.store.Update(ctx, roomID, func(r *domain.Room) error {
		changed = false
		if r.OwnerID != caller.ID {
			return ErrForbidden
		}
		if r.Started {
			return errUnchanged
		}
		startRoom(r, ch, now)
		changed = true
		return nil
	})
	if err != nil {
		m.logMutationError("room_select_error", roomID, caller.ID, err)
		return nil, err
	}
	if changed {
		obslog.L().Info("room_select", zap.String("room_id", roomID), zap.Int("day", ch.Day), zap.String("image", ch.Image))
		m.publish(ctx, notify.EventRoomStarted, r)
	}
	return r, nil
}

// Start flips started for a room whose owner calls it. A challenge payload acts
// like SelectChallenge; without one the room must already have a challenge.
func (m *Manager) Start(ctx context.Context, roomID string, caller Caller, ch *domain.Challenge) (*domain.Room, error) {
	roomID, err := normalizeRoomID(roomID)
	if err != nil {
		return nil, err
	}
	if caller, err = normalizeCaller(caller); err != nil {
		return nil, err
	}
	if ch != nil {
		norm, err := normalizeChallenge(*ch)
		if err != nil {
			return nil, err
		}
		ch = &norm
	}

	now := m.now().UTC()
	changed := false
	r, err := m.store.Update(ctx, roomID, func(r *domain.Room) error {
		changed = false
		if r.OwnerID != caller.ID {
			return ErrForbidden
		}
		if r.Started {
			return errUnchanged
		}
		if len(r.Players) < m.cfg.MinPlayersToStart {
			return fmt.Errorf("%w: need at least %d players, have %d", ErrInvalidState, m.cfg.MinPlayersToStart, len(r.Players))
		}
		target := r.Challenge
		if target == nil {
			if ch == nil {
				return fmt.Errorf("%w: no challenge selected", ErrInvalidState)
			}
			target = ch
		}
		startRoom(r, *target, now)
		changed = true
		return nil
	})
	if err != nil {
		m.logMutationError("room_start_error", roomID, caller.ID, err)
		return nil, err
	}
	if changed {
		obslog.L().Info("room_start", zap.String("room_id", roomID), zap.Int("players", len(r.Players)))
		m.publish(ctx, notify.EventRoomStarted, r)
	}
	return r, nil
}

// SubmitScore records the caller's latest score, adding the caller to the
// roster when the join was missed.
func (m *Manager) SubmitScore(ctx context.Context, roomID string, caller Caller, score float64) (*domain.Room, error) {
	roomID, err := normalizeRoomID(roomID)
	if err != nil {
		return nil, err
	}
	if caller, err = normalizeCaller(caller); err != nil {
		return nil, err
	}
	if err := ValidateScore(score); err != nil {
		return nil, err
	}

	now := m.now().UTC()
	r, err := m.store.Update(ctx, roomID, func(r *domain.Room) error {
		s := score
		if i := r.PlayerIndex(caller.ID); i >= 0 {
			r.Players[i].Score = &s
		} else {
			r.Players = append(r.Players, domain.Player{ID: caller.ID, Username: caller.Username, JoinedAt: now, Score: &s})
		}
		r.UpdatedAt = now
		return nil
	})
	if err != nil {
		m.logMutationError("room_score_error", roomID, caller.ID, err)
		return nil, err
	}
	obslog.L().Info("room_score", zap.String("room_id", roomID), zap.String("user_id", caller.ID), zap.Float64("score", score))
	m.publish(ctx, notify.EventScoreSubmitted, r)
	return r, nil
}

func (m *Manager) Get(ctx context.Context, roomID string) (*domain.Room, error) {
	roomID, err := normalizeRoomID(roomID)
	if err != nil {
		return nil, err
	}
	return m.store.Get(ctx, roomID)
}

// Leave removes the caller from the roster and deletes the room once empty.
// The owner id is kept even when the owner leaves.
func (m *Manager) Leave(ctx context.Context, roomID string, caller Caller) (*LeaveResult, error) {
	roomID, err := normalizeRoomID(roomID)
	if err != nil {
		return nil, err
	}
	if caller, err = normalizeCaller(caller); err != nil {
		return nil, err
	}

	now := m.now().UTC()
	left, deleted := false, false
	r, err := m.store.Update(ctx, roomID, func(r *domain.Room) error {
		// the store may rerun this on a write conflict
		left, deleted = false, false
		i := r.PlayerIndex(caller.ID)
		if i < 0 {
			return errUnchanged
		}
		r.Players = append(r.Players[:i], r.Players[i+1:]...)
		r.UpdatedAt = now
		left = true
		if len(r.Players) == 0 {
			deleted = true
			return errDeleteRoom
		}
		return nil
	})
	if err != nil {
		m.logMutationError("room_leave_error", roomID, caller.ID, err)
		return nil, err
	}
	switch {
	case deleted:
		obslog.L().Info("room_delete", zap.String("room_id", roomID), zap.String("reason", "empty"))
		m.publish(ctx, notify.EventRoomDeleted, r)
	case left:
		obslog.L().Info("room_leave", zap.String("room_id", roomID), zap.String("user_id", caller.ID))
		m.publish(ctx, notify.EventPlayerLeft, r)
	}
	return &LeaveResult{Room: r, Deleted: deleted}, nil
}

// Sweep evicts expired rooms from the backing store.
func (m *Manager) Sweep(ctx context.Context) (int, error) {
	return m.store.Sweep(ctx, m.now())
}

// RunReaper sweeps on every tick until ctx is done.
func (m *Manager) RunReaper(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = DefaultSweepInterval
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := m.Sweep(ctx)
			if err != nil {
				obslog.L().Warn("room_reap_error", zap.Error(err))
				continue
			}
			if n > 0 {
				obslog.L().Info("room_reap", zap.Int("evicted", n))
			}
		}
	}
}

func (m *Manager) publish(ctx context.Context, t notify.EventType, r *domain.Room) {
	if r == nil {
		return
	}
	if err := m.pub.Publish(ctx, notify.NewEvent(t, r.RoomID, r)); err != nil {
		obslog.L().Warn("room_publish_error", zap.String("room_id", r.RoomID), zap.String("type", string(t)), zap.Error(err))
	}
}

func (m *Manager) logMutationError(event, roomID, userID string, err error) {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrForbidden), errors.Is(err, ErrInvalidState):
		obslog.L().Info(event, zap.String("room_id", roomID), zap.String("user_id", userID), zap.Error(err))
	default:
		obslog.L().Error(event, zap.String("room_id", roomID), zap.String("user_id", userID), zap.Error(err))
	}
}

func startRoom(r *domain.Room, ch domain.Challenge, now time.Time) {
	c := ch
	r.Challenge = &c
	r.Started = true
	r.StartedAt = &now
	r.UpdatedAt = now
}

// ValidateScore accepts finite percentages in [0, 100].
func ValidateScore(score float64) error {
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return invalid("score", "must be a finite number")
	}
	if score < 0 || score > 100 {
		return invalid("score", "must be between 0 and 100")
	}
	return nil
}

func normalizeRoomID(roomID string) (string, error) {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return "", invalid("roomId", "required")
	}
	if utf8.RuneCountInString(roomID) > maxRoomIDLen {
		return "", invalid("roomId", "too long")
	}
	return roomID, nil
}

func normalizeCaller(c Caller) (Caller, error) {
	c.ID = strings.TrimSpace(c.ID)
	if c.ID == "" {
		return c, ErrUnauthorized
	}
	c.Username = strings.TrimSpace(c.Username)
	if c.Username == "" {
		c.Username = FallbackUsername(c.ID)
	}
	return c, nil
}

// FallbackUsername mirrors the display name shown for users without a profile.
func FallbackUsername(id string) string {
	id = strings.TrimSpace(id)
	if len(id) > 4 {
		id = id[len(id)-4:]
	}
	return "user-" + id
}

func normalizeChallenge(ch domain.Challenge) (domain.Challenge, error) {
	ch.Image = strings.TrimSpace(ch.Image)
	if ch.Day < 1 || ch.Day > 31 {
		return ch, invalid("day", "must be between 1 and 31")
	}
	if ch.Month < 0 || ch.Month > 12 {
		return ch, invalid("month", "must be between 1 and 12")
	}
	if ch.Image == "" {
		return ch, invalid("image", "required")
	}
	if len(ch.Image) > maxImageLen {
		return ch, invalid("image", "too long")
	}
	return ch, nil
}
