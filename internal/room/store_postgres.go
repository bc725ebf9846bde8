package room

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	"github.com/park285/battlehub/internal/domain"
)

const roomSchema = `
CREATE TABLE IF NOT EXISTS battle_rooms (
	room_id    TEXT PRIMARY KEY,
	doc        JSONB NOT NULL,
	expires_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS battle_rooms_expires_at_idx ON battle_rooms (expires_at);`

// PostgresStore keeps each room as a JSONB document. Expired rows count as absent
// and are removed by Sweep.
type PostgresStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

func NewPostgresStore(db *sql.DB, ttl time.Duration) *PostgresStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &PostgresStore{db: db, ttl: ttl, now: time.Now}
}

// OpenPostgres opens DATABASE_URL with the pool settings used across the service.
func OpenPostgres(databaseURL string) (*sql.DB, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, roomSchema); err != nil {
		return fmt.Errorf("create battle_rooms: %w", err)
	}
	return nil
}

func (s *PostgresStore) Create(ctx context.Context, r *domain.Room) (bool, error) {
	doc, err := json.Marshal(r)
	if err != nil {
		return false, err
	}
	now := s.now()
	// an expired row that has not been swept yet is replaced in place
	const query = `
		INSERT INTO battle_rooms (room_id, doc, expires_at, updated_at)
		VALUES ($1, $2::jsonb, $3, $4)
		ON CONFLICT (room_id) DO UPDATE
			SET doc = EXCLUDED.doc, expires_at = EXCLUDED.expires_at, updated_at = EXCLUDED.updated_at
			WHERE battle_rooms.expires_at <= $4
		RETURNING room_id`
	var id string
	err = s.db.QueryRowContext(ctx, query, r.RoomID, doc, now.Add(s.ttl), now).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("insert room: %w", err)
	}
	return true, nil
}

func (s *PostgresStore) Get(ctx context.Context, roomID string) (*domain.Room, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM battle_rooms WHERE room_id = $1 AND expires_at > $2`,
		roomID, s.now(),
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select room: %w", err)
	}
	var r domain.Room
	if err := json.Unmarshal(doc, &r); err != nil {
		return nil, fmt.Errorf("decode room %s: %w", roomID, err)
	}
	return &r, nil
}

func (s *PostgresStore) Update(ctx context.Context, roomID string, fn Mutator) (*domain.Room, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := s.now()
	var doc []byte
	err = tx.QueryRowContext(ctx,
		`SELECT doc FROM battle_rooms WHERE room_id = $1 AND expires_at > $2 FOR UPDATE`,
		roomID, now,
	).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lock room: %w", err)
	}
	var cur domain.Room
	if err := json.Unmarshal(doc, &cur); err != nil {
		return nil, fmt.Errorf("decode room %s: %w", roomID, err)
	}

	write, del, err := applyMutator(&cur, fn)
	if err != nil {
		return nil, err
	}
	switch {
	case del:
		if _, err := tx.ExecContext(ctx, `DELETE FROM battle_rooms WHERE room_id = $1`, roomID); err != nil {
			return nil, fmt.Errorf("delete room: %w", err)
		}
	case write:
		next, err := json.Marshal(&cur)
		if err != nil {
			return nil, err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE battle_rooms SET doc = $2::jsonb, expires_at = $3, updated_at = $4 WHERE room_id = $1`,
			roomID, next, now.Add(s.ttl), now,
		); err != nil {
			return nil, fmt.Errorf("update room: %w", err)
		}
	default:
		if _, err := tx.ExecContext(ctx,
			`UPDATE battle_rooms SET expires_at = $2 WHERE room_id = $1`,
			roomID, now.Add(s.ttl),
		); err != nil {
			return nil, fmt.Errorf("touch room: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &cur, nil
}

func (s *PostgresStore) Delete(ctx context.Context, roomID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM battle_rooms WHERE room_id = $1`, roomID)
	return err
}

func (s *PostgresStore) Sweep(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM battle_rooms WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("sweep rooms: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close is a no-op; the *sql.DB is shared with other repositories and closed by its owner.
func (s *PostgresStore) Close() error { return nil }
