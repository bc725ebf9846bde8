package scores

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/lib/pq"
	"github.com/park285/battlehub/internal/domain"
)

// Repository stores each user's solo score history in insertion order.
type Repository interface {
	Append(ctx context.Context, userID string, s domain.SoloScore) error
	List(ctx context.Context, userID string) ([]domain.SoloScore, error)
}

type MemoryRepository struct {
	mu   sync.RWMutex
	byID map[string][]domain.SoloScore
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string][]domain.SoloScore)}
}

func (m *MemoryRepository) Append(_ context.Context, userID string, s domain.SoloScore) error {
	m.mu.Lock()
	m.byID[userID] = append(m.byID[userID], s)
	m.mu.Unlock()
	return nil
}

func (m *MemoryRepository) List(_ context.Context, userID string) ([]domain.SoloScore, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.byID[userID]
	out := make([]domain.SoloScore, len(src))
	copy(out, src)
	return out, nil
}

const scoreSchema = `
CREATE TABLE IF NOT EXISTS solo_scores (
	id         BIGSERIAL PRIMARY KEY,
	user_id    TEXT NOT NULL,
	day        INTEGER NOT NULL,
	score      DOUBLE PRECISION NOT NULL,
	played_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS solo_scores_user_idx ON solo_scores (user_id, id);`

type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (p *PostgresRepository) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, scoreSchema); err != nil {
		return fmt.Errorf("ensure solo_scores schema: %w", err)
	}
	return nil
}

func (p *PostgresRepository) Append(ctx context.Context, userID string, s domain.SoloScore) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO solo_scores (user_id, day, score, played_at) VALUES ($1, $2, $3, $4)`,
		userID, s.Day, s.Score, s.Date.UTC())
	if err != nil {
		return fmt.Errorf("insert solo score: %w", err)
	}
	return nil
}

func (p *PostgresRepository) List(ctx context.Context, userID string) ([]domain.SoloScore, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT day, score, played_at FROM solo_scores WHERE user_id = $1 ORDER BY id ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query solo scores: %w", err)
	}
	defer rows.Close()
	out := []domain.SoloScore{}
	for rows.Next() {
		var s domain.SoloScore
		if err := rows.Scan(&s.Day, &s.Score, &s.Date); err != nil {
			return nil, fmt.Errorf("scan solo score: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
