// Package scores keeps single-player daily challenge results per user.
package scores

import (
	"context"
	"strings"
	"time"

	"github.com/park285/battlehub/internal/domain"
	"github.com/park285/battlehub/internal/obslog"
	"github.com/park285/battlehub/internal/room"
	"go.uber.org/zap"
)

type Service struct {
	repo Repository
	now  func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, now: time.Now}
}

// Save appends a result to userID's history. Validation errors wrap
// room.ErrInvalidInput so the HTTP layer maps them like room errors.
func (s *Service) Save(ctx context.Context, userID string, day int, score float64) (domain.SoloScore, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.SoloScore{}, room.ErrUnauthorized
	}
	if day < 1 {
		return domain.SoloScore{}, room.InvalidInput("day", "must be at least 1")
	}
	if err := room.ValidateScore(score); err != nil {
		return domain.SoloScore{}, err
	}
	entry := domain.SoloScore{Day: day, Score: score, Date: s.now().UTC()}
	if err := s.repo.Append(ctx, userID, entry); err != nil {
		obslog.L().Error("score_save_error", zap.String("user_id", userID), zap.Int("day", day), zap.Error(err))
		return domain.SoloScore{}, err
	}
	obslog.L().Info("score_save", zap.String("user_id", userID), zap.Int("day", day), zap.Float64("score", score))
	return entry, nil
}

func (s *Service) List(ctx context.Context, userID string) ([]domain.SoloScore, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, room.ErrUnauthorized
	}
	out, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.SoloScore{}
	}
	return out, nil
}
