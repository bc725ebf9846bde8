package roomclient

import (
	"context"
	"net/url"

	"github.com/park285/battlehub/internal/domain"
	"github.com/valyala/fasthttp"
)

type JoinResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Room    *domain.Room `json:"room"`
	IsHost  bool         `json:"isHost"`
	UserID  string       `json:"userId"`
}

type RoomResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Room    *domain.Room `json:"room"`
}

type LeaveResponse struct {
	Success bool         `json:"success"`
	Room    *domain.Room `json:"room"`
	Deleted bool         `json:"deleted"`
}

type ScoresResponse struct {
	Success bool               `json:"success"`
	Scores  []domain.SoloScore `json:"scores"`
}

func roomPath(roomID string, suffix string) string {
	return "/room/" + url.PathEscape(roomID) + suffix
}

func (c *Client) Join(ctx context.Context, roomID string) (*JoinResponse, error) {
	var out JoinResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/room/join", map[string]string{"roomId": roomID}, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Get(ctx context.Context, roomID string) (*domain.Room, error) {
	var out RoomResponse
	if err := c.doJSON(ctx, fasthttp.MethodGet, roomPath(roomID, ""), nil, &out, true); err != nil {
		return nil, err
	}
	return out.Room, nil
}

func (c *Client) SelectChallenge(ctx context.Context, roomID string, ch domain.Challenge) (*domain.Room, error) {
	body := map[string]any{"roomId": roomID, "day": ch.Day, "image": ch.Image}
	if ch.Month > 0 {
		body["month"] = ch.Month
	}
	var out RoomResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/challenge/select", body, &out, false); err != nil {
		return nil, err
	}
	return out.Room, nil
}

// Start starts the room; ch may be nil when a challenge is already selected.
func (c *Client) Start(ctx context.Context, roomID string, ch *domain.Challenge) (*domain.Room, error) {
	body := map[string]any{"roomId": roomID}
	if ch != nil {
		body["challenge"] = ch
	}
	var out RoomResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/challenge/start", body, &out, false); err != nil {
		return nil, err
	}
	return out.Room, nil
}

func (c *Client) SubmitScore(ctx context.Context, roomID string, score float64) (*domain.Room, error) {
	var out RoomResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, roomPath(roomID, "/score"), map[string]float64{"score": score}, &out, false); err != nil {
		return nil, err
	}
	return out.Room, nil
}

func (c *Client) Leave(ctx context.Context, roomID string) (*LeaveResponse, error) {
	var out LeaveResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, roomPath(roomID, "/leave"), nil, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) SaveScore(ctx context.Context, day int, score float64) error {
	return c.doJSON(ctx, fasthttp.MethodPost, "/score/save", map[string]any{"day": day, "score": score}, nil, false)
}

func (c *Client) Scores(ctx context.Context) ([]domain.SoloScore, error) {
	var out ScoresResponse
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/score/get", nil, &out, true); err != nil {
		return nil, err
	}
	return out.Scores, nil
}

func (c *Client) Health(ctx context.Context) error {
	return c.doJSON(ctx, fasthttp.MethodGet, "/healthz", nil, nil, true)
}
