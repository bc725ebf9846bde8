package room

import (
	"context"
	"errors"
	"time"

	"github.com/park285/battlehub/internal/domain"
)

const (
	DefaultTTL           = 2 * time.Hour
	DefaultSweepInterval = time.Minute
)

// Mutator edits a room in place inside the store's atomic section.
// Returning errUnchanged skips the write, errDeleteRoom removes the room,
// any other error aborts the update and is returned to the caller.
type Mutator func(r *domain.Room) error

var errDeleteRoom = errors.New("delete room")

// Store persists rooms. Implementations must make Create and Update atomic per
// room: Create inserts only when absent, Update runs fn against the latest state
// under the backend's native primitive (mutex, WATCH/MULTI, row lock).
type Store interface {
	Create(ctx context.Context, r *domain.Room) (bool, error)
	Get(ctx context.Context, roomID string) (*domain.Room, error)
	Update(ctx context.Context, roomID string, fn Mutator) (*domain.Room, error)
	Delete(ctx context.Context, roomID string) error
	// Sweep removes rooms whose expiry passed before now and reports how many.
	Sweep(ctx context.Context, now time.Time) (int, error)
	Close() error
}

// applyMutator runs fn on r and classifies the outcome for store implementations.
func applyMutator(r *domain.Room, fn Mutator) (write, del bool, err error) {
	switch err := fn(r); {
	case err == nil:
		return true, false, nil
	case errors.Is(err, errUnchanged):
		return false, false, nil
	case errors.Is(err, errDeleteRoom):
		return false, true, nil
	default:
		return false, false, err
	}
}
