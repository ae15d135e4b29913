// Package checkpoint persists conversation state per thread. A turn loads the
// state once when it starts and saves it once when it ends.
package checkpoint

import (
	"context"
	"errors"

	"github.com/spigell/agency-onboarder/internal/conversation"
)

// ErrNotFound is returned by Load for a thread that was never saved.
var ErrNotFound = errors.New("checkpoint not found")

// Store keeps the latest state of every thread.
type Store interface {
	Save(ctx context.Context, threadID string, state *conversation.State) error
	Load(ctx context.Context, threadID string) (*conversation.State, error)
}

// Lister is implemented by stores that can enumerate their threads.
type Lister interface {
	Threads(ctx context.Context) ([]string, error)
}
