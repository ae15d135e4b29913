package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/spigell/agency-onboarder/internal/conversation"
)

// Memory is a process local Store. States are kept as JSON snapshots so
// callers never share memory with what is stored.
type Memory struct {
	mu     sync.RWMutex
	states map[string][]byte
}

var (
	_ Store  = (*Memory)(nil)
	_ Lister = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{states: make(map[string][]byte)}
}

func (m *Memory) Save(ctx context.Context, threadID string, state *conversation.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshalling state: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[threadID] = data
	return nil
}

func (m *Memory) Load(ctx context.Context, threadID string) (*conversation.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	data, ok := m.states[threadID]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	var state conversation.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("unmarshalling state: %w", err)
	}
	return &state, nil
}

// Threads returns the ids of every saved thread in lexical order.
func (m *Memory) Threads(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.states))
	for id := range m.states {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
