package revision

import (
	"context"
	"sync"

	"github.com/henriksa/boss-launcher-webhook/internal/core"
)

// MemoryStore is an in-process core.RevisionStore keyed by mapping ID.
type MemoryStore struct {
	mu     sync.Mutex
	states map[int64]core.RevisionState
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[int64]core.RevisionState)}
}

// GetOrCreate returns a copy of the stored state so callers cannot mutate it
// without going through Save.
func (s *MemoryStore) GetOrCreate(_ context.Context, mappingID int64) (*core.RevisionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.states[mappingID]
	if !ok {
		state = core.RevisionState{MappingID: mappingID}
		s.states[mappingID] = state
	}
	return &state, nil
}

func (s *MemoryStore) Save(_ context.Context, state *core.RevisionState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.states[state.MappingID] = *state
	return nil
}
