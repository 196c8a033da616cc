package repo

import (
	"context"
	"sync"

	"github.com/knu-deptqa/server/internal/agent/model"
	errx "github.com/knu-deptqa/server/internal/core/error"
)

// MemoryStateRepository keeps thread states in process. States are cloned on
// the way in and out.
type MemoryStateRepository struct {
	mu     sync.RWMutex
	states map[string]*model.ConversationState
}

func NewMemoryStateRepository() *MemoryStateRepository {
	return &MemoryStateRepository{states: make(map[string]*model.ConversationState)}
}

func (r *MemoryStateRepository) Load(_ context.Context, threadID string) (*model.ConversationState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.states[threadID]
	if !ok {
		return nil, model.ErrThreadNotFound
	}
	return state.Clone(), nil
}

func (r *MemoryStateRepository) Save(_ context.Context, state *model.ConversationState) error {
	if state == nil || state.ThreadID == "" {
		return errx.Invariant("cannot save a state without thread id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[state.ThreadID] = state.Clone()
	return nil
}

func (r *MemoryStateRepository) List(_ context.Context) ([]model.ThreadSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.ThreadSummary, 0, len(r.states))
	for _, state := range r.states {
		out = append(out, state.Summary())
	}
	sortSummaries(out)
	return out, nil
}

func (r *MemoryStateRepository) Delete(_ context.Context, threadID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, threadID)
	return nil
}

var _ model.StateRepository = (*MemoryStateRepository)(nil)
