package model

import (
	"context"
	"errors"
)

// ErrThreadNotFound is returned when no state is stored for a thread.
var ErrThreadNotFound = errors.New("thread not found")

// StateRepository is the checkpoint collaborator that keeps ConversationState between turns.
type StateRepository interface {
	// Load retrieves the state of a thread, or ErrThreadNotFound.
	Load(ctx context.Context, threadID string) (*ConversationState, error)

	// Save persists the state of a thread, replacing any previous version
	Save(ctx context.Context, state *ConversationState) error

	// List returns the listing view of every stored thread
	List(ctx context.Context) ([]ThreadSummary, error)

	// Delete removes a thread's state
	Delete(ctx context.Context, threadID string) error
}
