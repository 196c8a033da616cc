package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog"

	"github.com/knu-deptqa/server/internal/agent/model"
	errx "github.com/knu-deptqa/server/internal/core/error"
	logx "github.com/knu-deptqa/server/pkg/logger"
)

// NewStartPreHandler seeds the graph-local state from the loaded thread state,
// resets the per-turn fields and appends the user's question.
func NewStartPreHandler(defaultLanguage model.Language) func(context.Context, model.TurnInput, *model.TurnState) (model.TurnInput, error) {
	return func(ctx context.Context, in model.TurnInput, s *model.TurnState) (model.TurnInput, error) {
		conv := in.State
		if conv == nil {
			logx.Warn().Msg("Turn started without a thread state - using an empty one")
			conv = model.NewConversationState("")
		}

		*s = model.TurnState{
			Conversation: *conv.Clone(),
			Question:     strings.TrimSpace(in.Question),
		}
		c := &s.Conversation
		if c.Language == "" {
			c.Language = defaultLanguage
		}
		c.QuestionAppropriate = nil
		c.QuestionReason = ""
		c.FollowUp = false
		c.Messages = append(c.Messages, model.NewMessage(model.RoleUser, in.Question))
		return in, nil
	}
}

// NewStartNode validates the seeded state before the turn proceeds.
func NewStartNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.TurnInput) (model.Step, error) {
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.TurnState) error {
			if s.Conversation.ThreadID == "" {
				s.Apply(model.Update{Failure: errx.SafeMessage(errx.Invariant("thread id is empty"))})
				logx.Warn().Str("node", NodeStart).Msg("Turn started without a thread id")
				return nil
			}
			log := nodeLogger(*s, NodeStart)
			log.Debug().
				Int("messages", len(s.Conversation.Messages)).
				Int("follow_up_chain", len(s.Conversation.FollowUpChain)).
				Msg("Turn started")
			return nil
		})
		if err != nil {
			return model.Step{}, fmt.Errorf("failed to access state: %w", err)
		}
		return model.Step{From: NodeStart}, nil
	})
}

// nodeLogger returns a logger carrying the thread id and node name.
func nodeLogger(s model.TurnState, node string) *zerolog.Logger {
	l := logx.Thread(s.Conversation.ThreadID).With().Str("node", node).Logger()
	return &l
}
