package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"

	"github.com/knu-deptqa/server/internal/agent/graph/conversations"
	"github.com/knu-deptqa/server/internal/agent/model"
	errx "github.com/knu-deptqa/server/internal/core/error"
	"github.com/knu-deptqa/server/internal/metrics"
	logx "github.com/knu-deptqa/server/pkg/logger"
)

// Graph node keys. compose.START and compose.END are reserved by eino.
const (
	NodeStart          = "prepare_turn"
	NodeDetectLanguage = "detect_language"
	NodeFollowUp       = "follow_up"
	NodeGate           = "gate"
	NodeRetrieve       = "retrieve"
	NodeCollect        = "collect"
	NodeGenerate       = "generate"
	NodeClarify        = "clarify"
	NodeSummarize      = "summarize"
	NodeFinish         = "finish"
)

// Node is a pure transform over a snapshot of the turn state. The returned
// Update is merged into the graph-local state by Lambda.
type Node func(ctx context.Context, s model.TurnState) (model.Update, error)

// Deps are the collaborators shared by all nodes of a graph.
type Deps struct {
	Models       *ChatModels
	Search       tool.InvokableTool
	Messages     *conversations.MessagesManager
	Prompt       model.PromptConfig
	Conversation model.ConversationConfig
}

// Lambda adapts a Node to an Eino lambda. A node error never aborts the
// graph: its safe message becomes the turn failure and the branch table
// routes to clarify. Only context cancellation is returned to the graph.
func Lambda(name string, fn Node) *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, in model.Step) (model.Step, error) {
		var snapshot model.TurnState
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.TurnState) error {
			snapshot = *s
			snapshot.Conversation = *s.Conversation.Clone()
			snapshot.RawResults = append([]string(nil), s.RawResults...)
			return nil
		})
		if err != nil {
			return in, fmt.Errorf("failed to access state: %w", err)
		}

		upd, err := fn(ctx, snapshot)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return in, ctxErr
			}
			upd.Failure = errx.SafeMessage(err)
			metrics.RecordNodeFailure(name)
			logx.Error().
				Err(err).
				Str("thread_id", snapshot.Conversation.ThreadID).
				Str("node", name).
				Str("failure", upd.Failure).
				Msg("Node failed - routing to clarify")
		}

		err = compose.ProcessState(ctx, func(_ context.Context, s *model.TurnState) error {
			s.Apply(upd)
			return nil
		})
		if err != nil {
			return in, fmt.Errorf("failed to update state: %w", err)
		}
		return model.Step{From: name}, nil
	})
}

// NewContinueCondition routes to next unless the turn has failed.
func NewContinueCondition(next string) func(context.Context, model.Step) (string, error) {
	return func(ctx context.Context, in model.Step) (string, error) {
		var failure string
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.TurnState) error {
			failure = s.Failure
			return nil
		})
		if err != nil {
			return NodeClarify, err
		}
		if failure != "" {
			logx.Debug().Str("node", in.From).Str("failure", failure).Msg("Routing to clarify after failure")
			return NodeClarify, nil
		}
		return next, nil
	}
}
