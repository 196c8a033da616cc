package nodes

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	"github.com/knu-deptqa/server/internal/agent/model"
	errx "github.com/knu-deptqa/server/internal/core/error"
)

// NewFinishNode turns the graph-local state into the turn result. A turn
// without an assistant reply is an invariant violation.
func NewFinishNode() *compose.Lambda {
	return compose.InvokableLambda(func(ctx context.Context, _ model.Step) (*model.TurnResult, error) {
		var (
			res *model.TurnResult
			err error
		)
		perr := compose.ProcessState(ctx, func(_ context.Context, s *model.TurnState) error {
			res, err = Result(*s)
			return nil
		})
		if perr != nil {
			return nil, fmt.Errorf("failed to access state: %w", perr)
		}
		return res, err
	})
}

// Result builds the caller-facing result of a completed turn.
func Result(s model.TurnState) (*model.TurnResult, error) {
	if s.Reply == nil {
		return nil, errx.Invariant("turn of thread %q ended without a reply", s.Conversation.ThreadID)
	}
	route := s.Route
	if route == "" {
		route = model.RouteClarify
	}
	c := s.Conversation.Clone()
	res := &model.TurnResult{
		ThreadID:   c.ThreadID,
		Reply:      *s.Reply,
		Route:      route,
		Language:   c.Language,
		Department: c.CurrentDepartment,
		FollowUp:   c.FollowUp,
		Summary:    c.Summarization,
		CostUSD:    s.CostUSD,
		State:      c,
	}
	if route == model.RouteRetrieve {
		res.Documents = c.Documents
	}
	return res, nil
}
