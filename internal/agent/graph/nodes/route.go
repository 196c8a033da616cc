package nodes

import (
	"context"

	"github.com/cloudwego/eino/compose"

	"github.com/knu-deptqa/server/internal/agent/model"
)

// Route is retrieve iff the gate accepted the question and the turn has not
// failed. An unset gate decision routes to clarify.
func Route(s model.TurnState) model.Route {
	if s.Failure != "" {
		return model.RouteClarify
	}
	appropriate, set := s.Appropriate()
	if !set {
		log := nodeLogger(s, NodeGate)
		log.Warn().Msg("Gate decision unset - routing to clarify")
		return model.RouteClarify
	}
	if appropriate {
		return model.RouteRetrieve
	}
	return model.RouteClarify
}

// NewRouteCondition creates the branch condition after the gate. The decision
// is recorded on the turn state.
func NewRouteCondition() func(context.Context, model.Step) (string, error) {
	return func(ctx context.Context, _ model.Step) (string, error) {
		route := model.RouteClarify
		err := compose.ProcessState(ctx, func(_ context.Context, s *model.TurnState) error {
			route = Route(*s)
			s.Apply(model.Update{Route: route})
			return nil
		})
		if err != nil {
			return NodeClarify, err
		}
		if route == model.RouteRetrieve {
			return NodeRetrieve, nil
		}
		return NodeClarify, nil
	}
}
