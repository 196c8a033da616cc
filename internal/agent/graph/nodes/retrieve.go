package nodes

import (
	"context"
	"fmt"

	"github.com/knu-deptqa/server/internal/agent/graph/parsers"
	"github.com/knu-deptqa/server/internal/agent/graph/prompts"
	"github.com/knu-deptqa/server/internal/agent/graph/tools"
	"github.com/knu-deptqa/server/internal/agent/model"
	errx "github.com/knu-deptqa/server/internal/core/error"
)

// Retrieve searches the document store through the search tool. The
// department filter comes from the follow-up binding, a literal mention found
// by the gate, or a prediction call, in that order.
func Retrieve(d Deps) Node {
	topK := d.Conversation.Normalize().Retrieval.TopK
	return func(ctx context.Context, s model.TurnState) (model.Update, error) {
		log := nodeLogger(s, NodeRetrieve)
		query := s.SearchQuery
		if query == "" {
			query = s.Question
		}
		upd := model.Update{SearchQuery: query}

		var (
			name   string
			source model.DepartmentSource
		)
		switch {
		case s.Conversation.FollowUp:
			name, source = s.Conversation.CurrentDepartment, model.DepartmentFollowUp
		case s.Department != "":
			name, source = s.Department, s.DepartmentSource
		default:
			predicted, cost, err := predictDepartment(ctx, d, s.Question)
			upd.CostUSD += cost
			if err != nil {
				if ctx.Err() != nil {
					return model.Update{}, ctx.Err()
				}
				log.Warn().Err(err).Msg("Department prediction failed - searching unfiltered")
			}
			name, source = predicted, model.DepartmentPredicted
		}

		var filter []string
		if dept, ok := model.LookupDepartment(name); ok {
			filter = dept.FilterValues()
			upd.Department = dept.Name
			upd.DepartmentSource = source
			upd.CurrentDepartment = &dept.Name
		} else {
			upd.CurrentDepartment = new(string)
		}

		args, err := tools.SearchArguments(tools.SearchDocumentsInput{
			Query:       query,
			Departments: filter,
			TopK:        topK,
		})
		if err != nil {
			return upd, errx.Invariant("search arguments: %v", err)
		}
		if d.Search == nil {
			return upd, errx.WrapQdrant(fmt.Errorf("search tool not configured"))
		}
		raw, err := tools.Invoke(ctx, d.Search, args)
		if err != nil {
			if ctx.Err() != nil {
				return model.Update{}, ctx.Err()
			}
			return upd, errx.WrapQdrant(err)
		}

		log.Debug().
			Str("query", query).
			Strs("departments", filter).
			Str("department_source", string(source)).
			Msg("Documents searched")
		upd.RawResults = []string{raw}
		return upd, nil
	}
}

// predictDepartment asks the classifier for one catalog department. An
// unrecognized answer yields an empty name.
func predictDepartment(ctx context.Context, d Deps, question string) (string, float64, error) {
	instructions, err := prompts.RenderDepartment(ctx)
	if err != nil {
		return "", 0, err
	}
	comp, err := d.Models.Classify(ctx, TaskDepartment, instructions, question)
	if err != nil {
		return "", comp.CostUSD, err
	}
	dept, ok := parsers.ParseDepartment(comp.Text)
	if !ok {
		return "", comp.CostUSD, nil
	}
	return dept.Name, comp.CostUSD, nil
}
