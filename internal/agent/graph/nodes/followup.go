package nodes

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/knu-deptqa/server/internal/agent/graph/parsers"
	"github.com/knu-deptqa/server/internal/agent/graph/prompts"
	"github.com/knu-deptqa/server/internal/agent/model"
)

// FollowUp decides whether the question continues the active follow-up
// chain. A follow-up keeps the department binding and gets a standalone
// search query; anything else starts a new chain and clears the binding.
func FollowUp(d Deps) Node {
	return func(ctx context.Context, s model.TurnState) (model.Update, error) {
		c := s.Conversation
		fresh := model.Update{
			FollowUp:          model.Bool(false),
			FollowUpChain:     []string{s.Question},
			ReplaceChain:      true,
			CurrentDepartment: new(string),
		}
		if len(c.FollowUpChain) == 0 || s.Question == "" {
			return fresh, nil
		}

		log := nodeLogger(s, NodeFollowUp)
		instructions, err := prompts.RenderFollowUp(ctx, c.FollowUpChain, c.CurrentDepartment)
		if err != nil {
			log.Warn().Err(err).Msg("Follow-up prompt failed - treating as new topic")
			return fresh, nil
		}
		comp, err := d.Models.Classify(ctx, TaskFollowUp, instructions, s.Question)
		fresh.CostUSD = comp.CostUSD
		if err != nil {
			if ctx.Err() != nil {
				return model.Update{}, ctx.Err()
			}
			log.Warn().Err(err).Msg("Follow-up classifier failed - treating as new topic")
			return fresh, nil
		}
		verdict, err := parsers.ParseVerdict(comp.Text)
		if err != nil {
			log.Warn().Err(err).Msg("Malformed follow-up verdict - treating as new topic")
			return fresh, nil
		}
		if !verdict.Yes {
			log.Debug().Str("reason", verdict.Reason).Msg("New topic")
			return fresh, nil
		}

		cost := comp.CostUSD
		query, rewriteCost, err := rewriteQuestion(ctx, d, c, s.Question)
		cost += rewriteCost
		if err != nil {
			if ctx.Err() != nil {
				return model.Update{}, ctx.Err()
			}
			log.Warn().Err(err).Msg("Rewrite failed - searching with the raw question")
			query = s.Question
		}

		chain := append(append([]string(nil), c.FollowUpChain...), query)
		log.Debug().
			Str("query", query).
			Str("department", c.CurrentDepartment).
			Int("chain", len(chain)).
			Msg("Follow-up detected")
		return model.Update{
			FollowUp:      model.Bool(true),
			FollowUpChain: chain,
			ReplaceChain:  true,
			SearchQuery:   query,
			CostUSD:       cost,
		}, nil
	}
}

// rewriteQuestion turns a follow-up into a standalone search query.
func rewriteQuestion(ctx context.Context, d Deps, c model.ConversationState, question string) (string, float64, error) {
	instructions, err := prompts.RenderRewrite(ctx, c.FollowUpChain, c.CurrentDepartment)
	if err != nil {
		return "", 0, err
	}
	comp, err := d.Models.Generate(ctx, TaskRewrite, instructions, schema.UserMessage(question))
	if err != nil {
		return "", comp.CostUSD, err
	}
	query := comp.Text
	if i := strings.IndexAny(query, "\r\n"); i >= 0 {
		query = query[:i]
	}
	query = strings.Trim(strings.TrimSpace(query), "\"'`")
	if query == "" {
		return question, comp.CostUSD, nil
	}
	return query, comp.CostUSD, nil
}
