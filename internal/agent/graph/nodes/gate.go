package nodes

import (
	"context"

	"github.com/knu-deptqa/server/internal/agent/graph/parsers"
	"github.com/knu-deptqa/server/internal/agent/graph/prompts"
	"github.com/knu-deptqa/server/internal/agent/model"
	errx "github.com/knu-deptqa/server/internal/core/error"
	"github.com/knu-deptqa/server/internal/metrics"
)

// EmptyQuestionReason rejects a turn without a question.
const EmptyQuestionReason = "empty question"

// Gate decision labels.
const (
	decisionAccept   = "accept"
	decisionReject   = "reject"
	decisionFollowUp = "follow_up"
	decisionError    = "error"
)

// Gate decides whether the question is answerable from the document corpus.
// Follow-up turns are accepted without a call. Every classifier failure is a
// rejection.
func Gate(d Deps) Node {
	return func(ctx context.Context, s model.TurnState) (model.Update, error) {
		log := nodeLogger(s, NodeGate)
		if s.Conversation.FollowUp {
			metrics.RecordGateDecision(decisionFollowUp)
			return accept(""), nil
		}
		if s.Question == "" {
			metrics.RecordGateDecision(decisionReject)
			return reject(EmptyQuestionReason, 0), nil
		}

		instructions, err := prompts.RenderGate(ctx, d.Prompt, d.Messages.BuildClassifierContext(s.Conversation))
		if err != nil {
			log.Error().Err(err).Msg("Gate prompt failed - rejecting")
			metrics.RecordGateDecision(decisionError)
			return reject(errx.SafeMessage(err), 0), nil
		}
		comp, err := d.Models.Classify(ctx, TaskGate, instructions, s.Question)
		if err != nil {
			if ctx.Err() != nil {
				return model.Update{}, ctx.Err()
			}
			log.Error().Err(err).Msg("Gate classifier failed - rejecting")
			metrics.RecordGateDecision(decisionError)
			return reject(errx.SafeMessage(err), comp.CostUSD), nil
		}

		verdict, err := parsers.ParseVerdict(comp.Text)
		if err != nil {
			log.Warn().Err(err).Msg("Malformed gate output - rejecting")
			metrics.RecordGateDecision(decisionError)
			return reject(errx.MalformedOutputMessage, comp.CostUSD), nil
		}
		if !verdict.Yes {
			log.Debug().Str("reason", verdict.Reason).Msg("Question rejected")
			metrics.RecordGateDecision(decisionReject)
			return reject(verdict.Reason, comp.CostUSD), nil
		}

		metrics.RecordGateDecision(decisionAccept)
		upd := accept("")
		upd.CostUSD = comp.CostUSD
		if dept, ok := model.MentionedDepartment(s.Question); ok {
			upd.Department = dept.Name
			upd.DepartmentSource = model.DepartmentMentioned
		}
		log.Debug().Str("department", upd.Department).Msg("Question accepted")
		return upd, nil
	}
}

func accept(reason string) model.Update {
	return model.Update{Appropriate: model.Bool(true), Reason: &reason}
}

func reject(reason string, cost float64) model.Update {
	return model.Update{Appropriate: model.Bool(false), Reason: &reason, CostUSD: cost}
}
