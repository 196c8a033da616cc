package nodes

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"github.com/knu-deptqa/server/internal/agent/graph/prompts"
	"github.com/knu-deptqa/server/internal/agent/model"
)

// Summarize folds the whole message list into the running summary and keeps
// only the newest window of messages. A failed summary call keeps the prior
// summary; the window is applied regardless.
func Summarize(d Deps) Node {
	window := d.Messages.Window()
	return func(ctx context.Context, s model.TurnState) (model.Update, error) {
		upd := model.Update{Window: window}
		msgs := s.Conversation.Messages
		if len(msgs) == 0 {
			return upd, nil
		}

		log := nodeLogger(s, NodeSummarize)
		lang := model.ParseLanguage(string(s.Conversation.Language))
		instructions, err := prompts.RenderSummary(ctx, lang, s.Conversation.Summarization)
		if err != nil {
			log.Warn().Err(err).Msg("Summary prompt failed - keeping prior summary")
			return upd, nil
		}
		comp, err := d.Models.Generate(ctx, TaskSummary, instructions, schema.UserMessage(d.Messages.BuildTranscript(msgs)))
		upd.CostUSD = comp.CostUSD
		if err != nil {
			if ctx.Err() != nil {
				return model.Update{}, ctx.Err()
			}
			log.Warn().Err(err).Msg("Summarization failed - keeping prior summary")
			return upd, nil
		}
		if comp.Text == "" {
			log.Warn().Msg("Empty summary - keeping prior summary")
			return upd, nil
		}

		summary := comp.Text
		upd.Summary = &summary
		log.Debug().
			Int("messages", len(msgs)).
			Int("window", window).
			Msg("Conversation summarized")
		return upd, nil
	}
}
